package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/model"
)

// Gosseract recognizes text in-process through the tesseract C API. A fresh
// client per call keeps passes independent; gosseract clients are not safe to
// share across goroutines.
type Gosseract struct {
	language      string
	clientFactory func() *gosseract.Client
}

// NewGosseract creates an in-process tesseract engine.
func NewGosseract(language string) *Gosseract {
	if language == "" {
		language = "eng"
	}
	return &Gosseract{language: language, clientFactory: gosseract.NewClient}
}

// Recognize runs one pass with the pass's segmentation mode and language.
func (g *Gosseract) Recognize(ctx context.Context, imagePath string, pass model.OCRPassConfig) (*model.OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "ocr: gosseract canceled")
	}

	start := time.Now()
	c := g.clientFactory()
	defer c.Close() //nolint:errcheck

	if err := c.SetImage(imagePath); err != nil {
		return nil, eris.Wrapf(err, "ocr: gosseract set image %s", imagePath)
	}
	lang := pass.Language
	if lang == "" {
		lang = g.language
	}
	if err := c.SetLanguage(lang); err != nil {
		return nil, eris.Wrapf(err, "ocr: gosseract set language %s", lang)
	}
	if pass.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(pass.PSM)); err != nil {
			return nil, eris.Wrapf(err, "ocr: gosseract set psm %d", pass.PSM)
		}
	}
	if pass.Mode == model.ModeSmallText {
		// Small print needs a DPI hint or tesseract skips it as noise.
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(300)); err != nil {
			return nil, eris.Wrap(err, "ocr: gosseract set dpi")
		}
	}

	text, err := c.Text()
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: gosseract recognize %s", imagePath)
	}

	conf := wordConfidence(c)
	return &model.OCRResult{
		Text:             strings.TrimSpace(text),
		Confidence:       conf,
		Engine:           "gosseract",
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// wordConfidence averages per-word confidences into 0..1.
func wordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
