package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/model"
)

// TesseractCLI recognizes text via the tesseract command-line tool, reading
// TSV output for per-word confidences.
type TesseractCLI struct {
	binPath  string
	language string
}

// NewTesseractCLI creates a TesseractCLI engine. Empty binPath defaults to
// "tesseract", empty language to "eng".
func NewTesseractCLI(binPath, language string) *TesseractCLI {
	if binPath == "" {
		binPath = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractCLI{binPath: binPath, language: language}
}

// Recognize runs one tesseract pass with the pass's segmentation mode.
func (t *TesseractCLI) Recognize(ctx context.Context, imagePath string, pass model.OCRPassConfig) (*model.OCRResult, error) {
	lang := pass.Language
	if lang == "" {
		lang = t.language
	}
	args := []string{imagePath, "stdout", "-l", lang}
	if pass.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(pass.PSM))
	}
	args = append(args, "tsv")

	start := time.Now()
	cmd := exec.CommandContext(ctx, t.binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "ocr: tesseract failed for %s: %s", imagePath, stderr.String())
	}

	text, conf := parseTSV(stdout.String())
	return &model.OCRResult{
		Text:             text,
		Confidence:       conf,
		Engine:           "tesseract-cli",
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// parseTSV reconstructs line-broken text and the mean word confidence (0..1)
// from tesseract's TSV output. Rows with confidence -1 are layout markers, not
// words.
func parseTSV(tsv string) (string, float64) {
	var sb strings.Builder
	var confSum float64
	var words int
	lastLineKey := ""

	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 || strings.TrimSpace(row) == "" {
			continue // header
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		// page_num, block_num, par_num, line_num identify the line.
		lineKey := strings.Join(cols[1:5], ":")
		if lastLineKey != "" && lineKey != lastLineKey {
			sb.WriteByte('\n')
		} else if sb.Len() > 0 && lineKey == lastLineKey {
			sb.WriteByte(' ')
		}
		lastLineKey = lineKey

		sb.WriteString(word)
		confSum += conf
		words++
	}

	if words == 0 {
		return "", 0
	}
	return sb.String(), confSum / float64(words) / 100
}
