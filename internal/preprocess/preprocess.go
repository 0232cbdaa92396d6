package preprocess

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/model"
)

// Result reports what a preprocessing run did.
type Result struct {
	StepsApplied     []string `json:"steps_applied"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
	Improvements     []string `json:"improvements"`
}

// Preprocessor runs ordered step pipelines over image files.
type Preprocessor struct {
	now func() time.Time
}

// New creates a Preprocessor.
func New() *Preprocessor {
	return &Preprocessor{now: time.Now}
}

// WithClock substitutes the time source; intended for tests.
func (p *Preprocessor) WithClock(now func() time.Time) *Preprocessor {
	p.now = now
	return p
}

// Preprocess loads inputPath, applies the steps strictly in order, and writes
// the result as PNG to outputPath.
func (p *Preprocessor) Preprocess(ctx context.Context, inputPath, outputPath string, steps []Step) (*Result, error) {
	start := p.now()

	img, err := loadImage(inputPath)
	if err != nil {
		return nil, err
	}

	img, result, err := p.run(ctx, img, steps)
	if err != nil {
		return nil, err
	}

	if err := savePNG(outputPath, img); err != nil {
		return nil, err
	}

	result.ProcessingTimeMS = p.now().Sub(start).Milliseconds()
	zap.L().Debug("preprocess: done",
		zap.String("input", inputPath),
		zap.Strings("steps", result.StepsApplied),
		zap.Int64("ms", result.ProcessingTimeMS),
	)
	return result, nil
}

// Apply runs the steps over an in-memory image; used by the pipeline when the
// image is already decoded.
func (p *Preprocessor) Apply(ctx context.Context, img image.Image, steps []Step) (image.Image, *Result, error) {
	start := p.now()
	out, result, err := p.run(ctx, img, steps)
	if err != nil {
		return nil, nil, err
	}
	result.ProcessingTimeMS = p.now().Sub(start).Milliseconds()
	return out, result, nil
}

func (p *Preprocessor) run(ctx context.Context, img image.Image, steps []Step) (image.Image, *Result, error) {
	result := &Result{}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "preprocess: canceled")
		}
		out, err := step.Apply(img)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "preprocess: step %s", step.Name())
		}
		img = out
		result.StepsApplied = append(result.StepsApplied, step.Name())
		result.Improvements = append(result.Improvements, improvementNote(step))
	}
	return img, result, nil
}

func improvementNote(step Step) string {
	switch step.(type) {
	case Grayscale:
		return "reduced to single luminance channel"
	case NoiseRemoval:
		return "suppressed salt-and-pepper noise"
	case Deskew:
		return "straightened text baselines"
	case BrightnessContrast:
		return "normalized tonal range"
	case Sharpen:
		return "boosted edge contrast"
	case Binarize:
		return "separated ink from background"
	case RemoveBorders:
		return "cleared scanner edge bands"
	case Crop:
		return "isolated region of interest"
	case Resize:
		return "rescaled for engine DPI expectations"
	default:
		return step.Name()
	}
}

// MaskShields paints applied shields white so their content never reaches the
// OCR engine. Suggested and disabled shields are ignored.
func MaskShields(img image.Image, shields []model.CleanupShield) image.Image {
	bounds := img.Bounds()
	dst := image.NewGray(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	for _, s := range shields {
		if s.ApplyMode != model.ApplyModeApplied {
			continue
		}
		rect := image.Rect(
			bounds.Min.X+int(s.BBox.X*float64(bounds.Dx())),
			bounds.Min.Y+int(s.BBox.Y*float64(bounds.Dy())),
			bounds.Min.X+int((s.BBox.X+s.BBox.Width)*float64(bounds.Dx())),
			bounds.Min.Y+int((s.BBox.Y+s.BBox.Height)*float64(bounds.Dy())),
		)
		draw.Draw(dst, rect.Intersect(bounds), &image.Uniform{C: color.Gray{Y: 255}}, image.Point{}, draw.Src)
	}
	return dst
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "preprocess: load %s", path)
	}
	defer f.Close() //nolint:errcheck

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "preprocess: decode %s", path)
	}
	return img, nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "preprocess: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := png.Encode(f, img); err != nil {
		return eris.Wrapf(err, "preprocess: encode %s", path)
	}
	return nil
}
