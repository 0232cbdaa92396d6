// Package ocr abstracts the recognition engine behind a small interface so the
// multi-pass service never depends on a specific backend. Engine errors are
// transient and retriable by the caller; a low-confidence success is not an
// error.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/config"
	"github.com/sells-group/billscan/internal/model"
)

// Engine runs one recognition pass over an image file.
type Engine interface {
	// Recognize returns the text and average confidence (0..1) for one pass.
	// A recognition failure is reported as an error, never as a zero-confidence
	// result.
	Recognize(ctx context.Context, imagePath string, pass model.OCRPassConfig) (*model.OCRResult, error)
}

// NewEngine creates an Engine based on config.
func NewEngine(cfg config.OCRConfig) (Engine, error) {
	switch cfg.Provider {
	case "tesseract", "":
		return NewTesseractCLI(cfg.TesseractPath, cfg.Language), nil
	case "gosseract":
		return NewGosseract(cfg.Language), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralVision(cfg.MistralKey, cfg.MistralModel, cfg.RatePerSec), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
