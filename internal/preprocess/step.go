// Package preprocess cleans scanned invoice images before OCR: an ordered
// pipeline of pure image transforms, each independently reproducible given
// identical input.
package preprocess

import (
	"image"

	"github.com/rotisserie/eris"
)

// ErrParameter indicates invalid step parameters; the caller must fix its
// pipeline configuration, retrying is pointless.
var ErrParameter = eris.New("preprocess: invalid step parameters")

// Step is a single image transform in a preprocessing pipeline.
type Step interface {
	// Name identifies the step in results and logs.
	Name() string
	// Apply transforms the image. It must not mutate the input.
	Apply(img image.Image) (image.Image, error)
}

// Grayscale converts to 8-bit luminance.
type Grayscale struct{}

// BrightnessContrast applies a linear pixel transform. Brightness is an
// additive shift in [-255,255]; Contrast is a multiplier around mid-gray,
// 1.0 meaning unchanged.
type BrightnessContrast struct {
	Brightness float64
	Contrast   float64
}

// NoiseRemoval applies a 3x3 median filter.
type NoiseRemoval struct{}

// Deskew estimates page rotation by projection-profile search within
// [-MaxAngle, MaxAngle] degrees and rotates to compensate.
type Deskew struct {
	MaxAngle float64
}

// Crop extracts a pixel region. A region exceeding the image bounds is a
// parameter error, never silently clamped.
type Crop struct {
	Rect image.Rectangle
}

// RemoveBorders whites out dark scanner edges.
type RemoveBorders struct{}

// Sharpen applies an unsharp mask.
type Sharpen struct {
	// Amount scales the edge boost; zero means the default 0.6.
	Amount float64
}

// Binarize thresholds to black and white using Otsu's method.
type Binarize struct{}

// Resize scales to the given pixel dimensions with a Catmull-Rom kernel.
type Resize struct {
	Width  int
	Height int
}

// DefaultInvoicePipeline is the standard cleanup sequence for scanned vendor
// bills: grayscale, denoise, deskew up to 10 degrees, contrast boost, sharpen.
func DefaultInvoicePipeline() []Step {
	return []Step{
		Grayscale{},
		NoiseRemoval{},
		Deskew{MaxAngle: 10},
		BrightnessContrast{Brightness: 0, Contrast: 1.2},
		Sharpen{},
	}
}
