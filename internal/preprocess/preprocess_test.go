package preprocess

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/billscan/internal/model"
)

// testPage builds a white page with a block of dark "text" rows.
func testPage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := h / 4; y < h/4+3; y++ {
		for x := w / 8; x < w-w/8; x++ {
			img.SetGray(x, y, color.Gray{Y: 10})
		}
	}
	return img
}

func TestPreprocess_AppliesStepsInOrder(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	require.NoError(t, savePNG(in, testPage(80, 100)))

	p := New()
	result, err := p.Preprocess(context.Background(), in, out, DefaultInvoicePipeline())
	require.NoError(t, err)

	assert.Equal(t, []string{"grayscale", "noise_removal", "deskew", "brightness_contrast", "sharpen"}, result.StepsApplied)
	assert.Len(t, result.Improvements, 5)

	_, statErr := os.Stat(out)
	assert.NoError(t, statErr)
}

func TestPreprocess_LoadError(t *testing.T) {
	p := New()
	_, err := p.Preprocess(context.Background(), "/nonexistent/a.png", "/tmp/out.png", DefaultInvoicePipeline())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load")
}

func TestCrop_OutOfBoundsIsParameterError(t *testing.T) {
	img := testPage(50, 50)

	_, err := Crop{Rect: image.Rect(10, 10, 60, 40)}.Apply(img)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParameter)
}

func TestCrop_WithinBounds(t *testing.T) {
	img := testPage(50, 50)

	out, err := Crop{Rect: image.Rect(10, 10, 40, 30)}.Apply(img)
	require.NoError(t, err)
	assert.Equal(t, 30, out.Bounds().Dx())
	assert.Equal(t, 20, out.Bounds().Dy())
}

func TestCrop_EmptyRegion(t *testing.T) {
	_, err := Crop{}.Apply(testPage(50, 50))
	assert.ErrorIs(t, err, ErrParameter)
}

func TestBinarize_SplitsInkFromBackground(t *testing.T) {
	img := testPage(40, 40)

	out, err := Binarize{}.Apply(img)
	require.NoError(t, err)

	gray := out.(*image.Gray)
	for _, p := range gray.Pix {
		assert.True(t, p == 0 || p == 255, "binarized pixel must be pure black or white, got %d", p)
	}
}

func TestResize_Dimensions(t *testing.T) {
	out, err := Resize{Width: 20, Height: 30}.Apply(testPage(40, 40))
	require.NoError(t, err)
	assert.Equal(t, 20, out.Bounds().Dx())
	assert.Equal(t, 30, out.Bounds().Dy())

	_, err = Resize{Width: 0, Height: 30}.Apply(testPage(40, 40))
	assert.ErrorIs(t, err, ErrParameter)
}

func TestBrightnessContrast_Bounds(t *testing.T) {
	_, err := BrightnessContrast{Brightness: 300}.Apply(testPage(10, 10))
	assert.ErrorIs(t, err, ErrParameter)

	out, err := BrightnessContrast{Brightness: 50, Contrast: 1}.Apply(testPage(10, 10))
	require.NoError(t, err)
	// White stays clamped at 255.
	assert.Equal(t, uint8(255), out.(*image.Gray).GrayAt(0, 0).Y)
}

func TestNoiseRemoval_ClearsIsolatedSpeck(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 9, 9))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(4, 4, color.Gray{Y: 0}) // lone dark pixel

	out, err := NoiseRemoval{}.Apply(img)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), out.(*image.Gray).GrayAt(4, 4).Y)
}

func TestDeskew_InvalidAngle(t *testing.T) {
	_, err := Deskew{MaxAngle: 0}.Apply(testPage(10, 10))
	assert.ErrorIs(t, err, ErrParameter)

	_, err = Deskew{MaxAngle: 90}.Apply(testPage(10, 10))
	assert.ErrorIs(t, err, ErrParameter)
}

func TestDeskew_StraightPageUnchangedDimensions(t *testing.T) {
	img := testPage(60, 80)
	out, err := Deskew{MaxAngle: 10}.Apply(img)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), out.Bounds())
}

func TestMaskShields_PaintsAppliedOnly(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	// All-dark page so masked areas are obvious.
	for i := range img.Pix {
		img.Pix[i] = 0
	}

	shields := []model.CleanupShield{
		{
			BBox:      model.NormalizedBBox{X: 0, Y: 0, Width: 0.2, Height: 0.2},
			ApplyMode: model.ApplyModeApplied,
		},
		{
			BBox:      model.NormalizedBBox{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2},
			ApplyMode: model.ApplyModeSuggested,
		},
	}

	out := MaskShields(img, shields).(*image.Gray)
	assert.Equal(t, uint8(255), out.GrayAt(5, 5).Y, "applied shield region must be whited out")
	assert.Equal(t, uint8(0), out.GrayAt(55, 55).Y, "suggested shield must not mask pixels")
}

func TestStepsArePure(t *testing.T) {
	img := testPage(30, 30)
	before := make([]uint8, len(img.Pix))
	copy(before, img.Pix)

	for _, step := range DefaultInvoicePipeline() {
		_, err := step.Apply(img)
		require.NoError(t, err)
		assert.Equal(t, before, img.Pix, "step %s mutated its input", step.Name())
	}
}
