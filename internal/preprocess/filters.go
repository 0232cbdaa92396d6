package preprocess

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	xdraw "golang.org/x/image/draw"
)

func (Grayscale) Name() string { return "grayscale" }

func (Grayscale) Apply(img image.Image) (image.Image, error) {
	return toGray(img), nil
}

func (s BrightnessContrast) Name() string { return "brightness_contrast" }

func (s BrightnessContrast) Apply(img image.Image) (image.Image, error) {
	if s.Brightness < -255 || s.Brightness > 255 {
		return nil, eris.Wrapf(ErrParameter, "brightness %.1f outside [-255,255]", s.Brightness)
	}
	if s.Contrast < 0 {
		return nil, eris.Wrapf(ErrParameter, "contrast %.2f must be non-negative", s.Contrast)
	}
	contrast := s.Contrast
	if contrast == 0 {
		contrast = 1
	}

	src := toGray(img)
	dst := image.NewGray(src.Bounds())
	for i, p := range src.Pix {
		v := (float64(p)-128)*contrast + 128 + s.Brightness
		dst.Pix[i] = clampByte(v)
	}
	return dst, nil
}

func (NoiseRemoval) Name() string { return "noise_removal" }

// Apply runs a 3x3 median filter; edge pixels are copied through.
func (NoiseRemoval) Apply(img image.Image) (image.Image, error) {
	src := toGray(img)
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	copy(dst.Pix, src.Pix)

	var window [9]int
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window[k] = int(src.GrayAt(x+dx, y+dy).Y)
					k++
				}
			}
			w := window[:]
			sort.Ints(w)
			dst.SetGray(x, y, color.Gray{Y: uint8(w[4])})
		}
	}
	return dst, nil
}

func (s Deskew) Name() string { return "deskew" }

func (s Deskew) Apply(img image.Image) (image.Image, error) {
	if s.MaxAngle <= 0 || s.MaxAngle > 45 {
		return nil, eris.Wrapf(ErrParameter, "deskew max angle %.1f outside (0,45]", s.MaxAngle)
	}
	src := toGray(img)
	angle := estimateSkew(src, s.MaxAngle)
	if math.Abs(angle) < 0.1 {
		return src, nil
	}
	return rotate(src, -angle), nil
}

// estimateSkew searches rotation angles in 0.5-degree increments for the one
// maximizing the variance of horizontal dark-pixel projection profiles. Text
// rows aligned with the scan axis produce the spikiest profile.
func estimateSkew(src *image.Gray, maxAngle float64) float64 {
	bestAngle, bestScore := 0.0, -1.0
	for angle := -maxAngle; angle <= maxAngle+1e-9; angle += 0.5 {
		score := projectionVariance(src, angle)
		if score > bestScore {
			bestScore, bestAngle = score, angle
		}
	}
	return bestAngle
}

func projectionVariance(src *image.Gray, angleDeg float64) float64 {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	rad := angleDeg * math.Pi / 180
	tan := math.Tan(rad)

	// Sample a coarse grid; good enough to rank candidate angles.
	const step = 3
	rows := make([]float64, h)
	for y := 0; y < h; y += step {
		for x := 0; x < w; x += step {
			// Shear the sample row by the candidate angle.
			yy := y + int(float64(x-w/2)*tan)
			if yy < 0 || yy >= h {
				continue
			}
			if src.GrayAt(bounds.Min.X+x, bounds.Min.Y+yy).Y < 128 {
				rows[y]++
			}
		}
	}

	var sum, sumSq float64
	for _, v := range rows {
		sum += v
		sumSq += v * v
	}
	n := float64(len(rows))
	mean := sum / n
	return sumSq/n - mean*mean
}

// rotate performs nearest-neighbor rotation about the image center, filling
// uncovered pixels with white.
func rotate(src *image.Gray, angleDeg float64) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(bounds)
	for i := range dst.Pix {
		dst.Pix[i] = 255
	}

	rad := angleDeg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(w)/2, float64(h)/2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Inverse mapping: destination pixel pulled from source.
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := int(dx*cos + dy*sin + cx)
			sy := int(-dx*sin + dy*cos + cy)
			if sx >= 0 && sx < w && sy >= 0 && sy < h {
				dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, src.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy))
			}
		}
	}
	return dst
}

func (c Crop) Name() string { return "crop" }

func (c Crop) Apply(img image.Image) (image.Image, error) {
	bounds := img.Bounds()
	if c.Rect.Empty() {
		return nil, eris.Wrap(ErrParameter, "crop region is empty")
	}
	if !c.Rect.In(bounds) {
		return nil, eris.Wrapf(ErrParameter, "crop region %v exceeds image bounds %v", c.Rect, bounds)
	}
	src := toGray(img)
	dst := image.NewGray(image.Rect(0, 0, c.Rect.Dx(), c.Rect.Dy()))
	for y := 0; y < c.Rect.Dy(); y++ {
		for x := 0; x < c.Rect.Dx(); x++ {
			dst.SetGray(x, y, src.GrayAt(c.Rect.Min.X+x, c.Rect.Min.Y+y))
		}
	}
	return dst, nil
}

func (RemoveBorders) Name() string { return "remove_borders" }

// Apply whites out rows and columns near the edges that are mostly dark —
// the black bands flatbed scanners leave around a smaller page.
func (RemoveBorders) Apply(img image.Image) (image.Image, error) {
	src := toGray(img)
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(bounds)
	copy(dst.Pix, src.Pix)

	margin := func(n int) int {
		m := n / 20
		if m < 2 {
			m = 2
		}
		return m
	}
	const darkFrac = 0.6

	rowDark := func(y int) float64 {
		dark := 0
		for x := 0; x < w; x++ {
			if src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y < 64 {
				dark++
			}
		}
		return float64(dark) / float64(w)
	}
	colDark := func(x int) float64 {
		dark := 0
		for y := 0; y < h; y++ {
			if src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y < 64 {
				dark++
			}
		}
		return float64(dark) / float64(h)
	}
	whiteRow := func(y int) {
		for x := 0; x < w; x++ {
			dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: 255})
		}
	}
	whiteCol := func(x int) {
		for y := 0; y < h; y++ {
			dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: 255})
		}
	}

	for y := 0; y < margin(h); y++ {
		if rowDark(y) > darkFrac {
			whiteRow(y)
		}
		if rowDark(h - 1 - y) > darkFrac {
			whiteRow(h - 1 - y)
		}
	}
	for x := 0; x < margin(w); x++ {
		if colDark(x) > darkFrac {
			whiteCol(x)
		}
		if colDark(w - 1 - x) > darkFrac {
			whiteCol(w - 1 - x)
		}
	}
	return dst, nil
}

func (s Sharpen) Name() string { return "sharpen" }

// Apply adds back the difference between the image and a 3x3 box blur.
func (s Sharpen) Apply(img image.Image) (image.Image, error) {
	amount := s.Amount
	if amount == 0 {
		amount = 0.6
	}
	if amount < 0 || amount > 4 {
		return nil, eris.Wrapf(ErrParameter, "sharpen amount %.2f outside [0,4]", amount)
	}

	src := toGray(img)
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	copy(dst.Pix, src.Pix)

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			var sum int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += int(src.GrayAt(x+dx, y+dy).Y)
				}
			}
			blur := float64(sum) / 9
			orig := float64(src.GrayAt(x, y).Y)
			dst.SetGray(x, y, color.Gray{Y: clampByte(orig + amount*(orig-blur))})
		}
	}
	return dst, nil
}

func (Binarize) Name() string { return "binarize" }

func (Binarize) Apply(img image.Image) (image.Image, error) {
	src := toGray(img)
	threshold := otsuThreshold(src)
	dst := image.NewGray(src.Bounds())
	for i, p := range src.Pix {
		if p > threshold {
			dst.Pix[i] = 255
		}
	}
	return dst, nil
}

// otsuThreshold picks the threshold minimizing intra-class variance.
func otsuThreshold(src *image.Gray) uint8 {
	var hist [256]int
	for _, p := range src.Pix {
		hist[p]++
	}
	total := len(src.Pix)
	if total == 0 {
		return 128
	}

	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}

	var sumB, wB float64
	bestVar, best := -1.0, 128
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sumAll - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > bestVar {
			bestVar, best = between, t
		}
	}
	return uint8(best)
}

func (s Resize) Name() string { return "resize" }

func (s Resize) Apply(img image.Image) (image.Image, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return nil, eris.Wrapf(ErrParameter, "resize dimensions %dx%d must be positive", s.Width, s.Height)
	}
	dst := image.NewGray(image.Rect(0, 0, s.Width, s.Height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst, nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	dst := image.NewGray(bounds)
	xdraw.Draw(dst, bounds, img, bounds.Min, xdraw.Src)
	return dst
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
