package model

// NormalizedBBox is a rectangle in page-relative coordinates, all values in [0,1]
// with the origin at the top-left corner of the page.
type NormalizedBBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsValid reports whether the box lies entirely within the unit square.
func (b NormalizedBBox) IsValid() bool {
	if b.X < 0 || b.Y < 0 || b.Width < 0 || b.Height < 0 {
		return false
	}
	if b.X > 1 || b.Y > 1 || b.Width > 1 || b.Height > 1 {
		return false
	}
	return b.X+b.Width <= 1 && b.Y+b.Height <= 1
}

// Area returns the box area in normalized units.
func (b NormalizedBBox) Area() float64 {
	return b.Width * b.Height
}

// Intersection returns the overlapping region of two boxes, or a zero box when
// they do not overlap.
func (b NormalizedBBox) Intersection(o NormalizedBBox) NormalizedBBox {
	x1 := max(b.X, o.X)
	y1 := max(b.Y, o.Y)
	x2 := min(b.X+b.Width, o.X+o.Width)
	y2 := min(b.Y+b.Height, o.Y+o.Height)
	if x2 <= x1 || y2 <= y1 {
		return NormalizedBBox{}
	}
	return NormalizedBBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// IoU returns the intersection-over-union similarity of two boxes.
func (b NormalizedBBox) IoU(o NormalizedBBox) float64 {
	inter := b.Intersection(o).Area()
	if inter <= 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// OverlapRatio returns the fraction of b's own area covered by o.
func (b NormalizedBBox) OverlapRatio(o NormalizedBBox) float64 {
	area := b.Area()
	if area <= 0 {
		return 0
	}
	return b.Intersection(o).Area() / area
}
