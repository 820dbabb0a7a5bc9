// Package vision decodes the heater's LED panel from camera snapshots:
// a two-digit 7-segment temperature readout plus four status icons.
// Every anomaly degrades to "no reading"; nothing in this package returns
// an error for image content.
package vision

// Rect is a rectangular region given as absolute pixel offset plus size.
type Rect struct {
	X, Y, W, H int
}

// Point is a pixel coordinate.
type Point struct {
	X, Y int
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// RelativeTo converts an absolute rectangle to coordinates relative to the
// panel rectangle, clamping the offset into the panel and shrinking the size
// to what fits. Rectangles fully outside the panel come back empty.
func (r Rect) RelativeTo(panel Rect) Rect {
	rx := clamp(r.X-panel.X, 0, panel.W)
	ry := clamp(r.Y-panel.Y, 0, panel.H)
	return Rect{
		X: rx,
		Y: ry,
		W: min(r.W, panel.W-rx),
		H: min(r.H, panel.H-ry),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
