package vision

import (
	"bytes"
	"fmt"
	"image"

	// Snapshot sources deliver JPEG, some cameras PNG.
	_ "image/jpeg"
	_ "image/png"
)

// Gray is an 8-bit grayscale plane. The zero value is an empty image.
type Gray struct {
	Pix  []byte
	W, H int
}

// NewGray allocates a zeroed plane. Non-positive dimensions yield an
// empty image.
func NewGray(w, h int) *Gray {
	if w <= 0 || h <= 0 {
		return &Gray{}
	}
	return &Gray{Pix: make([]byte, w*h), W: w, H: h}
}

// DecodeGray decodes raw snapshot bytes into a grayscale plane using the
// ITU-R BT.601 luma weights.
func DecodeGray(data []byte) (*Gray, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	g := NewGray(b.Dx(), b.Dy())
	idx := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, gr, bl, _ := img.At(x, y).RGBA()
			// Integer approx: (77R + 150G + 29B) >> 8 on 8-bit channels
			g.Pix[idx] = byte((77*(r>>8) + 150*(gr>>8) + 29*(bl>>8)) >> 8)
			idx++
		}
	}
	return g, nil
}

// Empty reports whether the plane has no pixels.
func (g *Gray) Empty() bool {
	return g == nil || g.W <= 0 || g.H <= 0
}

// At returns the pixel value at (x, y). Out-of-bounds reads return 0.
func (g *Gray) At(x, y int) byte {
	if g.Empty() || x < 0 || y < 0 || x >= g.W || y >= g.H {
		return 0
	}
	return g.Pix[y*g.W+x]
}

// Set writes the pixel value at (x, y), ignoring out-of-bounds writes.
func (g *Gray) Set(x, y int, v byte) {
	if g.Empty() || x < 0 || y < 0 || x >= g.W || y >= g.H {
		return
	}
	g.Pix[y*g.W+x] = v
}

// Crop copies the rectangle out of the plane, clamped to bounds. A
// rectangle that does not intersect the plane yields an empty image.
func (g *Gray) Crop(r Rect) *Gray {
	if g.Empty() || r.Empty() {
		return &Gray{}
	}
	x0 := clamp(r.X, 0, g.W)
	y0 := clamp(r.Y, 0, g.H)
	x1 := clamp(r.X+r.W, 0, g.W)
	y1 := clamp(r.Y+r.H, 0, g.H)
	if x1 <= x0 || y1 <= y0 {
		return &Gray{}
	}
	out := NewGray(x1-x0, y1-y0)
	for y := y0; y < y1; y++ {
		copy(out.Pix[(y-y0)*out.W:(y-y0)*out.W+out.W], g.Pix[y*g.W+x0:y*g.W+x1])
	}
	return out
}

// Clone returns a deep copy of the plane.
func (g *Gray) Clone() *Gray {
	if g.Empty() {
		return &Gray{}
	}
	out := NewGray(g.W, g.H)
	copy(out.Pix, g.Pix)
	return out
}

// Max returns the peak pixel value, 0 for an empty plane.
func (g *Gray) Max() byte {
	if g.Empty() {
		return 0
	}
	var m byte
	for _, v := range g.Pix {
		if v > m {
			m = v
		}
	}
	return m
}

// Range returns the minimum and maximum pixel values.
func (g *Gray) Range() (byte, byte) {
	if g.Empty() {
		return 0, 0
	}
	lo, hi := g.Pix[0], g.Pix[0]
	for _, v := range g.Pix[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// WhiteRatio returns the fraction of pixels at full white. Only meaningful
// on binarized planes.
func (g *Gray) WhiteRatio() float64 {
	if g.Empty() {
		return 0
	}
	white := 0
	for _, v := range g.Pix {
		if v == 255 {
			white++
		}
	}
	return float64(white) / float64(len(g.Pix))
}

// ToImage converts the plane to a stdlib *image.Gray for encoding.
func (g *Gray) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.W, g.H))
	if !g.Empty() {
		for y := 0; y < g.H; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+g.W], g.Pix[y*g.W:y*g.W+g.W])
		}
	}
	return img
}
