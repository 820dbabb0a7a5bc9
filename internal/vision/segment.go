package vision

import "fmt"

// SegmentPattern is the 7-boolean stroke vector of a 7-segment glyph,
// in segment order a..g.
type SegmentPattern [7]bool

// Sentinel digits returned by SegmentPattern.Digit.
const (
	DigitBlank   = -1 // no strokes lit at all
	DigitUnknown = -2 // lit combination not in the table
)

// segmentTable maps stroke vectors to digits. Only the ten canonical glyphs
// and the fully dark glyph are listed; everything else is unknown.
var segmentTable = map[SegmentPattern]int{
	{true, true, true, true, true, true, false}:    0,
	{false, true, true, false, false, false, false}: 1,
	{true, true, false, true, true, false, true}:   2,
	{true, true, true, true, false, false, true}:   3,
	{false, true, true, false, false, true, true}:  4,
	{true, false, true, true, false, true, true}:   5,
	{true, false, true, true, true, true, true}:    6,
	{true, true, true, false, false, false, false}: 7,
	{true, true, true, true, true, true, true}:     8,
	{true, true, true, true, false, true, true}:    9,
	{}: DigitBlank,
}

// Digit maps the pattern through the fixed lookup table.
func (p SegmentPattern) Digit() int {
	if d, ok := segmentTable[p]; ok {
		return d
	}
	return DigitUnknown
}

// Stroke sample window size. The panel digits are small enough that a 2x2
// probe per stroke is both sufficient and robust against skew.
const (
	segmentW = 2
	segmentH = 2
)

// segmentOffsets are the stroke probe origins inside the digit crop,
// calibrated against the reference installation. Index 0 is the tens digit,
// index 1 the ones digit; each row is segment order a..g.
var segmentOffsets = [2][7]Point{
	{{11, 5}, {15, 8}, {13, 16}, {8, 20}, {3, 16}, {5, 8}, {9, 12}},
	{{27, 5}, {31, 8}, {29, 15}, {24, 19}, {20, 15}, {21, 8}, {25, 11}},
}

// Reading is a decoded two-digit value. OK is false for every anomaly:
// dark panel, corrupted frame, unmapped glyph, out-of-range value.
type Reading struct {
	Value int
	OK    bool
}

// NoReading is the universal degraded result.
var NoReading = Reading{}

func (r Reading) String() string {
	if !r.OK {
		return "none"
	}
	return fmt.Sprintf("%d", r.Value)
}

// SegmentConfig parameterizes the digit decoder. All values come from the
// versioned configuration record.
type SegmentConfig struct {
	Digits            Rect    // digit area, absolute image coordinates
	MinPeakBrightness int     // reject darker crops outright
	ActiveRatio       float64 // dark-pixel fraction for a lit stroke
	ValidMin          int
	ValidMax          int
	GuardPoints       []Point // background-only probes, crop-relative
}

// SegmentDecoder extracts the two-digit temperature readout from a frame.
type SegmentDecoder struct {
	cfg SegmentConfig
}

// NewSegmentDecoder creates a decoder for the given geometry.
func NewSegmentDecoder(cfg SegmentConfig) *SegmentDecoder {
	return &SegmentDecoder{cfg: cfg}
}

// Decode runs the full digit pipeline on a grayscale frame. It never fails;
// every anomaly yields NoReading. The optional debug record receives the
// crop and the binarized plane.
func (d *SegmentDecoder) Decode(frame *Gray, dbg *DebugRecord) Reading {
	crop := frame.Crop(d.cfg.Digits)
	if crop.Empty() {
		return NoReading
	}
	dbg.Add("01_digits_gray", crop)

	// Brightness gate: a dark crop is a blank or unlit display.
	if int(crop.Max()) < d.cfg.MinPeakBrightness {
		return NoReading
	}

	threshold := OtsuThreshold(crop)
	binary := NormalizePolarity(Binarize(crop, threshold))
	dbg.Add(fmt.Sprintf("02_digits_bin_%d", threshold), binary)

	// Guard points sit on known background; a dark probe there means the
	// whole frame is corrupted (motion blur, obstruction, re-exposure).
	for _, p := range d.cfg.GuardPoints {
		if d.strokeActive(binary, p) {
			return NoReading
		}
	}

	value := 0
	for pos := 0; pos < 2; pos++ {
		var pattern SegmentPattern
		for seg := 0; seg < 7; seg++ {
			pattern[seg] = d.strokeActive(binary, segmentOffsets[pos][seg])
		}
		digit := pattern.Digit()
		if digit < 0 {
			return NoReading
		}
		value = value*10 + digit
	}

	if value < d.cfg.ValidMin || value > d.cfg.ValidMax {
		return NoReading
	}
	return Reading{Value: value, OK: true}
}

// strokeActive samples the probe window at p on a normalized binary plane
// and reports whether enough dark pixels are present. Windows falling
// outside the crop count as inactive.
func (d *SegmentDecoder) strokeActive(binary *Gray, p Point) bool {
	if p.X < 0 || p.Y < 0 || p.X+segmentW > binary.W || p.Y+segmentH > binary.H {
		return false
	}
	dark := 0
	for y := p.Y; y < p.Y+segmentH; y++ {
		for x := p.X; x < p.X+segmentW; x++ {
			if binary.At(x, y) != 255 {
				dark++
			}
		}
	}
	return float64(dark)/float64(segmentW*segmentH) >= d.cfg.ActiveRatio
}
