package vision

import "testing"

// digitPattern inverts the glyph table for rendering.
func digitPattern(t *testing.T, digit int) SegmentPattern {
	t.Helper()
	for p, d := range segmentTable {
		if d == digit {
			return p
		}
	}
	t.Fatalf("no glyph for digit %d", digit)
	return SegmentPattern{}
}

// renderValue draws a two-digit readout onto a dark frame: white 2x2
// blocks at every lit stroke probe.
func renderValue(t *testing.T, value int) *Gray {
	t.Helper()
	frame := NewGray(40, 28)
	digits := [2]int{value / 10, value % 10}
	for pos, d := range digits {
		pattern := digitPattern(t, d)
		for seg, lit := range pattern {
			if !lit {
				continue
			}
			p := segmentOffsets[pos][seg]
			for dy := 0; dy < segmentH; dy++ {
				for dx := 0; dx < segmentW; dx++ {
					frame.Set(p.X+dx, p.Y+dy, 255)
				}
			}
		}
	}
	return frame
}

func testDecoder(guards []Point) *SegmentDecoder {
	return NewSegmentDecoder(SegmentConfig{
		Digits:            Rect{X: 0, Y: 0, W: 40, H: 28},
		MinPeakBrightness: 60,
		ActiveRatio:       0.5,
		ValidMin:          10,
		ValidMax:          80,
		GuardPoints:       guards,
	})
}

func TestSegmentDecoderReadsValues(t *testing.T) {
	d := testDecoder(nil)

	// Every glyph 0..9 appears in at least one position across these.
	for _, value := range []int{10, 29, 35, 45, 67, 72, 80} {
		frame := renderValue(t, value)
		got := d.Decode(frame, nil)
		if !got.OK || got.Value != value {
			t.Errorf("decode(%d) = %v, want %d", value, got, value)
		}
	}
}

func TestSegmentDecoderRejects(t *testing.T) {
	d := testDecoder(nil)

	tests := []struct {
		name  string
		frame *Gray
	}{
		{name: "dark_frame", frame: NewGray(40, 28)},
		{name: "below_valid_range", frame: renderValue(t, 9)},
		{name: "above_valid_range", frame: renderValue(t, 81)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Decode(tt.frame, nil); got.OK {
				t.Fatalf("decode = %v, want no reading", got)
			}
		})
	}
}

func TestSegmentDecoderUnknownGlyph(t *testing.T) {
	d := testDecoder(nil)

	// "15" with the tens digit's segment g also lit: b+c+g is not a glyph
	// the table knows.
	frame := renderValue(t, 15)
	p := segmentOffsets[0][6]
	for dy := 0; dy < segmentH; dy++ {
		for dx := 0; dx < segmentW; dx++ {
			frame.Set(p.X+dx, p.Y+dy, 255)
		}
	}

	if got := d.Decode(frame, nil); got.OK {
		t.Fatalf("decode of unknown glyph = %v, want no reading", got)
	}
}

func TestSegmentDecoderGuardPoints(t *testing.T) {
	guard := Point{X: 0, Y: 0}
	d := testDecoder([]Point{guard})

	// Clean frame passes despite the guard.
	clean := renderValue(t, 45)
	if got := d.Decode(clean, nil); !got.OK || got.Value != 45 {
		t.Fatalf("clean frame decode = %v, want 45", got)
	}

	// Light the guard window: the frame must be rejected wholesale even
	// though the digits are intact.
	dirty := renderValue(t, 45)
	for dy := 0; dy < segmentH; dy++ {
		for dx := 0; dx < segmentW; dx++ {
			dirty.Set(guard.X+dx, guard.Y+dy, 255)
		}
	}
	if got := d.Decode(dirty, nil); got.OK {
		t.Fatalf("corrupted frame decode = %v, want no reading", got)
	}
}

func TestSegmentDecoderDebugRecord(t *testing.T) {
	d := testDecoder(nil)
	dbg := &DebugRecord{}

	d.Decode(renderValue(t, 45), dbg)
	if len(dbg.Images) < 2 {
		t.Fatalf("expected crop and binary planes in debug record, got %d images", len(dbg.Images))
	}
}

func TestSegmentPatternDigit(t *testing.T) {
	if got := (SegmentPattern{}).Digit(); got != DigitBlank {
		t.Fatalf("blank pattern = %d, want %d", got, DigitBlank)
	}
	if got := (SegmentPattern{false, false, false, false, false, false, true}).Digit(); got != DigitUnknown {
		t.Fatalf("bogus pattern = %d, want %d", got, DigitUnknown)
	}
	if got := (SegmentPattern{true, true, true, true, true, true, true}).Digit(); got != 8 {
		t.Fatalf("all-lit pattern = %d, want 8", got)
	}
}
