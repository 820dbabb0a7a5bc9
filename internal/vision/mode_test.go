package vision

import "testing"

// Test geometry: panel fills the frame, digits on the left, the four icons
// in a row along the top right.
var (
	tPanel   = Rect{X: 0, Y: 0, W: 60, H: 40}
	tDigits  = Rect{X: 0, Y: 20, W: 20, H: 20}
	tSetting = Rect{X: 20, Y: 0, W: 10, H: 10}
	tLow     = Rect{X: 30, Y: 0, W: 10, H: 10}
	tHalf    = Rect{X: 40, Y: 0, W: 10, H: 10}
	tFull    = Rect{X: 50, Y: 0, W: 10, H: 10}
)

func testClassifier() *ModeClassifier {
	return NewModeClassifier(ModeConfig{
		Panel:           tPanel,
		Digits:          tDigits,
		Setting:         tSetting,
		Low:             tLow,
		Half:            tHalf,
		Full:            tFull,
		Gamma:           2.0,
		NoiseLimit:      20,
		ModeActiveRatio: 0.2,
		OCRPresenceMin:  0.1,
	})
}

// lightRegion fills a fraction of the region's rows with bright pixels.
func lightRegion(frame *Gray, r Rect, fraction float64) {
	rows := int(float64(r.H) * fraction)
	for y := r.Y; y < r.Y+rows; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			frame.Set(x, y, 230)
		}
	}
}

func TestModeClassifier(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Gray)
		want  Icon
	}{
		{
			name:  "dark_panel/standby",
			setup: func(*Gray) {},
			want:  IconStandby,
		},
		{
			name: "icon_without_digits/standby",
			// A lit icon with no digit presence is a reflection.
			setup: func(f *Gray) {
				lightRegion(f, tFull, 0.8)
			},
			want: IconStandby,
		},
		{
			name: "digits_and_low/low",
			setup: func(f *Gray) {
				lightRegion(f, tDigits, 0.3)
				lightRegion(f, tLow, 0.5)
			},
			want: IconLow,
		},
		{
			name: "setting_wins_over_power_icons",
			setup: func(f *Gray) {
				lightRegion(f, tDigits, 0.3)
				lightRegion(f, tSetting, 0.5)
				lightRegion(f, tFull, 0.9)
			},
			want: IconSetting,
		},
		{
			name: "argmax_among_power_icons",
			setup: func(f *Gray) {
				lightRegion(f, tDigits, 0.3)
				lightRegion(f, tLow, 0.3)
				lightRegion(f, tFull, 0.9)
			},
			want: IconFull,
		},
		{
			name: "digits_only/standby",
			setup: func(f *Gray) {
				lightRegion(f, tDigits, 0.3)
			},
			want: IconStandby,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := NewGray(tPanel.W, tPanel.H)
			tt.setup(frame)
			if got := testClassifier().Classify(frame, nil); got != tt.want {
				t.Fatalf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}
