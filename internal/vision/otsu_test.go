package vision

import "testing"

func fill(g *Gray, v byte) {
	for i := range g.Pix {
		g.Pix[i] = v
	}
}

func TestOtsuThresholdBimodal(t *testing.T) {
	g := NewGray(10, 10)
	for i := range g.Pix {
		if i < 50 {
			g.Pix[i] = 50
		} else {
			g.Pix[i] = 200
		}
	}

	threshold := OtsuThreshold(g)
	if threshold < 50 || threshold >= 200 {
		t.Fatalf("threshold %d does not separate the two classes", threshold)
	}

	binary := Binarize(g, threshold)
	if got := binary.WhiteRatio(); got != 0.5 {
		t.Fatalf("expected half white after binarization, got %v", got)
	}
}

func TestOtsuThresholdEmpty(t *testing.T) {
	if got := OtsuThreshold(&Gray{}); got != 0 {
		t.Fatalf("empty plane threshold = %d, want 0", got)
	}
}

func TestNormalizePolarity(t *testing.T) {
	tests := []struct {
		name      string
		whitePix  int
		wantWhite float64
	}{
		{name: "dark_majority_inverts", whitePix: 10, wantWhite: 0.9},
		{name: "white_majority_untouched", whitePix: 90, wantWhite: 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGray(10, 10)
			for i := 0; i < tt.whitePix; i++ {
				g.Pix[i] = 255
			}

			NormalizePolarity(g)
			if got := g.WhiteRatio(); got != tt.wantWhite {
				t.Fatalf("white ratio = %v, want %v", got, tt.wantWhite)
			}

			// Second pass must change nothing.
			NormalizePolarity(g)
			if got := g.WhiteRatio(); got != tt.wantWhite {
				t.Fatalf("polarity not idempotent: white ratio = %v, want %v", got, tt.wantWhite)
			}
		})
	}
}

func TestEnhanceGammaFlatPlane(t *testing.T) {
	g := NewGray(4, 4)
	fill(g, 42)

	out := EnhanceGamma(g, 2.0)
	for i, v := range out.Pix {
		if v != 42 {
			t.Fatalf("flat plane modified at %d: %d", i, v)
		}
	}
}

func TestEnhanceGammaStretchesRange(t *testing.T) {
	g := NewGray(4, 4)
	for i := range g.Pix {
		g.Pix[i] = byte(40 + i*10)
	}

	out := EnhanceGamma(g, 2.0)
	lo, hi := out.Range()
	if lo != 0 || hi != 255 {
		t.Fatalf("range after enhance = [%d,%d], want [0,255]", lo, hi)
	}

	// Gamma 2 pushes the halfway point down to a quarter.
	halfway := EnhanceGamma(g, 2.0).Pix[len(g.Pix)/2]
	linear := EnhanceGamma(g, 1.0).Pix[len(g.Pix)/2]
	if halfway >= linear {
		t.Fatalf("midtone not attenuated: gamma=2 %d, gamma=1 %d", halfway, linear)
	}
}
