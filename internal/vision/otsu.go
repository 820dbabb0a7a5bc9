package vision

import "math"

// OtsuThreshold computes the binarization cut-point maximizing between-class
// variance over the plane's 256-bin histogram. Returns 0 for an empty plane.
func OtsuThreshold(g *Gray) int {
	if g.Empty() {
		return 0
	}

	var hist [256]int
	for _, v := range g.Pix {
		hist[v]++
	}
	total := len(g.Pix)

	var sumTotal int64
	for i := 0; i < 256; i++ {
		sumTotal += int64(i) * int64(hist[i])
	}

	var (
		bestVariance  float64
		threshold     int
		weightBg      int64
		sumForeground int64
	)
	for i := 0; i < 256; i++ {
		weightBg += int64(hist[i])
		if weightBg == 0 {
			continue
		}
		weightFg := int64(total) - weightBg
		if weightFg == 0 {
			break
		}
		sumForeground += int64(i) * int64(hist[i])

		meanBg := float64(sumForeground) / float64(weightBg)
		meanFg := float64(sumTotal-sumForeground) / float64(weightFg)
		diff := meanBg - meanFg
		variance := float64(weightBg) * float64(weightFg) * diff * diff

		if variance > bestVariance {
			bestVariance = variance
			threshold = i
		}
	}
	return threshold
}

// Binarize maps pixels above the threshold to 255 and the rest to 0,
// returning a new plane.
func Binarize(g *Gray, threshold int) *Gray {
	if g.Empty() {
		return &Gray{}
	}
	out := NewGray(g.W, g.H)
	for i, v := range g.Pix {
		if int(v) > threshold {
			out.Pix[i] = 255
		}
	}
	return out
}

// NormalizePolarity inverts a binary plane in place when white pixels are
// the minority, guaranteeing a white background with dark strokes.
// Idempotent: once white is the majority a second pass changes nothing.
func NormalizePolarity(g *Gray) *Gray {
	if g.Empty() {
		return g
	}
	if g.WhiteRatio() < 0.5 {
		for i, v := range g.Pix {
			g.Pix[i] = 255 - v
		}
	}
	return g
}

// EnhanceGamma stretches the plane to the full [0,255] range and applies a
// power curve, returning a new plane. Planes with dynamic range below 5 are
// returned as copies untouched; there is nothing to stretch in near-flat
// noise and the normalization would only amplify it.
func EnhanceGamma(g *Gray, gamma float64) *Gray {
	if g.Empty() {
		return &Gray{}
	}
	lo, hi := g.Range()
	if int(hi)-int(lo) < 5 {
		return g.Clone()
	}

	// 256-entry LUT; the curve depends only on the input value.
	var lut [256]byte
	span := float64(hi) - float64(lo)
	for i := int(lo); i <= int(hi); i++ {
		norm := (float64(i) - float64(lo)) / span
		lut[i] = byte(clampF(math.Pow(norm, gamma)*255.0, 0, 255))
	}

	out := NewGray(g.W, g.H)
	for i, v := range g.Pix {
		out.Pix[i] = lut[v]
	}
	return out
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
