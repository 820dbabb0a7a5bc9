package vision

import "fmt"

// Icon is the classifier verdict for one frame. The classifier can only see
// what is lit; "off" is not an icon and is inferred downstream from
// sustained absence of readings.
type Icon int

const (
	IconStandby Icon = iota
	IconSetting
	IconLow
	IconHalf
	IconFull
)

func (i Icon) String() string {
	switch i {
	case IconStandby:
		return "standby"
	case IconSetting:
		return "setting"
	case IconLow:
		return "low"
	case IconHalf:
		return "half"
	case IconFull:
		return "full"
	default:
		return "unknown"
	}
}

// ModeConfig parameterizes the icon classifier. Rectangles are absolute
// image coordinates; the classifier converts them to panel-relative itself.
type ModeConfig struct {
	Panel   Rect
	Digits  Rect
	Setting Rect
	Low     Rect
	Half    Rect
	Full    Rect

	Gamma           float64
	NoiseLimit      int     // post-enhance brightness floor
	ModeActiveRatio float64 // lit ratio for a positive icon
	OCRPresenceMin  float64 // digit-area lit ratio gate
}

// ModeClassifier scores the four status icons on the control panel.
type ModeClassifier struct {
	cfg ModeConfig
}

// NewModeClassifier creates a classifier for the given geometry.
func NewModeClassifier(cfg ModeConfig) *ModeClassifier {
	return &ModeClassifier{cfg: cfg}
}

// Classify runs the icon pipeline on a grayscale frame. Ambiguity and
// darkness both resolve to IconStandby.
func (c *ModeClassifier) Classify(frame *Gray, dbg *DebugRecord) Icon {
	panel := frame.Crop(c.cfg.Panel)
	if panel.Empty() {
		return IconStandby
	}
	dbg.Add("03_panel_gray", panel)

	enhanced := EnhanceGamma(panel, c.cfg.Gamma)
	dbg.Add(fmt.Sprintf("04_panel_gamma_%.1f", c.cfg.Gamma), enhanced)

	// Global gate: a fully dark panel is standby or off, nothing to score.
	if int(enhanced.Max()) < c.cfg.NoiseLimit {
		return IconStandby
	}

	// Reflections light icons without lighting digits. Requiring digit
	// presence first suppresses those false positives wholesale.
	ocrRatio := c.litRatio(enhanced, c.cfg.Digits.RelativeTo(c.cfg.Panel), "ocr", dbg)
	if ocrRatio < c.cfg.OCRPresenceMin {
		return IconStandby
	}

	// The setting indicator bleeds into the power icons mid-transition, so
	// it must win before they are scored.
	if c.litRatio(enhanced, c.cfg.Setting.RelativeTo(c.cfg.Panel), "setting", dbg) > c.cfg.ModeActiveRatio {
		return IconSetting
	}

	// The three power icons are mutually exclusive on the hardware; take
	// the arg-max rather than the first above threshold.
	scores := [3]float64{
		c.litRatio(enhanced, c.cfg.Low.RelativeTo(c.cfg.Panel), "low", dbg),
		c.litRatio(enhanced, c.cfg.Half.RelativeTo(c.cfg.Panel), "half", dbg),
		c.litRatio(enhanced, c.cfg.Full.RelativeTo(c.cfg.Panel), "full", dbg),
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	if scores[best] > c.cfg.ModeActiveRatio {
		return [3]Icon{IconLow, IconHalf, IconFull}[best]
	}
	return IconStandby
}

// litRatio Otsu-binarizes the sub-rectangle locally and returns the lit
// pixel fraction. Regions below the noise floor or outside the panel
// score 0.
func (c *ModeClassifier) litRatio(panel *Gray, rel Rect, name string, dbg *DebugRecord) float64 {
	if rel.Empty() {
		return 0
	}
	local := panel.Crop(rel)
	if local.Empty() {
		return 0
	}
	if int(local.Max()) < c.cfg.NoiseLimit {
		return 0
	}
	threshold := OtsuThreshold(local)
	binary := Binarize(local, threshold)
	dbg.Add(fmt.Sprintf("05_%s_bin_%d", name, threshold), binary)
	return binary.WhiteRatio()
}
