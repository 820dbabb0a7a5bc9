// Package fusion turns the noisy per-tick classifier stream into one
// stable appliance state. The display blanks unpredictably for sub-second
// intervals and reflections occasionally mimic the setting indicator; only
// sustained absence of readings is trusted as a true power-off.
package fusion

import "fmt"

// Mode is the authoritative appliance mode.
type Mode int

const (
	ModeOff Mode = iota
	ModeStandby
	ModeSetting
	ModeLow
	ModeHalf
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeStandby:
		return "standby"
	case ModeSetting:
		return "setting"
	case ModeLow:
		return "low"
	case ModeHalf:
		return "half"
	case ModeFull:
		return "full"
	default:
		return "unknown"
	}
}

// ParseMode maps a mode name back to its value.
func ParseMode(s string) (Mode, error) {
	for m := ModeOff; m <= ModeFull; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return ModeOff, fmt.Errorf("unknown mode %q", s)
}

// IsPower reports whether the mode is one of the three heating power
// levels that the mode button cycles through.
func (m Mode) IsPower() bool {
	return m == ModeLow || m == ModeHalf || m == ModeFull
}

// State is the single externally observable truth about the appliance.
type State struct {
	Temperature    int
	HasTemperature bool
	Mode           Mode
}

func (s State) String() string {
	if !s.HasTemperature {
		return s.Mode.String()
	}
	return fmt.Sprintf("%d/%s", s.Temperature, s.Mode)
}

// Observation is one tick's decode result. Icon is the classifier verdict
// and is never ModeOff; a tick without a valid digit reading carries
// HasReading == false regardless of what the classifier saw.
type Observation struct {
	Reading    int
	HasReading bool
	Icon       Mode
}
