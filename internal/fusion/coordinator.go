package fusion

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config contains the hysteresis windows of the coordinator. Off
// confirmation is counted in ticks since polling is roughly periodic; the
// setting bridge is wall-clock because interaction is operator-paced.
type Config struct {
	OffConfirmTicks int
	SettingBridge   time.Duration
	StandbyBridge   time.Duration
	BootGrace       time.Duration
}

// Coordinator owns the fused state and all hysteresis counters. It is the
// only mutator of State; everything else reads snapshots.
type Coordinator struct {
	cfg Config

	mu           sync.RWMutex
	state        State
	offTicks     int
	lastSetting  time.Time
	confirmedOff bool

	// Set by the command sequencer right after a power-on send; incomplete
	// readings inside the boot grace window do not revert state.
	expectOn   bool
	lastOnTime time.Time
}

// NewCoordinator creates a coordinator starting from the off state.
func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		state: State{Mode: ModeOff},
	}
}

// Restore seeds the fused state from a persisted snapshot, typically at
// startup before the poll loop runs. A restored off state counts as
// confirmed so a stray setting reflection cannot immediately flip it.
func (c *Coordinator) Restore(st State) {
	c.mu.Lock()
	c.state = st
	c.confirmedOff = st.Mode == ModeOff
	c.mu.Unlock()
}

// State returns a snapshot of the current fused state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ExpectPowerOn marks that a power-on command was just issued. The display
// takes a moment to light fully; until the boot grace expires, incomplete
// readings keep the prior state instead of feeding the off counter.
func (c *Coordinator) ExpectPowerOn(now time.Time) {
	c.mu.Lock()
	c.expectOn = true
	c.lastOnTime = now
	c.mu.Unlock()
}

// Tick folds one observation into the fused state and returns the new
// authoritative state.
func (c *Coordinator) Tick(obs Observation, now time.Time) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	inBootGrace := c.expectOn && now.Sub(c.lastOnTime) < c.cfg.BootGrace

	if obs.HasReading {
		// A setting indication on a display we have confirmed dark is a
		// reflection, not an interaction: ignore the whole reading.
		spurious := c.confirmedOff && !inBootGrace && obs.Icon == ModeSetting
		if !spurious {
			return c.confirm(obs, now)
		}
		log.Debug().Int("reading", obs.Reading).Msg("Ignoring setting reflection on confirmed-off display")
	}

	return c.absent(now, inBootGrace)
}

// confirm applies a trusted reading.
func (c *Coordinator) confirm(obs Observation, now time.Time) State {
	c.confirmedOff = false
	c.expectOn = false
	c.offTicks = 0

	mode := obs.Icon
	if mode == ModeOff {
		// Classifier contract violation; fall back to the safest mode.
		mode = ModeStandby
	}
	if mode == ModeSetting {
		c.lastSetting = now
	}

	prev := c.state
	c.state = State{Temperature: obs.Reading, HasTemperature: true, Mode: mode}
	if prev != c.state {
		log.Debug().Stringer("from", prev).Stringer("to", c.state).Msg("Fused state updated")
	}
	return c.state
}

// absent handles a tick without a usable reading.
func (c *Coordinator) absent(now time.Time, inBootGrace bool) State {
	if inBootGrace {
		return c.state
	}

	// Mid-interaction blanking is expected; bridge it instead of counting
	// toward off. The window is generous after a recent setting screen.
	bridge := c.cfg.StandbyBridge
	if c.state.Mode == ModeSetting {
		bridge = c.cfg.SettingBridge
	}
	if !c.lastSetting.IsZero() && now.Sub(c.lastSetting) < bridge {
		c.offTicks = 0
		return c.state
	}

	c.offTicks++
	if c.offTicks >= c.cfg.OffConfirmTicks && !c.confirmedOff {
		c.confirmedOff = true
		c.state = State{Mode: ModeOff}
		log.Info().Int("ticks", c.offTicks).Msg("Sustained blank display, confirming power off")
	}
	return c.state
}
