// Package control performs closed-loop adjustment of the heater over a
// blind actuation channel: issue keypresses, re-read the display, correct.
// At most one adjustment task is live per axis (temperature, mode); a new
// request cancels its predecessor before starting, which is what keeps
// same-axis mutation serial without locking the whole sequence.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/SymlonCheung/ocr-water-heater/internal/actuator"
	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
)

// Config contains closed-loop timing and range settings.
type Config struct {
	ReadSamples int
	ReadDelay   time.Duration
	SettleDelay time.Duration
	ValidMin    int
	ValidMax    int

	KeepAliveInterval  time.Duration
	TargetSyncInterval time.Duration
}

// Events receives sequencer outcomes. All methods may be called from task
// goroutines and must not block.
type Events interface {
	CommandCompleted(axis string, detail map[string]any)
	CommandFailed(axis string, detail map[string]any)
}

// TargetStore persists accepted targets across restarts. May be nil.
type TargetStore interface {
	SaveTargets(temp int, mode fusion.Mode) error
}

// task is one in-flight adjustment on an axis. The generation captured at
// start decides at cleanup whether the task is still current: a superseded
// task must not touch the axis target it no longer owns.
type task struct {
	id     uuid.UUID
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Sequencer owns the externally visible targets and the per-axis task
// references.
type Sequencer struct {
	cfg      Config
	commands *actuator.Commands
	coord    *fusion.Coordinator
	poller   Poller
	events   Events
	store    TargetStore

	mu         sync.Mutex
	tempGen    uint64
	modeGen    uint64
	tempTask   *task
	modeTask   *task
	targetTemp int
	targetMode fusion.Mode
}

// NewSequencer creates a sequencer. events and store may be nil.
func NewSequencer(cfg Config, commands *actuator.Commands, coord *fusion.Coordinator, poller Poller, events Events, store TargetStore) *Sequencer {
	return &Sequencer{
		cfg:        cfg,
		commands:   commands,
		coord:      coord,
		poller:     poller,
		events:     events,
		store:      store,
		targetTemp: cfg.ValidMin,
		targetMode: fusion.ModeLow,
	}
}

// RestoreTargets seeds the externally visible targets, typically from the
// persisted state store at startup.
func (s *Sequencer) RestoreTargets(temp int, mode fusion.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if temp >= s.cfg.ValidMin && temp <= s.cfg.ValidMax {
		s.targetTemp = temp
	}
	if mode.IsPower() {
		s.targetMode = mode
	}
}

// Targets returns the externally visible target temperature and mode.
func (s *Sequencer) Targets() (int, fusion.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetTemp, s.targetMode
}

// Busy reports whether any adjustment task is in flight.
func (s *Sequencer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempTask != nil || s.modeTask != nil
}

// SetTargetTemperature accepts a new temperature target. The visible target
// updates immediately; the physical steps run in a background task that the
// next request on this axis will cancel.
func (s *Sequencer) SetTargetTemperature(ctx context.Context, target int) error {
	if target < s.cfg.ValidMin || target > s.cfg.ValidMax {
		return fmt.Errorf("target %d outside valid range [%d,%d]", target, s.cfg.ValidMin, s.cfg.ValidMax)
	}

	s.mu.Lock()
	prevTarget := s.targetTemp
	prevTask := s.tempTask
	s.tempGen++
	t := s.newTask(ctx, s.tempGen)
	s.tempTask = t
	s.targetTemp = target // optimistic: corrected only on outright failure
	s.mu.Unlock()

	if prevTask != nil {
		prevTask.cancel()
	}
	s.persistTargets()

	log.Info().Str("task", t.id.String()).Int("target", target).Int("prev", prevTarget).Msg("Temperature adjustment accepted")
	go s.runTemperature(t, prevTask, target, prevTarget)
	return nil
}

// runTemperature drives the heater's setting menu to the target value.
func (s *Sequencer) runTemperature(t *task, predecessor *task, target, prevTarget int) {
	defer close(t.done)
	ctx := t.ctx

	// Cancel-before-start: the predecessor must acknowledge cancellation
	// before this task touches the device.
	if predecessor != nil {
		<-predecessor.done
	}

	err := s.stepTemperature(ctx, target, prevTarget)
	s.finishTemperature(t, err, prevTarget, target)
}

func (s *Sequencer) stepTemperature(ctx context.Context, target, prevTarget int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Entering the setting menu costs one throwaway keypress; skip it when
	// the panel is already showing the setting screen.
	if s.coord.State().Mode != fusion.ModeSetting {
		if err := s.commands.TempStep(ctx, target >= prevTarget); err != nil {
			return fmt.Errorf("activation step: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.SettleDelay):
		}
	}

	actual, err := s.ReliableRead(ctx, prevTarget)
	if err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	delta := target - actual
	log.Info().Int("actual", actual).Int("target", target).Int("delta", delta).Msg("Stepping temperature")
	for i := 0; i < abs(delta); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.commands.TempStep(ctx, delta > 0); err != nil {
			return fmt.Errorf("step %d/%d: %w", i+1, abs(delta), err)
		}
	}
	return nil
}

// finishTemperature applies the cancellation contract: a cleanly cancelled
// task rolls nothing back; a task that failed on its own rolls the visible
// target back to the prior known-good value, but only if it still owns the
// axis.
func (s *Sequencer) finishTemperature(t *task, err error, prevTarget, target int) {
	s.mu.Lock()
	current := s.tempGen == t.gen
	if current {
		s.tempTask = nil
	}
	superseded := !current
	if err != nil && !superseded && !isCancel(err) {
		s.targetTemp = prevTarget
	}
	s.mu.Unlock()

	switch {
	case err == nil:
		log.Info().Str("task", t.id.String()).Int("target", target).Msg("Temperature adjustment complete")
		s.persistTargets()
		s.emitCompleted("temperature", map[string]any{"task": t.id.String(), "target": target})
	case superseded || isCancel(err):
		log.Debug().Str("task", t.id.String()).Msg("Temperature adjustment superseded")
	default:
		log.Error().Err(err).Str("task", t.id.String()).Int("reverted_to", prevTarget).Msg("Temperature adjustment failed")
		s.persistTargets()
		s.emitFailed("temperature", map[string]any{"task": t.id.String(), "target": target, "error": err.Error()})
	}
}

// SetTargetMode accepts a new power mode target (low, half, full).
func (s *Sequencer) SetTargetMode(ctx context.Context, target fusion.Mode) error {
	if !target.IsPower() {
		return fmt.Errorf("mode %s is not a selectable power mode", target)
	}

	s.mu.Lock()
	prevMode := s.targetMode
	prevTask := s.modeTask
	s.modeGen++
	t := s.newTask(ctx, s.modeGen)
	s.modeTask = t
	s.targetMode = target
	s.mu.Unlock()

	if prevTask != nil {
		prevTask.cancel()
	}
	s.persistTargets()

	log.Info().Str("task", t.id.String()).Stringer("target", target).Msg("Mode adjustment accepted")
	go s.runMode(t, prevTask, target, prevMode)
	return nil
}

func (s *Sequencer) runMode(t *task, predecessor *task, target, prevMode fusion.Mode) {
	defer close(t.done)
	ctx := t.ctx

	if predecessor != nil {
		<-predecessor.done
	}

	err := s.stepMode(ctx, target, prevMode)

	s.mu.Lock()
	current := s.modeGen == t.gen
	if current {
		s.modeTask = nil
	}
	superseded := !current
	if err != nil && !superseded && !isCancel(err) {
		s.targetMode = prevMode
	}
	s.mu.Unlock()

	switch {
	case err == nil:
		log.Info().Str("task", t.id.String()).Stringer("target", target).Msg("Mode adjustment complete")
		s.persistTargets()
		s.emitCompleted("mode", map[string]any{"task": t.id.String(), "target": target.String()})
	case superseded || isCancel(err):
		log.Debug().Str("task", t.id.String()).Msg("Mode adjustment superseded")
	default:
		log.Error().Err(err).Str("task", t.id.String()).Msg("Mode adjustment failed")
		s.persistTargets()
		s.emitFailed("mode", map[string]any{"task": t.id.String(), "target": target.String(), "error": err.Error()})
	}
}

func (s *Sequencer) stepMode(ctx context.Context, target, prevMode fusion.Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	believed := s.coord.State().Mode
	if !believed.IsPower() {
		believed = prevMode
	}

	steps := modeRotation(believed, target)
	log.Info().Stringer("from", believed).Stringer("to", target).Int("presses", steps).Msg("Rotating power mode")
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.commands.AdvanceMode(ctx); err != nil {
			return fmt.Errorf("mode press %d/%d: %w", i+1, steps, err)
		}
	}
	return nil
}

// modeRotation returns the minimal forward press count over the cyclic
// order LOW -> HALF -> FULL -> LOW.
func modeRotation(from, to fusion.Mode) int {
	idx := func(m fusion.Mode) int {
		switch m {
		case fusion.ModeHalf:
			return 1
		case fusion.ModeFull:
			return 2
		default:
			return 0
		}
	}
	return ((idx(to) - idx(from)) + 3) % 3
}

// SetPower turns the heater on or off with the toggle key, guarded by the
// current fused state so the blind toggle cannot invert the intent.
func (s *Sequencer) SetPower(ctx context.Context, on bool) error {
	state := s.coord.State()
	if on == (state.Mode != fusion.ModeOff) {
		log.Debug().Bool("on", on).Stringer("state", state).Msg("Power already in requested state")
		return nil
	}
	if err := s.commands.TogglePower(ctx); err != nil {
		s.emitFailed("power", map[string]any{"on": on, "error": err.Error()})
		return err
	}
	if on {
		// The display needs a moment to boot; tell the coordinator not to
		// trust incomplete readings meanwhile.
		s.coord.ExpectPowerOn(time.Now())
	}
	s.emitCompleted("power", map[string]any{"on": on})
	return nil
}

func (s *Sequencer) newTask(parent context.Context, gen uint64) *task {
	// Detach from the request context: the task outlives the HTTP request
	// that accepted it and is cancelled only by its successor or shutdown.
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &task{
		id:     uuid.New(),
		gen:    gen,
		cancel: cancel,
		done:   make(chan struct{}),
		ctx:    ctx,
	}
}

func (s *Sequencer) persistTargets() {
	if s.store == nil {
		return
	}
	temp, mode := s.Targets()
	if err := s.store.SaveTargets(temp, mode); err != nil {
		log.Warn().Err(err).Msg("Failed to persist targets")
	}
}

func (s *Sequencer) emitCompleted(axis string, detail map[string]any) {
	if s.events != nil {
		s.events.CommandCompleted(axis, detail)
	}
}

func (s *Sequencer) emitFailed(axis string, detail map[string]any) {
	if s.events != nil {
		s.events.CommandFailed(axis, detail)
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
