package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SymlonCheung/ocr-water-heater/internal/actuator"
	"github.com/SymlonCheung/ocr-water-heater/internal/api"
	"github.com/SymlonCheung/ocr-water-heater/internal/config"
	"github.com/SymlonCheung/ocr-water-heater/internal/control"
	"github.com/SymlonCheung/ocr-water-heater/internal/db"
	"github.com/SymlonCheung/ocr-water-heater/internal/debugsink"
	"github.com/SymlonCheung/ocr-water-heater/internal/eventbus"
	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
	"github.com/SymlonCheung/ocr-water-heater/internal/kv"
	"github.com/SymlonCheung/ocr-water-heater/internal/ledger"
	"github.com/SymlonCheung/ocr-water-heater/internal/script"
	"github.com/SymlonCheung/ocr-water-heater/internal/state"
)

// Services is a container for all application services. It manages
// initialization order and dependencies.
type Services struct {
	cfg       *config.Config
	configDir string

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Store  *state.Store
	KV     *kv.Manager
	Bus    *eventbus.Bus

	// Domain
	Coordinator *fusion.Coordinator
	Commands    *actuator.Commands
	Sequencer   *control.Sequencer
	Poll        *PollService
	API         *api.Server
	Script      *script.Runtime
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, configDir string) (*Services, error) {
	s := &Services{cfg: cfg, configDir: configDir}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.Store = state.NewStore(database.DB)
	s.KV = kv.NewManager(database.DB)
	s.Bus = eventbus.New()

	s.Coordinator = fusion.NewCoordinator(fusion.Config{
		OffConfirmTicks: cfg.Fusion.OffConfirmTicks,
		SettingBridge:   cfg.Fusion.SettingBridge.Duration(),
		StandbyBridge:   cfg.Fusion.StandbyBridge.Duration(),
		BootGrace:       cfg.Fusion.BootGrace.Duration(),
	})

	if st, ok, err := s.Store.LoadState(); err != nil {
		log.Warn().Err(err).Msg("Failed to load persisted state")
	} else if ok {
		s.Coordinator.Restore(st)
		log.Info().Stringer("state", st).Msg("Restored persisted state")
	}

	gateway := actuator.NewGatewayClient(
		cfg.Actuator.GatewayURL,
		cfg.Actuator.Token,
		cfg.Actuator.Timeout.Duration(),
		cfg.Actuator.CommandDelay.Duration(),
	)
	s.Commands = actuator.NewCommands(gateway, actuator.Payloads{
		ScreenOn: cfg.Actuator.Payloads.ScreenOn,
		TempUp:   cfg.Actuator.Payloads.TempUp,
		TempDown: cfg.Actuator.Payloads.TempDown,
		Toggle:   cfg.Actuator.Payloads.Toggle,
		Mode:     cfg.Actuator.Payloads.Mode,
	})

	var sink *debugsink.Sink
	if cfg.Debug.Enabled {
		sink = debugsink.New(cfg.Debug.Dir, cfg.Debug.Scale, cfg.Debug.MaxTicks)
		log.Info().Str("dir", cfg.Debug.Dir).Msg("Debug image sink enabled")
	}

	s.Poll = NewPollService(cfg, s.Coordinator, s.Bus, sink)

	s.Sequencer = control.NewSequencer(control.Config{
		ReadSamples:        cfg.Control.ReadSamples,
		ReadDelay:          cfg.Control.ReadDelay.Duration(),
		SettleDelay:        cfg.Control.SettleDelay.Duration(),
		ValidMin:           cfg.Vision.ValidMin,
		ValidMax:           cfg.Vision.ValidMax,
		KeepAliveInterval:  cfg.Control.KeepAliveInterval.Duration(),
		TargetSyncInterval: cfg.Control.TargetSyncInterval.Duration(),
	}, s.Commands, s.Coordinator, s.Poll, busEvents{bus: s.Bus}, s.Store)

	if temp, mode, ok, err := s.Store.LoadTargets(); err != nil {
		log.Warn().Err(err).Msg("Failed to load persisted targets")
	} else if ok {
		s.Sequencer.RestoreTargets(temp, mode)
		log.Info().Int("temperature", temp).Stringer("mode", mode).Msg("Restored persisted targets")
	}

	if cfg.API.Enabled {
		s.API = api.NewServer(cfg.API.Host, cfg.API.Port, s.Poll, s.Sequencer, s.Ledger)
	}

	if cfg.Script != "" {
		s.Script = script.NewRuntime(heaterFacade{s}, s.KV)
	}

	return s, nil
}

// Start starts all services in dependency order.
func (s *Services) Start(ctx context.Context) error {
	s.registerLedgerHandlers()

	if s.Script != nil {
		if err := s.Script.LoadScript(s.cfg.Script, s.configDir); err != nil {
			return err
		}
		s.Script.Start(ctx)
		s.Bus.Subscribe(eventbus.EventTypeStateChanged, func(e eventbus.Event) {
			prev, next := statesFromEvent(e)
			s.Script.DispatchStateChanged(ctx, prev, next)
		})
	}

	go s.Poll.Run(ctx)
	go s.Sequencer.RunKeepAlive(ctx)
	go s.Sequencer.RunTargetSync(ctx)
	go s.runLedgerCleanup(ctx)
	s.KV.StartCleanup(ctx, time.Hour)

	if s.API != nil {
		go func() {
			if err := s.API.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
				log.Error().Err(err).Msg("API server error")
			}
		}()
	}

	return nil
}

// registerLedgerHandlers mirrors bus events into the persistent ledger.
func (s *Services) registerLedgerHandlers() {
	mirror := func(busType eventbus.EventType, ledgerType ledger.EventType) {
		s.Bus.Subscribe(busType, func(e eventbus.Event) {
			if err := s.Ledger.Append(ledgerType, "bus", e.Data); err != nil {
				log.Warn().Err(err).Str("event_type", string(busType)).Msg("Ledger append failed")
			}
		})
	}
	mirror(eventbus.EventTypeStateChanged, ledger.EventStateChanged)
	mirror(eventbus.EventTypeTickFailed, ledger.EventTickFailed)
	mirror(eventbus.EventTypeCommandCompleted, ledger.EventCommandCompleted)
	mirror(eventbus.EventTypeCommandFailed, ledger.EventCommandFailed)

	// Persist every confirmed state so a restart resumes from the last
	// known truth instead of off.
	s.Bus.Subscribe(eventbus.EventTypeStateChanged, func(eventbus.Event) {
		if err := s.Store.SaveState(s.Coordinator.State()); err != nil {
			log.Warn().Err(err).Msg("Failed to persist fused state")
		}
	})
}

func (s *Services) runLedgerCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Ledger.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		deleted, err := s.Ledger.DeleteOlderThan(s.cfg.Ledger.Retention.Duration())
		if err != nil {
			log.Warn().Err(err).Msg("Ledger cleanup failed")
		} else if deleted > 0 {
			log.Debug().Int64("deleted", deleted).Msg("Ledger cleanup done")
		}
	}
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Script != nil {
		s.Script.Close()
	}
	if s.KV != nil {
		s.KV.StopCleanup()
	}
	if s.Bus != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(shutdownCtx)
		cancel()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// busEvents publishes sequencer outcomes onto the event bus.
type busEvents struct {
	bus *eventbus.Bus
}

func (b busEvents) CommandCompleted(axis string, detail map[string]any) {
	b.publish(eventbus.EventTypeCommandCompleted, axis, detail)
}

func (b busEvents) CommandFailed(axis string, detail map[string]any) {
	b.publish(eventbus.EventTypeCommandFailed, axis, detail)
}

func (b busEvents) publish(t eventbus.EventType, axis string, detail map[string]any) {
	data := map[string]interface{}{"axis": axis}
	for k, v := range detail {
		data[k] = v
	}
	b.bus.Publish(eventbus.Event{Type: t, Data: data})
}

// heaterFacade adapts the services to the scripting surface.
type heaterFacade struct {
	s *Services
}

func (h heaterFacade) State() fusion.State { return h.s.Coordinator.State() }

func (h heaterFacade) Targets() (int, fusion.Mode) { return h.s.Sequencer.Targets() }

func (h heaterFacade) SetTargetTemperature(ctx context.Context, target int) error {
	return h.s.Sequencer.SetTargetTemperature(ctx, target)
}

func (h heaterFacade) SetTargetMode(ctx context.Context, target fusion.Mode) error {
	return h.s.Sequencer.SetTargetMode(ctx, target)
}

func (h heaterFacade) SetPower(ctx context.Context, on bool) error {
	return h.s.Sequencer.SetPower(ctx, on)
}

// statesFromEvent reconstructs the transition carried by a state_changed
// event for script dispatch.
func statesFromEvent(e eventbus.Event) (prev, next fusion.State) {
	if s, ok := e.Data["prev_mode"].(string); ok {
		if m, err := fusion.ParseMode(s); err == nil {
			prev.Mode = m
		}
	}
	if s, ok := e.Data["mode"].(string); ok {
		if m, err := fusion.ParseMode(s); err == nil {
			next.Mode = m
		}
	}
	if t, ok := e.Data["temperature"].(int); ok {
		next.Temperature = t
	}
	if h, ok := e.Data["has_temperature"].(bool); ok {
		next.HasTemperature = h
	}
	return prev, next
}
