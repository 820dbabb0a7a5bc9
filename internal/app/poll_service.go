package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SymlonCheung/ocr-water-heater/internal/camera"
	"github.com/SymlonCheung/ocr-water-heater/internal/config"
	"github.com/SymlonCheung/ocr-water-heater/internal/debugsink"
	"github.com/SymlonCheung/ocr-water-heater/internal/eventbus"
	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
	"github.com/SymlonCheung/ocr-water-heater/internal/vision"
)

// PollService owns the fetch-decode-fuse loop. It is the only component
// that advances the fusion coordinator; everything else observes.
type PollService struct {
	cfg     *config.Config
	camera  *camera.Client
	decoder *vision.SegmentDecoder
	mode    *vision.ModeClassifier
	coord   *fusion.Coordinator
	bus     *eventbus.Bus
	sink    *debugsink.Sink

	// One decode in flight at a time. Reliable reads call PollOnce from the
	// sequencer goroutine while the tick loop runs; the mutex keeps frame
	// processing serial without blocking either caller on the camera for
	// longer than one fetch.
	mu sync.Mutex
}

// NewPollService wires the vision pipeline from configuration. sink may be
// nil when the debug sink is disabled.
func NewPollService(cfg *config.Config, coord *fusion.Coordinator, bus *eventbus.Bus, sink *debugsink.Sink) *PollService {
	cam := camera.NewClient(
		cfg.Camera.SnapshotURL,
		cfg.Camera.Timeout.Duration(),
		cfg.Camera.Retries,
		cfg.Camera.RetryDelay.Duration(),
	)

	guards := make([]vision.Point, 0, len(cfg.Vision.GuardPoints))
	for _, p := range cfg.Vision.GuardPoints {
		guards = append(guards, vision.Point{X: p.X, Y: p.Y})
	}

	decoder := vision.NewSegmentDecoder(vision.SegmentConfig{
		Digits:            roiToRect(cfg.Vision.Digits),
		MinPeakBrightness: cfg.Vision.MinPeakBrightness,
		ActiveRatio:       cfg.Vision.ActiveRatio,
		ValidMin:          cfg.Vision.ValidMin,
		ValidMax:          cfg.Vision.ValidMax,
		GuardPoints:       guards,
	})

	classifier := vision.NewModeClassifier(vision.ModeConfig{
		Panel:           roiToRect(cfg.Vision.Panel),
		Digits:          roiToRect(cfg.Vision.Digits),
		Setting:         roiToRect(cfg.Vision.Setting),
		Low:             roiToRect(cfg.Vision.Low),
		Half:            roiToRect(cfg.Vision.Half),
		Full:            roiToRect(cfg.Vision.Full),
		Gamma:           cfg.Vision.Gamma,
		NoiseLimit:      cfg.Vision.NoiseLimit,
		ModeActiveRatio: cfg.Vision.ModeActiveRatio,
		OCRPresenceMin:  cfg.Vision.OCRPresenceMin,
	})

	return &PollService{
		cfg:     cfg,
		camera:  cam,
		decoder: decoder,
		mode:    classifier,
		coord:   coord,
		bus:     bus,
		sink:    sink,
	}
}

func roiToRect(r config.ROI) vision.Rect {
	return vision.Rect{X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// iconToMode lifts the classifier verdict into the fused mode space. The
// classifier never produces off; that verdict belongs to the coordinator.
func iconToMode(icon vision.Icon) fusion.Mode {
	switch icon {
	case vision.IconSetting:
		return fusion.ModeSetting
	case vision.IconLow:
		return fusion.ModeLow
	case vision.IconHalf:
		return fusion.ModeHalf
	case vision.IconFull:
		return fusion.ModeFull
	default:
		return fusion.ModeStandby
	}
}

// Run ticks the poll loop until the context is cancelled.
func (s *PollService) Run(ctx context.Context) {
	interval := s.cfg.Camera.PollInterval.Duration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Str("url", s.camera.URL()).Msg("Poll loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("Poll tick failed")
			s.bus.Publish(eventbus.Event{
				Type: eventbus.EventTypeTickFailed,
				Data: map[string]interface{}{"error": err.Error()},
			})
		}
	}
}

// PollOnce runs one fetch-decode-fuse cycle and returns the fused state. A
// fetch or decode error keeps the coordinator untouched; the prior state
// stands until evidence replaces it.
func (s *PollService) PollOnce(ctx context.Context) (fusion.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.camera.Fetch(ctx)
	if err != nil {
		return s.coord.State(), err
	}

	frame, err := vision.DecodeGray(raw)
	if err != nil {
		return s.coord.State(), err
	}

	var dbg *vision.DebugRecord
	if s.sink != nil {
		dbg = &vision.DebugRecord{}
		dbg.Add("00_frame", frame)
	}

	reading := s.decoder.Decode(frame, dbg)
	icon := s.mode.Classify(frame, dbg)

	prev := s.coord.State()
	next := s.coord.Tick(fusion.Observation{
		Reading:    reading.Value,
		HasReading: reading.OK,
		Icon:       iconToMode(icon),
	}, time.Now())

	if s.sink != nil {
		s.sink.Write(dbg, time.Now())
	}

	if next != prev {
		log.Info().Stringer("from", prev).Stringer("to", next).Msg("State changed")
		s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeStateChanged,
			Data: map[string]interface{}{
				"prev_mode":       prev.Mode.String(),
				"mode":            next.Mode.String(),
				"temperature":     next.Temperature,
				"has_temperature": next.HasTemperature,
			},
		})
	}

	return next, nil
}

// State reports the current fused state without triggering a decode.
func (s *PollService) State() fusion.State {
	return s.coord.State()
}
