package control

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
)

// RunKeepAlive periodically wakes the display so the panel never sleeps and
// every poll tick has something to decode. Returns when ctx is cancelled.
func (s *Sequencer) RunKeepAlive(ctx context.Context) {
	if s.cfg.KeepAliveInterval <= 0 {
		log.Debug().Msg("Screen keep-alive disabled")
		return
	}
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()
	log.Info().Dur("interval", s.cfg.KeepAliveInterval).Msg("Screen keep-alive started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.Busy() {
			// An adjustment task owns the panel; a wake press now would be
			// counted as a setting keypress.
			continue
		}
		if s.coord.State().Mode == fusion.ModeOff {
			continue
		}
		if err := s.commands.ScreenOn(ctx); err != nil {
			log.Warn().Err(err).Msg("Screen keep-alive send failed")
		}
	}
}

// RunTargetSync periodically re-drives the heater toward the accepted
// targets. The appliance forgets its setting on power loss and accepts
// keypresses from the factory remote, so without this loop the tracked
// target and the physical device drift apart silently.
func (s *Sequencer) RunTargetSync(ctx context.Context) {
	if s.cfg.TargetSyncInterval <= 0 {
		log.Debug().Msg("Target sync disabled")
		return
	}
	ticker := time.NewTicker(s.cfg.TargetSyncInterval)
	defer ticker.Stop()
	log.Info().Dur("interval", s.cfg.TargetSyncInterval).Msg("Target sync started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.syncOnce(ctx)
	}
}

func (s *Sequencer) syncOnce(ctx context.Context) {
	if s.Busy() {
		return
	}
	state := s.coord.State()
	if state.Mode == fusion.ModeOff || state.Mode == fusion.ModeSetting {
		// Off means nothing to sync; the setting screen means a human is
		// mid-interaction and must not be fought over the panel.
		return
	}
	targetTemp, targetMode := s.Targets()

	if state.Mode.IsPower() && state.Mode != targetMode {
		log.Info().Stringer("observed", state.Mode).Stringer("target", targetMode).Msg("Mode drift detected, resyncing")
		if err := s.SetTargetMode(ctx, targetMode); err != nil {
			log.Warn().Err(err).Msg("Mode resync rejected")
		}
		return
	}

	if state.HasTemperature && state.Temperature != targetTemp {
		log.Info().Int("observed", state.Temperature).Int("target", targetTemp).Msg("Temperature drift detected, resyncing")
		if err := s.SetTargetTemperature(ctx, targetTemp); err != nil {
			log.Warn().Err(err).Msg("Temperature resync rejected")
		}
	}
}
