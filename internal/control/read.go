package control

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
)

// Poller triggers one fresh fetch-decode-fuse cycle and returns the fused
// state it produced. Implementations share the poll loop's
// single-decode-in-flight discipline; a reliable read never runs two
// decodes concurrently.
type Poller interface {
	PollOnce(ctx context.Context) (fusion.State, error)
}

// ReliableRead samples the display several times and returns the
// statistical mode of the successful readings. The panel flickers and the
// decoder occasionally misreads one frame; agreement across fresh polls is
// the only trustworthy readback on this one-way channel. Ties and
// all-distinct sample sets break toward the sample closest to hint.
func (s *Sequencer) ReliableRead(ctx context.Context, hint int) (int, error) {
	samples := make([]int, 0, s.cfg.ReadSamples)
	for i := 0; i < s.cfg.ReadSamples; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(s.cfg.ReadDelay):
			}
		}
		state, err := s.poller.PollOnce(ctx)
		if err != nil {
			log.Debug().Err(err).Int("sample", i+1).Msg("Reliable read sample failed")
			continue
		}
		if state.HasTemperature {
			samples = append(samples, state.Temperature)
		}
	}
	if len(samples) == 0 {
		return 0, fmt.Errorf("no readable samples in %d polls", s.cfg.ReadSamples)
	}

	value := majoritySample(samples, hint)
	log.Debug().Ints("samples", samples).Int("hint", hint).Int("value", value).Msg("Reliable read resolved")
	return value, nil
}

// majoritySample returns the most frequent sample. When no value wins an
// outright majority of occurrences, the sample numerically closest to hint
// wins; equal distances keep the earliest sample.
func majoritySample(samples []int, hint int) int {
	counts := make(map[int]int, len(samples))
	for _, v := range samples {
		counts[v]++
	}

	best, bestCount, unique := 0, 0, true
	for _, v := range samples {
		c := counts[v]
		switch {
		case c > bestCount:
			best, bestCount, unique = v, c, true
		case c == bestCount && v != best:
			unique = false
		}
	}
	if bestCount > 1 && unique {
		return best
	}

	closest := samples[0]
	for _, v := range samples[1:] {
		if abs(v-hint) < abs(closest-hint) {
			closest = v
		}
	}
	return closest
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
