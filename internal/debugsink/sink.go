// Package debugsink writes intermediate decoder planes to disk as PNG
// files. Tuning ROIs against a live camera is guesswork without seeing what
// the decoder saw; the sink makes every stage inspectable.
package debugsink

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/SymlonCheung/ocr-water-heater/internal/vision"
)

// Sink persists debug records under a directory, one subdirectory per tick,
// keeping at most maxTicks tick directories.
type Sink struct {
	dir      string
	scale    int
	maxTicks int

	mu sync.Mutex
}

// New creates a sink. scale upscales the tiny decoder planes with
// nearest-neighbor so segment pixels stay sharp; 1 keeps original size.
func New(dir string, scale, maxTicks int) *Sink {
	if scale < 1 {
		scale = 1
	}
	if maxTicks < 1 {
		maxTicks = 20
	}
	return &Sink{dir: dir, scale: scale, maxTicks: maxTicks}
}

// Write stores all planes of one tick's debug record. Failures are logged
// and swallowed; a broken debug sink must never fail a poll tick.
func (s *Sink) Write(rec *vision.DebugRecord, now time.Time) {
	if rec == nil || len(rec.Images) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tickDir := filepath.Join(s.dir, now.UTC().Format("20060102T150405.000"))
	if err := os.MkdirAll(tickDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", tickDir).Msg("Debug sink mkdir failed")
		return
	}

	for i, img := range rec.Images {
		name := fmt.Sprintf("%02d_%s.png", i, img.Name)
		if err := s.writePNG(filepath.Join(tickDir, name), img.Plane); err != nil {
			log.Warn().Err(err).Str("image", name).Msg("Debug sink write failed")
		}
	}

	s.prune()
}

func (s *Sink) writePNG(path string, plane *vision.Gray) error {
	src := plane.ToImage()

	var out image.Image = src
	if s.scale > 1 {
		dst := image.NewGray(image.Rect(0, 0, src.Bounds().Dx()*s.scale, src.Bounds().Dy()*s.scale))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		out = dst
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, out)
}

// prune drops the oldest tick directories beyond the retention cap. Names
// sort chronologically because they are fixed-width UTC timestamps.
func (s *Sink) prune() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}

	var ticks []string
	for _, e := range entries {
		if e.IsDir() {
			ticks = append(ticks, e.Name())
		}
	}
	if len(ticks) <= s.maxTicks {
		return
	}

	sort.Strings(ticks)
	for _, name := range ticks[:len(ticks)-s.maxTicks] {
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			log.Warn().Err(err).Str("dir", name).Msg("Debug sink prune failed")
		}
	}
}
