// Package script embeds a Lua VM for user automation hooks. Scripts react
// to heater state changes and can drive targets, so rules like "drop to
// half power overnight" live in a config-adjacent file instead of Go code.
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
	"github.com/SymlonCheung/ocr-water-heater/internal/kv"
	"github.com/SymlonCheung/ocr-water-heater/internal/script/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// Work represents work to be executed on the Lua VM. All Lua execution MUST
// go through this to ensure thread safety.
type Work func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L *lua.LState

	heaterModule *modules.HeaterModule

	// Work queue for thread-safe Lua execution
	workQueue chan Work

	// Shutdown signaling - closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once

	// started is closed by Start before the worker spawns; done is closed
	// by the worker on exit. Close uses them to know when the LState is no
	// longer touched.
	started   chan struct{}
	startOnce sync.Once
	done      chan struct{}
}

// NewRuntime creates a new Lua runtime bound to the heater control surface.
// kvManager may be nil to disable the kv module.
func NewRuntime(heater modules.Heater, kvManager *kv.Manager) *Runtime {
	r := &Runtime{
		L:         lua.NewState(),
		workQueue: make(chan Work, 100),
		closing:   make(chan struct{}),
		started:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.heaterModule = modules.NewHeaterModule(heater)
	r.L.PreloadModule("heater", r.heaterModule.Loader)
	if kvManager != nil {
		r.L.PreloadModule("kv", modules.NewKVModule(kvManager).Loader)
	}

	return r
}

// Close signals the runtime to stop accepting new work, waits for the
// worker to drain and exit, then closes the Lua state. Safe to call
// concurrently with Do/DoSync.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	// workQueue stays open to avoid send-on-closed-channel panics; the
	// worker exits on the closing signal and the channel gets collected.
	select {
	case <-r.started:
		<-r.done
	default:
		// Worker never launched; the state was only ever touched by
		// LoadScript on this goroutine.
	}
	r.L.Close()
}

// Do queues work for the Lua VM, non-blocking. Returns false if the runtime
// is closing, the queue is full, or the context is cancelled.
func (r *Runtime) Do(ctx context.Context, work Work) bool {
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSync queues work and blocks until there is space.
func (r *Runtime) DoSync(ctx context.Context, work Work) error {
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- work:
		return nil
	}
}

// DispatchStateChanged queues the registered on_state_change handlers for
// one transition. Non-blocking; a saturated script cannot stall the poll
// loop.
func (r *Runtime) DispatchStateChanged(ctx context.Context, prev, next fusion.State) {
	r.Do(ctx, func(context.Context) {
		r.heaterModule.DispatchStateChanged(r.L, prev, next)
	})
}

// Start launches the Lua worker goroutine. Idempotent.
func (r *Runtime) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		close(r.started)
		go r.run(ctx)
	})
}

// run is the Lua worker loop. This is the ONLY goroutine that touches the
// Lua state after Start. Exits when the context is cancelled or the runtime
// is closed.
func (r *Runtime) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			r.drainQueue(ctx)
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	// Set context on LState so modules can access it via L.Context()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript loads and executes a Lua script (must be called before Start).
// Relative paths resolve against baseDir, typically the config directory.
func (r *Runtime) LoadScript(path, baseDir string) error {
	if !filepath.IsAbs(path) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = filepath.Join(baseDir, path)
		}
	}

	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Msg("Lua script loaded successfully")
	return nil
}
