package script

import (
	"context"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
)

type fakeHeater struct{}

func (fakeHeater) State() fusion.State { return fusion.State{} }

func (fakeHeater) Targets() (int, fusion.Mode) { return 10, fusion.ModeLow }

func (fakeHeater) SetTargetTemperature(context.Context, int) error { return nil }

func (fakeHeater) SetTargetMode(context.Context, fusion.Mode) error { return nil }

func (fakeHeater) SetPower(context.Context, bool) error { return nil }

func TestCloseWaitsForInFlightWork(t *testing.T) {
	r := NewRuntime(fakeHeater{}, nil)
	r.Start(context.Background())

	began := make(chan struct{})
	if err := r.DoSync(context.Background(), func(context.Context) {
		close(began)
		time.Sleep(50 * time.Millisecond)
		// Touching the state here must be safe: Close may not free it
		// while work is executing.
		r.L.SetGlobal("finished", lua.LTrue)
	}); err != nil {
		t.Fatalf("DoSync: %v", err)
	}

	select {
	case <-began:
	case <-time.After(time.Second):
		t.Fatal("work never started")
	}
	r.Close()

	select {
	case <-r.done:
	default:
		t.Fatal("Close returned before the worker exited")
	}
}

func TestCloseWithoutStart(t *testing.T) {
	r := NewRuntime(fakeHeater{}, nil)
	// Must not deadlock waiting for a worker that never launched.
	r.Close()
}

func TestDoAfterCloseDrops(t *testing.T) {
	r := NewRuntime(fakeHeater{}, nil)
	r.Start(context.Background())
	r.Close()

	if r.Do(context.Background(), func(context.Context) {}) {
		t.Fatal("Do accepted work after close")
	}
	if err := r.DoSync(context.Background(), func(context.Context) {}); err != ErrRuntimeClosed {
		t.Fatalf("DoSync after close = %v, want ErrRuntimeClosed", err)
	}
}
