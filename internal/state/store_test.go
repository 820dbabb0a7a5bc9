package state

import (
	"path/filepath"
	"testing"

	"github.com/SymlonCheung/ocr-water-heater/internal/db"
	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database.DB)
}

func TestTargetsRoundTrip(t *testing.T) {
	s := testStore(t)

	if _, _, ok, err := s.LoadTargets(); err != nil || ok {
		t.Fatalf("fresh store LoadTargets = ok=%v err=%v, want absent", ok, err)
	}

	if err := s.SaveTargets(55, fusion.ModeHalf); err != nil {
		t.Fatalf("SaveTargets: %v", err)
	}

	temp, mode, ok, err := s.LoadTargets()
	if err != nil || !ok {
		t.Fatalf("LoadTargets = ok=%v err=%v", ok, err)
	}
	if temp != 55 || mode != fusion.ModeHalf {
		t.Fatalf("targets = %d/%v, want 55/half", temp, mode)
	}

	// Overwrite wins.
	if err := s.SaveTargets(42, fusion.ModeLow); err != nil {
		t.Fatalf("SaveTargets: %v", err)
	}
	temp, mode, _, _ = s.LoadTargets()
	if temp != 42 || mode != fusion.ModeLow {
		t.Fatalf("targets after overwrite = %d/%v, want 42/low", temp, mode)
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := testStore(t)

	want := fusion.State{Temperature: 60, HasTemperature: true, Mode: fusion.ModeFull}
	if err := s.SaveState(want); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	got, ok, err := s.LoadState()
	if err != nil || !ok {
		t.Fatalf("LoadState = ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("state = %v, want %v", got, want)
	}
}

func TestReset(t *testing.T) {
	s := testStore(t)

	if err := s.SaveTargets(55, fusion.ModeHalf); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, _, ok, _ := s.LoadTargets(); ok {
		t.Fatal("targets survived reset")
	}
}
