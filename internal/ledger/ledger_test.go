package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/SymlonCheung/ocr-water-heater/internal/db"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndQuery(t *testing.T) {
	l := testLedger(t)

	if err := l.Append(EventStateChanged, "poll", map[string]any{"mode": "low"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(EventCommandCompleted, "sequencer", map[string]any{"axis": "temperature"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := l.GetByType(EventStateChanged, 10)
	if err != nil {
		t.Fatalf("GetByType: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Source != "poll" || entries[0].Payload["mode"] != "low" {
		t.Fatalf("entry = %+v", entries[0])
	}

	all, err := l.GetByTimeRange(time.Now().Add(-time.Minute), time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("GetByTimeRange: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("entries in range = %d, want 2", len(all))
	}
}

func TestRetention(t *testing.T) {
	l := testLedger(t)

	if err := l.Append(EventTickFailed, "poll", nil); err != nil {
		t.Fatal(err)
	}

	// A negative retention moves the cutoff into the future, deleting
	// everything.
	deleted, err := l.DeleteOlderThan(-time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	entries, _ := l.GetByType(EventTickFailed, 10)
	if len(entries) != 0 {
		t.Fatalf("entries after cleanup = %d, want 0", len(entries))
	}
}
