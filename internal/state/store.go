// Package state persists the small pieces of runtime state that must
// survive a restart: the accepted targets and the last fused state. Without
// them a restarted daemon would re-sync the heater to defaults.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
)

const (
	keyTargets   = "targets"
	keyLastState = "last_state"
)

type persistedTargets struct {
	Temperature int    `json:"temperature"`
	Mode        string `json:"mode"`
}

type persistedState struct {
	Temperature    int    `json:"temperature"`
	HasTemperature bool   `json:"has_temperature"`
	Mode           string `json:"mode"`
}

// Store reads and writes keyed JSON blobs in the app_state table.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a store on the shared connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveTargets persists the accepted target temperature and mode.
func (s *Store) SaveTargets(temp int, mode fusion.Mode) error {
	return s.put(keyTargets, persistedTargets{Temperature: temp, Mode: mode.String()})
}

// LoadTargets returns the persisted targets. ok is false when none were
// ever saved.
func (s *Store) LoadTargets() (temp int, mode fusion.Mode, ok bool, err error) {
	var p persistedTargets
	found, err := s.get(keyTargets, &p)
	if err != nil || !found {
		return 0, 0, false, err
	}
	m, err := fusion.ParseMode(p.Mode)
	if err != nil {
		return 0, 0, false, fmt.Errorf("persisted mode: %w", err)
	}
	return p.Temperature, m, true, nil
}

// SaveState persists the last fused state.
func (s *Store) SaveState(st fusion.State) error {
	return s.put(keyLastState, persistedState{
		Temperature:    st.Temperature,
		HasTemperature: st.HasTemperature,
		Mode:           st.Mode.String(),
	})
}

// LoadState returns the last persisted fused state.
func (s *Store) LoadState() (fusion.State, bool, error) {
	var p persistedState
	found, err := s.get(keyLastState, &p)
	if err != nil || !found {
		return fusion.State{}, false, err
	}
	m, err := fusion.ParseMode(p.Mode)
	if err != nil {
		return fusion.State{}, false, fmt.Errorf("persisted state mode: %w", err)
	}
	return fusion.State{Temperature: p.Temperature, HasTemperature: p.HasTemperature, Mode: m}, true, nil
}

// Reset wipes all persisted state.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM app_state`)
	return err
}

func (s *Store) put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO app_state (key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, key, string(data), time.Now().UTC().Unix())
	return err
}

func (s *Store) get(key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRow(`SELECT payload FROM app_state WHERE key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}
