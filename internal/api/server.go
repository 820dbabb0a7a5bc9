// Package api exposes the heater over HTTP: read the fused state, submit
// targets, inspect recent events.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SymlonCheung/ocr-water-heater/internal/fusion"
	"github.com/SymlonCheung/ocr-water-heater/internal/ledger"
)

// Controller is the command surface the API drives.
type Controller interface {
	SetTargetTemperature(ctx context.Context, target int) error
	SetTargetMode(ctx context.Context, target fusion.Mode) error
	SetPower(ctx context.Context, on bool) error
	Targets() (int, fusion.Mode)
	Busy() bool
}

// StateSource reports the current fused state.
type StateSource interface {
	State() fusion.State
}

// Server is the HTTP control surface.
type Server struct {
	addr       string
	states     StateSource
	controller Controller
	ledger     *ledger.Ledger
	httpServer *http.Server
}

// NewServer creates an API server. ledger may be nil, which disables the
// events endpoint.
func NewServer(host string, port int, states StateSource, controller Controller, led *ledger.Ledger) *Server {
	return &Server{
		addr:       fmt.Sprintf("%s:%d", host, port),
		states:     states,
		controller: controller,
		ledger:     led,
	}
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/temperature", s.handleTemperature)
	mux.HandleFunc("/mode", s.handleMode)
	mux.HandleFunc("/power", s.handlePower)
	mux.HandleFunc("/events", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	state := s.states.State()
	targetTemp, targetMode := s.controller.Targets()

	resp := map[string]any{
		"mode":               state.Mode.String(),
		"target_temperature": targetTemp,
		"target_mode":        targetMode.String(),
		"adjusting":          s.controller.Busy(),
	}
	if state.HasTemperature {
		resp["temperature"] = state.Temperature
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTemperature(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req struct {
		Value int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.controller.SetTargetTemperature(r.Context(), req.Value); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "target": req.Value})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	mode, err := fusion.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.controller.SetTargetMode(r.Context(), mode); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "target": mode.String()})
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.controller.SetPower(r.Context(), req.On); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "on": req.On})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, "ledger disabled")
		return
	}

	entries, err := s.ledger.GetByTimeRange(time.Now().Add(-24*time.Hour), time.Now(), 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"type":      string(e.EventType),
			"timestamp": e.Timestamp.Format(time.RFC3339),
			"payload":   e.Payload,
			"source":    e.Source,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
