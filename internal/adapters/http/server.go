// Package http exposes stored sessions over a read-only JSON API, plus the
// Prometheus metrics endpoint. It backs the `autoloop serve` command so a
// long recruitment run can be watched from a browser or dashboard.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autoresearch/autoloop/pkg/domain"
	"github.com/autoresearch/autoloop/pkg/ports"
)

// Server serves session state for inspection.
type Server struct {
	store  ports.StateStore
	logger *slog.Logger
}

// NewHandler creates the HTTP handler over a store.
func NewHandler(store ports.StateStore, logger *slog.Logger) http.Handler {
	s := &Server{store: store, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", s.health)
	r.Get("/sessions", s.listSessions)
	r.Get("/sessions/{id}", s.getSession)
	r.Get("/sessions/{id}/diff", s.getDiff)
	r.Get("/sessions/{id}/model", s.getModel)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list sessions failed", "err", err)
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	state, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// getDiff returns the changes since the snapshot the client already holds.
// The client echoes back its position as query parameters (cycle, trials,
// models, history, status); without any, the whole state is returned in diff
// form. 204 means the client is up to date.
func (s *Server) getDiff(w http.ResponseWriter, r *http.Request) {
	state, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	baseline, err := diffBaseline(state, r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	diff := domain.Diff(baseline, state)
	if diff == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// diffBaseline reconstructs the client's snapshot from the counts it echoed
// back. Trials, models, and history are append-only, so counts fully locate
// the client's position in them.
func diffBaseline(state *domain.State, q url.Values) (*domain.State, error) {
	if len(q) == 0 {
		return nil, nil
	}

	baseline := state.Clone()

	cycle, err := intQuery(q, "cycle", baseline.Cycle)
	if err != nil {
		return nil, err
	}
	baseline.Cycle = cycle

	trials, err := intQuery(q, "trials", len(baseline.Trials))
	if err != nil {
		return nil, err
	}
	baseline.Trials = baseline.Trials[:min(trials, len(baseline.Trials))]

	models, err := intQuery(q, "models", len(baseline.Models))
	if err != nil {
		return nil, err
	}
	baseline.Models = baseline.Models[:min(models, len(baseline.Models))]

	history, err := intQuery(q, "history", len(baseline.History))
	if err != nil {
		return nil, err
	}
	baseline.History = baseline.History[:min(history, len(baseline.History))]

	if raw := q.Get("status"); raw != "" {
		baseline.Status = domain.SessionStatus(raw)
	}

	return baseline, nil
}

func intQuery(q url.Values, key string, fallback int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s parameter %q", key, raw)
	}
	return n, nil
}

func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	state, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	model, ok := state.LatestModel()
	if !ok {
		http.Error(w, "no model fitted yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, model)
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*domain.State, bool) {
	id := chi.URLParam(r, "id")

	state, err := s.store.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
		} else {
			s.logger.Error("load session failed", "session_id", id, "err", err)
			http.Error(w, "failed to load session", http.StatusInternalServerError)
		}
		return nil, false
	}
	return state, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
