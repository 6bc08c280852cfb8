// Package server exposes the core's HTTP boundary: capture collaborators
// push their latest observations in, and the UI/dashboard layer reads the
// current belief, recent transitions, and baselines out. The core owns no
// other wire surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/decision"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/engine"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/feature"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/fusion"
	velvetotel "github.com/Fayeq-qamar/velvet-app-sub002/internal/otel"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/signal"
	"github.com/Fayeq-qamar/velvet-app-sub002/internal/tracker"
)

// BaselineLister reads persisted baseline records. Satisfied by store.Store.
type BaselineLister interface {
	List(ctx context.Context) ([]feature.BaselineRecord, error)
}

// StateReader provides the pipeline views the API serves. Satisfied by
// tracker.Tracker.
type StateReader interface {
	Current() (fusion.State, bool)
	Transitions() []tracker.TransitionEvent
}

// Server is the HTTP boundary.
type Server struct {
	inbox      *engine.Inbox
	states     StateReader
	detections decision.DetectionSource
	loop       *decision.Loop
	baselines  BaselineLister

	http *http.Server
}

// New builds a server around the injected pipeline components.
func New(addr string, inbox *engine.Inbox, states StateReader, detections decision.DetectionSource, loop *decision.Loop, baselines BaselineLister) *Server {
	s := &Server{
		inbox:      inbox,
		states:     states,
		detections: detections,
		loop:       loop,
		baselines:  baselines,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(velvetotel.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/transitions", s.handleTransitions)
		r.Get("/detections", s.handleDetections)
		r.Get("/last-action", s.handleLastAction)
		r.Get("/baselines", s.handleBaselines)

		r.Post("/signals/window", s.handleWindowSignal)
		r.Post("/signals/screen", s.handleScreenSignal)
		r.Post("/signals/audio", s.handleAudioSignal)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router (for tests).
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start listens until the server is shut down.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("http_server_listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st, ok := s.states.Current()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis tick has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleTransitions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.states.Transitions())
}

func (s *Server) handleDetections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.detections.Detections())
}

func (s *Server) handleLastAction(w http.ResponseWriter, _ *http.Request) {
	exec := s.loop.LastExecution()
	if exec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no action has executed yet"})
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleBaselines(w http.ResponseWriter, r *http.Request) {
	records, err := s.baselines.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("baseline_list_failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing baselines failed"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleWindowSignal(w http.ResponseWriter, r *http.Request) {
	var payload signal.WindowInfo
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid window signal: " + err.Error()})
		return
	}
	s.inbox.SetWindow(payload, time.Now())
	writeJSON(w, http.StatusAccepted, map[string]signal.Kind{"accepted": signal.KindWindow})
}

func (s *Server) handleScreenSignal(w http.ResponseWriter, r *http.Request) {
	var payload signal.ScreenText
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid screen signal: " + err.Error()})
		return
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	s.inbox.SetScreenText(payload, time.Now())
	writeJSON(w, http.StatusAccepted, map[string]signal.Kind{"accepted": signal.KindScreenText})
}

func (s *Server) handleAudioSignal(w http.ResponseWriter, r *http.Request) {
	var payload signal.AudioContext
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid audio signal: " + err.Error()})
		return
	}
	s.inbox.SetAudio(payload, time.Now())
	writeJSON(w, http.StatusAccepted, map[string]signal.Kind{"accepted": signal.KindAudio})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response_encode_failed")
	}
}
