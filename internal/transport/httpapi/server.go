// Package httpapi exposes screens to clients over HTTP: one session per
// activated screen, intents as POSTs and snapshots over a WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/kapu/astrofm-go/internal/orchestrator"
	"go.uber.org/zap"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	addr     string
	registry *Registry
	auth     SpotifyAuth
	checks   map[string]HealthCheck
	states   *oauthStates
	logger   *zap.Logger

	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener
}

type sessionResponse struct {
	SessionID string                `json:"session_id"`
	Snapshot  orchestrator.Snapshot `json:"snapshot"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the routes. auth may be nil when Spotify is not set up.
func NewServer(addr string, registry *Registry, auth SpotifyAuth, checks map[string]HealthCheck, logger *zap.Logger) *Server {
	s := &Server{
		addr:     addr,
		registry: registry,
		auth:     auth,
		checks:   checks,
		states:   newOAuthStates(),
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /screens/{screen}", s.handleCreate)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleSnapshot)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleClose)
	s.mux.HandleFunc("POST /sessions/{id}/slices/{slice}/{action}", s.handleSliceIntent)
	s.mux.HandleFunc("POST /sessions/{id}/generate", s.handleGenerate)
	s.mux.HandleFunc("POST /sessions/{id}/save", s.handleSave)
	s.mux.HandleFunc("GET /sessions/{id}/ws", s.handleStream)
	s.mux.HandleFunc("GET /auth/spotify", s.handleSpotifyLogin)
	s.mux.HandleFunc("GET /auth/spotify/callback", s.handleSpotifyCallback)

	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens and serves in the background; the session sweeper stops with
// ctx.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go s.registry.Run(ctx)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	s.logger.Info("API server listening", zap.String("address", listener.Addr().String()))
	return nil
}

// Shutdown stops accepting requests and tears every session down.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.registry.CloseAll()
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	s.writeJSON(w, status, map[string]any{
		"status":       overall,
		"sessions":     s.registry.Len(),
		"dependencies": deps,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	screen, err := s.registry.Create(r.Context(), r.PathValue("screen"))
	if errors.Is(err, orchestrator.ErrUnknownScreen) {
		s.writeError(w, http.StatusNotFound, "unknown screen")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, sessionResponse{SessionID: screen.ID(), Snapshot: screen.Snapshot()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	screen, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, screen.Snapshot())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if !s.registry.Remove(r.PathValue("id")) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSliceIntent(w http.ResponseWriter, r *http.Request) {
	screen, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var err error
	name := r.PathValue("slice")
	switch r.PathValue("action") {
	case "retry":
		err = screen.Retry(r.Context(), name)
	case "refresh":
		err = screen.ForceRefresh(r.Context(), name)
	default:
		s.writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	s.respondIntent(w, screen, err)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.composerIntent(w, r, orchestrator.Composer.Generate)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.composerIntent(w, r, orchestrator.Composer.Save)
}

func (s *Server) composerIntent(w http.ResponseWriter, r *http.Request, intent func(orchestrator.Composer, context.Context) error) {
	screen, ok := s.lookup(w, r)
	if !ok {
		return
	}
	composer, ok := screen.(orchestrator.Composer)
	if !ok {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("screen %q does not build playlists", screen.Screen()))
		return
	}
	s.respondIntent(w, screen, intent(composer, r.Context()))
}

func (s *Server) respondIntent(w http.ResponseWriter, screen orchestrator.Screen, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrUnknownSlice):
		s.writeError(w, http.StatusNotFound, "unknown slice")
	case errors.Is(err, orchestrator.ErrClosed):
		s.writeError(w, http.StatusGone, "session closed")
	case errors.Is(err, orchestrator.ErrNotActivated):
		s.writeError(w, http.StatusConflict, "screen not activated")
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeJSON(w, http.StatusAccepted, screen.Snapshot())
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (orchestrator.Screen, bool) {
	screen, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return screen, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}
