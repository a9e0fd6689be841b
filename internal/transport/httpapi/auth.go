package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const oauthStateTTL = 10 * time.Minute

// SpotifyAuth is satisfied by *spotify.Client.
type SpotifyAuth interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) error
}

// oauthStates holds pending authorization states until the callback consumes
// them.
type oauthStates struct {
	mu      sync.Mutex
	pending map[string]time.Time
	now     func() time.Time
}

func newOAuthStates() *oauthStates {
	return &oauthStates{pending: make(map[string]time.Time), now: time.Now}
}

func (s *oauthStates) issue() string {
	state := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.pending {
		if now.After(exp) {
			delete(s.pending, k)
		}
	}
	s.pending[state] = now.Add(oauthStateTTL)
	return state
}

func (s *oauthStates) consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.pending[state]
	delete(s.pending, state)
	return ok && !s.now().After(exp)
}

func (s *Server) handleSpotifyLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || !s.auth.Configured() {
		s.writeError(w, http.StatusServiceUnavailable, "spotify is not configured")
		return
	}
	http.Redirect(w, r, s.auth.AuthCodeURL(s.states.issue()), http.StatusFound)
}

func (s *Server) handleSpotifyCallback(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || !s.auth.Configured() {
		s.writeError(w, http.StatusServiceUnavailable, "spotify is not configured")
		return
	}
	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		s.logger.Warn("Spotify authorization denied", zap.String("reason", reason))
		s.writeError(w, http.StatusBadRequest, "spotify authorization was denied")
		return
	}
	if !s.states.consume(query.Get("state")) {
		s.writeError(w, http.StatusBadRequest, "invalid or expired state")
		return
	}
	code := query.Get("code")
	if code == "" {
		s.writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	if err := s.auth.Exchange(r.Context(), code); err != nil {
		s.logger.Error("Spotify token exchange failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "spotify token exchange failed")
		return
	}

	s.logger.Info("Spotify connected")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Spotify connected. You can close this window.\n"))
}
