package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/orchestrator"
	"go.uber.org/zap"
)

// ScreenFactory builds an inactive screen by name.
type ScreenFactory func(name string) (orchestrator.Screen, error)

type session struct {
	screen   orchestrator.Screen
	lastSeen time.Time
	streams  int
}

// Registry owns the live screens. A screen that nobody has touched for the
// idle timeout and that has no open stream is torn down by the sweeper.
type Registry struct {
	factory ScreenFactory
	idle    time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewRegistry(factory ScreenFactory, logger *zap.Logger) *Registry {
	return &Registry{
		factory:  factory,
		idle:     constants.SessionConfig.IdleTimeout,
		now:      time.Now,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Create activates a new screen and registers it once activation returns.
func (r *Registry) Create(ctx context.Context, name string) (orchestrator.Screen, error) {
	screen, err := r.factory(name)
	if err != nil {
		return nil, err
	}
	screen.Activate(ctx)

	r.mu.Lock()
	r.sessions[screen.ID()] = &session{screen: screen, lastSeen: r.now()}
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("Session created",
		zap.String("session", screen.ID()),
		zap.String("screen", name),
		zap.Int("active_sessions", count),
	)
	return screen, nil
}

func (r *Registry) Get(id string) (orchestrator.Screen, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	s.lastSeen = r.now()
	return s.screen, true
}

// Remove tears the session down. It reports whether the session existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.screen.Close()
	r.logger.Info("Session closed", zap.String("session", id))
	return true
}

// attach marks an open stream on the session; the returned func detaches it.
func (r *Registry) attach(id string) func() {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.streams++
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if s, ok := r.sessions[id]; ok {
				s.streams--
				s.lastSeen = r.now()
			}
			r.mu.Unlock()
		})
	}
}

// Sweep closes idle sessions and returns how many were closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var expired []*session
	for id, s := range r.sessions {
		if s.streams == 0 && s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.screen.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("Idle sessions swept", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps on an interval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.SessionConfig.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll tears every session down, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.screen.Close()
	}
}
