// Package slice holds one independently loadable unit of screen data and its
// idle/loading/ready/failed state.
package slice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kapu/astrofm-go/internal/service/cache"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"go.uber.org/zap"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// State is a snapshot of a slice. Value is set only when Status is ready and
// Error only when Status is failed.
type State[T any] struct {
	Status    Status
	Value     *T
	Error     string
	LoadedAt  time.Time
	FromCache bool
}

// View is the untyped form handed to the presentation layer.
type View struct {
	Status    Status     `json:"status"`
	Value     any        `json:"value,omitempty"`
	Error     string     `json:"error,omitempty"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
	FromCache bool       `json:"from_cache,omitempty"`
}

type FetchFunc[T any] func(ctx context.Context) (*T, error)

type Config[T any] struct {
	Name string
	// CacheKey empty means the slice is never cached.
	CacheKey string
	Validity cache.Validity
	// CacheOnly slices never call Fetch; a miss leaves them idle.
	CacheOnly bool
	Store     cache.Store
	Fetch     FetchFunc[T]
	// Alive gates whether a finished load may still touch state.
	Alive        func() bool
	OnChange     func(name string)
	ErrorMessage func(error) string
	Now          func() time.Time
	Logger       *zap.Logger
}

type Slice[T any] struct {
	name      string
	key       string
	validity  cache.Validity
	cacheOnly bool
	store     cache.Store
	fetch     FetchFunc[T]
	alive     func() bool
	onChange  func(name string)
	message   func(error) string
	now       func() time.Time
	logger    *zap.Logger

	mu    sync.Mutex
	state State[T]
}

func New[T any](cfg Config[T]) *Slice[T] {
	s := &Slice[T]{
		name:      cfg.Name,
		key:       cfg.CacheKey,
		validity:  cfg.Validity,
		cacheOnly: cfg.CacheOnly,
		store:     cfg.Store,
		fetch:     cfg.Fetch,
		alive:     cfg.Alive,
		onChange:  cfg.OnChange,
		message:   cfg.ErrorMessage,
		now:       cfg.Now,
		logger:    cfg.Logger,
		state:     State[T]{Status: StatusIdle},
	}
	if s.alive == nil {
		s.alive = func() bool { return true }
	}
	if s.message == nil {
		s.message = apperrors.UserMessage
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("slice", s.name))
	return s
}

func (s *Slice[T]) Name() string {
	return s.name
}

// Load starts the first load. It is a no-op unless the slice is idle, so a
// call while loading never starts a second fetch.
func (s *Slice[T]) Load(ctx context.Context) {
	s.run(ctx, false, StatusIdle)
}

// Retry reloads through the cache from any settled state.
func (s *Slice[T]) Retry(ctx context.Context) {
	s.run(ctx, false, StatusIdle, StatusReady, StatusFailed)
}

// ForceRefresh skips the cache read but still writes the cache on success.
func (s *Slice[T]) ForceRefresh(ctx context.Context) {
	s.run(ctx, true, StatusIdle, StatusReady, StatusFailed)
}

// Fail settles the slice as failed without fetching. Used when a
// precondition rules the fetch out. Returns false if a load is in flight.
func (s *Slice[T]) Fail(message string) bool {
	s.mu.Lock()
	if s.state.Status == StatusLoading || !s.alive() {
		s.mu.Unlock()
		return false
	}
	s.state = State[T]{Status: StatusFailed, Error: message}
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Slice[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Slice[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status
}

// Value returns the loaded value and whether the slice is ready.
func (s *Slice[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != StatusReady || s.state.Value == nil {
		var zero T
		return zero, false
	}
	return *s.state.Value, true
}

func (s *Slice[T]) View() View {
	st := s.State()
	v := View{Status: st.Status, Error: st.Error, FromCache: st.FromCache}
	if st.Status == StatusReady && st.Value != nil {
		v.Value = *st.Value
		loadedAt := st.LoadedAt
		v.LoadedAt = &loadedAt
	}
	return v
}

func (s *Slice[T]) run(ctx context.Context, bypassCache bool, from ...Status) {
	s.mu.Lock()
	if !s.alive() || !statusIn(s.state.Status, from) {
		s.mu.Unlock()
		return
	}
	// Entering loading clears both value and error.
	s.state = State[T]{Status: StatusLoading}
	s.mu.Unlock()
	s.notify()

	value, fromCache, err := s.resolve(ctx, bypassCache)

	s.mu.Lock()
	if !s.alive() {
		s.mu.Unlock()
		s.logger.Debug("Discarding result for closed screen")
		return
	}
	switch {
	case err != nil:
		s.state = State[T]{Status: StatusFailed, Error: s.message(err)}
	case value == nil:
		s.state = State[T]{Status: StatusIdle}
	default:
		s.state = State[T]{Status: StatusReady, Value: value, LoadedAt: s.now(), FromCache: fromCache}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Slice load failed", zap.Error(err))
	}
	s.notify()
}

func (s *Slice[T]) resolve(ctx context.Context, bypassCache bool) (value *T, fromCache bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Slice fetch panicked", zap.Any("panic", r))
			value, fromCache, err = nil, false, fmt.Errorf("slice %s panicked: %v", s.name, r)
		}
	}()

	cached := s.key != "" && s.store != nil
	if cached && (!bypassCache || s.cacheOnly) {
		v, _, err := cache.GetJSON[T](ctx, s.store, s.key)
		if err == nil {
			return &v, true, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Cache read failed, falling through", zap.Error(err))
		}
	}

	if s.cacheOnly || s.fetch == nil {
		return nil, false, nil
	}

	v, err := s.fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, apperrors.NewTransportError("empty response", s.name, nil)
	}

	// The cache is shared across screens, so a result is kept even if this
	// screen has closed in the meantime.
	if cached {
		if err := cache.PutJSON(ctx, s.store, s.key, *v, s.validity); err != nil {
			s.logger.Warn("Cache write failed", zap.Error(err))
		}
	}
	return v, false, nil
}

func (s *Slice[T]) notify() {
	if s.onChange != nil {
		s.onChange(s.name)
	}
}

func statusIn(st Status, set []Status) bool {
	for _, s := range set {
		if st == s {
			return true
		}
	}
	return false
}
