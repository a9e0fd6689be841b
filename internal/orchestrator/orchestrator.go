// Package orchestrator composes slices into screens: it decides the order and
// parallelism of their first loads, routes user intents to them and publishes
// a merged snapshot whenever any slice changes.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/astrofm-go/internal/config"
	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/service/cache"
	"github.com/kapu/astrofm-go/internal/service/remote"
	"github.com/kapu/astrofm-go/internal/slice"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

var (
	ErrUnknownSlice = errors.New("orchestrator: unknown slice")
	ErrClosed       = errors.New("orchestrator: screen closed")
	ErrNotActivated = errors.New("orchestrator: screen not activated")
)

// ProfileSource is satisfied by *profile.Resolver.
type ProfileSource interface {
	Resolve(ctx context.Context) domain.Profile
	GenrePreferences(ctx context.Context) []string
}

// Deps are the long-lived collaborators shared by every screen.
type Deps struct {
	Profiles ProfileSource
	Remote   remote.DataSource
	Cache    cache.Store
	Defaults *config.Defaults
	Logger   *zap.Logger
	Now      func() time.Time
}

// handle is the type-erased view of a slice.Slice[T].
type handle interface {
	Name() string
	Load(ctx context.Context)
	Retry(ctx context.Context)
	ForceRefresh(ctx context.Context)
	Fail(message string) bool
	Status() slice.Status
	View() slice.View
}

type Snapshot struct {
	SessionID string                `json:"session_id"`
	Screen    string                `json:"screen"`
	Version   uint64                `json:"version"`
	Alive     bool                  `json:"alive"`
	Profile   *domain.Profile       `json:"profile,omitempty"`
	Slices    map[string]slice.View `json:"slices"`
}

// Orchestrator is the screen-independent part: identity, liveness, the slice
// registry, snapshot subscribers and the background task group.
type Orchestrator struct {
	id     string
	screen string
	deps   Deps
	logger *zap.Logger

	alive     atomic.Bool
	activated atomic.Bool
	version   atomic.Uint64
	// loadCtx outlives the request that activated the screen; teardown stops
	// applying results but never aborts remote calls.
	loadCtx context.Context
	tasks   conc.WaitGroup

	mu      sync.RWMutex
	slices  map[string]handle
	order   []string
	profile *domain.Profile

	subMu   sync.Mutex
	subs    map[uint64]chan Snapshot
	nextSub uint64
}

func newOrchestrator(screen string, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Defaults == nil {
		deps.Defaults = config.MustDefaults()
	}

	id := uuid.NewString()
	o := &Orchestrator{
		id:      id,
		screen:  screen,
		deps:    deps,
		logger:  deps.Logger.With(zap.String("screen", screen), zap.String("session", id)),
		loadCtx: context.Background(),
		slices:  make(map[string]handle),
		subs:    make(map[uint64]chan Snapshot),
	}
	o.alive.Store(true)
	return o
}

// register builds a slice wired to this orchestrator's liveness and snapshot
// publishing.
func register[T any](o *Orchestrator, cfg slice.Config[T]) *slice.Slice[T] {
	cfg.Alive = o.alive.Load
	cfg.OnChange = o.onSliceChange
	cfg.ErrorMessage = o.userMessage
	cfg.Now = o.deps.Now
	cfg.Logger = o.logger
	if cfg.CacheKey != "" && cfg.Store == nil {
		cfg.Store = o.deps.Cache
	}

	s := slice.New(cfg)
	o.mu.Lock()
	o.slices[cfg.Name] = s
	o.order = append(o.order, cfg.Name)
	o.mu.Unlock()
	return s
}

func (o *Orchestrator) ID() string     { return o.id }
func (o *Orchestrator) Screen() string { return o.screen }
func (o *Orchestrator) Alive() bool    { return o.alive.Load() }

// SliceNames lists slices in registration order.
func (o *Orchestrator) SliceNames() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.order...)
}

// beginActivation records the load context and reports whether this is the
// first activation of a live screen.
func (o *Orchestrator) beginActivation(ctx context.Context) bool {
	if !o.activated.CompareAndSwap(false, true) || !o.alive.Load() {
		return false
	}
	o.mu.Lock()
	o.loadCtx = context.WithoutCancel(ctx)
	o.mu.Unlock()
	o.logger.Info("Screen activated")
	return true
}

func (o *Orchestrator) setProfile(p domain.Profile) {
	o.mu.Lock()
	o.profile = &p
	o.mu.Unlock()
	o.publish()
}

// goLoad runs fn in the background task group.
func (o *Orchestrator) goLoad(fn func(ctx context.Context)) {
	if !o.alive.Load() {
		return
	}
	o.mu.RLock()
	ctx := o.loadCtx
	o.mu.RUnlock()
	o.tasks.Go(func() { fn(ctx) })
}

// profileReady reports whether activation has resolved the profile.
func (o *Orchestrator) profileReady() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.profile != nil
}

func (o *Orchestrator) lookup(name string) (handle, error) {
	if !o.alive.Load() {
		return nil, ErrClosed
	}
	o.mu.RLock()
	h, ok := o.slices[name]
	o.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSlice
	}
	return h, nil
}

// Retry schedules a cache-first reload of one slice.
func (o *Orchestrator) Retry(_ context.Context, name string) error {
	h, err := o.lookup(name)
	if err != nil {
		return err
	}
	o.goLoad(h.Retry)
	return nil
}

// ForceRefresh schedules a reload of one slice that skips the cache read.
func (o *Orchestrator) ForceRefresh(_ context.Context, name string) error {
	h, err := o.lookup(name)
	if err != nil {
		return err
	}
	o.goLoad(h.ForceRefresh)
	return nil
}

// Wait blocks until every background load started so far has finished.
func (o *Orchestrator) Wait() {
	o.tasks.Wait()
}

// Close tears the screen down. In-flight loads run to completion but their
// results are no longer applied; subscribers see one final snapshot and then
// a closed channel.
func (o *Orchestrator) Close() {
	if !o.alive.CompareAndSwap(true, false) {
		return
	}
	final := o.Snapshot()

	o.subMu.Lock()
	for id, ch := range o.subs {
		offer(ch, final)
		close(ch)
		delete(o.subs, id)
	}
	o.subMu.Unlock()

	o.logger.Info("Screen closed")
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	handles := make([]handle, 0, len(o.order))
	for _, name := range o.order {
		handles = append(handles, o.slices[name])
	}
	profile := o.profile
	o.mu.RUnlock()

	views := make(map[string]slice.View, len(handles))
	for _, h := range handles {
		views[h.Name()] = h.View()
	}
	return Snapshot{
		SessionID: o.id,
		Screen:    o.screen,
		Version:   o.version.Load(),
		Alive:     o.alive.Load(),
		Profile:   profile,
		Slices:    views,
	}
}

// Subscribe returns a channel that receives a snapshot after every change.
// Slow readers lose intermediate snapshots, never the latest one.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, constants.SessionConfig.SnapshotBacklog)

	o.subMu.Lock()
	if !o.alive.Load() {
		o.subMu.Unlock()
		ch <- o.Snapshot()
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subMu.Unlock()

	offer(ch, o.Snapshot())

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.subMu.Lock()
			if _, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(ch)
			}
			o.subMu.Unlock()
		})
	}
	return ch, cancel
}

func (o *Orchestrator) onSliceChange(string) {
	o.publish()
}

func (o *Orchestrator) publish() {
	o.version.Add(1)
	if !o.alive.Load() {
		return
	}
	snap := o.Snapshot()

	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subs {
		offer(ch, snap)
	}
}

// offer sends without blocking, dropping the oldest queued snapshot when the
// buffer is full. Callers hold subMu.
func offer(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (o *Orchestrator) userMessage(err error) string {
	msg := apperrors.UserMessage(err)
	if msg == apperrors.GenericUserMessage && o.deps.Defaults.Copy.GenericError != "" {
		return o.deps.Defaults.Copy.GenericError
	}
	return msg
}
