package orchestrator

import (
	"context"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/service/cache"
	"github.com/kapu/astrofm-go/internal/slice"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const ScreenHome = "home"

// HomeScreen is the dashboard: today's reading, the chart's sonification,
// seasonal guidance and the monthly curated playlist.
type HomeScreen struct {
	*Orchestrator

	profile domain.Profile
	genres  []string

	narrative      *slice.Slice[domain.DailyNarrative]
	connection     *slice.Slice[domain.ConnectionState]
	cachedPlaylist *slice.Slice[domain.Playlist]
	alignment      *slice.Slice[domain.Alignment]
	sonification   *slice.Slice[domain.Sonification]
	seasonal       *slice.Slice[domain.SeasonalGuidance]
	monthly        *slice.Slice[domain.Playlist]
}

func NewHomeScreen(deps Deps) *HomeScreen {
	h := &HomeScreen{Orchestrator: newOrchestrator(ScreenHome, deps)}
	keys := constants.SliceKeys

	h.narrative = register(h.Orchestrator, slice.Config[domain.DailyNarrative]{
		Name:     keys.DailyNarrative,
		CacheKey: keys.DailyNarrative,
		Validity: cache.SameDay,
		Fetch: func(ctx context.Context) (*domain.DailyNarrative, error) {
			return h.deps.Remote.FetchDailyNarrative(ctx, h.profile)
		},
	})
	h.connection = register(h.Orchestrator, slice.Config[domain.ConnectionState]{
		Name: keys.Connection,
		Fetch: func(ctx context.Context) (*domain.ConnectionState, error) {
			state, err := h.deps.Remote.FetchConnectionStatus(ctx)
			if err != nil {
				return nil, err
			}
			return &state, nil
		},
	})
	h.cachedPlaylist = register(h.Orchestrator, slice.Config[domain.Playlist]{
		Name:      keys.CachedPlaylist,
		CacheKey:  keys.CachedPlaylist,
		Validity:  cache.Indefinite,
		CacheOnly: true,
	})
	h.alignment = register(h.Orchestrator, slice.Config[domain.Alignment]{
		Name:     keys.DailyAlignment,
		CacheKey: keys.DailyAlignment,
		Validity: cache.SameDay,
		Fetch: func(ctx context.Context) (*domain.Alignment, error) {
			return h.deps.Remote.FetchDailyAlignment(ctx, h.profile)
		},
	})
	h.seasonal = register(h.Orchestrator, slice.Config[domain.SeasonalGuidance]{
		Name:     keys.SeasonalGuidance,
		CacheKey: keys.SeasonalGuidance,
		Validity: cache.SameMonth,
		Fetch: func(ctx context.Context) (*domain.SeasonalGuidance, error) {
			return h.deps.Remote.FetchSeasonalGuidance(ctx, h.profile)
		},
	})
	h.monthly = register(h.Orchestrator, slice.Config[domain.Playlist]{
		Name:     keys.MonthlyPlaylist,
		CacheKey: keys.MonthlyPlaylist,
		Validity: cache.SameMonth,
		Fetch:    h.fetchMonthlyPlaylist,
	})
	return h
}

// Activate runs the first load. It returns once the profile is resolved and
// the connection gate is known; the remaining slices keep loading in the
// background.
func (h *HomeScreen) Activate(ctx context.Context) {
	if !h.beginActivation(ctx) {
		return
	}

	h.profile = h.deps.Profiles.Resolve(ctx)
	h.genres = h.deps.Profiles.GenrePreferences(ctx)
	h.setProfile(h.profile)

	// The sonification key depends on the profile, so its slice is built only
	// now.
	h.sonification = register(h.Orchestrator, slice.Config[domain.Sonification]{
		Name:     constants.SliceKeys.Sonification,
		CacheKey: chartKey(constants.SliceKeys.Sonification, h.profile),
		Validity: cache.Indefinite,
		Fetch: func(ctx context.Context) (*domain.Sonification, error) {
			return h.deps.Remote.FetchUserSonification(ctx, h.profile)
		},
	})

	h.goLoad(h.narrative.Load)

	loadCtx := context.WithoutCancel(ctx)
	p := pool.New()
	p.Go(func() { h.connection.Load(loadCtx) })
	p.Go(func() { h.cachedPlaylist.Load(loadCtx) })
	p.Wait()

	if !h.Alive() {
		return
	}

	h.goLoad(h.alignment.Load)
	h.goLoad(h.sonification.Load)
	h.goLoad(h.seasonal.Load)
	h.gateMonthly(h.monthly.Load)
}

// Retry reloads one slice. The monthly playlist re-checks the connection
// first so reconnecting Spotify and retrying is enough to lift the gate.
func (h *HomeScreen) Retry(ctx context.Context, name string) error {
	if name != constants.SliceKeys.MonthlyPlaylist {
		return h.Orchestrator.Retry(ctx, name)
	}
	if _, err := h.lookup(name); err != nil {
		return err
	}
	h.goLoad(func(ctx context.Context) {
		h.connection.Retry(ctx)
		h.gateMonthly(h.monthly.Retry)
	})
	return nil
}

func (h *HomeScreen) ForceRefresh(ctx context.Context, name string) error {
	if name != constants.SliceKeys.MonthlyPlaylist {
		return h.Orchestrator.ForceRefresh(ctx, name)
	}
	if _, err := h.lookup(name); err != nil {
		return err
	}
	h.goLoad(func(ctx context.Context) {
		h.connection.Retry(ctx)
		h.gateMonthly(h.monthly.ForceRefresh)
	})
	return nil
}

// gateMonthly starts load when Spotify is connected and otherwise settles the
// slice with the connect prompt, without touching the network.
func (h *HomeScreen) gateMonthly(load func(context.Context)) {
	if h.connected() {
		h.goLoad(load)
		return
	}
	if h.monthly.Fail(h.deps.Defaults.Copy.ConnectSpotify) {
		h.logger.Debug("Monthly playlist gated on Spotify connection")
	}
}

// connected treats a failed status check the same as a disconnected account.
func (h *HomeScreen) connected() bool {
	state, ok := h.connection.Value()
	return ok && state.Connected
}

func (h *HomeScreen) fetchMonthlyPlaylist(ctx context.Context) (*domain.Playlist, error) {
	pl, err := h.deps.Remote.FetchCuratedPlaylist(ctx, h.profile, h.genres)
	if err != nil || pl == nil {
		return pl, err
	}
	// Keep the last good playlist for the next activation's instant preview.
	if err := cache.PutJSON(ctx, h.deps.Cache, constants.SliceKeys.CachedPlaylist, *pl, cache.Indefinite); err != nil {
		h.logger.Warn("Failed to store cached playlist", zap.Error(err))
	}
	return pl, nil
}
