package remote

import (
	"context"
	"testing"

	"github.com/kapu/astrofm-go/internal/domain"
	"go.uber.org/zap"
)

type fakeBackend struct {
	narratives int
	seasonal   int
}

func (f *fakeBackend) FetchDailyNarrative(context.Context, domain.Profile) (*domain.DailyNarrative, error) {
	f.narratives++
	return &domain.DailyNarrative{Generator: "backend"}, nil
}
func (f *fakeBackend) FetchDailyAlignment(context.Context, domain.Profile) (*domain.Alignment, error) {
	return &domain.Alignment{Score: 82}, nil
}
func (f *fakeBackend) FetchUserSonification(context.Context, domain.Profile) (*domain.Sonification, error) {
	return &domain.Sonification{SunSign: "Pisces"}, nil
}
func (f *fakeBackend) FetchSeasonalGuidance(context.Context, domain.Profile) (*domain.SeasonalGuidance, error) {
	f.seasonal++
	return &domain.SeasonalGuidance{Guidance: "backend"}, nil
}
func (f *fakeBackend) FetchCuratedPlaylist(context.Context, domain.Profile, []string) (*domain.Playlist, error) {
	return &domain.Playlist{Name: "curated"}, nil
}
func (f *fakeBackend) GeneratePlaylist(context.Context, domain.PlaylistRequest) (*domain.Playlist, error) {
	return &domain.Playlist{Name: "generated"}, nil
}

type fakeMusic struct {
	opened string
}

func (f *fakeMusic) FetchConnectionStatus(context.Context) (domain.ConnectionState, error) {
	return domain.ConnectionState{Connected: true}, nil
}
func (f *fakeMusic) CreateRemotePlaylist(context.Context, []domain.Track, string, string) (*domain.PlaylistCreation, error) {
	return &domain.PlaylistCreation{ID: "p", URL: "https://open.spotify.com/playlist/p"}, nil
}
func (f *fakeMusic) OpenExternal(_ context.Context, url string) error {
	f.opened = url
	return nil
}

type fakeNarrator struct{}

func (fakeNarrator) FetchDailyNarrative(context.Context, domain.Profile) (*domain.DailyNarrative, error) {
	return &domain.DailyNarrative{Generator: "llm"}, nil
}
func (fakeNarrator) FetchSeasonalGuidance(context.Context, domain.Profile) (*domain.SeasonalGuidance, error) {
	return &domain.SeasonalGuidance{Guidance: "llm"}, nil
}

func TestSourceRoutesReadingsToBackendByDefault(t *testing.T) {
	b := &fakeBackend{}
	src := NewSource(b, &fakeMusic{}, nil, zap.NewNop())
	ctx := context.Background()

	n, _ := src.FetchDailyNarrative(ctx, domain.Profile{})
	g, _ := src.FetchSeasonalGuidance(ctx, domain.Profile{})
	if n.Generator != "backend" || g.Guidance != "backend" || b.narratives != 1 || b.seasonal != 1 {
		t.Fatalf("expected backend readings, got %+v %+v", n, g)
	}
}

func TestSourceRoutesReadingsToNarrator(t *testing.T) {
	b := &fakeBackend{}
	src := NewSource(b, &fakeMusic{}, fakeNarrator{}, zap.NewNop())
	ctx := context.Background()

	n, _ := src.FetchDailyNarrative(ctx, domain.Profile{})
	g, _ := src.FetchSeasonalGuidance(ctx, domain.Profile{})
	if n.Generator != "llm" || g.Guidance != "llm" {
		t.Fatalf("expected narrator readings, got %+v %+v", n, g)
	}
	if b.narratives != 0 || b.seasonal != 0 {
		t.Fatalf("backend must not be asked for readings")
	}
	if a, _ := src.FetchDailyAlignment(ctx, domain.Profile{}); a.Score != 82 {
		t.Fatalf("alignment still comes from the backend")
	}
}

func TestSourceMusicCalls(t *testing.T) {
	m := &fakeMusic{}
	src := NewSource(&fakeBackend{}, m, nil, zap.NewNop())
	ctx := context.Background()

	state, _ := src.FetchConnectionStatus(ctx)
	created, _ := src.CreateRemotePlaylist(ctx, nil, "n", "d")
	_ = src.OpenExternal(ctx, created.URL)
	if !state.Connected || m.opened != created.URL {
		t.Fatalf("music calls not delegated: %+v %q", state, m.opened)
	}
}
