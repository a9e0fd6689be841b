// Package remote composes the backend, the music service and the optional
// LLM narrator into the single data source the orchestrator talks to.
package remote

import (
	"context"

	"github.com/kapu/astrofm-go/internal/domain"
	"go.uber.org/zap"
)

// DataSource is every remote capability a screen can ask for. Implementations
// return TransportError or ServiceError and never retry.
type DataSource interface {
	FetchDailyNarrative(ctx context.Context, p domain.Profile) (*domain.DailyNarrative, error)
	FetchDailyAlignment(ctx context.Context, p domain.Profile) (*domain.Alignment, error)
	FetchUserSonification(ctx context.Context, p domain.Profile) (*domain.Sonification, error)
	FetchSeasonalGuidance(ctx context.Context, p domain.Profile) (*domain.SeasonalGuidance, error)
	FetchCuratedPlaylist(ctx context.Context, p domain.Profile, genres []string) (*domain.Playlist, error)
	GeneratePlaylist(ctx context.Context, req domain.PlaylistRequest) (*domain.Playlist, error)
	FetchConnectionStatus(ctx context.Context) (domain.ConnectionState, error)
	CreateRemotePlaylist(ctx context.Context, tracks []domain.Track, name, description string) (*domain.PlaylistCreation, error)
	OpenExternal(ctx context.Context, url string) error
}

// Backend is the Astro.FM backend API.
type Backend interface {
	FetchDailyNarrative(ctx context.Context, p domain.Profile) (*domain.DailyNarrative, error)
	FetchDailyAlignment(ctx context.Context, p domain.Profile) (*domain.Alignment, error)
	FetchUserSonification(ctx context.Context, p domain.Profile) (*domain.Sonification, error)
	FetchSeasonalGuidance(ctx context.Context, p domain.Profile) (*domain.SeasonalGuidance, error)
	FetchCuratedPlaylist(ctx context.Context, p domain.Profile, genres []string) (*domain.Playlist, error)
	GeneratePlaylist(ctx context.Context, req domain.PlaylistRequest) (*domain.Playlist, error)
}

// Music is the OAuth-backed music service.
type Music interface {
	FetchConnectionStatus(ctx context.Context) (domain.ConnectionState, error)
	CreateRemotePlaylist(ctx context.Context, tracks []domain.Track, name, description string) (*domain.PlaylistCreation, error)
	OpenExternal(ctx context.Context, url string) error
}

// Narrator writes readings without the backend.
type Narrator interface {
	FetchDailyNarrative(ctx context.Context, p domain.Profile) (*domain.DailyNarrative, error)
	FetchSeasonalGuidance(ctx context.Context, p domain.Profile) (*domain.SeasonalGuidance, error)
}

type Source struct {
	backend  Backend
	music    Music
	narrator Narrator
	logger   *zap.Logger
}

var _ DataSource = (*Source)(nil)

// NewSource wires the collaborators. narrator may be nil, in which case the
// backend writes readings too.
func NewSource(backend Backend, music Music, narrator Narrator, logger *zap.Logger) *Source {
	return &Source{backend: backend, music: music, narrator: narrator, logger: logger}
}

func (s *Source) FetchDailyNarrative(ctx context.Context, p domain.Profile) (*domain.DailyNarrative, error) {
	if s.narrator != nil {
		return s.narrator.FetchDailyNarrative(ctx, p)
	}
	return s.backend.FetchDailyNarrative(ctx, p)
}

func (s *Source) FetchDailyAlignment(ctx context.Context, p domain.Profile) (*domain.Alignment, error) {
	return s.backend.FetchDailyAlignment(ctx, p)
}

func (s *Source) FetchUserSonification(ctx context.Context, p domain.Profile) (*domain.Sonification, error) {
	return s.backend.FetchUserSonification(ctx, p)
}

func (s *Source) FetchSeasonalGuidance(ctx context.Context, p domain.Profile) (*domain.SeasonalGuidance, error) {
	if s.narrator != nil {
		return s.narrator.FetchSeasonalGuidance(ctx, p)
	}
	return s.backend.FetchSeasonalGuidance(ctx, p)
}

func (s *Source) FetchCuratedPlaylist(ctx context.Context, p domain.Profile, genres []string) (*domain.Playlist, error) {
	return s.backend.FetchCuratedPlaylist(ctx, p, genres)
}

func (s *Source) GeneratePlaylist(ctx context.Context, req domain.PlaylistRequest) (*domain.Playlist, error) {
	return s.backend.GeneratePlaylist(ctx, req)
}

func (s *Source) FetchConnectionStatus(ctx context.Context) (domain.ConnectionState, error) {
	return s.music.FetchConnectionStatus(ctx)
}

func (s *Source) CreateRemotePlaylist(ctx context.Context, tracks []domain.Track, name, description string) (*domain.PlaylistCreation, error) {
	s.logger.Info("Creating remote playlist", zap.String("name", name), zap.Int("tracks", len(tracks)))
	return s.music.CreateRemotePlaylist(ctx, tracks, name, description)
}

func (s *Source) OpenExternal(ctx context.Context, url string) error {
	return s.music.OpenExternal(ctx, url)
}
