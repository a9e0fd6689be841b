package orchestrator

import (
	"context"
	"errors"
)

var ErrUnknownScreen = errors.New("orchestrator: unknown screen")

// Screen is what the presentation layer drives.
type Screen interface {
	ID() string
	Screen() string
	Alive() bool
	SliceNames() []string
	Activate(ctx context.Context)
	Snapshot() Snapshot
	Subscribe() (<-chan Snapshot, func())
	Retry(ctx context.Context, name string) error
	ForceRefresh(ctx context.Context, name string) error
	Wait()
	Close()
}

// Composer is implemented by screens that build and save playlists.
type Composer interface {
	Generate(ctx context.Context) error
	Save(ctx context.Context) error
}

var (
	_ Screen   = (*HomeScreen)(nil)
	_ Screen   = (*PlaylistScreen)(nil)
	_ Composer = (*PlaylistScreen)(nil)
)

// NewScreen builds an inactive screen by name.
func NewScreen(name string, deps Deps) (Screen, error) {
	switch name {
	case ScreenHome:
		return NewHomeScreen(deps), nil
	case ScreenPlaylist:
		return NewPlaylistScreen(deps), nil
	default:
		return nil, ErrUnknownScreen
	}
}
