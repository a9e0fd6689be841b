// Package profile resolves the active user's birth profile and genre
// preferences from persistent storage.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kapu/astrofm-go/internal/config"
	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/service/storage"
	"github.com/kapu/astrofm-go/internal/util"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"go.uber.org/zap"
)

type Resolver struct {
	kv       storage.KV
	defaults *config.Defaults
	logger   *zap.Logger
}

func NewResolver(kv storage.KV, defaults *config.Defaults, logger *zap.Logger) *Resolver {
	return &Resolver{kv: kv, defaults: defaults, logger: logger}
}

// Resolve never fails. A missing, unreadable or invalid stored profile yields
// the fallback profile; only the unexpected cases are logged.
func (r *Resolver) Resolve(ctx context.Context) domain.Profile {
	data, err := r.kv.Load(ctx, constants.StorageKeys.BirthProfile)
	if errors.Is(err, storage.ErrNotFound) {
		return r.defaults.Profile
	}
	if err != nil {
		r.logger.Warn("Failed to read birth profile, using fallback", zap.Error(err))
		return r.defaults.Profile
	}

	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		r.logger.Warn("Stored birth profile is corrupt, using fallback", zap.Error(err))
		return r.defaults.Profile
	}
	if err := p.Validate(); err != nil {
		r.logger.Warn("Stored birth profile is invalid, using fallback", zap.Error(err))
		return r.defaults.Profile
	}
	return p
}

// Stored reports whether a profile has been saved, for tooling that wants to
// show "fallback" next to the resolved value.
func (r *Resolver) Stored(ctx context.Context) bool {
	_, err := r.kv.Load(ctx, constants.StorageKeys.BirthProfile)
	return err == nil
}

// Save replaces the stored profile wholesale.
func (r *Resolver) Save(ctx context.Context, p domain.Profile) error {
	if err := p.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error(), "profile", p)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := r.kv.Save(ctx, constants.StorageKeys.BirthProfile, data); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	r.logger.Info("Birth profile saved", zap.String("timezone", p.Timezone))
	return nil
}

// GenrePreferences returns the stored genres, or the fallback genres when
// none are stored.
func (r *Resolver) GenrePreferences(ctx context.Context) []string {
	data, err := r.kv.Load(ctx, constants.StorageKeys.GenrePreferences)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("Failed to read genre preferences", zap.Error(err))
		}
		return r.fallbackGenres()
	}

	var genres []string
	if err := json.Unmarshal(data, &genres); err != nil || len(genres) == 0 {
		return r.fallbackGenres()
	}
	return genres
}

func (r *Resolver) SaveGenrePreferences(ctx context.Context, genres []string) error {
	cleaned := make([]string, 0, len(genres))
	for _, g := range genres {
		if n := util.Normalize(g); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	cleaned = util.UniqueStrings(cleaned)
	if len(cleaned) == 0 {
		return apperrors.NewValidationError("at least one genre is required", "genres", genres)
	}

	data, err := json.Marshal(cleaned)
	if err != nil {
		return fmt.Errorf("marshal genres: %w", err)
	}
	return r.kv.Save(ctx, constants.StorageKeys.GenrePreferences, data)
}

func (r *Resolver) fallbackGenres() []string {
	return append([]string(nil), r.defaults.Playlist.Genres...)
}
