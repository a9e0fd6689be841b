package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/service/cache"
)

// chartNamespace scopes profile-derived cache keys.
var chartNamespace = uuid.MustParse("6f1c3c1e-8d4b-5a53-9a55-2d0f0f5a7a10")

// chartKey derives a stable per-profile key so an edited birth profile never
// reads another chart's cached data.
func chartKey(base string, p domain.Profile) string {
	return base + ":" + uuid.NewSHA1(chartNamespace, []byte(p.Fingerprint())).String()
}

// profileBoundKeys are cached under fixed keys but depend on the profile.
var profileBoundKeys = []string{
	constants.SliceKeys.DailyNarrative,
	constants.SliceKeys.DailyAlignment,
	constants.SliceKeys.SeasonalGuidance,
	constants.SliceKeys.MonthlyPlaylist,
}

// InvalidateProfileData drops cached entries derived from the previous birth
// profile. Call it after saving a new profile.
func InvalidateProfileData(ctx context.Context, store cache.Store, previous domain.Profile) error {
	keys := append([]string{chartKey(constants.SliceKeys.Sonification, previous)}, profileBoundKeys...)
	for _, key := range keys {
		if err := store.Invalidate(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
