package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/kapu/astrofm-go/internal/config"
	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/service/storage"
	"go.uber.org/zap"
)

type failingKV struct{}

func (failingKV) Load(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingKV) Save(context.Context, string, []byte) error   { return errors.New("disk gone") }
func (failingKV) Delete(context.Context, string) error         { return errors.New("disk gone") }

var fallbackProfile = domain.Profile{
	Datetime:  "1995-03-15T14:30:00",
	Latitude:  37.7749,
	Longitude: -122.4194,
	Timezone:  "America/Los_Angeles",
}

func TestResolveFallsBackWhenAbsent(t *testing.T) {
	r := NewResolver(storage.NewMemoryStore(), config.MustDefaults(), zap.NewNop())

	got := r.Resolve(context.Background())
	if got != fallbackProfile {
		t.Fatalf("expected fallback profile, got %+v", got)
	}
	if r.Stored(context.Background()) {
		t.Fatalf("nothing should be stored")
	}
}

func TestResolveFallsBackOnReadError(t *testing.T) {
	r := NewResolver(failingKV{}, config.MustDefaults(), zap.NewNop())
	if got := r.Resolve(context.Background()); got != fallbackProfile {
		t.Fatalf("expected fallback profile, got %+v", got)
	}
}

func TestResolveFallsBackOnCorruptOrInvalidProfile(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	r := NewResolver(kv, config.MustDefaults(), zap.NewNop())

	_ = kv.Save(ctx, constants.StorageKeys.BirthProfile, []byte("{broken"))
	if got := r.Resolve(ctx); got != fallbackProfile {
		t.Fatalf("corrupt: expected fallback, got %+v", got)
	}

	_ = kv.Save(ctx, constants.StorageKeys.BirthProfile,
		[]byte(`{"datetime":"1990-01-01T00:00:00","latitude":120,"longitude":0,"timezone":"UTC"}`))
	if got := r.Resolve(ctx); got != fallbackProfile {
		t.Fatalf("invalid: expected fallback, got %+v", got)
	}
}

func TestSaveReplacesProfile(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(storage.NewMemoryStore(), config.MustDefaults(), zap.NewNop())

	p := domain.Profile{Datetime: "1988-07-23T06:15:00", Latitude: 51.5074, Longitude: -0.1278, Timezone: "Europe/London"}
	if err := r.Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	if got := r.Resolve(ctx); got != p {
		t.Fatalf("expected saved profile, got %+v", got)
	}

	if err := r.Save(ctx, domain.Profile{Datetime: "nope", Timezone: "UTC"}); err == nil {
		t.Fatalf("expected validation error")
	}
	if got := r.Resolve(ctx); got != p {
		t.Fatalf("failed save must not replace the profile, got %+v", got)
	}
}

func TestGenrePreferences(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(storage.NewMemoryStore(), config.MustDefaults(), zap.NewNop())

	if got := r.GenrePreferences(ctx); len(got) != 3 || got[0] != "ambient" {
		t.Fatalf("expected fallback genres, got %v", got)
	}

	if err := r.SaveGenrePreferences(ctx, []string{" Jazz ", "jazz", "", "Lo-Fi"}); err != nil {
		t.Fatal(err)
	}
	got := r.GenrePreferences(ctx)
	if len(got) != 2 || got[0] != "jazz" || got[1] != "lo-fi" {
		t.Fatalf("unexpected genres %v", got)
	}

	if err := r.SaveGenrePreferences(ctx, []string{" "}); err == nil {
		t.Fatalf("expected error for empty genre list")
	}
}
