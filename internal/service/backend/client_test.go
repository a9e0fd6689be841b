package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/util"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"go.uber.org/zap"
)

var testProfile = domain.Profile{
	Datetime:  "1995-03-15T14:30:00",
	Latitude:  37.7749,
	Longitude: -122.4194,
	Timezone:  "America/Los_Angeles",
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret"}, zap.NewNop())
}

func TestFetchDailyAlignment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathDailyAlignment || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("missing api key header, got %q", got)
		}
		var body profileRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Profile != testProfile {
			t.Errorf("unexpected profile %+v", body.Profile)
		}
		_, _ = w.Write([]byte(`{"score":82,"dominantEnergy":"Fire"}`))
	})

	got, err := client.FetchDailyAlignment(context.Background(), testProfile)
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 82 || got.DominantEnergy != "Fire" {
		t.Fatalf("unexpected alignment %+v", got)
	}
}

func TestGeneratePlaylistFillsMood(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"Pisces Sun","tracks":[{"id":"1","features":{"energy":0.9,"valence":0.9}}]}`))
	})

	got, err := client.GeneratePlaylist(context.Background(), domain.PlaylistRequest{Profile: testProfile})
	if err != nil {
		t.Fatal(err)
	}
	if got.Mood != "Upbeat Party" {
		t.Fatalf("expected mood from features, got %q", got.Mood)
	}
}

func TestServiceErrorFromBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"Birth time is outside the supported range"}`))
	})

	_, err := client.FetchUserSonification(context.Background(), testProfile)
	if !apperrors.IsService(err) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if msg := apperrors.UserMessage(err); msg != "Birth time is outside the supported range" {
		t.Fatalf("expected verbatim message, got %q", msg)
	}
}

func TestMessageFieldAlsoMapsToServiceError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"Readings are paused for maintenance"}`))
	})

	_, err := client.FetchDailyNarrative(context.Background(), testProfile)
	if !apperrors.IsService(err) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
}

func TestBareStatusIsTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "<html>bad gateway</html>", http.StatusBadGateway)
	})

	_, err := client.FetchSeasonalGuidance(context.Background(), testProfile)
	if !apperrors.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestMalformedResponseIsTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"score":`))
	})

	_, err := client.FetchDailyAlignment(context.Background(), testProfile)
	if !apperrors.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestUnreachableHostIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(Config{BaseURL: url}, zap.NewNop())
	_, err := client.FetchDailyAlignment(context.Background(), testProfile)
	if !apperrors.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestCircuitOpensAndFailsFast(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = client.FetchDailyAlignment(ctx, testProfile)
	}
	if client.CircuitStatus().State != util.CircuitStateOpen {
		t.Fatalf("expected circuit to be open, got %v", client.CircuitStatus().State)
	}

	_, err := client.FetchDailyAlignment(ctx, testProfile)
	if !apperrors.IsTransport(err) {
		t.Fatalf("expected TransportError while open, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("open circuit must not reach the server, got %d calls", calls.Load())
	}
}

func TestRequestsAreDatedInConfiguredZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	// 20:30 UTC on Oct 14 is already Oct 15 in Tokyo.
	now := func() time.Time { return time.Date(2026, 10, 14, 20, 30, 0, 0, time.UTC).In(tokyo) }

	var dates []string
	var month string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathCuratedPlaylist:
			var body curatedRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			month = body.Month
			_, _ = w.Write([]byte(`{"name":"October","tracks":[]}`))
		default:
			var body profileRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			dates = append(dates, body.Date)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)
	client := NewClient(Config{BaseURL: srv.URL, Now: now}, zap.NewNop())
	ctx := context.Background()

	if _, err := client.FetchDailyAlignment(ctx, testProfile); err != nil {
		t.Fatal(err)
	}
	if _, err := client.FetchSeasonalGuidance(ctx, testProfile); err != nil {
		t.Fatal(err)
	}
	if _, err := client.FetchCuratedPlaylist(ctx, testProfile, nil); err != nil {
		t.Fatal(err)
	}

	if len(dates) != 2 || dates[0] != "2026-10-15" || dates[1] != "2026-10-15" {
		t.Fatalf("expected Tokyo date on daily requests, got %v", dates)
	}
	if month != "2026-10" {
		t.Fatalf("unexpected month %q", month)
	}
}
