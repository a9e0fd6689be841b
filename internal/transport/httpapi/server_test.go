package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kapu/astrofm-go/internal/orchestrator"
	"github.com/kapu/astrofm-go/internal/slice"
	"go.uber.org/zap"
)

type fakeScreen struct {
	id   string
	name string

	mu        sync.Mutex
	alive     bool
	activated int
	retried   []string
	refreshed []string
	generated int
	saveErr   error
	subs      []chan orchestrator.Snapshot
}

func newFakeScreen(id, name string) *fakeScreen {
	return &fakeScreen{id: id, name: name, alive: true}
}

func (f *fakeScreen) ID() string           { return f.id }
func (f *fakeScreen) Screen() string       { return f.name }
func (f *fakeScreen) SliceNames() []string { return []string{"daily_alignment"} }

func (f *fakeScreen) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeScreen) Activate(context.Context) {
	f.mu.Lock()
	f.activated++
	f.mu.Unlock()
}

func (f *fakeScreen) Snapshot() orchestrator.Snapshot {
	return orchestrator.Snapshot{
		SessionID: f.id,
		Screen:    f.name,
		Alive:     f.Alive(),
		Slices: map[string]slice.View{
			"daily_alignment": {Status: slice.StatusReady, Value: map[string]any{"score": 82}},
		},
	}
}

func (f *fakeScreen) Subscribe() (<-chan orchestrator.Snapshot, func()) {
	ch := make(chan orchestrator.Snapshot, 4)
	ch <- f.Snapshot()
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeScreen) Retry(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "daily_alignment" {
		return orchestrator.ErrUnknownSlice
	}
	f.retried = append(f.retried, name)
	return nil
}

func (f *fakeScreen) ForceRefresh(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, name)
	return nil
}

func (f *fakeScreen) Wait() {}

func (f *fakeScreen) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive {
		return
	}
	f.alive = false
	for _, ch := range f.subs {
		close(ch)
	}
}

type fakeComposer struct {
	*fakeScreen
}

func (c fakeComposer) Generate(context.Context) error {
	c.mu.Lock()
	c.generated++
	c.mu.Unlock()
	return nil
}

func (c fakeComposer) Save(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveErr
}

type fakeAuth struct {
	mu         sync.Mutex
	configured bool
	codes      []string
	err        error
}

func (a *fakeAuth) Configured() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.configured
}

func (a *fakeAuth) AuthCodeURL(state string) string {
	return "https://accounts.spotify.com/authorize?state=" + state
}

func (a *fakeAuth) Exchange(_ context.Context, code string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.codes = append(a.codes, code)
	return a.err
}

func (a *fakeAuth) exchanged() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.codes...)
}

// counts returns activations, retries, refreshes and generates.
func (f *fakeScreen) counts() (int, int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activated, len(f.retried), len(f.refreshed), f.generated
}

type harness struct {
	mu       sync.Mutex
	server   *Server
	http     *httptest.Server
	registry *Registry
	screens  map[string]*fakeScreen
	auth     *fakeAuth
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{screens: make(map[string]*fakeScreen), auth: &fakeAuth{configured: true}}
	n := 0
	factory := func(name string) (orchestrator.Screen, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		n++
		id := name + "-" + string(rune('0'+n))
		fs := newFakeScreen(id, name)
		h.screens[id] = fs
		switch name {
		case orchestrator.ScreenHome:
			return fs, nil
		case orchestrator.ScreenPlaylist:
			return fakeComposer{fs}, nil
		}
		return nil, orchestrator.ErrUnknownScreen
	}
	h.registry = NewRegistry(factory, zap.NewNop())
	checks := map[string]HealthCheck{"backend": func(context.Context) error { return nil }}
	h.server = NewServer(":0", h.registry, h.auth, checks, zap.NewNop())
	h.http = httptest.NewServer(h.server.Handler())
	t.Cleanup(h.http.Close)
	return h
}

func (h *harness) screen(id string) *fakeScreen {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.screens[id]
}

func (h *harness) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.http.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) create(t *testing.T, screen string) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/screens/"+screen)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body.SessionID
}

func TestCreateAndGetSession(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, orchestrator.ScreenHome)

	if activated, _, _, _ := h.screen(id).counts(); activated != 1 {
		t.Fatalf("expected screen activated once")
	}

	resp := h.do(t, http.MethodGet, "/sessions/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snap orchestrator.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Slices["daily_alignment"].Status != slice.StatusReady {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestUnknownScreenAndSession(t *testing.T) {
	h := newHarness(t)
	if resp := h.do(t, http.MethodPost, "/screens/settings"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown screen, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodGet, "/sessions/nope"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func TestSliceIntents(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, orchestrator.ScreenHome)

	if resp := h.do(t, http.MethodPost, "/sessions/"+id+"/slices/daily_alignment/retry"); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodPost, "/sessions/"+id+"/slices/daily_alignment/refresh"); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodPost, "/sessions/"+id+"/slices/horoscope/retry"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown slice, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodPost, "/sessions/"+id+"/slices/daily_alignment/explode"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", resp.StatusCode)
	}

	if _, retried, refreshed, _ := h.screen(id).counts(); retried != 1 || refreshed != 1 {
		t.Fatalf("unexpected intents retried=%d refreshed=%d", retried, refreshed)
	}
}

func TestGenerateRequiresComposer(t *testing.T) {
	h := newHarness(t)
	home := h.create(t, orchestrator.ScreenHome)
	if resp := h.do(t, http.MethodPost, "/sessions/"+home+"/generate"); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on home screen, got %d", resp.StatusCode)
	}

	pl := h.create(t, orchestrator.ScreenPlaylist)
	if resp := h.do(t, http.MethodPost, "/sessions/"+pl+"/generate"); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if _, _, _, generated := h.screen(pl).counts(); generated != 1 {
		t.Fatalf("expected one generate intent")
	}
}

func TestSaveBeforeActivationConflicts(t *testing.T) {
	h := newHarness(t)
	pl := h.create(t, orchestrator.ScreenPlaylist)
	fs := h.screen(pl)
	fs.mu.Lock()
	fs.saveErr = orchestrator.ErrNotActivated
	fs.mu.Unlock()

	if resp := h.do(t, http.MethodPost, "/sessions/"+pl+"/save"); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestDeleteClosesSession(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, orchestrator.ScreenHome)

	if resp := h.do(t, http.MethodDelete, "/sessions/"+id); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if h.screen(id).Alive() {
		t.Fatalf("screen should be closed")
	}
	if resp := h.do(t, http.MethodDelete, "/sessions/"+id); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", resp.StatusCode)
	}
}

func TestStreamDeliversSnapshotsAndClosesWithSession(t *testing.T) {
	h := newHarness(t)
	id := h.create(t, orchestrator.ScreenHome)

	wsURL := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap orchestrator.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.SessionID != id {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	h.registry.Remove(id)

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("expected normal closure, got %v", err)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	degraded := NewServer(":0", h.registry, nil, map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}, zap.NewNop())
	rec := httptest.NewRecorder()
	degraded.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with a failing dependency, got %d", rec.Code)
	}
}

func TestSpotifyOAuthFlow(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/auth/spotify")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	state := loc[strings.Index(loc, "state=")+len("state="):]

	if resp := h.do(t, http.MethodGet, "/auth/spotify/callback?state=forged&code=abc"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown state, got %d", resp.StatusCode)
	}
	if resp := h.do(t, http.MethodGet, "/auth/spotify/callback?state="+state+"&code=abc"); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if codes := h.auth.exchanged(); len(codes) != 1 || codes[0] != "abc" {
		t.Fatalf("expected code exchanged, got %v", codes)
	}
	if resp := h.do(t, http.MethodGet, "/auth/spotify/callback?state="+state+"&code=abc"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("state must be single use, got %d", resp.StatusCode)
	}
}

func TestSpotifyOAuthUnconfigured(t *testing.T) {
	h := newHarness(t)
	h.auth.mu.Lock()
	h.auth.configured = false
	h.auth.mu.Unlock()
	if resp := h.do(t, http.MethodGet, "/auth/spotify"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestRegistrySweepsIdleSessions(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	fs := newFakeScreen("s1", orchestrator.ScreenHome)
	streamed := newFakeScreen("s2", orchestrator.ScreenHome)
	screens := []*fakeScreen{fs, streamed}
	r := NewRegistry(func(string) (orchestrator.Screen, error) {
		s := screens[0]
		screens = screens[1:]
		return s, nil
	}, zap.NewNop())
	r.now = func() time.Time { return now }

	_, _ = r.Create(context.Background(), orchestrator.ScreenHome)
	_, _ = r.Create(context.Background(), orchestrator.ScreenHome)
	detach := r.attach("s2")
	defer detach()

	now = now.Add(r.idle + time.Minute)
	if n := r.Sweep(); n != 1 {
		t.Fatalf("expected one idle session swept, got %d", n)
	}
	if fs.Alive() {
		t.Fatalf("idle session should be closed")
	}
	if !streamed.Alive() {
		t.Fatalf("session with an open stream must survive")
	}
	if r.Len() != 1 {
		t.Fatalf("expected one remaining session, got %d", r.Len())
	}
}
