package cache

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kapu/astrofm-go/internal/service/storage"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type alignment struct {
	Score          int    `json:"score"`
	DominantEnergy string `json:"dominantEnergy"`
}

type testClock struct {
	now time.Time
}

func (c *testClock) Clock(loc *time.Location) Clock {
	return Clock{Now: func() time.Time { return c.now }, Location: loc}
}

func newKVStore(t *testing.T, clk *testClock) (*KVStore, *storage.MemoryStore) {
	t.Helper()
	kv := storage.NewMemoryStore()
	return NewKVStore(kv, clk.Clock(time.UTC), zap.NewNop()), kv
}

func TestKVStoreRepeatedGetReturnsSameValue(t *testing.T) {
	clk := &testClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	store, _ := newKVStore(t, clk)
	ctx := context.Background()

	if err := PutJSON(ctx, store, "daily_alignment", alignment{Score: 82, DominantEnergy: "Fire"}, SameDay); err != nil {
		t.Fatal(err)
	}

	first, _, err := GetJSON[alignment](ctx, store, "daily_alignment")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, _, err := GetJSON[alignment](ctx, store, "daily_alignment")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first != second || first.Score != 82 {
		t.Fatalf("expected identical reads, got %+v and %+v", first, second)
	}
}

func TestKVStoreSameDayExpiresNextCalendarDay(t *testing.T) {
	clk := &testClock{now: time.Date(2026, 10, 14, 23, 59, 0, 0, time.UTC)}
	store, kv := newKVStore(t, clk)
	ctx := context.Background()

	if err := store.Put(ctx, "daily_alignment", []byte(`{"score":82}`), SameDay); err != nil {
		t.Fatal(err)
	}

	clk.now = clk.now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "daily_alignment"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss on next calendar day, got %v", err)
	}

	if _, err := kv.Load(ctx, "cache:daily_alignment"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected lazy eviction, got %v", err)
	}
}

func TestKVStoreSameMonthAndIndefinite(t *testing.T) {
	clk := &testClock{now: time.Date(2026, 10, 3, 12, 0, 0, 0, time.UTC)}
	store, _ := newKVStore(t, clk)
	ctx := context.Background()

	if err := store.Put(ctx, "seasonal_guidance", []byte(`{}`), SameMonth); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "cached_playlist", []byte(`{}`), Indefinite); err != nil {
		t.Fatal(err)
	}

	clk.now = time.Date(2026, 10, 31, 23, 0, 0, 0, time.UTC)
	if _, err := store.Get(ctx, "seasonal_guidance"); err != nil {
		t.Fatalf("expected hit within month, got %v", err)
	}

	clk.now = time.Date(2026, 11, 1, 0, 0, 1, 0, time.UTC)
	if _, err := store.Get(ctx, "seasonal_guidance"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss next month, got %v", err)
	}

	clk.now = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := store.Get(ctx, "cached_playlist"); err != nil {
		t.Fatalf("indefinite entry should never expire, got %v", err)
	}
}

func TestKVStoreCalendarUsesConfiguredZone(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	// 20:00 LA on Oct 14 is 03:00 UTC Oct 15.
	clk := &testClock{now: time.Date(2026, 10, 14, 20, 0, 0, 0, la)}
	kv := storage.NewMemoryStore()
	store := NewKVStore(kv, clk.Clock(la), zap.NewNop())
	ctx := context.Background()

	if err := store.Put(ctx, "daily_narrative", []byte(`{}`), SameDay); err != nil {
		t.Fatal(err)
	}
	clk.now = time.Date(2026, 10, 14, 23, 30, 0, 0, la)
	if _, err := store.Get(ctx, "daily_narrative"); err != nil {
		t.Fatalf("expected hit on same LA day, got %v", err)
	}
}

func TestKVStoreCorruptEntryIsMiss(t *testing.T) {
	clk := &testClock{now: time.Now()}
	store, kv := newKVStore(t, clk)
	ctx := context.Background()

	if err := kv.Save(ctx, "cache:sonification", []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "sonification"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss for corrupt entry, got %v", err)
	}
}

func TestKVStoreClear(t *testing.T) {
	clk := &testClock{now: time.Now()}
	store, kv := newKVStore(t, clk)
	ctx := context.Background()

	_ = kv.Save(ctx, "birth_profile", []byte(`{}`))
	_ = store.Put(ctx, "daily_alignment", []byte(`{}`), SameDay)
	_ = store.Put(ctx, "sonification", []byte(`{}`), Indefinite)

	n, err := store.Clear(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cleared entries, got %d", n)
	}
	if _, err := kv.Load(ctx, "birth_profile"); err != nil {
		t.Fatalf("non-cache keys must survive clear: %v", err)
	}
}

func newRedisStore(t *testing.T, clk *testClock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client, clk.Clock(time.UTC), zap.NewNop()), mr
}

func TestRedisStoreRoundTripAndTTL(t *testing.T) {
	clk := &testClock{now: time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)}
	store, mr := newRedisStore(t, clk)
	ctx := context.Background()

	if err := PutJSON(ctx, store, "daily_alignment", alignment{Score: 82, DominantEnergy: "Fire"}, SameDay); err != nil {
		t.Fatal(err)
	}

	got, entry, err := GetJSON[alignment](ctx, store, "daily_alignment")
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 82 || entry.Validity != SameDay {
		t.Fatalf("unexpected entry %+v %+v", got, entry)
	}

	if ttl := mr.TTL("astrofm:cache:daily_alignment"); ttl != 6*time.Hour {
		t.Fatalf("expected TTL to end at midnight, got %v", ttl)
	}
}

func TestRedisStoreIndefiniteHasNoTTL(t *testing.T) {
	clk := &testClock{now: time.Now()}
	store, mr := newRedisStore(t, clk)
	ctx := context.Background()

	if err := store.Put(ctx, "cached_playlist", []byte(`{}`), Indefinite); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("astrofm:cache:cached_playlist"); ttl != 0 {
		t.Fatalf("expected no TTL, got %v", ttl)
	}
}

func TestRedisStoreCalendarCheckIsAuthoritative(t *testing.T) {
	clk := &testClock{now: time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)}
	store, _ := newRedisStore(t, clk)
	ctx := context.Background()

	if err := store.Put(ctx, "daily_alignment", []byte(`{}`), SameDay); err != nil {
		t.Fatal(err)
	}
	// The key still lives in Redis (miniredis time is not advanced) but the
	// calendar day has changed.
	clk.now = time.Date(2026, 10, 15, 0, 0, 1, 0, time.UTC)
	if _, err := store.Get(ctx, "daily_alignment"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestRedisStoreClearAndInvalidate(t *testing.T) {
	clk := &testClock{now: time.Now()}
	store, mr := newRedisStore(t, clk)
	ctx := context.Background()

	_ = store.Put(ctx, "a", []byte(`1`), Indefinite)
	_ = store.Put(ctx, "b", []byte(`2`), Indefinite)
	_ = mr.Set("unrelated", "x")

	if err := store.Invalidate(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after invalidate, got %v", err)
	}

	n, err := store.Clear(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cleared key, got %d", n)
	}
	if !mr.Exists("unrelated") {
		t.Fatalf("clear must not touch keys outside the prefix")
	}
}

func TestClockLocalUsesCalendarZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	clk := &testClock{now: time.Date(2026, 10, 14, 20, 30, 0, 0, time.UTC)}
	got := clk.Clock(tokyo).Local()
	if got.Format(time.DateOnly) != "2026-10-15" || got.Location() != tokyo {
		t.Fatalf("expected Tokyo calendar date, got %v", got)
	}
}

func TestRedisStoreBoundsSlowOperations(t *testing.T) {
	// A listener that accepts connections and never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var conns []net.Conn
	var mu sync.Mutex
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	client := redis.NewClient(&redis.Options{
		Addr:                  ln.Addr().String(),
		MaxRetries:            -1,
		ContextTimeoutEnabled: true,
	})
	t.Cleanup(func() { _ = client.Close() })

	clk := &testClock{now: time.Now()}
	store := NewRedisStoreFromClient(client, clk.Clock(time.UTC), zap.NewNop())
	store.opTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err = store.Get(context.Background(), "daily_alignment")
	if err == nil || errors.Is(err, ErrMiss) {
		t.Fatalf("expected cache error from unresponsive redis, got %v", err)
	}
	var cacheErr *apperrors.CacheError
	if !errors.As(err, &cacheErr) {
		t.Fatalf("expected CacheError, got %T", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("operation not bounded by op timeout, took %v", elapsed)
	}
}

func TestParseValidity(t *testing.T) {
	if v, err := ParseValidity("same-calendar-month"); err != nil || v != SameMonth {
		t.Fatalf("unexpected parse result %v %v", v, err)
	}
	if _, err := ParseValidity("weekly"); err == nil {
		t.Fatalf("expected error for unknown validity")
	}
}
