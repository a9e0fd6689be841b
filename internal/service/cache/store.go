// Package cache stores previously fetched slice results with a calendar
// validity window. Expired entries read as misses and are evicted lazily.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMiss signals "fall through to the remote". It is not a failure.
var ErrMiss = errors.New("cache: miss")

type Entry struct {
	Key      string          `json:"key"`
	Payload  json.RawMessage `json:"payload"`
	Validity Validity        `json:"validity"`
	StoredAt time.Time       `json:"stored_at"`
}

type Store interface {
	// Get returns ErrMiss when the key is absent or its window has elapsed.
	Get(ctx context.Context, key string) (*Entry, error)
	// Put overwrites unconditionally.
	Put(ctx context.Context, key string, payload []byte, validity Validity) error
	Invalidate(ctx context.Context, key string) error
}

// Clock supplies "now" and the zone that calendar windows are measured in.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c Clock) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Local is the current time in the calendar zone. Requests that name "today"
// use it so the dates they send match the windows entries are cached for.
func (c Clock) Local() time.Time {
	return c.now().In(c.location())
}

// GetJSON decodes a fresh entry into T.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, *Entry, error) {
	var value T
	entry, err := s.Get(ctx, key)
	if err != nil {
		return value, nil, err
	}
	if err := json.Unmarshal(entry.Payload, &value); err != nil {
		return value, nil, err
	}
	return value, entry, nil
}

// PutJSON encodes value and stores it under key.
func PutJSON[T any](ctx context.Context, s Store, key string, value T, validity Validity) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, payload, validity)
}
