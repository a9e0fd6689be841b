package domain

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata"
)

// BirthDatetimeLayout is the wall-clock layout of Profile.Datetime.
const BirthDatetimeLayout = "2006-01-02T15:04:05"

// Profile holds the birth data every chart-dependent slice needs. It is a
// value: callers replace it wholesale instead of editing fields in place.
type Profile struct {
	Datetime  string  `json:"datetime" toml:"datetime"`
	Latitude  float64 `json:"latitude" toml:"latitude"`
	Longitude float64 `json:"longitude" toml:"longitude"`
	Timezone  string  `json:"timezone" toml:"timezone"`
}

// BirthTime parses Datetime as local wall time in Timezone.
func (p Profile) BirthTime() (time.Time, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
	}
	t, err := time.ParseInLocation(BirthDatetimeLayout, p.Datetime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q: %w", p.Datetime, err)
	}
	return t, nil
}

func (p Profile) Validate() error {
	if _, err := p.BirthTime(); err != nil {
		return err
	}
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", p.Latitude)
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", p.Longitude)
	}
	return nil
}

// Fingerprint identifies the chart for cache keys that must change when the
// user edits birth data.
func (p Profile) Fingerprint() string {
	return fmt.Sprintf("%s@%.4f,%.4f@%s", p.Datetime, p.Latitude, p.Longitude, p.Timezone)
}
