package cache

import (
	"fmt"
	"time"

	"github.com/kapu/astrofm-go/internal/util"
)

// Validity is how long a cached payload stays fresh.
type Validity string

const (
	SameDay    Validity = "same-calendar-day"
	SameMonth  Validity = "same-calendar-month"
	Indefinite Validity = "indefinite"
)

func ParseValidity(s string) (Validity, error) {
	switch v := Validity(s); v {
	case SameDay, SameMonth, Indefinite:
		return v, nil
	default:
		return "", fmt.Errorf("unknown validity %q", s)
	}
}

// Fresh reports whether an entry stored at storedAt is still valid at now,
// with calendar boundaries evaluated in loc.
func (v Validity) Fresh(storedAt, now time.Time, loc *time.Location) bool {
	switch v {
	case SameDay:
		return util.SameDay(storedAt, now, loc)
	case SameMonth:
		return util.SameMonth(storedAt, now, loc)
	case Indefinite:
		return true
	default:
		return false
	}
}

// ExpiresAt is the first instant the entry is no longer fresh. Zero for
// Indefinite.
func (v Validity) ExpiresAt(storedAt time.Time, loc *time.Location) time.Time {
	switch v {
	case SameDay:
		return util.EndOfDay(storedAt, loc)
	case SameMonth:
		return util.EndOfMonth(storedAt, loc)
	default:
		return time.Time{}
	}
}
