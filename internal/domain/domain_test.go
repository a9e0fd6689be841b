package domain

import (
	"testing"
	"time"
)

func TestSunSignBoundaries(t *testing.T) {
	cases := []struct {
		date string
		want ZodiacSign
	}{
		{"1995-03-15", Pisces},
		{"1995-03-21", Aries},
		{"2000-01-01", Capricorn},
		{"2000-01-19", Capricorn},
		{"2000-01-20", Aquarius},
		{"2000-12-21", Sagittarius},
		{"2000-12-22", Capricorn},
		{"2000-07-23", Leo},
	}
	for _, tc := range cases {
		d, err := time.Parse("2006-01-02", tc.date)
		if err != nil {
			t.Fatal(err)
		}
		if got := SunSign(d); got != tc.want {
			t.Errorf("SunSign(%s) = %s, want %s", tc.date, got, tc.want)
		}
	}
}

func TestParseZodiacSign(t *testing.T) {
	if s, ok := ParseZodiacSign(" sCoRpIo "); !ok || s != Scorpio {
		t.Fatalf("expected Scorpio, got %q %v", s, ok)
	}
	if _, ok := ParseZodiacSign("Ophiuchus"); ok {
		t.Fatalf("unexpected match")
	}
	if Leo.Element() != "Fire" || Pisces.Element() != "Water" {
		t.Fatalf("unexpected elements")
	}
}

func TestClassifyMood(t *testing.T) {
	if got := ClassifyMood(AudioFeatures{Energy: 0.8, Valence: 0.9}).Name; got != "Upbeat Party" {
		t.Fatalf("unexpected mood %q", got)
	}
	if got := ClassifyMood(AudioFeatures{Energy: 0.2, Valence: 0.2, Acousticness: 0.9}).Name; got != "Reflective & Melancholy (Acoustic)" {
		t.Fatalf("unexpected mood %q", got)
	}
	if got := ClassifyMood(AudioFeatures{Energy: 0.7, Valence: 0.3}).Name; got != "Intense & Dark" {
		t.Fatalf("unexpected mood %q", got)
	}
}

func TestProfileValidate(t *testing.T) {
	p := Profile{Datetime: "1995-03-15T14:30:00", Latitude: 37.7749, Longitude: -122.4194, Timezone: "America/Los_Angeles"}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid profile, got %v", err)
	}
	bt, err := p.BirthTime()
	if err != nil {
		t.Fatal(err)
	}
	if bt.Hour() != 14 || bt.Location().String() != "America/Los_Angeles" {
		t.Fatalf("expected wall time in profile zone, got %v", bt)
	}

	bad := p
	bad.Latitude = 120
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected latitude error")
	}
	bad = p
	bad.Datetime = "15/03/1995"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected datetime error")
	}
}

func TestPlaylistAverageMood(t *testing.T) {
	p := Playlist{Tracks: []Track{
		{Features: AudioFeatures{Energy: 0.3, Valence: 0.8}},
		{Features: AudioFeatures{Energy: 0.5, Valence: 0.6}},
	}}
	if got := p.AverageMood().Name; got != "Chill & Happy" {
		t.Fatalf("unexpected mood %q", got)
	}
	if (Playlist{}).AverageMood().Name != "" {
		t.Fatalf("expected empty mood for empty playlist")
	}
}
