package domain

// DailyNarrative is the AI-generated reading for today.
type DailyNarrative struct {
	Date      string   `json:"date"`
	Headline  string   `json:"headline"`
	Reading   string   `json:"reading"`
	Themes    []string `json:"themes,omitempty"`
	Generator string   `json:"generator,omitempty"`
}

// Alignment is the daily alignment score.
type Alignment struct {
	Score          int      `json:"score"`
	DominantEnergy string   `json:"dominantEnergy"`
	Summary        string   `json:"summary,omitempty"`
	Transits       []string `json:"transits,omitempty"`
}

// Sonification carries the chart-derived sound parameters for the user's orb.
type Sonification struct {
	SunSign       string  `json:"sunSign"`
	MoonSign      string  `json:"moonSign"`
	RisingSign    string  `json:"risingSign"`
	BaseFrequency float64 `json:"baseFrequency"`
	BPM           int     `json:"bpm"`
	Key           string  `json:"key,omitempty"`
	Element       string  `json:"element,omitempty"`
}

// SeasonalGuidance is the monthly/seasonal reading.
type SeasonalGuidance struct {
	Season   string   `json:"season"`
	Month    string   `json:"month"`
	Guidance string   `json:"guidance"`
	Focus    []string `json:"focus,omitempty"`
}

// ConnectionState reports whether the music service is linked.
type ConnectionState struct {
	Connected   bool   `json:"connected"`
	DisplayName string `json:"displayName,omitempty"`
}
