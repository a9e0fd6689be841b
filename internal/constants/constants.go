package constants

import "time"

// Slice names double as cache keys unless a slice scopes its key further.
var SliceKeys = struct {
	DailyNarrative    string
	Connection        string
	CachedPlaylist    string
	DailyAlignment    string
	Sonification      string
	SeasonalGuidance  string
	MonthlyPlaylist   string
	GeneratedPlaylist string
	CreatedPlaylist   string
}{
	DailyNarrative:    "daily_narrative",
	Connection:        "connection",
	CachedPlaylist:    "cached_playlist",
	DailyAlignment:    "daily_alignment",
	Sonification:      "sonification",
	SeasonalGuidance:  "seasonal_guidance",
	MonthlyPlaylist:   "monthly_playlist",
	GeneratedPlaylist: "generated_playlist",
	CreatedPlaylist:   "created_playlist",
}

// Persistent storage keys outside the slice cache.
var StorageKeys = struct {
	BirthProfile     string
	GenrePreferences string
	SpotifyToken     string
	CachePrefix      string
}{
	BirthProfile:     "birth_profile",
	GenrePreferences: "genre_preferences",
	SpotifyToken:     "spotify_token",
	CachePrefix:      "cache:",
}

var RedisConfig = struct {
	KeyPrefix    string
	ReadyTimeout time.Duration
	OpTimeout    time.Duration
}{
	KeyPrefix:    "astrofm:cache:",
	ReadyTimeout: 5 * time.Second,
	OpTimeout:    500 * time.Millisecond,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	RateLimitTimeout    time.Duration
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
}{
	FailureThreshold:    3,                // consecutive failures before OPEN
	ResetTimeout:        30 * time.Second, // default pause before HALF_OPEN
	RateLimitTimeout:    5 * time.Minute,  // 429 from a provider
	HealthCheckInterval: 2 * time.Minute,
	HealthCheckTimeout:  10 * time.Second,
}

var APIConfig = struct {
	BackendTimeout  time.Duration
	SpotifyBaseURL  string
	SpotifyTimeout  time.Duration
	MaxErrorBodyLen int
}{
	BackendTimeout:  30 * time.Second, // AI narrative is the slowest call
	SpotifyBaseURL:  "https://api.spotify.com/v1",
	SpotifyTimeout:  10 * time.Second,
	MaxErrorBodyLen: 4096,
}

var SessionConfig = struct {
	IdleTimeout     time.Duration
	SweepInterval   time.Duration
	WSWriteTimeout  time.Duration
	WSPingInterval  time.Duration
	SnapshotBacklog int
}{
	IdleTimeout:     30 * time.Minute,
	SweepInterval:   time.Minute,
	WSWriteTimeout:  10 * time.Second,
	WSPingInterval:  30 * time.Second,
	SnapshotBacklog: 16,
}

var StringLimits = struct {
	PlaylistName        int
	PlaylistDescription int
	NarrativePreview    int
}{
	PlaylistName:        100,
	PlaylistDescription: 300,
	NarrativePreview:    60,
}
