package core

import (
	"time"

	"partymix/internal/i18n"
)

// Configuration defaults
const (
	// DefaultServerPort is the default HTTP server port
	DefaultServerPort = 3000
	// DefaultTargetQueueLength is how many tracks the up-next queue is kept at
	DefaultTargetQueueLength = 6
	// DefaultQueueCheckIntervalSecs is how often the auto-fill loop runs
	DefaultQueueCheckIntervalSecs = 30
	// DefaultPlayCooldownMins is how long a played track stays blocked
	DefaultPlayCooldownMins = 120
	// DefaultGuestAddsPerWindow is how many tracks a guest may add per window
	DefaultGuestAddsPerWindow = 3
	// DefaultGuestWindowSecs is the guest rate limit window
	DefaultGuestWindowSecs = 600
	// DefaultSuggestLimit is the number of suggestions returned when none is requested
	DefaultSuggestLimit = 4
	// MaxSuggestLimit caps the number of suggestions
	MaxSuggestLimit = 6
	// DefaultFallbackPlaylistID is used when every other auto-fill source fails
	DefaultFallbackPlaylistID = "37i9dQZF1DXcBWIGoYBM5M"
	// DefaultDedupCapacity is the number of recently queued track IDs remembered
	DefaultDedupCapacity = 2000
	// DefaultDedupFalsePositiveRate is the bloom filter false positive rate
	DefaultDedupFalsePositiveRate = 0.001
	// DefaultDedupTTL is how long a queued track is remembered when the play cooldown is disabled
	DefaultDedupTTL = 5 * time.Minute
	// DefaultMaxPhotoBytes limits a single uploaded photo
	DefaultMaxPhotoBytes = 20 << 20

	// FeaturesSourceSpotify uses the Spotify audio-features endpoint
	FeaturesSourceSpotify = "spotify"
	// FeaturesSourceSongBPM uses the getsongbpm.com search API
	FeaturesSourceSongBPM = "songbpm"
)

// DefaultSeedThemes are searched to pre-fill the queue when no source playlist is set.
var DefaultSeedThemes = []string{
	"Hits populaires 2025",
	"Électro chill",
	"Funk groove",
}

type Config struct {
	Spotify SpotifyConfig
	LastFM  LastFMConfig
	SongBPM SongBPMConfig
	LLM     LLMConfig
	Server  ServerConfig
	Log     LogConfig
	App     AppConfig
	Storage StorageConfig
}

type SpotifyConfig struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	RedirectURL        string
	TokenPath          string
	SourcePlaylistID   string
	FallbackPlaylistID string
	FeaturesSource     string
	Market             string
}

type LastFMConfig struct {
	APIKey  string
	BaseURL string
}

type SongBPMConfig struct {
	APIKey  string
	BaseURL string
}

type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PlayerPassword string
	StaticDir      string
	PublicURL      string
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	TargetQueueLength      int
	QueueCheckIntervalSecs int
	PlayCooldownMins       int
	GuestAddsPerWindow     int
	GuestWindowSecs        int
	SeedThemes             []string
	Language               string
	SessionName            string
}

type StorageConfig struct {
	PhotosDir     string
	MaxPhotoBytes int64
	HistoryDBPath string
}

// PlayCooldown returns the play cooldown as a duration.
func (c *AppConfig) PlayCooldown() time.Duration {
	return time.Duration(c.PlayCooldownMins) * time.Minute
}

// DedupTTL returns how long a queued or played track stays out of auto-fill.
// It follows the play cooldown, or DefaultDedupTTL when the cooldown is disabled.
func (c *AppConfig) DedupTTL() time.Duration {
	if ttl := c.PlayCooldown(); ttl > 0 {
		return ttl
	}
	return DefaultDedupTTL
}

// GuestWindow returns the guest rate limit window as a duration.
func (c *AppConfig) GuestWindow() time.Duration {
	return time.Duration(c.GuestWindowSecs) * time.Second
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL:        "http://127.0.0.1:3000/callback",
			TokenPath:          "./spotify_token.json",
			FallbackPlaylistID: DefaultFallbackPlaylistID,
			FeaturesSource:     FeaturesSourceSpotify,
		},
		LastFM: LastFMConfig{
			BaseURL: "https://ws.audioscrobbler.com/2.0/",
		},
		SongBPM: SongBPMConfig{
			BaseURL: "https://api.getsongbpm.com/search/",
		},
		LLM: LLMConfig{
			Provider: "",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			StaticDir:    "./static",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			TargetQueueLength:      DefaultTargetQueueLength,
			QueueCheckIntervalSecs: DefaultQueueCheckIntervalSecs,
			PlayCooldownMins:       DefaultPlayCooldownMins,
			GuestAddsPerWindow:     DefaultGuestAddsPerWindow,
			GuestWindowSecs:        DefaultGuestWindowSecs,
			SeedThemes:             append([]string(nil), DefaultSeedThemes...),
			Language:               i18n.DefaultLanguage,
			SessionName:            "Spotify Party Mix",
		},
		Storage: StorageConfig{
			PhotosDir:     "./photos",
			MaxPhotoBytes: DefaultMaxPhotoBytes,
		},
	}
}
