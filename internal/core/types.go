package core

import (
	"context"
	"strings"
	"time"
)

type Track struct {
	ID       string
	Title    string
	Artists  []string
	Album    string
	ImageURL string
	Duration time.Duration
	URL      string
}

// Artist returns the comma separated artist names.
func (t Track) Artist() string {
	return strings.Join(t.Artists, ", ")
}

// PrimaryArtist returns the first credited artist, or "" when unknown.
func (t Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return strings.TrimSpace(t.Artists[0])
}

// URI returns the spotify:track URI for the track.
func (t Track) URI() string {
	if t.ID == "" {
		return ""
	}
	return "spotify:track:" + t.ID
}

type Playlist struct {
	ID         string
	Name       string
	Owner      string
	TrackCount int
}

// AudioFeatures holds the few scalar features used for similarity.
// A zero Tempo or an empty Key means the value is unknown.
type AudioFeatures struct {
	Tempo        float64
	Key          string
	Energy       float64
	Danceability float64
	HasEnergy    bool
}

// HasTempo reports whether the tempo is known.
func (f AudioFeatures) HasTempo() bool {
	return f.Tempo > 0
}

// HasKey reports whether the key is known.
func (f AudioFeatures) HasKey() bool {
	return f.Key != ""
}

type NowPlaying struct {
	Track     Track
	IsPlaying bool
	Progress  time.Duration
}

type SpotifyClient interface {
	SearchTrack(ctx context.Context, query string, limit int) ([]Track, error)
	SearchPlaylist(ctx context.Context, query string, limit int) ([]Playlist, error)
	GetTrack(ctx context.Context, trackID string) (*Track, error)
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]Track, error)
	GetCurrentlyPlaying(ctx context.Context) (*NowPlaying, error)
	PlayTrack(ctx context.Context, trackID string) error
	TogglePlayback(ctx context.Context) (bool, error)
	ExtractTrackID(url string) (string, error)
}

// FeatureProvider resolves audio features for a track.
// It returns (nil, nil) when the source has no data for the track.
type FeatureProvider interface {
	Features(ctx context.Context, track Track) (*AudioFeatures, error)
}

// SimilarTrack is a loosely identified track returned by a recommendation source.
type SimilarTrack struct {
	Name   string
	Artist string
	Match  float64
}

type SimilarTrackSource interface {
	SimilarTracks(ctx context.Context, name, artist string, limit int) ([]SimilarTrack, error)
}

type LLMProvider interface {
	GenerateSearchQuery(ctx context.Context, seedTracks []Track) (string, error)
}

type DedupStore interface {
	Has(trackID string) bool
	Add(trackID string)
	Remove(trackID string)
	Load(trackIDs []string)
	Size() int
	Clear()
}

// PlayHistory records when tracks were played, for the replay cooldown.
type PlayHistory interface {
	RecordPlay(ctx context.Context, trackID, guest string, at time.Time) error
	LastPlayed(ctx context.Context, trackID string) (time.Time, bool, error)
	PlayedSince(ctx context.Context, since time.Time) ([]string, error)
	Clear(ctx context.Context) error
}

type RateLimiter interface {
	Allow(session, guest string) bool
	// Retry returns how long until the guest may add again.
	Retry(session, guest string) time.Duration
	Reset()
}

// MusicLinkResolver turns a non-Spotify music link into a search query.
type MusicLinkResolver interface {
	CanResolve(url string) bool
	SearchQuery(ctx context.Context, url string) (string, error)
}

// Metrics receives domain events. Implementations must be safe for concurrent use.
type Metrics interface {
	SetQueueLength(n int)
	TrackAdded(source string)
	TrackRejected(reason string)
	AutoFillRun(tier, status string)
	ObserveSuggest(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) SetQueueLength(int) {}
func (noopMetrics) TrackAdded(string) {}
func (noopMetrics) TrackRejected(string) {}
func (noopMetrics) AutoFillRun(string, string) {}
func (noopMetrics) ObserveSuggest(time.Duration) {}
