// Package features resolves the audio features used to rank and suggest tracks.
package features

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"partymix/internal/core"
)

// AudioFeaturesFetcher is implemented by the Spotify client.
type AudioFeaturesFetcher interface {
	GetAudioFeatures(ctx context.Context, trackID string) (*core.AudioFeatures, error)
}

// SpotifyProvider reads features from the Spotify audio-features endpoint.
type SpotifyProvider struct {
	client AudioFeaturesFetcher
}

func NewSpotifyProvider(client AudioFeaturesFetcher) *SpotifyProvider {
	return &SpotifyProvider{client: client}
}

func (p *SpotifyProvider) Features(ctx context.Context, track core.Track) (*core.AudioFeatures, error) {
	if track.ID == "" {
		return nil, nil
	}
	return p.client.GetAudioFeatures(ctx, track.ID)
}

// NewProvider picks the feature source named in config and wraps it in a cache.
func NewProvider(
	config *core.Config,
	spotifyClient AudioFeaturesFetcher,
	logger *zap.Logger,
) (core.FeatureProvider, error) {
	var source core.FeatureProvider
	switch strings.ToLower(config.Spotify.FeaturesSource) {
	case "", core.FeaturesSourceSpotify:
		source = NewSpotifyProvider(spotifyClient)
	case core.FeaturesSourceSongBPM:
		if config.SongBPM.APIKey == "" {
			return nil, fmt.Errorf("features source %q requires a SongBPM API key", core.FeaturesSourceSongBPM)
		}
		source = NewSongBPMProvider(&config.SongBPM, logger.Named("songbpm"))
	default:
		return nil, fmt.Errorf("unsupported features source: %s", config.Spotify.FeaturesSource)
	}
	return NewCache(source, DefaultCacheSize, logger), nil
}
