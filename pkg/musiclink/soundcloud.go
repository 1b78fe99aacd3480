package musiclink

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// SoundCloudOEmbedURL is the SoundCloud oEmbed endpoint.
const SoundCloudOEmbedURL = "https://soundcloud.com/oembed"

type SoundCloudResolver struct {
	client   *http.Client
	endpoint string
	matches  func(string) bool
}

func NewSoundCloudResolver() *SoundCloudResolver {
	return &SoundCloudResolver{
		client:   newHTTPClient(),
		endpoint: SoundCloudOEmbedURL,
		matches:  hostMatcher("soundcloud.com", "www.soundcloud.com", "m.soundcloud.com", "on.soundcloud.com"),
	}
}

func (r *SoundCloudResolver) Name() string { return "soundcloud" }

func (r *SoundCloudResolver) CanResolve(rawURL string) bool {
	return r.matches(rawURL)
}

func (r *SoundCloudResolver) Resolve(ctx context.Context, rawURL string) (*TrackInfo, error) {
	resp, err := fetchOEmbed(ctx, r.client, r.endpoint, rawURL)
	if err != nil {
		return nil, fmt.Errorf("soundcloud oEmbed: %w", err)
	}
	return parseSoundCloudTitle(resp.Title, resp.AuthorName), nil
}

// parseSoundCloudTitle splits "Track by Artist"; the uploader is the fallback artist.
func parseSoundCloudTitle(title, author string) *TrackInfo {
	if i := strings.LastIndex(title, " by "); i > 0 {
		return &TrackInfo{
			Title:  strings.TrimSpace(title[:i]),
			Artist: strings.TrimSpace(title[i+len(" by "):]),
		}
	}
	return &TrackInfo{Title: strings.TrimSpace(title), Artist: strings.TrimSpace(author)}
}
