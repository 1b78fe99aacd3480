package musiclink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// YouTubeOEmbedURL is the YouTube oEmbed endpoint.
const YouTubeOEmbedURL = "https://www.youtube.com/oembed"

var (
	videoNoiseRegex = regexp.MustCompile(`(?i)\s*[\(\[](?:official\s+(?:music\s+)?(?:video|audio|clip)|clip\s+officiel|lyrics?|lyric\s+video|paroles|visualizer|hd|4k)[\)\]]`)
	camelCaseRegex  = regexp.MustCompile(`([a-z])([A-Z])`)
)

// YouTubeResolver handles YouTube and YouTube Music links through oEmbed.
type YouTubeResolver struct {
	client   *http.Client
	endpoint string
	matches  func(string) bool
}

func NewYouTubeResolver() *YouTubeResolver {
	return &YouTubeResolver{
		client:   newHTTPClient(),
		endpoint: YouTubeOEmbedURL,
		matches:  hostMatcher("youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be"),
	}
}

func (r *YouTubeResolver) Name() string { return "youtube" }

func (r *YouTubeResolver) CanResolve(rawURL string) bool {
	return r.matches(rawURL)
}

func (r *YouTubeResolver) Resolve(ctx context.Context, rawURL string) (*TrackInfo, error) {
	videoID, err := youtubeVideoID(rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := fetchOEmbed(ctx, r.client, r.endpoint, "https://www.youtube.com/watch?v="+videoID)
	if err != nil {
		return nil, fmt.Errorf("youtube oEmbed: %w", err)
	}
	return parseYouTubeTitle(resp.Title, resp.AuthorName), nil
}

func youtubeVideoID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if strings.EqualFold(u.Hostname(), "youtu.be") {
		if id := strings.Trim(u.Path, "/"); id != "" {
			return id, nil
		}
		return "", errors.New("no video ID in youtu.be link")
	}
	if id := u.Query().Get("v"); id != "" {
		return id, nil
	}
	if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok && rest != "" {
		return strings.Trim(rest, "/"), nil
	}
	return "", errors.New("no video ID in YouTube link")
}

// parseYouTubeTitle reads "Artist - Title (Official Video)" style titles,
// falling back to the channel name as artist.
func parseYouTubeTitle(videoTitle, channel string) *TrackInfo {
	title := strings.TrimSpace(videoNoiseRegex.ReplaceAllString(videoTitle, ""))

	if artist, song, ok := strings.Cut(title, " - "); ok {
		return &TrackInfo{Title: strings.TrimSpace(song), Artist: strings.TrimSpace(artist)}
	}

	artist := channel
	switch {
	case strings.HasSuffix(channel, " - Topic"):
		artist = strings.TrimSuffix(channel, " - Topic")
	case strings.HasSuffix(channel, "VEVO"):
		artist = camelCaseRegex.ReplaceAllString(strings.TrimSuffix(channel, "VEVO"), "$1 $2")
	}
	return &TrackInfo{Title: title, Artist: strings.TrimSpace(artist)}
}
