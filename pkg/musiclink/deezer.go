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

// DeezerAPIURL is the public Deezer catalogue API.
const DeezerAPIURL = "https://api.deezer.com"

var deezerTrackRegex = regexp.MustCompile(`/track/(\d+)`)

type DeezerResolver struct {
	client  *http.Client
	apiURL  string
	matches func(string) bool
}

func NewDeezerResolver() *DeezerResolver {
	return &DeezerResolver{
		client:  newHTTPClient(),
		apiURL:  DeezerAPIURL,
		matches: hostMatcher("deezer.com", "www.deezer.com", "deezer.page.link", "link.deezer.com"),
	}
}

func (r *DeezerResolver) Name() string { return "deezer" }

func (r *DeezerResolver) CanResolve(rawURL string) bool {
	return r.matches(rawURL)
}

type deezerTrack struct {
	Title  string `json:"title"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *DeezerResolver) Resolve(ctx context.Context, rawURL string) (*TrackInfo, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	m := deezerTrackRegex.FindStringSubmatch(u.Path)
	if len(m) < 2 {
		return nil, errors.New("no track ID in Deezer link")
	}

	var track deezerTrack
	if err := fetchJSON(ctx, r.client, r.apiURL+"/track/"+m[1], &track); err != nil {
		return nil, fmt.Errorf("deezer api: %w", err)
	}
	if track.Error != nil {
		return nil, fmt.Errorf("deezer api: %s", track.Error.Message)
	}
	return &TrackInfo{Title: track.Title, Artist: track.Artist.Name}, nil
}
