package musiclink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ITunesLookupURL is the public iTunes lookup endpoint behind Apple Music links.
const ITunesLookupURL = "https://itunes.apple.com/lookup"

type iTunesLookup struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		TrackName  string `json:"trackName"`
		ArtistName string `json:"artistName"`
	} `json:"results"`
}

type AppleMusicResolver struct {
	client    *http.Client
	lookupURL string
	matches   func(string) bool
}

func NewAppleMusicResolver() *AppleMusicResolver {
	return &AppleMusicResolver{
		client:    newHTTPClient(),
		lookupURL: ITunesLookupURL,
		matches:   hostMatcher("music.apple.com", "itunes.apple.com"),
	}
}

func (r *AppleMusicResolver) Name() string { return "applemusic" }

func (r *AppleMusicResolver) CanResolve(rawURL string) bool {
	return r.matches(rawURL)
}

func (r *AppleMusicResolver) Resolve(ctx context.Context, rawURL string) (*TrackInfo, error) {
	trackID, err := appleMusicTrackID(rawURL)
	if err != nil {
		return nil, err
	}

	var lookup iTunesLookup
	reqURL := fmt.Sprintf("%s?id=%s&entity=song", r.lookupURL, url.QueryEscape(trackID))
	if err := fetchJSON(ctx, r.client, reqURL, &lookup); err != nil {
		return nil, fmt.Errorf("itunes lookup: %w", err)
	}
	if lookup.ResultCount == 0 || len(lookup.Results) == 0 {
		return nil, errors.New("itunes lookup: no track found")
	}
	return &TrackInfo{Title: lookup.Results[0].TrackName, Artist: lookup.Results[0].ArtistName}, nil
}

// appleMusicTrackID reads the song ID from ?i= on album links or the last path
// segment of /song/ links. Album links without ?i= name no single track.
func appleMusicTrackID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if id := u.Query().Get("i"); id != "" {
		return id, nil
	}
	if strings.Contains(u.Path, "/song/") {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if id := parts[len(parts)-1]; id != "" && id != "song" {
			return id, nil
		}
	}
	return "", errors.New("no track ID in Apple Music link")
}
