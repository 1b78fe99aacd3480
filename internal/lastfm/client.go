// Package lastfm queries the Last.fm API for tracks similar to a given one.
package lastfm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"partymix/internal/core"
)

const (
	defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"
	defaultTimeout = 10 * time.Second
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("lastfm: missing API key")

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(config *core.LastFMConfig, logger *zap.Logger) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

type similarResponse struct {
	SimilarTracks struct {
		Track []similarTrack `json:"track"`
	} `json:"similartracks"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type similarTrack struct {
	Name   string          `json:"name"`
	Match  json.RawMessage `json:"match"`
	Artist json.RawMessage `json:"artist"`
}

type artistRef struct {
	Name string `json:"name"`
}

// artistName accepts both the object and the array form Last.fm returns.
func (t similarTrack) artistName() string {
	raw := bytes.TrimSpace(t.Artist)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '[' {
		var many []artistRef
		if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
			return many[0].Name
		}
		return ""
	}
	var one artistRef
	if err := json.Unmarshal(raw, &one); err != nil {
		return ""
	}
	return one.Name
}

// match is a number in newer responses and a string in older ones.
func (t similarTrack) match() float64 {
	raw := strings.Trim(string(bytes.TrimSpace(t.Match)), `"`)
	f, _ := strconv.ParseFloat(raw, 64)
	return f
}

// SimilarTracks calls track.getSimilar.
func (c *Client) SimilarTracks(ctx context.Context, name, artist string, limit int) ([]core.SimilarTrack, error) {
	if !c.Enabled() {
		return nil, ErrMissingAPIKey
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("track", name)
	params.Set("artist", artist)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("autocorrect", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Last.fm API call failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var body similarResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode Last.fm response (status %d): %w", resp.StatusCode, err)
	}
	if body.Error != 0 {
		return nil, fmt.Errorf("Last.fm error %d: %s", body.Error, body.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Last.fm API returned status %d", resp.StatusCode)
	}

	out := make([]core.SimilarTrack, 0, len(body.SimilarTracks.Track))
	for _, t := range body.SimilarTracks.Track {
		artistName := t.artistName()
		if t.Name == "" || artistName == "" {
			continue
		}
		out = append(out, core.SimilarTrack{Name: t.Name, Artist: artistName, Match: t.match()})
	}

	c.logger.Debug("Last.fm similar tracks",
		zap.String("track", name),
		zap.String("artist", artist),
		zap.Int("count", len(out)))

	return out, nil
}
