package features

import (
	"context"
	"encoding/json"
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
	defaultSongBPMURL = "https://api.getsongbpm.com/search/"
	songBPMTimeout    = 10 * time.Second
)

// SongBPMProvider looks features up on getsongbpm.com by artist and title.
// It has no energy data, so tracks it resolves rank on tempo alone.
type SongBPMProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSongBPMProvider(config *core.SongBPMConfig, logger *zap.Logger) *SongBPMProvider {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultSongBPMURL
	}
	return &SongBPMProvider{
		apiKey:     config.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: songBPMTimeout},
		logger:     logger,
	}
}

type songBPMResponse struct {
	Search json.RawMessage `json:"search"`
}

type songBPMSong struct {
	Title string     `json:"song_title"`
	Tempo flexNumber `json:"tempo"`
	Key   string     `json:"key"`
	KeyOf string     `json:"key_of"`
}

// flexNumber accepts numbers, quoted numbers, empty strings and null.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexNumber(f)
	return nil
}

func (p *SongBPMProvider) Features(ctx context.Context, track core.Track) (*core.AudioFeatures, error) {
	if p.apiKey == "" {
		return nil, nil
	}
	lookup := strings.TrimSpace(track.PrimaryArtist() + " " + track.Title)
	if lookup == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("api_key", p.apiKey)
	params.Set("type", "both")
	params.Set("lookup", lookup)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("SongBPM API call failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SongBPM API returned status %d", resp.StatusCode)
	}

	var body songBPMResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode SongBPM response: %w", err)
	}

	// "search" is an object with an error field when nothing matched.
	var songs []songBPMSong
	if err := json.Unmarshal(body.Search, &songs); err != nil || len(songs) == 0 {
		p.logger.Debug("No SongBPM match", zap.String("lookup", lookup))
		return nil, nil
	}

	song := songs[0]
	key := song.KeyOf
	if key == "" {
		key = song.Key
	}
	features := &core.AudioFeatures{Key: core.NormalizeKey(key)}
	if song.Tempo > 0 {
		features.Tempo = float64(song.Tempo)
	}
	return features, nil
}
