// Package spotify provides Spotify Web API integration for search, playback and audio features.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"partymix/internal/core"
	"partymix/pkg/fuzzy"
)

const (
	// FilePermission is the permission for token files
	FilePermission = 0600
	// MaxTrackSearchResults limits track search results
	MaxTrackSearchResults = 10
	// MaxPlaylistSearchResults limits playlist search results
	MaxPlaylistSearchResults = 10
	// PlaylistPageSize is the page size used when reading playlists
	PlaylistPageSize = 100
	// ShortLinkDomain is the Spotify app short link host
	ShortLinkDomain = "spotify.app.link"

	urlResolveTimeout = 10 * time.Second
	maxRedirects      = 5
	pageReadLimit     = 64 << 10
	userAgent         = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	spotifyTrackRegex = regexp.MustCompile(`(?:https?://)?(?:open\.)?spotify\.com/(?:intl-[a-z]+/)?track/([a-zA-Z0-9]+)`)
	spotifyURIRegex   = regexp.MustCompile(`spotify:track:([a-zA-Z0-9]+)`)
	pageTrackURLRegex = regexp.MustCompile(`https://open\.spotify\.com/track/[a-zA-Z0-9]+`)
	fieldFilterRegex  = regexp.MustCompile(`(?i)\b(?:track|artist|album|year|genre):`)

	// ErrNotAuthenticated is returned before Authenticate succeeded.
	ErrNotAuthenticated = errors.New("spotify client not authenticated")
	// ErrNoActiveDevice is returned by playback calls when no device is playing.
	ErrNoActiveDevice = errors.New("no active Spotify device")
)

// Client talks to the Spotify Web API. Playback goes through the user account;
// catalogue reads fall back to an app-only client credentials token.
type Client struct {
	config     *core.SpotifyConfig
	logger     *zap.Logger
	normalizer *fuzzy.Normalizer
	auth       *spotifyauth.Authenticator
	state      string

	mu      sync.RWMutex
	user    *spotify.Client
	catalog *spotify.Client
}

type TokenData struct {
	Token *oauth2.Token `json:"token"`
}

func NewClient(config *core.SpotifyConfig, logger *zap.Logger) *Client {
	auth := spotifyauth.New(
		spotifyauth.WithRedirectURL(config.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopeUserReadCurrentlyPlaying,
			spotifyauth.ScopeUserReadPlaybackState,
		),
		spotifyauth.WithClientID(config.ClientID),
		spotifyauth.WithClientSecret(config.ClientSecret),
	)

	return &Client{
		config:     config,
		logger:     logger,
		normalizer: fuzzy.NewNormalizer(),
		auth:       auth,
		state:      uuid.NewString(),
	}
}

// Authenticate sets up the catalogue client and, when a token is available,
// the user client. The user token comes from the configured refresh token,
// then the token file. Without either the client stays catalogue only until
// the host completes the browser login.
func (c *Client) Authenticate(ctx context.Context) error {
	catalogConfig := &clientcredentials.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := catalogConfig.Token(ctx); err != nil {
		return fmt.Errorf("client credentials: %w", err)
	}
	c.setClients(nil, spotify.New(catalogConfig.Client(ctx)))

	return c.authenticateUser(ctx)
}

func (c *Client) authenticateUser(ctx context.Context) error {
	if c.config.RefreshToken != "" {
		token := &oauth2.Token{RefreshToken: c.config.RefreshToken}
		if err := c.useUserToken(ctx, token); err != nil {
			return fmt.Errorf("refresh token rejected: %w", err)
		}
		return nil
	}

	token, err := c.loadToken()
	if err != nil {
		c.logger.Warn("No saved Spotify token, playback disabled until the host logs in",
			zap.String("login", "/login"))
		return nil
	}
	if err := c.useUserToken(ctx, token); err != nil {
		c.logger.Warn("Saved Spotify token invalid, playback disabled until the host logs in",
			zap.String("login", "/login"), zap.Error(err))
	}
	return nil
}

// HasUser reports whether playback calls can be made.
func (c *Client) HasUser() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user != nil
}

// LoginURL is the Spotify consent page the host is sent to.
func (c *Client) LoginURL() string {
	return c.auth.AuthURL(c.state)
}

// CompleteLogin exchanges the code of a login callback for a user token and
// saves it to the token file.
func (c *Client) CompleteLogin(ctx context.Context, r *http.Request) error {
	token, err := c.auth.Token(ctx, c.state, r)
	if err != nil {
		return fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if saveErr := c.saveToken(token); saveErr != nil {
		c.logger.Warn("Failed to save token", zap.Error(saveErr))
	}

	if err := c.useUserToken(ctx, token); err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}
	return nil
}

func (c *Client) useUserToken(ctx context.Context, token *oauth2.Token) error {
	client := spotify.New(c.auth.Client(ctx, token))
	user, err := client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.user = client
	c.mu.Unlock()
	c.logger.Info("Authenticated successfully", zap.String("user", user.DisplayName))
	return nil
}

func (c *Client) setClients(user, catalog *spotify.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = user
	c.catalog = catalog
}

// Ready reports whether catalogue calls can be made.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user != nil || c.catalog != nil
}

// api returns the client used for catalogue reads.
func (c *Client) api() (*spotify.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user != nil {
		return c.user, nil
	}
	if c.catalog != nil {
		return c.catalog, nil
	}
	return nil, ErrNotAuthenticated
}

// player returns the client bound to the user account.
func (c *Client) player() (*spotify.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil, ErrNotAuthenticated
	}
	return c.user, nil
}

func (c *Client) searchOptions(limit int) []spotify.RequestOption {
	opts := []spotify.RequestOption{spotify.Limit(limit)}
	if c.config.Market != "" {
		opts = append(opts, spotify.Market(c.config.Market))
	}
	return opts
}

// SearchTrack searches the catalogue and ranks results by how well they match query.
// Queries using field filters ("track:x artist:y") are sent as is.
func (c *Client) SearchTrack(ctx context.Context, query string, limit int) ([]core.Track, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxTrackSearchResults {
		limit = MaxTrackSearchResults
	}

	searchQuery := strings.TrimSpace(query)
	if !fieldFilterRegex.MatchString(searchQuery) {
		searchQuery = c.normalizer.NormalizeTitle(searchQuery)
	}
	if searchQuery == "" {
		return nil, nil
	}

	results, err := client.Search(ctx, searchQuery, spotify.SearchTypeTrack, c.searchOptions(limit)...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if results.Tracks == nil {
		return nil, nil
	}

	tracks := make([]core.Track, 0, len(results.Tracks.Tracks))
	for i := range results.Tracks.Tracks {
		if results.Tracks.Tracks[i].ID == "" {
			continue
		}
		tracks = append(tracks, convertSpotifyTrack(&results.Tracks.Tracks[i]))
	}
	return c.rankTracks(tracks, query), nil
}

// SearchPlaylist searches for playlists based on a query string
func (c *Client) SearchPlaylist(ctx context.Context, query string, limit int) ([]core.Playlist, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxPlaylistSearchResults {
		limit = MaxPlaylistSearchResults
	}

	results, err := client.Search(ctx, c.normalizer.NormalizeTitle(query), spotify.SearchTypePlaylist, c.searchOptions(limit)...)
	if err != nil {
		return nil, fmt.Errorf("playlist search failed: %w", err)
	}
	if results.Playlists == nil {
		return nil, nil
	}

	playlists := make([]core.Playlist, 0, len(results.Playlists.Playlists))
	for i := range results.Playlists.Playlists {
		playlist := &results.Playlists.Playlists[i]
		// search results may contain null entries for removed playlists
		if playlist.ID == "" {
			continue
		}
		playlists = append(playlists, core.Playlist{
			ID:         string(playlist.ID),
			Name:       playlist.Name,
			Owner:      playlist.Owner.DisplayName,
			TrackCount: int(playlist.Tracks.Total), //nolint:gosec // playlist sizes fit in int
		})
	}
	return playlists, nil
}

func (c *Client) GetTrack(ctx context.Context, trackID string) (*core.Track, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	track, err := client.GetTrack(ctx, spotify.ID(trackID), c.marketOptions()...)
	if err != nil {
		var apiErr spotify.Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get track: %w", err)
	}

	coreTrack := convertSpotifyTrack(track)
	return &coreTrack, nil
}

func (c *Client) marketOptions() []spotify.RequestOption {
	if c.config.Market == "" {
		return nil
	}
	return []spotify.RequestOption{spotify.Market(c.config.Market)}
}

// GetPlaylistTracks returns every track of a playlist, skipping episodes and removed items.
func (c *Client) GetPlaylistTracks(ctx context.Context, playlistID string) ([]core.Track, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	var tracks []core.Track
	offset := 0
	for {
		items, err := client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(PlaylistPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to get playlist items: %w", err)
		}

		for i := range items.Items {
			if t := items.Items[i].Track.Track; t != nil && t.ID != "" {
				tracks = append(tracks, convertSpotifyTrack(t))
			}
		}

		if len(items.Items) < PlaylistPageSize {
			break
		}
		offset += PlaylistPageSize
	}

	c.logger.Debug("Retrieved playlist tracks",
		zap.String("playlistID", playlistID),
		zap.Int("count", len(tracks)))

	return tracks, nil
}

// GetCurrentlyPlaying returns what the user account is playing, or nil when idle.
func (c *Client) GetCurrentlyPlaying(ctx context.Context) (*core.NowPlaying, error) {
	client, err := c.player()
	if err != nil {
		return nil, err
	}

	current, err := client.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get currently playing: %w", err)
	}
	if current == nil || current.Item == nil {
		return nil, nil
	}

	return &core.NowPlaying{
		Track:     convertSpotifyTrack(current.Item),
		IsPlaying: current.Playing,
		Progress:  time.Duration(current.Progress) * time.Millisecond,
	}, nil
}

// GetAudioFeatures returns tempo, key, energy and danceability for a track,
// or nil when Spotify has no analysis for it.
func (c *Client) GetAudioFeatures(ctx context.Context, trackID string) (*core.AudioFeatures, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	features, err := client.GetAudioFeatures(ctx, spotify.ID(trackID))
	if err != nil {
		return nil, fmt.Errorf("failed to get audio features: %w", err)
	}
	if len(features) == 0 || features[0] == nil {
		return nil, nil
	}
	return convertAudioFeatures(features[0]), nil
}

// PlayTrack starts playing a track on the active device.
func (c *Client) PlayTrack(ctx context.Context, trackID string) error {
	client, err := c.player()
	if err != nil {
		return err
	}

	err = client.PlayOpt(ctx, &spotify.PlayOptions{
		URIs: []spotify.URI{spotify.URI("spotify:track:" + trackID)},
	})
	if err != nil {
		return fmt.Errorf("failed to play track %s: %w", trackID, err)
	}

	c.logger.Info("Started playback", zap.String("trackID", trackID))
	return nil
}

// TogglePlayback pauses when playing and resumes otherwise. It returns the new playing state.
func (c *Client) TogglePlayback(ctx context.Context) (bool, error) {
	client, err := c.player()
	if err != nil {
		return false, err
	}

	state, err := client.PlayerState(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get player state: %w", err)
	}
	if state == nil || state.Device.ID == "" {
		return false, ErrNoActiveDevice
	}

	if state.Playing {
		if err := client.Pause(ctx); err != nil {
			return true, fmt.Errorf("failed to pause: %w", err)
		}
		return false, nil
	}
	if err := client.Play(ctx); err != nil {
		return false, fmt.Errorf("failed to resume: %w", err)
	}
	return true, nil
}

// ExtractTrackID returns the track ID from a Spotify URI, track URL or short link.
func (c *Client) ExtractTrackID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)

	if matches := spotifyURIRegex.FindStringSubmatch(rawURL); len(matches) > 1 {
		return matches[1], nil
	}
	if matches := spotifyTrackRegex.FindStringSubmatch(rawURL); len(matches) > 1 {
		return matches[1], nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "spotify.link" || hostname == ShortLinkDomain {
		resolvedURL, err := c.resolveShortURL(rawURL)
		if err != nil {
			return "", fmt.Errorf("failed to resolve shortened URL: %w", err)
		}
		return c.ExtractTrackID(resolvedURL)
	}

	return "", fmt.Errorf("no track ID found in URL")
}

// resolveShortURL follows redirects of a shortened Spotify URL.
func (c *Client) resolveShortURL(shortURL string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), urlResolveTimeout)
	defer cancel()

	client := &http.Client{
		Timeout: urlResolveTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, shortURL, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL
	hostname := strings.ToLower(finalURL.Hostname())
	if hostname == "open.spotify.com" && strings.Contains(finalURL.Path, "/track/") {
		return finalURL.String(), nil
	}

	// app links land on an interstitial page that embeds the track URL
	if hostname == ShortLinkDomain {
		return c.resolveWithPageContent(ctx, shortURL)
	}

	return "", fmt.Errorf("URL did not resolve to a Spotify track")
}

func (c *Client) resolveWithPageContent(ctx context.Context, shortURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := (&http.Client{Timeout: urlResolveTimeout}).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, pageReadLimit))
	if err != nil {
		return "", err
	}
	if match := pageTrackURLRegex.Find(content); match != nil {
		return string(match), nil
	}
	return "", fmt.Errorf("could not find Spotify track URL in page content")
}

func convertSpotifyTrack(track *spotify.FullTrack) core.Track {
	artists := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	var imageURL string
	if len(track.Album.Images) > 0 {
		imageURL = track.Album.Images[0].URL
	}

	return core.Track{
		ID:       string(track.ID),
		Title:    track.Name,
		Artists:  artists,
		Album:    track.Album.Name,
		ImageURL: imageURL,
		Duration: time.Duration(track.Duration) * time.Millisecond,
		URL:      track.ExternalURLs["spotify"],
	}
}

func convertAudioFeatures(f *spotify.AudioFeatures) *core.AudioFeatures {
	return &core.AudioFeatures{
		Tempo:        float64(f.Tempo),
		Key:          core.KeyName(int(f.Key), int(f.Mode)),
		Energy:       float64(f.Energy),
		Danceability: float64(f.Danceability),
		HasEnergy:    true,
	}
}

// rankTracks orders tracks by fuzzy match against the query. Ties keep Spotify's order.
func (c *Client) rankTracks(tracks []core.Track, query string) []core.Track {
	query = strings.TrimSpace(fieldFilterRegex.ReplaceAllString(query, " "))
	if query == "" || len(tracks) < 2 {
		return tracks
	}

	scores := make(map[string]float64, len(tracks))
	for i := range tracks {
		score := c.normalizer.MatchScore(query, tracks[i].Title, tracks[i].Artist())
		// full-length tracks over snippets and hour-long mixes
		if tracks[i].Duration > 30*time.Second && tracks[i].Duration < 10*time.Minute {
			score += 0.05
		}
		scores[tracks[i].ID] = score
	}

	sort.SliceStable(tracks, func(i, j int) bool {
		return scores[tracks[i].ID] > scores[tracks[j].ID]
	})
	return tracks
}

func (c *Client) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.config.TokenPath)
	if err != nil {
		return nil, err
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		return nil, err
	}
	if tokenData.Token == nil {
		return nil, fmt.Errorf("token file %s holds no token", c.config.TokenPath)
	}
	return tokenData.Token, nil
}

func (c *Client) saveToken(token *oauth2.Token) error {
	data, err := json.MarshalIndent(TokenData{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.config.TokenPath, data, FilePermission)
}
