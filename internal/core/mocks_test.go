package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type mockSpotify struct {
	mu             sync.Mutex
	tracks         map[string]Track
	playlists      map[string][]Track
	searchTracks   map[string][]Track
	searchLists    map[string][]Playlist
	playing        *NowPlaying
	playlistErr    error
	searchErr      error
	played         []string
	toggled        bool
	searchQueries  []string
	playlistCalls  []string
	playlistSearch []string
}

func newMockSpotify() *mockSpotify {
	return &mockSpotify{
		tracks:       make(map[string]Track),
		playlists:    make(map[string][]Track),
		searchTracks: make(map[string][]Track),
		searchLists:  make(map[string][]Playlist),
	}
}

func (m *mockSpotify) SearchTrack(_ context.Context, query string, limit int) ([]Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchQueries = append(m.searchQueries, query)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	tracks := m.searchTracks[query]
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

func (m *mockSpotify) SearchPlaylist(_ context.Context, query string, _ int) ([]Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlistSearch = append(m.playlistSearch, query)
	return m.searchLists[query], nil
}

func (m *mockSpotify) GetTrack(_ context.Context, trackID string) (*Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[trackID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *mockSpotify) GetPlaylistTracks(_ context.Context, playlistID string) ([]Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playlistCalls = append(m.playlistCalls, playlistID)
	if m.playlistErr != nil {
		return nil, m.playlistErr
	}
	tracks, ok := m.playlists[playlistID]
	if !ok {
		return nil, errors.New("playlist not found")
	}
	return tracks, nil
}

func (m *mockSpotify) GetCurrentlyPlaying(context.Context) (*NowPlaying, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing, nil
}

func (m *mockSpotify) PlayTrack(_ context.Context, trackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, trackID)
	return nil
}

func (m *mockSpotify) TogglePlayback(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toggled = !m.toggled
	return m.toggled, nil
}

func (m *mockSpotify) ExtractTrackID(url string) (string, error) {
	if i := strings.LastIndex(url, "/track/"); i >= 0 {
		return url[i+len("/track/"):], nil
	}
	if strings.HasPrefix(url, "spotify:track:") {
		return strings.TrimPrefix(url, "spotify:track:"), nil
	}
	return "", errors.New("no track ID found in URL")
}

type mockFeatures struct {
	byID map[string]*AudioFeatures
}

func (m *mockFeatures) Features(_ context.Context, t Track) (*AudioFeatures, error) {
	return m.byID[t.ID], nil
}

type mockHistory struct {
	mu    sync.Mutex
	plays map[string]time.Time
}

func newMockHistory() *mockHistory {
	return &mockHistory{plays: make(map[string]time.Time)}
}

func (m *mockHistory) RecordPlay(_ context.Context, trackID, _ string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays[trackID] = at
	return nil
}

func (m *mockHistory) LastPlayed(_ context.Context, trackID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.plays[trackID]
	return at, ok, nil
}

func (m *mockHistory) PlayedSince(_ context.Context, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, at := range m.plays {
		if !at.Before(since) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockHistory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays = make(map[string]time.Time)
	return nil
}

// mockDedup forgets members after ttl when ttl is set, like the bloom+LRU store.
type mockDedup struct {
	mu  sync.Mutex
	ids map[string]time.Time
	ttl time.Duration
	now func() time.Time
}

func newMockDedup() *mockDedup {
	return &mockDedup{ids: make(map[string]time.Time), now: time.Now}
}

func (m *mockDedup) liveLocked(id string) bool {
	at, ok := m.ids[id]
	if !ok {
		return false
	}
	return m.ttl <= 0 || m.now().Before(at.Add(m.ttl))
}

func (m *mockDedup) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLocked(id)
}

func (m *mockDedup) Add(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = m.now()
}

func (m *mockDedup) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ids, id)
}

func (m *mockDedup) Load(ids []string) {
	for _, id := range ids {
		m.Add(id)
	}
}

func (m *mockDedup) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id := range m.ids {
		if m.liveLocked(id) {
			n++
		}
	}
	return n
}

func (m *mockDedup) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = make(map[string]time.Time)
}

type mockLLM struct {
	query string
	err   error
	seeds []Track
}

func (m *mockLLM) GenerateSearchQuery(_ context.Context, seeds []Track) (string, error) {
	m.seeds = seeds
	return m.query, m.err
}

type mockSimilar struct {
	tracks    []SimilarTrack
	err       error
	gotName   string
	gotArtist string
}

func (m *mockSimilar) SimilarTracks(_ context.Context, name, artist string, _ int) ([]SimilarTrack, error) {
	m.gotName = name
	m.gotArtist = artist
	if m.err != nil {
		return nil, m.err
	}
	return m.tracks, nil
}

type mockLimiter struct {
	allow  bool
	retry  time.Duration
	resets int
}

func (m *mockLimiter) Allow(string, string) bool { return m.allow }
func (m *mockLimiter) Retry(string, string) time.Duration { return m.retry }
func (m *mockLimiter) Reset() { m.resets++ }

type mockLinks struct {
	query string
}

func (m *mockLinks) CanResolve(url string) bool {
	return strings.Contains(url, "youtu")
}

func (m *mockLinks) SearchQuery(context.Context, string) (string, error) {
	return m.query, nil
}

type countingWaker struct {
	mu    sync.Mutex
	wakes int
}

func (w *countingWaker) Wake() {
	w.mu.Lock()
	w.wakes++
	w.mu.Unlock()
}

type recordingMetrics struct {
	mu       sync.Mutex
	added    map[string]int
	rejected map[string]int
	runs     map[string]int
	queueLen int
	suggests int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{added: map[string]int{}, rejected: map[string]int{}, runs: map[string]int{}}
}

func (m *recordingMetrics) SetQueueLength(n int) {
	m.mu.Lock()
	m.queueLen = n
	m.mu.Unlock()
}

func (m *recordingMetrics) TrackAdded(source string) {
	m.mu.Lock()
	m.added[source]++
	m.mu.Unlock()
}

func (m *recordingMetrics) TrackRejected(reason string) {
	m.mu.Lock()
	m.rejected[reason]++
	m.mu.Unlock()
}

func (m *recordingMetrics) AutoFillRun(tier, status string) {
	m.mu.Lock()
	m.runs[tier+"/"+status]++
	m.mu.Unlock()
}

func (m *recordingMetrics) ObserveSuggest(time.Duration) {
	m.mu.Lock()
	m.suggests++
	m.mu.Unlock()
}

func track(id, title, artist string) Track {
	return Track{ID: id, Title: title, Artists: []string{artist}}
}

func tracksWithPrefix(prefix string, n int) []Track {
	out := make([]Track, 0, n)
	for i := 0; i < n; i++ {
		id := prefix + string(rune('a'+i))
		out = append(out, track(id, "Song "+id, "Artist "+id))
	}
	return out
}
