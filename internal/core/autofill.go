package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"partymix/pkg/fuzzy"
)

const (
	// MaxPlaylistSearchResults limits playlist searches made for similar tracks
	MaxPlaylistSearchResults = 10
	// MaxPlaylistsForCandidates limits playlists used for candidate track collection
	MaxPlaylistsForCandidates = 3
	// MaxTotalCandidates is the maximum number of candidate tracks ranked per similar-tracks run
	MaxTotalCandidates = 12
	// RecommendationSeedTracks is the number of recent tracks given to the LLM
	RecommendationSeedTracks = 5
	// ThemeSearchLimit is the number of tracks taken from each seed theme search
	ThemeSearchLimit = 5
	// DefaultPlaylistSearchQuery is used when no seed artist is known
	DefaultPlaylistSearchQuery = "party hits"

	autoFillAddedBy = "autofill"
	unscored        = -1.0
)

// Auto-fill tiers, reported in logs and metrics.
const (
	TierTheme    = "theme"
	TierPlaylist = "playlist"
	TierSimilar  = "similar"
	TierFallback = "fallback"
)

// Package-level random number generator for track and playlist sampling
var (
	rng   = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // Music selection doesn't require crypto-secure randomness
	rngMu sync.Mutex
)

func randPerm(n int) []int {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Perm(n)
}

// AutoFiller keeps the up-next queue at the target length.
type AutoFiller struct {
	config     *Config
	queue      *Queue
	spotify    SpotifyClient
	features   FeatureProvider
	history    PlayHistory
	dedup      DedupStore
	llm        LLMProvider
	metrics    Metrics
	logger     *zap.Logger
	normalizer *fuzzy.Normalizer
	now        func() time.Time

	mu     sync.Mutex
	active bool
	wakeup chan struct{}
}

// AutoFillerDeps groups the collaborators of an AutoFiller. LLM, Features and Metrics are optional.
type AutoFillerDeps struct {
	Queue    *Queue
	Spotify  SpotifyClient
	Features FeatureProvider
	History  PlayHistory
	Dedup    DedupStore
	LLM      LLMProvider
	Metrics  Metrics
}

func NewAutoFiller(config *Config, deps AutoFillerDeps, logger *zap.Logger) *AutoFiller {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &AutoFiller{
		config:     config,
		queue:      deps.Queue,
		spotify:    deps.Spotify,
		features:   deps.Features,
		history:    deps.History,
		dedup:      deps.Dedup,
		llm:        deps.LLM,
		metrics:    metrics,
		logger:     logger,
		normalizer: fuzzy.NewNormalizer(),
		now:        time.Now,
		wakeup:     make(chan struct{}, 1), // Buffer size 1 to coalesce multiple events
	}
}

// exclusions holds what a fill run must not pick again.
type exclusions struct {
	ids  map[string]bool
	keys map[string]bool
}

func (e *exclusions) add(n *fuzzy.Normalizer, t Track) {
	e.ids[t.ID] = true
	if len(t.Artists) > 0 && t.Title != "" {
		e.keys[n.TrackKey(t.Title, t.PrimaryArtist())] = true
	}
}

func (a *AutoFiller) excluded(ex *exclusions, t Track) bool {
	if t.ID == "" || ex.ids[t.ID] {
		return true
	}
	if a.dedup != nil && a.dedup.Has(t.ID) {
		return true
	}
	if len(t.Artists) > 0 && ex.keys[a.normalizer.TrackKey(t.Title, t.PrimaryArtist())] {
		return true
	}
	return false
}

// buildExclusions collects queued tracks and tracks still inside the play cooldown.
func (a *AutoFiller) buildExclusions(ctx context.Context) *exclusions {
	ex := &exclusions{ids: make(map[string]bool), keys: make(map[string]bool)}

	snap := a.queue.Snapshot()
	if snap.Current != nil {
		ex.add(a.normalizer, snap.Current.Track)
	}
	for _, items := range [][]QueueItem{snap.Priority, snap.UpNext} {
		for i := range items {
			ex.add(a.normalizer, items[i].Track)
		}
	}

	if a.history != nil && a.config.App.PlayCooldownMins > 0 {
		since := a.now().Add(-a.config.App.PlayCooldown())
		played, err := a.history.PlayedSince(ctx, since)
		if err != nil {
			a.logger.Warn("Failed to read play history, cooldown not applied", zap.Error(err))
		}
		for _, id := range played {
			ex.ids[id] = true
		}
	}
	return ex
}

// AutoFillQueue tops the up-next queue up to the target length, trying the
// source playlist, then similar tracks, then the fallback playlist. Failures
// are logged and the next tier is tried; an error is returned only when every
// tier attempted failed.
func (a *AutoFiller) AutoFillQueue(ctx context.Context) (int, error) {
	need := a.config.App.TargetQueueLength - a.queue.Len()
	if need <= 0 {
		return 0, nil
	}

	ex := a.buildExclusions(ctx)
	added := 0
	attempted := 0
	var errs []error

	run := func(tier string, fetch func() ([]Track, error)) {
		if added >= need {
			return
		}
		attempted++
		tracks, err := fetch()
		if err != nil {
			a.metrics.AutoFillRun(tier, "error")
			a.logger.Warn("Auto-fill tier failed", zap.String("tier", tier), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", tier, err))
			return
		}
		n := a.enqueue(tracks, tier, need-added, ex)
		added += n
		status := "ok"
		if n == 0 {
			status = "empty"
		}
		a.metrics.AutoFillRun(tier, status)
		a.logger.Debug("Auto-fill tier done", zap.String("tier", tier), zap.Int("added", n))
	}

	sourcePlaylist := a.config.Spotify.SourcePlaylistID
	if sourcePlaylist == "" && len(a.config.App.SeedThemes) > 0 {
		run(TierTheme, func() ([]Track, error) {
			return a.fetchThemeTracks(ctx, need-added, ex)
		})
	}
	if sourcePlaylist != "" {
		run(TierPlaylist, func() ([]Track, error) {
			return a.fetchRandomTracks(ctx, sourcePlaylist, need-added, ex)
		})
	}
	if seed, ok := a.seedTrack(); ok {
		run(TierSimilar, func() ([]Track, error) {
			return a.fetchSimilarTracks(ctx, seed, need-added, ex)
		})
	}
	if fallback := a.config.Spotify.FallbackPlaylistID; fallback != "" && fallback != sourcePlaylist {
		run(TierFallback, func() ([]Track, error) {
			return a.fetchRandomTracks(ctx, fallback, need-added, ex)
		})
	}

	a.metrics.SetQueueLength(a.queue.Len())

	if added == 0 && attempted > 0 && len(errs) == attempted {
		return 0, errors.Join(errs...)
	}
	if added > 0 {
		a.logger.Info("Auto-filled queue",
			zap.Int("added", added),
			zap.Int("queueLength", a.queue.Len()))
	}
	return added, nil
}

// enqueue adds up to limit tracks to the up-next list and returns how many were added.
func (a *AutoFiller) enqueue(tracks []Track, tier string, limit int, ex *exclusions) int {
	source := tierSource(tier)
	added := 0
	for _, t := range tracks {
		if added >= limit {
			break
		}
		if a.excluded(ex, t) {
			continue
		}
		err := a.queue.Add(QueueItem{Track: t, AddedBy: autoFillAddedBy, Source: source}, false)
		if err != nil {
			continue
		}
		ex.add(a.normalizer, t)
		if a.dedup != nil {
			a.dedup.Add(t.ID)
		}
		a.metrics.TrackAdded(source)
		added++
	}
	return added
}

func tierSource(tier string) string {
	switch tier {
	case TierTheme:
		return SourceTheme
	case TierSimilar:
		return SourceSimilar
	case TierFallback:
		return SourceFallback
	default:
		return SourcePlaylist
	}
}

// seedTrack is the current track, else the last queued one.
func (a *AutoFiller) seedTrack() (Track, bool) {
	if cur, ok := a.queue.Current(); ok {
		return cur.Track, true
	}
	if last, ok := a.queue.Last(); ok {
		return last.Track, true
	}
	return Track{}, false
}

// FetchRandomTracksFromPlaylist samples up to n playable tracks from a playlist,
// skipping queued tracks, tracks in cooldown and recently queued ones.
func (a *AutoFiller) FetchRandomTracksFromPlaylist(ctx context.Context, playlistID string, n int) ([]Track, error) {
	return a.fetchRandomTracks(ctx, playlistID, n, a.buildExclusions(ctx))
}

func (a *AutoFiller) fetchRandomTracks(ctx context.Context, playlistID string, n int, ex *exclusions) ([]Track, error) {
	if n <= 0 {
		return nil, nil
	}
	tracks, err := a.spotify.GetPlaylistTracks(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist tracks: %w", err)
	}

	available := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if !a.excluded(ex, t) {
			available = append(available, t)
		}
	}
	if len(available) == 0 {
		a.logger.Debug("No eligible tracks left in playlist",
			zap.String("playlistID", playlistID),
			zap.Int("playlistTracks", len(tracks)))
		return nil, nil
	}

	return sample(available, n), nil
}

// sample picks up to n tracks at random without replacement.
func sample(tracks []Track, n int) []Track {
	if n > len(tracks) {
		n = len(tracks)
	}
	out := make([]Track, 0, n)
	for _, idx := range randPerm(len(tracks))[:n] {
		out = append(out, tracks[idx])
	}
	return out
}

// fetchThemeTracks searches the seed themes and returns their top tracks.
func (a *AutoFiller) fetchThemeTracks(ctx context.Context, n int, ex *exclusions) ([]Track, error) {
	var out []Track
	var lastErr error
	for _, theme := range a.config.App.SeedThemes {
		if len(out) >= n {
			break
		}
		tracks, err := a.spotify.SearchTrack(ctx, theme, ThemeSearchLimit)
		if err != nil {
			a.logger.Debug("Theme search failed", zap.String("theme", theme), zap.Error(err))
			lastErr = err
			continue
		}
		for _, t := range tracks {
			if !a.excluded(ex, t) {
				out = append(out, t)
			}
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// FetchSimilarTracks finds up to n tracks that fit after seed. Candidates come
// from playlists matching an LLM generated query (or "<artist> radio") and are
// ranked by audio feature similarity to the seed.
func (a *AutoFiller) FetchSimilarTracks(ctx context.Context, seed Track, n int) ([]Track, error) {
	return a.fetchSimilarTracks(ctx, seed, n, a.buildExclusions(ctx))
}

func (a *AutoFiller) fetchSimilarTracks(ctx context.Context, seed Track, n int, ex *exclusions) ([]Track, error) {
	if n <= 0 {
		return nil, nil
	}
	ex.add(a.normalizer, seed)

	query := a.generateSearchQuery(ctx, seed)
	playlists, err := a.spotify.SearchPlaylist(ctx, query, MaxPlaylistSearchResults)
	if err != nil {
		return nil, fmt.Errorf("playlist search failed: %w", err)
	}
	if len(playlists) == 0 {
		return nil, fmt.Errorf("no playlists found for query: %s", query)
	}

	candidates := a.collectCandidates(ctx, selectRandomPlaylists(playlists, MaxPlaylistsForCandidates), ex)
	if len(candidates) == 0 {
		return nil, nil
	}

	ranked := a.rankBySimilarity(ctx, seed, candidates)
	if len(ranked) > n {
		ranked = ranked[:n]
	}

	a.logger.Info("Selected similar tracks",
		zap.String("seedTrackID", seed.ID),
		zap.String("searchQuery", query),
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(ranked)))

	return ranked, nil
}

// generateSearchQuery creates a playlist search query using the LLM or a fallback.
func (a *AutoFiller) generateSearchQuery(ctx context.Context, seed Track) string {
	fallback := DefaultPlaylistSearchQuery
	if artist := seed.PrimaryArtist(); artist != "" {
		fallback = artist + " radio"
	}
	if a.llm == nil {
		return fallback
	}

	query, err := a.llm.GenerateSearchQuery(ctx, a.recentTracks(seed))
	if err != nil || query == "" {
		a.logger.Debug("Using fallback search query", zap.String("query", fallback), zap.Error(err))
		return fallback
	}

	a.logger.Info("Generated search query for auto-fill",
		zap.String("searchQuery", query))
	return query
}

// recentTracks lists up to RecommendationSeedTracks tracks ending with seed.
func (a *AutoFiller) recentTracks(seed Track) []Track {
	snap := a.queue.Snapshot()
	var recent []Track
	for _, items := range [][]QueueItem{snap.Priority, snap.UpNext} {
		for i := range items {
			if items[i].Track.ID != seed.ID {
				recent = append(recent, items[i].Track)
			}
		}
	}
	recent = append(recent, seed)
	if len(recent) > RecommendationSeedTracks {
		recent = recent[len(recent)-RecommendationSeedTracks:]
	}
	return recent
}

// selectRandomPlaylists randomly selects up to maxCount playlists.
func selectRandomPlaylists(playlists []Playlist, maxCount int) []Playlist {
	if len(playlists) <= maxCount {
		return playlists
	}

	out := make([]Playlist, 0, maxCount)
	for _, idx := range randPerm(len(playlists))[:maxCount] {
		out = append(out, playlists[idx])
	}
	return out
}

// collectCandidates samples up to MaxTotalCandidates eligible tracks from playlists.
func (a *AutoFiller) collectCandidates(ctx context.Context, playlists []Playlist, ex *exclusions) []Track {
	seen := make(map[string]bool)
	var available []Track
	for _, p := range playlists {
		tracks, err := a.spotify.GetPlaylistTracks(ctx, p.ID)
		if err != nil {
			a.logger.Warn("Failed to fetch tracks from playlist",
				zap.String("playlistID", p.ID),
				zap.String("playlistName", p.Name),
				zap.Error(err))
			continue
		}
		for _, t := range tracks {
			if seen[t.ID] || a.excluded(ex, t) {
				continue
			}
			seen[t.ID] = true
			available = append(available, t)
		}
	}
	return sample(available, MaxTotalCandidates)
}

// rankBySimilarity sorts candidates by ScoreSimilarity against seed, best first.
// Candidates without features rank last in their sampled order.
func (a *AutoFiller) rankBySimilarity(ctx context.Context, seed Track, candidates []Track) []Track {
	if a.features == nil {
		return candidates
	}

	seedFeatures := a.lookupFeatures(ctx, seed)
	if seedFeatures == nil {
		return candidates
	}

	scores := make([]float64, len(candidates))
	for i, t := range candidates {
		scores[i] = unscored
		if f := a.lookupFeatures(ctx, t); f != nil {
			scores[i] = ScoreSimilarity(*seedFeatures, *f)
		}
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	ranked := make([]Track, 0, len(candidates))
	for _, idx := range order {
		ranked = append(ranked, candidates[idx])
	}
	return ranked
}

func (a *AutoFiller) lookupFeatures(ctx context.Context, t Track) *AudioFeatures {
	f, err := a.features.Features(ctx, t)
	if err != nil {
		a.logger.Debug("No audio features", zap.String("trackID", t.ID), zap.Error(err))
		return nil
	}
	return f
}

// Run fills the queue on start, on every tick and whenever Wake is called.
func (a *AutoFiller) Run(ctx context.Context) error {
	interval := time.Duration(a.config.App.QueueCheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = DefaultQueueCheckIntervalSecs * time.Second
	}

	a.logger.Info("Starting queue auto-fill",
		zap.Duration("interval", interval),
		zap.Int("targetQueueLength", a.config.App.TargetQueueLength))

	a.fill(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Queue auto-fill stopped")
			return nil
		case <-ticker.C:
			a.fill(ctx)
		case <-a.wakeup:
			a.logger.Debug("Auto-fill woken up")
			a.fill(ctx)
		}
	}
}

// Wake asks the run loop to fill the queue soon. It never blocks.
func (a *AutoFiller) Wake() {
	select {
	case a.wakeup <- struct{}{}:
	default:
		// Channel full means a fill is already pending.
	}
}

func (a *AutoFiller) fill(ctx context.Context) {
	if !a.acquire() {
		a.logger.Debug("Auto-fill already active, skipping")
		return
	}
	defer a.release()

	if _, err := a.AutoFillQueue(ctx); err != nil {
		a.logger.Error("Auto-fill failed on every tier", zap.Error(err))
	}
}

func (a *AutoFiller) acquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		return false
	}
	a.active = true
	return true
}

func (a *AutoFiller) release() {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()
}
