package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"partymix/internal/i18n"
	"partymix/pkg/text"
)

const (
	// SimilarTracksLimit is how many Last.fm neighbours are considered per suggestion request
	SimilarTracksLimit = 25
	// SuggestEvaluationFactor bounds the evaluated candidates to limit times this factor
	SuggestEvaluationFactor = 3
	// DefaultSearchLimit is the number of results returned by guest searches
	DefaultSearchLimit = 10
)

// Waker is notified when the queue needs topping up.
type Waker interface {
	Wake()
}

// AddRequest is a guest or admin request to queue a track. Exactly one of
// TrackID, URL or Query is expected; the first non-empty one wins.
type AddRequest struct {
	SessionKey string
	Guest      string
	TrackID    string
	URL        string
	Query      string
	Admin      bool
}

// CurrentFeatures describes the playing track and its audio features.
type CurrentFeatures struct {
	Playing  bool
	Track    *Track
	Features *AudioFeatures
}

// Suggestion is a track that mixes well after the current one.
type Suggestion struct {
	Track    Track
	Reason   string
	Distance float64
}

// Party is the service behind the HTTP handlers.
type Party struct {
	config   *Config
	queue    *Queue
	sessions *SessionManager
	spotify  SpotifyClient
	features FeatureProvider
	similar  SimilarTrackSource
	history  PlayHistory
	dedup    DedupStore
	limiter  RateLimiter
	links    MusicLinkResolver
	waker    Waker
	metrics  Metrics
	reasons  *i18n.Localizer
	logger   *zap.Logger
	now      func() time.Time
}

// PartyDeps groups the collaborators of a Party. Features, Similar, Limiter,
// Links, Waker and Metrics are optional.
type PartyDeps struct {
	Queue    *Queue
	Sessions *SessionManager
	Spotify  SpotifyClient
	Features FeatureProvider
	Similar  SimilarTrackSource
	History  PlayHistory
	Dedup    DedupStore
	Limiter  RateLimiter
	Links    MusicLinkResolver
	Waker    Waker
	Metrics  Metrics
}

func NewParty(config *Config, deps PartyDeps, logger *zap.Logger) *Party {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Party{
		config:   config,
		queue:    deps.Queue,
		sessions: deps.Sessions,
		spotify:  deps.Spotify,
		features: deps.Features,
		similar:  deps.Similar,
		history:  deps.History,
		dedup:    deps.Dedup,
		limiter:  deps.Limiter,
		links:    deps.Links,
		waker:    deps.Waker,
		metrics:  metrics,
		reasons:  i18n.NewLocalizer(config.App.Language),
		logger:   logger,
		now:      time.Now,
	}
}

func (p *Party) wake() {
	if p.waker != nil {
		p.waker.Wake()
	}
}

// AddTrack resolves the request to a track and puts it on the priority list.
// Guests need the active session key, are rate limited and cannot queue a
// track inside its play cooldown; admins skip those checks.
func (p *Party) AddTrack(ctx context.Context, req AddRequest) (*QueueItem, error) {
	if !req.Admin && !p.sessions.Validate(req.SessionKey) {
		p.metrics.TrackRejected("session")
		return nil, ErrInvalidSession
	}

	track, err := p.resolveTrack(ctx, req)
	if err != nil {
		p.metrics.TrackRejected("unresolved")
		return nil, err
	}

	if p.queue.Contains(track.ID) {
		p.metrics.TrackRejected("duplicate")
		return nil, ErrAlreadyQueued
	}

	if !req.Admin {
		if err := p.checkCooldown(ctx, track.ID); err != nil {
			p.metrics.TrackRejected("cooldown")
			return nil, err
		}
		if p.limiter != nil && !p.limiter.Allow(req.SessionKey, req.Guest) {
			p.metrics.TrackRejected("rate_limited")
			wait := p.limiter.Retry(req.SessionKey, req.Guest)
			return nil, &RateLimitError{Remaining: int(math.Ceil(wait.Minutes()))}
		}
	}

	source := SourceGuest
	if req.Admin {
		source = SourceAdmin
	}
	item := QueueItem{Track: *track, AddedBy: req.Guest, Source: source}
	if err := p.queue.Add(item, true); err != nil {
		p.metrics.TrackRejected("duplicate")
		return nil, err
	}
	if p.dedup != nil {
		p.dedup.Add(track.ID)
	}

	// auto-filled tracks make room for guest requests
	for _, dropped := range p.queue.PopUpNextOverflow(p.config.App.TargetQueueLength) {
		if p.dedup != nil {
			p.dedup.Remove(dropped.Track.ID)
		}
		p.logger.Debug("Dropped auto-filled track for guest request",
			zap.String("trackID", dropped.Track.ID))
	}

	p.metrics.TrackAdded(source)
	p.metrics.SetQueueLength(p.queue.Len())
	p.wake()

	p.logger.Info("Track queued",
		zap.String("trackID", track.ID),
		zap.String("title", track.Title),
		zap.String("artist", track.Artist()),
		zap.String("guest", req.Guest),
		zap.String("source", source))

	if added, ok := p.findQueued(track.ID); ok {
		return added, nil
	}
	return &item, nil
}

func (p *Party) findQueued(trackID string) (*QueueItem, bool) {
	snap := p.queue.Snapshot()
	for i := range snap.Priority {
		if snap.Priority[i].Track.ID == trackID {
			return &snap.Priority[i], true
		}
	}
	return nil, false
}

func (p *Party) resolveTrack(ctx context.Context, req AddRequest) (*Track, error) {
	switch {
	case strings.TrimSpace(req.TrackID) != "":
		return p.getTrack(ctx, strings.TrimSpace(req.TrackID))
	case strings.TrimSpace(req.URL) != "":
		link := strings.TrimSpace(req.URL)
		if cleaned := text.CleanURL(link); cleaned != "" {
			link = cleaned
		}
		return p.resolveLink(ctx, link)
	case strings.TrimSpace(req.Query) != "":
		// Guests often paste a link into the search box.
		in := text.Classify(req.Query)
		if in.Kind != text.KindQuery {
			return p.resolveLink(ctx, in.Link)
		}
		return p.searchFirst(ctx, in.Text)
	default:
		return nil, ErrEmptyRequest
	}
}

func (p *Party) getTrack(ctx context.Context, trackID string) (*Track, error) {
	if id, err := p.spotify.ExtractTrackID(trackID); err == nil {
		trackID = id
	}
	track, err := p.spotify.GetTrack(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("get track %s: %w", trackID, err)
	}
	return track, nil
}

// resolveLink handles Spotify links directly and other music links through a search.
func (p *Party) resolveLink(ctx context.Context, url string) (*Track, error) {
	if p.links != nil && p.links.CanResolve(url) {
		query, err := p.links.SearchQuery(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("resolve music link: %w", err)
		}
		p.logger.Debug("Resolved music link", zap.String("url", url), zap.String("query", query))
		return p.searchFirst(ctx, query)
	}

	trackID, err := p.spotify.ExtractTrackID(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, err.Error())
	}
	return p.getTrack(ctx, trackID)
}

func (p *Party) searchFirst(ctx context.Context, query string) (*Track, error) {
	tracks, err := p.spotify.SearchTrack(ctx, query, 1)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if len(tracks) == 0 {
		return nil, ErrNotFound
	}
	return &tracks[0], nil
}

func (p *Party) checkCooldown(ctx context.Context, trackID string) error {
	cooldown := p.config.App.PlayCooldown()
	if p.history == nil || cooldown <= 0 {
		return nil
	}

	last, ok, err := p.history.LastPlayed(ctx, trackID)
	if err != nil {
		p.logger.Warn("Failed to read play history", zap.String("trackID", trackID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	if remaining := last.Add(cooldown).Sub(p.now()); remaining > 0 {
		return &CooldownError{TrackID: trackID, Remaining: int(math.Ceil(remaining.Minutes()))}
	}
	return nil
}

// RemoveTrack drops a waiting track from the queue.
func (p *Party) RemoveTrack(trackID string) error {
	if !p.queue.Remove(trackID) {
		return ErrNotFound
	}
	if p.dedup != nil {
		p.dedup.Remove(trackID)
	}
	p.metrics.SetQueueLength(p.queue.Len())
	p.wake()
	p.logger.Info("Track removed", zap.String("trackID", trackID))
	return nil
}

// NextTrack advances the queue and records the new current track as played.
// It returns ErrNotFound when nothing is queued.
func (p *Party) NextTrack(ctx context.Context) (*QueueItem, error) {
	item, ok := p.queue.Next()
	p.metrics.SetQueueLength(p.queue.Len())
	p.wake()
	if !ok {
		return nil, ErrNotFound
	}

	if p.history != nil {
		if err := p.history.RecordPlay(ctx, item.Track.ID, item.AddedBy, p.now()); err != nil {
			p.logger.Warn("Failed to record play", zap.String("trackID", item.Track.ID), zap.Error(err))
		}
	}
	if p.dedup != nil {
		p.dedup.Add(item.Track.ID)
	}

	p.logger.Info("Now playing",
		zap.String("trackID", item.Track.ID),
		zap.String("title", item.Track.Title),
		zap.String("source", item.Source))
	return item, nil
}

// Skip advances the queue and starts the new track on the active Spotify device.
func (p *Party) Skip(ctx context.Context) (*QueueItem, error) {
	item, err := p.NextTrack(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.spotify.PlayTrack(ctx, item.Track.ID); err != nil {
		return item, fmt.Errorf("play %s: %w", item.Track.ID, err)
	}
	return item, nil
}

func (p *Party) TogglePlay(ctx context.Context) (bool, error) {
	return p.spotify.TogglePlayback(ctx)
}

// Current returns the queue's current track, else what Spotify is playing.
func (p *Party) Current(ctx context.Context) (*NowPlaying, error) {
	playing, err := p.spotify.GetCurrentlyPlaying(ctx)
	if err != nil {
		p.logger.Debug("Currently playing unavailable", zap.Error(err))
		playing = nil
	}

	if cur, ok := p.queue.Current(); ok {
		np := &NowPlaying{Track: cur.Track, IsPlaying: true}
		if playing != nil && playing.Track.ID == cur.Track.ID {
			np.IsPlaying = playing.IsPlaying
			np.Progress = playing.Progress
		}
		return np, nil
	}
	if playing == nil && err != nil {
		return nil, err
	}
	return playing, nil
}

func (p *Party) Queue() QueueSnapshot {
	return p.queue.Snapshot()
}

// Search returns catalogue tracks matching q.
func (p *Party) Search(ctx context.Context, q string, limit int) ([]Track, error) {
	if strings.TrimSpace(q) == "" {
		return nil, ErrEmptyRequest
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return p.spotify.SearchTrack(ctx, q, limit)
}

// AudioFeatures returns the features of a track, or nil when the source has none.
func (p *Party) AudioFeatures(ctx context.Context, trackID string) (*AudioFeatures, error) {
	if p.features == nil {
		return nil, nil
	}
	track, err := p.spotify.GetTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	return p.features.Features(ctx, *track)
}

// CurrentFeatures returns the currently playing track and its audio features.
func (p *Party) CurrentFeatures(ctx context.Context) (*CurrentFeatures, error) {
	np, err := p.Current(ctx)
	if err != nil {
		return nil, err
	}
	if np == nil {
		return &CurrentFeatures{Playing: false}, nil
	}

	out := &CurrentFeatures{Playing: true, Track: &np.Track}
	if p.features != nil {
		f, err := p.features.Features(ctx, np.Track)
		if err != nil {
			p.logger.Warn("Failed to get current features", zap.String("trackID", np.Track.ID), zap.Error(err))
		}
		out.Features = f
	}
	return out, nil
}

// Suggest proposes up to limit tracks that mix well after the current one.
// name and artists override the Last.fm lookup; features are always those of
// the playing track.
func (p *Party) Suggest(ctx context.Context, name, artists string, limit int) ([]Suggestion, error) {
	started := p.now()
	defer func() { p.metrics.ObserveSuggest(p.now().Sub(started)) }()

	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	if limit > MaxSuggestLimit {
		limit = MaxSuggestLimit
	}
	if p.similar == nil {
		return nil, ErrSuggestUnavailable
	}

	np, err := p.Current(ctx)
	if err != nil {
		return nil, err
	}
	if np == nil {
		return []Suggestion{}, nil
	}

	var target *AudioFeatures
	if p.features != nil {
		target, err = p.features.Features(ctx, np.Track)
		if err != nil {
			p.logger.Warn("Failed to get target features", zap.String("trackID", np.Track.ID), zap.Error(err))
		}
	}
	if target == nil {
		return []Suggestion{}, nil
	}

	if strings.TrimSpace(name) == "" {
		name = np.Track.Title
	}
	artist := firstArtist(artists)
	if artist == "" {
		artist = np.Track.PrimaryArtist()
	}

	similar, err := p.similar.SimilarTracks(ctx, name, artist, SimilarTracksLimit)
	if err != nil {
		// Last.fm answers "Track not found" for many tracks; that means no suggestions.
		p.logger.Warn("Similar tracks lookup failed",
			zap.String("name", name),
			zap.String("artist", artist),
			zap.Error(err))
		return []Suggestion{}, nil
	}

	results := make([]Suggestion, 0, limit*SuggestEvaluationFactor)
	for _, s := range similar {
		if len(results) >= limit*SuggestEvaluationFactor {
			break
		}
		if s.Name == "" || s.Artist == "" {
			continue
		}

		tracks, err := p.spotify.SearchTrack(ctx, "track:"+s.Name+" artist:"+s.Artist, 1)
		if err != nil || len(tracks) == 0 {
			continue
		}
		candidate := tracks[0]

		f, err := p.features.Features(ctx, candidate)
		if err != nil || f == nil {
			continue
		}

		results = append(results, Suggestion{
			Track:    candidate,
			Reason:   ReasonText(p.reasons, *target, *f),
			Distance: CompatibilityDistance(*target, *f),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func firstArtist(artists string) string {
	first, _, _ := strings.Cut(artists, ",")
	return strings.TrimSpace(first)
}

// ResetSession starts a new party: a new session key, an empty queue and a
// clean play history.
func (p *Party) ResetSession(ctx context.Context, name string) (Session, error) {
	session := p.sessions.Reset(name)
	p.queue.Reset()

	var errs []error
	if p.history != nil {
		if err := p.history.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clear history: %w", err))
		}
	}
	if p.dedup != nil {
		p.dedup.Clear()
	}
	if p.limiter != nil {
		p.limiter.Reset()
	}

	p.metrics.SetQueueLength(0)
	p.wake()

	p.logger.Info("Session reset",
		zap.String("name", session.Name),
		zap.String("display", session.Display))
	return session, errors.Join(errs...)
}

func (p *Party) Session() Session {
	return p.sessions.Active()
}

func (p *Party) Sessions() []Session {
	return p.sessions.List()
}

// ValidSession reports whether key is the active session key.
func (p *Party) ValidSession(key string) bool {
	return p.sessions.Validate(key)
}
