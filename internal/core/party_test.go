package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"partymix/internal/i18n"
)

type partyFixture struct {
	config   *Config
	queue    *Queue
	sessions *SessionManager
	spotify  *mockSpotify
	features *mockFeatures
	similar  *mockSimilar
	history  *mockHistory
	dedup    *mockDedup
	limiter  *mockLimiter
	waker    *countingWaker
	metrics  *recordingMetrics
	party    *Party
}

func newPartyFixture() *partyFixture {
	f := &partyFixture{
		config:   DefaultConfig(),
		queue:    NewQueue(),
		sessions: NewSessionManager("Test Party"),
		spotify:  newMockSpotify(),
		features: &mockFeatures{byID: map[string]*AudioFeatures{}},
		similar:  &mockSimilar{},
		history:  newMockHistory(),
		dedup:    newMockDedup(),
		limiter:  &mockLimiter{allow: true},
		waker:    &countingWaker{},
		metrics:  newRecordingMetrics(),
	}
	f.party = NewParty(f.config, PartyDeps{
		Queue:    f.queue,
		Sessions: f.sessions,
		Spotify:  f.spotify,
		Features: f.features,
		Similar:  f.similar,
		History:  f.history,
		Dedup:    f.dedup,
		Limiter:  f.limiter,
		Links:    &mockLinks{query: "Rick Astley Never Gonna Give You Up"},
		Waker:    f.waker,
		Metrics:  f.metrics,
	}, zap.NewNop())
	for _, t := range tracksWithPrefix("t", 8) {
		f.spotify.tracks[t.ID] = t
	}
	return f
}

func (f *partyFixture) key() string {
	return f.sessions.Active().Key
}

func TestParty_AddTrack(t *testing.T) {
	f := newPartyFixture()
	f.spotify.searchTracks["daft punk"] = []Track{track("dp", "One More Time", "Daft Punk")}
	f.spotify.searchTracks["Rick Astley Never Gonna Give You Up"] = []Track{track("rick", "Never Gonna Give You Up", "Rick Astley")}

	tests := []struct {
		name    string
		req     AddRequest
		wantID  string
		wantErr error
	}{
		{"by ID", AddRequest{TrackID: "ta"}, "ta", nil},
		{"by Spotify link", AddRequest{URL: "https://open.spotify.com/track/tb"}, "tb", nil},
		{"by URI in the ID field", AddRequest{TrackID: "spotify:track:tc"}, "tc", nil},
		{"by search", AddRequest{Query: "daft punk"}, "dp", nil},
		{"by other music link", AddRequest{URL: "https://youtu.be/dQw4w9WgXcQ"}, "rick", nil},
		{"link pasted as a search", AddRequest{Query: "this one! https://open.spotify.com/track/td?si=x"}, "td", nil},
		{"already queued", AddRequest{TrackID: "ta"}, "", ErrAlreadyQueued},
		{"unknown track", AddRequest{TrackID: "zz"}, "", ErrNotFound},
		{"bad link", AddRequest{URL: "https://example.com/nothing"}, "", ErrNotFound},
		{"no results", AddRequest{Query: "nothing matches"}, "", ErrNotFound},
		{"empty request", AddRequest{}, "", ErrEmptyRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.SessionKey = f.key()
			tt.req.Guest = "alice"
			item, err := f.party.AddTrack(context.Background(), tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("AddTrack() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AddTrack() error: %v", err)
			}
			if item.Track.ID != tt.wantID || item.Source != SourceGuest || item.AddedBy != "alice" {
				t.Errorf("unexpected item %+v", item)
			}
			if !f.dedup.Has(tt.wantID) {
				t.Error("queued track should be remembered by dedup")
			}
		})
	}

	if got := f.metrics.added[SourceGuest]; got != 6 {
		t.Errorf("guest adds = %d, want 6", got)
	}
	if f.waker.wakes != 6 {
		t.Errorf("waker called %d times, want 6", f.waker.wakes)
	}
}

func TestParty_AddTrackInvalidSession(t *testing.T) {
	f := newPartyFixture()

	for _, key := range []string{"", "not-the-key"} {
		_, err := f.party.AddTrack(context.Background(), AddRequest{SessionKey: key, TrackID: "ta"})
		if !errors.Is(err, ErrInvalidSession) {
			t.Errorf("key %q: error = %v, want ErrInvalidSession", key, err)
		}
	}
	if f.queue.Len() != 0 {
		t.Error("nothing should be queued with an invalid session")
	}

	old := f.key()
	if _, err := f.party.ResetSession(context.Background(), "Next Party"); err != nil {
		t.Fatalf("ResetSession() error: %v", err)
	}
	if _, err := f.party.AddTrack(context.Background(), AddRequest{SessionKey: old, TrackID: "ta"}); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("old session key should be rejected, got %v", err)
	}
}

func TestParty_AddTrackCooldown(t *testing.T) {
	f := newPartyFixture()
	now := time.Date(2026, 6, 21, 22, 0, 0, 0, time.UTC)
	f.party.now = func() time.Time { return now }
	_ = f.history.RecordPlay(context.Background(), "ta", "bob", now.Add(-90*time.Minute-30*time.Second))
	_ = f.history.RecordPlay(context.Background(), "tb", "bob", now.Add(-3*time.Hour))

	_, err := f.party.AddTrack(context.Background(), AddRequest{SessionKey: f.key(), TrackID: "ta"})
	var cooldown *CooldownError
	if !errors.As(err, &cooldown) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cooldown.Remaining != 30 {
		t.Errorf("Remaining = %d, want 30", cooldown.Remaining)
	}
	if !errors.Is(err, ErrCooldown) {
		t.Error("CooldownError should unwrap to ErrCooldown")
	}

	if _, err := f.party.AddTrack(context.Background(), AddRequest{SessionKey: f.key(), TrackID: "tb"}); err != nil {
		t.Errorf("track played outside the cooldown should be accepted, got %v", err)
	}

	if _, err := f.party.AddTrack(context.Background(), AddRequest{Admin: true, TrackID: "ta"}); err != nil {
		t.Errorf("admin should bypass the cooldown, got %v", err)
	}
}

func TestParty_AddTrackRateLimited(t *testing.T) {
	f := newPartyFixture()
	f.limiter.allow = false
	f.limiter.retry = 4*time.Minute + 10*time.Second

	_, err := f.party.AddTrack(context.Background(), AddRequest{SessionKey: f.key(), Guest: "alice", TrackID: "ta"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	var limited *RateLimitError
	if !errors.As(err, &limited) || limited.Remaining != 5 {
		t.Errorf("error = %#v, want 5 minutes remaining", err)
	}
	if f.metrics.rejected["rate_limited"] != 1 {
		t.Errorf("rejections: %v", f.metrics.rejected)
	}

	item, err := f.party.AddTrack(context.Background(), AddRequest{Admin: true, Guest: "dj", TrackID: "ta"})
	if err != nil {
		t.Fatalf("admin add error: %v", err)
	}
	if item.Source != SourceAdmin {
		t.Errorf("Source = %q, want %q", item.Source, SourceAdmin)
	}
}

func TestParty_AddTrackTrimsAutoFill(t *testing.T) {
	f := newPartyFixture()
	for _, tr := range tracksWithPrefix("u", DefaultTargetQueueLength) {
		_ = f.queue.Add(QueueItem{Track: tr, Source: SourcePlaylist}, false)
		f.dedup.Add(tr.ID)
	}

	if _, err := f.party.AddTrack(context.Background(), AddRequest{SessionKey: f.key(), TrackID: "ta"}); err != nil {
		t.Fatalf("AddTrack() error: %v", err)
	}

	snap := f.queue.Snapshot()
	if f.queue.Len() != DefaultTargetQueueLength {
		t.Errorf("queue length = %d, want %d", f.queue.Len(), DefaultTargetQueueLength)
	}
	if len(snap.Priority) != 1 || snap.Priority[0].Track.ID != "ta" {
		t.Errorf("priority = %+v", snap.Priority)
	}
	dropped := tracksWithPrefix("u", DefaultTargetQueueLength)[DefaultTargetQueueLength-1].ID
	if f.queue.Contains(dropped) {
		t.Errorf("last auto-filled track %s should have been dropped", dropped)
	}
	if f.dedup.Has(dropped) {
		t.Error("dropped track should be forgotten so it can be picked again")
	}
}

func TestParty_RemoveTrack(t *testing.T) {
	f := newPartyFixture()
	if _, err := f.party.AddTrack(context.Background(), AddRequest{SessionKey: f.key(), TrackID: "ta"}); err != nil {
		t.Fatal(err)
	}

	if err := f.party.RemoveTrack("ta"); err != nil {
		t.Fatalf("RemoveTrack() error: %v", err)
	}
	if f.queue.Contains("ta") || f.dedup.Has("ta") {
		t.Error("removed track should be neither queued nor remembered")
	}
	if err := f.party.RemoveTrack("ta"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove error = %v, want ErrNotFound", err)
	}
}

func TestParty_NextTrackAndSkip(t *testing.T) {
	f := newPartyFixture()
	ctx := context.Background()

	if _, err := f.party.NextTrack(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("NextTrack() on empty queue = %v, want ErrNotFound", err)
	}

	_ = f.queue.Add(QueueItem{Track: track("auto", "Auto", "Filler"), Source: SourcePlaylist}, false)
	if _, err := f.party.AddTrack(ctx, AddRequest{SessionKey: f.key(), Guest: "alice", TrackID: "ta"}); err != nil {
		t.Fatal(err)
	}

	item, err := f.party.NextTrack(ctx)
	if err != nil {
		t.Fatalf("NextTrack() error: %v", err)
	}
	if item.Track.ID != "ta" {
		t.Errorf("guest request should play before auto-fill, got %s", item.Track.ID)
	}
	if _, ok, _ := f.history.LastPlayed(ctx, "ta"); !ok {
		t.Error("played track should be recorded in history")
	}

	item, err = f.party.Skip(ctx)
	if err != nil {
		t.Fatalf("Skip() error: %v", err)
	}
	if item.Track.ID != "auto" {
		t.Errorf("Skip() = %s, want auto", item.Track.ID)
	}
	if len(f.spotify.played) != 1 || f.spotify.played[0] != "auto" {
		t.Errorf("played on Spotify: %v", f.spotify.played)
	}

	np, err := f.party.Current(ctx)
	if err != nil || np == nil || np.Track.ID != "auto" {
		t.Errorf("Current() = %+v, %v", np, err)
	}
}

func TestParty_CurrentFallsBackToSpotify(t *testing.T) {
	f := newPartyFixture()
	ctx := context.Background()

	np, err := f.party.Current(ctx)
	if err != nil || np != nil {
		t.Fatalf("idle Current() = %+v, %v", np, err)
	}
	cf, err := f.party.CurrentFeatures(ctx)
	if err != nil || cf.Playing {
		t.Errorf("idle CurrentFeatures() = %+v, %v", cf, err)
	}

	f.spotify.playing = &NowPlaying{Track: track("ext", "Outside", "Someone"), IsPlaying: true}
	f.features.byID["ext"] = &AudioFeatures{Tempo: 120, Key: "Am"}

	cf, err = f.party.CurrentFeatures(ctx)
	if err != nil {
		t.Fatalf("CurrentFeatures() error: %v", err)
	}
	if !cf.Playing || cf.Track.ID != "ext" || cf.Features == nil || cf.Features.Key != "Am" {
		t.Errorf("unexpected current features %+v", cf)
	}
}

func TestParty_SuggestReasonFollowsLanguage(t *testing.T) {
	f := newPartyFixture()
	f.config.App.Language = i18n.FrenchMessages
	f.party = NewParty(f.config, PartyDeps{
		Queue:    f.queue,
		Sessions: f.sessions,
		Spotify:  f.spotify,
		Features: f.features,
		Similar:  f.similar,
		History:  f.history,
		Dedup:    f.dedup,
	}, zap.NewNop())
	f.spotify.playing = &NowPlaying{Track: track("now", "Get Lucky", "Daft Punk"), IsPlaying: true}
	f.features.byID["now"] = &AudioFeatures{Tempo: 116, Key: "F#m"}
	f.similar.tracks = []SimilarTrack{
		{Name: "Lose Yourself to Dance", Artist: "Daft Punk"},
		{Name: "Instant Crush", Artist: "Daft Punk"},
	}
	f.spotify.searchTracks["track:Lose Yourself to Dance artist:Daft Punk"] = []Track{track("close", "Lose Yourself to Dance", "Daft Punk")}
	f.spotify.searchTracks["track:Instant Crush artist:Daft Punk"] = []Track{track("crush", "Instant Crush", "Daft Punk")}
	f.features.byID["close"] = &AudioFeatures{Tempo: 117, Key: "A"}
	f.features.byID["crush"] = &AudioFeatures{}

	got, err := f.party.Suggest(context.Background(), "", "", 0)
	if err != nil {
		t.Fatalf("Suggest() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(got))
	}
	if got[0].Reason != "tempo ~116 (Δ≈1) • clé F#m ↔ A" {
		t.Errorf("reason = %q", got[0].Reason)
	}
	if got[1].Reason != "Similaire" {
		t.Errorf("reason = %q, want Similaire", got[1].Reason)
	}
}

func TestParty_Suggest(t *testing.T) {
	f := newPartyFixture()
	ctx := context.Background()
	f.spotify.playing = &NowPlaying{Track: track("now", "Get Lucky", "Daft Punk"), IsPlaying: true}
	f.features.byID["now"] = &AudioFeatures{Tempo: 116, Key: "F#m", Energy: 0.8, Danceability: 0.8, HasEnergy: true}

	f.similar.tracks = []SimilarTrack{
		{Name: "Far Away", Artist: "Slow Band"},
		{Name: "", Artist: "Nameless"},
		{Name: "Lose Yourself to Dance", Artist: "Daft Punk"},
		{Name: "No Features", Artist: "Mystery"},
		{Name: "Missing", Artist: "Nobody"},
	}
	f.spotify.searchTracks["track:Far Away artist:Slow Band"] = []Track{track("far", "Far Away", "Slow Band")}
	f.spotify.searchTracks["track:Lose Yourself to Dance artist:Daft Punk"] = []Track{track("close", "Lose Yourself to Dance", "Daft Punk")}
	f.spotify.searchTracks["track:No Features artist:Mystery"] = []Track{track("nofeat", "No Features", "Mystery")}
	f.features.byID["far"] = &AudioFeatures{Tempo: 80, Key: "C"}
	f.features.byID["close"] = &AudioFeatures{Tempo: 117, Key: "F#m"}

	got, err := f.party.Suggest(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("Suggest() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(got))
	}
	if got[0].Track.ID != "close" || got[1].Track.ID != "far" {
		t.Errorf("unexpected order: %s, %s", got[0].Track.ID, got[1].Track.ID)
	}
	if got[0].Distance > got[1].Distance {
		t.Error("suggestions should be sorted by ascending distance")
	}
	if got[0].Reason != "tempo ~116 (Δ≈1) • key F#m ↔ F#m" {
		t.Errorf("reason = %q", got[0].Reason)
	}
	if f.similar.gotName != "Get Lucky" || f.similar.gotArtist != "Daft Punk" {
		t.Errorf("lookup used %q by %q", f.similar.gotName, f.similar.gotArtist)
	}

	got, err = f.party.Suggest(ctx, "Around the World", "Daft Punk, Pharrell Williams", 1)
	if err != nil {
		t.Fatalf("Suggest() error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("limit 1 returned %d suggestions", len(got))
	}
	if f.similar.gotName != "Around the World" || f.similar.gotArtist != "Daft Punk" {
		t.Errorf("overrides not used: %q by %q", f.similar.gotName, f.similar.gotArtist)
	}
	if f.metrics.suggests != 2 {
		t.Errorf("suggest latency observed %d times", f.metrics.suggests)
	}
}

func TestParty_SuggestEmptyCases(t *testing.T) {
	playing := &NowPlaying{Track: track("now", "Obscure B-Side", "Basement Band"), IsPlaying: true}
	withFeatures := map[string]*AudioFeatures{"now": {Tempo: 120, Key: "Am"}}

	tests := []struct {
		name       string
		playing    *NowPlaying
		features   map[string]*AudioFeatures
		similarErr error
		noSimilar  bool
		wantErr    error
	}{
		{name: "nothing playing"},
		{name: "no target features", playing: playing},
		{name: "no similar tracks", playing: playing, features: withFeatures},
		{
			name:       "similar lookup fails",
			playing:    playing,
			features:   withFeatures,
			similarErr: errors.New("Last.fm error 6: Track not found"),
		},
		{name: "Last.fm not configured", playing: playing, features: withFeatures, noSimilar: true, wantErr: ErrSuggestUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPartyFixture()
			f.spotify.playing = tt.playing
			for id, feat := range tt.features {
				f.features.byID[id] = feat
			}
			f.similar.err = tt.similarErr
			if tt.noSimilar {
				f.party.similar = nil
			}

			got, err := f.party.Suggest(context.Background(), "", "", 4)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Suggest() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Suggest() error: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("Suggest() = %#v, want an empty list", got)
			}
		})
	}
}

func TestParty_Search(t *testing.T) {
	f := newPartyFixture()
	f.spotify.searchTracks["disco"] = tracksWithPrefix("d", 15)

	if _, err := f.party.Search(context.Background(), "  ", 5); !errors.Is(err, ErrEmptyRequest) {
		t.Errorf("blank query error = %v", err)
	}
	got, err := f.party.Search(context.Background(), "disco", 0)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(got) != DefaultSearchLimit {
		t.Errorf("got %d results, want %d", len(got), DefaultSearchLimit)
	}
}

func TestParty_ResetSession(t *testing.T) {
	f := newPartyFixture()
	ctx := context.Background()
	if _, err := f.party.AddTrack(ctx, AddRequest{SessionKey: f.key(), TrackID: "ta"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.party.NextTrack(ctx); err != nil {
		t.Fatal(err)
	}
	wakes := f.waker.wakes

	session, err := f.party.ResetSession(ctx, "Second Round")
	if err != nil {
		t.Fatalf("ResetSession() error: %v", err)
	}
	if session.Name != "Second Round" || !f.party.ValidSession(session.Key) {
		t.Errorf("unexpected session %+v", session)
	}
	if _, ok := f.queue.Current(); ok || f.queue.Len() != 0 {
		t.Error("queue should be empty after reset")
	}
	if _, ok, _ := f.history.LastPlayed(ctx, "ta"); ok {
		t.Error("history should be cleared")
	}
	if f.dedup.Size() != 0 || f.limiter.resets != 1 {
		t.Error("dedup and rate limiter should be reset")
	}
	if f.waker.wakes != wakes+1 {
		t.Error("reset should wake the auto-filler")
	}
	if len(f.party.Sessions()) != 2 || f.party.Session().Key != session.Key {
		t.Error("sessions should list the old and the new session")
	}
}
