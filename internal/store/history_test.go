package store

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"partymix/internal/core"
)

var (
	_ core.PlayHistory = (*MemoryHistory)(nil)
	_ core.PlayHistory = (*SQLiteHistory)(nil)
	_ core.DedupStore  = (*RecentTracks)(nil)
)

func exerciseHistory(t *testing.T, h core.PlayHistory) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 7, 14, 22, 0, 0, 0, time.UTC)

	if _, ok, err := h.LastPlayed(ctx, "a"); err != nil || ok {
		t.Fatalf("LastPlayed on empty history = %v, %v", ok, err)
	}

	if err := h.RecordPlay(ctx, "a", "alice", base); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}
	if err := h.RecordPlay(ctx, "spotify:track:b", "", base.Add(30*time.Minute)); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}
	if err := h.RecordPlay(ctx, "a", "bob", base.Add(time.Hour)); err != nil {
		t.Fatalf("RecordPlay replay: %v", err)
	}

	at, ok, err := h.LastPlayed(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("LastPlayed(a) = %v, %v", ok, err)
	}
	if !at.Equal(base.Add(time.Hour)) {
		t.Errorf("LastPlayed(a) = %v, want latest play", at)
	}

	ids, err := h.PlayedSince(ctx, base.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("PlayedSince: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("PlayedSince = %v, want [a b]", ids)
	}

	if err := h.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := h.LastPlayed(ctx, "a"); ok {
		t.Error("history should be empty after Clear")
	}
}

func TestMemoryHistory(t *testing.T) {
	exerciseHistory(t, NewMemoryHistory())
}

func TestSQLiteHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := OpenSQLiteHistory(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLiteHistory: %v", err)
	}
	defer h.Close()

	exerciseHistory(t, h)
}

func TestSQLiteHistoryPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	h, err := OpenSQLiteHistory(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLiteHistory: %v", err)
	}
	at := time.Date(2025, 7, 14, 23, 0, 0, 0, time.UTC)
	if err := h.RecordPlay(ctx, "a", "", at); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}
	_ = h.Close()

	reopened, err := OpenSQLiteHistory(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.LastPlayed(ctx, "a")
	if err != nil || !ok || !got.Equal(at) {
		t.Errorf("LastPlayed after reopen = %v, %v, %v", got, ok, err)
	}
}
