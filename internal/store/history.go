package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type playRecord struct {
	at    time.Time
	guest string
}

// MemoryHistory keeps the last play time of each track in memory.
type MemoryHistory struct {
	mu     sync.RWMutex
	played map[string]playRecord
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{played: make(map[string]playRecord)}
}

func (h *MemoryHistory) RecordPlay(_ context.Context, trackID, guest string, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.played[normalizeID(trackID)] = playRecord{at: at, guest: guest}
	return nil
}

func (h *MemoryHistory) LastPlayed(_ context.Context, trackID string) (time.Time, bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rec, ok := h.played[normalizeID(trackID)]
	return rec.at, ok, nil
}

func (h *MemoryHistory) PlayedSince(_ context.Context, since time.Time) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ids []string
	for id, rec := range h.played {
		if !rec.at.Before(since) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (h *MemoryHistory) Clear(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.played = make(map[string]playRecord)
	return nil
}

const historySchema = `
CREATE TABLE IF NOT EXISTS plays (
	track_id  TEXT PRIMARY KEY,
	guest     TEXT NOT NULL DEFAULT '',
	played_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS plays_played_at ON plays (played_at);
`

// SQLiteHistory persists play times so the replay cooldown survives restarts.
type SQLiteHistory struct {
	db *sql.DB
}

// OpenSQLiteHistory opens (and migrates) the history database at path.
func OpenSQLiteHistory(ctx context.Context, path string) (*SQLiteHistory, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

func (h *SQLiteHistory) RecordPlay(ctx context.Context, trackID, guest string, at time.Time) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO plays (track_id, guest, played_at) VALUES (?, ?, ?)
		ON CONFLICT (track_id) DO UPDATE SET guest = excluded.guest, played_at = excluded.played_at
	`, normalizeID(trackID), guest, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record play: %w", err)
	}
	return nil
}

func (h *SQLiteHistory) LastPlayed(ctx context.Context, trackID string) (time.Time, bool, error) {
	var nanos int64
	err := h.db.QueryRowContext(ctx,
		`SELECT played_at FROM plays WHERE track_id = ?`, normalizeID(trackID)).Scan(&nanos)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query play history: %w", err)
	}
	return time.Unix(0, nanos), true, nil
}

func (h *SQLiteHistory) PlayedSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT track_id FROM plays WHERE played_at >= ? ORDER BY played_at DESC`, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query play history: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (h *SQLiteHistory) Clear(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, `DELETE FROM plays`); err != nil {
		return fmt.Errorf("failed to clear play history: %w", err)
	}
	return nil
}

func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
