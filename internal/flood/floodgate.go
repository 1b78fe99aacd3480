// Package flood limits how many tracks a guest can add to the party queue.
package flood

import (
	"sync"
	"time"
)

const (
	cleanupInterval = 10 * time.Minute
)

// Floodgate is a sliding-window limiter keyed by session and guest.
// A new party session gets a new key, so limits reset with it.
type Floodgate struct {
	limit   int
	window  time.Duration
	entries map[string]*guestEntry
	mutex   sync.Mutex
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type guestEntry struct {
	adds     []time.Time
	lastSeen time.Time
}

// New creates a Floodgate allowing limit adds per window. A limit <= 0 disables limiting.
func New(limit int, window time.Duration) *Floodgate {
	fg := &Floodgate{
		limit:   limit,
		window:  window,
		entries: make(map[string]*guestEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go fg.cleanupLoop()
	return fg
}

// Stop stops the background cleanup goroutine.
func (fg *Floodgate) Stop() {
	fg.once.Do(func() { close(fg.stop) })
}

// Allow records an add for the guest and reports whether it is within the limit.
func (fg *Floodgate) Allow(session, guest string) bool {
	if fg.limit <= 0 {
		return true
	}
	key := session + ":" + guest
	now := fg.now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, exists := fg.entries[key]
	if !exists {
		entry = &guestEntry{adds: make([]time.Time, 0, fg.limit)}
		fg.entries[key] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-fg.window)
	valid := entry.adds[:0]
	for _, ts := range entry.adds {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.adds = valid

	if len(entry.adds) >= fg.limit {
		return false
	}
	entry.adds = append(entry.adds, now)
	return true
}

// Retry returns how long until the guest may add again; zero if allowed now.
func (fg *Floodgate) Retry(session, guest string) time.Duration {
	if fg.limit <= 0 {
		return 0
	}
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, ok := fg.entries[session+":"+guest]
	if !ok || len(entry.adds) < fg.limit {
		return 0
	}
	oldest := entry.adds[len(entry.adds)-fg.limit]
	if wait := oldest.Add(fg.window).Sub(fg.now()); wait > 0 {
		return wait
	}
	return 0
}

// Reset forgets every guest.
func (fg *Floodgate) Reset() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()
	fg.entries = make(map[string]*guestEntry)
}

func (fg *Floodgate) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.performCleanup()
		case <-fg.stop:
			return
		}
	}
}

// performCleanup drops guests idle for longer than the window.
func (fg *Floodgate) performCleanup() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := fg.now().Add(-fg.window)
	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

func (fg *Floodgate) GetStats() Stats {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return Stats{
		ActiveGuests:  len(fg.entries),
		Limit:         fg.limit,
		WindowSeconds: int(fg.window.Seconds()),
	}
}

type Stats struct {
	ActiveGuests  int `json:"active_guests"`
	Limit         int `json:"limit"`
	WindowSeconds int `json:"window_seconds"`
}
