package core

import (
	"sync"
	"time"
)

// Queue sources
const (
	SourceGuest    = "guest"
	SourceAdmin    = "admin"
	SourcePlaylist = "playlist"
	SourceSimilar  = "similar"
	SourceFallback = "fallback"
	SourceTheme    = "theme"
)

type QueueItem struct {
	Track   Track
	AddedBy string
	Source  string
	AddedAt time.Time
}

type QueueSnapshot struct {
	Current  *QueueItem
	Priority []QueueItem
	UpNext   []QueueItem
}

// Queue is the in-memory play queue. Requests from guests and the admin go to
// the priority list and always play before auto-filled tracks.
type Queue struct {
	mu       sync.RWMutex
	current  *QueueItem
	priority []QueueItem
	upNext   []QueueItem
}

func NewQueue() *Queue {
	return &Queue{}
}

// Add appends item to the priority or up-next list.
// It returns ErrAlreadyQueued if the track is current or already waiting.
func (q *Queue) Add(item QueueItem, priority bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.containsLocked(item.Track.ID) {
		return ErrAlreadyQueued
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	if priority {
		q.priority = append(q.priority, item)
	} else {
		q.upNext = append(q.upNext, item)
	}
	return nil
}

// Contains reports whether the track is current or queued.
func (q *Queue) Contains(trackID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.containsLocked(trackID)
}

func (q *Queue) containsLocked(trackID string) bool {
	if q.current != nil && q.current.Track.ID == trackID {
		return true
	}
	for _, it := range q.priority {
		if it.Track.ID == trackID {
			return true
		}
	}
	for _, it := range q.upNext {
		if it.Track.ID == trackID {
			return true
		}
	}
	return false
}

// Remove drops the track from both waiting lists. The current track is left alone.
func (q *Queue) Remove(trackID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	before := len(q.priority) + len(q.upNext)
	q.priority = filterOut(q.priority, trackID)
	q.upNext = filterOut(q.upNext, trackID)
	return len(q.priority)+len(q.upNext) < before
}

func filterOut(items []QueueItem, trackID string) []QueueItem {
	kept := items[:0]
	for _, it := range items {
		if it.Track.ID != trackID {
			kept = append(kept, it)
		}
	}
	return kept
}

// Next shifts the next waiting item into current. Priority items go first.
// When nothing is waiting, current is cleared and false is returned.
func (q *Queue) Next() (*QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next QueueItem
	switch {
	case len(q.priority) > 0:
		next, q.priority = q.priority[0], q.priority[1:]
	case len(q.upNext) > 0:
		next, q.upNext = q.upNext[0], q.upNext[1:]
	default:
		q.current = nil
		return nil, false
	}
	q.current = &next
	item := next
	return &item, true
}

// Current returns a copy of the current item.
func (q *Queue) Current() (*QueueItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.current == nil {
		return nil, false
	}
	item := *q.current
	return &item, true
}

// Last returns the most recently queued item, falling back to current.
func (q *Queue) Last() (*QueueItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var item QueueItem
	switch {
	case len(q.upNext) > 0:
		item = q.upNext[len(q.upNext)-1]
	case len(q.priority) > 0:
		item = q.priority[len(q.priority)-1]
	case q.current != nil:
		item = *q.current
	default:
		return nil, false
	}
	return &item, true
}

func (q *Queue) Snapshot() QueueSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	snap := QueueSnapshot{
		Priority: append([]QueueItem{}, q.priority...),
		UpNext:   append([]QueueItem{}, q.upNext...),
	}
	if q.current != nil {
		cur := *q.current
		snap.Current = &cur
	}
	return snap
}

// Len returns the number of waiting items.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.priority) + len(q.upNext)
}

// TrackIDs returns the current and waiting track IDs.
func (q *Queue) TrackIDs() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ids := make([]string, 0, len(q.priority)+len(q.upNext)+1)
	if q.current != nil {
		ids = append(ids, q.current.Track.ID)
	}
	for _, it := range q.priority {
		ids = append(ids, it.Track.ID)
	}
	for _, it := range q.upNext {
		ids = append(ids, it.Track.ID)
	}
	return ids
}

// PopUpNextOverflow trims auto-filled items from the tail until Len() <= target.
// Priority items are never dropped. The removed items are returned.
func (q *Queue) PopUpNextOverflow(target int) []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	excess := len(q.priority) + len(q.upNext) - target
	if excess <= 0 {
		return nil
	}
	if excess > len(q.upNext) {
		excess = len(q.upNext)
	}
	cut := len(q.upNext) - excess
	dropped := append([]QueueItem{}, q.upNext[cut:]...)
	q.upNext = q.upNext[:cut]
	return dropped
}

func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = nil
	q.priority = nil
	q.upNext = nil
}
