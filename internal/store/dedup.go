// Package store keeps track of what the party has already heard: a bounded
// set of recently queued tracks and the play history used for the replay cooldown.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const spotifyTrackURIPrefix = "spotify:track:"

// RecentTracks is a bounded set of recently queued track IDs. Members expire
// after ttl so a track becomes eligible again once its cooldown is over. The
// bloom filter answers most negative lookups; the LRU holds the exact members.
type RecentTracks struct {
	mu        sync.RWMutex
	filter    *bloom.BloomFilter
	members   *expirable.LRU[string, struct{}]
	capacity  int
	falsePosR float64
}

// NewRecentTracks creates a set remembering at most capacity tracks for ttl each.
// Adding a track again restarts its ttl.
func NewRecentTracks(capacity int, falsePositiveRate float64, ttl time.Duration) *RecentTracks {
	if capacity <= 0 {
		capacity = 1
	}
	return &RecentTracks{
		filter:    bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		members:   expirable.NewLRU[string, struct{}](capacity, nil, ttl),
		capacity:  capacity,
		falsePosR: falsePositiveRate,
	}
}

func normalizeID(trackID string) string {
	return strings.TrimPrefix(strings.TrimSpace(trackID), spotifyTrackURIPrefix)
}

// Has reports whether the track was queued within the ttl.
func (r *RecentTracks) Has(trackID string) bool {
	id := normalizeID(trackID)
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.filter.TestString(id) {
		return false
	}
	// Peek ignores expired entries that the LRU has not reaped yet.
	_, ok := r.members.Peek(id)
	return ok
}

// Add remembers the track, evicting the oldest one once capacity is reached.
func (r *RecentTracks) Add(trackID string) {
	id := normalizeID(trackID)
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(id)
}

func (r *RecentTracks) addLocked(id string) {
	r.filter.AddString(id)
	r.members.Add(id, struct{}{})
}

// Remove forgets the track. The bloom filter keeps the bit set, which only
// costs an extra LRU lookup on later checks. Expired members behave the same way.
func (r *RecentTracks) Remove(trackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members.Remove(normalizeID(trackID))
}

// Load replaces the contents with trackIDs, oldest first.
func (r *RecentTracks) Load(trackIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetLocked()
	for _, trackID := range trackIDs {
		if id := normalizeID(trackID); id != "" {
			r.addLocked(id)
		}
	}
}

// Size returns the number of unexpired members.
func (r *RecentTracks) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members.Keys())
}

func (r *RecentTracks) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *RecentTracks) resetLocked() {
	r.filter = bloom.NewWithEstimates(uint(r.capacity), r.falsePosR)
	r.members.Purge()
}
