package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func item(id, source string) QueueItem {
	return QueueItem{Track: Track{ID: id, Title: "Title " + id, Artists: []string{"Artist"}}, Source: source}
}

func TestQueueAddDedup(t *testing.T) {
	q := NewQueue()

	if err := q.Add(item("a", SourcePlaylist), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Add(item("a", SourceGuest), true); !errors.Is(err, ErrAlreadyQueued) {
		t.Errorf("expected ErrAlreadyQueued, got %v", err)
	}

	q.Next()
	if err := q.Add(item("a", SourceGuest), true); !errors.Is(err, ErrAlreadyQueued) {
		t.Errorf("current track should count as queued, got %v", err)
	}
	if !q.Contains("a") {
		t.Error("Contains(a) = false")
	}
}

func TestQueueNextPriorityFirst(t *testing.T) {
	q := NewQueue()
	_ = q.Add(item("auto1", SourcePlaylist), false)
	_ = q.Add(item("auto2", SourcePlaylist), false)
	_ = q.Add(item("guest1", SourceGuest), true)

	want := []string{"guest1", "auto1", "auto2"}
	for _, id := range want {
		next, ok := q.Next()
		if !ok {
			t.Fatalf("expected %s, queue empty", id)
		}
		if next.Track.ID != id {
			t.Errorf("Next() = %s, want %s", next.Track.ID, id)
		}
		cur, _ := q.Current()
		if cur.Track.ID != id {
			t.Errorf("Current() = %s, want %s", cur.Track.ID, id)
		}
	}

	if _, ok := q.Next(); ok {
		t.Error("expected empty queue")
	}
	if _, ok := q.Current(); ok {
		t.Error("current should be cleared when the queue runs dry")
	}
}

func TestQueueRemove(t *testing.T) {
	q := NewQueue()
	_ = q.Add(item("a", SourcePlaylist), false)
	_ = q.Add(item("b", SourceGuest), true)

	if !q.Remove("b") {
		t.Error("Remove(b) = false")
	}
	if q.Remove("missing") {
		t.Error("Remove(missing) = true")
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestQueueSnapshotIsCopy(t *testing.T) {
	q := NewQueue()
	_ = q.Add(item("a", SourcePlaylist), false)
	_ = q.Add(item("b", SourcePlaylist), false)
	q.Next()

	snap := q.Snapshot()
	snap.UpNext[0].Track.ID = "mutated"
	snap.Current.Track.ID = "mutated"

	again := q.Snapshot()
	if again.UpNext[0].Track.ID != "b" || again.Current.Track.ID != "a" {
		t.Error("snapshot mutation leaked into the queue")
	}
}

func TestQueuePopUpNextOverflow(t *testing.T) {
	tests := []struct {
		name        string
		priority    int
		upNext      int
		target      int
		wantDropped int
		wantLen     int
	}{
		{"under target", 1, 2, 6, 0, 3},
		{"auto items trimmed", 2, 5, 6, 1, 6},
		{"priority never dropped", 7, 2, 6, 2, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue()
			for i := 0; i < tt.priority; i++ {
				_ = q.Add(item(fmt.Sprintf("p%d", i), SourceGuest), true)
			}
			for i := 0; i < tt.upNext; i++ {
				_ = q.Add(item(fmt.Sprintf("u%d", i), SourcePlaylist), false)
			}

			dropped := q.PopUpNextOverflow(tt.target)
			if len(dropped) != tt.wantDropped {
				t.Errorf("dropped %d, want %d", len(dropped), tt.wantDropped)
			}
			if q.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", q.Len(), tt.wantLen)
			}
		})
	}
}

func TestQueueTrackIDsAndLast(t *testing.T) {
	q := NewQueue()
	if _, ok := q.Last(); ok {
		t.Error("Last() on empty queue should be false")
	}

	_ = q.Add(item("a", SourcePlaylist), false)
	_ = q.Add(item("b", SourcePlaylist), false)
	_ = q.Add(item("c", SourceGuest), true)
	q.Next()

	ids := q.TrackIDs()
	if len(ids) != 3 || ids[0] != "c" {
		t.Errorf("TrackIDs() = %v", ids)
	}
	last, _ := q.Last()
	if last.Track.ID != "b" {
		t.Errorf("Last() = %s, want b", last.Track.ID)
	}

	q.Reset()
	if q.Len() != 0 || len(q.TrackIDs()) != 0 {
		t.Error("Reset() should clear everything")
	}
}

func TestQueueConcurrentAdds(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = q.Add(item(fmt.Sprintf("t%d", i%10), SourceGuest), true)
		}(i)
	}
	wg.Wait()

	if q.Len() != 10 {
		t.Errorf("Len() = %d, want 10 unique tracks", q.Len())
	}
}
