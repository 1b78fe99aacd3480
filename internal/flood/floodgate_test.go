package flood

import (
	"sync"
	"testing"
	"time"

	"partymix/internal/core"
)

var _ core.RateLimiter = (*Floodgate)(nil)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestGate(limit int, window time.Duration) (*Floodgate, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 8, 1, 21, 0, 0, 0, time.UTC)}
	fg := New(limit, window)
	fg.now = clock.Now
	return fg, clock
}

func TestFloodgate_Allow(t *testing.T) {
	fg, _ := newTestGate(3, 10*time.Minute)
	defer fg.Stop()

	for i := 0; i < 3; i++ {
		if !fg.Allow("s1", "alice") {
			t.Errorf("add %d should be allowed", i+1)
		}
	}
	if fg.Allow("s1", "alice") {
		t.Error("4th add should be blocked")
	}
}

func TestFloodgate_SlidingWindow(t *testing.T) {
	fg, clock := newTestGate(2, time.Minute)
	defer fg.Stop()

	fg.Allow("s1", "alice")
	clock.Advance(30 * time.Second)
	fg.Allow("s1", "alice")

	if fg.Allow("s1", "alice") {
		t.Fatal("third add inside the window should be blocked")
	}
	if wait := fg.Retry("s1", "alice"); wait != 30*time.Second {
		t.Errorf("Retry() = %v, want 30s", wait)
	}

	clock.Advance(31 * time.Second)
	if !fg.Allow("s1", "alice") {
		t.Error("add should be allowed once the oldest entry left the window")
	}
	if fg.Allow("s1", "alice") {
		t.Error("window should be full again")
	}
}

func TestFloodgate_PerSessionPerGuest(t *testing.T) {
	fg, _ := newTestGate(1, time.Minute)
	defer fg.Stop()

	tests := []struct {
		session string
		guest   string
	}{
		{"s1", "alice"},
		{"s1", "bob"},
		{"s2", "alice"},
	}
	for _, tt := range tests {
		if !fg.Allow(tt.session, tt.guest) {
			t.Errorf("first add for %s/%s should be allowed", tt.session, tt.guest)
		}
	}
	for _, tt := range tests {
		if fg.Allow(tt.session, tt.guest) {
			t.Errorf("second add for %s/%s should be blocked", tt.session, tt.guest)
		}
	}

	if stats := fg.GetStats(); stats.ActiveGuests != 3 || stats.Limit != 1 || stats.WindowSeconds != 60 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestFloodgate_EdgeCases(t *testing.T) {
	t.Run("zero limit disables limiting", func(t *testing.T) {
		fg, _ := newTestGate(0, time.Minute)
		defer fg.Stop()
		for i := 0; i < 10; i++ {
			if !fg.Allow("s", "g") {
				t.Fatal("zero limit should allow everything")
			}
		}
		if fg.Retry("s", "g") != 0 {
			t.Error("Retry should be zero when limiting is disabled")
		}
	})

	t.Run("reset", func(t *testing.T) {
		fg, _ := newTestGate(1, time.Minute)
		defer fg.Stop()
		fg.Allow("s", "g")
		fg.Reset()
		if !fg.Allow("s", "g") {
			t.Error("Reset should forget previous adds")
		}
	})

	t.Run("stop twice", func(t *testing.T) {
		fg, _ := newTestGate(1, time.Minute)
		fg.Stop()
		fg.Stop()
	})
}

func TestFloodgate_Cleanup(t *testing.T) {
	fg, clock := newTestGate(1, time.Minute)
	defer fg.Stop()

	fg.Allow("s", "idle")
	clock.Advance(2 * time.Minute)
	fg.Allow("s", "active")
	fg.performCleanup()

	if stats := fg.GetStats(); stats.ActiveGuests != 1 {
		t.Errorf("ActiveGuests = %d, want 1 after cleanup", stats.ActiveGuests)
	}
}

func TestFloodgate_ConcurrentAccess(t *testing.T) {
	fg := New(10, time.Minute)
	defer fg.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if fg.Allow("s", "g") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed %d adds, want exactly 10", allowed)
	}
}
