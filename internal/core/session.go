package core

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session statuses
const (
	SessionActive = "active"
	SessionClosed = "closed"
)

type Session struct {
	Key       string
	Name      string
	Display   string
	Status    string
	CreatedAt time.Time
}

// SessionManager hands out party session keys. Guests must present the
// active key; resetting the session invalidates every previously shared link.
type SessionManager struct {
	mu       sync.RWMutex
	active   string
	sessions map[string]*Session
	now      func() time.Time
}

func NewSessionManager(name string) *SessionManager {
	m := &SessionManager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
	m.Reset(name)
	return m
}

// Reset closes the active session and starts a new one with a fresh key.
func (m *SessionManager) Reset(name string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[m.active]; ok {
		prev.Status = SessionClosed
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "Party"
	}
	key := uuid.NewString()
	now := m.now()
	s := &Session{
		Key:       key,
		Name:      name,
		Display:   name + " · " + now.Format("2006-01-02 15:04"),
		Status:    SessionActive,
		CreatedAt: now,
	}
	m.sessions[key] = s
	m.active = key
	return *s
}

// Validate reports whether key is the active session key.
func (m *SessionManager) Validate(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return key != "" && key == m.active
}

func (m *SessionManager) Active() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.sessions[m.active]
}

// List returns all sessions, newest first.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
