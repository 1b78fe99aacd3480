package core

import (
	"testing"
	"time"
)

func TestSessionManagerReset(t *testing.T) {
	m := NewSessionManager("Birthday")
	first := m.Active()

	if first.Name != "Birthday" || first.Status != SessionActive {
		t.Errorf("unexpected first session: %+v", first)
	}
	if !m.Validate(first.Key) {
		t.Error("active key should validate")
	}

	second := m.Reset("After party")
	if second.Key == first.Key {
		t.Fatal("reset should produce a new key")
	}
	if m.Validate(first.Key) {
		t.Error("old key should no longer validate")
	}
	if !m.Validate(second.Key) {
		t.Error("new key should validate")
	}
	if m.Validate("") {
		t.Error("empty key should never validate")
	}

	statuses := map[string]string{}
	for _, s := range m.List() {
		statuses[s.Key] = s.Status
	}
	if statuses[first.Key] != SessionClosed || statuses[second.Key] != SessionActive {
		t.Errorf("unexpected statuses: %v", statuses)
	}
}

func TestSessionManagerListOrder(t *testing.T) {
	base := time.Date(2025, 6, 21, 20, 0, 0, 0, time.UTC)
	m := &SessionManager{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return base.Add(-time.Hour) },
	}
	m.Reset("one")
	m.now = func() time.Time { return base }
	m.Reset("two")
	m.now = func() time.Time { return base.Add(time.Hour) }
	m.Reset("")

	list := m.List()
	if len(list) != 3 {
		t.Fatalf("List() returned %d sessions, want 3", len(list))
	}
	if list[0].Name != "Party" {
		t.Errorf("newest session should come first with default name, got %q", list[0].Name)
	}
	if list[0].Display != "Party · 2025-06-21 21:00" {
		t.Errorf("unexpected display %q", list[0].Display)
	}
}
