package session

import (
	"errors"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("doc-1", "voice-a")
	if s.ID == "" {
		t.Fatalf("expected generated session id")
	}
	if s.Status != StatusActive {
		t.Fatalf("status = %q, want active", s.Status)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.DocumentID != "doc-1" {
		t.Fatalf("DocumentID = %q, want doc-1", got.DocumentID)
	}

	// Get must return a copy, not shared state.
	got.DocumentID = "mutated"
	again, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if again.DocumentID != "doc-1" {
		t.Fatalf("session state leaked through Get copy")
	}
}

func TestEndRemovesSession(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("doc-1", "")
	if err := m.End(s.ID); err != nil {
		t.Fatalf("End error: %v", err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after End = %v, want ErrNotFound", err)
	}
	if err := m.End(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double End = %v, want ErrNotFound", err)
	}
}

func TestExpiryEvictsIdleSessions(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	var expired []string
	m.SetExpireHook(func(s *Session) {
		expired = append(expired, s.ID)
	})

	s := m.Create("doc-1", "")
	m.expireBefore(time.Now().UTC().Add(time.Second))

	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount = %d, want 0", m.ActiveCount())
	}
	if len(expired) != 1 || expired[0] != s.ID {
		t.Fatalf("expire hook saw %v, want [%s]", expired, s.ID)
	}
}

func TestTouchKeepsSessionAlive(t *testing.T) {
	m := NewManager(50 * time.Millisecond)
	s := m.Create("doc-1", "")
	if err := m.Touch(s.ID); err != nil {
		t.Fatalf("Touch error: %v", err)
	}
	m.expireBefore(time.Now().UTC())
	if m.ActiveCount() != 1 {
		t.Fatalf("session expired despite recent activity")
	}
}
