package session

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Session Creation and Retrieval Tests
// =============================================================================

func TestNewManager(t *testing.T) {
	mgr := NewManager()
	if mgr == nil {
		t.Fatal("NewManager returned nil")
	}

	if mgr.Count() != 0 {
		t.Errorf("Expected 0 sessions, got %d", mgr.Count())
	}
}

func TestNewSession_AutoGenerateID(t *testing.T) {
	session := NewSession("", "particuliers")

	if len(session.SessionID) != 36 {
		t.Errorf("Expected UUID length 36, got %d", len(session.SessionID))
	}
	if session.Group != "particuliers" {
		t.Errorf("Expected group 'particuliers', got '%s'", session.Group)
	}
	if session.Last() != nil || session.PendingQuestion() != nil {
		t.Error("Expected a fresh session without previous turn")
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	mgr := NewManager()

	first := mgr.GetOrCreate("s-1", "")
	second := mgr.GetOrCreate("s-1", "")
	if first != second {
		t.Error("Expected the same session for the same id")
	}

	created := mgr.Create("")
	if created.SessionID == "s-1" || mgr.Count() != 2 {
		t.Errorf("Expected 2 distinct sessions, got %d", mgr.Count())
	}
}

func TestManager_GetAndDelete(t *testing.T) {
	mgr := NewManager()
	s := mgr.Create("")

	got, err := mgr.Get(s.SessionID)
	if err != nil || got != s {
		t.Fatalf("Get returned %v, %v", got, err)
	}

	if err := mgr.Delete(s.SessionID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := mgr.Get(s.SessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := mgr.Delete(s.SessionID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestManager_CleanupExpired(t *testing.T) {
	mgr := NewManager()
	old := mgr.Create("")
	mgr.Create("")

	old.mu.Lock()
	old.LastUsed = time.Now().Add(-2 * time.Hour)
	old.mu.Unlock()

	if removed := mgr.CleanupExpired(time.Hour); removed != 1 {
		t.Errorf("Expected 1 removed session, got %d", removed)
	}
	if mgr.Count() != 1 {
		t.Errorf("Expected 1 remaining session, got %d", mgr.Count())
	}
}

// =============================================================================
// History Tests
// =============================================================================

func TestSession_History(t *testing.T) {
	s := NewSession("s-1", "")
	s.AddMessage(Message{Role: "user", Content: "taux du livret A"})
	s.AddMessage(Message{Role: "bot", Result: "answer", Metadata: map[string]string{"path": "[Intent:Savings_Rate]"}})

	history := s.GetHistory()
	if len(history) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(history))
	}
	if history[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}

	history[1].Metadata["path"] = "changed"
	if s.GetHistory()[1].Metadata["path"] != "[Intent:Savings_Rate]" {
		t.Error("GetHistory must return a copy")
	}

	s.Reset()
	if len(s.GetHistory()) != 0 {
		t.Error("Expected empty history after reset")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	mgr := NewManager()
	s := mgr.Create("")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := mgr.Get(s.SessionID); err == nil {
				got.AddMessage(Message{Role: "user", Content: "bonjour"})
			}
			mgr.Create("")
		}()
	}
	wg.Wait()

	if len(s.GetHistory()) != 20 {
		t.Errorf("Expected 20 messages, got %d", len(s.GetHistory()))
	}
	if mgr.Count() != 21 {
		t.Errorf("Expected 21 sessions, got %d", mgr.Count())
	}
}
