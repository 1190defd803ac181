// Package session keeps the state of live conversations with a dialog: the
// last execution result, the pending disambiguation question and the history
// of turns.
package session

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"dialogtool/internal/dialog"
	"dialogtool/internal/interpreter"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Manager manages multiple conversation sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// Session is one user's conversation with the dialog
type Session struct {
	SessionID string
	// Group is the federation group the session answers for, if any.
	Group     string
	History   []Message
	CreatedAt time.Time
	LastUsed  time.Time

	last *interpreter.ExecutionResult
	mu   sync.RWMutex
}

// Message represents a single message in the conversation history
type Message struct {
	Role      string            `json:"role"` // "user" or "bot"
	Content   string            `json:"content"`
	Intent    string            `json:"intent,omitempty"`
	Result    string            `json:"result,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewManager creates a new session manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// NewSession creates a new session for the federation group
func NewSession(sessionID, group string) *Session {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := time.Now()
	return &Session{
		SessionID: sessionID,
		Group:     group,
		History:   make([]Message, 0),
		CreatedAt: now,
		LastUsed:  now,
	}
}

// Create registers a new session with a generated id
func (m *Manager) Create(group string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := NewSession("", group)
	m.sessions[session.SessionID] = session
	return session
}

// GetOrCreate gets an existing session or creates a new one
func (m *Manager) GetOrCreate(sessionID, group string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != "" {
		if session, exists := m.sessions[sessionID]; exists {
			session.touch()
			return session
		}
	}

	session := NewSession(sessionID, group)
	m.sessions[session.SessionID] = session
	return session
}

// Get retrieves an existing session
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[sessionID]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	session.touch()
	return session, nil
}

// Delete removes a session
func (m *Manager) Delete(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	delete(m.sessions, sessionID)
	return nil
}

// List returns all session IDs
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpired removes sessions unused for longer than maxAge
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0

	for id, session := range m.sessions {
		if now.Sub(session.lastUsed()) > maxAge {
			delete(m.sessions, id)
			removed++
		}
	}

	return removed
}

// Session Methods

func (s *Session) touch() {
	s.mu.Lock()
	s.LastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) lastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastUsed
}

// Last returns the result of the previous turn, nil before the first one
func (s *Session) Last() *interpreter.ExecutionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// PendingQuestion returns the disambiguation question the previous turn
// stopped on
func (s *Session) PendingQuestion() *dialog.Node {
	if last := s.Last(); last != nil {
		return last.PendingQuestion()
	}
	return nil
}

// SetLast records the result of a turn
func (s *Session) SetLast(res *interpreter.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = res
	s.LastUsed = time.Now()
}

// AddMessage adds a message to the session history
func (s *Session) AddMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.History = append(s.History, msg)
	s.LastUsed = time.Now()
}

// GetHistory returns the message history (read-only)
func (s *Session) GetHistory() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	historyCopy := make([]Message, len(s.History))
	for i, m := range s.History {
		m.Metadata = maps.Clone(m.Metadata)
		historyCopy[i] = m
	}
	return historyCopy
}

// Reset forgets the conversation state
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = nil
	s.History = make([]Message, 0)
	s.LastUsed = time.Now()
}
