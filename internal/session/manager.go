package session

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Manager tracks the active sessions by key.
type Manager struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty manager. If log is nil, slog.Default() is used.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "session-manager"),
		sessions: make(map[string]*Session),
	}
}

// Add registers s. It returns false if a session with the same key exists.
func (m *Manager) Add(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.Key]; ok {
		m.log.Warn("session already exists, rejecting duplicate", "key", s.Key)
		return false
	}
	m.sessions[s.Key] = s
	m.log.Info("session added", "key", s.Key, "transport", s.Transport)
	return true
}

// Get returns the session for key.
func (m *Manager) Get(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Remove closes and forgets the session for key.
func (m *Manager) Remove(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if ok {
		s.Close()
		m.log.Info("session removed", "key", key)
	}
}

// List returns the active sessions ordered by key.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Session) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll removes every session.
func (m *Manager) CloseAll() {
	for _, s := range m.List() {
		m.Remove(s.Key)
	}
}
