package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	s       Session
	expires time.Time
}

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]entry
	claims   map[string]time.Time

	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]entry),
		claims:   make(map[string]time.Time),
		Now:      time.Now,
	}
}

func (m *Memory) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Memory) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[id]
	if !ok || !m.now().Before(e.expires) {
		delete(m.sessions, id)
		return nil, sessionNotFound()
	}
	s := e.s
	s.ID = id
	return &s, nil
}

func (m *Memory) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = entry{s: *s, expires: m.now().Add(TTL)}
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

func (m *Memory) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if until, ok := m.claims[key]; ok && now.Before(until) {
		return false, nil
	}
	m.claims[key] = now.Add(ttl)
	return true, nil
}

var _ Store = (*Memory)(nil)
