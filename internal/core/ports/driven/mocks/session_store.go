package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

var _ driven.SessionStore = (*MockSessionStore)(nil)

// MockSessionStore is a mock implementation of SessionStore
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session

	Now     func() time.Time
	SaveErr error
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[string]*domain.Session),
		Now:      time.Now,
	}
}

func (m *MockSessionStore) Save(ctx context.Context, session *domain.Session) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.sessions[session.Token] = &cp
	return nil
}

func (m *MockSessionStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok || s.IsExpired(m.Now()) {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSessionStore) Cleanup(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.Now()
	for k, s := range m.sessions {
		if s.IsExpired(now) {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MockSessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
