package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SessionStore = (*SessionStore)(nil)

// SessionStore keeps sessions in a map
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	now      func() time.Time
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		now:      time.Now,
	}
}

func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = *session
	return nil
}

func (s *SessionStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok || session.IsExpired(s.now()) {
		return nil, domain.ErrNotFound
	}
	return &session, nil
}

func (s *SessionStore) Cleanup(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for token, session := range s.sessions {
		if session.IsExpired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}
