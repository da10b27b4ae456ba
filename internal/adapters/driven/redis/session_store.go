package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SessionStore = (*SessionStore)(nil)

const sessionPrefix = "tekitoi:session:"

// SessionStore implements driven.SessionStore using Redis.
// Sessions with an expiry use Redis TTL, the others are kept until evicted.
type SessionStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewSessionStore creates a new Redis-backed SessionStore
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

// Save stores a session with TTL based on ExpiresAt
func (s *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	var ttl time.Duration
	if session.ExpiresAt != nil {
		ttl = session.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			// Session already expired, don't save
			return nil
		}
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionPrefix+session.Token, data, ttl).Err(); err != nil {
		return domain.StorageFailure("save session", err)
	}
	return nil
}

// Get retrieves a session by token value
func (s *SessionStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, sessionPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.StorageFailure("get session", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	if session.IsExpired(s.now()) {
		return nil, domain.ErrNotFound
	}
	return &session, nil
}

// Cleanup is a no-op, Redis expires keys natively.
func (s *SessionStore) Cleanup(ctx context.Context) (int64, error) {
	return 0, nil
}
