package driven

import (
	"context"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

// SessionStore handles access token persistence
type SessionStore interface {
	// Save stores a session with TTL based on ExpiresAt
	Save(ctx context.Context, session *domain.Session) error

	// Get retrieves a session by token value.
	// Returns domain.ErrNotFound for unknown or expired tokens.
	Get(ctx context.Context, token string) (*domain.Session, error)

	// Cleanup removes expired sessions and returns how many were removed
	Cleanup(ctx context.Context) (int64, error)
}
