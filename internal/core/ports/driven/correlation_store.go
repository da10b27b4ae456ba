package driven

import (
	"context"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

// CorrelationStore keeps the ephemeral, TTL-bound records linking the steps
// of an authorization flow. Records are single-use.
type CorrelationStore interface {
	// Put stores a record until its ExpiresAt.
	Put(ctx context.Context, record *domain.Correlation) error

	// TakeOnce atomically retrieves and removes a record.
	// Concurrent callers with the same key have exactly one winner; every
	// other caller, and any caller after ExpiresAt, gets domain.ErrCorrelationNotFound.
	TakeOnce(ctx context.Context, kind domain.CorrelationKind, key string) (*domain.Correlation, error)

	// Cleanup removes expired records and returns how many were removed.
	// Backends with native expiry return 0.
	Cleanup(ctx context.Context) (int64, error)
}
