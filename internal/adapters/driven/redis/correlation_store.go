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
var _ driven.CorrelationStore = (*CorrelationStore)(nil)

const correlationPrefix = "tekitoi:correlation:"

// CorrelationStore implements driven.CorrelationStore using Redis.
// Records expire through Redis TTL and are consumed with GETDEL.
type CorrelationStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewCorrelationStore creates a new Redis-backed CorrelationStore
func NewCorrelationStore(client *redis.Client) *CorrelationStore {
	return &CorrelationStore{client: client, now: time.Now}
}

func correlationKey(kind domain.CorrelationKind, key string) string {
	return correlationPrefix + string(kind) + ":" + key
}

// Put stores the record with a TTL matching its ExpiresAt.
// Records that are already expired are rejected.
func (s *CorrelationStore) Put(ctx context.Context, record *domain.Correlation) error {
	now := s.now()
	if err := record.ValidateAt(now); err != nil {
		return err
	}
	ttl := record.TTL(now)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal correlation: %w", err)
	}
	if err := s.client.Set(ctx, correlationKey(record.Kind, record.Key), data, ttl).Err(); err != nil {
		return domain.StorageFailure("put correlation", err)
	}
	return nil
}

// TakeOnce fetches and deletes the record in a single GETDEL.
func (s *CorrelationStore) TakeOnce(ctx context.Context, kind domain.CorrelationKind, key string) (*domain.Correlation, error) {
	if key == "" {
		return nil, domain.ErrCorrelationNotFound
	}
	data, err := s.client.GetDel(ctx, correlationKey(kind, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCorrelationNotFound
	}
	if err != nil {
		return nil, domain.StorageFailure("take correlation", err)
	}

	var record domain.Correlation
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal correlation: %w", err)
	}
	// Redis expiry has millisecond precision
	if record.Kind != kind || record.IsExpired(s.now()) {
		return nil, domain.ErrCorrelationNotFound
	}
	return &record, nil
}

// Cleanup is a no-op, Redis expires keys natively.
func (s *CorrelationStore) Cleanup(ctx context.Context) (int64, error) {
	return 0, nil
}

// Ping checks if the Redis backend is reachable.
func (s *CorrelationStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
