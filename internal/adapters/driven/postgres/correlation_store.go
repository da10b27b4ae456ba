package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CorrelationStore = (*CorrelationStore)(nil)

// CorrelationStore implements driven.CorrelationStore using PostgreSQL.
// TakeOnce relies on DELETE ... RETURNING so that concurrent takers
// never observe the same row.
type CorrelationStore struct {
	db  *DB
	now func() time.Time
}

// NewCorrelationStore creates a new CorrelationStore
func NewCorrelationStore(db *DB) *CorrelationStore {
	return &CorrelationStore{db: db, now: time.Now}
}

// Put stores a correlation record, replacing any record with the same key.
func (s *CorrelationStore) Put(ctx context.Context, c *domain.Correlation) error {
	if err := c.ValidateAt(s.now()); err != nil {
		return err
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal correlation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO correlations (kind, key, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, key) DO UPDATE SET
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`, string(c.Kind), c.Key, payload, c.CreatedAt, c.ExpiresAt)
	if err != nil {
		return domain.StorageFailure("put correlation", err)
	}
	return nil
}

// TakeOnce deletes and returns the record. Expired rows are consumed
// as well but reported as not found.
func (s *CorrelationStore) TakeOnce(ctx context.Context, kind domain.CorrelationKind, key string) (*domain.Correlation, error) {
	var payload []byte
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM correlations
		WHERE kind = $1 AND key = $2
		RETURNING payload, expires_at
	`, string(kind), key).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCorrelationNotFound
	}
	if err != nil {
		return nil, domain.StorageFailure("take correlation", err)
	}

	if !s.now().Before(expiresAt) {
		return nil, domain.ErrCorrelationNotFound
	}

	var c domain.Correlation
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, domain.StorageFailure("decode correlation", err)
	}
	if c.Kind != kind {
		return nil, domain.ErrCorrelationNotFound
	}
	return &c, nil
}

// Cleanup removes expired records
func (s *CorrelationStore) Cleanup(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM correlations WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, domain.StorageFailure("cleanup correlations", err)
	}
	return result.RowsAffected()
}

// Ping checks if the database is reachable
func (s *CorrelationStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
