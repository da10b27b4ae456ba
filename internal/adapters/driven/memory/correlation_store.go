package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CorrelationStore = (*CorrelationStore)(nil)

type correlationKey struct {
	kind domain.CorrelationKind
	key  string
}

// CorrelationStore keeps correlation records in a map.
// Expired records are dropped on read and by Cleanup.
type CorrelationStore struct {
	mu      sync.Mutex
	records map[correlationKey]domain.Correlation
	now     func() time.Time
}

// NewCorrelationStore creates an empty store
func NewCorrelationStore() *CorrelationStore {
	return &CorrelationStore{
		records: make(map[correlationKey]domain.Correlation),
		now:     time.Now,
	}
}

func (s *CorrelationStore) Put(ctx context.Context, record *domain.Correlation) error {
	if err := record.ValidateAt(s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[correlationKey{record.Kind, record.Key}] = *record
	return nil
}

func (s *CorrelationStore) TakeOnce(ctx context.Context, kind domain.CorrelationKind, key string) (*domain.Correlation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := correlationKey{kind, key}
	record, ok := s.records[k]
	if !ok {
		return nil, domain.ErrCorrelationNotFound
	}
	delete(s.records, k)
	if record.IsExpired(s.now()) {
		return nil, domain.ErrCorrelationNotFound
	}
	return &record, nil
}

func (s *CorrelationStore) Cleanup(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for k, record := range s.records {
		if record.IsExpired(now) {
			delete(s.records, k)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds
func (s *CorrelationStore) Ping(ctx context.Context) error {
	return nil
}
