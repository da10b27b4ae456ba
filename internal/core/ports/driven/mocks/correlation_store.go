package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

var _ driven.CorrelationStore = (*MockCorrelationStore)(nil)

// MockCorrelationStore is an in-memory CorrelationStore with an injectable clock.
type MockCorrelationStore struct {
	mu      sync.Mutex
	records map[string]*domain.Correlation

	Now    func() time.Time
	PutErr error
	TakeFn func(kind domain.CorrelationKind, key string) (*domain.Correlation, error)
}

func NewMockCorrelationStore() *MockCorrelationStore {
	return &MockCorrelationStore{
		records: make(map[string]*domain.Correlation),
		Now:     time.Now,
	}
}

func mockKey(kind domain.CorrelationKind, key string) string {
	return string(kind) + ":" + key
}

func (m *MockCorrelationStore) Put(ctx context.Context, record *domain.Correlation) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	if err := record.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[mockKey(record.Kind, record.Key)] = &cp
	return nil
}

func (m *MockCorrelationStore) TakeOnce(ctx context.Context, kind domain.CorrelationKind, key string) (*domain.Correlation, error) {
	if m.TakeFn != nil {
		return m.TakeFn(kind, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := mockKey(kind, key)
	record, ok := m.records[k]
	if !ok {
		return nil, domain.ErrCorrelationNotFound
	}
	delete(m.records, k)
	if record.IsExpired(m.Now()) {
		return nil, domain.ErrCorrelationNotFound
	}
	return record, nil
}

func (m *MockCorrelationStore) Cleanup(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.Now()
	for k, r := range m.records {
		if r.IsExpired(now) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, expired ones included.
func (m *MockCorrelationStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Records returns a copy of every stored record of a kind.
func (m *MockCorrelationStore) Records(kind domain.CorrelationKind) []*domain.Correlation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Correlation
	for _, r := range m.records {
		if r.Kind == kind {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}
