package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

func pendingRecord(id string, now time.Time, ttl time.Duration) *domain.Correlation {
	return domain.NewPendingCorrelation(&domain.PendingAuthorizationRequest{
		ID:          id,
		ClientID:    "app1",
		RedirectURI: "https://relying.example/cb",
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	})
}

func TestCorrelationStore_TakeOnce(t *testing.T) {
	s := NewCorrelationStore()
	ctx := context.Background()

	if err := s.Put(ctx, pendingRecord("r1", time.Now(), time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.TakeOnce(ctx, domain.CorrelationPending, "r1")
	if err != nil || got.Pending.ClientID != "app1" {
		t.Fatalf("TakeOnce = %+v, %v", got, err)
	}
	if _, err := s.TakeOnce(ctx, domain.CorrelationPending, "r1"); !errors.Is(err, domain.ErrCorrelationNotFound) {
		t.Errorf("expected second take to fail, got %v", err)
	}
}

func TestCorrelationStore_Expiry(t *testing.T) {
	s := NewCorrelationStore()
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	_ = s.Put(ctx, pendingRecord("r1", now, time.Minute))
	_ = s.Put(ctx, pendingRecord("r2", now, time.Minute))
	_ = s.Put(ctx, pendingRecord("r3", now, time.Hour))

	now = now.Add(2 * time.Minute)
	if _, err := s.TakeOnce(ctx, domain.CorrelationPending, "r1"); !errors.Is(err, domain.ErrCorrelationNotFound) {
		t.Errorf("expected expired record to be unusable, got %v", err)
	}

	removed, err := s.Cleanup(ctx)
	if err != nil || removed != 1 {
		t.Errorf("Cleanup = %d, %v; want 1", removed, err)
	}
	if _, err := s.TakeOnce(ctx, domain.CorrelationPending, "r3"); err != nil {
		t.Errorf("expected live record to survive cleanup, got %v", err)
	}
}

func TestCorrelationStore_RejectsExpiredPut(t *testing.T) {
	s := NewCorrelationStore()
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Put(ctx, pendingRecord("stale", now.Add(-time.Hour), time.Minute)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.TakeOnce(ctx, domain.CorrelationPending, "stale"); !errors.Is(err, domain.ErrCorrelationNotFound) {
		t.Errorf("expected nothing stored, got %v", err)
	}
}

func TestCorrelationStore_ConcurrentTake(t *testing.T) {
	s := NewCorrelationStore()
	ctx := context.Background()
	_ = s.Put(ctx, pendingRecord("race", time.Now(), time.Minute))

	var wg sync.WaitGroup
	results := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TakeOnce(ctx, domain.CorrelationPending, "race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
}

func TestSessionStore(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	exp := now.Add(time.Minute)
	_ = s.Save(ctx, &domain.Session{Token: "short", UserID: "u1", ExpiresAt: &exp})
	_ = s.Save(ctx, &domain.Session{Token: "forever", UserID: "u2"})

	if got, err := s.Get(ctx, "short"); err != nil || got.UserID != "u1" {
		t.Fatalf("Get = %+v, %v", got, err)
	}

	now = now.Add(time.Hour)
	if _, err := s.Get(ctx, "short"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected expired session to be hidden, got %v", err)
	}
	if removed, _ := s.Cleanup(ctx); removed != 1 {
		t.Errorf("expected 1 session removed, got %d", removed)
	}
	if _, err := s.Get(ctx, "forever"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
