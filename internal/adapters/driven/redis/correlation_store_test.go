package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/domain"
)

func newTestCode(code string, now time.Time, ttl time.Duration) *domain.Correlation {
	return domain.NewCodeCorrelation(&domain.IssuedCode{
		Code: code,
		Request: domain.PendingAuthorizationRequest{
			ID:                  "req-1",
			ClientID:            "app1",
			RedirectURI:         "https://relying.example/cb",
			State:               "xyz",
			CodeChallenge:       "challenge",
			CodeChallengeMethod: domain.CodeChallengeS256,
		},
		ProviderKind: domain.ProviderKindCredentials,
		UserID:       "user-alice",
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	})
}

func TestCorrelationStore_PutTakeOnce(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewCorrelationStore(client)
	ctx := context.Background()

	if err := store.Put(ctx, newTestCode("code-1", time.Now(), time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mr.Exists(correlationKey(domain.CorrelationCode, "code-1")) {
		t.Fatal("expected key to be stored")
	}
	if ttl := mr.TTL(correlationKey(domain.CorrelationCode, "code-1")); ttl <= 0 || ttl > time.Minute {
		t.Errorf("unexpected TTL %v", ttl)
	}

	got, err := store.TakeOnce(ctx, domain.CorrelationCode, "code-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Code == nil || got.Code.UserID != "user-alice" || got.Code.Request.State != "xyz" {
		t.Errorf("unexpected record %+v", got.Code)
	}

	_, err = store.TakeOnce(ctx, domain.CorrelationCode, "code-1")
	if !errors.Is(err, domain.ErrCorrelationNotFound) {
		t.Errorf("expected ErrCorrelationNotFound on second take, got %v", err)
	}
}

func TestCorrelationStore_KindsAreNamespaced(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewCorrelationStore(client)
	ctx := context.Background()

	if err := store.Put(ctx, newTestCode("same", time.Now(), time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.TakeOnce(ctx, domain.CorrelationPending, "same"); !errors.Is(err, domain.ErrCorrelationNotFound) {
		t.Errorf("expected a code to be invisible as a pending request, got %v", err)
	}
	if _, err := store.TakeOnce(ctx, domain.CorrelationCode, "same"); err != nil {
		t.Errorf("expected the code to survive the wrong-kind lookup, got %v", err)
	}
}

func TestCorrelationStore_Expiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewCorrelationStore(client)
	ctx := context.Background()

	if err := store.Put(ctx, newTestCode("code-1", time.Now(), time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := store.TakeOnce(ctx, domain.CorrelationCode, "code-1"); !errors.Is(err, domain.ErrCorrelationNotFound) {
		t.Errorf("expected ErrCorrelationNotFound after TTL, got %v", err)
	}
}

func TestCorrelationStore_ExpiredByClock(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewCorrelationStore(client)
	ctx := context.Background()
	start := time.Now()

	if err := store.Put(ctx, newTestCode("code-1", start, time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.now = func() time.Time { return start.Add(time.Minute) }

	if _, err := store.TakeOnce(ctx, domain.CorrelationCode, "code-1"); !errors.Is(err, domain.ErrCorrelationNotFound) {
		t.Errorf("expected ErrCorrelationNotFound at ExpiresAt, got %v", err)
	}
}

func TestCorrelationStore_PutRejects(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewCorrelationStore(client)
	ctx := context.Background()

	if err := store.Put(ctx, &domain.Correlation{Kind: domain.CorrelationCode, ExpiresAt: time.Now().Add(time.Minute)}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for malformed record, got %v", err)
	}

	if err := store.Put(ctx, newTestCode("stale", time.Now().Add(-time.Hour), time.Minute)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for expired record, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("expected expired record not to be written, got keys %v", mr.Keys())
	}
}

func TestCorrelationStore_ConcurrentTake(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewCorrelationStore(client)
	ctx := context.Background()

	if err := store.Put(ctx, newTestCode("race", time.Now(), time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const racers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.TakeOnce(ctx, domain.CorrelationCode, "race")
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrCorrelationNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
}

func TestCorrelationStore_StorageFailure(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewCorrelationStore(client)
	mr.Close()

	err := store.Put(context.Background(), newTestCode("code-1", time.Now(), time.Minute))
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
	_, err = store.TakeOnce(context.Background(), domain.CorrelationCode, "code-1")
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
	if store.Ping(context.Background()) == nil {
		t.Error("expected ping to fail")
	}
}
