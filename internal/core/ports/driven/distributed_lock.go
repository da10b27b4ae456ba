package driven

import (
	"context"
	"time"
)

// DistributedLock keeps a single instance running housekeeping at a time.
type DistributedLock interface {
	// Acquire takes the named lock for ttl.
	// Returns false without error when another instance holds it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release drops the named lock. Releasing a lock that is not held is a no-op.
	Release(ctx context.Context, name string) error

	// Ping checks if the lock backend is reachable.
	Ping(ctx context.Context) error
}

// Pinger is implemented by backends exposed on the status endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}
