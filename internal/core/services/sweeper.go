package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jdrouet/tekitoi/internal/core/ports/driven"
)

const sweeperLockName = "tekitoi-sweeper"

// Sweeper periodically removes expired correlation records and sessions.
//
// For multi-instance deployments, configure a DistributedLock so that a
// single instance sweeps per tick.
type Sweeper struct {
	correlations driven.CorrelationStore
	sessions     driven.SessionStore
	lock         driven.DistributedLock
	logger       *slog.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration
	lockTTL  time.Duration
}

// SweeperConfig holds configuration for the sweeper.
type SweeperConfig struct {
	Correlations driven.CorrelationStore
	Sessions     driven.SessionStore    // Optional
	Lock         driven.DistributedLock // Optional
	Logger       *slog.Logger
	Interval     time.Duration // default: 1m
	LockTTL      time.Duration // default: 2x interval
}

// NewSweeper creates a new sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * interval
	}

	return &Sweeper{
		correlations: cfg.Correlations,
		sessions:     cfg.Sessions,
		lock:         cfg.Lock,
		logger:       logger,
		interval:     interval,
		lockTTL:      lockTTL,
	}
}

// Start begins the sweep loop.
// It runs until Stop is called or context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("sweeper starting", "interval", s.interval)
	go s.run(ctx)
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass. It is skipped when another instance holds the lock.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, sweeperLockName, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire sweeper lock", "error", err)
			return
		}
		if !acquired {
			s.logger.Debug("sweeper lock held by another instance, skipping cycle")
			return
		}
		defer func() {
			if err := s.lock.Release(ctx, sweeperLockName); err != nil {
				s.logger.Warn("failed to release sweeper lock", "error", err)
			}
		}()
	}

	if n, err := s.correlations.Cleanup(ctx); err != nil {
		s.logger.Error("failed to clean up correlation records", "error", err)
	} else if n > 0 {
		s.logger.Info("expired correlation records removed", "count", n)
	}

	if s.sessions == nil {
		return
	}
	if n, err := s.sessions.Cleanup(ctx); err != nil {
		s.logger.Error("failed to clean up sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("expired sessions removed", "count", n)
	}
}
