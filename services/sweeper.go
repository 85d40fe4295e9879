package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ticket-reservation/internal/status"
	"ticket-reservation/monitoring"
	"ticket-reservation/store"
)

// ExpirationSweeper periodically finds pending orders past their hold
// expiry and drives them through the expire transition. It runs fully
// asynchronously to request handling; a failure on one order never
// blocks the rest of the tick, and the order stays eligible for the
// next tick because it is still pending.
type ExpirationSweeper struct {
	store      store.Store
	settlement *SettlementService
	interval   time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}

	// now is replaceable for tests.
	now func() time.Time
}

func NewExpirationSweeper(st store.Store, settlement *SettlementService, interval time.Duration, logger *slog.Logger) *ExpirationSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirationSweeper{
		store:      st,
		settlement: settlement,
		interval:   interval,
		logger:     logger,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (s *ExpirationSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
}

// Stop terminates the loop and waits for the in-flight tick. Safe to
// call even when the sweeper was never started.
func (s *ExpirationSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// SweepOnce runs a single tick and reports how many due orders were
// found and how many were expired.
func (s *ExpirationSweeper) SweepOnce(ctx context.Context) (due, expired int) {
	started := time.Now()

	ids, err := s.store.FindDuePending(ctx, s.now())
	if err != nil {
		s.logger.Error("sweep query failed", "error", err)
		return 0, 0
	}

	for _, id := range ids {
		if _, err := s.settlement.Expire(ctx, id); err != nil {
			// A conflict means approve or cancel won the race; the
			// order is settled and there is nothing left to do.
			if errors.Is(err, status.ErrConflict) {
				s.logger.Info("order settled before sweep", "order", id)
				continue
			}
			s.logger.Error("failed to expire order, will retry next tick", "order", id, "error", err)
			continue
		}
		expired++
	}

	monitoring.TrackSweep(len(ids), expired, time.Since(started))
	if len(ids) > 0 {
		s.logger.Info("sweep finished", "due", len(ids), "expired", expired, "took", time.Since(started))
	}
	return len(ids), expired
}
