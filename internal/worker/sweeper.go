// Package worker hosts background maintenance loops.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically drops expired stock reservations. Expired rows are
// deleted without touching stock counters; a reservation never held real
// stock, it only gated availability checks while it was alive.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// ReservationSweeper runs Sweeper on a fixed interval until stopped.
type ReservationSweeper struct {
	ledger   Sweeper
	interval time.Duration
	lg       *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReservationSweeper builds a sweeper loop. A non-positive interval falls
// back to one minute.
func NewReservationSweeper(ledger Sweeper, interval time.Duration, lg *zap.Logger) *ReservationSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &ReservationSweeper{ledger: ledger, interval: interval, lg: lg}
}

// Start launches the sweep loop in the background.
func (s *ReservationSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(runCtx)
}

// Stop cancels the loop and waits for the in-flight sweep to finish.
func (s *ReservationSweeper) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *ReservationSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ReservationSweeper) sweep(ctx context.Context) {
	n, err := s.ledger.SweepExpired(ctx)
	if err != nil {
		s.lg.Warn("reservation sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.lg.Info("swept expired reservations", zap.Int64("deleted", n))
	}
}
