package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs the lease expiration sweep on a fixed interval
type Sweeper struct {
	leases   *LeaseService
	interval time.Duration
	log      *zap.Logger
}

func NewSweeper(leases *LeaseService, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{leases: leases, interval: interval, log: log.Named("sweeper")}
}

// Run sweeps once immediately and then every interval until ctx is done.
// A non-positive interval disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("lease sweeper disabled")
		return
	}

	s.log.Info("lease sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("lease sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.leases.CheckLeaseExpirations(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("lease sweep failed", zap.Error(err))
	}
}
