package usage

import (
	"context"
	"time"

	"bindery/internal/logger"
	"bindery/pkg/metrics"
)

// Sweeper periodically prunes expired counters from the store. Counters
// already read as zero once expired, so sweeping is purely hygiene.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   logger.Logger
}

func NewSweeper(store Store, interval time.Duration, log logger.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   log,
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Infow("Usage sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("Usage sweeper stopped")
			return
		case <-ticker.C:
			removed, err := s.store.SweepExpired(ctx)
			if err != nil {
				s.logger.ErrorwCtx(ctx, "Usage sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				metrics.UsageSweepDeletedTotal.Add(float64(removed))
				s.logger.Infow("Usage sweep completed", "removed", removed)
			}
		}
	}
}
