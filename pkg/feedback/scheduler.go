package feedback

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs ProcessPending on a fixed interval from a single goroutine.
type Scheduler struct {
	loop     *Loop
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a scheduler for loop.
func NewScheduler(loop *Loop, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{loop: loop, interval: interval, logger: logger.With(zap.String("component", "scheduler"))}
}

// Run blocks until ctx is done. Failed runs are logged and retried on the
// next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("feedback scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("feedback scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			n, err := s.loop.ProcessPending(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("scheduled feedback processing failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("scheduled feedback processing", zap.Int("promoted", n))
			}
		}
	}
}
