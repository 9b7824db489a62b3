package sync

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler drains the pending-sale queue on a fixed interval. One tick
// runs one ProcessPendingSales pass; ticks never overlap because Run is a
// single goroutine.
type Scheduler struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
}

func NewScheduler(service *Service, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{service: service, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("pending-sale scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("pending-sale scheduler stopped")
			return
		case <-ticker.C:
			s.service.ProcessPendingSales(ctx)
		}
	}
}
