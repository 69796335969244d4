package service

import (
	"context"
	"time"
)

// RunSweeper cancels expired holds on a fixed interval until ctx is done.
// Overlapping runs are harmless: the sweep predicate only matches rows that
// are still pending.
func (s *bookingService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.cfg.Log.Info("Expired booking sweeper started", "interval", s.cfg.SweepInterval)

	for {
		select {
		case <-ctx.Done():
			s.cfg.Log.Info("Expired booking sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				s.cfg.Log.Error("Sweep run failed", "error", err)
			}
		}
	}
}
