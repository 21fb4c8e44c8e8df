package scheduler

import (
	"context"
	"log/slog"
	"time"

	"HypeScanner/internal/ports"
)

// Sweeper periodically removes expired analysis rows so the cache table does
// not grow without bound. Reads already filter on expiry, so the sweep is
// purely housekeeping.
type Sweeper struct {
	repo     ports.AnalysisRepository
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewSweeper(repo ports.AnalysisRepository, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		repo:     repo,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("cache sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.Warn("cache sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("cache sweep removed expired analyses", "count", removed)
	}
}
