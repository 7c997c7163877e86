package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tokenvault/internal/logging"
	"github.com/dmitrijs2005/tokenvault/internal/server/config"
	"github.com/dmitrijs2005/tokenvault/internal/server/repositories/repomanager"
)

// Sweeper periodically deletes tokens that are expired or revoked. It only
// ever targets rows rotation no longer depends on, so it is safe to run
// alongside live refresh traffic.
type Sweeper struct {
	rm       repomanager.RepositoryManager
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time
}

// NewSweeper constructs a Sweeper from server config.
func NewSweeper(rm repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *Sweeper {
	return &Sweeper{
		rm:       rm,
		interval: cfg.SweepInterval,
		logger:   logger.With("module", "sweeper"),
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled. Sweep failures are logged and retried on
// the next tick; they never stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info(ctx, "Starting cleanup sweeper", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping cleanup sweeper...")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single cleanup pass: fetch every expired-or-revoked
// token and delete the batch in one bulk operation.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	candidates, err := s.rm.Tokens().FindCleanupCandidates(ctx, now)
	if err != nil {
		s.logger.Error(ctx, "sweep: fetching cleanup candidates failed", "error", err.Error())
		return
	}
	if len(candidates) == 0 {
		s.logger.Debug(ctx, "sweep: nothing to clean up")
		return
	}

	if err := s.rm.Tokens().DeleteMany(ctx, candidates); err != nil {
		s.logger.Error(ctx, "sweep: bulk delete failed", "error", err.Error())
		return
	}

	s.logger.Info(ctx, "sweep: deleted dead tokens", "count", len(candidates))
}
