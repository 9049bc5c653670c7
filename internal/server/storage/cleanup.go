package storage

import (
	"context"
	"log/slog"
	"time"

	"resourcehub/internal/server/metrics"
)

// StagingSweeper periodically removes staged files that nobody downloaded,
// promoted or cleaned up within maxAge. A zero maxAge disables it.
type StagingSweeper struct {
	staging  *Staging
	ledger   *StagedLedger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	done     chan struct{}
}

// NewStagingSweeper creates a new staging sweeper.
func NewStagingSweeper(staging *Staging, ledger *StagedLedger, interval, maxAge time.Duration) *StagingSweeper {
	return &StagingSweeper{
		staging:  staging,
		ledger:   ledger,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Enabled reports whether the sweeper will do any work.
func (s *StagingSweeper) Enabled() bool {
	return s.maxAge > 0 && s.interval > 0
}

// Start begins the sweep loop in a background goroutine.
func (s *StagingSweeper) Start(ctx context.Context) {
	if !s.Enabled() {
		slog.Info("staging sweeper disabled")
		close(s.done)
		return
	}
	slog.Info("staging sweeper started", "interval", s.interval, "max_age", s.maxAge)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Sweep()

		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				slog.Info("staging sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *StagingSweeper) Wait() {
	<-s.done
}

// Sweep runs one pass and returns the number of files removed.
func (s *StagingSweeper) Sweep() int {
	stale, err := s.staging.OlderThan(s.now().Add(-s.maxAge))
	if err != nil {
		slog.Error("failed to list stale staged files", "error", err)
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	var removed, skipped, failed int
	for _, ref := range stale {
		if err := s.ledger.BeginDelete(ref); err != nil {
			skipped++
			continue
		}
		ok, err := s.staging.Remove(ref)
		if cerr := s.ledger.CompleteDelete(ref); cerr != nil {
			slog.Warn("staged ledger out of step", "path", ref.Path(), "error", cerr)
		}
		if err != nil {
			slog.Error("failed to remove stale staged file", "path", ref.Path(), "error", err)
			failed++
			continue
		}
		if ok {
			removed++
			metrics.StagedCleanupsTotal.WithLabelValues("swept").Inc()
		}
	}

	slog.Info("staging sweep complete",
		"removed", removed,
		"skipped", skipped,
		"failed", failed,
		"total_stale", len(stale),
	)
	return removed
}
