// Package workers runs the periodic background jobs: the library scan tick
// and the TMDB cache prune. Overlapping scan ticks are dropped by the
// scanner's own guard; the scheduler never queues work.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/enrich"
	"filmstrip.dev/filmstrip/internal/scanner"
)

// Scheduler owns the background tickers. Kick requests an out-of-band scan,
// used by the filesystem watcher.
type Scheduler struct {
	Scanner      *scanner.Scanner
	TMDBCache    *db.TMDBCacheStore
	ScanInterval time.Duration

	kicks chan struct{}
}

func NewScheduler(s *scanner.Scanner, tmdbCache *db.TMDBCacheStore, scanInterval time.Duration) *Scheduler {
	return &Scheduler{
		Scanner:      s,
		TMDBCache:    tmdbCache,
		ScanInterval: scanInterval,
		kicks:        make(chan struct{}, 1),
	}
}

// Kick requests a scan outside the regular cadence. Multiple kicks while a
// scan is pending collapse into one.
func (s *Scheduler) Kick() {
	select {
	case s.kicks <- struct{}{}:
	default:
	}
}

// Run executes an initial scan, then loops on the tickers until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.scan(ctx)

	scanTicker := time.NewTicker(s.ScanInterval)
	defer scanTicker.Stop()
	pruneTicker := time.NewTicker(24 * time.Hour)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-scanTicker.C:
			s.scan(ctx)
		case <-s.kicks:
			s.scan(ctx)
		case <-pruneTicker.C:
			s.prune(ctx)
		}
	}
}

func (s *Scheduler) scan(ctx context.Context) {
	if err := s.Scanner.Scan(ctx); err != nil && !errors.Is(err, scanner.ErrScanInProgress) {
		slog.Error("scheduled scan failed", "error", err)
	}
}

func (s *Scheduler) prune(ctx context.Context) {
	if s.TMDBCache == nil {
		return
	}
	removed, err := s.TMDBCache.Prune(ctx, enrich.DefaultCacheTTL)
	if err != nil {
		slog.Warn("tmdb cache prune failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("tmdb cache pruned", "removed", removed)
	}
}
