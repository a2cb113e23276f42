package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"filmstrip.dev/filmstrip/internal/catalog"
	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/imaging"
	"filmstrip.dev/filmstrip/internal/info"
	"filmstrip.dev/filmstrip/internal/metrics"
)

// ErrScanInProgress reports a scan tick dropped because one is running.
var ErrScanInProgress = errors.New("scanner: scan already in progress")

// Enricher invokes the external metadata tool for one title. Satisfied by
// *enrich.Tool; nil disables enrichment.
type Enricher interface {
	EnrichMovie(ctx context.Context, name string) error
	EnrichShow(ctx context.Context, name string) error
}

// Scanner walks the library roots and reconciles catalog rows. One Scanner
// exists per process; a guard flag drops overlapping runs.
type Scanner struct {
	MoviesRoot string
	TVRoot     string

	Movies   *db.MovieStore
	Shows    *db.ShowStore
	Missing  *db.MissingStore
	Info     *info.Manager
	URLs     catalog.URLBuilder
	Blurhash *imaging.BlurhashGenerator
	Enricher Enricher

	// RetryInterval rate-limits enrichment attempts per title.
	RetryInterval time.Duration
	// Parallelism bounds the concurrent movie directory workers.
	Parallelism int

	scanning atomic.Bool
}

// Scan runs the movies pass then the tv pass. Overlapping calls return
// ErrScanInProgress without doing any work.
func (s *Scanner) Scan(ctx context.Context) error {
	if !s.scanning.CompareAndSwap(false, true) {
		slog.Info("scan tick dropped, previous scan still running")
		metrics.ScanRuns.WithLabelValues("dropped").Inc()
		return ErrScanInProgress
	}
	defer s.scanning.Store(false)

	start := time.Now()
	slog.Info("library scan started")

	if err := s.scanMovies(ctx); err != nil {
		metrics.ScanRuns.WithLabelValues("error").Inc()
		return err
	}
	if err := s.scanTV(ctx); err != nil {
		metrics.ScanRuns.WithLabelValues("error").Inc()
		return err
	}

	metrics.ScanRuns.WithLabelValues("ok").Inc()
	metrics.ScanDuration.Observe(time.Since(start).Seconds())
	slog.Info("library scan finished", "took", time.Since(start).Round(time.Millisecond))
	return nil
}

// IsScanning reports whether a scan is currently running.
func (s *Scanner) IsScanning() bool {
	return s.scanning.Load()
}

func (s *Scanner) parallelism() int {
	if s.Parallelism < 1 {
		return 4
	}
	return s.Parallelism
}
