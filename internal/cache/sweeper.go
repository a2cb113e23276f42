package cache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"filmstrip.dev/filmstrip/internal/metrics"
)

// ageBasis selects which file timestamp a policy ages against.
type ageBasis int

const (
	byModTime ageBasis = iota
	byAccessTime
)

// Policy describes one root's eviction rule.
type Policy struct {
	Kind     Kind
	TTL      time.Duration
	Basis    ageBasis
	Interval time.Duration
}

// Policies returns the per-root eviction rules.
func Policies() []Policy {
	return []Policy{
		{Kind: General, TTL: 30 * 24 * time.Hour, Basis: byModTime, Interval: 30 * time.Minute},
		{Kind: Frames, TTL: 7 * 24 * time.Hour, Basis: byAccessTime, Interval: 24 * time.Hour},
		{Kind: Sprites, TTL: 240 * 24 * time.Hour, Basis: byAccessTime, Interval: 24 * time.Hour},
		{Kind: Clips, TTL: 5 * time.Minute, Basis: byModTime, Interval: 24 * time.Hour},
	}
}

// Sweep runs one eviction pass over a root. Per-file errors are swallowed; a
// file disappearing mid-sweep is a concurrent writer, not a failure.
func (s *Store) Sweep(policy Policy) (deleted int, freed int64) {
	dir := s.Dir(policy.Kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("cache sweep: read dir", "dir", dir, "error", err)
		return 0, 0
	}

	now := time.Now()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		age := now.Sub(fi.ModTime())
		if policy.Basis == byAccessTime {
			age = now.Sub(accessTime(fi))
		}
		if age <= policy.TTL {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			continue
		}
		deleted++
		freed += fi.Size()
	}

	metrics.SweepDeletions.WithLabelValues(kindDirs[policy.Kind]).Add(float64(deleted))
	if deleted > 0 {
		slog.Info("cache sweep",
			"root", kindDirs[policy.Kind],
			"deleted", deleted,
			"freed", humanize.Bytes(uint64(freed)))
	}
	return deleted, freed
}

// RunSweepers starts one ticker per policy and blocks until ctx is done.
func (s *Store) RunSweepers(ctx context.Context) {
	for _, policy := range Policies() {
		go func(p Policy) {
			ticker := time.NewTicker(p.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.Sweep(p)
				}
			}
		}(policy)
	}
	<-ctx.Done()
}
