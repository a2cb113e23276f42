// Package enrich triggers the external TMDB tool for titles missing artwork
// or metadata. The tool itself is a black box; this package owns the
// single-item invocation contract and response memoization.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"filmstrip.dev/filmstrip/internal/db"
)

// ErrToolFailed reports a non-zero exit of the enrichment tool.
var ErrToolFailed = errors.New("enrich: tool failed")

// DefaultCacheTTL is how long a tool run for a title is memoized. The
// missing-data table rate-limits attempts per scan; this cache survives
// restarts.
const DefaultCacheTTL = 7 * 24 * time.Hour

// Tool runs the external enrichment binary for one movie or show at a time.
// The selected title travels through the SELECTED_MOVIE / SELECTED_SHOW
// environment contract.
type Tool struct {
	Path     string // binary path; empty disables enrichment
	Cache    *db.TMDBCacheStore
	CacheTTL time.Duration
}

func New(path string, cache *db.TMDBCacheStore) *Tool {
	return &Tool{Path: path, Cache: cache, CacheTTL: DefaultCacheTTL}
}

// EnrichMovie runs the tool for a single movie directory name.
func (t *Tool) EnrichMovie(ctx context.Context, name string) error {
	return t.run(ctx, "tmdb://movie/"+name, "SELECTED_MOVIE="+name)
}

// EnrichShow runs the tool for a single show directory name.
func (t *Tool) EnrichShow(ctx context.Context, name string) error {
	return t.run(ctx, "tmdb://show/"+name, "SELECTED_SHOW="+name)
}

func (t *Tool) run(ctx context.Context, cacheKey, selection string) error {
	if t.Path == "" {
		return nil
	}

	if t.Cache != nil {
		if _, ok, err := t.Cache.Get(ctx, cacheKey, t.ttl()); err == nil && ok {
			slog.Debug("enrichment memoized, skipping tool run", "key", cacheKey)
			return nil
		}
	}

	cmd := exec.CommandContext(ctx, t.Path)
	cmd.Env = append(os.Environ(), selection)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrToolFailed, selection, err, lastLine(stderr.String()))
	}
	slog.Info("enrichment tool finished", "selection", selection,
		"took", time.Since(start).Round(time.Millisecond))

	if t.Cache != nil {
		if err := t.Cache.Put(ctx, cacheKey, []byte(stdout.String())); err != nil {
			slog.Warn("enrichment cache write failed", "key", cacheKey, "error", err)
		}
	}
	return nil
}

func (t *Tool) ttl() time.Duration {
	if t.CacheTTL > 0 {
		return t.CacheTTL
	}
	return DefaultCacheTTL
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
