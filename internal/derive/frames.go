package derive

import (
	"context"
	"fmt"
	"os"

	"filmstrip.dev/filmstrip/internal/cache"
	"filmstrip.dev/filmstrip/internal/metrics"
	"filmstrip.dev/filmstrip/pkg/utils/format"
)

// Frame returns the path of a single still for the given timestamp, rendering
// it on a cache miss. Frames skip the process queue; they are latency
// critical and render in well under a second.
func (o *Orchestrator) Frame(ctx context.Context, m *Media, timestamp string) (string, error) {
	sec, err := format.ParseTimestamp(timestamp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	ts := format.Seconds(sec)

	name := cache.FrameName(m.Type, m.Name, m.Season, m.Episode, ts)
	path, ok := o.Cache.Exists(cache.Frames, name)
	if ok {
		metrics.CacheLookups.WithLabelValues("frame", "hit").Inc()
		return path, nil
	}
	metrics.CacheLookups.WithLabelValues("frame", "miss").Inc()

	vi, err := o.Info.Get(ctx, m.Path)
	if err != nil {
		return "", err
	}

	if _, _, err := o.Runner.RenderFrame(ctx, m.Path, path, ts, vi.IsHDR()); err != nil {
		os.Remove(path)
		metrics.Derivations.WithLabelValues("frame", "error").Inc()
		return "", err
	}
	metrics.Derivations.WithLabelValues("frame", "ok").Inc()
	return path, nil
}
