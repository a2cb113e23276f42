package derive

import (
	"context"
	"fmt"
	"os"
	"time"

	"filmstrip.dev/filmstrip/internal/cache"
	"filmstrip.dev/filmstrip/internal/metrics"
	"filmstrip.dev/filmstrip/pkg/ffmpeg"
)

// MaxClipSeconds caps a single clip extraction. end - start == 300 passes,
// anything longer is rejected.
const MaxClipSeconds = 300

const (
	clipPollInterval = 100 * time.Millisecond
	clipWaitTimeout  = 10 * time.Second
)

// Clip returns the path of a stream-copied clip between start and end
// seconds. Concurrent requests for the same tuple run one ffmpeg; waiters
// poll the cache path with a timeout.
func (o *Orchestrator) Clip(ctx context.Context, m *Media, start, end float64) (string, error) {
	if start < 0 || end <= start || end-start > MaxClipSeconds {
		return "", fmt.Errorf("%w: invalid clip range [%g, %g]", ErrBadRequest, start, end)
	}

	vi, err := o.Info.Get(ctx, m.Path)
	if err != nil {
		return "", err
	}
	if duration := float64(vi.Length) / 1000; end > duration {
		return "", fmt.Errorf("%w: end %g beyond duration %g", ErrBadRequest, end, duration)
	}

	name := cache.ClipName(m.Path, start, end)
	path, ok := o.Cache.Exists(cache.Clips, name)
	if ok {
		metrics.CacheLookups.WithLabelValues("clip", "hit").Inc()
		return path, nil
	}
	metrics.CacheLookups.WithLabelValues("clip", "miss").Inc()

	inserted := o.registerClip(name)
	if !inserted {
		metrics.CoalescedWaiters.WithLabelValues("clip").Inc()
		return o.waitForClip(ctx, path)
	}
	// Only the call that inserted the key removes it.
	defer o.releaseClip(name)

	o.queueStart(ctx, name, "video_clip", 1)

	progress := make(chan ffmpeg.Progress, 8)
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		o.reportRenderProgress(ctx, name, end-start, progress)
	}()

	part := path + ".part"
	err = o.Runner.RenderClip(ctx, m.Path, part, start, end, progress)
	<-reported
	if err != nil {
		os.Remove(part)
		o.queueFail(ctx, name, err)
		metrics.Derivations.WithLabelValues("clip", "error").Inc()
		return "", err
	}
	if err := os.Rename(part, path); err != nil {
		os.Remove(part)
		o.queueFail(ctx, name, err)
		metrics.Derivations.WithLabelValues("clip", "error").Inc()
		return "", err
	}

	o.queueDone(ctx, name, "clip ready")
	metrics.Derivations.WithLabelValues("clip", "ok").Inc()
	return path, nil
}

// registerClip marks a clip in flight; false means another request already
// owns the render.
func (o *Orchestrator) registerClip(name string) bool {
	o.clipMu.Lock()
	defer o.clipMu.Unlock()
	if o.clipInFlight == nil {
		o.clipInFlight = make(map[string]struct{})
	}
	if _, busy := o.clipInFlight[name]; busy {
		return false
	}
	o.clipInFlight[name] = struct{}{}
	return true
}

func (o *Orchestrator) releaseClip(name string) {
	o.clipMu.Lock()
	delete(o.clipInFlight, name)
	o.clipMu.Unlock()
}

// reportRenderProgress folds ffmpeg progress reports into the process queue
// row so progress pollers see the render advance. Reports are thinned to 10%
// increments to keep queue writes cheap. Returns once the channel closes.
func (o *Orchestrator) reportRenderProgress(ctx context.Context, key string, totalSeconds float64, progress <-chan ffmpeg.Progress) {
	last := -1
	for p := range progress {
		if p.Done {
			continue
		}
		pct := p.Percent(totalSeconds)
		if pct < last+10 {
			continue
		}
		last = pct
		o.queueStep(ctx, key, 0, fmt.Sprintf("rendering %d%%", pct))
	}
}

// waitForClip polls the cache path until the producer finishes.
func (o *Orchestrator) waitForClip(ctx context.Context, path string) (string, error) {
	deadline := time.NewTimer(clipWaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(clipPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("%w: clip %s", ErrTimeout, path)
		case <-ticker.C:
			if st, err := os.Stat(path); err == nil && !st.IsDir() {
				return path, nil
			}
		}
	}
}
