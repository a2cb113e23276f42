package derive

import (
	"context"
	"log/slog"
	"math"
	"os"
	"strings"

	"filmstrip.dev/filmstrip/internal/cache"
	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/imaging"
	"filmstrip.dev/filmstrip/internal/metrics"
)

// Sprite grid constants. One thumb every five seconds, ten per row.
const (
	SpriteInterval = 5
	SpriteCols     = 10
)

// SpriteGeometry computes the grid for a source duration in seconds. The last
// sample at or before the duration is included.
func SpriteGeometry(duration float64) (frames, cols, rows int) {
	frames = int(math.Floor(duration/SpriteInterval)) + 1
	cols = SpriteCols
	rows = (frames + cols - 1) / cols
	return frames, cols, rows
}

// SpriteResult is a servable sprite sheet. Transitional marks a PNG being
// served while its AVIF replacement converts in the background; it must be
// cached briefly, not immutably.
type SpriteResult struct {
	Path         string
	Transitional bool
}

// SpriteSheet returns the sprite sheet artifact for a media item, generating
// it together with its cue index on a miss. Concurrent requests for the same
// fingerprint share one render.
func (o *Orchestrator) SpriteSheet(ctx context.Context, m *Media) (*SpriteResult, error) {
	v, err, shared := o.sprites.Do("sprite|"+m.Fingerprint(), func() (interface{}, error) {
		return o.spriteSheet(ctx, m)
	})
	if shared {
		metrics.CoalescedWaiters.WithLabelValues("sprite").Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*SpriteResult), nil
}

func (o *Orchestrator) spriteSheet(ctx context.Context, m *Media) (*SpriteResult, error) {
	vi, err := o.Info.Get(ctx, m.Path)
	if err != nil {
		return nil, err
	}
	duration := float64(vi.Length) / 1000
	_, cols, rows := SpriteGeometry(duration)
	wantAVIF := imaging.PreferAVIF(rows, o.DisableAVIF)

	if path, ok := o.Cache.FindSprite(m.Type, m.Name, m.Season, m.Episode, vi.UUID8()); ok {
		metrics.CacheLookups.WithLabelValues("sprite", "hit").Inc()
		return &SpriteResult{
			Path:         path,
			Transitional: wantAVIF && strings.HasSuffix(path, ".png"),
		}, nil
	}
	metrics.CacheLookups.WithLabelValues("sprite", "miss").Inc()

	// A new uuid8 means the source bytes changed; stale generations of this
	// identity are dead weight.
	o.Cache.CleanupOldUUIDs(m.Type, m.Name, m.Season, m.Episode, vi.UUID8())

	stem := cache.SpriteStem(m.Type, m.Name, m.Season, m.Episode, vi.UUID8(), o.SpriteVersion)
	o.queueStart(ctx, stem, "spritesheet", 3)

	building := o.Cache.Path(cache.Sprites, stem+"_building.png")
	if err := o.Runner.RenderSpriteSheet(ctx, m.Path, building, SpriteInterval, cols, rows, vi.IsHDR()); err != nil {
		os.Remove(building)
		o.queueFail(ctx, stem, err)
		metrics.Derivations.WithLabelValues("sprite", "error").Inc()
		return nil, err
	}
	o.queueStep(ctx, stem, 1, "sprite sheet rendered")

	pngPath := o.Cache.Path(cache.Sprites, stem+".png")
	if err := os.Rename(building, pngPath); err != nil {
		os.Remove(building)
		o.queueFail(ctx, stem, err)
		metrics.Derivations.WithLabelValues("sprite", "error").Inc()
		return nil, err
	}

	// The cue index is written from the freshly rendered sheet, before the
	// avif encode can replace it. The pair publishes together or not at all:
	// a failed index write discards the sheet so a retry regenerates both.
	vttPath := o.Cache.Path(cache.Sprites, stem+".vtt")
	if err := o.writeSpriteVTT(ctx, m, vi, pngPath, vttPath); err != nil {
		os.Remove(pngPath)
		o.queueFail(ctx, stem, err)
		metrics.Derivations.WithLabelValues("sprite", "error").Inc()
		return nil, err
	}
	o.queueStep(ctx, stem, 2, "cue index written")

	if wantAVIF {
		avifPath := o.Cache.Path(cache.Sprites, stem+".avif")
		go o.convertSpriteAVIF(pngPath, avifPath)
		o.queueDone(ctx, stem, "png ready, avif converting")
		metrics.Derivations.WithLabelValues("sprite", "ok").Inc()
		return &SpriteResult{Path: pngPath, Transitional: true}, nil
	}

	imaging.OptimizePNG(ctx, o.PngquantBin, pngPath, o.PNGOpts)
	o.queueDone(ctx, stem, "sprite sheet ready")
	metrics.Derivations.WithLabelValues("sprite", "ok").Inc()
	return &SpriteResult{Path: pngPath, Transitional: false}, nil
}

// convertSpriteAVIF runs detached from the request; the PNG keeps serving
// until the AVIF lands and replaces it.
func (o *Orchestrator) convertSpriteAVIF(pngPath, avifPath string) {
	if err := o.AVIF.Convert(context.Background(), pngPath, avifPath, true); err != nil {
		slog.Warn("sprite avif conversion failed, png stays", "png", pngPath, "error", err)
	}
}

// Process queue bookkeeping. Queue failures must never fail a derivation.
func (o *Orchestrator) queueStart(ctx context.Context, key, kind string, total int) {
	if o.Queue == nil {
		return
	}
	if err := o.Queue.CreateOrUpdate(ctx, key, kind, total, 0, db.StatusInProgress, "started"); err != nil {
		slog.Warn("process queue write failed", "key", key, "error", err)
	}
}

func (o *Orchestrator) queueStep(ctx context.Context, key string, step int, msg string) {
	if o.Queue == nil {
		return
	}
	if err := o.Queue.Update(ctx, key, step, "", msg); err != nil {
		slog.Warn("process queue write failed", "key", key, "error", err)
	}
}

func (o *Orchestrator) queueDone(ctx context.Context, key, msg string) {
	if o.Queue == nil {
		return
	}
	if err := o.Queue.Finalize(ctx, key, db.StatusCompleted, msg); err != nil {
		slog.Warn("process queue write failed", "key", key, "error", err)
	}
}

func (o *Orchestrator) queueFail(ctx context.Context, key string, cause error) {
	if o.Queue == nil {
		return
	}
	if err := o.Queue.Finalize(ctx, key, db.StatusError, cause.Error()); err != nil {
		slog.Warn("process queue write failed", "key", key, "error", err)
	}
}
