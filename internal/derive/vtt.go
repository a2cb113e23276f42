package derive

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"filmstrip.dev/filmstrip/internal/cache"
	"filmstrip.dev/filmstrip/internal/info"
	"filmstrip.dev/filmstrip/internal/metrics"
	"filmstrip.dev/filmstrip/pkg/utils/format"
)

// SpriteVTT returns the path of the cue index belonging to a sprite sheet,
// generating both when needed. The VTT shares the sprite's stem so the pair
// versions together.
func (o *Orchestrator) SpriteVTT(ctx context.Context, m *Media) (string, error) {
	v, err, shared := o.vtts.Do("vtt|"+m.Fingerprint(), func() (interface{}, error) {
		return o.spriteVTT(ctx, m)
	})
	if shared {
		metrics.CoalescedWaiters.WithLabelValues("vtt").Inc()
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (o *Orchestrator) spriteVTT(ctx context.Context, m *Media) (string, error) {
	vi, err := o.Info.Get(ctx, m.Path)
	if err != nil {
		return "", err
	}
	stem := cache.SpriteStem(m.Type, m.Name, m.Season, m.Episode, vi.UUID8(), o.SpriteVersion)
	vttPath := o.Cache.Path(cache.Sprites, stem+".vtt")
	if _, err := os.Stat(vttPath); err == nil {
		metrics.CacheLookups.WithLabelValues("vtt", "hit").Inc()
		return vttPath, nil
	}
	metrics.CacheLookups.WithLabelValues("vtt", "miss").Inc()

	sprite, err := o.SpriteSheet(ctx, m)
	if err != nil {
		return "", err
	}
	// A fresh generation writes the pair together; only a sheet predating
	// this request can be missing its cue index.
	if _, err := os.Stat(vttPath); err == nil {
		return vttPath, nil
	}

	if err := o.writeSpriteVTT(ctx, m, vi, sprite.Path, vttPath); err != nil {
		return "", err
	}
	return vttPath, nil
}

// writeSpriteVTT probes the rendered sheet and writes the cue index next to
// it under the shared stem. Cell dimensions come from the rendered image, not
// the nominal 320x180; ffmpeg rounds the scaled height.
func (o *Orchestrator) writeSpriteVTT(ctx context.Context, m *Media, vi *info.VideoInfo, spritePath, vttPath string) error {
	sheetW, sheetH, err := o.Runner.ProbeDimensions(ctx, spritePath)
	if err != nil {
		// The sheet may have changed format since it was resolved; a
		// finished avif encode removes the png it replaced. Re-resolve and
		// retry once against the current artifact.
		current, ok := o.Cache.FindSprite(m.Type, m.Name, m.Season, m.Episode, vi.UUID8())
		if !ok {
			return err
		}
		if sheetW, sheetH, err = o.Runner.ProbeDimensions(ctx, current); err != nil {
			return err
		}
	}

	duration := float64(vi.Length) / 1000
	frames, cols, rows := SpriteGeometry(duration)
	thumbW, thumbH := sheetW/cols, sheetH/rows

	body := BuildSpriteVTT(o.publicSpriteURL(m), duration, frames, cols, thumbW, thumbH)

	tmp := vttPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, vttPath); err != nil {
		os.Remove(tmp)
		return err
	}
	metrics.Derivations.WithLabelValues("vtt", "ok").Inc()
	return nil
}

// BuildSpriteVTT renders the cue index for a sprite grid. The final cue ends
// at the exact duration.
func BuildSpriteVTT(spriteURL string, duration float64, frames, cols, thumbW, thumbH int) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i := 0; i < frames; i++ {
		start := float64(i * SpriteInterval)
		end := start + SpriteInterval
		if end > duration {
			end = duration
		}
		x := (i % cols) * thumbW
		y := (i / cols) * thumbH
		fmt.Fprintf(&b, "%s --> %s\n%s#xywh=%d,%d,%d,%d\n\n",
			format.VTTTimestamp(start), format.VTTTimestamp(end),
			spriteURL, x, y, thumbW, thumbH)
	}
	return b.String()
}

// publicSpriteURL is the canonical URL cue targets point at, prefixed with
// the configured file-server base.
func (o *Orchestrator) publicSpriteURL(m *Media) string {
	base := strings.TrimSuffix(o.SpriteURLBase, "/")
	if m.Type == cache.TV {
		return base + "/spritesheet/tv/" + url.PathEscape(m.Name) + "/" +
			url.PathEscape(m.Season) + "/" + strconv.Itoa(m.Episode)
	}
	return base + "/spritesheet/movie/" + url.PathEscape(m.Name)
}
