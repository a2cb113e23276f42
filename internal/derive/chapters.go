package derive

import (
	"context"
	"fmt"
	"os"
	"strings"

	"filmstrip.dev/filmstrip/internal/cache"
	"filmstrip.dev/filmstrip/internal/metrics"
	"filmstrip.dev/filmstrip/pkg/ffmpeg"
	"filmstrip.dev/filmstrip/pkg/utils/filename"
	"filmstrip.dev/filmstrip/pkg/utils/format"
)

// Chapters returns the path of a WebVTT chapter index derived from the
// container's chapter atoms, or ErrNoChapters when the source has none.
func (o *Orchestrator) Chapters(ctx context.Context, m *Media) (string, error) {
	v, err, shared := o.chapters.Do("chapters|"+m.Fingerprint(), func() (interface{}, error) {
		return o.chapterVTT(ctx, m)
	})
	if shared {
		metrics.CoalescedWaiters.WithLabelValues("chapters").Inc()
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (o *Orchestrator) chapterVTT(ctx context.Context, m *Media) (string, error) {
	vi, err := o.Info.Get(ctx, m.Path)
	if err != nil {
		return "", err
	}

	name := chapterCacheName(m, vi.UUID8())
	path, ok := o.Cache.Exists(cache.General, name)
	if ok {
		metrics.CacheLookups.WithLabelValues("chapters", "hit").Inc()
		return path, nil
	}
	metrics.CacheLookups.WithLabelValues("chapters", "miss").Inc()

	chapters, err := o.Runner.Chapters(ctx, m.Path)
	if err != nil {
		return "", err
	}
	if len(chapters) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoChapters, m.Name)
	}

	body := BuildChapterVTT(chapters, float64(vi.Length)/1000)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	metrics.Derivations.WithLabelValues("chapters", "ok").Inc()
	return path, nil
}

// BuildChapterVTT concatenates chapter cues; each cue runs until the next
// chapter starts and the last one ends at the source duration.
func BuildChapterVTT(chapters []ffmpeg.Chapter, duration float64) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, ch := range chapters {
		end := duration
		if i+1 < len(chapters) {
			end = chapters[i+1].StartTime
		}
		title := ch.Title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			format.VTTTimestamp(ch.StartTime), format.VTTTimestamp(end), title)
	}
	return b.String()
}

func chapterCacheName(m *Media, uuid8 string) string {
	if m.Type == cache.TV {
		return fmt.Sprintf("tv_%s_%s_%02d_chapters_%s.vtt",
			filename.Sanitize(m.Name), filename.Sanitize(m.Season), m.Episode, uuid8)
	}
	return fmt.Sprintf("movie_%s_chapters_%s.vtt", filename.Sanitize(m.Name), uuid8)
}
