package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"filmstrip.dev/filmstrip/internal/catalog"
	"filmstrip.dev/filmstrip/pkg/utils/language"
)

// artwork holds the filenames of the art discovered inside a title
// directory. Empty string means absent.
type artwork struct {
	Poster   string
	Backdrop string
	Logo     string
	Metadata string
}

// Complete reports whether every piece of art enrichment could supply is
// present.
func (a artwork) Complete() bool {
	return a.Poster != "" && a.Backdrop != "" && a.Metadata != ""
}

func findArtwork(dir string) artwork {
	return artwork{
		Poster:   probeFile(dir, "poster.jpg", "poster.png"),
		Backdrop: probeFile(dir, "backdrop.jpg", "backdrop.png"),
		Logo:     probeFile(dir, "movie_logo.png", "logo.png"),
		Metadata: probeFile(dir, "metadata.json"),
	}
}

// probeFile returns the first of names that exists as a regular file in dir.
func probeFile(dir string, names ...string) string {
	for _, n := range names {
		if st, err := os.Stat(filepath.Join(dir, n)); err == nil && !st.IsDir() {
			return n
		}
	}
	return ""
}

// chaptersFile returns the chapters VTT filename for a video stem if one
// exists under the directory's chapters/ subfolder.
func chaptersFile(dir, videoStem string) string {
	name := videoStem + "_chapters.vtt"
	if st, err := os.Stat(filepath.Join(dir, "chapters", name)); err == nil && !st.IsDir() {
		return name
	}
	return ""
}

// findSubtitles matches "<stem>.<tag>[.hi].srt" siblings of a video file and
// keys them by language tag.
func findSubtitles(dir, videoStem string, buildURL func(file string) string) map[string]catalog.SubtitleTrack {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var tracks map[string]catalog.SubtitleTrack
	prefix := videoStem + "."
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".srt") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".srt")
		if raw == "" {
			continue
		}
		sub := language.ParseSubtitleTag(raw)
		if tracks == nil {
			tracks = make(map[string]catalog.SubtitleTrack)
		}
		key := sub.Tag
		if sub.HearingImpaired {
			key += ".hi"
		}
		tracks[key] = catalog.SubtitleTrack{Subtitle: sub, URL: buildURL(name)}
	}
	return tracks
}

// artMtime returns an artwork file's mtime in unix milliseconds, 0 if the
// file is absent.
func artMtime(dir, name string) int64 {
	if name == "" {
		return 0
	}
	st, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return 0
	}
	return st.ModTime().UnixMilli()
}

// blurhashURL computes the image's blurhash as a side-effect and returns the
// public URL of its sidecar, or "" when generation failed.
func (s *Scanner) blurhashURL(ctx context.Context, dir, imageName string, buildURL func(file string) string) string {
	if s.Blurhash == nil || imageName == "" {
		return ""
	}
	imagePath := filepath.Join(dir, imageName)
	if _, err := s.Blurhash.ForFile(ctx, imagePath); err != nil {
		slog.Warn("blurhash generation failed", "image", imagePath, "error", err)
		return ""
	}
	return buildURL(imageName + ".blurhash")
}
