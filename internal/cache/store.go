// Package cache implements the tiered on-disk artifact cache: four roots
// with per-root TTL eviction, deterministic filename generation, and
// existence probing.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filmstrip.dev/filmstrip/pkg/utils/filename"
)

// Kind selects one of the cache roots.
type Kind int

const (
	General Kind = iota
	Frames
	Sprites
	Clips
)

var kindDirs = map[Kind]string{
	General: "general",
	Frames:  "frames",
	Sprites: "spritesheet",
	Clips:   "video_clips",
}

// MediaType tags artifacts as movie- or tv-derived.
type MediaType string

const (
	Movie MediaType = "movie"
	TV    MediaType = "tv"
)

// Store owns the cache directory tree.
type Store struct {
	root string
}

// New creates the four cache roots under parent.
func New(parent string) (*Store, error) {
	s := &Store{root: parent}
	for _, dir := range kindDirs {
		if err := os.MkdirAll(filepath.Join(parent, dir), 0755); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dir returns the absolute directory of one cache root.
func (s *Store) Dir(kind Kind) string {
	return filepath.Join(s.root, kindDirs[kind])
}

// Path returns the absolute path of a named artifact in a root.
func (s *Store) Path(kind Kind, name string) string {
	return filepath.Join(s.Dir(kind), name)
}

// Exists probes for a named artifact, returning its absolute path.
func (s *Store) Exists(kind Kind, name string) (string, bool) {
	path := s.Path(kind, name)
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return path, true
	}
	return path, false
}

// FrameName builds the deterministic frame still filename. The timestamp is
// expected to be pre-normalized to seconds so names never carry ':'.
func FrameName(mediaType MediaType, name, season string, episode int, timestamp string) string {
	if mediaType == TV {
		return fmt.Sprintf("tv_%s_S%sE%02d_%s.avif",
			filename.Sanitize(name), seasonNumber(season), episode, timestamp)
	}
	return fmt.Sprintf("movie_%s_%s.avif", filename.Sanitize(name), timestamp)
}

// VersionTag renders the sprite cache version suffix: SPRITE_VERSION x 10000
// zero-padded to at least 4 digits.
func VersionTag(version int) string {
	return fmt.Sprintf("v%04d", version*10000)
}

// SpriteStem builds the extension-less sprite sheet stem shared by the image
// and its VTT.
func SpriteStem(mediaType MediaType, name, season string, episode int, uuid8 string, version int) string {
	if mediaType == TV {
		return fmt.Sprintf("tv_%s_%s_%02d_spritesheet_%s_%s",
			filename.Sanitize(name), filename.Sanitize(season), episode, uuid8, VersionTag(version))
	}
	return fmt.Sprintf("movie_%s_spritesheet_%s_%s",
		filename.Sanitize(name), uuid8, VersionTag(version))
}

// spriteIdentity is the stem prefix shared by every version/format of one
// logical sprite sheet, up to but excluding the uuid8.
func spriteIdentity(mediaType MediaType, name, season string, episode int) string {
	if mediaType == TV {
		return fmt.Sprintf("tv_%s_%s_%02d_spritesheet_",
			filename.Sanitize(name), filename.Sanitize(season), episode)
	}
	return fmt.Sprintf("movie_%s_spritesheet_", filename.Sanitize(name))
}

// FindSprite scans the sprite root for any image matching the current
// identity and uuid8 irrespective of format, so an existing PNG keeps being
// served while its AVIF sibling is produced.
func (s *Store) FindSprite(mediaType MediaType, name, season string, episode int, uuid8 string) (string, bool) {
	prefix := spriteIdentity(mediaType, name, season, episode) + uuid8 + "_"
	entries, err := os.ReadDir(s.Dir(Sprites))
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		// In-flight renders write under a _building name; a partial sheet
		// must never satisfy a probe.
		if strings.Contains(e.Name(), "_building") {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".avif", ".png":
			return s.Path(Sprites, e.Name()), true
		}
	}
	return "", false
}

// CleanupOldUUIDs deletes sprite artifacts (images and VTTs) matching the
// same logical identity but a stale uuid8, after a version bump.
func (s *Store) CleanupOldUUIDs(mediaType MediaType, name, season string, episode int, keepUUID8 string) int {
	prefix := spriteIdentity(mediaType, name, season, episode)
	keep := prefix + keepUUID8 + "_"
	entries, err := os.ReadDir(s.Dir(Sprites))
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) || strings.HasPrefix(e.Name(), keep) {
			continue
		}
		if os.Remove(s.Path(Sprites, e.Name())) == nil {
			removed++
		}
	}
	return removed
}

// ClipName digests the request tuple into the clip cache filename.
func ClipName(videoPath string, start, end float64) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s|%f|%f", videoPath, start, end)))
	return hex.EncodeToString(h[:]) + ".mp4"
}

// seasonNumber extracts the zero-padded number from a "Season N" directory
// name, falling back to the sanitized name.
func seasonNumber(season string) string {
	fields := strings.Fields(season)
	if len(fields) > 0 {
		if n := fields[len(fields)-1]; isDigits(n) {
			if len(n) < 2 {
				return "0" + n
			}
			return n
		}
	}
	return filename.Sanitize(season)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
