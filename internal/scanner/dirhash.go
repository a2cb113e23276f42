// Package scanner walks the movies and tv library roots and writes catalog
// rows. It is the only writer of the catalog tables.
package scanner

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// HashDepth bounds how deep the directory hash descends. Two levels cover a
// movie directory with its chapters/ subfolder and a show with its seasons.
const HashDepth = 2

// Entry is one filesystem record feeding the directory hash. Tests fabricate
// these directly.
type Entry struct {
	Path  string // relative to the hashed directory
	Size  int64
	Mtime int64 // unix milliseconds
	Depth int
}

// HashEntries digests a set of entries into the directory hash. Order of the
// input does not matter; entries beyond HashDepth are ignored.
func HashEntries(entries []Entry) string {
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Depth <= HashDepth {
			kept = append(kept, e)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Path < kept[j].Path })

	h := sha1.New()
	for _, e := range kept {
		fmt.Fprintf(h, "%s|%d|%d\n", e.Path, e.Size, e.Mtime)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashDir collects the entries under dir up to HashDepth and hashes them.
func HashDir(dir string) (string, error) {
	entries, err := collectEntries(dir)
	if err != nil {
		return "", err
	}
	return HashEntries(entries), nil
}

func collectEntries(dir string) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		depth := strings.Count(rel, string(filepath.Separator)) + 1
		if depth > HashDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			// File vanished mid-walk; the next scan picks up the change.
			return nil
		}
		size := fi.Size()
		if d.IsDir() {
			size = 0
		}
		out = append(out, Entry{
			Path:  filepath.ToSlash(rel),
			Size:  size,
			Mtime: fi.ModTime().UnixMilli(),
			Depth: depth,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
