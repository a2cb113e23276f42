// Package filename provides utilities for turning media titles into
// cache-key-safe slugs.
package filename

import (
	"regexp"
	"strings"
)

// invalidCharsRe matches every character that may not appear in a cache key.
var invalidCharsRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// multiDash collapses runs of dashes.
var multiDash = regexp.MustCompile(`-{2,}`)

// Sanitize converts an arbitrary media title into a cache-key slug. Any
// character outside [A-Za-z0-9_-] becomes a dash, runs of dashes collapse to
// one, and leading/trailing dashes are stripped. The same title always yields
// the same slug, so cache filenames stay deterministic across restarts.
func Sanitize(name string) string {
	s := invalidCharsRe.ReplaceAllString(name, "-")
	s = multiDash.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
