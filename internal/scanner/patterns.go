package scanner

import (
	"regexp"
	"strconv"
	"strings"
)

// Episode filename shapes. Either "Show - S02E05 Title.mp4" with an optional
// leading title, or the bare numbered form "05 - Title.mp4".
var (
	seasonEpisodeRe   = regexp.MustCompile(`^(?:.* - )?S(\d{2})E(\d{2}).*\.mp4$`)
	numberedEpisodeRe = regexp.MustCompile(`^(\d{2}) - .*\.mp4$`)
)

// ParseEpisode extracts the episode number from a canonical episode filename.
func ParseEpisode(name string) (int, bool) {
	if m := seasonEpisodeRe.FindStringSubmatch(name); m != nil {
		n, err := strconv.Atoi(m[2])
		return n, err == nil
	}
	if m := numberedEpisodeRe.FindStringSubmatch(name); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	return 0, false
}

// IsTranscoderCache reports whether a filename is a transcoder by-product
// sitting next to the originals: dot-prefixed, or carrying a ".transcoded."
// marker. Such files never become catalog entries.
func IsTranscoderCache(name string) bool {
	return strings.HasPrefix(name, ".") || strings.Contains(strings.ToLower(name), ".transcoded.")
}

// seasonDirRe accepts "Season 1" style directory names.
var seasonDirRe = regexp.MustCompile(`^Season \d+$`)

// IsSeasonDir reports whether a directory name is a season directory.
func IsSeasonDir(name string) bool {
	return seasonDirRe.MatchString(name)
}

// stem returns a filename without its extension.
func stem(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
