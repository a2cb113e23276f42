// Package language resolves the language tags embedded in subtitle sidecar
// filenames ("Movie.en.srt", "Movie.pt-BR.hi.srt") to display names.
package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Subtitle describes one sidecar subtitle track parsed from its filename.
type Subtitle struct {
	Tag             string `json:"tag"`
	Name            string `json:"name"`
	HearingImpaired bool   `json:"hearingImpaired,omitempty"`
}

// ParseSubtitleTag interprets the language portion of a subtitle filename,
// optionally suffixed with ".hi" for hearing-impaired tracks.
func ParseSubtitleTag(raw string) Subtitle {
	tag := raw
	hi := false
	if lower := strings.ToLower(raw); strings.HasSuffix(lower, ".hi") {
		tag = raw[:len(raw)-3]
		hi = true
	}
	return Subtitle{
		Tag:             tag,
		Name:            DisplayName(tag),
		HearingImpaired: hi,
	}
}

// DisplayName returns the English display name for a BCP-47 code, or the raw
// code when it cannot be parsed.
func DisplayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
