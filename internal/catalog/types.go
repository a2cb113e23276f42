// Package catalog defines the library row types persisted by the scanner and
// served by the media read API. The scanner is the sole writer; derivation
// flows only resolve names to file paths through these rows.
package catalog

import (
	"strconv"

	"github.com/google/uuid"

	"filmstrip.dev/filmstrip/pkg/utils/language"
)

// SubtitleTrack is one sidecar subtitle with its public URL, keyed in the
// bags below by language tag.
type SubtitleTrack struct {
	language.Subtitle
	URL string `json:"url"`
}

// URLBag collects the public URLs published for a media item.
type URLBag struct {
	MP4              string                   `json:"mp4,omitempty"`
	Poster           string                   `json:"poster,omitempty"`
	Logo             string                   `json:"logo,omitempty"`
	Backdrop         string                   `json:"backdrop,omitempty"`
	Chapters         string                   `json:"chapters,omitempty"`
	Metadata         string                   `json:"metadata,omitempty"`
	PosterBlurhash   string                   `json:"posterBlurhash,omitempty"`
	BackdropBlurhash string                   `json:"backdropBlurhash,omitempty"`
	Subtitles        map[string]SubtitleTrack `json:"subtitles,omitempty"`
}

// ImageHashes caches the content hash and source mtime of the artwork files
// so reads can stitch ?hash= onto URLs without touching the filesystem.
type ImageHashes struct {
	PosterHash    string `json:"posterHash,omitempty"`
	PosterMtime   int64  `json:"posterMtime,omitempty"`
	BackdropHash  string `json:"backdropHash,omitempty"`
	BackdropMtime int64  `json:"backdropMtime,omitempty"`
	LogoHash      string `json:"logoHash,omitempty"`
	LogoMtime     int64  `json:"logoMtime,omitempty"`
}

// Movie is one catalog row, unique by directory name under the movies root.
type Movie struct {
	Name               string            `json:"name"`
	ID                 string            `json:"_id"`
	FileNames          []string          `json:"fileNames"`
	Lengths            map[string]int64  `json:"lengths"`    // file -> duration ms
	Dimensions         map[string]string `json:"dimensions"` // file -> WxH
	URLs               URLBag            `json:"urls"`
	HDR                *string           `json:"hdr"`
	AdditionalMetadata map[string]any    `json:"additional_metadata,omitempty"`
	DirectoryHash      string            `json:"-"`
	Images             ImageHashes       `json:"-"`
}

// EpisodeData is the per-episode payload stored inside a season.
type EpisodeData struct {
	ID                string                   `json:"_id"`
	URL               string                   `json:"url"`
	MediaLastModified int64                    `json:"mediaLastModified"`
	EpisodeNumber     int                      `json:"episodeNumber"`
	Thumbnail         string                   `json:"thumbnail,omitempty"`
	Blurhash          string                   `json:"thumbnailBlurhash,omitempty"`
	Metadata          string                   `json:"metadata,omitempty"`
	Chapters          string                   `json:"chapters,omitempty"`
	Subtitles         map[string]SubtitleTrack `json:"subtitles,omitempty"`
}

// Season groups the episodes of one season directory. A season with zero
// valid episodes is never stored.
type Season struct {
	FileNames            []string               `json:"fileNames"`
	URLs                 map[string]EpisodeData `json:"urls"`
	Lengths              map[string]int64       `json:"lengths"`
	Dimensions           map[string]string      `json:"dimensions"`
	SeasonPoster         string                 `json:"season_poster,omitempty"`
	SeasonPosterBlurhash string                 `json:"seasonPosterBlurhash,omitempty"`
}

// Show is one tv-show catalog row, unique by directory name under the tv root.
type Show struct {
	Name               string            `json:"name"`
	ID                 string            `json:"_id"`
	Seasons            map[string]Season `json:"seasons"`
	URLs               URLBag            `json:"urls"`
	HDR                *string           `json:"hdr"`
	AdditionalMetadata map[string]any    `json:"additional_metadata,omitempty"`
	DirectoryHash      string            `json:"-"`
	Images             ImageHashes       `json:"-"`
}

// episodeIDNamespace salts episode identifiers so they never collide with
// video UUIDs derived from file bytes.
var episodeIDNamespace = uuid.MustParse("9f3c1d84-52be-4cf1-a6aa-0d1df0d6f9b7")

// EpisodeID derives the stable identifier for (show, season, episode). It is
// a pure function of the three names, so rescans keep IDs stable.
func EpisodeID(show, season string, episode int) string {
	key := show + "/" + season + "/" + strconv.Itoa(episode)
	return uuid.NewSHA1(episodeIDNamespace, []byte(key)).String()
}
