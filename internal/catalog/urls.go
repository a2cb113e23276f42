package catalog

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ImageHash digests an artwork file's mtime into the 10-hex cache-buster
// appended to its public URL. Recomputed only when the mtime changes.
func ImageHash(mtime time.Time) string {
	sum := md5.Sum([]byte(strconv.FormatInt(mtime.UnixMilli(), 10)))
	return hex.EncodeToString(sum[:])[:10]
}

// StitchHash appends ?hash=<h> to a public URL. Reads call this with the
// cached hash; no filesystem access happens on the read path.
func StitchHash(rawURL, hash string) string {
	if rawURL == "" || hash == "" {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "hash=" + hash
}

// URLBuilder assembles the public URLs the catalog publishes for library
// files. Prefix is the optional deployment path prefix.
type URLBuilder struct {
	Prefix string
}

// Movie returns the public URL for a file inside a movie directory.
func (b URLBuilder) Movie(name string, parts ...string) string {
	return b.join(append([]string{"movies", name}, parts...)...)
}

// Show returns the public URL for a file inside a tv-show directory.
func (b URLBuilder) Show(name string, parts ...string) string {
	return b.join(append([]string{"tv", name}, parts...)...)
}

func (b URLBuilder) join(parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	if p := strings.Trim(b.Prefix, "/"); p != "" {
		segments = append(segments, p)
	}
	for _, part := range parts {
		segments = append(segments, url.PathEscape(part))
	}
	return "/" + strings.Join(segments, "/")
}

// StitchImageURLs returns a copy of the bag with cached artwork hashes
// appended, for serving catalog rows.
func StitchImageURLs(urls URLBag, images ImageHashes) URLBag {
	urls.Poster = StitchHash(urls.Poster, images.PosterHash)
	urls.Backdrop = StitchHash(urls.Backdrop, images.BackdropHash)
	urls.Logo = StitchHash(urls.Logo, images.LogoHash)
	return urls
}
