// Package fileserver serves cache artifacts and library files with
// conditional-request support. ETags are memoized per path and invalidated
// when size or modtime changes, so repeated artifact hits cost one stat.
package fileserver

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// fileCacheEntry stores cached ETag info.
type fileCacheEntry struct {
	size    int64
	modTime time.Time
	etag    string
}

// FileCache memoizes weak ETags for on-disk files.
type FileCache struct {
	mu      sync.RWMutex
	entries map[string]fileCacheEntry
}

func NewFileCache() *FileCache {
	return &FileCache{entries: make(map[string]fileCacheEntry)}
}

// ETag computes or retrieves the cached ETag for the given file.
func (c *FileCache) ETag(path string, info os.FileInfo) string {
	c.mu.RLock()
	if e, ok := c.entries[path]; ok {
		if e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
			c.mu.RUnlock()
			return e.etag
		}
	}
	c.mu.RUnlock()

	etag := fmt.Sprintf(`W/"%x-%x"`, info.ModTime().Unix(), info.Size())

	c.mu.Lock()
	c.entries[path] = fileCacheEntry{
		size:    info.Size(),
		modTime: info.ModTime(),
		etag:    etag,
	}
	c.mu.Unlock()

	return etag
}

// FileServer provides artifact serving with ETag caching.
type FileServer struct {
	cache *FileCache
}

func NewFileServer() *FileServer {
	return &FileServer{cache: NewFileCache()}
}

// ServeFile streams a file with caching headers and conditional request
// support. http.ServeContent handles Range requests, which the clip and
// library endpoints rely on.
func (fs *FileServer) ServeFile(c echo.Context, absPath, contentType, cacheControl string) error {
	info, err := os.Stat(absPath)
	if err != nil {
		return echo.ErrNotFound
	}

	etag := fs.cache.ETag(absPath, info)

	if inm := c.Request().Header.Get("If-None-Match"); inm != "" && strings.TrimSpace(inm) == etag {
		return c.NoContent(http.StatusNotModified)
	}
	if ims := c.Request().Header.Get(echo.HeaderIfModifiedSince); ims != "" {
		if t, err := time.Parse(time.RFC1123, ims); err == nil {
			// HTTP dates have second resolution.
			if !info.ModTime().After(t.Add(time.Second)) {
				return c.NoContent(http.StatusNotModified)
			}
		}
	}

	c.Response().Header().Set(echo.HeaderCacheControl, cacheControl)
	c.Response().Header().Set("Last-Modified", info.ModTime().UTC().Format(time.RFC1123))
	c.Response().Header().Set("ETag", etag)
	if contentType != "" {
		c.Response().Header().Set("Content-Type", contentType)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return echo.ErrNotFound
	}
	defer f.Close()

	http.ServeContent(c.Response(), c.Request(), filepath.Base(absPath), info.ModTime(), f)
	return nil
}

// ContentTypeFor maps an artifact path to its media type.
func ContentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".avif":
		return "image/avif"
	case ".png":
		return "image/png"
	case ".vtt":
		return "text/vtt"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
