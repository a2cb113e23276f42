package api

import (
	"strings"

	"github.com/labstack/echo/v4"

	"filmstrip.dev/filmstrip/cmd/filmstrip/internal/web/fileserver"
	"filmstrip.dev/filmstrip/internal/derive"
)

// trimFrameExt drops an optional image extension from the timestamp segment,
// so /frame/movie/X/90.avif and /frame/movie/X/90 address the same artifact.
func trimFrameExt(ts string) string {
	for _, ext := range []string{".avif", ".png", ".jpg", ".jpeg"} {
		if strings.HasSuffix(ts, ext) {
			return strings.TrimSuffix(ts, ext)
		}
	}
	return ts
}

// HandleMovieFrame streams a single still for a movie timestamp.
func HandleMovieFrame(orc *derive.Orchestrator, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, err := orc.ResolveMovie(c.Request().Context(), pathParam(c, "name"))
		if err != nil {
			return mapError(err)
		}
		return serveFrame(c, orc, fs, m)
	}
}

// HandleEpisodeFrame streams a single still for an episode timestamp.
func HandleEpisodeFrame(orc *derive.Orchestrator, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		show, season, episode, err := episodeParams(c)
		if err != nil {
			return err
		}
		m, err := orc.ResolveEpisode(c.Request().Context(), show, season, episode)
		if err != nil {
			return mapError(err)
		}
		return serveFrame(c, orc, fs, m)
	}
}

func serveFrame(c echo.Context, orc *derive.Orchestrator, fs *fileserver.FileServer, m *derive.Media) error {
	ts := trimFrameExt(pathParam(c, "timestamp"))
	path, err := orc.Frame(c.Request().Context(), m, ts)
	if err != nil {
		return mapError(err)
	}
	return fs.ServeFile(c, path, "image/avif", cacheImmutable)
}
