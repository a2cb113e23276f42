package api

import (
	"github.com/labstack/echo/v4"

	"filmstrip.dev/filmstrip/cmd/filmstrip/internal/web/fileserver"
	"filmstrip.dev/filmstrip/internal/derive"
)

// HandleMovieVTT streams the sprite cue index for a movie.
func HandleMovieVTT(orc *derive.Orchestrator, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, err := orc.ResolveMovie(c.Request().Context(), pathParam(c, "name"))
		if err != nil {
			return mapError(err)
		}
		return serveVTT(c, orc, fs, m)
	}
}

// HandleEpisodeVTT streams the sprite cue index for an episode.
func HandleEpisodeVTT(orc *derive.Orchestrator, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		show, season, episode, err := episodeParams(c)
		if err != nil {
			return err
		}
		m, err := orc.ResolveEpisode(c.Request().Context(), show, season, episode)
		if err != nil {
			return mapError(err)
		}
		return serveVTT(c, orc, fs, m)
	}
}

func serveVTT(c echo.Context, orc *derive.Orchestrator, fs *fileserver.FileServer, m *derive.Media) error {
	path, err := orc.SpriteVTT(c.Request().Context(), m)
	if err != nil {
		return mapError(err)
	}
	// The VTT shares the sprite's versioned stem, so it is immutable too.
	return fs.ServeFile(c, path, "text/vtt", cacheImmutable)
}
