package api

import (
	"github.com/labstack/echo/v4"

	"filmstrip.dev/filmstrip/cmd/filmstrip/internal/web/fileserver"
	"filmstrip.dev/filmstrip/internal/derive"
)

// HandleMovieSprite streams the sprite sheet for a movie.
func HandleMovieSprite(orc *derive.Orchestrator, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, err := orc.ResolveMovie(c.Request().Context(), pathParam(c, "name"))
		if err != nil {
			return mapError(err)
		}
		return serveSprite(c, orc, fs, m)
	}
}

// HandleEpisodeSprite streams the sprite sheet for an episode.
func HandleEpisodeSprite(orc *derive.Orchestrator, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		show, season, episode, err := episodeParams(c)
		if err != nil {
			return err
		}
		m, err := orc.ResolveEpisode(c.Request().Context(), show, season, episode)
		if err != nil {
			return mapError(err)
		}
		return serveSprite(c, orc, fs, m)
	}
}

func serveSprite(c echo.Context, orc *derive.Orchestrator, fs *fileserver.FileServer, m *derive.Media) error {
	sprite, err := orc.SpriteSheet(c.Request().Context(), m)
	if err != nil {
		return mapError(err)
	}
	cacheControl := cacheImmutable
	if sprite.Transitional {
		cacheControl = cacheTransitional
	}
	return fs.ServeFile(c, sprite.Path, fileserver.ContentTypeFor(sprite.Path), cacheControl)
}
