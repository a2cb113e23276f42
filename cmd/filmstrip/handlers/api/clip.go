package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"filmstrip.dev/filmstrip/cmd/filmstrip/internal/web/fileserver"
	"filmstrip.dev/filmstrip/internal/derive"
)

// HandleMovieClip streams a stream-copied clip of a movie.
func HandleMovieClip(orc *derive.Orchestrator, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, err := orc.ResolveMovie(c.Request().Context(), pathParam(c, "name"))
		if err != nil {
			return mapError(err)
		}
		return serveClip(c, orc, fs, m)
	}
}

// HandleEpisodeClip streams a stream-copied clip of an episode.
func HandleEpisodeClip(orc *derive.Orchestrator, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		show, season, episode, err := episodeParams(c)
		if err != nil {
			return err
		}
		m, err := orc.ResolveEpisode(c.Request().Context(), show, season, episode)
		if err != nil {
			return mapError(err)
		}
		return serveClip(c, orc, fs, m)
	}
}

func serveClip(c echo.Context, orc *derive.Orchestrator, fs *fileserver.FileServer, m *derive.Media) error {
	start, err := clipSecond(c, "start")
	if err != nil {
		return err
	}
	end, err := clipSecond(c, "end")
	if err != nil {
		return err
	}

	path, err := orc.Clip(c.Request().Context(), m, start, end)
	if err != nil {
		return mapError(err)
	}
	return fs.ServeFile(c, path, "video/mp4", cacheClip)
}

func clipSecond(c echo.Context, name string) (float64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a number of seconds")
	}
	return v, nil
}
