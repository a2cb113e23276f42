package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"filmstrip.dev/filmstrip/cmd/filmstrip/internal/web/fileserver"
	"filmstrip.dev/filmstrip/internal/derive"
)

// HandleMovieChapters streams the chapter VTT for a movie, 404 when the
// container has no chapter metadata.
func HandleMovieChapters(orc *derive.Orchestrator, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, err := orc.ResolveMovie(c.Request().Context(), pathParam(c, "name"))
		if err != nil {
			return mapError(err)
		}
		return serveChapters(c, orc, fs, m)
	}
}

// HandleEpisodeChapters streams the chapter VTT for one episode.
func HandleEpisodeChapters(orc *derive.Orchestrator, fs *fileserver.FileServer) echo.HandlerFunc {
	return func(c echo.Context) error {
		show, season, episode, err := episodeParams(c)
		if err != nil {
			return err
		}
		m, err := orc.ResolveEpisode(c.Request().Context(), show, season, episode)
		if err != nil {
			return mapError(err)
		}
		return serveChapters(c, orc, fs, m)
	}
}

// HandleShowChapters bulk-generates chapter VTTs for every episode of a show.
// Episodes without chapter metadata are skipped, not errors.
func HandleShowChapters(orc *derive.Orchestrator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		episodes, err := orc.ResolveShow(ctx, pathParam(c, "show"))
		if err != nil {
			return mapError(err)
		}

		generated, skipped := 0, 0
		for _, m := range episodes {
			if _, err := orc.Chapters(ctx, m); err != nil {
				if errors.Is(err, derive.ErrNoChapters) {
					skipped++
					continue
				}
				slog.Warn("bulk chapter generation failed",
					"show", m.Name, "season", m.Season, "episode", m.Episode, "error", err)
				skipped++
				continue
			}
			generated++
		}
		return c.JSON(http.StatusOK, map[string]int{
			"generated": generated,
			"skipped":   skipped,
		})
	}
}

func serveChapters(c echo.Context, orc *derive.Orchestrator, fs *fileserver.FileServer, m *derive.Media) error {
	path, err := orc.Chapters(c.Request().Context(), m)
	if err != nil {
		return mapError(err)
	}
	return fs.ServeFile(c, path, "text/vtt", cacheImmutable)
}
