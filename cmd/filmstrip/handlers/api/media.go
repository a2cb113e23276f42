package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"filmstrip.dev/filmstrip/internal/catalog"
	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/workers"
)

// HandleMediaMovies dumps the movie catalog with artwork cache-busters
// stitched onto the URLs.
func HandleMediaMovies(movies *db.MovieStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		rows, err := movies.All(c.Request().Context())
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].URLs = catalog.StitchImageURLs(rows[i].URLs, rows[i].Images)
		}
		return c.JSON(http.StatusOK, rows)
	}
}

// HandleMediaTV dumps the tv-show catalog.
func HandleMediaTV(shows *db.ShowStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		rows, err := shows.All(c.Request().Context())
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].URLs = catalog.StitchImageURLs(rows[i].URLs, rows[i].Images)
		}
		return c.JSON(http.StatusOK, rows)
	}
}

// HandleMediaScan schedules an out-of-band library scan. The scan runs in the
// scheduler goroutine; the response only acknowledges the request.
func HandleMediaScan(sched *workers.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		sched.Kick()
		return c.JSON(http.StatusOK, map[string]string{"status": "scan scheduled"})
	}
}
