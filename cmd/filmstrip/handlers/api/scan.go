package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/workers"
)

// HandleRescanTMDB re-arms enrichment for every title and schedules a scan.
// The scan picks up still-incomplete titles and runs the external tool again.
func HandleRescanTMDB(missing *db.MissingStore, sched *workers.Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		reset, err := missing.ResetAll(c.Request().Context())
		if err != nil {
			return err
		}
		sched.Kick()
		return c.JSON(http.StatusOK, map[string]any{
			"status": "enrichment rescan scheduled",
			"reset":  reset,
		})
	}
}
