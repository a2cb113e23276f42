package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"filmstrip.dev/filmstrip/internal/db"
)

// HandleProgress returns the durable process-queue row for a derivation key,
// letting the player poll a long sprite generation.
func HandleProgress(queue *db.ProcessStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		row, err := queue.Get(c.Request().Context(), pathParam(c, "fileKey"))
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "no such process")
			}
			return err
		}
		return c.JSON(http.StatusOK, row)
	}
}
