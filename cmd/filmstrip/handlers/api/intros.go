package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"filmstrip.dev/filmstrip/internal/db"
)

// HandleIntroGet returns the stored intro range for one episode.
func HandleIntroGet(intros *db.IntroStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		show, season, episode, err := episodeParams(c)
		if err != nil {
			return err
		}
		intro, err := intros.Get(c.Request().Context(), show, season, episode)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "no intro recorded")
			}
			return err
		}
		return c.JSON(http.StatusOK, intro)
	}
}

// HandleIntroPut stores the intro range for one episode. Detection happens in
// an external tool; this endpoint only persists its result.
func HandleIntroPut(intros *db.IntroStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		show, season, episode, err := episodeParams(c)
		if err != nil {
			return err
		}
		var body struct {
			IntroStart float64 `json:"introStart"`
			IntroEnd   float64 `json:"introEnd"`
		}
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
		}
		if body.IntroStart < 0 || body.IntroEnd <= body.IntroStart {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid intro range")
		}

		intro := &db.Intro{
			Show:       show,
			Season:     season,
			Episode:    episode,
			IntroStart: body.IntroStart,
			IntroEnd:   body.IntroEnd,
		}
		if err := intros.Upsert(c.Request().Context(), intro); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, intro)
	}
}
