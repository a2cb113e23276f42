// Package api holds the HTTP handlers. Each handler is a constructor taking
// its dependencies and returning an echo.HandlerFunc; the server wires them
// to routes.
package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/derive"
	"filmstrip.dev/filmstrip/pkg/ffmpeg"
)

// Cache-Control values for the artifact classes. Sprite sheets carry a
// uuid8+version suffix in their identity so the final form is immutable; a
// PNG served while its AVIF converts must revalidate quickly.
const (
	cacheImmutable    = "public, max-age=31536000, immutable"
	cacheTransitional = "public, max-age=60"
	cacheClip         = "public, max-age=300"
)

// mapError translates pipeline sentinels into HTTP errors.
func mapError(err error) error {
	switch {
	case errors.Is(err, derive.ErrNoChapters):
		return echo.NewHTTPError(http.StatusNotFound, "Chapter information not found")
	case errors.Is(err, derive.ErrMediaNotFound), errors.Is(err, ffmpeg.ErrSourceMissing), errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Media not found")
	case errors.Is(err, derive.ErrBadRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, derive.ErrTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "timed out waiting for artifact")
	default:
		return err
	}
}

// pathParam returns a decoded route parameter. Echo hands params through
// percent-encoded; library names contain spaces and parentheses.
func pathParam(c echo.Context, name string) string {
	raw := c.Param(name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// episodeParams decodes the show/season/episode triple shared by the tv
// routes.
func episodeParams(c echo.Context) (show, season string, episode int, err error) {
	show = pathParam(c, "show")
	season = pathParam(c, "season")
	episode, err = strconv.Atoi(c.Param("episode"))
	if err != nil {
		return "", "", 0, echo.NewHTTPError(http.StatusBadRequest, "episode must be a number")
	}
	return show, season, episode, nil
}
