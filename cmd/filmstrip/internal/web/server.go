// Package web assembles the echo server: middleware, routes, and static
// serving of the library roots.
package web

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"filmstrip.dev/filmstrip/cmd/filmstrip/handlers/api"
	"filmstrip.dev/filmstrip/cmd/filmstrip/internal/web/fileserver"
	"filmstrip.dev/filmstrip/internal/config"
	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/derive"
	"filmstrip.dev/filmstrip/internal/workers"
)

// Deps are the wired application services the handlers need.
type Deps struct {
	Orchestrator *derive.Orchestrator
	Movies       *db.MovieStore
	Shows        *db.ShowStore
	Queue        *db.ProcessStore
	Intros       *db.IntroStore
	Missing      *db.MissingStore
	Scheduler    *workers.Scheduler
}

type Webserver struct {
	*echo.Echo
	cfg        *config.Config
	deps       Deps
	fileServer *fileserver.FileServer
}

func NewWebserver(cfg *config.Config, deps Deps) *Webserver {
	s := &Webserver{
		Echo:       echo.New(),
		cfg:        cfg,
		deps:       deps,
		fileServer: fileserver.NewFileServer(),
	}
	s.setupMiddleware()
	s.registerRoutes()
	return s
}

// binaryRoute reports whether a request path serves media bytes; those skip
// gzip, which would only burn CPU on already-compressed payloads.
func (s *Webserver) binaryRoute(c echo.Context) bool {
	path := strings.TrimPrefix(c.Request().URL.Path, strings.TrimSuffix(s.cfg.PrefixPath, "/"))
	for _, prefix := range []string{"/frame/", "/spritesheet/", "/videoClip/", "/movies/", "/tv/"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (s *Webserver) setupMiddleware() {
	s.HideBanner = true
	s.HidePort = true
	s.JSONSerializer = jsonSerializer{}
	s.Use(middleware.BodyLimit("2M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level:   5,
		Skipper: s.binaryRoute,
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/healthz", "/metrics":
				return true
			default:
				return false
			}
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))
}

func (s *Webserver) registerRoutes() {
	orc, fs := s.deps.Orchestrator, s.fileServer

	root := s.Group(strings.TrimSuffix(s.cfg.PrefixPath, "/"))

	root.GET("/frame/movie/:name/:timestamp", api.HandleMovieFrame(orc, fs))
	root.GET("/frame/tv/:show/:season/:episode/:timestamp", api.HandleEpisodeFrame(orc, fs))

	root.GET("/spritesheet/movie/:name", api.HandleMovieSprite(orc, fs))
	root.GET("/spritesheet/tv/:show/:season/:episode", api.HandleEpisodeSprite(orc, fs))

	root.GET("/vtt/movie/:name", api.HandleMovieVTT(orc, fs))
	root.GET("/vtt/tv/:show/:season/:episode", api.HandleEpisodeVTT(orc, fs))

	root.GET("/chapters/movie/:name", api.HandleMovieChapters(orc, fs))
	root.GET("/chapters/tv/:show", api.HandleShowChapters(orc))
	root.GET("/chapters/tv/:show/:season/:episode", api.HandleEpisodeChapters(orc, fs))

	root.GET("/videoClip/movie/:name", api.HandleMovieClip(orc, fs))
	root.GET("/videoClip/tv/:show/:season/:episode", api.HandleEpisodeClip(orc, fs))

	root.GET("/media/movies", api.HandleMediaMovies(s.deps.Movies))
	root.GET("/media/tv", api.HandleMediaTV(s.deps.Shows))
	root.POST("/media/scan", api.HandleMediaScan(s.deps.Scheduler))
	root.GET("/media/progress/:fileKey", api.HandleProgress(s.deps.Queue))

	root.GET("/rescan/tmdb", api.HandleRescanTMDB(s.deps.Missing, s.deps.Scheduler))

	root.GET("/intros/tv/:show/:season/:episode", api.HandleIntroGet(s.deps.Intros))
	root.POST("/intros/tv/:show/:season/:episode", api.HandleIntroPut(s.deps.Intros))

	// The library roots are served directly; catalog rows publish URLs under
	// /movies and /tv for video files, artwork, and sidecar VTTs.
	root.Static("/movies", s.cfg.MoviesPath())
	root.Static("/tv", s.cfg.TVPath())

	s.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

// jsonSerializer swaps echo's default JSON codec for goccy, the same codec
// the persistence layer uses for its JSON columns.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}
