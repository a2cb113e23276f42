package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"filmstrip.dev/filmstrip/cmd/filmstrip/internal/web"
	"filmstrip.dev/filmstrip/internal/cache"
	"filmstrip.dev/filmstrip/internal/catalog"
	"filmstrip.dev/filmstrip/internal/config"
	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/derive"
	"filmstrip.dev/filmstrip/internal/enrich"
	"filmstrip.dev/filmstrip/internal/imaging"
	"filmstrip.dev/filmstrip/internal/info"
	"filmstrip.dev/filmstrip/internal/metrics"
	"filmstrip.dev/filmstrip/internal/scanner"
	"filmstrip.dev/filmstrip/internal/watcher"
	"filmstrip.dev/filmstrip/internal/workers"
	"filmstrip.dev/filmstrip/pkg/ffmpeg"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting filmstrip service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(conf)

	databases, err := db.Open(conf.DBPath())
	if err != nil {
		slog.Error("failed to open databases", "error", err)
		os.Exit(1)
	}
	defer databases.Close()
	if err := databases.Ping(ctx); err != nil {
		slog.Error("failed to initialize databases", "error", err)
		os.Exit(1)
	}

	queue := db.NewProcessStore(databases)
	if n, err := queue.ResetStartup(ctx, db.StartupInterrupt); err != nil {
		slog.Error("failed to reconcile process queue", "error", err)
		os.Exit(1)
	} else if n > 0 {
		slog.Info("marked orphaned processes interrupted", "count", n)
	}

	store, err := cache.New(conf.CachePath())
	if err != nil {
		slog.Error("failed to create cache roots", "error", err)
		os.Exit(1)
	}
	go store.RunSweepers(ctx)

	runner := ffmpeg.NewRunner(conf.FFmpegConcurrency)
	metrics.RegisterFFmpegPool(func() float64 { return float64(runner.InUse()) })
	infoMgr := info.NewManager(runner)

	movies := db.NewMovieStore(databases)
	shows := db.NewShowStore(databases)
	missing := db.NewMissingStore(databases)
	intros := db.NewIntroStore(databases)
	tmdbCache := db.NewTMDBCacheStore(databases)

	blur := imaging.NewBlurhashGenerator(
		conf.BlurhashCLIPath, conf.UseNativeBlurhash, conf.BlurhashConcurrency,
		db.NewBlurhashStore(databases))

	pngOpts := imaging.DefaultPNGOptions()
	pngOpts.Quality = conf.PNGQuality

	scn := &scanner.Scanner{
		MoviesRoot:    conf.MoviesPath(),
		TVRoot:        conf.TVPath(),
		Movies:        movies,
		Shows:         shows,
		Missing:       missing,
		Info:          infoMgr,
		URLs:          catalog.URLBuilder{Prefix: conf.PrefixPath},
		Blurhash:      blur,
		Enricher:      enrich.New(conf.TMDBToolPath, tmdbCache),
		RetryInterval: time.Duration(conf.RetryIntervalHours) * time.Hour,
	}

	sched := workers.NewScheduler(scn, tmdbCache,
		time.Duration(conf.ScanIntervalMinutes)*time.Minute)
	go sched.Run(ctx)

	w, err := watcher.New(func(string) { sched.Kick() }, conf.MoviesPath(), conf.TVPath())
	if err != nil {
		slog.Error("failed to create library watcher", "error", err)
		os.Exit(1)
	}
	go w.Run(ctx)

	orc := &derive.Orchestrator{
		Movies: movies,
		Shows:  shows,
		Queue:  queue,
		Cache:  store,
		Info:   infoMgr,
		Runner: runner,
		AVIF: imaging.NewAVIFConverter(imaging.AVIFOptions{
			Quality:     conf.AVIFQuality,
			Speed:       conf.AVIFSpeed,
			Concurrency: conf.FFmpegConcurrency,
		}),
		MoviesRoot:    conf.MoviesPath(),
		TVRoot:        conf.TVPath(),
		SpriteVersion: conf.SpriteVersion,
		DisableAVIF:   conf.DisableAVIF,
		PNGOpts:       pngOpts,
		PngquantBin:   "pngquant",
		SpriteURLBase: conf.FileServerNodeURL,
	}

	e := web.NewWebserver(conf, web.Deps{
		Orchestrator: orc,
		Movies:       movies,
		Shows:        shows,
		Queue:        queue,
		Intros:       intros,
		Missing:      missing,
		Scheduler:    sched,
	})

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "addr", addr)
	if err := e.Start(addr); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// setupLogging raises the level under DEBUG and tees into
// LOG_PATH/filmstrip.log when configured.
func setupLogging(conf *config.Config) {
	level := slog.LevelInfo
	if conf.Debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	if conf.LogPath != "" {
		logFile := filepath.Join(conf.LogPath, "filmstrip.log")
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			slog.Warn("log file unavailable, logging to stdout only", "path", logFile, "error", err)
		} else {
			out = io.MultiWriter(os.Stdout, f)
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
}
