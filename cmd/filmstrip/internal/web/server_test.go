package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filmstrip.dev/filmstrip/internal/cache"
	"filmstrip.dev/filmstrip/internal/catalog"
	"filmstrip.dev/filmstrip/internal/config"
	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/derive"
	"filmstrip.dev/filmstrip/internal/scanner"
	"filmstrip.dev/filmstrip/internal/workers"
)

type testServer struct {
	*Webserver
	store   *cache.Store
	movies  *db.MovieStore
	queue   *db.ProcessStore
	missing *db.MissingStore
}

func newTestServer(t *testing.T, prefix string) *testServer {
	t.Helper()
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(base+"/movies", 0755))
	require.NoError(t, os.MkdirAll(base+"/tv", 0755))

	cfg := &config.Config{
		BasePath:   base,
		DataPath:   base,
		PrefixPath: prefix,
	}

	databases, err := db.Open(cfg.DBPath())
	require.NoError(t, err)
	t.Cleanup(func() { databases.Close() })

	store, err := cache.New(cfg.CachePath())
	require.NoError(t, err)

	movies := db.NewMovieStore(databases)
	shows := db.NewShowStore(databases)
	queue := db.NewProcessStore(databases)
	missing := db.NewMissingStore(databases)

	orc := &derive.Orchestrator{
		Movies:     movies,
		Shows:      shows,
		Queue:      queue,
		Cache:      store,
		MoviesRoot: cfg.MoviesPath(),
		TVRoot:     cfg.TVPath(),
	}

	sched := workers.NewScheduler(&scanner.Scanner{
		MoviesRoot: cfg.MoviesPath(),
		TVRoot:     cfg.TVPath(),
	}, nil, time.Hour)

	s := NewWebserver(cfg, Deps{
		Orchestrator: orc,
		Movies:       movies,
		Shows:        shows,
		Queue:        queue,
		Intros:       db.NewIntroStore(databases),
		Missing:      missing,
		Scheduler:    sched,
	})
	return &testServer{Webserver: s, store: store, movies: movies, queue: queue, missing: missing}
}

func (s *testServer) do(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func seedMovie(t *testing.T, s *testServer, name string) {
	t.Helper()
	err := s.movies.Upsert(context.Background(), &catalog.Movie{
		Name:      name,
		FileNames: []string{name + ".mp4"},
		URLs: catalog.URLBag{
			MP4:    "/movies/" + name + "/" + name + ".mp4",
			Poster: "/movies/" + name + "/poster.jpg",
		},
		Images:        catalog.ImageHashes{PosterMtime: 1700000000000},
		DirectoryHash: "hash-" + name,
	})
	require.NoError(t, err)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestFrameServedFromCache(t *testing.T) {
	s := newTestServer(t, "")
	seedMovie(t, s, "Example Movie")

	name := cache.FrameName(cache.Movie, "Example Movie", "", 0, "90")
	require.NoError(t, os.WriteFile(s.store.Path(cache.Frames, name), []byte("avif-bytes"), 0644))

	rec := s.do(http.MethodGet, "/frame/movie/Example%20Movie/90.avif", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/avif", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	// Conditional revalidation of the same artifact.
	etag := rec.Header().Get("ETag")
	rec = s.do(http.MethodGet, "/frame/movie/Example%20Movie/90.avif", "",
		map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestFrameUnknownMovie(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(http.MethodGet, "/frame/movie/Nope/90", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClipRejectsBadRange(t *testing.T) {
	s := newTestServer(t, "")
	seedMovie(t, s, "Example Movie")

	for _, query := range []string{
		"start=-1&end=5",
		"start=10&end=5",
		"start=0&end=301",
		"start=abc&end=5",
		"end=5",
	} {
		rec := s.do(http.MethodGet, "/videoClip/movie/Example%20Movie?"+query, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestMediaMoviesStitchesArtworkHashes(t *testing.T) {
	s := newTestServer(t, "")
	seedMovie(t, s, "Example Movie")

	rec := s.do(http.MethodGet, "/media/movies", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []catalog.Movie
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Example Movie", rows[0].Name)
	assert.Contains(t, rows[0].URLs.Poster, "?hash=")
}

func TestMediaScan(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(http.MethodPost, "/media/scan", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProgressRoute(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()
	require.NoError(t, s.queue.CreateOrUpdate(ctx, "movie_X_spritesheet", "spritesheet", 3, 1,
		db.StatusInProgress, "sprite sheet rendered"))

	rec := s.do(http.MethodGet, "/media/progress/movie_X_spritesheet", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var row db.ProcessRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "spritesheet", row.ProcessType)
	assert.Equal(t, 1, row.CurrentStep)

	rec = s.do(http.MethodGet, "/media/progress/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIntrosRoundTrip(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(http.MethodGet, "/intros/tv/Show%20X/Season%201/3", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/intros/tv/Show%20X/Season%201/3",
		`{"introStart": 12.5, "introEnd": 74}`,
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/intros/tv/Show%20X/Season%201/3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var intro db.Intro
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intro))
	assert.Equal(t, "Show X", intro.Show)
	assert.Equal(t, 12.5, intro.IntroStart)
	assert.Equal(t, 74.0, intro.IntroEnd)
}

func TestIntroRejectsInvalidRange(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(http.MethodPost, "/intros/tv/Show/Season%201/1",
		`{"introStart": 30, "introEnd": 10}`,
		map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRescanTMDBResetsRateLimits(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()
	require.NoError(t, s.missing.MarkAttempt(ctx, "Example Movie", time.Now()))

	rec := s.do(http.MethodGet, "/rescan/tmdb", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, found, err := s.missing.LastAttempt(ctx, "Example Movie")
	require.NoError(t, err)
	assert.False(t, found, "rate-limit rows cleared")
}

func TestChaptersUnknownShow(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(http.MethodGet, "/chapters/tv/Nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrefixPathRouting(t *testing.T) {
	s := newTestServer(t, "/stream")

	rec := s.do(http.MethodGet, "/stream/media/movies", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/media/movies", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Health and metrics stay at the root regardless of the prefix.
	rec = s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
