package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filmstrip.dev/filmstrip/internal/catalog"
)

func openTestDatabases(t *testing.T) *Databases {
	t.Helper()
	dbs, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbs.Close() })
	require.NoError(t, dbs.Ping(context.Background()))
	return dbs
}

func TestMovieUpsertRoundTrip(t *testing.T) {
	dbs := openTestDatabases(t)
	movies := NewMovieStore(dbs)
	ctx := context.Background()

	hdr := "smpte2084"
	in := &catalog.Movie{
		Name:          "Example",
		ID:            "0f2c4a66-1111-2222-3333-444455556666",
		FileNames:     []string{"Example.mp4"},
		Lengths:       map[string]int64{"Example.mp4": 602400},
		Dimensions:    map[string]string{"Example.mp4": "1920x1080"},
		URLs:          catalog.URLBag{MP4: "/movies/Example/Example.mp4", Poster: "/movies/Example/poster.jpg"},
		HDR:           &hdr,
		DirectoryHash: "hash-a",
	}
	require.NoError(t, movies.Upsert(ctx, in))

	out, err := movies.Get(ctx, "Example")
	require.NoError(t, err)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.FileNames, out.FileNames)
	assert.Equal(t, in.Lengths, out.Lengths)
	assert.Equal(t, in.Dimensions, out.Dimensions)
	assert.Equal(t, in.URLs.MP4, out.URLs.MP4)
	require.NotNil(t, out.HDR)
	assert.Equal(t, "smpte2084", *out.HDR)
	assert.Equal(t, "hash-a", out.DirectoryHash)
}

func TestMovieUpsertSkipsUnchangedHash(t *testing.T) {
	dbs := openTestDatabases(t)
	movies := NewMovieStore(dbs)
	ctx := context.Background()

	m := &catalog.Movie{Name: "Example", DirectoryHash: "hash-a", FileNames: []string{"a.mp4"}}
	require.NoError(t, movies.Upsert(ctx, m))

	// Same hash, different payload: the conditional update must not apply.
	m2 := &catalog.Movie{Name: "Example", DirectoryHash: "hash-a", FileNames: []string{"b.mp4"}}
	require.NoError(t, movies.Upsert(ctx, m2))

	out, err := movies.Get(ctx, "Example")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mp4"}, out.FileNames, "unchanged hash performs no write")

	// Different hash: the update applies.
	m3 := &catalog.Movie{Name: "Example", DirectoryHash: "hash-b", FileNames: []string{"c.mp4"}}
	require.NoError(t, movies.Upsert(ctx, m3))
	out, err = movies.Get(ctx, "Example")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.mp4"}, out.FileNames)
}

func TestMovieDeleteAndNotFound(t *testing.T) {
	dbs := openTestDatabases(t)
	movies := NewMovieStore(dbs)
	ctx := context.Background()

	_, err := movies.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, movies.Upsert(ctx, &catalog.Movie{Name: "Gone", DirectoryHash: "h"}))
	require.NoError(t, movies.Delete(ctx, "Gone"))
	_, err = movies.Get(ctx, "Gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImageHashRefreshOnlyOnMtimeChange(t *testing.T) {
	dbs := openTestDatabases(t)
	movies := NewMovieStore(dbs)
	ctx := context.Background()

	mtime := time.Now().UnixMilli()
	m := &catalog.Movie{
		Name:          "Art",
		DirectoryHash: "h1",
		Images:        catalog.ImageHashes{PosterMtime: mtime},
	}
	require.NoError(t, movies.Upsert(ctx, m))
	first, err := movies.Get(ctx, "Art")
	require.NoError(t, err)
	require.Len(t, first.Images.PosterHash, 10)

	// Same mtime, new scan: hash must be carried over, not recomputed.
	m2 := &catalog.Movie{
		Name:          "Art",
		DirectoryHash: "h2",
		Images:        catalog.ImageHashes{PosterMtime: mtime},
	}
	require.NoError(t, movies.Upsert(ctx, m2))
	second, err := movies.Get(ctx, "Art")
	require.NoError(t, err)
	assert.Equal(t, first.Images.PosterHash, second.Images.PosterHash)

	// Changed mtime: new hash.
	m3 := &catalog.Movie{
		Name:          "Art",
		DirectoryHash: "h3",
		Images:        catalog.ImageHashes{PosterMtime: mtime + 1000},
	}
	require.NoError(t, movies.Upsert(ctx, m3))
	third, err := movies.Get(ctx, "Art")
	require.NoError(t, err)
	assert.NotEqual(t, first.Images.PosterHash, third.Images.PosterHash)
}

func TestShowUpsertRoundTrip(t *testing.T) {
	dbs := openTestDatabases(t)
	shows := NewShowStore(dbs)
	ctx := context.Background()

	in := &catalog.Show{
		Name:          "Show X",
		ID:            catalog.EpisodeID("Show X", "", 0),
		DirectoryHash: "hash-1",
		Seasons: map[string]catalog.Season{
			"Season 2": {
				FileNames: []string{"S02E05 - Title.mp4"},
				URLs: map[string]catalog.EpisodeData{
					"S02E05 - Title.mp4": {
						ID:            catalog.EpisodeID("Show X", "Season 2", 5),
						URL:           "/tv/Show%20X/Season%202/S02E05%20-%20Title.mp4",
						EpisodeNumber: 5,
					},
				},
				Lengths:    map[string]int64{"S02E05 - Title.mp4": 1440000},
				Dimensions: map[string]string{"S02E05 - Title.mp4": "1920x1080"},
			},
		},
	}
	require.NoError(t, shows.Upsert(ctx, in))

	out, err := shows.Get(ctx, "Show X")
	require.NoError(t, err)
	require.Contains(t, out.Seasons, "Season 2")
	season := out.Seasons["Season 2"]
	assert.Equal(t, in.Seasons["Season 2"].FileNames, season.FileNames)
	ep := season.URLs["S02E05 - Title.mp4"]
	assert.Equal(t, 5, ep.EpisodeNumber)
	assert.Equal(t, catalog.EpisodeID("Show X", "Season 2", 5), ep.ID)
}

func TestProcessQueueLifecycle(t *testing.T) {
	dbs := openTestDatabases(t)
	queue := NewProcessStore(dbs)
	ctx := context.Background()

	key := "spritesheet:movie:Example"
	require.NoError(t, queue.CreateOrUpdate(ctx, key, "spritesheet", 4, 0, StatusInProgress, "probing"))
	require.NoError(t, queue.Update(ctx, key, 2, "", "rendering"))

	row, err := queue.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, row.CurrentStep)
	assert.Equal(t, StatusInProgress, row.Status)
	assert.Equal(t, "rendering", row.Message)

	require.NoError(t, queue.Finalize(ctx, key, StatusCompleted, "done"))
	row, err = queue.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, row.Status)
	assert.Equal(t, row.TotalSteps, row.CurrentStep,
		"completion snaps current_step to total_steps")
}

func TestProcessQueueStartupReset(t *testing.T) {
	dbs := openTestDatabases(t)
	queue := NewProcessStore(dbs)
	ctx := context.Background()

	require.NoError(t, queue.CreateOrUpdate(ctx, "a", "sprite", 4, 1, StatusInProgress, ""))
	require.NoError(t, queue.CreateOrUpdate(ctx, "b", "sprite", 4, 4, StatusCompleted, ""))

	n, err := queue.ResetStartup(ctx, StartupInterrupt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	row, err := queue.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, row.Status)

	require.NoError(t, queue.CreateOrUpdate(ctx, "c", "sprite", 4, 1, StatusInProgress, ""))
	n, err = queue.ResetStartup(ctx, StartupDelete)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = queue.Get(ctx, "c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMissingStoreRateLimit(t *testing.T) {
	dbs := openTestDatabases(t)
	missing := NewMissingStore(dbs)
	ctx := context.Background()

	_, found, err := missing.LastAttempt(ctx, "Example")
	require.NoError(t, err)
	assert.False(t, found)

	now := time.Now().Truncate(time.Millisecond)
	require.NoError(t, missing.MarkAttempt(ctx, "Example", now))

	got, found, err := missing.LastAttempt(ctx, "Example")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, now.UnixMilli(), got.UnixMilli())
}

func TestTMDBCacheTTL(t *testing.T) {
	dbs := openTestDatabases(t)
	cache := NewTMDBCacheStore(dbs)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "https://api.example/movie/1", []byte(`{"ok":true}`)))

	payload, hit, err := cache.Get(ctx, "https://api.example/movie/1", time.Hour)
	require.NoError(t, err)
	require.True(t, hit)
	assert.JSONEq(t, `{"ok":true}`, string(payload))

	_, hit, err = cache.Get(ctx, "https://api.example/movie/1", -time.Second)
	require.NoError(t, err)
	assert.False(t, hit, "expired entries miss")
}

func TestBlurhashStore(t *testing.T) {
	dbs := openTestDatabases(t)
	store := NewBlurhashStore(dbs)
	ctx := context.Background()

	_, hit, err := store.Get(ctx, "/movies/Example/poster.jpg", BlurhashTTL)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, store.Put(ctx, "/movies/Example/poster.jpg", "LEHV6nWB2yk8"))
	hash, hit, err := store.Get(ctx, "/movies/Example/poster.jpg", BlurhashTTL)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "LEHV6nWB2yk8", hash)
}

func TestIntroStore(t *testing.T) {
	dbs := openTestDatabases(t)
	intros := NewIntroStore(dbs)
	ctx := context.Background()

	_, err := intros.Get(ctx, "Show X", "Season 2", 5)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, intros.Upsert(ctx, &Intro{
		Show: "Show X", Season: "Season 2", Episode: 5,
		IntroStart: 12.5, IntroEnd: 84.0,
	}))

	intro, err := intros.Get(ctx, "Show X", "Season 2", 5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, intro.IntroStart)
	assert.Equal(t, 84.0, intro.IntroEnd)
}

func TestAddColumnToleratesDuplicates(t *testing.T) {
	dbs := openTestDatabases(t)
	ctx := context.Background()

	err := dbs.Catalog.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		// Column already exists from migrateCatalog; must be a no-op.
		return addColumn(ctx, conn, "movies", "directory_hash", "TEXT")
	})
	require.NoError(t, err)
}

func TestCloseRejectsNewWork(t *testing.T) {
	dbs, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, dbs.Ping(context.Background()))
	require.NoError(t, dbs.Close())

	err = dbs.Catalog.Read(context.Background(), func(ctx context.Context, conn *sql.DB) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrClosing)
}
