package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filmstrip.dev/filmstrip/internal/catalog"
	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/info"
	"filmstrip.dev/filmstrip/pkg/ffmpeg"
)

type stubProber struct{}

func (stubProber) Probe(_ context.Context, _ string) (*ffmpeg.ProbeResult, error) {
	return &ffmpeg.ProbeResult{Duration: 602.4, Width: 1920, Height: 1080}, nil
}

type stubEnricher struct {
	movieCalls atomic.Int64
	showCalls  atomic.Int64
	onMovie    func(name string)
}

func (e *stubEnricher) EnrichMovie(_ context.Context, name string) error {
	e.movieCalls.Add(1)
	if e.onMovie != nil {
		e.onMovie(name)
	}
	return nil
}

func (e *stubEnricher) EnrichShow(_ context.Context, _ string) error {
	e.showCalls.Add(1)
	return nil
}

func newTestScanner(t *testing.T) (*Scanner, string) {
	t.Helper()
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "movies"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "tv"), 0755))

	databases, err := db.Open(filepath.Join(base, "db"))
	require.NoError(t, err)
	t.Cleanup(func() { databases.Close() })

	return &Scanner{
		MoviesRoot:    filepath.Join(base, "movies"),
		TVRoot:        filepath.Join(base, "tv"),
		Movies:        db.NewMovieStore(databases),
		Shows:         db.NewShowStore(databases),
		Missing:       db.NewMissingStore(databases),
		Info:          info.NewManager(stubProber{}),
		URLs:          catalog.URLBuilder{},
		RetryInterval: 24 * time.Hour,
		Parallelism:   2,
	}, base
}

func writeMovie(t *testing.T, base, name string, extras ...string) string {
	t.Helper()
	dir := filepath.Join(base, "movies", name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".mp4"), []byte("mp4 bytes "+name), 0644))
	for _, extra := range extras {
		require.NoError(t, os.WriteFile(filepath.Join(dir, extra), []byte(extra), 0644))
	}
	return dir
}

func writeEpisode(t *testing.T, base, show, season, file string) {
	t.Helper()
	dir := filepath.Join(base, "tv", show, season)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte("mp4 bytes "+file), 0644))
}

func TestHashEntriesOrderIndependent(t *testing.T) {
	a := []Entry{
		{Path: "a.mp4", Size: 10, Mtime: 1000, Depth: 1},
		{Path: "chapters/a_chapters.vtt", Size: 5, Mtime: 2000, Depth: 2},
	}
	b := []Entry{a[1], a[0]}
	assert.Equal(t, HashEntries(a), HashEntries(b))
}

func TestHashEntriesDepthBound(t *testing.T) {
	base := []Entry{{Path: "a.mp4", Size: 10, Mtime: 1000, Depth: 1}}
	deep := append(base, Entry{Path: "x/y/z.srt", Size: 1, Mtime: 1, Depth: 3})
	assert.Equal(t, HashEntries(base), HashEntries(deep), "entries past the depth bound are invisible")

	changed := []Entry{{Path: "a.mp4", Size: 11, Mtime: 1000, Depth: 1}}
	assert.NotEqual(t, HashEntries(base), HashEntries(changed))
}

func TestParseEpisode(t *testing.T) {
	cases := []struct {
		name string
		want int
		ok   bool
	}{
		{"Show X - S02E05 The One.mp4", 5, true},
		{"S01E12.mp4", 12, true},
		{"07 - Pilot.mp4", 7, true},
		{"Show X - Extras.mp4", 0, false},
		{"S02E05.mkv", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseEpisode(tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestScanMoviesCreatesRow(t *testing.T) {
	ctx := context.Background()
	s, base := newTestScanner(t)
	writeMovie(t, base, "Example", "poster.jpg", "backdrop.jpg", "metadata.json")

	require.NoError(t, s.Scan(ctx))

	movie, err := s.Movies.Get(ctx, "Example")
	require.NoError(t, err)
	assert.Equal(t, []string{"Example.mp4"}, movie.FileNames)
	assert.Equal(t, int64(602400), movie.Lengths["Example.mp4"])
	assert.Equal(t, "1920x1080", movie.Dimensions["Example.mp4"])
	assert.Equal(t, "/movies/Example/Example.mp4", movie.URLs.MP4)
	assert.Equal(t, "/movies/Example/poster.jpg", movie.URLs.Poster)
	assert.NotEmpty(t, movie.ID)
	assert.NotEmpty(t, movie.DirectoryHash)
	assert.NotEmpty(t, movie.Images.PosterHash, "poster hash computed from mtime")
}

func TestIsTranscoderCache(t *testing.T) {
	cases := map[string]bool{
		"Example.mp4":                          false,
		"Example.transcoded.mp4":               true,
		"Example.TRANSCODED.mp4":               true,
		".Example.mp4.part":                    true,
		"Show X - S02E05.transcoded.mp4":       true,
		"A Movie About.Transcoding (1999).mp4": false,
	}
	for name, want := range cases {
		assert.Equal(t, want, IsTranscoderCache(name), name)
	}
}

func TestScanSkipsTranscoderCache(t *testing.T) {
	ctx := context.Background()
	s, base := newTestScanner(t)
	writeMovie(t, base, "Example", "Example.transcoded.mp4", ".Example.mp4")
	writeEpisode(t, base, "Show X", "Season 2", "Show X - S02E05.mp4")
	writeEpisode(t, base, "Show X", "Season 2", "Show X - S02E05.transcoded.mp4")
	// A season holding only transcoder leftovers has no valid episodes.
	writeEpisode(t, base, "Show X", "Season 3", "Show X - S03E01.transcoded.mp4")

	require.NoError(t, s.Scan(ctx))

	movie, err := s.Movies.Get(ctx, "Example")
	require.NoError(t, err)
	assert.Equal(t, []string{"Example.mp4"}, movie.FileNames)

	show, err := s.Shows.Get(ctx, "Show X")
	require.NoError(t, err)
	require.Contains(t, show.Seasons, "Season 2")
	assert.NotContains(t, show.Seasons, "Season 3")
	season := show.Seasons["Season 2"]
	assert.Equal(t, []string{"Show X - S02E05.mp4"}, season.FileNames)
}

func TestRescanIsStable(t *testing.T) {
	ctx := context.Background()
	s, base := newTestScanner(t)
	writeMovie(t, base, "Example", "poster.jpg")

	// First scan writes the .info sidecar, second picks up the final hash.
	require.NoError(t, s.Scan(ctx))
	require.NoError(t, s.Scan(ctx))
	settled, err := s.Movies.Get(ctx, "Example")
	require.NoError(t, err)

	require.NoError(t, s.Scan(ctx))
	after, err := s.Movies.Get(ctx, "Example")
	require.NoError(t, err)
	assert.Equal(t, settled, after, "unchanged library leaves rows untouched")
}

func TestScanRemovesDeletedMovie(t *testing.T) {
	ctx := context.Background()
	s, base := newTestScanner(t)
	dir := writeMovie(t, base, "Gone")
	writeMovie(t, base, "Stays")

	require.NoError(t, s.Scan(ctx))
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, s.Scan(ctx))

	_, err := s.Movies.Get(ctx, "Gone")
	assert.ErrorIs(t, err, db.ErrNotFound)
	_, err = s.Movies.Get(ctx, "Stays")
	assert.NoError(t, err)
}

func TestScanTVBuildsSeasons(t *testing.T) {
	ctx := context.Background()
	s, base := newTestScanner(t)
	writeEpisode(t, base, "Show X", "Season 2", "Show X - S02E05.mp4")
	writeEpisode(t, base, "Show X", "Season 2", "Show X - S02E06.mp4")
	// A season directory without valid episodes must not be stored.
	require.NoError(t, os.MkdirAll(filepath.Join(base, "tv", "Show X", "Season 3"), 0755))

	require.NoError(t, s.Scan(ctx))

	show, err := s.Shows.Get(ctx, "Show X")
	require.NoError(t, err)
	require.Contains(t, show.Seasons, "Season 2")
	assert.NotContains(t, show.Seasons, "Season 3")

	season := show.Seasons["Season 2"]
	require.Contains(t, season.URLs, "Show X - S02E05.mp4")
	ep := season.URLs["Show X - S02E05.mp4"]
	assert.Equal(t, 5, ep.EpisodeNumber)
	assert.Equal(t, catalog.EpisodeID("Show X", "Season 2", 5), ep.ID)
	assert.Equal(t, "/tv/Show%20X/Season%202/Show%20X%20-%20S02E05.mp4", ep.URL)
	assert.Equal(t, []string{"Show X - S02E05.mp4", "Show X - S02E06.mp4"}, season.FileNames)
}

func TestScanTVEpisodeDeletion(t *testing.T) {
	ctx := context.Background()
	s, base := newTestScanner(t)
	writeEpisode(t, base, "Show X", "Season 2", "Show X - S02E05.mp4")
	writeEpisode(t, base, "Show X", "Season 2", "Show X - S02E06.mp4")
	writeEpisode(t, base, "Show X", "Season 1", "Show X - S01E01.mp4")

	require.NoError(t, s.Scan(ctx))

	epPath := filepath.Join(base, "tv", "Show X", "Season 2", "Show X - S02E05.mp4")
	require.NoError(t, os.Remove(epPath))
	require.NoError(t, os.Remove(info.SidecarPath(epPath)))
	require.NoError(t, s.Scan(ctx))

	show, err := s.Shows.Get(ctx, "Show X")
	require.NoError(t, err)
	season := show.Seasons["Season 2"]
	assert.NotContains(t, season.URLs, "Show X - S02E05.mp4")
	assert.Contains(t, season.URLs, "Show X - S02E06.mp4")

	// Emptying a season drops it from the show entirely.
	require.NoError(t, os.RemoveAll(filepath.Join(base, "tv", "Show X", "Season 1")))
	require.NoError(t, s.Scan(ctx))
	show, err = s.Shows.Get(ctx, "Show X")
	require.NoError(t, err)
	assert.NotContains(t, show.Seasons, "Season 1")
}

func TestEnrichmentRateLimited(t *testing.T) {
	ctx := context.Background()
	s, base := newTestScanner(t)
	enricher := &stubEnricher{}
	s.Enricher = enricher
	writeMovie(t, base, "Bare") // no art at all

	require.NoError(t, s.Scan(ctx))
	assert.EqualValues(t, 1, enricher.movieCalls.Load())

	// The directory changed (info sidecar) so the row rebuilds, but the
	// attempt window still blocks a second tool invocation.
	require.NoError(t, s.Scan(ctx))
	assert.EqualValues(t, 1, enricher.movieCalls.Load())
}

func TestEnrichmentRescuesArt(t *testing.T) {
	ctx := context.Background()
	s, base := newTestScanner(t)
	dir := writeMovie(t, base, "Rescued")
	enricher := &stubEnricher{onMovie: func(string) {
		for _, art := range []string{"poster.jpg", "backdrop.jpg", "metadata.json"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, art), []byte(art), 0644))
		}
	}}
	s.Enricher = enricher

	require.NoError(t, s.Scan(ctx))

	movie, err := s.Movies.Get(ctx, "Rescued")
	require.NoError(t, err)
	assert.Equal(t, "/movies/Rescued/poster.jpg", movie.URLs.Poster,
		"art written by the tool is picked up in the same pass")

	_, found, err := s.Missing.LastAttempt(ctx, "Rescued")
	require.NoError(t, err)
	assert.False(t, found, "completed art clears the missing-data row")
}

func TestOverlappingScanDropped(t *testing.T) {
	s, _ := newTestScanner(t)
	s.scanning.Store(true)
	err := s.Scan(context.Background())
	assert.ErrorIs(t, err, ErrScanInProgress)
	s.scanning.Store(false)
	assert.NoError(t, s.Scan(context.Background()))
}

func TestSubtitleDiscovery(t *testing.T) {
	ctx := context.Background()
	s, base := newTestScanner(t)
	writeMovie(t, base, "Subbed", "Subbed.en.srt", "Subbed.pt-BR.hi.srt")

	require.NoError(t, s.Scan(ctx))

	movie, err := s.Movies.Get(ctx, "Subbed")
	require.NoError(t, err)
	require.Contains(t, movie.URLs.Subtitles, "en")
	assert.Equal(t, "English", movie.URLs.Subtitles["en"].Name)
	require.Contains(t, movie.URLs.Subtitles, "pt-BR.hi")
	assert.True(t, movie.URLs.Subtitles["pt-BR.hi"].HearingImpaired)
	assert.Equal(t, "/movies/Subbed/Subbed.pt-BR.hi.srt", movie.URLs.Subtitles["pt-BR.hi"].URL)
}
