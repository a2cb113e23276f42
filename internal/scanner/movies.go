package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"filmstrip.dev/filmstrip/internal/catalog"
)

// errNoVideo marks a title directory without any playable file; such
// directories are skipped, not treated as scan failures.
var errNoVideo = errors.New("scanner: no video file in directory")

// scanMovies reconciles every movie directory in parallel, then prunes rows
// whose directory disappeared.
func (s *Scanner) scanMovies(ctx context.Context) error {
	entries, err := os.ReadDir(s.MoviesRoot)
	if err != nil {
		slog.Warn("movies root unreadable, skipping pass", "root", s.MoviesRoot, "error", err)
		return nil
	}

	onDisk := make(map[string]bool, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism())
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		onDisk[name] = true
		g.Go(func() error {
			if err := s.scanMovieDir(gctx, name); err != nil && !errors.Is(err, errNoVideo) {
				slog.Warn("movie scan failed", "name", name, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return s.pruneMovies(ctx, onDisk)
}

func (s *Scanner) scanMovieDir(ctx context.Context, name string) error {
	dir := filepath.Join(s.MoviesRoot, name)
	hash, err := HashDir(dir)
	if err != nil {
		return fmt.Errorf("hash %s: %w", name, err)
	}

	if stored, ok, err := s.Movies.DirectoryHash(ctx, name); err != nil {
		return err
	} else if ok && stored == hash {
		return nil
	}

	movie, art, err := s.buildMovie(ctx, name, dir, hash)
	if err != nil {
		return err
	}

	if !art.Complete() && s.shouldEnrich(ctx, name) {
		if err := s.Enricher.EnrichMovie(ctx, name); err != nil {
			slog.Warn("movie enrichment failed", "name", name, "error", err)
		} else {
			// The tool may have written art; rebuild from the new state.
			if hash, err = HashDir(dir); err != nil {
				return fmt.Errorf("hash %s: %w", name, err)
			}
			if movie, art, err = s.buildMovie(ctx, name, dir, hash); err != nil {
				return err
			}
		}
	}

	if err := s.Movies.Upsert(ctx, movie); err != nil {
		return err
	}
	if art.Complete() && s.Missing != nil {
		return s.Missing.Clear(ctx, name)
	}
	return nil
}

// shouldEnrich applies the per-title enrichment rate limit and records the
// attempt.
func (s *Scanner) shouldEnrich(ctx context.Context, name string) bool {
	if s.Enricher == nil || s.Missing == nil {
		return false
	}
	last, found, err := s.Missing.LastAttempt(ctx, name)
	if err != nil {
		slog.Warn("missing-data lookup failed", "name", name, "error", err)
		return false
	}
	if found && time.Since(last) < s.RetryInterval {
		return false
	}
	if err := s.Missing.MarkAttempt(ctx, name, time.Now()); err != nil {
		slog.Warn("missing-data mark failed", "name", name, "error", err)
		return false
	}
	return true
}

func (s *Scanner) buildMovie(ctx context.Context, name, dir, hash string) (*catalog.Movie, artwork, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, artwork{}, err
	}

	var videos []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".mp4") {
			continue
		}
		if IsTranscoderCache(e.Name()) {
			continue
		}
		videos = append(videos, e.Name())
	}
	if len(videos) == 0 {
		return nil, artwork{}, fmt.Errorf("%w: %s", errNoVideo, name)
	}

	movie := &catalog.Movie{
		Name:          name,
		FileNames:     videos,
		Lengths:       make(map[string]int64, len(videos)),
		Dimensions:    make(map[string]string, len(videos)),
		DirectoryHash: hash,
	}

	for i, video := range videos {
		vi, err := s.Info.Get(ctx, filepath.Join(dir, video))
		if err != nil {
			return nil, artwork{}, err
		}
		movie.Lengths[video] = vi.Length
		movie.Dimensions[video] = vi.Dimensions
		if i == 0 {
			movie.ID = vi.UUID
			movie.HDR = vi.HDR
			movie.AdditionalMetadata = vi.AdditionalMetadata
		}
	}

	buildURL := func(file string) string { return s.URLs.Movie(name, file) }
	primary := videos[0]
	art := findArtwork(dir)

	movie.URLs = catalog.URLBag{
		MP4:       buildURL(primary),
		Subtitles: findSubtitles(dir, stem(primary), buildURL),
	}
	if art.Poster != "" {
		movie.URLs.Poster = buildURL(art.Poster)
		movie.URLs.PosterBlurhash = s.blurhashURL(ctx, dir, art.Poster, buildURL)
		movie.Images.PosterMtime = artMtime(dir, art.Poster)
	}
	if art.Backdrop != "" {
		movie.URLs.Backdrop = buildURL(art.Backdrop)
		movie.URLs.BackdropBlurhash = s.blurhashURL(ctx, dir, art.Backdrop, buildURL)
		movie.Images.BackdropMtime = artMtime(dir, art.Backdrop)
	}
	if art.Logo != "" {
		movie.URLs.Logo = buildURL(art.Logo)
		movie.Images.LogoMtime = artMtime(dir, art.Logo)
	}
	if art.Metadata != "" {
		movie.URLs.Metadata = buildURL(art.Metadata)
	}
	if ch := chaptersFile(dir, stem(primary)); ch != "" {
		movie.URLs.Chapters = s.URLs.Movie(name, "chapters", ch)
	}

	return movie, art, nil
}

// pruneMovies deletes rows whose directory no longer exists.
func (s *Scanner) pruneMovies(ctx context.Context, onDisk map[string]bool) error {
	names, err := s.Movies.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if onDisk[name] {
			continue
		}
		if err := s.Movies.Delete(ctx, name); err != nil {
			return err
		}
		slog.Info("removed movie with missing directory", "name", name)
	}
	return nil
}
