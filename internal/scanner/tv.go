package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filmstrip.dev/filmstrip/internal/catalog"
)

// scanTV reconciles every show directory. Each show commits in its own
// transaction so one broken show never rolls back the others.
func (s *Scanner) scanTV(ctx context.Context) error {
	entries, err := os.ReadDir(s.TVRoot)
	if err != nil {
		slog.Warn("tv root unreadable, skipping pass", "root", s.TVRoot, "error", err)
		return nil
	}

	onDisk := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		onDisk[name] = true
		if err := s.scanShowDir(ctx, name); err != nil && !errors.Is(err, errNoVideo) {
			slog.Warn("show scan failed", "name", name, "error", err)
		}
	}

	return s.pruneShows(ctx, onDisk)
}

func (s *Scanner) scanShowDir(ctx context.Context, name string) error {
	dir := filepath.Join(s.TVRoot, name)
	hash, err := HashDir(dir)
	if err != nil {
		return fmt.Errorf("hash %s: %w", name, err)
	}

	if stored, ok, err := s.Shows.DirectoryHash(ctx, name); err != nil {
		return err
	} else if ok && stored == hash {
		return nil
	}

	show, art, err := s.buildShow(ctx, name, dir, hash)
	if err != nil {
		return err
	}

	if !art.Complete() && s.shouldEnrich(ctx, name) {
		if err := s.Enricher.EnrichShow(ctx, name); err != nil {
			slog.Warn("show enrichment failed", "name", name, "error", err)
		} else {
			if hash, err = HashDir(dir); err != nil {
				return fmt.Errorf("hash %s: %w", name, err)
			}
			if show, art, err = s.buildShow(ctx, name, dir, hash); err != nil {
				return err
			}
		}
	}

	if err := s.Shows.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return s.Shows.UpsertTx(ctx, tx, show)
	}); err != nil {
		return err
	}
	if art.Complete() && s.Missing != nil {
		return s.Missing.Clear(ctx, name)
	}
	return nil
}

func (s *Scanner) buildShow(ctx context.Context, name, dir, hash string) (*catalog.Show, artwork, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, artwork{}, err
	}

	show := &catalog.Show{
		Name:          name,
		Seasons:       make(map[string]catalog.Season),
		DirectoryHash: hash,
	}

	var seasonNames []string
	for _, e := range entries {
		if e.IsDir() && IsSeasonDir(e.Name()) {
			seasonNames = append(seasonNames, e.Name())
		}
	}
	sort.Strings(seasonNames)

	for _, seasonName := range seasonNames {
		season, err := s.buildSeason(ctx, show, name, seasonName, filepath.Join(dir, seasonName))
		if err != nil {
			return nil, artwork{}, err
		}
		// A season without a single valid episode is never stored.
		if len(season.URLs) == 0 {
			continue
		}
		show.Seasons[seasonName] = *season
	}
	if len(show.Seasons) == 0 {
		return nil, artwork{}, fmt.Errorf("%w: %s", errNoVideo, name)
	}

	buildURL := func(file string) string { return s.URLs.Show(name, file) }
	art := findArtwork(dir)
	if art.Poster != "" {
		show.URLs.Poster = buildURL(art.Poster)
		show.URLs.PosterBlurhash = s.blurhashURL(ctx, dir, art.Poster, buildURL)
		show.Images.PosterMtime = artMtime(dir, art.Poster)
	}
	if art.Backdrop != "" {
		show.URLs.Backdrop = buildURL(art.Backdrop)
		show.URLs.BackdropBlurhash = s.blurhashURL(ctx, dir, art.Backdrop, buildURL)
		show.Images.BackdropMtime = artMtime(dir, art.Backdrop)
	}
	if art.Logo != "" {
		show.URLs.Logo = buildURL(art.Logo)
		show.Images.LogoMtime = artMtime(dir, art.Logo)
	}
	if art.Metadata != "" {
		show.URLs.Metadata = buildURL(art.Metadata)
	}

	return show, art, nil
}

func (s *Scanner) buildSeason(ctx context.Context, show *catalog.Show, showName, seasonName, dir string) (*catalog.Season, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	season := &catalog.Season{
		URLs:       make(map[string]catalog.EpisodeData),
		Lengths:    make(map[string]int64),
		Dimensions: make(map[string]string),
	}

	buildURL := func(file string) string { return s.URLs.Show(showName, seasonName, file) }

	for _, e := range entries {
		file := e.Name()
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(file), ".mp4") || IsTranscoderCache(file) {
			continue
		}
		epNum, ok := ParseEpisode(file)
		if !ok {
			slog.Warn("episode filename did not match any pattern",
				"show", showName, "season", seasonName, "file", file)
			continue
		}

		videoPath := filepath.Join(dir, file)
		vi, err := s.Info.Get(ctx, videoPath)
		if err != nil {
			return nil, err
		}
		st, err := os.Stat(videoPath)
		if err != nil {
			return nil, err
		}

		ep := catalog.EpisodeData{
			ID:                catalog.EpisodeID(showName, seasonName, epNum),
			URL:               buildURL(file),
			MediaLastModified: st.ModTime().UnixMilli(),
			EpisodeNumber:     epNum,
			Subtitles:         findSubtitles(dir, stem(file), buildURL),
		}
		if thumb := probeFile(dir, stem(file)+".jpg", stem(file)+".png"); thumb != "" {
			ep.Thumbnail = buildURL(thumb)
			ep.Blurhash = s.blurhashURL(ctx, dir, thumb, buildURL)
		}
		if meta := probeFile(dir, stem(file)+"_metadata.json"); meta != "" {
			ep.Metadata = buildURL(meta)
		}
		if ch := chaptersFile(dir, stem(file)); ch != "" {
			ep.Chapters = s.URLs.Show(showName, seasonName, "chapters", ch)
		}

		season.FileNames = append(season.FileNames, file)
		season.URLs[file] = ep
		season.Lengths[file] = vi.Length
		season.Dimensions[file] = vi.Dimensions

		// First valid episode of the show defines its identity and HDR flag.
		if show.ID == "" {
			show.ID = vi.UUID
			show.HDR = vi.HDR
			show.AdditionalMetadata = vi.AdditionalMetadata
		}
	}

	if poster := probeFile(dir, "season_poster.jpg", "poster.jpg"); poster != "" {
		season.SeasonPoster = buildURL(poster)
		season.SeasonPosterBlurhash = s.blurhashURL(ctx, dir, poster, buildURL)
	}

	sort.Strings(season.FileNames)
	return season, nil
}

func (s *Scanner) pruneShows(ctx context.Context, onDisk map[string]bool) error {
	names, err := s.Shows.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if onDisk[name] {
			continue
		}
		if err := s.Shows.Delete(ctx, name); err != nil {
			return err
		}
		slog.Info("removed show with missing directory", "name", name)
	}
	return nil
}
