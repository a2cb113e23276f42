// Package derive runs the lazy artifact pipelines: resolve a catalog name to
// a source file, probe it, render through ffmpeg, post-process and serve from
// the cache. Identical in-flight requests are coalesced per artifact kind.
package derive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"filmstrip.dev/filmstrip/internal/cache"
	"filmstrip.dev/filmstrip/internal/db"
	"filmstrip.dev/filmstrip/internal/imaging"
	"filmstrip.dev/filmstrip/internal/info"
	"filmstrip.dev/filmstrip/pkg/ffmpeg"
)

// Sentinel errors mapped to HTTP statuses by the handlers.
var (
	ErrMediaNotFound = errors.New("derive: media not found")
	ErrBadRequest    = errors.New("derive: bad request")
	ErrTimeout       = errors.New("derive: timed out waiting for artifact")
	ErrNoChapters    = errors.New("derive: chapter information not found")
)

// Media is a resolved derivation target.
type Media struct {
	Type    cache.MediaType
	Name    string
	Season  string
	Episode int
	File    string
	Path    string
}

// Fingerprint identifies the logical artifact target for coalescing.
func (m *Media) Fingerprint() string {
	if m.Type == cache.TV {
		return fmt.Sprintf("tv|%s|%s|%d", m.Name, m.Season, m.Episode)
	}
	return "movie|" + m.Name
}

// Orchestrator owns the derivation flows. One instance per process.
type Orchestrator struct {
	Movies *db.MovieStore
	Shows  *db.ShowStore
	Queue  *db.ProcessStore
	Cache  *cache.Store
	Info   *info.Manager
	Runner *ffmpeg.Runner
	AVIF   *imaging.AVIFConverter

	MoviesRoot string
	TVRoot     string

	SpriteVersion int
	DisableAVIF   bool
	PNGOpts       imaging.PNGOptions
	PngquantBin   string
	// SpriteURLBase is the public base URL embedded in VTT cue targets.
	SpriteURLBase string

	sprites  singleflight.Group
	vtts     singleflight.Group
	chapters singleflight.Group

	clipMu       sync.Mutex
	clipInFlight map[string]struct{}
}

// ResolveMovie maps a movie name to its primary video file.
func (o *Orchestrator) ResolveMovie(ctx context.Context, name string) (*Media, error) {
	movie, err := o.Movies.Get(ctx, name)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: movie %q", ErrMediaNotFound, name)
		}
		return nil, err
	}
	if len(movie.FileNames) == 0 {
		return nil, fmt.Errorf("%w: movie %q has no files", ErrMediaNotFound, name)
	}
	file := movie.FileNames[0]
	return &Media{
		Type: cache.Movie,
		Name: name,
		File: file,
		Path: filepath.Join(o.MoviesRoot, name, file),
	}, nil
}

// ResolveEpisode maps (show, season, episode) to the episode video file.
func (o *Orchestrator) ResolveEpisode(ctx context.Context, show, season string, episode int) (*Media, error) {
	row, err := o.Shows.Get(ctx, show)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: show %q", ErrMediaNotFound, show)
		}
		return nil, err
	}
	s, ok := row.Seasons[season]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrMediaNotFound, show, season)
	}
	for file, ep := range s.URLs {
		if ep.EpisodeNumber == episode {
			return &Media{
				Type:    cache.TV,
				Name:    show,
				Season:  season,
				Episode: episode,
				File:    file,
				Path:    filepath.Join(o.TVRoot, show, season, file),
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s episode %d", ErrMediaNotFound, show, season, episode)
}

// ResolveShow returns every resolvable episode of a show, for bulk flows.
func (o *Orchestrator) ResolveShow(ctx context.Context, show string) ([]*Media, error) {
	row, err := o.Shows.Get(ctx, show)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: show %q", ErrMediaNotFound, show)
		}
		return nil, err
	}
	var out []*Media
	for season, s := range row.Seasons {
		for file, ep := range s.URLs {
			out = append(out, &Media{
				Type:    cache.TV,
				Name:    show,
				Season:  season,
				Episode: ep.EpisodeNumber,
				File:    file,
				Path:    filepath.Join(o.TVRoot, show, season, file),
			})
		}
	}
	return out, nil
}
