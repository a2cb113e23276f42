package db

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// encodeJSON marshals v for a TEXT column; failures degrade to the type's
// empty encoding rather than aborting a row write.
func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode json column", "error", err)
		return "{}"
	}
	return string(b)
}

// decodeJSON unmarshals a TEXT column into out. Malformed JSON leaves out at
// its zero value; rows written by older versions stay readable.
func decodeJSON(raw string, out any) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		slog.Warn("malformed json column, using default", "error", err)
	}
}

// nullString maps an empty string to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// fromNull maps SQL NULL to the empty string.
func fromNull(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// Databases aggregates the four database files. Each opens lazily on first
// use.
type Databases struct {
	Catalog *Database // movies, tv_shows, missing_data_media
	Queue   *Database // process_queue
	TMDB    *Database // tmdb_cache, blurhash_cache
	Intros  *Database // intros
}

// Open prepares handles for all four databases under dir, creating the
// directory when needed.
func Open(dir string) (*Databases, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Databases{
		Catalog: New(filepath.Join(dir, "media.db"), migrateCatalog),
		Queue:   New(filepath.Join(dir, "processes.db"), migrateQueue),
		TMDB:    New(filepath.Join(dir, "tmdb.db"), migrateTMDB),
		Intros:  New(filepath.Join(dir, "intros.db"), migrateIntros),
	}, nil
}

// Close shuts down every database, returning the first error.
func (s *Databases) Close() error {
	var first error
	for _, d := range []*Database{s.Catalog, s.Queue, s.TMDB, s.Intros} {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Ping opens every database eagerly; used at startup so schema problems
// surface before the first request.
func (s *Databases) Ping(ctx context.Context) error {
	for _, d := range []*Database{s.Catalog, s.Queue, s.TMDB, s.Intros} {
		if _, err := d.getOrInit(ctx); err != nil {
			return err
		}
	}
	return nil
}
