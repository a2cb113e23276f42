package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"filmstrip.dev/filmstrip/internal/catalog"
)

// ErrNotFound reports a missing catalog row.
var ErrNotFound = errors.New("db: not found")

func migrateCatalog(ctx context.Context, conn *sql.DB) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS movies (
		name TEXT PRIMARY KEY,
		_id TEXT NOT NULL DEFAULT '',
		file_names TEXT NOT NULL DEFAULT '[]',
		lengths TEXT NOT NULL DEFAULT '{}',
		dimensions TEXT NOT NULL DEFAULT '{}',
		urls TEXT NOT NULL DEFAULT '{}',
		hdr TEXT,
		additional_metadata TEXT NOT NULL DEFAULT '{}',
		directory_hash TEXT,
		poster_hash TEXT, poster_mtime INTEGER NOT NULL DEFAULT 0,
		backdrop_hash TEXT, backdrop_mtime INTEGER NOT NULL DEFAULT 0,
		logo_hash TEXT, logo_mtime INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS tv_shows (
		name TEXT PRIMARY KEY,
		_id TEXT NOT NULL DEFAULT '',
		seasons TEXT NOT NULL DEFAULT '{}',
		urls TEXT NOT NULL DEFAULT '{}',
		hdr TEXT,
		additional_metadata TEXT NOT NULL DEFAULT '{}',
		directory_hash TEXT,
		poster_hash TEXT, poster_mtime INTEGER NOT NULL DEFAULT 0,
		backdrop_hash TEXT, backdrop_mtime INTEGER NOT NULL DEFAULT 0,
		logo_hash TEXT, logo_mtime INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS missing_data_media (
		name TEXT PRIMARY KEY,
		last_attempt INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return err
	}
	// Additive migrations for rows created by earlier schemas.
	for _, table := range []string{"movies", "tv_shows"} {
		if err := addColumn(ctx, conn, table, "additional_metadata", "TEXT NOT NULL DEFAULT '{}'"); err != nil {
			return err
		}
		if err := addColumn(ctx, conn, table, "directory_hash", "TEXT"); err != nil {
			return err
		}
	}
	return nil
}

// MovieStore reads and writes movie catalog rows.
type MovieStore struct {
	db *Database
}

func NewMovieStore(d *Databases) *MovieStore {
	return &MovieStore{db: d.Catalog}
}

// refreshImageHashes recomputes an artwork hash only when the on-disk mtime
// differs from the stored one; unchanged art keeps its cached hash.
func refreshImageHashes(next *catalog.ImageHashes, stored catalog.ImageHashes) {
	refresh := func(mtime int64, storedMtime int64, storedHash string) string {
		if mtime == 0 {
			return ""
		}
		if mtime == storedMtime && storedHash != "" {
			return storedHash
		}
		return catalog.ImageHash(time.UnixMilli(mtime))
	}
	next.PosterHash = refresh(next.PosterMtime, stored.PosterMtime, stored.PosterHash)
	next.BackdropHash = refresh(next.BackdropMtime, stored.BackdropMtime, stored.BackdropHash)
	next.LogoHash = refresh(next.LogoMtime, stored.LogoMtime, stored.LogoHash)
}

// Upsert writes a movie row. The conditional update means a row whose
// directory hash is unchanged performs no write at all.
func (s *MovieStore) Upsert(ctx context.Context, m *catalog.Movie) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		var stored catalog.ImageHashes
		row := conn.QueryRowContext(ctx, `
			SELECT poster_hash, poster_mtime, backdrop_hash, backdrop_mtime, logo_hash, logo_mtime
			FROM movies WHERE name = ?`, m.Name)
		var ph, bh, lh sql.NullString
		if err := row.Scan(&ph, &stored.PosterMtime, &bh, &stored.BackdropMtime, &lh, &stored.LogoMtime); err == nil {
			stored.PosterHash, stored.BackdropHash, stored.LogoHash = fromNull(ph), fromNull(bh), fromNull(lh)
		}
		refreshImageHashes(&m.Images, stored)

		_, err := conn.ExecContext(ctx, `
			INSERT INTO movies (
				name, _id, file_names, lengths, dimensions, urls, hdr,
				additional_metadata, directory_hash,
				poster_hash, poster_mtime, backdrop_hash, backdrop_mtime, logo_hash, logo_mtime
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				_id = excluded._id,
				file_names = excluded.file_names,
				lengths = excluded.lengths,
				dimensions = excluded.dimensions,
				urls = excluded.urls,
				hdr = excluded.hdr,
				additional_metadata = excluded.additional_metadata,
				directory_hash = excluded.directory_hash,
				poster_hash = excluded.poster_hash,
				poster_mtime = excluded.poster_mtime,
				backdrop_hash = excluded.backdrop_hash,
				backdrop_mtime = excluded.backdrop_mtime,
				logo_hash = excluded.logo_hash,
				logo_mtime = excluded.logo_mtime
			WHERE movies.directory_hash IS NULL
				OR movies.directory_hash <> excluded.directory_hash`,
			m.Name, m.ID, encodeJSON(m.FileNames), encodeJSON(m.Lengths),
			encodeJSON(m.Dimensions), encodeJSON(m.URLs), m.HDR,
			encodeJSON(m.AdditionalMetadata), nullString(m.DirectoryHash),
			nullString(m.Images.PosterHash), m.Images.PosterMtime,
			nullString(m.Images.BackdropHash), m.Images.BackdropMtime,
			nullString(m.Images.LogoHash), m.Images.LogoMtime)
		return err
	})
}

func scanMovie(scan func(dest ...any) error) (*catalog.Movie, error) {
	var m catalog.Movie
	var fileNames, lengths, dimensions, urls, meta string
	var hdr, dirHash, ph, bh, lh sql.NullString
	err := scan(&m.Name, &m.ID, &fileNames, &lengths, &dimensions, &urls, &hdr,
		&meta, &dirHash,
		&ph, &m.Images.PosterMtime, &bh, &m.Images.BackdropMtime, &lh, &m.Images.LogoMtime)
	if err != nil {
		return nil, err
	}
	m.FileNames = []string{}
	m.Lengths = map[string]int64{}
	m.Dimensions = map[string]string{}
	decodeJSON(fileNames, &m.FileNames)
	decodeJSON(lengths, &m.Lengths)
	decodeJSON(dimensions, &m.Dimensions)
	decodeJSON(urls, &m.URLs)
	decodeJSON(meta, &m.AdditionalMetadata)
	if hdr.Valid {
		m.HDR = &hdr.String
	}
	m.DirectoryHash = fromNull(dirHash)
	m.Images.PosterHash, m.Images.BackdropHash, m.Images.LogoHash = fromNull(ph), fromNull(bh), fromNull(lh)
	return &m, nil
}

const movieColumns = `name, _id, file_names, lengths, dimensions, urls, hdr,
	additional_metadata, directory_hash,
	poster_hash, poster_mtime, backdrop_hash, backdrop_mtime, logo_hash, logo_mtime`

// Get returns one movie row, or ErrNotFound.
func (s *MovieStore) Get(ctx context.Context, name string) (*catalog.Movie, error) {
	var m *catalog.Movie
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx,
			`SELECT `+movieColumns+` FROM movies WHERE name = ?`, name)
		var err error
		m, err = scanMovie(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	return m, err
}

// All returns every movie row ordered by name.
func (s *MovieStore) All(ctx context.Context) ([]catalog.Movie, error) {
	var movies []catalog.Movie
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx,
			`SELECT `+movieColumns+` FROM movies ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		movies = movies[:0]
		for rows.Next() {
			m, err := scanMovie(rows.Scan)
			if err != nil {
				return err
			}
			movies = append(movies, *m)
		}
		return rows.Err()
	})
	return movies, err
}

// DirectoryHash returns the stored hash for a movie, reporting whether the
// row exists.
func (s *MovieStore) DirectoryHash(ctx context.Context, name string) (string, bool, error) {
	var hash sql.NullString
	var exists bool
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx,
			`SELECT directory_hash FROM movies WHERE name = ?`, name)
		if err := row.Scan(&hash); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	return fromNull(hash), exists, err
}

// Names returns every movie name in the catalog.
func (s *MovieStore) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx, `SELECT name FROM movies`)
		if err != nil {
			return err
		}
		defer rows.Close()
		names = names[:0]
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				return err
			}
			names = append(names, n)
		}
		return rows.Err()
	})
	return names, err
}

// Delete removes a movie row; deleting a missing row is a no-op.
func (s *MovieStore) Delete(ctx context.Context, name string) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `DELETE FROM movies WHERE name = ?`, name)
		return err
	})
}
