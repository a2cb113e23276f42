package db

import (
	"context"
	"database/sql"
	"errors"

	"filmstrip.dev/filmstrip/internal/catalog"
)

// ShowStore reads and writes tv-show catalog rows. The schema lives in
// migrateCatalog next to the movies table.
type ShowStore struct {
	db *Database
}

func NewShowStore(d *Databases) *ShowStore {
	return &ShowStore{db: d.Catalog}
}

const showColumns = `name, _id, seasons, urls, hdr,
	additional_metadata, directory_hash,
	poster_hash, poster_mtime, backdrop_hash, backdrop_mtime, logo_hash, logo_mtime`

// Upsert writes a show row with the same hash-conditional update discipline
// as movies: an unchanged directory hash performs no write.
func (s *ShowStore) Upsert(ctx context.Context, show *catalog.Show) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		return upsertShow(ctx, conn, show)
	})
}

// UpsertTx is Upsert running inside a caller-owned transaction, used by the
// scanner's per-title transactional pass.
func (s *ShowStore) UpsertTx(ctx context.Context, tx *sql.Tx, show *catalog.Show) error {
	return upsertShow(ctx, tx, show)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertShow(ctx context.Context, conn execer, show *catalog.Show) error {
	var stored catalog.ImageHashes
	row := conn.QueryRowContext(ctx, `
		SELECT poster_hash, poster_mtime, backdrop_hash, backdrop_mtime, logo_hash, logo_mtime
		FROM tv_shows WHERE name = ?`, show.Name)
	var ph, bh, lh sql.NullString
	if err := row.Scan(&ph, &stored.PosterMtime, &bh, &stored.BackdropMtime, &lh, &stored.LogoMtime); err == nil {
		stored.PosterHash, stored.BackdropHash, stored.LogoHash = fromNull(ph), fromNull(bh), fromNull(lh)
	}
	refreshImageHashes(&show.Images, stored)

	_, err := conn.ExecContext(ctx, `
		INSERT INTO tv_shows (
			name, _id, seasons, urls, hdr, additional_metadata, directory_hash,
			poster_hash, poster_mtime, backdrop_hash, backdrop_mtime, logo_hash, logo_mtime
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			_id = excluded._id,
			seasons = excluded.seasons,
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
		WHERE tv_shows.directory_hash IS NULL
			OR tv_shows.directory_hash <> excluded.directory_hash`,
		show.Name, show.ID, encodeJSON(show.Seasons), encodeJSON(show.URLs),
		show.HDR, encodeJSON(show.AdditionalMetadata), nullString(show.DirectoryHash),
		nullString(show.Images.PosterHash), show.Images.PosterMtime,
		nullString(show.Images.BackdropHash), show.Images.BackdropMtime,
		nullString(show.Images.LogoHash), show.Images.LogoMtime)
	return err
}

func scanShow(scan func(dest ...any) error) (*catalog.Show, error) {
	var show catalog.Show
	var seasons, urls, meta string
	var hdr, dirHash, ph, bh, lh sql.NullString
	err := scan(&show.Name, &show.ID, &seasons, &urls, &hdr, &meta, &dirHash,
		&ph, &show.Images.PosterMtime, &bh, &show.Images.BackdropMtime, &lh, &show.Images.LogoMtime)
	if err != nil {
		return nil, err
	}
	show.Seasons = map[string]catalog.Season{}
	decodeJSON(seasons, &show.Seasons)
	decodeJSON(urls, &show.URLs)
	decodeJSON(meta, &show.AdditionalMetadata)
	if hdr.Valid {
		show.HDR = &hdr.String
	}
	show.DirectoryHash = fromNull(dirHash)
	show.Images.PosterHash, show.Images.BackdropHash, show.Images.LogoHash = fromNull(ph), fromNull(bh), fromNull(lh)
	return &show, nil
}

// Get returns one show row, or ErrNotFound.
func (s *ShowStore) Get(ctx context.Context, name string) (*catalog.Show, error) {
	var show *catalog.Show
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx,
			`SELECT `+showColumns+` FROM tv_shows WHERE name = ?`, name)
		var err error
		show, err = scanShow(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	return show, err
}

// All returns every show row ordered by name.
func (s *ShowStore) All(ctx context.Context) ([]catalog.Show, error) {
	var shows []catalog.Show
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx,
			`SELECT `+showColumns+` FROM tv_shows ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		shows = shows[:0]
		for rows.Next() {
			show, err := scanShow(rows.Scan)
			if err != nil {
				return err
			}
			shows = append(shows, *show)
		}
		return rows.Err()
	})
	return shows, err
}

// DirectoryHash returns the stored hash for a show, reporting row existence.
func (s *ShowStore) DirectoryHash(ctx context.Context, name string) (string, bool, error) {
	var hash sql.NullString
	var exists bool
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx,
			`SELECT directory_hash FROM tv_shows WHERE name = ?`, name)
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

// Names returns every show name in the catalog.
func (s *ShowStore) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx, `SELECT name FROM tv_shows`)
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

// Delete removes a show row.
func (s *ShowStore) Delete(ctx context.Context, name string) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `DELETE FROM tv_shows WHERE name = ?`, name)
		return err
	})
}

// WithTx exposes the catalog database's transactional write wrapper to the
// scanner.
func (s *ShowStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return s.db.WithTx(ctx, fn)
}
