package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func migrateTMDB(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS tmdb_cache (
		url TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		fetched_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS blurhash_cache (
		url TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	return err
}

// TMDBCacheStore memoizes enrichment collaborator responses keyed by request
// URL with a TTL, so repeated scans do not hammer the external API.
type TMDBCacheStore struct {
	db *Database
}

func NewTMDBCacheStore(d *Databases) *TMDBCacheStore {
	return &TMDBCacheStore{db: d.TMDB}
}

// Get returns the cached payload for url when younger than ttl.
func (s *TMDBCacheStore) Get(ctx context.Context, url string, ttl time.Duration) ([]byte, bool, error) {
	var payload string
	var fetchedAt int64
	var found bool
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx,
			`SELECT payload, fetched_at FROM tmdb_cache WHERE url = ?`, url)
		if err := row.Scan(&payload, &fetchedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	if time.Since(time.UnixMilli(fetchedAt)) > ttl {
		return nil, false, nil
	}
	return []byte(payload), true, nil
}

// Put stores a response payload for url.
func (s *TMDBCacheStore) Put(ctx context.Context, url string, payload []byte) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO tmdb_cache (url, payload, fetched_at) VALUES (?, ?, ?)
			ON CONFLICT(url) DO UPDATE SET
				payload = excluded.payload,
				fetched_at = excluded.fetched_at`,
			url, string(payload), time.Now().UnixMilli())
		return err
	})
}

// Prune deletes entries older than ttl, returning the count removed.
func (s *TMDBCacheStore) Prune(ctx context.Context, ttl time.Duration) (int64, error) {
	var removed int64
	err := s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		res, err := conn.ExecContext(ctx,
			`DELETE FROM tmdb_cache WHERE fetched_at < ?`,
			time.Now().Add(-ttl).UnixMilli())
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}
