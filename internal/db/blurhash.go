package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// BlurhashTTL is how long a computed blurhash stays valid for a given image
// URL before the post-processor recomputes it.
const BlurhashTTL = 90 * 24 * time.Hour

// BlurhashStore caches computed blurhashes keyed by normalized image URL.
// It shares the tmdb database file since both cache image-pipeline results.
type BlurhashStore struct {
	db *Database
}

func NewBlurhashStore(d *Databases) *BlurhashStore {
	return &BlurhashStore{db: d.TMDB}
}

// Get returns the cached blurhash for url when younger than ttl.
func (s *BlurhashStore) Get(ctx context.Context, url string, ttl time.Duration) (string, bool, error) {
	var hash string
	var createdAt int64
	var found bool
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx,
			`SELECT hash, created_at FROM blurhash_cache WHERE url = ?`, url)
		if err := row.Scan(&hash, &createdAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return "", false, err
	}
	if time.Since(time.UnixMilli(createdAt)) > ttl {
		return "", false, nil
	}
	return hash, true, nil
}

// Put stores a computed blurhash for url.
func (s *BlurhashStore) Put(ctx context.Context, url, hash string) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO blurhash_cache (url, hash, created_at) VALUES (?, ?, ?)
			ON CONFLICT(url) DO UPDATE SET
				hash = excluded.hash,
				created_at = excluded.created_at`,
			url, hash, time.Now().UnixMilli())
		return err
	})
}
