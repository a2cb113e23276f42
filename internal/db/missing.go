package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// MissingStore rate-limits enrichment attempts for media items that lack
// expected art or metadata.
type MissingStore struct {
	db *Database
}

func NewMissingStore(d *Databases) *MissingStore {
	return &MissingStore{db: d.Catalog}
}

// LastAttempt returns when the enrichment tool last ran for name, reporting
// whether any attempt is recorded.
func (s *MissingStore) LastAttempt(ctx context.Context, name string) (time.Time, bool, error) {
	var ts int64
	var found bool
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx,
			`SELECT last_attempt FROM missing_data_media WHERE name = ?`, name)
		if err := row.Scan(&ts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	return time.UnixMilli(ts), found, err
}

// MarkAttempt records an enrichment attempt at t.
func (s *MissingStore) MarkAttempt(ctx context.Context, name string, t time.Time) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO missing_data_media (name, last_attempt) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET last_attempt = excluded.last_attempt`,
			name, t.UnixMilli())
		return err
	})
}

// ResetAll drops every rate-limit row so the next scan retries enrichment
// for the whole library.
func (s *MissingStore) ResetAll(ctx context.Context) (int64, error) {
	var affected int64
	err := s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM missing_data_media`)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

// Clear drops the rate-limit row, re-arming enrichment for name.
func (s *MissingStore) Clear(ctx context.Context, name string) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			`DELETE FROM missing_data_media WHERE name = ?`, name)
		return err
	})
}
