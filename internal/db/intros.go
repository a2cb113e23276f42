package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func migrateIntros(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS intros (
		show TEXT NOT NULL,
		season TEXT NOT NULL,
		episode INTEGER NOT NULL,
		intro_start REAL NOT NULL,
		intro_end REAL NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (show, season, episode)
	)`)
	return err
}

// Intro marks the skippable opening of one episode. Detection happens in an
// external tool; this store only persists and serves the result.
type Intro struct {
	Show       string  `json:"show"`
	Season     string  `json:"season"`
	Episode    int     `json:"episode"`
	IntroStart float64 `json:"introStart"`
	IntroEnd   float64 `json:"introEnd"`
}

// IntroStore persists per-episode intro ranges.
type IntroStore struct {
	db *Database
}

func NewIntroStore(d *Databases) *IntroStore {
	return &IntroStore{db: d.Intros}
}

// Get returns the intro range for one episode, or ErrNotFound.
func (s *IntroStore) Get(ctx context.Context, show, season string, episode int) (*Intro, error) {
	intro := Intro{Show: show, Season: season, Episode: episode}
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx, `
			SELECT intro_start, intro_end FROM intros
			WHERE show = ? AND season = ? AND episode = ?`,
			show, season, episode)
		err := row.Scan(&intro.IntroStart, &intro.IntroEnd)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &intro, nil
}

// Upsert stores or replaces the intro range for one episode.
func (s *IntroStore) Upsert(ctx context.Context, intro *Intro) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO intros (show, season, episode, intro_start, intro_end, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(show, season, episode) DO UPDATE SET
				intro_start = excluded.intro_start,
				intro_end = excluded.intro_end,
				updated_at = excluded.updated_at`,
			intro.Show, intro.Season, intro.Episode,
			intro.IntroStart, intro.IntroEnd, time.Now().UnixMilli())
		return err
	})
}
