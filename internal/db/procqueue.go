package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Process statuses.
const (
	StatusQueued      = "queued"
	StatusInProgress  = "in-progress"
	StatusCompleted   = "completed"
	StatusError       = "error"
	StatusInterrupted = "interrupted"
)

// StartupMode selects how orphaned in-progress rows are reconciled at boot.
type StartupMode int

const (
	// StartupDelete removes all in-progress rows.
	StartupDelete StartupMode = iota
	// StartupInterrupt marks them interrupted instead.
	StartupInterrupt
)

func migrateQueue(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS process_queue (
		file_key TEXT PRIMARY KEY,
		process_type TEXT NOT NULL,
		total_steps INTEGER NOT NULL,
		current_step INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		last_updated INTEGER NOT NULL
	)`)
	return err
}

// ProcessRow is one durable progress record. On normal completion
// CurrentStep equals TotalSteps.
type ProcessRow struct {
	FileKey     string    `json:"fileKey"`
	ProcessType string    `json:"processType"`
	TotalSteps  int       `json:"totalSteps"`
	CurrentStep int       `json:"currentStep"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ProcessStore records step-by-step progress of long-running derivations.
type ProcessStore struct {
	db *Database
}

func NewProcessStore(d *Databases) *ProcessStore {
	return &ProcessStore{db: d.Queue}
}

// CreateOrUpdate registers a derivation at its starting step.
func (s *ProcessStore) CreateOrUpdate(ctx context.Context, fileKey, processType string, totalSteps, currentStep int, status, message string) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO process_queue
				(file_key, process_type, total_steps, current_step, status, message, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(file_key) DO UPDATE SET
				process_type = excluded.process_type,
				total_steps = excluded.total_steps,
				current_step = excluded.current_step,
				status = excluded.status,
				message = excluded.message,
				last_updated = excluded.last_updated`,
			fileKey, processType, totalSteps, currentStep, status, message,
			time.Now().UnixMilli())
		return err
	})
}

// Update advances the current step, optionally changing status and message.
// Empty status or message leaves the stored value alone.
func (s *ProcessStore) Update(ctx context.Context, fileKey string, currentStep int, status, message string) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `
			UPDATE process_queue SET
				current_step = ?,
				status = CASE WHEN ? = '' THEN status ELSE ? END,
				message = CASE WHEN ? = '' THEN message ELSE ? END,
				last_updated = ?
			WHERE file_key = ?`,
			currentStep, status, status, message, message,
			time.Now().UnixMilli(), fileKey)
		return err
	})
}

// Finalize sets the terminal status. Completed rows snap current_step to
// total_steps.
func (s *ProcessStore) Finalize(ctx context.Context, fileKey, status, message string) error {
	return s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `
			UPDATE process_queue SET
				status = ?,
				message = ?,
				current_step = CASE WHEN ? = ? THEN total_steps ELSE current_step END,
				last_updated = ?
			WHERE file_key = ?`,
			status, message, status, StatusCompleted,
			time.Now().UnixMilli(), fileKey)
		return err
	})
}

// Get returns one row, or ErrNotFound.
func (s *ProcessStore) Get(ctx context.Context, fileKey string) (*ProcessRow, error) {
	var p ProcessRow
	err := s.db.Read(ctx, func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx, `
			SELECT file_key, process_type, total_steps, current_step, status, message, last_updated
			FROM process_queue WHERE file_key = ?`, fileKey)
		var updated int64
		err := row.Scan(&p.FileKey, &p.ProcessType, &p.TotalSteps, &p.CurrentStep,
			&p.Status, &p.Message, &updated)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		p.LastUpdated = time.UnixMilli(updated)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ResetStartup reconciles rows left in-progress by a previous process.
func (s *ProcessStore) ResetStartup(ctx context.Context, mode StartupMode) (int64, error) {
	var affected int64
	err := s.db.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		var res sql.Result
		var err error
		switch mode {
		case StartupDelete:
			res, err = conn.ExecContext(ctx,
				`DELETE FROM process_queue WHERE status = ?`, StatusInProgress)
		case StartupInterrupt:
			res, err = conn.ExecContext(ctx, `
				UPDATE process_queue SET status = ?, last_updated = ?
				WHERE status = ?`,
				StatusInterrupted, time.Now().UnixMilli(), StatusInProgress)
		}
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}
