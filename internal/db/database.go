// Package db implements the SQLite persistence layer: one database file per
// concern, a lazily opened singleton connection per file, a per-database
// write mutex, and retry-on-busy with jittered exponential backoff.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDBBusy reports that a write could not be applied after exhausting the
// busy-retry budget.
var ErrDBBusy = errors.New("db: busy after retries")

// ErrClosing rejects operations arriving after shutdown began.
var ErrClosing = errors.New("db: closing")

const (
	retryAttempts  = 15
	backoffBase    = 200 * time.Millisecond
	backoffCeiling = 5 * time.Second
)

// Database owns one SQLite file. The connection opens lazily at first use;
// writers are serialized by mu, readers go straight to the connection. WAL
// mode keeps readers unblocked during writes.
type Database struct {
	path    string
	migrate func(context.Context, *sql.DB) error

	mu   sync.Mutex // serializes writers
	once sync.Once

	connMu  sync.Mutex
	conn    *sql.DB
	openErr error
	closing bool
}

// New prepares a database handle; nothing touches the disk until the first
// operation. migrate runs once right after the connection opens.
func New(path string, migrate func(context.Context, *sql.DB) error) *Database {
	return &Database{path: path, migrate: migrate}
}

// Path returns the database file path.
func (d *Database) Path() string { return d.path }

func (d *Database) getOrInit(ctx context.Context) (*sql.DB, error) {
	d.connMu.Lock()
	if d.closing {
		d.connMu.Unlock()
		return nil, ErrClosing
	}
	d.connMu.Unlock()

	d.once.Do(func() {
		d.openErr = d.open(ctx)
	})
	return d.conn, d.openErr
}

func (d *Database) open(ctx context.Context) error {
	// _txlock=immediate makes every write transaction BEGIN IMMEDIATE, so
	// lock conflicts surface at BEGIN instead of at COMMIT.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate"+
		"&_pragma=journal_mode(WAL)"+
		"&_pragma=synchronous(NORMAL)"+
		"&_pragma=busy_timeout(15000)"+
		"&_pragma=wal_autocheckpoint(1000)"+
		"&_pragma=foreign_keys(ON)"+
		"&_pragma=temp_store(MEMORY)", d.path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}
	// Singleton connection: one per database file.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("ping %s: %w", d.path, err)
	}

	if d.migrate != nil {
		if err := d.migrate(ctx, conn); err != nil {
			_ = conn.Close()
			return fmt.Errorf("migrate %s: %w", d.path, err)
		}
	}

	d.connMu.Lock()
	d.conn = conn
	d.connMu.Unlock()
	return nil
}

// isBusy reports whether the error is a transient SQLite contention error.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_BUSY_SNAPSHOT:
		return true
	}
	// Extended codes carry the primary code in the low byte.
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// busyBackoff yields min(1.5^n * 200ms, 5s) scaled by jitter in [0.9, 1.1].
func busyBackoff() retry.Backoff {
	attempt := 0
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		d := float64(backoffBase) * math.Pow(1.5, float64(attempt))
		if d > float64(backoffCeiling) {
			d = float64(backoffCeiling)
		}
		jitter := 0.9 + rand.Float64()*0.2
		return time.Duration(d * jitter), false
	})
	return retry.WithMaxRetries(retryAttempts, b)
}

// withRetry runs fn, retrying on SQLITE_BUSY / SQLITE_LOCKED up to the
// attempt budget. Exhaustion surfaces as ErrDBBusy.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, busyBackoff(), func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isBusy(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil && isBusy(err) {
		return fmt.Errorf("%w: %v", ErrDBBusy, err)
	}
	return err
}

// Read runs fn against the connection without taking the write mutex.
func (d *Database) Read(ctx context.Context, fn func(ctx context.Context, conn *sql.DB) error) error {
	conn, err := d.getOrInit(ctx)
	if err != nil {
		return err
	}
	return withRetry(ctx, func(ctx context.Context) error {
		return fn(ctx, conn)
	})
}

// WithWrite serializes fn behind the per-database write mutex.
func (d *Database) WithWrite(ctx context.Context, fn func(ctx context.Context, conn *sql.DB) error) error {
	conn, err := d.getOrInit(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return withRetry(ctx, func(ctx context.Context) error {
		return fn(ctx, conn)
	})
}

// WithTx runs fn inside a write transaction (immediate, via the DSN txlock)
// under the write mutex. Any error rolls the transaction back.
func (d *Database) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return d.WithWrite(ctx, func(ctx context.Context, conn *sql.DB) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// Close checkpoints the WAL and closes the connection. New operations are
// rejected with ErrClosing once shutdown begins.
func (d *Database) Close() error {
	d.connMu.Lock()
	d.closing = true
	conn := d.conn
	d.connMu.Unlock()

	if conn == nil {
		return nil
	}
	_, _ = conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return conn.Close()
}

// addColumn applies an additive migration, tolerating "duplicate column"
// errors so re-running the DDL is safe.
func addColumn(ctx context.Context, conn *sql.DB, table, column, typ string) error {
	_, err := conn.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ))
	if err != nil && isDuplicateColumn(err) {
		return nil
	}
	return err
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
