// Package sqlstore holds the SQLite connection and busy-retry plumbing
// shared by every persistence package in the scan core (folder
// inventory, scan cursors, the event bus, and per-subject state), so
// every store in this module opens and retries the same way.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// DB wraps a *sql.DB with busy-retry helpers for callers that need
// SQLITE_BUSY resilience under concurrent actor writes.
type DB struct {
	Conn *sql.DB
	path string
}

// Open opens (creating if needed) a SQLite database at path, applies
// WAL/foreign-key/busy-timeout pragmas, and runs createSchema against
// it inside a transaction tagged with schemaVersion.
func Open(path string, schemaVersion int, createSchema string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := conn.Exec(pragma); execErr != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("sqlstore: apply pragma %q: %w", pragma, execErr)
		}
	}

	db := &DB{Conn: conn, path: path}
	if err := db.initSchema(context.Background(), schemaVersion, createSchema); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	if db == nil || db.Conn == nil {
		return nil
	}
	return db.Conn.Close()
}

func (db *DB) initSchema(ctx context.Context, version int, createSchema string) error {
	var exists int
	err := db.Conn.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlstore: check schema_version: %w", err)
	}

	if exists == 0 {
		tx, err := db.Conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlstore: begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, createSchema); err != nil {
			return fmt.Errorf("sqlstore: create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
			return fmt.Errorf("sqlstore: create schema_version table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("sqlstore: record schema version: %w", err)
		}
		return tx.Commit()
	}

	var got int
	if err := db.Conn.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&got); err != nil {
		return fmt.Errorf("sqlstore: read schema version: %w", err)
	}
	if got != version {
		return fmt.Errorf("sqlstore: schema version mismatch: database has %d, expected %d", got, version)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// ExecRetry runs an exec query, retrying on SQLITE_BUSY with capped
// exponential backoff.
func (db *DB) ExecRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res sql.Result
		err error
	)
	retryErr := retryOnBusy(ctx, func() error {
		res, err = db.Conn.ExecContext(ctx, query, args...)
		return err
	})
	if retryErr != nil {
		return nil, retryErr
	}
	return res, nil
}

// WithTx runs fn inside a transaction, retrying the whole attempt on
// SQLITE_BUSY.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := db.Conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}
