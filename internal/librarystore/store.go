// Package librarystore persists the Library entities the Orchestrator,
// scheduler, and watcher all key their work off of. The scan core
// itself never creates libraries — that belongs to the owning
// application's setup flow — but every ambient component needs a
// durable place to read RootPaths, AutoScan, and WatchForChanges from,
// so this is a plain SQLite CRUD store in the same shape as
// folderstore and cursorstore.
package librarystore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/sqlstore"
)

// Store is the SQLite-backed Library repository.
type Store struct {
	db *sqlstore.DB
}

// Open opens or creates the library database at path.
func Open(path string) (*Store, error) {
	db, err := sqlstore.Open(path, schemaVersion, schemaSQL)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "librarystore.open", "open library db", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Upsert inserts or updates a library by id, minting one if l.ID is
// the zero value.
func (s *Store) Upsert(ctx context.Context, l model.Library) (ids.LibraryId, error) {
	if err := l.Validate(); err != nil {
		return ids.LibraryId{}, errs.New(errs.KindInvariant, "librarystore.upsert", "invalid library", err)
	}
	if l.ID == (ids.LibraryId{}) {
		l.ID = ids.NewLibraryId()
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	_, err := s.db.ExecRetry(ctx, `
		INSERT INTO libraries (
			id, name, type, root_paths, scan_interval_mins, enabled,
			auto_scan, watch_for_changes, analyze_on_scan, max_retry_attempts,
			created_at, updated_at, last_scan_at, next_scan_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			root_paths = excluded.root_paths,
			scan_interval_mins = excluded.scan_interval_mins,
			enabled = excluded.enabled,
			auto_scan = excluded.auto_scan,
			watch_for_changes = excluded.watch_for_changes,
			analyze_on_scan = excluded.analyze_on_scan,
			max_retry_attempts = excluded.max_retry_attempts,
			updated_at = excluded.updated_at,
			last_scan_at = excluded.last_scan_at,
			next_scan_at = excluded.next_scan_at
	`,
		l.ID.String(), l.Name, string(l.Type), strings.Join(l.RootPaths, "\n"),
		l.ScanIntervalMins, boolInt(l.Enabled), boolInt(l.AutoScan), boolInt(l.WatchForChanges),
		boolInt(l.AnalyzeOnScan), l.MaxRetryAttempts,
		l.CreatedAt.Format(time.RFC3339Nano), l.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(l.LastScanAt), nullableTime(l.NextScanAt),
	)
	if err != nil {
		return ids.LibraryId{}, errs.NewStorage("librarystore.upsert", "upsert library", err, isConstraintViolation(err))
	}
	return l.ID, nil
}

// GetByID returns the library at id, or nil if absent.
func (s *Store) GetByID(ctx context.Context, id ids.LibraryId) (*model.Library, error) {
	row := s.db.Conn.QueryRowContext(ctx, selectColumns+` FROM libraries WHERE id = ?`, id.String())
	return scanLibrary(row)
}

// ListEnabled returns every enabled library, for the scheduler and
// watcher to decide which roots need a ticker or an fsnotify watch.
func (s *Store) ListEnabled(ctx context.Context) ([]model.Library, error) {
	rows, err := s.db.Conn.QueryContext(ctx, selectColumns+` FROM libraries WHERE enabled = 1 ORDER BY name`)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "librarystore.list_enabled", "list enabled libraries", err)
	}
	defer rows.Close()

	var out []model.Library
	for rows.Next() {
		l, err := scanLibraryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// RecordScan stamps a library's last/next scan times after the
// Orchestrator admits (NextScanAt) or completes (LastScanAt) a run.
func (s *Store) RecordScan(ctx context.Context, id ids.LibraryId, lastScanAt, nextScanAt *time.Time) error {
	_, err := s.db.ExecRetry(ctx, `UPDATE libraries SET last_scan_at = ?, next_scan_at = ?, updated_at = ? WHERE id = ?`,
		nullableTime(lastScanAt), nullableTime(nextScanAt), time.Now().UTC().Format(time.RFC3339Nano), id.String())
	if err != nil {
		return errs.NewStorage("librarystore.record_scan", "record library scan times", err, isConstraintViolation(err))
	}
	return nil
}

const selectColumns = `
	SELECT id, name, type, root_paths, scan_interval_mins, enabled,
		auto_scan, watch_for_changes, analyze_on_scan, max_retry_attempts,
		created_at, updated_at, last_scan_at, next_scan_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLibrary(row *sql.Row) (*model.Library, error) {
	l, err := scanLibraryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func scanLibraryRow(row rowScanner) (*model.Library, error) {
	var (
		l                                model.Library
		idStr, libType, rootPaths        string
		enabled, autoScan, watch, analyz int
		createdAt, updatedAt             string
		lastScanAt, nextScanAt           sql.NullString
	)
	err := row.Scan(&idStr, &l.Name, &libType, &rootPaths, &l.ScanIntervalMins, &enabled,
		&autoScan, &watch, &analyz, &l.MaxRetryAttempts, &createdAt, &updatedAt, &lastScanAt, &nextScanAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errs.New(errs.KindStorage, "librarystore.scan", "scan library row", err)
	}

	id, err := ids.ParseLibraryId(idStr)
	if err != nil {
		return nil, errs.New(errs.KindInvariant, "librarystore.scan", "corrupt library id", err)
	}
	l.ID = id
	l.Type = model.LibraryType(libType)
	if rootPaths != "" {
		l.RootPaths = strings.Split(rootPaths, "\n")
	}
	l.Enabled = enabled != 0
	l.AutoScan = autoScan != 0
	l.WatchForChanges = watch != 0
	l.AnalyzeOnScan = analyz != 0
	l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	l.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if t, ok := parseNullableTime(lastScanAt); ok {
		l.LastScanAt = &t
	}
	if t, ok := parseNullableTime(nextScanAt); ok {
		l.NextScanAt = &t
	}
	return &l, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(ns sql.NullString) (time.Time, bool) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "NOT NULL constraint") ||
		strings.Contains(msg, "CHECK constraint")
}
