// Package folderstore implements the Folder Inventory Store: the
// exclusive owner of per-folder listing, hash, stats, and retry state
// for every library.
package folderstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/sqlstore"
)

// Store is the SQLite-backed FolderInventoryRepository.
type Store struct {
	db *sqlstore.DB
}

// Open opens or creates the folder inventory database at path.
func Open(path string) (*Store, error) {
	db, err := sqlstore.Open(path, schemaVersion, schemaSQL)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "folderstore.open", "open folder inventory db", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Upsert inserts or updates a folder keyed on (library_id, path_norm),
// idempotent on (library_id, path).
func (s *Store) Upsert(ctx context.Context, f model.FolderInventory) (ids.FolderId, error) {
	pathNorm := NormalizePath(f.PathNorm)

	existing, err := s.GetByPath(ctx, f.LibraryID, pathNorm)
	if err != nil {
		return ids.FolderId{}, err
	}
	if existing != nil {
		f.ID = existing.ID
		f.FirstSeenAt = existing.FirstSeenAt
	} else if f.ID == (ids.FolderId{}) {
		f.ID = ids.NewFolderId()
	}
	if f.FirstSeenAt.IsZero() {
		f.FirstSeenAt = time.Now().UTC()
	}

	_, err = s.db.ExecRetry(ctx, `
		INSERT INTO folders (
			id, library_id, parent_folder_id, path_norm, kind, status,
			total_files, processed_files, total_size_bytes, file_types,
			last_error, retry_count, next_retry_at, first_seen_at, last_scanned_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (library_id, path_norm) DO UPDATE SET
			kind = excluded.kind,
			status = excluded.status,
			total_files = excluded.total_files,
			processed_files = excluded.processed_files,
			total_size_bytes = excluded.total_size_bytes,
			file_types = excluded.file_types,
			last_error = excluded.last_error,
			retry_count = excluded.retry_count,
			next_retry_at = excluded.next_retry_at,
			last_scanned_at = excluded.last_scanned_at
	`,
		f.ID.String(), f.LibraryID.String(), parentID(f.ParentFolderID), pathNorm,
		string(f.Kind), string(f.Status), f.TotalFiles, f.ProcessedFiles,
		f.TotalSizeBytes, joinFileTypes(f.FileTypes), f.LastError, f.RetryCount,
		nullableTime(f.NextRetryAt), f.FirstSeenAt.UTC().Format(time.RFC3339Nano),
		nullableTime(f.LastScannedAt),
	)
	if err != nil {
		return ids.FolderId{}, errs.NewStorage("folderstore.upsert", "upsert folder", err, isConstraintViolation(err))
	}
	return f.ID, nil
}

// GetByPath returns the folder at (library_id, path), or nil if absent.
func (s *Store) GetByPath(ctx context.Context, libraryID ids.LibraryId, path string) (*model.FolderInventory, error) {
	pathNorm := NormalizePath(path)
	row := s.db.Conn.QueryRowContext(ctx, `
		SELECT id, library_id, parent_folder_id, path_norm, kind, status,
			total_files, processed_files, total_size_bytes, file_types,
			last_error, retry_count, next_retry_at, first_seen_at, last_scanned_at
		FROM folders WHERE library_id = ? AND path_norm = ?
	`, libraryID.String(), pathNorm)
	return scanFolder(row)
}

// GetByID returns the folder at id, or nil if absent. The Orchestrator
// uses this to resolve a ScanFolderJob's FolderID back to its row
// before handing it to the Scan actor.
func (s *Store) GetByID(ctx context.Context, id ids.FolderId) (*model.FolderInventory, error) {
	row := s.db.Conn.QueryRowContext(ctx, `
		SELECT id, library_id, parent_folder_id, path_norm, kind, status,
			total_files, processed_files, total_size_bytes, file_types,
			last_error, retry_count, next_retry_at, first_seen_at, last_scanned_at
		FROM folders WHERE id = ?
	`, id.String())
	return scanFolder(row)
}

// ListNeedingScan returns folders matching filters.
func (s *Store) ListNeedingScan(ctx context.Context, libraryID ids.LibraryId, filters model.ListFilters) ([]model.FolderInventory, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, library_id, parent_folder_id, path_norm, kind, status,
			total_files, processed_files, total_size_bytes, file_types,
			last_error, retry_count, next_retry_at, first_seen_at, last_scanned_at
		FROM folders WHERE library_id = ?
	`)
	args := []any{libraryID.String()}

	if filters.Status != "" {
		query.WriteString(" AND status = ?")
		args = append(args, string(filters.Status))
	}
	if !filters.OlderThan.IsZero() {
		query.WriteString(" AND (last_scanned_at IS NULL OR last_scanned_at < ?)")
		args = append(args, filters.OlderThan.UTC().Format(time.RFC3339Nano))
	}
	if filters.RetryDue {
		query.WriteString(" AND (next_retry_at IS NULL OR next_retry_at <= ?)")
		args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	}
	query.WriteString(" ORDER BY first_seen_at ASC")
	if filters.Limit > 0 {
		query.WriteString(" LIMIT " + strconv.Itoa(filters.Limit))
	}

	rows, err := s.db.Conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "folderstore.list_needing_scan", "list folders", err)
	}
	defer rows.Close()

	var out []model.FolderInventory
	for rows.Next() {
		f, err := scanFolderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a folder's processing status, recording an
// error message when the new status is Failed.
func (s *Store) UpdateStatus(ctx context.Context, id ids.FolderId, status model.FolderStatus, errMsg string) error {
	_, err := s.db.ExecRetry(ctx, `UPDATE folders SET status = ?, last_error = ? WHERE id = ?`,
		string(status), errMsg, id.String())
	if err != nil {
		return errs.NewStorage("folderstore.update_status", "update folder status", err, isConstraintViolation(err))
	}
	return nil
}

// MarkProcessed marks a folder Processed and stamps last_scanned_at.
func (s *Store) MarkProcessed(ctx context.Context, id ids.FolderId) error {
	_, err := s.db.ExecRetry(ctx, `UPDATE folders SET status = ?, last_scanned_at = ?, retry_count = 0, next_retry_at = NULL WHERE id = ?`,
		string(model.FolderStatusProcessed), time.Now().UTC().Format(time.RFC3339Nano), id.String())
	if err != nil {
		return errs.NewStorage("folderstore.mark_processed", "mark folder processed", err, isConstraintViolation(err))
	}
	return nil
}

// RecordError marks a folder Failed, incrementing its retry count and
// optionally scheduling the next retry.
func (s *Store) RecordError(ctx context.Context, id ids.FolderId, cause error, nextRetry *time.Time) error {
	_, err := s.db.ExecRetry(ctx, `
		UPDATE folders SET status = ?, last_error = ?, retry_count = retry_count + 1, next_retry_at = ?
		WHERE id = ?
	`, string(model.FolderStatusFailed), cause.Error(), nullableTime(nextRetry), id.String())
	if err != nil {
		return errs.NewStorage("folderstore.record_error", "record folder error", err, isConstraintViolation(err))
	}
	return nil
}

// UpdateStats updates a folder's file counters and observed extensions.
func (s *Store) UpdateStats(ctx context.Context, id ids.FolderId, totalFiles, processedFiles int, totalSize int64, fileTypes map[string]struct{}) error {
	_, err := s.db.ExecRetry(ctx, `
		UPDATE folders SET total_files = ?, processed_files = ?, total_size_bytes = ?, file_types = ?
		WHERE id = ?
	`, totalFiles, processedFiles, totalSize, joinFileTypes(fileTypes), id.String())
	if err != nil {
		return errs.NewStorage("folderstore.update_stats", "update folder stats", err, isConstraintViolation(err))
	}
	return nil
}

// CleanupStale marks folders Stale when unseen beyond olderThan and not
// currently Scanning.
func (s *Store) CleanupStale(ctx context.Context, libraryID ids.LibraryId, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecRetry(ctx, `
		UPDATE folders SET status = ?
		WHERE library_id = ? AND status != ? AND (last_scanned_at IS NULL OR last_scanned_at < ?)
	`, string(model.FolderStatusStale), libraryID.String(), string(model.FolderStatusScanning),
		olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, errs.New(errs.KindStorage, "folderstore.cleanup_stale", "mark stale folders", err)
	}
	return res.RowsAffected()
}

// GetChildren returns the direct children of parentID.
func (s *Store) GetChildren(ctx context.Context, parentID ids.FolderId) ([]model.FolderInventory, error) {
	return s.queryByParent(ctx, parentID, "")
}

// GetSeasonFolders returns the season-kind children of parentID.
func (s *Store) GetSeasonFolders(ctx context.Context, parentID ids.FolderId) ([]model.FolderInventory, error) {
	return s.queryByParent(ctx, parentID, string(model.FolderKindSeason))
}

func (s *Store) queryByParent(ctx context.Context, parentID ids.FolderId, kind string) ([]model.FolderInventory, error) {
	query := `
		SELECT id, library_id, parent_folder_id, path_norm, kind, status,
			total_files, processed_files, total_size_bytes, file_types,
			last_error, retry_count, next_retry_at, first_seen_at, last_scanned_at
		FROM folders WHERE parent_folder_id = ?
	`
	args := []any{parentID.String()}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	rows, err := s.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "folderstore.get_children", "query children", err)
	}
	defer rows.Close()

	var out []model.FolderInventory
	for rows.Next() {
		f, err := scanFolderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(row *sql.Row) (*model.FolderInventory, error) {
	f, err := scanFolderRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

func scanFolderRow(row rowScanner) (*model.FolderInventory, error) {
	var (
		f                                     model.FolderInventory
		idStr, libraryIDStr, kind, status      string
		parentIDStr, fileTypes                sql.NullString
		nextRetryAt, lastScannedAt, firstSeen  sql.NullString
	)
	err := row.Scan(&idStr, &libraryIDStr, &parentIDStr, &f.PathNorm, &kind, &status,
		&f.TotalFiles, &f.ProcessedFiles, &f.TotalSizeBytes, &fileTypes,
		&f.LastError, &f.RetryCount, &nextRetryAt, &firstSeen, &lastScannedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errs.New(errs.KindStorage, "folderstore.scan", "scan folder row", err)
	}

	f.Kind = model.FolderKind(kind)
	f.Status = model.FolderStatus(status)
	f.FileTypes = splitFileTypes(fileTypes.String)
	if parentIDStr.Valid && parentIDStr.String != "" {
		fid, perr := parseFolderID(parentIDStr.String)
		if perr != nil {
			return nil, perr
		}
		f.ParentFolderID = &fid
	}
	if firstSeen.Valid {
		f.FirstSeenAt, _ = time.Parse(time.RFC3339Nano, firstSeen.String)
	}
	if t, ok := parseNullableTime(nextRetryAt); ok {
		f.NextRetryAt = &t
	}
	if t, ok := parseNullableTime(lastScannedAt); ok {
		f.LastScannedAt = &t
	}

	fid, err := parseFolderID(idStr)
	if err != nil {
		return nil, err
	}
	f.ID = fid

	libID, err := parseLibraryID(libraryIDStr)
	if err != nil {
		return nil, err
	}
	f.LibraryID = libID

	return &f, nil
}
