// Package cursorstore implements the Scan Cursor Store: the
// per-folder listing-hash cursors that let the Scan actor skip
// folders whose contents haven't changed since the last pass.
package cursorstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/sqlstore"
)

// Store is the SQLite-backed ScanCursorRepository.
type Store struct {
	db *sqlstore.DB
}

// Open opens or creates the cursor database at path.
func Open(path string) (*Store, error) {
	db, err := sqlstore.Open(path, schemaVersion, schemaSQL)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "cursorstore.open", "open cursor db", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// PathHash derives the stable path_hash component of a ScanCursor's id
// from a folder's normalized path)`).
func PathHash(pathNorm string) string {
	sum := sha256.Sum256([]byte(pathNorm))
	return hex.EncodeToString(sum[:])
}

// Get returns the cursor for id, or nil if none has been committed yet.
func (s *Store) Get(ctx context.Context, id model.CursorID) (*model.ScanCursor, error) {
	row := s.db.Conn.QueryRowContext(ctx, `
		SELECT library_id, path_hash, folder_path_norm, listing_hash, entry_count, entry_names,
			last_scan_at, last_modified_at, device_id
		FROM cursors WHERE library_id = ? AND path_hash = ?
	`, id.LibraryID, id.PathHash)

	c, err := scanCursor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// Upsert commits cursor, overwriting any prior value for the same id.
// Only ever called after a successful Scan actor pass.
func (s *Store) Upsert(ctx context.Context, cursor model.ScanCursor) error {
	_, err := s.db.ExecRetry(ctx, `
		INSERT INTO cursors (
			library_id, path_hash, folder_path_norm, listing_hash, entry_count, entry_names,
			last_scan_at, last_modified_at, device_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (library_id, path_hash) DO UPDATE SET
			folder_path_norm = excluded.folder_path_norm,
			listing_hash = excluded.listing_hash,
			entry_count = excluded.entry_count,
			entry_names = excluded.entry_names,
			last_scan_at = excluded.last_scan_at,
			last_modified_at = excluded.last_modified_at,
			device_id = excluded.device_id
	`,
		cursor.ID.LibraryID, cursor.ID.PathHash, cursor.FolderPathNorm, cursor.ListingHash,
		cursor.EntryCount, joinEntryNames(cursor.EntryNames), cursor.LastScanAt.UTC().Format(time.RFC3339Nano),
		cursor.LastModifiedAt.UTC().Format(time.RFC3339Nano), cursor.DeviceID,
	)
	if err != nil {
		return errs.New(errs.KindStorage, "cursorstore.upsert", "upsert cursor", err)
	}
	return nil
}

// ListByLibrary returns every cursor committed for libraryID.
func (s *Store) ListByLibrary(ctx context.Context, libraryID ids.LibraryId) ([]model.ScanCursor, error) {
	rows, err := s.db.Conn.QueryContext(ctx, `
		SELECT library_id, path_hash, folder_path_norm, listing_hash, entry_count, entry_names,
			last_scan_at, last_modified_at, device_id
		FROM cursors WHERE library_id = ?
	`, libraryID.String())
	if err != nil {
		return nil, errs.New(errs.KindStorage, "cursorstore.list_by_library", "list cursors", err)
	}
	defer rows.Close()
	return scanCursors(rows)
}

// ListStale returns cursors whose last_scan_at is older than olderThan,
// used by scheduled rescans and GC.
func (s *Store) ListStale(ctx context.Context, libraryID ids.LibraryId, olderThan time.Time) ([]model.ScanCursor, error) {
	rows, err := s.db.Conn.QueryContext(ctx, `
		SELECT library_id, path_hash, folder_path_norm, listing_hash, entry_count, entry_names,
			last_scan_at, last_modified_at, device_id
		FROM cursors WHERE library_id = ? AND last_scan_at < ?
	`, libraryID.String(), olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, errs.New(errs.KindStorage, "cursorstore.list_stale", "list stale cursors", err)
	}
	defer rows.Close()
	return scanCursors(rows)
}

// DeleteByLibrary removes every cursor for libraryID, e.g. when a
// library is removed.
func (s *Store) DeleteByLibrary(ctx context.Context, libraryID ids.LibraryId) error {
	_, err := s.db.ExecRetry(ctx, `DELETE FROM cursors WHERE library_id = ?`, libraryID.String())
	if err != nil {
		return errs.New(errs.KindStorage, "cursorstore.delete_by_library", "delete cursors", err)
	}
	return nil
}

// Diff compares a freshly computed listing hash against the stored
// cursor for id, returning the cache-hit classification. When the
// hash differs, Changed carries the entry names present in freshNames
// but not stored.EntryNames (added) and vice versa (removed), diffed
// against the names the stored hash itself was computed over.
func Diff(stored *model.ScanCursor, freshHash string, freshNames []string) model.CursorDiff {
	if stored == nil {
		return model.CursorDiff{Kind: model.CursorDiffNoCursor}
	}
	if stored.ListingHash == freshHash {
		return model.CursorDiff{Kind: model.CursorDiffUnchanged}
	}

	fresh := make(map[string]bool, len(freshNames))
	for _, n := range freshNames {
		fresh[n] = true
	}
	old := make(map[string]bool, len(stored.EntryNames))
	for _, n := range stored.EntryNames {
		old[n] = true
	}

	var added, removed []string
	for n := range fresh {
		if !old[n] {
			added = append(added, n)
		}
	}
	for n := range old {
		if !fresh[n] {
			removed = append(removed, n)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	return model.CursorDiff{Kind: model.CursorDiffChanged, Added: added, Removed: removed}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCursor(row rowScanner) (*model.ScanCursor, error) {
	var (
		c                          model.ScanCursor
		entryNames                 string
		lastScanAt, lastModifiedAt string
	)
	err := row.Scan(&c.ID.LibraryID, &c.ID.PathHash, &c.FolderPathNorm, &c.ListingHash,
		&c.EntryCount, &entryNames, &lastScanAt, &lastModifiedAt, &c.DeviceID)
	if err != nil {
		return nil, err
	}
	c.EntryNames = splitEntryNames(entryNames)
	c.LastScanAt, _ = time.Parse(time.RFC3339Nano, lastScanAt)
	c.LastModifiedAt, _ = time.Parse(time.RFC3339Nano, lastModifiedAt)
	return &c, nil
}

// joinEntryNames and splitEntryNames serialize a cursor's entry name
// set as a single newline-joined column, the same delimiter style
// listinghash.Compute uses for its per-entry records.
func joinEntryNames(names []string) string {
	return strings.Join(names, "\n")
}

func splitEntryNames(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "\n")
}

func scanCursors(rows *sql.Rows) ([]model.ScanCursor, error) {
	var out []model.ScanCursor
	for rows.Next() {
		c, err := scanCursor(rows)
		if err != nil {
			return nil, errs.New(errs.KindStorage, "cursorstore.scan", "scan cursor row", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
