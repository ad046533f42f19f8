package eventbus

import (
	"context"
	"time"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/sqlstore"
)

// Legacy is the single-repository adapter: it can publish and query
// events but cannot durably subscribe, so it fails loudly on
// subscribe/ack/commit_cursor rather than silently succeeding and
// callers never mistake it for the Durable adapter.
type Legacy struct {
	db *sqlstore.DB
}

// OpenLegacy opens or creates the legacy event repository at path. It
// reuses the Durable adapter's schema for event storage; only the
// subscription surface differs.
func OpenLegacy(path string) (*Legacy, error) {
	db, err := sqlstore.Open(path, schemaVersion, schemaSQL)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "eventbus.open_legacy", "open legacy event db", err)
	}
	return &Legacy{db: db}, nil
}

// Close closes the underlying database.
func (l *Legacy) Close() error { return l.db.Close() }

func (l *Legacy) Publish(ctx context.Context, event model.FileWatchEvent) error {
	_, err := l.db.ExecRetry(ctx, `
		INSERT INTO events (id, library_id, event_type, file_path, old_path, file_size, detected_at, processed, attempts, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, '')
		ON CONFLICT (id) DO NOTHING
	`, event.ID, event.LibraryID.String(), string(event.EventType), event.FilePath, event.OldPath,
		nullableSize(event.FileSize), event.DetectedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errs.New(errs.KindStorage, "eventbus.publish", "publish file change event", err)
	}
	return nil
}

func (l *Legacy) Subscribe(ctx context.Context, group string, libraryID ids.LibraryId) (<-chan model.FileWatchEvent, error) {
	return nil, ErrSubscribeUnsupported
}

func (l *Legacy) Ack(ctx context.Context, group string, eventID string) error {
	return ErrSubscribeUnsupported
}

func (l *Legacy) CommitCursor(ctx context.Context, cursor model.FileChangeCursor) error {
	return ErrSubscribeUnsupported
}

// GetCursor always reports no committed cursor rather than returning
// ErrSubscribeUnsupported: the legacy adapter never writes a cursors
// table, so there is never one to find, and a missing cursor is a
// normal, representable answer rather than a failure.
func (l *Legacy) GetCursor(ctx context.Context, group string, libraryID ids.LibraryId) (*model.FileChangeCursor, error) {
	return nil, nil
}

func (l *Legacy) GetUnprocessedEvents(ctx context.Context, libraryID ids.LibraryId, limit int) ([]model.FileWatchEvent, error) {
	rows, err := l.db.Conn.QueryContext(ctx, `
		SELECT id, library_id, event_type, file_path, old_path, file_size, detected_at, processed, processed_at, attempts, last_error
		FROM events WHERE library_id = ? AND processed = 0
		ORDER BY detected_at ASC, id ASC LIMIT ?
	`, libraryID.String(), limit)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "eventbus.get_unprocessed_events", "query unprocessed events", err)
	}
	defer rows.Close()

	var out []model.FileWatchEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (l *Legacy) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := l.db.ExecRetry(ctx, `UPDATE events SET processed = 1, processed_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), eventID)
	if err != nil {
		return errs.New(errs.KindStorage, "eventbus.mark_processed", "mark event processed", err)
	}
	return nil
}

func (l *Legacy) CleanupRetention(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour).Format(time.RFC3339Nano)
	res, err := l.db.ExecRetry(ctx, `DELETE FROM events WHERE processed = 1 AND detected_at < ?`, cutoff)
	if err != nil {
		return 0, errs.New(errs.KindStorage, "eventbus.cleanup_retention", "cleanup retention", err)
	}
	return res.RowsAffected()
}

var _ Bus = (*Durable)(nil)
var _ Bus = (*Legacy)(nil)
