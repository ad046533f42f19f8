package eventbus

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/sqlstore"
)

// Durable is the SQLite-backed Bus adapter: it supports the full
// contract, including subscriber-group cursors that advance only over
// a contiguous prefix of acked events.
type Durable struct {
	db *sqlstore.DB
}

// OpenDurable opens or creates the event bus database at path.
func OpenDurable(path string) (*Durable, error) {
	db, err := sqlstore.Open(path, schemaVersion, schemaSQL)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "eventbus.open", "open event bus db", err)
	}
	return &Durable{db: db}, nil
}

// Close closes the underlying database.
func (d *Durable) Close() error { return d.db.Close() }

// Publish durably records event. Publishing the same event id twice is
// a no-op on the second call.
func (d *Durable) Publish(ctx context.Context, event model.FileWatchEvent) error {
	_, err := d.db.ExecRetry(ctx, `
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

// Subscribe returns a buffered snapshot of events after the committed
// cursor for (group, libraryID), ordered by (detected_at, id). The
// channel is closed once the backlog is drained; callers re-subscribe
// to poll for more.
func (d *Durable) Subscribe(ctx context.Context, group string, libraryID ids.LibraryId) (<-chan model.FileWatchEvent, error) {
	cursor, err := d.GetCursor(ctx, group, libraryID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, library_id, event_type, file_path, old_path, file_size, detected_at, processed, processed_at, attempts, last_error
		FROM events WHERE library_id = ?
	`
	args := []any{libraryID.String()}
	if cursor != nil && cursor.LastEventID != "" {
		query += ` AND (detected_at, id) > (?, ?)`
		args = append(args, cursor.LastDetectedAt.UTC().Format(time.RFC3339Nano), cursor.LastEventID)
	}
	query += ` ORDER BY detected_at ASC, id ASC`

	rows, err := d.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "eventbus.subscribe", "query backlog", err)
	}
	defer rows.Close()

	var events []model.FileWatchEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.KindStorage, "eventbus.subscribe", "iterate backlog", err)
	}

	ch := make(chan model.FileWatchEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

// Ack records delivery of eventID for group, then advances the group's
// cursor over the contiguous prefix of acked events starting just past
// the current cursor position.
func (d *Durable) Ack(ctx context.Context, group string, eventID string) error {
	return d.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO acks (subscriber_group, event_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			group, eventID,
		); err != nil {
			return err
		}
		return advanceCursor(ctx, tx, group)
	})
}

// advanceCursor walks events for every library in which this group has
// an ack row, in (detected_at, id) order, moving the cursor forward while each next event has a
// matching ack row. It stops at the first gap.
func advanceCursor(ctx context.Context, tx *sql.Tx, group string) error {
	libraryIDs, err := ackedLibraryIDs(ctx, tx, group)
	if err != nil {
		return err
	}
	for _, libraryID := range libraryIDs {
		if err := advanceCursorForLibrary(ctx, tx, group, libraryID); err != nil {
			return err
		}
	}
	return nil
}

func ackedLibraryIDs(ctx context.Context, tx *sql.Tx, group string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT e.library_id FROM acks a
		JOIN events e ON e.id = a.event_id
		WHERE a.subscriber_group = ?
	`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var libraryID string
		if err := rows.Scan(&libraryID); err != nil {
			return nil, err
		}
		out = append(out, libraryID)
	}
	return out, rows.Err()
}

func advanceCursorForLibrary(ctx context.Context, tx *sql.Tx, group, libraryID string) error {
	var lastEventID, lastDetectedAt sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT last_event_id, last_detected_at FROM cursors WHERE subscriber_group = ? AND library_id = ?`,
		group, libraryID,
	).Scan(&lastEventID, &lastDetectedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	query := `
		SELECT id, detected_at FROM events WHERE library_id = ?
	`
	args := []any{libraryID}
	if lastEventID.Valid && lastEventID.String != "" {
		query += ` AND (detected_at, id) > (?, ?)`
		args = append(args, lastDetectedAt.String, lastEventID.String)
	}
	query += ` ORDER BY detected_at ASC, id ASC`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	newLastID, newLastDetected := lastEventID.String, lastDetectedAt.String
	for rows.Next() {
		var id, detectedAt string
		if err := rows.Scan(&id, &detectedAt); err != nil {
			return err
		}
		var acked int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM acks WHERE subscriber_group = ? AND event_id = ?`, group, id,
		).Scan(&acked); err != nil {
			return err
		}
		if acked == 0 {
			break // gap: stop advancing
		}
		newLastID, newLastDetected = id, detectedAt
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if newLastID == lastEventID.String {
		return nil
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cursors (subscriber_group, library_id, last_event_id, last_detected_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subscriber_group, library_id) DO UPDATE SET
			last_event_id = excluded.last_event_id,
			last_detected_at = excluded.last_detected_at
	`, group, libraryID, newLastID, newLastDetected)
	return err
}

// CommitCursor overwrites the stored cursor for (group, library_id)
// outright, used to seed or fast-forward a subscriber.
func (d *Durable) CommitCursor(ctx context.Context, cursor model.FileChangeCursor) error {
	_, err := d.db.ExecRetry(ctx, `
		INSERT INTO cursors (subscriber_group, library_id, last_event_id, last_detected_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subscriber_group, library_id) DO UPDATE SET
			last_event_id = excluded.last_event_id,
			last_detected_at = excluded.last_detected_at
	`, cursor.SubscriberGroup, cursor.LibraryID.String(), cursor.LastEventID,
		cursor.LastDetectedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errs.New(errs.KindStorage, "eventbus.commit_cursor", "commit cursor", err)
	}
	return nil
}

// GetCursor returns the committed cursor for (group, libraryID), or nil
// if the group has never acked anything for this library.
func (d *Durable) GetCursor(ctx context.Context, group string, libraryID ids.LibraryId) (*model.FileChangeCursor, error) {
	row := d.db.Conn.QueryRowContext(ctx, `
		SELECT subscriber_group, library_id, last_event_id, last_detected_at
		FROM cursors WHERE subscriber_group = ? AND library_id = ?
	`, group, libraryID.String())

	var (
		c              model.FileChangeCursor
		libID          string
		lastDetectedAt string
	)
	err := row.Scan(&c.SubscriberGroup, &libID, &c.LastEventID, &lastDetectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.KindStorage, "eventbus.get_cursor", "read cursor", err)
	}
	parsed, perr := ids.ParseLibraryId(libID)
	if perr != nil {
		return nil, errs.New(errs.KindInvariant, "eventbus.get_cursor", "corrupt library id", perr)
	}
	c.LibraryID = parsed
	c.LastDetectedAt, _ = time.Parse(time.RFC3339Nano, lastDetectedAt)
	return &c, nil
}

// GetUnprocessedEvents returns up to limit events not yet marked
// processed for libraryID, oldest first.
func (d *Durable) GetUnprocessedEvents(ctx context.Context, libraryID ids.LibraryId, limit int) ([]model.FileWatchEvent, error) {
	rows, err := d.db.Conn.QueryContext(ctx, `
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

// MarkProcessed flags eventID as processed.
func (d *Durable) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := d.db.ExecRetry(ctx, `UPDATE events SET processed = 1, processed_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), eventID)
	if err != nil {
		return errs.New(errs.KindStorage, "eventbus.mark_processed", "mark event processed", err)
	}
	return nil
}

// CleanupRetention deletes processed events older than days
// (`eventbus.retention_days`, default 14).
func (d *Durable) CleanupRetention(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour).Format(time.RFC3339Nano)
	res, err := d.db.ExecRetry(ctx, `DELETE FROM events WHERE processed = 1 AND detected_at < ?`, cutoff)
	if err != nil {
		return 0, errs.New(errs.KindStorage, "eventbus.cleanup_retention", "cleanup retention", err)
	}
	return res.RowsAffected()
}

func nullableSize(size *int64) any {
	if size == nil {
		return nil
	}
	return *size
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.FileWatchEvent, error) {
	var (
		e                      model.FileWatchEvent
		libraryIDStr           string
		eventType              string
		fileSize               sql.NullInt64
		detectedAt             string
		processedInt           int
		processedAt            sql.NullString
	)
	err := row.Scan(&e.ID, &libraryIDStr, &eventType, &e.FilePath, &e.OldPath, &fileSize,
		&detectedAt, &processedInt, &processedAt, &e.Attempts, &e.LastError)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "eventbus.scan", "scan event row", err)
	}

	libID, perr := ids.ParseLibraryId(libraryIDStr)
	if perr != nil {
		return nil, errs.New(errs.KindInvariant, "eventbus.scan", "corrupt library id", perr)
	}
	e.LibraryID = libID
	e.EventType = model.FileChangeEventType(eventType)
	e.Processed = processedInt != 0
	e.DetectedAt, _ = time.Parse(time.RFC3339Nano, detectedAt)
	if fileSize.Valid {
		size := fileSize.Int64
		e.FileSize = &size
	}
	if processedAt.Valid && processedAt.String != "" {
		t, terr := time.Parse(time.RFC3339Nano, processedAt.String)
		if terr == nil {
			e.ProcessedAt = &t
		}
	}
	return &e, nil
}
