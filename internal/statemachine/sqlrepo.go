package statemachine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/sqlstore"
)

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE series_scan_state (
	library_id        TEXT NOT NULL,
	series_root_path  TEXT NOT NULL,
	kind              TEXT NOT NULL,
	series_ref        TEXT NOT NULL DEFAULT '',
	failure_reason    TEXT NOT NULL DEFAULT '',
	last_hint_json    TEXT NOT NULL DEFAULT '',
	attempts          INTEGER NOT NULL DEFAULT 0,
	backoff_deadline  TEXT,
	PRIMARY KEY (library_id, series_root_path)
);
`

// SQLRepository is the SQLite-backed Repository. Each Put is a single
// upsert keyed by (library_id, series_root_path); it does not join a
// transaction with any other store's write.
type SQLRepository struct {
	db *sqlstore.DB
}

// OpenSQLRepository opens or creates the state machine database at path.
func OpenSQLRepository(path string) (*SQLRepository, error) {
	db, err := sqlstore.Open(path, schemaVersion, schemaSQL)
	if err != nil {
		return nil, errs.New(errs.KindStorage, "statemachine.open", "open state machine db", err)
	}
	return &SQLRepository{db: db}, nil
}

// Close closes the underlying database.
func (r *SQLRepository) Close() error { return r.db.Close() }

func (r *SQLRepository) Get(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string) (*model.SeriesScanState, error) {
	row := r.db.Conn.QueryRowContext(ctx, `
		SELECT library_id, series_root_path, kind, series_ref, failure_reason, last_hint_json, attempts, backoff_deadline
		FROM series_scan_state WHERE library_id = ? AND series_root_path = ?
	`, libraryID.String(), seriesRootPath)

	var (
		s                           model.SeriesScanState
		libraryIDStr, kind          string
		seriesRef, hintJSON         string
		backoffDeadline             sql.NullString
	)
	err := row.Scan(&libraryIDStr, &s.SeriesRootPath, &kind, &seriesRef, &s.FailureReason, &hintJSON, &s.Attempts, &backoffDeadline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.KindStorage, "statemachine.get", "read series scan state", err)
	}

	libID, perr := ids.ParseLibraryId(libraryIDStr)
	if perr != nil {
		return nil, errs.New(errs.KindInvariant, "statemachine.get", "corrupt library id", perr)
	}
	s.LibraryID = libID
	s.Kind = model.SeriesScanStateKind(kind)
	if seriesRef != "" {
		ref, perr := ids.ParseSeriesId(seriesRef)
		if perr != nil {
			return nil, errs.New(errs.KindInvariant, "statemachine.get", "corrupt series ref", perr)
		}
		s.SeriesRef = &ref
	}
	if hintJSON != "" {
		var hint model.SeriesHint
		if jerr := json.Unmarshal([]byte(hintJSON), &hint); jerr == nil {
			s.LastHint = &hint
		}
	}
	if backoffDeadline.Valid && backoffDeadline.String != "" {
		t, terr := time.Parse(time.RFC3339Nano, backoffDeadline.String)
		if terr == nil {
			s.BackoffDeadline = &t
		}
	}
	return &s, nil
}

func (r *SQLRepository) Put(ctx context.Context, state model.SeriesScanState) error {
	var seriesRef string
	if state.SeriesRef != nil {
		seriesRef = state.SeriesRef.String()
	}
	var hintJSON string
	if state.LastHint != nil {
		b, err := json.Marshal(state.LastHint)
		if err != nil {
			return errs.New(errs.KindInvariant, "statemachine.put", "marshal series hint", err)
		}
		hintJSON = string(b)
	}
	var backoffDeadline any
	if state.BackoffDeadline != nil {
		backoffDeadline = state.BackoffDeadline.UTC().Format(time.RFC3339Nano)
	}

	_, err := r.db.ExecRetry(ctx, `
		INSERT INTO series_scan_state (library_id, series_root_path, kind, series_ref, failure_reason, last_hint_json, attempts, backoff_deadline)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (library_id, series_root_path) DO UPDATE SET
			kind = excluded.kind,
			series_ref = excluded.series_ref,
			failure_reason = excluded.failure_reason,
			last_hint_json = excluded.last_hint_json,
			attempts = excluded.attempts,
			backoff_deadline = excluded.backoff_deadline
	`, state.LibraryID.String(), state.SeriesRootPath, string(state.Kind), seriesRef,
		state.FailureReason, hintJSON, state.Attempts, backoffDeadline)
	if err != nil {
		return errs.New(errs.KindStorage, "statemachine.put", "write series scan state", err)
	}
	return nil
}

var _ Repository = (*SQLRepository)(nil)
