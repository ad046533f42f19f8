// Package eventbus implements the File-Change Event Bus: a durable,
// at-least-once log of filesystem change events with
// per-subscriber-group cursors. Two adapters exist: Durable (backed by
// SQLite, full contract) and Legacy (single-repository writes only;
// it fails loudly rather than silently dropping subscribe/ack/commit).
package eventbus

import (
	"context"
	"errors"

	"ferrex/internal/ids"
	"ferrex/internal/model"
)

// ErrSubscribeUnsupported is returned by the Legacy adapter's
// Subscribe/Ack/CommitCursor methods instead of silently succeeding.
var ErrSubscribeUnsupported = errors.New("eventbus: durable subscribe is not supported by this adapter")

// Bus is the File-Change Event Bus port consumed by the Orchestrator
// and by downstream consumers (watch status, image pipeline, UI).
type Bus interface {
	Publish(ctx context.Context, event model.FileWatchEvent) error
	Subscribe(ctx context.Context, group string, libraryID ids.LibraryId) (<-chan model.FileWatchEvent, error)
	Ack(ctx context.Context, group string, eventID string) error
	CommitCursor(ctx context.Context, cursor model.FileChangeCursor) error
	GetCursor(ctx context.Context, group string, libraryID ids.LibraryId) (*model.FileChangeCursor, error)
	GetUnprocessedEvents(ctx context.Context, libraryID ids.LibraryId, limit int) ([]model.FileWatchEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	CleanupRetention(ctx context.Context, days int) (int64, error)
}
