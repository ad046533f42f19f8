// Package statemachine implements the Scan State Machine: the
// exclusive owner of per-series-root lifecycle progress. Folder status
// is kept by folderstore, not here. Each transition is written as one
// upsert of the subject's row on its own; it is not committed in one
// transaction with the triggering event or any other store's write.
package statemachine

import (
	"context"
	"time"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
)

// Repository persists SeriesScanState transitions. The scan core's only
// implementation is SQLite-backed (below); a fake is provided for tests
// that don't need persistence across restarts.
type Repository interface {
	Get(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string) (*model.SeriesScanState, error)
	Put(ctx context.Context, state model.SeriesScanState) error
}

// Machine drives SeriesScanState transitions through the
// `Pending → Seeded → Resolving → Resolved | Failed`.
type Machine struct {
	repo Repository
}

// New constructs a Machine backed by repo.
func New(repo Repository) *Machine {
	return &Machine{repo: repo}
}

// MarkSeeded transitions a freshly discovered series root to Seeded.
func (m *Machine) MarkSeeded(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string, hint *model.SeriesHint) error {
	return m.repo.Put(ctx, model.SeriesScanState{
		LibraryID:      libraryID,
		SeriesRootPath: seriesRootPath,
		Kind:           model.SeriesStateSeeded,
		LastHint:       hint,
	})
}

// MarkResolving transitions a subject into Resolving, incrementing its
// attempt counter.
func (m *Machine) MarkResolving(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string) error {
	state, err := m.current(ctx, libraryID, seriesRootPath)
	if err != nil {
		return err
	}
	state.Kind = model.SeriesStateResolving
	state.Attempts++
	return m.repo.Put(ctx, state)
}

// MarkResolved transitions a subject to Resolved, recording the
// matched series reference. Only Resolved permits Index jobs for the
// series' episodes.
func (m *Machine) MarkResolved(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string, ref ids.SeriesId) error {
	state, err := m.current(ctx, libraryID, seriesRootPath)
	if err != nil {
		return err
	}
	state.Kind = model.SeriesStateResolved
	state.SeriesRef = &ref
	state.BackoffDeadline = nil
	return m.repo.Put(ctx, state)
}

// MarkFailed transitions a subject to Failed with reason and records
// backoffDeadline as its retry deadline (nil when no retry is
// scheduled). The deadline, and whether to retry at all, are decided
// by the caller's backoff policy.
func (m *Machine) MarkFailed(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string, reason string, backoffDeadline *time.Time) error {
	state, err := m.current(ctx, libraryID, seriesRootPath)
	if err != nil {
		return err
	}
	state.Kind = model.SeriesStateFailed
	state.FailureReason = reason
	state.BackoffDeadline = backoffDeadline
	return m.repo.Put(ctx, state)
}

// ReadyForRetry reports whether a Failed subject's backoff has
// elapsed and it has not yet exhausted maxAttempts (at which point the
// caller moves it to the dead-letter set instead of retrying).
func (m *Machine) ReadyForRetry(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string, maxAttempts int, now time.Time) (bool, error) {
	state, err := m.current(ctx, libraryID, seriesRootPath)
	if err != nil {
		return false, err
	}
	if state.Kind != model.SeriesStateFailed {
		return false, nil
	}
	if state.Attempts >= maxAttempts {
		return false, nil
	}
	return state.BackoffElapsed(now), nil
}

// State returns the current SeriesScanState for (libraryID,
// seriesRootPath), or nil if the subject has never been Seeded. Unlike
// current, State does not treat "no prior state" as an error — the
// Orchestrator uses it to decide whether a series root still needs
// seeding before routing an episode.
func (m *Machine) State(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string) (*model.SeriesScanState, error) {
	return m.repo.Get(ctx, libraryID, seriesRootPath)
}

func (m *Machine) current(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string) (model.SeriesScanState, error) {
	state, err := m.repo.Get(ctx, libraryID, seriesRootPath)
	if err != nil {
		return model.SeriesScanState{}, err
	}
	if state == nil {
		return model.SeriesScanState{}, errs.New(errs.KindInvariant, "statemachine.current", "subject has no prior Seeded state", nil)
	}
	return *state, nil
}
