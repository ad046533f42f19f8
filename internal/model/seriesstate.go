package model

import (
	"time"

	"ferrex/internal/ids"
)

// SeriesScanStateKind is the closed set of resolution states a series
// root folder can be in.
type SeriesScanStateKind string

const (
	SeriesStateSeeded    SeriesScanStateKind = "seeded"
	SeriesStateResolving SeriesScanStateKind = "resolving"
	SeriesStateResolved  SeriesScanStateKind = "resolved"
	SeriesStateFailed    SeriesScanStateKind = "failed"
)

// SeriesScanState is the per-series-root persisted resolution state
//. Only Resolved permits Index jobs downstream for the
// series' episodes.
type SeriesScanState struct {
	LibraryID      ids.LibraryId
	SeriesRootPath string
	Kind           SeriesScanStateKind
	SeriesRef      *ids.SeriesId // set when Kind == Resolved
	FailureReason  string        // set when Kind == Failed
	LastHint       *SeriesHint
	Attempts       int
	BackoffDeadline *time.Time
}

// ReadyForIndex reports whether episodes under this series root may be
// indexed.
func (s SeriesScanState) ReadyForIndex() bool {
	return s.Kind == SeriesStateResolved && s.SeriesRef != nil
}

// BackoffElapsed reports whether a Resolving state's retry deadline has
// passed.
func (s SeriesScanState) BackoffElapsed(now time.Time) bool {
	if s.BackoffDeadline == nil {
		return true
	}
	return !now.Before(*s.BackoffDeadline)
}
