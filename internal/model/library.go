// Package model holds the scan core's data-model types: Library,
// FolderInventory, ScanCursor, job variants, MediaFingerprint,
// SeriesScanState, ScanSnapshot, FileWatchEvent and FileChangeCursor.
// Types are plain structs with closed sum types expressed as tagged
// enums; there are no subclass hierarchies.
package model

import (
	"errors"
	"time"

	"ferrex/internal/ids"
)

// LibraryType is the closed set of library kinds.
type LibraryType string

const (
	LibraryTypeMovies LibraryType = "movies"
	LibraryTypeSeries LibraryType = "series"
)

// Library is a configured media root plus its scan policy.
type Library struct {
	ID                ids.LibraryId
	Name              string
	Type              LibraryType // immutable after creation
	RootPaths         []string    // non-empty
	ScanIntervalMins  int
	Enabled           bool
	AutoScan          bool
	WatchForChanges   bool
	AnalyzeOnScan     bool
	MaxRetryAttempts  int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastScanAt        *time.Time
	NextScanAt        *time.Time
}

// Validate enforces the Library invariants.
func (l Library) Validate() error {
	if len(l.RootPaths) == 0 {
		return errors.New("library must have at least one root path")
	}
	if l.Type != LibraryTypeMovies && l.Type != LibraryTypeSeries {
		return errors.New("library type must be movies or series")
	}
	return nil
}
