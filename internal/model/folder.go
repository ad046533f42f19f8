package model

import (
	"time"

	"ferrex/internal/ids"
)

// FolderKind classifies a folder's role within a library's hierarchy.
type FolderKind string

const (
	FolderKindRoot    FolderKind = "root"
	FolderKindSeries  FolderKind = "series"
	FolderKindSeason  FolderKind = "season"
	FolderKindUnknown FolderKind = "unknown"
)

// FolderStatus is the processing status of a FolderInventory row.
type FolderStatus string

const (
	FolderStatusPending   FolderStatus = "pending"
	FolderStatusScanning  FolderStatus = "scanning"
	FolderStatusProcessed FolderStatus = "processed"
	FolderStatusFailed    FolderStatus = "failed"
	FolderStatusStale     FolderStatus = "stale"
)

// FolderInventory is the per-library folder record maintained by the
// Folder Inventory Store. ParentFolderID is nil for library roots.
type FolderInventory struct {
	ID               ids.FolderId
	LibraryID        ids.LibraryId
	ParentFolderID   *ids.FolderId
	PathNorm         string
	Kind             FolderKind
	Status           FolderStatus
	TotalFiles       int
	ProcessedFiles   int
	TotalSizeBytes   int64
	FileTypes        map[string]struct{}
	LastError        string
	RetryCount       int
	NextRetryAt      *time.Time
	FirstSeenAt      time.Time
	LastScannedAt    *time.Time
}

// ListFilters narrows list_needing_scan queries.
type ListFilters struct {
	Status    FolderStatus
	OlderThan time.Time
	RetryDue  bool
	Limit     int
}

// ReadyForRetry reports whether a Failed folder's backoff has elapsed.
func (f FolderInventory) ReadyForRetry(now time.Time) bool {
	if f.Status != FolderStatusFailed {
		return false
	}
	if f.NextRetryAt == nil {
		return true
	}
	return !now.Before(*f.NextRetryAt)
}

// ProcessedInvariant enforces the invariant that processed
// folders never report more processed files than total, and always carry
// a scan timestamp.
func (f FolderInventory) ProcessedInvariant() bool {
	if f.Status != FolderStatusProcessed {
		return true
	}
	return f.ProcessedFiles <= f.TotalFiles && f.LastScannedAt != nil
}
