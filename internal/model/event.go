package model

import (
	"time"

	"ferrex/internal/ids"
)

// DomainEventKind tags the closed set of DomainEvent variants.
// Per the design notes, media kind and event variant are expressed as
// tagged unions rather than a type hierarchy; dispatch is by switch on
// Kind.
type DomainEventKind string

const (
	DomainEventMovieAdded     DomainEventKind = "movie_added"
	DomainEventMovieUpdated   DomainEventKind = "movie_updated"
	DomainEventSeriesAdded    DomainEventKind = "series_added"
	DomainEventSeriesUpdated  DomainEventKind = "series_updated"
	DomainEventSeasonAdded    DomainEventKind = "season_added"
	DomainEventSeasonUpdated  DomainEventKind = "season_updated"
	DomainEventEpisodeAdded   DomainEventKind = "episode_added"
	DomainEventEpisodeUpdated DomainEventKind = "episode_updated"
	DomainEventMediaDeleted   DomainEventKind = "media_deleted"
	DomainEventScanStarted    DomainEventKind = "scan_started"
	DomainEventScanProgress   DomainEventKind = "scan_progress"
	DomainEventScanCompleted  DomainEventKind = "scan_completed"
	DomainEventScanFailed     DomainEventKind = "scan_failed"
)

// ScanFailureReason distinguishes why a scan reached ScanFailed:
// Canceled and Error are one ScanFailed variant carrying a reason
// rather than two separate terminal event kinds.
type ScanFailureReason string

const (
	ScanFailureReasonError    ScanFailureReason = "error"
	ScanFailureReasonCanceled ScanFailureReason = "canceled"
)

// ScanEventMeta carries the envelope fields every scan-lifecycle
// DomainEvent attaches.
type ScanEventMeta struct {
	Version        int
	CorrelationID  string
	IdempotencyKey string
	LibraryID      ids.LibraryId
}

// DomainEvent is the tagged union of everything the core publishes to
// the event publisher port. Exactly one payload field is
// meaningful, selected by Kind.
type DomainEvent struct {
	Kind      DomainEventKind
	MediaID   ids.MediaId
	DeletedID ids.MediaId

	// Scan lifecycle payloads.
	ScanID        ids.ScanId
	ScanMeta      ScanEventMeta
	Snapshot      *ScanSnapshot      // set for ScanProgress
	FailureReason ScanFailureReason  // set for ScanFailed
	FailureError  string             // set for ScanFailed

	OccurredAt time.Time
}

// IsScanLifecycle reports whether e is one of the scan-level events
// (as opposed to a media reference change).
func (e DomainEvent) IsScanLifecycle() bool {
	switch e.Kind {
	case DomainEventScanStarted, DomainEventScanProgress, DomainEventScanCompleted, DomainEventScanFailed:
		return true
	default:
		return false
	}
}
