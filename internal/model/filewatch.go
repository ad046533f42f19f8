package model

import (
	"time"

	"ferrex/internal/ids"
)

// FileChangeEventType is the closed set of change kinds the filesystem
// watcher can observe.
type FileChangeEventType string

const (
	FileChangeCreated  FileChangeEventType = "created"
	FileChangeModified FileChangeEventType = "modified"
	FileChangeDeleted  FileChangeEventType = "deleted"
	FileChangeMoved    FileChangeEventType = "moved"
)

// FileWatchEvent is a durable change event feeding incremental
// rescans.
type FileWatchEvent struct {
	ID          string
	LibraryID   ids.LibraryId
	EventType   FileChangeEventType
	FilePath    string
	OldPath     string // set when EventType == Moved
	FileSize    *int64
	DetectedAt  time.Time
	Processed   bool
	ProcessedAt *time.Time
	Attempts    int
	LastError   string
}

// FileChangeCursor is a subscriber group's durable read position on one
// library's change stream. It advances only on a contiguous
// prefix of acked events.
type FileChangeCursor struct {
	SubscriberGroup string
	LibraryID       ids.LibraryId
	LastEventID     string
	LastDetectedAt  time.Time
}
