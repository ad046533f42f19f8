package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"ferrex/internal/ids"
)

// ScanMode selects how a ScanFolderJob treats its target folder.
type ScanMode string

const (
	ScanModeFullRescan  ScanMode = "full_rescan"
	ScanModeCursor      ScanMode = "cursor"
	ScanModeIncremental ScanMode = "incremental"
)

// ScanFolderJob asks the Scan actor to list a folder and fingerprint its
// media entries.
type ScanFolderJob struct {
	LibraryID ids.LibraryId
	FolderID  ids.FolderId
	Mode      ScanMode
}

// IdempotencyKey derives the stable key for this job from its subject
// path and stage.
func (j ScanFolderJob) IdempotencyKey() string {
	return idempotencyKey("scan", j.LibraryID.String(), j.FolderID.String())
}

// MediaAnalyzeJob asks the Analyze actor to probe one media file's
// technical metadata.
type MediaAnalyzeJob struct {
	LibraryID   ids.LibraryId
	MediaID     ids.MediaId
	Variant     MediaKindHint
	PathNorm    string
	Fingerprint MediaFingerprint
	Hierarchy   []string // e.g. [series, season] folder names, root-first
	Node        string   // the leaf file name
	Title       string   // classify.Result.Title
	Year        int      // classify.Result.Year, movies only
	Season      int      // classify.Result.Season, episodes only
	Episode     int      // classify.Result.Episode, episodes only
}

func (j MediaAnalyzeJob) IdempotencyKey() string {
	return idempotencyKey("analyze", j.LibraryID.String(), j.PathNorm)
}

// MediaAnalyzed is the Analyze actor's output. Technical is nil
// when extraction failed; this is logged but not fatal, and
// the item still flows forward to Resolve/Index.
type MediaAnalyzed struct {
	LibraryID   ids.LibraryId
	Variant     MediaKindHint
	PathNorm    string
	Fingerprint MediaFingerprint
	Hierarchy   []string
	Title       string
	Year        int
	Season      int
	Episode     int
	Technical   *TechnicalMetadata
}

// MediaKindHint is the Scan actor's classification of a file before the
// Index actor assigns it a concrete MediaId.
type MediaKindHint string

const (
	MediaKindHintMovie   MediaKindHint = "movie"
	MediaKindHintEpisode MediaKindHint = "episode"
	MediaKindHintUnknown MediaKindHint = "unknown"
)

// SeriesResolveJob asks the Resolve actor to identify a series from its
// root folder name.
type SeriesResolveJob struct {
	LibraryID      ids.LibraryId
	SeriesRootPath string
	FolderName     string
	Hint           *SeriesHint
}

func (j SeriesResolveJob) IdempotencyKey() string {
	return idempotencyKey("resolve", j.LibraryID.String(), j.SeriesRootPath)
}

// IndexJob asks the Index actor to commit one resolved reference and
// publish its DomainEvent. Sequence is monotonic within a scan.
type IndexJob struct {
	Reference MediaReadyForIndex
	Sequence  uint64
}

func (j IndexJob) IdempotencyKey() string {
	return idempotencyKey("index", j.Reference.LibraryID.String(), j.Reference.PathNorm)
}

// MediaReadyForIndex is the Resolve/Analyze pipeline's handoff to the
// Index actor: everything needed to commit a reference row.
type MediaReadyForIndex struct {
	LibraryID   ids.LibraryId
	Variant     MediaKindHint
	PathNorm    string
	Fingerprint MediaFingerprint
	Hierarchy   []string
	Title       string
	Year        int
	Season      int
	Episode     int
	Technical   *TechnicalMetadata
	SeriesRef   *ids.SeriesId // set when Variant is episode/season
}

// SeriesReadyForIndex is the Resolve actor's handoff to the Index actor
// for the series root itself: the reference row
// that root's episodes attach to once it's committed. SeriesID is
// assigned by Resolve (reusing any id already on record for RootPath)
// but the row is only written through referencestore by the Index
// actor.
type SeriesReadyForIndex struct {
	LibraryID  ids.LibraryId
	RootPath   string
	SeriesID   ids.SeriesId
	ProviderID string
	Title      string
	Year       int
}

// SeriesIndexJob asks the Index actor to commit a series root's
// reference row.
type SeriesIndexJob struct {
	Ready SeriesReadyForIndex
}

func (j SeriesIndexJob) IdempotencyKey() string {
	return idempotencyKey("index_series", j.Ready.LibraryID.String(), j.Ready.RootPath)
}

// idempotencyKey hashes a job's stage and subject path into a stable,
// fixed-width string suitable for dedup lookups.
func idempotencyKey(stage string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(stage))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SeriesHint is the Resolve actor's best-effort parse of a series root
// folder name before calling the metadata provider.
type SeriesHint struct {
	Title  string
	Slug   string
	Year   int // 0 if unknown
	Region string
}

func (h SeriesHint) String() string {
	if h.Year > 0 {
		return fmt.Sprintf("%s (%d)", h.Title, h.Year)
	}
	return h.Title
}
