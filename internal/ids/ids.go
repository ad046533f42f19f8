// Package ids defines the typed, time-ordered identifiers used across the
// scan core. Every entity id is a v7 UUID (monotonic creation order, compact
// indexing); the wrapper types exist so the compiler catches a LibraryId
// passed where a ScanId is expected.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// LibraryId identifies a Library.
type LibraryId uuid.UUID

// FolderId identifies a FolderInventory row.
type FolderId uuid.UUID

// ScanId identifies a single scan run.
type ScanId uuid.UUID

// MovieId identifies a Movie reference.
type MovieId uuid.UUID

// SeriesId identifies a Series reference.
type SeriesId uuid.UUID

// SeasonId identifies a Season reference.
type SeasonId uuid.UUID

// EpisodeId identifies an Episode reference.
type EpisodeId uuid.UUID

func (id LibraryId) String() string { return uuid.UUID(id).String() }
func (id FolderId) String() string  { return uuid.UUID(id).String() }
func (id ScanId) String() string    { return uuid.UUID(id).String() }
func (id MovieId) String() string   { return uuid.UUID(id).String() }
func (id SeriesId) String() string  { return uuid.UUID(id).String() }
func (id SeasonId) String() string  { return uuid.UUID(id).String() }
func (id EpisodeId) String() string { return uuid.UUID(id).String() }

// NewLibraryId mints a new time-ordered library id.
func NewLibraryId() LibraryId { return LibraryId(mustV7()) }

// NewFolderId mints a new time-ordered folder id.
func NewFolderId() FolderId { return FolderId(mustV7()) }

// NewScanId mints a new time-ordered scan id.
func NewScanId() ScanId { return ScanId(mustV7()) }

// NewMovieId mints a new time-ordered movie id.
func NewMovieId() MovieId { return MovieId(mustV7()) }

// NewSeriesId mints a new time-ordered series id.
func NewSeriesId() SeriesId { return SeriesId(mustV7()) }

// NewSeasonId mints a new time-ordered season id.
func NewSeasonId() SeasonId { return SeasonId(mustV7()) }

// NewEpisodeId mints a new time-ordered episode id.
func NewEpisodeId() EpisodeId { return EpisodeId(mustV7()) }

// ParseLibraryId parses s as a LibraryId.
func ParseLibraryId(s string) (LibraryId, error) {
	id, err := uuid.Parse(s)
	return LibraryId(id), err
}

// ParseFolderId parses s as a FolderId.
func ParseFolderId(s string) (FolderId, error) {
	id, err := uuid.Parse(s)
	return FolderId(id), err
}

// ParseScanId parses s as a ScanId.
func ParseScanId(s string) (ScanId, error) {
	id, err := uuid.Parse(s)
	return ScanId(id), err
}

// ParseMovieId parses s as a MovieId.
func ParseMovieId(s string) (MovieId, error) {
	id, err := uuid.Parse(s)
	return MovieId(id), err
}

// ParseSeriesId parses s as a SeriesId.
func ParseSeriesId(s string) (SeriesId, error) {
	id, err := uuid.Parse(s)
	return SeriesId(id), err
}

// ParseSeasonId parses s as a SeasonId.
func ParseSeasonId(s string) (SeasonId, error) {
	id, err := uuid.Parse(s)
	return SeasonId(id), err
}

// ParseEpisodeId parses s as an EpisodeId.
func ParseEpisodeId(s string) (EpisodeId, error) {
	id, err := uuid.Parse(s)
	return EpisodeId(id), err
}

func mustV7() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the runtime's time/entropy source is
		// broken; there is no sane recovery at the call sites that use this.
		panic(fmt.Sprintf("ids: generate v7 uuid: %v", err))
	}
	return id
}

// MediaKind tags which closed variant a MediaId refers to.
type MediaKind int

const (
	MediaKindUnknown MediaKind = iota
	MediaKindMovie
	MediaKindSeries
	MediaKindSeason
	MediaKindEpisode
)

func (k MediaKind) String() string {
	switch k {
	case MediaKindMovie:
		return "movie"
	case MediaKindSeries:
		return "series"
	case MediaKindSeason:
		return "season"
	case MediaKindEpisode:
		return "episode"
	default:
		return "unknown"
	}
}

// MediaId is the polymorphic union {Movie, Series, Season, Episode}.
// Exactly one of the typed ids is meaningful; Kind tags which one.
type MediaId struct {
	Kind    MediaKind
	Movie   MovieId
	Series  SeriesId
	Season  SeasonId
	Episode EpisodeId
}

// NewMovieMediaId wraps a MovieId as a MediaId.
func NewMovieMediaId(id MovieId) MediaId { return MediaId{Kind: MediaKindMovie, Movie: id} }

// NewSeriesMediaId wraps a SeriesId as a MediaId.
func NewSeriesMediaId(id SeriesId) MediaId { return MediaId{Kind: MediaKindSeries, Series: id} }

// NewSeasonMediaId wraps a SeasonId as a MediaId.
func NewSeasonMediaId(id SeasonId) MediaId { return MediaId{Kind: MediaKindSeason, Season: id} }

// NewEpisodeMediaId wraps an EpisodeId as a MediaId.
func NewEpisodeMediaId(id EpisodeId) MediaId { return MediaId{Kind: MediaKindEpisode, Episode: id} }

// String renders the underlying id regardless of which variant is set.
func (m MediaId) String() string {
	switch m.Kind {
	case MediaKindMovie:
		return m.Movie.String()
	case MediaKindSeries:
		return m.Series.String()
	case MediaKindSeason:
		return m.Season.String()
	case MediaKindEpisode:
		return m.Episode.String()
	default:
		return "unknown"
	}
}
