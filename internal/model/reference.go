package model

import (
	"time"

	"ferrex/internal/ids"
)

// MovieReference is the Index actor's persisted row for a resolved
// movie file.
type MovieReference struct {
	ID           ids.MovieId
	LibraryID    ids.LibraryId
	PathNorm     string
	Title        string
	Year         int
	ProviderID   string
	Fingerprint  MediaFingerprint
	Technical    *TechnicalMetadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SeriesReference is the persisted row for a resolved series (one per
// series root folder).
type SeriesReference struct {
	ID         ids.SeriesId
	LibraryID  ids.LibraryId
	RootPath   string
	Title      string
	Year       int
	ProviderID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SeasonReference is the persisted row for one season under a series.
type SeasonReference struct {
	ID       ids.SeasonId
	SeriesID ids.SeriesId
	Number   int
	PathNorm string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EpisodeReference is the Index actor's persisted row for a resolved
// episode file.
type EpisodeReference struct {
	ID          ids.EpisodeId
	SeasonID    ids.SeasonId
	SeriesID    ids.SeriesId
	PathNorm    string
	Title       string
	Number      int
	Fingerprint MediaFingerprint
	Technical   *TechnicalMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
