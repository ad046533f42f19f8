// Package referencestore defines the MediaReferencesRepository port:
// CRUD for Movie/Series/Season/Episode references and path-based
// lookups. The repository itself is owned by an external collaborator;
// the Index actor only writes through this interface. The package owns
// the port and an in-memory fake for deterministic tests; no
// SQL-backed implementation lives here.
package referencestore

import (
	"context"

	"ferrex/internal/ids"
	"ferrex/internal/model"
)

// Repository is the MediaReferencesRepository port the Index actor
// depends on.
type Repository interface {
	UpsertMovie(ctx context.Context, ref model.MovieReference) (ids.MovieId, error)
	GetMovieByPath(ctx context.Context, libraryID ids.LibraryId, pathNorm string) (*model.MovieReference, error)

	UpsertSeries(ctx context.Context, ref model.SeriesReference) (ids.SeriesId, error)
	GetSeriesByRootPath(ctx context.Context, libraryID ids.LibraryId, rootPath string) (*model.SeriesReference, error)

	UpsertSeason(ctx context.Context, ref model.SeasonReference) (ids.SeasonId, error)
	GetSeason(ctx context.Context, seriesID ids.SeriesId, number int) (*model.SeasonReference, error)

	UpsertEpisode(ctx context.Context, ref model.EpisodeReference) (ids.EpisodeId, error)
	GetEpisodeByPath(ctx context.Context, seriesID ids.SeriesId, pathNorm string) (*model.EpisodeReference, error)

	DeleteByPath(ctx context.Context, libraryID ids.LibraryId, pathNorm string) error
}
