// Package provider defines the metadata provider port the Resolve
// actor depends on: resolve a series root folder against an external
// catalog, search it, and fetch extended details for a chosen
// candidate. The core never talks to TMDB or any concrete API directly
// — it consumes an injected Searcher and wraps it with the rate
// limiting and circuit breaking the resolve path requires. The HTTP client
// behind Searcher is an external collaborator and out of scope here.
package provider

import (
	"context"

	"ferrex/internal/ids"
	"ferrex/internal/model"
)

// Searcher is the narrow external-collaborator interface a concrete
// metadata client (TMDB or equivalent) must implement: title/year
// search plus a details fetch, nothing provider-specific leaking
// through.
type Searcher interface {
	SearchMovie(ctx context.Context, query string, year int) ([]model.CandidateRef, error)
	SearchSeries(ctx context.Context, query string, year int) ([]model.CandidateRef, error)
	GetDetails(ctx context.Context, providerID string, kind model.CandidateMediaKind) (model.ExtendedDetails, error)
}

// Provider is the port the Resolve actor calls. It is implemented
// by Client, which wraps an injected Searcher with resilience.
type Provider interface {
	ResolveSeries(ctx context.Context, libraryID ids.LibraryId, seriesRootPath string, hint model.SeriesHint, folderName string) (model.SeriesResolution, error)
	Search(ctx context.Context, query string, kind model.CandidateMediaKind, year int) ([]model.CandidateRef, error)
	GetDetails(ctx context.Context, id string, kind model.CandidateMediaKind) (model.ExtendedDetails, error)
}
