package provider

import (
	"context"
	"sync/atomic"

	"ferrex/internal/model"
)

// FakeSearcher is an in-memory Searcher for deterministic tests. It
// never performs I/O; movie/series calls return fixed results, or an
// error when Err is set. Calls increments for every invocation so
// tests can assert on rate limiting and breaker behavior.
type FakeSearcher struct {
	MovieResults  []model.CandidateRef
	SeriesResults []model.CandidateRef
	Details       model.ExtendedDetails
	Err           error
	Calls         atomic.Int64
}

var _ Searcher = (*FakeSearcher)(nil)

func (f *FakeSearcher) SearchMovie(ctx context.Context, query string, year int) ([]model.CandidateRef, error) {
	f.Calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.MovieResults, nil
}

func (f *FakeSearcher) SearchSeries(ctx context.Context, query string, year int) ([]model.CandidateRef, error) {
	f.Calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.SeriesResults, nil
}

func (f *FakeSearcher) GetDetails(ctx context.Context, providerID string, kind model.CandidateMediaKind) (model.ExtendedDetails, error) {
	f.Calls.Add(1)
	if f.Err != nil {
		return model.ExtendedDetails{}, f.Err
	}
	return f.Details, nil
}
