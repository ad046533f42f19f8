package referencestore

import (
	"context"
	"strconv"
	"sync"

	"ferrex/internal/ids"
	"ferrex/internal/model"
)

// FakeRepository is an in-memory Repository for deterministic tests.
// Upserts key on (library, path) for movies and series roots,
// (series, number) for seasons and (series, path) for episodes,
// exactly like the externally owned durable reference repository.
type FakeRepository struct {
	mu       sync.Mutex
	movies   map[string]model.MovieReference
	series   map[string]model.SeriesReference
	seasons  map[string]model.SeasonReference
	episodes map[string]model.EpisodeReference
}

var _ Repository = (*FakeRepository)(nil)

// NewFakeRepository returns an empty in-memory Repository.
func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		movies:   make(map[string]model.MovieReference),
		series:   make(map[string]model.SeriesReference),
		seasons:  make(map[string]model.SeasonReference),
		episodes: make(map[string]model.EpisodeReference),
	}
}

func movieKey(libraryID ids.LibraryId, pathNorm string) string {
	return libraryID.String() + "|" + pathNorm
}

func seriesKey(libraryID ids.LibraryId, rootPath string) string {
	return libraryID.String() + "|" + rootPath
}

func seasonKey(seriesID ids.SeriesId, number int) string {
	return seriesID.String() + "|" + strconv.Itoa(number)
}

func episodeKey(seriesID ids.SeriesId, pathNorm string) string {
	return seriesID.String() + "|" + pathNorm
}

func (f *FakeRepository) UpsertMovie(ctx context.Context, ref model.MovieReference) (ids.MovieId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := movieKey(ref.LibraryID, ref.PathNorm)
	if existing, ok := f.movies[key]; ok && ref.ID == (ids.MovieId{}) {
		ref.ID = existing.ID
	}
	if ref.ID == (ids.MovieId{}) {
		ref.ID = ids.NewMovieId()
	}
	f.movies[key] = ref
	return ref.ID, nil
}

func (f *FakeRepository) GetMovieByPath(ctx context.Context, libraryID ids.LibraryId, pathNorm string) (*model.MovieReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref, ok := f.movies[movieKey(libraryID, pathNorm)]; ok {
		out := ref
		return &out, nil
	}
	return nil, nil
}

func (f *FakeRepository) UpsertSeries(ctx context.Context, ref model.SeriesReference) (ids.SeriesId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := seriesKey(ref.LibraryID, ref.RootPath)
	if existing, ok := f.series[key]; ok && ref.ID == (ids.SeriesId{}) {
		ref.ID = existing.ID
	}
	if ref.ID == (ids.SeriesId{}) {
		ref.ID = ids.NewSeriesId()
	}
	f.series[key] = ref
	return ref.ID, nil
}

func (f *FakeRepository) GetSeriesByRootPath(ctx context.Context, libraryID ids.LibraryId, rootPath string) (*model.SeriesReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref, ok := f.series[seriesKey(libraryID, rootPath)]; ok {
		out := ref
		return &out, nil
	}
	return nil, nil
}

func (f *FakeRepository) UpsertSeason(ctx context.Context, ref model.SeasonReference) (ids.SeasonId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := seasonKey(ref.SeriesID, ref.Number)
	if existing, ok := f.seasons[key]; ok && ref.ID == (ids.SeasonId{}) {
		ref.ID = existing.ID
	}
	if ref.ID == (ids.SeasonId{}) {
		ref.ID = ids.NewSeasonId()
	}
	f.seasons[key] = ref
	return ref.ID, nil
}

func (f *FakeRepository) GetSeason(ctx context.Context, seriesID ids.SeriesId, number int) (*model.SeasonReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref, ok := f.seasons[seasonKey(seriesID, number)]; ok {
		out := ref
		return &out, nil
	}
	return nil, nil
}

func (f *FakeRepository) UpsertEpisode(ctx context.Context, ref model.EpisodeReference) (ids.EpisodeId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := episodeKey(ref.SeriesID, ref.PathNorm)
	if existing, ok := f.episodes[key]; ok && ref.ID == (ids.EpisodeId{}) {
		ref.ID = existing.ID
	}
	if ref.ID == (ids.EpisodeId{}) {
		ref.ID = ids.NewEpisodeId()
	}
	f.episodes[key] = ref
	return ref.ID, nil
}

func (f *FakeRepository) GetEpisodeByPath(ctx context.Context, seriesID ids.SeriesId, pathNorm string) (*model.EpisodeReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref, ok := f.episodes[episodeKey(seriesID, pathNorm)]; ok {
		out := ref
		return &out, nil
	}
	return nil, nil
}

func (f *FakeRepository) DeleteByPath(ctx context.Context, libraryID ids.LibraryId, pathNorm string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.movies, movieKey(libraryID, pathNorm))
	for key, ep := range f.episodes {
		if ep.PathNorm == pathNorm {
			delete(f.episodes, key)
		}
	}
	return nil
}
