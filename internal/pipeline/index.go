package pipeline

import (
	"context"
	"path"
	"time"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/progress"
	"ferrex/internal/referencestore"
)

// IndexActor commits a resolved reference row and
// publish the DomainEvent announcing it. It is the only actor that
// writes through referencestore.Repository.
type IndexActor struct {
	References referencestore.Repository
	Publisher  progress.Publisher
}

// RunSeries commits a series root's reference row. Running it twice
// for the same root is safe: UpsertSeries is keyed by (library, root
// path).
func (a *IndexActor) RunSeries(ctx context.Context, job model.SeriesIndexJob) (ids.SeriesId, error) {
	r := job.Ready
	now := time.Now()
	seriesID, err := a.References.UpsertSeries(ctx, model.SeriesReference{
		ID:         r.SeriesID,
		LibraryID:  r.LibraryID,
		RootPath:   r.RootPath,
		Title:      r.Title,
		Year:       r.Year,
		ProviderID: r.ProviderID,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return ids.SeriesId{}, errs.New(errs.KindStorage, "index.upsert_series", "commit series reference", err)
	}

	a.Publisher.PublishDomain(model.DomainEvent{
		Kind:       model.DomainEventSeriesAdded,
		MediaID:    ids.NewSeriesMediaId(seriesID),
		OccurredAt: now,
	})
	return seriesID, nil
}

// Run commits one media file's reference row — a movie, or an episode
// under an already-Resolved series. job.Sequence is
// the caller's monotonic per-scan counter, threaded through unchanged
// for the Orchestrator's progress snapshot; it is not persisted here.
func (a *IndexActor) Run(ctx context.Context, job model.IndexJob) (model.DomainEvent, error) {
	r := job.Reference
	now := time.Now()

	switch r.Variant {
	case model.MediaKindHintEpisode:
		return a.indexEpisode(ctx, r, now)
	default:
		return a.indexMovie(ctx, r, now)
	}
}

// indexMovie upserts a movie reference, comparing the incoming
// fingerprint against any existing reference's stored one first: an
// unchanged fingerprint means the file hasn't moved or been rewritten
// since the last commit, so replay idempotence requires skipping
// the write and the DomainEvent entirely rather than emitting a
// spurious MovieUpdated.
func (a *IndexActor) indexMovie(ctx context.Context, r model.MediaReadyForIndex, now time.Time) (model.DomainEvent, error) {
	existing, err := a.References.GetMovieByPath(ctx, r.LibraryID, r.PathNorm)
	if err != nil {
		return model.DomainEvent{}, errs.New(errs.KindStorage, "index.get_movie", "look up existing movie reference", err)
	}
	if existing != nil && existing.Fingerprint.Equal(r.Fingerprint) {
		return model.DomainEvent{}, nil
	}
	id := ids.NewMovieId()
	createdAt := now
	kind := model.DomainEventMovieAdded
	if existing != nil {
		id = existing.ID
		createdAt = existing.CreatedAt
		kind = model.DomainEventMovieUpdated
	}

	movieID, err := a.References.UpsertMovie(ctx, model.MovieReference{
		ID:          id,
		LibraryID:   r.LibraryID,
		PathNorm:    r.PathNorm,
		Title:       r.Title,
		Year:        r.Year,
		Fingerprint: r.Fingerprint,
		Technical:   r.Technical,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	})
	if err != nil {
		return model.DomainEvent{}, errs.New(errs.KindStorage, "index.upsert_movie", "commit movie reference", err)
	}

	event := model.DomainEvent{
		Kind:       kind,
		MediaID:    ids.NewMovieMediaId(movieID),
		OccurredAt: now,
	}
	a.Publisher.PublishDomain(event)
	return event, nil
}

// indexEpisode upserts a season row and an episode reference under
// it. Like indexMovie, it compares the incoming fingerprint against
// any existing episode reference first and, when unchanged, returns
// before touching the season or episode rows at all — a no-op replay
// not merely a no-op episode write.
func (a *IndexActor) indexEpisode(ctx context.Context, r model.MediaReadyForIndex, now time.Time) (model.DomainEvent, error) {
	if r.SeriesRef == nil {
		return model.DomainEvent{}, errs.New(errs.KindInvariant, "index.episode", "episode has no resolved series reference", nil)
	}
	seriesID := *r.SeriesRef
	seasonNumber := r.Season

	existing, err := a.References.GetEpisodeByPath(ctx, seriesID, r.PathNorm)
	if err != nil {
		return model.DomainEvent{}, errs.New(errs.KindStorage, "index.get_episode", "look up existing episode reference", err)
	}
	if existing != nil && existing.Fingerprint.Equal(r.Fingerprint) {
		return model.DomainEvent{}, nil
	}

	seasonPath := seasonPathFor(r.Hierarchy, r.PathNorm)
	season, err := a.References.GetSeason(ctx, seriesID, seasonNumber)
	if err != nil {
		return model.DomainEvent{}, errs.New(errs.KindStorage, "index.get_season", "look up existing season reference", err)
	}
	seasonID := ids.NewSeasonId()
	seasonCreatedAt := now
	if season != nil {
		seasonID = season.ID
		seasonCreatedAt = season.CreatedAt
	}
	seasonID, err = a.References.UpsertSeason(ctx, model.SeasonReference{
		ID:        seasonID,
		SeriesID:  seriesID,
		Number:    seasonNumber,
		PathNorm:  seasonPath,
		CreatedAt: seasonCreatedAt,
		UpdatedAt: now,
	})
	if err != nil {
		return model.DomainEvent{}, errs.New(errs.KindStorage, "index.upsert_season", "commit season reference", err)
	}

	id := ids.NewEpisodeId()
	createdAt := now
	kind := model.DomainEventEpisodeAdded
	if existing != nil {
		id = existing.ID
		createdAt = existing.CreatedAt
		kind = model.DomainEventEpisodeUpdated
	}

	episodeID, err := a.References.UpsertEpisode(ctx, model.EpisodeReference{
		ID:          id,
		SeasonID:    seasonID,
		SeriesID:    seriesID,
		PathNorm:    r.PathNorm,
		Title:       r.Title,
		Number:      r.Episode,
		Fingerprint: r.Fingerprint,
		Technical:   r.Technical,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	})
	if err != nil {
		return model.DomainEvent{}, errs.New(errs.KindStorage, "index.upsert_episode", "commit episode reference", err)
	}

	event := model.DomainEvent{
		Kind:       kind,
		MediaID:    ids.NewEpisodeMediaId(episodeID),
		OccurredAt: now,
	}
	a.Publisher.PublishDomain(event)
	return event, nil
}

// seasonPathFor derives a season folder path from the scanned file's
// hierarchy when available, falling back to the file's own parent
// directory so a season reference always has a stable path key.
func seasonPathFor(hierarchy []string, pathNorm string) string {
	if len(hierarchy) > 0 {
		return hierarchy[len(hierarchy)-1]
	}
	return path.Dir(pathNorm)
}
