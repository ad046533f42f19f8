package pipeline

import (
	"context"
	"testing"

	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/progress"
	"ferrex/internal/referencestore"
)

func newTestIndexActor() (*IndexActor, *referencestore.FakeRepository, *progress.Broadcaster) {
	refs := referencestore.NewFakeRepository()
	bus := progress.NewBroadcaster(8)
	return &IndexActor{References: refs, Publisher: bus}, refs, bus
}

func TestIndexActorCommitsMovieAndPublishesAdded(t *testing.T) {
	actor, refs, bus := newTestIndexActor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := bus.Subscribe(ctx)

	libraryID := ids.NewLibraryId()
	event, err := actor.Run(context.Background(), model.IndexJob{
		Reference: model.MediaReadyForIndex{
			LibraryID: libraryID,
			Variant:   model.MediaKindHintMovie,
			PathNorm:  "/movies/Inception (2010).mkv",
			Title:     "Inception",
			Year:      2010,
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if event.Kind != model.DomainEventMovieAdded {
		t.Fatalf("expected movie_added, got %v", event.Kind)
	}

	stored, err := refs.GetMovieByPath(context.Background(), libraryID, "/movies/Inception (2010).mkv")
	if err != nil || stored == nil {
		t.Fatalf("expected a committed movie reference, err=%v stored=%v", err, stored)
	}

	select {
	case got := <-events:
		if got.Kind != model.DomainEventMovieAdded {
			t.Fatalf("expected subscriber to observe movie_added, got %v", got.Kind)
		}
	default:
		t.Fatalf("expected a published event on the broadcast channel")
	}
}

func TestIndexActorUpdatesExistingMovieOnChangedFingerprint(t *testing.T) {
	actor, _, _ := newTestIndexActor()
	libraryID := ids.NewLibraryId()
	first, err := actor.Run(context.Background(), model.IndexJob{Reference: model.MediaReadyForIndex{
		LibraryID: libraryID, Variant: model.MediaKindHintMovie,
		PathNorm: "/movies/Dune.mkv", Title: "Dune", Year: 2021,
		Fingerprint: model.MediaFingerprint{PathNorm: "/movies/Dune.mkv", SizeBytes: 100, MtimeMillis: 1000},
	}})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second, err := actor.Run(context.Background(), model.IndexJob{Reference: model.MediaReadyForIndex{
		LibraryID: libraryID, Variant: model.MediaKindHintMovie,
		PathNorm: "/movies/Dune.mkv", Title: "Dune", Year: 2021,
		Fingerprint: model.MediaFingerprint{PathNorm: "/movies/Dune.mkv", SizeBytes: 200, MtimeMillis: 2000},
	}})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Kind != model.DomainEventMovieUpdated {
		t.Fatalf("expected movie_updated when the fingerprint changed, got %v", second.Kind)
	}
	if first.MediaID.Movie != second.MediaID.Movie {
		t.Fatalf("expected the movie id to stay stable across rescans")
	}
}

func TestIndexActorReplayWithUnchangedFingerprintIsNoOp(t *testing.T) {
	actor, refs, bus := newTestIndexActor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := bus.Subscribe(ctx)

	libraryID := ids.NewLibraryId()
	job := model.IndexJob{Reference: model.MediaReadyForIndex{
		LibraryID: libraryID, Variant: model.MediaKindHintMovie,
		PathNorm: "/movies/alpha (2001).mkv", Title: "Alpha", Year: 2001,
		Fingerprint: model.MediaFingerprint{PathNorm: "/movies/alpha (2001).mkv", SizeBytes: 10, MtimeMillis: 1000},
	}}

	first, err := actor.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Kind != model.DomainEventMovieAdded {
		t.Fatalf("expected movie_added on first commit, got %v", first.Kind)
	}
	<-events // drain the first run's published event

	before, err := refs.GetMovieByPath(context.Background(), libraryID, job.Reference.PathNorm)
	if err != nil || before == nil {
		t.Fatalf("expected a committed movie reference, err=%v stored=%v", err, before)
	}

	second, err := actor.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("replay Run: %v", err)
	}
	if second.Kind != "" {
		t.Fatalf("expected a zero-value no-op event for an unchanged fingerprint, got %v", second.Kind)
	}

	select {
	case got := <-events:
		t.Fatalf("expected no event published for an unchanged-fingerprint replay, got %v", got.Kind)
	default:
	}

	after, err := refs.GetMovieByPath(context.Background(), libraryID, job.Reference.PathNorm)
	if err != nil || after == nil {
		t.Fatalf("expected the movie reference to still exist, err=%v stored=%v", err, after)
	}
	if after.ID != before.ID || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("expected no write on an unchanged-fingerprint replay, before=%+v after=%+v", before, after)
	}
}

func TestIndexActorEpisodeReplayWithUnchangedFingerprintIsNoOp(t *testing.T) {
	actor, refs, bus := newTestIndexActor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := bus.Subscribe(ctx)

	libraryID := ids.NewLibraryId()
	seriesID, err := actor.RunSeries(context.Background(), model.SeriesIndexJob{Ready: model.SeriesReadyForIndex{
		LibraryID: libraryID, RootPath: "/series/Dark", SeriesID: ids.NewSeriesId(),
		ProviderID: "tt2", Title: "Dark", Year: 2017,
	}})
	if err != nil {
		t.Fatalf("RunSeries: %v", err)
	}
	<-events // drain the series_added event

	job := model.IndexJob{Reference: model.MediaReadyForIndex{
		LibraryID: libraryID, Variant: model.MediaKindHintEpisode,
		PathNorm: "/series/Dark/Season 01/S01E01.mkv", Title: "Secrets", Season: 1, Episode: 1,
		Hierarchy:   []string{"/series/Dark", "/series/Dark/Season 01"},
		SeriesRef:   &seriesID,
		Fingerprint: model.MediaFingerprint{PathNorm: "/series/Dark/Season 01/S01E01.mkv", SizeBytes: 50, MtimeMillis: 500},
	}}

	first, err := actor.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Kind != model.DomainEventEpisodeAdded {
		t.Fatalf("expected episode_added on first commit, got %v", first.Kind)
	}
	<-events // drain the episode_added event

	second, err := actor.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("replay Run: %v", err)
	}
	if second.Kind != "" {
		t.Fatalf("expected a zero-value no-op event for an unchanged fingerprint, got %v", second.Kind)
	}

	select {
	case got := <-events:
		t.Fatalf("expected no event published for an unchanged-fingerprint replay, got %v", got.Kind)
	default:
	}

	episode, err := refs.GetEpisodeByPath(context.Background(), seriesID, job.Reference.PathNorm)
	if err != nil || episode == nil {
		t.Fatalf("expected the episode reference to still exist, err=%v stored=%v", err, episode)
	}
	if episode.ID != first.MediaID.Episode {
		t.Fatalf("expected the episode id to stay stable across the no-op replay")
	}
}

func TestIndexActorCommitsSeriesRootThenEpisode(t *testing.T) {
	actor, refs, _ := newTestIndexActor()
	libraryID := ids.NewLibraryId()

	seriesID, err := actor.RunSeries(context.Background(), model.SeriesIndexJob{Ready: model.SeriesReadyForIndex{
		LibraryID: libraryID, RootPath: "/series/Dark", SeriesID: ids.NewSeriesId(),
		ProviderID: "tt2", Title: "Dark", Year: 2017,
	}})
	if err != nil {
		t.Fatalf("RunSeries: %v", err)
	}

	event, err := actor.Run(context.Background(), model.IndexJob{Reference: model.MediaReadyForIndex{
		LibraryID: libraryID, Variant: model.MediaKindHintEpisode,
		PathNorm: "/series/Dark/Season 01/S01E01.mkv", Title: "Secrets", Season: 1, Episode: 1,
		Hierarchy: []string{"/series/Dark", "/series/Dark/Season 01"},
		SeriesRef: &seriesID,
	}})
	if err != nil {
		t.Fatalf("Run episode: %v", err)
	}
	if event.Kind != model.DomainEventEpisodeAdded {
		t.Fatalf("expected episode_added, got %v", event.Kind)
	}

	season, err := refs.GetSeason(context.Background(), seriesID, 1)
	if err != nil || season == nil {
		t.Fatalf("expected a committed season reference, err=%v season=%v", err, season)
	}
}

func TestIndexActorRejectsEpisodeWithoutSeriesRef(t *testing.T) {
	actor, _, _ := newTestIndexActor()
	_, err := actor.Run(context.Background(), model.IndexJob{Reference: model.MediaReadyForIndex{
		Variant: model.MediaKindHintEpisode, PathNorm: "/series/x/S01E01.mkv",
	}})
	if err == nil {
		t.Fatalf("expected an error for an episode with no resolved series reference")
	}
}
