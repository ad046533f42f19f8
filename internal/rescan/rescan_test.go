package rescan

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"ferrex/internal/config"
	"ferrex/internal/cursorstore"
	"ferrex/internal/eventbus"
	"ferrex/internal/folderstore"
	"ferrex/internal/fsport"
	"ferrex/internal/ids"
	"ferrex/internal/librarystore"
	"ferrex/internal/logging"
	"ferrex/internal/model"
	"ferrex/internal/orchestrator"
	"ferrex/internal/pipeline"
	"ferrex/internal/progress"
	"ferrex/internal/provider"
	"ferrex/internal/referencestore"
	"ferrex/internal/statemachine"
)

func newTestConsumer(t *testing.T) (*Consumer, *librarystore.Store, *eventbus.Durable) {
	t.Helper()

	folders, err := folderstore.Open(filepath.Join(t.TempDir(), "folders.db"))
	if err != nil {
		t.Fatalf("open folderstore: %v", err)
	}
	t.Cleanup(func() { folders.Close() })

	cursors, err := cursorstore.Open(filepath.Join(t.TempDir(), "cursors.db"))
	if err != nil {
		t.Fatalf("open cursorstore: %v", err)
	}
	t.Cleanup(func() { cursors.Close() })

	libs, err := librarystore.Open(filepath.Join(t.TempDir(), "libraries.db"))
	if err != nil {
		t.Fatalf("open librarystore: %v", err)
	}
	t.Cleanup(func() { libs.Close() })

	bus, err := eventbus.OpenDurable(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open event bus: %v", err)
	}
	t.Cleanup(func() { bus.Close() })

	fs := fsport.NewMemFS()
	fs.AddDir("/media")
	fs.AddFile("/media/Movie (2019).mkv", 1024, 0)

	machine := statemachine.New(statemachine.NewMemRepository())
	refs := referencestore.NewFakeRepository()
	broadcaster := progress.NewBroadcaster(16)
	client := provider.New(&provider.FakeSearcher{}, provider.DefaultConfig())

	cfg := config.Default().Scan
	deps := orchestrator.Deps{
		Folders: folders,
		Cursors: cursors,
		Machine: machine,
		Scan:    &pipeline.ScanActor{FS: fs, Folders: folders, Cursors: cursors, MaxTraversalDepth: 8},
		Analyze: &pipeline.AnalyzeActor{FFProbeBinary: "ferrex-test-ffprobe-does-not-exist", Logger: logging.NewNop()},
		Resolve: &pipeline.ResolveActor{Provider: client, Machine: machine, References: refs, MaxAttempts: cfg.MaxRetryAttempts},
		Index:   &pipeline.IndexActor{References: refs, Publisher: broadcaster},
		Publisher: broadcaster,
		Logger:    logging.NewNop(),
	}

	o := orchestrator.New(deps, cfg)
	o.Start(context.Background())
	t.Cleanup(o.Shutdown)

	c := &Consumer{Bus: bus, Libraries: libs, Folders: folders, Orchestrator: o, Logger: logging.NewNop()}
	return c, libs, bus
}

func watchedLibrary(t *testing.T, libs *librarystore.Store) ids.LibraryId {
	t.Helper()
	libID, err := libs.Upsert(context.Background(), model.Library{
		Name: "Movies", Type: model.LibraryTypeMovies, RootPaths: []string{"/media"},
		Enabled: true, WatchForChanges: true, ScanIntervalMins: 60,
	})
	if err != nil {
		t.Fatalf("Upsert library: %v", err)
	}
	return libID
}

func publishChange(t *testing.T, bus eventbus.Bus, libID ids.LibraryId, id, path string, detectedAt time.Time) {
	t.Helper()
	if err := bus.Publish(context.Background(), model.FileWatchEvent{
		ID:         id,
		LibraryID:  libID,
		EventType:  model.FileChangeCreated,
		FilePath:   path,
		DetectedAt: detectedAt,
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func waitForIdle(t *testing.T, o *orchestrator.Orchestrator) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if len(o.ActiveScans()) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("admitted scan never reached a terminal state")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDrainAdmitsIncrementalScanAndAdvancesCursor(t *testing.T) {
	c, libs, bus := newTestConsumer(t)
	ctx := context.Background()
	libID := watchedLibrary(t, libs)

	base := time.Now().Add(-time.Minute)
	publishChange(t, bus, libID, "e1", "/media/Movie (2019).mkv", base)
	publishChange(t, bus, libID, "e2", "/media/Other (2020).mkv", base.Add(time.Second))

	c.Drain(ctx)
	waitForIdle(t, c.Orchestrator)

	cursor, err := bus.GetCursor(ctx, Group, libID)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if cursor == nil || cursor.LastEventID != "e2" {
		t.Fatalf("expected cursor at e2 after drain, got %+v", cursor)
	}

	unprocessed, err := bus.GetUnprocessedEvents(ctx, libID, 10)
	if err != nil {
		t.Fatalf("GetUnprocessedEvents: %v", err)
	}
	if len(unprocessed) != 0 {
		t.Fatalf("expected all events marked processed, %d remain", len(unprocessed))
	}
}

func TestDrainResumesPastCommittedCursor(t *testing.T) {
	c, libs, bus := newTestConsumer(t)
	ctx := context.Background()
	libID := watchedLibrary(t, libs)

	base := time.Now().Add(-time.Minute)
	publishChange(t, bus, libID, "e1", "/media/a.mkv", base)
	publishChange(t, bus, libID, "e2", "/media/b.mkv", base.Add(time.Second))

	c.Drain(ctx)
	waitForIdle(t, c.Orchestrator)

	// Simulate a restart: a second drain over the same backlog must see
	// nothing new and admit no further scan.
	publishChange(t, bus, libID, "e2", "/media/b.mkv", base.Add(time.Second)) // duplicate publish is a no-op
	c.Drain(ctx)

	if active := c.Orchestrator.ActiveScans(); len(active) != 0 {
		t.Fatalf("expected no scan admitted for an already-consumed backlog, got %+v", active)
	}

	publishChange(t, bus, libID, "e3", "/media/c.mkv", base.Add(2*time.Second))
	c.Drain(ctx)
	waitForIdle(t, c.Orchestrator)

	cursor, err := bus.GetCursor(ctx, Group, libID)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if cursor == nil || cursor.LastEventID != "e3" {
		t.Fatalf("expected cursor at e3, got %+v", cursor)
	}
}

func TestDrainSkipsLibraryWithoutWatchForChanges(t *testing.T) {
	c, libs, bus := newTestConsumer(t)
	ctx := context.Background()

	libID, err := libs.Upsert(ctx, model.Library{
		Name: "Movies", Type: model.LibraryTypeMovies, RootPaths: []string{"/media"},
		Enabled: true, WatchForChanges: false, ScanIntervalMins: 60,
	})
	if err != nil {
		t.Fatalf("Upsert library: %v", err)
	}
	publishChange(t, bus, libID, "e1", "/media/a.mkv", time.Now())

	c.Drain(ctx)

	cursor, err := bus.GetCursor(ctx, Group, libID)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if cursor != nil {
		t.Fatalf("expected no cursor for an unwatched library, got %+v", cursor)
	}
	if active := c.Orchestrator.ActiveScans(); len(active) != 0 {
		t.Fatalf("expected no scan admitted for an unwatched library, got %+v", active)
	}
}

func TestDrainOrdersEventsByDetectedAtThenID(t *testing.T) {
	c, libs, bus := newTestConsumer(t)
	ctx := context.Background()
	libID := watchedLibrary(t, libs)

	base := time.Now().Add(-time.Minute)
	// Publish out of order; the cursor must still land on the event with
	// the greatest (detected_at, id).
	publishChange(t, bus, libID, "e5", "/media/e.mkv", base.Add(4*time.Second))
	publishChange(t, bus, libID, "e1", "/media/a.mkv", base)
	publishChange(t, bus, libID, "e3", "/media/c.mkv", base.Add(2*time.Second))

	c.Drain(ctx)
	waitForIdle(t, c.Orchestrator)

	cursor, err := bus.GetCursor(ctx, Group, libID)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if cursor == nil || cursor.LastEventID != "e5" {
		t.Fatalf("expected cursor at e5 (latest detected_at), got %+v", cursor)
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	c, _, _ := newTestConsumer(t)
	c.PollInterval = time.Hour // never ticks during the test

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	c.Stop()
	c.Stop()
}

func TestDrainManyEventsAdmitsOneScanPerLibrary(t *testing.T) {
	c, libs, bus := newTestConsumer(t)
	ctx := context.Background()
	libID := watchedLibrary(t, libs)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 20; i++ {
		publishChange(t, bus, libID, fmt.Sprintf("e%02d", i), fmt.Sprintf("/media/f%02d.mkv", i), base.Add(time.Duration(i)*time.Second))
	}

	c.Drain(ctx)

	if active := c.Orchestrator.ActiveScans(); len(active) > 1 {
		t.Fatalf("expected at most one scan admitted for one library's burst, got %d", len(active))
	}
	waitForIdle(t, c.Orchestrator)
}
