package schedule

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ferrex/internal/config"
	"ferrex/internal/cursorstore"
	"ferrex/internal/folderstore"
	"ferrex/internal/fsport"
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

func newTestScheduler(t *testing.T) (*Scheduler, *librarystore.Store) {
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

	s := &Scheduler{Libraries: libs, Orchestrator: o, Logger: logging.NewNop()}
	return s, libs
}

func TestCheckAdmitsDueAutoScanLibrary(t *testing.T) {
	s, libs := newTestScheduler(t)
	ctx := context.Background()

	libID, err := libs.Upsert(ctx, model.Library{
		Name: "Movies", Type: model.LibraryTypeMovies, RootPaths: []string{"/media"},
		Enabled: true, AutoScan: true, ScanIntervalMins: 60,
	})
	if err != nil {
		t.Fatalf("Upsert library: %v", err)
	}

	s.check(ctx)

	got, err := libs.GetByID(ctx, libID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.NextScanAt == nil {
		t.Fatalf("expected check to stamp NextScanAt for a due library")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		active := s.Orchestrator.ActiveScans()
		if len(active) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scheduled scan never reached a terminal state")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCheckSkipsLibraryNotDueYet(t *testing.T) {
	s, libs := newTestScheduler(t)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	libID, err := libs.Upsert(ctx, model.Library{
		Name: "Movies", Type: model.LibraryTypeMovies, RootPaths: []string{"/media"},
		Enabled: true, AutoScan: true, ScanIntervalMins: 60, NextScanAt: &future,
	})
	if err != nil {
		t.Fatalf("Upsert library: %v", err)
	}

	s.check(ctx)

	got, err := libs.GetByID(ctx, libID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.NextScanAt.Equal(future) {
		t.Fatalf("expected NextScanAt to stay unchanged for a not-yet-due library, got %v", got.NextScanAt)
	}
}

func TestCheckSkipsDisabledAutoScan(t *testing.T) {
	s, libs := newTestScheduler(t)
	ctx := context.Background()

	if _, err := libs.Upsert(ctx, model.Library{
		Name: "Movies", Type: model.LibraryTypeMovies, RootPaths: []string{"/media"},
		Enabled: true, AutoScan: false, ScanIntervalMins: 60,
	}); err != nil {
		t.Fatalf("Upsert library: %v", err)
	}

	s.check(ctx)

	if active := s.Orchestrator.ActiveScans(); len(active) != 0 {
		t.Fatalf("expected no scans admitted for a library with AutoScan disabled, got %+v", active)
	}
}
