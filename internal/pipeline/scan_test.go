package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"ferrex/internal/cursorstore"
	"ferrex/internal/folderstore"
	"ferrex/internal/fsport"
	"ferrex/internal/ids"
	"ferrex/internal/model"
)

func newTestScanActor(t *testing.T) (*ScanActor, *fsport.MemFS, ids.LibraryId) {
	t.Helper()
	folders, err := folderstore.Open(filepath.Join(t.TempDir(), "folders.db"))
	if err != nil {
		t.Fatalf("folderstore.Open: %v", err)
	}
	t.Cleanup(func() { folders.Close() })

	cursors, err := cursorstore.Open(filepath.Join(t.TempDir(), "cursors.db"))
	if err != nil {
		t.Fatalf("cursorstore.Open: %v", err)
	}
	t.Cleanup(func() { cursors.Close() })

	fs := fsport.NewMemFS()
	actor := &ScanActor{
		FS:                fs,
		Folders:           folders,
		Cursors:           cursors,
		MaxTraversalDepth: 8,
	}
	return actor, fs, ids.NewLibraryId()
}

func TestScanActorEmitsMediaJobsAndChildFolders(t *testing.T) {
	actor, fs, libraryID := newTestScanActor(t)
	fs.AddDir("/movies")
	fs.AddFile("/movies/Inception (2010).mkv", 1024, 1000)
	fs.AddDir("/movies/Extras")

	folder := model.FolderInventory{
		LibraryID: libraryID,
		PathNorm:  "/movies",
		Kind:      model.FolderKindRoot,
		Status:    model.FolderStatusPending,
	}
	folder.ID, _ = actor.Folders.Upsert(context.Background(), folder)

	result, err := actor.Run(context.Background(), model.ScanFolderJob{
		LibraryID: libraryID,
		FolderID:  folder.ID,
		Mode:      model.ScanModeFullRescan,
	}, folder, 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.MediaJobs) != 1 {
		t.Fatalf("expected 1 media job, got %d", len(result.MediaJobs))
	}
	if result.MediaJobs[0].Title != "Inception" || result.MediaJobs[0].Year != 2010 {
		t.Fatalf("unexpected classification: %+v", result.MediaJobs[0])
	}
	if len(result.ChildJobs) != 1 {
		t.Fatalf("expected 1 child folder job, got %d", len(result.ChildJobs))
	}
}

func TestScanActorSkipsFolderAlreadyScanning(t *testing.T) {
	actor, fs, libraryID := newTestScanActor(t)
	fs.AddDir("/movies")

	folder := model.FolderInventory{
		LibraryID: libraryID,
		PathNorm:  "/movies",
		Kind:      model.FolderKindRoot,
		Status:    model.FolderStatusScanning,
	}
	folder.ID, _ = actor.Folders.Upsert(context.Background(), folder)

	result, err := actor.Run(context.Background(), model.ScanFolderJob{
		LibraryID: libraryID,
		FolderID:  folder.ID,
		Mode:      model.ScanModeFullRescan,
	}, folder, 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Unchanged {
		t.Fatalf("expected Unchanged for an already-scanning folder")
	}
}

func TestScanActorCursorModeSkipsUnchangedListing(t *testing.T) {
	actor, fs, libraryID := newTestScanActor(t)
	fs.AddDir("/movies")
	fs.AddFile("/movies/a.mkv", 10, 1)

	folder := model.FolderInventory{
		LibraryID: libraryID,
		PathNorm:  "/movies",
		Kind:      model.FolderKindRoot,
		Status:    model.FolderStatusPending,
	}
	folder.ID, _ = actor.Folders.Upsert(context.Background(), folder)

	job := model.ScanFolderJob{LibraryID: libraryID, FolderID: folder.ID, Mode: model.ScanModeCursor}

	first, err := actor.Run(context.Background(), job, folder, 0, nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Unchanged {
		t.Fatalf("first pass should not be Unchanged")
	}

	folder.Status = model.FolderStatusPending
	second, err := actor.Run(context.Background(), job, folder, 0, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.Unchanged {
		t.Fatalf("expected second pass to short-circuit on an unchanged cursor")
	}
}

func TestScanActorSkipsZeroLengthFilesUnlessAllowed(t *testing.T) {
	actor, fs, libraryID := newTestScanActor(t)
	fs.AddDir("/movies")
	fs.AddFile("/movies/placeholder.mkv", 0, 1)

	folder := model.FolderInventory{
		LibraryID: libraryID,
		PathNorm:  "/movies",
		Kind:      model.FolderKindRoot,
		Status:    model.FolderStatusPending,
	}
	folder.ID, _ = actor.Folders.Upsert(context.Background(), folder)

	result, err := actor.Run(context.Background(), model.ScanFolderJob{
		LibraryID: libraryID, FolderID: folder.ID, Mode: model.ScanModeFullRescan,
	}, folder, 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.MediaJobs) != 0 {
		t.Fatalf("expected zero-length file to be skipped, got %d media jobs", len(result.MediaJobs))
	}

	actor.AllowZeroLength = true
	result, err = actor.Run(context.Background(), model.ScanFolderJob{
		LibraryID: libraryID, FolderID: folder.ID, Mode: model.ScanModeFullRescan,
	}, folder, 0, nil)
	if err != nil {
		t.Fatalf("Run with AllowZeroLength: %v", err)
	}
	if len(result.MediaJobs) != 1 {
		t.Fatalf("expected zero-length file to be allowed, got %d media jobs", len(result.MediaJobs))
	}
}

func TestScanActorIncrementalModeSkipsUnchangedListing(t *testing.T) {
	actor, fs, libraryID := newTestScanActor(t)
	fs.AddDir("/movies")
	fs.AddFile("/movies/a.mkv", 10, 1)

	folder := model.FolderInventory{
		LibraryID: libraryID,
		PathNorm:  "/movies",
		Kind:      model.FolderKindRoot,
		Status:    model.FolderStatusPending,
	}
	folder.ID, _ = actor.Folders.Upsert(context.Background(), folder)

	job := model.ScanFolderJob{LibraryID: libraryID, FolderID: folder.ID, Mode: model.ScanModeIncremental}

	first, err := actor.Run(context.Background(), job, folder, 0, nil)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Unchanged || len(first.MediaJobs) != 1 {
		t.Fatalf("first incremental pass should scan fully, got %+v", first)
	}

	folder.Status = model.FolderStatusPending
	second, err := actor.Run(context.Background(), job, folder, 0, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.Unchanged {
		t.Fatalf("expected an incremental rescan of an unchanged tree to hit the cursor cache")
	}
	if len(second.MediaJobs) != 0 {
		t.Fatalf("expected zero analyze jobs on a cursor cache hit, got %d", len(second.MediaJobs))
	}
}

func TestScanActorFullRescanBypassesCursor(t *testing.T) {
	actor, fs, libraryID := newTestScanActor(t)
	fs.AddDir("/movies")
	fs.AddFile("/movies/a.mkv", 10, 1)

	folder := model.FolderInventory{
		LibraryID: libraryID,
		PathNorm:  "/movies",
		Kind:      model.FolderKindRoot,
		Status:    model.FolderStatusPending,
	}
	folder.ID, _ = actor.Folders.Upsert(context.Background(), folder)

	job := model.ScanFolderJob{LibraryID: libraryID, FolderID: folder.ID, Mode: model.ScanModeFullRescan}
	if _, err := actor.Run(context.Background(), job, folder, 0, nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	folder.Status = model.FolderStatusPending
	second, err := actor.Run(context.Background(), job, folder, 0, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Unchanged || len(second.MediaJobs) != 1 {
		t.Fatalf("expected a full rescan to rewalk despite a matching cursor, got %+v", second)
	}
}

func TestScanActorBreaksCycleAcrossJobs(t *testing.T) {
	actor, fs, libraryID := newTestScanActor(t)
	fs.AddDir("/shows")
	fs.AddFile("/shows/pilot.mkv", 10, 1)

	folder := model.FolderInventory{
		LibraryID: libraryID,
		PathNorm:  "/shows",
		Kind:      model.FolderKindRoot,
		Status:    model.FolderStatusPending,
	}
	folder.ID, _ = actor.Folders.Upsert(context.Background(), folder)

	visited := NewVisitedSet()
	job := model.ScanFolderJob{LibraryID: libraryID, FolderID: folder.ID, Mode: model.ScanModeFullRescan}

	first, err := actor.Run(context.Background(), job, folder, 0, visited)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Unchanged {
		t.Fatalf("first visit must not be treated as a cycle")
	}

	// A symlink cycle re-admits the same canonical path through a later
	// job; the shared visited set must break it.
	folder.Status = model.FolderStatusPending
	revisit, err := actor.Run(context.Background(), job, folder, 1, visited)
	if err != nil {
		t.Fatalf("revisit Run: %v", err)
	}
	if !revisit.Unchanged || len(revisit.MediaJobs) != 0 || len(revisit.ChildJobs) != 0 {
		t.Fatalf("expected revisit to be detected and broken, got %+v", revisit)
	}

	got, err := actor.Folders.GetByID(context.Background(), folder.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != model.FolderStatusProcessed {
		t.Fatalf("expected the cycle folder marked Processed, got %s", got.Status)
	}
}

func TestScanActorSkipsSymlinkedChildAlreadyVisited(t *testing.T) {
	actor, fs, libraryID := newTestScanActor(t)
	fs.AddDir("/shows")
	fs.AddDir("/shows/Alpha")
	fs.AddDir("/shows/Alpha/Season 01")
	fs.AddSymlink("/shows/Alpha/Season 01/loop", "/shows/Alpha")

	visited := NewVisitedSet()
	visited.Visit("/shows/Alpha") // the ancestor is already in this scan's path

	folder := model.FolderInventory{
		LibraryID: libraryID,
		PathNorm:  "/shows/Alpha/Season 01",
		Kind:      model.FolderKindSeason,
		Status:    model.FolderStatusPending,
	}
	folder.ID, _ = actor.Folders.Upsert(context.Background(), folder)

	result, err := actor.Run(context.Background(), model.ScanFolderJob{
		LibraryID: libraryID, FolderID: folder.ID, Mode: model.ScanModeFullRescan,
	}, folder, 2, visited)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.ChildJobs) != 0 {
		t.Fatalf("expected the symlinked ancestor not to be re-enqueued, got %d child jobs", len(result.ChildJobs))
	}
}

func TestScanActorRespectsMaxTraversalDepth(t *testing.T) {
	actor, fs, libraryID := newTestScanActor(t)
	fs.AddDir("/movies")
	fs.AddDir("/movies/nested")
	actor.MaxTraversalDepth = 0

	folder := model.FolderInventory{
		LibraryID: libraryID,
		PathNorm:  "/movies",
		Kind:      model.FolderKindRoot,
		Status:    model.FolderStatusPending,
	}
	folder.ID, _ = actor.Folders.Upsert(context.Background(), folder)

	result, err := actor.Run(context.Background(), model.ScanFolderJob{
		LibraryID: libraryID, FolderID: folder.ID, Mode: model.ScanModeFullRescan,
	}, folder, 0, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.ChildJobs) != 0 {
		t.Fatalf("expected depth limit to suppress child folder jobs, got %d", len(result.ChildJobs))
	}
}
