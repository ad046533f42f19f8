// Package pipeline implements the four per-subject job actors the
// Orchestrator drives: Scan, Analyze, Resolve, and Index.
// Each actor is a plain function over its job type and dependencies —
// the Orchestrator owns concurrency, retry, and queuing; actors
// communicate only through their return values, the stores they're
// handed, and the per-scan VisitedSet cycle guard.
package pipeline

import (
	"context"
	"log/slog"
	"path"
	"time"

	"ferrex/internal/classify"
	"ferrex/internal/cursorstore"
	"ferrex/internal/errs"
	"ferrex/internal/folderstore"
	"ferrex/internal/fsport"
	"ferrex/internal/ids"
	"ferrex/internal/listinghash"
	"ferrex/internal/logging"
	"ferrex/internal/model"
)

// ScanResult is everything the Scan actor discovered for one folder:
// the child folders and media files to enqueue next, or nothing when
// the cursor says the listing is unchanged.
type ScanResult struct {
	Unchanged  bool
	ChildJobs  []model.ScanFolderJob
	MediaJobs  []model.MediaAnalyzeJob
}

// ScanActor walks one folder per job. AllowZeroLength mirrors demo.allow_zero_length.
type ScanActor struct {
	FS               fsport.FS
	Folders          *folderstore.Store
	Cursors          *cursorstore.Store
	Logger           *slog.Logger
	MaxTraversalDepth int
	AllowZeroLength  bool
}

// Run executes one ScanFolderJob to completion. visited is the scan
// run's shared cycle guard; pass nil to disable cycle detection.
func (a *ScanActor) Run(ctx context.Context, job model.ScanFolderJob, folder model.FolderInventory, depth int, visited *VisitedSet) (ScanResult, error) {
	if folder.Status == model.FolderStatusScanning {
		return ScanResult{Unchanged: true}, nil
	}

	canon := folder.PathNorm
	if c, err := a.FS.Canonicalize(ctx, folder.PathNorm); err == nil {
		canon = c
	}
	if visited != nil && !visited.Visit(canon) {
		a.warnCycle(folder.PathNorm, canon)
		if err := a.Folders.MarkProcessed(ctx, folder.ID); err != nil {
			return ScanResult{}, errs.New(errs.KindStorage, "scan.mark_processed", "mark processed", err)
		}
		return ScanResult{Unchanged: true}, nil
	}
	// A retried job must not look like a cycle on its next attempt.
	committed := false
	if visited != nil {
		defer func() {
			if !committed {
				visited.Forget(canon)
			}
		}()
	}

	if err := a.Folders.UpdateStatus(ctx, folder.ID, model.FolderStatusScanning, ""); err != nil {
		return ScanResult{}, errs.New(errs.KindStorage, "scan.update_status", "mark folder scanning", err)
	}

	entries, err := a.FS.ListDir(ctx, folder.PathNorm)
	if err != nil {
		a.fail(ctx, folder.ID, err)
		return ScanResult{}, errs.New(errs.KindFilesystem, "scan.list_dir", "list directory", err)
	}

	hash := listinghash.Compute(entries)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}

	cursorID := model.CursorID{LibraryID: job.LibraryID.String(), PathHash: cursorstore.PathHash(folder.PathNorm)}
	if job.Mode != model.ScanModeFullRescan {
		stored, err := a.Cursors.Get(ctx, cursorID)
		if err != nil {
			a.fail(ctx, folder.ID, err)
			return ScanResult{}, errs.New(errs.KindStorage, "scan.get_cursor", "load cursor", err)
		}
		if diff := cursorstore.Diff(stored, hash, names); !diff.RequiresScan() {
			if err := a.Folders.MarkProcessed(ctx, folder.ID); err != nil {
				return ScanResult{}, errs.New(errs.KindStorage, "scan.mark_processed", "mark processed", err)
			}
			committed = true
			return ScanResult{Unchanged: true}, nil
		}
	}

	result := ScanResult{}
	var totalFiles, processedFiles int
	var totalSize int64
	fileTypes := map[string]struct{}{}

	for _, e := range entries {
		if ctx.Err() != nil {
			return ScanResult{}, ctx.Err()
		}
		childPath := path.Join(folder.PathNorm, e.Name)

		if e.IsDir {
			if depth >= a.MaxTraversalDepth {
				continue
			}
			childCanon, err := a.FS.Canonicalize(ctx, childPath)
			if err != nil {
				continue
			}
			if visited != nil && visited.Seen(childCanon) {
				a.warnCycle(childPath, childCanon)
				continue
			}

			childID, err := a.Folders.Upsert(ctx, model.FolderInventory{
				LibraryID:      job.LibraryID,
				ParentFolderID: &folder.ID,
				PathNorm:       childPath,
				Kind:           childKind(folder.Kind, e.Name),
				Status:         model.FolderStatusPending,
				FirstSeenAt:    time.Now(),
			})
			if err != nil {
				continue
			}
			result.ChildJobs = append(result.ChildJobs, model.ScanFolderJob{
				LibraryID: job.LibraryID,
				FolderID:  childID,
				Mode:      job.Mode,
			})
			continue
		}

		if e.Size == 0 && !a.AllowZeroLength {
			continue
		}

		totalFiles++
		processedFiles++
		totalSize += e.Size
		ext := path.Ext(e.Name)
		fileTypes[ext] = struct{}{}

		classification := classify.File(e.Name)
		fp := model.MediaFingerprint{PathNorm: childPath, SizeBytes: e.Size, MtimeMillis: e.MtimeMs}

		result.MediaJobs = append(result.MediaJobs, model.MediaAnalyzeJob{
			LibraryID:   job.LibraryID,
			Variant:     classification.Kind,
			PathNorm:    childPath,
			Fingerprint: fp,
			Node:        e.Name,
			Title:       classification.Title,
			Year:        classification.Year,
			Season:      classification.Season,
			Episode:     classification.Episode,
		})
	}

	if err := a.Folders.UpdateStats(ctx, folder.ID, totalFiles, processedFiles, totalSize, fileTypes); err != nil {
		return ScanResult{}, errs.New(errs.KindStorage, "scan.update_stats", "update folder stats", err)
	}
	now := time.Now()
	if err := a.Cursors.Upsert(ctx, model.ScanCursor{
		ID:             cursorID,
		FolderPathNorm: folder.PathNorm,
		ListingHash:    hash,
		EntryCount:     len(entries),
		EntryNames:     names,
		LastScanAt:     now,
		LastModifiedAt: now,
	}); err != nil {
		return ScanResult{}, errs.New(errs.KindStorage, "scan.upsert_cursor", "upsert cursor", err)
	}
	if err := a.Folders.MarkProcessed(ctx, folder.ID); err != nil {
		return ScanResult{}, errs.New(errs.KindStorage, "scan.mark_processed", "mark processed", err)
	}

	committed = true
	return result, nil
}

func (a *ScanActor) fail(ctx context.Context, id ids.FolderId, cause error) {
	next := time.Now().Add(30 * time.Second)
	_ = a.Folders.RecordError(ctx, id, cause, &next)
}

func (a *ScanActor) warnCycle(path, canon string) {
	if a.Logger == nil {
		return
	}
	a.Logger.Warn("symlink cycle detected, breaking traversal", logging.Args(
		logging.String("path", path),
		logging.String("canonical", canon))...)
}

// childKind infers a discovered subdirectory's role from its parent's
// kind and its own name.
func childKind(parentKind model.FolderKind, name string) model.FolderKind {
	if parentKind == model.FolderKindRoot {
		return model.FolderKindSeries
	}
	if _, ok := classify.SeasonNumber(name); ok {
		return model.FolderKindSeason
	}
	return model.FolderKindUnknown
}
