// Package orchestrator implements the Scan Orchestrator: the only
// component that runs the Scan, Analyze, Resolve, and Index actors
// concurrently. It owns admission/idempotency dedup, bounded
// fair-share worker pools per pipeline stage shared across every
// concurrently running scan, retry-with-backoff classified through
// internal/errs, dead-lettering, cooperative cancellation, pause and
// resume, and rate-limited progress snapshot emission.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ferrex/internal/config"
	"ferrex/internal/cursorstore"
	"ferrex/internal/errs"
	"ferrex/internal/folderstore"
	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/pipeline"
	"ferrex/internal/progress"
	"ferrex/internal/statemachine"
)

// Deps are the Orchestrator's collaborators: the four stage actors and
// the stores/ports they, and the Orchestrator itself, need.
type Deps struct {
	Folders   *folderstore.Store
	Cursors   *cursorstore.Store
	Machine   *statemachine.Machine
	Scan      *pipeline.ScanActor
	Analyze   *pipeline.AnalyzeActor
	Resolve   *pipeline.ResolveActor
	Index     *pipeline.IndexActor
	Publisher progress.Publisher
	Logger    *slog.Logger
}

// Request starts one scan run. RootPaths must be non-empty — callers
// (internal/schedule admission, a manual ferrexctl scan) derive it from the
// owning Library's configured roots.
type Request struct {
	LibraryID      ids.LibraryId
	RootPaths      []string
	Mode           model.ScanMode
	CorrelationID  string
	IdempotencyKey string
}

// ErrUnknownScan is returned by Pause/Resume/Cancel for a ScanId the
// Orchestrator has never admitted.
var ErrUnknownScan = errs.New(errs.KindInvariant, "orchestrator", "unknown scan id", nil)

type scanWork struct {
	job   model.ScanFolderJob
	depth int
}

type indexWorkItem struct {
	movie  *model.IndexJob
	series *model.SeriesIndexJob
}

// Orchestrator is the admission/concurrency/retry/DLQ authority.
// One Orchestrator serves every library; Start spins up its worker
// pools once, sized from cfg.Concurrency.
type Orchestrator struct {
	deps Deps
	cfg  config.ScanConfig

	mu            sync.Mutex
	runs          map[ids.ScanId]*run
	byIdempotency map[string]ids.ScanId

	scanQueue    *fairQueue[scanWork]
	analyzeQueue *fairQueue[model.MediaAnalyzeJob]
	resolveQueue *fairQueue[model.SeriesResolveJob]
	indexQueue   *fairQueue[indexWorkItem]

	workersOnce sync.Once
}

// New constructs an Orchestrator. Call Start before StartScan admits
// any work, or jobs will sit queued with no worker to drain them.
func New(deps Deps, cfg config.ScanConfig) *Orchestrator {
	return &Orchestrator{
		deps:          deps,
		cfg:           cfg,
		runs:          make(map[ids.ScanId]*run),
		byIdempotency: make(map[string]ids.ScanId),
		scanQueue:     newFairQueue[scanWork](64),
		analyzeQueue:  newFairQueue[model.MediaAnalyzeJob](256),
		resolveQueue:  newFairQueue[model.SeriesResolveJob](64),
		indexQueue:    newFairQueue[indexWorkItem](256),
	}
}

// Start launches the per-stage worker pools. Safe to call more than
// once; only the first call takes effect.
func (o *Orchestrator) Start(ctx context.Context) {
	o.workersOnce.Do(func() {
		for i := 0; i < max(1, o.cfg.Concurrency.Scan); i++ {
			go o.scanWorkerLoop()
		}
		for i := 0; i < max(1, o.cfg.Concurrency.Analyze); i++ {
			go o.analyzeWorkerLoop()
		}
		for i := 0; i < max(1, o.cfg.Concurrency.Resolve); i++ {
			go o.resolveWorkerLoop()
		}
		for i := 0; i < max(1, o.cfg.Concurrency.Index); i++ {
			go o.indexWorkerLoop()
		}
	})
}

// Shutdown closes every stage queue, unblocking all worker loops.
func (o *Orchestrator) Shutdown() {
	o.scanQueue.Close()
	o.analyzeQueue.Close()
	o.resolveQueue.Close()
	o.indexQueue.Close()
}

// StartScan admits a new scan, or returns the id of an already-running
// scan sharing the same (library, idempotency key) pair.
func (o *Orchestrator) StartScan(ctx context.Context, req Request) (ids.ScanId, error) {
	if req.IdempotencyKey == "" {
		return ids.ScanId{}, errs.New(errs.KindInvariant, "orchestrator.start_scan", "idempotency key required", nil)
	}
	if len(req.RootPaths) == 0 {
		return ids.ScanId{}, errs.New(errs.KindInvariant, "orchestrator.start_scan", "request has no root paths", nil)
	}
	if req.Mode == "" {
		req.Mode = model.ScanModeFullRescan
	}
	admissionKey := req.LibraryID.String() + "|" + req.IdempotencyKey

	o.mu.Lock()
	if id, ok := o.byIdempotency[admissionKey]; ok {
		if existing, ok := o.runs[id]; ok && !existing.tracker.Status().Terminal() {
			o.mu.Unlock()
			return id, nil
		}
	}

	r := newRun(ids.NewScanId(), req.LibraryID, req.CorrelationID, req.IdempotencyKey)
	o.runs[r.id] = r
	o.byIdempotency[admissionKey] = r.id
	o.mu.Unlock()

	o.scanQueue.register(r.id)
	o.analyzeQueue.register(r.id)
	o.resolveQueue.register(r.id)
	o.indexQueue.register(r.id)

	r.tracker.SetStatus(model.ScanStatusRunning)
	o.publishLifecycle(r, model.DomainEventScanStarted)

	roots, err := o.rootsFor(r.ctx, req)
	if err != nil {
		o.failScan(r, err)
		return r.id, nil
	}

	for _, root := range roots {
		o.admitFolder(r, model.ScanFolderJob{LibraryID: req.LibraryID, FolderID: root.ID, Mode: req.Mode}, 0)
	}

	go o.heartbeat(r)
	go func() {
		r.wg.Wait()
		o.finishScan(r)
	}()

	return r.id, nil
}

// rootsFor upserts every requested root path as a FolderKindRoot entry
// (idempotent on (library, path)) and returns the resulting
// rows so StartScan can admit them as the scan's initial work units.
func (o *Orchestrator) rootsFor(ctx context.Context, req Request) ([]model.FolderInventory, error) {
	out := make([]model.FolderInventory, 0, len(req.RootPaths))
	for _, p := range req.RootPaths {
		id, err := o.deps.Folders.Upsert(ctx, model.FolderInventory{
			LibraryID: req.LibraryID,
			PathNorm:  p,
			Kind:      model.FolderKindRoot,
			Status:    model.FolderStatusPending,
		})
		if err != nil {
			return nil, err
		}
		f, err := o.deps.Folders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, nil
}

// heartbeat forces a progress snapshot at least once a second so the
// lower half of the 1-10/s emission band holds even during a long
// single-item stall (e.g. a slow provider call).
func (o *Orchestrator) heartbeat(r *run) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			o.emitProgress(r, true)
		}
	}
}

func (o *Orchestrator) getRun(id ids.ScanId) (*run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runs[id]
	return r, ok
}

// Pause excludes scanID's queued work from every stage's fair-share
// rotation without touching in-flight jobs. Global workers stay
// fully available to other scans.
func (o *Orchestrator) Pause(scanID ids.ScanId) error {
	r, ok := o.getRun(scanID)
	if !ok {
		return ErrUnknownScan
	}
	if r.tracker.Status().Terminal() {
		return nil
	}
	r.tracker.SetStatus(model.ScanStatusPaused)
	o.scanQueue.setPaused(scanID, true)
	o.analyzeQueue.setPaused(scanID, true)
	o.resolveQueue.setPaused(scanID, true)
	o.indexQueue.setPaused(scanID, true)
	o.emitProgress(r, true)
	return nil
}

// Resume restores scanID to every stage's rotation.
func (o *Orchestrator) Resume(scanID ids.ScanId) error {
	r, ok := o.getRun(scanID)
	if !ok {
		return ErrUnknownScan
	}
	if r.tracker.Status() != model.ScanStatusPaused {
		return nil
	}
	r.tracker.SetStatus(model.ScanStatusRunning)
	o.scanQueue.setPaused(scanID, false)
	o.analyzeQueue.setPaused(scanID, false)
	o.resolveQueue.setPaused(scanID, false)
	o.indexQueue.setPaused(scanID, false)
	o.emitProgress(r, true)
	return nil
}

// Cancel stops scanID: in-flight actor calls observe ctx.Done() at
// their own I/O suspension points, and every item still sitting queued
// is dropped with its accounted work unit released immediately, so the
// run's WaitGroup reaches zero within the I/O layer's own cancellation
// latency rather than an arbitrary grace period.
func (o *Orchestrator) Cancel(scanID ids.ScanId) error {
	r, ok := o.getRun(scanID)
	if !ok {
		return ErrUnknownScan
	}
	if r.tracker.Status().Terminal() {
		return nil
	}
	r.cancel()
	for n := o.scanQueue.drop(scanID); n > 0; n-- {
		r.wg.Done()
	}
	for n := o.analyzeQueue.drop(scanID); n > 0; n-- {
		r.wg.Done()
	}
	for n := o.resolveQueue.drop(scanID); n > 0; n-- {
		r.wg.Done()
	}
	for n := o.indexQueue.drop(scanID); n > 0; n-- {
		r.wg.Done()
	}
	return nil
}

// Snapshot returns scanID's current ScanSnapshot.
func (o *Orchestrator) Snapshot(scanID ids.ScanId) (model.ScanSnapshot, bool) {
	r, ok := o.getRun(scanID)
	if !ok {
		return model.ScanSnapshot{}, false
	}
	return r.tracker.Snapshot(time.Now()), true
}

// ActiveScans returns a snapshot for every non-terminal scan.
func (o *Orchestrator) ActiveScans() []model.ScanSnapshot {
	o.mu.Lock()
	runs := make([]*run, 0, len(o.runs))
	for _, r := range o.runs {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	out := make([]model.ScanSnapshot, 0, len(runs))
	for _, r := range runs {
		snap := r.tracker.Snapshot(time.Now())
		if !snap.Status.Terminal() {
			out = append(out, snap)
		}
	}
	return out
}

func (o *Orchestrator) emitProgress(r *run, force bool) {
	if !r.shouldEmit(time.Now(), force) {
		return
	}
	snap := r.tracker.EmitSnapshot(time.Now())
	o.deps.Publisher.PublishDomain(model.DomainEvent{
		Kind:       model.DomainEventScanProgress,
		ScanID:     r.id,
		ScanMeta:   o.meta(r),
		Snapshot:   &snap,
		OccurredAt: snap.EmittedAt,
	})
}

func (o *Orchestrator) meta(r *run) model.ScanEventMeta {
	return model.ScanEventMeta{
		Version:        1,
		CorrelationID:  r.correlationID,
		IdempotencyKey: r.idempotencyKey,
		LibraryID:      r.libraryID,
	}
}

func (o *Orchestrator) publishLifecycle(r *run, kind model.DomainEventKind) {
	o.deps.Publisher.PublishDomain(model.DomainEvent{
		Kind:       kind,
		ScanID:     r.id,
		ScanMeta:   o.meta(r),
		OccurredAt: time.Now(),
	})
}

func (o *Orchestrator) publishFailure(r *run, reason model.ScanFailureReason, message string) {
	o.deps.Publisher.PublishDomain(model.DomainEvent{
		Kind:          model.DomainEventScanFailed,
		ScanID:        r.id,
		ScanMeta:      o.meta(r),
		FailureReason: reason,
		FailureError:  message,
		OccurredAt:    time.Now(),
	})
}

func (o *Orchestrator) failScan(r *run, err error) {
	r.tracker.SetStatus(model.ScanStatusFailed)
	o.publishFailure(r, model.ScanFailureReasonError, err.Error())
	o.cleanupRun(r)
}

func (o *Orchestrator) finishScan(r *run) {
	if r.ctx.Err() != nil {
		r.tracker.SetStatus(model.ScanStatusCanceled)
		o.publishFailure(r, model.ScanFailureReasonCanceled, "scan canceled")
	} else {
		r.tracker.SetStatus(model.ScanStatusCompleted)
		o.publishLifecycle(r, model.DomainEventScanCompleted)
	}
	o.cleanupRun(r)
}

// cleanupRun stops the run's heartbeat and drops it from every stage's
// rotation. The run itself stays in o.runs so Snapshot and the
// idempotency-key admission check can still see its terminal state.
func (o *Orchestrator) cleanupRun(r *run) {
	close(r.done)
	o.scanQueue.unregister(r.id)
	o.analyzeQueue.unregister(r.id)
	o.resolveQueue.unregister(r.id)
	o.indexQueue.unregister(r.id)
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.deps.Logger != nil {
		return o.deps.Logger
	}
	return slog.Default()
}
