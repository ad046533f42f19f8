package orchestrator

import (
	"path"
	"time"

	"ferrex/internal/cursorstore"
	"ferrex/internal/errs"
	"ferrex/internal/ids"
	"ferrex/internal/logging"
	"ferrex/internal/model"
)

func (o *Orchestrator) scanWorkerLoop() {
	for {
		id, w, ok := o.scanQueue.pop()
		if !ok {
			return
		}
		if r, ok := o.getRun(id); ok {
			o.processScanJob(r, w)
		}
	}
}

func (o *Orchestrator) analyzeWorkerLoop() {
	for {
		id, job, ok := o.analyzeQueue.pop()
		if !ok {
			return
		}
		if r, ok := o.getRun(id); ok {
			o.processAnalyzeJob(r, job)
		}
	}
}

func (o *Orchestrator) resolveWorkerLoop() {
	for {
		id, job, ok := o.resolveQueue.pop()
		if !ok {
			return
		}
		if r, ok := o.getRun(id); ok {
			o.processResolveJob(r, job)
		}
	}
}

func (o *Orchestrator) indexWorkerLoop() {
	for {
		id, item, ok := o.indexQueue.pop()
		if !ok {
			return
		}
		if r, ok := o.getRun(id); ok {
			o.processIndexJob(r, item)
		}
	}
}

// admitFolder accounts for and enqueues one folder's scan job. The
// work unit is released (r.wg.Done) immediately if the queue refuses
// the push — the run is canceled or its sub-queue was torn down.
func (o *Orchestrator) admitFolder(r *run, job model.ScanFolderJob, depth int) {
	r.wg.Add(1)
	r.tracker.AddTotal(1)
	if !o.scanQueue.push(r.ctx, r.id, scanWork{job: job, depth: depth}) {
		r.wg.Done()
	}
}

func (o *Orchestrator) admitMedia(r *run, job model.MediaAnalyzeJob) {
	r.wg.Add(1)
	r.tracker.AddTotal(1)
	if !o.analyzeQueue.push(r.ctx, r.id, job) {
		r.wg.Done()
	}
}

// subjectRetry classifies cause and either schedules retry after a
// generic backoff or gives the subject up to the dead-letter set.
// Unlike Resolve's own business-level retry loop (driven by
// ResolveOutcome), this handles infrastructure failures any stage can
// hit: a storage error looking up a folder, a transient index commit
// failure.
func (o *Orchestrator) subjectRetry(r *run, key string, cause error, retry, giveUp func()) {
	_, class := errs.Classify(cause)
	attempt := r.attempt(key)
	if class == errs.Transient && attempt < o.cfg.MaxRetryAttempts {
		r.tracker.RecordRetrying(1)
		d := backoff(attempt)
		time.AfterFunc(d, func() {
			r.tracker.RecordRetrying(-1)
			retry()
		})
		return
	}
	o.logger().Warn("dead-lettering subject", logging.Args(
		logging.String("scan_id", r.id.String()),
		logging.String("subject", key),
		logging.Error(cause),
	)...)
	r.tracker.RecordDeadLettered()
	giveUp()
}

func (o *Orchestrator) processScanJob(r *run, w scanWork) {
	if r.canceled() {
		r.wg.Done()
		return
	}

	folder, err := o.deps.Folders.GetByID(r.ctx, w.job.FolderID)
	if err != nil {
		o.subjectRetry(r, "folder:"+w.job.FolderID.String(), err,
			func() { o.requeueScan(r, w) },
			func() { r.wg.Done() })
		return
	}
	if folder == nil {
		r.tracker.RecordDeadLettered()
		r.wg.Done()
		return
	}

	start := time.Now()
	result, err := o.deps.Scan.Run(r.ctx, w.job, *folder, w.depth, r.visited)
	r.tracker.ObserveStageLatency("scan", time.Since(start))
	if err != nil {
		o.subjectRetry(r, "folder:"+w.job.FolderID.String(), err,
			func() { o.requeueScan(r, w) },
			func() { r.wg.Done() })
		return
	}

	for _, child := range result.ChildJobs {
		o.admitFolder(r, child, w.depth+1)
	}
	for _, media := range result.MediaJobs {
		o.admitMedia(r, media)
	}

	r.tracker.RecordCompleted(folder.PathNorm, pathKey(folder.PathNorm))
	o.emitProgress(r, false)
	r.wg.Done()
}

func (o *Orchestrator) requeueScan(r *run, w scanWork) {
	if !o.scanQueue.push(r.ctx, r.id, w) {
		r.wg.Done()
	}
}

func (o *Orchestrator) processAnalyzeJob(r *run, job model.MediaAnalyzeJob) {
	if r.canceled() {
		r.wg.Done()
		return
	}

	start := time.Now()
	analyzed, err := o.deps.Analyze.Run(r.ctx, job)
	r.tracker.ObserveStageLatency("analyze", time.Since(start))
	if err != nil {
		// AnalyzeActor only ever errors on context cancellation;
		// extraction failures are folded into analyzed.Technical == nil.
		r.wg.Done()
		return
	}

	if analyzed.Variant == model.MediaKindHintEpisode {
		o.routeEpisode(r, analyzed)
		return
	}

	indexJob := model.IndexJob{Reference: toReadyForIndex(analyzed, nil), Sequence: r.nextSequence()}
	if !o.indexQueue.push(r.ctx, r.id, indexWorkItem{movie: &indexJob}) {
		r.wg.Done()
	}
}

// routeEpisode finds the episode's series root, and either forwards it
// straight to Index (the root is already Resolved) or holds it in
// r.seriesPending until the root's single in-flight SeriesResolveJob
// completes.
func (o *Orchestrator) routeEpisode(r *run, analyzed model.MediaAnalyzed) {
	rootPath, folderName, err := o.seriesRootFor(r, analyzed.PathNorm)
	if err != nil {
		r.tracker.RecordDeadLettered()
		r.wg.Done()
		return
	}

	state, err := o.deps.Machine.State(r.ctx, r.libraryID, rootPath)
	if err != nil {
		r.tracker.RecordDeadLettered()
		r.wg.Done()
		return
	}

	if state != nil && state.ReadyForIndex() {
		indexJob := model.IndexJob{Reference: toReadyForIndex(analyzed, state.SeriesRef), Sequence: r.nextSequence()}
		if !o.indexQueue.push(r.ctx, r.id, indexWorkItem{movie: &indexJob}) {
			r.wg.Done()
		}
		return
	}
	if state != nil && state.Kind == model.SeriesStateFailed && state.Attempts >= o.cfg.MaxRetryAttempts {
		r.tracker.RecordDeadLettered()
		r.wg.Done()
		return
	}

	r.mu.Lock()
	r.seriesPending[rootPath] = append(r.seriesPending[rootPath], analyzed)
	first := !r.seriesInflight[rootPath]
	if first {
		r.seriesInflight[rootPath] = true
	}
	r.mu.Unlock()

	if !first {
		return
	}

	if state == nil {
		if err := o.deps.Machine.MarkSeeded(r.ctx, r.libraryID, rootPath, nil); err != nil {
			o.flushSeriesPending(r, rootPath, nil)
			return
		}
	}

	r.wg.Add(1)
	r.tracker.AddTotal(1)
	job := model.SeriesResolveJob{LibraryID: r.libraryID, SeriesRootPath: rootPath, FolderName: folderName}
	o.requeueResolve(r, job)
}

func (o *Orchestrator) processResolveJob(r *run, job model.SeriesResolveJob) {
	if r.canceled() {
		o.flushSeriesPending(r, job.SeriesRootPath, nil)
		r.wg.Done()
		return
	}

	key := "series:" + job.SeriesRootPath
	attempt := r.attempt(key)

	start := time.Now()
	outcome, err := o.deps.Resolve.Run(r.ctx, job, attempt)
	r.tracker.ObserveStageLatency("resolve", time.Since(start))
	if err != nil {
		o.subjectRetry(r, key, err,
			func() { o.requeueResolve(r, job) },
			func() {
				o.flushSeriesPending(r, job.SeriesRootPath, nil)
				r.wg.Done()
			})
		return
	}

	switch {
	case outcome.Ready != nil:
		seriesJob := model.SeriesIndexJob{Ready: *outcome.Ready}
		if !o.indexQueue.push(r.ctx, r.id, indexWorkItem{series: &seriesJob}) {
			o.flushSeriesPending(r, job.SeriesRootPath, nil)
			r.wg.Done()
		}
	case outcome.Retrying:
		r.tracker.RecordRetrying(1)
		time.AfterFunc(backoff(attempt), func() {
			r.tracker.RecordRetrying(-1)
			o.requeueResolve(r, job)
		})
	default:
		r.tracker.RecordDeadLettered()
		o.flushSeriesPending(r, job.SeriesRootPath, nil)
		r.wg.Done()
	}
}

func (o *Orchestrator) requeueResolve(r *run, job model.SeriesResolveJob) {
	if r.canceled() || !o.resolveQueue.push(r.ctx, r.id, job) {
		r.tracker.RecordDeadLettered()
		o.flushSeriesPending(r, job.SeriesRootPath, nil)
		r.wg.Done()
	}
}

// flushSeriesPending drains every episode held for rootPath, either
// forwarding them to Index (seriesRef != nil, resolution succeeded) or
// dropping them with their accounted work unit released (resolution
// permanently failed).
func (o *Orchestrator) flushSeriesPending(r *run, rootPath string, seriesRef *ids.SeriesId) {
	r.mu.Lock()
	pending := r.seriesPending[rootPath]
	delete(r.seriesPending, rootPath)
	delete(r.seriesInflight, rootPath)
	r.mu.Unlock()

	for _, analyzed := range pending {
		if seriesRef == nil {
			r.tracker.RecordDeadLettered()
			r.wg.Done()
			continue
		}
		indexJob := model.IndexJob{Reference: toReadyForIndex(analyzed, seriesRef), Sequence: r.nextSequence()}
		if !o.indexQueue.push(r.ctx, r.id, indexWorkItem{movie: &indexJob}) {
			r.wg.Done()
		}
	}
}

func (o *Orchestrator) processIndexJob(r *run, item indexWorkItem) {
	if item.series != nil {
		o.processSeriesIndex(r, *item.series)
		return
	}
	o.processMediaIndex(r, *item.movie)
}

func (o *Orchestrator) processMediaIndex(r *run, job model.IndexJob) {
	if r.canceled() {
		r.wg.Done()
		return
	}

	key := "index:" + job.Reference.PathNorm
	start := time.Now()
	_, err := o.deps.Index.Run(r.ctx, job)
	r.tracker.ObserveStageLatency("index", time.Since(start))
	if err != nil {
		o.subjectRetry(r, key, err,
			func() {
				if !o.indexQueue.push(r.ctx, r.id, indexWorkItem{movie: &job}) {
					r.wg.Done()
				}
			},
			func() { r.wg.Done() })
		return
	}

	r.tracker.RecordCompleted(job.Reference.PathNorm, pathKey(job.Reference.PathNorm))
	o.emitProgress(r, false)
	r.wg.Done()
}

func (o *Orchestrator) processSeriesIndex(r *run, job model.SeriesIndexJob) {
	if r.canceled() {
		o.flushSeriesPending(r, job.Ready.RootPath, nil)
		r.wg.Done()
		return
	}

	key := "index_series:" + job.Ready.RootPath
	start := time.Now()
	seriesID, err := o.deps.Index.RunSeries(r.ctx, job)
	r.tracker.ObserveStageLatency("index", time.Since(start))
	if err != nil {
		o.subjectRetry(r, key, err,
			func() {
				if !o.indexQueue.push(r.ctx, r.id, indexWorkItem{series: &job}) {
					o.flushSeriesPending(r, job.Ready.RootPath, nil)
					r.wg.Done()
				}
			},
			func() {
				o.flushSeriesPending(r, job.Ready.RootPath, nil)
				r.wg.Done()
			})
		return
	}

	r.tracker.RecordCompleted(job.Ready.RootPath, pathKey(job.Ready.RootPath))
	o.emitProgress(r, false)
	o.flushSeriesPending(r, job.Ready.RootPath, &seriesID)
	r.wg.Done()
}

// seriesRootFor walks pathNorm's ancestry looking for the nearest
// FolderKindSeries folder, working around MediaAnalyzeJob/MediaAnalyzed
// not carrying a populated Hierarchy: the Scan actor never fills it in,
// so the Orchestrator re-derives the series root from folderstore
// instead of trusting analyzed.Hierarchy.
func (o *Orchestrator) seriesRootFor(r *run, pathNorm string) (rootPath, folderName string, err error) {
	dir := path.Dir(pathNorm)
	for dir != "." && dir != "/" {
		f, ferr := o.deps.Folders.GetByPath(r.ctx, r.libraryID, dir)
		if ferr != nil {
			return "", "", ferr
		}
		if f != nil && f.Kind == model.FolderKindSeries {
			return dir, path.Base(dir), nil
		}
		parent := path.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	fallback := path.Dir(pathNorm)
	return fallback, path.Base(fallback), nil
}

func toReadyForIndex(a model.MediaAnalyzed, seriesRef *ids.SeriesId) model.MediaReadyForIndex {
	return model.MediaReadyForIndex{
		LibraryID:   a.LibraryID,
		Variant:     a.Variant,
		PathNorm:    a.PathNorm,
		Fingerprint: a.Fingerprint,
		Hierarchy:   a.Hierarchy,
		Title:       a.Title,
		Year:        a.Year,
		Season:      a.Season,
		Episode:     a.Episode,
		Technical:   a.Technical,
		SeriesRef:   seriesRef,
	}
}

// pathKey reuses the cursor store's stable path hash as the snapshot's
// path_key, rather than inventing a second hashing scheme.
func pathKey(p string) string {
	return cursorstore.PathHash(p)
}
