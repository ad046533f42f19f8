package progress

import (
	"sort"
	"sync"
	"time"

	"ferrex/internal/ids"
	"ferrex/internal/model"
)

// stageWindow is a small rolling sample of recent stage latencies used
// to estimate a p95. A fixed-size ring keeps the estimate cheap and
// bounded in memory; exact percentile tracking isn't needed for an
// operator-facing progress figure.
type stageWindow struct {
	samples [128]time.Duration
	count   int
	next    int
}

func (w *stageWindow) observe(d time.Duration) {
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	if w.count < len(w.samples) {
		w.count++
	}
}

func (w *stageWindow) p95Ms() int64 {
	if w.count == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), w.samples[:w.count]...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (len(sorted) * 95) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx].Milliseconds()
}

// Tracker accumulates one scan's progress counters and stage latency
// samples, and renders them into a ScanSnapshot on demand.
type Tracker struct {
	mu sync.Mutex

	scanID         ids.ScanId
	libraryID      ids.LibraryId
	correlationID  string
	idempotencyKey string

	status            model.ScanStatus
	totalItems        int
	completedItems    int
	retryingItems     int
	deadLetteredItems int
	currentPath       string
	pathKey           string
	sequence          uint64

	scanLatency    stageWindow
	analyzeLatency stageWindow
	indexLatency   stageWindow
}

// NewTracker starts a Tracker for one scan run.
func NewTracker(scanID ids.ScanId, libraryID ids.LibraryId, correlationID, idempotencyKey string) *Tracker {
	return &Tracker{
		scanID:         scanID,
		libraryID:      libraryID,
		correlationID:  correlationID,
		idempotencyKey: idempotencyKey,
		status:         model.ScanStatusPending,
	}
}

// SetStatus transitions the tracked scan's status.
func (t *Tracker) SetStatus(status model.ScanStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

// SetTotal records the discovered item count for the scan's denominator.
func (t *Tracker) SetTotal(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalItems = total
}

// AddTotal grows the scan's denominator as new units of work are
// discovered mid-scan (child folders, media files, series-root resolve
// subjects): every unit the Orchestrator ever r.wg.Add()s is also
// counted here, so WithinBudget holds for the whole run, not just its
// initial roots.
func (t *Tracker) AddTotal(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalItems += delta
}

// Status returns the tracked scan's current lifecycle status.
func (t *Tracker) Status() model.ScanStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// RecordCompleted increments the completed counter and updates the
// current path cursor shown to operators.
func (t *Tracker) RecordCompleted(path, pathKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completedItems++
	t.currentPath = path
	t.pathKey = pathKey
}

// RecordRetrying adjusts the retrying counter by delta (+1 on entering
// backoff, -1 on leaving it).
func (t *Tracker) RecordRetrying(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.retryingItems += delta
}

// RecordDeadLettered increments the dead-letter counter.
func (t *Tracker) RecordDeadLettered() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadLetteredItems++
}

// ObserveStageLatency folds one stage completion's duration into its
// rolling p95 window.
func (t *Tracker) ObserveStageLatency(stage string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch stage {
	case "scan":
		t.scanLatency.observe(d)
	case "analyze":
		t.analyzeLatency.observe(d)
	case "index":
		t.indexLatency.observe(d)
	}
}

// Snapshot renders the tracker's current state as a ScanSnapshot,
// honoring the WithinBudget invariant by construction. The sequence
// reported is the last emitted one; use EmitSnapshot when publishing.
func (t *Tracker) Snapshot(emittedAt time.Time) model.ScanSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(emittedAt)
}

// EmitSnapshot advances the snapshot sequence and renders the state in
// one critical section, so every published ScanProgress carries a
// strictly greater sequence than the previous emission — including
// heartbeat emissions where no counter moved in between.
func (t *Tracker) EmitSnapshot(emittedAt time.Time) model.ScanSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sequence++
	return t.snapshotLocked(emittedAt)
}

func (t *Tracker) snapshotLocked(emittedAt time.Time) model.ScanSnapshot {
	return model.ScanSnapshot{
		Version:        1,
		ScanID:         t.scanID.String(),
		LibraryID:      t.libraryID.String(),
		Status:         t.status,
		CompletedItems: t.completedItems,
		TotalItems:     t.totalItems,
		Sequence:       t.sequence,
		CurrentPath:    t.currentPath,
		PathKey:        t.pathKey,
		P95StageLatenciesMs: model.StageLatencies{
			ScanP95Ms:    t.scanLatency.p95Ms(),
			AnalyzeP95Ms: t.analyzeLatency.p95Ms(),
			IndexP95Ms:   t.indexLatency.p95Ms(),
		},
		CorrelationID:     t.correlationID,
		IdempotencyKey:    t.idempotencyKey,
		EmittedAt:         emittedAt,
		RetryingItems:     t.retryingItems,
		DeadLetteredItems: t.deadLetteredItems,
	}
}
