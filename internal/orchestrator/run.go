package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ferrex/internal/ids"
	"ferrex/internal/model"
	"ferrex/internal/pipeline"
	"ferrex/internal/progress"
)

// run is one in-flight scan's mutable state. The Orchestrator owns the
// shared per-stage worker pools; run holds everything scoped to a
// single ScanId: its cancellation scope, progress tracker, the
// sync.WaitGroup tracking every outstanding unit of work, and the
// bookkeeping needed to route episodes to a series root still being
// resolved.
type run struct {
	id             ids.ScanId
	libraryID      ids.LibraryId
	correlationID  string
	idempotencyKey string

	ctx    context.Context
	cancel context.CancelFunc

	tracker *progress.Tracker
	wg      sync.WaitGroup
	seq     atomic.Uint64
	visited *pipeline.VisitedSet

	mu             sync.Mutex
	seriesPending  map[string][]model.MediaAnalyzed
	seriesInflight map[string]bool
	attempts       map[string]int

	emitMu   sync.Mutex
	lastEmit time.Time

	done chan struct{}
}

func newRun(id ids.ScanId, libraryID ids.LibraryId, correlationID, idempotencyKey string) *run {
	ctx, cancel := context.WithCancel(context.Background())
	return &run{
		id:             id,
		libraryID:      libraryID,
		correlationID:  correlationID,
		idempotencyKey: idempotencyKey,
		ctx:            ctx,
		cancel:         cancel,
		tracker:        progress.NewTracker(id, libraryID, correlationID, idempotencyKey),
		visited:        pipeline.NewVisitedSet(),
		seriesPending:  make(map[string][]model.MediaAnalyzed),
		seriesInflight: make(map[string]bool),
		attempts:       make(map[string]int),
		done:           make(chan struct{}),
	}
}

func (r *run) canceled() bool {
	return r.ctx.Err() != nil
}

func (r *run) nextSequence() uint64 {
	return r.seq.Add(1)
}

// attempt increments and returns the retry counter for a subject key
// (e.g. "folder:<id>", "index:<path>"). Each orchestrator-level retry
// loop keeps its own key namespace so counters never collide across
// stages.
func (r *run) attempt(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[key]++
	return r.attempts[key]
}

// shouldEmit rate-limits progress snapshot emission to at most 10/s
// per scan, unless force is set (status transitions, or the
// once-a-second heartbeat that guarantees the ≥1/s floor even when
// nothing has completed).
func (r *run) shouldEmit(now time.Time, force bool) bool {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if !force && now.Sub(r.lastEmit) < 100*time.Millisecond {
		return false
	}
	r.lastEmit = now
	return true
}
