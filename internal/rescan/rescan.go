// Package rescan consumes the file-change event bus and turns change
// bursts into incremental scans. It is the bus's primary subscriber:
// each poll drains the backlog past the group's committed cursor, acks
// every event (advancing the cursor over the contiguous acked prefix),
// and admits one incremental scan per library that changed. It also
// owns the bus's retention sweep and the folder inventory's stale
// marking, since both run on the same background cadence.
package rescan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ferrex/internal/eventbus"
	"ferrex/internal/folderstore"
	"ferrex/internal/librarystore"
	"ferrex/internal/logging"
	"ferrex/internal/model"
	"ferrex/internal/orchestrator"
)

// Group is the subscriber group name this consumer commits its cursors
// under. One group means one shared read position: restarting the
// daemon resumes exactly past the last acked event.
const Group = "scan_rescan"

const (
	defaultPollInterval    = 5 * time.Second
	maintenanceInterval    = 24 * time.Hour
	defaultStaleFolderDays = 30
)

// Consumer polls the event bus for each enabled, watch-for-changes
// library and admits incremental scans for the ones with fresh events.
type Consumer struct {
	Bus          eventbus.Bus
	Libraries    *librarystore.Store
	Folders      *folderstore.Store
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger

	// PollInterval is how often the backlog is drained. Defaults to 5s.
	PollInterval time.Duration
	// RetentionDays bounds how long processed events are kept. Zero
	// disables the retention sweep.
	RetentionDays int

	mu          sync.Mutex
	stop        chan struct{}
	done        chan struct{}
	lastSweepAt time.Time
}

// Start begins the poll loop. Cancel ctx or call Stop to halt it.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(ctx, c.stop, c.done)
	return nil
}

// Stop halts the poll loop, waiting for an in-progress drain to finish.
func (c *Consumer) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Consumer) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.Drain(ctx)
			c.maintain(ctx)
		}
	}
}

// Drain performs one poll pass: for every enabled library with
// watch-for-changes set, consume the backlog past the committed cursor
// and admit an incremental scan if anything changed. Exported so a
// one-shot caller can drain without running the loop.
func (c *Consumer) Drain(ctx context.Context) {
	libs, err := c.Libraries.ListEnabled(ctx)
	if err != nil {
		c.logger().Warn("rescan: failed to list enabled libraries", logging.Args(logging.Error(err))...)
		return
	}

	for _, lib := range libs {
		if !lib.WatchForChanges {
			continue
		}
		c.drainLibrary(ctx, lib)
	}
}

// drainLibrary consumes one library's backlog. Every event is acked and
// marked processed individually, so a crash mid-drain re-delivers only
// the unacked suffix on the next pass.
func (c *Consumer) drainLibrary(ctx context.Context, lib model.Library) {
	events, err := c.Bus.Subscribe(ctx, Group, lib.ID)
	if err != nil {
		c.logger().Warn("rescan: subscribe failed", logging.Args(
			logging.String("library_id", lib.ID.String()), logging.Error(err))...)
		return
	}

	var consumed int
	var last model.FileWatchEvent
	for event := range events {
		if err := c.Bus.Ack(ctx, Group, event.ID); err != nil {
			c.logger().Warn("rescan: ack failed", logging.Args(
				logging.String("event_id", event.ID), logging.Error(err))...)
			break
		}
		if err := c.Bus.MarkProcessed(ctx, event.ID); err != nil {
			c.logger().Warn("rescan: mark processed failed", logging.Args(
				logging.String("event_id", event.ID), logging.Error(err))...)
		}
		consumed++
		last = event
	}
	if consumed == 0 {
		return
	}

	c.logger().Info("rescan: file changes detected", logging.Args(
		logging.String("library_id", lib.ID.String()),
		logging.Int("events", consumed),
		logging.String("last_path", last.FilePath))...)

	_, err = c.Orchestrator.StartScan(ctx, orchestrator.Request{
		LibraryID:      lib.ID,
		RootPaths:      lib.RootPaths,
		Mode:           model.ScanModeIncremental,
		CorrelationID:  "rescan:" + lib.ID.String(),
		IdempotencyKey: "rescan:" + lib.ID.String() + ":" + last.ID,
	})
	if err != nil {
		c.logger().Warn("rescan: failed to admit incremental scan", logging.Args(
			logging.String("library_id", lib.ID.String()), logging.Error(err))...)
	}
}

// maintain runs the daily sweeps: event retention cleanup and marking
// long-unseen folders stale.
func (c *Consumer) maintain(ctx context.Context) {
	c.mu.Lock()
	due := time.Since(c.lastSweepAt) >= maintenanceInterval
	if due {
		c.lastSweepAt = time.Now()
	}
	c.mu.Unlock()
	if !due {
		return
	}

	if c.RetentionDays > 0 {
		deleted, err := c.Bus.CleanupRetention(ctx, c.RetentionDays)
		if err != nil {
			c.logger().Warn("rescan: retention cleanup failed", logging.Args(logging.Error(err))...)
		} else if deleted > 0 {
			c.logger().Info("rescan: retention cleanup", logging.Args(logging.Int64("deleted", deleted))...)
		}
	}

	if c.Folders == nil {
		return
	}
	libs, err := c.Libraries.ListEnabled(ctx)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-defaultStaleFolderDays * 24 * time.Hour)
	for _, lib := range libs {
		marked, err := c.Folders.CleanupStale(ctx, lib.ID, cutoff)
		if err != nil {
			c.logger().Warn("rescan: stale folder sweep failed", logging.Args(
				logging.String("library_id", lib.ID.String()), logging.Error(err))...)
			continue
		}
		if marked > 0 {
			c.logger().Info("rescan: marked stale folders", logging.Args(
				logging.String("library_id", lib.ID.String()), logging.Int64("marked", marked))...)
		}
	}
}

func (c *Consumer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
