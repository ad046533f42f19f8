// Package schedule implements the scheduled-scan trigger: it
// evaluates each Library's scan_interval/auto_scan policy on a cron
// tick and calls into the Orchestrator's admission API. The tick
// cadence itself is a cron expression so it stays
// operator-configurable.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"ferrex/internal/librarystore"
	"ferrex/internal/logging"
	"ferrex/internal/model"
	"ferrex/internal/orchestrator"
)

// Scheduler periodically checks every enabled, auto-scan library for a
// due scan and admits one through the Orchestrator.
type Scheduler struct {
	Libraries    *librarystore.Store
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger

	// CronExpr is the tick schedule, e.g. "@every 1m". Defaults to once
	// a minute.
	CronExpr string

	cron *cron.Cron
}

// Start begins the cron-driven check loop. Cancel ctx or call Stop to
// halt it.
func (s *Scheduler) Start(ctx context.Context) error {
	expr := s.CronExpr
	if expr == "" {
		expr = "@every 1m"
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(expr, func() { s.check(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for any in-progress check to
// finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// check admits a scan for every enabled library whose next_scan_at has
// elapsed, then advances next_scan_at immediately so a slow admission
// path can't cause the same library to fire twice in one tick.
func (s *Scheduler) check(ctx context.Context) {
	libs, err := s.Libraries.ListEnabled(ctx)
	if err != nil {
		s.logger().Warn("schedule: failed to list enabled libraries", logging.Args(logging.Error(err))...)
		return
	}

	now := time.Now()
	for _, lib := range libs {
		if !lib.AutoScan || !due(lib, now) {
			continue
		}

		next := now.Add(time.Duration(lib.ScanIntervalMins) * time.Minute)
		if err := s.Libraries.RecordScan(ctx, lib.ID, lib.LastScanAt, &next); err != nil {
			s.logger().Warn("schedule: failed to advance next_scan_at", logging.Args(
				logging.String("library_id", lib.ID.String()), logging.Error(err))...)
			continue
		}

		_, err := s.Orchestrator.StartScan(ctx, orchestrator.Request{
			LibraryID:      lib.ID,
			RootPaths:      lib.RootPaths,
			Mode:           model.ScanModeCursor,
			CorrelationID:  "schedule:" + lib.ID.String(),
			IdempotencyKey: "schedule:" + lib.ID.String() + ":" + now.Truncate(time.Minute).Format(time.RFC3339),
		})
		if err != nil {
			s.logger().Warn("schedule: failed to admit scheduled scan", logging.Args(
				logging.String("library_id", lib.ID.String()), logging.Error(err))...)
		}
	}
}

// due reports whether lib's scheduled interval has elapsed. A library
// with no NextScanAt set is always due, so a freshly
// enabled AutoScan library picks up its first run on the next tick.
func due(lib model.Library, now time.Time) bool {
	if lib.NextScanAt == nil {
		return true
	}
	return !now.Before(*lib.NextScanAt)
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
