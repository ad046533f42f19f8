package main

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
)

// newSupervisorTree builds a two-layer suture tree: a "pipeline" layer
// for the Orchestrator's worker pools and a "watch" layer for the
// real-time producers (the filesystem watcher and the scheduled-scan
// cron). A crash in one layer restarts only that layer.
func newSupervisorTree() (root, pipeline, watch *suture.Supervisor) {
	spec := suture.Spec{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	}
	root = suture.New("ferrexd", spec)
	pipeline = suture.New("pipeline-layer", spec)
	watch = suture.New("watch-layer", spec)
	root.Add(pipeline)
	root.Add(watch)
	return root, pipeline, watch
}

// serveFunc adapts a start/stop pair that doesn't block on its own
// into a suture.Service: Serve starts the work, waits for the
// supervisor to cancel ctx, then stops it. The Orchestrator worker
// pools, Watcher, and Scheduler each get their own restart boundary
// this way.
type serveFunc struct {
	name  string
	start func(ctx context.Context) error
	stop  func()
}

func (s serveFunc) Serve(ctx context.Context) error {
	if err := s.start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if s.stop != nil {
		s.stop()
	}
	return ctx.Err()
}

func (s serveFunc) String() string { return s.name }
