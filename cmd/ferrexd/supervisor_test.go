package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewSupervisorTreeAddsBothLayers(t *testing.T) {
	root, pipeline, watch := newSupervisorTree()
	if root == nil || pipeline == nil || watch == nil {
		t.Fatal("expected non-nil root, pipeline, and watch supervisors")
	}
	if root.String() == "" {
		t.Fatal("expected root supervisor to have a name")
	}
}

func TestServeFuncRunsStartThenWaitsForCancel(t *testing.T) {
	started := false
	stopped := false
	s := serveFunc{
		name: "test-service",
		start: func(ctx context.Context) error {
			started = true
			return nil
		},
		stop: func() { stopped = true },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}

	if !started || !stopped {
		t.Fatalf("expected start and stop to run, got started=%v stopped=%v", started, stopped)
	}
}

func TestServeFuncPropagatesStartError(t *testing.T) {
	wantErr := errors.New("boom")
	s := serveFunc{
		name:  "failing-service",
		start: func(ctx context.Context) error { return wantErr },
	}

	if err := s.Serve(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected start error to propagate, got %v", err)
	}
}

func TestServeFuncStringReturnsName(t *testing.T) {
	s := serveFunc{name: "named-service"}
	if s.String() != "named-service" {
		t.Fatalf("expected String() to return configured name, got %q", s.String())
	}
}
