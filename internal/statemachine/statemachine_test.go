package statemachine

import (
	"context"
	"testing"
	"time"

	"ferrex/internal/ids"
)

func TestLifecycleSeededResolvingResolved(t *testing.T) {
	repo := NewMemRepository()
	m := New(repo)
	ctx := context.Background()
	libraryID := ids.NewLibraryId()
	root := "/shows/Showname (2020)"

	if err := m.MarkSeeded(ctx, libraryID, root, nil); err != nil {
		t.Fatalf("MarkSeeded: %v", err)
	}
	if err := m.MarkResolving(ctx, libraryID, root); err != nil {
		t.Fatalf("MarkResolving: %v", err)
	}

	seriesID := ids.NewSeriesId()
	if err := m.MarkResolved(ctx, libraryID, root, seriesID); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}

	state, err := repo.Get(ctx, libraryID, root)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !state.ReadyForIndex() {
		t.Fatalf("expected resolved state to be ready for index, got %+v", state)
	}
}

func TestMarkFailedSetsBackoffDeadline(t *testing.T) {
	repo := NewMemRepository()
	m := New(repo)
	ctx := context.Background()
	libraryID := ids.NewLibraryId()
	root := "/shows/Showname (2020)"

	if err := m.MarkSeeded(ctx, libraryID, root, nil); err != nil {
		t.Fatalf("MarkSeeded: %v", err)
	}
	deadline := time.Now().Add(250 * time.Millisecond)
	if err := m.MarkFailed(ctx, libraryID, root, "network_timeout", &deadline); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	ready, err := m.ReadyForRetry(ctx, libraryID, root, 5, time.Now())
	if err != nil {
		t.Fatalf("ReadyForRetry: %v", err)
	}
	if ready {
		t.Fatalf("expected not ready before backoff deadline")
	}

	ready, err = m.ReadyForRetry(ctx, libraryID, root, 5, deadline.Add(time.Second))
	if err != nil {
		t.Fatalf("ReadyForRetry: %v", err)
	}
	if !ready {
		t.Fatalf("expected ready after backoff deadline")
	}
}

func TestReadyForRetryFalseAfterMaxAttemptsExhausted(t *testing.T) {
	repo := NewMemRepository()
	m := New(repo)
	ctx := context.Background()
	libraryID := ids.NewLibraryId()
	root := "/shows/Showname (2020)"

	if err := m.MarkSeeded(ctx, libraryID, root, nil); err != nil {
		t.Fatalf("MarkSeeded: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := m.MarkResolving(ctx, libraryID, root); err != nil {
			t.Fatalf("MarkResolving attempt %d: %v", i, err)
		}
	}
	if err := m.MarkFailed(ctx, libraryID, root, "malformed", nil); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	ready, err := m.ReadyForRetry(ctx, libraryID, root, 5, time.Now())
	if err != nil {
		t.Fatalf("ReadyForRetry: %v", err)
	}
	if ready {
		t.Fatalf("expected exhausted attempts to move the subject to DLQ, not retry")
	}
}
