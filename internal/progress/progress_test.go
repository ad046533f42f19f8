package progress

import (
	"context"
	"testing"
	"time"

	"ferrex/internal/ids"
	"ferrex/internal/model"
)

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(4)
	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	ch1 := b.Subscribe(ctx1)
	ch2 := b.Subscribe(ctx2)

	b.PublishDomain(model.DomainEvent{Kind: model.DomainEventScanStarted})

	select {
	case ev := <-ch1:
		if ev.Kind != model.DomainEventScanStarted {
			t.Fatalf("unexpected event on ch1: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ch1")
	}
	select {
	case ev := <-ch2:
		if ev.Kind != model.DomainEventScanStarted {
			t.Fatalf("unexpected event on ch2: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ch2")
	}
}

func TestBroadcasterClosesChannelOnContextCancel(t *testing.T) {
	b := NewBroadcaster(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel was not closed after cancel")
		}
	}
}

func TestTrackerSnapshotWithinBudget(t *testing.T) {
	tr := NewTracker(ids.NewScanId(), ids.NewLibraryId(), "corr-1", "idem-1")
	tr.SetTotal(10)
	tr.SetStatus(model.ScanStatusRunning)
	tr.RecordCompleted("/a", "a")
	tr.RecordCompleted("/b", "b")
	tr.RecordRetrying(1)
	tr.RecordDeadLettered()

	snap := tr.Snapshot(time.Now())
	if !snap.WithinBudget() {
		t.Fatalf("expected snapshot within budget, got %+v", snap)
	}
	if snap.CompletedItems != 2 || snap.RetryingItems != 1 || snap.DeadLetteredItems != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.CurrentPath != "/b" {
		t.Fatalf("expected current path to track the last completion, got %q", snap.CurrentPath)
	}
}

func TestTrackerStageLatencyP95(t *testing.T) {
	tr := NewTracker(ids.NewScanId(), ids.NewLibraryId(), "c", "i")
	for i := 1; i <= 100; i++ {
		tr.ObserveStageLatency("scan", time.Duration(i)*time.Millisecond)
	}
	snap := tr.Snapshot(time.Now())
	if snap.P95StageLatenciesMs.ScanP95Ms < 90 || snap.P95StageLatenciesMs.ScanP95Ms > 100 {
		t.Fatalf("expected p95 near 95ms, got %d", snap.P95StageLatenciesMs.ScanP95Ms)
	}
}

func TestTrackerEmitSnapshotSequenceStrictlyMonotonic(t *testing.T) {
	tr := NewTracker(ids.NewScanId(), ids.NewLibraryId(), "c", "i")
	tr.SetStatus(model.ScanStatusRunning)

	// Repeated emissions with no counter movement in between (the
	// heartbeat case) must still advance the sequence every time.
	var last uint64
	for i := 0; i < 5; i++ {
		snap := tr.EmitSnapshot(time.Now())
		if snap.Sequence <= last {
			t.Fatalf("emission %d: sequence %d not greater than previous %d", i, snap.Sequence, last)
		}
		last = snap.Sequence
	}

	// A read-only Snapshot reports the last emitted sequence without
	// advancing it.
	if got := tr.Snapshot(time.Now()).Sequence; got != last {
		t.Fatalf("read-only Snapshot changed sequence: got %d, want %d", got, last)
	}
	if got := tr.Snapshot(time.Now()).Sequence; got != last {
		t.Fatalf("second read-only Snapshot changed sequence: got %d, want %d", got, last)
	}
}
