package model

import "time"

// ScanStatus is the closed set of lifecycle states a scan passes through
//. Terminal states are Completed, Failed, Canceled.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusPaused    ScanStatus = "paused"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusCanceled  ScanStatus = "canceled"
)

// Terminal reports whether s is one of the scan's terminal states.
func (s ScanStatus) Terminal() bool {
	switch s {
	case ScanStatusCompleted, ScanStatusFailed, ScanStatusCanceled:
		return true
	default:
		return false
	}
}

// StageLatencies holds rolling p95 latency observations per pipeline
// stage, reported on every ScanSnapshot.
type StageLatencies struct {
	ScanP95Ms    int64 `json:"scan"`
	AnalyzeP95Ms int64 `json:"analyze"`
	IndexP95Ms   int64 `json:"index"`
}

// ScanSnapshot is the aggregated progress view the Publisher emits
//. Field names and presence mirror the persisted wire JSON
// exactly so the HTTP/SSE adapter can serialize it without remapping.
type ScanSnapshot struct {
	Version             int            `json:"version"`
	ScanID              string         `json:"scan_id"`
	LibraryID           string         `json:"library_id"`
	Status              ScanStatus     `json:"status"`
	CompletedItems      int            `json:"completed_items"`
	TotalItems          int            `json:"total_items"`
	Sequence            uint64         `json:"sequence"`
	CurrentPath         string         `json:"current_path,omitempty"`
	PathKey             string         `json:"path_key,omitempty"`
	P95StageLatenciesMs StageLatencies `json:"p95_stage_latencies_ms"`
	CorrelationID       string         `json:"correlation_id"`
	IdempotencyKey      string         `json:"idempotency_key"`
	EmittedAt           time.Time      `json:"emitted_at"`
	RetryingItems       int            `json:"retrying_items,omitempty"`
	DeadLetteredItems   int            `json:"dead_lettered_items,omitempty"`
}

// WithinBudget enforces the invariant that completed + retrying +
// dead-lettered never exceeds total.
func (s ScanSnapshot) WithinBudget() bool {
	return s.CompletedItems+s.RetryingItems+s.DeadLetteredItems <= s.TotalItems
}
