package pipeline

import (
	"math/rand"
	"time"
)

const (
	resolveBackoffBase   = 250 * time.Millisecond
	resolveBackoffCap    = 30 * time.Second
	resolveBackoffJitter = 0.10
)

// resolveBackoff computes the exponential backoff for a Resolve actor
// retry attempt (1-indexed): base 250ms, cap 30s, jitter ±10%.
func resolveBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := resolveBackoffBase << (attempt - 1)
	if d <= 0 || d > resolveBackoffCap {
		d = resolveBackoffCap
	}
	jitter := 1 + (rand.Float64()*2-1)*resolveBackoffJitter
	return time.Duration(float64(d) * jitter)
}
