package orchestrator

import (
	"math/rand"
	"time"
)

// Generic subject-retry backoff for any stage failure the Orchestrator
// itself classifies (folder listing, index commit). Same base/cap/jitter
// policy as series resolution (internal/pipeline/backoff.go), applied
// here to every other stage so one retry policy covers the pipeline.
const (
	backoffBase   = 250 * time.Millisecond
	backoffCap    = 30 * time.Second
	backoffJitter = 0.10
)

func backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt && d < backoffCap; i++ {
		d *= 2
	}
	if d > backoffCap {
		d = backoffCap
	}
	jitter := 1 + (rand.Float64()*2-1)*backoffJitter
	return time.Duration(float64(d) * jitter)
}
