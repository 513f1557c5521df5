// Package throttle bounds write amplification from progress callbacks to
// the ledger. It is process-local on purpose: an extra or missing snapshot
// is acceptable because the event log is the authoritative history.
package throttle

import (
	"sync"
	"time"
)

// DefaultMinInterval is the default minimum gap between accepted writes per job.
const DefaultMinInterval = time.Second

// Throttler rate-limits snapshot writes per job id.
type Throttler struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        map[string]time.Time
}

// New creates a Throttler. A non-positive interval falls back to the default.
func New(minInterval time.Duration) *Throttler {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Throttler{
		minInterval: minInterval,
		last:        make(map[string]time.Time),
	}
}

// ShouldWrite reports whether a snapshot write for jobID may proceed at
// now. It returns true at most once per minimum interval per job id,
// measured from the last accepted write, and records the acceptance.
func (t *Throttler) ShouldWrite(jobID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[jobID]
	if ok && now.Sub(last) < t.minInterval {
		return false
	}

	t.last[jobID] = now
	return true
}

// Forget drops the tracked state for a job. Called once a job reaches a
// terminal state so the map does not grow without bound.
func (t *Throttler) Forget(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.last, jobID)
}
