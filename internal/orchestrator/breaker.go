package orchestrator

import (
	"sync"
	"time"

	"github.com/dperrin/foreman/internal/provider"
)

// FailureTracker decides when repeated job failures should pause scheduling.
// Failures are counted over a sliding window; rate limiting and quota
// exhaustion pause immediately regardless of the window.
type FailureTracker struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	failures  []time.Time
	now       func() time.Time
}

// NewFailureTracker creates a tracker that pauses after threshold failures
// inside the window.
func NewFailureTracker(threshold int, window time.Duration) *FailureTracker {
	return &FailureTracker{
		window:    window,
		threshold: threshold,
		now:       time.Now,
	}
}

// SetClock overrides the time source (for testing).
func (t *FailureTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// RecordFailure registers a failed job and reports whether scheduling should
// pause. Cancellations and plan rejections never count.
func (t *FailureTracker) RecordFailure(kind provider.FailureKind) bool {
	if !kind.CountsAsFailure() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.failures = append(t.failures, now)
	t.pruneLocked(now)

	if kind.IsPausable() {
		return true
	}
	return len(t.failures) >= t.threshold
}

// RecordSuccess clears the failure window. One healthy completion means the
// provider is behaving again.
func (t *FailureTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = nil
}

// Count returns the number of failures currently inside the window.
func (t *FailureTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
	return len(t.failures)
}

// pruneLocked drops failures older than the window. Caller holds the lock.
func (t *FailureTracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	kept := t.failures[:0]
	for _, ts := range t.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.failures = kept
}
