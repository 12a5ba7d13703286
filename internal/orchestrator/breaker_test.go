package orchestrator

import (
	"testing"
	"time"

	"github.com/dperrin/foreman/internal/provider"
)

func TestFailureTracker_ThresholdInWindow(t *testing.T) {
	tracker := NewFailureTracker(3, 60*time.Second)

	base := time.Now()
	current := base
	tracker.SetClock(func() time.Time { return current })

	if tracker.RecordFailure(provider.FailureGeneric) {
		t.Error("first failure must not pause")
	}
	current = base.Add(10 * time.Second)
	if tracker.RecordFailure(provider.FailureGeneric) {
		t.Error("second failure must not pause")
	}
	current = base.Add(20 * time.Second)
	if !tracker.RecordFailure(provider.FailureGeneric) {
		t.Error("third failure within the window must pause")
	}
}

func TestFailureTracker_WindowSlides(t *testing.T) {
	tracker := NewFailureTracker(3, 60*time.Second)

	base := time.Now()
	current := base
	tracker.SetClock(func() time.Time { return current })

	tracker.RecordFailure(provider.FailureGeneric)
	current = base.Add(30 * time.Second)
	tracker.RecordFailure(provider.FailureGeneric)

	// First failure has aged out by the time the third arrives
	current = base.Add(70 * time.Second)
	if tracker.RecordFailure(provider.FailureGeneric) {
		t.Error("failures outside the window must not count")
	}
	if tracker.Count() != 2 {
		t.Errorf("expected 2 failures in window, got %d", tracker.Count())
	}
}

func TestFailureTracker_PausableKindsPauseImmediately(t *testing.T) {
	tracker := NewFailureTracker(3, 60*time.Second)

	if !tracker.RecordFailure(provider.FailureRateLimit) {
		t.Error("rate_limit must pause on the first occurrence")
	}
	if !tracker.RecordFailure(provider.FailureQuotaExhausted) {
		t.Error("quota_exhausted must pause on the first occurrence")
	}
	if tracker.Count() != 2 {
		t.Errorf("pausable failures must still enter the window, got %d", tracker.Count())
	}
}

func TestFailureTracker_TerminalKindsIgnored(t *testing.T) {
	tracker := NewFailureTracker(1, 60*time.Second)

	if tracker.RecordFailure(provider.FailureAuthentication) {
		t.Error("authentication must not pause through the window")
	}
	if tracker.RecordFailure(provider.FailureTimeout) {
		t.Error("timeout must not pause through the window")
	}
	if tracker.Count() != 0 {
		t.Errorf("terminal kinds must not enter the window, got %d", tracker.Count())
	}
}

func TestFailureTracker_NonFailuresIgnored(t *testing.T) {
	tracker := NewFailureTracker(1, 60*time.Second)

	if tracker.RecordFailure(provider.FailureCancellation) {
		t.Error("cancellation must not pause")
	}
	if tracker.RecordFailure(provider.FailurePlanCancelled) {
		t.Error("plan rejection must not pause")
	}
	if tracker.Count() != 0 {
		t.Errorf("non-failures must not enter the window, got %d", tracker.Count())
	}
}

func TestFailureTracker_SuccessClearsWindow(t *testing.T) {
	tracker := NewFailureTracker(3, 60*time.Second)

	tracker.RecordFailure(provider.FailureGeneric)
	tracker.RecordFailure(provider.FailureGeneric)
	tracker.RecordSuccess()

	if tracker.Count() != 0 {
		t.Errorf("success must clear the window, got %d", tracker.Count())
	}
	if tracker.RecordFailure(provider.FailureGeneric) {
		t.Error("a single failure after a success must not pause")
	}
}
