package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPlanApprovalGate_ApproveAndReject(t *testing.T) {
	gate := NewPlanApprovalGate(time.Minute)

	type result struct {
		decision ApprovalDecision
		err      error
	}
	done := make(chan result, 1)
	go func() {
		d, err := gate.WaitForDecision(context.Background(), ApprovalRequest{
			JobID:       "job-1",
			PlanContent: "- [ ] T001: do the thing",
			PlanVersion: 1,
		})
		done <- result{d, err}
	}()

	// Wait until the request is registered.
	deadline := time.After(2 * time.Second)
	for !gate.HasPending("job-1") {
		select {
		case <-deadline:
			t.Fatal("approval request never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := gate.Resolve("job-1", ApprovalDecision{Approved: false, Feedback: "split T001"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("WaitForDecision() error = %v", res.err)
	}
	if res.decision.Approved {
		t.Error("expected rejection")
	}
	if res.decision.Feedback != "split T001" {
		t.Errorf("Feedback = %q, want %q", res.decision.Feedback, "split T001")
	}
	if gate.HasPending("job-1") {
		t.Error("pending entry should be removed after resolution")
	}
}

func TestPlanApprovalGate_Timeout(t *testing.T) {
	gate := NewPlanApprovalGate(20 * time.Millisecond)

	_, err := gate.WaitForDecision(context.Background(), ApprovalRequest{JobID: "job-1"})
	if !errors.Is(err, ErrApprovalTimeout) {
		t.Fatalf("error = %v, want ErrApprovalTimeout", err)
	}
	if gate.HasPending("job-1") {
		t.Error("expired approval should be removed from pending set")
	}
}

func TestPlanApprovalGate_ContextCancel(t *testing.T) {
	gate := NewPlanApprovalGate(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := gate.WaitForDecision(ctx, ApprovalRequest{JobID: "job-1"})
		errCh <- err
	}()

	deadline := time.After(2 * time.Second)
	for !gate.HasPending("job-1") {
		select {
		case <-deadline:
			t.Fatal("approval request never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if gate.HasPending("job-1") {
		t.Error("cancelled approval should be removed from pending set")
	}
}

func TestPlanApprovalGate_ResolveUnknownJob(t *testing.T) {
	gate := NewPlanApprovalGate(time.Minute)
	if err := gate.Resolve("missing", ApprovalDecision{Approved: true}); err == nil {
		t.Error("expected error resolving unknown job")
	}
}

func TestPlanApprovalGate_DuplicateRequest(t *testing.T) {
	gate := NewPlanApprovalGate(time.Minute)

	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = gate.WaitForDecision(context.Background(), ApprovalRequest{JobID: "job-1"})
	}()
	<-started

	deadline := time.After(2 * time.Second)
	for !gate.HasPending("job-1") {
		select {
		case <-deadline:
			t.Fatal("approval request never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := gate.WaitForDecision(context.Background(), ApprovalRequest{JobID: "job-1"})
	if err == nil {
		t.Error("expected error for duplicate pending approval")
	}

	// Unblock the first waiter.
	_ = gate.Resolve("job-1", ApprovalDecision{Approved: true})
}

func TestPlanApprovalGate_CrossJobIsolation(t *testing.T) {
	gate := NewPlanApprovalGate(time.Minute)

	decisions := make(chan ApprovalDecision, 2)
	for _, id := range []string{"job-a", "job-b"} {
		id := id
		go func() {
			d, err := gate.WaitForDecision(context.Background(), ApprovalRequest{JobID: id})
			if err != nil {
				t.Errorf("WaitForDecision(%s) error = %v", id, err)
				return
			}
			decisions <- d
		}()
	}

	deadline := time.After(2 * time.Second)
	for !gate.HasPending("job-a") || !gate.HasPending("job-b") {
		select {
		case <-deadline:
			t.Fatal("approval requests never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := gate.Resolve("job-a", ApprovalDecision{Approved: true}); err != nil {
		t.Fatalf("Resolve(job-a) error = %v", err)
	}
	d := <-decisions
	if !d.Approved {
		t.Error("job-a decision should be approved")
	}
	if !gate.HasPending("job-b") {
		t.Error("resolving job-a should not affect job-b")
	}

	_ = gate.Resolve("job-b", ApprovalDecision{Approved: false})
	<-decisions
}
