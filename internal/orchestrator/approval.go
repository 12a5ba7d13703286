package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ErrApprovalTimeout is returned when a plan approval request expires before
// a human resolves it.
var ErrApprovalTimeout = fmt.Errorf("plan approval timed out")

// ApprovalRequest asks a human to review a generated plan before execution.
type ApprovalRequest struct {
	// JobID is the ID of the job whose plan needs review.
	JobID string
	// JobTitle is the job's title for display.
	JobTitle string
	// PlanContent is the plan text to be reviewed.
	PlanContent string
	// PlanVersion is the version of the plan under review.
	PlanVersion int
	// RequestedAt is when the request was created.
	RequestedAt time.Time
}

// ApprovalDecision is the human's verdict on a plan.
type ApprovalDecision struct {
	// Approved indicates whether the plan may be executed.
	Approved bool
	// Feedback carries revision guidance for rejected plans. A rejection
	// without feedback cancels the plan instead of revising it.
	Feedback string
	// EditedPlan replaces the plan content when the reviewer edited it
	// directly. Only meaningful on approval.
	EditedPlan string
}

// PlanApprovalGate tracks plans waiting for human review. Each pending entry
// expires after the configured timeout, which counts as a rejection without
// feedback.
type PlanApprovalGate struct {
	timeout time.Duration

	mu      sync.RWMutex
	pending map[string]*pendingApproval
	// requestCh surfaces new requests to whoever renders them.
	requestCh chan ApprovalRequest
}

type pendingApproval struct {
	request    ApprovalRequest
	responseCh chan ApprovalDecision
}

// NewPlanApprovalGate creates a gate with the given expiry timeout.
func NewPlanApprovalGate(timeout time.Duration) *PlanApprovalGate {
	return &PlanApprovalGate{
		timeout:   timeout,
		pending:   make(map[string]*pendingApproval),
		requestCh: make(chan ApprovalRequest, 10),
	}
}

// RequestCh returns a read-only channel carrying new approval requests.
func (g *PlanApprovalGate) RequestCh() <-chan ApprovalRequest {
	return g.requestCh
}

// WaitForDecision registers the request and blocks until a human resolves it,
// the timeout expires, or the context is cancelled. Expiry returns
// ErrApprovalTimeout and removes the pending entry.
func (g *PlanApprovalGate) WaitForDecision(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error) {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}

	responseCh := make(chan ApprovalDecision, 1)

	g.mu.Lock()
	if _, exists := g.pending[req.JobID]; exists {
		g.mu.Unlock()
		return ApprovalDecision{}, fmt.Errorf("approval already pending for job %s", req.JobID)
	}
	g.pending[req.JobID] = &pendingApproval{request: req, responseCh: responseCh}
	g.mu.Unlock()

	// Cleanup on exit
	defer func() {
		g.mu.Lock()
		delete(g.pending, req.JobID)
		g.mu.Unlock()
	}()

	// Surface the request without blocking scheduling forever
	select {
	case g.requestCh <- req:
	case <-ctx.Done():
		return ApprovalDecision{}, ctx.Err()
	default:
		// Nobody is draining requests right now; the pending entry is
		// still resolvable through Resolve.
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case decision := <-responseCh:
		return decision, nil
	case <-timer.C:
		return ApprovalDecision{}, ErrApprovalTimeout
	case <-ctx.Done():
		return ApprovalDecision{}, ctx.Err()
	}
}

// Resolve submits a decision for a pending approval.
// Returns an error when no approval is pending for the job.
func (g *PlanApprovalGate) Resolve(jobID string, decision ApprovalDecision) error {
	g.mu.RLock()
	entry, exists := g.pending[jobID]
	g.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no pending approval for job %s", jobID)
	}

	select {
	case entry.responseCh <- decision:
		return nil
	default:
		return fmt.Errorf("approval for job %s already resolved", jobID)
	}
}

// HasPending returns true if the job has a plan waiting for review.
func (g *PlanApprovalGate) HasPending(jobID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, exists := g.pending[jobID]
	return exists
}

// Pending returns the requests currently waiting for review.
func (g *PlanApprovalGate) Pending() []ApprovalRequest {
	g.mu.RLock()
	defer g.mu.RUnlock()

	requests := make([]ApprovalRequest, 0, len(g.pending))
	for _, entry := range g.pending {
		requests = append(requests, entry.request)
	}
	return requests
}
