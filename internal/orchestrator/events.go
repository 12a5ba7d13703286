// Package orchestrator schedules jobs, drives plan approval, and supervises
// per-job agent execution.
package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventLoopStarted indicates the scheduling loop has started.
	EventLoopStarted EventType = "loop_started"
	// EventLoopStopped indicates the scheduling loop has stopped.
	EventLoopStopped EventType = "loop_stopped"
	// EventLoopIdle indicates a pass found nothing runnable.
	EventLoopIdle EventType = "loop_idle"
	// EventLoopPaused indicates the failure breaker paused scheduling.
	EventLoopPaused EventType = "loop_paused"
	// EventLoopResumed indicates scheduling resumed after a pause.
	EventLoopResumed EventType = "loop_resumed"
	// EventJobStarted indicates a job has started execution.
	EventJobStarted EventType = "job_started"
	// EventJobCompleted indicates a job completed successfully.
	EventJobCompleted EventType = "job_completed"
	// EventJobFailed indicates a job failed.
	EventJobFailed EventType = "job_failed"
	// EventJobStopped indicates a job was stopped deliberately.
	EventJobStopped EventType = "job_stopped"
	// EventPlanGenerated indicates a plan is ready for review.
	EventPlanGenerated EventType = "plan_generated"
	// EventPlanApproved indicates a human approved the plan.
	EventPlanApproved EventType = "plan_approved"
	// EventPlanRejected indicates a human rejected the plan.
	EventPlanRejected EventType = "plan_rejected"
	// EventPlanRevisionRequested indicates a rejection carried feedback and
	// a revised plan will be generated.
	EventPlanRevisionRequested EventType = "plan_revision_requested"
	// EventToolInvocation indicates the agent invoked a tool.
	EventToolInvocation EventType = "tool_invocation"
	// EventPhaseComplete indicates all tasks in a plan phase have finished.
	EventPhaseComplete EventType = "phase_complete"
	// EventTaskStarted indicates a plan task has started.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a plan task finished.
	EventTaskCompleted EventType = "task_completed"
	// EventAgentProgress provides periodic updates on agent execution.
	EventAgentProgress EventType = "agent_progress"
)

// Event represents an event emitted by the orchestrator.
// Consumers read these to render progress; slow consumers lose events
// rather than block scheduling.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// JobID is the ID of the related job, if applicable.
	JobID string
	// JobTitle is the title of the related job, if applicable.
	JobTitle string
	// TaskID is the plan task ID, if applicable.
	TaskID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// FailureKind classifies failure events.
	FailureKind string
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// TokensUsed is the current total tokens used (for progress events).
	TokensUsed int64
	// Cost is the current total cost (for progress events).
	Cost float64
	// PlanVersion is the plan version for plan events.
	PlanVersion int
}
