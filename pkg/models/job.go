// Package models contains the core data types shared across foreman.
package models

import "time"

// JobStatus represents the lifecycle state of a feature job.
type JobStatus string

const (
	// JobStatusBacklog indicates the job is waiting and not yet schedulable.
	JobStatusBacklog JobStatus = "backlog"
	// JobStatusReady indicates the job can be picked up by the loop.
	JobStatusReady JobStatus = "ready"
	// JobStatusInProgress indicates an executor is running the job.
	JobStatusInProgress JobStatus = "in_progress"
	// JobStatusPlanReview indicates a generated plan is awaiting human input.
	JobStatusPlanReview JobStatus = "plan_review"
	// JobStatusWaitingApproval indicates the work is done but needs manual review.
	JobStatusWaitingApproval JobStatus = "waiting_approval"
	// JobStatusVerified indicates the job completed with automated verification.
	JobStatusVerified JobStatus = "verified"
	// JobStatusStopped indicates the job was cancelled by the user.
	JobStatusStopped JobStatus = "stopped"
)

// PlanningMode controls how much up-front planning a job receives
// before implementation begins.
type PlanningMode string

const (
	// PlanningSkip goes straight to implementation with no plan document.
	PlanningSkip PlanningMode = "skip"
	// PlanningLite produces a short plan without human review.
	PlanningLite PlanningMode = "lite"
	// PlanningLiteWithApproval produces a short plan and pauses for review.
	PlanningLiteWithApproval PlanningMode = "lite_with_approval"
	// PlanningSpec produces a full specification-style plan.
	PlanningSpec PlanningMode = "spec"
	// PlanningFull produces the most detailed plan with task decomposition.
	PlanningFull PlanningMode = "full"
)

// RequiresPlan returns true if the mode produces a plan document at all.
func (m PlanningMode) RequiresPlan() bool {
	return m != "" && m != PlanningSkip
}

// Job is a unit of work describing a desired code change.
// Jobs are created externally (CLI or board), mutated by the executor at
// every phase transition, and archived externally.
type Job struct {
	// ID uniquely identifies the job.
	ID string `json:"id"`
	// Title is an optional short name for the job.
	Title string `json:"title,omitempty"`
	// Description is the work request in natural language.
	Description string `json:"description"`
	// Spec is an optional longer specification attached to the job.
	Spec string `json:"spec,omitempty"`
	// Model selects the Claude model for this job. Empty uses the default.
	Model string `json:"model,omitempty"`
	// PlanningMode controls plan generation before implementation.
	PlanningMode PlanningMode `json:"planningMode,omitempty"`
	// RequireApproval pauses the job for human plan review when true.
	RequireApproval bool `json:"requireApproval,omitempty"`
	// BranchName is the git branch the job executes on, if isolated.
	BranchName string `json:"branchName,omitempty"`
	// Status is the current lifecycle state.
	Status JobStatus `json:"status"`
	// DependsOn lists job IDs that must complete before this job runs.
	DependsOn []string `json:"dependsOn,omitempty"`
	// SkipTests switches the job to manual-review verification wording.
	SkipTests bool `json:"skipTests,omitempty"`
	// ContextNotes are attached notes injected into the prompt.
	ContextNotes []string `json:"contextNotes,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the job was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsTerminal returns true if the status will not change without user action.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusVerified, JobStatusStopped, JobStatusWaitingApproval:
		return true
	}
	return false
}
