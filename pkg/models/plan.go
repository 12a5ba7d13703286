package models

import "time"

// PlanStatus represents the state of a plan document.
type PlanStatus string

const (
	// PlanPending indicates planning has not started.
	PlanPending PlanStatus = "pending"
	// PlanGenerating indicates the agent is producing the plan.
	PlanGenerating PlanStatus = "generating"
	// PlanGenerated indicates the plan is complete and may need review.
	PlanGenerated PlanStatus = "generated"
	// PlanApproved indicates the plan was accepted for implementation.
	PlanApproved PlanStatus = "approved"
	// PlanRejected indicates the plan was rejected and the job cancelled.
	PlanRejected PlanStatus = "rejected"
)

// TaskStatus represents the state of a single parsed task.
type TaskStatus string

const (
	// TaskPending indicates the task has not been executed.
	TaskPending TaskStatus = "pending"
	// TaskInProgress indicates a sub-agent call is running the task.
	TaskInProgress TaskStatus = "in_progress"
	// TaskDone indicates the task completed.
	TaskDone TaskStatus = "done"
)

// ParsedTask is one ordered task extracted from a plan document.
// All fields except Status are immutable after parsing.
type ParsedTask struct {
	// ID is the task identifier in T### form.
	ID string `json:"id"`
	// Description is the task text.
	Description string `json:"description"`
	// FilePath is the primary file the task touches, if the plan named one.
	FilePath string `json:"filePath,omitempty"`
	// Phase is the "## Phase N" heading the task appeared under, if any.
	Phase string `json:"phase,omitempty"`
	// Status tracks execution of the task.
	Status TaskStatus `json:"status"`
}

// PlanSpec is the agent-generated plan for a job: a narrative document plus
// the ordered task list parsed from it. Owned by the job; created lazily
// when planning starts.
type PlanSpec struct {
	// Status is the plan lifecycle state.
	Status PlanStatus `json:"status"`
	// Content is the plan document text.
	Content string `json:"content,omitempty"`
	// Version increases by one on every revision of the plan content.
	Version int `json:"version"`
	// Tasks is the ordered task list parsed from Content.
	Tasks []ParsedTask `json:"tasks,omitempty"`
	// TasksTotal is the number of parsed tasks.
	TasksTotal int `json:"tasksTotal"`
	// TasksCompleted counts tasks that have finished.
	TasksCompleted int `json:"tasksCompleted"`
	// CurrentTaskID is the task currently executing, if any.
	CurrentTaskID string `json:"currentTaskId,omitempty"`
	// ReviewedByUser is true if a human saw the plan before implementation.
	ReviewedByUser bool `json:"reviewedByUser,omitempty"`
	// Feedback is the reviewer's revision guidance on a rejected plan. It
	// seeds the next generation so the guidance survives a restart.
	Feedback string `json:"feedback,omitempty"`
	// ApprovedAt is when the plan was approved, if it was.
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
}

// NextTask returns the first pending task, or nil if none remain.
func (p *PlanSpec) NextTask() *ParsedTask {
	for i := range p.Tasks {
		if p.Tasks[i].Status == TaskPending {
			return &p.Tasks[i]
		}
	}
	return nil
}

// CompletedTasks returns the tasks that have finished, in order.
func (p *PlanSpec) CompletedTasks() []ParsedTask {
	var done []ParsedTask
	for _, t := range p.Tasks {
		if t.Status == TaskDone {
			done = append(done, t)
		}
	}
	return done
}

// MarkTaskDone marks the task with the given ID complete and updates the
// completion counter. Returns false if the ID is unknown.
func (p *PlanSpec) MarkTaskDone(id string) bool {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			if p.Tasks[i].Status != TaskDone {
				p.Tasks[i].Status = TaskDone
				p.TasksCompleted++
			}
			if p.CurrentTaskID == id {
				p.CurrentTaskID = ""
			}
			return true
		}
	}
	return false
}
