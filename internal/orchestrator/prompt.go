package orchestrator

import (
	"fmt"
	"strings"

	"github.com/dperrin/foreman/internal/plan"
	"github.com/dperrin/foreman/pkg/models"
)

// planningPromptHeader is the template prefixed to every plan-generation
// request. It instructs the model to emit an ordered task list in the fenced
// format the parser expects, terminated by the completion sentinel.
const planningPromptHeader = `You are planning the implementation of a coding job. Explore the codebase as needed, then produce an ordered implementation plan.

Output the plan as a fenced code block of task lines:

` + "```tasks" + `
## Phase 1: Setup
- [ ] T001: First task description | File: path/to/file.go
- [ ] T002: Second task description
` + "```" + `

Rules:
- Task IDs are T001, T002, ... in execution order
- The "| File: path" suffix is optional; include it when a task centers on one file
- Group related tasks under "## Phase N: name" headings when it helps
- Do NOT write any code or modify any files; this is planning only

When the plan is complete, end your response with the exact line:
%s`

// planningDepthGuidance maps planning modes to how detailed the plan should be.
var planningDepthGuidance = map[models.PlanningMode]string{
	models.PlanningLite:             "Keep the plan short: 3-7 coarse tasks covering the whole job.",
	models.PlanningLiteWithApproval: "Keep the plan short: 3-7 coarse tasks covering the whole job.",
	models.PlanningSpec:             "Produce a thorough plan: break the job into small, independently verifiable tasks and note the key files each touches.",
	models.PlanningFull:             "Produce an exhaustive plan: small tasks, explicit file targets, and phases for setup, implementation, tests, and cleanup.",
}

// BuildPlanningPrompt assembles the plan-generation prompt for a job.
// Feedback from a rejected prior revision is appended when present.
func BuildPlanningPrompt(job *models.Job, feedback string, priorPlan string) string {
	var b strings.Builder
	fmt.Fprintf(&b, planningPromptHeader, plan.Sentinel)
	b.WriteString("\n\n")

	if guidance, ok := planningDepthGuidance[job.PlanningMode]; ok {
		b.WriteString(guidance)
		b.WriteString("\n\n")
	}

	b.WriteString("# Job\n\n")
	fmt.Fprintf(&b, "Title: %s\n\n", job.Title)
	if job.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n\n", job.Description)
	}
	if job.Spec != "" {
		fmt.Fprintf(&b, "Specification:\n%s\n\n", job.Spec)
	}
	if len(job.ContextNotes) > 0 {
		b.WriteString("Context notes:\n")
		for _, note := range job.ContextNotes {
			fmt.Fprintf(&b, "- %s\n", note)
		}
		b.WriteString("\n")
	}
	if job.SkipTests {
		b.WriteString("Do not plan test-writing tasks for this job.\n\n")
	}

	if feedback != "" {
		b.WriteString("# Reviewer feedback\n\n")
		b.WriteString("A previous revision of this plan was rejected. Revise it to address:\n")
		b.WriteString(feedback)
		b.WriteString("\n\n")
		if priorPlan != "" {
			b.WriteString("Previous plan:\n")
			b.WriteString(priorPlan)
			b.WriteString("\n\n")
		}
	}

	return b.String()
}

// upcomingTaskPreview caps how many future tasks the execution prompt shows.
const upcomingTaskPreview = 3

// BuildTaskPrompt assembles the prompt for executing a single plan task.
// It includes what has been done, the current task, and a short preview of
// what comes next so the agent does not wander ahead.
func BuildTaskPrompt(job *models.Job, spec *models.PlanSpec, task *models.ParsedTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are implementing one task of a larger job: %s\n\n", job.Title)
	if job.Description != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n\n", job.Description)
	}

	done := spec.CompletedTasks()
	if len(done) > 0 {
		b.WriteString("Already completed:\n")
		for _, t := range done {
			fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("# Current task\n\n")
	fmt.Fprintf(&b, "%s: %s\n", task.ID, task.Description)
	if task.FilePath != "" {
		fmt.Fprintf(&b, "Primary file: %s\n", task.FilePath)
	}
	if task.Phase != "" {
		fmt.Fprintf(&b, "Phase: %s\n", task.Phase)
	}
	b.WriteString("\n")

	upcoming := upcomingTasks(spec, task.ID)
	if len(upcoming) > 0 {
		b.WriteString("Coming up next (do NOT implement these yet):\n")
		for _, t := range upcoming {
			fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Description)
		}
		b.WriteString("\n")
	}

	if job.SkipTests {
		b.WriteString("Do not write tests for this task.\n\n")
	}

	b.WriteString("Implement ONLY the current task. Stop when it is complete.\n")
	return b.String()
}

// BuildFollowUpPrompt assembles the prompt for a follow-up instruction on a
// job that already ran.
func BuildFollowUpPrompt(job *models.Job, instruction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You previously worked on this job: %s\n\n", job.Title)
	if job.Description != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n\n", job.Description)
	}
	b.WriteString("# Follow-up instruction\n\n")
	b.WriteString(instruction)
	b.WriteString("\n\nApply the follow-up to the existing work in this workspace.\n")
	return b.String()
}

func upcomingTasks(spec *models.PlanSpec, currentID string) []*models.ParsedTask {
	if spec == nil {
		return nil
	}
	var upcoming []*models.ParsedTask
	seen := false
	for i := range spec.Tasks {
		if spec.Tasks[i].ID == currentID {
			seen = true
			continue
		}
		if seen && spec.Tasks[i].Status == models.TaskPending {
			upcoming = append(upcoming, &spec.Tasks[i])
			if len(upcoming) == upcomingTaskPreview {
				break
			}
		}
	}
	return upcoming
}
