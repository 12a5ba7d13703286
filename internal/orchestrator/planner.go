package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dperrin/foreman/internal/plan"
	"github.com/dperrin/foreman/internal/provider"
	"github.com/dperrin/foreman/internal/store"
	"github.com/dperrin/foreman/pkg/models"
)

// Planner drives the plan state machine for one job:
// generation, optional human approval, and the rejection revision loop.
type Planner struct {
	provider provider.Provider
	store    store.Store
	gate     *PlanApprovalGate
	emitter  *EventEmitter
}

// NewPlanner creates a planner wired to the given provider, store, approval
// gate, and event emitter.
func NewPlanner(p provider.Provider, s store.Store, gate *PlanApprovalGate, emitter *EventEmitter) *Planner {
	return &Planner{provider: p, store: s, gate: gate, emitter: emitter}
}

// Run produces an approved plan for the job, or returns nil when the job's
// planning mode skips planning entirely. An already-approved persisted plan
// is reused so a restarted job resumes instead of re-planning.
//
// Rejection with feedback regenerates the plan at Version+1 and loops back
// to approval. Rejection without feedback returns ErrPlanCancelled.
func (p *Planner) Run(ctx context.Context, job *models.Job, workDir, model string, transcript *store.TranscriptWriter) (*models.PlanSpec, error) {
	if !job.PlanningMode.RequiresPlan() {
		return nil, nil
	}

	existing, err := p.store.LoadPlan(job.ID)
	if err != nil {
		return nil, fmt.Errorf("load plan for job %s: %w", job.ID, err)
	}
	if existing != nil && existing.Status == models.PlanApproved {
		log.Printf("[planner] job %s resuming with approved plan v%d (%d/%d tasks done)",
			job.ID, existing.Version, existing.TasksCompleted, existing.TasksTotal)
		return existing, nil
	}

	version := 0
	if existing != nil {
		version = existing.Version
	}

	feedback := ""
	priorContent := ""
	if existing != nil {
		priorContent = existing.Content
		// A rejection resolved in another process carries its revision
		// guidance on the persisted plan.
		feedback = existing.Feedback
	}

	for {
		spec, err := p.generate(ctx, job, workDir, model, version, feedback, priorContent, transcript)
		if err != nil {
			return nil, err
		}
		version = spec.Version
		priorContent = spec.Content

		if !needsApproval(job) {
			spec.Status = models.PlanApproved
			now := time.Now()
			spec.ApprovedAt = &now
			if err := p.store.SavePlan(job.ID, spec); err != nil {
				return nil, fmt.Errorf("save plan for job %s: %w", job.ID, err)
			}
			p.emitter.Emit(Event{Type: EventPlanApproved, JobID: job.ID, JobTitle: job.Title, PlanVersion: spec.Version})
			return spec, nil
		}

		if err := p.store.PatchJob(job.ID, store.JobPatch{Status: statusPtr(models.JobStatusPlanReview)}); err != nil {
			return nil, fmt.Errorf("mark job %s for plan review: %w", job.ID, err)
		}
		p.emitter.Emit(Event{
			Type:        EventPlanGenerated,
			JobID:       job.ID,
			JobTitle:    job.Title,
			Message:     fmt.Sprintf("plan v%d awaiting approval (%d tasks)", spec.Version, spec.TasksTotal),
			PlanVersion: spec.Version,
		})

		decision, err := p.gate.WaitForDecision(ctx, ApprovalRequest{
			JobID:       job.ID,
			JobTitle:    job.Title,
			PlanContent: spec.Content,
			PlanVersion: spec.Version,
		})
		if err != nil {
			if errors.Is(err, ErrApprovalTimeout) {
				log.Printf("[planner] job %s plan approval timed out", job.ID)
				spec.Status = models.PlanRejected
				_ = p.store.SavePlan(job.ID, spec)
			}
			return nil, err
		}

		if decision.Approved {
			if decision.EditedPlan != "" && decision.EditedPlan != spec.Content {
				spec.Content = decision.EditedPlan
				spec.Tasks = plan.ParseTasks(decision.EditedPlan)
				spec.TasksTotal = len(spec.Tasks)
				spec.TasksCompleted = countDone(spec.Tasks)
				spec.Version++
				version = spec.Version
			}
			spec.Status = models.PlanApproved
			spec.ReviewedByUser = true
			now := time.Now()
			spec.ApprovedAt = &now
			if err := p.store.SavePlan(job.ID, spec); err != nil {
				return nil, fmt.Errorf("save approved plan for job %s: %w", job.ID, err)
			}
			if err := p.store.PatchJob(job.ID, store.JobPatch{Status: statusPtr(models.JobStatusInProgress)}); err != nil {
				return nil, fmt.Errorf("resume job %s after approval: %w", job.ID, err)
			}
			p.emitter.Emit(Event{Type: EventPlanApproved, JobID: job.ID, JobTitle: job.Title, PlanVersion: spec.Version})
			return spec, nil
		}

		if decision.Feedback == "" {
			spec.Status = models.PlanRejected
			_ = p.store.SavePlan(job.ID, spec)
			p.emitter.Emit(Event{Type: EventPlanRejected, JobID: job.ID, JobTitle: job.Title, PlanVersion: spec.Version})
			return nil, provider.ErrPlanCancelled
		}

		// Rejection with feedback: revise and loop back to approval. The
		// feedback is persisted so a crash before the revision lands does
		// not lose the reviewer's guidance.
		feedback = decision.Feedback
		spec.Status = models.PlanRejected
		spec.Feedback = feedback
		if err := p.store.SavePlan(job.ID, spec); err != nil {
			return nil, fmt.Errorf("save rejected plan for job %s: %w", job.ID, err)
		}
		p.emitter.Emit(Event{
			Type:        EventPlanRevisionRequested,
			JobID:       job.ID,
			JobTitle:    job.Title,
			Message:     feedback,
			PlanVersion: spec.Version,
		})
		if err := p.store.PatchJob(job.ID, store.JobPatch{Status: statusPtr(models.JobStatusInProgress)}); err != nil {
			return nil, fmt.Errorf("resume job %s for revision: %w", job.ID, err)
		}
	}
}

// generate runs one read-only agent call producing the next plan revision
// and persists it in the generated state.
func (p *Planner) generate(ctx context.Context, job *models.Job, workDir, model string, prevVersion int, feedback, priorContent string, transcript *store.TranscriptWriter) (*models.PlanSpec, error) {
	generating := &models.PlanSpec{Status: models.PlanGenerating, Version: prevVersion + 1}
	if err := p.store.SavePlan(job.ID, generating); err != nil {
		return nil, fmt.Errorf("save plan for job %s: %w", job.ID, err)
	}
	log.Printf("[planner] job %s generating plan v%d", job.ID, prevVersion+1)

	events, err := p.provider.ExecuteQuery(ctx, provider.QueryRequest{
		Prompt:       BuildPlanningPrompt(job, feedback, priorContent),
		WorkDir:      workDir,
		Model:        model,
		AllowedTools: provider.ReadOnlyTools,
	})
	if err != nil {
		return nil, fmt.Errorf("start plan generation for job %s: %w", job.ID, err)
	}

	var accumulated string
	for event := range events {
		switch e := event.(type) {
		case provider.AssistantText:
			accumulated += e.Text
			if transcript != nil {
				transcript.Append(e.Text)
			}
		case provider.ToolUse:
			p.emitter.Emit(Event{Type: EventToolInvocation, JobID: job.ID, Message: e.Name})
		case provider.ErrorEvent:
			return nil, e.Err
		case provider.Result:
			// terminal; accumulated text carries the plan
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	content, complete := plan.ExtractPlan(accumulated)
	if !complete {
		log.Printf("[planner] job %s plan v%d missing completion marker, using full output", job.ID, prevVersion+1)
	}
	if content == "" {
		return nil, fmt.Errorf("plan generation for job %s produced no output", job.ID)
	}

	tasks := plan.ParseTasks(content)
	spec := &models.PlanSpec{
		Status:         models.PlanGenerated,
		Content:        content,
		Version:        prevVersion + 1,
		Tasks:          tasks,
		TasksTotal:     len(tasks),
		TasksCompleted: countDone(tasks),
	}
	if err := p.store.SavePlan(job.ID, spec); err != nil {
		return nil, fmt.Errorf("save generated plan for job %s: %w", job.ID, err)
	}
	log.Printf("[planner] job %s plan v%d generated with %d tasks", job.ID, spec.Version, spec.TasksTotal)
	return spec, nil
}

// needsApproval reports whether the job pauses for human plan review.
func needsApproval(job *models.Job) bool {
	return job.RequireApproval || job.PlanningMode == models.PlanningLiteWithApproval
}

func countDone(tasks []models.ParsedTask) int {
	n := 0
	for _, t := range tasks {
		if t.Status == models.TaskDone {
			n++
		}
	}
	return n
}

func statusPtr(s models.JobStatus) *models.JobStatus {
	return &s
}
