package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dperrin/foreman/internal/orchestrator/policy"
	"github.com/dperrin/foreman/internal/provider"
	"github.com/dperrin/foreman/internal/store"
	"github.com/dperrin/foreman/internal/worktree"
	"github.com/dperrin/foreman/pkg/models"
)

// ExecutorConfig holds the per-project settings the job executor needs.
type ExecutorConfig struct {
	// ProjectPath is the repository root jobs run in by default.
	ProjectPath string
	// DataDir is where transcripts are written.
	DataDir string
	// Model is the default model when the job does not override it.
	Model string
	// WorktreesEnabled routes branch-bearing jobs into their git worktree.
	WorktreesEnabled bool
	// PipelineSteps are post-processing prompts run after implementation.
	PipelineSteps []string
	// StepTimeout bounds each pipeline step. Zero means no limit.
	StepTimeout time.Duration
	// JobTimeout bounds the whole job. Zero means no limit.
	JobTimeout time.Duration
}

// JobExecutor runs a single job end to end: workspace resolution, planning,
// per-task agent calls, and the post-processing pipeline.
type JobExecutor struct {
	provider  provider.Provider
	store     store.Store
	worktrees worktree.Resolver
	planner   *Planner
	emitter   *EventEmitter
	cfg       ExecutorConfig
}

// NewJobExecutor creates a job executor.
func NewJobExecutor(p provider.Provider, s store.Store, wt worktree.Resolver, planner *Planner, emitter *EventEmitter, cfg ExecutorConfig) *JobExecutor {
	return &JobExecutor{
		provider:  p,
		store:     s,
		worktrees: wt,
		planner:   planner,
		emitter:   emitter,
		cfg:       cfg,
	}
}

// Execute runs the job to completion. The returned error is unclassified;
// the caller classifies it once and decides terminal status and breaker
// contribution.
func (e *JobExecutor) Execute(ctx context.Context, job *models.Job) error {
	if e.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.JobTimeout)
		defer cancel()
	}

	// The project root is checked before any git side effects so a bad
	// configuration cannot provision a worktree it was never allowed to use.
	if err := policy.ValidateWorkspace(e.cfg.ProjectPath); err != nil {
		return fmt.Errorf("workspace rejected for job %s: %w", job.ID, err)
	}

	workDir, err := e.resolveWorkspace(job)
	if err != nil {
		return err
	}
	if workDir != e.cfg.ProjectPath {
		if err := policy.ValidateWorkspace(workDir); err != nil {
			return fmt.Errorf("workspace rejected for job %s: %w", job.ID, err)
		}
	}

	// Prior transcript output seeds the accumulated text so a resumed job
	// continues instead of starting over.
	accumulated, err := store.ReadTranscript(e.cfg.DataDir, job.ID)
	if err != nil {
		return fmt.Errorf("read transcript for job %s: %w", job.ID, err)
	}
	if accumulated != "" {
		log.Printf("[executor] job %s resuming with %d bytes of prior output", job.ID, len(accumulated))
	}

	transcript, err := store.NewTranscriptWriter(e.cfg.DataDir, job.ID)
	if err != nil {
		return fmt.Errorf("open transcript for job %s: %w", job.ID, err)
	}
	defer func() {
		if cerr := transcript.Close(); cerr != nil {
			log.Printf("[executor] job %s transcript close: %v", job.ID, cerr)
		}
	}()

	if err := e.store.PatchJob(job.ID, store.JobPatch{Status: statusPtr(models.JobStatusInProgress)}); err != nil {
		return fmt.Errorf("mark job %s in progress: %w", job.ID, err)
	}
	e.emitter.Emit(Event{Type: EventJobStarted, JobID: job.ID, JobTitle: job.Title})

	run := &store.Run{ID: uuid.New().String(), JobID: job.ID, StartedAt: time.Now()}
	if err := e.store.RecordRun(run); err != nil {
		log.Printf("[executor] job %s record run: %v", job.ID, err)
	}

	model := job.Model
	if model == "" {
		model = e.cfg.Model
	}

	output, err := e.implement(ctx, job, workDir, model, accumulated, transcript)
	if err != nil {
		e.finishRun(run.ID, "failed", err)
		return err
	}

	output, err = e.runPipeline(ctx, job, workDir, model, output, transcript)
	if err != nil {
		e.finishRun(run.ID, "failed", err)
		return err
	}

	final := models.JobStatusVerified
	if job.SkipTests {
		final = models.JobStatusWaitingApproval
	}
	if err := e.store.PatchJob(job.ID, store.JobPatch{Status: statusPtr(final)}); err != nil {
		e.finishRun(run.ID, "failed", err)
		return fmt.Errorf("finalize job %s: %w", job.ID, err)
	}

	e.finishRun(run.ID, "succeeded", nil)
	e.emitter.Emit(Event{Type: EventJobCompleted, JobID: job.ID, JobTitle: job.Title, Message: string(final)})
	return nil
}

// resolveWorkspace picks the directory the job's agent calls run in.
// Branch-bearing jobs use their worktree when isolation is enabled.
func (e *JobExecutor) resolveWorkspace(job *models.Job) (string, error) {
	if e.cfg.WorktreesEnabled && job.BranchName != "" && e.worktrees != nil {
		path, err := e.worktrees.FindForBranch(job.BranchName)
		if err != nil {
			return "", fmt.Errorf("find worktree for branch %s: %w", job.BranchName, err)
		}
		if path != "" {
			return path, nil
		}
		if prov, ok := e.worktrees.(worktreeProvisioner); ok {
			path, err = prov.EnsureForBranch(job.BranchName)
			if err != nil {
				return "", fmt.Errorf("provision worktree for branch %s: %w", job.BranchName, err)
			}
			log.Printf("[executor] job %s: created worktree for branch %s at %s", job.ID, job.BranchName, path)
			return path, nil
		}
		log.Printf("[executor] job %s: no worktree for branch %s, using project root", job.ID, job.BranchName)
	}
	return e.cfg.ProjectPath, nil
}

// worktreeProvisioner is implemented by resolvers that can create a worktree
// on demand, not just find an existing one.
type worktreeProvisioner interface {
	EnsureForBranch(branch string) (string, error)
}

// implement runs the planning state machine and the implementation agent
// calls, returning the accumulated agent output.
func (e *JobExecutor) implement(ctx context.Context, job *models.Job, workDir, model, accumulated string, transcript *store.TranscriptWriter) (string, error) {
	spec, err := e.planner.Run(ctx, job, workDir, model, transcript)
	if err != nil {
		return "", err
	}

	if spec == nil {
		// Planning skipped: one direct implementation call.
		out, err := e.runAgent(ctx, job, workDir, model, buildDirectPrompt(job), transcript)
		if err != nil {
			return "", err
		}
		return accumulated + out, nil
	}

	if len(spec.Tasks) == 0 {
		// Plan with no parseable tasks: one continuation call covers it.
		prompt := fmt.Sprintf("Implement this plan in full:\n\n%s", spec.Content)
		out, err := e.runAgent(ctx, job, workDir, model, prompt, transcript)
		if err != nil {
			return "", err
		}
		return accumulated + out, nil
	}

	return e.runTasks(ctx, job, spec, workDir, model, accumulated, transcript)
}

// runTasks executes plan tasks strictly sequentially, persisting progress
// after every task so a restart resumes at the first pending one.
func (e *JobExecutor) runTasks(ctx context.Context, job *models.Job, spec *models.PlanSpec, workDir, model, accumulated string, transcript *store.TranscriptWriter) (string, error) {
	lastPhase := ""
	for {
		task := spec.NextTask()
		if task == nil {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		task.Status = models.TaskInProgress
		spec.CurrentTaskID = task.ID
		if err := e.store.SavePlan(job.ID, spec); err != nil {
			return "", fmt.Errorf("persist task start for job %s: %w", job.ID, err)
		}
		e.emitter.Emit(Event{Type: EventTaskStarted, JobID: job.ID, TaskID: task.ID, Message: task.Description})
		log.Printf("[executor] job %s task %s: %s", job.ID, task.ID, task.Description)

		out, err := e.runAgent(ctx, job, workDir, model, BuildTaskPrompt(job, spec, task), transcript)
		if err != nil {
			// Leave the task in_progress in the persisted plan so the
			// failure point is visible.
			_ = e.store.SavePlan(job.ID, spec)
			return "", fmt.Errorf("task %s: %w", task.ID, err)
		}
		accumulated += out

		spec.MarkTaskDone(task.ID)
		if err := e.store.SavePlan(job.ID, spec); err != nil {
			return "", fmt.Errorf("persist task completion for job %s: %w", job.ID, err)
		}
		e.emitter.Emit(Event{Type: EventTaskCompleted, JobID: job.ID, TaskID: task.ID})

		if task.Phase != "" && task.Phase != lastPhase {
			if lastPhase != "" {
				e.emitter.Emit(Event{Type: EventPhaseComplete, JobID: job.ID, Message: lastPhase})
			}
			lastPhase = task.Phase
		}
	}
	if lastPhase != "" {
		e.emitter.Emit(Event{Type: EventPhaseComplete, JobID: job.ID, Message: lastPhase})
	}
	return accumulated, nil
}

// runPipeline executes configured post-processing steps sequentially, each
// seeded with the previous step's output.
func (e *JobExecutor) runPipeline(ctx context.Context, job *models.Job, workDir, model, seed string, transcript *store.TranscriptWriter) (string, error) {
	output := seed
	for i, step := range e.cfg.PipelineSteps {
		stepCtx := ctx
		if e.cfg.StepTimeout > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, e.cfg.StepTimeout)
			defer cancel()
		}

		log.Printf("[executor] job %s pipeline step %d/%d", job.ID, i+1, len(e.cfg.PipelineSteps))
		prompt := buildPipelinePrompt(step, output)
		out, err := e.runAgent(stepCtx, job, workDir, model, prompt, transcript)
		if err != nil {
			return "", fmt.Errorf("pipeline step %d: %w", i+1, err)
		}
		output = out
	}
	return output, nil
}

// runAgent executes one agent call and returns its accumulated text output.
func (e *JobExecutor) runAgent(ctx context.Context, job *models.Job, workDir, model, prompt string, transcript *store.TranscriptWriter) (string, error) {
	events, err := e.provider.ExecuteQuery(ctx, provider.QueryRequest{
		Prompt:  prompt,
		WorkDir: workDir,
		Model:   model,
	})
	if err != nil {
		return "", fmt.Errorf("start agent for job %s: %w", job.ID, err)
	}

	var out strings.Builder
	for event := range events {
		switch ev := event.(type) {
		case provider.AssistantText:
			out.WriteString(ev.Text)
			if transcript != nil {
				transcript.Append(ev.Text)
			}
			e.emitter.Emit(Event{Type: EventAgentProgress, JobID: job.ID, Message: ev.Text})
		case provider.ToolUse:
			e.emitter.Emit(Event{Type: EventToolInvocation, JobID: job.ID, Message: ev.Name})
		case provider.Result:
			e.emitter.Emit(Event{Type: EventAgentProgress, JobID: job.ID, TokensUsed: ev.TokensIn + ev.TokensOut, Cost: ev.CostUSD})
		case provider.ErrorEvent:
			return "", ev.Err
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return out.String(), nil
}

func (e *JobExecutor) finishRun(runID, outcome string, cause error) {
	kind := ""
	if cause != nil {
		kind = string(provider.Classify(cause))
	}
	tracker := trackerFor(e.provider)
	var tokensIn, tokensOut int64
	var cost float64
	if tracker != nil {
		tokensIn, tokensOut = tracker.Total()
		cost = tracker.Cost()
	}
	if err := e.store.FinishRun(runID, outcome, kind, tokensIn, tokensOut, cost); err != nil {
		log.Printf("[executor] finish run %s: %v", runID, err)
	}
}

// trackerFor unwraps the token tracker when the provider exposes one.
func trackerFor(p provider.Provider) *provider.TokenTracker {
	type tracked interface {
		Tracker() *provider.TokenTracker
	}
	if tp, ok := p.(tracked); ok {
		return tp.Tracker()
	}
	return nil
}

// buildDirectPrompt is the prompt for jobs whose planning mode skips a plan.
func buildDirectPrompt(job *models.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement this job: %s\n\n", job.Title)
	if job.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", job.Description)
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
		b.WriteString("Do not write tests; this work will be reviewed manually.\n")
	} else {
		b.WriteString("Write tests verifying the change and make sure they pass.\n")
	}
	return b.String()
}

// buildPipelinePrompt wraps a pipeline step instruction with the prior
// step's output.
func buildPipelinePrompt(step, priorOutput string) string {
	var b strings.Builder
	b.WriteString(step)
	if priorOutput != "" {
		b.WriteString("\n\nOutput of the previous step:\n")
		b.WriteString(priorOutput)
	}
	return b.String()
}
