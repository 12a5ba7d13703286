package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dperrin/foreman/internal/config"
	"github.com/dperrin/foreman/internal/provider"
	"github.com/dperrin/foreman/internal/store"
	"github.com/dperrin/foreman/internal/worktree"
	"github.com/dperrin/foreman/pkg/models"
)

// ErrAlreadyRunning is returned when a job or the loop is started twice.
var ErrAlreadyRunning = errors.New("already running")

// runningJob tracks one in-flight job execution.
type runningJob struct {
	jobID     string
	cancel    context.CancelFunc
	startedAt time.Time
}

// Orchestrator schedules jobs under a concurrency limit and supervises their
// execution. The running map is the only structure shared between the loop
// and control operations; o.mu guards it.
type Orchestrator struct {
	store    store.Store
	executor *JobExecutor
	gate     *PlanApprovalGate
	emitter  *EventEmitter
	pause    *PauseController
	breaker  *FailureTracker

	concurrency  int
	pollInterval time.Duration
	idleInterval time.Duration

	signals *SignalWatcher

	mu          sync.Mutex
	running     map[string]*runningJob
	loopCancel  context.CancelFunc
	loopDone    chan struct{}
	loopRunning bool
}

// New wires an orchestrator from configuration.
func New(cfg *config.Config, s store.Store, p provider.Provider, wt worktree.Resolver, projectPath, dataDir string) *Orchestrator {
	emitter := NewEventEmitter(256)
	gate := NewPlanApprovalGate(cfg.Orchestrator.ApprovalTimeout)
	planner := NewPlanner(p, s, gate, emitter)
	executor := NewJobExecutor(p, s, wt, planner, emitter, ExecutorConfig{
		ProjectPath:      projectPath,
		DataDir:          dataDir,
		Model:            cfg.Provider.Model,
		WorktreesEnabled: cfg.Worktrees.Enabled,
		PipelineSteps:    cfg.Pipeline.Steps,
		StepTimeout:      cfg.Pipeline.StepTimeout,
		JobTimeout:       cfg.Orchestrator.JobTimeout,
	})

	return &Orchestrator{
		store:        s,
		executor:     executor,
		gate:         gate,
		emitter:      emitter,
		pause:        NewPauseController(),
		breaker:      NewFailureTracker(cfg.Orchestrator.FailureThreshold, cfg.Orchestrator.FailureWindow),
		concurrency:  cfg.Orchestrator.Concurrency,
		pollInterval: cfg.Orchestrator.PollInterval,
		idleInterval: cfg.Orchestrator.IdleInterval,
		running:      make(map[string]*runningJob),
	}
}

// SetSignalWatcher attaches a file-based signal watcher the loop consults
// between scheduling passes.
func (o *Orchestrator) SetSignalWatcher(sw *SignalWatcher) {
	o.signals = sw
}

// Events returns the orchestrator's event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// ApprovalRequests returns the stream of plans awaiting human review.
func (o *Orchestrator) ApprovalRequests() <-chan ApprovalRequest {
	return o.gate.RequestCh()
}

// RunningCount returns the number of jobs currently executing.
func (o *Orchestrator) RunningCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// IsRunning reports whether the job is in the running set.
func (o *Orchestrator) IsRunning(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.running[jobID]
	return ok
}

// ExecuteJob starts the job immediately, outside loop scheduling.
// A job already in the running set is rejected.
func (o *Orchestrator) ExecuteJob(jobID string) error {
	job, err := o.store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return o.launch(job)
}

// StopJob cancels a running job. A job suspended at the approval gate has
// its pending approval rejected so the gate's timeout resource is released.
func (o *Orchestrator) StopJob(jobID string) error {
	o.mu.Lock()
	rj, ok := o.running[jobID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("job not running: %s", jobID)
	}

	if o.gate.HasPending(jobID) {
		if err := o.gate.Resolve(jobID, ApprovalDecision{Approved: false}); err != nil {
			log.Printf("[orchestrator] reject pending approval for %s: %v", jobID, err)
		}
	}
	rj.cancel()
	log.Printf("[orchestrator] job %s stop requested", jobID)
	return nil
}

// ResumeJob puts a stopped or backlogged job back in a schedulable state and
// starts it immediately.
func (o *Orchestrator) ResumeJob(jobID string) error {
	job, err := o.store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err := o.store.PatchJob(jobID, store.JobPatch{Status: statusPtr(models.JobStatusReady)}); err != nil {
		return fmt.Errorf("mark job %s ready: %w", jobID, err)
	}
	job.Status = models.JobStatusReady
	return o.launch(job)
}

// FollowUpJob runs an extra instruction against a job that already
// completed, in the job's workspace. The job re-enters the running set for
// the duration of the follow-up.
func (o *Orchestrator) FollowUpJob(jobID, instruction string) error {
	if instruction == "" {
		return fmt.Errorf("follow-up instruction is empty")
	}
	job, err := o.store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := o.track(jobID, cancel); err != nil {
		cancel()
		return err
	}

	go func() {
		defer o.untrack(jobID)
		defer cancel()

		workDir, err := o.executor.resolveWorkspace(job)
		if err != nil {
			o.finishJob(job, err)
			return
		}
		transcript, err := store.NewTranscriptWriter(o.executor.cfg.DataDir, job.ID)
		if err != nil {
			o.finishJob(job, err)
			return
		}
		defer transcript.Close()

		model := job.Model
		if model == "" {
			model = o.executor.cfg.Model
		}
		o.emitter.Emit(Event{Type: EventJobStarted, JobID: job.ID, JobTitle: job.Title, Message: "follow-up"})
		_, err = o.executor.runAgent(ctx, job, workDir, model, BuildFollowUpPrompt(job, instruction), transcript)
		o.finishJob(job, err)
	}()
	return nil
}

// ResolvePlanApproval applies a human decision to a job's pending plan
// approval. When no in-memory waiter exists (the process restarted while
// the plan sat in review), the decision is applied to the persisted plan
// and the job is relaunched.
func (o *Orchestrator) ResolvePlanApproval(jobID string, approved bool, editedPlan, feedback string) error {
	decision := ApprovalDecision{Approved: approved, EditedPlan: editedPlan, Feedback: feedback}

	if o.gate.HasPending(jobID) {
		return o.gate.Resolve(jobID, decision)
	}

	// No waiter: rebuild from the persisted plan.
	job, err := o.store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	planSpec, err := o.store.LoadPlan(jobID)
	if err != nil {
		return fmt.Errorf("load plan for job %s: %w", jobID, err)
	}
	if planSpec == nil || planSpec.Status != models.PlanGenerated {
		return fmt.Errorf("no plan awaiting approval for job %s", jobID)
	}

	if !approved && feedback == "" {
		planSpec.Status = models.PlanRejected
		if err := o.store.SavePlan(jobID, planSpec); err != nil {
			return fmt.Errorf("save rejected plan for job %s: %w", jobID, err)
		}
		if err := o.store.PatchJob(jobID, store.JobPatch{Status: statusPtr(models.JobStatusStopped)}); err != nil {
			return fmt.Errorf("stop job %s: %w", jobID, err)
		}
		o.emitter.Emit(Event{Type: EventPlanRejected, JobID: jobID, PlanVersion: planSpec.Version})
		return nil
	}

	if approved {
		if editedPlan != "" && editedPlan != planSpec.Content {
			planSpec.Content = editedPlan
			planSpec.Version++
		}
		planSpec.Status = models.PlanApproved
		planSpec.ReviewedByUser = true
		now := time.Now()
		planSpec.ApprovedAt = &now
		if err := o.store.SavePlan(jobID, planSpec); err != nil {
			return fmt.Errorf("save approved plan for job %s: %w", jobID, err)
		}
	} else {
		// Rejection with feedback: persist rejection and guidance so the
		// relaunched job regenerates at the next version with the
		// reviewer's feedback in the prompt.
		planSpec.Status = models.PlanRejected
		planSpec.Feedback = feedback
		if err := o.store.SavePlan(jobID, planSpec); err != nil {
			return fmt.Errorf("save plan for job %s: %w", jobID, err)
		}
	}

	if err := o.store.PatchJob(jobID, store.JobPatch{Status: statusPtr(models.JobStatusReady)}); err != nil {
		return fmt.Errorf("mark job %s ready: %w", jobID, err)
	}
	job.Status = models.JobStatusReady
	return o.launch(job)
}

// launch registers the job in the running set and starts its executor
// goroutine. Insertion happens before any I/O; removal is deferred and
// unconditional.
func (o *Orchestrator) launch(job *models.Job) error {
	ctx, cancel := context.WithCancel(context.Background())
	if err := o.track(job.ID, cancel); err != nil {
		cancel()
		return err
	}

	go func() {
		defer o.untrack(job.ID)
		defer cancel()
		err := o.executor.Execute(ctx, job)
		o.finishJob(job, err)
	}()
	return nil
}

// track inserts a job into the running set, rejecting duplicates.
func (o *Orchestrator) track(jobID string, cancel context.CancelFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.running[jobID]; exists {
		return fmt.Errorf("job %s: %w", jobID, ErrAlreadyRunning)
	}
	o.running[jobID] = &runningJob{jobID: jobID, cancel: cancel, startedAt: time.Now()}
	return nil
}

func (o *Orchestrator) untrack(jobID string) {
	o.mu.Lock()
	delete(o.running, jobID)
	o.mu.Unlock()
}

// finishJob classifies the execution outcome once and applies terminal
// status, breaker contribution, and events.
func (o *Orchestrator) finishJob(job *models.Job, err error) {
	if err == nil {
		o.breaker.RecordSuccess()
		return
	}

	kind := provider.Classify(err)
	switch kind {
	case provider.FailureCancellation:
		if perr := o.store.PatchJob(job.ID, store.JobPatch{Status: statusPtr(models.JobStatusStopped)}); perr != nil {
			log.Printf("[orchestrator] mark job %s stopped: %v", job.ID, perr)
		}
		o.emitter.Emit(Event{Type: EventJobStopped, JobID: job.ID, JobTitle: job.Title})
		log.Printf("[orchestrator] job %s stopped", job.ID)

	case provider.FailurePlanCancelled:
		if perr := o.store.PatchJob(job.ID, store.JobPatch{Status: statusPtr(models.JobStatusStopped)}); perr != nil {
			log.Printf("[orchestrator] mark job %s stopped: %v", job.ID, perr)
		}
		o.emitter.Emit(Event{Type: EventJobStopped, JobID: job.ID, JobTitle: job.Title, Message: "plan rejected"})

	case provider.FailureAuthentication, provider.FailureTimeout:
		// Terminal: retrying cannot succeed without operator action, so the
		// job must not re-enter the schedulable set or feed the breaker.
		if perr := o.store.PatchJob(job.ID, store.JobPatch{Status: statusPtr(models.JobStatusStopped)}); perr != nil {
			log.Printf("[orchestrator] mark job %s stopped: %v", job.ID, perr)
		}
		o.emitter.Emit(Event{
			Type:        EventJobFailed,
			JobID:       job.ID,
			JobTitle:    job.Title,
			Error:       err,
			FailureKind: string(kind),
		})
		log.Printf("[orchestrator] job %s failed terminally (%s): %v", job.ID, kind, err)

	default:
		if perr := o.store.PatchJob(job.ID, store.JobPatch{Status: statusPtr(models.JobStatusBacklog)}); perr != nil {
			log.Printf("[orchestrator] revert job %s to backlog: %v", job.ID, perr)
		}
		o.emitter.Emit(Event{
			Type:        EventJobFailed,
			JobID:       job.ID,
			JobTitle:    job.Title,
			Error:       err,
			FailureKind: string(kind),
		})
		log.Printf("[orchestrator] job %s failed (%s): %v", job.ID, kind, err)

		if o.breaker.RecordFailure(kind) {
			o.pauseForFailures(kind, err)
		}
	}
}

// pauseForFailures pauses scheduling after the breaker trips. Pausing is
// idempotent.
func (o *Orchestrator) pauseForFailures(kind provider.FailureKind, lastErr error) {
	if o.pause.IsPaused() {
		return
	}
	reason := fmt.Sprintf("%d failures in window, last: %v", o.breaker.Count(), lastErr)
	if kind.IsPausable() {
		reason = fmt.Sprintf("%s: %v", kind, lastErr)
	}
	o.pause.Pause(reason)
	o.emitter.Emit(Event{
		Type:        EventLoopPaused,
		Message:     reason,
		Error:       lastErr,
		FailureKind: string(kind),
	})
}

// RestartAfterPause clears the paused flag and the failure window so
// scheduling resumes.
func (o *Orchestrator) RestartAfterPause() {
	o.breaker.RecordSuccess()
	o.pause.Resume()
	o.emitter.Emit(Event{Type: EventLoopResumed})
}
