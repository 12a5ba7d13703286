package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dperrin/foreman/pkg/models"
)

// Store is the persistence boundary the orchestrator depends on.
type Store interface {
	CreateJob(job *models.Job) error
	GetJob(id string) (*models.Job, error)
	ListJobs() ([]*models.Job, error)
	PatchJob(id string, patch JobPatch) error

	SavePlan(jobID string, plan *models.PlanSpec) error
	LoadPlan(jobID string) (*models.PlanSpec, error)

	RecordRun(run *Run) error
	FinishRun(runID string, outcome, failureKind string, tokensIn, tokensOut int64, cost float64) error
	ListRuns(jobID string) ([]*Run, error)

	Close() error
}

// JobPatch is a partial job update. Nil fields are left unchanged.
type JobPatch struct {
	Title        *string
	Description  *string
	Spec         *string
	Model        *string
	PlanningMode *models.PlanningMode
	BranchName   *string
	Status       *models.JobStatus
	DependsOn    *[]string
	ContextNotes *[]string
}

// Run records one execution attempt of a job.
type Run struct {
	ID          string     `json:"id"`
	JobID       string     `json:"jobId"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Outcome     string     `json:"outcome,omitempty"`
	FailureKind string     `json:"failureKind,omitempty"`
	TokensIn    int64      `json:"tokensIn"`
	TokensOut   int64      `json:"tokensOut"`
	Cost        float64    `json:"cost"`
}

// Verify DB implements Store at compile time.
var _ Store = (*DB)(nil)

// CreateJob inserts a new job.
func (db *DB) CreateJob(job *models.Job) error {
	dependsOn, err := json.Marshal(job.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	contextNotes, err := json.Marshal(job.ContextNotes)
	if err != nil {
		return fmt.Errorf("marshal context_notes: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO jobs (id, title, description, spec, model, planning_mode, require_approval,
			branch_name, status, depends_on, skip_tests, context_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Title, job.Description, job.Spec, job.Model, string(job.PlanningMode),
		boolToInt(job.RequireApproval), job.BranchName, string(job.Status), string(dependsOn),
		boolToInt(job.SkipTests), string(contextNotes), formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns nil when the job does not exist.
func (db *DB) GetJob(id string) (*models.Job, error) {
	row := db.QueryRow(`
		SELECT id, title, description, spec, model, planning_mode, require_approval,
			branch_name, status, depends_on, skip_tests, context_notes, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns all jobs ordered by creation time.
func (db *DB) ListJobs() ([]*models.Job, error) {
	rows, err := db.Query(`
		SELECT id, title, description, spec, model, planning_mode, require_approval,
			branch_name, status, depends_on, skip_tests, context_notes, created_at, updated_at
		FROM jobs ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// PatchJob merges the non-nil fields of the patch into the stored job.
// The job's updated_at is always refreshed.
func (db *DB) PatchJob(id string, patch JobPatch) error {
	query := "UPDATE jobs SET updated_at = ?"
	args := []any{formatTime(time.Now())}

	appendField := func(column string, value any) {
		query += ", " + column + " = ?"
		args = append(args, value)
	}

	if patch.Title != nil {
		appendField("title", *patch.Title)
	}
	if patch.Description != nil {
		appendField("description", *patch.Description)
	}
	if patch.Spec != nil {
		appendField("spec", *patch.Spec)
	}
	if patch.Model != nil {
		appendField("model", *patch.Model)
	}
	if patch.PlanningMode != nil {
		appendField("planning_mode", string(*patch.PlanningMode))
	}
	if patch.BranchName != nil {
		appendField("branch_name", *patch.BranchName)
	}
	if patch.Status != nil {
		appendField("status", string(*patch.Status))
	}
	if patch.DependsOn != nil {
		data, err := json.Marshal(*patch.DependsOn)
		if err != nil {
			return fmt.Errorf("marshal depends_on: %w", err)
		}
		appendField("depends_on", string(data))
	}
	if patch.ContextNotes != nil {
		data, err := json.Marshal(*patch.ContextNotes)
		if err != nil {
			return fmt.Errorf("marshal context_notes: %w", err)
		}
		appendField("context_notes", string(data))
	}

	query += " WHERE id = ?"
	args = append(args, id)

	result, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("patch job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("patch job rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job not found: %s", id)
	}
	return nil
}

// SavePlan writes the plan for a job, replacing any previous plan.
// The full plan is stored as JSON so parsed tasks and progress survive restarts.
func (db *DB) SavePlan(jobID string, plan *models.PlanSpec) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO plans (job_id, version, status, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			version = excluded.version,
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, jobID, plan.Version, string(plan.Status), string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// LoadPlan reads the plan for a job. Returns nil when no plan is stored.
func (db *DB) LoadPlan(jobID string) (*models.PlanSpec, error) {
	row := db.QueryRow("SELECT data FROM plans WHERE job_id = ?", jobID)

	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}

	var plan models.PlanSpec
	if err := json.Unmarshal([]byte(data), &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return &plan, nil
}

// RecordRun inserts a run row at execution start.
func (db *DB) RecordRun(run *Run) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, job_id, started_at, tokens_in, tokens_out, cost)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.JobID, formatTime(run.StartedAt), run.TokensIn, run.TokensOut, run.Cost)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// FinishRun records the outcome and usage of a completed run.
func (db *DB) FinishRun(runID string, outcome, failureKind string, tokensIn, tokensOut int64, cost float64) error {
	_, err := db.Exec(`
		UPDATE runs SET finished_at = ?, outcome = ?, failure_kind = ?,
			tokens_in = ?, tokens_out = ?, cost = ?
		WHERE id = ?
	`, formatTime(time.Now()), outcome, failureKind, tokensIn, tokensOut, cost, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// ListRuns returns all runs for a job, newest first.
func (db *DB) ListRuns(jobID string) ([]*Run, error) {
	rows, err := db.Query(`
		SELECT id, job_id, started_at, finished_at, outcome, failure_kind, tokens_in, tokens_out, cost
		FROM runs WHERE job_id = ? ORDER BY started_at DESC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var startedAt string
		var finishedAt, outcome, failureKind sql.NullString
		if err := rows.Scan(&run.ID, &run.JobID, &startedAt, &finishedAt, &outcome,
			&failureKind, &run.TokensIn, &run.TokensOut, &run.Cost); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt, _ = parseTime(startedAt)
		run.FinishedAt = parseNullableTime(finishedAt)
		run.Outcome = outcome.String
		run.FailureKind = failureKind.String
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.Job, error) {
	var job models.Job
	var planningMode, status string
	var requireApproval, skipTests int
	var dependsOn, contextNotes sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&job.ID, &job.Title, &job.Description, &job.Spec, &job.Model,
		&planningMode, &requireApproval, &job.BranchName, &status, &dependsOn,
		&skipTests, &contextNotes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.PlanningMode = models.PlanningMode(planningMode)
	job.Status = models.JobStatus(status)
	job.RequireApproval = requireApproval != 0
	job.SkipTests = skipTests != 0
	job.CreatedAt, _ = parseTime(createdAt)
	job.UpdatedAt, _ = parseTime(updatedAt)

	if dependsOn.Valid && dependsOn.String != "" {
		if err := json.Unmarshal([]byte(dependsOn.String), &job.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal depends_on: %w", err)
		}
	}
	if contextNotes.Valid && contextNotes.String != "" {
		if err := json.Unmarshal([]byte(contextNotes.String), &job.ContextNotes); err != nil {
			return nil, fmt.Errorf("unmarshal context_notes: %w", err)
		}
	}

	return &job, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
