package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dperrin/foreman/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testJob(id string) *models.Job {
	now := time.Now()
	return &models.Job{
		ID:           id,
		Title:        "Add widget endpoint",
		Description:  "Expose widgets over HTTP",
		PlanningMode: models.PlanningLite,
		Status:       models.JobStatusBacklog,
		DependsOn:    []string{"job-0"},
		ContextNotes: []string{"uses the v2 router"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestJobRoundTrip(t *testing.T) {
	db := openTestDB(t)

	job := testJob("job-1")
	if err := db.CreateJob(job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	got, err := db.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected job, got nil")
	}
	if got.Title != job.Title || got.PlanningMode != models.PlanningLite {
		t.Errorf("unexpected job: %+v", got)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0] != "job-0" {
		t.Errorf("depends_on lost: %v", got.DependsOn)
	}
	if len(got.ContextNotes) != 1 {
		t.Errorf("context notes lost: %v", got.ContextNotes)
	}
}

func TestGetJob_Missing(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetJob("nope")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing job, got %+v", got)
	}
}

func TestPatchJob(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateJob(testJob("job-1")); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	status := models.JobStatusInProgress
	branch := "feature/widgets"
	if err := db.PatchJob("job-1", JobPatch{Status: &status, BranchName: &branch}); err != nil {
		t.Fatalf("PatchJob failed: %v", err)
	}

	got, err := db.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != models.JobStatusInProgress {
		t.Errorf("status not patched: %s", got.Status)
	}
	if got.BranchName != "feature/widgets" {
		t.Errorf("branch not patched: %q", got.BranchName)
	}
	// Untouched fields survive
	if got.Title != "Add widget endpoint" {
		t.Errorf("title should be unchanged, got %q", got.Title)
	}
}

func TestPatchJob_Missing(t *testing.T) {
	db := openTestDB(t)

	status := models.JobStatusStopped
	if err := db.PatchJob("ghost", JobPatch{Status: &status}); err == nil {
		t.Error("expected error patching missing job")
	}
}

func TestPlanRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateJob(testJob("job-1")); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	plan := &models.PlanSpec{
		Status:     models.PlanApproved,
		Content:    "## Phase 1\n- [ ] T001: Do X | File: a.ts",
		Version:    2,
		TasksTotal: 1,
		Tasks: []models.ParsedTask{
			{ID: "T001", Description: "Do X", FilePath: "a.ts", Phase: "Phase 1", Status: models.TaskPending},
		},
	}
	if err := db.SavePlan("job-1", plan); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}

	got, err := db.LoadPlan("job-1")
	if err != nil {
		t.Fatalf("LoadPlan failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected plan, got nil")
	}
	if got.Version != 2 || got.Content != plan.Content {
		t.Errorf("plan content or version lost: %+v", got)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].ID != "T001" || got.Tasks[0].FilePath != "a.ts" {
		t.Errorf("parsed tasks lost: %+v", got.Tasks)
	}

	// Saving again replaces the stored plan
	plan.Version = 3
	plan.Tasks[0].Status = models.TaskDone
	if err := db.SavePlan("job-1", plan); err != nil {
		t.Fatalf("SavePlan (update) failed: %v", err)
	}
	got, err = db.LoadPlan("job-1")
	if err != nil {
		t.Fatalf("LoadPlan failed: %v", err)
	}
	if got.Version != 3 || got.Tasks[0].Status != models.TaskDone {
		t.Errorf("plan update lost: %+v", got)
	}
}

func TestLoadPlan_Missing(t *testing.T) {
	db := openTestDB(t)

	got, err := db.LoadPlan("nope")
	if err != nil {
		t.Fatalf("LoadPlan failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing plan, got %+v", got)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateJob(testJob("job-1")); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	run := &Run{ID: "run-1", JobID: "job-1", StartedAt: time.Now()}
	if err := db.RecordRun(run); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	if err := db.FinishRun("run-1", "failed", "rate_limit", 1200, 340, 0.02); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := db.ListRuns("job-1")
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Outcome != "failed" || runs[0].FailureKind != "rate_limit" {
		t.Errorf("unexpected run outcome: %+v", runs[0])
	}
	if runs[0].FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if runs[0].TokensIn != 1200 || runs[0].TokensOut != 340 {
		t.Errorf("token usage lost: %+v", runs[0])
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}
