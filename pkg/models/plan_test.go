package models

import (
	"encoding/json"
	"testing"
)

func TestPlanSpec_JSONRoundTrip(t *testing.T) {
	plan := &PlanSpec{
		Status:  PlanApproved,
		Content: "# Plan\n\nDo the thing.\n",
		Version: 3,
		Tasks: []ParsedTask{
			{ID: "T001", Description: "Add parser", FilePath: "parser.go", Status: TaskDone},
			{ID: "T002", Description: "Wire it up", Status: TaskPending},
		},
		TasksTotal:     2,
		TasksCompleted: 1,
		CurrentTaskID:  "T002",
	}

	data, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got PlanSpec
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Content != plan.Content {
		t.Errorf("content mismatch: %q != %q", got.Content, plan.Content)
	}
	if got.TasksTotal != plan.TasksTotal {
		t.Errorf("tasksTotal mismatch: %d != %d", got.TasksTotal, plan.TasksTotal)
	}
	if len(got.Tasks) != len(plan.Tasks) {
		t.Fatalf("expected %d tasks, got %d", len(plan.Tasks), len(got.Tasks))
	}
	for i := range plan.Tasks {
		if got.Tasks[i] != plan.Tasks[i] {
			t.Errorf("task %d mismatch: %+v != %+v", i, got.Tasks[i], plan.Tasks[i])
		}
	}
	if got.Version != 3 {
		t.Errorf("expected version 3, got %d", got.Version)
	}
}

func TestPlanSpec_NextTask(t *testing.T) {
	plan := &PlanSpec{
		Tasks: []ParsedTask{
			{ID: "T001", Status: TaskDone},
			{ID: "T002", Status: TaskPending},
			{ID: "T003", Status: TaskPending},
		},
	}

	next := plan.NextTask()
	if next == nil {
		t.Fatal("expected a pending task")
	}
	if next.ID != "T002" {
		t.Errorf("expected T002, got %s", next.ID)
	}

	plan.Tasks[1].Status = TaskDone
	plan.Tasks[2].Status = TaskDone
	if plan.NextTask() != nil {
		t.Error("expected no pending task")
	}
}

func TestPlanSpec_MarkTaskDone(t *testing.T) {
	plan := &PlanSpec{
		Tasks: []ParsedTask{
			{ID: "T001", Status: TaskPending},
			{ID: "T002", Status: TaskPending},
		},
		TasksTotal:    2,
		CurrentTaskID: "T001",
	}

	if !plan.MarkTaskDone("T001") {
		t.Fatal("expected MarkTaskDone to find T001")
	}
	if plan.TasksCompleted != 1 {
		t.Errorf("expected 1 completed, got %d", plan.TasksCompleted)
	}
	if plan.CurrentTaskID != "" {
		t.Errorf("expected current task cleared, got %q", plan.CurrentTaskID)
	}

	// Marking again must not double-count.
	plan.MarkTaskDone("T001")
	if plan.TasksCompleted != 1 {
		t.Errorf("expected completion count to stay 1, got %d", plan.TasksCompleted)
	}

	if plan.MarkTaskDone("T999") {
		t.Error("expected unknown task ID to return false")
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusVerified, JobStatusStopped, JobStatusWaitingApproval}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	active := []JobStatus{JobStatusBacklog, JobStatusReady, JobStatusInProgress, JobStatusPlanReview}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}
