package graph

import (
	"testing"

	"github.com/dperrin/foreman/pkg/models"
)

func job(id string, status models.JobStatus, deps ...string) *models.Job {
	return &models.Job{ID: id, Status: status, DependsOn: deps}
}

func TestBuild_DetectsCycle(t *testing.T) {
	jobs := []*models.Job{
		job("a", models.JobStatusBacklog, "b"),
		job("b", models.JobStatusBacklog, "a"),
	}

	g := New()
	if err := g.Build(jobs); err != ErrCycleDetected {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestBuild_IgnoresUnknownDependencies(t *testing.T) {
	jobs := []*models.Job{
		job("a", models.JobStatusBacklog, "external-ticket"),
	}

	g := New()
	if err := g.Build(jobs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !g.DependenciesSatisfied("a") {
		t.Error("unknown dependency should not block scheduling")
	}
}

func TestGetReady(t *testing.T) {
	jobs := []*models.Job{
		job("a", models.JobStatusVerified),
		job("b", models.JobStatusReady, "a"),
		job("c", models.JobStatusReady, "b"),
		job("d", models.JobStatusInProgress),
	}

	g := New()
	if err := g.Build(jobs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "b" {
		t.Errorf("expected only 'b' ready, got %v", ready)
	}
}

func TestGetReady_BacklogIsNotSchedulable(t *testing.T) {
	jobs := []*models.Job{
		job("staged", models.JobStatusBacklog),
		job("failed-and-reverted", models.JobStatusBacklog),
		job("go", models.JobStatusReady),
	}

	g := New()
	if err := g.Build(jobs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "go" {
		t.Errorf("backlog jobs must not be schedulable, got %v", ready)
	}
}

func TestTopologicalSort(t *testing.T) {
	jobs := []*models.Job{
		job("c", models.JobStatusBacklog, "b"),
		job("b", models.JobStatusBacklog, "a"),
		job("a", models.JobStatusBacklog),
	}

	g := New()
	if err := g.Build(jobs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort failed: %v", err)
	}

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Errorf("dependencies must come first, got %v", order)
	}
}

func TestResolveDependencies(t *testing.T) {
	jobs := []*models.Job{
		job("b", models.JobStatusReady, "a"),
		job("a", models.JobStatusReady),
		job("done", models.JobStatusVerified),
	}

	runnable, err := ResolveDependencies(jobs)
	if err != nil {
		t.Fatalf("ResolveDependencies failed: %v", err)
	}

	// 'a' is runnable, 'b' is blocked on it, 'done' is terminal.
	if len(runnable) != 1 || runnable[0].ID != "a" {
		ids := make([]string, len(runnable))
		for i, j := range runnable {
			ids[i] = j.ID
		}
		t.Errorf("expected only 'a' runnable, got %v", ids)
	}
}

func TestGetDependents(t *testing.T) {
	jobs := []*models.Job{
		job("a", models.JobStatusBacklog),
		job("b", models.JobStatusBacklog, "a"),
		job("c", models.JobStatusBacklog, "a"),
	}

	g := New()
	if err := g.Build(jobs); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	dependents := g.GetDependents("a")
	if len(dependents) != 2 {
		t.Errorf("expected 2 dependents, got %v", dependents)
	}
}
