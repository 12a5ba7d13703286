// Package graph provides a dependency graph for job scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dperrin/foreman/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the job graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph represents a directed acyclic graph of job dependencies.
// Jobs are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps job ID to the job itself.
	nodes map[string]*models.Job
	// edges maps job ID to IDs of jobs it depends on (is blocked by).
	edges map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]*models.Job),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of jobs.
// Dependencies on unknown job IDs are tolerated: jobs may reference work
// tracked outside the store. Returns an error if a cycle is detected.
func (g *DependencyGraph) Build(jobs []*models.Job) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph] building graph from %d jobs", len(jobs))

	// First pass: register all jobs as nodes.
	for _, job := range jobs {
		g.nodes[job.ID] = job
		g.edges[job.ID] = nil
	}

	// Second pass: build edges from DependsOn fields.
	for _, job := range jobs {
		for _, depID := range job.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				g.debugLog("[graph] job %s depends on unknown job %s, skipping edge", job.ID, depID)
				continue
			}
			g.edges[job.ID] = append(g.edges[job.ID], depID)
		}
	}

	// Check for cycles (use internal method since we hold the lock).
	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)
	for id := range g.nodes {
		colors[id] = 0
	}

	var hasCycle bool
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1 // Mark as in progress.

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Found a back edge - cycle detected.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
			// color == 2 means already processed, skip.
		}

		colors[id] = 2 // Mark as done.
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				hasCycle = true
				break
			}
		}
	}

	return hasCycle
}

// TopologicalSort returns job IDs in an order where all dependencies
// come before the jobs that depend on them.
// Returns an error if the graph contains a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	// Track visited nodes and build result in reverse post-order.
	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		// Visit all dependencies first.
		for _, depID := range g.edges[id] {
			visit(depID)
		}

		// Add this node after its dependencies.
		result = append(result, id)
	}

	// Visit all nodes.
	for id := range g.nodes {
		visit(id)
	}

	return result, nil
}

// GetReady returns job IDs that are schedulable: in ready status with every
// dependency verified. Backlog jobs are staged, not schedulable; a failed job
// reverted to backlog stays there until a human resumes it.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id, job := range g.nodes {
		if job.Status != models.JobStatusReady {
			continue
		}

		if g.depsSatisfiedLocked(id) {
			ready = append(ready, id)
		}
	}
	return ready
}

// DependenciesSatisfied returns true if every dependency of the job with the
// given ID is verified. Dependencies missing from the graph are ignored.
func (g *DependencyGraph) DependenciesSatisfied(jobID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.depsSatisfiedLocked(jobID)
}

func (g *DependencyGraph) depsSatisfiedLocked(jobID string) bool {
	for _, depID := range g.edges[jobID] {
		dep, exists := g.nodes[depID]
		if !exists {
			continue
		}
		if dep.Status != models.JobStatusVerified {
			return false
		}
	}
	return true
}

// GetJob returns the job for a given ID, or nil if not found.
func (g *DependencyGraph) GetJob(jobID string) *models.Job {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[jobID]
}

// Size returns the number of jobs in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of jobs that the given job depends on.
func (g *DependencyGraph) GetDependencies(jobID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[jobID]
}

// GetDependents returns the IDs of jobs that depend on the given job.
func (g *DependencyGraph) GetDependents(jobID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == jobID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// ResolveDependencies builds a graph from the given jobs and returns the
// schedulable ones in topological order.
func ResolveDependencies(jobs []*models.Job) ([]*models.Job, error) {
	g := New()
	if err := g.Build(jobs); err != nil {
		return nil, fmt.Errorf("build dependency graph: %w", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	readySet := make(map[string]bool)
	for _, id := range g.GetReady() {
		readySet[id] = true
	}

	var runnable []*models.Job
	for _, id := range order {
		if readySet[id] {
			runnable = append(runnable, g.GetJob(id))
		}
	}
	return runnable, nil
}
