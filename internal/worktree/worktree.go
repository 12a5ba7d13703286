// Package worktree resolves job branches to git worktree checkouts.
package worktree

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dperrin/foreman/internal/git"
)

// Worktree represents a single entry from git worktree list.
type Worktree struct {
	// Path is the absolute path to the worktree directory.
	Path string
	// BranchName is the branch checked out in this worktree.
	BranchName string
	// Detached is true when the worktree has a detached HEAD.
	Detached bool
}

// Resolver locates worktrees for job branches.
// This interface allows mocking worktree operations in tests.
type Resolver interface {
	// FindForBranch returns the worktree path for the given branch,
	// or an empty string when no worktree has it checked out.
	FindForBranch(branch string) (string, error)
	// List returns all worktrees of the repository.
	List() ([]*Worktree, error)
}

// Verify Manager implements Resolver at compile time.
var _ Resolver = (*Manager)(nil)

// Manager resolves worktrees using a git runner.
type Manager struct {
	repoPath string
	git      git.Runner
	mu       sync.Mutex
}

// NewManager creates a Manager for the repository at the given path.
func NewManager(repoPath string) *Manager {
	return &Manager{
		repoPath: repoPath,
		git:      git.NewRunner(repoPath),
	}
}

// NewManagerWithRunner creates a Manager with a custom git runner (for testing).
func NewManagerWithRunner(repoPath string, runner git.Runner) *Manager {
	return &Manager{
		repoPath: repoPath,
		git:      runner,
	}
}

// FindForBranch returns the worktree path for the given branch,
// or an empty string when no worktree has it checked out.
func (m *Manager) FindForBranch(branch string) (string, error) {
	if branch == "" {
		return "", nil
	}

	worktrees, err := m.List()
	if err != nil {
		return "", err
	}

	for _, wt := range worktrees {
		if wt.BranchName == branch {
			return wt.Path, nil
		}
	}
	return "", nil
}

// List returns all worktrees of the repository.
func (m *Manager) List() ([]*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.git.WorktreeListPorcelain()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	return ParseWorktrees(output)
}

// RepoPath returns the path to the main git repository.
func (m *Manager) RepoPath() string {
	return m.repoPath
}

// EnsureForBranch returns the worktree path for the branch, creating the
// worktree under <repo>/.foreman/worktrees/ when none exists yet. The branch
// itself is created too if the repository does not have it.
func (m *Manager) EnsureForBranch(branch string) (string, error) {
	if branch == "" {
		return "", fmt.Errorf("ensure worktree: branch name is empty")
	}

	existing, err := m.FindForBranch(branch)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(m.repoPath, ".foreman", "worktrees", sanitizeBranch(branch))

	exists, err := m.git.BranchExists(branch)
	if err != nil {
		return "", fmt.Errorf("check branch %s: %w", branch, err)
	}

	if exists {
		err = m.git.WorktreeAdd(path, branch)
	} else {
		err = m.git.WorktreeAddNewBranch(path, branch)
	}
	if err != nil {
		return "", fmt.Errorf("add worktree for %s: %w", branch, err)
	}
	return path, nil
}

// RemoveForBranch removes the worktree that has the branch checked out.
// It is a no-op when no worktree exists for the branch.
func (m *Manager) RemoveForBranch(branch string) error {
	path, err := m.FindForBranch(branch)
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreeRemove(path); err != nil {
		return fmt.Errorf("remove worktree %s: %w", path, err)
	}
	return nil
}

// Prune removes stale worktree administrative entries.
func (m *Manager) Prune() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreePrune(); err != nil {
		return fmt.Errorf("prune worktrees: %w", err)
	}
	return nil
}

// sanitizeBranch maps a branch name to a filesystem-safe directory name.
func sanitizeBranch(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}

// ParseWorktrees parses the output of 'git worktree list --porcelain'.
func ParseWorktrees(output string) ([]*Worktree, error) {
	var worktrees []*Worktree
	var current *Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if current != nil {
				worktrees = append(worktrees, current)
				current = nil
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "worktree "):
			current = &Worktree{
				Path: strings.TrimPrefix(line, "worktree "),
			}
		case strings.HasPrefix(line, "branch ") && current != nil:
			// Format: branch refs/heads/<name>
			branchRef := strings.TrimPrefix(line, "branch ")
			current.BranchName = strings.TrimPrefix(branchRef, "refs/heads/")
		case line == "detached" && current != nil:
			current.Detached = true
		}
	}

	// Don't forget the last worktree if output doesn't end with blank line
	if current != nil {
		worktrees = append(worktrees, current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse worktree list: %w", err)
	}

	return worktrees, nil
}
