package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dperrin/foreman/internal/config"
	"github.com/dperrin/foreman/internal/worktree"
	"github.com/dperrin/foreman/pkg/models"
)

var cleanupDryRun bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove worktrees left behind by finished jobs",
	Long: `Cleanup removes the git worktrees of jobs that reached a terminal
status (verified or stopped) and prunes stale worktree entries. Worktrees
of jobs that are still pending or running are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		project, err := resolveProjectPath()
		if err != nil {
			return err
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		jobs, err := db.ListJobs()
		if err != nil {
			return err
		}

		// A branch stays if any non-terminal job still references it.
		inUse := make(map[string]bool)
		terminal := make(map[string]bool)
		for _, job := range jobs {
			if job.BranchName == "" {
				continue
			}
			switch job.Status {
			case models.JobStatusVerified, models.JobStatusStopped:
				terminal[job.BranchName] = true
			default:
				inUse[job.BranchName] = true
			}
		}

		manager := worktree.NewManager(project)
		removed := 0
		for branch := range terminal {
			if inUse[branch] {
				continue
			}
			path, err := manager.FindForBranch(branch)
			if err != nil {
				return err
			}
			if path == "" {
				continue
			}
			if cleanupDryRun {
				printStatus("▸", fmt.Sprintf("would remove %s (branch %s)", path, branch), color.FgCyan)
				removed++
				continue
			}
			if err := manager.RemoveForBranch(branch); err != nil {
				printStatus("✗", fmt.Sprintf("remove worktree for %s: %v", branch, err), color.FgRed)
				continue
			}
			printStatus("✓", fmt.Sprintf("removed %s (branch %s)", path, branch), color.FgGreen)
			removed++
		}

		if !cleanupDryRun {
			if err := manager.Prune(); err != nil {
				return err
			}
		}

		if removed == 0 {
			fmt.Println("Nothing to clean up.")
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing it")
}
