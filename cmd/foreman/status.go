package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dperrin/foreman/internal/config"
	"github.com/dperrin/foreman/internal/git"
	"github.com/dperrin/foreman/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize jobs and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		printGitStatus()

		jobs, err := db.ListJobs()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs. Add one with 'foreman add <description>'.")
			return nil
		}

		counts := make(map[models.JobStatus]int)
		for _, job := range jobs {
			counts[job.Status]++
		}

		order := []models.JobStatus{
			models.JobStatusInProgress,
			models.JobStatusPlanReview,
			models.JobStatusReady,
			models.JobStatusBacklog,
			models.JobStatusWaitingApproval,
			models.JobStatusVerified,
			models.JobStatusStopped,
		}
		fmt.Printf("%d job(s):\n", len(jobs))
		for _, status := range order {
			if n := counts[status]; n > 0 {
				fmt.Printf("  %-18s %d\n", statusLabel(status), n)
			}
		}

		var totalCost float64
		var totalRuns int
		for _, job := range jobs {
			runs, err := db.ListRuns(job.ID)
			if err != nil {
				continue
			}
			totalRuns += len(runs)
			for _, run := range runs {
				totalCost += run.Cost
			}
		}
		if totalRuns > 0 {
			fmt.Printf("\n%d run(s), $%.4f total\n", totalRuns, totalCost)
		}

		// Highlight anything a human needs to act on.
		var attention []*models.Job
		for _, job := range jobs {
			if job.Status == models.JobStatusPlanReview || job.Status == models.JobStatusWaitingApproval {
				attention = append(attention, job)
			}
		}
		if len(attention) > 0 {
			sort.Slice(attention, func(i, j int) bool { return attention[i].UpdatedAt.Before(attention[j].UpdatedAt) })
			fmt.Printf("\n%s needs attention:\n", color.MagentaString("▸"))
			for _, job := range attention {
				fmt.Printf("  %s  %-16s %s\n", job.ID, job.Status, job.Title)
			}
		}
		return nil
	},
}

// printGitStatus shows the repo branch and warns about uncommitted changes.
// Errors are swallowed: status still works in a non-git directory.
func printGitStatus() {
	project, err := resolveProjectPath()
	if err != nil {
		return
	}
	runner := git.NewRunner(project)
	branch, err := runner.CurrentBranch()
	if err != nil {
		return
	}
	fmt.Printf("On branch %s\n", color.CyanString(branch))
	if dirty, err := runner.HasChanges(); err == nil && dirty {
		fmt.Printf("%s working tree has uncommitted changes\n", color.YellowString("!"))
	}
	fmt.Println()
}
