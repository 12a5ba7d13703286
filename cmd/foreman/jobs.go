package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dperrin/foreman/internal/config"
	"github.com/dperrin/foreman/internal/store"
	"github.com/dperrin/foreman/pkg/models"
)

var (
	addTitle           string
	addSpec            string
	addModel           string
	addPlanningMode    string
	addBranch          string
	addDependsOn       []string
	addContextNotes    []string
	addSkipTests       bool
	addRequireApproval bool
)

var addCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Add a job in ready status",
	Long: `Add a job the scheduling loop can pick up. Jobs are created ready;
a job that fails is reverted to backlog and stays out of scheduling
until 'foreman resume' marks it ready again.`,
	Args:  cobra.MinimumNArgs(1),
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

		mode := models.PlanningMode(addPlanningMode)
		switch mode {
		case models.PlanningSkip, models.PlanningLite, models.PlanningLiteWithApproval,
			models.PlanningSpec, models.PlanningFull:
		default:
			return fmt.Errorf("invalid planning mode %q (skip|lite|lite_with_approval|spec|full)", addPlanningMode)
		}

		now := time.Now()
		job := &models.Job{
			ID:              uuid.New().String()[:8],
			Title:           addTitle,
			Description:     strings.Join(args, " "),
			Spec:            addSpec,
			Model:           addModel,
			PlanningMode:    mode,
			RequireApproval: addRequireApproval,
			BranchName:      addBranch,
			Status:          models.JobStatusReady,
			DependsOn:       addDependsOn,
			SkipTests:       addSkipTests,
			ContextNotes:    addContextNotes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if job.Title == "" {
			job.Title = truncate(job.Description, 60)
		}

		if err := db.CreateJob(job); err != nil {
			return err
		}
		fmt.Printf("%s added job %s: %s\n", color.GreenString("✓"), job.ID, job.Title)
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs",
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

		jobs, err := db.ListJobs()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No jobs. Add one with 'foreman add <description>'.")
			return nil
		}

		sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
		for _, job := range jobs {
			deps := ""
			if len(job.DependsOn) > 0 {
				deps = "  deps: " + strings.Join(job.DependsOn, ",")
			}
			fmt.Printf("%s  %-16s %s%s\n", job.ID, statusLabel(job.Status), job.Title, deps)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job, its plan, and its runs",
	Args:  cobra.ExactArgs(1),
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

		job, err := db.GetJob(args[0])
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job not found: %s", args[0])
		}

		fmt.Printf("Job:      %s\n", job.ID)
		fmt.Printf("Title:    %s\n", job.Title)
		fmt.Printf("Status:   %s\n", statusLabel(job.Status))
		fmt.Printf("Planning: %s\n", job.PlanningMode)
		if job.BranchName != "" {
			fmt.Printf("Branch:   %s\n", job.BranchName)
		}
		if len(job.DependsOn) > 0 {
			fmt.Printf("Depends:  %s\n", strings.Join(job.DependsOn, ", "))
		}
		fmt.Printf("\n%s\n", job.Description)

		plan, err := db.LoadPlan(job.ID)
		if err != nil {
			return err
		}
		if plan != nil {
			fmt.Printf("\nPlan v%d (%s): %d/%d tasks done\n", plan.Version, plan.Status, plan.TasksCompleted, plan.TasksTotal)
			for _, task := range plan.Tasks {
				mark := " "
				if task.Status == models.TaskDone {
					mark = "x"
				}
				fmt.Printf("  [%s] %s: %s\n", mark, task.ID, task.Description)
			}
		}

		runs, err := db.ListRuns(job.ID)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			fmt.Printf("\nRuns:\n")
			sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
			for _, run := range runs {
				outcome := run.Outcome
				if outcome == "" {
					outcome = "running"
				}
				line := fmt.Sprintf("  %s  %s", run.StartedAt.Format("2006-01-02 15:04"), outcome)
				if run.FailureKind != "" {
					line += " (" + run.FailureKind + ")"
				}
				if run.Cost > 0 {
					line += fmt.Sprintf("  $%.4f", run.Cost)
				}
				fmt.Println(line)
			}
		}

		transcript, err := store.ReadTranscript(filepath.Dir(cfg.StorePath()), job.ID)
		if err == nil && transcript != "" {
			fmt.Printf("\nTranscript: %d bytes recorded\n", len(transcript))
		}
		return nil
	},
}

func statusLabel(s models.JobStatus) string {
	switch s {
	case models.JobStatusVerified:
		return color.GreenString(string(s))
	case models.JobStatusInProgress:
		return color.CyanString(string(s))
	case models.JobStatusPlanReview, models.JobStatusWaitingApproval:
		return color.MagentaString(string(s))
	case models.JobStatusStopped:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	addCmd.Flags().StringVar(&addTitle, "title", "", "Short job title")
	addCmd.Flags().StringVar(&addSpec, "spec", "", "Longer specification text")
	addCmd.Flags().StringVar(&addModel, "model", "", "Model override for this job")
	addCmd.Flags().StringVar(&addPlanningMode, "planning", "lite", "Planning mode: skip|lite|lite_with_approval|spec|full")
	addCmd.Flags().StringVar(&addBranch, "branch", "", "Git branch the job executes on")
	addCmd.Flags().StringSliceVar(&addDependsOn, "depends-on", nil, "Job IDs that must complete first")
	addCmd.Flags().StringArrayVar(&addContextNotes, "note", nil, "Context note injected into the prompt (repeatable)")
	addCmd.Flags().BoolVar(&addSkipTests, "skip-tests", false, "Manual review instead of automated verification")
	addCmd.Flags().BoolVar(&addRequireApproval, "require-approval", false, "Pause for human plan review")
}
