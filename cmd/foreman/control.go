package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dperrin/foreman/internal/config"
	"github.com/dperrin/foreman/internal/orchestrator"
	"github.com/dperrin/foreman/internal/store"
	"github.com/dperrin/foreman/pkg/models"
)

var execCmd = &cobra.Command{
	Use:   "exec <job-id>",
	Short: "Execute one job immediately, outside the loop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJobRun(args[0], func(o *orchestrator.Orchestrator, jobID string) error {
			return o.ExecuteJob(jobID)
		})
	},
}

var followUpCmd = &cobra.Command{
	Use:   "followup <job-id> <instruction...>",
	Short: "Run a follow-up instruction on a completed job",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		instruction := strings.Join(args[1:], " ")
		return withJobRun(args[0], func(o *orchestrator.Orchestrator, jobID string) error {
			return o.FollowUpJob(jobID, instruction)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop [job-id]",
	Short: "Stop the scheduling loop, or mark a job stopped",
	Long: `Without arguments, writes the stop signal file a running 'foreman run'
process observes between scheduling passes. With a job ID, marks that
job stopped in the store so the loop will not reschedule it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := resolveProjectPath()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			sw, err := orchestrator.NewSignalWatcher(project)
			if err != nil {
				return err
			}
			defer sw.Close()
			if err := sw.SendStop(); err != nil {
				return err
			}
			fmt.Printf("%s stop signal sent\n", color.GreenString("✓"))
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		stopped := models.JobStatusStopped
		if err := db.PatchJob(args[0], store.JobPatch{Status: &stopped}); err != nil {
			return err
		}
		fmt.Printf("%s job %s marked stopped\n", color.GreenString("✓"), args[0])
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Put a stopped job back in the schedulable set",
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

		ready := models.JobStatusReady
		if err := db.PatchJob(args[0], store.JobPatch{Status: &ready}); err != nil {
			return err
		}
		fmt.Printf("%s job %s is ready; the loop will pick it up\n", color.GreenString("✓"), args[0])
		return nil
	},
}

var (
	approveReject   bool
	approveFeedback string
	approvePlanFile string
)

var approveCmd = &cobra.Command{
	Use:   "approve <job-id>",
	Short: "Resolve a plan waiting for review",
	Long: `Approve or reject the generated plan of a job in plan review.
Rejecting with --feedback requests a revised plan; rejecting without
feedback cancels the job. Used when the reviewing terminal is gone,
e.g. after a restart while a plan sat in review.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		editedPlan := ""
		if approvePlanFile != "" {
			data, err := os.ReadFile(approvePlanFile)
			if err != nil {
				return fmt.Errorf("read edited plan: %w", err)
			}
			editedPlan = string(data)
		}

		return withJobRun(args[0], func(o *orchestrator.Orchestrator, jobID string) error {
			return o.ResolvePlanApproval(jobID, !approveReject, editedPlan, approveFeedback)
		})
	},
}

// withJobRun wires an orchestrator, starts the operation, and waits for the
// job to leave the running set, rendering events meanwhile.
func withJobRun(jobID string, start func(*orchestrator.Orchestrator, string) error) error {
	project, err := resolveProjectPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	o, err := buildOrchestrator(cfg, db, project)
	if err != nil {
		return err
	}

	go renderEvents(o)
	go handleApprovals(o)

	if err := start(o, jobID); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			_ = o.StopJob(jobID)
		case <-time.After(200 * time.Millisecond):
			if !o.IsRunning(jobID) {
				return nil
			}
		}
	}
}

func init() {
	approveCmd.Flags().BoolVar(&approveReject, "reject", false, "Reject the plan instead of approving")
	approveCmd.Flags().StringVar(&approveFeedback, "feedback", "", "Revision feedback for a rejected plan")
	approveCmd.Flags().StringVar(&approvePlanFile, "plan-file", "", "File with an edited plan to approve")
}
