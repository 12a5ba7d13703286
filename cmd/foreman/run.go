package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dperrin/foreman/internal/config"
	"github.com/dperrin/foreman/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduling loop",
	Long: `Start the scheduling loop in the foreground. Ready jobs with
satisfied dependencies are launched up to the configured concurrency
limit. Plans requiring approval are presented on the terminal.

Press Ctrl-C to stop scheduling; in-flight jobs finish on their own.`,
	RunE: runLoop,
}

func runLoop(cmd *cobra.Command, args []string) error {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go renderEvents(o)
	go handleApprovals(o)

	if err := o.StartLoop(ctx); err != nil {
		return err
	}
	fmt.Printf("%s scheduling loop started (concurrency %d)\n",
		color.GreenString("✓"), cfg.Orchestrator.Concurrency)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	inFlight := o.StopLoop()
	if inFlight > 0 {
		fmt.Printf("\n%s loop stopped; %d job(s) still finishing\n", color.YellowString("⚠"), inFlight)
	} else {
		fmt.Printf("\n%s loop stopped\n", color.GreenString("✓"))
	}
	return nil
}

// renderEvents prints orchestrator events as they happen.
func renderEvents(o *orchestrator.Orchestrator) {
	for event := range o.Events() {
		switch event.Type {
		case orchestrator.EventJobStarted:
			fmt.Printf("%s job %s started: %s\n", color.CyanString("▸"), event.JobID, event.JobTitle)
		case orchestrator.EventJobCompleted:
			fmt.Printf("%s job %s completed (%s)\n", color.GreenString("✓"), event.JobID, event.Message)
		case orchestrator.EventJobFailed:
			fmt.Printf("%s job %s failed [%s]: %v\n", color.RedString("✗"), event.JobID, event.FailureKind, event.Error)
		case orchestrator.EventJobStopped:
			fmt.Printf("%s job %s stopped\n", color.YellowString("■"), event.JobID)
		case orchestrator.EventTaskStarted:
			fmt.Printf("  %s %s: %s\n", color.CyanString("→"), event.TaskID, event.Message)
		case orchestrator.EventTaskCompleted:
			fmt.Printf("  %s %s done\n", color.GreenString("✓"), event.TaskID)
		case orchestrator.EventPlanGenerated:
			fmt.Printf("%s job %s: %s\n", color.MagentaString("?"), event.JobID, event.Message)
		case orchestrator.EventPlanApproved:
			fmt.Printf("%s job %s plan v%d approved\n", color.GreenString("✓"), event.JobID, event.PlanVersion)
		case orchestrator.EventPlanRejected:
			fmt.Printf("%s job %s plan v%d rejected\n", color.RedString("✗"), event.JobID, event.PlanVersion)
		case orchestrator.EventPlanRevisionRequested:
			fmt.Printf("%s job %s revising plan: %s\n", color.YellowString("↻"), event.JobID, event.Message)
		case orchestrator.EventLoopPaused:
			fmt.Printf("%s scheduling paused: %s\n", color.RedString("⏸"), event.Message)
		case orchestrator.EventLoopResumed:
			fmt.Printf("%s scheduling resumed\n", color.GreenString("▶"))
		}
	}
}

// handleApprovals prompts on the terminal for each plan awaiting review.
func handleApprovals(o *orchestrator.Orchestrator) {
	reader := bufio.NewReader(os.Stdin)
	for req := range o.ApprovalRequests() {
		fmt.Printf("\n%s plan v%d for job %s (%s):\n\n%s\n\n",
			color.MagentaString("PLAN REVIEW"), req.PlanVersion, req.JobID, req.JobTitle, req.PlanContent)
		fmt.Print("approve? [y]es / [n]o / feedback text for revision: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			continue
		}
		line = strings.TrimSpace(line)

		var decision orchestrator.ApprovalDecision
		switch strings.ToLower(line) {
		case "y", "yes":
			decision = orchestrator.ApprovalDecision{Approved: true}
		case "n", "no", "":
			decision = orchestrator.ApprovalDecision{Approved: false}
		default:
			decision = orchestrator.ApprovalDecision{Approved: false, Feedback: line}
		}
		if err := o.ResolvePlanApproval(req.JobID, decision.Approved, decision.EditedPlan, decision.Feedback); err != nil {
			fmt.Printf("%s resolve approval: %v\n", color.RedString("✗"), err)
		}
	}
}
