package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dperrin/foreman/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	Long: `Display the effective configuration after merging user config,
project overrides, and environment variables.

Configuration is stored at ~/.config/foreman/config.yaml.
Project-specific overrides can be placed in .foreman.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		apiKeyDisplay := "(not set)"
		if key, err := config.GetAPIKey(cfg); err == nil && key != "" {
			apiKeyDisplay = config.MaskAPIKey(key)
		}
		if cfg.Provider.UseBedrock {
			apiKeyDisplay = "(bedrock)"
		}

		fmt.Printf("provider.api_key:               %s (%s)\n", apiKeyDisplay, config.GetAPIKeySource(cfg))
		fmt.Printf("provider.use_bedrock:           %t\n", cfg.Provider.UseBedrock)
		if cfg.Provider.AWSRegion != "" {
			fmt.Printf("provider.aws_region:            %s\n", cfg.Provider.AWSRegion)
		}
		fmt.Printf("provider.model:                 %s\n", cfg.Provider.Model)
		fmt.Printf("orchestrator.concurrency:       %d\n", cfg.Orchestrator.Concurrency)
		fmt.Printf("orchestrator.poll_interval:     %s\n", cfg.Orchestrator.PollInterval)
		fmt.Printf("orchestrator.idle_interval:     %s\n", cfg.Orchestrator.IdleInterval)
		fmt.Printf("orchestrator.approval_timeout:  %s\n", cfg.Orchestrator.ApprovalTimeout)
		fmt.Printf("orchestrator.job_timeout:       %s\n", cfg.Orchestrator.JobTimeout)
		fmt.Printf("orchestrator.failure_threshold: %d\n", cfg.Orchestrator.FailureThreshold)
		fmt.Printf("orchestrator.failure_window:    %s\n", cfg.Orchestrator.FailureWindow)
		fmt.Printf("pipeline.steps:                 %s\n", formatSteps(cfg.Pipeline.Steps))
		fmt.Printf("pipeline.step_timeout:          %s\n", cfg.Pipeline.StepTimeout)
		fmt.Printf("worktrees.enabled:              %t\n", cfg.Worktrees.Enabled)
		fmt.Printf("store.path:                     %s\n", cfg.StorePath())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default user config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.Save(config.Default()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("%s wrote %s\n", color.GreenString("✓"), path)
		return nil
	},
}

func formatSteps(steps []string) string {
	if len(steps) == 0 {
		return "(none)"
	}
	return strings.Join(steps, " | ")
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
