package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dperrin/foreman/internal/config"
	"github.com/dperrin/foreman/internal/orchestrator"
	"github.com/dperrin/foreman/internal/provider"
	"github.com/dperrin/foreman/internal/store"
	"github.com/dperrin/foreman/internal/worktree"
)

var projectPath string

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Feature execution orchestrator for coding agents",
	Long: `Foreman schedules feature jobs against a coding agent: it resolves
job dependencies, runs up to a configured number of jobs in parallel,
generates implementation plans for human approval, executes plan tasks
one at a time, and pauses itself when failures cluster.

Jobs live in a local SQLite store. Add them with 'foreman add', then
start the scheduling loop with 'foreman run'.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectPath, "project", "", "Project directory (defaults to current directory)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(followUpCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveProjectPath returns the project directory the command operates on.
func resolveProjectPath() (string, error) {
	if projectPath != "" {
		return filepath.Abs(projectPath)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

// openStore opens and migrates the job store for the loaded config.
func openStore(cfg *config.Config) (*store.DB, error) {
	db, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return db, nil
}

// buildOrchestrator wires a full orchestrator for the project.
func buildOrchestrator(cfg *config.Config, db *store.DB, project string) (*orchestrator.Orchestrator, error) {
	apiKey, err := config.GetAPIKey(cfg)
	if err != nil {
		return nil, err
	}

	client, err := provider.NewClient(provider.ClientConfig{
		Model:         provider.ModelFromString(cfg.Provider.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Provider.UseBedrock,
		AWSRegion:     cfg.Provider.AWSRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider client: %w", err)
	}

	dataDir := filepath.Dir(cfg.StorePath())
	o := orchestrator.New(cfg, db, provider.NewAnthropicProvider(client), worktree.NewManager(project), project, dataDir)

	sw, err := orchestrator.NewSignalWatcher(project)
	if err != nil {
		return nil, fmt.Errorf("start signal watcher: %w", err)
	}
	o.SetSignalWatcher(sw)
	return o, nil
}
