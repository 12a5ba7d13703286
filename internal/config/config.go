// Package config handles configuration loading and management for Foreman.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Foreman.
type Config struct {
	Provider     ProviderConfig     `mapstructure:"provider"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Worktrees    WorktreesConfig    `mapstructure:"worktrees"`
	Store        StoreConfig        `mapstructure:"store"`
}

// ProviderConfig holds execution provider settings.
type ProviderConfig struct {
	// APIKey is the Anthropic API key. Supports ${VAR} expansion.
	APIKey string `mapstructure:"api_key"`
	// UseBedrock routes requests through AWS Bedrock instead of the direct API.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// AWSRegion is the Bedrock region. Empty uses the AWS SDK default chain.
	AWSRegion string `mapstructure:"aws_region"`
	// Model is the default model when a job does not name one.
	Model string `mapstructure:"model"`
}

// OrchestratorConfig holds scheduling loop settings.
type OrchestratorConfig struct {
	// Concurrency is the maximum number of jobs running at once.
	Concurrency int `mapstructure:"concurrency"`
	// PollInterval is the delay between scheduling passes while jobs run.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// IdleInterval is the delay between passes when nothing is runnable.
	IdleInterval time.Duration `mapstructure:"idle_interval"`
	// ApprovalTimeout is how long a plan approval request waits before
	// it is treated as rejected.
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"`
	// JobTimeout is the per-job execution timeout. Zero disables it.
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	// FailureThreshold is the number of failures inside FailureWindow
	// that pauses the loop.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// FailureWindow is the sliding window for failure counting.
	FailureWindow time.Duration `mapstructure:"failure_window"`
}

// PipelineConfig holds post-execution verification settings.
type PipelineConfig struct {
	// Steps are follow-up agent instructions run in the job workspace
	// after implementation, in order. Each step sees the previous step's
	// output; a failing step fails the job.
	Steps []string `mapstructure:"steps"`
	// StepTimeout is the per-step timeout.
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

// WorktreesConfig holds git worktree settings.
type WorktreesConfig struct {
	// Enabled routes jobs with a branch name into a matching worktree.
	Enabled bool `mapstructure:"enabled"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path is the sqlite database path. Empty uses the XDG data directory.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, FOREMAN_*)
// 2. Project config (.foreman.yaml in current directory or parent)
// 3. User config (~/.config/foreman/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("FOREMAN")
	v.AutomaticEnv()

	// Map specific environment variables
	v.BindEnv("provider.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("provider.aws_region", "AWS_REGION")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("provider.api_key", cfg.Provider.APIKey)
	v.Set("provider.use_bedrock", cfg.Provider.UseBedrock)
	v.Set("provider.aws_region", cfg.Provider.AWSRegion)
	v.Set("provider.model", cfg.Provider.Model)
	v.Set("orchestrator.concurrency", cfg.Orchestrator.Concurrency)
	v.Set("orchestrator.poll_interval", cfg.Orchestrator.PollInterval.String())
	v.Set("orchestrator.idle_interval", cfg.Orchestrator.IdleInterval.String())
	v.Set("orchestrator.approval_timeout", cfg.Orchestrator.ApprovalTimeout.String())
	v.Set("orchestrator.job_timeout", cfg.Orchestrator.JobTimeout.String())
	v.Set("orchestrator.failure_threshold", cfg.Orchestrator.FailureThreshold)
	v.Set("orchestrator.failure_window", cfg.Orchestrator.FailureWindow.String())
	v.Set("pipeline.steps", cfg.Pipeline.Steps)
	v.Set("pipeline.step_timeout", cfg.Pipeline.StepTimeout.String())
	v.Set("worktrees.enabled", cfg.Worktrees.Enabled)
	v.Set("store.path", cfg.Store.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// StorePath returns the configured sqlite path, or the XDG data default.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return os.ExpandEnv(c.Store.Path)
	}
	return filepath.Join(getUserDataDir(), "foreman.db")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.use_bedrock", false)
	v.SetDefault("provider.aws_region", "")
	v.SetDefault("provider.model", "claude-sonnet-4-20250514")

	v.SetDefault("orchestrator.concurrency", 2)
	v.SetDefault("orchestrator.poll_interval", "2s")
	v.SetDefault("orchestrator.idle_interval", "10s")
	v.SetDefault("orchestrator.approval_timeout", "30m")
	v.SetDefault("orchestrator.job_timeout", "0")
	v.SetDefault("orchestrator.failure_threshold", 3)
	v.SetDefault("orchestrator.failure_window", "60s")

	v.SetDefault("pipeline.steps", []string{})
	v.SetDefault("pipeline.step_timeout", "10m")

	v.SetDefault("worktrees.enabled", false)

	v.SetDefault("store.path", "")
}

// getUserConfigDir returns the XDG config directory for Foreman.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "foreman")
	}

	// Fall back to ~/.config/foreman
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "foreman")
	}
	return filepath.Join(home, ".config", "foreman")
}

// getUserDataDir returns the XDG data directory for Foreman.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "foreman")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "foreman")
	}
	return filepath.Join(home, ".local", "share", "foreman")
}

// findProjectConfig searches for .foreman.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".foreman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Orchestrator: OrchestratorConfig{
			Concurrency:      2,
			PollInterval:     2 * time.Second,
			IdleInterval:     10 * time.Second,
			ApprovalTimeout:  30 * time.Minute,
			FailureThreshold: 3,
			FailureWindow:    60 * time.Second,
		},
		Pipeline: PipelineConfig{
			StepTimeout: 10 * time.Minute,
		},
		Worktrees: WorktreesConfig{
			Enabled: false,
		},
	}
}
