package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Orchestrator.Concurrency != 2 {
		t.Errorf("expected default concurrency 2, got %d", cfg.Orchestrator.Concurrency)
	}

	if cfg.Orchestrator.PollInterval != 2*time.Second {
		t.Errorf("expected poll interval 2s, got %v", cfg.Orchestrator.PollInterval)
	}

	if cfg.Orchestrator.ApprovalTimeout != 30*time.Minute {
		t.Errorf("expected approval timeout 30m, got %v", cfg.Orchestrator.ApprovalTimeout)
	}

	if cfg.Orchestrator.FailureThreshold != 3 {
		t.Errorf("expected failure threshold 3, got %d", cfg.Orchestrator.FailureThreshold)
	}

	if cfg.Orchestrator.FailureWindow != 60*time.Second {
		t.Errorf("expected failure window 60s, got %v", cfg.Orchestrator.FailureWindow)
	}

	if cfg.Worktrees.Enabled {
		t.Error("expected worktrees to be disabled by default")
	}
}

func TestLoadFromPath(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
provider:
  api_key: test-key
  use_bedrock: true
  aws_region: us-west-2
  model: claude-opus-4-20250514
orchestrator:
  concurrency: 4
  poll_interval: 1s
  approval_timeout: 15m
pipeline:
  steps:
    - npm test
    - npm run lint
worktrees:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Provider.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Provider.APIKey)
	}

	if !cfg.Provider.UseBedrock {
		t.Error("expected use_bedrock to be true")
	}

	if cfg.Provider.AWSRegion != "us-west-2" {
		t.Errorf("expected aws_region 'us-west-2', got %q", cfg.Provider.AWSRegion)
	}

	if cfg.Orchestrator.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Orchestrator.Concurrency)
	}

	if cfg.Orchestrator.PollInterval != time.Second {
		t.Errorf("expected poll interval 1s, got %v", cfg.Orchestrator.PollInterval)
	}

	if cfg.Orchestrator.ApprovalTimeout != 15*time.Minute {
		t.Errorf("expected approval timeout 15m, got %v", cfg.Orchestrator.ApprovalTimeout)
	}

	// Defaults fill in keys the file omits
	if cfg.Orchestrator.FailureThreshold != 3 {
		t.Errorf("expected default failure threshold 3, got %d", cfg.Orchestrator.FailureThreshold)
	}

	if len(cfg.Pipeline.Steps) != 2 || cfg.Pipeline.Steps[0] != "npm test" {
		t.Errorf("unexpected pipeline steps: %v", cfg.Pipeline.Steps)
	}

	if !cfg.Worktrees.Enabled {
		t.Error("expected worktrees to be enabled")
	}
}

func TestLoadFromPath_ExpandsAPIKey(t *testing.T) {
	os.Setenv("TEST_FOREMAN_KEY", "expanded-value")
	defer os.Unsetenv("TEST_FOREMAN_KEY")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := "provider:\n  api_key: ${TEST_FOREMAN_KEY}\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Provider.APIKey != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", cfg.Provider.APIKey)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	dir := getUserConfigDir()
	expected := "/custom/config/foreman"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestStorePath(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = "/tmp/custom.db"
	if got := cfg.StorePath(); got != "/tmp/custom.db" {
		t.Errorf("expected configured path, got %q", got)
	}

	os.Setenv("XDG_DATA_HOME", "/custom/data")
	defer os.Unsetenv("XDG_DATA_HOME")

	cfg.Store.Path = ""
	expected := "/custom/data/foreman/foreman.db"
	if got := cfg.StorePath(); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
