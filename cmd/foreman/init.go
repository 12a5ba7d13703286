package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dperrin/foreman/internal/config"
)

const projectConfigTemplate = `# Foreman project configuration.
# Values here override ~/.config/foreman/config.yaml.

orchestrator:
  concurrency: 2
  # approval_timeout: 30m
  # failure_threshold: 3
  # failure_window: 60s

provider:
  # model: claude-sonnet-4-20250514
  # use_bedrock: false
  # aws_region: us-west-2

# pipeline:
#   steps:
#     - "Review the implementation for correctness and fix any issues"

# worktrees:
#   enabled: true
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize foreman in the current project",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := resolveProjectPath()
		if err != nil {
			return err
		}

		if _, err := exec.LookPath("git"); err != nil {
			printStatus("✗", "Git not found", color.FgRed)
			return fmt.Errorf("git is required")
		}
		printStatus("✓", "Git found", color.FgGreen)

		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			printStatus("⚠", "ANTHROPIC_API_KEY not set (you can set it later)", color.FgYellow)
		} else {
			printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
		}

		signalsDir := filepath.Join(project, ".foreman", "signals")
		if err := os.MkdirAll(signalsDir, 0755); err != nil {
			return fmt.Errorf("create .foreman directory: %w", err)
		}
		printStatus("✓", "Created .foreman directory", color.FgGreen)

		cfgPath := filepath.Join(project, ".foreman.yaml")
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			if err := os.WriteFile(cfgPath, []byte(projectConfigTemplate), 0644); err != nil {
				return fmt.Errorf("write .foreman.yaml: %w", err)
			}
			printStatus("✓", "Created .foreman.yaml template", color.FgGreen)
		} else {
			printStatus("✓", ".foreman.yaml exists", color.FgGreen)
		}

		if err := updateGitignore(project); err == nil {
			printStatus("✓", "Updated .gitignore", color.FgGreen)
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		db.Close()
		printStatus("✓", "Job store ready at "+cfg.StorePath(), color.FgGreen)

		fmt.Printf("\n%s Foreman initialization complete!\n\n", color.GreenString("✓"))
		fmt.Println("Next steps:")
		fmt.Println("  foreman add \"describe a feature\"    add a job")
		fmt.Println("  foreman run                          start the scheduling loop")
		return nil
	},
}

func updateGitignore(project string) error {
	path := filepath.Join(project, ".gitignore")
	existing, _ := os.ReadFile(path)
	if strings.Contains(string(existing), ".foreman/") {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString("\n# Foreman\n.foreman/\n")
	return err
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
