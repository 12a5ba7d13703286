package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ToolExecutor executes tool calls requested by the agent. All file paths
// are resolved relative to the workspace and must stay inside it.
type ToolExecutor struct {
	workDir string
	allowed map[string]bool // nil means all tools allowed
}

// NewToolExecutor creates a tool executor rooted at the given workspace.
func NewToolExecutor(workDir string) *ToolExecutor {
	return &ToolExecutor{workDir: workDir}
}

// NewRestrictedToolExecutor creates a tool executor limited to the named tools.
func NewRestrictedToolExecutor(workDir string, allowedTools []string) *ToolExecutor {
	if len(allowedTools) == 0 {
		return NewToolExecutor(workDir)
	}
	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}
	return &ToolExecutor{workDir: workDir, allowed: allowed}
}

// ExecResult represents the result of a tool execution.
type ExecResult struct {
	Content string
	IsError bool
}

// Execute runs a tool by name with the given JSON input.
func (e *ToolExecutor) Execute(ctx context.Context, name string, input json.RawMessage) ExecResult {
	if e.allowed != nil && !e.allowed[name] {
		return ExecResult{Content: fmt.Sprintf("Tool not permitted for this task: %s", name), IsError: true}
	}

	switch name {
	case "Read":
		return e.execRead(input)
	case "Write":
		return e.execWrite(input)
	case "Edit":
		return e.execEdit(input)
	case "Bash":
		return e.execBash(ctx, input)
	case "Glob":
		return e.execGlob(input)
	case "Grep":
		return e.execGrep(ctx, input)
	case "ListDir":
		return e.execListDir(input)
	default:
		return ExecResult{Content: fmt.Sprintf("Unknown tool: %s", name), IsError: true}
	}
}

func (e *ToolExecutor) execRead(input json.RawMessage) ExecResult {
	var params struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return ExecResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	path, err := e.resolvePath(params.FilePath)
	if err != nil {
		return ExecResult{Content: err.Error(), IsError: true}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return ExecResult{Content: fmt.Sprintf("Failed to read file: %v", err), IsError: true}
	}

	lines := strings.Split(string(content), "\n")

	start := 0
	if params.Offset > 0 {
		start = params.Offset - 1 // Convert to 0-indexed
		if start >= len(lines) {
			return ExecResult{Content: "Offset beyond end of file", IsError: true}
		}
	}

	end := len(lines)
	if params.Limit > 0 && start+params.Limit < end {
		end = start + params.Limit
	}

	// Format with line numbers (cat -n style)
	var result strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&result, "%6d\t%s\n", i+1, lines[i])
	}

	return ExecResult{Content: result.String()}
}

func (e *ToolExecutor) execWrite(input json.RawMessage) ExecResult {
	var params struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return ExecResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	path, err := e.resolvePath(params.FilePath)
	if err != nil {
		return ExecResult{Content: err.Error(), IsError: true}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return ExecResult{Content: fmt.Sprintf("Failed to create directory: %v", err), IsError: true}
	}

	if err := os.WriteFile(path, []byte(params.Content), 0644); err != nil {
		return ExecResult{Content: fmt.Sprintf("Failed to write file: %v", err), IsError: true}
	}

	return ExecResult{Content: fmt.Sprintf("Successfully wrote %d bytes to %s", len(params.Content), params.FilePath)}
}

func (e *ToolExecutor) execEdit(input json.RawMessage) ExecResult {
	var params struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return ExecResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	path, err := e.resolvePath(params.FilePath)
	if err != nil {
		return ExecResult{Content: err.Error(), IsError: true}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return ExecResult{Content: fmt.Sprintf("Failed to read file: %v", err), IsError: true}
	}

	contentStr := string(content)

	count := strings.Count(contentStr, params.OldString)
	if count == 0 {
		return ExecResult{Content: "old_string not found in file", IsError: true}
	}

	// If not replace_all, ensure uniqueness
	if !params.ReplaceAll && count > 1 {
		return ExecResult{
			Content: fmt.Sprintf("old_string found %d times; must be unique or use replace_all=true", count),
			IsError: true,
		}
	}

	var newContent string
	if params.ReplaceAll {
		newContent = strings.ReplaceAll(contentStr, params.OldString, params.NewString)
	} else {
		newContent = strings.Replace(contentStr, params.OldString, params.NewString, 1)
	}

	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		return ExecResult{Content: fmt.Sprintf("Failed to write file: %v", err), IsError: true}
	}

	if params.ReplaceAll {
		return ExecResult{Content: fmt.Sprintf("Replaced %d occurrences", count)}
	}
	return ExecResult{Content: "Edit successful"}
}

func (e *ToolExecutor) execBash(ctx context.Context, input json.RawMessage) ExecResult {
	var params struct {
		Command     string `json:"command"`
		Timeout     int    `json:"timeout"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return ExecResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	// Default timeout of 2 minutes
	timeout := 120 * time.Second
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", params.Command)
	cmd.Dir = e.workDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ExecResult{
				Content: fmt.Sprintf("Command timed out after %v:\n%s", timeout, string(output)),
				IsError: true,
			}
		}
		return ExecResult{
			Content: fmt.Sprintf("%s\nError: %v", string(output), err),
			IsError: true,
		}
	}

	return ExecResult{Content: truncateOutput(string(output))}
}

func (e *ToolExecutor) execGlob(input json.RawMessage) ExecResult {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return ExecResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	searchPath := e.workDir
	if params.Path != "" {
		resolved, err := e.resolvePath(params.Path)
		if err != nil {
			return ExecResult{Content: err.Error(), IsError: true}
		}
		searchPath = resolved
	}

	// filepath.Glob doesn't support **, so walk and match basenames
	var matches []string
	err := filepath.WalkDir(searchPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if d.IsDir() {
			// Skip hidden directories
			if strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
				return filepath.SkipDir
			}
			return nil
		}

		matched, _ := filepath.Match(filepath.Base(params.Pattern), d.Name())
		if matched {
			relPath, _ := filepath.Rel(searchPath, path)
			matches = append(matches, relPath)
		}
		return nil
	})

	if err != nil {
		return ExecResult{Content: fmt.Sprintf("Glob error: %v", err), IsError: true}
	}

	if len(matches) == 0 {
		return ExecResult{Content: "No files matched the pattern"}
	}

	return ExecResult{Content: strings.Join(matches, "\n")}
}

func (e *ToolExecutor) execGrep(ctx context.Context, input json.RawMessage) ExecResult {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
		Glob    string `json:"glob"`
		Context int    `json:"context"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return ExecResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	args := []string{"--color=never", "-n"}

	if params.Context > 0 {
		args = append(args, "-C", fmt.Sprintf("%d", params.Context))
	}

	if params.Glob != "" {
		args = append(args, "--glob", params.Glob)
	}

	args = append(args, params.Pattern)

	searchPath := e.workDir
	if params.Path != "" {
		resolved, err := e.resolvePath(params.Path)
		if err != nil {
			return ExecResult{Content: err.Error(), IsError: true}
		}
		searchPath = resolved
	}
	args = append(args, searchPath)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "rg", args...)
	output, _ := cmd.CombinedOutput() // rg returns non-zero on no match

	result := string(output)
	if len(result) == 0 {
		return ExecResult{Content: "No matches found"}
	}

	return ExecResult{Content: truncateOutput(result)}
}

func (e *ToolExecutor) execListDir(input json.RawMessage) ExecResult {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return ExecResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}
	}

	path, err := e.resolvePath(params.Path)
	if err != nil {
		return ExecResult{Content: err.Error(), IsError: true}
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return ExecResult{Content: fmt.Sprintf("Failed to read directory: %v", err), IsError: true}
	}

	var result strings.Builder
	for _, entry := range entries {
		info, _ := entry.Info()
		if info != nil {
			if entry.IsDir() {
				fmt.Fprintf(&result, "d %s/\n", entry.Name())
			} else {
				fmt.Fprintf(&result, "- %s (%d bytes)\n", entry.Name(), info.Size())
			}
		} else {
			fmt.Fprintf(&result, "? %s\n", entry.Name())
		}
	}

	return ExecResult{Content: result.String()}
}

// resolvePath resolves a path against the workspace and rejects escapes.
func (e *ToolExecutor) resolvePath(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(e.workDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(e.workDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

func truncateOutput(s string) string {
	if len(s) > 30000 {
		return s[:30000] + "\n... (output truncated)"
	}
	return s
}
