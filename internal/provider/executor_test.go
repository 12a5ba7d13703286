package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestToolExecutor_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	e := NewToolExecutor(dir)

	input := json.RawMessage(`{"file_path": "hello.txt", "content": "line one\nline two"}`)
	result := e.Execute(context.Background(), "Write", input)
	if result.IsError {
		t.Fatalf("Write failed: %s", result.Content)
	}

	readInput := json.RawMessage(`{"file_path": "hello.txt"}`)
	result = e.Execute(context.Background(), "Read", readInput)
	if result.IsError {
		t.Fatalf("Read failed: %s", result.Content)
	}
	if !strings.Contains(result.Content, "line one") || !strings.Contains(result.Content, "line two") {
		t.Errorf("unexpected read output: %s", result.Content)
	}
}

func TestToolExecutor_Edit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.go")
	if err := os.WriteFile(path, []byte("package main\n\nfunc old() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	e := NewToolExecutor(dir)
	input := json.RawMessage(`{"file_path": "file.go", "old_string": "func old()", "new_string": "func renamed()"}`)
	result := e.Execute(context.Background(), "Edit", input)
	if result.IsError {
		t.Fatalf("Edit failed: %s", result.Content)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "func renamed()") {
		t.Errorf("edit did not apply: %s", content)
	}
}

func TestToolExecutor_EditRequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.txt")
	if err := os.WriteFile(path, []byte("x\nx\n"), 0644); err != nil {
		t.Fatal(err)
	}

	e := NewToolExecutor(dir)
	input := json.RawMessage(`{"file_path": "dup.txt", "old_string": "x", "new_string": "y"}`)
	result := e.Execute(context.Background(), "Edit", input)
	if !result.IsError {
		t.Error("expected ambiguous edit to fail")
	}
}

func TestToolExecutor_RejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	e := NewToolExecutor(dir)

	input := json.RawMessage(`{"file_path": "../outside.txt", "content": "nope"}`)
	result := e.Execute(context.Background(), "Write", input)
	if !result.IsError {
		t.Error("expected write outside the workspace to be rejected")
	}

	absInput := json.RawMessage(`{"file_path": "/etc/passwd"}`)
	result = e.Execute(context.Background(), "Read", absInput)
	if !result.IsError {
		t.Error("expected read outside the workspace to be rejected")
	}
}

func TestToolExecutor_RestrictedTools(t *testing.T) {
	dir := t.TempDir()
	e := NewRestrictedToolExecutor(dir, ReadOnlyTools)

	input := json.RawMessage(`{"file_path": "new.txt", "content": "should not happen"}`)
	result := e.Execute(context.Background(), "Write", input)
	if !result.IsError {
		t.Error("expected Write to be rejected for a read-only executor")
	}
	if _, err := os.Stat(filepath.Join(dir, "new.txt")); !os.IsNotExist(err) {
		t.Error("file must not be created by a rejected tool call")
	}
}

func TestToolExecutor_Bash(t *testing.T) {
	dir := t.TempDir()
	e := NewToolExecutor(dir)

	input := json.RawMessage(`{"command": "echo from-bash"}`)
	result := e.Execute(context.Background(), "Bash", input)
	if result.IsError {
		t.Fatalf("Bash failed: %s", result.Content)
	}
	if !strings.Contains(result.Content, "from-bash") {
		t.Errorf("unexpected bash output: %s", result.Content)
	}
}

func TestToolExecutor_UnknownTool(t *testing.T) {
	e := NewToolExecutor(t.TempDir())
	result := e.Execute(context.Background(), "Teleport", json.RawMessage(`{}`))
	if !result.IsError {
		t.Error("expected unknown tool to error")
	}
}

func TestToolDefinitionsFor(t *testing.T) {
	all := ToolDefinitionsFor(nil)
	if len(all) != len(ToolDefinitions()) {
		t.Errorf("empty filter should return all tools, got %d", len(all))
	}

	filtered := ToolDefinitionsFor([]string{"Read", "Grep"})
	if len(filtered) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(filtered))
	}
	for _, tool := range filtered {
		name := tool.OfTool.Name
		if name != "Read" && name != "Grep" {
			t.Errorf("unexpected tool in filtered set: %s", name)
		}
	}

	if got := ToolDefinitionsFor([]string{"Read", "Nonexistent"}); len(got) != 1 {
		t.Errorf("unknown names must be ignored, got %d tools", len(got))
	}
}

func TestToolExecutor_ReadOffsetLimit(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	if err := os.WriteFile(filepath.Join(dir, "big.txt"), []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}

	e := NewToolExecutor(dir)
	input := json.RawMessage(`{"file_path": "big.txt", "offset": 3, "limit": 2}`)
	result := e.Execute(context.Background(), "Read", input)
	if result.IsError {
		t.Fatalf("Read failed: %s", result.Content)
	}
	if !strings.Contains(result.Content, "line 3") || !strings.Contains(result.Content, "line 4") {
		t.Errorf("expected lines 3-4, got: %s", result.Content)
	}
	if strings.Contains(result.Content, "line 5") {
		t.Errorf("limit not honored: %s", result.Content)
	}
}
