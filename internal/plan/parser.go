// Package plan extracts structured task lists from agent-generated plan
// documents.
package plan

import (
	"regexp"
	"strings"

	"github.com/dperrin/foreman/pkg/models"
)

// Sentinel is the marker an agent emits when its plan document is complete.
// Streamed text before the marker is the plan; anything after is discarded.
const Sentinel = "===PLAN COMPLETE==="

// taskLineRe matches one task line:
//
//	- [ ] T001: Add the widget parser | File: internal/widget/parser.go
//
// The checkbox state, ID, description, and optional File suffix are captured.
var taskLineRe = regexp.MustCompile(`^\s*-\s*\[([ xX])\]\s*(T\d{3}):\s*(.+?)(?:\s*\|\s*File:\s*(\S+))?\s*$`)

// phaseRe matches a "## Phase N" grouping header inside a plan.
var phaseRe = regexp.MustCompile(`^##\s*(Phase\s+\d+.*?)\s*$`)

// fenceRe matches the start or end of a fenced code block.
var fenceRe = regexp.MustCompile("^```")

// ExtractPlan returns the plan text preceding the sentinel marker and true,
// or the input unchanged and false if the marker has not appeared yet.
func ExtractPlan(accumulated string) (string, bool) {
	idx := strings.Index(accumulated, Sentinel)
	if idx == -1 {
		return accumulated, false
	}
	return strings.TrimSpace(accumulated[:idx]), true
}

// ParseTasks extracts the ordered task list from a plan document.
// Tasks are read from the first fenced block containing task lines,
// honoring "## Phase N" headers inside the block. If no fenced block
// contains tasks, the whole document is scanned for standalone task lines.
// Parsing the same document twice yields identical results.
func ParseTasks(content string) []models.ParsedTask {
	if tasks := parseFencedBlocks(content); len(tasks) > 0 {
		return tasks
	}
	return parseLines(strings.Split(content, "\n"))
}

// parseFencedBlocks scans fenced code blocks for task lines and returns the
// tasks of the first block that has any.
func parseFencedBlocks(content string) []models.ParsedTask {
	lines := strings.Split(content, "\n")
	var block []string
	inFence := false

	for _, line := range lines {
		if fenceRe.MatchString(strings.TrimSpace(line)) {
			if inFence {
				if tasks := parseLines(block); len(tasks) > 0 {
					return tasks
				}
				block = nil
			}
			inFence = !inFence
			continue
		}
		if inFence {
			block = append(block, line)
		}
	}
	return nil
}

// parseLines extracts task lines from raw lines, tracking phase headers.
func parseLines(lines []string) []models.ParsedTask {
	var tasks []models.ParsedTask
	phase := ""
	seen := make(map[string]bool)

	for _, line := range lines {
		if m := phaseRe.FindStringSubmatch(line); m != nil {
			phase = m[1]
			continue
		}
		m := taskLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id := m[2]
		if seen[id] {
			// Duplicate IDs keep the first occurrence.
			continue
		}
		seen[id] = true

		status := models.TaskPending
		if m[1] == "x" || m[1] == "X" {
			status = models.TaskDone
		}
		tasks = append(tasks, models.ParsedTask{
			ID:          id,
			Description: strings.TrimSpace(m[3]),
			FilePath:    m[4],
			Phase:       phase,
			Status:      status,
		})
	}
	return tasks
}
