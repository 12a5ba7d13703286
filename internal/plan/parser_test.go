package plan

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dperrin/foreman/pkg/models"
)

func TestExtractPlan(t *testing.T) {
	accumulated := "# Plan\n\nDo things.\n" + Sentinel + "\ntrailing noise"

	plan, done := ExtractPlan(accumulated)
	if !done {
		t.Fatal("expected sentinel to be detected")
	}
	if strings.Contains(plan, Sentinel) {
		t.Error("plan must not contain the sentinel")
	}
	if strings.Contains(plan, "trailing noise") {
		t.Error("plan must not contain text after the sentinel")
	}
	if !strings.Contains(plan, "Do things.") {
		t.Errorf("plan lost its content: %q", plan)
	}
}

func TestExtractPlan_NoSentinel(t *testing.T) {
	plan, done := ExtractPlan("partial plan text")
	if done {
		t.Error("expected no sentinel")
	}
	if plan != "partial plan text" {
		t.Errorf("expected input unchanged, got %q", plan)
	}
}

func TestParseTasks_FencedBlock(t *testing.T) {
	content := `# Implementation Plan

Some narrative.

` + "```" + `
## Phase 1
- [ ] T001: Do X | File: a.ts
- [ ] T002: Do Y
## Phase 2
- [ ] T003: Do Z | File: pkg/z.go
` + "```" + `

More narrative with a stray line:
- [ ] T099: should be ignored, fenced block wins
`

	tasks := ParseTasks(content)
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d: %+v", len(tasks), tasks)
	}
	if tasks[0].ID != "T001" || tasks[1].ID != "T002" || tasks[2].ID != "T003" {
		t.Errorf("wrong order: %+v", tasks)
	}
	if tasks[0].FilePath != "a.ts" {
		t.Errorf("expected T001 file a.ts, got %q", tasks[0].FilePath)
	}
	if tasks[1].FilePath != "" {
		t.Errorf("expected T002 to have no file, got %q", tasks[1].FilePath)
	}
	if tasks[0].Phase != "Phase 1" || tasks[2].Phase != "Phase 2" {
		t.Errorf("wrong phases: %+v", tasks)
	}
	if tasks[0].Description != "Do X" {
		t.Errorf("expected description 'Do X', got %q", tasks[0].Description)
	}
}

func TestParseTasks_FallbackToLooseLines(t *testing.T) {
	content := `Plan without a fence.

- [ ] T001: Do X | File: a.ts
- [ ] T002: Do Y
`

	tasks := ParseTasks(content)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "T001" || tasks[0].FilePath != "a.ts" {
		t.Errorf("unexpected first task: %+v", tasks[0])
	}
	if tasks[1].ID != "T002" || tasks[1].FilePath != "" {
		t.Errorf("unexpected second task: %+v", tasks[1])
	}
}

func TestParseTasks_Idempotent(t *testing.T) {
	content := "```\n- [ ] T001: First\n- [x] T002: Already done\n- [ ] T003: Third | File: c.go\n```\n"

	first := ParseTasks(content)
	second := ParseTasks(content)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("parsing is not idempotent:\n%+v\n%+v", first, second)
	}
	if first[1].Status != models.TaskDone {
		t.Errorf("expected checked task to be done, got %s", first[1].Status)
	}
}

func TestParseTasks_DuplicateIDsKeepFirst(t *testing.T) {
	content := "- [ ] T001: First wins\n- [ ] T001: Ignored duplicate\n"

	tasks := ParseTasks(content)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Description != "First wins" {
		t.Errorf("expected first occurrence kept, got %q", tasks[0].Description)
	}
}

func TestParseTasks_Empty(t *testing.T) {
	if tasks := ParseTasks("no tasks here at all"); len(tasks) != 0 {
		t.Errorf("expected no tasks, got %+v", tasks)
	}
}
