package heartbeat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseTaskFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "HEARTBEAT.md")
	content := "# Heartbeat\n\n- [ ] Check repo\n- [x] Done already\nsome other text\n  - [ ] Indented pending\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write task file: %v", err)
	}

	tasks, err := ParseTaskFile(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d: %+v", len(tasks), tasks)
	}
	if tasks[0].Description != "Check repo" || tasks[0].Completed {
		t.Errorf("task[0] = %+v", tasks[0])
	}
	if tasks[1].Description != "Done already" || !tasks[1].Completed {
		t.Errorf("task[1] = %+v", tasks[1])
	}
	if tasks[2].Description != "Indented pending" || tasks[2].Completed {
		t.Errorf("task[2] = %+v", tasks[2])
	}

	pending := PendingTasks(tasks)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending tasks, got %d", len(pending))
	}
}

func TestParseTaskFile_MissingFile(t *testing.T) {
	tasks, err := ParseTaskFile(filepath.Join(t.TempDir(), "absent.md"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %v", tasks)
	}
}
