package heartbeat

import (
	"bufio"
	"os"
	"strings"
)

const (
	pendingPrefix   = "- [ ] "
	completedPrefix = "- [x] "
)

// ParseTaskFile reads path and extracts checkbox lines. Lines matching
// neither `- [ ] <desc>` nor `- [x] <desc>` are ignored. A missing file
// yields an empty, non-error result.
func ParseTaskFile(path string) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var tasks []Task
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimLeft(line, " \t")

		switch {
		case strings.HasPrefix(trimmed, pendingPrefix):
			tasks = append(tasks, Task{
				Description: strings.TrimSpace(trimmed[len(pendingPrefix):]),
				Completed:   false,
				RawLine:     line,
				LineNumber:  lineNo,
			})
		case strings.HasPrefix(trimmed, completedPrefix):
			tasks = append(tasks, Task{
				Description: strings.TrimSpace(trimmed[len(completedPrefix):]),
				Completed:   true,
				RawLine:     line,
				LineNumber:  lineNo,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// PendingTasks filters tasks down to the incomplete ones.
func PendingTasks(tasks []Task) []Task {
	var pending []Task
	for _, t := range tasks {
		if !t.Completed {
			pending = append(pending, t)
		}
	}
	return pending
}
