package logger

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Line is one captured log entry.
type Line struct {
	Time    time.Time `json:"timestamp"`
	Level   string    `json:"type"`
	Message string    `json:"message"`
	TaskID  string    `json:"plugin,omitempty"`
}

// MemoryHook keeps log entries carrying a given session field so a scan can
// report its own log alongside its results.
type MemoryHook struct {
	field string
	value string
	limit int

	mu    sync.Mutex
	lines []Line
}

// NewMemoryHook captures entries whose field equals value, keeping at most
// limit lines (oldest dropped). limit <= 0 means 500.
func NewMemoryHook(field, value string, limit int) *MemoryHook {
	if limit <= 0 {
		limit = 500
	}
	return &MemoryHook{field: field, value: value, limit: limit}
}

func (h *MemoryHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *MemoryHook) Fire(e *logrus.Entry) error {
	if v, ok := e.Data[h.field]; !ok || fmt.Sprint(v) != h.value {
		return nil
	}
	line := Line{Time: e.Time, Level: e.Level.String(), Message: e.Message}
	if task, ok := e.Data["task"]; ok {
		line.TaskID = fmt.Sprint(task)
	}
	if len(e.Data) > 0 {
		line.Message += formatFields(e.Data, h.field)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
	if len(h.lines) > h.limit {
		h.lines = h.lines[len(h.lines)-h.limit:]
	}
	return nil
}

// Lines returns a copy of the captured entries.
func (h *MemoryHook) Lines() []Line {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Line, len(h.lines))
	copy(out, h.lines)
	return out
}

func formatFields(data logrus.Fields, skip string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k == skip || k == "task" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
