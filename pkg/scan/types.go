package scan

import (
	"errors"
	"sort"
	"time"

	"github.com/ShivamLahoty/MemHawk/pkg/logger"
)

var (
	ErrNoTasks       = errors.New("scan request has no tasks")
	ErrDuplicateTask = errors.New("duplicate task id in scan request")
)

type Status string

const (
	StatusSuccess  Status = "success"
	StatusFallback Status = "fallback"
	StatusFailure  Status = "failure"
)

// ScanRequest describes one user-initiated scan of a single artifact.
type ScanRequest struct {
	ArtifactPath string
	TaskIDs      []string
	OutputDir    string
}

// TaskResult is the outcome of one task. The JSON shape matches the
// exported results file.
type TaskResult struct {
	TaskID      string    `json:"plugin"`
	Command     string    `json:"command"`
	Status      Status    `json:"status"`
	Output      any       `json:"output"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
	Demo        bool      `json:"demo,omitempty"`
	Error       string    `json:"error,omitempty"`
	Stderr      string    `json:"stderr,omitempty"`
}

// IsAuthoritative reports whether the output came from a real tool run.
func (r TaskResult) IsAuthoritative() bool {
	return r.Status == StatusSuccess
}

type ProgressEvent struct {
	Completed     int    `json:"completed"`
	Total         int    `json:"total"`
	CurrentTaskID string `json:"currentTaskId"`
}

// Session holds all results of one scan. It is owned by the scan that
// produced it; readers must not mutate it.
type Session struct {
	ID           string                `json:"id"`
	ArtifactPath string                `json:"artifactPath"`
	OutputDir    string                `json:"outputDir,omitempty"`
	TaskIDs      []string              `json:"taskIds"`
	Results      map[string]TaskResult `json:"results"`
	Completed    int                   `json:"completed"`
	Total        int                   `json:"total"`
	Cancelled    bool                  `json:"cancelled,omitempty"`
	StartedAt    time.Time             `json:"startedAt"`
	FinishedAt   time.Time             `json:"finishedAt"`
	Log          []logger.Line         `json:"log,omitempty"`
}

// Ordered returns results in request order followed by any results not
// named in TaskIDs, sorted by id.
func (s *Session) Ordered() []TaskResult {
	out := make([]TaskResult, 0, len(s.Results))
	seen := make(map[string]bool, len(s.TaskIDs))
	for _, id := range s.TaskIDs {
		if r, ok := s.Results[id]; ok && !seen[id] {
			out = append(out, r)
			seen[id] = true
		}
	}
	var extra []string
	for id := range s.Results {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		out = append(out, s.Results[id])
	}
	return out
}
