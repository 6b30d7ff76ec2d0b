package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ShivamLahoty/MemHawk/pkg/fsutil"
)

// ResultsFileName is the export name for a scan finished at t.
func ResultsFileName(t time.Time) string {
	return fmt.Sprintf("memhawk-results-%s.json", t.Format("2006-01-02"))
}

// SaveResults writes the session's result map (task id to result) into dir
// and returns the path written. Existing exports are never replaced.
func SaveResults(dir string, s *Session) (string, error) {
	data, err := json.MarshalIndent(s.Results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	finished := s.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	path := fsutil.UniquePath(filepath.Join(dir, ResultsFileName(finished)))
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// LoadResults reads an exported result map back into a session. Results
// without a status get one derived from their success and demo flags.
func LoadResults(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	results := make(map[string]TaskResult)
	raw, err := decodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if _, ok := raw.(map[string]any); !ok {
		return nil, fmt.Errorf("failed to parse %s: expected an object keyed by plugin", path)
	}
	// Decode twice: once for the typed fields, once to keep json.Number
	// payloads the way live scans produce them.
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for id, entry := range raw.(map[string]any) {
		r := results[id]
		if m, ok := entry.(map[string]any); ok {
			r.Output = m["output"]
		}
		if r.TaskID == "" {
			r.TaskID = id
		}
		if r.Status == "" {
			switch {
			case r.Demo:
				r.Status = StatusFallback
			case r.Success:
				r.Status = StatusSuccess
			default:
				r.Status = StatusFailure
			}
		}
		results[id] = r
	}

	ids := make([]string, 0, len(results))
	var finished time.Time
	for id, r := range results {
		ids = append(ids, id)
		if r.CompletedAt.After(finished) {
			finished = r.CompletedAt
		}
	}
	sort.Strings(ids)

	return &Session{
		ID:         uuid.NewString(),
		TaskIDs:    ids,
		Results:    results,
		Completed:  len(results),
		Total:      len(results),
		FinishedAt: finished,
	}, nil
}
