package scan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoadResults(t *testing.T) {
	dir := t.TempDir()
	finished := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{
		TaskIDs: []string{"windows.pslist", "windows.netscan"},
		Results: map[string]TaskResult{
			"windows.pslist": {TaskID: "windows.pslist", Command: "vol -f m -r json windows.pslist", Status: StatusSuccess,
				Output: []any{map[string]any{"PID": json.Number("4")}}, Success: true, CompletedAt: finished},
			"windows.netscan": {TaskID: "windows.netscan", Status: StatusFallback, Output: FallbackPayload("windows.netscan"),
				Success: true, Demo: true, Error: "command timeout after 5m0s", CompletedAt: finished},
		},
		FinishedAt: finished,
	}

	path, err := SaveResults(dir, s)
	if err != nil {
		t.Fatalf("SaveResults failed: %v", err)
	}
	if filepath.Base(path) != "memhawk-results-2024-03-01.json" {
		t.Errorf("unexpected file name: %s", path)
	}

	second, err := SaveResults(dir, s)
	if err != nil {
		t.Fatal(err)
	}
	if second == path {
		t.Error("second export overwrote the first")
	}

	loaded, err := LoadResults(path)
	if err != nil {
		t.Fatalf("LoadResults failed: %v", err)
	}
	if loaded.Total != 2 || loaded.Completed != 2 {
		t.Errorf("unexpected counters: %+v", loaded)
	}
	ps := loaded.Results["windows.pslist"]
	if ps.Status != StatusSuccess || !ps.CompletedAt.Equal(finished) {
		t.Errorf("unexpected pslist: %+v", ps)
	}
	item := ps.Output.([]any)[0].(map[string]any)
	if item["PID"] != json.Number("4") {
		t.Errorf("expected numbers kept as json.Number, got %#v", item["PID"])
	}
	if !loaded.Results["windows.netscan"].Demo {
		t.Error("demo flag lost on reload")
	}
}

func TestLoadResultsDerivesStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.json")
	legacy := `{
  "windows.pslist": {"plugin": "windows.pslist", "output": [], "success": true, "timestamp": "2024-01-01T10:00:00Z"},
  "windows.malfind": {"plugin": "windows.malfind", "output": [], "success": true, "demo": true, "timestamp": "2024-01-01T10:00:01Z"},
  "windows.info": {"output": null, "success": false, "error": "failed", "timestamp": "2024-01-01T10:00:02Z"}
}`
	if err := os.WriteFile(path, []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadResults(path)
	if err != nil {
		t.Fatalf("LoadResults failed: %v", err)
	}
	want := map[string]Status{
		"windows.pslist":  StatusSuccess,
		"windows.malfind": StatusFallback,
		"windows.info":    StatusFailure,
	}
	for id, status := range want {
		if got := s.Results[id].Status; got != status {
			t.Errorf("%s: status %s, want %s", id, got, status)
		}
	}
	if s.Results["windows.info"].TaskID != "windows.info" {
		t.Error("task id not filled from key")
	}
	if s.TaskIDs[0] != "windows.info" {
		t.Errorf("expected sorted task ids, got %v", s.TaskIDs)
	}
}

func TestLoadResultsRejectsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`[1,2,3]`), 0644)
	if _, err := LoadResults(path); err == nil {
		t.Error("expected error for non-object results file")
	}
}
