package evidence

import (
	"strings"
	"testing"

	"github.com/ShivamLahoty/MemHawk/pkg/scan"
)

func proc(name string, pid, ppid int) map[string]any {
	return map[string]any{"ImageFileName": name, "PID": float64(pid), "PPID": float64(ppid)}
}

func lineageSession(malfindStatus scan.Status) *scan.Session {
	return &scan.Session{
		TaskIDs: []string{"windows.pslist", "windows.malfind", "windows.hollowprocesses"},
		Results: map[string]scan.TaskResult{
			"windows.pslist": {TaskID: "windows.pslist", Status: scan.StatusSuccess, Success: true,
				Output: []any{
					proc("System", 4, 0),
					proc("smss.exe", 368, 4),
					proc("explorer.exe", 1200, 1100),
					proc("cmd.exe", 2400, 1200),
					proc("evil.exe", 2500, 2400),
				}},
			"windows.malfind": {TaskID: "windows.malfind", Status: malfindStatus, Success: true,
				Output: []any{
					map[string]any{"Process": "evil.exe", "PID": float64(2500), "Protection": "PAGE_EXECUTE_READWRITE"},
					map[string]any{"Process": "evil.exe", "PID": float64(2500), "Protection": "PAGE_EXECUTE_READWRITE"},
					map[string]any{"Process": "ghost.exe", "PID": float64(9000)},
				}},
			"windows.hollowprocesses": {TaskID: "windows.hollowprocesses", Status: scan.StatusSuccess, Success: true,
				Output: []any{map[string]any{"Process": "cmd.exe", "PID": "2400"}}},
		},
	}
}

func TestProcessGraphPath(t *testing.T) {
	g := NewProcessGraph()
	g.Add(Normalize("windows.pslist", "process", lineageSession(scan.StatusSuccess).Results["windows.pslist"].Output, DefaultLimits()).Records)

	if g.Len() != 5 {
		t.Fatalf("expected 5 processes, got %d", g.Len())
	}
	roots := g.Roots()
	if len(roots) != 2 || roots[0] != 4 || roots[1] != 1200 {
		t.Errorf("unexpected roots %v", roots)
	}

	path := g.Path(2500)
	var names []string
	for _, n := range path {
		names = append(names, n.String())
	}
	if got := strings.Join(names, " -> "); got != "explorer.exe(1200) -> cmd.exe(2400) -> evil.exe(2500)" {
		t.Errorf("unexpected path %q", got)
	}
	if g.Path(77) != nil {
		t.Error("expected nil path for unknown pid")
	}
}

func TestProcessGraphCycle(t *testing.T) {
	g := NewProcessGraph()
	g.Add([]Record{
		{Fields: []Field{{Name: "name", Value: "a"}, {Name: "pid", Value: int64(10)}, {Name: "ppid", Value: int64(20)}}},
		{Fields: []Field{{Name: "name", Value: "b"}, {Name: "pid", Value: int64(20)}, {Name: "ppid", Value: int64(10)}}},
		{Fields: []Field{{Name: "name", Value: "idle"}, {Name: "pid", Value: int64(0)}, {Name: "ppid", Value: int64(0)}}},
	})
	if g.Path(10) != nil {
		t.Error("expected no path through a parent cycle")
	}
	if p := g.Path(0); len(p) != 1 || p[0].Name != "idle" {
		t.Errorf("pid 0 should be its own root, got %v", p)
	}
}

func TestLineage(t *testing.T) {
	sus := Lineage(lineageSession(scan.StatusSuccess), nil)
	if len(sus) != 3 {
		t.Fatalf("expected 3 suspects, got %+v", sus)
	}
	if sus[0].PID != 2400 || sus[1].PID != 2500 || sus[2].PID != 9000 {
		t.Errorf("suspects not sorted by pid: %+v", sus)
	}
	if len(sus[1].TaskIDs) != 1 || sus[1].TaskIDs[0] != "windows.malfind" {
		t.Errorf("duplicate malfind rows should collapse, got %v", sus[1].TaskIDs)
	}

	text := LineageText(sus)
	for _, want := range []string{
		"- explorer.exe(1200) -> cmd.exe(2400) [flagged by windows.hollowprocesses]",
		"- explorer.exe(1200) -> cmd.exe(2400) -> evil.exe(2500) [flagged by windows.malfind]",
		"- ghost.exe(9000) (not in process listing) [flagged by windows.malfind]",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("lineage text missing %q:\n%s", want, text)
		}
	}
}

func TestLineageParentCycle(t *testing.T) {
	s := lineageSession(scan.StatusSuccess)
	ps := s.Results["windows.pslist"]
	ps.Output = append(ps.Output.([]any), proc("loop-a.exe", 3000, 3100), proc("loop-b.exe", 3100, 3000))
	s.Results["windows.pslist"] = ps
	mf := s.Results["windows.malfind"]
	mf.Output = append(mf.Output.([]any), map[string]any{"Process": "loop-a.exe", "PID": float64(3000)})
	s.Results["windows.malfind"] = mf

	var loop Suspect
	for _, sus := range Lineage(s, nil) {
		if sus.PID == 3000 {
			loop = sus
		}
	}
	if !loop.Listed || loop.Path != nil {
		t.Fatalf("expected listed suspect without a path, got %+v", loop)
	}

	text := LineageText([]Suspect{loop})
	if want := "- loop-a.exe(3000) (parent chain loops) [flagged by windows.malfind]\n"; text != want {
		t.Errorf("got %q, want %q", text, want)
	}
}

func TestLineageIgnoresFallbackData(t *testing.T) {
	sus := Lineage(lineageSession(scan.StatusFallback), nil)
	for _, s := range sus {
		if s.PID == 2500 || s.PID == 9000 {
			t.Errorf("fallback malfind output produced suspect %+v", s)
		}
	}
	if LineageText(nil) != "" {
		t.Error("expected empty text for no suspects")
	}
}
