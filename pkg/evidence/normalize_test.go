package evidence

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
	"github.com/ShivamLahoty/MemHawk/pkg/scan"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return v
}

func TestNormalizeProcess(t *testing.T) {
	payload := []any{map[string]any{"ImageFileName": "p.exe", "PID": 10}}
	ev := Normalize("proc", catalog.Process, payload, DefaultLimits())

	if len(ev.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(ev.Records))
	}
	want := []Field{{Name: "name", Value: "p.exe"}, {Name: "pid", Value: int64(10)}}
	if !reflect.DeepEqual(ev.Records[0].Fields, want) {
		t.Errorf("unexpected fields: %+v", ev.Records[0].Fields)
	}
	if len(ev.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", ev.Diagnostics)
	}
	if ev.Text != "- Process: p.exe (PID: 10)" {
		t.Errorf("unexpected text: %q", ev.Text)
	}
}

func TestNormalizeAliasOrder(t *testing.T) {
	payload := decode(t, `[{"name":"lower.exe","Name":"upper.exe","pid":4,"Parent":1}]`)
	ev := Normalize("windows.pslist", catalog.Process, payload, DefaultLimits())
	if len(ev.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(ev.Records))
	}
	if name, _ := ev.Records[0].Get("name"); name != "lower.exe" {
		t.Errorf("expected first alias to win, got %v", name)
	}
	if ppid, _ := ev.Records[0].Get("ppid"); ppid != int64(1) {
		t.Errorf("expected ppid from Parent alias, got %v", ppid)
	}
}

func TestNormalizeSkipsEmptyAlias(t *testing.T) {
	payload := decode(t, `[{"ImageFileName":"","Name":"svc.exe","PID":0}]`)
	ev := Normalize("windows.pslist", catalog.Process, payload, DefaultLimits())
	if len(ev.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(ev.Records))
	}
	if name, _ := ev.Records[0].Get("name"); name != "svc.exe" {
		t.Errorf("expected empty alias to be skipped, got %v", name)
	}
	if pid, _ := ev.Records[0].Get("pid"); pid != int64(0) {
		t.Errorf("expected pid 0 to be kept, got %v", pid)
	}
}

func TestNormalizeFlattensTree(t *testing.T) {
	payload := decode(t, `{"processes":[
		{"name":"System","pid":4,"children":[
			{"name":"smss.exe","pid":300,"ppid":4,"children":[
				{"name":"csrss.exe","pid":400,"ppid":300}
			]}
		]},
		{"name":"explorer.exe","pid":1500}
	]}`)
	ev := Normalize("windows.pstree", catalog.Process, payload, DefaultLimits())

	var names []string
	for _, r := range ev.Records {
		n, _ := r.Get("name")
		names = append(names, n.(string))
	}
	want := []string{"System", "smss.exe", "csrss.exe", "explorer.exe"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("expected depth-first order %v, got %v", want, names)
	}
}

func TestNormalizeTruncatesItems(t *testing.T) {
	var items []any
	for i := 0; i < 50; i++ {
		items = append(items, map[string]any{"Name": "f", "Size": i})
	}
	ev := Normalize("windows.filescan", catalog.File, items, DefaultLimits())
	if len(ev.Records) != 15 {
		t.Errorf("expected 15 file records, got %d", len(ev.Records))
	}

	limits := DefaultLimits()
	limits.PerCategory = nil
	limits.Items = 5
	ev = Normalize("windows.filescan", catalog.File, items, limits)
	if len(ev.Records) != 5 {
		t.Errorf("expected 5 file records, got %d", len(ev.Records))
	}
}

func TestNormalizeNetwork(t *testing.T) {
	payload := decode(t, `[
		{"LocalAddress":"10.0.0.5","local_port":443,"RemoteAddr":"8.8.8.8","RemotePort":53,"state":"ESTABLISHED","Owner":"svchost.exe"},
		{"Proto":"UDPv4"}
	]`)
	ev := Normalize("windows.netscan", catalog.Network, payload, DefaultLimits())
	if len(ev.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(ev.Records))
	}
	want := "- Connection: 10.0.0.5:443 -> 8.8.8.8:53 (ESTABLISHED) [svchost.exe]"
	if ev.Text != want {
		t.Errorf("unexpected text:\n got %q\nwant %q", ev.Text, want)
	}
}

func TestNormalizeUnrecognized(t *testing.T) {
	payload := decode(t, `[{"Foo":1,"Bar":2}]`)
	ev := Normalize("windows.pslist", catalog.Process, payload, DefaultLimits())
	if len(ev.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(ev.Records))
	}
	if len(ev.Diagnostics) != 2 {
		t.Fatalf("expected 2 diagnostics, got %v", ev.Diagnostics)
	}
	if ev.Diagnostics[0] != "format not recognized for category process" {
		t.Errorf("unexpected diagnostic: %q", ev.Diagnostics[0])
	}
	if ev.Diagnostics[1] != "first item keys: Bar, Foo" {
		t.Errorf("unexpected keys diagnostic: %q", ev.Diagnostics[1])
	}
}

func TestNormalizeStringAndOther(t *testing.T) {
	long := strings.Repeat("a", 1500)
	ev := Normalize("windows.info", catalog.Other, long, DefaultLimits())
	if len(ev.Text) != 1003 || !strings.HasSuffix(ev.Text, "...") {
		t.Errorf("expected string truncated to 1000 chars plus ellipsis, got len %d", len(ev.Text))
	}

	payload := decode(t, `[{"Variable":"Kernel Base","Value":"0xf80000000000"}]`)
	ev = Normalize("windows.info", catalog.Other, payload, DefaultLimits())
	if !strings.Contains(ev.Text, `"Variable": "Kernel Base"`) {
		t.Errorf("expected JSON passthrough, got %q", ev.Text)
	}
	if len(ev.Diagnostics) != 0 {
		t.Errorf("passthrough should not add diagnostics: %v", ev.Diagnostics)
	}
}

func TestNormalizeIsPure(t *testing.T) {
	payload := decode(t, `[{"ImageFileName":"a.exe","PID":1,"x":{"b":1,"a":2}},{"Foo":"bar"}]`)
	for _, c := range []catalog.Category{catalog.Process, catalog.Other, catalog.Malware} {
		first, _ := json.Marshal(Normalize("t", c, payload, DefaultLimits()))
		second, _ := json.Marshal(Normalize("t", c, payload, DefaultLimits()))
		if string(first) != string(second) {
			t.Errorf("category %s: normalize not deterministic", c)
		}
	}
}

func TestCategoryFor(t *testing.T) {
	tests := map[string]catalog.Category{
		"windows.pslist":            catalog.Process,
		"linux.psaux":               catalog.Process,
		"windows.registry.hivelist": catalog.Registry,
		"windows.netscan":           catalog.Network,
		"windows.malfind":           catalog.Malware,
		"windows.filescan":          catalog.File,
		"windows.info":              catalog.Other,
	}
	for id, want := range tests {
		if got := CategoryFor(id); got != want {
			t.Errorf("CategoryFor(%q) = %s, want %s", id, got, want)
		}
	}
}

func TestSummarizeAndFromSession(t *testing.T) {
	now := time.Now()
	s := &scan.Session{
		TaskIDs: []string{"windows.pslist", "windows.netscan", "windows.malfind"},
		Results: map[string]scan.TaskResult{
			"windows.pslist": {TaskID: "windows.pslist", Status: scan.StatusSuccess, Success: true,
				Output: []any{map[string]any{"ImageFileName": "a.exe", "PID": 1}}, CompletedAt: now},
			"windows.netscan": {TaskID: "windows.netscan", Status: scan.StatusFallback, Success: true, Demo: true,
				Output: []any{map[string]any{"LocalAddr": "0.0.0.0"}}, CompletedAt: now},
			"windows.malfind": {TaskID: "windows.malfind", Status: scan.StatusFailure, Error: "boom", CompletedAt: now},
		},
	}

	sum := Summarize(s, nil)
	if sum.Total != 3 || sum.Successful != 1 || sum.Fallback != 1 || sum.Failed != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if !reflect.DeepEqual(sum.Domains, []catalog.Category{catalog.Process, catalog.Network}) {
		t.Errorf("unexpected domains: %v", sum.Domains)
	}

	evs := FromSession(s, nil, DefaultLimits())
	if len(evs) != 3 || evs[0].TaskID != "windows.pslist" || evs[2].TaskID != "windows.malfind" {
		t.Fatalf("unexpected evidence order: %+v", evs)
	}
	if !strings.Contains(evs[2].Text, "boom") {
		t.Errorf("expected failure text, got %q", evs[2].Text)
	}
	last := evs[1].Diagnostics[len(evs[1].Diagnostics)-1]
	if !strings.Contains(last, "fallback") {
		t.Errorf("expected fallback flag in diagnostics, got %v", evs[1].Diagnostics)
	}
}
