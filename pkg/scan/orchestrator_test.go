package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
	"github.com/ShivamLahoty/MemHawk/pkg/volatility"
)

// fakeExecutor answers per plugin; plugins listed in block wait for ctx.
type fakeExecutor struct {
	outputs map[string]string
	fail    map[string]error
	block   map[string]bool
	// before runs inside Execute ahead of the answer.
	before map[string]func()

	mu      sync.Mutex
	running int
	peak    int
	calls   int32
}

func (f *fakeExecutor) Execute(ctx context.Context, inv volatility.Invocation) (volatility.Output, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.running++
	if f.running > f.peak {
		f.peak = f.running
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	out := volatility.Output{Command: volatility.FormatCommand([]string{"vol"}, inv)}
	if fn := f.before[inv.Plugin]; fn != nil {
		fn()
	}
	if f.block[inv.Plugin] {
		<-ctx.Done()
		return out, ctx.Err()
	}
	if err := f.fail[inv.Plugin]; err != nil {
		return out, err
	}
	if s, ok := f.outputs[inv.Plugin]; ok {
		out.Stdout = []byte(s)
	}
	return out, nil
}

func newTestOrchestrator(exec Executor) *Orchestrator {
	return &Orchestrator{Executor: exec, Stagger: -1, Timeout: 5 * time.Second}
}

func TestScanSuccessAndTimeout(t *testing.T) {
	exec := &fakeExecutor{
		outputs: map[string]string{"alpha": `[{"PID": 1}]`},
		block:   map[string]bool{"beta": true},
	}
	o := newTestOrchestrator(exec)
	o.Timeout = 100 * time.Millisecond

	var events []ProgressEvent
	s, err := o.Scan(context.Background(), ScanRequest{ArtifactPath: "mem.raw", TaskIDs: []string{"alpha", "beta"}}, func(ev ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	alpha := s.Results["alpha"]
	if !alpha.Success || alpha.Demo || alpha.Status != StatusSuccess {
		t.Errorf("unexpected alpha result: %+v", alpha)
	}
	if _, ok := alpha.Output.([]any); !ok {
		t.Errorf("expected alpha output parsed as JSON array, got %T", alpha.Output)
	}

	beta := s.Results["beta"]
	if !beta.Success || !beta.Demo || beta.Status != StatusFallback || beta.IsAuthoritative() {
		t.Errorf("unexpected beta result: %+v", beta)
	}
	if beta.Error == "" {
		t.Error("expected beta error detail to be recorded")
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 progress events, got %d", len(events))
	}
	last := events[len(events)-1]
	if last.Completed != 2 || last.Total != 2 {
		t.Errorf("expected final event 2/2, got %+v", last)
	}
	if s.Completed != 2 || s.Total != 2 || s.Cancelled {
		t.Errorf("unexpected session counters: completed=%d total=%d cancelled=%v", s.Completed, s.Total, s.Cancelled)
	}
}

func TestScanManyTasksAllAccountedFor(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string]string{}, fail: map[string]error{}}
	var ids []string
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("task%02d", i)
		ids = append(ids, id)
		switch i % 3 {
		case 0:
			exec.outputs[id] = `{"ok": true}`
		case 1:
			exec.fail[id] = errors.New("exit status 1")
		case 2:
			exec.outputs[id] = "plain text output"
		}
	}
	o := newTestOrchestrator(exec)
	o.Workers = 3

	s, err := o.Scan(context.Background(), ScanRequest{ArtifactPath: "mem.raw", TaskIDs: ids}, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(s.Results) != 25 || s.Completed != 25 || s.Total != 25 {
		t.Fatalf("expected 25 results, got %d (completed=%d total=%d)", len(s.Results), s.Completed, s.Total)
	}
	if exec.peak > 3 {
		t.Errorf("expected at most 3 concurrent tasks, saw %d", exec.peak)
	}
	if got := s.Results["task02"].Output; got != "plain text output" {
		t.Errorf("expected raw text output kept, got %#v", got)
	}
	if !s.Results["task01"].Demo {
		t.Error("expected failed task to fall back")
	}
	ordered := s.Ordered()
	if ordered[0].TaskID != "task00" || ordered[24].TaskID != "task24" {
		t.Error("Ordered did not follow request order")
	}
}

func TestScanRejectsBadRequests(t *testing.T) {
	o := newTestOrchestrator(&fakeExecutor{})
	if _, err := o.Start(context.Background(), ScanRequest{}); !errors.Is(err, ErrNoTasks) {
		t.Errorf("expected ErrNoTasks, got %v", err)
	}
	_, err := o.Start(context.Background(), ScanRequest{TaskIDs: []string{"a", "b", "a"}})
	if !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestScanCancel(t *testing.T) {
	exec := &fakeExecutor{
		outputs: map[string]string{"fast": `[]`},
		block:   map[string]bool{"slow1": true, "slow2": true, "slow3": true},
	}
	o := newTestOrchestrator(exec)
	o.Workers = 2
	o.Timeout = time.Minute

	run, err := o.Start(context.Background(), ScanRequest{TaskIDs: []string{"fast", "slow1", "slow2", "slow3"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	first := <-run.Progress()
	if first.CurrentTaskID != "fast" {
		t.Fatalf("expected fast to complete first, got %+v", first)
	}
	run.Cancel()

	done := make(chan *Session)
	go func() { done <- run.Wait() }()
	var s *Session
	select {
	case s = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled run did not finish")
	}

	if !s.Cancelled {
		t.Error("expected session to be marked cancelled")
	}
	if s.Total != 4 || s.Completed != 1 || len(s.Results) != 1 {
		t.Errorf("expected partial session 1/4, got completed=%d total=%d results=%d", s.Completed, s.Total, len(s.Results))
	}
	for range run.Progress() {
		t.Error("no progress expected after cancellation")
	}
	if calls := atomic.LoadInt32(&exec.calls); calls > 3 {
		t.Errorf("expected no launches after cancel, got %d calls", calls)
	}
}

func TestScanKeepsResultFinishedAtCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := &fakeExecutor{
		outputs: map[string]string{"a": `[]`, "b": `[{"PID": 4}]`},
		before:  map[string]func(){"b": cancel},
	}
	o := newTestOrchestrator(exec)
	o.Workers = 1

	run, err := o.Start(ctx, ScanRequest{TaskIDs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for range run.Progress() {
	}
	s := run.Wait()

	r, ok := s.Results["b"]
	if !ok || r.Status != StatusSuccess {
		t.Fatalf("result completed during cancel was dropped: %+v", s.Results)
	}
	if s.Completed != 2 || s.Cancelled {
		t.Errorf("expected 2/2 not cancelled, got completed=%d cancelled=%v", s.Completed, s.Cancelled)
	}
}

func TestScanSkipListAndCatalogArgs(t *testing.T) {
	cat, err := catalog.Load()
	if err != nil {
		t.Fatal(err)
	}
	exec := &fakeExecutor{outputs: map[string]string{"windows.registry.printkey": `[]`}}
	o := newTestOrchestrator(exec)
	o.Catalog = cat

	s, err := o.Scan(context.Background(), ScanRequest{
		ArtifactPath: "mem.raw",
		TaskIDs:      []string{"windows.strings", "windows.registry.printkey"},
	}, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	strs := s.Results["windows.strings"]
	if !strs.Demo || strs.Error != "requires additional parameters" {
		t.Errorf("expected skip-listed task to fall back, got %+v", strs)
	}
	if atomic.LoadInt32(&exec.calls) != 1 {
		t.Errorf("skip-listed task should not be executed, calls=%d", exec.calls)
	}
	pk := s.Results["windows.registry.printkey"]
	if pk.Command != "vol -f mem.raw -r json windows.registry.printkey --key Software" {
		t.Errorf("unexpected command: %q", pk.Command)
	}
}

func TestScanNoFallback(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]error{"a": errors.New("boom")}}
	o := newTestOrchestrator(exec)
	o.NoFallback = true

	s, _ := o.Scan(context.Background(), ScanRequest{TaskIDs: []string{"a"}}, nil)
	r := s.Results["a"]
	if r.Success || r.Status != StatusFailure || r.Output != nil || r.Error != "boom" {
		t.Errorf("unexpected failure result: %+v", r)
	}
}

func TestScanCapturesSessionLog(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]error{"a": errors.New("boom")}}
	o := newTestOrchestrator(exec)
	s, _ := o.Scan(context.Background(), ScanRequest{TaskIDs: []string{"a"}}, nil)

	found := false
	for _, line := range s.Log {
		if line.TaskID == "a" && line.Level == "warning" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a warning line for task a, got %+v", s.Log)
	}
}

func TestScanWithFakeVolBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake not supported on windows")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "vol")
	script := `#!/bin/sh
for last; do :; done
case "$last" in
  windows.pslist) echo '[{"ImageFileName":"System","PID":4}]' ;;
  *) echo "plugin not found" >&2; exit 2 ;;
esac
`
	if err := os.WriteFile(bin, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	o := newTestOrchestrator(&volatility.Runner{Binary: []string{bin}, Timeout: 5 * time.Second})

	s, err := o.Scan(context.Background(), ScanRequest{ArtifactPath: "mem.raw", OutputDir: dir, TaskIDs: []string{"windows.pslist", "windows.bogus"}}, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !s.Results["windows.pslist"].IsAuthoritative() {
		t.Errorf("expected real result for pslist: %+v", s.Results["windows.pslist"])
	}
	bogus := s.Results["windows.bogus"]
	if !bogus.Demo || bogus.Stderr != "plugin not found" {
		t.Errorf("expected fallback with stderr for bogus plugin: %+v", bogus)
	}
}

func TestFallbackPayload(t *testing.T) {
	tree, ok := FallbackPayload("windows.pstree").(map[string]any)
	if !ok || tree["processes"] == nil {
		t.Errorf("expected process tree payload, got %#v", tree)
	}
	generic, ok := FallbackPayload("windows.unknown").([]any)
	if !ok || len(generic) != 1 {
		t.Fatalf("expected generic demo payload, got %#v", generic)
	}
	if generic[0].(map[string]any)["message"] != "Demo data for windows.unknown" {
		t.Errorf("unexpected generic payload: %#v", generic[0])
	}

	a := FallbackPayload("windows.pslist").([]any)
	a[0] = "mutated"
	b := FallbackPayload("windows.pslist").([]any)
	if b[0] == "mutated" {
		t.Error("fallback payloads must not share state")
	}
}
