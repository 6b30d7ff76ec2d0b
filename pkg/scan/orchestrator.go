package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
	"github.com/ShivamLahoty/MemHawk/pkg/logger"
	"github.com/ShivamLahoty/MemHawk/pkg/volatility"
)

const (
	DefaultWorkers = 4
	DefaultStagger = 100 * time.Millisecond
)

// Executor runs one plugin invocation. *volatility.Runner implements it.
type Executor interface {
	Execute(ctx context.Context, inv volatility.Invocation) (volatility.Output, error)
}

// Orchestrator runs the tasks of a scan on a bounded worker pool.
type Orchestrator struct {
	Executor Executor
	// Catalog supplies per-task arguments and the skip list. Optional.
	Catalog *catalog.Catalog
	Workers int
	// Stagger is the pause between task launches. Zero means DefaultStagger,
	// negative disables it.
	Stagger time.Duration
	// Timeout bounds each task.
	Timeout time.Duration
	// NoFallback records failed tasks as failures instead of substituting
	// synthetic payloads.
	NoFallback bool
	Log        *logrus.Logger
	Now        func() time.Time
}

// Run is a scan in progress.
type Run struct {
	session  *Session
	progress chan ProgressEvent
	done     chan struct{}
	cancel   context.CancelFunc
}

// Progress yields one event per completed task. The channel is closed when
// the run finishes or is cancelled.
func (r *Run) Progress() <-chan ProgressEvent { return r.progress }

// Wait blocks until the run is finished and returns its session.
func (r *Run) Wait() *Session {
	<-r.done
	return r.session
}

// Done is closed once the session is final.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel kills in-flight tasks and stops launching new ones. Completed
// results are kept.
func (r *Run) Cancel() { r.cancel() }

// Start validates req and launches its tasks in the background.
func (o *Orchestrator) Start(ctx context.Context, req ScanRequest) (*Run, error) {
	if len(req.TaskIDs) == 0 {
		return nil, ErrNoTasks
	}
	seen := make(map[string]bool, len(req.TaskIDs))
	for _, id := range req.TaskIDs {
		if id == "" {
			return nil, errors.New("scan request has an empty task id")
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, id)
		}
		seen[id] = true
	}
	if o.Executor == nil {
		return nil, errors.New("orchestrator has no executor")
	}

	runCtx, cancel := context.WithCancel(ctx)
	session := &Session{
		ID:           uuid.NewString(),
		ArtifactPath: req.ArtifactPath,
		OutputDir:    req.OutputDir,
		TaskIDs:      append([]string(nil), req.TaskIDs...),
		Results:      make(map[string]TaskResult, len(req.TaskIDs)),
		Total:        len(req.TaskIDs),
		StartedAt:    o.now(),
	}
	run := &Run{
		session:  session,
		progress: make(chan ProgressEvent, len(req.TaskIDs)),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	hook := logger.NewMemoryHook("session", session.ID, 0)
	log := sessionLogger(o.Log, hook).WithFields(logrus.Fields{
		"session":  session.ID,
		"artifact": req.ArtifactPath,
	})
	log.Infof("Starting scan of %d plugins", session.Total)

	queue := make(chan string)
	completions := make(chan TaskResult)

	go func() {
		defer close(queue)
		stagger := o.stagger()
		for i, id := range session.TaskIDs {
			if i > 0 && stagger > 0 {
				timer := time.NewTimer(stagger)
				select {
				case <-timer.C:
				case <-runCtx.Done():
					timer.Stop()
					return
				}
			}
			select {
			case queue <- id:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var g errgroup.Group
	for i := 0; i < o.workers(len(req.TaskIDs)); i++ {
		g.Go(func() error {
			for id := range queue {
				if runCtx.Err() != nil {
					return nil
				}
				res, ok := o.runTask(runCtx, req, id, log.WithField("task", id))
				if !ok {
					continue
				}
				// the collector drains completions until close
				completions <- res
			}
			return nil
		})
	}
	go func() {
		g.Wait()
		close(completions)
	}()

	// Single writer for session state.
	go func() {
		defer close(run.done)
		for res := range completions {
			session.Results[res.TaskID] = res
			session.Completed++
			if runCtx.Err() != nil {
				continue
			}
			run.progress <- ProgressEvent{
				Completed:     session.Completed,
				Total:         session.Total,
				CurrentTaskID: res.TaskID,
			}
		}
		session.Cancelled = session.Completed < session.Total
		session.FinishedAt = o.now()
		if session.Cancelled {
			log.Warnf("Scan cancelled after %d of %d plugins", session.Completed, session.Total)
		} else {
			log.Infof("Scan completed: %d plugins", session.Total)
		}
		session.Log = hook.Lines()
		close(run.progress)
		cancel()
	}()

	return run, nil
}

// Scan runs req to completion, calling onProgress for each event when set.
func (o *Orchestrator) Scan(ctx context.Context, req ScanRequest, onProgress func(ProgressEvent)) (*Session, error) {
	run, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	for ev := range run.Progress() {
		if onProgress != nil {
			onProgress(ev)
		}
	}
	return run.Wait(), nil
}

// runTask executes one task. ok is false when cancellation interrupted the
// run; a run that finished before the cancel took effect is kept.
func (o *Orchestrator) runTask(ctx context.Context, req ScanRequest, id string, log *logrus.Entry) (TaskResult, bool) {
	inv := volatility.Invocation{Artifact: req.ArtifactPath, Plugin: id, Dir: req.OutputDir}
	var task catalog.Task
	known := false
	if o.Catalog != nil {
		task, known = o.Catalog.Get(id)
		inv.Args = task.Args
	}
	started := o.now()

	if known && task.Skip {
		cmd := volatility.FormatCommand(nil, inv)
		return o.fallback(id, cmd, started, errors.New("requires additional parameters"), "", log), true
	}

	log.Infof("Starting %s scan", id)
	timeout := o.timeout()
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	out, err := o.Executor.Execute(taskCtx, inv)
	timedOut := errors.Is(taskCtx.Err(), context.DeadlineExceeded)
	cancel()

	if ctx.Err() != nil && err != nil {
		return TaskResult{}, false
	}
	cmd := out.Command
	if cmd == "" {
		cmd = volatility.FormatCommand(nil, inv)
	}
	if err != nil {
		if timedOut && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("command timeout after %s", timeout)
		}
		return o.fallback(id, cmd, started, err, out.Stderr, log), true
	}

	log.WithField("duration", out.Duration.Round(time.Millisecond)).Infof("Completed %s scan successfully", id)
	return TaskResult{
		TaskID:      id,
		Command:     cmd,
		Status:      StatusSuccess,
		Output:      parseOutput(out.Stdout),
		StartedAt:   started,
		CompletedAt: o.now(),
		Success:     true,
		Stderr:      out.Stderr,
	}, true
}

func (o *Orchestrator) fallback(id, cmd string, started time.Time, cause error, stderr string, log *logrus.Entry) TaskResult {
	res := TaskResult{
		TaskID:      id,
		Command:     cmd,
		StartedAt:   started,
		CompletedAt: o.now(),
		Error:       cause.Error(),
		Stderr:      stderr,
	}
	if o.NoFallback {
		log.WithError(cause).Errorf("%s failed", id)
		res.Status = StatusFailure
		return res
	}
	log.WithError(cause).Warnf("%s failed, using demo data", id)
	res.Status = StatusFallback
	res.Output = FallbackPayload(id)
	res.Success = true
	res.Demo = true
	return res
}

func (o *Orchestrator) workers(n int) int {
	w := o.Workers
	if w <= 0 {
		w = DefaultWorkers
	}
	if w > n {
		w = n
	}
	return w
}

func (o *Orchestrator) stagger() time.Duration {
	if o.Stagger < 0 {
		return 0
	}
	if o.Stagger == 0 {
		return DefaultStagger
	}
	return o.Stagger
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout <= 0 {
		return volatility.DefaultTimeout
	}
	return o.Timeout
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// sessionLogger derives a logger that shares base's output and hooks and
// additionally feeds hook.
func sessionLogger(base *logrus.Logger, hook logrus.Hook) *logrus.Logger {
	if base == nil {
		base = logger.Discard()
	}
	l := logrus.New()
	l.SetOutput(base.Out)
	l.SetFormatter(base.Formatter)
	l.SetLevel(base.GetLevel())
	hooks := make(logrus.LevelHooks)
	for lvl, hs := range base.Hooks {
		hooks[lvl] = append([]logrus.Hook(nil), hs...)
	}
	hooks.Add(hook)
	l.ReplaceHooks(hooks)
	return l
}
