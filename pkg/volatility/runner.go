package volatility

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout   = 300 * time.Second
	DefaultMaxOutput = 10 * 1024 * 1024
)

var (
	ErrNotFound    = errors.New("volatility 3 not found")
	ErrOutputLimit = errors.New("plugin output exceeded capture limit")
)

// Invocation is one plugin run against one memory image.
type Invocation struct {
	Artifact string
	Plugin   string
	Args     []string
	Dir      string
}

type Output struct {
	Command  string
	Stdout   []byte
	Stderr   string
	Duration time.Duration
}

// Runner executes Volatility 3 plugins with JSON rendering.
type Runner struct {
	// Binary is the command prefix, e.g. ["vol"] or ["python3", "-m", "volatility3"].
	Binary    []string
	Timeout   time.Duration
	MaxOutput int64
	Log       logrus.FieldLogger
}

// CommandLine renders the invocation the way it is executed.
func (r *Runner) CommandLine(inv Invocation) string {
	return FormatCommand(r.Binary, inv)
}

// FormatCommand renders an invocation for logs and results. An empty binary
// is shown as "vol".
func FormatCommand(bin []string, inv Invocation) string {
	if len(bin) == 0 {
		bin = []string{"vol"}
	}
	return strings.Join(append(append([]string{}, bin...), pluginArgs(inv)...), " ")
}

func pluginArgs(inv Invocation) []string {
	args := []string{"-f", inv.Artifact, "-r", "json", inv.Plugin}
	return append(args, inv.Args...)
}

// Execute runs one plugin. The whole process group is killed when ctx is
// done, the timeout expires, or stdout grows past MaxOutput.
func (r *Runner) Execute(ctx context.Context, inv Invocation) (Output, error) {
	out := Output{Command: r.CommandLine(inv)}
	if len(r.Binary) == 0 {
		return out, ErrNotFound
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := r.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Binary[0], append(append([]string{}, r.Binary[1:]...), pluginArgs(inv)...)...)
	cmd.Dir = inv.Dir
	configureCommandProcess(cmd)
	cmd.Cancel = func() error {
		terminateCommandProcess(cmd)
		return nil
	}
	cmd.WaitDelay = 2 * time.Second

	stdout := &cappedBuffer{max: limit, onOverflow: func() { terminateCommandProcess(cmd) }}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &limitedWriter{w: &stderr, n: 64 * 1024}

	if r.Log != nil {
		r.Log.WithField("task", inv.Plugin).Debugf("Running: %s", out.Command)
	}
	start := time.Now()
	err := cmd.Run()
	out.Duration = time.Since(start)
	out.Stdout = stdout.Bytes()
	out.Stderr = strings.TrimSpace(stderr.String())

	switch {
	case stdout.Overflowed():
		return out, fmt.Errorf("%w (%d bytes)", ErrOutputLimit, limit)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return out, fmt.Errorf("command timeout after %s", timeout)
	case ctx.Err() != nil:
		return out, ctx.Err()
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s exited with code %d: %s", inv.Plugin, exitErr.ExitCode(), lastLine(out.Stderr))
		}
		return out, fmt.Errorf("failed to start %s: %w", r.Binary[0], err)
	}
	return out, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return "no error output"
	}
	return s
}

// cappedBuffer stores up to max bytes and reports overflow once.
type cappedBuffer struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	max        int64
	overflow   bool
	onOverflow func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.overflow {
		return len(p), nil
	}
	if int64(b.buf.Len()+len(p)) > b.max {
		b.overflow = true
		if b.onOverflow != nil {
			b.onOverflow()
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

func (b *cappedBuffer) Overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflow
}

type limitedWriter struct {
	w *bytes.Buffer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if room := l.n - l.w.Len(); room > 0 {
		if len(p) > room {
			l.w.Write(p[:room])
		} else {
			l.w.Write(p)
		}
	}
	return len(p), nil
}
