package logger

import (
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMemoryHookFiltersBySession(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	hook := NewMemoryHook("session", "s-1", 0)
	l.AddHook(hook)

	l.WithFields(logrus.Fields{"session": "s-1", "task": "windows.pslist"}).Info("Task completed")
	l.WithField("session", "s-2").Info("other session")
	l.Info("no session")

	lines := hook.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 captured line, got %d", len(lines))
	}
	if lines[0].TaskID != "windows.pslist" {
		t.Errorf("expected task id to be captured, got %q", lines[0].TaskID)
	}
	if lines[0].Level != "info" {
		t.Errorf("expected info level, got %q", lines[0].Level)
	}
}

func TestMemoryHookLimit(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	hook := NewMemoryHook("session", "s", 2)
	l.AddHook(hook)

	for _, msg := range []string{"one", "two", "three"} {
		l.WithFields(logrus.Fields{"session": "s", "n": msg}).Warn(msg)
	}

	lines := hook.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0].Message, "two") {
		t.Errorf("expected oldest entry dropped, got %q", lines[0].Message)
	}
	if !strings.Contains(lines[1].Message, "n=three") {
		t.Errorf("expected extra fields in message, got %q", lines[1].Message)
	}
}
