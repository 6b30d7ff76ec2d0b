package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var DebugEnabled bool

// Setup configures the global logrus logger for CLI use. When filePath is set,
// entries are also appended to that file as JSON.
func Setup(debug bool, filePath string) {
	DebugEnabled = debug
	level := logrus.InfoLevel
	if debug {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	logrus.SetOutput(os.Stderr)

	if filePath == "" {
		return
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logrus.WithError(err).Error("Could not create file for logging")
		return
	}
	logrus.AddHook(&fileHook{w: file, formatter: &logrus.JSONFormatter{}})
}

// Debugf prints messages only if debug logging is enabled
func Debugf(format string, args ...interface{}) {
	logrus.Debugf(format, args...)
}

// Infof prints messages always
func Infof(format string, args ...interface{}) {
	logrus.Infof(format, args...)
}

// Discard returns a logger that drops everything. Used as the default for
// library components constructed without a logger.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fileHook struct {
	w         io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(e *logrus.Entry) error {
	line, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.w.Write(line)
	return err
}
