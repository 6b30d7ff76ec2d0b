package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
	"github.com/ShivamLahoty/MemHawk/pkg/evidence"
	"github.com/ShivamLahoty/MemHawk/pkg/llm"
	"github.com/ShivamLahoty/MemHawk/pkg/logger"
	"github.com/ShivamLahoty/MemHawk/pkg/render"
	"github.com/ShivamLahoty/MemHawk/pkg/scan"
)

const (
	DefaultTimeout = 120 * time.Second
	EndOfReport    = "**End of Report**"
)

// Attribution supplies the analyst block appended to full reports.
// config.AnalystProfile implements it.
type Attribution interface {
	Attribution() string
}

// Result is the outcome of one narrative call. Text is empty on failure.
type Result struct {
	Success   bool      `json:"success"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Synthesizer turns scan sessions into narrative text. It only reads the
// sessions it is given.
type Synthesizer struct {
	Provider    llm.Provider
	Catalog     *catalog.Catalog
	Limits      evidence.Limits
	Options     llm.Options
	Timeout     time.Duration
	Attribution Attribution
	Log         *logrus.Logger
	Now         func() time.Time
}

func NewSynthesizer(p llm.Provider, cat *catalog.Catalog) *Synthesizer {
	return &Synthesizer{
		Provider: p,
		Catalog:  cat,
		Limits:   evidence.DefaultLimits(),
		Options:  llm.DefaultOptions(),
		Timeout:  DefaultTimeout,
	}
}

// FullReport asks the provider for a complete forensic report of sess. The
// text ends with the analyst attribution and an end marker.
func (s *Synthesizer) FullReport(ctx context.Context, sess *scan.Session, meta render.ArtifactMeta) Result {
	filename := meta.Filename
	if filename == "" {
		filename = "Unknown"
	}
	prompt, err := execute("full_report.tmpl", fullReportData{
		Filename: filename,
		Size:     render.FormatSize(meta.Size),
		Summary:  evidence.Summarize(sess, s.Catalog),
		Evidence: s.evidenceText(sess),
	})
	if err != nil {
		return s.failure(err.Error())
	}

	res := s.generate(ctx, "full report", prompt)
	if !res.Success {
		return res
	}
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(res.Text))
	sb.WriteString("\n\n---\n\n")
	if s.Attribution != nil {
		if a := strings.TrimSpace(s.Attribution.Attribution()); a != "" {
			sb.WriteString(a)
			sb.WriteString("\n\n")
		}
	}
	sb.WriteString(EndOfReport)
	res.Text = sb.String()
	return res
}

// QuickSummary asks for a three sentence summary of sess.
func (s *Synthesizer) QuickSummary(ctx context.Context, sess *scan.Session) Result {
	prompt, err := execute("quick_summary.tmpl", quickSummaryData{Evidence: s.evidenceText(sess)})
	if err != nil {
		return s.failure(err.Error())
	}
	res := s.generate(ctx, "quick summary", prompt)
	if res.Success {
		res.Text = strings.TrimSpace(res.Text)
	}
	return res
}

// TaskNarrative formats one task's output as markdown. An empty
// displayName is looked up in the catalog.
func (s *Synthesizer) TaskNarrative(ctx context.Context, taskID string, r scan.TaskResult, displayName string) Result {
	if displayName == "" {
		displayName = DisplayName(taskID)
		if s.Catalog != nil {
			if t, ok := s.Catalog.Get(taskID); ok && t.DisplayName != "" {
				displayName = t.DisplayName
			}
		}
	}
	if !r.Success {
		return s.failure(fmt.Sprintf("task %s has no output: %s", taskID, r.Error))
	}
	prompt, err := execute("task_format.tmpl", taskFormatData{
		DisplayName: displayName,
		Output:      outputJSON(r.Output),
		Guidance:    FormatGuidance(taskID),
		Demo:        !r.IsAuthoritative(),
	})
	if err != nil {
		return s.failure(err.Error())
	}
	return s.generate(ctx, "task "+taskID, prompt)
}

func (s *Synthesizer) evidenceText(sess *scan.Session) string {
	text := EvidenceText(evidence.FromSession(sess, s.Catalog, s.Limits), s.Limits.Chars)
	if lineage := evidence.LineageText(evidence.Lineage(sess, s.Catalog)); lineage != "" {
		text += "\n=== PROCESS LINEAGE OF FLAGGED PROCESSES ===\n" + lineage
	}
	return text
}

// generate checks liveness, then runs one bounded generation call.
func (s *Synthesizer) generate(ctx context.Context, what, prompt string) Result {
	if s.Provider == nil {
		return s.failure("service unavailable: no narrative provider configured")
	}
	log := s.logger().WithFields(logrus.Fields{
		"provider": s.Provider.Name(),
		"model":    s.Provider.Model(),
	})

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.Provider.Ping(ctx); err != nil {
		log.WithError(err).Warn("narrative service unavailable")
		return s.failure("service unavailable: " + err.Error())
	}

	log.Debugf("generating %s (%d prompt chars)", what, len(prompt))
	start := time.Now()
	opts := s.Options
	if opts == (llm.Options{}) {
		opts = llm.DefaultOptions()
	}
	text, err := s.Provider.Generate(ctx, prompt, opts)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("narrative generation timed out after %s", timeout)
		}
		log.WithError(err).Errorf("%s failed", what)
		return s.failure(err.Error())
	}
	if strings.TrimSpace(text) == "" {
		return s.failure(fmt.Sprintf("empty response from %s", s.Provider.Name()))
	}
	log.WithField("duration", time.Since(start).Round(time.Millisecond)).Infof("%s generated", what)
	return Result{Success: true, Text: text, Timestamp: s.now()}
}

func (s *Synthesizer) failure(msg string) Result {
	return Result{Error: msg, Timestamp: s.now()}
}

func (s *Synthesizer) logger() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logger.Discard()
}

func (s *Synthesizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
