package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ShivamLahoty/MemHawk/pkg/fsutil"
	"github.com/ShivamLahoty/MemHawk/pkg/logger"
	"github.com/ShivamLahoty/MemHawk/pkg/render"
	"github.com/ShivamLahoty/MemHawk/pkg/scan"
	"github.com/ShivamLahoty/MemHawk/pkg/signing"
)

// SignedStatus is printed in the metadata grid of signed documents.
const SignedStatus = "Digitally Signed"

// ReportFileName is the file name of a signed report.
func ReportFileName(reportID string) string {
	return fmt.Sprintf("MemHawk_Report_%s.pdf", reportID)
}

// SignedReport describes a report written to disk.
type SignedReport struct {
	Path      string `json:"path"`
	ReportID  string `json:"reportId"`
	Signature string `json:"signature"`
	Timestamp string `json:"timestamp"`
	Markdown  string `json:"-"`
}

// Pipeline runs report synthesis, rendering, signing and saving. Nothing is
// written unless every earlier stage succeeded.
type Pipeline struct {
	Synthesizer *Synthesizer
	Renderer    *render.Renderer
	Signer      *signing.Engine
	OutputDir   string
	Title       string
	Log         *logrus.Logger
	Now         func() time.Time
}

// Generate synthesizes a full report for sess and saves it as a signed PDF.
func (p *Pipeline) Generate(ctx context.Context, sess *scan.Session, meta render.ArtifactMeta) (*SignedReport, error) {
	if p.Synthesizer == nil {
		return nil, errors.New("no report synthesizer configured")
	}
	res := p.Synthesizer.FullReport(ctx, sess, meta)
	if !res.Success {
		return nil, fmt.Errorf("failed to generate report: %s", res.Error)
	}
	return p.FromMarkdown(res.Text, sess.ID, meta)
}

// FromMarkdown renders and signs an existing markdown report.
func (p *Pipeline) FromMarkdown(markdown, sessionID string, meta render.ArtifactMeta) (*SignedReport, error) {
	if p.Signer == nil {
		return nil, errors.New("no signing engine configured")
	}
	renderer := p.Renderer
	if renderer == nil {
		renderer = render.New()
	}
	now := p.now()
	id := p.Signer.NextReportID()
	draft := render.Draft(p.Title, markdown, sessionID)
	doc, err := renderer.Render(draft, meta, render.Header{ReportID: id, Generated: now, Status: SignedStatus})
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	signed, err := p.Signer.SignDocumentAs(doc, id, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign document: %w", err)
	}

	dir := p.OutputDir
	if dir == "" {
		dir = "."
	}
	path := fsutil.UniquePath(filepath.Join(dir, ReportFileName(id)))
	if err := fsutil.WriteFileAtomic(path, signed.Bytes, 0644); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", path, err)
	}

	p.logger().WithFields(logrus.Fields{
		"report": id,
		"path":   path,
	}).Info("signed report saved")

	return &SignedReport{
		Path:      path,
		ReportID:  id,
		Signature: signed.Signature,
		Timestamp: signed.Timestamp,
		Markdown:  markdown,
	}, nil
}

func (p *Pipeline) logger() *logrus.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logger.Discard()
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
