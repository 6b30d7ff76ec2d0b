package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
	"github.com/ShivamLahoty/MemHawk/pkg/config"
	"github.com/ShivamLahoty/MemHawk/pkg/evidence"
	"github.com/ShivamLahoty/MemHawk/pkg/render"
	"github.com/ShivamLahoty/MemHawk/pkg/report"
	"github.com/ShivamLahoty/MemHawk/pkg/scan"
	"github.com/ShivamLahoty/MemHawk/pkg/volatility"
)

var scanCmd = &cobra.Command{
	Use:   "scan <memory image>",
	Short: "Run Volatility 3 plugins against a memory image",
	Long: `Runs the selected plugins in parallel and saves their results as JSON.
Without --plugins or --all, the quick scan set is used. Plugins that fail
or time out are replaced by clearly flagged demo data unless --no-fallback
is given. Ctrl-C cancels the scan and keeps the results collected so far.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	image := args[0]
	info, err := os.Stat(image)
	if err != nil {
		return fmt.Errorf("cannot read memory image: %w", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	ids, err := selectTasks(cmd, cat)
	if err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("output")
	if outDir == "" {
		outDir = cfg.Scan.OutputDir
	}
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &volatility.Runner{
		Timeout:   cfg.ScanTimeout(),
		MaxOutput: cfg.Scan.OutputCapBytes,
		Log:       logrus.StandardLogger(),
	}
	inst, err := volatility.Locate(ctx, cfg.Scan.VolCandidates)
	if err != nil {
		fmt.Println(warnStyle.Render("Volatility 3 not found; running in demo mode. Every plugin will use fallback data."))
	} else {
		runner.Binary = inst.Binary
		fmt.Println(dimStyle.Render(fmt.Sprintf("Using %s (%s)", strings.Join(inst.Binary, " "), inst.Version)))
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.Scan.Workers
	}
	noFallback, _ := cmd.Flags().GetBool("no-fallback")
	orch := &scan.Orchestrator{
		Executor:   runner,
		Catalog:    cat,
		Workers:    workers,
		Stagger:    cfg.ScanStagger(),
		Timeout:    cfg.ScanTimeout(),
		NoFallback: noFallback,
		Log:        logrus.StandardLogger(),
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Scanning %s with %d plugins", filepath.Base(image), len(ids))))
	view := newProgressView(os.Stdout)
	sess, err := orch.Scan(ctx, scan.ScanRequest{ArtifactPath: image, TaskIDs: ids, OutputDir: outDir}, view.update)
	if err != nil {
		return err
	}
	view.finish()

	printSession(os.Stdout, sess, cat)

	path, err := scan.SaveResults(outDir, sess)
	if err != nil {
		return err
	}
	fmt.Println(okStyle.Render("Results saved to " + path))

	meta := render.ArtifactMeta{Filename: filepath.Base(image), Size: info.Size(), Created: info.ModTime()}
	// A cancelled scan keeps its partial results on disk; the narrative
	// steps below would run with a cancelled context anyway.
	if sess.Cancelled {
		return nil
	}

	if summary, _ := cmd.Flags().GetBool("summary"); summary {
		if err := printQuickSummary(ctx, cfg, cat, sess); err != nil {
			return err
		}
	}
	if withReport, _ := cmd.Flags().GetBool("report"); withReport {
		ephemeral, _ := cmd.Flags().GetBool("ephemeral-key")
		rep, err := generateReport(ctx, cfg, cat, sess, meta, outDir, ephemeral)
		if err != nil {
			return err
		}
		printSignedReport(rep)
	}
	return nil
}

// selectTasks resolves --plugins, --all and --category into task ids.
func selectTasks(cmd *cobra.Command, cat *catalog.Catalog) ([]string, error) {
	plugins, _ := cmd.Flags().GetStringSlice("plugins")
	all, _ := cmd.Flags().GetBool("all")
	category, _ := cmd.Flags().GetString("category")

	if len(plugins) > 0 {
		seen := make(map[string]bool)
		var ids []string
		for _, p := range plugins {
			p = strings.TrimSpace(p)
			if p == "" || seen[p] {
				continue
			}
			if _, ok := cat.Get(p); !ok {
				logrus.WithField("plugin", p).Warn("Plugin is not in the catalog; running it anyway")
			}
			seen[p] = true
			ids = append(ids, p)
		}
		return ids, nil
	}
	if !all && category == "" {
		return catalog.QuickScan(), nil
	}
	c := catalog.Category(category)
	if category != "" && !c.Valid() {
		return nil, fmt.Errorf("unknown category %q", category)
	}
	var ids []string
	for _, t := range cat.Filter("", c) {
		if !t.Skip {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return nil, scan.ErrNoTasks
	}
	return ids, nil
}

type progressView struct {
	out io.Writer
	bar progress.Model
}

func newProgressView(out io.Writer) *progressView {
	return &progressView{
		out: out,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (v *progressView) update(ev scan.ProgressEvent) {
	pct := 0.0
	if ev.Total > 0 {
		pct = float64(ev.Completed) / float64(ev.Total)
	}
	fmt.Fprintf(v.out, "\r%s %d/%d %s\x1b[K", v.bar.ViewAs(pct), ev.Completed, ev.Total, dimStyle.Render(ev.CurrentTaskID))
}

func (v *progressView) finish() {
	fmt.Fprintln(v.out)
}

func printSession(w io.Writer, sess *scan.Session, cat *catalog.Catalog) {
	for _, r := range sess.Ordered() {
		var status string
		switch r.Status {
		case scan.StatusSuccess:
			status = okStyle.Render("ok      ")
		case scan.StatusFallback:
			status = warnStyle.Render("demo    ")
		default:
			status = errStyle.Render("failed  ")
		}
		line := fmt.Sprintf("%s %s", status, r.TaskID)
		if r.Error != "" {
			line += dimStyle.Render("  " + r.Error)
		}
		fmt.Fprintln(w, line)
	}
	if lineage := evidence.LineageText(evidence.Lineage(sess, cat)); lineage != "" {
		fmt.Fprintln(w, titleStyle.Render("\nFlagged processes"))
		fmt.Fprint(w, lineage)
	}
	sum := evidence.Summarize(sess, cat)
	fmt.Fprintf(w, "\n%d tasks: %d ok, %d demo, %d failed\n", sum.Total, sum.Successful, sum.Fallback, sum.Failed)
	if sess.Cancelled {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Scan cancelled after %d of %d tasks", sess.Completed, sess.Total)))
	}
}

func printQuickSummary(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, sess *scan.Session) error {
	synth, closeFn, err := newSynthesizer(ctx, cfg, cat)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Println(dimStyle.Render("Asking " + cfg.SelectedProvider + " for a summary..."))
	res := synth.QuickSummary(ctx, sess)
	if !res.Success {
		return fmt.Errorf("summary failed: %s", res.Error)
	}
	fmt.Println(titleStyle.Render("Summary"))
	fmt.Println(res.Text)
	return nil
}

func newSynthesizer(ctx context.Context, cfg *config.Config, cat *catalog.Catalog) (*report.Synthesizer, func(), error) {
	p, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating report provider: %w", err)
	}
	s := report.NewSynthesizer(p, cat)
	s.Timeout = cfg.NarrativeTimeoutDuration()
	s.Attribution = cfg.Profile
	s.Log = logrus.StandardLogger()
	return s, p.Close, nil
}

func generateReport(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, sess *scan.Session, meta render.ArtifactMeta, outDir string, ephemeral bool) (*report.SignedReport, error) {
	signer, err := newSigner(cfg, ephemeral)
	if err != nil {
		return nil, err
	}
	synth, closeFn, err := newSynthesizer(ctx, cfg, cat)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	pipe := &report.Pipeline{
		Synthesizer: synth,
		Renderer:    render.New(),
		Signer:      signer,
		OutputDir:   outDir,
		Log:         logrus.StandardLogger(),
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("Generating report with %s (%s)...", cfg.SelectedProvider, cfg.SelectedModel)))
	return pipe.Generate(ctx, sess, meta)
}

func printSignedReport(rep *report.SignedReport) {
	fmt.Println(okStyle.Render("Signed report saved to " + rep.Path))
	fmt.Println(labelStyle.Render("Report ID") + rep.ReportID)
	fmt.Println(labelStyle.Render("Timestamp") + rep.Timestamp)
	fmt.Println(labelStyle.Render("Signature") + rep.Signature)
}

func init() {
	scanCmd.Flags().StringSliceP("plugins", "p", nil, "Plugins to run (comma separated)")
	scanCmd.Flags().Bool("all", false, "Run every catalog plugin that needs no extra parameters")
	scanCmd.Flags().StringP("category", "c", "", "Run all plugins of one category (process, file, network, registry, malware, other)")
	scanCmd.Flags().StringP("output", "o", "", "Directory for results and reports")
	scanCmd.Flags().IntP("workers", "w", 0, "Parallel plugin runs (default from config)")
	scanCmd.Flags().Bool("no-fallback", false, "Record failed plugins as failures instead of using demo data")
	scanCmd.Flags().Bool("summary", false, "Print a three sentence AI summary after the scan")
	scanCmd.Flags().Bool("report", false, "Generate a signed PDF report after the scan")
	scanCmd.Flags().Bool("ephemeral-key", false, "Sign with a one-off key instead of the persisted one")
	rootCmd.AddCommand(scanCmd)
}
