package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ShivamLahoty/MemHawk/pkg/config"
	"github.com/ShivamLahoty/MemHawk/pkg/render"
	"github.com/ShivamLahoty/MemHawk/pkg/report"
	"github.com/ShivamLahoty/MemHawk/pkg/scan"
)

var reportCmd = &cobra.Command{
	Use:   "report <results.json>",
	Short: "Write a signed PDF report from saved scan results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, sess, err := loadSession(args[0])
		if err != nil {
			return err
		}
		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		meta := artifactMeta(cmd, sess)
		outDir := outputDir(cmd, args[0])
		ephemeral, _ := cmd.Flags().GetBool("ephemeral-key")

		rep, err := generateReport(cmd.Context(), cfg, cat, sess, meta, outDir, ephemeral)
		if err != nil {
			return err
		}
		printSignedReport(rep)
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <results.json>",
	Short: "Print a three sentence summary of saved scan results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, sess, err := loadSession(args[0])
		if err != nil {
			return err
		}
		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		return printQuickSummary(cmd.Context(), cfg, cat, sess)
	},
}

var formatTaskCmd = &cobra.Command{
	Use:   "format-task <results.json> <plugin>",
	Short: "Ask the model to format one plugin's output as a readable table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, sess, err := loadSession(args[0])
		if err != nil {
			return err
		}
		r, ok := sess.Results[args[1]]
		if !ok {
			return fmt.Errorf("no result for %s in %s", args[1], args[0])
		}
		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		synth, closeFn, err := newSynthesizer(cmd.Context(), cfg, cat)
		if err != nil {
			return err
		}
		defer closeFn()

		res := synth.TaskNarrative(cmd.Context(), args[1], r, "")
		if !res.Success {
			return fmt.Errorf("formatting failed: %s", res.Error)
		}
		fmt.Println(res.Text)
		return nil
	},
}

var renderCmd = &cobra.Command{
	Use:   "render <report.md>",
	Short: "Render and sign an existing markdown report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		md, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		ephemeral, _ := cmd.Flags().GetBool("ephemeral-key")
		signer, err := newSigner(cfg, ephemeral)
		if err != nil {
			return err
		}
		title, _ := cmd.Flags().GetString("title")
		pipe := &report.Pipeline{
			Renderer:  render.New(),
			Signer:    signer,
			OutputDir: outputDir(cmd, args[0]),
			Title:     title,
			Log:       logrus.StandardLogger(),
		}
		rep, err := pipe.FromMarkdown(string(md), "", artifactMeta(cmd, nil))
		if err != nil {
			return err
		}
		printSignedReport(rep)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <report.pdf>",
	Short: "Check the signature of a MemHawk report",
	Long: `Recomputes the HMAC over the report content and compares it with the
embedded signature. Exits with status 1 when the report is unsigned or has
been modified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		signer, err := newSigner(cfg, false)
		if err != nil {
			return err
		}
		v := signer.Verify(data)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			out, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(out))
		} else {
			switch {
			case !v.IsSigned:
				fmt.Println(errStyle.Render("Not signed"))
			case v.SignatureValid:
				fmt.Println(okStyle.Render("Signature valid"))
			default:
				fmt.Println(errStyle.Render("Signature INVALID"))
			}
			if v.ReportID != "" {
				fmt.Println(labelStyle.Render("Report ID") + v.ReportID)
				fmt.Println(labelStyle.Render("Timestamp") + v.Timestamp)
				fmt.Println(labelStyle.Render("Algorithm") + v.Algorithm)
			}
			if v.Error != "" {
				fmt.Println(dimStyle.Render(v.Error))
			}
		}
		if !v.IsSigned || !v.SignatureValid {
			os.Exit(1)
		}
		return nil
	},
}

func loadSession(path string) (*config.Config, *scan.Session, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}
	sess, err := scan.LoadResults(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, sess, nil
}

// artifactMeta describes the scanned image from flags, falling back to the
// file the session was recorded against when it still exists.
func artifactMeta(cmd *cobra.Command, sess *scan.Session) render.ArtifactMeta {
	var meta render.ArtifactMeta
	if sess != nil && sess.ArtifactPath != "" {
		meta.Filename = filepath.Base(sess.ArtifactPath)
		if info, err := os.Stat(sess.ArtifactPath); err == nil {
			meta.Size = info.Size()
			meta.Created = info.ModTime()
		}
	}
	if name, _ := cmd.Flags().GetString("image-name"); name != "" {
		meta.Filename = name
	}
	if size, _ := cmd.Flags().GetInt64("image-size"); size > 0 {
		meta.Size = size
	}
	return meta
}

func outputDir(cmd *cobra.Command, input string) string {
	if dir, _ := cmd.Flags().GetString("output"); dir != "" {
		return dir
	}
	return filepath.Dir(input)
}

func init() {
	for _, c := range []*cobra.Command{reportCmd, renderCmd} {
		c.Flags().StringP("output", "o", "", "Directory for the PDF (default: next to the input)")
		c.Flags().String("image-name", "", "Memory image name shown in the report header")
		c.Flags().Int64("image-size", 0, "Memory image size in bytes")
		c.Flags().Bool("ephemeral-key", false, "Sign with a one-off key instead of the persisted one")
	}
	renderCmd.Flags().String("title", "", "Report title (default: the first heading)")
	verifyCmd.Flags().Bool("json", false, "Print the verification result as JSON")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(formatTaskCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(verifyCmd)
}
