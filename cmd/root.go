package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
	"github.com/ShivamLahoty/MemHawk/pkg/config"
	"github.com/ShivamLahoty/MemHawk/pkg/llm"
	"github.com/ShivamLahoty/MemHawk/pkg/logger"
	"github.com/ShivamLahoty/MemHawk/pkg/signing"
)

var rootCmd = &cobra.Command{
	Use:   "memhawk",
	Short: "Memory forensics with Volatility 3 and AI-written signed reports",
	Long: `MemHawk runs Volatility 3 plugins against a memory image, asks a language
model to write a forensic report from the results, and saves the report as
a PDF whose integrity can be verified later.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			os.Setenv("MEMHAWK_CONFIG", configPath)
		}
		logger.Setup(DebugMode, logFile)
	},
}

var (
	DebugMode  bool
	logFile    string
	configPath string
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	labelStyle = lipgloss.NewStyle().Bold(true).Width(18)
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&DebugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.memhawk/config.yaml)")
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Scan.CatalogFile != "" {
		return catalog.LoadWithOverride(cfg.Scan.CatalogFile)
	}
	return catalog.Load()
}

func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	name := cfg.SelectedProvider
	return llm.NewProvider(ctx, llm.Settings{
		Provider: name,
		Model:    cfg.SelectedModel,
		APIKey:   cfg.GetAPIKey(name),
		BaseURL:  cfg.GetBaseURL(name),
		Timeout:  cfg.NarrativeTimeoutDuration(),
	})
}

// newSigner returns an engine keyed from the persisted key file, or from a
// fresh random key when ephemeral.
func newSigner(cfg *config.Config, ephemeral bool) (*signing.Engine, error) {
	if ephemeral || cfg.Signing.Ephemeral {
		key, err := signing.NewKey()
		if err != nil {
			return nil, err
		}
		logrus.Warn("Using an ephemeral signing key; reports signed now cannot be verified after this process exits")
		return signing.NewEngine(key)
	}
	path, err := cfg.SigningKeyPath()
	if err != nil {
		return nil, err
	}
	key, created, err := signing.LoadOrCreateKey(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	if created {
		logrus.WithField("path", path).Info("Created new signing key")
	}
	logger.Debugf("signing key %s (fingerprint %s)", path, key.Fingerprint())
	return signing.NewEngine(key)
}
