package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShivamLahoty/MemHawk/pkg/config"
	"github.com/ShivamLahoty/MemHawk/pkg/signing"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration (providers, models, keys)",
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Manually set API key for a provider",
	Run: func(cmd *cobra.Command, args []string) {
		provider, _ := cmd.Flags().GetString("provider")
		key, _ := cmd.Flags().GetString("key")

		if provider == "" || key == "" {
			fmt.Println("Error: --provider and --key are required")
			return
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			return
		}

		cfg.SetAPIKey(strings.ToLower(provider), key)
		if err := config.SaveConfig(cfg); err != nil {
			fmt.Printf("Error saving config: %v\n", err)
			return
		}
		fmt.Printf("API key saved for provider: %s\n", provider)
	},
}

var setURLCmd = &cobra.Command{
	Use:   "set-url",
	Short: "Set the base URL of an HTTP provider (ollama, openai)",
	Run: func(cmd *cobra.Command, args []string) {
		provider, _ := cmd.Flags().GetString("provider")
		url, _ := cmd.Flags().GetString("url")

		if provider == "" || url == "" {
			fmt.Println("Error: --provider and --url are required")
			return
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			return
		}

		cfg.SetBaseURL(strings.ToLower(provider), url)
		if err := config.SaveConfig(cfg); err != nil {
			fmt.Printf("Error saving config: %v\n", err)
			return
		}
		fmt.Printf("Base URL saved for provider: %s\n", provider)
	},
}

var setModelCmd = &cobra.Command{
	Use:   "set-model",
	Short: "Manually set the active provider and model",
	Run: func(cmd *cobra.Command, args []string) {
		provider, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			return
		}

		if provider != "" {
			cfg.SelectedProvider = strings.ToLower(provider)
		}
		if model != "" {
			cfg.SelectedModel = model
		}

		if err := config.SaveConfig(cfg); err != nil {
			fmt.Printf("Error saving config: %v\n", err)
			return
		}
		fmt.Printf("Active configuration updated: Provider=%s, Model=%s\n", cfg.SelectedProvider, cfg.SelectedModel)
	},
}

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List available models from the configured provider",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Println("Error loading config:", err)
			return
		}

		provider := cfg.SelectedProvider
		if provider == "" {
			fmt.Println("No provider selected. Please run 'memhawk config setup'.")
			return
		}
		if (provider == "gemini" || provider == "anthropic") && cfg.GetAPIKey(provider) == "" {
			fmt.Printf("No API key found for %s.\n", provider)
			return
		}

		fmt.Printf("Fetching models for %s...\n", provider)
		ctx := context.Background()
		p, err := newProvider(ctx, cfg)
		if err != nil {
			fmt.Println("Error initializing provider:", err)
			return
		}
		defer p.Close()

		models, err := p.ListModels(ctx)
		if err != nil {
			fmt.Println("Error fetching models:", err)
			return
		}

		fmt.Printf("\nAvailable Models (%s):\n", provider)
		for _, m := range models {
			mark := " "
			if m == cfg.SelectedModel {
				mark = "*"
			}
			fmt.Printf("%s %s\n", mark, m)
		}
	},
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Println("Error loading config:", err)
			return
		}
		path, _ := config.GetConfigPath()
		keyPath, _ := cfg.SigningKeyPath()

		fmt.Println(titleStyle.Render("MemHawk configuration"))
		row := func(label, value string) {
			fmt.Println(labelStyle.Render(label) + value)
		}
		row("Config file", path)
		row("Provider", cfg.SelectedProvider)
		row("Model", cfg.SelectedModel)
		if u := cfg.GetBaseURL(cfg.SelectedProvider); u != "" {
			row("Base URL", u)
		}
		row("API key", maskKey(cfg.GetAPIKey(cfg.SelectedProvider)))
		row("Narrative timeout", cfg.NarrativeTimeoutDuration().String())
		row("Workers", fmt.Sprint(cfg.Scan.Workers))
		row("Plugin timeout", cfg.ScanTimeout().String())
		if cfg.Signing.Ephemeral {
			row("Signing key", "ephemeral")
		} else {
			row("Signing key", keyPath)
		}
	},
}

var rotateKeyCmd = &cobra.Command{
	Use:   "rotate-key",
	Short: "Replace the persisted signing key",
	Long: `Generates a new HMAC signing key. Reports signed with the previous key
will no longer verify.`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			fmt.Println("Rotating the key invalidates every report signed so far. Re-run with --yes to confirm.")
			return
		}
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Println("Error loading config:", err)
			return
		}
		path, err := cfg.SigningKeyPath()
		if err != nil {
			fmt.Println("Error locating signing key:", err)
			return
		}
		key, err := signing.RotateKey(path)
		if err != nil {
			fmt.Println("Error rotating key:", err)
			return
		}
		fmt.Printf("New signing key written to %s (fingerprint %s)\n", path, key.Fingerprint())
	},
}

func maskKey(k string) string {
	switch {
	case k == "":
		return "(not set)"
	case len(k) <= 8:
		return "********"
	}
	return k[:4] + strings.Repeat("*", 8) + k[len(k)-4:]
}

func init() {
	setKeyCmd.Flags().StringP("provider", "p", "", "Provider (gemini, openai, anthropic)")
	setKeyCmd.Flags().StringP("key", "k", "", "API Key")

	setURLCmd.Flags().StringP("provider", "p", "", "Provider (ollama, openai)")
	setURLCmd.Flags().StringP("url", "u", "", "Base URL, e.g. http://localhost:11434")

	setModelCmd.Flags().StringP("provider", "p", "", "Provider (ollama, gemini, openai, anthropic)")
	setModelCmd.Flags().StringP("model", "m", "", "Model name")

	rotateKeyCmd.Flags().Bool("yes", false, "Confirm key rotation")

	configCmd.AddCommand(setKeyCmd)
	configCmd.AddCommand(setURLCmd)
	configCmd.AddCommand(setModelCmd)
	configCmd.AddCommand(listModelsCmd)
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(rotateKeyCmd)
	rootCmd.AddCommand(configCmd)
}
