package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShivamLahoty/MemHawk/pkg/config"
	"github.com/ShivamLahoty/MemHawk/pkg/llm"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Run: func(cmd *cobra.Command, args []string) {
		scanner := bufio.NewScanner(os.Stdin)
		ask := func(prompt string) string {
			fmt.Print(prompt)
			scanner.Scan()
			return strings.TrimSpace(scanner.Text())
		}
		fmt.Println(titleStyle.Render("Welcome to MemHawk Setup Wizard"))
		fmt.Println("-------------------------------")

		// 1. Select Provider
		fmt.Println("Step 1: Choose the report provider")
		fmt.Println("1. Ollama (local)")
		fmt.Println("2. Gemini (Google)")
		fmt.Println("3. OpenAI-compatible server")
		fmt.Println("4. Anthropic")
		choice := strings.ToLower(ask("Enter number or name > "))

		var provider string
		switch choice {
		case "1", "ollama", "":
			provider = "ollama"
		case "2", "gemini":
			provider = "gemini"
		case "3", "openai":
			provider = "openai"
		case "4", "anthropic":
			provider = "anthropic"
		default:
			fmt.Println("Invalid choice. Aborting.")
			return
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			return
		}

		// 2. Endpoint and credentials
		var apiKey, baseURL string
		switch provider {
		case "ollama":
			baseURL = ask(fmt.Sprintf("\nStep 2: Ollama URL [%s] > ", llm.DefaultOllamaURL))
		case "openai":
			baseURL = ask("\nStep 2: Server URL (e.g. http://localhost:1234) > ")
			apiKey = ask("API Key (leave empty for local servers) > ")
		case "gemini", "anthropic":
			apiKey = ask(fmt.Sprintf("\nStep 2: Enter API Key for %s\n> ", provider))
			if apiKey == "" {
				fmt.Println("API Key cannot be empty.")
				return
			}
		}
		if apiKey != "" {
			cfg.SetAPIKey(provider, apiKey)
		}
		if baseURL != "" {
			cfg.SetBaseURL(provider, baseURL)
		}
		cfg.SelectedProvider = provider

		// 3. Fetch Models
		fmt.Println("\nStep 3: Checking the service and fetching available models...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cfg.SelectedModel = ""
		p, err := newProvider(ctx, cfg)
		if err != nil {
			fmt.Printf("Error initializing provider: %v\n", err)
			return
		}
		defer p.Close()

		models, err := p.ListModels(ctx)
		var selectedModel string

		if err != nil || len(models) == 0 {
			if err != nil {
				fmt.Println(warnStyle.Render(fmt.Sprintf("Warning: Could not fetch models: %v", err)))
			}
			selectedModel = ask("Please enter model name manually (e.g. 'llama3.2:1b', 'gemini-1.5-flash'):\n> ")
		} else {
			fmt.Printf("Successfully retrieved %d models.\n", len(models))
			for i, m := range models {
				fmt.Printf("%d. %s\n", i+1, m)
			}
			selIdx, err := strconv.Atoi(ask("Select Model (number) > "))
			if err != nil || selIdx < 1 || selIdx > len(models) {
				fmt.Println("Invalid selection. Using first available model.")
				selectedModel = models[0]
			} else {
				selectedModel = models[selIdx-1]
			}
		}
		if selectedModel == "" {
			selectedModel = p.Model()
		}

		// 4. Save Configuration
		fmt.Println("\nStep 4: Saving Configuration...")
		cfg.SelectedModel = selectedModel
		if err := config.SaveConfig(cfg); err != nil {
			fmt.Printf("Error saving config: %v\n", err)
			return
		}

		fmt.Println("-------------------------------")
		fmt.Println(okStyle.Render("Setup Complete!"))
		fmt.Printf("Provider: %s\n", provider)
		fmt.Printf("Model:    %s\n", selectedModel)
		fmt.Println("You can now run 'memhawk scan <memory image>'")
	},
}

func init() {
	configCmd.AddCommand(setupCmd)
}
