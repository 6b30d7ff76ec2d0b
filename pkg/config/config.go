package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type ProviderConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

type ScanConfig struct {
	VolCandidates  []string `yaml:"vol_candidates,omitempty"`
	Workers        int      `yaml:"workers"`
	StaggerMillis  int      `yaml:"stagger_ms"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	OutputCapBytes int64    `yaml:"output_cap_bytes"`
	OutputDir      string   `yaml:"output_dir,omitempty"`
	CatalogFile    string   `yaml:"catalog_file,omitempty"`
}

type SigningConfig struct {
	// KeyFile overrides the persisted HMAC key location.
	KeyFile string `yaml:"key_file,omitempty"`
	// Ephemeral uses a fresh key per process; its signatures cannot be
	// verified after the process exits.
	Ephemeral bool `yaml:"ephemeral,omitempty"`
}

type Config struct {
	SelectedProvider string                    `yaml:"selected_provider"`
	SelectedModel    string                    `yaml:"selected_model"`
	Providers        map[string]ProviderConfig `yaml:"providers"`
	NarrativeTimeout int                       `yaml:"narrative_timeout_seconds"`
	Scan             ScanConfig                `yaml:"scan"`
	Signing          SigningConfig             `yaml:"signing"`
	Profile          AnalystProfile            `yaml:"profile"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		SelectedProvider: "ollama",
		SelectedModel:    "llama3.2:1b",
		Providers:        make(map[string]ProviderConfig),
		NarrativeTimeout: 120,
		Scan: ScanConfig{
			Workers:        4,
			StaggerMillis:  100,
			TimeoutSeconds: 300,
			OutputCapBytes: 10 * 1024 * 1024,
		},
		Profile: AnalystProfile{Title: DefaultTitle},
	}
}

// GetConfigPath returns the config file location. MEMHAWK_CONFIG overrides
// the default ~/.memhawk/config.yaml.
func GetConfigPath() (string, error) {
	if p := os.Getenv("MEMHAWK_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".memhawk")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

func LoadConfig() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads a config file, returning defaults when it does not exist.
// Missing values are filled from Default.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.fill()
	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

func SaveTo(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	// 0600 permissions, the file holds api keys
	return os.WriteFile(path, data, 0600)
}

func (c *Config) fill() {
	d := Default()
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if c.SelectedProvider == "" {
		c.SelectedProvider = d.SelectedProvider
	}
	if c.NarrativeTimeout <= 0 {
		c.NarrativeTimeout = d.NarrativeTimeout
	}
	if c.Scan.Workers <= 0 {
		c.Scan.Workers = d.Scan.Workers
	}
	if c.Scan.StaggerMillis < 0 {
		c.Scan.StaggerMillis = d.Scan.StaggerMillis
	}
	if c.Scan.TimeoutSeconds <= 0 {
		c.Scan.TimeoutSeconds = d.Scan.TimeoutSeconds
	}
	if c.Scan.OutputCapBytes <= 0 {
		c.Scan.OutputCapBytes = d.Scan.OutputCapBytes
	}
	if c.Profile.Title == "" {
		c.Profile.Title = DefaultTitle
	}
}

func (c *Config) SetAPIKey(provider, key string) {
	p := c.Providers[provider]
	p.APIKey = key
	c.Providers[provider] = p
}

// GetAPIKey returns the stored key, falling back to the provider's
// environment variable.
func (c *Config) GetAPIKey(provider string) string {
	if k := c.Providers[provider].APIKey; k != "" {
		return k
	}
	switch provider {
	case "gemini":
		return os.Getenv("GOOGLE_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

func (c *Config) SetBaseURL(provider, url string) {
	p := c.Providers[provider]
	p.BaseURL = url
	c.Providers[provider] = p
}

func (c *Config) GetBaseURL(provider string) string {
	if u := c.Providers[provider].BaseURL; u != "" {
		return u
	}
	if provider == "ollama" {
		return os.Getenv("MEMHAWK_OLLAMA_URL")
	}
	return ""
}

func (c *Config) NarrativeTimeoutDuration() time.Duration {
	return time.Duration(c.NarrativeTimeout) * time.Second
}

func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.Scan.TimeoutSeconds) * time.Second
}

// ScanStagger returns the launch stagger; a configured 0 disables it.
func (c *Config) ScanStagger() time.Duration {
	if c.Scan.StaggerMillis == 0 {
		return -1
	}
	return time.Duration(c.Scan.StaggerMillis) * time.Millisecond
}

// SigningKeyPath is where the persisted signing key lives.
func (c *Config) SigningKeyPath() (string, error) {
	if c.Signing.KeyFile != "" {
		return c.Signing.KeyFile, nil
	}
	if p := os.Getenv("MEMHAWK_SIGNING_KEY"); p != "" {
		return p, nil
	}
	cfgPath, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(cfgPath), "signing.key"), nil
}
