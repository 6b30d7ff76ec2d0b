package llm

import (
	"context"
	"fmt"
	"time"
)

// Settings select and configure a provider.
type Settings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// Providers lists the supported provider names.
var Providers = []string{"ollama", "gemini", "openai", "anthropic"}

func NewProvider(ctx context.Context, s Settings) (Provider, error) {
	switch s.Provider {
	case "", "ollama":
		return NewOllamaProvider(s.BaseURL, s.Model, s.Timeout), nil
	case "gemini":
		return NewGeminiProvider(ctx, s.APIKey, s.Model)
	case "openai":
		return NewOpenAIProvider(s.BaseURL, s.APIKey, s.Model, s.Timeout), nil
	case "anthropic":
		return NewAnthropicProvider(s.BaseURL, s.APIKey, s.Model, s.Timeout)
	default:
		return nil, fmt.Errorf("unknown provider: %s", s.Provider)
	}
}
