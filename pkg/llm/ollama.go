package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2:1b"
)

// OllamaProvider talks to a local Ollama server.
type OllamaProvider struct {
	baseURL string
	model   string
	http    *http.Client
}

func NewOllamaProvider(baseURL, model string, timeout time.Duration) *OllamaProvider {
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: normalizeBaseURL(baseURL, DefaultOllamaURL),
		model:   model,
		http:    newHTTPClient(timeout),
	}
}

func (p *OllamaProvider) Name() string  { return "ollama" }
func (p *OllamaProvider) Model() string { return p.model }
func (p *OllamaProvider) Close()        {}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (p *OllamaProvider) tags(ctx context.Context) (ollamaTags, error) {
	var tags ollamaTags
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return tags, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return tags, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return tags, fmt.Errorf("ollama returned status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return tags, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

func (p *OllamaProvider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.tags(ctx); err != nil {
		return fmt.Errorf("%w: Ollama is not running at %s, please start the Ollama service (%v)", ErrUnavailable, p.baseURL, err)
	}
	return nil
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	tags, err := p.tags(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
	TopK        int32   `json:"top_k"`
	NumCtx      int     `json:"num_ctx"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (p *OllamaProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	payload, err := json.Marshal(ollamaGenerateRequest{
		Model:  p.model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			TopK:        opts.TopK,
			NumCtx:      opts.NumCtx,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var out ollamaGenerateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return "", fmt.Errorf("ollama returned status %s: %s", resp.Status, out.Error)
		}
		return "", fmt.Errorf("ollama returned status: %s", resp.Status)
	}
	return out.Response, nil
}
