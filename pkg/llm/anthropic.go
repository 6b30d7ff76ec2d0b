package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAnthropicURL   = "https://api.anthropic.com/v1"
	DefaultAnthropicModel = "claude-sonnet-4-5"
	anthropicVersion      = "2023-06-01"
)

// AnthropicProvider speaks the Anthropic Messages API.
type AnthropicProvider struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewAnthropicProvider(baseURL, apiKey, model string, timeout time.Duration) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is not set")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	base := normalizeBaseURL(baseURL, DefaultAnthropicURL)
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return &AnthropicProvider{baseURL: base, apiKey: apiKey, model: model, http: newHTTPClient(timeout)}, nil
}

func (p *AnthropicProvider) Name() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }
func (p *AnthropicProvider) Close()        {}

func (p *AnthropicProvider) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *AnthropicProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := p.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Anthropic API returned status: %s", resp.Status)
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(result.Data))
	for _, m := range result.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

func (p *AnthropicProvider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := p.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: %s unreachable (%v)", ErrUnavailable, p.baseURL, err)
	}
	return nil
}

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	TopK        int32         `json:"top_k,omitempty"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *anthropicError `json:"error"`
}

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	maxTokens := opts.NumCtx
	if maxTokens <= 0 {
		maxTokens = DefaultOptions().NumCtx
	}
	payload, err := json.Marshal(messagesRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		TopK:        opts.TopK,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := p.newRequest(ctx, http.MethodPost, "/messages", payload)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil {
			return "", fmt.Errorf("status %s: %s", resp.Status, out.Error.Message)
		}
		return "", fmt.Errorf("status %s", resp.Status)
	}

	var b strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text content in response")
	}
	return b.String(), nil
}
