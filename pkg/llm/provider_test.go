package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaGenerate(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]any{"models": []map[string]any{{"name": "llama3.2:1b"}, {"name": "mistral"}}})
		case "/api/generate":
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("decode request: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]any{"response": "## Executive Summary\nok", "done": true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "", 5*time.Second)
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	models, err := p.ListModels(context.Background())
	if err != nil || len(models) != 2 || models[0] != "llama3.2:1b" {
		t.Errorf("unexpected models %v (%v)", models, err)
	}

	text, err := p.Generate(context.Background(), "analyze", DefaultOptions())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "## Executive Summary\nok" {
		t.Errorf("unexpected text: %q", text)
	}
	if got.Model != DefaultOllamaModel || got.Stream || got.Prompt != "analyze" {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Options.Temperature != 0.1 || got.Options.TopP != 0.9 || got.Options.TopK != 20 || got.Options.NumCtx != 4096 {
		t.Errorf("unexpected options: %+v", got.Options)
	}
}

func TestOllamaPingUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewOllamaProvider(url, "", time.Second)
	err := p.Ping(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestOllamaGenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "model 'x' not found"})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "x", time.Second)
	if _, err := p.Generate(context.Background(), "p", DefaultOptions()); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestOpenAIProvider(t *testing.T) {
	var auth string
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/v1/models":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"id": "local-model"}}})
		case "/v1/chat/completions":
			json.NewDecoder(r.Body).Decode(&got)
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "summary"}}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "local-model", 5*time.Second)
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("missing bearer token, got %q", auth)
	}
	text, err := p.Generate(context.Background(), "hello", DefaultOptions())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "summary" {
		t.Errorf("unexpected text %q", text)
	}
	if got.Model != "local-model" || len(got.Messages) != 1 || got.Temperature != 0.1 {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestGenerateHonoursContextTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := NewOllamaProvider(srv.URL, "", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := p.Generate(ctx, "slow", DefaultOptions()); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("generate did not respect context deadline")
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(context.Background(), Settings{})
	if err != nil || p.Name() != "ollama" {
		t.Errorf("expected default ollama provider, got %v (%v)", p, err)
	}
	if _, err := NewProvider(context.Background(), Settings{Provider: "gemini"}); err == nil {
		t.Error("expected gemini without key to fail")
	}
	if _, err := NewProvider(context.Background(), Settings{Provider: "anthropic"}); err == nil {
		t.Error("expected anthropic without key to fail")
	}
	if _, err := NewProvider(context.Background(), Settings{Provider: "bard"}); err == nil {
		t.Error("expected unknown provider error")
	}
	o, _ := NewProvider(context.Background(), Settings{Provider: "openai", BaseURL: "localhost:1234"})
	if o.(*OpenAIProvider).baseURL != "http://localhost:1234/v1" {
		t.Errorf("unexpected base url: %s", o.(*OpenAIProvider).baseURL)
	}
}

func TestAnthropicProvider(t *testing.T) {
	var key, version string
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("x-api-key")
		version = r.Header.Get("anthropic-version")
		switch r.URL.Path {
		case "/v1/models":
			json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"id": "claude-haiku-4-5"}}})
		case "/v1/messages":
			json.NewDecoder(r.Body).Decode(&got)
			json.NewEncoder(w).Encode(map[string]any{
				"content": []map[string]any{
					{"type": "text", "text": "## Executive "},
					{"type": "text", "text": "Summary"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(srv.URL, "sk-ant", "", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if key != "sk-ant" || version != anthropicVersion {
		t.Errorf("unexpected headers key=%q version=%q", key, version)
	}
	text, err := p.Generate(context.Background(), "hello", DefaultOptions())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "## Executive Summary" {
		t.Errorf("unexpected text %q", text)
	}
	if got.Model != DefaultAnthropicModel || got.MaxTokens != 4096 || got.TopK != 20 {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestAnthropicGenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"type": "error", "error": map[string]any{"type": "invalid_request_error", "message": "bad model"}})
	}))
	defer srv.Close()

	p, _ := NewAnthropicProvider(srv.URL, "k", "nope", time.Second)
	_, err := p.Generate(context.Background(), "p", DefaultOptions())
	if err == nil || !strings.Contains(err.Error(), "bad model") {
		t.Fatalf("unexpected error %v", err)
	}
}
