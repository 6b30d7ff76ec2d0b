package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned when the narrative service cannot be reached.
var ErrUnavailable = errors.New("service unavailable")

// Options are the sampling parameters sent with every generation request.
type Options struct {
	Temperature float32
	TopP        float32
	TopK        int32
	NumCtx      int
}

// DefaultOptions favours repeatable output over creativity.
func DefaultOptions() Options {
	return Options{Temperature: 0.1, TopP: 0.9, TopK: 20, NumCtx: 4096}
}

// Provider is a text generation backend.
type Provider interface {
	Name() string
	Model() string
	// Ping checks that the service is reachable. Failures wrap ErrUnavailable.
	Ping(ctx context.Context) error
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	ListModels(ctx context.Context) ([]string, error)
	Close()
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func normalizeBaseURL(baseURL, def string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = def
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}
