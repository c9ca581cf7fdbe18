package embedding

import (
	"context"
	"net/http"
	"time"
)

// Provider generates vector embeddings from text. Failures that stem from the
// backing service (connection refused, timeout, non-2xx) are reported as
// knowledge.ErrUnavailable so callers can degrade instead of retrying blindly.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider       string `json:"provider"` // "api" or "local"
	Endpoint       string `json:"endpoint"`
	Model          string `json:"model"`
	APIKey         string `json:"api_key"`
	Dimension      int    `json:"dimension"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// httpClient builds the shared client with the configured timeout.
// The timeout is the hard upper bound; callers may pass shorter contexts.
func httpClient(cfg Config) *http.Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
