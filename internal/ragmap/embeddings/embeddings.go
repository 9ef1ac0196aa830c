// Package embeddings generates dense vectors for catalog text blobs through
// an external provider. Embeddings are optional: a nil provider disables
// them, and every failure is non-fatal to the caller.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ragmap-dev/ragmap/internal/ragmap/config"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

// Payload is the text handed to a provider.
type Payload struct {
	Text string
}

// Result is a provider response.
type Result struct {
	Provider    string
	Model       string
	Dimensions  int
	Vector      []float32
	GeneratedAt time.Time
}

// Provider generates an embedding vector for a payload.
type Provider interface {
	Generate(ctx context.Context, payload Payload) (*Result, error)
}

// Factory builds the configured provider. It returns a nil provider when
// embeddings are disabled; callers must treat nil as "no semantic signal".
func Factory(cfg *config.EmbeddingsConfig, httpClient *http.Client) (Provider, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %q", cfg.Provider)
	}
}

// GenerateEmbedding runs the provider against a text blob and validates the
// result. When expectedDimensions > 0 the provider output must match it.
func GenerateEmbedding(ctx context.Context, provider Provider, text string, expectedDimensions int) (*types.Embedding, error) {
	if provider == nil {
		return nil, errors.New("embedding provider is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("embedding text is empty")
	}

	result, err := provider.Generate(ctx, Payload{Text: text})
	if err != nil {
		return nil, err
	}
	if len(result.Vector) == 0 {
		return nil, errors.New("embedding provider returned an empty vector")
	}

	dims := result.Dimensions
	if dims == 0 {
		dims = len(result.Vector)
	}
	if expectedDimensions > 0 && dims != expectedDimensions {
		return nil, fmt.Errorf("embedding dimensions mismatch: expected %d, got %d", expectedDimensions, dims)
	}

	generated := result.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	return &types.Embedding{
		Model:      result.Model,
		Dimensions: dims,
		Vector:     result.Vector,
		CreatedAt:  generated,
	}, nil
}
