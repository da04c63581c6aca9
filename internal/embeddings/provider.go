// Package embeddings provides embedding generation via pluggable providers.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyInput indicates empty or nil input texts. Providers must
	// reject empty input rather than returning a zero vector.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProviderUnavailable indicates the provider cannot be reached or
	// timed out. Retryable; the orchestrator may fall back to a degraded
	// provider when one is configured.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrEmbeddingFailed indicates the provider answered but embedding
	// generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider turns text into fixed-length vectors.
//
// All calls respect ctx cancellation and deadlines. Implementations are
// safe for concurrent use.
type Provider interface {
	// Embed generates an embedding for a single query or chunk.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one per input,
	// in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the provider's embedding dimension.
	Dimension() int

	// Available reports whether the provider can currently serve requests.
	Available(ctx context.Context) bool

	// Close releases resources held by the provider.
	Close() error
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Kind is the provider type: "http" (TEI-compatible server).
	Kind string `koanf:"kind"`

	// BaseURL is the embedding server URL.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model name, informational for servers that
	// host a single model.
	Model string `koanf:"model"`

	// APIKey is sent as a bearer token when set.
	APIKey string `koanf:"api_key"`

	// Dimension is the expected embedding dimension.
	Dimension int `koanf:"dimension"`

	// Timeout bounds every provider call. Default: 30s.
	Timeout time.Duration `koanf:"timeout"`

	// Fallback optionally configures a degraded provider used when the
	// primary is unavailable.
	Fallback *Config `koanf:"fallback"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Kind == "" {
		c.Kind = "http"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.Model == "" {
		c.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Dimension == 0 {
		c.Dimension = 384
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// NewProvider creates an embedding provider from configuration. When a
// fallback is configured the returned provider degrades to it on
// primary unavailability.
func NewProvider(cfg Config) (Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	primary, err := newSingleProvider(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == nil {
		return primary, nil
	}

	fbCfg := *cfg.Fallback
	fbCfg.ApplyDefaults()
	secondary, err := newSingleProvider(fbCfg)
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	return NewFallbackProvider(primary, secondary)
}

func newSingleProvider(cfg Config) (Provider, error) {
	switch cfg.Kind {
	case "http", "":
		return NewHTTPProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider kind %q", ErrInvalidConfig, cfg.Kind)
	}
}
