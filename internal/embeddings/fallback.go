package embeddings

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// FallbackProvider degrades from a primary provider to a secondary one
// when the primary is unavailable or times out. Both providers must share
// one embedding dimension: vectors from different models are not
// comparable, so silently mixing dimensions would poison a library.
type FallbackProvider struct {
	primary   Provider
	secondary Provider
	logger    *zap.Logger
}

// NewFallbackProvider wires a primary and a degraded secondary provider.
func NewFallbackProvider(primary, secondary Provider) (*FallbackProvider, error) {
	if primary == nil || secondary == nil {
		return nil, fmt.Errorf("%w: both providers are required", ErrInvalidConfig)
	}
	if primary.Dimension() != secondary.Dimension() {
		return nil, fmt.Errorf("%w: primary dimension %d != fallback dimension %d",
			ErrInvalidConfig, primary.Dimension(), secondary.Dimension())
	}
	return &FallbackProvider{
		primary:   primary,
		secondary: secondary,
		logger:    zap.NewNop(),
	}, nil
}

// WithLogger sets the provider's logger and returns the provider.
func (p *FallbackProvider) WithLogger(logger *zap.Logger) *FallbackProvider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// retryable reports whether the secondary provider should be tried.
func retryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// Embed tries the primary, then the secondary on retryable failure.
func (p *FallbackProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.primary.Embed(ctx, text)
	if err == nil || !retryable(err) {
		return vec, err
	}
	p.logger.Warn("primary embedding provider unavailable, using fallback", zap.Error(err))
	return p.secondary.Embed(ctx, text)
}

// EmbedBatch tries the primary, then the secondary on retryable failure.
func (p *FallbackProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := p.primary.EmbedBatch(ctx, texts)
	if err == nil || !retryable(err) {
		return vecs, err
	}
	p.logger.Warn("primary embedding provider unavailable, using fallback", zap.Error(err))
	return p.secondary.EmbedBatch(ctx, texts)
}

// Dimension returns the shared embedding dimension.
func (p *FallbackProvider) Dimension() int {
	return p.primary.Dimension()
}

// Available reports whether either provider can serve requests.
func (p *FallbackProvider) Available(ctx context.Context) bool {
	return p.primary.Available(ctx) || p.secondary.Available(ctx)
}

// Close closes both providers, reporting the first error.
func (p *FallbackProvider) Close() error {
	err1 := p.primary.Close()
	err2 := p.secondary.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
