// Package generation defines the pluggable answer-generation backend.
// The retrieval core assembles grounded context and hands it to a
// Backend; model selection, prompting templates and credentials live
// entirely behind this interface.
package generation

import (
	"context"
	"errors"
)

var (
	// ErrBackendUnavailable indicates the backend cannot be reached.
	ErrBackendUnavailable = errors.New("generation backend unavailable")

	// ErrGenerationFailed indicates the backend answered but generation
	// failed.
	ErrGenerationFailed = errors.New("generation failed")
)

// Options tunes a single generation call.
type Options struct {
	// MaxTokens bounds the response length. Zero means backend default.
	MaxTokens int

	// Temperature is the sampling temperature. Strict-mode queries cap
	// this so answers stay close to the supplied evidence.
	Temperature float64
}

// Backend produces an answer from a prompt and assembled context.
type Backend interface {
	// Generate answers the prompt using only the supplied context text.
	Generate(ctx context.Context, prompt, contextText string, opts Options) (string, error)

	// Close releases backend resources.
	Close() error
}
