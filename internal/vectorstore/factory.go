package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Kind selects a Store implementation.
type Kind string

const (
	// KindMemory is the default in-memory store with JSON persistence.
	KindMemory Kind = "memory"
	// KindChromem uses the embedded chromem-go database for search.
	KindChromem Kind = "chromem"
)

// Options configures store construction for one library.
type Options struct {
	// Kind selects the implementation. Default: KindMemory.
	Kind Kind

	// Dimension is the library's embedding dimension.
	Dimension int

	// Path is the persistence file for the library record. Empty disables
	// persistence.
	Path string

	// Collection is the chromem collection name (chromem kind only).
	Collection string
}

// NewStore creates a Store for one library based on the options.
//
// The router is the only caller; constructing stores elsewhere would allow
// duplicate in-memory state for the same library.
func NewStore(opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Kind {
	case KindMemory, "":
		return NewMemoryStore(MemoryConfig{
			Dimension: opts.Dimension,
			Path:      opts.Path,
		}, logger)
	case KindChromem:
		return NewChromemStore(ChromemConfig{
			Dimension:  opts.Dimension,
			Collection: opts.Collection,
			Path:       opts.Path,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown store kind %q", ErrInvalidConfig, opts.Kind)
	}
}
