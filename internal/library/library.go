// Package library defines document libraries and the router that owns
// their per-library retrieval state.
package library

import (
	"errors"
	"fmt"
	"time"
)

// Default strict-mode policy values. These are tuned for the default
// embedding model's similarity distribution; treat them as configurable
// policy, not constants.
const (
	DefaultSimilarityThreshold  = 0.52
	DefaultMinSupportingChunks  = 3
	DefaultMMRLambda            = 0.75
	DefaultStrictTemperatureCap = 0.2
)

// Sentinel errors for library management.
var (
	// ErrNotFound is returned for unknown library IDs.
	ErrNotFound = errors.New("library not found")

	// ErrExists is returned when creating a library whose ID is taken.
	ErrExists = errors.New("library already exists")

	// ErrDimensionLocked is returned when changing the embedding
	// dimension of a library that already holds chunks. Existing vectors
	// would be incomparable with the new model: the user must re-embed,
	// there is no silent migration.
	ErrDimensionLocked = errors.New("embedding dimension locked: library holds embedded chunks")

	// ErrInvalidLibrary indicates an invalid library definition.
	ErrInvalidLibrary = errors.New("invalid library")
)

// Policy is a library's retrieval and evidence policy.
type Policy struct {
	// StrictMode requires the evidence bar below before generation is
	// permitted.
	StrictMode bool `json:"strict_mode"`

	// SimilarityThreshold is the minimum top-result cosine similarity
	// under strict mode.
	SimilarityThreshold float32 `json:"similarity_threshold"`

	// MinSupportingChunks is how many results must meet the threshold
	// under strict mode.
	MinSupportingChunks int `json:"min_supporting_chunks"`

	// MMRLambda balances relevance against diversity in re-ranking.
	MMRLambda float64 `json:"mmr_lambda"`
}

// ApplyDefaults sets default values for unset fields.
func (p *Policy) ApplyDefaults() {
	if p.SimilarityThreshold == 0 {
		p.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if p.MinSupportingChunks == 0 {
		p.MinSupportingChunks = DefaultMinSupportingChunks
	}
	if p.MMRLambda == 0 {
		p.MMRLambda = DefaultMMRLambda
	}
}

// Library is an isolated collection of documents with its own embedding
// dimension and retrieval policy.
type Library struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ProviderID   string    `json:"provider_id"`
	EmbeddingDim int       `json:"embedding_dim"`
	Policy       Policy    `json:"policy"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks the library definition.
func (l *Library) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidLibrary)
	}
	if l.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrInvalidLibrary)
	}
	return nil
}
