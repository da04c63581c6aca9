// Package vectorstore provides per-library chunk and embedding storage.
package vectorstore

import (
	"context"
	"errors"
	"math"
)

// Sentinel errors for vector store operations.
var (
	// ErrDimensionMismatch is returned when an embedding's length differs
	// from the store's configured dimension. Never coerced.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidVector is returned when an embedding contains NaN or
	// infinite components.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrChunkNotFound is returned when a chunk ID is not in the store.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Store is the storage contract for one library's chunks and vectors.
//
// Implementations must be safe for concurrent use: searches may run in
// parallel, inserts and deletes serialize against each other and against
// in-flight searches. Searches on an empty store return empty results,
// not an error.
//
// Implementations:
//   - MemoryStore: in-memory with JSON file persistence (default)
//   - ChromemStore: embedded chromem-go database
type Store interface {
	// Insert adds pre-embedded chunks. The batch is all-or-nothing: if any
	// chunk fails validation (dimension, NaN/Inf) nothing is inserted and
	// the store is unchanged.
	Insert(ctx context.Context, chunks []Chunk) error

	// Search returns up to k chunks ordered by descending cosine similarity
	// to the query vector. Ties break by insertion order. Returns fewer than
	// k results if the store holds fewer chunks.
	Search(ctx context.Context, query []float32, k int) ([]RetrievedChunk, error)

	// DeleteDocument removes all chunks belonging to the document.
	// No-op if the document is absent.
	DeleteDocument(ctx context.Context, documentID string) error

	// ChunkByID returns a single chunk, or ErrChunkNotFound.
	ChunkByID(ctx context.Context, id string) (Chunk, error)

	// Chunks returns a point-in-time snapshot of all chunks in insertion
	// order. The snapshot does not block concurrent searches.
	Chunks(ctx context.Context) ([]Chunk, error)

	// Count returns the number of chunks currently stored.
	Count() int

	// Dimension returns the configured embedding dimension.
	Dimension() int

	// Save persists the full chunk and vector set. A later Load on a fresh
	// store yields a semantically equal set.
	Save(ctx context.Context) error

	// Load restores previously saved state. Missing persistence is not an
	// error; the store starts empty.
	Load(ctx context.Context) error

	// Close releases resources. The store must not be used afterwards.
	Close() error
}

// CosineSimilarity computes dot(a,b)/(|a|*|b|). Returns 0 when either
// vector has zero norm. Result is clamped to [-1, 1] against float drift.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return float32(sim)
}

// vectorNorm returns the Euclidean norm of v.
func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// validateEmbedding checks dimension and component validity.
func validateEmbedding(v []float32, dim int) error {
	if len(v) != dim {
		return ErrDimensionMismatch
	}
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidVector
		}
	}
	return nil
}
