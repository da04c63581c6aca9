// Package reranker reorders retrieved chunks before context assembly.
package reranker

import (
	"context"

	"github.com/fyrsmithlabs/alcove/internal/vectorstore"
)

// Reranker reorders fused search results.
type Reranker interface {
	// Rerank reorders candidates and returns at most topK of them.
	// Candidates arrive in fused-score order; implementations may use the
	// stored embeddings, similarity scores, and content.
	//
	// The caller is responsible for ensuring ctx is not nil.
	Rerank(ctx context.Context, candidates []vectorstore.RetrievedChunk, topK int) ([]vectorstore.RetrievedChunk, error)

	// Close releases any resources held by the reranker.
	Close() error
}
