package reranker

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/alcove/internal/vectorstore"
)

// ErrNilContext is returned when a nil context is passed to Rerank.
var ErrNilContext = errors.New("context cannot be nil")

// DefaultMMRLambda balances query relevance against diversity. 1.0 keeps
// the incoming relevance order, 0.0 maximizes diversity only.
const DefaultMMRLambda = 0.75

// MMRReranker implements maximal marginal relevance over stored chunk
// embeddings. Each round it selects the candidate maximizing
//
//	lambda*sim(query, c) - (1-lambda)*max sim(c, selected)
//
// which penalizes candidates that restate chunks already selected. The
// relevance term is the precomputed query similarity; pairwise similarity
// is cosine over the stored embeddings, so reranking needs no extra
// provider calls.
type MMRReranker struct {
	lambda float64
}

// NewMMRReranker creates an MMR reranker. Lambda values outside (0, 1]
// fall back to the default.
func NewMMRReranker(lambda float64) *MMRReranker {
	if lambda <= 0 || lambda > 1 {
		lambda = DefaultMMRLambda
	}
	return &MMRReranker{lambda: lambda}
}

// Rerank greedily selects up to topK candidates. O(k * n) pairwise
// similarity computations; candidate sets here are bounded by the search
// fanout so this stays cheap.
func (r *MMRReranker) Rerank(ctx context.Context, candidates []vectorstore.RetrievedChunk, topK int) ([]vectorstore.RetrievedChunk, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	if len(candidates) == 0 {
		return []vectorstore.RetrievedChunk{}, nil
	}

	selected := make([]vectorstore.RetrievedChunk, 0, topK)
	remaining := make([]vectorstore.RetrievedChunk, len(candidates))
	copy(remaining, candidates)

	// maxSelectedSim[i] tracks the highest similarity between remaining[i]
	// and any already-selected chunk, updated incrementally per round.
	maxSelectedSim := make([]float64, len(remaining))

	for len(selected) < topK {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		best := -1
		bestScore := 0.0
		for i, c := range remaining {
			score := r.lambda*float64(c.Similarity) - (1-r.lambda)*maxSelectedSim[i]
			// Strict greater-than keeps the earliest candidate on ties,
			// preserving the incoming fused order.
			if best == -1 || score > bestScore {
				best = i
				bestScore = score
			}
		}

		chosen := remaining[best]
		selected = append(selected, chosen)
		remaining = append(remaining[:best], remaining[best+1:]...)
		maxSelectedSim = append(maxSelectedSim[:best], maxSelectedSim[best+1:]...)

		for i, c := range remaining {
			sim := float64(vectorstore.CosineSimilarity(c.Embedding, chosen.Embedding))
			if sim > maxSelectedSim[i] {
				maxSelectedSim[i] = sim
			}
		}
	}
	return selected, nil
}

// Close is a no-op; the reranker holds no resources.
func (r *MMRReranker) Close() error {
	return nil
}
