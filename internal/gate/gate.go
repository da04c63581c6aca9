// Package gate implements the strict-mode evidence check that decides
// whether retrieval found enough grounding to answer from.
package gate

import (
	"github.com/fyrsmithlabs/alcove/internal/library"
	"github.com/fyrsmithlabs/alcove/internal/vectorstore"
)

// Outcome is the gate's verdict for one query.
type Outcome int

const (
	// OutcomePermit allows generation over the supporting chunks.
	OutcomePermit Outcome = iota

	// OutcomeDecline refuses generation; the caller reports the best
	// available sources instead of answering.
	OutcomeDecline
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomePermit:
		return "permit"
	case OutcomeDecline:
		return "decline"
	default:
		return "unknown"
	}
}

// Decision is the gate evaluation result.
type Decision struct {
	Outcome Outcome

	// Supporting holds the chunks cleared for context assembly. Empty on
	// decline.
	Supporting []vectorstore.RetrievedChunk

	// BestAvailable holds the closest chunks found when declining, so a
	// refusal can still cite what exists. Empty on permit.
	BestAvailable []vectorstore.RetrievedChunk

	// TopSimilarity is the best query similarity seen, for diagnostics.
	TopSimilarity float32
}

// Evaluate applies the library's retrieval policy to reranked results.
//
// With strict mode off every result passes through as supporting
// evidence. With strict mode on, the gate permits only when the top
// result meets the similarity threshold and at least MinSupportingChunks
// results do; otherwise it declines and surfaces the closest candidates.
// No results always declines under strict mode.
func Evaluate(results []vectorstore.RetrievedChunk, policy library.Policy, maxSupporting int) Decision {
	policy.ApplyDefaults()
	if maxSupporting <= 0 {
		maxSupporting = len(results)
	}

	var top float32
	if len(results) > 0 {
		top = results[0].Similarity
		for _, rc := range results[1:] {
			if rc.Similarity > top {
				top = rc.Similarity
			}
		}
	}

	if !policy.StrictMode {
		supporting := results
		if maxSupporting < len(supporting) {
			supporting = supporting[:maxSupporting]
		}
		return Decision{
			Outcome:       OutcomePermit,
			Supporting:    supporting,
			TopSimilarity: top,
		}
	}

	supporting := make([]vectorstore.RetrievedChunk, 0, len(results))
	for _, rc := range results {
		if rc.Similarity >= policy.SimilarityThreshold {
			supporting = append(supporting, rc)
		}
	}

	if len(results) == 0 || top < policy.SimilarityThreshold || len(supporting) < policy.MinSupportingChunks {
		return Decision{
			Outcome:       OutcomeDecline,
			BestAvailable: bestAvailable(results, maxSupporting),
			TopSimilarity: top,
		}
	}

	if maxSupporting < len(supporting) {
		supporting = supporting[:maxSupporting]
	}
	return Decision{
		Outcome:       OutcomePermit,
		Supporting:    supporting,
		TopSimilarity: top,
	}
}

// bestAvailable caps the cited near-misses on decline.
func bestAvailable(results []vectorstore.RetrievedChunk, limit int) []vectorstore.RetrievedChunk {
	if limit > 0 && limit < len(results) {
		return results[:limit]
	}
	return results
}
