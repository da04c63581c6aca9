// Package search runs hybrid retrieval over one library: vector and
// lexical candidates fetched in parallel, fused with reciprocal rank
// fusion, ordered deterministically.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/alcove/internal/embeddings"
	"github.com/fyrsmithlabs/alcove/internal/lexical"
	"github.com/fyrsmithlabs/alcove/internal/vectorstore"
)

var searchTracer = otel.Tracer("alcove.search")

// ErrEmptyQuery is returned when the query is empty or whitespace-only.
var ErrEmptyQuery = errors.New("empty query")

// Config tunes the hybrid engine.
type Config struct {
	// TopK is the number of fused results returned. Default: 10.
	TopK int `koanf:"top_k"`

	// RRFK is the reciprocal rank fusion constant. Default: 60.
	RRFK int `koanf:"rrf_k"`

	// Fanout multiplies TopK when fetching candidates from each side, so
	// fusion sees chunks ranked well by only one retriever. Default: 3.
	Fanout int `koanf:"fanout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.RRFK <= 0 {
		c.RRFK = 60
	}
	if c.Fanout <= 0 {
		c.Fanout = 3
	}
}

// Result is the outcome of one hybrid search.
type Result struct {
	// Chunks are fused results ordered by descending fused score, ties by
	// vector similarity then store insertion order. FusedRank is 1-based.
	Chunks []vectorstore.RetrievedChunk

	// QueryEmbedding is the query vector, nil when embedding failed and
	// the search degraded to lexical-only.
	QueryEmbedding []float32

	// Degraded reports that one retrieval side was unavailable and the
	// results come from the other side alone.
	Degraded bool
}

// Engine fuses vector and lexical retrieval for a single query.
type Engine struct {
	provider embeddings.Provider
	config   Config
	logger   *zap.Logger
}

// NewEngine creates a hybrid search engine. A nil logger defaults to a
// no-op logger.
func NewEngine(provider embeddings.Provider, config Config, logger *zap.Logger) *Engine {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{provider: provider, config: config, logger: logger}
}

// Search retrieves the top fused candidates for the query from the given
// store and lexical index. Both retrievers run in parallel; if one side
// fails the other side's results are returned alone. An empty library
// yields an empty result, not an error.
func (e *Engine) Search(ctx context.Context, store vectorstore.Store, lexicon *lexical.Index, query string, topK int) (Result, error) {
	ctx, span := searchTracer.Start(ctx, "search.hybrid")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return Result{}, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = e.config.TopK
	}
	fetch := topK * e.config.Fanout
	span.SetAttributes(
		attribute.Int("search.top_k", topK),
		attribute.Int("search.fetch", fetch),
	)

	queryVec, embedErr := e.provider.Embed(ctx, query)
	if embedErr != nil && ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	var (
		wg          sync.WaitGroup
		vectorHits  []vectorstore.RetrievedChunk
		vectorErr   error
		lexicalHits []lexical.Hit
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if embedErr != nil {
			vectorErr = embedErr
			return
		}
		vectorHits, vectorErr = store.Search(ctx, queryVec, fetch)
	}()
	go func() {
		defer wg.Done()
		lexicalHits = lexicon.TopK(lexical.Tokenize(query), fetch)
	}()
	wg.Wait()

	if vectorErr != nil {
		if len(lexicalHits) == 0 {
			span.RecordError(vectorErr)
			span.SetStatus(codes.Error, "both retrievers failed")
			return Result{}, fmt.Errorf("hybrid search: %w", vectorErr)
		}
		e.logger.Warn("vector retrieval failed, continuing lexical-only",
			zap.Error(vectorErr))
	}

	fused, err := e.fuse(ctx, store, vectorHits, lexicalHits, queryVec, vectorErr == nil)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	if topK < len(fused) {
		fused = fused[:topK]
	}
	for i := range fused {
		fused[i].FusedRank = i + 1
	}
	span.SetAttributes(attribute.Int("search.results", len(fused)))

	result := Result{Chunks: fused, Degraded: vectorErr != nil}
	if embedErr == nil {
		result.QueryEmbedding = queryVec
	}
	return result, nil
}

// fuse merges the two ranked candidate lists with reciprocal rank fusion.
// Each list contributes 1/(k+rank+1) per chunk; chunks present in both
// lists accumulate both contributions.
func (e *Engine) fuse(ctx context.Context, store vectorstore.Store, vectorHits []vectorstore.RetrievedChunk, lexicalHits []lexical.Hit, queryVec []float32, haveVector bool) ([]vectorstore.RetrievedChunk, error) {
	k := e.config.RRFK
	merged := make(map[string]*vectorstore.RetrievedChunk, len(vectorHits)+len(lexicalHits))
	order := make([]string, 0, len(vectorHits)+len(lexicalHits))

	for rank, hit := range vectorHits {
		h := hit
		h.FusedScore = 1.0 / float64(k+rank+1)
		merged[h.ID] = &h
		order = append(order, h.ID)
	}
	for rank, hit := range lexicalHits {
		contribution := 1.0 / float64(k+rank+1)
		if existing, ok := merged[hit.ChunkID]; ok {
			existing.FusedScore += contribution
			existing.LexicalScore = hit.Score
			continue
		}
		chunk, err := store.ChunkByID(ctx, hit.ChunkID)
		if err != nil {
			// The chunk was deleted between lexical scoring and hydration.
			if errors.Is(err, vectorstore.ErrChunkNotFound) {
				continue
			}
			return nil, fmt.Errorf("hydrating lexical hit %s: %w", hit.ChunkID, err)
		}
		rc := vectorstore.RetrievedChunk{
			Chunk:        chunk,
			LexicalScore: hit.Score,
			FusedScore:   contribution,
			Position:     hit.Position,
		}
		if haveVector {
			rc.Similarity = vectorstore.CosineSimilarity(queryVec, chunk.Embedding)
		}
		merged[hit.ChunkID] = &rc
		order = append(order, hit.ChunkID)
	}

	// Candidate order is fixed (vector list then new lexical hits), so the
	// stable sort below yields the same ordering on every run.
	fused := make([]vectorstore.RetrievedChunk, 0, len(merged))
	for _, id := range order {
		fused = append(fused, *merged[id])
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].FusedScore != fused[j].FusedScore {
			return fused[i].FusedScore > fused[j].FusedScore
		}
		if fused[i].Similarity != fused[j].Similarity {
			return fused[i].Similarity > fused[j].Similarity
		}
		return fused[i].Position < fused[j].Position
	})
	return fused, nil
}
