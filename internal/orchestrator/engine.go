// Package orchestrator connects chunking, embedding, storage, hybrid
// search, re-ranking and the evidence gate into the two user-facing
// operations: ingest and query.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/alcove/internal/chunker"
	"github.com/fyrsmithlabs/alcove/internal/embeddings"
	"github.com/fyrsmithlabs/alcove/internal/events"
	"github.com/fyrsmithlabs/alcove/internal/gate"
	"github.com/fyrsmithlabs/alcove/internal/generation"
	"github.com/fyrsmithlabs/alcove/internal/lexical"
	"github.com/fyrsmithlabs/alcove/internal/library"
	"github.com/fyrsmithlabs/alcove/internal/reranker"
	"github.com/fyrsmithlabs/alcove/internal/search"
	"github.com/fyrsmithlabs/alcove/internal/vectorstore"
)

var engineTracer = otel.Tracer("alcove.orchestrator")

var (
	// ErrNoLibrary is returned when a request names no library and no
	// library is active.
	ErrNoLibrary = errors.New("no library selected")

	// ErrEmptyDocument is returned when an ingest request carries no text.
	ErrEmptyDocument = errors.New("document has no text")
)

// Config tunes the engine.
type Config struct {
	// Chunking options applied to every ingested document.
	Chunking chunker.Options `koanf:"chunking"`

	// Retrieval options for hybrid search.
	Retrieval search.Config `koanf:"retrieval"`

	// MaxContextChars bounds assembled context size. Truncation happens
	// at chunk granularity, never mid-chunk. Default: 12000.
	MaxContextChars int `koanf:"max_context_chars"`

	// Temperature is the default sampling temperature for generation.
	Temperature float64 `koanf:"temperature"`

	// StrictTemperatureCap caps the temperature for strict-mode queries.
	// Default: 0.2.
	StrictTemperatureCap float64 `koanf:"strict_temperature_cap"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	c.Chunking.ApplyDefaults()
	c.Retrieval.ApplyDefaults()
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 12000
	}
	if c.StrictTemperatureCap <= 0 {
		c.StrictTemperatureCap = library.DefaultStrictTemperatureCap
	}
}

// Engine is the retrieval core's entry point. The generation backend
// and event publisher are optional: without a backend queries return
// assembled context and sources only, without a publisher events are
// dropped.
type Engine struct {
	router   *library.Router
	provider embeddings.Provider
	searcher *search.Engine
	backend  generation.Backend
	events   *events.Publisher
	config   Config
	logger   *zap.Logger
}

// NewEngine creates the engine. router and provider are required.
func NewEngine(router *library.Router, provider embeddings.Provider, backend generation.Backend, publisher *events.Publisher, config Config, logger *zap.Logger) *Engine {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		router:   router,
		provider: provider,
		searcher: search.NewEngine(provider, config.Retrieval, logger),
		backend:  backend,
		events:   publisher,
		config:   config,
		logger:   logger,
	}
}

// Router exposes the library router for management operations.
func (e *Engine) Router() *library.Router {
	return e.router
}

// CreateLibrary registers a library and publishes a creation event.
func (e *Engine) CreateLibrary(ctx context.Context, lib library.Library) (*library.Library, error) {
	if lib.ID == "" {
		lib.ID = uuid.NewString()
	}
	if lib.EmbeddingDim == 0 {
		lib.EmbeddingDim = e.provider.Dimension()
	}
	created, err := e.router.Create(ctx, lib)
	if err != nil {
		return nil, err
	}
	e.events.LibraryCreated(created.ID)
	return created, nil
}

// DropLibrary removes a library and all of its persisted chunks.
func (e *Engine) DropLibrary(ctx context.Context, libraryID string) error {
	if err := e.router.Drop(ctx, libraryID); err != nil {
		return err
	}
	e.events.LibraryDropped(libraryID)
	return nil
}

// IngestRequest describes one document to ingest.
type IngestRequest struct {
	// LibraryID targets a library; empty uses the active library.
	LibraryID string `json:"library_id"`

	// DocumentID identifies the document; generated when empty.
	// Re-ingesting an existing ID replaces the document.
	DocumentID string `json:"document_id"`

	// DocumentName is the human-readable source name used in citations.
	DocumentName string `json:"document_name"`

	// Text is the extracted document text.
	Text string `json:"text"`
}

// ChunkFailure reports one chunk that could not be embedded.
type ChunkFailure struct {
	ChunkIndex int    `json:"chunk_index"`
	Reason     string `json:"reason"`
}

// IngestReport summarizes one ingestion.
type IngestReport struct {
	DocumentID    string         `json:"document_id"`
	ChunksCreated int            `json:"chunks_created"`
	Language      string         `json:"language,omitempty"`
	NoTextContent bool           `json:"no_text_content,omitempty"`
	Failures      []ChunkFailure `json:"failures,omitempty"`
}

// Ingest chunks, embeds and stores one document. Chunks that fail to
// embed are reported in the result, not silently dropped; successfully
// embedded chunks are inserted as one atomic batch. A document with no
// indexable text yields an empty report with NoTextContent set.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (IngestReport, error) {
	ctx, span := engineTracer.Start(ctx, "orchestrator.ingest")
	defer span.End()

	libID, err := e.resolveLibrary(req.LibraryID)
	if err != nil {
		return IngestReport{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return IngestReport{}, ErrEmptyDocument
	}
	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	span.SetAttributes(
		attribute.String("library.id", libID),
		attribute.String("document.id", docID),
	)

	result := chunker.New(e.config.Chunking).Chunk(req.Text)
	report := IngestReport{
		DocumentID:    docID,
		Language:      result.Language,
		NoTextContent: result.NoTextContent,
	}
	if len(result.Segments) == 0 {
		return report, nil
	}

	embedded, failures := e.embedSegments(ctx, result.Segments)
	report.Failures = failures
	if err := ctx.Err(); err != nil {
		return IngestReport{}, err
	}
	if len(embedded) == 0 {
		return report, fmt.Errorf("embedding document %s: all %d chunks failed", docID, len(result.Segments))
	}

	chunks := make([]vectorstore.Chunk, 0, len(embedded))
	for _, ec := range embedded {
		chunks = append(chunks, vectorstore.Chunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Content:    ec.segment.Content,
			Embedding:  ec.vector,
			Metadata: vectorstore.ChunkMetadata{
				ChunkIndex:  ec.segment.Index,
				StartOffset: ec.segment.StartOffset,
				EndOffset:   ec.segment.EndOffset,
				Keywords:    ec.segment.Keywords,
				Language:    ec.segment.Language,
				Source:      req.DocumentName,
			},
		})
	}

	store, err := e.router.StoreFor(ctx, libID)
	if err != nil {
		return IngestReport{}, err
	}
	lexicon, err := e.router.LexiconFor(ctx, libID)
	if err != nil {
		return IngestReport{}, err
	}

	// Replace semantics: the previous version of the document is removed
	// only once the new batch is in hand, and restored if the insert
	// fails, so a failed re-ingest keeps the last good version live.
	var previous []vectorstore.Chunk
	if req.DocumentID != "" {
		all, err := store.Chunks(ctx)
		if err != nil {
			return IngestReport{}, fmt.Errorf("listing chunks for document %s: %w", docID, err)
		}
		for _, c := range all {
			if c.DocumentID == docID {
				previous = append(previous, c)
			}
		}
		if len(previous) > 0 {
			for _, c := range previous {
				lexicon.Remove(c.ID)
			}
			if err := store.DeleteDocument(ctx, docID); err != nil {
				return IngestReport{}, fmt.Errorf("replacing document %s: %w", docID, err)
			}
		}
	}

	if err := store.Insert(ctx, chunks); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		e.restoreDocument(ctx, store, lexicon, previous)
		return IngestReport{}, fmt.Errorf("inserting chunks for document %s: %w", docID, err)
	}
	for _, c := range chunks {
		lexicon.Add(c.ID, c.Content)
	}
	if err := store.Save(ctx); err != nil {
		return IngestReport{}, fmt.Errorf("persisting library %s: %w", libID, err)
	}

	report.ChunksCreated = len(chunks)
	e.events.DocumentIngested(libID, docID, len(chunks))
	e.logger.Info("document ingested",
		zap.String("library_id", libID),
		zap.String("document_id", docID),
		zap.Int("chunks", len(chunks)),
		zap.Int("failed", len(failures)),
	)
	return report, nil
}

type embeddedSegment struct {
	segment chunker.Segment
	vector  []float32
}

// embedSegments embeds all segments, preferring one batch call and
// degrading to per-segment calls when the batch fails, so a single bad
// chunk cannot sink the whole document.
func (e *Engine) embedSegments(ctx context.Context, segments []chunker.Segment) ([]embeddedSegment, []ChunkFailure) {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Content
	}

	vectors, err := e.provider.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) == len(segments) {
		out := make([]embeddedSegment, len(segments))
		for i := range segments {
			out[i] = embeddedSegment{segment: segments[i], vector: vectors[i]}
		}
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, nil
	}
	e.logger.Warn("batch embedding failed, retrying per chunk", zap.Error(err))

	var (
		out      []embeddedSegment
		failures []ChunkFailure
	)
	for _, s := range segments {
		vec, err := e.provider.Embed(ctx, s.Content)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			failures = append(failures, ChunkFailure{ChunkIndex: s.Index, Reason: err.Error()})
			continue
		}
		out = append(out, embeddedSegment{segment: s, vector: vec})
	}
	return out, failures
}

// QueryRequest describes one retrieval question.
type QueryRequest struct {
	// LibraryID targets a library; empty uses the active library.
	LibraryID string `json:"library_id"`

	// Query is the user question.
	Query string `json:"query"`

	// TopK overrides the configured result count when positive.
	TopK int `json:"top_k,omitempty"`

	// Temperature overrides the configured sampling temperature when
	// positive. Strict mode still caps it.
	Temperature float64 `json:"temperature,omitempty"`
}

// Source cites one chunk backing an answer or a decline.
type Source struct {
	DocumentID string  `json:"document_id"`
	Document   string  `json:"document,omitempty"`
	ChunkID    string  `json:"chunk_id"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float32 `json:"similarity"`
}

// QueryResult is the outcome of one query.
type QueryResult struct {
	// Answer is the generated response. Empty when declined or when no
	// generation backend is configured.
	Answer string `json:"answer,omitempty"`

	// Declined reports that the evidence gate refused generation.
	Declined bool `json:"declined"`

	// DeclineReason explains a decline in user-facing terms.
	DeclineReason string `json:"decline_reason,omitempty"`

	// Context is the assembled grounded context handed to the backend.
	Context string `json:"context,omitempty"`

	// Sources cite the supporting chunks, or the closest near-misses on
	// decline.
	Sources []Source `json:"sources"`

	// Degraded reports that retrieval ran on one side only.
	Degraded bool `json:"degraded,omitempty"`

	// TopSimilarity is the best query similarity seen.
	TopSimilarity float32 `json:"top_similarity"`
}

// Query runs hybrid retrieval, MMR re-ranking and the evidence gate,
// then asks the generation backend for an answer. Under a strict-mode
// decline the backend is never called; the result cites the closest
// available chunks instead.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	ctx, span := engineTracer.Start(ctx, "orchestrator.query")
	defer span.End()

	libID, err := e.resolveLibrary(req.LibraryID)
	if err != nil {
		return QueryResult{}, err
	}
	lib, err := e.router.Get(libID)
	if err != nil {
		return QueryResult{}, err
	}
	store, err := e.router.StoreFor(ctx, libID)
	if err != nil {
		return QueryResult{}, err
	}
	lexicon, err := e.router.LexiconFor(ctx, libID)
	if err != nil {
		return QueryResult{}, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.config.Retrieval.TopK
	}
	span.SetAttributes(
		attribute.String("library.id", libID),
		attribute.Bool("strict_mode", lib.Policy.StrictMode),
	)

	found, err := e.searcher.Search(ctx, store, lexicon, req.Query, topK)
	if err != nil {
		span.RecordError(err)
		return QueryResult{}, err
	}

	mmr := reranker.NewMMRReranker(lib.Policy.MMRLambda)
	reranked, err := mmr.Rerank(ctx, found.Chunks, topK)
	if err != nil {
		return QueryResult{}, err
	}

	decision := gate.Evaluate(reranked, lib.Policy, topK)
	if decision.Outcome == gate.OutcomeDecline {
		e.logger.Info("query declined",
			zap.String("library_id", libID),
			zap.Float32("top_similarity", decision.TopSimilarity),
		)
		return QueryResult{
			Declined:      true,
			DeclineReason: declineReason(decision),
			Sources:       sourcesFor(decision.BestAvailable),
			Degraded:      found.Degraded,
			TopSimilarity: decision.TopSimilarity,
		}, nil
	}

	contextText := e.assembleContext(decision.Supporting)
	result := QueryResult{
		Context:       contextText,
		Sources:       sourcesFor(decision.Supporting),
		Degraded:      found.Degraded,
		TopSimilarity: decision.TopSimilarity,
	}
	if e.backend == nil {
		return result, nil
	}

	opts := generation.Options{Temperature: e.config.Temperature}
	if req.Temperature > 0 {
		opts.Temperature = req.Temperature
	}
	if lib.Policy.StrictMode && opts.Temperature > e.config.StrictTemperatureCap {
		opts.Temperature = e.config.StrictTemperatureCap
	}
	answer, err := e.backend.Generate(ctx, req.Query, contextText, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return QueryResult{}, fmt.Errorf("generating answer: %w", err)
	}
	result.Answer = answer
	return result, nil
}

// Enumerate returns every chunk of a library in insertion order, for
// diagnostics and inspection tooling.
func (e *Engine) Enumerate(ctx context.Context, libraryID string) ([]vectorstore.Chunk, error) {
	libID, err := e.resolveLibrary(libraryID)
	if err != nil {
		return nil, err
	}
	store, err := e.router.StoreFor(ctx, libID)
	if err != nil {
		return nil, err
	}
	return store.Chunks(ctx)
}

// DeleteDocument removes a document's chunks from the store and the
// lexical index, then persists the store.
func (e *Engine) DeleteDocument(ctx context.Context, libraryID, documentID string) error {
	libID, err := e.resolveLibrary(libraryID)
	if err != nil {
		return err
	}
	store, err := e.router.StoreFor(ctx, libID)
	if err != nil {
		return err
	}
	lexicon, err := e.router.LexiconFor(ctx, libID)
	if err != nil {
		return err
	}
	if err := e.deleteFromLexicon(ctx, store, lexicon, documentID); err != nil {
		return err
	}
	if err := store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := store.Save(ctx); err != nil {
		return fmt.Errorf("persisting library %s: %w", libID, err)
	}
	e.events.DocumentDeleted(libID, documentID)
	return nil
}

// resolveLibrary maps an explicit or implicit library reference to an ID.
func (e *Engine) resolveLibrary(libraryID string) (string, error) {
	if libraryID != "" {
		return libraryID, nil
	}
	if active := e.router.Active(); active != "" {
		return active, nil
	}
	return "", ErrNoLibrary
}

// deleteFromLexicon removes a document's chunks from the lexical index.
// Must run before the store delete, while the chunk IDs are still known.
func (e *Engine) deleteFromLexicon(ctx context.Context, store vectorstore.Store, lexicon *lexical.Index, documentID string) error {
	chunks, err := store.Chunks(ctx)
	if err != nil {
		return fmt.Errorf("listing chunks for document %s: %w", documentID, err)
	}
	for _, c := range chunks {
		if c.DocumentID == documentID {
			lexicon.Remove(c.ID)
		}
	}
	return nil
}

// restoreDocument puts a replaced document back after a failed insert.
// The chunks were valid when first stored, so re-inserting them only
// fails on cancellation, which is logged and left for the next load.
func (e *Engine) restoreDocument(ctx context.Context, store vectorstore.Store, lexicon *lexical.Index, previous []vectorstore.Chunk) {
	if len(previous) == 0 {
		return
	}
	if err := store.Insert(ctx, previous); err != nil {
		e.logger.Error("restoring replaced document failed",
			zap.String("document_id", previous[0].DocumentID),
			zap.Error(err))
		return
	}
	for _, c := range previous {
		lexicon.Add(c.ID, c.Content)
	}
}

// assembleContext concatenates supporting chunks with source tags,
// bounded by MaxContextChars at chunk granularity. The first chunk is
// always included so a permit never produces empty context.
func (e *Engine) assembleContext(supporting []vectorstore.RetrievedChunk) string {
	var b strings.Builder
	for i, rc := range supporting {
		block := fmt.Sprintf("[source: %s]\n%s", sourceName(rc), rc.Content)
		if i > 0 && b.Len()+len(block)+2 > e.config.MaxContextChars {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
	}
	return b.String()
}

func sourceName(rc vectorstore.RetrievedChunk) string {
	if rc.Metadata.Source != "" {
		return rc.Metadata.Source
	}
	return rc.DocumentID
}

func sourcesFor(chunks []vectorstore.RetrievedChunk) []Source {
	out := make([]Source, 0, len(chunks))
	for _, rc := range chunks {
		out = append(out, Source{
			DocumentID: rc.DocumentID,
			Document:   rc.Metadata.Source,
			ChunkID:    rc.ID,
			ChunkIndex: rc.Metadata.ChunkIndex,
			Similarity: rc.Similarity,
		})
	}
	return out
}

func declineReason(d gate.Decision) string {
	if len(d.BestAvailable) == 0 {
		return "no indexed content matched the question"
	}
	return fmt.Sprintf("retrieved evidence is too weak to answer (best similarity %.2f); closest sources are cited", d.TopSimilarity)
}
