package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("alcove.vectorstore.chromem")

// ErrPrecomputedOnly is returned if chromem asks for an embedding; all
// chunks arrive pre-embedded, so the embedding func must never run.
var ErrPrecomputedOnly = errors.New("chunks must carry precomputed embeddings")

// ChromemConfig holds configuration for the chromem-backed store.
type ChromemConfig struct {
	// Dimension is the embedding dimension every chunk must match.
	Dimension int

	// Collection is the chromem collection name for this library.
	Collection string

	// Path is the JSON persistence file for the library record. chromem's
	// index is rebuilt from this record on Load, which keeps the record the
	// single source of truth (chromem metadata is string-typed and would
	// not round-trip chunk metadata faithfully).
	Path string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "alcove_default"
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if !validCollectionName(c.Collection) {
		return fmt.Errorf("%w: invalid collection name %q", ErrInvalidConfig, c.Collection)
	}
	return nil
}

// ChromemStore implements Store on top of the embedded chromem-go database.
//
// chromem answers similarity queries; full chunk records (typed metadata,
// insertion order) are kept alongside and persisted as one JSON record per
// library, matching MemoryStore's on-disk layout.
type ChromemStore struct {
	config ChromemConfig
	logger *zap.Logger

	mu      sync.RWMutex
	db      *chromem.DB
	col     *chromem.Collection
	order   []string // chunk IDs in insertion order
	records map[string]Chunk
	seqs    map[string]int
	nextSeq int
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(config.Collection, nil, precomputedEmbeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("creating chromem collection: %w", err)
	}

	s := &ChromemStore{
		config:  config,
		logger:  logger,
		db:      db,
		col:     col,
		records: make(map[string]Chunk),
		seqs:    make(map[string]int),
	}

	logger.Info("chromem store initialized",
		zap.String("collection", config.Collection),
		zap.Int("dimension", config.Dimension),
	)
	return s, nil
}

// precomputedEmbeddingFunc returns an EmbeddingFunc that always fails.
// All documents are added with explicit embeddings.
func precomputedEmbeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return nil, ErrPrecomputedOnly
	}
}

// Dimension returns the configured embedding dimension.
func (s *ChromemStore) Dimension() int {
	return s.config.Dimension
}

// Count returns the number of chunks currently stored.
func (s *ChromemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Insert adds pre-embedded chunks, all-or-nothing.
func (s *ChromemStore) Insert(ctx context.Context, chunks []Chunk) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Insert")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if len(chunks) == 0 {
		return nil
	}

	for i, c := range chunks {
		if err := validateEmbedding(c.Embedding, s.config.Dimension); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("chunk %d (%s): %w", i, c.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, exists := s.records[c.ID]; exists {
			return fmt.Errorf("chunk %s already stored", c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("chunk %s duplicated in batch", c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				"document_id": c.DocumentID,
				"chunk_index": strconv.Itoa(c.Metadata.ChunkIndex),
			},
		}
	}
	// Concurrency 1: embeddings are already computed, nothing to parallelize.
	if err := s.col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	for _, c := range chunks {
		emb := make([]float32, len(c.Embedding))
		copy(emb, c.Embedding)
		c.Embedding = emb
		s.records[c.ID] = c
		s.seqs[c.ID] = s.nextSeq
		s.order = append(s.order, c.ID)
		s.nextSeq++
	}

	s.logger.Debug("inserted chunks into chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// Search queries chromem and re-sorts ties by insertion order.
func (s *ChromemStore) Search(ctx context.Context, query []float32, k int) ([]RetrievedChunk, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if err := validateEmbedding(query, s.config.Dimension); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query vector: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem requires nResults <= document count.
	n := k
	if count := len(s.order); count == 0 {
		return []RetrievedChunk{}, nil
	} else if n > count {
		n = count
	}

	hits, err := s.col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	results := make([]RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		rec, ok := s.records[h.ID]
		if !ok {
			continue
		}
		results = append(results, RetrievedChunk{
			Chunk:      rec,
			Similarity: h.Similarity,
			Position:   s.seqs[h.ID],
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Position < results[j].Position
	})

	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// DeleteDocument removes all chunks belonging to the document.
func (s *ChromemStore) DeleteDocument(ctx context.Context, documentID string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID))

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, rec := range s.records {
		if rec.DocumentID == documentID {
			removed = append(removed, id)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	if err := s.col.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}

	for _, id := range removed {
		delete(s.records, id)
		delete(s.seqs, id)
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.records[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept

	s.logger.Debug("deleted document chunks from chromem",
		zap.String("document_id", documentID),
		zap.Int("removed", len(removed)),
	)
	return nil
}

// ChunkByID returns a single chunk by ID.
func (s *ChromemStore) ChunkByID(ctx context.Context, id string) (Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Chunk{}, fmt.Errorf("%w: %s", ErrChunkNotFound, id)
	}
	return rec, nil
}

// Chunks returns a snapshot of all chunks in insertion order.
func (s *ChromemStore) Chunks(ctx context.Context) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chunk, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out, nil
}

// Save persists the library record next to the chromem collection name.
func (s *ChromemStore) Save(ctx context.Context) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Save")
	defer span.End()

	if s.config.Path == "" {
		return nil
	}

	s.mu.RLock()
	record := persistedRecord{
		SchemaVersion: persistSchemaVersion,
		EmbeddingDim:  s.config.Dimension,
		Chunks:        make([]Chunk, 0, len(s.order)),
	}
	for _, id := range s.order {
		record.Chunks = append(record.Chunks, s.records[id])
	}
	s.mu.RUnlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.config.Path), 0700); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	tmp := s.config.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	if err := os.Rename(tmp, s.config.Path); err != nil {
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

// Load restores the library record and rebuilds the chromem index.
func (s *ChromemStore) Load(ctx context.Context) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Load")
	defer span.End()

	if s.config.Path == "" {
		return nil
	}
	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading store file: %w", err)
	}

	var record persistedRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("decoding store file: %w", err)
	}
	if record.EmbeddingDim != 0 && record.EmbeddingDim != s.config.Dimension {
		return fmt.Errorf("%w: persisted dimension %d, store configured for %d",
			ErrDimensionMismatch, record.EmbeddingDim, s.config.Dimension)
	}

	s.mu.Lock()
	// Rebuild the collection from scratch so stale documents from a
	// previous state cannot survive a reload.
	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("resetting collection: %w", err)
	}
	col, err := s.db.GetOrCreateCollection(s.config.Collection, nil, precomputedEmbeddingFunc())
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("recreating collection: %w", err)
	}
	s.col = col
	s.order = nil
	s.records = make(map[string]Chunk, len(record.Chunks))
	s.seqs = make(map[string]int, len(record.Chunks))
	s.nextSeq = 0
	s.mu.Unlock()

	return s.Insert(ctx, record.Chunks)
}

// Close releases the chromem resources.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.seqs = nil
	s.order = nil
	return nil
}

// validCollectionName reports whether a collection name is usable with
// chromem (letters, digits, underscores and hyphens).
func validCollectionName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range strings.ToLower(name) {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
		if !ok {
			return false
		}
	}
	return true
}
