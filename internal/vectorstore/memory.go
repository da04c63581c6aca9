package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// memoryTracer for OpenTelemetry instrumentation.
var memoryTracer = otel.Tracer("alcove.vectorstore.memory")

// persistSchemaVersion is written into every persisted library record.
// Decoding ignores unknown fields, so newer minor versions stay readable.
const persistSchemaVersion = 1

// MemoryConfig holds configuration for the in-memory store.
type MemoryConfig struct {
	// Dimension is the embedding dimension every chunk must match.
	Dimension int

	// Path is the JSON persistence file. Empty disables persistence;
	// Save becomes a no-op and Load starts empty.
	Path string
}

// Validate validates the configuration.
func (c *MemoryConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// memoryEntry pairs a chunk with its cached norm and insertion sequence.
type memoryEntry struct {
	chunk Chunk
	norm  float64
	seq   int
}

// MemoryStore implements Store with an in-memory slice and cosine scan.
//
// Vector norms are cached at insert time, so a search is a single
// O(N*d) pass over the stored vectors. Persistence is a single JSON
// record per library, written atomically.
type MemoryStore struct {
	config MemoryConfig
	logger *zap.Logger

	mu      sync.RWMutex
	entries []memoryEntry
	byID    map[string]int // chunk ID -> index into entries
	nextSeq int
}

// NewMemoryStore creates a MemoryStore with the given configuration.
func NewMemoryStore(config MemoryConfig, logger *zap.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &MemoryStore{
		config: config,
		logger: logger,
		byID:   make(map[string]int),
	}, nil
}

// Dimension returns the configured embedding dimension.
func (s *MemoryStore) Dimension() int {
	return s.config.Dimension
}

// Count returns the number of chunks currently stored.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Insert adds pre-embedded chunks, all-or-nothing.
func (s *MemoryStore) Insert(ctx context.Context, chunks []Chunk) error {
	ctx, span := memoryTracer.Start(ctx, "MemoryStore.Insert")
	defer span.End()
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))

	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Validate the whole batch before touching store state, so a failed
	// insert leaves the chunk count unchanged.
	for i, c := range chunks {
		if err := validateEmbedding(c.Embedding, s.config.Dimension); err != nil {
			span.RecordError(err)
			return fmt.Errorf("chunk %d (%s): %w", i, c.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, exists := s.byID[c.ID]; exists {
			return fmt.Errorf("chunk %s already stored", c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("chunk %s duplicated in batch", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	for _, c := range chunks {
		emb := make([]float32, len(c.Embedding))
		copy(emb, c.Embedding)
		c.Embedding = emb

		s.byID[c.ID] = len(s.entries)
		s.entries = append(s.entries, memoryEntry{
			chunk: c,
			norm:  vectorNorm(emb),
			seq:   s.nextSeq,
		})
		s.nextSeq++
	}

	s.logger.Debug("inserted chunks",
		zap.Int("count", len(chunks)),
		zap.Int("total", len(s.entries)),
	)
	return nil
}

// Search scans all vectors and returns the top k by cosine similarity.
func (s *MemoryStore) Search(ctx context.Context, query []float32, k int) ([]RetrievedChunk, error) {
	ctx, span := memoryTracer.Start(ctx, "MemoryStore.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if err := validateEmbedding(query, s.config.Dimension); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query vector: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qnorm := vectorNorm(query)

	s.mu.RLock()
	results := make([]RetrievedChunk, 0, len(s.entries))
	for _, e := range s.entries {
		var sim float32
		if qnorm != 0 && e.norm != 0 {
			var dot float64
			for i, x := range e.chunk.Embedding {
				dot += float64(x) * float64(query[i])
			}
			f := dot / (qnorm * e.norm)
			if f > 1 {
				f = 1
			} else if f < -1 {
				f = -1
			}
			sim = float32(f)
		}
		results = append(results, RetrievedChunk{
			Chunk:      e.chunk,
			Similarity: sim,
			Position:   e.seq,
		})
	}
	s.mu.RUnlock()

	// Entries are already in insertion order, so a stable sort by
	// similarity keeps ties ordered by sequence.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if k < len(results) {
		results = results[:k]
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// DeleteDocument removes all chunks belonging to the document.
func (s *MemoryStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, span := memoryTracer.Start(ctx, "MemoryStore.DeleteDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", documentID))

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.chunk.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	s.byID = make(map[string]int, len(s.entries))
	for i, e := range s.entries {
		s.byID[e.chunk.ID] = i
	}

	if removed > 0 {
		s.logger.Debug("deleted document chunks",
			zap.String("document_id", documentID),
			zap.Int("removed", removed),
		)
	}
	return nil
}

// ChunkByID returns a single chunk by ID.
func (s *MemoryStore) ChunkByID(ctx context.Context, id string) (Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return Chunk{}, fmt.Errorf("%w: %s", ErrChunkNotFound, id)
	}
	return s.entries[idx].chunk, nil
}

// Chunks returns a snapshot of all chunks in insertion order.
func (s *MemoryStore) Chunks(ctx context.Context) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chunk, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.chunk
	}
	return out, nil
}

// persistedRecord is the on-disk layout for one library's store.
type persistedRecord struct {
	SchemaVersion int     `json:"schema_version"`
	EmbeddingDim  int     `json:"embedding_dim"`
	Chunks        []Chunk `json:"chunks"`
}

// Save writes the full chunk set as a single JSON record, atomically.
func (s *MemoryStore) Save(ctx context.Context) error {
	_, span := memoryTracer.Start(ctx, "MemoryStore.Save")
	defer span.End()

	if s.config.Path == "" {
		return nil
	}

	s.mu.RLock()
	record := persistedRecord{
		SchemaVersion: persistSchemaVersion,
		EmbeddingDim:  s.config.Dimension,
		Chunks:        make([]Chunk, len(s.entries)),
	}
	for i, e := range s.entries {
		record.Chunks[i] = e.chunk
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

	s.logger.Debug("saved store", zap.String("path", s.config.Path), zap.Int("chunks", len(record.Chunks)))
	return nil
}

// Load restores a previously saved chunk set. A missing file leaves the
// store empty. Unknown JSON fields are ignored, so records written by
// newer minor versions remain readable.
func (s *MemoryStore) Load(ctx context.Context) error {
	_, span := memoryTracer.Start(ctx, "MemoryStore.Load")
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
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
	s.byID = make(map[string]int, len(record.Chunks))
	s.nextSeq = 0
	for _, c := range record.Chunks {
		if err := validateEmbedding(c.Embedding, s.config.Dimension); err != nil {
			return fmt.Errorf("persisted chunk %s: %w", c.ID, err)
		}
		s.byID[c.ID] = len(s.entries)
		s.entries = append(s.entries, memoryEntry{
			chunk: c,
			norm:  vectorNorm(c.Embedding),
			seq:   s.nextSeq,
		})
		s.nextSeq++
	}

	s.logger.Info("loaded store",
		zap.String("path", s.config.Path),
		zap.Int("chunks", len(s.entries)),
	)
	return nil
}

// Close releases resources. MemoryStore holds none beyond its slices.
func (s *MemoryStore) Close() error {
	return nil
}
