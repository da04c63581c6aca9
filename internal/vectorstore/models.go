package vectorstore

// ChunkMetadata carries positional and lexical metadata for a chunk.
type ChunkMetadata struct {
	// ChunkIndex is the zero-based position of the chunk within its document.
	ChunkIndex int `json:"chunk_index"`

	// StartOffset and EndOffset are byte offsets of the chunk's own text
	// (excluding the leading overlap) in the original extracted document.
	StartOffset int `json:"start_offset"`
	EndOffset   int `json:"end_offset"`

	// Keywords are the salient content words extracted at chunking time.
	Keywords []string `json:"keywords,omitempty"`

	// Language is the detected dominant language ("en", "de", ... or "und").
	Language string `json:"language,omitempty"`

	// Page is the source page number when the extractor provides one (1-based, 0 = unknown).
	Page int `json:"page,omitempty"`

	// Source is the human-readable name of the owning document, carried
	// for citation.
	Source string `json:"source,omitempty"`
}

// Chunk is the unit of embedding and retrieval. Once inserted into a store
// a chunk is immutable; it is owned exclusively by its library's store.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	Content    string        `json:"content"`
	Embedding  []float32     `json:"embedding"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// RetrievedChunk is a per-query result. It is never persisted.
type RetrievedChunk struct {
	Chunk

	// Similarity is the cosine similarity to the query vector, in [-1, 1].
	Similarity float32

	// LexicalScore is the BM25 score contributed by the lexical index
	// (zero when the chunk was found by vector search only).
	LexicalScore float64

	// FusedScore and FusedRank are set by reciprocal rank fusion.
	FusedScore float64
	FusedRank  int

	// Position is the chunk's insertion sequence in its store. Used as the
	// final tie-breaker so equal-score orderings stay stable.
	Position int

	// SourceDocument is the human-readable name of the owning document,
	// filled in by the orchestrator for citation.
	SourceDocument string
}
