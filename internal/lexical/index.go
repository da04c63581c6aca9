// Package lexical provides an incremental BM25 index over chunk text.
//
// The index is maintained alongside a library's vector store and scores
// candidates for hybrid search. Tokenization is identical at indexing and
// query time: lowercase, punctuation stripped, whitespace split.
package lexical

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// BM25 parameters. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	defaultK1 = 1.2
	defaultB  = 0.75
)

// Hit is one scored chunk from TopK. Position is the chunk's insertion
// sequence, carried so downstream tie-breaks stay deterministic.
type Hit struct {
	ChunkID  string
	Score    float64
	Position int
}

// Index is a thread-safe, incrementally updated BM25 index.
type Index struct {
	k1 float64
	b  float64

	mu        sync.RWMutex
	postings  map[string]map[string]int // token -> chunkID -> term frequency
	docTokens map[string]map[string]int // chunkID -> token -> term frequency
	docLen    map[string]int            // chunkID -> token count
	seq       map[string]int            // chunkID -> insertion sequence
	nextSeq   int
	totalLen  int
}

// NewIndex creates an empty index with default BM25 parameters.
func NewIndex() *Index {
	return &Index{
		k1:        defaultK1,
		b:         defaultB,
		postings:  make(map[string]map[string]int),
		docTokens: make(map[string]map[string]int),
		docLen:    make(map[string]int),
		seq:       make(map[string]int),
	}
}

// Tokenize lowercases, strips punctuation and splits on whitespace.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return fields
}

// Add indexes a chunk's text. Re-adding an existing chunk replaces its
// previous postings.
func (x *Index) Add(chunkID, text string) {
	tokens := Tokenize(text)

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.docTokens[chunkID]; exists {
		x.removeLocked(chunkID)
	}

	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	for tok, n := range tf {
		posting := x.postings[tok]
		if posting == nil {
			posting = make(map[string]int)
			x.postings[tok] = posting
		}
		posting[chunkID] = n
	}
	x.docTokens[chunkID] = tf
	x.docLen[chunkID] = len(tokens)
	x.totalLen += len(tokens)
	if _, ok := x.seq[chunkID]; !ok {
		x.seq[chunkID] = x.nextSeq
		x.nextSeq++
	}
}

// Remove drops a chunk from the index. No-op if absent.
func (x *Index) Remove(chunkID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(chunkID)
	delete(x.seq, chunkID)
}

func (x *Index) removeLocked(chunkID string) {
	tf, ok := x.docTokens[chunkID]
	if !ok {
		return
	}
	for tok := range tf {
		posting := x.postings[tok]
		delete(posting, chunkID)
		if len(posting) == 0 {
			delete(x.postings, tok)
		}
	}
	x.totalLen -= x.docLen[chunkID]
	delete(x.docTokens, chunkID)
	delete(x.docLen, chunkID)
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docTokens)
}

// Score computes the BM25 score of one chunk against the query tokens.
// Returns 0 for unknown chunks.
func (x *Index) Score(queryTokens []string, chunkID string) float64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.scoreLocked(queryTokens, chunkID)
}

func (x *Index) scoreLocked(queryTokens []string, chunkID string) float64 {
	dl, ok := x.docLen[chunkID]
	if !ok || len(x.docTokens) == 0 {
		return 0
	}
	n := float64(len(x.docTokens))
	avgdl := float64(x.totalLen) / n

	var score float64
	for _, tok := range queryTokens {
		posting := x.postings[tok]
		tf := float64(posting[chunkID])
		if tf == 0 {
			continue
		}
		df := float64(len(posting))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		norm := x.k1 * (1 - x.b + x.b*float64(dl)/avgdl)
		score += idf * (tf * (x.k1 + 1)) / (tf + norm)
	}
	return score
}

// TopK returns up to k chunks with a positive BM25 score, ordered by
// score descending; ties break by insertion order.
func (x *Index) TopK(queryTokens []string, k int) []Hit {
	if k <= 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	// Candidates are chunks containing at least one query token.
	candidates := make(map[string]struct{})
	for _, tok := range queryTokens {
		for id := range x.postings[tok] {
			candidates[id] = struct{}{}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	hits := make([]Hit, 0, len(candidates))
	for id := range candidates {
		if s := x.scoreLocked(queryTokens, id); s > 0 {
			hits = append(hits, Hit{ChunkID: id, Score: s, Position: x.seq[id]})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}
