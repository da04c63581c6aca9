package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/alcove/internal/chunker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paragraph builds a paragraph of n distinct words ending in a period.
func paragraph(prefix string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(words, " ") + "."
}

func TestChunk_ThreeParagraphOverlapScenario(t *testing.T) {
	// 3 paragraphs of 300 words each with target 400: each paragraph fits
	// under the target but no two fit together, so 3 chunks result.
	text := paragraph("alpha", 300) + "\n\n" + paragraph("beta", 300) + "\n\n" + paragraph("gamma", 300)

	c := chunker.New(chunker.Options{TargetWords: 400, OverlapWords: 50})
	res := c.Chunk(text)

	require.Len(t, res.Segments, 3)
	assert.False(t, res.NoTextContent)

	// Chunk 2 starts with the last 50 words of chunk 1's own text.
	first := strings.Fields(res.Segments[0].Content)
	second := strings.Fields(res.Segments[1].Content)
	require.Greater(t, len(second), 50)
	assert.Equal(t, first[len(first)-50:], second[:50])

	// Offsets address the chunk's own text, not the overlap.
	seg := res.Segments[1]
	assert.Equal(t, paragraph("beta", 300), text[seg.StartOffset:seg.EndOffset])
}

func TestChunk_Degenerates(t *testing.T) {
	c := chunker.New(chunker.Options{})

	t.Run("empty input", func(t *testing.T) {
		res := c.Chunk("")
		assert.Empty(t, res.Segments)
		assert.False(t, res.NoTextContent)
	})

	t.Run("whitespace only", func(t *testing.T) {
		res := c.Chunk("  \n\t \n ")
		assert.Empty(t, res.Segments)
		assert.True(t, res.NoTextContent)
	})

	t.Run("symbols only", func(t *testing.T) {
		res := c.Chunk("--- *** !!! ###")
		assert.Empty(t, res.Segments)
		assert.True(t, res.NoTextContent)
	})

	t.Run("short text single chunk", func(t *testing.T) {
		res := c.Chunk("A short note about retrieval quality.")
		require.Len(t, res.Segments, 1)
		assert.Equal(t, 0, res.Segments[0].Index)
		assert.Equal(t, "A short note about retrieval quality.", res.Segments[0].Content)
	})
}

func TestChunk_Deterministic(t *testing.T) {
	text := paragraph("word", 250) + "\n\n" + paragraph("term", 250)
	c := chunker.New(chunker.Options{TargetWords: 120, OverlapWords: 20})

	a := c.Chunk(text)
	b := c.Chunk(text)
	require.Equal(t, len(a.Segments), len(b.Segments))
	for i := range a.Segments {
		assert.Equal(t, a.Segments[i], b.Segments[i])
	}
}

func TestChunk_OversizedParagraphSplitsAtSentences(t *testing.T) {
	// One paragraph of 30 sentences, 20 words each (600 words total).
	var sb strings.Builder
	for s := 0; s < 30; s++ {
		words := make([]string, 20)
		for i := range words {
			words[i] = fmt.Sprintf("s%dw%d", s, i)
		}
		sb.WriteString(strings.Join(words, " "))
		sb.WriteString(". ")
	}
	c := chunker.New(chunker.Options{TargetWords: 100, OverlapWords: 0})
	res := c.Chunk(sb.String())

	require.Greater(t, len(res.Segments), 1)
	for _, seg := range res.Segments {
		// A segment may exceed the target by at most one sentence (20 words).
		assert.LessOrEqual(t, seg.WordCount, 120, "segment %d", seg.Index)
	}

	// Segments cover the input in order without losing sentences.
	var all []string
	for _, seg := range res.Segments {
		all = append(all, strings.Fields(seg.Content)...)
	}
	assert.Len(t, all, 600)
}

func TestChunk_SegmentMetadata(t *testing.T) {
	text := "Vector databases store embeddings. Embeddings capture semantic meaning of documents. " +
		"Databases index embeddings for retrieval."
	c := chunker.New(chunker.Options{})
	res := c.Chunk(text)

	require.Len(t, res.Segments, 1)
	seg := res.Segments[0]
	assert.Equal(t, "en", seg.Language)
	assert.Contains(t, seg.Keywords, "embeddings")
	assert.NotContains(t, seg.Keywords, "the")
	assert.Equal(t, text, seg.Content)
}

func TestExtractKeywords(t *testing.T) {
	text := "The retrieval engine ranks chunks. The engine fuses vector and lexical ranks. Engine quality matters."
	kws := chunker.ExtractKeywords(text, 3)
	require.NotEmpty(t, kws)
	// "engine" appears three times and must rank first.
	assert.Equal(t, "engine", kws[0])
	assert.LessOrEqual(t, len(kws), 3)

	assert.Empty(t, chunker.ExtractKeywords("", 5))
	assert.Empty(t, chunker.ExtractKeywords("of the and", 5))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name, text, want string
	}{
		{"english", "The system stores the documents and answers questions with the retrieved context.", "en"},
		{"german", "Die Dokumente werden gespeichert und das System ist für die Suche nicht langsam.", "de"},
		{"french", "Le moteur est dans une bibliothèque et les documents sont pour la recherche.", "fr"},
		{"spanish", "El sistema guarda los documentos para la búsqueda y es una herramienta.", "es"},
		{"russian", "Система хранит документы и отвечает на вопросы.", "ru"},
		{"japanese", "このシステムは文書を保存して質問に答えます。", "ja"},
		{"korean", "이 시스템은 문서를 저장하고 질문에 답합니다.", "ko"},
		{"undetermined", "zzz qqq xxx", "und"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunker.DetectLanguage(tt.text))
		})
	}
}
