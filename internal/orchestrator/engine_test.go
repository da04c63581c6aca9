package orchestrator_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/alcove/internal/chunker"
	"github.com/fyrsmithlabs/alcove/internal/embeddings"
	"github.com/fyrsmithlabs/alcove/internal/generation"
	"github.com/fyrsmithlabs/alcove/internal/library"
	"github.com/fyrsmithlabs/alcove/internal/orchestrator"
	"github.com/fyrsmithlabs/alcove/internal/search"
)

const testDim = 8

// hashProvider produces deterministic embeddings from token lengths, so
// similar texts get similar vectors without a real model. Texts
// containing "unembeddable" fail, and batch calls can be forced to fail
// to exercise the per-chunk fallback.
type hashProvider struct {
	failBatch bool
	vectorDim int // overrides the emitted vector length when positive
}

func (p *hashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embeddings.ErrEmptyInput
	}
	if strings.Contains(text, "unembeddable") {
		return nil, fmt.Errorf("%w: token rejected", embeddings.ErrEmbeddingFailed)
	}
	dim := testDim
	if p.vectorDim > 0 {
		dim = p.vectorDim
	}
	vec := make([]float32, dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		vec[len(tok)%dim]++
	}
	return vec, nil
}

func (p *hashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.failBatch {
		return nil, embeddings.ErrProviderUnavailable
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *hashProvider) Dimension() int                 { return testDim }
func (p *hashProvider) Available(context.Context) bool { return true }
func (p *hashProvider) Close() error                   { return nil }

// recordingBackend captures the context it was asked to answer over.
type recordingBackend struct {
	calls    int
	lastCtx  string
	lastOpts generation.Options
}

func (b *recordingBackend) Generate(_ context.Context, _ string, contextText string, opts generation.Options) (string, error) {
	b.calls++
	b.lastCtx = contextText
	b.lastOpts = opts
	return "generated answer", nil
}

func (b *recordingBackend) Close() error { return nil }

func newTestEngine(t *testing.T, provider embeddings.Provider, backend generation.Backend) *orchestrator.Engine {
	t.Helper()
	router := library.NewRouter(library.RouterConfig{DataDir: t.TempDir()}, nil)
	cfg := orchestrator.Config{
		Chunking:  chunker.Options{TargetWords: 20, OverlapWords: 4},
		Retrieval: search.Config{TopK: 5},
	}
	return orchestrator.NewEngine(router, provider, backend, nil, cfg, nil)
}

func createLibrary(t *testing.T, e *orchestrator.Engine, id string, policy library.Policy) {
	t.Helper()
	_, err := e.CreateLibrary(context.Background(), library.Library{
		ID:           id,
		Name:         "Library " + id,
		EmbeddingDim: testDim,
		Policy:       policy,
	})
	require.NoError(t, err)
}

func ingestText(t *testing.T, e *orchestrator.Engine, libID, docID, name, text string) orchestrator.IngestReport {
	t.Helper()
	report, err := e.Ingest(context.Background(), orchestrator.IngestRequest{
		LibraryID:    libID,
		DocumentID:   docID,
		DocumentName: name,
		Text:         text,
	})
	require.NoError(t, err)
	return report
}

func sentences(topic string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "The %s system handles %s processing in stage %d. ", topic, topic, i)
	}
	return b.String()
}

func TestEngine_IngestAndEnumerate(t *testing.T) {
	e := newTestEngine(t, &hashProvider{}, nil)
	createLibrary(t, e, "lib1", library.Policy{})

	report := ingestText(t, e, "lib1", "", "notes.md", sentences("billing", 12))
	assert.NotEmpty(t, report.DocumentID)
	assert.Positive(t, report.ChunksCreated)
	assert.Empty(t, report.Failures)

	chunks, err := e.Enumerate(context.Background(), "lib1")
	require.NoError(t, err)
	assert.Len(t, chunks, report.ChunksCreated)
	for _, c := range chunks {
		assert.Equal(t, report.DocumentID, c.DocumentID)
		assert.Equal(t, "notes.md", c.Metadata.Source)
		assert.NotEmpty(t, c.ID)
		assert.Len(t, c.Embedding, testDim)
	}
}

func TestEngine_IngestEmptyAndSymbolOnly(t *testing.T) {
	e := newTestEngine(t, &hashProvider{}, nil)
	createLibrary(t, e, "lib1", library.Policy{})
	ctx := context.Background()

	_, err := e.Ingest(ctx, orchestrator.IngestRequest{LibraryID: "lib1", Text: "   "})
	assert.ErrorIs(t, err, orchestrator.ErrEmptyDocument)

	report, err := e.Ingest(ctx, orchestrator.IngestRequest{LibraryID: "lib1", Text: "--- *** !!!"})
	require.NoError(t, err)
	assert.True(t, report.NoTextContent)
	assert.Zero(t, report.ChunksCreated)
}

func TestEngine_IngestPartialEmbeddingFailure(t *testing.T) {
	e := newTestEngine(t, &hashProvider{failBatch: true}, nil)
	createLibrary(t, e, "lib1", library.Policy{})

	// Two paragraphs; the second cannot be embedded. The batch call
	// fails, the per-chunk retry salvages the first paragraph and
	// reports the second.
	text := sentences("inventory", 4) + "\n\n" +
		"This paragraph is unembeddable and stays out of the store entirely today."
	report := ingestText(t, e, "lib1", "", "mixed.txt", text)

	assert.Positive(t, report.ChunksCreated)
	require.NotEmpty(t, report.Failures)
	assert.Contains(t, report.Failures[0].Reason, "token rejected")

	chunks, err := e.Enumerate(context.Background(), "lib1")
	require.NoError(t, err)
	assert.Len(t, chunks, report.ChunksCreated)
	for _, c := range chunks {
		assert.NotContains(t, c.Content, "unembeddable")
	}
}

func TestEngine_ReingestReplacesDocument(t *testing.T) {
	e := newTestEngine(t, &hashProvider{}, nil)
	createLibrary(t, e, "lib1", library.Policy{})

	first := ingestText(t, e, "lib1", "doc1", "v1.md", sentences("payments", 10))
	require.Positive(t, first.ChunksCreated)

	second := ingestText(t, e, "lib1", "doc1", "v2.md", sentences("payments", 3))
	chunks, err := e.Enumerate(context.Background(), "lib1")
	require.NoError(t, err)
	assert.Len(t, chunks, second.ChunksCreated)
	for _, c := range chunks {
		assert.Equal(t, "v2.md", c.Metadata.Source)
	}
}

func TestEngine_FailedReingestKeepsPreviousVersion(t *testing.T) {
	provider := &hashProvider{}
	e := newTestEngine(t, provider, nil)
	createLibrary(t, e, "lib1", library.Policy{})

	ingestText(t, e, "lib1", "doc1", "guide.md", sentences("payments", 10))
	before, err := e.Enumerate(context.Background(), "lib1")
	require.NoError(t, err)
	require.NotEmpty(t, before)

	// Wrong-dimension vectors make the store reject the new batch after
	// the old version has already been pulled for replacement.
	provider.vectorDim = 3
	_, err = e.Ingest(context.Background(), orchestrator.IngestRequest{
		LibraryID:  "lib1",
		DocumentID: "doc1",
		Text:       sentences("payments", 10),
	})
	require.Error(t, err)

	after, err := e.Enumerate(context.Background(), "lib1")
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i, c := range after {
		assert.Equal(t, before[i].ID, c.ID)
	}

	// The restored version is still retrievable on both sides.
	provider.vectorDim = 0
	result, err := e.Query(context.Background(), orchestrator.QueryRequest{
		LibraryID: "lib1",
		Query:     "payments processing",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Sources)
	assert.Equal(t, "doc1", result.Sources[0].DocumentID)
}

func TestEngine_QueryAnswersWithSources(t *testing.T) {
	backend := &recordingBackend{}
	e := newTestEngine(t, &hashProvider{}, backend)
	createLibrary(t, e, "lib1", library.Policy{})

	ingestText(t, e, "lib1", "doc1", "handbook.md", sentences("deployment", 10))

	result, err := e.Query(context.Background(), orchestrator.QueryRequest{
		LibraryID: "lib1",
		Query:     "deployment processing stage",
	})
	require.NoError(t, err)
	assert.False(t, result.Declined)
	assert.Equal(t, "generated answer", result.Answer)
	assert.Equal(t, 1, backend.calls)
	assert.Contains(t, backend.lastCtx, "[source: handbook.md]")
	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "doc1", result.Sources[0].DocumentID)
	assert.Equal(t, "handbook.md", result.Sources[0].Document)
}

func TestEngine_StrictModeDeclineSkipsBackend(t *testing.T) {
	backend := &recordingBackend{}
	e := newTestEngine(t, &hashProvider{}, backend)
	createLibrary(t, e, "lib1", library.Policy{
		StrictMode:          true,
		SimilarityThreshold: 0.999,
		MinSupportingChunks: 3,
	})

	ingestText(t, e, "lib1", "doc1", "handbook.md", sentences("archiving", 10))

	result, err := e.Query(context.Background(), orchestrator.QueryRequest{
		LibraryID: "lib1",
		Query:     "completely unrelated question about gardening",
	})
	require.NoError(t, err)
	assert.True(t, result.Declined)
	assert.Empty(t, result.Answer)
	assert.NotEmpty(t, result.DeclineReason)
	assert.Zero(t, backend.calls)
	// The decline still cites the closest available chunks.
	assert.NotEmpty(t, result.Sources)
}

func TestEngine_StrictModeCapsTemperature(t *testing.T) {
	backend := &recordingBackend{}
	e := newTestEngine(t, &hashProvider{}, backend)
	createLibrary(t, e, "lib1", library.Policy{
		StrictMode:          true,
		SimilarityThreshold: 0.01,
		MinSupportingChunks: 1,
	})

	ingestText(t, e, "lib1", "doc1", "guide.md", sentences("indexing", 10))

	_, err := e.Query(context.Background(), orchestrator.QueryRequest{
		LibraryID:   "lib1",
		Query:       "indexing processing stage",
		Temperature: 0.9,
	})
	require.NoError(t, err)
	require.Equal(t, 1, backend.calls)
	assert.InDelta(t, library.DefaultStrictTemperatureCap, backend.lastOpts.Temperature, 1e-9)
}

func TestEngine_QueryWithoutBackendReturnsContext(t *testing.T) {
	e := newTestEngine(t, &hashProvider{}, nil)
	createLibrary(t, e, "lib1", library.Policy{})
	ingestText(t, e, "lib1", "doc1", "spec.txt", sentences("routing", 10))

	result, err := e.Query(context.Background(), orchestrator.QueryRequest{
		LibraryID: "lib1",
		Query:     "routing processing stage",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Answer)
	assert.NotEmpty(t, result.Context)
	assert.NotEmpty(t, result.Sources)
}

func TestEngine_ActiveLibraryFallback(t *testing.T) {
	e := newTestEngine(t, &hashProvider{}, nil)
	ctx := context.Background()

	_, err := e.Query(ctx, orchestrator.QueryRequest{Query: "anything"})
	assert.ErrorIs(t, err, orchestrator.ErrNoLibrary)

	createLibrary(t, e, "lib1", library.Policy{})
	require.NoError(t, e.Router().SetActive("lib1"))
	ingestText(t, e, "", "doc1", "active.md", sentences("caching", 8))

	result, err := e.Query(ctx, orchestrator.QueryRequest{Query: "caching processing stage"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Sources)
}

func TestEngine_DeleteDocumentRemovesFromBothIndexes(t *testing.T) {
	e := newTestEngine(t, &hashProvider{}, nil)
	createLibrary(t, e, "lib1", library.Policy{})
	ctx := context.Background()

	ingestText(t, e, "lib1", "keep", "keep.md", sentences("metrics", 8))
	ingestText(t, e, "lib1", "gone", "gone.md", sentences("alerting", 8))

	require.NoError(t, e.DeleteDocument(ctx, "lib1", "gone"))

	chunks, err := e.Enumerate(ctx, "lib1")
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Equal(t, "keep", c.DocumentID)
	}

	// Lexical hits for the deleted document are gone too.
	result, err := e.Query(ctx, orchestrator.QueryRequest{LibraryID: "lib1", Query: "alerting"})
	require.NoError(t, err)
	for _, s := range result.Sources {
		assert.NotEqual(t, "gone", s.DocumentID)
	}
}

func TestEngine_DropLibrary(t *testing.T) {
	e := newTestEngine(t, &hashProvider{}, nil)
	createLibrary(t, e, "lib1", library.Policy{})
	ingestText(t, e, "lib1", "doc1", "d.md", sentences("queues", 6))

	require.NoError(t, e.DropLibrary(context.Background(), "lib1"))
	_, err := e.Enumerate(context.Background(), "lib1")
	assert.ErrorIs(t, err, library.ErrNotFound)
}
