package library_test

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/alcove/internal/library"
	"github.com/fyrsmithlabs/alcove/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *library.Router {
	t.Helper()
	return library.NewRouter(library.RouterConfig{DataDir: t.TempDir()}, nil)
}

func createTestLibrary(t *testing.T, r *library.Router, id string, dim int) *library.Library {
	t.Helper()
	lib, err := r.Create(context.Background(), library.Library{
		ID:           id,
		Name:         "Library " + id,
		ProviderID:   "http",
		EmbeddingDim: dim,
	})
	require.NoError(t, err)
	return lib
}

func TestRouter_CreateAppliesPolicyDefaults(t *testing.T) {
	r := newTestRouter(t)
	lib := createTestLibrary(t, r, "med", 384)

	assert.InDelta(t, float64(float32(library.DefaultSimilarityThreshold)), float64(lib.Policy.SimilarityThreshold), 1e-9)
	assert.Equal(t, library.DefaultMinSupportingChunks, lib.Policy.MinSupportingChunks)
	assert.InDelta(t, library.DefaultMMRLambda, lib.Policy.MMRLambda, 1e-9)
	assert.False(t, lib.Policy.StrictMode)
}

func TestRouter_DuplicateCreateRejected(t *testing.T) {
	r := newTestRouter(t)
	createTestLibrary(t, r, "dup", 8)

	_, err := r.Create(context.Background(), library.Library{ID: "dup", EmbeddingDim: 8})
	assert.ErrorIs(t, err, library.ErrExists)
}

func TestRouter_StoreIdentityStable(t *testing.T) {
	r := newTestRouter(t)
	createTestLibrary(t, r, "a", 4)
	createTestLibrary(t, r, "b", 4)
	ctx := context.Background()

	s1, err := r.StoreFor(ctx, "a")
	require.NoError(t, err)
	s2, err := r.StoreFor(ctx, "a")
	require.NoError(t, err)
	other, err := r.StoreFor(ctx, "b")
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.NotSame(t, s1, other)

	l1, err := r.LexiconFor(ctx, "a")
	require.NoError(t, err)
	l2, err := r.LexiconFor(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, l1, l2)
}

func TestRouter_UnknownLibrary(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()

	_, err := r.StoreFor(ctx, "ghost")
	assert.ErrorIs(t, err, library.ErrNotFound)
	_, err = r.LexiconFor(ctx, "ghost")
	assert.ErrorIs(t, err, library.ErrNotFound)
	_, err = r.Get("ghost")
	assert.ErrorIs(t, err, library.ErrNotFound)
	assert.ErrorIs(t, r.Drop(ctx, "ghost"), library.ErrNotFound)
}

func TestRouter_SetDimensionRefusedOnNonEmptyStore(t *testing.T) {
	r := newTestRouter(t)
	createTestLibrary(t, r, "locked", 2)
	ctx := context.Background()

	store, err := r.StoreFor(ctx, "locked")
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, []vectorstore.Chunk{{
		ID:         "c1",
		DocumentID: "doc1",
		Content:    "locked content",
		Embedding:  []float32{1, 0},
	}}))

	err = r.SetDimension(ctx, "locked", 4)
	require.ErrorIs(t, err, library.ErrDimensionLocked)

	// Library and data unchanged.
	lib, err := r.Get("locked")
	require.NoError(t, err)
	assert.Equal(t, 2, lib.EmbeddingDim)
	assert.Equal(t, 1, store.Count())
}

func TestRouter_SetDimensionAllowedOnEmptyStore(t *testing.T) {
	r := newTestRouter(t)
	createTestLibrary(t, r, "fresh", 2)
	ctx := context.Background()

	require.NoError(t, r.SetDimension(ctx, "fresh", 8))
	lib, err := r.Get("fresh")
	require.NoError(t, err)
	assert.Equal(t, 8, lib.EmbeddingDim)

	store, err := r.StoreFor(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 8, store.Dimension())
}

func TestRouter_DropDiscardsState(t *testing.T) {
	r := newTestRouter(t)
	createTestLibrary(t, r, "gone", 2)
	ctx := context.Background()

	require.NoError(t, r.SetActive("gone"))
	_, err := r.StoreFor(ctx, "gone")
	require.NoError(t, err)

	require.NoError(t, r.Drop(ctx, "gone"))
	assert.Empty(t, r.Active())
	_, err = r.StoreFor(ctx, "gone")
	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestRouter_RegistryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	r := library.NewRouter(library.RouterConfig{DataDir: dir}, nil)
	_, err := r.Create(ctx, library.Library{
		ID:           "persisted",
		Name:         "Persisted",
		EmbeddingDim: 16,
		Policy:       library.Policy{StrictMode: true},
	})
	require.NoError(t, err)

	reloaded := library.NewRouter(library.RouterConfig{DataDir: dir}, nil)
	require.NoError(t, reloaded.Load(ctx))

	lib, err := reloaded.Get("persisted")
	require.NoError(t, err)
	assert.Equal(t, "Persisted", lib.Name)
	assert.Equal(t, 16, lib.EmbeddingDim)
	assert.True(t, lib.Policy.StrictMode)
}

func TestRouter_LexiconBackfilledFromStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	r := library.NewRouter(library.RouterConfig{DataDir: dir}, nil)
	createTestLibrary(t, r, "lex", 2)
	store, err := r.StoreFor(ctx, "lex")
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, []vectorstore.Chunk{{
		ID: "c1", DocumentID: "d1", Content: "persistent lexical content", Embedding: []float32{1, 0},
	}}))
	require.NoError(t, store.Save(ctx))

	r2 := library.NewRouter(library.RouterConfig{DataDir: dir}, nil)
	require.NoError(t, r2.Load(ctx))
	idx, err := r2.LexiconFor(ctx, "lex")
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}
