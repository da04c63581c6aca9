package embeddings_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyrsmithlabs/alcove/internal/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbedServer fakes a TEI-compatible server returning constant-value
// vectors of the given dimension.
func newEmbedServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/embed":
			var req struct {
				Inputs interface{} `json:"inputs"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			count := 1
			if list, ok := req.Inputs.([]interface{}); ok {
				count = len(list)
			}
			vectors := make([][]float32, count)
			for i := range vectors {
				vec := make([]float32, dim)
				for j := range vec {
					vec[j] = float32(i + 1)
				}
				vectors[i] = vec
			}
			require.NoError(t, json.NewEncoder(w).Encode(vectors))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestProvider(t *testing.T, baseURL string, dim int) *embeddings.HTTPProvider {
	t.Helper()
	p, err := embeddings.NewHTTPProvider(embeddings.Config{
		BaseURL:   baseURL,
		Dimension: dim,
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	return p
}

func TestHTTPProvider_Embed(t *testing.T) {
	srv := newEmbedServer(t, 4)
	defer srv.Close()
	p := newTestProvider(t, srv.URL, 4)

	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, 4, p.Dimension())
	assert.True(t, p.Available(context.Background()))
}

func TestHTTPProvider_EmbedBatch(t *testing.T) {
	srv := newEmbedServer(t, 3)
	defer srv.Close()
	p := newTestProvider(t, srv.URL, 3)

	vecs, err := p.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 3)
	}
}

func TestHTTPProvider_EmptyInputRejected(t *testing.T) {
	srv := newEmbedServer(t, 3)
	defer srv.Close()
	p := newTestProvider(t, srv.URL, 3)
	ctx := context.Background()

	_, err := p.Embed(ctx, "")
	assert.ErrorIs(t, err, embeddings.ErrEmptyInput)

	_, err = p.EmbedBatch(ctx, nil)
	assert.ErrorIs(t, err, embeddings.ErrEmptyInput)

	_, err = p.EmbedBatch(ctx, []string{"ok", ""})
	assert.ErrorIs(t, err, embeddings.ErrEmptyInput)
}

func TestHTTPProvider_ServerErrorsAreTyped(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	p := newTestProvider(t, srv.URL, 3)
	ctx := context.Background()

	status = http.StatusInternalServerError
	_, err := p.Embed(ctx, "text")
	assert.ErrorIs(t, err, embeddings.ErrProviderUnavailable)

	status = http.StatusBadRequest
	_, err = p.Embed(ctx, "text")
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingFailed)
	assert.NotErrorIs(t, err, embeddings.ErrProviderUnavailable)
}

func TestHTTPProvider_Unreachable(t *testing.T) {
	p := newTestProvider(t, "http://127.0.0.1:1", 3)

	_, err := p.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, embeddings.ErrProviderUnavailable)
	assert.False(t, p.Available(context.Background()))
}

func TestFallbackProvider(t *testing.T) {
	srv := newEmbedServer(t, 3)
	defer srv.Close()

	primary := newTestProvider(t, "http://127.0.0.1:1", 3)
	secondary := newTestProvider(t, srv.URL, 3)

	fb, err := embeddings.NewFallbackProvider(primary, secondary)
	require.NoError(t, err)

	vec, err := fb.Embed(context.Background(), "degraded path")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.True(t, fb.Available(context.Background()))
}

func TestFallbackProvider_DimensionMismatchRejected(t *testing.T) {
	a := newTestProvider(t, "http://127.0.0.1:1", 3)
	b := newTestProvider(t, "http://127.0.0.1:1", 4)

	_, err := embeddings.NewFallbackProvider(a, b)
	assert.ErrorIs(t, err, embeddings.ErrInvalidConfig)
}

func TestNewProvider_UnknownKind(t *testing.T) {
	_, err := embeddings.NewProvider(embeddings.Config{Kind: "carrier-pigeon"})
	assert.ErrorIs(t, err, embeddings.ErrInvalidConfig)
}
