package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/alcove/internal/chunker"
	"github.com/fyrsmithlabs/alcove/internal/embeddings"
	"github.com/fyrsmithlabs/alcove/internal/httpapi"
	"github.com/fyrsmithlabs/alcove/internal/library"
	"github.com/fyrsmithlabs/alcove/internal/orchestrator"
	"github.com/fyrsmithlabs/alcove/internal/search"
)

const testDim = 8

type hashProvider struct{}

func (hashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embeddings.ErrEmptyInput
	}
	vec := make([]float32, testDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		vec[len(tok)%testDim]++
	}
	return vec, nil
}

func (p hashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (hashProvider) Dimension() int                 { return testDim }
func (hashProvider) Available(context.Context) bool { return true }
func (hashProvider) Close() error                   { return nil }

func newTestServer(t *testing.T) *httpapi.Server {
	t.Helper()
	router := library.NewRouter(library.RouterConfig{DataDir: t.TempDir()}, nil)
	engine := orchestrator.NewEngine(router, hashProvider{}, nil, nil, orchestrator.Config{
		Chunking:  chunker.Options{TargetWords: 20, OverlapWords: 4},
		Retrieval: search.Config{TopK: 5},
	}, nil)
	srv, err := httpapi.NewServer(engine, httpapi.Config{}, nil)
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *httpapi.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_LibraryLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/libraries",
		`{"id":"med","name":"Medical","embedding_dim":8}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created library.Library
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "med", created.ID)
	assert.InDelta(t, library.DefaultSimilarityThreshold, float64(created.Policy.SimilarityThreshold), 1e-6)

	rec = doJSON(t, srv, http.MethodPost, "/v1/libraries",
		`{"id":"med","embedding_dim":8}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/libraries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var libs []library.Library
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &libs))
	assert.Len(t, libs, 1)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/libraries/med", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/libraries/med", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_IngestAndQuery(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/libraries",
		`{"id":"docs","embedding_dim":8}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	body, err := json.Marshal(orchestrator.IngestRequest{
		DocumentID:   "doc1",
		DocumentName: "runbook.md",
		Text:         strings.Repeat("The billing system handles invoice processing nightly. ", 10),
	})
	require.NoError(t, err)
	rec = doJSON(t, srv, http.MethodPost, "/v1/libraries/docs/documents", string(body))
	require.Equal(t, http.StatusCreated, rec.Code)

	var report orchestrator.IngestReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "doc1", report.DocumentID)
	assert.Positive(t, report.ChunksCreated)

	rec = doJSON(t, srv, http.MethodPost, "/v1/query",
		`{"library_id":"docs","query":"invoice processing"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result orchestrator.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Declined)
	assert.NotEmpty(t, result.Sources)
	assert.Equal(t, "runbook.md", result.Sources[0].Document)

	rec = doJSON(t, srv, http.MethodGet, "/v1/libraries/docs/chunks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var enum httpapi.EnumerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enum))
	assert.Equal(t, report.ChunksCreated, enum.Count)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/libraries/docs/documents/doc1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServer_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/query", `{"query":"no library selected"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/libraries", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/libraries/ghost/chunks", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/libraries/ghost/documents",
		`{"text":"some text here"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ActivateLibrary(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/libraries/ghost/active", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/libraries", `{"id":"a","embedding_dim":8}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, srv, http.MethodPost, "/v1/libraries/a/active", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Query without library_id now falls through to the active library.
	rec = doJSON(t, srv, http.MethodPost, "/v1/query", `{"query":"anything at all"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_QueryEmptyRejected(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/v1/libraries", `{"id":"a","embedding_dim":8}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/query", `{"library_id":"a","query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
