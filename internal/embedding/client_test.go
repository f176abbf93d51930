package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedServer answers /embeddings with one vector per input, encoding the
// input's global ordinal so tests can verify ordering. Results are returned
// in reverse index order to exercise index-based placement.
func embedServer(t *testing.T, ordinals map[string]float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req capturedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]datum, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, datum{Index: i, Embedding: []float32{ordinals[req.Input[i]]}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestEmbedBatchesPreserveOrder(t *testing.T) {
	texts := []string{"t0", "t1", "t2", "t3", "t4"}
	ordinals := make(map[string]float32, len(texts))
	for i, s := range texts {
		ordinals[s] = float32(i)
	}

	srv := embedServer(t, ordinals)
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "text-embedding-3-small", 2)
	vectors, err := c.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for i, v := range vectors {
		assert.Equal(t, []float32{float32(i)}, v, "vector %d out of order", i)
	}
}

func TestEmbedRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"index": 0, "embedding": []float32{1}},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "text-embedding-3-small", 10)
	vectors, err := c.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedPermanentFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "bad-model", 10)
	_, err := c.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "text-embedding-3-small", 10)
	_, err := c.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedEmptyInput(t *testing.T) {
	c := NewClient("http://unused", "test-key", "text-embedding-3-small", 10)

	vectors, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)

	_, err = c.Embed(context.Background(), []string{"ok", "   "})
	require.ErrorIs(t, err, ErrEmbedding)
	assert.Contains(t, err.Error(), "index 1")
}

func TestEmbedCountMismatchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "text-embedding-3-small", 10)
	_, err := c.Embed(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, ErrEmbedding)
	assert.Contains(t, err.Error(), fmt.Sprintf("got %d embeddings for %d inputs", 0, 2))
}
