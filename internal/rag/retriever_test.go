package rag_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ratheesh-2/jijnasaai/internal/rag"
	"github.com/Ratheesh-2/jijnasaai/internal/vectorstore"
)

// retrievalFixture seeds one document with three chunks whose vectors score
// 1.0, ~0.7 and ~0.0 against the query vector {1,0,0}.
func retrievalFixture(t *testing.T) (*fakeStore, *vectorstore.MemoryIndex, *fakeEmbedder, uuid.UUID) {
	t.Helper()

	store := newFakeStore()
	index := vectorstore.NewMemoryIndex()
	ctx := context.Background()

	doc := &rag.Document{Filename: "guide.md", SourceType: "md", Status: rag.StatusEmbedded}
	require.NoError(t, store.CreateDocument(ctx, doc))

	vectors := [][]float32{
		{1, 0, 0},
		{1, 1, 0}, // cosine ~0.707
		{0, 0, 1}, // cosine 0
	}
	var chunks []rag.Chunk
	var entries []rag.VectorEntry
	for i, v := range vectors {
		c := rag.Chunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Ordinal:    i,
			Content:    fmt.Sprintf("chunk %d content", i),
		}
		chunks = append(chunks, c)
		entries = append(entries, rag.VectorEntry{
			ChunkID:    c.ID,
			DocumentID: doc.ID,
			Ordinal:    i,
			Embedding:  v,
		})
	}
	require.NoError(t, store.InsertChunks(ctx, chunks))
	require.NoError(t, index.Upsert(ctx, entries))

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"query": {1, 0, 0},
	}}
	return store, index, embedder, doc.ID
}

func TestRetrieveFiltersByThresholdAndOrders(t *testing.T) {
	store, index, embedder, _ := retrievalFixture(t)
	aug := rag.NewAugmenter(embedder, index, store, 5, 0.3, false)

	got, err := aug.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, got, 2, "chunk scoring 0 must be filtered out")

	assert.Equal(t, 0, got[0].Ordinal)
	assert.Equal(t, 1, got[1].Ordinal)
	assert.Greater(t, got[0].Score, got[1].Score)
	assert.Equal(t, "guide.md", got[0].Filename)
	assert.Equal(t, "chunk 0 content", got[0].Text)
}

func TestRetrieveTopKTruncates(t *testing.T) {
	store, index, embedder, _ := retrievalFixture(t)
	aug := rag.NewAugmenter(embedder, index, store, 1, 0.0, false)

	got, err := aug.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Ordinal)
}

func TestRetrieveNothingAboveThreshold(t *testing.T) {
	store, index, embedder, _ := retrievalFixture(t)
	aug := rag.NewAugmenter(embedder, index, store, 5, 0.999, false)

	got, err := aug.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	require.Len(t, got, 1, "only the exact match clears 0.999")
	assert.Equal(t, 0, got[0].Ordinal)

	aug = rag.NewAugmenter(embedder, index, store, 5, 2, false)
	got, err = aug.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveMissingChunkRowIsAnError(t *testing.T) {
	store, index, embedder, docID := retrievalFixture(t)
	require.NoError(t, store.DeleteChunksByDocument(context.Background(), docID))

	aug := rag.NewAugmenter(embedder, index, store, 5, 0.3, false)
	_, err := aug.Retrieve(context.Background(), "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing from store")
}

// failingIndex always reports the backing store as unavailable.
type failingIndex struct{}

func (failingIndex) Upsert(context.Context, []rag.VectorEntry) error        { return nil }
func (failingIndex) DeleteByDocument(context.Context, uuid.UUID) error      { return nil }
func (failingIndex) Search(context.Context, []float32, int, float64) ([]rag.Match, error) {
	return nil, fmt.Errorf("%w: connection refused", vectorstore.ErrUnavailable)
}

func TestRetrieveDegradesWhenConfigured(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0, 0}}}

	aug := rag.NewAugmenter(embedder, failingIndex{}, store, 5, 0.3, true)
	got, err := aug.Retrieve(context.Background(), "query")
	require.NoError(t, err)
	assert.Empty(t, got)

	strict := rag.NewAugmenter(embedder, failingIndex{}, store, 5, 0.3, false)
	_, err = strict.Retrieve(context.Background(), "query")
	assert.ErrorIs(t, err, vectorstore.ErrUnavailable)
}

func grounded(filename string, ordinal int, text string, score float64) rag.GroundedChunk {
	return rag.GroundedChunk{
		ChunkID:  uuid.New(),
		Filename: filename,
		Ordinal:  ordinal,
		Text:     text,
		Score:    score,
	}
}

func TestBuildContextFormatsCitations(t *testing.T) {
	chunks := []rag.GroundedChunk{
		grounded("a.md", 0, "first", 0.9),
		grounded("b.md", 3, "second", 0.8),
	}

	block, included := rag.BuildContext(chunks, 0)
	require.Len(t, included, 2)
	assert.Contains(t, block, "[Source: a.md, chunk 0]\nfirst")
	assert.Contains(t, block, "[Source: b.md, chunk 3]\nsecond")
	assert.Contains(t, block, "\n\n---\n\n")
}

func TestBuildContextDropsLowestScoringOverBudget(t *testing.T) {
	big := strings.Repeat("w", 400) // ~100 tokens
	chunks := []rag.GroundedChunk{
		grounded("a.md", 0, big, 0.9),
		grounded("a.md", 1, big, 0.8),
		grounded("a.md", 2, big, 0.7),
	}

	block, included := rag.BuildContext(chunks, 210)
	require.Len(t, included, 2)
	assert.Equal(t, 0, included[0].Ordinal)
	assert.Equal(t, 1, included[1].Ordinal)
	assert.NotContains(t, block, "chunk 2")
}

func TestBuildContextAlwaysIncludesBestChunk(t *testing.T) {
	huge := strings.Repeat("w", 4000)
	chunks := []rag.GroundedChunk{grounded("a.md", 0, huge, 0.9)}

	_, included := rag.BuildContext(chunks, 10)
	require.Len(t, included, 1)
}

func TestBuildContextEmpty(t *testing.T) {
	block, included := rag.BuildContext(nil, 100)
	assert.Empty(t, block)
	assert.Empty(t, included)
}
