package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
)

// Augmenter performs query-time retrieval: embed the query, search the
// vector index, and attach citation metadata to each hit.
type Augmenter struct {
	embedder Embedder
	index    VectorIndex
	store    DocumentStore

	topK      int
	threshold float64

	// degradeOnStoreError turns an unavailable vector index into an empty
	// result instead of an error.
	degradeOnStoreError bool
}

func NewAugmenter(embedder Embedder, index VectorIndex, store DocumentStore, topK int, threshold float64, degradeOnStoreError bool) *Augmenter {
	if topK <= 0 {
		topK = 5
	}
	return &Augmenter{
		embedder:            embedder,
		index:               index,
		store:               store,
		topK:                topK,
		threshold:           threshold,
		degradeOnStoreError: degradeOnStoreError,
	}
}

// Retrieve returns the grounded chunks for a query, ordered by descending
// score. No chunk clearing the similarity threshold is not an error: the
// caller gets an empty slice and must treat the answer as ungrounded.
func (a *Augmenter) Retrieve(ctx context.Context, query string) ([]GroundedChunk, error) {
	vectors, err := a.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := a.index.Search(ctx, vectors[0], a.topK, a.threshold)
	if err != nil {
		if a.degradeOnStoreError {
			log.Printf("retrieval degraded to no context: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(matches))
	docIDs := make([]uuid.UUID, 0, len(matches))
	seen := make(map[uuid.UUID]bool)
	for i, m := range matches {
		ids[i] = m.ChunkID
		if !seen[m.DocumentID] {
			seen[m.DocumentID] = true
			docIDs = append(docIDs, m.DocumentID)
		}
	}

	chunks, err := a.store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunk texts: %w", err)
	}
	texts := make(map[uuid.UUID]string, len(chunks))
	for _, c := range chunks {
		texts[c.ID] = c.Content
	}

	filenames, err := a.store.GetFilenames(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("load document filenames: %w", err)
	}

	grounded := make([]GroundedChunk, 0, len(matches))
	for _, m := range matches {
		text, ok := texts[m.ChunkID]
		if !ok {
			// Vector with no chunk row means the two stores diverged.
			return nil, fmt.Errorf("chunk %s present in index but missing from store", m.ChunkID)
		}
		grounded = append(grounded, GroundedChunk{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Filename:   filenames[m.DocumentID],
			Ordinal:    m.Ordinal,
			Text:       text,
			Score:      m.Score,
		})
	}
	return grounded, nil
}

// estimateTokens approximates token count at four runes per token, the usual
// rule of thumb for English-like text.
func estimateTokens(s string) int {
	n := len([]rune(s))
	return (n + 3) / 4
}

// BuildContext concatenates chunk texts in descending-score order into a
// citation-tagged context block, dropping lowest-scoring chunks first when
// the token budget would be exceeded. It returns the block and the chunks
// that made it in.
func BuildContext(chunks []GroundedChunk, tokenBudget int) (string, []GroundedChunk) {
	if len(chunks) == 0 {
		return "", nil
	}

	var b strings.Builder
	var included []GroundedChunk
	used := 0

	for _, c := range chunks {
		cost := estimateTokens(c.Text)
		if tokenBudget > 0 && used+cost > tokenBudget && len(included) > 0 {
			break
		}
		if len(included) > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "[Source: %s, chunk %d]\n%s", c.Filename, c.Ordinal, c.Text)
		used += cost
		included = append(included, c)
		if tokenBudget > 0 && used >= tokenBudget {
			break
		}
	}

	return b.String(), included
}
