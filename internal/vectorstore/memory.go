package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Ratheesh-2/jijnasaai/internal/rag"
)

// MemoryIndex is a brute-force cosine similarity index. It backs tests and
// local development; it does not survive a restart.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]rag.VectorEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[uuid.UUID]rag.VectorEntry)}
}

func (s *MemoryIndex) Upsert(_ context.Context, entries []rag.VectorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.ChunkID] = e
	}
	return nil
}

func (s *MemoryIndex) DeleteByDocument(_ context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.DocumentID == documentID {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *MemoryIndex) Search(_ context.Context, query []float32, topK int, threshold float64) ([]rag.Match, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []rag.Match
	for _, e := range s.entries {
		score := cosine(query, e.Embedding)
		if score < threshold {
			continue
		}
		matches = append(matches, rag.Match{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			Ordinal:    e.Ordinal,
			Score:      score,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ rag.VectorIndex = (*MemoryIndex)(nil)
