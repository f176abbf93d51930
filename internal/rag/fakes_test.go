package rag_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Ratheesh-2/jijnasaai/internal/rag"
)

// fakeStore is an in-memory DocumentStore with per-method failure injection.
type fakeStore struct {
	mu     sync.Mutex
	docs   map[uuid.UUID]*rag.Document
	chunks map[uuid.UUID]rag.Chunk

	failInsertChunks bool
	failMarkEmbedded bool

	statusLog []rag.DocumentStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   make(map[uuid.UUID]*rag.Document),
		chunks: make(map[uuid.UUID]rag.Chunk),
	}
}

func (s *fakeStore) CreateDocument(_ context.Context, d *rag.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	copied := *d
	s.docs[d.ID] = &copied
	return nil
}

func (s *fakeStore) GetDocument(_ context.Context, id uuid.UUID) (*rag.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rag.ErrDocumentNotFound, id)
	}
	copied := *d
	return &copied, nil
}

func (s *fakeStore) ListDocuments(_ context.Context) ([]rag.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rag.Document
	for _, d := range s.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (s *fakeStore) UpdateDocumentStatus(_ context.Context, id uuid.UUID, status rag.DocumentStatus, errMsg string, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMarkEmbedded && status == rag.StatusEmbedded {
		return fmt.Errorf("injected status failure")
	}
	d, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", rag.ErrDocumentNotFound, id)
	}
	d.Status = status
	d.Error = errMsg
	d.ChunkCount = chunkCount
	s.statusLog = append(s.statusLog, status)
	return nil
}

func (s *fakeStore) DeleteDocument(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: %s", rag.ErrDocumentNotFound, id)
	}
	delete(s.docs, id)
	for cid, c := range s.chunks {
		if c.DocumentID == id {
			delete(s.chunks, cid)
		}
	}
	return nil
}

func (s *fakeStore) InsertChunks(_ context.Context, chunks []rag.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsertChunks {
		return fmt.Errorf("injected insert failure")
	}
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *fakeStore) DeleteChunksByDocument(_ context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
	return nil
}

func (s *fakeStore) GetChunksByIDs(_ context.Context, ids []uuid.UUID) ([]rag.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rag.Chunk
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) GetFilenames(_ context.Context, documentIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]string, len(documentIDs))
	for _, id := range documentIDs {
		if d, ok := s.docs[id]; ok {
			out[id] = d.Filename
		}
	}
	return out, nil
}

func (s *fakeStore) chunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

var _ rag.DocumentStore = (*fakeStore)(nil)

// fakeEmbedder returns a fixed vector per text via the lookup table, or a
// constant vector when the table is nil. failAfter > 0 fails the Nth call.
type fakeEmbedder struct {
	mu        sync.Mutex
	vectors   map[string][]float32
	calls     int
	failAfter int
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failAfter > 0 && e.calls >= e.failAfter {
		return nil, fmt.Errorf("injected embedding failure")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0, 0}
		}
	}
	return out, nil
}

var _ rag.Embedder = (*fakeEmbedder)(nil)
