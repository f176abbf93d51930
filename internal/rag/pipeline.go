package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrIngestionInProgress is returned when an ingestion or delete is requested
// for a document that is already being ingested.
var ErrIngestionInProgress = errors.New("ingestion already in progress for document")

// embedConcurrency bounds how many embedding batches are in flight at once.
const embedConcurrency = 4

// IngestionPipeline drives a document through extract -> chunk -> embed ->
// index. A document ends up either fully embedded or failed, never partially
// indexed: on any error after chunks were written, everything written for
// that document is rolled back.
//
// Operations on the same document are serialized; operations on different
// documents run independently.
type IngestionPipeline struct {
	store    DocumentStore
	index    VectorIndex
	embedder Embedder

	chunkSize    int
	chunkOverlap int
	batchSize    int

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewIngestionPipeline(store DocumentStore, index VectorIndex, embedder Embedder, chunkSize, chunkOverlap, batchSize int) *IngestionPipeline {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &IngestionPipeline{
		store:        store,
		index:        index,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		batchSize:    batchSize,
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

func (p *IngestionPipeline) lockFor(id uuid.UUID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.locks[id]
	if !ok {
		m = &sync.Mutex{}
		p.locks[id] = m
	}
	return m
}

func (p *IngestionPipeline) dropLock(id uuid.UUID) {
	p.mu.Lock()
	delete(p.locks, id)
	p.mu.Unlock()
}

// Ingest runs the full pipeline over already-extracted text. The document row
// must exist. Re-ingestion of a failed document is a fresh attempt: any state
// from the previous attempt is cleared first.
func (p *IngestionPipeline) Ingest(ctx context.Context, documentID uuid.UUID, text string) error {
	lock := p.lockFor(documentID)
	if !lock.TryLock() {
		return fmt.Errorf("%w: %s", ErrIngestionInProgress, documentID)
	}
	defer lock.Unlock()

	if err := p.ingest(ctx, documentID, text); err != nil {
		p.fail(ctx, documentID, err)
		return err
	}
	return nil
}

func (p *IngestionPipeline) ingest(ctx context.Context, documentID uuid.UUID, text string) error {
	// Fresh attempt: clear anything a previous attempt left behind.
	if err := p.index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("clear previous index entries: %w", err)
	}
	if err := p.store.DeleteChunksByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("clear previous chunks: %w", err)
	}
	if err := p.store.UpdateDocumentStatus(ctx, documentID, StatusPending, "", 0); err != nil {
		return fmt.Errorf("reset document status: %w", err)
	}

	spans, err := ChunkText(text, p.chunkSize, p.chunkOverlap)
	if err != nil {
		return err
	}
	if len(spans) == 0 {
		return errors.New("no text content found in document")
	}

	chunks := make([]Chunk, len(spans))
	texts := make([]string, len(spans))
	for i, s := range spans {
		chunks[i] = Chunk{
			ID:          uuid.New(),
			DocumentID:  documentID,
			Ordinal:     i,
			Content:     s.Text,
			StartOffset: s.Start,
			EndOffset:   s.End,
		}
		texts[i] = s.Text
	}

	if err := p.store.InsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	if err := p.store.UpdateDocumentStatus(ctx, documentID, StatusChunked, "", len(chunks)); err != nil {
		return p.rollback(ctx, documentID, fmt.Errorf("mark chunked: %w", err))
	}

	vectors, err := p.embedAll(ctx, texts)
	if err != nil {
		return p.rollback(ctx, documentID, err)
	}

	entries := make([]VectorEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = VectorEntry{
			ChunkID:    c.ID,
			DocumentID: documentID,
			Ordinal:    c.Ordinal,
			Embedding:  vectors[i],
		}
	}
	if err := p.index.Upsert(ctx, entries); err != nil {
		return p.rollback(ctx, documentID, fmt.Errorf("upsert vectors: %w", err))
	}

	if err := p.store.UpdateDocumentStatus(ctx, documentID, StatusEmbedded, "", len(chunks)); err != nil {
		return p.rollback(ctx, documentID, fmt.Errorf("mark embedded: %w", err))
	}

	log.Printf("ingested document %s: %d chunks", documentID, len(chunks))
	return nil
}

// embedAll embeds chunk texts in provider-sized batches, a few batches in
// flight at a time, preserving chunk order in the result.
func (p *IngestionPipeline) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		g.Go(func() error {
			batch, err := p.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// rollback removes every chunk and vector written for the document so a
// failed ingestion leaves nothing behind. Rollback runs detached from the
// caller's context so cancellation cannot strand half-indexed state.
func (p *IngestionPipeline) rollback(ctx context.Context, documentID uuid.UUID, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if err := p.index.DeleteByDocument(ctx, documentID); err != nil {
		log.Printf("rollback: delete vectors for document %s: %v", documentID, err)
	}
	if err := p.store.DeleteChunksByDocument(ctx, documentID); err != nil {
		log.Printf("rollback: delete chunks for document %s: %v", documentID, err)
	}
	return cause
}

func (p *IngestionPipeline) fail(ctx context.Context, documentID uuid.UUID, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := p.store.UpdateDocumentStatus(ctx, documentID, StatusFailed, cause.Error(), 0); err != nil {
		log.Printf("mark document %s failed: %v", documentID, err)
	}
}

// Delete removes a document and everything derived from it. It waits for an
// in-flight ingestion of the same document to finish first.
func (p *IngestionPipeline) Delete(ctx context.Context, documentID uuid.UUID) error {
	lock := p.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()
	defer p.dropLock(documentID)

	if err := p.index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	// Chunk rows cascade from the document row.
	if err := p.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
