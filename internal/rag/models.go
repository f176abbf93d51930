package rag

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus tracks a document through the ingestion state machine:
// pending -> chunked -> embedded, or failed from any state.
type DocumentStatus string

const (
	StatusPending  DocumentStatus = "pending"
	StatusChunked  DocumentStatus = "chunked"
	StatusEmbedded DocumentStatus = "embedded"
	StatusFailed   DocumentStatus = "failed"
)

// Document is an uploaded file tracked through ingestion. It owns its chunks.
type Document struct {
	ID         uuid.UUID      `json:"id"`
	Filename   string         `json:"filename"`
	SourceType string         `json:"sourceType"`
	Status     DocumentStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	ChunkCount int            `json:"chunkCount"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Chunk is a contiguous text span of a document sized for embedding.
// Offsets are rune offsets into the extracted text.
type Chunk struct {
	ID          uuid.UUID `json:"id"`
	DocumentID  uuid.UUID `json:"documentId"`
	Ordinal     int       `json:"ordinal"`
	Content     string    `json:"content"`
	StartOffset int       `json:"startOffset"`
	EndOffset   int       `json:"endOffset"`
}

// GroundedChunk is a retrieval result carrying citation metadata.
type GroundedChunk struct {
	ChunkID    uuid.UUID `json:"chunkId"`
	DocumentID uuid.UUID `json:"documentId"`
	Filename   string    `json:"filename"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Score      float64   `json:"score"`
}

// VectorEntry is one (chunk, embedding) pair written to the vector index.
type VectorEntry struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	Ordinal    int
	Embedding  []float32
}

// Match is a similarity search hit from the vector index.
type Match struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	Ordinal    int
	Score      float64
}

// Embedder converts texts into fixed-dimension vectors, preserving input
// order one-to-one.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex persists chunk embeddings and supports cosine similarity
// search. Search results are ordered by descending score, truncated to topK
// and exclude entries scoring below threshold.
type VectorIndex interface {
	Upsert(ctx context.Context, entries []VectorEntry) error
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
	Search(ctx context.Context, query []float32, topK int, threshold float64) ([]Match, error)
}

// DocumentStore is the relational side of ingestion: documents and their
// chunk texts.
type DocumentStore interface {
	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus, errMsg string, chunkCount int) error
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	InsertChunks(ctx context.Context, chunks []Chunk) error
	DeleteChunksByDocument(ctx context.Context, documentID uuid.UUID) error
	GetChunksByIDs(ctx context.Context, ids []uuid.UUID) ([]Chunk, error)
	GetFilenames(ctx context.Context, documentIDs []uuid.UUID) (map[uuid.UUID]string, error)
}
