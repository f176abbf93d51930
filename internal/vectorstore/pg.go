// Package vectorstore provides the durable chunk embedding index.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/Ratheesh-2/jijnasaai/internal/rag"
)

// ErrUnavailable reports that the vector index could not be reached or is
// corrupt. Callers use it to distinguish "no matches" from "store broken".
var ErrUnavailable = errors.New("vector store unavailable")

// PgIndex stores chunk embeddings in Postgres via pgvector. Similarity is
// cosine: the <=> operator yields cosine distance, so score = 1 - distance.
// The same metric applies to every stored and queried vector.
type PgIndex struct {
	db        *pgxpool.Pool
	dimension int
}

func NewPgIndex(db *pgxpool.Pool, dimension int) *PgIndex {
	return &PgIndex{db: db, dimension: dimension}
}

func (s *PgIndex) Upsert(ctx context.Context, entries []rag.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if len(e.Embedding) != s.dimension {
			return fmt.Errorf("embedding for chunk %s has dimension %d, index expects %d",
				e.ChunkID, len(e.Embedding), s.dimension)
		}
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO chunk_embeddings (chunk_id, document_id, ordinal, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (chunk_id) DO UPDATE SET embedding = EXCLUDED.embedding
		`, e.ChunkID, e.DocumentID, e.Ordinal, pgvector.NewVector(e.Embedding))
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: upsert embeddings: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PgIndex) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM chunk_embeddings WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("%w: delete embeddings: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PgIndex) Search(ctx context.Context, query []float32, topK int, threshold float64) ([]rag.Match, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query vector has dimension %d, index expects %d", len(query), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}

	vec := pgvector.NewVector(query)
	rows, err := s.db.Query(ctx, `
		SELECT chunk_id, document_id, ordinal, 1 - (embedding <=> $1) AS score
		FROM chunk_embeddings
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, threshold, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var matches []rag.Match
	for rows.Next() {
		var m rag.Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Ordinal, &m.Score); err != nil {
			return nil, fmt.Errorf("%w: scan search row: %v", ErrUnavailable, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrUnavailable, err)
	}
	return matches, nil
}

var _ rag.VectorIndex = (*PgIndex)(nil)
