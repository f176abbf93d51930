package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDocumentNotFound is returned when a document id does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// PgStore is the Postgres-backed DocumentStore.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) CreateDocument(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (id, filename, source_type, status, error, chunk_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.Filename, d.SourceType, d.Status, d.Error, d.ChunkCount, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PgStore) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var d Document
	err := s.db.QueryRow(ctx, `
		SELECT id, filename, source_type, status, error, chunk_count, created_at
		FROM documents
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Filename, &d.SourceType, &d.Status, &d.Error, &d.ChunkCount, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

func (s *PgStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, filename, source_type, status, error, chunk_count, created_at
		FROM documents
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.SourceType, &d.Status, &d.Error, &d.ChunkCount, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PgStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus, errMsg string, chunkCount int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET status = $2, error = $3, chunk_count = $4
		WHERE id = $1
	`, id, status, errMsg, chunkCount)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *PgStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *PgStore) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (id, document_id, ordinal, content, start_offset, end_offset)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, c.DocumentID, c.Ordinal, c.Content, c.StartOffset, c.EndOffset)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return nil
}

func (s *PgStore) DeleteChunksByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (s *PgStore) GetChunksByIDs(ctx context.Context, ids []uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, ordinal, content, start_offset, end_offset
		FROM chunks
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content, &c.StartOffset, &c.EndOffset); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *PgStore) GetFilenames(ctx context.Context, documentIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id, filename FROM documents WHERE id = ANY($1)`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("get filenames: %w", err)
	}
	defer rows.Close()

	names := make(map[uuid.UUID]string, len(documentIDs))
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

var _ DocumentStore = (*PgStore)(nil)
