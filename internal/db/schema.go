package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL creates every table the backend relies on. The chunks table and
// the chunk_embeddings vector index are tied together by an ON DELETE CASCADE
// foreign key so a chunk can never outlive (or predate) its vector.
//
// The embedding dimension is interpolated from config because pgvector
// requires it to be fixed at column definition time.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS conversations (
    id            UUID PRIMARY KEY,
    title         TEXT NOT NULL DEFAULT 'New Conversation',
    model_id      TEXT NOT NULL,
    system_prompt TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
    id                UUID PRIMARY KEY,
    conversation_id   UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role              TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content           TEXT NOT NULL,
    model_id          TEXT,
    prompt_tokens     INTEGER NOT NULL DEFAULT 0,
    completion_tokens INTEGER NOT NULL DEFAULT 0,
    citations         JSONB,
    partial           BOOLEAN NOT NULL DEFAULT FALSE,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
    id          UUID PRIMARY KEY,
    filename    TEXT NOT NULL,
    source_type TEXT NOT NULL CHECK (source_type IN ('pdf', 'txt', 'md', 'html')),
    status      TEXT NOT NULL CHECK (status IN ('pending', 'chunked', 'embedded', 'failed')),
    error       TEXT NOT NULL DEFAULT '',
    chunk_count INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chunks (
    id           UUID PRIMARY KEY,
    document_id  UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    ordinal      INTEGER NOT NULL,
    content      TEXT NOT NULL,
    start_offset INTEGER NOT NULL,
    end_offset   INTEGER NOT NULL,
    UNIQUE (document_id, ordinal)
);

CREATE TABLE IF NOT EXISTS chunk_embeddings (
    chunk_id    UUID PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
    document_id UUID NOT NULL,
    ordinal     INTEGER NOT NULL,
    embedding   vector(%d) NOT NULL
);

CREATE TABLE IF NOT EXISTS cost_log (
    id                BIGSERIAL PRIMARY KEY,
    conversation_id   UUID,
    message_id        UUID,
    provider          TEXT NOT NULL,
    model_id          TEXT NOT NULL,
    operation         TEXT NOT NULL CHECK (operation IN ('chat', 'embedding', 'title')),
    prompt_tokens     INTEGER NOT NULL DEFAULT 0,
    completion_tokens INTEGER NOT NULL DEFAULT 0,
    usage_known       BOOLEAN NOT NULL DEFAULT TRUE,
    cost_usd          DOUBLE PRECISION,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id);
CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_document ON chunk_embeddings (document_id);
CREATE INDEX IF NOT EXISTS idx_cost_log_conversation ON cost_log (conversation_id);
CREATE INDEX IF NOT EXISTS idx_cost_log_created ON cost_log (created_at);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDim int) error {
	if embeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(schemaSQL, embeddingDim)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
