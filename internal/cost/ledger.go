package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLedger is the Postgres-backed append-only cost log.
type PgLedger struct {
	db *pgxpool.Pool
}

func NewPgLedger(db *pgxpool.Pool) *PgLedger {
	return &PgLedger{db: db}
}

func (l *PgLedger) Insert(ctx context.Context, e *Entry) error {
	err := l.db.QueryRow(ctx, `
		INSERT INTO cost_log
			(conversation_id, message_id, provider, model_id, operation,
			 prompt_tokens, completion_tokens, usage_known, cost_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		e.ConversationID,
		e.MessageID,
		e.Provider,
		e.ModelID,
		e.Operation,
		e.PromptTokens,
		e.CompletionTokens,
		e.UsageKnown,
		e.CostUSD,
		e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert cost entry: %w", err)
	}
	return nil
}

const summarySQL = `
	SELECT
		COALESCE(SUM(cost_usd), 0),
		COALESCE(SUM(prompt_tokens), 0),
		COALESCE(SUM(completion_tokens), 0),
		COUNT(*) FILTER (WHERE cost_usd IS NULL)
	FROM cost_log
`

func (l *PgLedger) ConversationTotal(ctx context.Context, conversationID uuid.UUID) (Summary, error) {
	var s Summary
	err := l.db.QueryRow(ctx, summarySQL+` WHERE conversation_id = $1`, conversationID).
		Scan(&s.TotalCostUSD, &s.PromptTokens, &s.CompletionTokens, &s.UnknownCostEntries)
	if err != nil {
		return Summary{}, fmt.Errorf("sum conversation cost: %w", err)
	}
	return s, nil
}

func (l *PgLedger) GlobalTotal(ctx context.Context) (Summary, error) {
	var s Summary
	err := l.db.QueryRow(ctx, summarySQL).
		Scan(&s.TotalCostUSD, &s.PromptTokens, &s.CompletionTokens, &s.UnknownCostEntries)
	if err != nil {
		return Summary{}, fmt.Errorf("sum global cost: %w", err)
	}
	return s, nil
}

func (l *PgLedger) SpentSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := l.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM cost_log WHERE created_at >= $1`, since).
		Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum spend since %s: %w", since.Format(time.RFC3339), err)
	}
	return total, nil
}

var _ Ledger = (*PgLedger)(nil)
