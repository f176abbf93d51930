// Package cost converts token usage into monetary cost and keeps the
// append-only cost log.
package cost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ratheesh-2/jijnasaai/internal/config"
)

// ErrPricingNotConfigured means the model id has no pricing entry. The cost
// log row is still written with an unknown cost; callers must not treat this
// as fatal for message persistence.
var ErrPricingNotConfigured = errors.New("pricing not configured for model")

// Operations recorded in the cost log.
const (
	OpChat      = "chat"
	OpEmbedding = "embedding"
	OpTitle     = "title"
)

// Entry is one append-only cost log row. A nil CostUSD means the cost could
// not be computed (unknown pricing); UsageKnown false means the provider
// never reported usage for the turn. Neither is ever silently zero.
type Entry struct {
	ID               int64      `json:"id"`
	ConversationID   *uuid.UUID `json:"conversationId,omitempty"`
	MessageID        *uuid.UUID `json:"messageId,omitempty"`
	Provider         string     `json:"provider"`
	ModelID          string     `json:"modelId"`
	Operation        string     `json:"operation"`
	PromptTokens     int        `json:"promptTokens"`
	CompletionTokens int        `json:"completionTokens"`
	UsageKnown       bool       `json:"usageKnown"`
	CostUSD          *float64   `json:"costUsd"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Summary is an aggregate over cost log rows. UnknownCostEntries counts rows
// whose cost could not be computed, so a total is never mistaken for
// complete when pricing gaps exist.
type Summary struct {
	TotalCostUSD       float64 `json:"totalCostUsd"`
	PromptTokens       int64   `json:"promptTokens"`
	CompletionTokens   int64   `json:"completionTokens"`
	UnknownCostEntries int64   `json:"unknownCostEntries"`
}

// Ledger is the persistent append-only cost log. Totals are recomputed from
// the log on every read, never cached.
type Ledger interface {
	Insert(ctx context.Context, e *Entry) error
	ConversationTotal(ctx context.Context, conversationID uuid.UUID) (Summary, error)
	GlobalTotal(ctx context.Context) (Summary, error)
	SpentSince(ctx context.Context, since time.Time) (float64, error)
}

// Accountant prices token usage from the startup pricing table and appends
// entries to the ledger. The pricing table is read-only after construction.
type Accountant struct {
	pricing map[string]config.ModelPricing
	ledger  Ledger
}

func NewAccountant(pricing map[string]config.ModelPricing, ledger Ledger) *Accountant {
	return &Accountant{pricing: pricing, ledger: ledger}
}

// RecordParams describes one completed operation that incurred usage.
type RecordParams struct {
	ConversationID *uuid.UUID
	MessageID      *uuid.UUID
	Provider       string
	ModelID        string
	Operation      string
	PromptTokens   int
	CompletionTok  int
	UsageKnown     bool
}

// Record computes the cost for the reported usage and appends exactly one
// ledger entry. For an unconfigured model the entry is still appended with
// an unknown cost and ErrPricingNotConfigured is returned alongside it.
func (a *Accountant) Record(ctx context.Context, p RecordParams) (*Entry, error) {
	entry := &Entry{
		ConversationID:   p.ConversationID,
		MessageID:        p.MessageID,
		Provider:         p.Provider,
		ModelID:          p.ModelID,
		Operation:        p.Operation,
		PromptTokens:     p.PromptTokens,
		CompletionTokens: p.CompletionTok,
		UsageKnown:       p.UsageKnown,
		CreatedAt:        time.Now(),
	}

	pricing, priced := a.pricing[p.ModelID]
	if priced && p.UsageKnown {
		c := Compute(pricing, p.PromptTokens, p.CompletionTok)
		entry.CostUSD = &c
	}

	if err := a.ledger.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("append cost entry: %w", err)
	}

	if !priced {
		return entry, fmt.Errorf("%w: %s", ErrPricingNotConfigured, p.ModelID)
	}
	return entry, nil
}

// Compute applies per-million-token pricing to a usage record.
func Compute(p config.ModelPricing, promptTokens, completionTokens int) float64 {
	return float64(promptTokens)*p.InputPerMillion/1e6 +
		float64(completionTokens)*p.OutputPerMillion/1e6
}

// PerConversation recomputes a conversation's running totals from the log.
func (a *Accountant) PerConversation(ctx context.Context, conversationID uuid.UUID) (Summary, error) {
	return a.ledger.ConversationTotal(ctx, conversationID)
}

// Global recomputes the all-time totals from the log.
func (a *Accountant) Global(ctx context.Context) (Summary, error) {
	return a.ledger.GlobalTotal(ctx)
}

// SpentToday sums the cost logged since local midnight.
func (a *Accountant) SpentToday(ctx context.Context) (float64, error) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return a.ledger.SpentSince(ctx, midnight)
}
