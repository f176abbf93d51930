// Package chat drives one conversational turn end to end: persistence,
// retrieval augmentation, provider streaming, and cost recording.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"github.com/Ratheesh-2/jijnasaai/internal/cost"
	"github.com/Ratheesh-2/jijnasaai/internal/llm"
	"github.com/Ratheesh-2/jijnasaai/internal/rag"
)

var (
	// ErrDailySpendExceeded rejects a turn before any provider call when the
	// configured daily budget is already spent.
	ErrDailySpendExceeded = errors.New("daily spend limit exceeded")
	// ErrEmptyMessage rejects a turn with no user content.
	ErrEmptyMessage = errors.New("message must not be empty")
)

const defaultSystemPrompt = "You are a helpful assistant. Answer clearly and concisely."

const ragPromptFormat = `You are a helpful assistant. Answer the user's question using the context below. If the context does not contain the answer, say so instead of guessing. Cite sources by filename when you use them.

Context:
%s`

const titlePrompt = "Write a title of at most six words for a conversation that starts with the following message. Reply with the title only, no quotes or punctuation around it."

// Retriever is the query-time retrieval dependency.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]rag.GroundedChunk, error)
}

// TurnEventType identifies the kind of update emitted while a turn streams.
type TurnEventType string

const (
	// TurnConversation announces the conversation the turn belongs to,
	// first on every stream.
	TurnConversation TurnEventType = "conversation"
	// TurnSources lists the grounded chunks included in the model context.
	TurnSources TurnEventType = "sources"
	// TurnToken is one text delta.
	TurnToken TurnEventType = "token"
	// TurnUsage reports the turn's token usage and cost after the answer
	// is persisted.
	TurnUsage TurnEventType = "usage"
	// TurnDone signals normal completion.
	TurnDone TurnEventType = "done"
)

// TurnEvent is one update on a streaming turn.
type TurnEvent struct {
	Type         TurnEventType       `json:"type"`
	Conversation *Conversation       `json:"conversation,omitempty"`
	Sources      []rag.GroundedChunk `json:"sources,omitempty"`
	Text         string              `json:"text,omitempty"`
	Usage        *UsageSummary       `json:"usage,omitempty"`
}

// UsageSummary is the post-turn accounting summary. CostUSD is nil when
// pricing for the model is not configured; UsageKnown is false when the
// provider never reported token counts.
type UsageSummary struct {
	ModelID          string   `json:"modelId"`
	PromptTokens     int      `json:"promptTokens"`
	CompletionTokens int      `json:"completionTokens"`
	UsageKnown       bool     `json:"usageKnown"`
	CostUSD          *float64 `json:"costUsd"`
}

// TurnRequest describes one user turn. A nil ConversationID starts a new
// conversation. ModelID overrides the conversation's model for this and all
// later turns; empty keeps the current one.
type TurnRequest struct {
	ConversationID *uuid.UUID
	ModelID        string
	Message        string
	UseRAG         bool
	Temperature    float32
}

// Orchestrator coordinates a chat turn across the repository, the retrieval
// augmenter, the provider registry, and the cost accountant.
type Orchestrator struct {
	repo       Repository
	registry   *llm.Registry
	retriever  Retriever
	accountant *cost.Accountant

	defaultModel  string
	contextBudget int
	maxDailySpend float64
}

func NewOrchestrator(repo Repository, registry *llm.Registry, retriever Retriever, accountant *cost.Accountant, defaultModel string, contextBudget int, maxDailySpend float64) *Orchestrator {
	return &Orchestrator{
		repo:          repo,
		registry:      registry,
		retriever:     retriever,
		accountant:    accountant,
		defaultModel:  defaultModel,
		contextBudget: contextBudget,
		maxDailySpend: maxDailySpend,
	}
}

// StreamTurn runs one turn and yields its events in order: conversation,
// sources (when retrieval contributed), tokens, usage, done. A non-nil error
// is terminal. Client cancellation after the first token still persists the
// partial assistant message and exactly one cost entry.
func (o *Orchestrator) StreamTurn(ctx context.Context, req TurnRequest) iter.Seq2[TurnEvent, error] {
	return func(yield func(TurnEvent, error) bool) {
		if strings.TrimSpace(req.Message) == "" {
			yield(TurnEvent{}, ErrEmptyMessage)
			return
		}

		if err := o.checkDailySpend(ctx); err != nil {
			yield(TurnEvent{}, err)
			return
		}

		conv, created, err := o.resolveConversation(ctx, req)
		if err != nil {
			yield(TurnEvent{}, err)
			return
		}

		// Resolve the adapter before the conversation is persisted or
		// announced, so an unknown model rejects the turn without side
		// effects.
		provider, model, err := o.registry.ForModel(conv.ModelID)
		if err != nil {
			yield(TurnEvent{}, err)
			return
		}

		if created {
			if err := o.repo.CreateConversation(ctx, conv); err != nil {
				yield(TurnEvent{}, err)
				return
			}
		} else if err := o.repo.TouchConversation(ctx, conv.ID); err != nil {
			yield(TurnEvent{}, err)
			return
		}
		if !yield(TurnEvent{Type: TurnConversation, Conversation: conv}, nil) {
			return
		}

		history, err := o.repo.ListMessages(ctx, conv.ID)
		if err != nil {
			yield(TurnEvent{}, err)
			return
		}

		userMsg := &Message{
			ConversationID: conv.ID,
			Role:           llm.RoleUser,
			Content:        req.Message,
		}
		if err := o.repo.InsertMessage(ctx, userMsg); err != nil {
			yield(TurnEvent{}, fmt.Errorf("persist user message: %w", err))
			return
		}

		system, citations, err := o.buildSystemPrompt(ctx, conv, req)
		if err != nil {
			yield(TurnEvent{}, err)
			return
		}
		if len(citations) > 0 {
			if !yield(TurnEvent{Type: TurnSources, Sources: citations}, nil) {
				return
			}
		}

		messages := buildPromptMessages(system, history, req.Message)
		stream, err := provider.Stream(ctx, llm.ChatRequest{
			Model:       model.ID,
			Messages:    messages,
			MaxTokens:   model.MaxTokens,
			Temperature: req.Temperature,
		})
		if err != nil {
			yield(TurnEvent{}, err)
			return
		}

		var (
			answer    strings.Builder
			usage     *llm.Usage
			streamErr error
			abandoned bool
		)
		for event, iterErr := range stream.Iter() {
			if iterErr != nil {
				streamErr = iterErr
				break
			}
			switch event.Type {
			case llm.EventContent:
				answer.WriteString(event.Text)
				if !yield(TurnEvent{Type: TurnToken, Text: event.Text}, nil) {
					abandoned = true
				}
			case llm.EventUsage:
				usage = event.Usage
			}
			if abandoned {
				break
			}
		}

		// Nothing arrived before the failure: abort the turn without an
		// assistant message or a cost entry.
		if streamErr != nil && answer.Len() == 0 && usage == nil {
			yield(TurnEvent{}, streamErr)
			return
		}

		partial := streamErr != nil || abandoned || ctx.Err() != nil
		turnUsage, err := o.finalizeTurn(ctx, conv, provider.Name(), model.ID, answer.String(), citations, usage, partial)
		if err != nil {
			yield(TurnEvent{}, err)
			return
		}

		if streamErr != nil {
			if !yield(TurnEvent{Type: TurnUsage, Usage: turnUsage}, nil) {
				return
			}
			yield(TurnEvent{}, streamErr)
			return
		}
		if abandoned {
			return
		}

		if created {
			o.autoTitle(ctx, conv, req.Message)
		}

		if !yield(TurnEvent{Type: TurnUsage, Usage: turnUsage}, nil) {
			return
		}
		yield(TurnEvent{Type: TurnDone}, nil)
	}
}

func (o *Orchestrator) checkDailySpend(ctx context.Context) error {
	if o.maxDailySpend <= 0 {
		return nil
	}
	spent, err := o.accountant.SpentToday(ctx)
	if err != nil {
		return fmt.Errorf("check daily spend: %w", err)
	}
	if spent >= o.maxDailySpend {
		return fmt.Errorf("%w: $%.2f of $%.2f", ErrDailySpendExceeded, spent, o.maxDailySpend)
	}
	return nil
}

// resolveConversation loads the conversation, or builds a new one in memory
// for the caller to persist once the model is validated, and applies a model
// switch requested for this turn.
func (o *Orchestrator) resolveConversation(ctx context.Context, req TurnRequest) (*Conversation, bool, error) {
	if req.ConversationID == nil {
		modelID := req.ModelID
		if modelID == "" {
			modelID = o.defaultModel
		}
		return &Conversation{ModelID: modelID}, true, nil
	}

	conv, err := o.repo.GetConversation(ctx, *req.ConversationID)
	if err != nil {
		return nil, false, err
	}
	if req.ModelID != "" && req.ModelID != conv.ModelID {
		conv.ModelID = req.ModelID
	}
	return conv, false, nil
}

// buildSystemPrompt assembles the system instruction for the turn: the
// conversation's prompt (or the default), the retrieval context when RAG is
// on, and a reply-language hint when the user writes in a language the
// detector is confident about.
func (o *Orchestrator) buildSystemPrompt(ctx context.Context, conv *Conversation, req TurnRequest) (string, []rag.GroundedChunk, error) {
	system := conv.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}

	var citations []rag.GroundedChunk
	if req.UseRAG && o.retriever != nil {
		chunks, err := o.retriever.Retrieve(ctx, req.Message)
		if err != nil {
			return "", nil, fmt.Errorf("retrieve context: %w", err)
		}
		block, included := rag.BuildContext(chunks, o.contextBudget)
		if block != "" {
			system = fmt.Sprintf(ragPromptFormat, block)
			if conv.SystemPrompt != "" {
				system = conv.SystemPrompt + "\n\n" + system
			}
			citations = included
		}
	}

	if hint := languageHint(req.Message); hint != "" {
		system += "\n\n" + hint
	}
	return system, citations, nil
}

// languageHint asks the model to reply in the user's language when detection
// is confident and the language is not English.
func languageHint(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() || info.Lang == whatlanggo.Eng {
		return ""
	}
	return fmt.Sprintf("Reply in %s, the language of the user's message.", info.Lang.String())
}

func buildPromptMessages(system string, history []Message, userMessage string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range history {
		if m.Role == llm.RoleSystem {
			continue
		}
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages
}

// finalizeTurn persists the assistant message and appends exactly one cost
// entry. It runs detached from the request context so a client disconnect
// cannot lose the partial answer or the accounting row.
func (o *Orchestrator) finalizeTurn(ctx context.Context, conv *Conversation, providerName, modelID, answer string, citations []rag.GroundedChunk, usage *llm.Usage, partial bool) (*UsageSummary, error) {
	persistCtx := context.WithoutCancel(ctx)

	msg := &Message{
		ConversationID: conv.ID,
		Role:           llm.RoleAssistant,
		Content:        answer,
		ModelID:        modelID,
		Citations:      citations,
		Partial:        partial,
	}
	if usage != nil {
		msg.PromptTokens = usage.PromptTokens
		msg.CompletionTokens = usage.CompletionTokens
	}
	if err := o.repo.InsertMessage(persistCtx, msg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	params := cost.RecordParams{
		ConversationID: &conv.ID,
		MessageID:      &msg.ID,
		Provider:       providerName,
		ModelID:        modelID,
		Operation:      cost.OpChat,
		UsageKnown:     usage != nil,
	}
	if usage != nil {
		params.PromptTokens = usage.PromptTokens
		params.CompletionTok = usage.CompletionTokens
	}
	entry, err := o.accountant.Record(persistCtx, params)
	if err != nil && !errors.Is(err, cost.ErrPricingNotConfigured) {
		return nil, err
	}
	if errors.Is(err, cost.ErrPricingNotConfigured) {
		log.Printf("cost unknown for model %s: %v", modelID, err)
	}

	return &UsageSummary{
		ModelID:          modelID,
		PromptTokens:     params.PromptTokens,
		CompletionTokens: params.CompletionTok,
		UsageKnown:       params.UsageKnown,
		CostUSD:          entry.CostUSD,
	}, nil
}

// autoTitle derives a short title for a brand-new conversation from its first
// user message. Failures only log; the turn itself already succeeded.
func (o *Orchestrator) autoTitle(ctx context.Context, conv *Conversation, firstMessage string) {
	provider, model, err := o.registry.ForModel(conv.ModelID)
	if err != nil {
		return
	}

	titleCtx := context.WithoutCancel(ctx)
	stream, err := provider.Stream(titleCtx, llm.ChatRequest{
		Model: model.ID,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: titlePrompt},
			{Role: llm.RoleUser, Content: firstMessage},
		},
		MaxTokens: 24,
	})
	if err != nil {
		log.Printf("auto-title: %v", err)
		return
	}

	text, usage, err := stream.Collect()
	if err != nil {
		log.Printf("auto-title: %v", err)
		return
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"'`))
	if title != "" {
		if err := o.repo.UpdateConversationTitle(titleCtx, conv.ID, title); err != nil {
			log.Printf("auto-title: %v", err)
		} else {
			conv.Title = title
		}
	}

	params := cost.RecordParams{
		ConversationID: &conv.ID,
		Provider:       provider.Name(),
		ModelID:        model.ID,
		Operation:      cost.OpTitle,
		UsageKnown:     usage != nil,
	}
	if usage != nil {
		params.PromptTokens = usage.PromptTokens
		params.CompletionTok = usage.CompletionTokens
	}
	if _, err := o.accountant.Record(titleCtx, params); err != nil && !errors.Is(err, cost.ErrPricingNotConfigured) {
		log.Printf("auto-title cost: %v", err)
	}
}
