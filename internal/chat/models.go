package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ratheesh-2/jijnasaai/internal/llm"
	"github.com/Ratheesh-2/jijnasaai/internal/rag"
)

// Conversation owns an ordered sequence of messages. The selected model id
// applies to every turn until changed.
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	ModelID      string    `json:"modelId"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Message is immutable once persisted. Partial marks an assistant message
// cut short by cancellation or a mid-stream provider failure.
type Message struct {
	ID               uuid.UUID           `json:"id"`
	ConversationID   uuid.UUID           `json:"conversationId"`
	Role             llm.Role            `json:"role"`
	Content          string              `json:"content"`
	ModelID          string              `json:"modelId,omitempty"`
	PromptTokens     int                 `json:"promptTokens"`
	CompletionTokens int                 `json:"completionTokens"`
	Citations        []rag.GroundedChunk `json:"citations,omitempty"`
	Partial          bool                `json:"partial,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
}
