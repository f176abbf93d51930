// Package llm abstracts heterogeneous LLM provider APIs behind a uniform
// streaming chat contract with usage reporting.
package llm

import (
	"context"
	"fmt"
)

// Role of a chat message, shared across providers.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the provider-agnostic chat completion request.
type ChatRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Provider is implemented once per LLM vendor. Stream returns a lazy event
// sequence; pre-stream errors (auth, bad request, network) come back as a
// normal error, mid-stream errors are yielded through the iterator.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req ChatRequest) (*Stream, error)
}

// ProviderError is the shared error shape for any LLM call failure, so
// callers never see provider-specific error types.
type ProviderError struct {
	Provider string
	Status   int // HTTP status when applicable, 0 otherwise
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
