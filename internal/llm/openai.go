package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const openaiDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIProvider streams chat completions from the OpenAI API
// (/v1/chat/completions with stream=true and usage reporting enabled).
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{apiKey: apiKey, baseURL: openaiDefaultBaseURL, client: &http.Client{}}
}

// WithBaseURL overrides the API base URL. Used by tests and by
// OpenAI-compatible gateways.
func (p *OpenAIProvider) WithBaseURL(baseURL string) *OpenAIProvider {
	p.baseURL = baseURL
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openaiChatRequest struct {
	Model         string              `json:"model"`
	Messages      []Message           `json:"messages"`
	MaxTokens     int                 `json:"max_tokens,omitempty"`
	Temperature   float32             `json:"temperature,omitempty"`
	Stream        bool                `json:"stream"`
	StreamOptions openaiStreamOptions `json:"stream_options"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) Stream(ctx context.Context, req ChatRequest) (*Stream, error) {
	if p.apiKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("OPENAI_API_KEY is not set")}
	}

	body := openaiChatRequest{
		Model:         req.Model,
		Messages:      req.Messages,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		Stream:        true,
		StreamOptions: openaiStreamOptions{IncludeUsage: true},
	}

	resp, err := doPostStream(ctx, p.client, p.baseURL+"/chat/completions", p.apiKey, body)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &ProviderError{Provider: p.Name(), Status: status, Err: err}
	}

	scanner := newSSEScanner(resp.Body)

	iterator := func(yield func(Event, error) bool) {
		defer closeWithLog(resp.Body)

		for {
			if ctx.Err() != nil {
				yield(Event{}, ctx.Err())
				return
			}

			payload, sseErr := scanner.Next()
			if sseErr == io.EOF {
				return
			}
			if sseErr != nil {
				yield(Event{}, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("read stream: %w", sseErr)})
				return
			}

			var chunk openaiStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				yield(Event{}, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("parse stream chunk: %w", err)})
				return
			}

			// The usage chunk arrives last with empty choices.
			if chunk.Usage != nil {
				if !yield(Event{Type: EventUsage, Usage: &Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
				}}, nil) {
					return
				}
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != nil && *choice.Delta.Content != "" {
					if !yield(Event{Type: EventContent, Text: *choice.Delta.Content}, nil) {
						return
					}
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					if !yield(Event{Type: EventDone, FinishReason: *choice.FinishReason}, nil) {
						return
					}
				}
			}
		}
	}

	return NewStream(iterator), nil
}

var _ Provider = (*OpenAIProvider)(nil)
