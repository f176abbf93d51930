package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicProvider streams chat completions from the Anthropic Messages
// API. The SSE lifecycle is message_start -> content_block_delta(s) ->
// message_delta -> message_stop; input tokens arrive in message_start and
// output tokens in message_delta.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{apiKey: apiKey, baseURL: anthropicDefaultBaseURL, client: &http.Client{}}
}

func (p *AnthropicProvider) WithBaseURL(baseURL string) *AnthropicProvider {
	p.baseURL = baseURL
	return p
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicChatRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream"`
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// toAnthropicRequest folds system messages into the top-level system field;
// the messages list must alternate user/assistant.
func toAnthropicRequest(req ChatRequest) anthropicChatRequest {
	out := anthropicChatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 4096
	}
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			if out.System != "" {
				out.System += "\n"
			}
			out.System += m.Content
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (p *AnthropicProvider) Stream(ctx context.Context, req ChatRequest) (*Stream, error) {
	if p.apiKey == "" {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("ANTHROPIC_API_KEY is not set")}
	}

	resp, err := doPostStream(ctx, p.client, p.baseURL+"/v1/messages", "", toAnthropicRequest(req),
		header{"x-api-key", p.apiKey},
		header{"anthropic-version", anthropicAPIVersion},
	)
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

		// Token counts are spread across events, so they are accumulated
		// here and emitted in a single usage event. On a mid-stream failure
		// whatever has been counted so far is emitted as partial usage.
		inputTokens := 0
		outputTokens := 0
		usageEmitted := false

		emitUsage := func() bool {
			if usageEmitted {
				return true
			}
			usageEmitted = true
			return yield(Event{Type: EventUsage, Usage: &Usage{
				PromptTokens:     inputTokens,
				CompletionTokens: outputTokens,
			}}, nil)
		}

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
				if inputTokens > 0 && !emitUsage() {
					return
				}
				yield(Event{}, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("read stream: %w", sseErr)})
				return
			}

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				yield(Event{}, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("parse stream event: %w", err)})
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					inputTokens = event.Message.Usage.InputTokens
					outputTokens = event.Message.Usage.OutputTokens
				}

			case "content_block_delta":
				if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
					if !yield(Event{Type: EventContent, Text: event.Delta.Text}, nil) {
						return
					}
				}

			case "message_delta":
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}
				if !emitUsage() {
					return
				}
				finish := ""
				if event.Delta != nil {
					finish = event.Delta.StopReason
				}
				if !yield(Event{Type: EventDone, FinishReason: finish}, nil) {
					return
				}

			case "message_stop":
				return

			case "error":
				msg := "unknown stream error"
				if event.Error != nil {
					msg = event.Error.Message
				}
				if inputTokens > 0 && !emitUsage() {
					return
				}
				yield(Event{}, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%s", msg)})
				return
			}
		}
	}

	return NewStream(iterator), nil
}

var _ Provider = (*AnthropicProvider)(nil)
