package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider streams chat completions from the Gemini API through the
// google.golang.org/genai SDK.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY or GEMINI_API_KEY is not set")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{client: c}, nil
}

func (p *GeminiProvider) Name() string { return "google" }

// toGeminiContents converts uniform messages to the Gemini contents schema:
// system messages become the system instruction, assistant maps to the
// "model" role.
func toGeminiContents(messages []Message) (contents []*genai.Content, system string) {
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	return contents, system
}

func (p *GeminiProvider) Stream(ctx context.Context, req ChatRequest) (*Stream, error) {
	contents, system := toGeminiContents(req.Messages)

	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	if system != "" {
		cfg.SystemInstruction = genai.Text(system)[0]
	}

	sdkStream := p.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg)

	iterator := func(yield func(Event, error) bool) {
		var usage *Usage

		emitUsage := func() bool {
			if usage == nil {
				return true
			}
			u := usage
			usage = nil
			return yield(Event{Type: EventUsage, Usage: u}, nil)
		}

		for chunk, err := range sdkStream {
			if ctx.Err() != nil {
				yield(Event{}, ctx.Err())
				return
			}
			if err != nil {
				// Emit whatever usage the provider reported before dying.
				if !emitUsage() {
					return
				}
				yield(Event{}, &ProviderError{Provider: p.Name(), Err: err})
				return
			}

			if md := chunk.UsageMetadata; md != nil {
				usage = &Usage{
					PromptTokens:     int(md.PromptTokenCount),
					CompletionTokens: int(md.CandidatesTokenCount),
				}
			}

			if text := chunk.Text(); text != "" {
				if !yield(Event{Type: EventContent, Text: text}, nil) {
					return
				}
			}
		}

		if !emitUsage() {
			return
		}
		yield(Event{Type: EventDone}, nil)
	}

	return NewStream(iterator), nil
}

var _ Provider = (*GeminiProvider)(nil)
