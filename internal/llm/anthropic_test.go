package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anthropicServer(t *testing.T, body string, capture *anthropicChatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}))
}

const anthropicHappyStream = `event: message_start
data: {"type":"message_start","message":{"usage":{"input_tokens":20,"output_tokens":1}}}

event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi "}}

event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"there"}}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}

event: message_stop
data: {"type":"message_stop"}

`

func TestAnthropicStreamCollect(t *testing.T) {
	var captured anthropicChatRequest
	srv := anthropicServer(t, anthropicHappyStream, &captured)
	defer srv.Close()

	p := NewAnthropicProvider("test-key").WithBaseURL(srv.URL)
	stream, err := p.Stream(context.Background(), ChatRequest{
		Model: "claude-3-5-haiku-20241022",
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)

	text, usage, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
	require.NotNil(t, usage)
	assert.Equal(t, 20, usage.PromptTokens)
	assert.Equal(t, 7, usage.CompletionTokens)

	// System messages fold into the top-level field, not the messages list.
	assert.Equal(t, "be brief", captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
	assert.True(t, captured.Stream)
	assert.Equal(t, 4096, captured.MaxTokens)
}

func TestAnthropicStreamErrorEventCarriesPartialUsage(t *testing.T) {
	body := `event: message_start
data: {"type":"message_start","message":{"usage":{"input_tokens":15,"output_tokens":2}}}

event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"par"}}

event: error
data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}

`
	srv := anthropicServer(t, body, nil)
	defer srv.Close()

	p := NewAnthropicProvider("test-key").WithBaseURL(srv.URL)
	stream, err := p.Stream(context.Background(), ChatRequest{Model: "claude-3-5-haiku-20241022"})
	require.NoError(t, err)

	text, usage, err := stream.Collect()
	assert.Equal(t, "par", text)
	require.NotNil(t, usage, "partial usage must be emitted before the error")
	assert.Equal(t, 15, usage.PromptTokens)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Contains(t, provErr.Error(), "Overloaded")
}

func TestAnthropicStreamTruncatedWithoutUsage(t *testing.T) {
	// Stream ends before message_delta: no usage event, no error (EOF).
	body := `event: message_start
data: {"type":"message_start","message":{"usage":{"input_tokens":9,"output_tokens":1}}}

event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"cut"}}

`
	srv := anthropicServer(t, body, nil)
	defer srv.Close()

	p := NewAnthropicProvider("test-key").WithBaseURL(srv.URL)
	stream, err := p.Stream(context.Background(), ChatRequest{Model: "claude-3-5-haiku-20241022"})
	require.NoError(t, err)

	text, usage, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "cut", text)
	assert.Nil(t, usage)
}

func TestToAnthropicRequestMergesSystemMessages(t *testing.T) {
	req := toAnthropicRequest(ChatRequest{
		Model:     "claude-3-5-haiku-20241022",
		MaxTokens: 1024,
		Messages: []Message{
			{Role: RoleSystem, Content: "one"},
			{Role: RoleUser, Content: "q"},
			{Role: RoleAssistant, Content: "a"},
			{Role: RoleSystem, Content: "two"},
		},
	})

	assert.Equal(t, "one\ntwo", req.System)
	assert.Equal(t, 1024, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)
}
