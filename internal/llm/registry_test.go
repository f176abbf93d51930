package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ratheesh-2/jijnasaai/internal/config"
)

type stubProvider struct{ name string }

func (p stubProvider) Name() string { return p.name }
func (p stubProvider) Stream(context.Context, ChatRequest) (*Stream, error) {
	return NewStream(func(yield func(Event, error) bool) {
		yield(Event{Type: EventDone}, nil)
	}), nil
}

func testCatalog() config.Catalog {
	return config.Catalog{
		DefaultModel: "gpt-4o-mini",
		Models: []config.ModelConfig{
			{ID: "gpt-4o-mini", Provider: config.ProviderOpenAI, MaxTokens: 4096},
			{ID: "claude-3-5-haiku-20241022", Provider: config.ProviderAnthropic, MaxTokens: 8192},
			{ID: "gemini-2.5-flash", Provider: config.ProviderGoogle, MaxTokens: 8192},
		},
	}
}

func TestRegistryForModel(t *testing.T) {
	r := NewRegistry(testCatalog())
	r.Register(stubProvider{name: "openai"})

	provider, model, err := r.ForModel("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai", provider.Name())
	assert.Equal(t, 4096, model.MaxTokens)
}

func TestRegistryUnknownModel(t *testing.T) {
	r := NewRegistry(testCatalog())
	r.Register(stubProvider{name: "openai"})

	_, _, err := r.ForModel("foo-999")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestRegistryProviderNotConfigured(t *testing.T) {
	r := NewRegistry(testCatalog())
	r.Register(stubProvider{name: "openai"})

	_, _, err := r.ForModel("claude-3-5-haiku-20241022")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestRegistryAvailableModels(t *testing.T) {
	r := NewRegistry(testCatalog())
	r.Register(stubProvider{name: "openai"})
	r.Register(stubProvider{name: "google"})

	models := r.AvailableModels()
	require.Len(t, models, 2)
	assert.Equal(t, "gpt-4o-mini", models[0].ID)
	assert.Equal(t, "gemini-2.5-flash", models[1].ID)
}
