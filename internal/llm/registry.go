package llm

import (
	"errors"
	"fmt"

	"github.com/Ratheesh-2/jijnasaai/internal/config"
)

var (
	// ErrUnknownModel means the model id is not in the catalog.
	ErrUnknownModel = errors.New("unknown model")
	// ErrProviderNotConfigured means the model's provider has no API key.
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// Registry maps model ids to their provider adapter. Selection is the only
// point where provider identity matters; everything downstream speaks the
// uniform Provider contract.
type Registry struct {
	providers map[string]Provider
	catalog   config.Catalog
}

func NewRegistry(catalog config.Catalog) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		catalog:   catalog,
	}
}

// Register adds a provider adapter under its own name.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// DefaultModel returns the catalog's default model id.
func (r *Registry) DefaultModel() string {
	return r.catalog.DefaultModel
}

// ForModel resolves the adapter and catalog entry for a model id.
func (r *Registry) ForModel(modelID string) (Provider, config.ModelConfig, error) {
	model, ok := r.catalog.Model(modelID)
	if !ok {
		return nil, config.ModelConfig{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	provider, ok := r.providers[model.Provider]
	if !ok {
		return nil, config.ModelConfig{}, fmt.Errorf("%w: %s (set the API key for %s)",
			ErrProviderNotConfigured, modelID, model.Provider)
	}
	return provider, model, nil
}

// AvailableModels returns the catalog entries whose provider has an adapter
// registered.
func (r *Registry) AvailableModels() []config.ModelConfig {
	var models []config.ModelConfig
	for _, m := range r.catalog.Models {
		if _, ok := r.providers[m.Provider]; ok {
			models = append(models, m)
		}
	}
	return models
}
