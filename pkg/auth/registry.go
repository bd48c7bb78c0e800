package auth

import (
	"fmt"
	"sync"

	apperrors "github.com/quill-wallet/quill-wallet/pkg/errors"
)

// Registry holds the configured providers keyed by their type.
// Registration replaces any previous provider of the same type.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under its type key.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := p.Type()
	if _, exists := r.providers[key]; !exists {
		r.order = append(r.order, key)
	}
	r.providers[key] = p
}

// Get returns the provider registered under the type, enabled or not.
func (r *Registry) Get(providerType string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[providerType]
	return p, ok
}

// Resolve returns the provider for a flow: it must exist and be enabled.
func (r *Registry) Resolve(providerType string) (Provider, error) {
	p, ok := r.Get(providerType)
	if !ok {
		return nil, apperrors.NewWithDetail(
			apperrors.KindValidation,
			apperrors.ErrCodeProviderNotFound,
			"Unknown auth provider",
			fmt.Sprintf("provider: %s", providerType),
		)
	}
	if !p.Enabled() {
		return nil, apperrors.NewWithDetail(
			apperrors.KindValidation,
			apperrors.ErrCodeProviderDisabled,
			"Auth provider is not configured",
			fmt.Sprintf("provider: %s", providerType),
		)
	}
	return p, nil
}

// Available returns the enabled providers in registration order.
func (r *Registry) Available() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.order))
	for _, key := range r.order {
		if p := r.providers[key]; p.Enabled() {
			out = append(out, p)
		}
	}
	return out
}

// Types returns the type keys of the enabled providers in registration
// order.
func (r *Registry) Types() []string {
	providers := r.Available()
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = p.Type()
	}
	return out
}
