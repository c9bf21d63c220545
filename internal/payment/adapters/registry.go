package adapters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/storefront/internal/payment/domain"
)

// Registry resolves the PAYMENT_PROVIDER setting to a gateway factory.
// Provider names are matched without regard to case or surrounding space.
type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: make(map[string]domain.AdapterFactory, len(factories))}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		if name := providerKey(factory.Provider()); name != "" {
			registry.factories[name] = factory
		}
	}
	return registry
}

// Providers lists the registered provider names in sorted order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[providerKey(provider)]
	return ok
}

// NewAdapter builds the gateway for provider. Errors name the configured
// provider so a bad PAYMENT_PROVIDER or secret is obvious at startup.
func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.Gateway, error) {
	name := providerKey(provider)
	if name == "" {
		return nil, fmt.Errorf("%w: PAYMENT_PROVIDER is empty (registered: %s)", domain.ErrProviderNotFound, r.known())
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrProviderNotFound, provider)
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", domain.ErrProviderNotFound, provider, r.known())
	}
	gateway, err := factory.NewAdapter(cfg)
	if err != nil {
		return nil, fmt.Errorf("payment provider %s: %w", name, err)
	}
	return gateway, nil
}

func (r *Registry) known() string {
	names := r.Providers()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func providerKey(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
