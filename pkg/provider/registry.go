package provider

import (
	"fmt"
	"strings"
)

// Registry is a read-only provider registry indexed by name.
type Registry struct {
	byName map[string]Provider
	order  []Provider
}

// NewRegistry builds a registry from the given providers. Names must be
// non-empty and unique; registration order is preserved for iteration.
func NewRegistry(providers ...Provider) (*Registry, error) {
	byName := make(map[string]Provider, len(providers))
	order := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("nil provider")
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			return nil, fmt.Errorf("provider has empty name")
		}
		if _, ok := byName[name]; ok {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		byName[name] = p
		order = append(order, p)
	}
	return &Registry{byName: byName, order: order}, nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// All returns every provider in registration order.
func (r *Registry) All() []Provider {
	out := make([]Provider, len(r.order))
	copy(out, r.order)
	return out
}

// Searchable returns every provider that supports free-text search, in
// registration order. The first one is the primary search provider.
func (r *Registry) Searchable() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, p := range r.order {
		if p.Searchable() {
			out = append(out, p)
		}
	}
	return out
}

// ForURL returns the provider whose platform owns the URL.
func (r *Registry) ForURL(url string) (Provider, bool) {
	for _, p := range r.order {
		if p.CanHandle(url) {
			return p, true
		}
	}
	return nil, false
}
