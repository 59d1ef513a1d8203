package provider

import (
	"errors"
	"fmt"
	"sort"

	"bankid-auth/internal/auth"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Registry holds the configured providers keyed by variant tag. It is
// built once at startup and never modified.
type Registry struct {
	providers map[auth.ProviderType]Provider
}

// NewRegistry registers the given providers. Variant tags must be unique.
func NewRegistry(list ...Provider) *Registry {
	m := make(map[auth.ProviderType]Provider, len(list))
	for _, p := range list {
		m[p.Type()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[auth.ProviderType(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Types lists the registered variant tags in a stable order.
func (r *Registry) Types() []auth.ProviderType {
	out := make([]auth.ProviderType, 0, len(r.providers))
	for t := range r.providers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
