package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds providers keyed by Name. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p. Names must be non-blank and unique.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("register provider: nil provider")
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return fmt.Errorf("register provider: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("register provider: %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return p, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Providers returns the registered providers ordered by name.
func (r *Registry) Providers() []Provider {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(names))
	for _, name := range names {
		if p, ok := r.providers[name]; ok {
			out = append(out, p)
		}
	}
	return out
}
