// Package registry holds the name-keyed set of registered providers.
// Registration happens during startup wiring; reads happen afterwards.
package registry

import (
	"sort"
	"sync"

	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/provider"
)

type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
}

func New() *Registry {
	return &Registry{
		providers: make(map[string]provider.Provider),
	}
}

// Register stores a provider by name. Last write wins.
func (r *Registry) Register(p provider.Provider) {
	if p == nil || p.Name() == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, models.ErrProviderNotFound
	}

	return p, nil
}

// All returns every registered provider, sorted by name for stable
// enumeration.
func (r *Registry) All() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ans := make([]provider.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		ans = append(ans, p)
	}

	sort.Slice(ans, func(i, j int) bool { return ans[i].Name() < ans[j].Name() })

	return ans
}

// ByCategory returns the registered providers in the given category.
func (r *Registry) ByCategory(category string) []provider.Provider {
	all := r.All()

	ans := make([]provider.Provider, 0, len(all))
	for _, p := range all {
		if p.Category() == category {
			ans = append(ans, p)
		}
	}

	return ans
}
