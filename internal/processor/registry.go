package processor

import (
	"fmt"
	"slices"
	"sync"
)

// Factory builds a processor from its configuration. Factories validate every
// parameter they read and return a ConfigError on the first bad one.
type Factory func(cfg Config) (Processor, error)

// Registry maps processor IDs to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[FilterID]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[FilterID]Factory)}
}

// DefaultRegistry returns a registry holding every built-in processor.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for id, f := range builtinFactories {
		r.Register(id, f)
	}
	return r
}

// Register adds or replaces the factory for id.
func (r *Registry) Register(id FilterID, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// New constructs the processor registered under id.
func (r *Registry) New(id FilterID, cfg Config) (Processor, error) {
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, id)
	}
	p, err := f(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id FilterID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// IDs returns the registered IDs, sorted.
func (r *Registry) IDs() []FilterID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]FilterID, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
