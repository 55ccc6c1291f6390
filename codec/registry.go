package codec

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/arloliu/lvbits/errs"
)

// Registry maps model names to loaders.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]Loader)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used by Register and Load.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register registers a loader in the default registry.
func Register(name string, loader Loader) {
	defaultRegistry.Register(name, loader)
}

// Load loads a model from the default registry.
func Load(ctx context.Context, cfg LoadConfig) (Model, error) {
	return defaultRegistry.Load(ctx, cfg)
}

// Register registers loader under name, replacing any previous registration.
func (r *Registry) Register(name string, loader Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loaders[name] = loader
}

// Lookup returns the loader registered under name.
func (r *Registry) Lookup(name string) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loader, ok := r.loaders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrModelNotFound, name)
	}

	return loader, nil
}

// Load looks up cfg.Name and invokes its loader.
func (r *Registry) Load(ctx context.Context, cfg LoadConfig) (Model, error) {
	loader, err := r.Lookup(cfg.Name)
	if err != nil {
		return nil, err
	}

	return loader(ctx, cfg)
}

// Loader returns a Loader bound to this registry, for use with session.New.
func (r *Registry) Loader() Loader {
	return r.Load
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.loaders))
	for name := range r.loaders {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
