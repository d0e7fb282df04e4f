package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoBackend is returned when no provider can serve a model.
var ErrNoBackend = errors.New("no backend for model")

// BackendInfo pairs a backend name with its capabilities.
type BackendInfo struct {
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds registered providers and resolves which one answers a
// given model name: an explicit route wins, then the default provider if it
// supports the model.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	routes   map[string]string
	fallback string
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		routes:   make(map[string]string),
	}
}

// Register adds a backend to the registry under the given name. The first
// registered backend becomes the default.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
	if r.fallback == "" {
		r.fallback = name
	}
}

// SetDefault selects the backend used for models without a route.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[name]; !ok {
		return fmt.Errorf("backend %q is not registered", name)
	}
	r.fallback = name
	return nil
}

// Route sends every request for modelName to the named backend.
func (r *Registry) Route(modelName, backendName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[backendName]; !ok {
		return fmt.Errorf("backend %q is not registered", backendName)
	}
	r.routes[modelName] = backendName
	return nil
}

// Resolve returns the backend that answers modelName.
func (r *Registry) Resolve(modelName string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.routes[modelName]; ok {
		return r.backends[name], nil
	}
	if b, ok := r.backends[r.fallback]; ok && b.Capabilities().Supports(modelName) {
		return b, nil
	}
	return nil, fmt.Errorf("%w %q", ErrNoBackend, modelName)
}

// List returns information about all registered backends, sorted by name.
func (r *Registry) List() []BackendInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]BackendInfo, 0, len(r.backends))
	for name, b := range r.backends {
		infos = append(infos, BackendInfo{
			Name:         name,
			Capabilities: b.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
