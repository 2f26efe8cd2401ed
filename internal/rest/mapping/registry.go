package mapping

import (
	"fmt"
	"sort"
	"sync"

	"github.com/conduit-lang/datarest/internal/rest"
)

// Registry holds the resources known to the application. It is populated at
// startup and then frozen.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*Resource
	frozen    bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]*Resource)}
}

// Register adds a resource. Metadata is validated and defaulted.
func (r *Registry) Register(res *Resource) error {
	if res == nil || res.Metadata == nil {
		return fmt.Errorf("resource metadata is required")
	}
	if err := res.Metadata.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %s", res.Metadata.Path)
	}
	if _, exists := r.resources[res.Metadata.Path]; exists {
		return fmt.Errorf("resource %s already registered", res.Metadata.Path)
	}
	r.resources[res.Metadata.Path] = res
	return nil
}

// MustRegister registers a resource and panics on error
func (r *Registry) MustRegister(res *Resource) {
	if err := r.Register(res); err != nil {
		panic(err)
	}
}

// Freeze makes the registry read-only
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup resolves a resource by its path segment
func (r *Registry) Lookup(path string) (*Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[path]
	if !ok {
		return nil, fmt.Errorf("resource %q: %w", path, rest.ErrResourceNotFound)
	}
	return res, nil
}

// All returns every resource ordered by path
func (r *Registry) All() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.Path < out[j].Metadata.Path
	})
	return out
}
