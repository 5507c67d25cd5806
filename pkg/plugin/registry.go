package plugin

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Registry maps plugin names to their definitions.
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
}

// NewRegistry creates a registry holding defs.
func NewRegistry(defs ...*Definition) (*Registry, error) {
	reg := &Registry{definitions: make(map[string]*Definition, len(defs))}
	for _, def := range defs {
		err := reg.Register(def)
		if err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// Register adds a definition. Names are unique.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return ErrNameMustBeSet
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.definitions[def.name]; ok {
		return errors.Wrapf(ErrAlreadyRegistered, "%q", def.name)
	}
	r.definitions[def.name] = def

	return nil
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotRegistered, "%q", name)
	}

	return def, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.definitions[name]

	return ok
}

// Names returns the registered names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Definitions returns the registered definitions sorted by name.
func (r *Registry) Definitions() []*Definition {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.definitions[name])
	}

	return defs
}
