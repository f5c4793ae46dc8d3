package node

import (
	"fmt"
	"sort"
	"sync"

	"github.com/diazhh/petroedge-sub001/internal/schema"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// Registry maps node type identifiers to their definitions and factories.
// It is safe for concurrent use; registration normally happens once at
// startup but plugins may add types later.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	def     Definition
	factory Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a node type. Registering a duplicate type identifier is a
// programming error and is rejected.
func (r *Registry) Register(def Definition, factory Factory) error {
	if def.Type == "" {
		return fmt.Errorf("node definition missing type identifier")
	}
	if factory == nil {
		return fmt.Errorf("node type %q has no factory", def.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Type]; exists {
		return fmt.Errorf("node type %q already registered", def.Type)
	}
	r.entries[def.Type] = entry{def: def, factory: factory}
	return nil
}

// MustRegister registers a node type and panics on error. Intended for the
// built-in catalog where a registration failure is a startup bug.
func (r *Registry) MustRegister(def Definition, factory Factory) {
	if err := r.Register(def, factory); err != nil {
		panic(err)
	}
}

// Definition returns the definition for a type identifier.
func (r *Registry) Definition(typ string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[typ]
	if !ok {
		return Definition{}, &UnknownTypeError{Type: typ}
	}
	return e.def, nil
}

// Build validates config against the type's schema and instantiates a
// handler. Config violations come back as NODE_CONFIG_INVALID.
func (r *Registry) Build(typ string, config map[string]any) (Handler, error) {
	r.mu.RLock()
	e, ok := r.entries[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{Type: typ}
	}

	if errs := schema.NewValidator(&e.def.ConfigSchema).ValidateMap(config); len(errs) > 0 {
		return nil, types.WrapError(types.NODE_CONFIG_INVALID,
			fmt.Sprintf("node type %q config", typ), &errs[0])
	}

	h, err := e.factory(config)
	if err != nil {
		return nil, types.WrapError(types.NODE_CONFIG_INVALID,
			fmt.Sprintf("node type %q config", typ), err)
	}
	return h, nil
}

// Contains reports whether the type identifier is registered.
func (r *Registry) Contains(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[typ]
	return ok
}

// Definitions returns every registered definition sorted by type identifier.
// This is the node catalog surface.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}
