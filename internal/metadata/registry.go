package metadata

import (
	"fmt"
	"sync"
)

// Registry holds every entity definition together with the Go type bound to
// it. Entities are registered once at startup; lookups are read-mostly.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	bindings map[string]*TypeBinding
}

func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
		bindings: make(map[string]*TypeBinding),
	}
}

// Register adds an entity definition and binds it to the Go type of
// prototype. The prototype must be a pointer to a struct; its exported
// fields back the entity's declared fields and relations.
func (r *Registry) Register(entity *Entity, prototype any) error {
	binding, err := BindType(entity, prototype)
	if err != nil {
		return fmt.Errorf("register %s: %w", entity.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[entity.Name]; ok {
		return fmt.Errorf("register %s: already registered", entity.Name)
	}
	r.entities[entity.Name] = entity
	r.bindings[entity.Name] = binding
	return nil
}

// MustRegister is Register that panics on error. Used from package setup
// code where a bad definition is a programming mistake.
func (r *Registry) MustRegister(entity *Entity, prototype any) {
	if err := r.Register(entity, prototype); err != nil {
		panic(err)
	}
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// GetBinding returns the type binding for the given entity name, or nil.
func (r *Registry) GetBinding(name string) *TypeBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bindings[name]
}

// BindingFor returns the binding for a live object, resolved by its Go type.
func (r *Registry) BindingFor(obj any) *TypeBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bindings {
		if b.Matches(obj) {
			return b
		}
	}
	return nil
}

// AllEntities returns all registered entities.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	return entities
}
