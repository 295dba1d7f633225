package hydration

import (
	"context"
	"fmt"

	"crudgate/internal/metadata"
)

// EntityHydrator builds a hydration group from entity metadata instead of
// a hand-enumerated field list: every declared field of the object's
// entity, minus exclusions, plus named expressions resolved as dotted
// property paths through to-one associations.
type EntityHydrator struct {
	registry    *metadata.Registry
	exclude     map[string]bool
	expressions map[string]string
}

func NewEntityHydrator(registry *metadata.Registry) *EntityHydrator {
	return &EntityHydrator{
		registry:    registry,
		exclude:     map[string]bool{},
		expressions: map[string]string{},
	}
}

// Exclude drops fields from the output.
func (e *EntityHydrator) Exclude(fields ...string) *EntityHydrator {
	for _, f := range fields {
		e.exclude[f] = true
	}
	return e
}

// Expression adds an output key computed from a dotted property path, for
// pulling association fields (say "country.name") up into the record.
func (e *EntityHydrator) Expression(key, path string) *EntityHydrator {
	e.expressions[key] = path
	return e
}

// Group renders the configured field map as a handler usable with
// Config.GroupFunc. The entity is looked up from the object at hydration
// time, so one hydrator serves any registered type.
func (e *EntityHydrator) Group() GroupFunc {
	resolver := NewHydrator(e.registry)
	return func(ctx context.Context, obj any) (map[string]any, error) {
		binding := e.registry.BindingFor(obj)
		if binding == nil {
			return nil, fmt.Errorf("no registered entity for %T", obj)
		}
		out := make(map[string]any, len(binding.Entity.Fields)+len(e.expressions))
		for _, f := range binding.Entity.Fields {
			if e.exclude[f.Name] {
				continue
			}
			v, err := binding.Get(obj, f.Name)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		for key, path := range e.expressions {
			v, err := resolver.Resolve(obj, path)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	}
}
