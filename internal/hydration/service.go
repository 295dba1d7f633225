package hydration

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"crudgate/internal/metadata"
)

// Hydrator converts domain objects into plain serializable maps according
// to a hydration config.
type Hydrator struct {
	registry *metadata.Registry
}

func NewHydrator(registry *metadata.Registry) *Hydrator {
	return &Hydrator{registry: registry}
}

// Hydrate resolves the profile and renders obj. When groups is non-empty
// it overrides the profile's own group list, in the requested order; every
// named group must exist. A single selected group short-circuits to that
// group's raw output with no namespacing, whatever the profile's grouping
// flag says.
func (h *Hydrator) Hydrate(ctx context.Context, obj any, config *Config, profileName string, groups []string) (any, error) {
	profile := config.profile(profileName)
	if profile == nil {
		return nil, fmt.Errorf("unknown hydration profile %q", profileName)
	}

	selected := profile.Groups
	if len(groups) > 0 {
		for _, g := range groups {
			if config.group(g) == nil {
				return nil, fmt.Errorf("unknown hydration group %q", g)
			}
			found := false
			for _, pg := range profile.Groups {
				if pg == g {
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("hydration profile %q has no group %q", profileName, g)
			}
		}
		selected = groups
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("hydration profile %q has no groups", profileName)
	}

	if len(selected) == 1 {
		return h.hydrateGroup(ctx, obj, config, selected[0])
	}

	if profile.Grouping {
		out := make(map[string]any, len(selected))
		for _, name := range selected {
			part, err := h.hydrateGroup(ctx, obj, config, name)
			if err != nil {
				return nil, err
			}
			out[name] = part
		}
		return out, nil
	}

	// flat merge, later groups win on key collisions
	out := make(map[string]any)
	for _, name := range selected {
		part, err := h.hydrateGroup(ctx, obj, config, name)
		if err != nil {
			return nil, err
		}
		for k, v := range part {
			out[k] = v
		}
	}
	return out, nil
}

func (h *Hydrator) hydrateGroup(ctx context.Context, obj any, config *Config, name string) (map[string]any, error) {
	group := config.group(name)
	if group == nil {
		return nil, fmt.Errorf("unknown hydration group %q", name)
	}
	if group.Handler != nil {
		return group.Handler(ctx, obj)
	}
	out := make(map[string]any, len(group.Fields))
	for _, path := range group.Fields {
		v, err := h.Resolve(obj, path)
		if err != nil {
			return nil, err
		}
		out[path] = v
	}
	return out, nil
}

// Resolve reads a dotted property path from obj, walking to-one
// associations. A nil object anywhere along the path resolves the whole
// path to nil; an unknown segment is an error naming the path and type.
func (h *Hydrator) Resolve(obj any, path string) (any, error) {
	current := obj
	for i, seg := range strings.Split(path, ".") {
		if current == nil {
			return nil, nil
		}
		v, err := h.property(current, seg)
		if err != nil {
			return nil, fmt.Errorf("path %q (segment %d): %w", path, i, err)
		}
		current = deref(v)
	}
	return current, nil
}

func (h *Hydrator) property(obj any, name string) (any, error) {
	if binding := h.registry.BindingFor(obj); binding != nil && binding.Has(name) {
		return binding.Get(obj, name)
	}
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot read %q from %T", name, obj)
	}
	fv := rv.FieldByName(metadata.ExportedName(name))
	if !fv.IsValid() {
		return nil, fmt.Errorf("%T has no property %q", obj, name)
	}
	return fv.Interface(), nil
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() == reflect.Ptr && rv.IsNil()) {
		return nil
	}
	return v
}
