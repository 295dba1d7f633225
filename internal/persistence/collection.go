package persistence

import (
	"fmt"
	"reflect"

	"crudgate/internal/metadata"
)

func isNilSlice(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice && rv.IsNil()
}

// initEmptyCollection sets an unset slice field to an empty collection so
// "loaded and empty" is distinguishable from "never loaded".
func initEmptyCollection(binding *metadata.TypeBinding, obj any, name string) error {
	raw, err := binding.Get(obj, name)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("%s.%s is not backed by a slice", binding.Entity.Name, name)
	}
	if !rv.IsNil() {
		return nil
	}
	return binding.Set(obj, name, reflect.MakeSlice(rv.Type(), 0, 0).Interface())
}

// appendMember appends one object to a slice-backed collection field.
func appendMember(binding *metadata.TypeBinding, obj any, name string, member any) error {
	raw, err := binding.Get(obj, name)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("%s.%s is not backed by a slice", binding.Entity.Name, name)
	}
	next := reflect.Append(rv, reflect.ValueOf(member))
	return binding.Set(obj, name, next.Interface())
}

// memberIDs resolves the ids of a loaded collection. A nil slice yields
// nil, meaning "not loaded".
func memberIDs(registry *metadata.Registry, binding *metadata.TypeBinding, obj any, rel *metadata.Relation) ([]any, error) {
	raw, err := binding.Get(obj, rel.Name)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(raw)
	if raw == nil || rv.Kind() != reflect.Slice || rv.IsNil() {
		return nil, nil
	}
	targetBinding := registry.GetBinding(rel.Target)
	if targetBinding == nil {
		return nil, fmt.Errorf("no binding for entity %q", rel.Target)
	}
	ids := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		id, err := targetBinding.ID(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
