package mapping

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"crudgate/internal/metadata"
)

// associationNone is the client sentinel for "no relation selected".
const associationNone = "-"

// Locator resolves association ids to live objects. Missing ids resolve to
// nil without error; the mapper decides how lenient to be.
type Locator interface {
	FindByID(ctx context.Context, entityName string, id any) (any, error)
	FindByIDs(ctx context.Context, entityName string, ids []any) ([]any, error)
}

// Mapper binds untyped payloads onto registered domain objects: scalar
// coercion, to-one lookup, and set-difference reconciliation of to-many
// collections.
type Mapper struct {
	registry   *metadata.Registry
	locator    Locator
	prefs      Preferences
	converters ConverterChain
}

func NewMapper(registry *metadata.Registry, locator Locator, prefs Preferences, converters ...ComplexConverter) *Mapper {
	if prefs == nil {
		prefs = DefaultPreferences{}
	}
	return &Mapper{
		registry:   registry,
		locator:    locator,
		prefs:      prefs,
		converters: ConverterChain(converters),
	}
}

// MapEntity applies payload onto obj for every allowed field present in
// the payload. The identity field is never client-settable and is skipped
// even when listed.
func (m *Mapper) MapEntity(ctx context.Context, obj any, payload map[string]any, allowedFields []string) error {
	binding := m.registry.BindingFor(obj)
	if binding == nil {
		return fmt.Errorf("no entity registered for %T", obj)
	}
	entity := binding.Entity

	for _, name := range allowedFields {
		value, present := payload[name]
		if !present {
			continue
		}
		if name == entity.PrimaryKey.Field {
			continue
		}
		var err error
		switch {
		case entity.HasRelation(name):
			rel := entity.GetRelation(name)
			if rel.IsToOne() {
				err = m.mapToOne(ctx, binding, obj, rel, value)
			} else {
				err = m.mapToMany(ctx, binding, obj, rel, value)
			}
		case entity.HasField(name):
			err = m.mapScalar(binding, obj, entity.GetField(name), value)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("mapping field %q of %s: %w", name, entity.Name, err)
		}
	}
	return nil
}

func (m *Mapper) mapScalar(binding *metadata.TypeBinding, obj any, field *metadata.Field, value any) error {
	if field.IsNumeric() && IsEmptyString(value) {
		// "not provided": let the field keep its default
		return nil
	}
	if converted, claimed, err := m.converters.Convert(field, value); claimed {
		if err != nil {
			return err
		}
		return binding.Set(obj, field.Name, converted)
	}
	converted, err := ConvertScalar(field, value, m.prefs)
	if err != nil {
		return err
	}
	if converted == nil {
		return binding.Set(obj, field.Name, nil)
	}
	if field.IsNumeric() {
		if n, ok := parseNumeric(field, converted); ok {
			converted = n
		}
	}
	return binding.Set(obj, field.Name, converted)
}

func parseNumeric(field *metadata.Field, v any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	switch field.Type {
	case "int", "bigint":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
	case "decimal", "float":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return nil, false
}

// mapToOne resolves the payload id and binds the target. The "-" sentinel
// nulls the association; an id that does not resolve to a row leaves the
// field untouched.
func (m *Mapper) mapToOne(ctx context.Context, binding *metadata.TypeBinding, obj any, rel *metadata.Relation, value any) error {
	if value == nil || value == associationNone {
		return binding.Set(obj, rel.Name, nil)
	}
	target := m.registry.GetEntity(rel.Target)
	if target == nil {
		return fmt.Errorf("relation targets unknown entity %q", rel.Target)
	}
	found, err := m.locator.FindByID(ctx, rel.Target, coerceID(target.PrimaryKey.Type, value))
	if err != nil {
		return err
	}
	if found == nil {
		return nil
	}
	return binding.Set(obj, rel.Name, found)
}

// mapToMany reconciles the collection against the payload id list with a
// set difference. Membership changes go through conventional AddX/RemoveX
// methods when the type declares them, otherwise the collection is mutated
// directly and the inverse side mirrored when it is loaded.
func (m *Mapper) mapToMany(ctx context.Context, binding *metadata.TypeBinding, obj any, rel *metadata.Relation, value any) error {
	target := m.registry.GetEntity(rel.Target)
	targetBinding := m.registry.GetBinding(rel.Target)
	if target == nil || targetBinding == nil {
		return fmt.Errorf("relation targets unknown entity %q", rel.Target)
	}

	wantIDs, err := idList(target.PrimaryKey.Type, value)
	if err != nil {
		return err
	}
	want := make(map[string]any, len(wantIDs))
	for _, id := range wantIDs {
		want[idKey(id)] = id
	}

	current, err := m.currentMembers(binding, obj, rel.Name)
	if err != nil {
		return err
	}
	have := make(map[string]any, len(current))
	var toRemove []any
	for _, member := range current {
		id, err := targetBinding.ID(member)
		if err != nil {
			return err
		}
		key := idKey(id)
		have[key] = member
		if _, keep := want[key]; !keep {
			toRemove = append(toRemove, member)
		}
	}
	var addIDs []any
	for _, id := range wantIDs {
		if _, has := have[idKey(id)]; !has {
			addIDs = append(addIDs, id)
		}
	}

	var toAdd []any
	if len(addIDs) > 0 {
		found, err := m.locator.FindByIDs(ctx, rel.Target, addIDs)
		if err != nil {
			return err
		}
		for _, member := range found {
			if member != nil {
				toAdd = append(toAdd, member)
			}
		}
	}

	singular := Singularize(metadata.ExportedName(rel.Name))
	addMethod, removeMethod := "Add"+singular, "Remove"+singular
	if binding.HasMethod(addMethod) && binding.HasMethod(removeMethod) {
		for _, member := range toRemove {
			if err := binding.Call(obj, removeMethod, member); err != nil {
				return err
			}
		}
		for _, member := range toAdd {
			if err := binding.Call(obj, addMethod, member); err != nil {
				return err
			}
		}
		return nil
	}

	return m.mutateCollection(binding, targetBinding, obj, rel, current, toRemove, toAdd)
}

// currentMembers reads the collection field, initializing an unset one to
// an empty collection first.
func (m *Mapper) currentMembers(binding *metadata.TypeBinding, obj any, name string) ([]any, error) {
	raw, err := binding.Get(obj, name)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(raw)
	if raw == nil || rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%q is not backed by a slice", name)
	}
	if rv.IsNil() {
		empty := reflect.MakeSlice(rv.Type(), 0, 0)
		if err := binding.Set(obj, name, empty.Interface()); err != nil {
			return nil, err
		}
		return nil, nil
	}
	members := make([]any, rv.Len())
	for i := range members {
		members[i] = rv.Index(i).Interface()
	}
	return members, nil
}

func (m *Mapper) mutateCollection(binding, targetBinding *metadata.TypeBinding, obj any, rel *metadata.Relation, current, toRemove, toAdd []any) error {
	removed := make(map[any]bool, len(toRemove))
	for _, member := range toRemove {
		removed[member] = true
	}

	raw, err := binding.Get(obj, rel.Name)
	if err != nil {
		return err
	}
	sliceType := reflect.TypeOf(raw)
	next := reflect.MakeSlice(sliceType, 0, len(current)+len(toAdd))
	for _, member := range current {
		if !removed[member] {
			next = reflect.Append(next, reflect.ValueOf(member))
		}
	}
	for _, member := range toAdd {
		next = reflect.Append(next, reflect.ValueOf(member))
	}
	if err := binding.Set(obj, rel.Name, next.Interface()); err != nil {
		return err
	}

	if rel.Inverse == "" {
		return nil
	}
	for _, member := range toRemove {
		if err := m.mirrorInverse(targetBinding, member, rel, obj, false); err != nil {
			return err
		}
	}
	for _, member := range toAdd {
		if err := m.mirrorInverse(targetBinding, member, rel, obj, true); err != nil {
			return err
		}
	}
	return nil
}

// mirrorInverse keeps the other side of a bidirectional association
// consistent. It is best effort: an unloaded inverse collection is left
// alone rather than fetched.
func (m *Mapper) mirrorInverse(targetBinding *metadata.TypeBinding, member any, rel *metadata.Relation, owner any, adding bool) error {
	inverse := targetBinding.Entity.GetRelation(rel.Inverse)
	if inverse == nil {
		return nil
	}
	if inverse.IsToOne() {
		if adding {
			return targetBinding.Set(member, inverse.Name, owner)
		}
		return targetBinding.Set(member, inverse.Name, nil)
	}

	raw, err := targetBinding.Get(member, inverse.Name)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(raw)
	if raw == nil || rv.Kind() != reflect.Slice || rv.IsNil() {
		return nil
	}
	if adding {
		next := reflect.Append(rv, reflect.ValueOf(owner))
		return targetBinding.Set(member, inverse.Name, next.Interface())
	}
	next := reflect.MakeSlice(rv.Type(), 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if rv.Index(i).Interface() != owner {
			next = reflect.Append(next, rv.Index(i))
		}
	}
	return targetBinding.Set(member, inverse.Name, next.Interface())
}

// idList normalizes the wire form of a to-many value: a list of ids or a
// comma-delimited string.
func idList(pkType string, value any) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		parts := strings.Split(v, ",")
		ids := make([]any, 0, len(parts))
		for _, p := range parts {
			ids = append(ids, coerceID(pkType, p))
		}
		return ids, nil
	case []any:
		ids := make([]any, 0, len(v))
		for _, item := range v {
			ids = append(ids, coerceID(pkType, item))
		}
		return ids, nil
	case []string:
		ids := make([]any, 0, len(v))
		for _, item := range v {
			ids = append(ids, coerceID(pkType, item))
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("cannot interpret %T as an id list", value)
	}
}

func coerceID(pkType string, v any) any {
	switch pkType {
	case "int", "bigint":
		switch n := v.(type) {
		case string:
			if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
				return parsed
			}
		case float64:
			return int64(n)
		case int:
			return int64(n)
		case int64:
			return n
		}
	case "uuid", "string":
		if s, ok := v.(string); ok {
			return s
		}
	}
	return v
}

func idKey(id any) string {
	return fmt.Sprint(id)
}
