package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// TypeBinding links an entity definition to a concrete Go struct type. All
// field lookups are resolved once, when the type is registered, so the per
// record work during mapping and hydration is a cached index access rather
// than a name search.
type TypeBinding struct {
	Entity *Entity

	goType  reflect.Type        // struct type, without pointer
	fields  map[string][]int    // declared name -> struct field index path
	methods map[string]struct{} // method set of *T
}

// BindType builds the accessor table for prototype, which must be a pointer
// to a struct. Every field and relation declared on the entity must resolve
// to an exported struct field.
func BindType(entity *Entity, prototype any) (*TypeBinding, error) {
	t := reflect.TypeOf(prototype)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("prototype must be a pointer to struct, got %T", prototype)
	}
	elem := t.Elem()

	b := &TypeBinding{
		Entity:  entity,
		goType:  elem,
		fields:  make(map[string][]int),
		methods: make(map[string]struct{}, t.NumMethod()),
	}

	for _, f := range entity.Fields {
		if err := b.resolve(f.Name); err != nil {
			return nil, err
		}
	}
	for _, r := range entity.Relations {
		if err := b.resolve(r.Name); err != nil {
			return nil, err
		}
	}
	if pk := entity.PrimaryKey.Field; pk != "" {
		if _, ok := b.fields[pk]; !ok {
			if err := b.resolve(pk); err != nil {
				return nil, err
			}
		}
	}

	for i := 0; i < t.NumMethod(); i++ {
		b.methods[t.Method(i).Name] = struct{}{}
	}
	return b, nil
}

func (b *TypeBinding) resolve(name string) error {
	goName := ExportedName(name)
	sf, ok := b.goType.FieldByName(goName)
	if !ok {
		// Initialisms: "id" resolves to ID, not Id.
		sf, ok = b.goType.FieldByNameFunc(func(candidate string) bool {
			return strings.EqualFold(candidate, goName)
		})
	}
	if !ok || !sf.IsExported() {
		return fmt.Errorf("type %s has no field %s for %q", b.goType.Name(), goName, name)
	}
	b.fields[name] = sf.Index
	return nil
}

// ExportedName maps a declared field name to the Go struct field that backs
// it. Names already carrying an "is" prefix keep it: "isActive" stays
// IsActive rather than collapsing to Active.
func ExportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// AccessorNames returns the conventional accessor method names for a field.
// The getter keeps an existing "is" prefix instead of prepending "Get".
func AccessorNames(name string) (getter, setter string) {
	exported := ExportedName(name)
	if strings.HasPrefix(exported, "Is") && len(exported) > 2 {
		getter = exported
	} else {
		getter = "Get" + exported
	}
	return getter, "Set" + exported
}

// Matches reports whether obj is an instance (pointer) of the bound type.
func (b *TypeBinding) Matches(obj any) bool {
	t := reflect.TypeOf(obj)
	return t != nil && t.Kind() == reflect.Ptr && t.Elem() == b.goType
}

// New returns a freshly allocated instance of the bound type.
func (b *TypeBinding) New() any {
	return reflect.New(b.goType).Interface()
}

// Has reports whether the binding resolves the given declared name.
func (b *TypeBinding) Has(name string) bool {
	_, ok := b.fields[name]
	return ok
}

// Get reads the named field from obj.
func (b *TypeBinding) Get(obj any, name string) (any, error) {
	fv, err := b.fieldValue(obj, name)
	if err != nil {
		return nil, err
	}
	return fv.Interface(), nil
}

// Set writes v into the named field of obj, converting between compatible
// representations: pointer fields accept bare values and nil, numeric kinds
// convert between each other, everything else must be assignable.
func (b *TypeBinding) Set(obj any, name string, v any) error {
	fv, err := b.fieldValue(obj, name)
	if err != nil {
		return err
	}
	if !fv.CanSet() {
		return fmt.Errorf("%s.%s is not settable", b.Entity.Name, name)
	}
	if v == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	vv := reflect.ValueOf(v)
	if ok := assign(fv, vv); !ok {
		return fmt.Errorf("cannot assign %T to %s.%s (%s)", v, b.Entity.Name, name, fv.Type())
	}
	return nil
}

func assign(dst, src reflect.Value) bool {
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return true
	}
	// bare value into pointer field
	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if assign(elem.Elem(), src) {
			dst.Set(elem)
			return true
		}
		return false
	}
	// pointer value into bare field
	if src.Kind() == reflect.Ptr && !src.IsNil() {
		return assign(dst, src.Elem())
	}
	// SQLite hands temporal TEXT columns back as strings.
	if dst.Type() == timeType && src.Kind() == reflect.String {
		if t, ok := parseStoredTime(src.String()); ok {
			dst.Set(reflect.ValueOf(t))
			return true
		}
		return false
	}
	if isNumericKind(dst.Kind()) && isNumericKind(src.Kind()) && src.Type().ConvertibleTo(dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
		return true
	}
	return false
}

var timeType = reflect.TypeOf(time.Time{})

var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseStoredTime(s string) (time.Time, bool) {
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func (b *TypeBinding) fieldValue(obj any, name string) (reflect.Value, error) {
	idx, ok := b.fields[name]
	if !ok {
		return reflect.Value{}, fmt.Errorf("%s has no field %q", b.Entity.Name, name)
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("%s: expected non-nil pointer, got %T", b.Entity.Name, obj)
	}
	return rv.Elem().FieldByIndex(idx), nil
}

// HasMethod reports whether the bound pointer type declares the method.
func (b *TypeBinding) HasMethod(name string) bool {
	_, ok := b.methods[name]
	return ok
}

// Call invokes a method on obj by name. Arguments are matched to the
// method's parameters positionally.
func (b *TypeBinding) Call(obj any, method string, args ...any) error {
	m := reflect.ValueOf(obj).MethodByName(method)
	if !m.IsValid() {
		return fmt.Errorf("%s has no method %s", b.Entity.Name, method)
	}
	mt := m.Type()
	if mt.NumIn() != len(args) {
		return fmt.Errorf("%s.%s: got %d arguments, takes %d", b.Entity.Name, method, len(args), mt.NumIn())
	}
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		av := reflect.ValueOf(arg)
		if !av.IsValid() || !av.Type().AssignableTo(mt.In(i)) {
			return fmt.Errorf("%s.%s: cannot pass %T as argument %d", b.Entity.Name, method, arg, i)
		}
		in[i] = av
	}
	m.Call(in)
	return nil
}

// ID returns the primary key value of obj.
func (b *TypeBinding) ID(obj any) (any, error) {
	return b.Get(obj, b.Entity.PrimaryKey.Field)
}
