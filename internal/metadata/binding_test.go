package metadata

import (
	"testing"
	"time"
)

type boundRecord struct {
	ID        int64
	Name      string
	IsActive  bool
	Salary    float64
	CreatedAt *time.Time
}

func newBoundEntity(t *testing.T) *TypeBinding {
	t.Helper()
	b, err := BindType(&Entity{
		Name:       "record",
		Table:      "records",
		PrimaryKey: PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []Field{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "string"},
			{Name: "isActive", Type: "boolean"},
			{Name: "salary", Type: "float"},
			{Name: "createdAt", Type: "datetime"},
		},
	}, &boundRecord{})
	if err != nil {
		t.Fatalf("BindType: %v", err)
	}
	return b
}

func TestBindResolvesInitialisms(t *testing.T) {
	b := newBoundEntity(t)
	obj := &boundRecord{}

	// "id" must land on the ID field, not a nonexistent Id.
	if err := b.Set(obj, "id", int64(7)); err != nil {
		t.Fatalf("Set id: %v", err)
	}
	if obj.ID != 7 {
		t.Fatalf("ID = %d", obj.ID)
	}
	id, err := b.ID(obj)
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	if id.(int64) != 7 {
		t.Fatalf("unexpected id %v", id)
	}
}

func TestExportedNameKeepsIsPrefix(t *testing.T) {
	if got := ExportedName("isActive"); got != "IsActive" {
		t.Fatalf("ExportedName(isActive) = %q", got)
	}
	getter, setter := AccessorNames("isActive")
	if getter != "IsActive" || setter != "SetIsActive" {
		t.Fatalf("AccessorNames = %q, %q", getter, setter)
	}
}

func TestSetConvertsNumericKinds(t *testing.T) {
	b := newBoundEntity(t)
	obj := &boundRecord{}

	// Drivers hand back int64 for integer-typed columns regardless of the
	// Go field's width, and float64 for REAL.
	if err := b.Set(obj, "salary", float64(1200.5)); err != nil {
		t.Fatalf("Set salary: %v", err)
	}
	if err := b.Set(obj, "id", int(3)); err != nil {
		t.Fatalf("Set id from int: %v", err)
	}
	if obj.Salary != 1200.5 || obj.ID != 3 {
		t.Fatalf("unexpected state: %+v", obj)
	}
}

func TestSetParsesStoredTimeStrings(t *testing.T) {
	b := newBoundEntity(t)

	for _, s := range []string{
		"1984-12-07 09:30:00",
		"1984-12-07T09:30:00Z",
		"1984-12-07",
	} {
		obj := &boundRecord{}
		if err := b.Set(obj, "createdAt", s); err != nil {
			t.Fatalf("Set createdAt from %q: %v", s, err)
		}
		if obj.CreatedAt == nil || obj.CreatedAt.Year() != 1984 {
			t.Fatalf("%q did not parse: %v", s, obj.CreatedAt)
		}
	}

	obj := &boundRecord{}
	if err := b.Set(obj, "createdAt", "not a time"); err == nil {
		t.Fatal("junk string must not assign into a time field")
	}
}

func TestSetNilZeroesField(t *testing.T) {
	b := newBoundEntity(t)
	now := time.Now()
	obj := &boundRecord{Name: "x", CreatedAt: &now}

	if err := b.Set(obj, "createdAt", nil); err != nil {
		t.Fatalf("Set nil: %v", err)
	}
	if obj.CreatedAt != nil {
		t.Fatal("nil must clear the pointer field")
	}
	if err := b.Set(obj, "name", nil); err != nil {
		t.Fatalf("Set nil on string: %v", err)
	}
	if obj.Name != "" {
		t.Fatalf("nil must zero the string field, got %q", obj.Name)
	}
}

func (r *boundRecord) Tag(label string) { r.Name = label }

func (r *boundRecord) Adjust(salary float64, active bool) {
	r.Salary = salary
	r.IsActive = active
}

func TestCallMatchesArgumentsPositionally(t *testing.T) {
	b := newBoundEntity(t)
	obj := &boundRecord{}

	if err := b.Call(obj, "Tag", "vip"); err != nil {
		t.Fatalf("Call Tag: %v", err)
	}
	if obj.Name != "vip" {
		t.Fatalf("Name = %q", obj.Name)
	}

	if err := b.Call(obj, "Adjust", 120.5, true); err != nil {
		t.Fatalf("Call Adjust: %v", err)
	}
	if obj.Salary != 120.5 || !obj.IsActive {
		t.Fatalf("Adjust did not apply: %+v", obj)
	}

	if err := b.Call(obj, "Adjust", 120.5); err == nil {
		t.Fatal("wrong arity must be an error")
	}
	if err := b.Call(obj, "Adjust", "x", true); err == nil {
		t.Fatal("unassignable argument must be an error")
	}
	if err := b.Call(obj, "Missing"); err == nil {
		t.Fatal("unknown method must be an error")
	}
}
