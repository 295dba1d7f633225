package hydration

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"crudgate/internal/metadata"
)

type hydCountry struct {
	ID   int64
	Name string
}

type hydAddress struct {
	ID      int64
	Street  string
	Country *hydCountry
}

type hydUser struct {
	ID        int64
	FirstName string
	Email     string
	Address   *hydAddress
}

func newHydrationRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()

	reg.MustRegister(&metadata.Entity{
		Name:       "country",
		Table:      "countries",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "string"},
		},
	}, &hydCountry{})

	reg.MustRegister(&metadata.Entity{
		Name:       "address",
		Table:      "addresses",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "street", Type: "string"},
		},
		Relations: []metadata.Relation{
			{Name: "country", Type: metadata.ManyToOne, Target: "country", SourceKey: "country_id"},
		},
	}, &hydAddress{})

	reg.MustRegister(&metadata.Entity{
		Name:       "user",
		Table:      "users",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "firstName", Type: "string"},
			{Name: "email", Type: "string"},
		},
		Relations: []metadata.Relation{
			{Name: "address", Type: metadata.OneToOne, Target: "address", SourceKey: "address_id"},
		},
	}, &hydUser{})

	return reg
}

func sampleUser() *hydUser {
	return &hydUser{
		ID:        5,
		FirstName: "Vassily",
		Email:     "vassily@example.org",
		Address: &hydAddress{
			ID:      11,
			Street:  "Brivibas",
			Country: &hydCountry{ID: 2, Name: "Latvia"},
		},
	}
}

func twoGroupConfig(grouping bool) *Config {
	return NewConfig().
		Group("basic", "id", "firstName").
		Group("contact", "email").
		Profile("full", grouping, "basic", "contact")
}

func TestHydrateGroupingNamespaces(t *testing.T) {
	h := NewHydrator(newHydrationRegistry(t))

	out, err := h.Hydrate(context.Background(), sampleUser(), twoGroupConfig(true), "full", nil)
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected a map, got %T", out)
	}
	want := map[string]any{
		"basic":   map[string]any{"id": int64(5), "firstName": "Vassily"},
		"contact": map[string]any{"email": "vassily@example.org"},
	}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("grouped output mismatch:\n got %#v\nwant %#v", m, want)
	}
}

func TestHydrateFlatMerge(t *testing.T) {
	h := NewHydrator(newHydrationRegistry(t))

	out, err := h.Hydrate(context.Background(), sampleUser(), twoGroupConfig(false), "full", nil)
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	m := out.(map[string]any)
	if _, hasGroupKey := m["basic"]; hasGroupKey {
		t.Fatalf("flat merge must not namespace by group name: %#v", m)
	}
	want := map[string]any{"id": int64(5), "firstName": "Vassily", "email": "vassily@example.org"}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("flat output mismatch:\n got %#v\nwant %#v", m, want)
	}
}

func TestHydrateFlatMergeLastWriteWins(t *testing.T) {
	h := NewHydrator(newHydrationRegistry(t))
	cfg := NewConfig().
		GroupFunc("a", func(ctx context.Context, obj any) (map[string]any, error) {
			return map[string]any{"x": 1, "y": 1}, nil
		}).
		GroupFunc("b", func(ctx context.Context, obj any) (map[string]any, error) {
			return map[string]any{"y": 2}, nil
		}).
		Profile("both", false, "a", "b")

	out, err := h.Hydrate(context.Background(), sampleUser(), cfg, "both", nil)
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	m := out.(map[string]any)
	if m["y"] != 2 {
		t.Fatalf("later group must win on collision, got %v", m["y"])
	}
}

func TestHydrateSingleGroupShortcut(t *testing.T) {
	h := NewHydrator(newHydrationRegistry(t))

	// Explicit single-group override skips namespacing even on a grouped
	// profile.
	out, err := h.Hydrate(context.Background(), sampleUser(), twoGroupConfig(true), "full", []string{"contact"})
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	want := map[string]any{"email": "vassily@example.org"}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("single group output mismatch:\n got %#v\nwant %#v", out, want)
	}
}

func TestHydrateBareProfileShorthand(t *testing.T) {
	h := NewHydrator(newHydrationRegistry(t))
	cfg := NewConfig().
		Group("basic", "id", "firstName").
		BareProfile("basic")

	out, err := h.Hydrate(context.Background(), sampleUser(), cfg, "basic", nil)
	if err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	want := map[string]any{"id": int64(5), "firstName": "Vassily"}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("bare profile output mismatch:\n got %#v\nwant %#v", out, want)
	}
}

func TestHydrateUnknownProfileAndGroup(t *testing.T) {
	h := NewHydrator(newHydrationRegistry(t))
	cfg := twoGroupConfig(true)
	ctx := context.Background()

	if _, err := h.Hydrate(ctx, sampleUser(), cfg, "nope", nil); err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if _, err := h.Hydrate(ctx, sampleUser(), cfg, "full", []string{"nope"}); err == nil {
		t.Fatal("expected error for unknown group")
	}
}

func TestResolveDottedPaths(t *testing.T) {
	h := NewHydrator(newHydrationRegistry(t))
	u := sampleUser()

	v, err := h.Resolve(u, "address.country.name")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v != "Latvia" {
		t.Fatalf("expected Latvia, got %v", v)
	}

	// Nil along the path resolves to nil rather than erroring.
	u.Address = nil
	v, err = h.Resolve(u, "address.country.name")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil through nil association, got %v", v)
	}

	// Unknown segments name the path and the type.
	_, err = h.Resolve(u, "email.domain")
	if err == nil {
		t.Fatal("expected error for path through a scalar")
	}
	if !strings.Contains(err.Error(), "email.domain") {
		t.Fatalf("error must name the full path: %v", err)
	}
}
