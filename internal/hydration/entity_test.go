package hydration

import (
	"context"
	"reflect"
	"testing"
)

func TestEntityHydratorRendersDeclaredFields(t *testing.T) {
	reg := newHydrationRegistry(t)
	group := NewEntityHydrator(reg).Group()

	out, err := group(context.Background(), sampleUser())
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	want := map[string]any{"id": int64(5), "firstName": "Vassily", "email": "vassily@example.org"}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("got %v, want %v", out, want)
	}
}

func TestEntityHydratorExcludesFields(t *testing.T) {
	reg := newHydrationRegistry(t)
	group := NewEntityHydrator(reg).Exclude("email").Group()

	out, err := group(context.Background(), sampleUser())
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if _, ok := out["email"]; ok {
		t.Fatalf("excluded field leaked: %v", out)
	}
	if out["firstName"] != "Vassily" {
		t.Fatalf("remaining fields must survive: %v", out)
	}
}

func TestEntityHydratorExpressions(t *testing.T) {
	reg := newHydrationRegistry(t)
	group := NewEntityHydrator(reg).
		Expression("countryName", "address.country.name").
		Group()

	out, err := group(context.Background(), sampleUser())
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if out["countryName"] != "Latvia" {
		t.Fatalf("expression not resolved: %v", out)
	}

	// a nil link along the path resolves to nil, not an error
	user := sampleUser()
	user.Address = nil
	out, err = group(context.Background(), user)
	if err != nil {
		t.Fatalf("hydrate with nil association: %v", err)
	}
	if out["countryName"] != nil {
		t.Fatalf("expected nil for a broken path, got %v", out["countryName"])
	}
}

func TestEntityHydratorServesAnyRegisteredType(t *testing.T) {
	reg := newHydrationRegistry(t)
	group := NewEntityHydrator(reg).Group()

	out, err := group(context.Background(), &hydCountry{ID: 2, Name: "Latvia"})
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	want := map[string]any{"id": int64(2), "name": "Latvia"}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("got %v, want %v", out, want)
	}

	if _, err := group(context.Background(), struct{}{}); err == nil {
		t.Fatal("unregistered type must be an error")
	}
}
