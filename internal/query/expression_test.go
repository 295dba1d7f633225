package query

import (
	"testing"

	"crudgate/internal/metadata"
)

type testCountry struct {
	ID   int64
	Name string
}

type testAddress struct {
	ID      int64
	Street  string
	Zip     string
	Country *testCountry
}

type testGroup struct {
	ID    int64
	Name  string
	Users []*testUser
}

type testUser struct {
	ID        int64
	FirstName string
	Email     string
	IsActive  bool
	Salary    float64
	BirthDay  *string
	Address   *testAddress
	Groups    []*testGroup
}

func newTestRegistry(t *testing.T) *metadata.Registry {
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
	}, &testCountry{})

	reg.MustRegister(&metadata.Entity{
		Name:       "address",
		Table:      "addresses",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "street", Type: "string"},
			{Name: "zip", Type: "string"},
		},
		Relations: []metadata.Relation{
			{Name: "country", Type: metadata.ManyToOne, Target: "country", SourceKey: "country_id", SortField: "name"},
		},
	}, &testAddress{})

	reg.MustRegister(&metadata.Entity{
		Name:       "group",
		Table:      "groups",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "string"},
		},
		Relations: []metadata.Relation{
			{
				Name: "users", Type: metadata.ManyToMany, Target: "user",
				JoinTable: "users_groups", SourceJoinKey: "group_id", TargetJoinKey: "user_id",
			},
		},
	}, &testGroup{})

	reg.MustRegister(&metadata.Entity{
		Name:       "user",
		Table:      "users",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "firstName", Type: "string"},
			{Name: "email", Type: "string"},
			{Name: "isActive", Type: "boolean"},
			{Name: "salary", Type: "float"},
			{Name: "birthDay", Type: "date", Nullable: true},
		},
		Relations: []metadata.Relation{
			{Name: "address", Type: metadata.OneToOne, Target: "address", SourceKey: "address_id"},
			{
				Name: "groups", Type: metadata.ManyToMany, Target: "group",
				JoinTable: "users_groups", SourceJoinKey: "user_id", TargetJoinKey: "group_id",
			},
		},
	}, &testUser{})

	return reg
}

func newUserManager(t *testing.T) *ExpressionManager {
	t.Helper()
	reg := newTestRegistry(t)
	return NewExpressionManager(reg, reg.GetEntity("user"))
}

func TestAllocateIsIdempotent(t *testing.T) {
	em := newUserManager(t)

	first, err := em.Allocate("address.country")
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	second, err := em.Allocate("address.country")
	if err != nil {
		t.Fatalf("second Allocate failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical aliases, got %q and %q", first, second)
	}

	if len(em.Joins()) != 2 {
		t.Fatalf("expected 2 joins (address, address.country), got %d", len(em.Joins()))
	}
	seen := map[string]bool{}
	for _, j := range em.Joins() {
		if seen[j.Path] {
			t.Fatalf("duplicate join for path %q", j.Path)
		}
		seen[j.Path] = true
	}
	if !seen["address"] || !seen["address.country"] {
		t.Fatalf("missing prefix joins, got %v", seen)
	}
}

func TestAllocateSharesPrefixes(t *testing.T) {
	em := newUserManager(t)

	countryAlias, err := em.Allocate("address.country")
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	addressAlias, err := em.Allocate("address")
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if addressAlias == countryAlias {
		t.Fatalf("distinct paths share alias %q", addressAlias)
	}
	if len(em.Joins()) != 2 {
		t.Fatalf("prefix reuse broken: expected 2 joins, got %d", len(em.Joins()))
	}
}

func TestColumnResolution(t *testing.T) {
	em := newUserManager(t)

	col, err := em.Column("email")
	if err != nil {
		t.Fatalf("Column failed: %v", err)
	}
	if col != "e.email" {
		t.Fatalf("expected e.email, got %q", col)
	}

	// A to-one association resolves to the FK column on its owning side.
	col, err = em.Column("address")
	if err != nil {
		t.Fatalf("Column failed: %v", err)
	}
	if col != "e.address_id" {
		t.Fatalf("expected e.address_id, got %q", col)
	}

	col, err = em.Column("address.country.name")
	if err != nil {
		t.Fatalf("Column failed: %v", err)
	}
	alias, _ := em.Allocate("address.country")
	if col != alias+".name" {
		t.Fatalf("expected %s.name, got %q", alias, col)
	}

	if _, err := em.Column("groups"); err == nil {
		t.Fatal("expected error resolving a collection to a column")
	}
	if _, err := em.Column("nope"); err == nil {
		t.Fatal("expected error for unknown property")
	}
}
