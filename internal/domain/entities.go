package domain

import (
	"time"

	"crudgate/internal/metadata"
)

// The sample schema exercised by the server: users belong to groups
// (many-to-many), have one address, and addresses point at a country.

type Country struct {
	ID   int64
	Name string
}

type Address struct {
	ID      int64
	Street  string
	Zip     string
	Country *Country
}

type Group struct {
	ID    int64
	Name  string
	Users []*User
}

type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	IsActive  bool
	Salary    float64
	BirthDay  *time.Time
	CreatedAt *time.Time
	Address   *Address
	Groups    []*Group
}

func (u *User) AddGroup(g *Group) {
	u.Groups = append(u.Groups, g)
}

func (u *User) RemoveGroup(g *Group) {
	for i, have := range u.Groups {
		if have == g {
			u.Groups = append(u.Groups[:i], u.Groups[i+1:]...)
			return
		}
	}
}

// RegisterEntities installs the sample schema into the registry.
func RegisterEntities(reg *metadata.Registry) {
	reg.MustRegister(&metadata.Entity{
		Name:       "country",
		Table:      "countries",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "string", Required: true, Unique: true},
		},
	}, &Country{})

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
			{Name: "country", Type: metadata.ManyToOne, Target: "country", SourceKey: "country_id"},
		},
	}, &Address{})

	reg.MustRegister(&metadata.Entity{
		Name:       "group",
		Table:      "groups",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "string", Required: true},
		},
		Relations: []metadata.Relation{
			{
				Name: "users", Type: metadata.ManyToMany, Target: "user",
				JoinTable: "users_groups", SourceJoinKey: "group_id", TargetJoinKey: "user_id",
				Inverse: "groups",
			},
		},
	}, &Group{})

	reg.MustRegister(&metadata.Entity{
		Name:       "user",
		Table:      "users",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "firstName", Type: "string"},
			{Name: "lastName", Type: "string"},
			{Name: "email", Type: "string", Unique: true},
			{Name: "isActive", Type: "boolean", Default: "false"},
			{Name: "salary", Type: "float", Default: "0"},
			{Name: "birthDay", Type: "date", Nullable: true},
			{Name: "createdAt", Type: "datetime", Nullable: true},
		},
		Relations: []metadata.Relation{
			{Name: "address", Type: metadata.OneToOne, Target: "address", SourceKey: "address_id", SortField: "street"},
			{
				Name: "groups", Type: metadata.ManyToMany, Target: "group",
				JoinTable: "users_groups", SourceJoinKey: "user_id", TargetJoinKey: "group_id",
				Inverse: "users",
			},
		},
	}, &User{})
}
