package domain

import (
	"context"

	"crudgate/internal/crud"
	"crudgate/internal/hydration"
)

// RegisterControllers exposes the sample schema through the CRUD actions.
func RegisterControllers(ctl *crud.Controller) error {
	reg := ctl.Handler().Registry
	// "main" groups come straight from entity metadata so new fields show
	// up without touching the hydration setup.
	entityFields := hydration.NewEntityHydrator(reg).Group()

	configs := []*crud.EntityConfig{
		{
			Entity:    "country",
			ModelName: "app.country",
			Hydration: hydration.NewConfig().
				GroupFunc("main", entityFields).
				BareProfile("main"),
			Validators: []crud.Validator{
				crud.NewRuleValidator(
					&crud.Rule{Field: "name", Operator: "required", Message: "Country name is required"},
				),
			},
		},
		{
			Entity:    "address",
			ModelName: "app.address",
			Hydration: hydration.NewConfig().
				GroupFunc("main", entityFields).
				Group("country", "country.id", "country.name").
				Profile("list", false, "main").
				Profile("detail", true, "main", "country").
				BareProfile("main"),
		},
		{
			Entity:    "group",
			ModelName: "app.group",
			Hydration: hydration.NewConfig().
				Group("main", "id", "name").
				GroupFunc("members", groupMembers).
				Profile("list", false, "main").
				Profile("detail", true, "main", "members").
				BareProfile("main"),
			Validators: []crud.Validator{
				crud.NewRuleValidator(
					&crud.Rule{Field: "name", Operator: "required", Message: "Group name is required"},
				),
			},
		},
		{
			Entity:    "user",
			ModelName: "app.user",
			DefaultValues: map[string]any{
				"isActive": true,
				"salary":   0,
			},
			Hydration: hydration.NewConfig().
				GroupFunc("main", hydration.NewEntityHydrator(reg).Exclude("createdAt").Group()).
				Group("address", "address.street", "address.zip", "address.country.name").
				GroupFunc("groups", userGroups).
				Profile("list", false, "main").
				Profile("detail", true, "main", "address", "groups").
				BareProfile("main"),
			Validators: []crud.Validator{
				crud.NewRuleValidator(
					&crud.Rule{Field: "email", Operator: "required", Message: "Email is required"},
					&crud.Rule{Field: "email", Operator: "pattern", Value: `^[^@\s]+@[^@\s]+$`, Message: "Email must be a valid address"},
					&crud.Rule{Field: "firstName", Operator: "max_length", Value: 64, Message: "First name is too long"},
					&crud.Rule{Expression: `"salary" in record && record.salary < 0`, Field: "salary", Message: "Salary cannot be negative"},
				),
			},
		},
	}

	for _, ec := range configs {
		if err := ctl.Register(ec); err != nil {
			return err
		}
	}
	return nil
}

func userGroups(ctx context.Context, obj any) (map[string]any, error) {
	user, ok := obj.(*User)
	if !ok {
		return map[string]any{}, nil
	}
	names := make([]string, 0, len(user.Groups))
	for _, g := range user.Groups {
		names = append(names, g.Name)
	}
	return map[string]any{"groups": names}, nil
}

func groupMembers(ctx context.Context, obj any) (map[string]any, error) {
	group, ok := obj.(*Group)
	if !ok {
		return map[string]any{}, nil
	}
	ids := make([]int64, 0, len(group.Users))
	for _, u := range group.Users {
		ids = append(ids, u.ID)
	}
	return map[string]any{"users": ids}, nil
}
