package crud

import "context"

type rolesKey struct{}

// WithRoles stores the requesting user's roles for interceptors to check.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey{}, roles)
}

// RolesFromContext returns the roles stored by WithRoles, or nil.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey{}).([]string)
	return roles
}
