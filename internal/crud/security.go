package crud

import "context"

// RoleInterceptor vetoes actions unless the requesting user carries the
// required role. Actions without an entry in Required run unrestricted;
// Fallback, when set, applies to them instead.
type RoleInterceptor struct {
	// Required maps an action name to the role it demands.
	Required map[string]string

	// Fallback is the role demanded by actions not listed in Required.
	Fallback string
}

func (s *RoleInterceptor) Intercept(ctx context.Context, req *ActionRequest) error {
	role, ok := s.Required[req.Action]
	if !ok {
		role = s.Fallback
	}
	if role == "" {
		return nil
	}
	for _, have := range req.Roles {
		if have == role {
			return nil
		}
	}
	return AccessDeniedError(role)
}
