package crud

import (
	"context"
	"strings"
	"testing"
)

func TestInterceptorChainRejectsUnknownAction(t *testing.T) {
	chain := &InterceptorChain{}
	err := chain.Run(context.Background(), &ActionRequest{Action: "destroyEverything", Entity: "user"})

	app, ok := err.(*AppError)
	if !ok {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if app.Code != "BAD_CONFIG" {
		t.Fatalf("unexpected code %s", app.Code)
	}
}

func TestInterceptorChainRejectsMiswiredEntry(t *testing.T) {
	chain := &InterceptorChain{}
	chain.Add("not an interceptor")

	err := chain.Run(context.Background(), &ActionRequest{Action: ActionList, Entity: "user"})
	app, ok := err.(*AppError)
	if !ok {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if app.Code != "BAD_CONFIG" || !strings.Contains(app.Message, "invalid interceptor") {
		t.Fatalf("unexpected error: %v", app)
	}
}

func TestInterceptorChainRunsInOrderAndStopsOnError(t *testing.T) {
	var calls []string
	chain := &InterceptorChain{}
	chain.Add(interceptorFunc(func(ctx context.Context, req *ActionRequest) error {
		calls = append(calls, "first")
		return nil
	}))
	chain.Add(interceptorFunc(func(ctx context.Context, req *ActionRequest) error {
		calls = append(calls, "second")
		return AccessDeniedError("")
	}))
	chain.Add(interceptorFunc(func(ctx context.Context, req *ActionRequest) error {
		calls = append(calls, "third")
		return nil
	}))

	err := chain.Run(context.Background(), &ActionRequest{Action: ActionGet, Entity: "user"})
	if err == nil {
		t.Fatal("expected the second interceptor's error")
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected call order: %v", calls)
	}
}

func TestRoleInterceptor(t *testing.T) {
	ri := &RoleInterceptor{Required: map[string]string{
		ActionRemove:      "ROLE_ADMIN",
		ActionBatchUpdate: "ROLE_ADMIN",
	}}

	// Listed action without the role is vetoed, and the error names it.
	err := ri.Intercept(context.Background(), &ActionRequest{
		Action: ActionRemove,
		Roles:  []string{"ROLE_USER"},
	})
	app, ok := err.(*AppError)
	if !ok {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if app.Code != "ACCESS_DENIED" || app.Role != "ROLE_ADMIN" || app.Status != 403 {
		t.Fatalf("unexpected error: %+v", app)
	}

	// The role satisfies the check.
	err = ri.Intercept(context.Background(), &ActionRequest{
		Action: ActionRemove,
		Roles:  []string{"ROLE_USER", "ROLE_ADMIN"},
	})
	if err != nil {
		t.Fatalf("admin should pass: %v", err)
	}

	// Unlisted actions run unrestricted.
	err = ri.Intercept(context.Background(), &ActionRequest{Action: ActionList})
	if err != nil {
		t.Fatalf("unlisted action should pass: %v", err)
	}
}

func TestRoleInterceptorFallback(t *testing.T) {
	ri := &RoleInterceptor{Fallback: "ROLE_USER"}

	if err := ri.Intercept(context.Background(), &ActionRequest{Action: ActionList}); err == nil {
		t.Fatal("fallback role should apply to unlisted actions")
	}
	err := ri.Intercept(context.Background(), &ActionRequest{
		Action: ActionList,
		Roles:  []string{"ROLE_USER"},
	})
	if err != nil {
		t.Fatalf("role holder should pass: %v", err)
	}
}

func TestRolesRoundTripThroughContext(t *testing.T) {
	ctx := WithRoles(context.Background(), []string{"ROLE_ADMIN"})
	if got := RolesFromContext(ctx); len(got) != 1 || got[0] != "ROLE_ADMIN" {
		t.Fatalf("unexpected roles: %v", got)
	}
	if got := RolesFromContext(context.Background()); got != nil {
		t.Fatalf("bare context should carry no roles, got %v", got)
	}
}

type interceptorFunc func(ctx context.Context, req *ActionRequest) error

func (f interceptorFunc) Intercept(ctx context.Context, req *ActionRequest) error {
	return f(ctx, req)
}
