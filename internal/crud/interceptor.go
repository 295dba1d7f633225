package crud

import (
	"context"
	"fmt"
)

const (
	ActionCreate             = "create"
	ActionGet                = "get"
	ActionList               = "list"
	ActionUpdate             = "update"
	ActionBatchUpdate        = "batchUpdate"
	ActionRemove             = "remove"
	ActionGetNewRecordValues = "getNewRecordValues"
)

var knownActions = map[string]bool{
	ActionCreate:             true,
	ActionGet:                true,
	ActionList:               true,
	ActionUpdate:             true,
	ActionBatchUpdate:        true,
	ActionRemove:             true,
	ActionGetNewRecordValues: true,
}

// ActionRequest carries everything an interceptor may inspect before an
// action runs. Params is the decoded request body and may be mutated.
type ActionRequest struct {
	Action string
	Entity string
	Params map[string]any
	Roles  []string
}

// Interceptor runs before an action. Returning an error aborts the action;
// an *AppError is rendered as-is, anything else becomes a server error.
type Interceptor interface {
	Intercept(ctx context.Context, req *ActionRequest) error
}

// InterceptorChain holds interceptors registered as plain values so that
// miswired entries surface as configuration errors at dispatch time rather
// than panics.
type InterceptorChain struct {
	items []any
}

func (c *InterceptorChain) Add(i any) {
	c.items = append(c.items, i)
}

func (c *InterceptorChain) Run(ctx context.Context, req *ActionRequest) error {
	if !knownActions[req.Action] {
		return BadConfigError(fmt.Sprintf("unknown action: %s", req.Action))
	}
	for _, item := range c.items {
		iv, ok := item.(Interceptor)
		if !ok {
			return BadConfigError(fmt.Sprintf("invalid interceptor: %T does not implement crud.Interceptor", item))
		}
		if err := iv.Intercept(ctx, req); err != nil {
			return err
		}
	}
	return nil
}
