package query

import (
	"fmt"
	"regexp"
)

var (
	functionNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	aliasRe        = regexp.MustCompile(`^[A-Za-z]\w*$`)
)

// ExprNode is one parsed fetch expression: either a plain dotted property
// path or a function call over arguments.
type ExprNode struct {
	Path     string // set when the node is a plain property path
	Function string // set when the node is a function call
	Args     []ExprArg
	Alias    string
	Hidden   bool
}

// ExprArg is one function argument: a nested node, a property reference
// (":name" on the wire) or a literal bound as a parameter.
type ExprArg struct {
	Node     *ExprNode
	Property string
	Literal  any
}

// ParseExpr parses a raw fetch node. Strings are property paths. Maps must
// carry a "function" key; the name is validated and a malformed name is an
// error. A malformed alias, by contrast, is silently dropped so it can
// never reach generated SQL text.
func ParseExpr(raw any) (*ExprNode, error) {
	switch v := raw.(type) {
	case string:
		return &ExprNode{Path: v}, nil
	case map[string]any:
		return parseFunctionNode(v)
	default:
		return nil, fmt.Errorf("fetch expressions must be strings or objects, got %T", raw)
	}
}

func parseFunctionNode(m map[string]any) (*ExprNode, error) {
	name, _ := m["function"].(string)
	if name == "" {
		return nil, fmt.Errorf("fetch expression object is missing a function name")
	}
	if !functionNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid function name %q", name)
	}
	node := &ExprNode{Function: name}
	if hidden, ok := m["hidden"].(bool); ok {
		node.Hidden = hidden
	}
	if alias, ok := m["alias"].(string); ok && aliasRe.MatchString(alias) {
		node.Alias = alias
	}
	if rawArgs, ok := m["args"].([]any); ok {
		for _, ra := range rawArgs {
			arg, err := parseArg(ra)
			if err != nil {
				return nil, fmt.Errorf("function %s: %w", name, err)
			}
			node.Args = append(node.Args, arg)
		}
	}
	return node, nil
}

func parseArg(raw any) (ExprArg, error) {
	switch v := raw.(type) {
	case map[string]any:
		n, err := parseFunctionNode(v)
		if err != nil {
			return ExprArg{}, err
		}
		return ExprArg{Node: n}, nil
	case string:
		if len(v) > 0 && v[0] == ':' {
			return ExprArg{Property: v[1:]}, nil
		}
		return ExprArg{Literal: v}, nil
	default:
		return ExprArg{Literal: v}, nil
	}
}
