package query

import "testing"

func TestParseExprRejectsBadFunctionName(t *testing.T) {
	_, err := ParseExpr(map[string]any{
		"function": "COUNT(*); DROP TABLE users",
		"args":     []any{":id"},
	})
	if err == nil {
		t.Fatal("expected error for malformed function name")
	}
}

func TestParseExprDropsBadAlias(t *testing.T) {
	node, err := ParseExpr(map[string]any{
		"function": "COUNT",
		"args":     []any{":id"},
		"alias":    "1; DROP TABLE users",
	})
	if err != nil {
		t.Fatalf("ParseExpr failed: %v", err)
	}
	if node.Alias != "" {
		t.Fatalf("malformed alias must be dropped, got %q", node.Alias)
	}

	node, err = ParseExpr(map[string]any{
		"function": "COUNT",
		"args":     []any{":id"},
		"alias":    "cnt_1",
	})
	if err != nil {
		t.Fatalf("ParseExpr failed: %v", err)
	}
	if node.Alias != "cnt_1" {
		t.Fatalf("valid alias lost, got %q", node.Alias)
	}
}

func TestParseExprArgKinds(t *testing.T) {
	node, err := ParseExpr(map[string]any{
		"function": "CONCAT",
		"args": []any{
			":firstName",
			" ",
			map[string]any{"function": "UPPER", "args": []any{":email"}},
		},
	})
	if err != nil {
		t.Fatalf("ParseExpr failed: %v", err)
	}
	if len(node.Args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(node.Args))
	}
	if node.Args[0].Property != "firstName" {
		t.Fatalf("property ref not recognised: %+v", node.Args[0])
	}
	if node.Args[1].Literal != " " {
		t.Fatalf("literal arg lost: %+v", node.Args[1])
	}
	if node.Args[2].Node == nil || node.Args[2].Node.Function != "UPPER" {
		t.Fatalf("nested call not parsed: %+v", node.Args[2])
	}
}

func TestParamsOffset(t *testing.T) {
	p := &Params{Start: 50, Limit: -1}
	if p.Offset() != 50 {
		t.Fatalf("start alone must win, got %d", p.Offset())
	}

	p = &Params{Start: 50, Page: 3, Limit: 10}
	if p.Offset() != 20 {
		t.Fatalf("page+limit must override start, got %d", p.Offset())
	}

	p = &Params{Start: 50, Page: 3, Limit: -1}
	if p.Offset() != 50 {
		t.Fatalf("page without limit must not apply, got %d", p.Offset())
	}
}
