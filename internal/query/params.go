package query

import (
	"fmt"
	"sort"
	"strings"
)

// SortOrder is one entry of the sort section.
type SortOrder struct {
	Property  string `json:"property"`
	Direction string `json:"direction"`
}

// Params is the parsed query section of a list request.
type Params struct {
	Start     int
	Page      int // 0 when absent; page+limit together override start
	Limit     int // -1 when absent
	FetchRoot bool
	Sort      []SortOrder
	Filters   *Filters
	Fetch     []*ExprNode
	GroupBy   []string
}

// Offset returns the effective row offset: page wins over start when both
// page and limit are present.
func (p *Params) Offset() int {
	if p.Page > 0 && p.Limit >= 0 {
		return (p.Page - 1) * p.Limit
	}
	return p.Start
}

// ParseParams decodes the wire form of a list query. Absent limit is kept
// as -1 so a zero limit still means "no rows".
func ParseParams(raw map[string]any) (*Params, error) {
	p := &Params{Limit: -1, FetchRoot: true, Filters: &Filters{}}
	if raw == nil {
		return p, nil
	}
	if v, ok := raw["fetchRoot"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("fetchRoot must be a boolean, got %T", v)
		}
		p.FetchRoot = b
	}
	if v, ok := raw["start"]; ok {
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		p.Start = n
	}
	if v, ok := raw["page"]; ok {
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("page: %w", err)
		}
		p.Page = n
	}
	if v, ok := raw["limit"]; ok {
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("limit: %w", err)
		}
		p.Limit = n
	}
	if v, ok := raw["sort"]; ok {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("sort must be a list, got %T", v)
		}
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("sort entries must be objects, got %T", item)
			}
			prop, _ := m["property"].(string)
			dir, _ := m["direction"].(string)
			if prop == "" {
				return nil, fmt.Errorf("sort entry is missing a property")
			}
			dir = strings.ToUpper(dir)
			if dir == "" {
				dir = "ASC"
			}
			if dir != "ASC" && dir != "DESC" {
				return nil, fmt.Errorf("sort on %q: direction must be ASC or DESC", prop)
			}
			p.Sort = append(p.Sort, SortOrder{Property: prop, Direction: dir})
		}
	}
	if v, ok := raw["filter"]; ok {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("filter must be a list, got %T", v)
		}
		fs, err := ParseFilters(list)
		if err != nil {
			return nil, err
		}
		p.Filters = fs
	}
	if v, ok := raw["fetch"]; ok {
		fetch, err := parseFetch(v)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		p.Fetch = fetch
	}
	if v, ok := raw["groupBy"]; ok {
		group, err := toStringList(v)
		if err != nil {
			return nil, fmt.Errorf("groupBy: %w", err)
		}
		p.GroupBy = group
	}
	return p, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// parseFetch accepts either an ordered list of fetch nodes or a mapping of
// alias to node. In the mapping form the key becomes the node's alias when
// it passes the identifier check; a malformed key is dropped as an alias
// but the expression itself is kept.
func parseFetch(v any) ([]*ExprNode, error) {
	switch raw := v.(type) {
	case []any:
		nodes := make([]*ExprNode, 0, len(raw))
		for _, item := range raw {
			n, err := ParseExpr(item)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		return nodes, nil
	case map[string]any:
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		nodes := make([]*ExprNode, 0, len(raw))
		for _, k := range keys {
			n, err := ParseExpr(raw[k])
			if err != nil {
				return nil, err
			}
			if n.Alias == "" && aliasRe.MatchString(k) {
				n.Alias = k
			}
			nodes = append(nodes, n)
		}
		return nodes, nil
	default:
		return nil, fmt.Errorf("expected a list or object, got %T", v)
	}
}

func toStringList(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected string entries, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}
