package query

import (
	"fmt"
	"strings"
)

const (
	Eq        = "eq"
	Neq       = "neq"
	Gt        = "gt"
	Gte       = "gte"
	Lt        = "lt"
	Lte       = "lte"
	Like      = "like"
	NotLike   = "notLike"
	In        = "in"
	NotIn     = "notIn"
	IsNull    = "isNull"
	IsNotNull = "isNotNull"
)

var supportedComparators = map[string]bool{
	Eq: true, Neq: true, Gt: true, Gte: true, Lt: true, Lte: true,
	Like: true, NotLike: true, In: true, NotIn: true, IsNull: true, IsNotNull: true,
}

// Condition is one comparator applied to a property. In and NotIn carry a
// list in Values; IsNull and IsNotNull carry nothing; the rest use Value.
type Condition struct {
	Comparator string
	Value      string
	Values     []string
}

// Filter is a parsed client filter: a property and one or more conditions.
// When several conditions are present they are combined with OR.
type Filter struct {
	Property   string
	Conditions []Condition
}

// NewFilter builds a single-condition filter programmatically. For In and
// NotIn the value is the comma-separated list the wire form carries.
func NewFilter(property, comparator, value string) *Filter {
	c := Condition{Comparator: comparator}
	switch comparator {
	case IsNull, IsNotNull:
		// no operand
	case In, NotIn:
		if value != "" {
			c.Values = strings.Split(value, ",")
		}
	default:
		c.Value = value
	}
	return &Filter{Property: property, Conditions: []Condition{c}}
}

// ParseFilter parses the wire form {"property": p, "value": v} where v is
// either a "comparator:value" string or a list of them.
func ParseFilter(input map[string]any) (*Filter, error) {
	prop, _ := input["property"].(string)
	if prop == "" {
		return nil, fmt.Errorf("filter is missing a property")
	}
	raw, ok := input["value"]
	if !ok {
		return nil, fmt.Errorf("filter on %q is missing a value", prop)
	}

	f := &Filter{Property: prop}
	switch v := raw.(type) {
	case string:
		c, err := parseCondition(prop, v)
		if err != nil {
			return nil, err
		}
		f.Conditions = append(f.Conditions, c)
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("filter on %q: value entries must be strings, got %T", prop, item)
			}
			c, err := parseCondition(prop, s)
			if err != nil {
				return nil, err
			}
			f.Conditions = append(f.Conditions, c)
		}
	default:
		return nil, fmt.Errorf("filter on %q: unsupported value type %T", prop, raw)
	}
	if len(f.Conditions) == 0 {
		return nil, fmt.Errorf("filter on %q has no conditions", prop)
	}
	return f, nil
}

func parseCondition(prop, raw string) (Condition, error) {
	comparator, rest, found := strings.Cut(raw, ":")
	if !found {
		comparator = raw
	}
	if !supportedComparators[comparator] {
		return Condition{}, fmt.Errorf("filter on %q: unsupported comparator %q", prop, comparator)
	}
	c := Condition{Comparator: comparator}
	switch comparator {
	case IsNull, IsNotNull:
		// no operand
	case In, NotIn:
		if rest != "" {
			c.Values = strings.Split(rest, ",")
		}
	default:
		c.Value = rest
	}
	return c, nil
}

func (c Condition) compile() string {
	switch c.Comparator {
	case IsNull, IsNotNull:
		return c.Comparator
	case In, NotIn:
		return c.Comparator + ":" + strings.Join(c.Values, ",")
	default:
		return c.Comparator + ":" + c.Value
	}
}

// Compile renders the filter back into its wire form. The output parses
// back to an equivalent filter.
func (f *Filter) Compile() map[string]any {
	if len(f.Conditions) == 1 {
		return map[string]any{"property": f.Property, "value": f.Conditions[0].compile()}
	}
	values := make([]any, len(f.Conditions))
	for i, c := range f.Conditions {
		values[i] = c.compile()
	}
	return map[string]any{"property": f.Property, "value": values}
}

// IsUseful reports whether the filter contributes anything to a query. An
// In or NotIn with an empty list matches nothing meaningful and is dropped.
func (f *Filter) IsUseful() bool {
	for _, c := range f.Conditions {
		switch c.Comparator {
		case In, NotIn:
			if len(c.Values) > 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}
