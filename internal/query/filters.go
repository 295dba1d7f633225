package query

import "fmt"

// Expression is either a *Filter or an *OrFilter.
type Expression interface {
	isExpression()
}

func (*Filter) isExpression()   {}
func (*OrFilter) isExpression() {}

// OrFilter groups filters on different properties with OR instead of the
// default AND.
type OrFilter struct {
	Filters []*Filter
}

// IsUseful reports whether at least one branch contributes to the query.
func (o *OrFilter) IsUseful() bool {
	for _, f := range o.Filters {
		if f.IsUseful() {
			return true
		}
	}
	return false
}

// Filters is the parsed filter section of a query. Entries are ANDed
// together; an entry that arrived as a list became an OrFilter.
type Filters struct {
	Items []Expression
}

// ParseFilters classifies raw entries: a map is a plain filter, a list is
// an OR group of filters.
func ParseFilters(raw []any) (*Filters, error) {
	fs := &Filters{}
	for _, entry := range raw {
		switch e := entry.(type) {
		case map[string]any:
			f, err := ParseFilter(e)
			if err != nil {
				return nil, err
			}
			fs.Items = append(fs.Items, f)
		case []any:
			or := &OrFilter{}
			for _, sub := range e {
				m, ok := sub.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("or-filter entries must be objects, got %T", sub)
				}
				f, err := ParseFilter(m)
				if err != nil {
					return nil, err
				}
				or.Filters = append(or.Filters, f)
			}
			fs.Items = append(fs.Items, or)
		default:
			return nil, fmt.Errorf("filter entries must be objects or lists, got %T", entry)
		}
	}
	return fs, nil
}

// Compile renders the OR group back into its wire list form.
func (o *OrFilter) Compile() []any {
	out := make([]any, len(o.Filters))
	for i, f := range o.Filters {
		out[i] = f.Compile()
	}
	return out
}

// FindByProperty returns every plain filter targeting the given property.
func (fs *Filters) FindByProperty(property string) []*Filter {
	var out []*Filter
	for _, item := range fs.Items {
		if f, ok := item.(*Filter); ok && f.Property == property {
			out = append(out, f)
		}
	}
	return out
}

// RemoveByProperty drops every plain filter targeting the given property
// and reports whether anything was removed.
func (fs *Filters) RemoveByProperty(property string) bool {
	var kept []Expression
	removed := false
	for _, item := range fs.Items {
		if f, ok := item.(*Filter); ok && f.Property == property {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	fs.Items = kept
	return removed
}

// FindOneByProperty returns the plain filter targeting the given property,
// nil when none exists, and an error when several match.
func (fs *Filters) FindOneByProperty(property string) (*Filter, error) {
	found := fs.FindByProperty(property)
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("more than one filter targets property %q", property)
	}
}

// HasFilterForProperty reports whether any plain filter targets the
// given property.
func (fs *Filters) HasFilterForProperty(property string) bool {
	return len(fs.FindByProperty(property)) > 0
}

// Add appends a filter.
func (fs *Filters) Add(f *Filter) {
	fs.Items = append(fs.Items, f)
}

// Compile renders the container back into the wire list form ParseFilters
// accepts.
func (fs *Filters) Compile() []any {
	out := make([]any, 0, len(fs.Items))
	for _, item := range fs.Items {
		switch e := item.(type) {
		case *Filter:
			out = append(out, e.Compile())
		case *OrFilter:
			out = append(out, e.Compile())
		}
	}
	return out
}
