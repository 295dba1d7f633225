package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"crudgate/internal/metadata"
)

// AssociationNone is the sentinel clients send to mean "no association".
// A filter comparing an association against it carries no information and
// is dropped.
const AssociationNone = "-"

// Compiler turns parsed query params into executable SQL for one entity.
type Compiler struct {
	Registry     *metadata.Registry
	SortResolver SortingFieldResolver

	// Placeholder renders positional parameter markers; nil means the
	// default "$N" form.
	Placeholder func(int) string
}

func NewCompiler(registry *metadata.Registry) *Compiler {
	return &Compiler{Registry: registry}
}

// Build compiles params into a SELECT over the named entity. The returned
// builder renders both the page query and the companion count query.
func (c *Compiler) Build(entityName string, p *Params) (*SelectBuilder, error) {
	root := c.Registry.GetEntity(entityName)
	if root == nil {
		return nil, fmt.Errorf("unknown entity %q", entityName)
	}
	em := NewExpressionManager(c.Registry, root)
	b := NewSelectBuilder(em)
	if p.FetchRoot {
		b.Select(RootAlias)
	}
	if c.Placeholder != nil {
		b.PlaceholderFormat(c.Placeholder)
	}

	fetchAliases := map[string]bool{}
	for _, node := range p.Fetch {
		if node.Path != "" {
			rel, _, err := em.RelationAt(node.Path)
			if err != nil {
				return nil, err
			}
			if rel == nil {
				col, err := em.Column(node.Path)
				if err != nil {
					return nil, err
				}
				b.Select(col)
				continue
			}
			alias, err := em.Allocate(node.Path)
			if err != nil {
				return nil, err
			}
			b.Select(alias)
			continue
		}
		expr, err := c.compileExprNode(b, node)
		if err != nil {
			return nil, err
		}
		if node.Alias != "" {
			fetchAliases[node.Alias] = true
			b.Select(expr + " AS " + node.Alias)
			if node.Hidden {
				b.Hide(node.Alias)
			}
		} else if node.Hidden {
			return nil, fmt.Errorf("hidden fetch expressions need an alias")
		} else {
			b.Select(expr)
		}
	}
	if len(b.sel) == 0 {
		return nil, fmt.Errorf("nothing to select: fetchRoot is off and no fetch expressions were given")
	}

	if p.Filters != nil {
		for _, item := range p.Filters.Items {
			if err := c.applyExpression(b, item); err != nil {
				return nil, err
			}
		}
	}

	for _, g := range p.GroupBy {
		col, err := c.resolveGroupBy(em, g, fetchAliases)
		if err != nil {
			return nil, err
		}
		b.GroupBy(col)
	}

	for _, s := range p.Sort {
		prop := s.Property
		if c.SortResolver != nil {
			prop = c.SortResolver.Resolve(root, prop)
		}
		col, err := em.Column(prop)
		if err != nil {
			// speculative sort keys from generic clients are dropped
			continue
		}
		b.OrderBy(col + " " + s.Direction)
	}

	if p.Limit >= 0 {
		b.Limit(p.Limit)
	}
	if off := p.Offset(); off > 0 {
		b.Offset(off)
	}
	return b, nil
}

// compileExprNode renders a function fetch node: property references
// resolve to qualified columns, literals bind as parameters, nested calls
// recurse.
func (c *Compiler) compileExprNode(b *SelectBuilder, node *ExprNode) (string, error) {
	if node.Path != "" {
		return b.Expr().Column(node.Path)
	}
	args := make([]string, 0, len(node.Args))
	for _, a := range node.Args {
		switch {
		case a.Node != nil:
			s, err := c.compileExprNode(b, a.Node)
			if err != nil {
				return "", err
			}
			args = append(args, s)
		case a.Property != "":
			col, err := b.Expr().Column(a.Property)
			if err != nil {
				return "", err
			}
			args = append(args, col)
		default:
			args = append(args, b.Placeholder(a.Literal))
		}
	}
	return node.Function + "(" + strings.Join(args, ", ") + ")", nil
}

func (c *Compiler) applyExpression(b *SelectBuilder, item Expression) error {
	switch e := item.(type) {
	case *Filter:
		frag, err := c.compileFilter(b, e)
		if err != nil {
			return err
		}
		if frag != "" {
			b.where = append(b.where, frag)
		}
	case *OrFilter:
		var parts []string
		for _, f := range e.Filters {
			frag, err := c.compileFilter(b, f)
			if err != nil {
				return err
			}
			if frag != "" {
				parts = append(parts, frag)
			}
		}
		if len(parts) == 1 {
			b.where = append(b.where, parts[0])
		} else if len(parts) > 1 {
			b.where = append(b.where, "("+strings.Join(parts, " OR ")+")")
		}
	}
	return nil
}

// compileFilter returns the SQL fragment for one filter, or "" when the
// filter is dropped as carrying no information.
func (c *Compiler) compileFilter(b *SelectBuilder, f *Filter) (string, error) {
	if !f.IsUseful() {
		return "", nil
	}
	em := b.Expr()
	rel, _, err := em.RelationAt(f.Property)
	if err != nil {
		return "", err
	}
	if rel != nil && c.isNoneSentinel(f) {
		return "", nil
	}

	var parts []string
	for _, cond := range f.Conditions {
		switch cond.Comparator {
		case In, NotIn:
			if len(cond.Values) == 0 {
				continue
			}
		}
		var frag string
		if rel != nil && rel.IsToMany() {
			frag, err = c.compileMembership(b, f.Property, rel, cond)
		} else {
			frag, err = c.compileColumnCondition(b, f.Property, cond)
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, frag)
	}
	if len(parts) == 0 {
		return "", nil
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func (c *Compiler) isNoneSentinel(f *Filter) bool {
	for _, cond := range f.Conditions {
		if cond.Comparator == Eq && cond.Value == AssociationNone {
			continue
		}
		return false
	}
	return true
}

func (c *Compiler) compileColumnCondition(b *SelectBuilder, property string, cond Condition) (string, error) {
	em := b.Expr()
	col, err := em.Column(property)
	if err != nil {
		return "", err
	}
	switch cond.Comparator {
	case Eq:
		return col + " = " + b.Placeholder(c.coerce(em, property, cond.Value)), nil
	case Neq:
		return col + " != " + b.Placeholder(c.coerce(em, property, cond.Value)), nil
	case Gt:
		return col + " > " + b.Placeholder(c.coerce(em, property, cond.Value)), nil
	case Gte:
		return col + " >= " + b.Placeholder(c.coerce(em, property, cond.Value)), nil
	case Lt:
		return col + " < " + b.Placeholder(c.coerce(em, property, cond.Value)), nil
	case Lte:
		return col + " <= " + b.Placeholder(c.coerce(em, property, cond.Value)), nil
	case Like:
		return col + " LIKE " + b.Placeholder(cond.Value), nil
	case NotLike:
		return col + " NOT LIKE " + b.Placeholder(cond.Value), nil
	case IsNull:
		return col + " IS NULL", nil
	case IsNotNull:
		return col + " IS NOT NULL", nil
	case In, NotIn:
		markers := make([]string, len(cond.Values))
		for i, v := range cond.Values {
			markers[i] = b.Placeholder(c.coerce(em, property, v))
		}
		op := "IN"
		if cond.Comparator == NotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(markers, ", ")), nil
	}
	return "", fmt.Errorf("filter on %q: unsupported comparator %q", property, cond.Comparator)
}

// compileMembership handles in/notIn against a collection: each id becomes
// an EXISTS probe of the association. In ORs the probes, NotIn ANDs their
// negations.
func (c *Compiler) compileMembership(b *SelectBuilder, property string, rel *metadata.Relation, cond Condition) (string, error) {
	if cond.Comparator != In && cond.Comparator != NotIn {
		return "", fmt.Errorf("filter on %q: collections support only in and notIn, got %q", property, cond.Comparator)
	}
	em := b.Expr()
	parentAlias := RootAlias
	if i := strings.LastIndex(property, "."); i >= 0 {
		var err error
		if parentAlias, err = em.Allocate(property[:i]); err != nil {
			return "", err
		}
	}
	_, owner, err := em.RelationAt(property)
	if err != nil {
		return "", err
	}
	target := c.Registry.GetEntity(rel.Target)
	if target == nil {
		return "", fmt.Errorf("filter on %q: unknown target entity %q", property, rel.Target)
	}

	probes := make([]string, 0, len(cond.Values))
	for _, raw := range cond.Values {
		id := coerceScalar(target.PrimaryKey.Type, raw)
		var probe string
		switch rel.Type {
		case metadata.ManyToMany:
			probe = fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s.%s = %s.%s AND %s.%s = %s)",
				rel.JoinTable,
				rel.JoinTable, rel.SourceJoinKey, parentAlias, owner.PrimaryKey.Field,
				rel.JoinTable, rel.TargetJoinKey, b.Placeholder(id))
		case metadata.OneToMany:
			probe = fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s.%s = %s.%s AND %s.%s = %s)",
				target.Table,
				target.Table, rel.TargetKey, parentAlias, owner.PrimaryKey.Field,
				target.Table, target.PrimaryKey.Field, b.Placeholder(id))
		default:
			return "", fmt.Errorf("filter on %q: %s is not a collection", property, rel.Name)
		}
		probes = append(probes, probe)
	}
	if cond.Comparator == In {
		if len(probes) == 1 {
			return probes[0], nil
		}
		return "(" + strings.Join(probes, " OR ") + ")", nil
	}
	for i := range probes {
		probes[i] = "NOT " + probes[i]
	}
	if len(probes) == 1 {
		return probes[0], nil
	}
	return "(" + strings.Join(probes, " AND ") + ")", nil
}

// resolveGroupBy resolves a groupBy entry to a column, or to a declared
// fetch alias when the entry is not a resolvable property. Grouping by a
// bare function expression is rejected by the store, so expression grouping
// must go through a select alias. Failing both is a configuration error.
func (c *Compiler) resolveGroupBy(em *ExpressionManager, entry string, fetchAliases map[string]bool) (string, error) {
	col, err := em.Column(entry)
	if err == nil {
		return col, nil
	}
	if fetchAliases[entry] {
		return entry, nil
	}
	return "", fmt.Errorf("groupBy %q: not a property and not a fetch alias", entry)
}

// coerce converts a raw string filter value into the Go value matching the
// column type at the end of the property path.
func (c *Compiler) coerce(em *ExpressionManager, property, raw string) any {
	rel, owner, err := em.RelationAt(property)
	if err != nil {
		return raw
	}
	if rel != nil {
		if target := c.Registry.GetEntity(rel.Target); target != nil {
			return coerceScalar(target.PrimaryKey.Type, raw)
		}
		return raw
	}
	segments := strings.Split(property, ".")
	if f := owner.GetField(segments[len(segments)-1]); f != nil {
		return coerceScalar(f.Type, raw)
	}
	return raw
}

func coerceScalar(fieldType, raw string) any {
	switch fieldType {
	case "int", "bigint":
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case "decimal", "float":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case "boolean":
		switch strings.ToLower(raw) {
		case "true", "1", "on":
			return true
		case "false", "0", "off", "":
			return false
		}
	case "date":
		// date columns compare against date-only values; a timestamp here
		// would exclude same-day matches
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format("2006-01-02")
			}
		}
	}
	return raw
}
