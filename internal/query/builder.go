package query

import (
	"fmt"
	"strings"

	"crudgate/internal/metadata"
)

type paramBuilder struct {
	params []any
	n      int
	format func(int) string
}

func (p *paramBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	if p.format != nil {
		return p.format(p.n)
	}
	return fmt.Sprintf("$%d", p.n)
}

// SelectBuilder assembles one SELECT against a root entity. Select tokens
// are either entity aliases ("e", "j0"), which expand to the full column
// list of that entity at render time, or literal SQL expressions.
type SelectBuilder struct {
	em     *ExpressionManager
	pb     *paramBuilder
	sel    []string
	hidden []string
	where  []string
	group  []string
	order  []string
	limit  int
	offset int
}

func NewSelectBuilder(em *ExpressionManager) *SelectBuilder {
	return &SelectBuilder{
		em:    em,
		pb:    &paramBuilder{},
		limit: -1,
	}
}

func (b *SelectBuilder) Expr() *ExpressionManager { return b.em }

// PlaceholderFormat overrides how positional parameter markers are
// rendered, so the query text matches the store dialect.
func (b *SelectBuilder) PlaceholderFormat(f func(int) string) *SelectBuilder {
	b.pb.format = f
	return b
}

// Select appends select tokens. The first call wins the position used by
// the count query.
func (b *SelectBuilder) Select(tokens ...string) *SelectBuilder {
	b.sel = append(b.sel, tokens...)
	return b
}

// Hide marks a select output label so that callers can strip it from rows
// handed to clients. The column still participates in GROUP BY and ORDER BY
// resolution.
func (b *SelectBuilder) Hide(label string) *SelectBuilder {
	b.hidden = append(b.hidden, label)
	return b
}

// HiddenColumns returns the output labels marked by Hide, in order.
func (b *SelectBuilder) HiddenColumns() []string {
	return b.hidden
}

// Where appends an AND-ed condition. Placeholders for args are allocated in
// order and substituted for "?" occurrences in the fragment.
func (b *SelectBuilder) Where(fragment string, args ...any) *SelectBuilder {
	b.where = append(b.where, b.bind(fragment, args))
	return b
}

func (b *SelectBuilder) bind(fragment string, args []any) string {
	for _, a := range args {
		fragment = strings.Replace(fragment, "?", b.pb.Add(a), 1)
	}
	return fragment
}

// Placeholder allocates one positional parameter and returns its marker.
func (b *SelectBuilder) Placeholder(v any) string {
	return b.pb.Add(v)
}

func (b *SelectBuilder) GroupBy(exprs ...string) *SelectBuilder {
	b.group = append(b.group, exprs...)
	return b
}

func (b *SelectBuilder) OrderBy(exprs ...string) *SelectBuilder {
	b.order = append(b.order, exprs...)
	return b
}

func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	return b
}

func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = n
	return b
}

// Params returns the bound parameters in placeholder order.
func (b *SelectBuilder) Params() []any {
	return b.pb.params
}

// Columns returns the flat column list the rendered SELECT projects, in
// order, with entity alias tokens expanded.
func (b *SelectBuilder) Columns() []string {
	var cols []string
	for _, token := range b.sel {
		if entity := b.entityForAlias(token); entity != nil {
			for _, c := range entity.Columns() {
				cols = append(cols, token+"."+c)
			}
			continue
		}
		cols = append(cols, token)
	}
	return cols
}

// Segment describes one block of the rendered projection, in select order.
// Entity segments expand to that entity's column list and carry the
// association path from the root ("" for the root itself); expression
// segments have a nil Entity and occupy a single column.
type Segment struct {
	Alias  string
	Path   string
	Entity *metadata.Entity
	Cols   []string
}

// Layout describes the positional shape of the rendered projection.
func (b *SelectBuilder) Layout() []Segment {
	segments := make([]Segment, 0, len(b.sel))
	for _, token := range b.sel {
		entity := b.entityForAlias(token)
		if entity == nil {
			segments = append(segments, Segment{Cols: []string{token}})
			continue
		}
		path := ""
		for _, j := range b.em.Joins() {
			if j.Alias == token {
				path = j.Path
				break
			}
		}
		segments = append(segments, Segment{
			Alias:  token,
			Path:   path,
			Entity: entity,
			Cols:   entity.Columns(),
		})
	}
	return segments
}

func (b *SelectBuilder) entityForAlias(token string) *metadata.Entity {
	if token == RootAlias {
		return b.em.Root()
	}
	for _, j := range b.em.Joins() {
		if j.Alias == token {
			return j.Target
		}
	}
	return nil
}

// SQL renders the full query.
func (b *SelectBuilder) SQL() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.Columns(), ", "))
	b.writeFrom(&sb)
	if len(b.group) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.group, ", "))
	}
	if len(b.order) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.order, ", "))
	}
	if b.limit >= 0 {
		fmt.Fprintf(&sb, " LIMIT %d", b.limit)
	}
	if b.offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", b.offset)
	}
	return sb.String()
}

// CountSQL renders the matching count query: COUNT(DISTINCT root pk) over
// the same joins and conditions, with ordering, grouping and pagination
// stripped.
func (b *SelectBuilder) CountSQL() string {
	root := b.em.Root()
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT COUNT(DISTINCT %s.%s)", RootAlias, root.PrimaryKey.Field)
	b.writeFrom(&sb)
	return sb.String()
}

func (b *SelectBuilder) writeFrom(sb *strings.Builder) {
	root := b.em.Root()
	fmt.Fprintf(sb, " FROM %s %s", root.Table, RootAlias)
	for _, j := range b.em.Joins() {
		writeJoin(sb, j)
	}
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
}

func writeJoin(sb *strings.Builder, j *Join) {
	rel := j.Relation
	switch rel.Type {
	case metadata.OneToOne, metadata.ManyToOne:
		fmt.Fprintf(sb, " LEFT JOIN %s %s ON %s.%s = %s.%s",
			j.Target.Table, j.Alias, j.ParentAlias, rel.SourceKey, j.Alias, j.Target.PrimaryKey.Field)
	case metadata.OneToMany:
		fmt.Fprintf(sb, " LEFT JOIN %s %s ON %s.%s = %s.%s",
			j.Target.Table, j.Alias, j.Alias, rel.TargetKey, j.ParentAlias, parentPK(j))
	case metadata.ManyToMany:
		link := j.Alias + "_l"
		fmt.Fprintf(sb, " LEFT JOIN %s %s ON %s.%s = %s.%s",
			rel.JoinTable, link, link, rel.SourceJoinKey, j.ParentAlias, parentPK(j))
		fmt.Fprintf(sb, " LEFT JOIN %s %s ON %s.%s = %s.%s",
			j.Target.Table, j.Alias, j.Alias, j.Target.PrimaryKey.Field, link, rel.TargetJoinKey)
	}
}

func parentPK(j *Join) string {
	if j.Owner != nil {
		return j.Owner.PrimaryKey.Field
	}
	return "id"
}
