package query

import "crudgate/internal/metadata"

// SortingFieldResolver rewrites a client sort property before it is
// resolved to a column, typically mapping an association name onto a
// sortable field of the target entity. Returning the input unchanged
// means "no opinion".
type SortingFieldResolver interface {
	Resolve(entity *metadata.Entity, property string) string
}

// SortingFieldResolverChain consults resolvers in order; the first one
// that rewrites the property wins.
type SortingFieldResolverChain struct {
	resolvers []SortingFieldResolver
}

func NewSortingFieldResolverChain(resolvers ...SortingFieldResolver) *SortingFieldResolverChain {
	return &SortingFieldResolverChain{resolvers: resolvers}
}

func (c *SortingFieldResolverChain) Add(r SortingFieldResolver) {
	c.resolvers = append(c.resolvers, r)
}

func (c *SortingFieldResolverChain) Resolve(entity *metadata.Entity, property string) string {
	for _, r := range c.resolvers {
		if out := r.Resolve(entity, property); out != property {
			return out
		}
	}
	return property
}

// MapSortingFieldResolver rewrites sort properties from a fixed table,
// keyed by entity name and property.
type MapSortingFieldResolver struct {
	rules map[string]string
}

func NewMapSortingFieldResolver() *MapSortingFieldResolver {
	return &MapSortingFieldResolver{rules: map[string]string{}}
}

func (r *MapSortingFieldResolver) Set(entityName, property, target string) {
	r.rules[entityName+"."+property] = target
}

func (r *MapSortingFieldResolver) Resolve(entity *metadata.Entity, property string) string {
	if out, ok := r.rules[entity.Name+"."+property]; ok {
		return out
	}
	return property
}

// DefaultSortingFieldResolver redirects a sort on a bare to-one
// association to the relation's configured sort field, falling back to
// the target entity's identity field. Sorting by the raw foreign key
// column is rarely what a client browsing a grid means.
type DefaultSortingFieldResolver struct {
	Registry *metadata.Registry
}

func (r *DefaultSortingFieldResolver) Resolve(entity *metadata.Entity, property string) string {
	rel := entity.GetRelation(property)
	if rel == nil || !rel.IsToOne() {
		return property
	}
	field := rel.SortField
	if field == "" {
		if target := r.Registry.GetEntity(rel.Target); target != nil {
			field = target.PrimaryKey.Field
		}
	}
	if field == "" {
		return property
	}
	return property + "." + field
}
