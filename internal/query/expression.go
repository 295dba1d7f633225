package query

import (
	"fmt"
	"strings"

	"crudgate/internal/metadata"
)

// RootAlias is the table alias of the entity a query is built against.
const RootAlias = "e"

// Join is one allocated LEFT JOIN in a query's join plan.
type Join struct {
	Path        string // dotted path from the root, e.g. "address.country"
	Alias       string
	ParentAlias string
	Relation    *metadata.Relation
	Owner       *metadata.Entity // entity declaring the relation
	Target      *metadata.Entity
}

// ExpressionManager resolves dotted property paths against entity metadata
// and allocates join aliases for the association segments. Allocation is
// idempotent: the same path always maps to the same alias, and validation
// results are memoized.
type ExpressionManager struct {
	registry *metadata.Registry
	root     *metadata.Entity

	joins   []*Join
	aliases map[string]string // association path -> alias
	valid   map[string]error  // path -> validation outcome
}

func NewExpressionManager(registry *metadata.Registry, root *metadata.Entity) *ExpressionManager {
	return &ExpressionManager{
		registry: registry,
		root:     root,
		aliases:  map[string]string{"": RootAlias},
		valid:    map[string]error{},
	}
}

// Root returns the entity the manager was created for.
func (em *ExpressionManager) Root() *metadata.Entity {
	return em.root
}

// Joins returns the allocated joins in allocation order.
func (em *ExpressionManager) Joins() []*Join {
	return em.joins
}

// Validate checks that every segment of the dotted path exists in metadata:
// all intermediate segments must be associations, the final segment a field
// or an association.
func (em *ExpressionManager) Validate(path string) error {
	if err, ok := em.valid[path]; ok {
		return err
	}
	err := em.validate(path)
	em.valid[path] = err
	return err
}

func (em *ExpressionManager) validate(path string) error {
	entity := em.root
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		last := i == len(segments)-1
		if rel := entity.GetRelation(seg); rel != nil {
			next := em.registry.GetEntity(rel.Target)
			if next == nil {
				return fmt.Errorf("%s: relation %q targets unknown entity %q", path, seg, rel.Target)
			}
			entity = next
			continue
		}
		if last && entity.HasField(seg) {
			return nil
		}
		return fmt.Errorf("property %q is not known on %s", path, em.root.Name)
	}
	return nil
}

// IsAssociation reports whether the final segment of a valid path is an
// association rather than a scalar field.
func (em *ExpressionManager) IsAssociation(path string) bool {
	rel, _, err := em.RelationAt(path)
	return err == nil && rel != nil
}

// RelationAt returns the relation the final path segment names, along with
// the entity declaring it. A scalar final segment yields a nil relation.
func (em *ExpressionManager) RelationAt(path string) (*metadata.Relation, *metadata.Entity, error) {
	if err := em.Validate(path); err != nil {
		return nil, nil, err
	}
	entity := em.root
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		rel := entity.GetRelation(seg)
		if i == len(segments)-1 {
			return rel, entity, nil
		}
		entity = em.registry.GetEntity(rel.Target)
	}
	return nil, nil, nil
}

// Allocate ensures joins exist for every association segment of path and
// returns the alias of the deepest joined entity. For a path ending in a
// scalar field the returned alias is the one its owning entity got.
func (em *ExpressionManager) Allocate(path string) (string, error) {
	if err := em.Validate(path); err != nil {
		return "", err
	}
	entity := em.root
	segments := strings.Split(path, ".")
	prefix := ""
	alias := RootAlias
	for _, seg := range segments {
		rel := entity.GetRelation(seg)
		if rel == nil {
			// scalar tail, belongs to the entity joined so far
			return alias, nil
		}
		if prefix == "" {
			prefix = seg
		} else {
			prefix = prefix + "." + seg
		}
		existing, ok := em.aliases[prefix]
		if !ok {
			existing = fmt.Sprintf("j%d", len(em.joins))
			target := em.registry.GetEntity(rel.Target)
			em.joins = append(em.joins, &Join{
				Path:        prefix,
				Alias:       existing,
				ParentAlias: alias,
				Relation:    rel,
				Owner:       entity,
				Target:      target,
			})
			em.aliases[prefix] = existing
		}
		alias = existing
		entity = em.registry.GetEntity(rel.Target)
	}
	return alias, nil
}

// Column resolves a path to a qualified "alias.column" SQL reference. A
// scalar tail resolves to its column; a to-one association tail resolves to
// the owning side's FK column, so comparisons against it compare ids.
func (em *ExpressionManager) Column(path string) (string, error) {
	rel, _, err := em.RelationAt(path)
	if err != nil {
		return "", err
	}
	if rel == nil {
		segments := strings.Split(path, ".")
		alias, err := em.Allocate(path)
		if err != nil {
			return "", err
		}
		return alias + "." + segments[len(segments)-1], nil
	}
	if rel.IsToMany() {
		return "", fmt.Errorf("%q is a collection and has no single column", path)
	}
	// alias of the entity owning the FK column
	parentPath := ""
	if i := strings.LastIndex(path, "."); i >= 0 {
		parentPath = path[:i]
	}
	alias := RootAlias
	if parentPath != "" {
		if alias, err = em.Allocate(parentPath); err != nil {
			return "", err
		}
	}
	return alias + "." + rel.SourceKey, nil
}
