package persistence

import (
	"context"
	"fmt"
	"strings"

	"crudgate/internal/metadata"
	"crudgate/internal/query"
	"crudgate/internal/store"
)

// Handler executes compiled queries and materializes rows into registered
// domain objects. It also implements the locator interface the mapper uses
// to resolve association ids.
type Handler struct {
	Store    *store.Store
	Registry *metadata.Registry
	Compiler *query.Compiler
}

func NewHandler(st *store.Store, registry *metadata.Registry) *Handler {
	c := query.NewCompiler(registry)
	c.Placeholder = st.Dialect.Placeholder
	c.SortResolver = query.NewSortingFieldResolverChain(
		&query.DefaultSortingFieldResolver{Registry: registry},
	)
	return &Handler{Store: st, Registry: registry, Compiler: c}
}

// identityMap deduplicates objects within one read operation, keyed by
// entity name and id. It also breaks association cycles during loading.
type identityMap map[string]any

func identityKey(entityName string, id any) string {
	return entityName + "\x00" + fmt.Sprint(id)
}

// Query compiles params and returns matching root objects with their
// to-one chains resolved and the root's collections loaded.
func (h *Handler) Query(ctx context.Context, q store.Querier, entityName string, p *query.Params) ([]any, error) {
	b, err := h.Compiler.Build(entityName, p)
	if err != nil {
		return nil, err
	}
	return h.run(ctx, q, b)
}

// QueryRows compiles params and returns raw rows keyed by projection
// position name. Used for aggregate queries (function fetches, groupBy)
// where no entity shape applies.
func (h *Handler) QueryRows(ctx context.Context, q store.Querier, entityName string, p *query.Params) ([]map[string]any, error) {
	b, err := h.Compiler.Build(entityName, p)
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRows(ctx, q, b.SQL(), b.Params()...)
	if err != nil {
		return nil, err
	}
	// hidden fetch columns exist for GROUP BY and ORDER BY only
	for _, label := range b.HiddenColumns() {
		for _, row := range rows {
			delete(row, label)
		}
	}
	return rows, nil
}

// Count compiles params and executes the companion count query.
func (h *Handler) Count(ctx context.Context, q store.Querier, entityName string, p *query.Params) (int64, error) {
	b, err := h.Compiler.Build(entityName, p)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.QueryRowContext(ctx, b.CountSQL(), b.Params()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", entityName, err)
	}
	return n, nil
}

func (h *Handler) run(ctx context.Context, q store.Querier, b *query.SelectBuilder) ([]any, error) {
	rows, err := q.QueryContext(ctx, b.SQL(), b.Params()...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	segments := b.Layout()
	width := 0
	for _, seg := range segments {
		width += len(seg.Cols)
	}

	ids := identityMap{}
	// pending FK values per object, relation name -> raw id
	pendingFK := map[any]map[string]any{}
	// membership dedup across joined rows
	seen := map[string]bool{}
	var roots []any

	for rows.Next() {
		values := make([]any, width)
		ptrs := make([]any, width)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		rowObjs := map[string]any{} // path -> object for this row
		offset := 0
		for _, seg := range segments {
			block := values[offset : offset+len(seg.Cols)]
			offset += len(seg.Cols)
			if seg.Entity == nil {
				continue
			}
			obj, created, err := h.materialize(ids, pendingFK, seg, block)
			if err != nil {
				return nil, err
			}
			if obj == nil {
				continue
			}
			rowObjs[seg.Path] = obj
			if seg.Path == "" {
				if created {
					roots = append(roots, obj)
				}
				continue
			}
			if err := h.attach(seen, rowObjs, seg, obj); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	if err := h.resolveToOnes(ctx, q, ids, pendingFK); err != nil {
		return nil, err
	}
	if len(roots) > 0 {
		root := b.Expr().Root()
		if err := h.loadCollections(ctx, q, ids, pendingFK, root, roots); err != nil {
			return nil, err
		}
		if err := h.resolveToOnes(ctx, q, ids, pendingFK); err != nil {
			return nil, err
		}
	}
	return roots, nil
}

// materialize builds (or finds) the object for one entity block of a row.
// A block whose pk column is NULL came from a missed left join.
func (h *Handler) materialize(ids identityMap, pendingFK map[any]map[string]any, seg query.Segment, block []any) (obj any, created bool, err error) {
	entity := seg.Entity
	binding := h.Registry.GetBinding(entity.Name)
	if binding == nil {
		return nil, false, fmt.Errorf("no binding for entity %q", entity.Name)
	}

	colIndex := map[string]any{}
	for i, col := range seg.Cols {
		colIndex[col] = store.NormalizeValue(block[i])
	}
	id := colIndex[entity.PrimaryKey.Field]
	if id == nil {
		return nil, false, nil
	}

	key := identityKey(entity.Name, id)
	if existing, ok := ids[key]; ok {
		return existing, false, nil
	}

	obj = binding.New()
	row := map[string]any{}
	for _, f := range entity.Fields {
		row[f.Name] = colIndex[f.Name]
	}
	if h.Store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, boolFields(entity))
	}
	for _, f := range entity.Fields {
		if err := binding.Set(obj, f.Name, row[f.Name]); err != nil {
			return nil, false, fmt.Errorf("load %s.%s: %w", entity.Name, f.Name, err)
		}
	}

	for i := range entity.Relations {
		rel := &entity.Relations[i]
		if !rel.IsToOne() || rel.SourceKey == "" {
			continue
		}
		if fk := colIndex[rel.SourceKey]; fk != nil {
			if pendingFK[obj] == nil {
				pendingFK[obj] = map[string]any{}
			}
			pendingFK[obj][rel.Name] = fk
		}
	}

	ids[key] = obj
	return obj, true, nil
}

// attach links a fetched object into its parent along the join path.
func (h *Handler) attach(seen map[string]bool, rowObjs map[string]any, seg query.Segment, obj any) error {
	parentPath := ""
	relName := seg.Path
	if i := strings.LastIndex(seg.Path, "."); i >= 0 {
		parentPath, relName = seg.Path[:i], seg.Path[i+1:]
	}
	parent, ok := rowObjs[parentPath]
	if !ok || parent == nil {
		return nil
	}
	parentBinding := h.Registry.BindingFor(parent)
	if parentBinding == nil {
		return fmt.Errorf("no binding for parent at %q", parentPath)
	}
	rel := parentBinding.Entity.GetRelation(relName)
	if rel == nil {
		return fmt.Errorf("no relation %q on %s", relName, parentBinding.Entity.Name)
	}

	if rel.IsToOne() {
		// fetched eagerly; overrides any pending FK resolution
		return parentBinding.Set(parent, relName, obj)
	}

	childBinding := h.Registry.BindingFor(obj)
	childID, err := childBinding.ID(obj)
	if err != nil {
		return err
	}
	parentID, err := parentBinding.ID(parent)
	if err != nil {
		return err
	}
	memberKey := identityKey(parentBinding.Entity.Name, parentID) + "|" + relName + "|" + fmt.Sprint(childID)
	if seen[memberKey] {
		return nil
	}
	seen[memberKey] = true
	return appendMember(parentBinding, parent, relName, obj)
}

// resolveToOnes drains pending FK values, batch-loading targets per entity
// and wiring them in. Loading may enqueue further FKs; loop until settled.
func (h *Handler) resolveToOnes(ctx context.Context, q store.Querier, ids identityMap, pendingFK map[any]map[string]any) error {
	for len(pendingFK) > 0 {
		// snapshot and clear; loads may add new pending entries
		batch := make(map[any]map[string]any, len(pendingFK))
		for k, v := range pendingFK {
			batch[k] = v
			delete(pendingFK, k)
		}

		// group missing ids by target entity
		type ref struct {
			obj     any
			relName string
			fk      any
		}
		missing := map[string][]ref{}
		for obj, rels := range batch {
			binding := h.Registry.BindingFor(obj)
			if binding == nil {
				continue
			}
			for relName, fk := range rels {
				rel := binding.Entity.GetRelation(relName)
				if rel == nil {
					continue
				}
				key := identityKey(rel.Target, fk)
				if target, ok := ids[key]; ok {
					if err := binding.Set(obj, relName, target); err != nil {
						return err
					}
					continue
				}
				missing[rel.Target] = append(missing[rel.Target], ref{obj: obj, relName: relName, fk: fk})
			}
		}

		for targetName, refs := range missing {
			idSet := map[string]any{}
			for _, r := range refs {
				idSet[fmt.Sprint(r.fk)] = r.fk
			}
			idValues := make([]any, 0, len(idSet))
			for _, v := range idSet {
				idValues = append(idValues, v)
			}
			if err := h.loadByIDs(ctx, q, ids, pendingFK, targetName, idValues); err != nil {
				return err
			}
			for _, r := range refs {
				target := ids[identityKey(targetName, r.fk)]
				if target == nil {
					continue
				}
				binding := h.Registry.BindingFor(r.obj)
				if err := binding.Set(r.obj, r.relName, target); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// loadByIDs fetches rows of one entity by primary key into the identity
// map, without resolving their associations.
func (h *Handler) loadByIDs(ctx context.Context, q store.Querier, ids identityMap, pendingFK map[any]map[string]any, entityName string, idValues []any) error {
	if len(idValues) == 0 {
		return nil
	}
	entity := h.Registry.GetEntity(entityName)
	if entity == nil {
		return fmt.Errorf("unknown entity %q", entityName)
	}
	cols := entity.Columns()
	pb := h.Store.Dialect.NewParamBuilder()
	markers := make([]string, len(idValues))
	for i, id := range idValues {
		markers[i] = pb.Add(id)
	}
	qualified := make([]string, len(cols))
	for i, c := range cols {
		qualified[i] = query.RootAlias + "." + c
	}
	sqlStr := fmt.Sprintf("SELECT %s FROM %s %s WHERE %s.%s IN (%s)",
		strings.Join(qualified, ", "), entity.Table, query.RootAlias,
		query.RootAlias, entity.PrimaryKey.Field, strings.Join(markers, ", "))

	rows, err := q.QueryContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("load %s by ids: %w", entityName, err)
	}
	defer rows.Close()

	seg := query.Segment{Alias: query.RootAlias, Entity: entity, Cols: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan %s: %w", entityName, err)
		}
		if _, _, err := h.materialize(ids, pendingFK, seg, values); err != nil {
			return err
		}
	}
	return rows.Err()
}

// loadCollections populates the to-many relations of the root objects.
// Members get their to-one FKs queued but their own collections stay
// unloaded.
func (h *Handler) loadCollections(ctx context.Context, q store.Querier, ids identityMap, pendingFK map[any]map[string]any, root *metadata.Entity, roots []any) error {
	binding := h.Registry.GetBinding(root.Name)
	byID := map[string]any{}
	rootIDs := make([]any, 0, len(roots))
	for _, obj := range roots {
		id, err := binding.ID(obj)
		if err != nil {
			return err
		}
		byID[fmt.Sprint(id)] = obj
		rootIDs = append(rootIDs, id)
	}

	for i := range root.Relations {
		rel := &root.Relations[i]
		if !rel.IsToMany() {
			continue
		}
		// a fetch join may have loaded this collection already
		loaded := true
		for _, obj := range roots {
			raw, err := binding.Get(obj, rel.Name)
			if err != nil {
				return err
			}
			if raw == nil || isNilSlice(raw) {
				loaded = false
				break
			}
		}
		if loaded {
			continue
		}
		if err := h.loadCollection(ctx, q, ids, pendingFK, binding, rel, byID, rootIDs); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadCollection(ctx context.Context, q store.Querier, ids identityMap, pendingFK map[any]map[string]any, binding *metadata.TypeBinding, rel *metadata.Relation, byID map[string]any, rootIDs []any) error {
	target := h.Registry.GetEntity(rel.Target)
	if target == nil {
		return fmt.Errorf("relation %q targets unknown entity %q", rel.Name, rel.Target)
	}
	cols := target.Columns()
	qualified := make([]string, len(cols))
	for i, c := range cols {
		qualified[i] = "t." + c
	}
	pb := h.Store.Dialect.NewParamBuilder()
	markers := make([]string, len(rootIDs))
	for i, id := range rootIDs {
		markers[i] = pb.Add(id)
	}

	var sqlStr string
	switch rel.Type {
	case metadata.OneToMany:
		sqlStr = fmt.Sprintf("SELECT t.%s AS __owner, %s FROM %s t WHERE t.%s IN (%s) ORDER BY t.%s",
			rel.TargetKey, strings.Join(qualified, ", "), target.Table,
			rel.TargetKey, strings.Join(markers, ", "), target.PrimaryKey.Field)
	case metadata.ManyToMany:
		sqlStr = fmt.Sprintf("SELECT l.%s AS __owner, %s FROM %s l JOIN %s t ON t.%s = l.%s WHERE l.%s IN (%s) ORDER BY t.%s",
			rel.SourceJoinKey, strings.Join(qualified, ", "), rel.JoinTable, target.Table,
			target.PrimaryKey.Field, rel.TargetJoinKey,
			rel.SourceJoinKey, strings.Join(markers, ", "), target.PrimaryKey.Field)
	default:
		return nil
	}

	rows, err := q.QueryContext(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("load collection %s.%s: %w", binding.Entity.Name, rel.Name, err)
	}
	defer rows.Close()

	// every root gets at least an empty collection
	for _, obj := range byID {
		if err := initEmptyCollection(binding, obj, rel.Name); err != nil {
			return err
		}
	}

	seg := query.Segment{Entity: target, Cols: cols}
	for rows.Next() {
		values := make([]any, len(cols)+1)
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan collection: %w", err)
		}
		owner := byID[fmt.Sprint(store.NormalizeValue(values[0]))]
		if owner == nil {
			continue
		}
		member, _, err := h.materialize(ids, pendingFK, seg, values[1:])
		if err != nil {
			return err
		}
		if member == nil {
			continue
		}
		if err := appendMember(binding, owner, rel.Name, member); err != nil {
			return err
		}
	}
	return rows.Err()
}

func boolFields(entity *metadata.Entity) []string {
	var out []string
	for _, f := range entity.Fields {
		if f.Type == "boolean" {
			out = append(out, f.Name)
		}
	}
	return out
}
