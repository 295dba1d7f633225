package persistence

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"crudgate/internal/metadata"
	"crudgate/internal/query"
	"crudgate/internal/store"
)

// Save inserts obj and returns its id. Generated uuid keys are assigned
// application-side when the store has no DDL default for them; generated
// integer keys are read back from the store. Loaded collections are synced
// afterwards.
func (h *Handler) Save(ctx context.Context, q store.Querier, obj any) (any, error) {
	binding := h.Registry.BindingFor(obj)
	if binding == nil {
		return nil, fmt.Errorf("no entity registered for %T", obj)
	}
	entity := binding.Entity
	pk := entity.PrimaryKey

	if pk.Generated && pk.Type == "uuid" {
		current, err := binding.ID(obj)
		if err != nil {
			return nil, err
		}
		if current == nil || current == "" {
			if err := binding.Set(obj, pk.Field, uuid.New().String()); err != nil {
				return nil, err
			}
		}
	}

	cols, values, err := h.writableColumns(binding, obj)
	if err != nil {
		return nil, err
	}
	if !pk.Generated || pk.Type == "uuid" {
		id, err := binding.ID(obj)
		if err != nil {
			return nil, err
		}
		cols = append([]string{pk.Field}, cols...)
		values = append([]any{id}, values...)
	}

	pb := h.Store.Dialect.NewParamBuilder()
	markers := make([]string, len(values))
	for i, v := range values {
		markers[i] = pb.Add(v)
	}
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		entity.Table, strings.Join(cols, ", "), strings.Join(markers, ", "))

	if pk.Generated && pk.Type != "uuid" {
		if err := h.insertReturningID(ctx, q, binding, obj, sqlStr, pb.Params()); err != nil {
			return nil, err
		}
	} else {
		if _, err := q.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
			return nil, store.MapError(h.Store.Dialect, fmt.Errorf("insert %s: %w", entity.Name, err))
		}
	}

	if err := h.SyncCollections(ctx, q, obj); err != nil {
		return nil, err
	}
	return binding.ID(obj)
}

func (h *Handler) insertReturningID(ctx context.Context, q store.Querier, binding *metadata.TypeBinding, obj any, sqlStr string, args []any) error {
	entity := binding.Entity
	if h.Store.Dialect.Name() == "postgres" {
		var id int64
		row := q.QueryRowContext(ctx, sqlStr+" RETURNING "+entity.PrimaryKey.Field, args...)
		if err := row.Scan(&id); err != nil {
			return store.MapError(h.Store.Dialect, fmt.Errorf("insert %s: %w", entity.Name, err))
		}
		return binding.Set(obj, entity.PrimaryKey.Field, id)
	}
	res, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return store.MapError(h.Store.Dialect, fmt.Errorf("insert %s: %w", entity.Name, err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return binding.Set(obj, entity.PrimaryKey.Field, id)
}

// Update writes every scalar field and owning FK of obj and syncs its
// loaded collections.
func (h *Handler) Update(ctx context.Context, q store.Querier, obj any) error {
	binding := h.Registry.BindingFor(obj)
	if binding == nil {
		return fmt.Errorf("no entity registered for %T", obj)
	}
	entity := binding.Entity

	cols, values, err := h.writableColumns(binding, obj)
	if err != nil {
		return err
	}
	id, err := binding.ID(obj)
	if err != nil {
		return err
	}

	pb := h.Store.Dialect.NewParamBuilder()
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = " + pb.Add(values[i])
	}
	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		entity.Table, strings.Join(sets, ", "), entity.PrimaryKey.Field, pb.Add(id))
	if _, err := q.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return store.MapError(h.Store.Dialect, fmt.Errorf("update %s: %w", entity.Name, err))
	}

	return h.SyncCollections(ctx, q, obj)
}

// Remove deletes the given objects and returns their ids in deletion
// order. Join table rows go with them via FK cascade.
func (h *Handler) Remove(ctx context.Context, q store.Querier, entityName string, objs []any) ([]any, error) {
	if len(objs) == 0 {
		return nil, nil
	}
	entity := h.Registry.GetEntity(entityName)
	binding := h.Registry.GetBinding(entityName)
	if entity == nil || binding == nil {
		return nil, fmt.Errorf("unknown entity %q", entityName)
	}

	pb := h.Store.Dialect.NewParamBuilder()
	ids := make([]any, 0, len(objs))
	markers := make([]string, 0, len(objs))
	for _, obj := range objs {
		id, err := binding.ID(obj)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		markers = append(markers, pb.Add(id))
	}

	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
		entity.Table, entity.PrimaryKey.Field, strings.Join(markers, ", "))
	if _, err := q.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return nil, store.MapError(h.Store.Dialect, fmt.Errorf("delete %s: %w", entityName, err))
	}
	return ids, nil
}

// writableColumns collects scalar columns plus owning to-one FK columns
// and their current values.
func (h *Handler) writableColumns(binding *metadata.TypeBinding, obj any) ([]string, []any, error) {
	entity := binding.Entity
	var cols []string
	var values []any

	for _, f := range entity.WritableFields() {
		v, err := binding.Get(obj, f.Name)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, f.Name)
		values = append(values, toStoreValue(v))
	}

	for i := range entity.Relations {
		rel := &entity.Relations[i]
		if !rel.IsToOne() || rel.SourceKey == "" {
			continue
		}
		related, err := binding.Get(obj, rel.Name)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, rel.SourceKey)
		if related == nil || reflect.ValueOf(related).IsNil() {
			values = append(values, nil)
			continue
		}
		targetBinding := h.Registry.GetBinding(rel.Target)
		if targetBinding == nil {
			return nil, nil, fmt.Errorf("no binding for entity %q", rel.Target)
		}
		fk, err := targetBinding.ID(related)
		if err != nil {
			return nil, nil, err
		}
		values = append(values, fk)
	}
	return cols, values, nil
}

// SyncCollections reconciles the store with every loaded to-many
// collection of obj. Unloaded (nil) collections are left alone.
func (h *Handler) SyncCollections(ctx context.Context, q store.Querier, obj any) error {
	binding := h.Registry.BindingFor(obj)
	if binding == nil {
		return fmt.Errorf("no entity registered for %T", obj)
	}
	entity := binding.Entity
	ownerID, err := binding.ID(obj)
	if err != nil {
		return err
	}

	for i := range entity.Relations {
		rel := &entity.Relations[i]
		if !rel.IsToMany() {
			continue
		}
		want, err := memberIDs(h.Registry, binding, obj, rel)
		if err != nil {
			return err
		}
		if want == nil {
			continue
		}
		switch rel.Type {
		case metadata.ManyToMany:
			err = h.syncJoinTable(ctx, q, rel, ownerID, want)
		case metadata.OneToMany:
			err = h.syncChildFKs(ctx, q, rel, ownerID, want)
		}
		if err != nil {
			return fmt.Errorf("sync %s.%s: %w", entity.Name, rel.Name, err)
		}
	}
	return nil
}

func (h *Handler) syncJoinTable(ctx context.Context, q store.Querier, rel *metadata.Relation, ownerID any, want []any) error {
	pb := h.Store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		rel.TargetJoinKey, rel.JoinTable, rel.SourceJoinKey, pb.Add(ownerID))
	rows, err := store.QueryRows(ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return err
	}
	have := map[string]any{}
	for _, row := range rows {
		v := row[rel.TargetJoinKey]
		have[fmt.Sprint(v)] = v
	}
	wantSet := map[string]bool{}
	for _, id := range want {
		wantSet[fmt.Sprint(id)] = true
	}

	for _, id := range want {
		if _, ok := have[fmt.Sprint(id)]; ok {
			continue
		}
		ipb := h.Store.Dialect.NewParamBuilder()
		ins := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
			rel.JoinTable, rel.SourceJoinKey, rel.TargetJoinKey, ipb.Add(ownerID), ipb.Add(id))
		if _, err := q.ExecContext(ctx, ins, ipb.Params()...); err != nil {
			return err
		}
	}
	for key, id := range have {
		if wantSet[key] {
			continue
		}
		dpb := h.Store.Dialect.NewParamBuilder()
		del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
			rel.JoinTable, rel.SourceJoinKey, dpb.Add(ownerID), rel.TargetJoinKey, dpb.Add(id))
		if _, err := q.ExecContext(ctx, del, dpb.Params()...); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) syncChildFKs(ctx context.Context, q store.Querier, rel *metadata.Relation, ownerID any, want []any) error {
	target := h.Registry.GetEntity(rel.Target)
	if target == nil {
		return fmt.Errorf("unknown entity %q", rel.Target)
	}

	pb := h.Store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		target.PrimaryKey.Field, target.Table, rel.TargetKey, pb.Add(ownerID))
	rows, err := store.QueryRows(ctx, q, sqlStr, pb.Params()...)
	if err != nil {
		return err
	}
	have := map[string]any{}
	for _, row := range rows {
		v := row[target.PrimaryKey.Field]
		have[fmt.Sprint(v)] = v
	}
	wantSet := map[string]bool{}
	for _, id := range want {
		wantSet[fmt.Sprint(id)] = true
	}

	for _, id := range want {
		if _, ok := have[fmt.Sprint(id)]; ok {
			continue
		}
		upb := h.Store.Dialect.NewParamBuilder()
		upd := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
			target.Table, rel.TargetKey, upb.Add(ownerID), target.PrimaryKey.Field, upb.Add(id))
		if _, err := q.ExecContext(ctx, upd, upb.Params()...); err != nil {
			return err
		}
	}
	for key, id := range have {
		if wantSet[key] {
			continue
		}
		npb := h.Store.Dialect.NewParamBuilder()
		unlink := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = %s",
			target.Table, rel.TargetKey, target.PrimaryKey.Field, npb.Add(id))
		if _, err := q.ExecContext(ctx, unlink, npb.Params()...); err != nil {
			return err
		}
	}
	return nil
}

// FindByID implements the mapper's locator: a missing id resolves to nil.
func (h *Handler) FindByID(ctx context.Context, entityName string, id any) (any, error) {
	objs, err := h.FindByIDs(ctx, entityName, []any{id})
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, nil
	}
	return objs[0], nil
}

// FindByIDs loads objects by primary key. Missing ids are simply absent
// from the result.
func (h *Handler) FindByIDs(ctx context.Context, entityName string, ids []any) ([]any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	entity := h.Registry.GetEntity(entityName)
	if entity == nil {
		return nil, fmt.Errorf("unknown entity %q", entityName)
	}
	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = fmt.Sprint(id)
	}
	p := &query.Params{
		Limit:     -1,
		FetchRoot: true,
		Filters: &query.Filters{Items: []query.Expression{
			&query.Filter{Property: entity.PrimaryKey.Field, Conditions: []query.Condition{
				{Comparator: query.In, Values: values},
			}},
		}},
	}
	return h.Query(ctx, h.Store.DB, entityName, p)
}

// ResolvePrimaryKeyFields returns the fields that identify one record of
// the entity on the wire.
func (h *Handler) ResolvePrimaryKeyFields(entityName string) ([]string, error) {
	entity := h.Registry.GetEntity(entityName)
	if entity == nil {
		return nil, fmt.Errorf("unknown entity %q", entityName)
	}
	return []string{entity.PrimaryKey.Field}, nil
}

func toStoreValue(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return rv.Elem().Interface()
	}
	return v
}
