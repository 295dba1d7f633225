package crud

import (
	"context"
	"database/sql"
	"fmt"

	"crudgate/internal/config"
	"crudgate/internal/hydration"
	"crudgate/internal/mapping"
	"crudgate/internal/metadata"
	"crudgate/internal/persistence"
	"crudgate/internal/query"
	"crudgate/internal/store"
)

// EntityConfig declares how one registered entity is exposed through the
// CRUD actions.
type EntityConfig struct {
	// Entity is the registry name requests address.
	Entity string

	// ModelName is the wire model name used in created/updated/removed
	// maps. Defaults to Entity.
	ModelName string

	// MapFields restricts which payload keys the mapper may bind. Empty
	// means every mappable field of the entity.
	MapFields []string

	// Hydration declares the profiles available to read actions.
	Hydration *hydration.Config

	// Validators run after mapping and before persistence.
	Validators []Validator

	// DefaultValues are merged into create records for absent keys, and
	// are the fallback template for getNewRecordValues.
	DefaultValues map[string]any

	// NewRecordValues, when set, builds the new-record template instead
	// of DefaultValues.
	NewRecordValues func(ctx context.Context, params map[string]any) (map[string]any, error)

	// NewEntity overrides the default reflective construction.
	NewEntity func() any
}

// Controller dispatches the CRUD actions for all registered entities. It is
// safe for concurrent use once configured.
type Controller struct {
	cfg          *config.Config
	store        *store.Store
	registry     *metadata.Registry
	handler      *persistence.Handler
	mapper       *mapping.Mapper
	hydrator     *hydration.Hydrator
	interceptors *InterceptorChain
	entities     map[string]*EntityConfig
}

type configPrefs struct {
	cfg *config.Config
}

func (p configPrefs) DateFormat() string     { return p.cfg.DateFormat }
func (p configPrefs) DateTimeFormat() string { return p.cfg.DateTimeFormat }

func NewController(cfg *config.Config, st *store.Store, registry *metadata.Registry, converters ...mapping.ComplexConverter) *Controller {
	handler := persistence.NewHandler(st, registry)
	return &Controller{
		cfg:          cfg,
		store:        st,
		registry:     registry,
		handler:      handler,
		mapper:       mapping.NewMapper(registry, handler, configPrefs{cfg}, converters...),
		hydrator:     hydration.NewHydrator(registry),
		interceptors: &InterceptorChain{},
		entities:     map[string]*EntityConfig{},
	}
}

// AddInterceptor registers a pre-action hook shared by all entities.
func (c *Controller) AddInterceptor(i any) {
	c.interceptors.Add(i)
}

// Handler exposes the persistence handler for callers that need direct
// query access (fixtures, admin tooling).
func (c *Controller) Handler() *persistence.Handler {
	return c.handler
}

// Register exposes an entity through the CRUD actions. The entity must
// already be registered in the metadata registry.
func (c *Controller) Register(ec *EntityConfig) error {
	entity := c.registry.GetEntity(ec.Entity)
	if entity == nil {
		return BadConfigError(fmt.Sprintf("cannot expose unregistered entity: %s", ec.Entity))
	}
	if ec.ModelName == "" {
		ec.ModelName = ec.Entity
	}
	if len(ec.MapFields) == 0 {
		ec.MapFields = entity.MappableFields()
	}
	c.entities[ec.Entity] = ec
	return nil
}

func (c *Controller) MustRegister(ec *EntityConfig) {
	if err := c.Register(ec); err != nil {
		panic(err)
	}
}

// ModelName resolves an entity name to its wire model name.
func (c *Controller) ModelName(entityName string) string {
	if ec, ok := c.entities[entityName]; ok {
		return ec.ModelName
	}
	return entityName
}

func (c *Controller) resolve(entityName string) (*EntityConfig, error) {
	ec, ok := c.entities[entityName]
	if !ok {
		return nil, UnknownEntityError(entityName)
	}
	return ec, nil
}

func (c *Controller) intercept(ctx context.Context, action, entity string, params map[string]any) error {
	return c.interceptors.Run(ctx, &ActionRequest{
		Action: action,
		Entity: entity,
		Params: params,
		Roles:  RolesFromContext(ctx),
	})
}

// newEntity builds a fresh instance for create.
func (c *Controller) newEntity(ec *EntityConfig) any {
	if ec.NewEntity != nil {
		return ec.NewEntity()
	}
	return c.registry.GetBinding(ec.Entity).New()
}

func parseHydration(params map[string]any) (profile string, groups []string) {
	raw, ok := params["hydration"].(map[string]any)
	if !ok {
		return "", nil
	}
	profile, _ = raw["profile"].(string)
	switch g := raw["group"].(type) {
	case string:
		groups = []string{g}
	case []any:
		for _, item := range g {
			if s, ok := item.(string); ok {
				groups = append(groups, s)
			}
		}
	}
	return profile, groups
}

// hydrate formats one loaded entity per the request's hydration section.
func (c *Controller) hydrate(ctx context.Context, ec *EntityConfig, obj any, params map[string]any) (any, error) {
	profile, groups := parseHydration(params)
	if profile == "" {
		return nil, BadRequestError("/hydration", "hydration profile is required")
	}
	if ec.Hydration == nil {
		return nil, BadConfigError(fmt.Sprintf("entity %s declares no hydration config", ec.Entity))
	}
	return c.hydrator.Hydrate(ctx, obj, ec.Hydration, profile, groups)
}

// Create maps the record payload onto a fresh entity, validates it and
// persists it.
func (c *Controller) Create(ctx context.Context, entityName string, params map[string]any) (map[string]any, error) {
	ec, err := c.resolve(entityName)
	if err != nil {
		return nil, err
	}
	if err := c.intercept(ctx, ActionCreate, entityName, params); err != nil {
		return nil, err
	}

	record, ok := params["record"].(map[string]any)
	if !ok {
		return nil, BadRequestError("/record", "request is missing the record object")
	}
	for k, v := range ec.DefaultValues {
		if _, present := record[k]; !present {
			record[k] = v
		}
	}

	obj := c.newEntity(ec)
	if err := c.mapper.MapEntity(ctx, obj, record, ec.MapFields); err != nil {
		return nil, err
	}

	if resp, failed := c.runValidators(ctx, ec, record, obj, ActionCreate); failed {
		return resp, nil
	}

	var id any
	err = c.inTx(ctx, func(tx *sql.Tx) error {
		id, err = c.handler.Save(ctx, tx, obj)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &persistence.OperationResult{}
	result.ReportEntity(entityName, id, persistence.Created)

	resp := map[string]any{
		"success":        true,
		"created_models": result.IDsByKind(persistence.Created, c.ModelName),
	}
	if _, ok := params["hydration"]; ok {
		out, err := c.hydrate(ctx, ec, obj, params)
		if err != nil {
			return nil, err
		}
		resp["result"] = out
	}
	return resp, nil
}

// Get loads exactly one entity matched by the filter and hydrates it.
func (c *Controller) Get(ctx context.Context, entityName string, params map[string]any) (map[string]any, error) {
	ec, err := c.resolve(entityName)
	if err != nil {
		return nil, err
	}
	if err := c.intercept(ctx, ActionGet, entityName, params); err != nil {
		return nil, err
	}

	obj, err := c.queryOne(ctx, entityName, params)
	if err != nil {
		return nil, err
	}
	out, err := c.hydrate(ctx, ec, obj, params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "result": out}, nil
}

// List returns hydrated entities plus the unpaginated total. Requests that
// group or fetch computed expressions get raw rows instead of entities.
func (c *Controller) List(ctx context.Context, entityName string, params map[string]any) (map[string]any, error) {
	ec, err := c.resolve(entityName)
	if err != nil {
		return nil, err
	}
	if err := c.intercept(ctx, ActionList, entityName, params); err != nil {
		return nil, err
	}

	qp, err := query.ParseParams(params)
	if err != nil {
		return nil, BadRequestError("", err.Error())
	}

	total, err := c.handler.Count(ctx, c.store.DB, entityName, qp)
	if err != nil {
		return nil, err
	}

	var items []any
	if rawRowsNeeded(qp) {
		rows, err := c.handler.QueryRows(ctx, c.store.DB, entityName, qp)
		if err != nil {
			return nil, err
		}
		items = make([]any, 0, len(rows))
		for _, row := range rows {
			items = append(items, row)
		}
	} else {
		objs, err := c.handler.Query(ctx, c.store.DB, entityName, qp)
		if err != nil {
			return nil, err
		}
		items = make([]any, 0, len(objs))
		for _, obj := range objs {
			out, err := c.hydrate(ctx, ec, obj, params)
			if err != nil {
				return nil, err
			}
			items = append(items, out)
		}
	}

	return map[string]any{"success": true, "items": items, "total": total}, nil
}

// rawRowsNeeded reports whether the query projects something that no longer
// maps one-to-one onto entities.
func rawRowsNeeded(qp *query.Params) bool {
	if !qp.FetchRoot {
		return true
	}
	if len(qp.GroupBy) > 0 {
		return true
	}
	for _, node := range qp.Fetch {
		if node.Function != "" {
			return true
		}
	}
	return false
}

// Update resolves the target row by the record's primary key fields, maps
// the remaining record keys onto it and persists the changes.
func (c *Controller) Update(ctx context.Context, entityName string, params map[string]any) (map[string]any, error) {
	ec, err := c.resolve(entityName)
	if err != nil {
		return nil, err
	}
	if err := c.intercept(ctx, ActionUpdate, entityName, params); err != nil {
		return nil, err
	}

	record, ok := params["record"].(map[string]any)
	if !ok {
		return nil, BadRequestError("/record", "request is missing the record object")
	}

	obj, err := c.findByRecordPK(ctx, entityName, record)
	if err != nil {
		return nil, err
	}
	if err := c.mapper.MapEntity(ctx, obj, record, ec.MapFields); err != nil {
		return nil, err
	}

	if resp, failed := c.runValidators(ctx, ec, record, obj, ActionUpdate); failed {
		return resp, nil
	}

	err = c.inTx(ctx, func(tx *sql.Tx) error {
		return c.handler.Update(ctx, tx, obj)
	})
	if err != nil {
		return nil, err
	}

	id, err := c.registry.GetBinding(entityName).ID(obj)
	if err != nil {
		return nil, err
	}
	result := &persistence.OperationResult{}
	result.ReportEntity(entityName, id, persistence.Updated)

	resp := map[string]any{
		"success":        true,
		"updated_models": result.IDsByKind(persistence.Updated, c.ModelName),
	}
	if _, ok := params["hydration"]; ok {
		out, err := c.hydrate(ctx, ec, obj, params)
		if err != nil {
			return nil, err
		}
		resp["result"] = out
	}
	return resp, nil
}

type batchTarget struct {
	obj    any
	id     any
	record map[string]any
}

// BatchUpdate applies changes to many rows in one call. Either queries+record
// (same changes for every matched row) or records (per-row changes resolved
// by primary key). Validation failures anywhere abort the whole batch.
func (c *Controller) BatchUpdate(ctx context.Context, entityName string, params map[string]any) (map[string]any, error) {
	ec, err := c.resolve(entityName)
	if err != nil {
		return nil, err
	}
	if err := c.intercept(ctx, ActionBatchUpdate, entityName, params); err != nil {
		return nil, err
	}

	targets, err := c.collectBatchTargets(ctx, entityName, params)
	if err != nil {
		return nil, err
	}

	binding := c.registry.GetBinding(entityName)
	var rowErrors []map[string]any
	for _, t := range targets {
		if err := c.mapper.MapEntity(ctx, t.obj, t.record, ec.MapFields); err != nil {
			return nil, err
		}
		vr := NewValidationResult()
		for _, v := range ec.Validators {
			v.Validate(ctx, t.record, t.obj, ActionBatchUpdate, vr)
		}
		if vr.HasErrors() {
			rowErrors = append(rowErrors, map[string]any{"id": t.id, "errors": vr.ToMap()})
		}
	}
	if len(rowErrors) > 0 {
		return map[string]any{"success": false, "errors": rowErrors}, nil
	}

	err = c.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range targets {
			if err := c.handler.Update(ctx, tx, t.obj); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &persistence.OperationResult{}
	for _, t := range targets {
		id, err := binding.ID(t.obj)
		if err != nil {
			return nil, err
		}
		result.ReportEntity(entityName, id, persistence.Updated)
	}
	return map[string]any{
		"success":        true,
		"updated_models": result.IDsByKind(persistence.Updated, c.ModelName),
	}, nil
}

func (c *Controller) collectBatchTargets(ctx context.Context, entityName string, params map[string]any) ([]batchTarget, error) {
	binding := c.registry.GetBinding(entityName)

	if queries, ok := params["queries"].([]any); ok {
		record, ok := params["record"].(map[string]any)
		if !ok {
			return nil, BadRequestError("/record", "queries mode requires a record object")
		}
		var targets []batchTarget
		for i, raw := range queries {
			qm, ok := raw.(map[string]any)
			if !ok {
				return nil, BadRequestError(fmt.Sprintf("/queries/%d", i), "each query must be an object")
			}
			qp, err := query.ParseParams(qm)
			if err != nil {
				return nil, BadRequestError(fmt.Sprintf("/queries/%d", i), err.Error())
			}
			objs, err := c.handler.Query(ctx, c.store.DB, entityName, qp)
			if err != nil {
				return nil, err
			}
			for _, obj := range objs {
				id, err := binding.ID(obj)
				if err != nil {
					return nil, err
				}
				targets = append(targets, batchTarget{obj: obj, id: id, record: record})
			}
		}
		return targets, nil
	}

	if records, ok := params["records"].([]any); ok {
		var targets []batchTarget
		for i, raw := range records {
			record, ok := raw.(map[string]any)
			if !ok {
				return nil, BadRequestError(fmt.Sprintf("/records/%d", i), "each record must be an object")
			}
			obj, err := c.findByRecordPK(ctx, entityName, record)
			if err != nil {
				return nil, err
			}
			id, err := binding.ID(obj)
			if err != nil {
				return nil, err
			}
			targets = append(targets, batchTarget{obj: obj, id: id, record: record})
		}
		return targets, nil
	}

	return nil, BadRequestError("", "batchUpdate requires either queries+record or records")
}

// Remove deletes every entity matched by the filter.
func (c *Controller) Remove(ctx context.Context, entityName string, params map[string]any) (map[string]any, error) {
	if _, err := c.resolve(entityName); err != nil {
		return nil, err
	}
	if err := c.intercept(ctx, ActionRemove, entityName, params); err != nil {
		return nil, err
	}

	if _, ok := params["filter"]; !ok {
		return nil, BadRequestError("/filter", "request is missing the filter")
	}
	qp, err := query.ParseParams(params)
	if err != nil {
		return nil, BadRequestError("", err.Error())
	}
	objs, err := c.handler.Query(ctx, c.store.DB, entityName, qp)
	if err != nil {
		return nil, err
	}

	var ids []any
	err = c.inTx(ctx, func(tx *sql.Tx) error {
		ids, err = c.handler.Remove(ctx, tx, entityName, objs)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &persistence.OperationResult{}
	for _, id := range ids {
		result.ReportEntity(entityName, id, persistence.Removed)
	}
	return map[string]any{
		"success":        true,
		"removed_models": result.IDsByKind(persistence.Removed, c.ModelName),
	}, nil
}

// GetNewRecordValues hands the client a template for new-record forms.
func (c *Controller) GetNewRecordValues(ctx context.Context, entityName string, params map[string]any) (map[string]any, error) {
	ec, err := c.resolve(entityName)
	if err != nil {
		return nil, err
	}
	if err := c.intercept(ctx, ActionGetNewRecordValues, entityName, params); err != nil {
		return nil, err
	}

	values := map[string]any{}
	if ec.NewRecordValues != nil {
		values, err = ec.NewRecordValues(ctx, params)
		if err != nil {
			return nil, err
		}
	} else {
		for k, v := range ec.DefaultValues {
			values[k] = v
		}
	}
	return map[string]any{"success": true, "result": values}, nil
}

// runValidators maps a failed validation to its response envelope.
func (c *Controller) runValidators(ctx context.Context, ec *EntityConfig, record map[string]any, obj any, action string) (map[string]any, bool) {
	vr := NewValidationResult()
	for _, v := range ec.Validators {
		v.Validate(ctx, record, obj, action, vr)
	}
	if !vr.HasErrors() {
		return nil, false
	}
	resp := map[string]any{"success": false}
	for k, v := range vr.ToMap() {
		resp[k] = v
	}
	return resp, true
}

// queryOne runs the request filter and demands exactly one match.
func (c *Controller) queryOne(ctx context.Context, entityName string, params map[string]any) (any, error) {
	qp, err := query.ParseParams(params)
	if err != nil {
		return nil, BadRequestError("", err.Error())
	}
	objs, err := c.handler.Query(ctx, c.store.DB, entityName, qp)
	if err != nil {
		return nil, err
	}
	switch len(objs) {
	case 0:
		return nil, NotFoundError(entityName)
	case 1:
		return objs[0], nil
	default:
		return nil, MoreThanOneResultError(entityName)
	}
}

// findByRecordPK resolves one entity by equality filters over every primary
// key field present in the record.
func (c *Controller) findByRecordPK(ctx context.Context, entityName string, record map[string]any) (any, error) {
	pkFields, err := c.handler.ResolvePrimaryKeyFields(entityName)
	if err != nil {
		return nil, err
	}

	filters := &query.Filters{}
	for _, pk := range pkFields {
		val, ok := record[pk]
		if !ok || val == nil {
			return nil, BadRequestError("/record/"+pk, fmt.Sprintf("record is missing primary key field %q", pk))
		}
		filters.Add(query.NewFilter(pk, query.Eq, fmt.Sprint(val)))
	}

	qp := &query.Params{Limit: -1, FetchRoot: true, Filters: filters}
	objs, err := c.handler.Query(ctx, c.store.DB, entityName, qp)
	if err != nil {
		return nil, err
	}
	switch len(objs) {
	case 0:
		return nil, NotFoundError(entityName)
	case 1:
		return objs[0], nil
	default:
		return nil, MoreThanOneResultError(entityName)
	}
}

// inTx runs fn inside a transaction, rolling back on error.
func (c *Controller) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
