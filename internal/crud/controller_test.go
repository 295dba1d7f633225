package crud

import (
	"context"
	"strconv"
	"testing"

	"crudgate/internal/config"
	"crudgate/internal/hydration"
	"crudgate/internal/metadata"
	"crudgate/internal/store"
)

type person struct {
	ID       int64
	Name     string
	Email    string
	IsActive bool
	Salary   float64
}

// newTestController wires a controller over a throwaway sqlite store with a
// single scalar entity exposed under the wire name "app.person".
func newTestController(t *testing.T) *Controller {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		Env:            "dev",
		DateFormat:     "2006-01-02",
		DateTimeFormat: "2006-01-02 15:04:05",
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   t.TempDir(),
			Name:   "test",
		},
	}

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(st.Close)

	reg := metadata.NewRegistry()
	reg.MustRegister(&metadata.Entity{
		Name:       "person",
		Table:      "people",
		PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "bigint", Generated: true},
		Fields: []metadata.Field{
			{Name: "id", Type: "bigint"},
			{Name: "name", Type: "string"},
			{Name: "email", Type: "string"},
			{Name: "isActive", Type: "boolean"},
			{Name: "salary", Type: "float"},
		},
	}, &person{})

	if err := store.NewMigrator(st).MigrateAll(ctx, reg); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctl := NewController(cfg, st, reg)
	ctl.MustRegister(&EntityConfig{
		Entity:    "person",
		ModelName: "app.person",
		Hydration: hydration.NewConfig().
			Group("main", "id", "name", "email", "isActive", "salary").
			BareProfile("main"),
		Validators: []Validator{NewRuleValidator(
			&Rule{Field: "name", Operator: "required", Message: "name is required"},
		)},
		DefaultValues: map[string]any{"isActive": true},
	})
	return ctl
}

func createPerson(t *testing.T, ctl *Controller, record map[string]any) int64 {
	t.Helper()
	resp, err := ctl.Create(context.Background(), "person", map[string]any{"record": record})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp["success"] != true {
		t.Fatalf("create failed: %v", resp)
	}
	ids := resp["created_models"].(map[string][]any)["app.person"]
	if len(ids) != 1 {
		t.Fatalf("expected one created id, got %v", ids)
	}
	id, ok := ids[0].(int64)
	if !ok {
		t.Fatalf("expected int64 id, got %T", ids[0])
	}
	return id
}

func eqIDParams(id int64, extra map[string]any) map[string]any {
	params := map[string]any{
		"filter": []any{
			map[string]any{"property": "id", "value": "eq:" + strconv.FormatInt(id, 10)},
		},
	}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	id := createPerson(t, ctl, map[string]any{
		"name":   "Ann",
		"email":  "ann@example.org",
		"salary": 1200.5,
	})

	resp, err := ctl.Get(ctx, "person", eqIDParams(id, map[string]any{
		"hydration": map[string]any{"profile": "main"},
	}))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp["success"] != true {
		t.Fatalf("get failed: %v", resp)
	}
	result := resp["result"].(map[string]any)
	if result["name"] != "Ann" || result["email"] != "ann@example.org" {
		t.Fatalf("unexpected result: %v", result)
	}
	if result["salary"] != 1200.5 {
		t.Fatalf("salary did not survive the round trip: %v (%T)", result["salary"], result["salary"])
	}
	// isActive came from DefaultValues, not the record.
	if result["isActive"] != true {
		t.Fatalf("default value was not applied: %v", result)
	}
}

func TestCreateReturnsHydratedResultOnDemand(t *testing.T) {
	ctl := newTestController(t)

	resp, err := ctl.Create(context.Background(), "person", map[string]any{
		"record":    map[string]any{"name": "Bob"},
		"hydration": map[string]any{"profile": "main"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected hydrated result, got %v", resp)
	}
	if result["name"] != "Bob" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestCreateWithoutRecordIsRejected(t *testing.T) {
	ctl := newTestController(t)

	_, err := ctl.Create(context.Background(), "person", map[string]any{})
	app, ok := err.(*AppError)
	if !ok {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if app.Code != "BAD_REQUEST" || app.Path != "/record" {
		t.Fatalf("unexpected error: %+v", app)
	}
}

func TestCreateValidationFailureEnvelope(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	resp, err := ctl.Create(ctx, "person", map[string]any{
		"record": map[string]any{"email": "no-name@example.org"},
	})
	if err != nil {
		t.Fatalf("validation failures are a response, not an error: %v", err)
	}
	if resp["success"] != false {
		t.Fatalf("expected failure envelope: %v", resp)
	}
	fe := resp["field_errors"].(map[string]any)
	if msgs := fe["name"].([]string); len(msgs) != 1 || msgs[0] != "name is required" {
		t.Fatalf("unexpected field errors: %v", fe)
	}
	if resp["general_errors"] == nil {
		t.Fatal("general_errors must be present even when empty")
	}

	// Nothing was persisted.
	list, err := ctl.List(ctx, "person", map[string]any{
		"hydration": map[string]any{"profile": "main"},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list["total"] != int64(0) {
		t.Fatalf("invalid record must not be stored, total = %v", list["total"])
	}
}

func TestGetDemandsExactlyOneMatch(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	createPerson(t, ctl, map[string]any{"name": "Ann", "email": "x@example.org"})
	createPerson(t, ctl, map[string]any{"name": "Bob", "email": "x@example.org"})

	_, err := ctl.Get(ctx, "person", map[string]any{
		"filter":    []any{map[string]any{"property": "id", "value": "eq:999"}},
		"hydration": map[string]any{"profile": "main"},
	})
	if app, ok := err.(*AppError); !ok || app.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}

	_, err = ctl.Get(ctx, "person", map[string]any{
		"filter":    []any{map[string]any{"property": "email", "value": "eq:x@example.org"}},
		"hydration": map[string]any{"profile": "main"},
	})
	if app, ok := err.(*AppError); !ok || app.Code != "MORE_THAN_ONE_RESULT" {
		t.Fatalf("expected MORE_THAN_ONE_RESULT, got %v", err)
	}
}

func TestListPaginatesButCountsEverything(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	for _, name := range []string{"Ann", "Bob", "Cid", "Dot", "Eve"} {
		createPerson(t, ctl, map[string]any{"name": name})
	}

	resp, err := ctl.List(ctx, "person", map[string]any{
		"limit": 2,
		"page":  2,
		"sort":  []any{map[string]any{"property": "name", "direction": "ASC"}},
		"hydration": map[string]any{
			"profile": "main",
		},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if resp["total"] != int64(5) {
		t.Fatalf("total must ignore pagination, got %v", resp["total"])
	}
	items := resp["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected page of 2, got %d", len(items))
	}
	first := items[0].(map[string]any)
	if first["name"] != "Cid" {
		t.Fatalf("page 2 of sorted list should start at Cid, got %v", first["name"])
	}
}

func TestListGroupByReturnsRawRows(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	createPerson(t, ctl, map[string]any{"name": "Ann", "email": "a@example.org"})
	createPerson(t, ctl, map[string]any{"name": "Bob", "email": "a@example.org"})
	createPerson(t, ctl, map[string]any{"name": "Cid", "email": "c@example.org"})

	resp, err := ctl.List(ctx, "person", map[string]any{
		"fetch": map[string]any{
			"cnt": map[string]any{"function": "COUNT", "args": []any{":id"}},
		},
		"groupBy": []any{"email"},
		"sort":    []any{map[string]any{"property": "email", "direction": "ASC"}},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	items := resp["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected two groups, got %v", items)
	}
	row := items[0].(map[string]any)
	if row["email"] != "a@example.org" {
		t.Fatalf("unexpected first group: %v", row)
	}
	if cnt, ok := row["cnt"].(int64); !ok || cnt != 2 {
		t.Fatalf("unexpected count: %v (%T)", row["cnt"], row["cnt"])
	}
}

func TestListHiddenFetchDrivesGroupingButStaysInvisible(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	createPerson(t, ctl, map[string]any{"name": "Ann", "email": "a@example.org"})
	createPerson(t, ctl, map[string]any{"name": "Bob", "email": "A@example.org"})
	createPerson(t, ctl, map[string]any{"name": "Cid", "email": "c@example.org"})

	resp, err := ctl.List(ctx, "person", map[string]any{
		"fetchRoot": false,
		"fetch": map[string]any{
			"cnt": map[string]any{"function": "COUNT", "args": []any{":id"}},
			"grp": map[string]any{"function": "upper", "args": []any{":email"}, "hidden": true},
		},
		"groupBy": []any{"grp"},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	items := resp["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected two groups, got %v", items)
	}
	var sum int64
	for _, item := range items {
		row := item.(map[string]any)
		if _, ok := row["grp"]; ok {
			t.Fatalf("hidden column leaked into the response: %v", row)
		}
		cnt, ok := row["cnt"].(int64)
		if !ok {
			t.Fatalf("missing count: %v", row)
		}
		sum += cnt
	}
	if sum != 3 {
		t.Fatalf("groups must cover every row, got %d", sum)
	}
}

func TestUpdateByRecordPrimaryKey(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	id := createPerson(t, ctl, map[string]any{"name": "Ann", "salary": 100.0})

	resp, err := ctl.Update(ctx, "person", map[string]any{
		"record": map[string]any{"id": id, "name": "Renamed", "salary": 250.0},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if resp["success"] != true {
		t.Fatalf("update failed: %v", resp)
	}
	ids := resp["updated_models"].(map[string][]any)["app.person"]
	if len(ids) != 1 || ids[0].(int64) != id {
		t.Fatalf("unexpected updated_models: %v", resp["updated_models"])
	}

	get, err := ctl.Get(ctx, "person", eqIDParams(id, map[string]any{
		"hydration": map[string]any{"profile": "main"},
	}))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	result := get["result"].(map[string]any)
	if result["name"] != "Renamed" || result["salary"] != 250.0 {
		t.Fatalf("changes did not persist: %v", result)
	}
}

func TestUpdateWithoutPrimaryKeyIsRejected(t *testing.T) {
	ctl := newTestController(t)

	_, err := ctl.Update(context.Background(), "person", map[string]any{
		"record": map[string]any{"name": "Nobody"},
	})
	app, ok := err.(*AppError)
	if !ok {
		t.Fatalf("expected *AppError, got %T", err)
	}
	if app.Code != "BAD_REQUEST" || app.Path != "/record/id" {
		t.Fatalf("unexpected error: %+v", app)
	}
}

func TestBatchUpdateRecordsMode(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	a := createPerson(t, ctl, map[string]any{"name": "Ann"})
	b := createPerson(t, ctl, map[string]any{"name": "Bob"})

	resp, err := ctl.BatchUpdate(ctx, "person", map[string]any{
		"records": []any{
			map[string]any{"id": a, "name": "Ann2"},
			map[string]any{"id": b, "name": "Bob2"},
		},
	})
	if err != nil {
		t.Fatalf("batchUpdate: %v", err)
	}
	if resp["success"] != true {
		t.Fatalf("batchUpdate failed: %v", resp)
	}
	ids := resp["updated_models"].(map[string][]any)["app.person"]
	if len(ids) != 2 {
		t.Fatalf("expected both rows updated: %v", resp["updated_models"])
	}
}

func TestBatchUpdateIsAllOrNothing(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	a := createPerson(t, ctl, map[string]any{"name": "Ann"})
	b := createPerson(t, ctl, map[string]any{"name": "Bob"})

	resp, err := ctl.BatchUpdate(ctx, "person", map[string]any{
		"records": []any{
			map[string]any{"id": a, "name": "Renamed"},
			map[string]any{"id": b, "name": ""}, // violates the required rule
		},
	})
	if err != nil {
		t.Fatalf("row validation failures are a response, not an error: %v", err)
	}
	if resp["success"] != false {
		t.Fatalf("expected failure envelope: %v", resp)
	}
	rowErrors := resp["errors"].([]map[string]any)
	if len(rowErrors) != 1 {
		t.Fatalf("expected one failing row, got %v", rowErrors)
	}
	if rowErrors[0]["id"].(int64) != b {
		t.Fatalf("errors must be keyed by the failing row's id: %v", rowErrors[0])
	}
	errs := rowErrors[0]["errors"].(map[string]any)
	if _, ok := errs["field_errors"].(map[string]any)["name"]; !ok {
		t.Fatalf("unexpected row errors: %v", errs)
	}

	// The valid row must not have been written either.
	get, err := ctl.Get(ctx, "person", eqIDParams(a, map[string]any{
		"hydration": map[string]any{"profile": "main"},
	}))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if name := get["result"].(map[string]any)["name"]; name != "Ann" {
		t.Fatalf("failing batch must not persist valid rows, name = %v", name)
	}
}

func TestBatchUpdateQueriesMode(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	createPerson(t, ctl, map[string]any{"name": "Ann", "salary": 10.0})
	createPerson(t, ctl, map[string]any{"name": "Bob", "salary": 20.0})
	createPerson(t, ctl, map[string]any{"name": "Cid", "salary": 90.0})

	resp, err := ctl.BatchUpdate(ctx, "person", map[string]any{
		"queries": []any{
			map[string]any{"filter": []any{
				map[string]any{"property": "salary", "value": "lt:50"},
			}},
		},
		"record": map[string]any{"name": "Junior"},
	})
	if err != nil {
		t.Fatalf("batchUpdate: %v", err)
	}
	ids := resp["updated_models"].(map[string][]any)["app.person"]
	if len(ids) != 2 {
		t.Fatalf("expected the two matched rows, got %v", resp["updated_models"])
	}

	list, err := ctl.List(ctx, "person", map[string]any{
		"filter":    []any{map[string]any{"property": "name", "value": "eq:Junior"}},
		"hydration": map[string]any{"profile": "main"},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list["total"] != int64(2) {
		t.Fatalf("expected two renamed rows, got %v", list["total"])
	}
}

func TestRemove(t *testing.T) {
	ctl := newTestController(t)
	ctx := context.Background()

	id := createPerson(t, ctl, map[string]any{"name": "Ann"})
	createPerson(t, ctl, map[string]any{"name": "Bob"})

	_, err := ctl.Remove(ctx, "person", map[string]any{})
	if app, ok := err.(*AppError); !ok || app.Path != "/filter" {
		t.Fatalf("expected missing-filter error, got %v", err)
	}

	resp, err := ctl.Remove(ctx, "person", eqIDParams(id, nil))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	ids := resp["removed_models"].(map[string][]any)["app.person"]
	if len(ids) != 1 || ids[0].(int64) != id {
		t.Fatalf("unexpected removed_models: %v", resp["removed_models"])
	}

	list, err := ctl.List(ctx, "person", map[string]any{
		"hydration": map[string]any{"profile": "main"},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list["total"] != int64(1) {
		t.Fatalf("expected one survivor, got %v", list["total"])
	}
}

func TestGetNewRecordValuesFallsBackToDefaults(t *testing.T) {
	ctl := newTestController(t)

	resp, err := ctl.GetNewRecordValues(context.Background(), "person", map[string]any{})
	if err != nil {
		t.Fatalf("getNewRecordValues: %v", err)
	}
	result := resp["result"].(map[string]any)
	if result["isActive"] != true {
		t.Fatalf("unexpected template: %v", result)
	}
}

func TestUnknownEntityIsRejected(t *testing.T) {
	ctl := newTestController(t)

	_, err := ctl.List(context.Background(), "ghost", map[string]any{})
	if app, ok := err.(*AppError); !ok || app.Code != "UNKNOWN_ENTITY" {
		t.Fatalf("expected UNKNOWN_ENTITY, got %v", err)
	}
}

func TestInterceptorVetoesAction(t *testing.T) {
	ctl := newTestController(t)
	ctl.AddInterceptor(&RoleInterceptor{Required: map[string]string{
		ActionRemove: "ROLE_ADMIN",
	}})
	ctx := context.Background()

	id := createPerson(t, ctl, map[string]any{"name": "Ann"})

	_, err := ctl.Remove(ctx, "person", eqIDParams(id, nil))
	if app, ok := err.(*AppError); !ok || app.Code != "ACCESS_DENIED" || app.Role != "ROLE_ADMIN" {
		t.Fatalf("expected ACCESS_DENIED, got %v", err)
	}

	admin := WithRoles(ctx, []string{"ROLE_ADMIN"})
	if _, err := ctl.Remove(admin, "person", eqIDParams(id, nil)); err != nil {
		t.Fatalf("admin remove: %v", err)
	}
}
