package persistence

// OperationKind names what happened to one entity during a request.
type OperationKind string

const (
	Created OperationKind = "created"
	Updated OperationKind = "updated"
	Removed OperationKind = "removed"
)

// ModelNameResolver maps an entity name to the model name clients see.
type ModelNameResolver func(entityName string) string

// OperationResult is an ordered log of what a request did to the store.
// Entries are append-only; Merge builds a new combined result.
type OperationResult struct {
	entries []OperationEntry
}

type OperationEntry struct {
	EntityName string
	ID         any
	Kind       OperationKind
}

func (r *OperationResult) ReportEntity(entityName string, id any, kind OperationKind) {
	r.entries = append(r.entries, OperationEntry{EntityName: entityName, ID: id, Kind: kind})
}

func (r *OperationResult) Entries() []OperationEntry {
	return r.entries
}

// Merge returns a new result holding this result's entries followed by the
// other's.
func (r *OperationResult) Merge(other *OperationResult) *OperationResult {
	merged := &OperationResult{}
	merged.entries = append(merged.entries, r.entries...)
	if other != nil {
		merged.entries = append(merged.entries, other.entries...)
	}
	return merged
}

// IDsByKind collects ids of the given kind, keyed by resolved model name.
func (r *OperationResult) IDsByKind(kind OperationKind, resolve ModelNameResolver) map[string][]any {
	out := make(map[string][]any)
	for _, e := range r.entries {
		if e.Kind != kind {
			continue
		}
		name := e.EntityName
		if resolve != nil {
			name = resolve(e.EntityName)
		}
		out[name] = append(out[name], e.ID)
	}
	return out
}

// ToResponse serializes the log into the response envelope keys.
func (r *OperationResult) ToResponse(resolve ModelNameResolver) map[string]any {
	return map[string]any{
		"created_models": r.IDsByKind(Created, resolve),
		"updated_models": r.IDsByKind(Updated, resolve),
		"removed_models": r.IDsByKind(Removed, resolve),
	}
}
