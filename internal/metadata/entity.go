package metadata

type Entity struct {
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	Fields     []Field    `json:"fields"`
	Relations  []Relation `json:"relations,omitempty"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// GetRelation returns a pointer to the relation with the given name, or nil.
func (e *Entity) GetRelation(name string) *Relation {
	for i := range e.Relations {
		if e.Relations[i].Name == name {
			return &e.Relations[i]
		}
	}
	return nil
}

// HasRelation returns true if the entity has a relation with the given name.
func (e *Entity) HasRelation(name string) bool {
	return e.GetRelation(name) != nil
}

// FieldNames returns all scalar field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// Columns returns the column list a root select must project: every
// scalar field plus the FK column of each owning to-one relation.
func (e *Entity) Columns() []string {
	cols := e.FieldNames()
	for i := range e.Relations {
		r := &e.Relations[i]
		if r.IsToOne() && r.SourceKey != "" {
			cols = append(cols, r.SourceKey)
		}
	}
	return cols
}

// WritableFields returns fields that can be set by the client.
// The primary key is excluded when it is generated.
func (e *Entity) WritableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field && e.PrimaryKey.Generated {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// MappableFields returns the default allowed-fields list for data mapping:
// every scalar field and relation name except the identity field.
func (e *Entity) MappableFields() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field {
			continue
		}
		names = append(names, f.Name)
	}
	for _, r := range e.Relations {
		names = append(names, r.Name)
	}
	return names
}
