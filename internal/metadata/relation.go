package metadata

// RelationType names the shape of an association between two entities.
type RelationType string

const (
	OneToOne   RelationType = "one_to_one"
	ManyToOne  RelationType = "many_to_one"
	OneToMany  RelationType = "one_to_many"
	ManyToMany RelationType = "many_to_many"
)

// Relation describes an association from the declaring entity to Target.
//
// For to-one relations SourceKey is the FK column on the declaring entity's
// table. For one_to_many relations TargetKey is the FK column on the target
// table pointing back at us. For many_to_many the JoinTable columns link the
// two sides.
type Relation struct {
	Name      string       `json:"name"`
	Type      RelationType `json:"type"`
	Target    string       `json:"target"`
	SourceKey string       `json:"source_key,omitempty"`
	TargetKey string       `json:"target_key,omitempty"`

	JoinTable     string `json:"join_table,omitempty"`
	SourceJoinKey string `json:"source_join_key,omitempty"`
	TargetJoinKey string `json:"target_join_key,omitempty"`

	// Inverse names the relation on the target entity that mirrors this
	// one, when the association is bidirectional.
	Inverse string `json:"inverse,omitempty"`

	// SortField names the target field a sort on this association orders
	// by. Empty means the target's identity field.
	SortField string `json:"sort_field,omitempty"`
}

// IsToOne reports whether the relation resolves to at most one target record.
func (r *Relation) IsToOne() bool {
	return r.Type == OneToOne || r.Type == ManyToOne
}

// IsToMany reports whether the relation resolves to a collection.
func (r *Relation) IsToMany() bool {
	return r.Type == OneToMany || r.Type == ManyToMany
}
