package entity

// Projection maps one attribute of a related record onto a named field of the
// produced view model, e.g. customers.company -> customer_company.
type Projection struct {
	From string
	As   string
}

// Relation declares a foreign-key edge from a field on the root record to
// another entity type. Relations are resolved in declaration order so that a
// given root and relation list always produce the same view model.
type Relation struct {
	// Name identifies the relation in errors and logs.
	Name string
	// Field is the foreign-key attribute on the root record.
	Field string
	// Target is the entity type the key points into.
	Target string
	// Required marks the relation as mandatory: failure to resolve it fails
	// the whole composition instead of nulling out the projected fields.
	Required bool

	Project []Projection
}

// ViewModel is a denormalized projection: a root record plus fields resolved
// from its relations. Fields holds only the projected relation attributes;
// the root's own attributes stay on Root.
type ViewModel struct {
	Root   Record
	Fields map[string]any
}

// Field returns a projected relation field, or nil when the relation was
// optional and unresolved.
func (v ViewModel) Field(name string) any {
	if v.Fields == nil {
		return nil
	}
	return v.Fields[name]
}

// Str returns a projected relation field as a string ("" when null).
func (v ViewModel) Str(name string) string {
	s, _ := v.Field(name).(string)
	return s
}

// LinkSpec describes an association entity that is created lazily the first
// time it is needed: the link row is looked up by the owner's identifier and,
// when absent, its counterpart is located by a cross-reference attribute on
// the target type before the link row is inserted.
type LinkSpec struct {
	// LinkType is the association entity type, e.g. "customer_users".
	LinkType string
	// OwnerField is the attribute on the link row holding the owner's id.
	OwnerField string
	// TargetField is the attribute on the link row holding the target's id.
	TargetField string
	// TargetType is the entity type on the far side of the link.
	TargetType string
	// CrossRefField is the attribute on TargetType used to locate the
	// counterpart when no link row exists yet, e.g. a verified email.
	CrossRefField string
	// Extra attributes stamped onto a newly created link row.
	Extra map[string]any
}
