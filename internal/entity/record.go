// Package entity defines the normalized record model shared by the cache,
// resolver and reconciler: records as fetched from the backing store, the
// relations declared between them, and the denormalized view models produced
// by resolving those relations.
package entity

import "time"

// Record is a normalized entity as stored by the backing store. Attributes are
// kept as a generic map because the portal backend exposes schemaless JSON
// rows; typed projections are built on top via ViewModel mappings.
type Record struct {
	// Type tags the backing table the record came from, e.g. "customers".
	Type string
	// ID is the record's primary identifier.
	ID string
	// UpdatedAt is the revision marker carried by the row (updated_at, or
	// created_at for immutable rows). Zero when the row carries neither.
	UpdatedAt time.Time
	// FetchedAt is the local time the record was last received from the
	// backend. Used for staleness decisions, never sent upstream.
	FetchedAt time.Time

	Attrs map[string]any
}

// IsZero reports whether r is the zero Record.
func (r Record) IsZero() bool { return r.Type == "" && r.ID == "" }

// Attr returns the named attribute or nil when absent.
func (r Record) Attr(name string) any {
	if r.Attrs == nil {
		return nil
	}
	return r.Attrs[name]
}

// Str returns the named attribute as a string. Missing, nil and non-string
// attributes all yield "", which doubles as the null foreign-key sentinel
// during relation resolution.
func (r Record) Str(name string) string {
	s, _ := r.Attr(name).(string)
	return s
}

// Clone returns a deep copy of the record so callers can hand records across
// component boundaries without aliasing the cache's copy.
func (r Record) Clone() Record {
	cp := r
	if r.Attrs != nil {
		cp.Attrs = make(map[string]any, len(r.Attrs))
		for k, v := range r.Attrs {
			cp.Attrs[k] = v
		}
	}
	return cp
}
