package entity

import (
	"strconv"
	"strings"
)

// Cond is a single filter condition in PostgREST operator form.
type Cond struct {
	Field string
	Op    string // "eq", "ilike", ...
	Value string
}

// Filter narrows a Fetch to matching rows and fixes the server-side ordering.
// Conditions are ordered so that two logically identical filters serialize to
// the same key, which request coalescing relies on.
type Filter struct {
	Conds   []Cond
	OrderBy string
	Desc    bool
	// Limit caps the number of rows returned; 0 means no cap.
	Limit int
}

// Eq returns a filter matching rows whose field equals value.
func Eq(field, value string) Filter {
	return Filter{Conds: []Cond{{Field: field, Op: "eq", Value: value}}}
}

// ILike returns a filter matching rows whose field equals value
// case-insensitively. Used for cross-reference lookups such as email matching.
func ILike(field, value string) Filter {
	return Filter{Conds: []Cond{{Field: field, Op: "ilike", Value: value}}}
}

// And appends a condition to the filter.
func (f Filter) And(field, op, value string) Filter {
	f.Conds = append(f.Conds[:len(f.Conds):len(f.Conds)], Cond{Field: field, Op: op, Value: value})
	return f
}

// Newest orders results by created_at descending, the listing default
// throughout the portal.
func (f Filter) Newest() Filter {
	f.OrderBy, f.Desc = "created_at", true
	return f
}

// OrderedBy orders results by the given column.
func (f Filter) OrderedBy(column string, desc bool) Filter {
	f.OrderBy, f.Desc = column, desc
	return f
}

// Limited caps the number of rows returned.
func (f Filter) Limited(n int) Filter {
	f.Limit = n
	return f
}

// Key returns a stable string form of the filter, suitable as a coalescing
// key. Identical filters always produce identical keys.
func (f Filter) Key() string {
	var b strings.Builder
	for i, c := range f.Conds {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(c.Field)
		b.WriteByte('=')
		b.WriteString(c.Op)
		b.WriteByte('.')
		b.WriteString(c.Value)
	}
	if f.OrderBy != "" {
		b.WriteString("|order=")
		b.WriteString(f.OrderBy)
		if f.Desc {
			b.WriteString(".desc")
		}
	}
	if f.Limit > 0 {
		b.WriteString("|limit=")
		b.WriteString(strconv.Itoa(f.Limit))
	}
	return b.String()
}
