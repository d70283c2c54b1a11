// Package resolve joins related records onto a root record to produce a
// denormalized view model. One resolver replaces the per-view join code the
// portal used to duplicate: views declare their relations, the resolver walks
// them.
package resolve

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/AnishRamachandran/zeacore-go/internal/entity"
	"github.com/AnishRamachandran/zeacore-go/internal/remote"
)

// Source looks up a related record by identifier, reading through whatever
// cache sits in front of the backend. Absence is reported as
// remote.ErrNotFound.
type Source interface {
	Lookup(ctx context.Context, entityType, id string) (entity.Record, error)
}

// RelationResolutionError reports that a required relation could not be
// satisfied. The composition of the view model fails as a whole; a view model
// never exposes a partially-resolved required relation as success.
type RelationResolutionError struct {
	Relation string
	Reason   string
	Err      error
}

func (e *RelationResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relation %q: %s: %v", e.Relation, e.Reason, e.Err)
	}
	return fmt.Sprintf("relation %q: %s", e.Relation, e.Reason)
}

func (e *RelationResolutionError) Unwrap() error { return e.Err }

// Resolver composes view models from a root record and declared relations.
type Resolver struct {
	source Source
	log    zerolog.Logger
}

// New constructs a Resolver reading related records from source.
func New(source Source, log zerolog.Logger) *Resolver {
	return &Resolver{source: source, log: log}
}

// Resolve produces the view model for root. Relations are walked in
// declaration order; neither root nor any related record is mutated.
//
// A required relation with a null foreign key or an unresolvable target fails
// the whole composition with *RelationResolutionError. An optional relation
// degrades to nil projected fields instead.
func (r *Resolver) Resolve(ctx context.Context, root entity.Record, relations []entity.Relation) (entity.ViewModel, error) {
	vm := entity.ViewModel{
		Root:   root,
		Fields: make(map[string]any, len(relations)*2),
	}

	for _, rel := range relations {
		fk := root.Str(rel.Field)
		if fk == "" {
			if rel.Required {
				return entity.ViewModel{}, &RelationResolutionError{Relation: rel.Name, Reason: "missing key"}
			}
			projectNull(&vm, rel)
			continue
		}

		related, err := r.source.Lookup(ctx, rel.Target, fk)
		if err != nil {
			if rel.Required {
				reason := "lookup failed"
				if remote.IsNotFound(err) {
					reason = "target not found"
				}
				return entity.ViewModel{}, &RelationResolutionError{Relation: rel.Name, Reason: reason, Err: err}
			}
			if !remote.IsNotFound(err) {
				r.log.Debug().Err(err).Str("relation", rel.Name).Msg("optional relation degraded to null")
			}
			projectNull(&vm, rel)
			continue
		}

		for _, p := range rel.Project {
			vm.Fields[p.As] = related.Attr(p.From)
		}
	}
	return vm, nil
}

func projectNull(vm *entity.ViewModel, rel entity.Relation) {
	for _, p := range rel.Project {
		vm.Fields[p.As] = nil
	}
}
