package remote

import (
	"context"

	"github.com/AnishRamachandran/zeacore-go/internal/entity"
)

// Store is the remote access port: the four operations the read-model core
// needs from the backing store. Implementations do not interpret application
// semantics; they move rows and classify failures into the package taxonomy.
//
// All operations honour ctx cancellation and may fail with *TransportError or
// *AuthorizationError in addition to the per-operation errors documented on
// each method.
type Store interface {
	// Fetch returns all records of the given type matching filter. An empty
	// result is returned as a nil/empty slice, not an error.
	Fetch(ctx context.Context, entityType string, filter entity.Filter) ([]entity.Record, error)

	// FetchOne returns the record with the given id, or ErrNotFound.
	FetchOne(ctx context.Context, entityType, id string) (entity.Record, error)

	// Insert creates a record from attrs and returns the stored row. Fails
	// with *ConflictError on a uniqueness violation.
	Insert(ctx context.Context, entityType string, attrs map[string]any) (entity.Record, error)

	// Update patches the record with the given id and returns the stored
	// row, or ErrNotFound.
	Update(ctx context.Context, entityType, id string, patch map[string]any) (entity.Record, error)
}
