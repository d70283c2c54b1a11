package zeacore

import (
	"github.com/AnishRamachandran/zeacore-go/internal/remote"
	"github.com/AnishRamachandran/zeacore-go/internal/resolve"
	"github.com/AnishRamachandran/zeacore-go/internal/writequeue"
)

// ErrNotFound reports record absence. Re-exported so callers compare against
// a single symbol.
var ErrNotFound = remote.ErrNotFound

// ErrQueueFull is returned by asynchronous writes when the internal queue
// stays full for the enqueue timeout.
var ErrQueueFull = writequeue.ErrQueueFull

// RelationResolutionError reports a required join that could not be
// satisfied; the affected view model fails as a whole.
type RelationResolutionError = resolve.RelationResolutionError

// IsNotFound reports whether err signals record absence.
func IsNotFound(err error) bool { return remote.IsNotFound(err) }

// IsConflict reports whether err is a uniqueness violation on insert.
func IsConflict(err error) bool { return remote.IsConflict(err) }

// IsTransport reports whether err is a connectivity/backend failure, worth a
// manual retry.
func IsTransport(err error) bool { return remote.IsTransport(err) }

// IsAuthorization reports whether err is a policy rejection (e.g. row-level
// security), distinct from absence and never retried.
func IsAuthorization(err error) bool { return remote.IsAuthorization(err) }
