package zeacore

import (
	"github.com/AnishRamachandran/zeacore-go/internal/bridge"
	"github.com/AnishRamachandran/zeacore-go/internal/entity"
	"github.com/AnishRamachandran/zeacore-go/internal/reconcile"
	"github.com/AnishRamachandran/zeacore-go/internal/remote"
	"github.com/AnishRamachandran/zeacore-go/internal/writequeue"
)

// Re-exported composition primitives so integrators can declare their own
// view models without importing internal packages.
type (
	// Record is a normalized row as fetched from the backing store.
	Record = entity.Record
	// Filter narrows listings server-side.
	Filter = entity.Filter
	// Relation declares a foreign-key join used to populate view-model fields.
	Relation = entity.Relation
	// Projection maps a related attribute onto a view-model field.
	Projection = entity.Projection
	// ViewModel is a root record plus its resolved relation fields.
	ViewModel = entity.ViewModel
	// LinkSpec describes a lazily created association entity.
	LinkSpec = entity.LinkSpec

	// Status is the freshness verdict attached to every composed view.
	Status = reconcile.Status

	// SessionEvent is an upstream auth-state change fed into Notify.
	SessionEvent = bridge.SessionEvent
	// EventKind classifies a SessionEvent.
	EventKind = bridge.EventKind
	// Subscription is a watcher handle returned by Watch.
	Subscription = bridge.Subscription

	// RemoteStore is the remote access port: the four record operations the
	// SDK needs from a backing store. The built-in implementation speaks
	// PostgREST; substitute your own via WithStore.
	RemoteStore = remote.Store
	// WriteQueueConfig tunes the asynchronous write queue.
	WriteQueueConfig = writequeue.Config
)

// Status values.
const (
	StatusLoading  = reconcile.StatusLoading
	StatusReady    = reconcile.StatusReady
	StatusDegraded = reconcile.StatusDegraded
	StatusFailed   = reconcile.StatusFailed
)

// Session event kinds.
const (
	SignedIn       = bridge.SignedIn
	SignedOut      = bridge.SignedOut
	TokenRefreshed = bridge.TokenRefreshed
)

// Filter constructors, re-exported for custom listings.
var (
	Eq    = entity.Eq
	ILike = entity.ILike
)

// EnqueueAck acknowledges acceptance of an asynchronous write. The write
// itself completes in the background; AwaitSync flushes it.
type EnqueueAck struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
