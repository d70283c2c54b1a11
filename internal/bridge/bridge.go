// Package bridge propagates upstream session changes into cache invalidation
// and fans change notifications out to watching views. Subscriptions are
// cancel-once: after Cancel a watcher never receives another signal, even if
// a refresh it triggered completes later.
package bridge

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// EventKind classifies an upstream session event.
type EventKind int

const (
	// SignedIn: a (new) identity established a session.
	SignedIn EventKind = iota
	// SignedOut: the session ended.
	SignedOut
	// TokenRefreshed: same identity, new credentials.
	TokenRefreshed
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case TokenRefreshed:
		return "token_refreshed"
	default:
		return "unknown"
	}
}

// SessionEvent is one upstream auth-state change.
type SessionEvent struct {
	Kind   EventKind
	UserID string
	Email  string
}

// Invalidator is the slice of the reconciler the bridge needs.
type Invalidator interface {
	InvalidateAll()
	InvalidateType(entityType string)
}

type watchKey struct {
	typ string
	id  string // "" watches the whole type
}

// Bridge maps session events onto cache invalidation and notifies watchers.
type Bridge struct {
	inv Invalidator
	log zerolog.Logger

	mu       sync.Mutex
	watchers map[watchKey]map[*Subscription]struct{}
}

// New constructs a Bridge over the given invalidator.
func New(inv Invalidator, log zerolog.Logger) *Bridge {
	return &Bridge{
		inv:      inv,
		log:      log,
		watchers: make(map[watchKey]map[*Subscription]struct{}),
	}
}

// OnUpstreamChange applies one session event: identity changes flush the
// whole cache and wake every watcher so views re-obtain under the new
// identity; a token refresh changes nothing the cache depends on.
func (b *Bridge) OnUpstreamChange(ev SessionEvent) {
	switch ev.Kind {
	case SignedIn, SignedOut:
		b.log.Info().Stringer("event", ev.Kind).Msg("session change; invalidating caches")
		b.inv.InvalidateAll()
		b.notifyAll()
	case TokenRefreshed:
		// Identity unchanged; cached records stay valid.
	}
}

// Run consumes events from feed until it closes or ctx is done.
func (b *Bridge) Run(ctx context.Context, feed <-chan SessionEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			b.OnUpstreamChange(ev)
		}
	}
}

// Watch registers interest in (entityType, id); id "" watches the whole
// type. The returned subscription's channel receives a signal whenever the
// watched data was invalidated and should be re-obtained.
func (b *Bridge) Watch(entityType, id string) *Subscription {
	sub := &Subscription{
		bridge: b,
		key:    watchKey{typ: entityType, id: id},
		ch:     make(chan struct{}, 1),
	}
	b.mu.Lock()
	set, ok := b.watchers[sub.key]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.watchers[sub.key] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// NotifyMutation wakes watchers of one entity type after a local mutation.
func (b *Bridge) NotifyMutation(entityType, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, set := range b.watchers {
		if key.typ != entityType {
			continue
		}
		if key.id != "" && id != "" && key.id != id {
			continue
		}
		for sub := range set {
			sub.signalLocked()
		}
	}
}

func (b *Bridge) notifyAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.watchers {
		for sub := range set {
			sub.signalLocked()
		}
	}
}

// watcherCount is a test hook for leak checks across mount/unmount cycles.
func (b *Bridge) watcherCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, set := range b.watchers {
		n += len(set)
	}
	return n
}

// Subscription is one watcher's handle. Cancel exactly once per lifecycle;
// extra Cancels are no-ops.
type Subscription struct {
	bridge *Bridge
	key    watchKey
	ch     chan struct{}

	cancelOnce sync.Once
	cancelled  bool // guarded by bridge.mu
}

// C returns the notification channel. A receive means: re-obtain the watched
// view. The channel is closed by Cancel.
func (s *Subscription) C() <-chan struct{} { return s.ch }

// Cancel deregisters the subscription. Idempotent; after it returns no
// further signal is delivered, regardless of in-flight refreshes.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		b := s.bridge
		b.mu.Lock()
		s.cancelled = true
		if set, ok := b.watchers[s.key]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(b.watchers, s.key)
			}
		}
		close(s.ch)
		b.mu.Unlock()
	})
}

// signalLocked delivers a coalesced wake-up. Caller holds bridge.mu, which
// also orders signals against Cancel's close.
func (s *Subscription) signalLocked() {
	if s.cancelled {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default: // a wake-up is already pending
	}
}
