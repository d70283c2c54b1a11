// Package reconcile decides, per requested view, whether to serve cached
// records, refetch, or degrade to last-known data, and owns the lazy creation
// of association records. It is the only component that talks to both the
// entity cache and the remote access port.
package reconcile

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/AnishRamachandran/zeacore-go/internal/cache"
	"github.com/AnishRamachandran/zeacore-go/internal/entity"
	"github.com/AnishRamachandran/zeacore-go/internal/remote"
	"github.com/AnishRamachandran/zeacore-go/internal/resolve"
)

// Reconciler implements the read path (cache -> fetch -> resolve) and the
// mutation pass-throughs. Concurrent requests for the same record or listing
// coalesce into a single backend call.
type Reconciler struct {
	store    remote.Store
	cache    *cache.Store
	resolver *resolve.Resolver
	log      zerolog.Logger

	group singleflight.Group

	// unavailable parks entity types whose backing table does not exist so
	// repeated requests don't hammer the backend. Scoped to this instance,
	// not the process: independent reconcilers never share the flag.
	mu          sync.Mutex
	unavailable map[string]bool

	// lists remembers which record ids a listing resolved to and when, so a
	// listing re-requested inside its staleness horizon composes from the
	// record cache instead of refetching. Keyed by entityType + "?" + filter
	// key; guarded by mu.
	lists map[string]listRef
}

type listRef struct {
	ids       []string
	fetchedAt time.Time
}

// New constructs a Reconciler over the given port and cache.
func New(store remote.Store, cacheStore *cache.Store, log zerolog.Logger) *Reconciler {
	r := &Reconciler{
		store:       store,
		cache:       cacheStore,
		log:         log,
		unavailable: make(map[string]bool),
		lists:       make(map[string]listRef),
	}
	r.resolver = resolve.New(r, log)
	return r
}

// Unavailable reports whether entityType has been marked permanently
// unavailable (backing table missing). Cleared by invalidation.
func (r *Reconciler) Unavailable(entityType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unavailable[entityType]
}

func (r *Reconciler) markUnavailable(entityType string) {
	r.mu.Lock()
	already := r.unavailable[entityType]
	r.unavailable[entityType] = true
	r.mu.Unlock()
	if !already {
		r.log.Warn().Str("entity", entityType).Msg("backing table missing; entity type marked unavailable")
	}
}

func (r *Reconciler) clearUnavailable(entityType string) {
	r.mu.Lock()
	delete(r.unavailable, entityType)
	r.mu.Unlock()
}

// Invalidate drops one cached record and re-arms fetching for its type.
func (r *Reconciler) Invalidate(entityType, id string) {
	r.clearUnavailable(entityType)
	r.dropLists(entityType)
	r.cache.Invalidate(entityType, id)
}

// InvalidateType drops all cached records of one type and clears its
// unavailable flag.
func (r *Reconciler) InvalidateType(entityType string) {
	r.clearUnavailable(entityType)
	r.dropLists(entityType)
	r.cache.InvalidateType(entityType)
}

// InvalidateAll drops the whole cache, e.g. on an identity change.
func (r *Reconciler) InvalidateAll() {
	r.mu.Lock()
	r.unavailable = make(map[string]bool)
	r.lists = make(map[string]listRef)
	r.mu.Unlock()
	r.cache.InvalidateAll()
}

// dropLists forgets every remembered listing of entityType. Any event that
// could change the type's membership (a mutation, an invalidation) goes
// through here so the next listing refetches.
func (r *Reconciler) dropLists(entityType string) {
	prefix := entityType + "?"
	r.mu.Lock()
	for k := range r.lists {
		if strings.HasPrefix(k, prefix) {
			delete(r.lists, k)
		}
	}
	r.mu.Unlock()
}

// Lookup returns the record for (entityType, id), serving from cache when
// fresh and reading through to the backend otherwise. A stale cached record
// is served as a fallback when the refresh fails on transport. Implements
// resolve.Source.
func (r *Reconciler) Lookup(ctx context.Context, entityType, id string) (entity.Record, error) {
	rec, _, err := r.lookup(ctx, entityType, id, 0)
	return rec, err
}

// lookup is Lookup with an explicit staleness horizon and a flag reporting
// whether the returned record is stale fallback data.
func (r *Reconciler) lookup(ctx context.Context, entityType, id string, maxAge time.Duration) (entity.Record, bool, error) {
	if r.Unavailable(entityType) {
		return entity.Record{}, false, &remote.TableMissingError{EntityType: entityType}
	}

	cached, have := r.cache.Get(entityType, id)
	if have && !r.cache.IsStale(cached, maxAge) {
		cacheHitsTotal.WithLabelValues(entityType).Inc()
		return cached, false, nil
	}
	cacheMissesTotal.WithLabelValues(entityType).Inc()

	fetched, err := r.fetchOne(ctx, entityType, id)
	if err == nil {
		return fetched, false, nil
	}
	if remote.IsTransport(err) && have {
		// Serve the last-known value; the caller sees Degraded, not an error.
		staleServedTotal.WithLabelValues(entityType).Inc()
		return cached, true, nil
	}
	if remote.IsNotFound(err) && have {
		// The record disappeared remotely; drop our copy.
		r.cache.Invalidate(entityType, id)
	}
	return entity.Record{}, false, err
}

// fetchOne issues the backend fetch for one record, coalescing concurrent
// callers of the same (type, id) into a single request.
func (r *Reconciler) fetchOne(ctx context.Context, entityType, id string) (entity.Record, error) {
	v, err, _ := r.group.Do(entityType+"/"+id, func() (any, error) {
		// The fetch serves every coalesced caller, so it must not die with
		// whichever caller happened to arrive first.
		rec, err := r.store.FetchOne(context.WithoutCancel(ctx), entityType, id)
		fetchesTotal.WithLabelValues(entityType, classifyOutcome(err)).Inc()
		if err != nil {
			if remote.IsTableMissing(err) {
				r.markUnavailable(entityType)
			}
			return nil, err
		}
		r.clearUnavailable(entityType)
		// Put enforces the revision guard; read back so a late-completing
		// older response never flows to callers either.
		r.cache.Put(rec)
		if current, ok := r.cache.Get(entityType, id); ok {
			return current, nil
		}
		return rec, nil
	})
	if err != nil {
		return entity.Record{}, err
	}
	return v.(entity.Record), nil
}

// Obtain composes the view model for one record with the given relations.
// maxAge <= 0 selects the cache's per-type horizon.
func (r *Reconciler) Obtain(ctx context.Context, entityType, id string, relations []entity.Relation, maxAge time.Duration) (entity.ViewModel, Status, error) {
	root, stale, err := r.lookup(ctx, entityType, id, maxAge)
	if err != nil {
		return entity.ViewModel{}, statusForError(err), err
	}

	vm, err := r.resolver.Resolve(ctx, root, relations)
	if err != nil {
		return entity.ViewModel{}, StatusFailed, err
	}
	if stale {
		return vm, StatusDegraded, nil
	}
	return vm, StatusReady, nil
}

// ObtainList fetches all records of entityType matching filter and composes a
// view model per record. Rows whose required relations cannot be satisfied
// are dropped (inner-join semantics); optional relation failures null out the
// projected fields. A listing repeated inside its staleness horizon composes
// from cached records without a refetch, and concurrent identical listings
// coalesce into one fetch. maxAge <= 0 selects the cache's per-type horizon.
func (r *Reconciler) ObtainList(ctx context.Context, entityType string, filter entity.Filter, relations []entity.Relation, maxAge time.Duration) ([]entity.ViewModel, Status, error) {
	if r.Unavailable(entityType) {
		return nil, StatusDegraded, &remote.TableMissingError{EntityType: entityType}
	}

	listKey := entityType + "?" + filter.Key()
	if recs, ok := r.freshList(listKey, entityType, maxAge); ok {
		cacheHitsTotal.WithLabelValues(entityType).Inc()
		return r.composeViews(ctx, entityType, recs, relations), StatusReady, nil
	}
	cacheMissesTotal.WithLabelValues(entityType).Inc()

	v, err, _ := r.group.Do("list/"+listKey, func() (any, error) {
		recs, err := r.store.Fetch(context.WithoutCancel(ctx), entityType, filter)
		fetchesTotal.WithLabelValues(entityType, classifyOutcome(err)).Inc()
		if err != nil {
			if remote.IsTableMissing(err) {
				r.markUnavailable(entityType)
			}
			return nil, err
		}
		r.clearUnavailable(entityType)
		ids := make([]string, len(recs))
		for i, rec := range recs {
			r.cache.Put(rec)
			ids[i] = rec.ID
		}
		r.mu.Lock()
		r.lists[listKey] = listRef{ids: ids, fetchedAt: r.cache.Now()}
		r.mu.Unlock()
		return recs, nil
	})
	if err != nil {
		return nil, statusForError(err), err
	}
	return r.composeViews(ctx, entityType, v.([]entity.Record), relations), StatusReady, nil
}

// freshList returns the cached records for a remembered listing, provided the
// listing itself is inside its staleness horizon and every member record is
// still cached. Eviction of any member forces a refetch.
func (r *Reconciler) freshList(listKey, entityType string, maxAge time.Duration) ([]entity.Record, bool) {
	r.mu.Lock()
	ref, ok := r.lists[listKey]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	marker := entity.Record{Type: entityType, FetchedAt: ref.fetchedAt}
	if r.cache.IsStale(marker, maxAge) {
		return nil, false
	}
	recs := make([]entity.Record, 0, len(ref.ids))
	for _, id := range ref.ids {
		rec, have := r.cache.Get(entityType, id)
		if !have {
			return nil, false
		}
		recs = append(recs, rec)
	}
	return recs, true
}

func (r *Reconciler) composeViews(ctx context.Context, entityType string, recs []entity.Record, relations []entity.Relation) []entity.ViewModel {
	vms := make([]entity.ViewModel, 0, len(recs))
	for _, rec := range recs {
		vm, err := r.resolver.Resolve(ctx, rec, relations)
		if err != nil {
			// Required join unsatisfied for this row only; siblings survive.
			r.log.Warn().Err(err).Str("entity", entityType).Str("id", rec.ID).Msg("dropping row with unresolved required relation")
			continue
		}
		vms = append(vms, vm)
	}
	return vms
}

// Insert creates a record through the port, then installs the stored row in
// the cache so follow-up reads see it without a refetch.
func (r *Reconciler) Insert(ctx context.Context, entityType string, attrs map[string]any) (entity.Record, error) {
	rec, err := r.store.Insert(ctx, entityType, attrs)
	if err != nil {
		if remote.IsTableMissing(err) {
			r.markUnavailable(entityType)
		}
		return entity.Record{}, err
	}
	r.dropLists(entityType)
	r.cache.Invalidate(entityType, rec.ID)
	r.cache.Put(rec)
	return rec, nil
}

// Update patches a record through the port and refreshes its cache entry.
func (r *Reconciler) Update(ctx context.Context, entityType, id string, patch map[string]any) (entity.Record, error) {
	rec, err := r.store.Update(ctx, entityType, id, patch)
	if err != nil {
		if remote.IsTableMissing(err) {
			r.markUnavailable(entityType)
		}
		return entity.Record{}, err
	}
	r.dropLists(entityType)
	r.cache.Invalidate(entityType, id)
	r.cache.Put(rec)
	return rec, nil
}

// statusForError maps a read-path error to the state surfaced alongside it.
func statusForError(err error) Status {
	switch {
	case remote.IsTableMissing(err):
		return StatusDegraded
	case remote.IsTransport(err):
		return StatusDegraded
	default:
		return StatusFailed
	}
}

func classifyOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case remote.IsTableMissing(err):
		return outcomeTableMissing
	case remote.IsNotFound(err):
		return outcomeNotFound
	case remote.IsTransport(err):
		return outcomeTransport
	case remote.IsAuthorization(err):
		return outcomeAuth
	default:
		return outcomeOther
	}
}
