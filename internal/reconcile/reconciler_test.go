package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnishRamachandran/zeacore-go/internal/cache"
	"github.com/AnishRamachandran/zeacore-go/internal/entity"
	"github.com/AnishRamachandran/zeacore-go/internal/remote"
)

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeStore scripts the remote access port per test and counts calls.
type fakeStore struct {
	mu           sync.Mutex
	fetchFn      func(entityType string, filter entity.Filter) ([]entity.Record, error)
	fetchOneFn   func(entityType, id string) (entity.Record, error)
	insertFn     func(entityType string, attrs map[string]any) (entity.Record, error)
	updateFn     func(entityType, id string, patch map[string]any) (entity.Record, error)
	fetchCalls   int
	fetchOneCall int
	insertCalls  int
}

func (f *fakeStore) Fetch(_ context.Context, entityType string, filter entity.Filter) ([]entity.Record, error) {
	f.mu.Lock()
	f.fetchCalls++
	fn := f.fetchFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(entityType, filter)
}

func (f *fakeStore) FetchOne(_ context.Context, entityType, id string) (entity.Record, error) {
	f.mu.Lock()
	f.fetchOneCall++
	fn := f.fetchOneFn
	f.mu.Unlock()
	if fn == nil {
		return entity.Record{}, remote.ErrNotFound
	}
	return fn(entityType, id)
}

func (f *fakeStore) Insert(_ context.Context, entityType string, attrs map[string]any) (entity.Record, error) {
	f.mu.Lock()
	f.insertCalls++
	fn := f.insertFn
	f.mu.Unlock()
	if fn == nil {
		return entity.Record{}, fmt.Errorf("insert not scripted")
	}
	return fn(entityType, attrs)
}

func (f *fakeStore) Update(_ context.Context, entityType, id string, patch map[string]any) (entity.Record, error) {
	f.mu.Lock()
	fn := f.updateFn
	f.mu.Unlock()
	if fn == nil {
		return entity.Record{}, fmt.Errorf("update not scripted")
	}
	return fn(entityType, id, patch)
}

func (f *fakeStore) fetchOneCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchOneCall
}

func newTestReconciler(store remote.Store) (*Reconciler, *cache.Store, *time.Time) {
	c := cache.New(0, 30*time.Second)
	now := testBase
	c.SetClock(func() time.Time { return now })
	// The pointer lets tests advance the clock.
	return New(store, c, zerolog.Nop()), c, &now
}

func ticketRec(id string, fetched time.Time, attrs map[string]any) entity.Record {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return entity.Record{Type: "tickets", ID: id, FetchedAt: fetched, Attrs: attrs}
}

func TestLookup_FreshCacheServesWithoutFetch(t *testing.T) {
	store := &fakeStore{}
	r, c, _ := newTestReconciler(store)
	c.Put(ticketRec("t1", testBase, map[string]any{"status": "open"}))

	rec, err := r.Lookup(context.Background(), "tickets", "t1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.Str("status") != "open" {
		t.Fatalf("record: %+v", rec)
	}
	if store.fetchOneCalls() != 0 {
		t.Fatalf("fresh cache hit must not reach the backend, got %d calls", store.fetchOneCalls())
	}
}

func TestLookup_StaleCacheRefetches(t *testing.T) {
	store := &fakeStore{
		fetchOneFn: func(entityType, id string) (entity.Record, error) {
			return ticketRec(id, testBase.Add(time.Minute), map[string]any{"status": "closed"}), nil
		},
	}
	r, c, now := newTestReconciler(store)
	c.Put(ticketRec("t1", testBase, map[string]any{"status": "open"}))
	*now = testBase.Add(time.Minute)

	rec, err := r.Lookup(context.Background(), "tickets", "t1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.Str("status") != "closed" {
		t.Fatalf("stale entry not refreshed: %+v", rec)
	}
	if store.fetchOneCalls() != 1 {
		t.Fatalf("expected one backend call, got %d", store.fetchOneCalls())
	}
}

func TestLookup_RefetchKeepsNewerCachedRevision(t *testing.T) {
	// The refetch returns an older revision than the one already cached, e.g.
	// a replica lagging behind a write this client performed. The revision
	// guard keeps the newer record and the caller sees it.
	store := &fakeStore{
		fetchOneFn: func(entityType, id string) (entity.Record, error) {
			return entity.Record{
				Type: "tickets", ID: id,
				UpdatedAt: testBase.Add(-time.Hour),
				FetchedAt: testBase.Add(time.Minute),
				Attrs:     map[string]any{"status": "lagging"},
			}, nil
		},
	}
	r, c, now := newTestReconciler(store)
	c.Put(entity.Record{
		Type: "tickets", ID: "t1",
		UpdatedAt: testBase,
		FetchedAt: testBase,
		Attrs:     map[string]any{"status": "current"},
	})
	*now = testBase.Add(time.Minute)

	rec, err := r.Lookup(context.Background(), "tickets", "t1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.Str("status") != "current" {
		t.Fatalf("older revision leaked to the caller: %+v", rec)
	}
}

func TestObtain_TransportFailureServesStaleDegraded(t *testing.T) {
	store := &fakeStore{
		fetchOneFn: func(entityType, id string) (entity.Record, error) {
			return entity.Record{}, &remote.TransportError{Op: "fetch", Err: fmt.Errorf("timeout")}
		},
	}
	r, c, now := newTestReconciler(store)
	c.Put(ticketRec("t1", testBase, map[string]any{"status": "open"}))
	*now = testBase.Add(time.Minute)

	vm, status, err := r.Obtain(context.Background(), "tickets", "t1", nil, 0)
	if err != nil {
		t.Fatalf("stale fallback must not surface the error: %v", err)
	}
	if status != StatusDegraded {
		t.Fatalf("status = %v, want Degraded", status)
	}
	if vm.Root.Str("status") != "open" {
		t.Fatalf("stale record not served: %+v", vm.Root)
	}
}

func TestObtain_TransportFailureWithoutCacheErrors(t *testing.T) {
	store := &fakeStore{
		fetchOneFn: func(entityType, id string) (entity.Record, error) {
			return entity.Record{}, &remote.TransportError{Op: "fetch", Err: fmt.Errorf("timeout")}
		},
	}
	r, _, _ := newTestReconciler(store)

	_, status, err := r.Obtain(context.Background(), "tickets", "t1", nil, 0)
	if !remote.IsTransport(err) {
		t.Fatalf("want transport error, got %v", err)
	}
	if status != StatusDegraded {
		t.Fatalf("status = %v, want Degraded", status)
	}
}

func TestLookup_RemoteDeletionDropsCachedCopy(t *testing.T) {
	store := &fakeStore{
		fetchOneFn: func(entityType, id string) (entity.Record, error) {
			return entity.Record{}, fmt.Errorf("fetch: %w", remote.ErrNotFound)
		},
	}
	r, c, now := newTestReconciler(store)
	c.Put(ticketRec("t1", testBase, nil))
	*now = testBase.Add(time.Minute)

	if _, err := r.Lookup(context.Background(), "tickets", "t1"); !remote.IsNotFound(err) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, ok := c.Get("tickets", "t1"); ok {
		t.Fatal("cached copy of a deleted record must be invalidated")
	}
}

func TestTableMissing_ParksEntityType(t *testing.T) {
	store := &fakeStore{
		fetchOneFn: func(entityType, id string) (entity.Record, error) {
			return entity.Record{}, &remote.TableMissingError{EntityType: entityType}
		},
	}
	r, _, _ := newTestReconciler(store)

	if _, err := r.Lookup(context.Background(), "customer_users", "u1"); !remote.IsTableMissing(err) {
		t.Fatalf("want TableMissingError, got %v", err)
	}
	if !r.Unavailable("customer_users") {
		t.Fatal("entity type not marked unavailable")
	}

	// Subsequent lookups short-circuit without touching the backend.
	before := store.fetchOneCalls()
	if _, err := r.Lookup(context.Background(), "customer_users", "u2"); !remote.IsTableMissing(err) {
		t.Fatalf("want TableMissingError, got %v", err)
	}
	if store.fetchOneCalls() != before {
		t.Fatal("parked entity type must not be fetched again")
	}

	// Invalidation re-arms fetching.
	r.InvalidateType("customer_users")
	if r.Unavailable("customer_users") {
		t.Fatal("invalidation must clear the unavailable flag")
	}
}

func TestUnavailable_IsPerInstance(t *testing.T) {
	failing := &fakeStore{
		fetchOneFn: func(entityType, id string) (entity.Record, error) {
			return entity.Record{}, &remote.TableMissingError{EntityType: entityType}
		},
	}
	healthy := &fakeStore{
		fetchOneFn: func(entityType, id string) (entity.Record, error) {
			return ticketRec(id, testBase, nil), nil
		},
	}
	a, _, _ := newTestReconciler(failing)
	b, _, _ := newTestReconciler(healthy)

	_, _ = a.Lookup(context.Background(), "tickets", "t1")
	if !a.Unavailable("tickets") {
		t.Fatal("first instance should have parked the type")
	}
	if b.Unavailable("tickets") {
		t.Fatal("unavailable flag leaked across instances")
	}
	if _, err := b.Lookup(context.Background(), "tickets", "t1"); err != nil {
		t.Fatalf("second instance must be unaffected: %v", err)
	}
}

func TestFetchOne_CoalescesConcurrentLookups(t *testing.T) {
	release := make(chan struct{})
	store := &fakeStore{
		fetchOneFn: func(entityType, id string) (entity.Record, error) {
			<-release
			return ticketRec(id, testBase, map[string]any{"status": "open"}), nil
		},
	}
	r, _, _ := newTestReconciler(store)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Lookup(context.Background(), "tickets", "t1")
		}(i)
	}
	// Let every caller join the in-flight request before it completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := store.fetchOneCalls(); got != 1 {
		t.Fatalf("concurrent lookups issued %d backend calls, want 1", got)
	}
}

func TestObtainList_DropsRowsWithUnresolvedRequiredRelation(t *testing.T) {
	store := &fakeStore{
		fetchFn: func(entityType string, filter entity.Filter) ([]entity.Record, error) {
			if entityType != "customer_subscriptions" {
				return nil, remote.ErrNotFound
			}
			return []entity.Record{
				{Type: entityType, ID: "s1", FetchedAt: testBase, Attrs: map[string]any{"app_id": "a1"}},
				{Type: entityType, ID: "s2", FetchedAt: testBase, Attrs: map[string]any{"app_id": "ghost"}},
			}, nil
		},
		fetchOneFn: func(entityType, id string) (entity.Record, error) {
			if entityType == "apps" && id == "a1" {
				return entity.Record{Type: "apps", ID: "a1", FetchedAt: testBase, Attrs: map[string]any{"name": "Billing"}}, nil
			}
			return entity.Record{}, fmt.Errorf("fetch: %w", remote.ErrNotFound)
		},
	}
	r, _, _ := newTestReconciler(store)

	relations := []entity.Relation{{
		Name: "app", Field: "app_id", Target: "apps", Required: true,
		Project: []entity.Projection{{From: "name", As: "app_name"}},
	}}
	vms, status, err := r.ObtainList(context.Background(), "customer_subscriptions", entity.Filter{}, relations, 0)
	if err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	if status != StatusReady {
		t.Fatalf("status = %v", status)
	}
	if len(vms) != 1 || vms[0].Root.ID != "s1" {
		t.Fatalf("row with unresolved required relation not dropped: %+v", vms)
	}
	if vms[0].Str("app_name") != "Billing" {
		t.Fatalf("surviving row missing projection: %v", vms[0].Fields)
	}
}

func TestObtainList_PopulatesCache(t *testing.T) {
	store := &fakeStore{
		fetchFn: func(entityType string, filter entity.Filter) ([]entity.Record, error) {
			return []entity.Record{ticketRec("t1", testBase, nil), ticketRec("t2", testBase, nil)}, nil
		},
	}
	r, c, _ := newTestReconciler(store)

	if _, _, err := r.ObtainList(context.Background(), "tickets", entity.Filter{}, nil, 0); err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	for _, id := range []string{"t1", "t2"} {
		if _, ok := c.Get("tickets", id); !ok {
			t.Fatalf("listing row %s not cached", id)
		}
	}
	// Follow-up single-record reads hit the cache.
	if _, err := r.Lookup(context.Background(), "tickets", "t1"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if store.fetchOneCalls() != 0 {
		t.Fatal("listing rows should serve follow-up lookups")
	}
}

func (f *fakeStore) fetchListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func TestObtainList_FreshListingServedWithoutRefetch(t *testing.T) {
	store := &fakeStore{
		fetchFn: func(entityType string, filter entity.Filter) ([]entity.Record, error) {
			return []entity.Record{ticketRec("t1", testBase, map[string]any{"status": "open"}), ticketRec("t2", testBase, nil)}, nil
		},
	}
	r, _, _ := newTestReconciler(store)

	first, _, err := r.ObtainList(context.Background(), "tickets", entity.Filter{}, nil, time.Hour)
	if err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	second, status, err := r.ObtainList(context.Background(), "tickets", entity.Filter{}, nil, time.Hour)
	if err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	if status != StatusReady {
		t.Fatalf("status = %v", status)
	}
	if got := store.fetchListCalls(); got != 1 {
		t.Fatalf("repeat listing inside its horizon issued %d backend calls, want 1", got)
	}
	if len(second) != len(first) || second[0].Root.Str("status") != "open" {
		t.Fatalf("cached listing differs: %+v", second)
	}
}

func TestObtainList_StaleListingRefetches(t *testing.T) {
	store := &fakeStore{
		fetchFn: func(entityType string, filter entity.Filter) ([]entity.Record, error) {
			return []entity.Record{ticketRec("t1", testBase, nil)}, nil
		},
	}
	r, _, now := newTestReconciler(store)

	if _, _, err := r.ObtainList(context.Background(), "tickets", entity.Filter{}, nil, 0); err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	*now = testBase.Add(time.Minute)
	if _, _, err := r.ObtainList(context.Background(), "tickets", entity.Filter{}, nil, 0); err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	if got := store.fetchListCalls(); got != 2 {
		t.Fatalf("stale listing issued %d backend calls, want 2", got)
	}
}

func TestObtainList_DistinctFiltersDoNotShareListings(t *testing.T) {
	store := &fakeStore{
		fetchFn: func(entityType string, filter entity.Filter) ([]entity.Record, error) {
			return []entity.Record{ticketRec("t1", testBase, nil)}, nil
		},
	}
	r, _, _ := newTestReconciler(store)

	if _, _, err := r.ObtainList(context.Background(), "tickets", entity.Eq("status", "open"), nil, time.Hour); err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	if _, _, err := r.ObtainList(context.Background(), "tickets", entity.Eq("status", "closed"), nil, time.Hour); err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	if got := store.fetchListCalls(); got != 2 {
		t.Fatalf("distinct filters issued %d backend calls, want 2", got)
	}
}

func TestObtainList_MutationForcesListingRefetch(t *testing.T) {
	store := &fakeStore{
		fetchFn: func(entityType string, filter entity.Filter) ([]entity.Record, error) {
			return []entity.Record{ticketRec("t1", testBase, nil)}, nil
		},
		insertFn: func(entityType string, attrs map[string]any) (entity.Record, error) {
			return entity.Record{Type: entityType, ID: "t9", FetchedAt: testBase, Attrs: attrs}, nil
		},
	}
	r, _, _ := newTestReconciler(store)

	if _, _, err := r.ObtainList(context.Background(), "tickets", entity.Filter{}, nil, time.Hour); err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	if _, err := r.Insert(context.Background(), "tickets", map[string]any{"title": "new"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, _, err := r.ObtainList(context.Background(), "tickets", entity.Filter{}, nil, time.Hour); err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	if got := store.fetchListCalls(); got != 2 {
		t.Fatalf("listing after a mutation issued %d backend calls, want 2", got)
	}
}

func TestObtainList_EvictedMemberForcesRefetch(t *testing.T) {
	store := &fakeStore{
		fetchFn: func(entityType string, filter entity.Filter) ([]entity.Record, error) {
			return []entity.Record{ticketRec("t1", testBase, nil), ticketRec("t2", testBase, nil)}, nil
		},
	}
	r, c, _ := newTestReconciler(store)

	if _, _, err := r.ObtainList(context.Background(), "tickets", entity.Filter{}, nil, time.Hour); err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	// Evict one member record directly, as LRU pressure would.
	c.Invalidate("tickets", "t2")
	vms, _, err := r.ObtainList(context.Background(), "tickets", entity.Filter{}, nil, time.Hour)
	if err != nil {
		t.Fatalf("ObtainList: %v", err)
	}
	if got := store.fetchListCalls(); got != 2 {
		t.Fatalf("listing with an evicted member issued %d backend calls, want 2", got)
	}
	if len(vms) != 2 {
		t.Fatalf("refetched listing incomplete: %+v", vms)
	}
}

// gateStore blocks FetchOne until released and then honors the request
// context, so tests can observe which context the coalesced fetch runs under.
type gateStore struct {
	fakeStore
	gate chan struct{}
}

func (s *gateStore) FetchOne(ctx context.Context, entityType, id string) (entity.Record, error) {
	s.mu.Lock()
	s.fetchOneCall++
	s.mu.Unlock()
	<-s.gate
	if err := ctx.Err(); err != nil {
		return entity.Record{}, &remote.TransportError{Op: "fetch " + entityType, Err: err}
	}
	return ticketRec(id, testBase, map[string]any{"status": "open"}), nil
}

func TestFetchOne_FirstCallerCancellationDoesNotPoisonCoalescedLookups(t *testing.T) {
	store := &gateStore{gate: make(chan struct{})}
	r, _, _ := newTestReconciler(store)

	ctx1, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var err1, err2 error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err1 = r.Lookup(ctx1, "tickets", "t1")
	}()
	// Ensure the first caller owns the in-flight request before the second
	// joins it.
	time.Sleep(50 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err2 = r.Lookup(context.Background(), "tickets", "t1")
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	close(store.gate)
	wg.Wait()

	if err1 != nil || err2 != nil {
		t.Fatalf("coalesced lookups failed after first caller cancelled: err1=%v err2=%v", err1, err2)
	}
	if got := store.fetchOneCalls(); got != 1 {
		t.Fatalf("coalesced lookups issued %d backend calls, want 1", got)
	}
}

func TestInsertAndUpdate_RefreshCache(t *testing.T) {
	store := &fakeStore{
		insertFn: func(entityType string, attrs map[string]any) (entity.Record, error) {
			return entity.Record{Type: entityType, ID: "t9", FetchedAt: testBase, Attrs: attrs}, nil
		},
		updateFn: func(entityType, id string, patch map[string]any) (entity.Record, error) {
			return entity.Record{Type: entityType, ID: id, FetchedAt: testBase.Add(time.Second), Attrs: patch}, nil
		},
	}
	r, c, _ := newTestReconciler(store)

	rec, err := r.Insert(context.Background(), "tickets", map[string]any{"title": "new"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got, ok := c.Get("tickets", rec.ID); !ok || got.Str("title") != "new" {
		t.Fatalf("inserted record not cached: %+v ok=%v", got, ok)
	}

	if _, err := r.Update(context.Background(), "tickets", "t9", map[string]any{"title": "renamed"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := c.Get("tickets", "t9"); got.Str("title") != "renamed" {
		t.Fatalf("updated record not refreshed in cache: %+v", got)
	}
}
