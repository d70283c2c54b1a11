package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/AnishRamachandran/zeacore-go/internal/entity"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(typ, id string, updated, fetched time.Time, attrs map[string]any) entity.Record {
	return entity.Record{Type: typ, ID: id, UpdatedAt: updated, FetchedAt: fetched, Attrs: attrs}
}

func TestPut_RevisionGuard(t *testing.T) {
	s := New(0, 0)

	newer := rec("tickets", "t1", base.Add(time.Minute), base, map[string]any{"status": "open"})
	older := rec("tickets", "t1", base, base.Add(time.Hour), map[string]any{"status": "stale-view"})

	if !s.Put(newer) {
		t.Fatal("first put must apply")
	}
	// A slow response carrying an older revision arrives after the newer one.
	if s.Put(older) {
		t.Fatal("older revision must not overwrite newer")
	}
	got, ok := s.Get("tickets", "t1")
	if !ok || got.Str("status") != "open" {
		t.Fatalf("cache lost the newer record: %+v", got)
	}

	// The other order: older lands first, newer overwrites.
	s2 := New(0, 0)
	if !s2.Put(older) {
		t.Fatal("put into empty cache must apply")
	}
	if !s2.Put(newer) {
		t.Fatal("newer revision must overwrite older")
	}
	got, _ = s2.Get("tickets", "t1")
	if got.Str("status") != "open" {
		t.Fatalf("newer record did not win: %+v", got)
	}
}

func TestPut_TieBreaksOnFetchTime(t *testing.T) {
	s := New(0, 0)

	first := rec("apps", "a1", base, base, map[string]any{"name": "first"})
	second := rec("apps", "a1", base, base.Add(time.Second), map[string]any{"name": "second"})

	s.Put(first)
	if !s.Put(second) {
		t.Fatal("equal revisions: freshest fetch must win")
	}
	got, _ := s.Get("apps", "a1")
	if got.Str("name") != "second" {
		t.Fatalf("freshest fetch did not win the tie: %+v", got)
	}

	// Missing revision markers also fall back to fetch time.
	s.Put(rec("apps", "a2", time.Time{}, base.Add(time.Minute), map[string]any{"name": "late"}))
	if s.Put(rec("apps", "a2", time.Time{}, base, map[string]any{"name": "early"})) {
		t.Fatal("older fetch without revision must not overwrite")
	}
}

func TestPut_StampsFetchedAt(t *testing.T) {
	s := New(0, 0)
	s.SetClock(func() time.Time { return base })

	s.Put(entity.Record{Type: "customers", ID: "c1", Attrs: map[string]any{}})
	got, _ := s.Get("customers", "c1")
	if !got.FetchedAt.Equal(base) {
		t.Fatalf("FetchedAt not stamped: %v", got.FetchedAt)
	}
}

func TestPut_RejectsUnkeyed(t *testing.T) {
	s := New(0, 0)
	if s.Put(entity.Record{Type: "tickets"}) {
		t.Fatal("record without id must be rejected")
	}
	if s.Put(entity.Record{ID: "t1"}) {
		t.Fatal("record without type must be rejected")
	}
}

func TestIsStale_Boundary(t *testing.T) {
	s := New(0, 30*time.Second)
	now := base
	s.SetClock(func() time.Time { return now })

	r := rec("tickets", "t1", time.Time{}, base, nil)

	now = base.Add(30*time.Second - time.Nanosecond)
	if s.IsStale(r, 0) {
		t.Fatal("record under the horizon must be fresh")
	}
	// Exactly at the horizon counts as stale.
	now = base.Add(30 * time.Second)
	if !s.IsStale(r, 0) {
		t.Fatal("record at the horizon must be stale")
	}
}

func TestIsStale_PerTypeHorizon(t *testing.T) {
	s := New(0, 30*time.Second)
	now := base.Add(10 * time.Second)
	s.SetClock(func() time.Time { return now })
	s.SetMaxAge("payments", 5*time.Second)

	pay := rec("payments", "p1", time.Time{}, base, nil)
	tkt := rec("tickets", "t1", time.Time{}, base, nil)

	if !s.IsStale(pay, 0) {
		t.Fatal("per-type horizon not applied")
	}
	if s.IsStale(tkt, 0) {
		t.Fatal("default horizon should keep tickets fresh at 10s")
	}
	if s.IsStale(pay, time.Minute) {
		t.Fatal("explicit maxAge must override the per-type horizon")
	}
}

func TestInvalidateScopes(t *testing.T) {
	s := New(0, 0)
	s.Put(rec("tickets", "t1", base, base, nil))
	s.Put(rec("tickets", "t2", base, base, nil))
	s.Put(rec("customers", "c1", base, base, nil))

	s.Invalidate("tickets", "t1")
	if _, ok := s.Get("tickets", "t1"); ok {
		t.Fatal("single-entry invalidation missed")
	}
	if _, ok := s.Get("tickets", "t2"); !ok {
		t.Fatal("invalidation was too broad")
	}

	s.InvalidateType("tickets")
	if _, ok := s.Get("tickets", "t2"); ok {
		t.Fatal("type invalidation missed")
	}
	if _, ok := s.Get("customers", "c1"); !ok {
		t.Fatal("type invalidation crossed types")
	}

	s.InvalidateAll()
	if s.Len() != 0 {
		t.Fatalf("InvalidateAll left %d entries", s.Len())
	}
}

func TestCapacityBound(t *testing.T) {
	s := New(8, 0)
	for i := 0; i < 32; i++ {
		s.Put(rec("tickets", fmt.Sprintf("t%d", i), base, base.Add(time.Duration(i)*time.Second), nil))
	}
	if s.Len() > 8 {
		t.Fatalf("cache exceeded capacity: %d", s.Len())
	}
	// Most recently added survives.
	if _, ok := s.Get("tickets", "t31"); !ok {
		t.Fatal("newest entry evicted")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := New(0, 0)
	s.Put(rec("customers", "c1", base, base, map[string]any{"name": "Acme"}))

	got, _ := s.Get("customers", "c1")
	got.Attrs["name"] = "Globex"

	again, _ := s.Get("customers", "c1")
	if again.Str("name") != "Acme" {
		t.Fatal("caller mutation leaked into the cache")
	}
}
