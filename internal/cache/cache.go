// Package cache holds the per-session store of normalized records keyed by
// (entity type, id), with time-based staleness and revision-guarded writes.
// The cache owns its entries: other components read or request invalidation,
// they never mutate entries in place.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AnishRamachandran/zeacore-go/internal/entity"
)

// DefaultCap bounds the cache so a long-lived session cannot grow without
// limit. Large enough that a portal session never evicts in practice.
const DefaultCap = 4096

// DefaultMaxAge is the staleness horizon applied to entity types without an
// explicit override.
const DefaultMaxAge = 30 * time.Second

type key struct {
	typ string
	id  string
}

// Store is a read-through record cache. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries *lru.Cache[key, entity.Record]

	defaultMaxAge time.Duration
	maxAge        map[string]time.Duration

	now func() time.Time
}

// New constructs a Store. capacity <= 0 selects DefaultCap; defaultMaxAge <= 0
// selects DefaultMaxAge.
func New(capacity int, defaultMaxAge time.Duration) *Store {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	if defaultMaxAge <= 0 {
		defaultMaxAge = DefaultMaxAge
	}
	entries, err := lru.New[key, entity.Record](capacity)
	if err != nil {
		// lru.New only fails on a non-positive size, which is ruled out above.
		panic(err)
	}
	return &Store{
		entries:       entries,
		defaultMaxAge: defaultMaxAge,
		maxAge:        make(map[string]time.Duration),
		now:           time.Now,
	}
}

// SetMaxAge overrides the staleness horizon for one entity type.
func (s *Store) SetMaxAge(entityType string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAge[entityType] = d
}

// SetClock replaces the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Now returns the cache's current time so callers stamping their own
// freshness markers stay on the same clock.
func (s *Store) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

// Get returns the cached record for (entityType, id). The boolean reports a
// hit; staleness is the caller's decision via IsStale.
func (s *Store) Get(entityType, id string) (entity.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.entries.Get(key{entityType, id})
	if !ok {
		return entity.Record{}, false
	}
	return rec.Clone(), true
}

// Put stores rec, guarding against out-of-order completions: a record whose
// revision marker is older than the cached one never overwrites it, so a
// slow response from an earlier request cannot clobber a newer value. When
// revision markers are absent or equal the freshest fetch wins. Returns
// whether rec was applied.
func (s *Store) Put(rec entity.Record) bool {
	if rec.Type == "" || rec.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = s.now()
	}

	k := key{rec.Type, rec.ID}
	existing, ok := s.entries.Get(k)
	if ok && !supersedes(rec, existing) {
		return false
	}
	s.entries.Add(k, rec.Clone())
	return true
}

// supersedes reports whether incoming should replace existing.
func supersedes(incoming, existing entity.Record) bool {
	in, ex := incoming.UpdatedAt, existing.UpdatedAt
	if !in.IsZero() && !ex.IsZero() {
		if in.After(ex) {
			return true
		}
		if in.Before(ex) {
			return false
		}
	}
	// Inconclusive revision comparison: last write wins on fetch time.
	return !incoming.FetchedAt.Before(existing.FetchedAt)
}

// IsStale reports whether rec has exceeded its staleness horizon. maxAge <= 0
// selects the per-type (or default) horizon.
func (s *Store) IsStale(rec entity.Record, maxAge time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxAge <= 0 {
		maxAge = s.horizonLocked(rec.Type)
	}
	return s.now().Sub(rec.FetchedAt) >= maxAge
}

func (s *Store) horizonLocked(entityType string) time.Duration {
	if d, ok := s.maxAge[entityType]; ok {
		return d
	}
	return s.defaultMaxAge
}

// Invalidate drops the entry for (entityType, id), if present.
func (s *Store) Invalidate(entityType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Remove(key{entityType, id})
}

// InvalidateType drops every entry of the given entity type.
func (s *Store) InvalidateType(entityType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.entries.Keys() {
		if k.typ == entityType {
			s.entries.Remove(k)
		}
	}
}

// InvalidateAll drops everything, e.g. on an identity change.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Purge()
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}
