package reconcile

import (
	"context"
	"fmt"

	"github.com/AnishRamachandran/zeacore-go/internal/entity"
	"github.com/AnishRamachandran/zeacore-go/internal/remote"
)

// LinkResult is the outcome of a link-on-first-access resolution. Linked is
// false when the owner has no counterpart at all ("not yet linked"), which is
// an ordinary answer, not a failure.
type LinkResult struct {
	Link   entity.Record
	Target entity.Record
	Linked bool
}

// ResolveLink resolves the association record described by spec for ownerID,
// creating it on first access:
//
//  1. Look the link row up by the owner field. Found -> done.
//  2. On absence, locate the counterpart on the target type by the
//     cross-reference attribute (e.g. a verified email).
//  3. Insert the link row. A uniqueness conflict means a concurrent actor
//     created it first; re-read by owner field and converge on that row
//     instead of failing.
//  4. No counterpart -> explicit no-association result.
//
// A missing backing table parks the link type as unavailable and resolves to
// no-association, matching the portal's "treat as non-customer user"
// behaviour. Concurrent calls for the same owner coalesce into one attempt;
// the conflict fallback covers racing actors outside this process.
func (r *Reconciler) ResolveLink(ctx context.Context, spec entity.LinkSpec, ownerID, crossRef string) (LinkResult, error) {
	if ownerID == "" {
		return LinkResult{}, fmt.Errorf("resolve link %s: owner id required", spec.LinkType)
	}
	if r.Unavailable(spec.LinkType) {
		return LinkResult{}, nil
	}

	v, err, _ := r.group.Do("link/"+spec.LinkType+"/"+ownerID, func() (any, error) {
		// Resolution serves every coalesced caller; detach it from the first
		// caller's cancellation.
		return r.resolveLinkOnce(context.WithoutCancel(ctx), spec, ownerID, crossRef)
	})
	if err != nil {
		return LinkResult{}, err
	}
	return v.(LinkResult), nil
}

// EnsureOne returns the single record of entityType matching filter, creating
// it from attrs when no such record exists yet. Like link resolution, creation
// is idempotent under races: a uniqueness conflict means a concurrent actor
// created the record first, and the call converges on that row by re-reading.
// Concurrent calls for the same filter coalesce into one attempt.
func (r *Reconciler) EnsureOne(ctx context.Context, entityType string, filter entity.Filter, attrs map[string]any) (entity.Record, error) {
	v, err, _ := r.group.Do("ensure/"+entityType+"?"+filter.Key(), func() (any, error) {
		return r.ensureOneOnce(context.WithoutCancel(ctx), entityType, filter, attrs)
	})
	if err != nil {
		return entity.Record{}, err
	}
	return v.(entity.Record), nil
}

func (r *Reconciler) ensureOneOnce(ctx context.Context, entityType string, filter entity.Filter, attrs map[string]any) (entity.Record, error) {
	read := func() (entity.Record, bool, error) {
		rows, err := r.store.Fetch(ctx, entityType, filter)
		if err != nil {
			return entity.Record{}, false, err
		}
		if len(rows) == 0 {
			return entity.Record{}, false, nil
		}
		r.cache.Put(rows[0])
		return rows[0], true, nil
	}

	rec, found, err := read()
	if err != nil {
		return entity.Record{}, err
	}
	if found {
		return rec, nil
	}

	rec, err = r.Insert(ctx, entityType, attrs)
	switch {
	case err == nil:
		return rec, nil
	case remote.IsConflict(err):
		// Lost the creation race; the row now exists. Converge on it.
		r.log.Debug().Str("entity", entityType).Msg("ensure insert conflicted; re-reading")
		rec, found, err = read()
		if err != nil {
			return entity.Record{}, err
		}
		if !found {
			return entity.Record{}, fmt.Errorf("ensure %s: conflict but row absent on re-read: %w", entityType, remote.ErrNotFound)
		}
		return rec, nil
	default:
		return entity.Record{}, err
	}
}

func (r *Reconciler) resolveLinkOnce(ctx context.Context, spec entity.LinkSpec, ownerID, crossRef string) (LinkResult, error) {
	link, err := r.fetchLinkRow(ctx, spec, ownerID)
	if err != nil {
		if remote.IsTableMissing(err) {
			r.markUnavailable(spec.LinkType)
			return LinkResult{}, nil
		}
		return LinkResult{}, err
	}
	if !link.IsZero() {
		return r.completeLink(ctx, spec, link)
	}

	if crossRef == "" {
		return LinkResult{}, nil
	}

	// Secondary lookup: find the counterpart by cross-reference attribute.
	targets, err := r.store.Fetch(ctx, spec.TargetType, entity.ILike(spec.CrossRefField, crossRef))
	if err != nil {
		if remote.IsTableMissing(err) {
			r.markUnavailable(spec.TargetType)
			return LinkResult{}, nil
		}
		return LinkResult{}, err
	}
	if len(targets) == 0 {
		// No counterpart exists; "not yet linked" rather than an error.
		return LinkResult{}, nil
	}
	target := targets[0]
	r.cache.Put(target)

	attrs := map[string]any{
		spec.OwnerField:  ownerID,
		spec.TargetField: target.ID,
	}
	for k, v := range spec.Extra {
		attrs[k] = v
	}

	link, err = r.store.Insert(ctx, spec.LinkType, attrs)
	switch {
	case err == nil:
		linkCreatedTotal.Inc()
		r.cache.Put(link)
		return LinkResult{Link: link, Target: target, Linked: true}, nil

	case remote.IsConflict(err):
		// Lost the race; the row now exists. Converge on it.
		linkConflictTotal.Inc()
		r.log.Debug().Str("link", spec.LinkType).Str("owner", ownerID).Msg("link insert conflicted; re-reading")
		link, err = r.fetchLinkRow(ctx, spec, ownerID)
		if err != nil {
			return LinkResult{}, err
		}
		if link.IsZero() {
			return LinkResult{}, fmt.Errorf("resolve link %s: conflict but row absent on re-read: %w", spec.LinkType, remote.ErrNotFound)
		}
		return r.completeLink(ctx, spec, link)

	case remote.IsTableMissing(err):
		r.markUnavailable(spec.LinkType)
		return LinkResult{}, nil

	default:
		return LinkResult{}, err
	}
}

// fetchLinkRow looks the link row up by owner field. A zero record means
// absence; errors are genuine failures.
func (r *Reconciler) fetchLinkRow(ctx context.Context, spec entity.LinkSpec, ownerID string) (entity.Record, error) {
	rows, err := r.store.Fetch(ctx, spec.LinkType, entity.Eq(spec.OwnerField, ownerID))
	if err != nil {
		if remote.IsNotFound(err) {
			return entity.Record{}, nil
		}
		return entity.Record{}, err
	}
	if len(rows) == 0 {
		return entity.Record{}, nil
	}
	return rows[0], nil
}

// completeLink caches the link row and attaches its target record.
func (r *Reconciler) completeLink(ctx context.Context, spec entity.LinkSpec, link entity.Record) (LinkResult, error) {
	r.cache.Put(link)
	res := LinkResult{Link: link, Linked: true}

	targetID := link.Str(spec.TargetField)
	if targetID == "" {
		return res, nil
	}
	target, err := r.Lookup(ctx, spec.TargetType, targetID)
	if err != nil {
		// The link itself resolved; the counterpart projection degrades.
		r.log.Debug().Err(err).Str("link", spec.LinkType).Msg("link target lookup failed")
		return res, nil
	}
	res.Target = target
	return res, nil
}
