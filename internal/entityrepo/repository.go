// Package entityrepo implements the entity arena: the mapping between global
// entity keys and dense process-local handles, with slot recycling that keeps
// ghost handles stable across ghost regeneration.
package entityrepo

import (
	"github.com/hupe1980/meshgo/core"
)

// Repository owns the lifecycle bookkeeping of local entity slots. Slot 0 is
// the invalid sentinel and never allocated. Slots freed during a modification
// cycle become reusable only after the cycle ends, except ghost slots, which
// stay parked under their key so a regenerated ghost reclaims its old handle.
type Repository struct {
	keys   []core.EntityKey
	states []core.EntityState
	owners []int32

	byKey map[core.EntityKey]core.Entity

	freeList []core.Entity
	// deferredFree holds non-ghost slots destroyed this cycle; they join
	// freeList when the cycle ends.
	deferredFree []core.Entity
	// ghostReuse parks destroyed ghost slots by key within one cycle.
	// Entries still present at cycle end are ghosts that did not come back;
	// their slots are then freed normally.
	ghostReuse map[core.EntityKey]core.Entity
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{
		keys:       []core.EntityKey{core.InvalidKey},
		states:     []core.EntityState{core.Unchanged},
		owners:     []int32{-1},
		byKey:      make(map[core.EntityKey]core.Entity),
		ghostReuse: make(map[core.EntityKey]core.Entity),
	}
}

// Len is the number of slots, including the sentinel and freed slots.
func (r *Repository) Len() int { return len(r.keys) }

// Get returns the local handle for key, if the entity exists here.
func (r *Repository) Get(key core.EntityKey) (core.Entity, bool) {
	e, ok := r.byKey[key]
	return e, ok
}

// Declare returns the handle for key, allocating a slot when the key is new.
// A parked ghost slot with the same key is reclaimed in preference to the
// free list.
func (r *Repository) Declare(key core.EntityKey) (e core.Entity, created bool) {
	if e, ok := r.byKey[key]; ok {
		return e, false
	}

	if parked, ok := r.ghostReuse[key]; ok {
		delete(r.ghostReuse, key)
		e = parked
	} else if n := len(r.freeList); n > 0 {
		e = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
	} else {
		e = core.Entity(len(r.keys))
		r.keys = append(r.keys, core.InvalidKey)
		r.states = append(r.states, core.Unchanged)
		r.owners = append(r.owners, -1)
	}

	r.keys[e] = key
	r.states[e] = core.Created
	r.owners[e] = -1
	r.byKey[key] = e
	return e, true
}

// Destroy retires the slot. Ghost slots park under their key for reuse;
// everything else waits on the deferred list until the cycle ends.
func (r *Repository) Destroy(e core.Entity, isGhost bool) {
	key := r.keys[e]
	delete(r.byKey, key)
	r.states[e] = core.Deleted

	if isGhost {
		r.ghostReuse[key] = e
	} else {
		r.deferredFree = append(r.deferredFree, e)
	}
}

// Key returns the global key stored in the slot.
func (r *Repository) Key(e core.Entity) core.EntityKey { return r.keys[e] }

// SetKey re-keys a live entity (shared-entity resolution may pick another
// process's proposed key as the global one).
func (r *Repository) SetKey(e core.Entity, key core.EntityKey) {
	old := r.keys[e]
	if old == key {
		return
	}
	delete(r.byKey, old)
	r.keys[e] = key
	r.byKey[key] = e
}

// State returns the entity's modification state.
func (r *Repository) State(e core.Entity) core.EntityState { return r.states[e] }

// SetState overwrites the entity's modification state.
func (r *Repository) SetState(e core.Entity, s core.EntityState) { r.states[e] = s }

// MarkModified upgrades Unchanged to Modified; Created and Deleted stand.
func (r *Repository) MarkModified(e core.Entity) bool {
	if r.states[e] == core.Unchanged {
		r.states[e] = core.Modified
		return true
	}
	return false
}

// Owner returns the owning process rank, or -1 when not yet resolved.
func (r *Repository) Owner(e core.Entity) int { return int(r.owners[e]) }

// SetOwner records the owning process rank.
func (r *Repository) SetOwner(e core.Entity, rank int) { r.owners[e] = int32(rank) }

// IsLive reports whether the slot currently holds a live entity.
func (r *Repository) IsLive(e core.Entity) bool {
	return e.IsValid() && int(e) < len(r.keys) && r.states[e] != core.Deleted && r.keys[e].IsValid()
}

// ForEach visits every live entity.
func (r *Repository) ForEach(fn func(e core.Entity, key core.EntityKey)) {
	for key, e := range r.byKey {
		fn(e, key)
	}
}

// MaxLocalID returns the largest id present locally for a rank. Used as the
// local contribution to distributed id generation.
func (r *Repository) MaxLocalID(rank core.Rank) core.EntityID {
	var maxID core.EntityID
	for key := range r.byKey {
		if key.Rank == rank && key.ID > maxID {
			maxID = key.ID
		}
	}
	return maxID
}

// FinishCycle recycles this cycle's freed slots and resets entity states.
// Parked ghost slots that were not reclaimed are freed too.
func (r *Repository) FinishCycle() {
	r.freeList = append(r.freeList, r.deferredFree...)
	r.deferredFree = r.deferredFree[:0]

	for key, e := range r.ghostReuse {
		delete(r.ghostReuse, key)
		r.freeList = append(r.freeList, e)
	}

	for e := range r.states {
		if r.states[e] == core.Deleted {
			r.keys[e] = core.InvalidKey
		}
		r.states[e] = core.Unchanged
	}
}
