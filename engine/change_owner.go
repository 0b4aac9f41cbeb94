package engine

import (
	"fmt"
	"slices"

	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
)

// OwnerChange moves one locally owned entity to a new owning process.
type OwnerChange struct {
	Entity   core.Entity
	NewOwner int
}

// ChangeEntityOwner transfers entities to new owners. The downward closure of
// each entity travels along: closure members keep their owner and become
// shared (nodes) or ghost copies on the receiver. The sender destroys its
// copy of each explicitly transferred entity and keeps the closure members
// its remaining entities still use. Collective; must run inside an open
// modification cycle, and the change of shared support is reconciled by the
// following ModificationEnd.
func (e *Engine) ChangeEntityOwner(changes []OwnerChange) error {
	if err := e.requireModifiable(); err != nil {
		return err
	}
	for _, ch := range changes {
		if !e.entities.IsLive(ch.Entity) {
			return ErrUnknownEntity
		}
		if e.entities.Owner(ch.Entity) != e.Rank() {
			return fmt.Errorf("change owner of %s: %w", e.Key(ch.Entity), ErrNotOwner)
		}
		if ch.NewOwner == e.Rank() || ch.NewOwner < 0 || ch.NewOwner >= e.machine.Size() {
			return &ErrInvalidKey{Reason: fmt.Sprintf("new owner %d invalid", ch.NewOwner)}
		}
	}

	type item struct {
		ent      core.Entity
		dest     int
		explicit bool
	}
	var items []item
	seen := make(map[[2]int64]bool)
	for _, ch := range changes {
		for _, m := range e.downwardClosure(ch.Entity) {
			k := [2]int64{int64(m), int64(ch.NewOwner)}
			if seen[k] {
				continue
			}
			seen[k] = true
			items = append(items, item{ent: m, dest: ch.NewOwner, explicit: m == ch.Entity})
		}
	}
	slices.SortFunc(items, func(a, b item) int {
		if a.dest != b.dest {
			return a.dest - b.dest
		}
		ka, kb := e.entities.Key(a.ent), e.entities.Key(b.ent)
		if ka.Rank != kb.Rank {
			return int(ka.Rank) - int(kb.Rank)
		}
		if ka.Less(kb) {
			return -1
		}
		if kb.Less(ka) {
			return 1
		}
		return 0
	})

	// Payload round. Explicit entities are packed with the destination as
	// owner, so the receiver's copy comes up locally owned.
	send := make([]*comm.Buffer, e.machine.Size())
	type sharedFix struct {
		key  core.EntityKey
		dest int
	}
	var fixes []sharedFix
	for _, it := range items {
		key := e.entities.Key(it.ent)
		if send[it.dest] == nil {
			send[it.dest] = comm.NewBuffer()
		}
		b := send[it.dest]

		if it.explicit {
			e.entities.SetOwner(it.ent, it.dest)
		}
		e.packEntityState(b, it.ent)
		b.PackBool(it.explicit)

		sharers := e.commDB.SharingProcs(key)
		b.PackU16(uint16(len(sharers)))
		for _, p := range sharers {
			b.PackI32(int32(p))
		}

		if !it.explicit && key.Rank == core.NodeRank && e.entities.Owner(it.ent) != it.dest {
			// The receiver now uses this node; both sides become sharers
			// and the other sharers hear about it in the notice round.
			e.commDB.Insert(key, core.SharedGhostID, it.dest)
			if len(sharers) > 0 {
				fixes = append(fixes, sharedFix{key: key, dest: it.dest})
			}
		}
	}

	for src, buf := range e.machine.SparseExchange(send) {
		if buf == nil {
			continue
		}
		for buf.Remaining() > 0 {
			w, err := unpackEntityState(buf)
			if err != nil {
				return err
			}
			ent, err := e.applyReceivedEntity(buf, w)
			if err != nil {
				return err
			}
			explicit := buf.UnpackBool()
			nshare := int(buf.UnpackU16())
			for i := 0; i < nshare; i++ {
				p := int(buf.UnpackI32())
				if p != e.Rank() {
					e.commDB.Insert(w.key, core.SharedGhostID, p)
				}
			}
			if err := buf.Err(); err != nil {
				return err
			}
			e.markModifiedUpward(ent)
			if !explicit && w.key.Rank == core.NodeRank && w.owner != e.Rank() {
				e.commDB.Insert(w.key, core.SharedGhostID, w.owner)
				if w.owner != src {
					e.commDB.Insert(w.key, core.SharedGhostID, src)
				}
			}
		}
	}

	// Notice round: existing sharers of a transferred support node learn the
	// new sharer.
	notices := make([]*comm.Buffer, e.machine.Size())
	for _, f := range fixes {
		for _, p := range e.commDB.SharingProcs(f.key) {
			if p == f.dest {
				continue
			}
			if notices[p] == nil {
				notices[p] = comm.NewBuffer()
			}
			notices[p].PackKey(f.key)
			notices[p].PackI32(int32(f.dest))
		}
	}
	for _, buf := range e.machine.SparseExchange(notices) {
		if buf == nil {
			continue
		}
		for buf.Remaining() > 0 {
			key := buf.UnpackKey()
			p := int(buf.UnpackI32())
			if buf.Err() == nil && p != e.Rank() {
				e.commDB.Insert(key, core.SharedGhostID, p)
			}
		}
		if err := buf.Err(); err != nil {
			return err
		}
	}

	// The sender's copies of explicitly transferred entities go away,
	// highest rank first.
	var gone []core.Entity
	for _, ch := range changes {
		gone = append(gone, ch.Entity)
	}
	slices.SortFunc(gone, func(a, b core.Entity) int {
		return int(e.entities.Key(b).Rank) - int(e.entities.Key(a).Rank)
	})
	for _, ent := range gone {
		if !e.entities.IsLive(ent) {
			continue
		}
		if destroyed, err := e.DestroyEntity(ent); err != nil {
			return err
		} else if !destroyed {
			return &ErrInvalidKey{Reason: fmt.Sprintf("transferred %s still has upward connectivity here", e.Key(ent))}
		}
	}
	return nil
}
