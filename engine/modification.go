package engine

import (
	"slices"

	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/part"
)

// deletedRecord remembers a destroyed communicated entity and who must be
// told.
type deletedRecord struct {
	key   core.EntityKey
	procs []int
}

// ModificationEnd closes the cycle and resolves the mesh to a globally
// consistent synchronized state. Collective; every rank must call it, and the
// phase sequence is identical everywhere:
//
//  1. propagate deletions to processes holding copies
//  2. resolve entities created in parallel on several ranks into single
//     global entities (key dedup by shared node set)
//  3. resolve ownership (lowest sharing rank owns) and fix the internal
//     owned/shared part memberships
//  4. reconcile induced part membership across sharers
//  5. regenerate the aura (when enabled)
//  6. optional consistency verification
//  7. collective error gate: all ranks raise, or none
//  8. compact buckets, recycle slots, flip to synchronized
//
// On error the mesh stays modifiable so the caller can inspect or abandon it.
func (e *Engine) ModificationEnd() error {
	if e.state != stateModifiable {
		return ErrNotModifiable
	}

	if e.machine.Size() > 1 {
		e.resolveDeletions()
		e.resolveParallelCreate()
		e.resolveOwnership()
		e.resolveInducedParts()
		if e.autoAura {
			if err := e.RegenerateAura(); err != nil {
				e.addParallelError("aura regeneration: %v", err)
			}
		}
	} else {
		clear(e.nodeSharing)
		e.deletedComm = nil
	}

	if e.verify {
		e.verifyConsistency()
	}

	if err := e.raiseParallelErrors(); err != nil {
		return err
	}

	e.buckets.Compact(e.keyLess)
	e.entities.FinishCycle()
	e.state = stateSynchronized
	e.cycle++
	e.notifyModificationEnd()
	e.logger.Debugf("modification cycle %d closed", e.cycle)
	return nil
}

// raiseParallelErrors is the collective error gate: the failure flag is
// all-reduced so every rank raises together or not at all, keeping the ranks
// in lockstep for the next collective.
func (e *Engine) raiseParallelErrors() error {
	if !e.machine.AllReduceOr(len(e.localErrs) > 0) {
		return nil
	}
	err := &ParallelError{
		Rank:       e.Rank(),
		Local:      slices.Clone(e.localErrs),
		PeerFailed: len(e.localErrs) == 0,
	}
	e.localErrs = nil
	return err
}

// resolveDeletions tells every process holding a copy of an entity destroyed
// here to drop its records, and drops orphaned ghost copies of entities whose
// owner destroyed them.
func (e *Engine) resolveDeletions() {
	send := make([]*comm.Buffer, e.machine.Size())
	for _, rec := range e.deletedComm {
		for _, p := range rec.procs {
			if send[p] == nil {
				send[p] = comm.NewBuffer()
			}
			send[p].PackKey(rec.key)
		}
	}
	e.deletedComm = nil

	type notice struct {
		key core.EntityKey
		src int
	}
	var notices []notice
	for src, buf := range e.machine.SparseExchange(send) {
		if buf == nil {
			continue
		}
		for buf.Remaining() > 0 {
			notices = append(notices, notice{key: buf.UnpackKey(), src: src})
		}
		if err := buf.Err(); err != nil {
			e.addParallelError("deletion notice from rank %d: %v", src, err)
		}
	}

	for _, n := range notices {
		for _, entry := range slices.Clone(e.commDB.Entries(n.key)) {
			if int(entry.Proc) == n.src {
				e.commDB.Erase(n.key, entry.GhostID, n.src)
			}
		}
	}

	// Ghosts whose owner is gone go away too, top-down so upward
	// connectivity never blocks. Shared survivors keep their copy; phase 3
	// re-resolves the owner among the remaining sharers.
	slices.SortFunc(notices, func(a, b notice) int {
		return int(b.key.Rank) - int(a.key.Rank)
	})
	for _, n := range notices {
		ent, ok := e.entities.Get(n.key)
		if !ok || e.entities.Owner(ent) != n.src || e.commDB.IsShared(n.key) {
			continue
		}
		if destroyed, err := e.DestroyEntity(ent); err != nil {
			e.addParallelError("drop orphaned ghost %s: %v", n.key, err)
		} else if !destroyed {
			e.addParallelError("orphaned ghost %s still has upward connectivity", n.key)
		}
	}
}

// resolveOwnership sets the owner of every shared entity to the lowest
// sharing rank and aligns the internal owned/shared part memberships with the
// resolved state.
func (e *Engine) resolveOwnership() {
	type fixup struct {
		ent    core.Entity
		shared bool
	}
	var all []fixup
	e.entities.ForEach(func(ent core.Entity, key core.EntityKey) {
		all = append(all, fixup{ent: ent, shared: e.commDB.IsShared(key)})
	})

	for _, f := range all {
		if f.shared {
			owner := e.Rank()
			for _, p := range e.commDB.SharingProcs(e.entities.Key(f.ent)) {
				if p < owner {
					owner = p
				}
			}
			e.entities.SetOwner(f.ent, owner)
		}

		var add, remove part.OrdinalSet
		if e.entities.Owner(f.ent) == e.Rank() {
			add = add.Insert(part.LocallyOwnedOrdinal)
		} else {
			remove = remove.Insert(part.LocallyOwnedOrdinal)
		}
		if f.shared {
			add = add.Insert(part.GloballySharedOrdinal)
		} else {
			remove = remove.Insert(part.GloballySharedOrdinal)
		}
		e.applyPartDelta(f.ent, add, remove)
	}
}

// resolveInducedParts reconciles induced membership across sharers: each rank
// reports the parts induced onto its copy by its local upward connectivity,
// and every copy converges on the union of all reports. Parts no longer
// justified by any rank's connectivity come off. A shared node inside an
// element block on one rank only is still in that block everywhere; once the
// last such element is gone, no rank keeps the node in the block.
func (e *Engine) resolveInducedParts() {
	send := make([]*comm.Buffer, e.machine.Size())
	union := make(map[core.EntityKey]part.OrdinalSet)
	var shared []core.Entity
	e.entities.ForEach(func(ent core.Entity, key core.EntityKey) {
		procs := e.commDB.SharingProcs(key)
		if len(procs) == 0 {
			return
		}
		shared = append(shared, ent)
		induced := e.inducedOnto(ent)
		union[key] = union[key].Union(induced)
		for _, p := range procs {
			if send[p] == nil {
				send[p] = comm.NewBuffer()
			}
			send[p].PackKey(key)
			send[p].PackU16(uint16(len(induced)))
			for _, ord := range induced {
				send[p].PackU32(uint32(ord))
			}
		}
	})

	for src, buf := range e.machine.SparseExchange(send) {
		if buf == nil {
			continue
		}
		for buf.Remaining() > 0 {
			key := buf.UnpackKey()
			n := int(buf.UnpackU16())
			var reported part.OrdinalSet
			for i := 0; i < n; i++ {
				reported = reported.Insert(core.PartOrdinal(buf.UnpackU32()))
			}
			if buf.Err() != nil {
				break
			}
			union[key] = union[key].Union(reported)
		}
		if err := buf.Err(); err != nil {
			e.addParallelError("induced parts from rank %d: %v", src, err)
		}
	}

	for _, ent := range shared {
		key := e.entities.Key(ent)
		target := union[key]
		add := target.Minus(e.buckets.PartOrdinals(ent))
		var remove part.OrdinalSet
		for _, ord := range e.buckets.PartOrdinals(ent) {
			if e.inducibleOnto(ord, key.Rank) && !target.Contains(ord) {
				remove = remove.Insert(ord)
			}
		}
		e.applyPartDelta(ent, add, remove)
	}
}

// inducibleOnto reports whether the part could have been induced onto an
// entity of the given rank, i.e. it induces from some higher rank.
func (e *Engine) inducibleOnto(ord core.PartOrdinal, rank core.Rank) bool {
	p := e.registry.Get(ord)
	if p == nil {
		return false
	}
	for r := int(rank) + 1; r < int(core.NumRanks); r++ {
		if p.InducesOn(core.Rank(r)) {
			return true
		}
	}
	return false
}
