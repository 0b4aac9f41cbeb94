package engine

import (
	"fmt"
	"slices"

	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/part"
	"github.com/hupe1980/meshgo/topology"
)

// DeclareEntity creates (or finds) the entity with the given rank and id and
// adds it to the given parts. New entities become locally owned. Declaring an
// existing entity requires local ownership. Sides cannot be declared this
// way; use DeclareElementSide so their topology derives from the element.
func (e *Engine) DeclareEntity(rank core.Rank, id core.EntityID, parts ...*part.Part) (core.Entity, error) {
	if err := e.requireModifiable(); err != nil {
		return core.InvalidEntity, err
	}
	if rank >= core.NumRanks {
		return core.InvalidEntity, &ErrInvalidKey{Reason: fmt.Sprintf("rank %d out of range", rank)}
	}
	if rank == e.sideRank {
		return core.InvalidEntity, &ErrInvalidKey{Reason: fmt.Sprintf("rank %s is the side rank; use DeclareElementSide", rank)}
	}
	if id == 0 || id > e.maxID {
		return core.InvalidEntity, &ErrInvalidKey{Reason: fmt.Sprintf("id %d outside [1, %d]", id, e.maxID)}
	}

	ordinals, err := e.userOrdinals(parts)
	if err != nil {
		return core.InvalidEntity, err
	}
	return e.declareEntityOrdinals(core.EntityKey{Rank: rank, ID: id}, ordinals)
}

func (e *Engine) declareEntityOrdinals(key core.EntityKey, ordinals part.OrdinalSet) (core.Entity, error) {
	if ent, ok := e.entities.Get(key); ok {
		if e.entities.Owner(ent) != e.Rank() {
			return core.InvalidEntity, fmt.Errorf("declare %s: %w", key, ErrNotOwner)
		}
		if err := e.changeParts(ent, ordinals, nil); err != nil {
			return core.InvalidEntity, err
		}
		return ent, nil
	}

	topo, err := e.registry.TopologyOf(ordinals)
	if err != nil {
		return core.InvalidEntity, fmt.Errorf("declare %s: %w", key, err)
	}
	if !topo.IsValid() && key.Rank == core.NodeRank {
		topo = topology.Node
	}

	all := ordinals.Clone().
		Insert(part.UniversalOrdinal).
		Insert(part.LocallyOwnedOrdinal)

	ent, _ := e.entities.Declare(key)
	e.entities.SetOwner(ent, e.Rank())
	e.buckets.Add(ent, key.Rank, topo, all)
	e.notifyAdded(key)
	return ent, nil
}

// userOrdinals validates an application-supplied part list.
func (e *Engine) userOrdinals(parts []*part.Part) (part.OrdinalSet, error) {
	var ordinals part.OrdinalSet
	for _, p := range parts {
		if p.IsInternal() {
			return nil, fmt.Errorf("part %s: %w", p.Name(), ErrInternalPart)
		}
		ordinals = ordinals.Insert(p.Ordinal())
	}
	return ordinals, nil
}

// DestroyEntity removes the entity from this process. It returns false
// without error while the entity still has upward connectivity: callers
// destroy from the highest rank down. Downward relations are severed
// (highest rank first), induced part membership on the targets is
// re-evaluated, and the local slot is queued for reuse.
func (e *Engine) DestroyEntity(ent core.Entity) (bool, error) {
	if err := e.requireModifiable(); err != nil {
		return false, err
	}
	if !e.entities.IsLive(ent) {
		return false, nil
	}

	key := e.entities.Key(ent)
	if e.graph.HasUpward(ent, key.Rank) {
		return false, nil
	}

	e.notifyDeleted(key)

	for r := int(key.Rank) - 1; r >= 0; r-- {
		rels := slices.Clone(e.graph.Relations(ent, core.Rank(r)))
		for _, rel := range rels {
			e.severRelation(ent, key.Rank, rel.Target, core.Rank(r), rel.Ordinal)
		}
	}

	if entries := e.commDB.Entries(key); len(entries) > 0 {
		rec := deletedRecord{key: key}
		for _, entry := range entries {
			if !slices.Contains(rec.procs, int(entry.Proc)) {
				rec.procs = append(rec.procs, int(entry.Proc))
			}
		}
		e.deletedComm = append(e.deletedComm, rec)
		e.commDB.EraseAll(key)
	}
	delete(e.nodeSharing, ent)
	e.dropFieldData(ent)

	isGhost := e.entities.Owner(ent) != e.Rank()
	e.buckets.Remove(ent)
	e.graph.RemoveEntity(ent)
	e.entities.Destroy(ent, isGhost)
	return true, nil
}

// AddNodeSharing declares that proc also owns a copy of the node. Sharing
// must be declared symmetrically: the other process makes the mirror call
// with this rank. Consumed by the parallel create resolution at
// ModificationEnd.
func (e *Engine) AddNodeSharing(node core.Entity, proc int) error {
	if err := e.requireModifiable(); err != nil {
		return err
	}
	if !e.entities.IsLive(node) {
		return ErrUnknownEntity
	}
	key := e.entities.Key(node)
	if key.Rank != core.NodeRank {
		return &ErrInvalidKey{Reason: fmt.Sprintf("AddNodeSharing on %s", key)}
	}
	if proc == e.Rank() || proc < 0 || proc >= e.machine.Size() {
		return &ErrInvalidKey{Reason: fmt.Sprintf("sharing proc %d invalid", proc)}
	}
	if !slices.Contains(e.nodeSharing[node], proc) {
		e.nodeSharing[node] = append(e.nodeSharing[node], proc)
	}
	e.markModifiedUpward(node)
	return nil
}

// markModifiedUpward marks the entity Modified and sweeps the mark up the
// connectivity graph: anything containing a modified entity is modified too.
// Recursion descends only into Unchanged targets, so each pass touches an
// entity once.
func (e *Engine) markModifiedUpward(ent core.Entity) {
	st := e.entities.State(ent)
	if st == core.Deleted {
		return
	}
	if st == core.Unchanged {
		e.entities.SetState(ent, core.Modified)
	}
	rank := e.entities.Key(ent).Rank
	for r := int(rank) + 1; r < int(core.NumRanks); r++ {
		for _, rel := range e.graph.Relations(ent, core.Rank(r)) {
			if e.entities.State(rel.Target) == core.Unchanged {
				e.markModifiedUpward(rel.Target)
			}
		}
	}
}
