package engine

import (
	"fmt"

	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/part"
)

// ChangeEntityParts adds and removes part membership on a locally owned
// entity and propagates the induced consequences onto its downward
// connectivity. Internal parts cannot be changed.
func (e *Engine) ChangeEntityParts(ent core.Entity, add, remove []*part.Part) error {
	if err := e.requireModifiable(); err != nil {
		return err
	}
	if !e.entities.IsLive(ent) {
		return ErrUnknownEntity
	}
	if e.entities.Owner(ent) != e.Rank() {
		return fmt.Errorf("change parts of %s: %w", e.Key(ent), ErrNotOwner)
	}
	addSet, err := e.userOrdinals(add)
	if err != nil {
		return err
	}
	removeSet, err := e.userOrdinals(remove)
	if err != nil {
		return err
	}
	return e.changeParts(ent, addSet, removeSet)
}

// BatchChangeEntityParts applies one part delta to many entities.
func (e *Engine) BatchChangeEntityParts(ents []core.Entity, add, remove []*part.Part) error {
	for _, ent := range ents {
		if err := e.ChangeEntityParts(ent, add, remove); err != nil {
			return err
		}
	}
	return nil
}

// changeParts applies a validated ordinal delta and starts induced
// propagation.
func (e *Engine) changeParts(ent core.Entity, add, remove part.OrdinalSet) error {
	// A direct removal is vetoed while the part is still induced from some
	// connected higher-rank entity.
	remove = remove.Minus(e.inducedOnto(ent))

	if !e.applyPartDelta(ent, add, remove) {
		return nil
	}
	visited := map[core.Entity]bool{ent: true}
	e.propagateInduction(ent, add, remove, visited)
	return nil
}

// applyPartDelta moves the entity to the bucket matching its new part set.
// Returns false on a no-op.
func (e *Engine) applyPartDelta(ent core.Entity, add, remove part.OrdinalSet) bool {
	current := e.buckets.PartOrdinals(ent)
	updated := current.Union(add).Minus(remove)
	if updated.Equal(current) {
		return false
	}
	e.buckets.Move(ent, updated)
	e.markModifiedUpward(ent)
	e.notifyPartsChanged(e.entities.Key(ent))
	return true
}

// inducedOnto computes the parts currently induced onto ent by its upward
// connectivity.
func (e *Engine) inducedOnto(ent core.Entity) part.OrdinalSet {
	var induced part.OrdinalSet
	rank := e.entities.Key(ent).Rank
	for r := int(rank) + 1; r < int(core.NumRanks); r++ {
		for _, rel := range e.graph.Relations(ent, core.Rank(r)) {
			srcParts := e.buckets.PartOrdinals(rel.Target)
			induced = induced.Union(e.registry.InducedSubset(srcParts, core.Rank(r)))
		}
	}
	return induced
}

// stillJustified reports whether some upward relation of ent still induces
// the part onto it.
func (e *Engine) stillJustified(ent core.Entity, ord core.PartOrdinal) bool {
	p := e.registry.Get(ord)
	if p == nil {
		return false
	}
	rank := e.entities.Key(ent).Rank
	for r := int(rank) + 1; r < int(core.NumRanks); r++ {
		if !p.InducesOn(core.Rank(r)) {
			continue
		}
		for _, rel := range e.graph.Relations(ent, core.Rank(r)) {
			if e.buckets.Member(rel.Target, ord) {
				return true
			}
		}
	}
	return false
}

// propagateInduction pushes an applied part delta from ent one hop down onto
// each directly connected lower-rank entity: the inducible subset of the
// delta is added, and removal candidates survive only when no remaining
// higher-rank relation justifies them. Each entity is visited once per
// propagation pass.
func (e *Engine) propagateInduction(ent core.Entity, add, remove part.OrdinalSet, visited map[core.Entity]bool) {
	rank := e.entities.Key(ent).Rank
	addInduced := e.registry.InducedSubset(add, rank)
	removeInduced := e.registry.InducedSubset(remove, rank)
	if len(addInduced) == 0 && len(removeInduced) == 0 {
		return
	}

	for r := int(rank) - 1; r >= 0; r-- {
		for _, rel := range e.graph.Relations(ent, core.Rank(r)) {
			target := rel.Target
			if visited[target] {
				continue
			}
			visited[target] = true

			var effectiveRemove part.OrdinalSet
			for _, ord := range removeInduced {
				if !e.stillJustified(target, ord) {
					effectiveRemove = effectiveRemove.Insert(ord)
				}
			}
			if e.applyPartDelta(target, addInduced, effectiveRemove) {
				e.propagateInduction(target, addInduced, effectiveRemove, visited)
			}
		}
	}
}
