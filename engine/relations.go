package engine

import (
	"fmt"

	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/topology"
)

// DeclareRelation connects two entities of different ranks. The higher-rank
// entity is always the "from" side; mixing equal ranks is a usage error.
// Both the forward and the backward adjacency entry are created atomically.
// A genuinely new relation marks both endpoints modified (swept upward) and
// induces part membership from the higher entity onto the lower.
func (e *Engine) DeclareRelation(from, to core.Entity, ordinal core.Ordinal) error {
	if err := e.requireModifiable(); err != nil {
		return err
	}
	if !e.entities.IsLive(from) || !e.entities.IsLive(to) {
		return ErrUnknownEntity
	}
	fromKey, toKey := e.entities.Key(from), e.entities.Key(to)
	if fromKey.Rank == toKey.Rank {
		return &ErrInvalidKey{Reason: fmt.Sprintf("relation between equal ranks %s and %s", fromKey, toKey)}
	}
	if fromKey.Rank < toKey.Rank {
		return &ErrInvalidKey{Reason: fmt.Sprintf("relation must go downward: %s -> %s", fromKey, toKey)}
	}

	perm, err := e.relationPermutation(from, to, ordinal)
	if err != nil {
		return err
	}

	if !e.graph.Declare(from, fromKey.Rank, to, toKey.Rank, ordinal, perm) {
		return nil // no-op re-declare
	}

	e.markModifiedUpward(to)
	e.markModifiedUpward(from)

	// Induce the higher entity's inducible parts onto the lower.
	induced := e.registry.InducedSubset(e.buckets.PartOrdinals(from), fromKey.Rank)
	if len(induced) > 0 {
		visited := map[core.Entity]bool{from: true, to: true}
		if e.applyPartDelta(to, induced, nil) {
			e.propagateInduction(to, induced, nil, visited)
		}
	}
	return nil
}

// relationPermutation computes the orientation of the lower entity relative
// to the higher entity's side at the ordinal. Node targets and entities
// without resolvable node sets use the identity permutation.
func (e *Engine) relationPermutation(from, to core.Entity, ordinal core.Ordinal) (core.Permutation, error) {
	toKey := e.entities.Key(to)
	if toKey.Rank == core.NodeRank {
		return 0, nil
	}
	fromTopo := e.buckets.Topology(from)
	toTopo := e.buckets.Topology(to)
	if !fromTopo.IsValid() || !toTopo.IsValid() {
		return 0, nil
	}
	fromNodes := e.graph.Targets(from, core.NodeRank)
	toNodes := e.graph.Targets(to, core.NodeRank)
	if len(fromNodes) != fromTopo.NumNodes() || len(toNodes) != toTopo.NumNodes() {
		return 0, nil
	}

	sideNodes := topology.SideNodes(fromTopo, fromNodes, ordinal)
	if sideNodes == nil {
		return 0, &ErrInvalidKey{Reason: fmt.Sprintf("ordinal %d out of range for %s", ordinal, fromTopo)}
	}
	ok, perm := topology.EquivalentNodes(toTopo, toNodes, sideNodes)
	if !ok {
		// The caller connected entities whose node sets do not line up;
		// the mesh cannot represent that relation.
		panic(fmt.Sprintf("engine: no permutation maps %s onto side %d of %s", toKey, ordinal, e.entities.Key(from)))
	}
	return perm, nil
}

// DestroyRelation removes the symmetric relation pair. It returns false when
// the relation does not exist. Induced part membership on the lower entity
// is re-evaluated with multiplicity awareness: parts still justified by the
// remaining upward relations stay.
func (e *Engine) DestroyRelation(from, to core.Entity, ordinal core.Ordinal) (bool, error) {
	if err := e.requireModifiable(); err != nil {
		return false, err
	}
	if !e.entities.IsLive(from) || !e.entities.IsLive(to) {
		return false, ErrUnknownEntity
	}
	fromKey, toKey := e.entities.Key(from), e.entities.Key(to)
	if fromKey.Rank <= toKey.Rank {
		return false, &ErrInvalidKey{Reason: fmt.Sprintf("relation must go downward: %s -> %s", fromKey, toKey)}
	}
	return e.severRelation(from, fromKey.Rank, to, toKey.Rank, ordinal), nil
}

// severRelation removes one relation pair and re-derives induced membership
// on the lower entity. The higher entity's bucket must still be intact.
func (e *Engine) severRelation(from core.Entity, fromRank core.Rank, to core.Entity, toRank core.Rank, ordinal core.Ordinal) bool {
	if !e.graph.Destroy(from, fromRank, to, toRank, ordinal) {
		return false
	}
	e.markModifiedUpward(to)
	e.markModifiedUpward(from)

	// Removal candidates: parts the severed source induced, minus anything
	// still justified by the remaining upward relations.
	candidates := e.registry.InducedSubset(e.buckets.PartOrdinals(from), fromRank)
	effective := candidates[:0:0]
	for _, ord := range candidates {
		if !e.stillJustified(to, ord) {
			effective = append(effective, ord)
		}
	}
	if len(effective) > 0 {
		visited := map[core.Entity]bool{from: true, to: true}
		if e.applyPartDelta(to, nil, effective) {
			e.propagateInduction(to, nil, effective, visited)
		}
	}
	return true
}
