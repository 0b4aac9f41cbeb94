package engine

import (
	"fmt"

	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/part"
	"github.com/hupe1980/meshgo/topology"
)

// SideIDFormula computes the canonical global id of an element side: both
// elements bounding an interior side derive the same id only via the element
// that triggers creation, so the formula is combined with node-set matching
// and the parallel shared-entity resolution to converge on one id.
func SideIDFormula(elemID core.EntityID, ordinal core.Ordinal) core.EntityID {
	return 10*elemID + core.EntityID(ordinal) + 1
}

// DeclareElementSide creates (or finds) the side of an element at the given
// side ordinal, derives its topology from the element, and connects it to
// every locally present element sharing the same node set.
func (e *Engine) DeclareElementSide(elem core.Entity, sideOrd core.Ordinal, parts ...*part.Part) (core.Entity, error) {
	if !e.entities.IsLive(elem) {
		return core.InvalidEntity, ErrUnknownEntity
	}
	return e.DeclareElementSideWithID(elem, sideOrd, SideIDFormula(e.entities.Key(elem).ID, sideOrd), parts...)
}

// DeclareElementSideWithID is DeclareElementSide with an explicit side id.
func (e *Engine) DeclareElementSideWithID(elem core.Entity, sideOrd core.Ordinal, id core.EntityID, parts ...*part.Part) (core.Entity, error) {
	if err := e.requireModifiable(); err != nil {
		return core.InvalidEntity, err
	}
	if !e.entities.IsLive(elem) {
		return core.InvalidEntity, ErrUnknownEntity
	}
	elemKey := e.entities.Key(elem)
	if e.entities.Owner(elem) != e.Rank() {
		return core.InvalidEntity, fmt.Errorf("declare side of %s: %w", elemKey, ErrNotOwner)
	}
	elemTopo := e.buckets.Topology(elem)
	sideTopo := elemTopo.SideTopology(sideOrd)
	if !sideTopo.IsValid() || sideTopo.Rank() != e.sideRank {
		return core.InvalidEntity, &ErrInvalidKey{Reason: fmt.Sprintf("element %s (%s) has no side %d at rank %s", elemKey, elemTopo, sideOrd, e.sideRank)}
	}

	ordinals, err := e.userOrdinals(parts)
	if err != nil {
		return core.InvalidEntity, err
	}

	// Already attached at this ordinal: only refresh part membership.
	for _, rel := range e.graph.Relations(elem, e.sideRank) {
		if rel.Ordinal == sideOrd {
			if err := e.changeParts(rel.Target, ordinals, nil); err != nil {
				return core.InvalidEntity, err
			}
			return rel.Target, nil
		}
	}

	elemNodes := e.graph.Targets(elem, core.NodeRank)
	if len(elemNodes) != elemTopo.NumNodes() {
		return core.InvalidEntity, &ErrInvalidKey{Reason: fmt.Sprintf("element %s has %d of %d nodes", elemKey, len(elemNodes), elemTopo.NumNodes())}
	}
	sideNodes := topology.SideNodes(elemTopo, elemNodes, sideOrd)

	// An equivalent side may already exist, created through a neighboring
	// element; match by node set, not by id.
	side := e.findExistingSide(sideTopo, sideNodes)
	if side == core.InvalidEntity {
		side, err = e.createSideEntity(core.EntityKey{Rank: e.sideRank, ID: id}, sideTopo, ordinals, sideNodes)
		if err != nil {
			return core.InvalidEntity, err
		}
		e.attachMatchingElements(side, sideTopo)
	} else {
		if err := e.changeParts(side, ordinals, nil); err != nil {
			return core.InvalidEntity, err
		}
		if err := e.DeclareRelation(elem, side, sideOrd); err != nil {
			return core.InvalidEntity, err
		}
	}
	return side, nil
}

// DeclareSoloSide creates a side not derived from any element (used by
// skinning and io layers); its id comes from the solo-side generator, which
// never collides with the formula-derived ids of any rank.
func (e *Engine) DeclareSoloSide(topo topology.Topology, parts ...*part.Part) (core.Entity, error) {
	if err := e.requireModifiable(); err != nil {
		return core.InvalidEntity, err
	}
	if topo.Rank() != e.sideRank {
		return core.InvalidEntity, &ErrInvalidKey{Reason: fmt.Sprintf("%s is not a side topology", topo)}
	}
	ordinals, err := e.userOrdinals(parts)
	if err != nil {
		return core.InvalidEntity, err
	}
	return e.createSideEntity(core.EntityKey{Rank: e.sideRank, ID: e.soloSides.Next()}, topo, ordinals, nil)
}

func (e *Engine) createSideEntity(key core.EntityKey, topo topology.Topology, ordinals part.OrdinalSet, nodes []core.Entity) (core.Entity, error) {
	if _, ok := e.entities.Get(key); ok {
		return core.InvalidEntity, &ErrInvalidKey{Reason: fmt.Sprintf("side id %d already in use", key.ID)}
	}
	all := ordinals.Clone().
		Insert(part.UniversalOrdinal).
		Insert(part.LocallyOwnedOrdinal)

	side, _ := e.entities.Declare(key)
	e.entities.SetOwner(side, e.Rank())
	e.buckets.Add(side, key.Rank, topo, all)
	e.notifyAdded(key)

	for i, n := range nodes {
		if err := e.DeclareRelation(side, n, core.Ordinal(i)); err != nil {
			return core.InvalidEntity, err
		}
	}
	return side, nil
}

// sideMatch is one element side whose node set is equivalent to a declared
// side's.
type sideMatch struct {
	elem    core.Entity
	ordinal core.Ordinal
	perm    core.Permutation
	shell   bool
}

// attachMatchingElements connects the side to every local element with an
// equivalent side node set. When a shell coincides with the side, the shell
// attaches through its positive-polarity face only, and volume elements on
// the negative-polarity side of the shell are deliberately left unattached
// (shell/solid coincidence convention).
func (e *Engine) attachMatchingElements(side core.Entity, sideTopo topology.Topology) {
	sideNodes := e.graph.Targets(side, core.NodeRank)
	if len(sideNodes) == 0 {
		return
	}

	var matches []sideMatch
	shellCoincident := false
	for _, rel := range e.graph.Relations(sideNodes[0], core.ElementRank) {
		elem := rel.Target
		elemTopo := e.buckets.Topology(elem)
		elemNodes := e.graph.Targets(elem, core.NodeRank)
		if len(elemNodes) != elemTopo.NumNodes() {
			continue
		}
		for ord := 0; ord < elemTopo.NumSides(); ord++ {
			if elemTopo.SideTopology(core.Ordinal(ord)) != sideTopo {
				continue
			}
			candidate := topology.SideNodes(elemTopo, elemNodes, core.Ordinal(ord))
			ok, perm := topology.EquivalentNodes(sideTopo, candidate, sideNodes)
			if !ok {
				continue
			}
			m := sideMatch{elem: elem, ordinal: core.Ordinal(ord), perm: perm, shell: elemTopo.IsShell()}
			if m.shell {
				shellCoincident = true
				// A shell matches through both polarity ordinals with
				// opposite windings; keep only its positive face.
				if !sideTopo.IsPositivePermutation(perm) {
					continue
				}
			}
			matches = append(matches, m)
		}
	}

	seen := make(map[core.Entity]bool)
	for _, m := range matches {
		if seen[m.elem] {
			continue
		}
		if !m.shell && shellCoincident && !sideTopo.IsPositivePermutation(m.perm) {
			continue // wrong polarity side of a coincident shell
		}
		seen[m.elem] = true
		if err := e.DeclareRelation(m.elem, side, m.ordinal); err != nil {
			e.logger.Errorf("attach element %s to side %s: %v", e.Key(m.elem), e.Key(side), err)
		}
	}
}

// findExistingSide looks for a live side whose node set is equivalent to the
// given one, by scanning the upward relations of the first node.
func (e *Engine) findExistingSide(sideTopo topology.Topology, sideNodes []core.Entity) core.Entity {
	if len(sideNodes) == 0 {
		return core.InvalidEntity
	}
	for _, rel := range e.graph.Relations(sideNodes[0], e.sideRank) {
		cand := rel.Target
		if e.buckets.Topology(cand) != sideTopo {
			continue
		}
		candNodes := e.graph.Targets(cand, core.NodeRank)
		if ok, _ := topology.EquivalentNodes(sideTopo, candNodes, sideNodes); ok {
			return cand
		}
	}
	return core.InvalidEntity
}
