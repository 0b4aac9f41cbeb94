package engine

import (
	"fmt"
	"slices"

	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/internal/connectivity"
	"github.com/hupe1980/meshgo/part"
)

// verifyConsistency re-derives the structural invariants from scratch and
// panics on local defects: a broken relation pair or part set means engine
// state was corrupted, not misused. Cross-rank asymmetries are reported
// through the collective error gate instead, so the ranks stay in lockstep.
func (e *Engine) verifyConsistency() {
	e.entities.ForEach(func(ent core.Entity, key core.EntityKey) {
		for r := 0; r < int(core.NumRanks); r++ {
			for _, rel := range e.graph.Relations(ent, core.Rank(r)) {
				if !e.entities.IsLive(rel.Target) {
					panic(fmt.Sprintf("engine: %s relates to dead entity handle %d", key, rel.Target))
				}
				back := e.graph.Relations(rel.Target, key.Rank)
				mirrored := slices.ContainsFunc(back, func(b connectivity.Relation) bool {
					return b.Target == ent && b.Ordinal == rel.Ordinal
				})
				if !mirrored {
					panic(fmt.Sprintf("engine: relation %s -> %s ordinal %d has no mirror", key, e.entities.Key(rel.Target), rel.Ordinal))
				}
			}
		}

		for _, ord := range e.inducedOnto(ent) {
			if !e.buckets.Member(ent, ord) {
				panic(fmt.Sprintf("engine: %s missing induced part ordinal %d", key, ord))
			}
		}

		// Closure: everything above node rank must reach at least one node.
		// Reachable by the application (declare an element, never relate
		// it), so it goes through the error gate rather than panicking.
		if key.Rank > core.NodeRank && key.Rank < core.ConstraintRank {
			if len(e.graph.Relations(ent, core.NodeRank)) == 0 {
				e.addParallelError("%s has no node relation", key)
			}
		}

		owned := e.entities.Owner(ent) == e.Rank()
		if owned != e.buckets.Member(ent, part.LocallyOwnedOrdinal) {
			panic(fmt.Sprintf("engine: %s owned-part membership disagrees with owner %d", key, e.entities.Owner(ent)))
		}
		if e.commDB.IsShared(key) != e.buckets.Member(ent, part.GloballySharedOrdinal) {
			panic(fmt.Sprintf("engine: %s shared-part membership disagrees with comm map", key))
		}
	})

	if e.machine.Size() > 1 {
		e.verifySharingSymmetry()
	}
}

// verifySharingSymmetry checks that every sharing record has its mirror on
// the peer process. Collective.
func (e *Engine) verifySharingSymmetry() {
	send := make([]*comm.Buffer, e.machine.Size())
	e.entities.ForEach(func(ent core.Entity, key core.EntityKey) {
		for _, p := range e.commDB.SharingProcs(key) {
			if send[p] == nil {
				send[p] = comm.NewBuffer()
			}
			send[p].PackKey(key)
		}
	})

	for src, buf := range e.machine.SparseExchange(send) {
		if buf == nil {
			continue
		}
		for buf.Remaining() > 0 {
			key := buf.UnpackKey()
			if buf.Err() != nil {
				break
			}
			if _, ok := e.entities.Get(key); !ok {
				e.addParallelError("rank %d shares %s with this rank, which has no copy", src, key)
				continue
			}
			if !slices.Contains(e.commDB.SharingProcs(key), src) {
				e.addParallelError("rank %d shares %s with this rank, but not vice versa", src, key)
			}
		}
		if err := buf.Err(); err != nil {
			e.addParallelError("sharing symmetry from rank %d: %v", src, err)
		}
	}
}
