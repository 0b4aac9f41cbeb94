package engine

import (
	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/part"
)

// RegenerateAura rebuilds the aura from scratch: every copy of the previous
// aura is dropped, then each rank ships the locally owned upward closure of
// every shared entity it holds to that entity's sharing processes. Recomputing wholesale rather than
// patching keeps the result independent of modification order, so the
// operation is idempotent on a synchronized mesh. Collective.
func (e *Engine) RegenerateAura() error {
	if err := e.requireModifiable(); err != nil {
		return err
	}

	if err := e.changeGhosting(core.AuraGhostID, nil, e.receivedGhosts(core.AuraGhostID)); err != nil {
		return err
	}
	// Copies that survived the clear (pinned by sharing or an application
	// channel) are no longer aura members unless the rebuild re-adds them.
	var stale []core.Entity
	e.entities.ForEach(func(ent core.Entity, key core.EntityKey) {
		if e.buckets.Member(ent, part.AuraOrdinal) {
			stale = append(stale, ent)
		}
	})
	for _, ent := range stale {
		e.applyPartDelta(ent, nil, part.NewOrdinalSet(part.AuraOrdinal))
	}

	var adds []GhostRequest
	requested := make(map[GhostRequest]bool)
	e.entities.ForEach(func(ent core.Entity, key core.EntityKey) {
		// Every shared entity held here contributes, whoever owns it: the
		// halo must flow from both sides of a partition boundary. Only the
		// locally owned part of the closure is shipped.
		if !e.commDB.IsShared(key) {
			return
		}
		for _, proc := range e.commDB.SharingProcs(key) {
			for _, up := range e.upwardClosure(ent) {
				if e.entities.Owner(up) != e.Rank() {
					continue
				}
				req := GhostRequest{Entity: up, Proc: proc}
				if !requested[req] {
					requested[req] = true
					adds = append(adds, req)
				}
			}
		}
	})

	return e.changeGhosting(core.AuraGhostID, adds, nil)
}

// upwardClosure returns every entity above ent reachable through upward
// relations, excluding ent itself.
func (e *Engine) upwardClosure(ent core.Entity) []core.Entity {
	visited := map[core.Entity]bool{ent: true}
	queue := []core.Entity{ent}
	var out []core.Entity
	for i := 0; i < len(queue); i++ {
		cur := queue[i]
		rank := e.entities.Key(cur).Rank
		for r := int(rank) + 1; r < int(core.NumRanks); r++ {
			for _, rel := range e.graph.Relations(cur, core.Rank(r)) {
				if !visited[rel.Target] {
					visited[rel.Target] = true
					queue = append(queue, rel.Target)
					out = append(out, rel.Target)
				}
			}
		}
	}
	return out
}
