package engine

import (
	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
)

// resolveParallelCreate turns entities created independently on several ranks
// into single global entities. Sharing of nodes is declared explicitly
// (AddNodeSharing); sharing of everything above follows from it: an entity
// whose nodes are all shared with a common process is proposed to that
// process, matched there by rank, topology and sorted node-key list, and the matched
// copies converge on one key: the smallest proposed id wins (ties are the
// same id, so every rank computes the same winner without another round).
func (e *Engine) resolveParallelCreate() {
	for node, procs := range e.nodeSharing {
		if !e.entities.IsLive(node) {
			continue
		}
		key := e.entities.Key(node)
		for _, p := range procs {
			e.commDB.Insert(key, core.SharedGhostID, p)
		}
	}
	clear(e.nodeSharing)

	// Candidates: touched entities above node rank whose node set is fully
	// shared with at least one common remote process. Modified entities
	// participate too; an entity that pre-exists on one rank and is created
	// fresh on another meets in the middle (the pre-existing copy was marked
	// modified when sharing was added to its nodes).
	type candidate struct {
		ent   core.Entity
		procs []int
	}
	var cands []candidate
	bySig := make(map[string]int)
	e.entities.ForEach(func(ent core.Entity, key core.EntityKey) {
		if key.Rank == core.NodeRank || e.entities.State(ent) == core.Unchanged {
			return
		}
		nodes := e.graph.Targets(ent, core.NodeRank)
		if len(nodes) == 0 {
			return
		}
		inter := e.commDB.SharingBitmap(e.entities.Key(nodes[0]))
		for _, n := range nodes[1:] {
			if inter.IsEmpty() {
				return
			}
			inter.And(e.commDB.SharingBitmap(e.entities.Key(n)))
		}
		if inter.IsEmpty() {
			return
		}
		c := candidate{ent: ent}
		it := inter.Iterator()
		for it.HasNext() {
			c.procs = append(c.procs, int(it.Next()))
		}
		bySig[e.entitySignature(ent)] = len(cands)
		cands = append(cands, c)
	})

	send := make([]*comm.Buffer, e.machine.Size())
	for _, c := range cands {
		key := e.entities.Key(c.ent)
		nodeIDs := e.sortedNodeIDs(c.ent)
		for _, p := range c.procs {
			if send[p] == nil {
				send[p] = comm.NewBuffer()
			}
			b := send[p]
			b.PackU8(uint8(key.Rank))
			b.PackU8(uint8(e.Topology(c.ent)))
			b.PackU64(uint64(key.ID))
			b.PackU16(uint16(len(nodeIDs)))
			for _, id := range nodeIDs {
				b.PackU64(uint64(id))
			}
		}
	}

	type match struct {
		proc int
		id   core.EntityID
	}
	matches := make(map[int][]match)
	for src, buf := range e.machine.SparseExchange(send) {
		if buf == nil {
			continue
		}
		for buf.Remaining() > 0 {
			rank := core.Rank(buf.UnpackU8())
			topo := buf.UnpackU8()
			id := core.EntityID(buf.UnpackU64())
			n := int(buf.UnpackU16())
			sig := make([]byte, 0, 2+8*n)
			sig = append(sig, byte(rank), topo)
			for i := 0; i < n; i++ {
				sb := buf.UnpackU64()
				sig = appendU64(sig, sb)
			}
			if buf.Err() != nil {
				break
			}
			if idx, ok := bySig[string(sig)]; ok {
				matches[idx] = append(matches[idx], match{proc: src, id: id})
			}
		}
		if err := buf.Err(); err != nil {
			e.addParallelError("create proposals from rank %d: %v", src, err)
		}
	}

	for idx, ms := range matches {
		c := cands[idx]
		oldKey := e.entities.Key(c.ent)
		winner := oldKey.ID
		for _, m := range ms {
			if m.id < winner {
				winner = m.id
			}
		}
		newKey := core.EntityKey{Rank: oldKey.Rank, ID: winner}
		if newKey != oldKey {
			if _, taken := e.entities.Get(newKey); taken {
				e.addParallelError("create resolution: key %s already in use here (was %s)", newKey, oldKey)
				continue
			}
			e.entities.SetKey(c.ent, newKey)
			e.commDB.Rekey(oldKey, newKey)
			e.logger.Debugf("create resolution: %s rekeyed to %s", oldKey, newKey)
		}
		for _, m := range ms {
			e.commDB.Insert(newKey, core.SharedGhostID, m.proc)
		}
	}
}

// entitySignature is the matching key of create resolution: rank and
// topology bytes plus the sorted global ids of the entity's nodes. The
// topology keeps, say, a shell and its coincident volume face from matching
// on node set alone.
func (e *Engine) entitySignature(ent core.Entity) string {
	sig := []byte{byte(e.entities.Key(ent).Rank), byte(e.Topology(ent))}
	for _, id := range e.sortedNodeIDs(ent) {
		sig = appendU64(sig, uint64(id))
	}
	return string(sig)
}

func (e *Engine) sortedNodeIDs(ent core.Entity) []core.EntityID {
	nodes := e.graph.Targets(ent, core.NodeRank)
	ids := make([]core.EntityID, len(nodes))
	for i, n := range nodes {
		ids[i] = e.entities.Key(n).ID
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

func appendU64(b []byte, v uint64) []byte {
	return append(b,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}
