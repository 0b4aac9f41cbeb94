package engine

import (
	"fmt"

	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/part"
	"github.com/hupe1980/meshgo/topology"
)

// Entity packet layout, shared by ghost distribution and ownership transfer:
// key, owner, topology, user part ordinals, downward relations (by key, so
// the receiver resolves its own handles), then the field blob. Entities are
// always packed in ascending rank order so relation targets exist on the
// receiver by the time they are referenced.

type wireRelation struct {
	key     core.EntityKey
	ordinal core.Ordinal
	perm    core.Permutation
}

type wireEntity struct {
	key       core.EntityKey
	owner     int
	topo      topology.Topology
	parts     part.OrdinalSet
	relations []wireRelation
}

// packEntityState encodes ent and its field values.
func (e *Engine) packEntityState(b *comm.Buffer, ent core.Entity) {
	key := e.entities.Key(ent)
	b.PackKey(key)
	b.PackI32(int32(e.entities.Owner(ent)))
	b.PackU8(uint8(e.buckets.Topology(ent)))

	var user part.OrdinalSet
	for _, ord := range e.buckets.PartOrdinals(ent) {
		if p := e.registry.Get(ord); p != nil && !p.IsInternal() {
			user = user.Insert(ord)
		}
	}
	b.PackU16(uint16(len(user)))
	for _, ord := range user {
		b.PackU32(uint32(ord))
	}

	var rels []wireRelation
	for r := 0; r < int(key.Rank); r++ {
		for _, rel := range e.graph.Relations(ent, core.Rank(r)) {
			rels = append(rels, wireRelation{
				key:     e.entities.Key(rel.Target),
				ordinal: rel.Ordinal,
				perm:    rel.Permutation,
			})
		}
	}
	b.PackU16(uint16(len(rels)))
	for _, rel := range rels {
		b.PackKey(rel.key)
		b.PackU16(uint16(rel.ordinal))
		b.PackU8(uint8(rel.perm))
	}

	e.packEntityFields(b, ent)
}

// unpackEntityState decodes one entity header. The field blob stays in the
// stream; the caller unpacks it once the entity exists locally.
func unpackEntityState(b *comm.Buffer) (wireEntity, error) {
	var w wireEntity
	w.key = b.UnpackKey()
	w.owner = int(b.UnpackI32())
	w.topo = topology.Topology(b.UnpackU8())

	nparts := int(b.UnpackU16())
	for i := 0; i < nparts; i++ {
		w.parts = w.parts.Insert(core.PartOrdinal(b.UnpackU32()))
	}

	nrels := int(b.UnpackU16())
	for i := 0; i < nrels; i++ {
		w.relations = append(w.relations, wireRelation{
			key:     b.UnpackKey(),
			ordinal: core.Ordinal(b.UnpackU16()),
			perm:    core.Permutation(b.UnpackU8()),
		})
	}
	return w, b.Err()
}

// applyReceivedEntity materializes a packed entity: creates it when unknown
// (as a ghost or a fresh owned copy, per owner), merges part membership when
// it already exists, and wires its downward relations. The field blob follows
// the header in b and is consumed here.
func (e *Engine) applyReceivedEntity(b *comm.Buffer, w wireEntity) (core.Entity, error) {
	ent, ok := e.entities.Get(w.key)
	if !ok {
		all := w.parts.Clone().Insert(part.UniversalOrdinal)
		if w.owner == e.Rank() {
			all = all.Insert(part.LocallyOwnedOrdinal)
		}
		ent, _ = e.entities.Declare(w.key)
		e.entities.SetOwner(ent, w.owner)
		e.buckets.Add(ent, w.key.Rank, w.topo, all)
		e.notifyAdded(w.key)
	} else {
		e.entities.SetOwner(ent, w.owner)
		e.applyPartDelta(ent, w.parts, nil)
	}

	for _, rel := range w.relations {
		target, ok := e.entities.Get(rel.key)
		if !ok {
			return ent, fmt.Errorf("received %s references unknown %s", w.key, rel.key)
		}
		e.graph.Declare(ent, w.key.Rank, target, rel.key.Rank, rel.ordinal, rel.perm)
	}

	return ent, e.unpackEntityFields(b, ent)
}
