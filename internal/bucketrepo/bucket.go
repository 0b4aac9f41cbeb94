// Package bucketrepo groups entities into buckets: homogeneous, contiguous
// storage for all entities of one rank with an identical part set and
// topology. Buckets are owned by partitions (one partition per distinct part
// set), partitions by the per-rank repository.
package bucketrepo

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/part"
	"github.com/hupe1980/meshgo/topology"
)

// DefaultCapacity is the number of entities a bucket holds before its
// partition opens the next one.
const DefaultCapacity = 512

// Bucket is homogeneous entity storage. The part set and topology are fixed
// at creation; entities move to a different bucket when their membership
// changes.
type Bucket struct {
	rank     core.Rank
	topo     topology.Topology
	parts    part.OrdinalSet
	partBM   *roaring.Bitmap
	entities []core.Entity
}

func newBucket(rank core.Rank, topo topology.Topology, parts part.OrdinalSet) *Bucket {
	return &Bucket{
		rank:     rank,
		topo:     topo,
		parts:    parts.Clone(),
		partBM:   parts.Bitmap(),
		entities: make([]core.Entity, 0, DefaultCapacity),
	}
}

// Rank returns the entity rank stored here.
func (b *Bucket) Rank() core.Rank { return b.rank }

// Topology returns the cell topology of every entity in the bucket.
func (b *Bucket) Topology() topology.Topology { return b.topo }

// Len returns the number of entities.
func (b *Bucket) Len() int { return len(b.entities) }

// EntityAt returns the entity at bucket ordinal i.
func (b *Bucket) EntityAt(i int) core.Entity { return b.entities[i] }

// PartOrdinals returns the bucket's sorted part set. Shared; do not mutate.
func (b *Bucket) PartOrdinals() part.OrdinalSet { return b.parts }

// PartBitmap returns the part set as a Roaring bitmap for selector
// evaluation. Shared; do not mutate.
func (b *Bucket) PartBitmap() *roaring.Bitmap { return b.partBM }

// Member reports whether the bucket (and so every entity in it) belongs to
// the part with the given ordinal.
func (b *Bucket) Member(ord core.PartOrdinal) bool { return b.parts.Contains(ord) }

// MeshIndex locates an entity inside a bucket. It changes whenever the
// entity moves buckets or the bucket is compacted.
type MeshIndex struct {
	Bucket  *Bucket
	Ordinal int
}

// partition is the set of buckets sharing one exact part set.
type partition struct {
	rank    core.Rank
	topo    topology.Topology
	parts   part.OrdinalSet
	buckets []*Bucket
}

// add places e into the partition's last open bucket.
func (p *partition) add(e core.Entity) MeshIndex {
	var b *Bucket
	if n := len(p.buckets); n > 0 && p.buckets[n-1].Len() < DefaultCapacity {
		b = p.buckets[n-1]
	} else {
		b = newBucket(p.rank, p.topo, p.parts)
		p.buckets = append(p.buckets, b)
	}
	b.entities = append(b.entities, e)
	return MeshIndex{Bucket: b, Ordinal: b.Len() - 1}
}

// remove deletes the entity at mi by swapping the bucket's last entity into
// the hole. It returns the entity that moved and its new index, or
// core.InvalidEntity when the hole was last.
func (p *partition) remove(mi MeshIndex) (core.Entity, MeshIndex) {
	b := mi.Bucket
	last := b.Len() - 1
	moved := core.InvalidEntity
	if mi.Ordinal != last {
		moved = b.entities[last]
		b.entities[mi.Ordinal] = moved
	}
	b.entities = b.entities[:last]
	if moved == core.InvalidEntity {
		return core.InvalidEntity, MeshIndex{}
	}
	return moved, MeshIndex{Bucket: b, Ordinal: mi.Ordinal}
}
