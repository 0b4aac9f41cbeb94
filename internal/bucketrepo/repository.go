package bucketrepo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/part"
	"github.com/hupe1980/meshgo/topology"
)

// Repository owns all buckets of a mesh, organized per rank and partitioned
// by exact part set.
type Repository struct {
	numRanks   int
	partitions []map[string]*partition
	indices    map[core.Entity]MeshIndex
}

// New creates a repository for the given number of entity ranks.
func New(numRanks int) *Repository {
	r := &Repository{
		numRanks:   numRanks,
		partitions: make([]map[string]*partition, numRanks),
		indices:    make(map[core.Entity]MeshIndex),
	}
	for i := range r.partitions {
		r.partitions[i] = make(map[string]*partition)
	}
	return r
}

func fingerprint(parts part.OrdinalSet, topo topology.Topology) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "t%d:", topo)
	for _, ord := range parts {
		fmt.Fprintf(&sb, "%d,", ord)
	}
	return sb.String()
}

func (r *Repository) partitionFor(rank core.Rank, topo topology.Topology, parts part.OrdinalSet) *partition {
	fp := fingerprint(parts, topo)
	p, ok := r.partitions[rank][fp]
	if !ok {
		p = &partition{rank: rank, topo: topo, parts: parts.Clone()}
		r.partitions[rank][fp] = p
	}
	return p
}

// Add places a new entity. The part set must already include the universal
// part; callers enforce part-set invariants.
func (r *Repository) Add(e core.Entity, rank core.Rank, topo topology.Topology, parts part.OrdinalSet) MeshIndex {
	if _, ok := r.indices[e]; ok {
		panic(fmt.Sprintf("bucketrepo: entity %d already stored", e))
	}
	mi := r.partitionFor(rank, topo, parts).add(e)
	r.indices[e] = mi
	return mi
}

// Remove deletes the entity from its bucket.
func (r *Repository) Remove(e core.Entity) {
	mi, ok := r.indices[e]
	if !ok {
		return
	}
	p := r.partitionFor(mi.Bucket.rank, mi.Bucket.topo, mi.Bucket.parts)
	moved, newIdx := p.remove(mi)
	if moved != core.InvalidEntity {
		r.indices[moved] = newIdx
	}
	delete(r.indices, e)
}

// Move reassigns the entity to the bucket matching the new part set,
// preserving its topology. It returns the old and new locations so callers
// can migrate per-bucket field data.
func (r *Repository) Move(e core.Entity, parts part.OrdinalSet) (old, updated MeshIndex) {
	mi, ok := r.indices[e]
	if !ok {
		panic(fmt.Sprintf("bucketrepo: move of unstored entity %d", e))
	}
	if mi.Bucket.parts.Equal(parts) {
		return mi, mi
	}
	rank, topo := mi.Bucket.rank, mi.Bucket.topo
	r.Remove(e)
	updated = r.partitionFor(rank, topo, parts).add(e)
	r.indices[e] = updated
	return mi, updated
}

// Index returns the entity's current bucket location.
func (r *Repository) Index(e core.Entity) (MeshIndex, bool) {
	mi, ok := r.indices[e]
	return mi, ok
}

// PartOrdinals returns the entity's part set via its bucket, or nil when the
// entity is not stored.
func (r *Repository) PartOrdinals(e core.Entity) part.OrdinalSet {
	mi, ok := r.indices[e]
	if !ok {
		return nil
	}
	return mi.Bucket.parts
}

// Member reports part membership for a stored entity.
func (r *Repository) Member(e core.Entity, ord core.PartOrdinal) bool {
	mi, ok := r.indices[e]
	return ok && mi.Bucket.Member(ord)
}

// Topology returns the entity's cell topology.
func (r *Repository) Topology(e core.Entity) topology.Topology {
	mi, ok := r.indices[e]
	if !ok {
		return topology.Invalid
	}
	return mi.Bucket.topo
}

// Buckets returns all non-empty buckets of a rank, in deterministic
// (fingerprint-sorted) order.
func (r *Repository) Buckets(rank core.Rank) []*Bucket {
	fps := make([]string, 0, len(r.partitions[rank]))
	for fp := range r.partitions[rank] {
		fps = append(fps, fp)
	}
	sort.Strings(fps)

	var out []*Bucket
	for _, fp := range fps {
		for _, b := range r.partitions[rank][fp].buckets {
			if b.Len() > 0 {
				out = append(out, b)
			}
		}
	}
	return out
}

// ForEachSelected visits every entity of the rank whose bucket matches the
// selector.
func (r *Repository) ForEachSelected(rank core.Rank, sel part.Selector, fn func(e core.Entity)) {
	for _, b := range r.Buckets(rank) {
		if !sel.Matches(b.PartBitmap()) {
			continue
		}
		for i := 0; i < b.Len(); i++ {
			fn(b.EntityAt(i))
		}
	}
}

// Compact drops empty buckets and sorts entities within each bucket with the
// supplied order (normally by entity key), refreshing mesh indices. Run at
// the end of a modification cycle.
func (r *Repository) Compact(less func(a, b core.Entity) bool) {
	for rank := range r.partitions {
		for fp, p := range r.partitions[rank] {
			kept := p.buckets[:0]
			for _, b := range p.buckets {
				if b.Len() == 0 {
					continue
				}
				sort.SliceStable(b.entities, func(i, j int) bool {
					return less(b.entities[i], b.entities[j])
				})
				for i, e := range b.entities {
					r.indices[e] = MeshIndex{Bucket: b, Ordinal: i}
				}
				kept = append(kept, b)
			}
			p.buckets = kept
			if len(p.buckets) == 0 {
				delete(r.partitions[rank], fp)
			}
		}
	}
}
