// Package connectivity stores per-entity adjacency lists keyed by rank, with
// ordinals and permutations recording local orientation. Relations are always
// symmetric: declaring element→node also records node→element, under the same
// ordinal.
package connectivity

import (
	"slices"

	"github.com/hupe1980/meshgo/core"
)

// Relation is one adjacency entry.
type Relation struct {
	Target      core.Entity
	Ordinal     core.Ordinal
	Permutation core.Permutation
}

// Graph holds the whole process-local connectivity. Downward lists (element
// to face/edge/node) have topology-fixed cardinality; upward lists are
// unbounded.
type Graph struct {
	numRanks int
	adj      map[core.Entity][][]Relation
}

// New creates an empty graph for the given number of ranks.
func New(numRanks int) *Graph {
	return &Graph{
		numRanks: numRanks,
		adj:      make(map[core.Entity][][]Relation),
	}
}

func (g *Graph) lists(e core.Entity) [][]Relation {
	l, ok := g.adj[e]
	if !ok {
		l = make([][]Relation, g.numRanks)
		g.adj[e] = l
	}
	return l
}

func insertRelation(list []Relation, rel Relation) ([]Relation, bool) {
	i, found := slices.BinarySearchFunc(list, rel, func(a, b Relation) int {
		if a.Ordinal != b.Ordinal {
			return int(a.Ordinal) - int(b.Ordinal)
		}
		return int(a.Target) - int(b.Target)
	})
	if found {
		if list[i].Permutation != rel.Permutation {
			list[i].Permutation = rel.Permutation
			return list, true
		}
		return list, false
	}
	return slices.Insert(list, i, rel), true
}

// Declare records the symmetric pair of adjacency entries. It returns false
// when the identical relation already existed (a no-op re-declare).
func (g *Graph) Declare(from core.Entity, fromRank core.Rank, to core.Entity, toRank core.Rank, ord core.Ordinal, perm core.Permutation) bool {
	fwd := g.lists(from)
	var added bool
	fwd[toRank], added = insertRelation(fwd[toRank], Relation{Target: to, Ordinal: ord, Permutation: perm})

	back := g.lists(to)
	var backAdded bool
	back[fromRank], backAdded = insertRelation(back[fromRank], Relation{Target: from, Ordinal: ord, Permutation: perm})

	return added || backAdded
}

// Destroy removes the symmetric pair. It returns false when no such relation
// exists.
func (g *Graph) Destroy(from core.Entity, fromRank core.Rank, to core.Entity, toRank core.Rank, ord core.Ordinal) bool {
	removed := g.removeOne(from, toRank, to, ord)
	if removed {
		g.removeOne(to, fromRank, from, ord)
	}
	return removed
}

func (g *Graph) removeOne(e core.Entity, rank core.Rank, target core.Entity, ord core.Ordinal) bool {
	lists, ok := g.adj[e]
	if !ok {
		return false
	}
	list := lists[rank]
	for i, rel := range list {
		if rel.Target == target && rel.Ordinal == ord {
			lists[rank] = slices.Delete(list, i, i+1)
			return true
		}
	}
	return false
}

// Relations returns the adjacency list of e toward the given rank. Shared;
// do not mutate. Invalidated by any Declare/Destroy touching e.
func (g *Graph) Relations(e core.Entity, rank core.Rank) []Relation {
	lists, ok := g.adj[e]
	if !ok {
		return nil
	}
	return lists[rank]
}

// Num returns the adjacency count of e toward the given rank.
func (g *Graph) Num(e core.Entity, rank core.Rank) int {
	return len(g.Relations(e, rank))
}

// HasUpward reports whether e has any relation to a rank above its own.
func (g *Graph) HasUpward(e core.Entity, rank core.Rank) bool {
	lists, ok := g.adj[e]
	if !ok {
		return false
	}
	for r := int(rank) + 1; r < g.numRanks; r++ {
		if len(lists[r]) > 0 {
			return true
		}
	}
	return false
}

// Targets collects the relation targets of e toward a rank, in ordinal order.
func (g *Graph) Targets(e core.Entity, rank core.Rank) []core.Entity {
	rels := g.Relations(e, rank)
	if len(rels) == 0 {
		return nil
	}
	out := make([]core.Entity, len(rels))
	for i, rel := range rels {
		out[i] = rel.Target
	}
	return out
}

// RemoveEntity drops e's adjacency storage. The caller is responsible for
// having destroyed all symmetric entries first.
func (g *Graph) RemoveEntity(e core.Entity) {
	delete(g.adj, e)
}
