package topology

import (
	"github.com/hupe1980/meshgo/core"
)

// NumPermutations is the number of node orderings equivalent to the canonical
// one: rotations (positive) plus rotations of the reversed order (negative).
func (t Topology) NumPermutations() int {
	switch t {
	case Node:
		return 1
	case Line2:
		return 2
	case Tri3, Tri3Planar:
		return 6
	case Quad4, Quad4Planar:
		return 8
	}
	// Volume elements and shells are never targets of a permuted relation.
	return 1
}

// NumPositivePermutations is the number of same-winding orderings; permutation
// values at or above this count have reversed winding.
func (t Topology) NumPositivePermutations() int {
	switch t {
	case Node:
		return 1
	case Line2:
		return 1
	case Tri3, Tri3Planar:
		return 3
	case Quad4, Quad4Planar:
		return 4
	}
	return 1
}

// IsPositivePermutation reports whether perm preserves winding.
func (t Topology) IsPositivePermutation(perm core.Permutation) bool {
	return int(perm) < t.NumPositivePermutations()
}

// PermutedNodes applies permutation perm to the canonical node list: positive
// permutation p rotates the list to start at position p, negative permutation
// (npos + p) reverses the list and then rotates it by p.
func PermutedNodes[T any](t Topology, perm core.Permutation, nodes []T) []T {
	n := t.NumNodes()
	if len(nodes) != n || int(perm) >= t.NumPermutations() {
		return nil
	}
	npos := t.NumPositivePermutations()
	out := make([]T, n)
	if int(perm) < npos {
		for i := 0; i < n; i++ {
			out[i] = nodes[(int(perm)+i)%n]
		}
	} else {
		p := int(perm) - npos
		for i := 0; i < n; i++ {
			out[i] = nodes[(2*n-1-p-i)%n]
		}
	}
	return out
}

// EquivalentNodes reports whether b is a permutation of a under t's symmetry
// group, and if so which permutation maps a onto b.
func EquivalentNodes[T comparable](t Topology, a, b []T) (bool, core.Permutation) {
	n := t.NumNodes()
	if len(a) != n || len(b) != n {
		return false, core.InvalidPermutation
	}
	for perm := 0; perm < t.NumPermutations(); perm++ {
		p := core.Permutation(perm)
		permuted := PermutedNodes(t, p, a)
		match := true
		for i := range permuted {
			if permuted[i] != b[i] {
				match = false
				break
			}
		}
		if match {
			return true, p
		}
	}
	return false, core.InvalidPermutation
}
