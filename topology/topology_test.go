package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshgo/core"
)

func TestSideDecomposition(t *testing.T) {
	tests := []struct {
		topo     Topology
		numSides int
		sideTopo Topology
		sideRank core.Rank
	}{
		{Quad4Planar, 4, Line2, core.EdgeRank},
		{Tri3Planar, 3, Line2, core.EdgeRank},
		{Tet4, 4, Tri3, core.FaceRank},
		{Hex8, 6, Quad4, core.FaceRank},
		{ShellQuad4, 2, Quad4, core.FaceRank},
	}
	for _, tt := range tests {
		t.Run(tt.topo.String(), func(t *testing.T) {
			assert.Equal(t, tt.numSides, tt.topo.NumSides())
			assert.Equal(t, tt.sideRank, tt.topo.SideRank())
			for ord := 0; ord < tt.numSides; ord++ {
				assert.Equal(t, tt.sideTopo, tt.topo.SideTopology(core.Ordinal(ord)))
			}
		})
	}
}

func TestQuadSideNodes(t *testing.T) {
	// Two planar quads {0,1,2,3} and {2,3,4,5} share the edge {2,3}: it is
	// side 2 of the first (forward) and side 0 of the second (also forward,
	// as {3,2} reversed).
	first := SideNodes(Quad4Planar, []int{0, 1, 2, 3}, 2)
	second := SideNodes(Quad4Planar, []int{2, 3, 4, 5}, 0)
	assert.Equal(t, []int{2, 3}, first)
	assert.Equal(t, []int{2, 3}, second)
}

func TestHexFacesCoverAllNodes(t *testing.T) {
	seen := make(map[int]bool)
	for ord := 0; ord < Hex8.NumSides(); ord++ {
		nodes := Hex8.SideNodeOrdinals(core.Ordinal(ord))
		require.Len(t, nodes, 4)
		for _, n := range nodes {
			seen[n] = true
		}
	}
	assert.Len(t, seen, 8)
}

func TestPermutedNodesRoundTrip(t *testing.T) {
	nodes := []int{10, 11, 12, 13}
	for perm := 0; perm < Quad4.NumPermutations(); perm++ {
		p := core.Permutation(perm)
		permuted := PermutedNodes(Quad4, p, nodes)
		require.NotNil(t, permuted)

		ok, found := EquivalentNodes(Quad4, nodes, permuted)
		require.True(t, ok, "permutation %d not recognized", perm)
		assert.Equal(t, p, found)
	}
}

func TestEquivalentNodesNegative(t *testing.T) {
	// Reversed triangle winding must match through a negative permutation.
	ok, perm := EquivalentNodes(Tri3, []int{1, 2, 3}, []int{1, 3, 2})
	require.True(t, ok)
	assert.False(t, Tri3.IsPositivePermutation(perm))

	ok, _ = EquivalentNodes(Tri3, []int{1, 2, 3}, []int{1, 2, 4})
	assert.False(t, ok)
}

func TestShellPolarityPair(t *testing.T) {
	// The two sides of a shell are the same face with opposite winding.
	front := SideNodes(ShellQuad4, []int{0, 1, 2, 3}, 0)
	back := SideNodes(ShellQuad4, []int{0, 1, 2, 3}, 1)

	ok, perm := EquivalentNodes(Quad4, front, back)
	require.True(t, ok)
	assert.False(t, Quad4.IsPositivePermutation(perm))
}
