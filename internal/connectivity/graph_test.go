package connectivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshgo/core"
)

func TestDeclareSymmetry(t *testing.T) {
	g := New(int(core.NumRanks))

	elem, node := core.Entity(1), core.Entity(2)
	added := g.Declare(elem, core.ElementRank, node, core.NodeRank, 3, 0)
	require.True(t, added)

	down := g.Relations(elem, core.NodeRank)
	require.Len(t, down, 1)
	assert.Equal(t, node, down[0].Target)
	assert.Equal(t, core.Ordinal(3), down[0].Ordinal)

	up := g.Relations(node, core.ElementRank)
	require.Len(t, up, 1)
	assert.Equal(t, elem, up[0].Target)
	assert.Equal(t, core.Ordinal(3), up[0].Ordinal)
}

func TestRedeclareIsNoOp(t *testing.T) {
	g := New(int(core.NumRanks))
	g.Declare(1, core.ElementRank, 2, core.NodeRank, 0, 0)
	assert.False(t, g.Declare(1, core.ElementRank, 2, core.NodeRank, 0, 0))
	assert.Equal(t, 1, g.Num(1, core.NodeRank))
}

func TestDestroySymmetry(t *testing.T) {
	g := New(int(core.NumRanks))
	g.Declare(1, core.ElementRank, 2, core.NodeRank, 0, 0)
	g.Declare(1, core.ElementRank, 3, core.NodeRank, 1, 0)

	require.True(t, g.Destroy(1, core.ElementRank, 2, core.NodeRank, 0))
	assert.Equal(t, 1, g.Num(1, core.NodeRank))
	assert.Empty(t, g.Relations(2, core.ElementRank))
	// The surviving relation is untouched.
	require.Len(t, g.Relations(3, core.ElementRank), 1)

	assert.False(t, g.Destroy(1, core.ElementRank, 2, core.NodeRank, 0))
}

func TestOrdinalOrder(t *testing.T) {
	g := New(int(core.NumRanks))
	g.Declare(1, core.ElementRank, 4, core.NodeRank, 2, 0)
	g.Declare(1, core.ElementRank, 2, core.NodeRank, 0, 0)
	g.Declare(1, core.ElementRank, 3, core.NodeRank, 1, 0)

	assert.Equal(t, []core.Entity{2, 3, 4}, g.Targets(1, core.NodeRank))
}

func TestHasUpward(t *testing.T) {
	g := New(int(core.NumRanks))
	g.Declare(10, core.FaceRank, 2, core.NodeRank, 0, 0)

	assert.True(t, g.HasUpward(2, core.NodeRank))
	assert.False(t, g.HasUpward(10, core.FaceRank))

	g.Destroy(10, core.FaceRank, 2, core.NodeRank, 0)
	assert.False(t, g.HasUpward(2, core.NodeRank))
}
