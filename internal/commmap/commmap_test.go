package commmap

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshgo/core"
)

var nodeKey = core.EntityKey{Rank: core.NodeRank, ID: 1}

func TestInsertSortedSharedFirst(t *testing.T) {
	d := New()
	require.True(t, d.Insert(nodeKey, core.AuraGhostID, 2))
	require.True(t, d.Insert(nodeKey, core.SharedGhostID, 3))
	require.True(t, d.Insert(nodeKey, core.SharedGhostID, 1))
	assert.False(t, d.Insert(nodeKey, core.SharedGhostID, 1))

	entries := d.Entries(nodeKey)
	require.Len(t, entries, 3)
	assert.Equal(t, Entry{GhostID: core.SharedGhostID, Proc: 1}, entries[0])
	assert.Equal(t, Entry{GhostID: core.SharedGhostID, Proc: 3}, entries[1])
	assert.Equal(t, Entry{GhostID: core.AuraGhostID, Proc: 2}, entries[2])
}

func TestSharedAndGhostQueries(t *testing.T) {
	d := New()
	d.Insert(nodeKey, core.SharedGhostID, 1)
	d.Insert(nodeKey, core.AuraGhostID, 2)

	assert.True(t, d.IsShared(nodeKey))
	assert.Equal(t, []int{1}, d.SharingProcs(nodeKey))
	assert.True(t, d.IsGhostedTo(nodeKey, core.AuraGhostID, 2))
	assert.False(t, d.IsGhostedTo(nodeKey, core.AuraGhostID, 1))
	assert.True(t, d.HasGhosting(nodeKey, core.AuraGhostID))
	assert.False(t, d.HasGhosting(nodeKey, core.GhostID(5)))

	other := core.EntityKey{Rank: core.NodeRank, ID: 9}
	assert.False(t, d.IsShared(other))
	assert.Empty(t, d.SharingProcs(other))
}

func TestEraseVariants(t *testing.T) {
	d := New()
	d.Insert(nodeKey, core.SharedGhostID, 1)
	d.Insert(nodeKey, core.AuraGhostID, 1)
	d.Insert(nodeKey, core.AuraGhostID, 2)

	require.True(t, d.Erase(nodeKey, core.AuraGhostID, 1))
	assert.False(t, d.Erase(nodeKey, core.AuraGhostID, 1))

	require.True(t, d.EraseGhosting(nodeKey, core.AuraGhostID))
	assert.True(t, d.IsShared(nodeKey))

	d.EraseAll(nodeKey)
	assert.Empty(t, d.Entries(nodeKey))
}

func TestSharingBitmapIntersection(t *testing.T) {
	d := New()
	a := core.EntityKey{Rank: core.NodeRank, ID: 1}
	b := core.EntityKey{Rank: core.NodeRank, ID: 2}
	for _, p := range []int{1, 2, 3} {
		d.Insert(a, core.SharedGhostID, p)
	}
	for _, p := range []int{2, 3, 4} {
		d.Insert(b, core.SharedGhostID, p)
	}

	common := roaring.And(d.SharingBitmap(a), d.SharingBitmap(b))
	assert.Equal(t, []uint32{2, 3}, common.ToArray())
}

func TestRekeyAndSortedKeys(t *testing.T) {
	d := New()
	faceA := core.EntityKey{Rank: core.FaceRank, ID: 40}
	faceB := core.EntityKey{Rank: core.FaceRank, ID: 12}
	d.Insert(faceA, core.SharedGhostID, 1)
	d.Insert(faceB, core.SharedGhostID, 1)
	d.Insert(nodeKey, core.SharedGhostID, 1)

	d.Rekey(faceA, core.EntityKey{Rank: core.FaceRank, ID: 7})

	keys := d.SortedKeys()
	require.Len(t, keys, 3)
	assert.Equal(t, nodeKey, keys[0])
	assert.Equal(t, core.EntityID(7), keys[1].ID)
	assert.Equal(t, core.EntityID(12), keys[2].ID)
}
