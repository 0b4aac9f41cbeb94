package entityrepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshgo/core"
)

func key(rank core.Rank, id core.EntityID) core.EntityKey {
	return core.EntityKey{Rank: rank, ID: id}
}

func TestDeclareAndGet(t *testing.T) {
	r := New()

	e, created := r.Declare(key(core.NodeRank, 1))
	require.True(t, created)
	require.NotEqual(t, core.InvalidEntity, e)
	assert.Equal(t, core.Created, r.State(e))

	again, created := r.Declare(key(core.NodeRank, 1))
	assert.False(t, created)
	assert.Equal(t, e, again)

	got, ok := r.Get(key(core.NodeRank, 1))
	require.True(t, ok)
	assert.Equal(t, e, got)

	_, ok = r.Get(key(core.NodeRank, 2))
	assert.False(t, ok)
}

func TestSlotZeroReserved(t *testing.T) {
	r := New()
	e, _ := r.Declare(key(core.NodeRank, 1))
	assert.Equal(t, core.Entity(1), e)
	assert.False(t, r.IsLive(core.InvalidEntity))
}

func TestDeferredSlotReuse(t *testing.T) {
	r := New()
	a, _ := r.Declare(key(core.NodeRank, 1))
	r.Destroy(a, false)

	// Freed slots are not reusable until the cycle ends.
	b, _ := r.Declare(key(core.NodeRank, 2))
	assert.NotEqual(t, a, b)

	r.FinishCycle()
	c, _ := r.Declare(key(core.NodeRank, 3))
	assert.Equal(t, a, c)
}

func TestGhostReuseKeepsHandle(t *testing.T) {
	r := New()
	k := key(core.ElementRank, 7)
	g, _ := r.Declare(k)
	r.Destroy(g, true)

	// Same key within the cycle gets the parked slot back.
	again, created := r.Declare(k)
	require.True(t, created)
	assert.Equal(t, g, again)

	// A different key must not steal a parked slot.
	r.Destroy(again, true)
	other, _ := r.Declare(key(core.ElementRank, 8))
	assert.NotEqual(t, g, other)

	// Unreclaimed parked slots are freed at cycle end.
	r.FinishCycle()
	reused, _ := r.Declare(key(core.ElementRank, 9))
	assert.Equal(t, g, reused)
}

func TestSetKeyRekeys(t *testing.T) {
	r := New()
	e, _ := r.Declare(key(core.FaceRank, 41))
	r.SetKey(e, key(core.FaceRank, 23))

	_, ok := r.Get(key(core.FaceRank, 41))
	assert.False(t, ok)
	got, ok := r.Get(key(core.FaceRank, 23))
	require.True(t, ok)
	assert.Equal(t, e, got)
	assert.Equal(t, key(core.FaceRank, 23), r.Key(e))
}

func TestStateTransitions(t *testing.T) {
	r := New()
	e, _ := r.Declare(key(core.NodeRank, 1))

	// Created is not downgraded by MarkModified.
	assert.False(t, r.MarkModified(e))
	assert.Equal(t, core.Created, r.State(e))

	r.FinishCycle()
	assert.Equal(t, core.Unchanged, r.State(e))
	assert.True(t, r.MarkModified(e))
	assert.Equal(t, core.Modified, r.State(e))
}

func TestMaxLocalID(t *testing.T) {
	r := New()
	r.Declare(key(core.NodeRank, 5))
	r.Declare(key(core.NodeRank, 17))
	r.Declare(key(core.ElementRank, 99))

	assert.Equal(t, core.EntityID(17), r.MaxLocalID(core.NodeRank))
	assert.Equal(t, core.EntityID(99), r.MaxLocalID(core.ElementRank))
	assert.Equal(t, core.EntityID(0), r.MaxLocalID(core.EdgeRank))
}
