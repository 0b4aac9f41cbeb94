package meshgo_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshgo"
	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/engine"
	"github.com/hupe1980/meshgo/part"
	"github.com/hupe1980/meshgo/topology"
)

func newSerialMesh(t *testing.T, opts ...meshgo.Option) *meshgo.Mesh {
	t.Helper()
	return meshgo.New(comm.NewWorld(1).At(0), opts...)
}

func TestMeshLifecycle(t *testing.T) {
	m := newSerialMesh(t, meshgo.WithSpatialDimension(2))
	block := m.Registry().DeclareWithTopology("block_1", topology.Quad4Planar)

	assert.True(t, m.IsSynchronized())
	assert.Equal(t, uint64(0), m.SynchronizedCount())

	err := m.Modify(func(bulk *engine.Engine) error {
		elem, err := bulk.DeclareEntity(core.ElementRank, 1, block)
		if err != nil {
			return err
		}
		for i, id := range []core.EntityID{1, 2, 3, 4} {
			node, err := bulk.DeclareEntity(core.NodeRank, id)
			if err != nil {
				return err
			}
			if err := bulk.DeclareRelation(elem, node, core.Ordinal(i)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	assert.True(t, m.IsSynchronized())
	assert.Equal(t, uint64(1), m.SynchronizedCount())
	assert.Equal(t, 4, m.Count(core.NodeRank))
	assert.Equal(t, 1, m.Count(core.ElementRank))
	assert.Equal(t, 4, m.CountOwned(core.NodeRank))
	assert.Equal(t, 1, m.CountSelected(core.ElementRank, part.All(block)))
}

func TestMeshModifyErrorLeavesCycleOpen(t *testing.T) {
	m := newSerialMesh(t)
	boom := errors.New("boom")

	err := m.Modify(func(bulk *engine.Engine) error {
		if _, err := bulk.DeclareEntity(core.NodeRank, 1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// The cycle stays open so the caller can inspect or repair the partial
	// state before committing.
	assert.False(t, m.IsSynchronized())
	require.NoError(t, m.EndModification())
	assert.Equal(t, 1, m.Count(core.NodeRank))
}

func TestMeshBeginEndErrors(t *testing.T) {
	m := newSerialMesh(t)

	require.NoError(t, m.BeginModification())
	assert.ErrorIs(t, m.BeginModification(), meshgo.ErrAlreadyModifiable)
	require.NoError(t, m.EndModification())
	assert.ErrorIs(t, m.EndModification(), meshgo.ErrNotModifiable)
}

func TestMeshMetrics(t *testing.T) {
	metrics := &meshgo.BasicMetricsCollector{}
	m := newSerialMesh(t, meshgo.WithMetrics(metrics), meshgo.WithSpatialDimension(2))

	err := m.Modify(func(bulk *engine.Engine) error {
		node, err := bulk.DeclareEntity(core.NodeRank, 1)
		if err != nil {
			return err
		}
		if _, err := bulk.DeclareEntity(core.NodeRank, 2); err != nil {
			return err
		}
		_, err = bulk.DestroyEntity(node)
		return err
	})
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.ModificationCount)
	assert.Equal(t, int64(0), stats.ModificationErrors)
	assert.Equal(t, int64(2), stats.EntitiesAdded)
	assert.Equal(t, int64(1), stats.EntitiesDeleted)
}

func TestMeshParallelModify(t *testing.T) {
	counts := make(map[int]int)
	var mu sync.Mutex

	err := comm.RunSPMD(2, func(machine comm.Machine) error {
		m := meshgo.New(machine, meshgo.WithSpatialDimension(2))
		block := m.Registry().DeclareWithTopology("block_1", topology.Quad4Planar)

		err := m.Modify(func(bulk *engine.Engine) error {
			var elemID core.EntityID
			var nodeIDs []core.EntityID
			if m.Rank() == 0 {
				elemID, nodeIDs = 1, []core.EntityID{1, 2, 3, 4}
			} else {
				elemID, nodeIDs = 2, []core.EntityID{2, 5, 6, 3}
			}
			elem, err := bulk.DeclareEntity(core.ElementRank, elemID, block)
			if err != nil {
				return err
			}
			for i, id := range nodeIDs {
				node, err := bulk.DeclareEntity(core.NodeRank, id)
				if err != nil {
					return err
				}
				if err := bulk.DeclareRelation(elem, node, core.Ordinal(i)); err != nil {
					return err
				}
				if id == 2 || id == 3 {
					if err := bulk.AddNodeSharing(node, 1-m.Rank()); err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		mu.Lock()
		counts[m.Rank()] = m.CountOwned(core.ElementRank)
		mu.Unlock()

		// Both shared nodes resolve to the lowest sharing rank.
		for _, id := range []core.EntityID{2, 3} {
			node, ok := m.Bulk().Get(core.EntityKey{Rank: core.NodeRank, ID: id})
			if !ok {
				return meshgo.ErrUnknownEntity
			}
			assert.Equal(t, 0, m.Bulk().Owner(node))
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, map[int]int{0: 1, 1: 1}, counts)
}
