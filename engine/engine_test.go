package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/part"
	"github.com/hupe1980/meshgo/topology"
)

func newSerialEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return New(comm.NewWorld(1).At(0), part.NewRegistry(), opts...)
}

// declareQuad builds one 2D quad element with the given element and node ids,
// declaring missing nodes on the fly.
func declareQuad(t *testing.T, e *Engine, block *part.Part, elemID core.EntityID, nodeIDs [4]core.EntityID) core.Entity {
	t.Helper()
	elem, err := e.DeclareEntity(core.ElementRank, elemID, block)
	require.NoError(t, err)
	for i, id := range nodeIDs {
		node, err := e.DeclareEntity(core.NodeRank, id)
		require.NoError(t, err)
		require.NoError(t, e.DeclareRelation(elem, node, core.Ordinal(i)))
	}
	return elem
}

func TestEntityLifecycle(t *testing.T) {
	e := newSerialEngine(t)

	_, err := e.DeclareEntity(core.NodeRank, 1)
	assert.ErrorIs(t, err, ErrNotModifiable)

	require.NoError(t, e.ModificationBegin())
	assert.ErrorIs(t, e.ModificationBegin(), ErrAlreadyModifiable)

	node, err := e.DeclareEntity(core.NodeRank, 1)
	require.NoError(t, err)
	assert.True(t, e.IsValid(node))
	assert.Equal(t, core.EntityKey{Rank: core.NodeRank, ID: 1}, e.Key(node))
	assert.Equal(t, core.Created, e.State(node))
	assert.Equal(t, 0, e.Owner(node))
	assert.True(t, e.Member(node, e.Registry().Universal()))
	assert.True(t, e.Member(node, e.Registry().LocallyOwned()))
	assert.Equal(t, topology.Node, e.Topology(node))

	// Re-declaring returns the same handle.
	again, err := e.DeclareEntity(core.NodeRank, 1)
	require.NoError(t, err)
	assert.Equal(t, node, again)

	require.NoError(t, e.ModificationEnd())
	assert.Equal(t, uint64(1), e.SynchronizedCount())
	assert.Equal(t, core.Unchanged, e.State(node))
	assert.False(t, e.InModification())
}

func TestDeclareEntityValidation(t *testing.T) {
	e := newSerialEngine(t)
	require.NoError(t, e.ModificationBegin())

	_, err := e.DeclareEntity(core.NodeRank, 0)
	var keyErr *ErrInvalidKey
	assert.ErrorAs(t, err, &keyErr)

	_, err = e.DeclareEntity(core.FaceRank, 1)
	assert.ErrorAs(t, err, &keyErr, "side rank must go through DeclareElementSide")

	_, err = e.DeclareEntity(core.NodeRank, 1, e.Registry().LocallyOwned())
	assert.ErrorIs(t, err, ErrInternalPart)
}

func TestMaxIDCap(t *testing.T) {
	e := newSerialEngine(t, WithMaxID(100))
	require.NoError(t, e.ModificationBegin())

	_, err := e.DeclareEntity(core.NodeRank, 100)
	assert.NoError(t, err)
	_, err = e.DeclareEntity(core.NodeRank, 101)
	var keyErr *ErrInvalidKey
	assert.ErrorAs(t, err, &keyErr)
}

func TestInductionFollowsRelations(t *testing.T) {
	e := newSerialEngine(t, WithSpatialDimension(2))
	block := e.Registry().DeclareWithTopology("block_1", topology.Quad4Planar)
	require.NoError(t, e.ModificationBegin())

	elem := declareQuad(t, e, block, 1, [4]core.EntityID{1, 2, 3, 4})

	for _, rel := range e.Connectivity(elem, core.NodeRank) {
		assert.True(t, e.Member(rel.Target, block), "block membership induces onto nodes")
	}

	// A directly requested removal of an induced part is vetoed.
	node, ok := e.Get(core.EntityKey{Rank: core.NodeRank, ID: 2})
	require.True(t, ok)
	require.NoError(t, e.ChangeEntityParts(node, nil, []*part.Part{block}))
	assert.True(t, e.Member(node, block))

	// Severing the relation removes the unjustified membership.
	destroyed, err := e.DestroyRelation(elem, node, 1)
	require.NoError(t, err)
	require.True(t, destroyed)
	assert.False(t, e.Member(node, block))
}

func TestInductionMultiplicity(t *testing.T) {
	e := newSerialEngine(t, WithSpatialDimension(2))
	block := e.Registry().DeclareWithTopology("block_1", topology.Quad4Planar)
	require.NoError(t, e.ModificationBegin())

	elem1 := declareQuad(t, e, block, 1, [4]core.EntityID{1, 2, 3, 4})
	declareQuad(t, e, block, 2, [4]core.EntityID{2, 5, 6, 3})

	shared, ok := e.Get(core.EntityKey{Rank: core.NodeRank, ID: 2})
	require.True(t, ok)

	// Node 2 sits in both elements; severing one relation keeps the part.
	destroyed, err := e.DestroyRelation(elem1, shared, 1)
	require.NoError(t, err)
	require.True(t, destroyed)
	assert.True(t, e.Member(shared, block), "membership still justified by the second element")
}

func TestDestroyBlockedByUpwardConnectivity(t *testing.T) {
	e := newSerialEngine(t, WithSpatialDimension(2))
	block := e.Registry().DeclareWithTopology("block_1", topology.Quad4Planar)
	require.NoError(t, e.ModificationBegin())

	elem := declareQuad(t, e, block, 1, [4]core.EntityID{1, 2, 3, 4})
	node, ok := e.Get(core.EntityKey{Rank: core.NodeRank, ID: 1})
	require.True(t, ok)

	destroyed, err := e.DestroyEntity(node)
	require.NoError(t, err)
	assert.False(t, destroyed, "node pinned by its element")

	destroyed, err = e.DestroyEntity(elem)
	require.NoError(t, err)
	require.True(t, destroyed)

	destroyed, err = e.DestroyEntity(node)
	require.NoError(t, err)
	assert.True(t, destroyed)
	assert.False(t, e.IsValid(node))
}

func TestVerificationFlagsEntityWithoutNodes(t *testing.T) {
	e := newSerialEngine(t, WithSpatialDimension(2), WithVerification(true))
	block := e.Registry().DeclareWithTopology("block_1", topology.Quad4Planar)
	require.NoError(t, e.ModificationBegin())

	// An element left without a single node relation breaks the closure
	// invariant; the verification pass must catch it at cycle end.
	_, err := e.DeclareEntity(core.ElementRank, 1, block)
	require.NoError(t, err)

	var pErr *ParallelError
	require.ErrorAs(t, e.ModificationEnd(), &pErr)
	assert.NotEmpty(t, pErr.Local)
	assert.False(t, pErr.PeerFailed)
}

func TestDeclareElementSideSharedEdge(t *testing.T) {
	e := newSerialEngine(t, WithSpatialDimension(2))
	block := e.Registry().DeclareWithTopology("block_1", topology.Quad4Planar)
	sideset := e.Registry().DeclareRanked("surface_1", core.EdgeRank)
	require.NoError(t, e.ModificationBegin())

	elem1 := declareQuad(t, e, block, 1, [4]core.EntityID{1, 2, 3, 4})
	elem2 := declareQuad(t, e, block, 2, [4]core.EntityID{2, 5, 6, 3})

	// The edge between nodes 2 and 3 is side 1 of element 1.
	side, err := e.DeclareElementSide(elem1, 1, sideset)
	require.NoError(t, err)
	assert.Equal(t, core.EntityKey{Rank: core.EdgeRank, ID: 12}, e.Key(side))
	assert.Equal(t, topology.Line2, e.Topology(side))
	assert.True(t, e.Member(side, sideset))

	// Element 2 shares the edge's node set and was attached automatically,
	// through its own side ordinal 3.
	rels := e.Connectivity(side, core.ElementRank)
	require.Len(t, rels, 2)
	byElem := map[core.Entity]core.Ordinal{}
	for _, rel := range rels {
		byElem[rel.Target] = rel.Ordinal
	}
	assert.Equal(t, core.Ordinal(1), byElem[elem1])
	assert.Equal(t, core.Ordinal(3), byElem[elem2])

	// Declaring the equivalent side from element 2 finds the same entity.
	same, err := e.DeclareElementSide(elem2, 3)
	require.NoError(t, err)
	assert.Equal(t, side, same)

	// The side is pinned by its attached elements.
	destroyed, err := e.DestroyEntity(side)
	require.NoError(t, err)
	assert.False(t, destroyed)
}

func TestDeclareElementSideOrdinalOutOfRange(t *testing.T) {
	e := newSerialEngine(t, WithSpatialDimension(2))
	block := e.Registry().DeclareWithTopology("block_1", topology.Quad4Planar)
	require.NoError(t, e.ModificationBegin())

	elem := declareQuad(t, e, block, 1, [4]core.EntityID{1, 2, 3, 4})
	_, err := e.DeclareElementSide(elem, 4)
	var keyErr *ErrInvalidKey
	assert.ErrorAs(t, err, &keyErr)
}

func TestHexFaceDeclaration(t *testing.T) {
	e := newSerialEngine(t)
	block := e.Registry().DeclareWithTopology("block_1", topology.Hex8)
	require.NoError(t, e.ModificationBegin())

	elem, err := e.DeclareEntity(core.ElementRank, 1, block)
	require.NoError(t, err)
	for i := core.EntityID(1); i <= 8; i++ {
		node, err := e.DeclareEntity(core.NodeRank, i)
		require.NoError(t, err)
		require.NoError(t, e.DeclareRelation(elem, node, core.Ordinal(i-1)))
	}

	face, err := e.DeclareElementSide(elem, 0)
	require.NoError(t, err)
	assert.Equal(t, core.EntityKey{Rank: core.FaceRank, ID: 11}, e.Key(face))
	assert.Equal(t, topology.Quad4, e.Topology(face))
	assert.Len(t, e.Connectivity(face, core.NodeRank), 4)
}

func TestFieldData(t *testing.T) {
	e := newSerialEngine(t)
	coords, err := e.DeclareField("coordinates", core.NodeRank, 3)
	require.NoError(t, err)

	// Redeclaring with another shape is rejected.
	_, err = e.DeclareField("coordinates", core.NodeRank, 2)
	assert.Error(t, err)

	require.NoError(t, e.ModificationBegin())
	node, err := e.DeclareEntity(core.NodeRank, 1)
	require.NoError(t, err)

	require.NoError(t, e.SetFieldData(coords, node, []float64{1, 2, 3}))
	assert.Equal(t, []float64{1, 2, 3}, e.FieldData(coords, node))

	assert.Error(t, e.SetFieldData(coords, node, []float64{1}))

	destroyed, err := e.DestroyEntity(node)
	require.NoError(t, err)
	require.True(t, destroyed)
	assert.Nil(t, e.FieldData(coords, node))
}

func TestGenerateNewIDsSerial(t *testing.T) {
	e := newSerialEngine(t)
	require.NoError(t, e.ModificationBegin())
	for i := core.EntityID(1); i <= 3; i++ {
		_, err := e.DeclareEntity(core.NodeRank, i)
		require.NoError(t, err)
	}

	ids, err := e.GenerateNewIDs(core.NodeRank, 2)
	require.NoError(t, err)
	assert.Equal(t, []core.EntityID{4, 5}, ids)

	ents, err := e.GenerateNewEntities([]int{2})
	require.NoError(t, err)
	require.Len(t, ents, 2)
	for _, ent := range ents {
		assert.True(t, e.IsValid(ent))
	}
}

type countingObserver struct {
	NoopObserver
	added, deleted, cycles int
}

func (o *countingObserver) OnEntityAdded(core.EntityKey)   { o.added++ }
func (o *countingObserver) OnEntityDeleted(core.EntityKey) { o.deleted++ }
func (o *countingObserver) OnModificationEnd(uint64)       { o.cycles++ }

func TestObserverNotifications(t *testing.T) {
	obs := &countingObserver{}
	e := newSerialEngine(t, WithObserver(obs))
	require.NoError(t, e.ModificationBegin())

	node, err := e.DeclareEntity(core.NodeRank, 1)
	require.NoError(t, err)
	_, err = e.DeclareEntity(core.NodeRank, 2)
	require.NoError(t, err)

	destroyed, err := e.DestroyEntity(node)
	require.NoError(t, err)
	require.True(t, destroyed)

	require.NoError(t, e.ModificationEnd())

	assert.Equal(t, 2, obs.added)
	assert.Equal(t, 1, obs.deleted)
	assert.Equal(t, 1, obs.cycles)
}

func TestBucketsCompactOnCycleEnd(t *testing.T) {
	e := newSerialEngine(t, WithVerification(true))
	require.NoError(t, e.ModificationBegin())

	// Declare in descending id order; after the cycle buckets hold entities
	// in key order.
	for i := core.EntityID(5); i >= 1; i-- {
		_, err := e.DeclareEntity(core.NodeRank, i)
		require.NoError(t, err)
	}
	require.NoError(t, e.ModificationEnd())

	buckets := e.Buckets(core.NodeRank)
	require.Len(t, buckets, 1)
	var prev core.EntityID
	for i := 0; i < buckets[0].Len(); i++ {
		key := e.Key(buckets[0].EntityAt(i))
		assert.Greater(t, key.ID, prev)
		prev = key.ID
	}
}

func TestSoloSideIDsDescendFromCeiling(t *testing.T) {
	e := newSerialEngine(t, WithSpatialDimension(2), WithMaxID(1000))
	require.NoError(t, e.ModificationBegin())

	s1, err := e.DeclareSoloSide(topology.Line2)
	require.NoError(t, err)
	s2, err := e.DeclareSoloSide(topology.Line2)
	require.NoError(t, err)

	assert.Equal(t, core.EntityID(1000), e.Key(s1).ID)
	assert.Equal(t, core.EntityID(999), e.Key(s2).ID)
}
