// Package engine implements the mesh topology engine: the distributed state
// machine that creates, connects and destroys mesh entities and keeps
// ownership, sharing and ghosting consistent across the ranks of a parallel
// machine.
//
// All mutation happens inside a modification cycle bracketed by
// ModificationBegin and ModificationEnd. ModificationEnd runs the multi-phase
// parallel resolution protocol; between cycles the mesh is synchronized and
// read-only. Mutation is single-goroutine per rank by design: the engine has
// no internal locking.
package engine

import (
	"fmt"

	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/internal/bucketrepo"
	"github.com/hupe1980/meshgo/internal/commmap"
	"github.com/hupe1980/meshgo/internal/connectivity"
	"github.com/hupe1980/meshgo/internal/entityrepo"
	"github.com/hupe1980/meshgo/internal/idgen"
	"github.com/hupe1980/meshgo/part"
	"github.com/hupe1980/meshgo/topology"
)

type meshState uint8

const (
	stateSynchronized meshState = iota
	stateModifiable
)

// Engine is one rank's view of the distributed mesh. Construct one per rank
// with New; every structural collective (ModificationEnd, ChangeGhosting,
// GenerateNewIDs) must be called symmetrically on all ranks.
type Engine struct {
	machine  comm.Machine
	registry *part.Registry

	entities *entityrepo.Repository
	buckets  *bucketrepo.Repository
	graph    *connectivity.Graph
	commDB   *commmap.Database

	ghostings []*Ghosting
	fields    []*Field

	soloSides *idgen.SoloSideGenerator

	state meshState
	cycle uint64

	// nodeSharing holds sharing declared via AddNodeSharing, consumed by
	// the parallel create resolution at ModificationEnd.
	nodeSharing map[core.Entity][]int

	// deletedComm records entities that were communicated and then destroyed
	// this cycle, with the processes that must drop their records.
	deletedComm []deletedRecord

	// localErrs aggregates parallel-consistency failures until the
	// collective error gate at ModificationEnd.
	localErrs []string

	maxID    core.EntityID
	sideRank core.Rank
	autoAura bool
	verify   bool

	logger    Logger
	observers []Observer
}

// New creates an engine on the given machine with the given part registry.
// The registry must be built identically on every rank (SPMD): part ordinals
// travel on the wire.
func New(machine comm.Machine, registry *part.Registry, opts ...Option) *Engine {
	e := &Engine{
		machine:     machine,
		registry:    registry,
		entities:    entityrepo.New(),
		buckets:     bucketrepo.New(int(core.NumRanks)),
		graph:       connectivity.New(int(core.NumRanks)),
		commDB:      commmap.New(),
		nodeSharing: make(map[core.Entity][]int),
		maxID:       DefaultMaxID,
		sideRank:    core.FaceRank,
		autoAura:    true,
		logger:      noopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.soloSides = idgen.NewSoloSideGenerator(machine.Rank(), machine.Size(), e.maxID)
	e.ghostings = []*Ghosting{
		{engine: e, id: core.SharedGhostID, name: "shared"},
		{engine: e, id: core.AuraGhostID, name: "shared_aura"},
	}
	return e
}

// Machine returns the parallel machine the engine runs on.
func (e *Engine) Machine() comm.Machine { return e.machine }

// Registry returns the part registry.
func (e *Engine) Registry() *part.Registry { return e.registry }

// Rank is this process's rank.
func (e *Engine) Rank() int { return e.machine.Rank() }

// SideRank is the rank sides are declared at (faces in 3D, edges in 2D).
func (e *Engine) SideRank() core.Rank { return e.sideRank }

// InModification reports whether a modification cycle is open.
func (e *Engine) InModification() bool { return e.state == stateModifiable }

// SynchronizedCount is the number of completed modification cycles.
func (e *Engine) SynchronizedCount() uint64 { return e.cycle }

// ModificationBegin opens a modification cycle. It fails when one is already
// open; nesting is not supported.
func (e *Engine) ModificationBegin() error {
	if e.state == stateModifiable {
		return ErrAlreadyModifiable
	}
	e.state = stateModifiable
	return nil
}

// Key returns the entity's global key, or core.InvalidKey for a dead handle.
func (e *Engine) Key(ent core.Entity) core.EntityKey {
	if !e.entities.IsLive(ent) {
		return core.InvalidKey
	}
	return e.entities.Key(ent)
}

// Get returns the local handle for a global key.
func (e *Engine) Get(key core.EntityKey) (core.Entity, bool) {
	return e.entities.Get(key)
}

// IsValid reports whether the handle refers to a live local entity.
func (e *Engine) IsValid(ent core.Entity) bool { return e.entities.IsLive(ent) }

// Owner returns the owning rank of a live entity.
func (e *Engine) Owner(ent core.Entity) int { return e.entities.Owner(ent) }

// State returns the entity's modification state.
func (e *Engine) State(ent core.Entity) core.EntityState { return e.entities.State(ent) }

// Topology returns the entity's cell topology.
func (e *Engine) Topology(ent core.Entity) topology.Topology {
	return e.buckets.Topology(ent)
}

// PartOrdinals returns the entity's bucket part set. Shared; do not mutate.
func (e *Engine) PartOrdinals(ent core.Entity) part.OrdinalSet {
	return e.buckets.PartOrdinals(ent)
}

// Member reports part membership.
func (e *Engine) Member(ent core.Entity, p *part.Part) bool {
	return e.buckets.Member(ent, p.Ordinal())
}

// Bucket returns the entity's current bucket location.
func (e *Engine) Bucket(ent core.Entity) (bucketrepo.MeshIndex, bool) {
	return e.buckets.Index(ent)
}

// Buckets returns all non-empty buckets of a rank.
func (e *Engine) Buckets(rank core.Rank) []*bucketrepo.Bucket {
	return e.buckets.Buckets(rank)
}

// ForEachSelected visits the entities of a rank whose bucket matches the
// selector.
func (e *Engine) ForEachSelected(rank core.Rank, sel part.Selector, fn func(ent core.Entity)) {
	e.buckets.ForEachSelected(rank, sel, fn)
}

// Connectivity returns the adjacency list of an entity toward a rank.
// Shared; invalidated by structural changes to the entity.
func (e *Engine) Connectivity(ent core.Entity, rank core.Rank) []connectivity.Relation {
	return e.graph.Relations(ent, rank)
}

// NumConnectivity returns the adjacency count toward a rank.
func (e *Engine) NumConnectivity(ent core.Entity, rank core.Rank) int {
	return e.graph.Num(ent, rank)
}

// SharingProcs returns the ranks sharing the entity.
func (e *Engine) SharingProcs(ent core.Entity) []int {
	return e.commDB.SharingProcs(e.Key(ent))
}

// GhostingProcs returns the ranks holding the entity under the ghosting.
func (e *Engine) GhostingProcs(ent core.Entity, g *Ghosting) []int {
	var procs []int
	for _, entry := range e.commDB.Entries(e.Key(ent)) {
		if entry.GhostID == g.id {
			procs = append(procs, int(entry.Proc))
		}
	}
	return procs
}

// GenerateNewIDs allocates n ids of the rank, unique across the machine.
// Collective.
func (e *Engine) GenerateNewIDs(rank core.Rank, n int) ([]core.EntityID, error) {
	return idgen.Generate(e.machine, e.entities.MaxLocalID(rank), n, e.maxID)
}

// GenerateNewEntities allocates ids and declares one entity per id, per
// rank-indexed request counts. Collective; requires an open cycle.
func (e *Engine) GenerateNewEntities(requests []int) ([]core.Entity, error) {
	if e.state != stateModifiable {
		return nil, ErrNotModifiable
	}
	var out []core.Entity
	for rank, n := range requests {
		if core.Rank(rank) == e.sideRank && n > 0 {
			return nil, &ErrInvalidKey{Reason: fmt.Sprintf("rank %s is the side rank; use DeclareElementSide", core.Rank(rank))}
		}
		ids, err := idgen.Generate(e.machine, e.entities.MaxLocalID(core.Rank(rank)), n, e.maxID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			ent, err := e.DeclareEntity(core.Rank(rank), id)
			if err != nil {
				return nil, err
			}
			out = append(out, ent)
		}
	}
	return out, nil
}

// addParallelError defers a parallel-consistency failure to the collective
// error gate.
func (e *Engine) addParallelError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.logger.Errorf("parallel consistency: %s", msg)
	e.localErrs = append(e.localErrs, msg)
}

func (e *Engine) requireModifiable() error {
	if e.state != stateModifiable {
		return ErrNotModifiable
	}
	return nil
}

func (e *Engine) keyLess(a, b core.Entity) bool {
	return e.entities.Key(a).Less(e.entities.Key(b))
}
