// Package part implements the part registry: named classification tags that
// entities belong to, with rank-induction flags, plus selector algebra over
// bucket part sets.
package part

import (
	"fmt"

	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/topology"
)

// Part is a named classification tag. Parts are registered once, before the
// first modification cycle, and identified by a dense ordinal thereafter.
type Part struct {
	name        string
	ordinal     core.PartOrdinal
	primaryRank core.Rank
	topo        topology.Topology
	inducible   bool
	internal    bool
}

// Name returns the part's registered name.
func (p *Part) Name() string { return p.name }

// Ordinal returns the part's dense registry index.
func (p *Part) Ordinal() core.PartOrdinal { return p.ordinal }

// PrimaryRank is the entity rank the part primarily classifies, or
// core.InvalidRank for rank-less parts.
func (p *Part) PrimaryRank() core.Rank { return p.primaryRank }

// Topology is the cell topology associated with the part, or
// topology.Invalid for parts without one.
func (p *Part) Topology() topology.Topology { return p.topo }

// IsInternal reports whether the part is maintained by the mesh itself
// (universal, owned, shared, aura). Internal parts cannot be added or removed
// by applications.
func (p *Part) IsInternal() bool { return p.internal }

// InducesOn reports whether membership in p on an entity of rank fromRank
// must be induced onto downward-connected entities.
func (p *Part) InducesOn(fromRank core.Rank) bool {
	return p.inducible && p.primaryRank == fromRank
}

func (p *Part) String() string { return p.name }

// Well-known ordinals of the internal parts, fixed by registration order.
const (
	UniversalOrdinal      core.PartOrdinal = 0
	LocallyOwnedOrdinal   core.PartOrdinal = 1
	GloballySharedOrdinal core.PartOrdinal = 2
	AuraOrdinal           core.PartOrdinal = 3
)

// Registry holds all parts of one mesh. The zero value is not usable; create
// with NewRegistry, which installs the internal parts at fixed ordinals.
type Registry struct {
	parts  []*Part
	byName map[string]*Part
}

// NewRegistry creates a registry pre-populated with the internal parts.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Part)}
	r.declare("{UNIVERSAL}", core.InvalidRank, topology.Invalid, false, true)
	r.declare("{OWNS}", core.InvalidRank, topology.Invalid, false, true)
	r.declare("{SHARES}", core.InvalidRank, topology.Invalid, false, true)
	r.declare("{AURA}", core.InvalidRank, topology.Invalid, false, true)
	return r
}

func (r *Registry) declare(name string, rank core.Rank, topo topology.Topology, inducible, internal bool) *Part {
	p := &Part{
		name:        name,
		ordinal:     core.PartOrdinal(len(r.parts)),
		primaryRank: rank,
		topo:        topo,
		inducible:   inducible,
		internal:    internal,
	}
	r.parts = append(r.parts, p)
	r.byName[name] = p
	return p
}

// Declare registers a rank-less, non-inducible part, or returns the existing
// part of that name.
func (r *Registry) Declare(name string) *Part {
	if p, ok := r.byName[name]; ok {
		return p
	}
	return r.declare(name, core.InvalidRank, topology.Invalid, false, false)
}

// DeclareRanked registers a part with a primary rank. Ranked parts are
// inducible: membership flows onto the downward closure of member entities.
func (r *Registry) DeclareRanked(name string, rank core.Rank) *Part {
	if p, ok := r.byName[name]; ok {
		return p
	}
	return r.declare(name, rank, topology.Invalid, true, false)
}

// DeclareWithTopology registers an inducible part tied to a cell topology
// (an element block, a sideset). Entities declared into the part without an
// explicit topology inherit this one.
func (r *Registry) DeclareWithTopology(name string, topo topology.Topology) *Part {
	if p, ok := r.byName[name]; ok {
		return p
	}
	return r.declare(name, topo.Rank(), topo, true, false)
}

// Universal returns the part every entity belongs to.
func (r *Registry) Universal() *Part { return r.parts[UniversalOrdinal] }

// LocallyOwned returns the part holding entities owned by this process.
func (r *Registry) LocallyOwned() *Part { return r.parts[LocallyOwnedOrdinal] }

// GloballyShared returns the part holding entities shared with other
// processes.
func (r *Registry) GloballyShared() *Part { return r.parts[GloballySharedOrdinal] }

// Aura returns the part holding automatic one-layer ghosts.
func (r *Registry) Aura() *Part { return r.parts[AuraOrdinal] }

// Get returns the part with the given ordinal.
func (r *Registry) Get(ord core.PartOrdinal) *Part {
	if int(ord) >= len(r.parts) {
		return nil
	}
	return r.parts[ord]
}

// GetByName returns the part with the given name, or nil.
func (r *Registry) GetByName(name string) *Part { return r.byName[name] }

// Len returns the number of registered parts.
func (r *Registry) Len() int { return len(r.parts) }

// InducedSubset filters ordinals down to the parts that induce from fromRank.
func (r *Registry) InducedSubset(ordinals OrdinalSet, fromRank core.Rank) OrdinalSet {
	var out OrdinalSet
	for _, ord := range ordinals {
		if p := r.Get(ord); p != nil && p.InducesOn(fromRank) {
			out = out.Insert(ord)
		}
	}
	return out
}

// TopologyOf derives the topology implied by a set of part ordinals: the
// unique topology among topology-bearing parts. Conflicting topologies are a
// usage error.
func (r *Registry) TopologyOf(ordinals OrdinalSet) (topology.Topology, error) {
	topo := topology.Invalid
	for _, ord := range ordinals {
		p := r.Get(ord)
		if p == nil || !p.topo.IsValid() {
			continue
		}
		if topo.IsValid() && topo != p.topo {
			return topology.Invalid, fmt.Errorf("conflicting topologies %s and %s in part set", topo, p.topo)
		}
		topo = p.topo
	}
	return topo, nil
}
