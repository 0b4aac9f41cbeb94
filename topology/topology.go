// Package topology defines the element topologies the mesh understands:
// node counts, side decompositions and node-order permutations. Topologies are
// pure lookup tables; they carry no per-mesh state.
package topology

import (
	"github.com/hupe1980/meshgo/core"
)

// Topology identifies one of the supported cell shapes.
type Topology uint8

const (
	Invalid Topology = iota

	// Node is the degenerate point topology.
	Node

	// Line2 is a 2-node segment (edge of a planar element, or a side in 2D).
	Line2

	// Tri3 and Quad4 are 3-node / 4-node faces of volume elements.
	Tri3
	Quad4

	// Tri3Planar and Quad4Planar are 2D elements whose sides are Line2 edges.
	Tri3Planar
	Quad4Planar

	// Tet4 and Hex8 are linear volume elements.
	Tet4
	Hex8

	// ShellTri3 and ShellQuad4 are zero-thickness elements coincident with a
	// face; their two sides are the positive and negative polarity of the
	// same face.
	ShellTri3
	ShellQuad4
)

type topoInfo struct {
	name      string
	rank      core.Rank
	numNodes  int
	shell     bool
	sideRank  core.Rank
	sideTopo  []Topology
	sideNodes [][]int
}

// Side node orderings follow the usual exodus/patran linear-cell conventions:
// planar edges wind counter-clockwise, tet faces and hex faces are listed with
// outward-pointing normals.
var topoTable = [...]topoInfo{
	Invalid: {name: "INVALID", rank: core.InvalidRank, sideRank: core.InvalidRank},
	Node:    {name: "NODE", rank: core.NodeRank, numNodes: 1, sideRank: core.InvalidRank},
	Line2: {
		name: "LINE_2", rank: core.EdgeRank, numNodes: 2,
		sideRank: core.NodeRank,
	},
	Tri3: {
		name: "TRI_3", rank: core.FaceRank, numNodes: 3,
		sideRank:  core.EdgeRank,
		sideTopo:  []Topology{Line2, Line2, Line2},
		sideNodes: [][]int{{0, 1}, {1, 2}, {2, 0}},
	},
	Quad4: {
		name: "QUAD_4", rank: core.FaceRank, numNodes: 4,
		sideRank:  core.EdgeRank,
		sideTopo:  []Topology{Line2, Line2, Line2, Line2},
		sideNodes: [][]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	},
	Tri3Planar: {
		name: "TRI_3_2D", rank: core.ElementRank, numNodes: 3,
		sideRank:  core.EdgeRank,
		sideTopo:  []Topology{Line2, Line2, Line2},
		sideNodes: [][]int{{0, 1}, {1, 2}, {2, 0}},
	},
	Quad4Planar: {
		name: "QUAD_4_2D", rank: core.ElementRank, numNodes: 4,
		sideRank:  core.EdgeRank,
		sideTopo:  []Topology{Line2, Line2, Line2, Line2},
		sideNodes: [][]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	},
	Tet4: {
		name: "TET_4", rank: core.ElementRank, numNodes: 4,
		sideRank:  core.FaceRank,
		sideTopo:  []Topology{Tri3, Tri3, Tri3, Tri3},
		sideNodes: [][]int{{0, 1, 3}, {1, 2, 3}, {0, 3, 2}, {0, 2, 1}},
	},
	Hex8: {
		name: "HEX_8", rank: core.ElementRank, numNodes: 8,
		sideRank: core.FaceRank,
		sideTopo: []Topology{Quad4, Quad4, Quad4, Quad4, Quad4, Quad4},
		sideNodes: [][]int{
			{0, 1, 5, 4}, {1, 2, 6, 5}, {2, 3, 7, 6},
			{0, 4, 7, 3}, {0, 3, 2, 1}, {4, 5, 6, 7},
		},
	},
	ShellTri3: {
		name: "SHELL_TRI_3", rank: core.ElementRank, numNodes: 3, shell: true,
		sideRank:  core.FaceRank,
		sideTopo:  []Topology{Tri3, Tri3},
		sideNodes: [][]int{{0, 1, 2}, {0, 2, 1}},
	},
	ShellQuad4: {
		name: "SHELL_QUAD_4", rank: core.ElementRank, numNodes: 4, shell: true,
		sideRank:  core.FaceRank,
		sideTopo:  []Topology{Quad4, Quad4},
		sideNodes: [][]int{{0, 1, 2, 3}, {0, 3, 2, 1}},
	},
}

func (t Topology) info() *topoInfo {
	if int(t) >= len(topoTable) {
		return &topoTable[Invalid]
	}
	return &topoTable[t]
}

func (t Topology) String() string { return t.info().name }

// IsValid reports whether t names a real topology.
func (t Topology) IsValid() bool { return t != Invalid && int(t) < len(topoTable) }

// Rank is the entity rank a cell of this topology occupies.
func (t Topology) Rank() core.Rank { return t.info().rank }

// NumNodes is the number of defining nodes.
func (t Topology) NumNodes() int { return t.info().numNodes }

// IsShell reports whether the topology is a zero-thickness shell.
func (t Topology) IsShell() bool { return t.info().shell }

// NumSides is the number of sides the topology decomposes into.
func (t Topology) NumSides() int { return len(t.info().sideTopo) }

// SideRank is the rank of this topology's sides.
func (t Topology) SideRank() core.Rank { return t.info().sideRank }

// SideTopology returns the topology of side ord, or Invalid when out of range.
func (t Topology) SideTopology(ord core.Ordinal) Topology {
	info := t.info()
	if int(ord) >= len(info.sideTopo) {
		return Invalid
	}
	return info.sideTopo[ord]
}

// SideNodeOrdinals returns the node positions making up side ord, in the
// side's canonical order. The returned slice is shared; callers must not
// mutate it.
func (t Topology) SideNodeOrdinals(ord core.Ordinal) []int {
	info := t.info()
	if int(ord) >= len(info.sideNodes) {
		return nil
	}
	return info.sideNodes[ord]
}

// SideNodes gathers the nodes of side ord out of the element's node list.
func SideNodes[T any](t Topology, nodes []T, ord core.Ordinal) []T {
	ordinals := t.SideNodeOrdinals(ord)
	if ordinals == nil {
		return nil
	}
	side := make([]T, len(ordinals))
	for i, n := range ordinals {
		side[i] = nodes[n]
	}
	return side
}
