// Package meshgo provides a distributed unstructured-mesh topology manager
// for Go.
//
// Meshgo maintains the entities of a finite-element style mesh (nodes, edges,
// faces, elements), their connectivity, and their part memberships, across
// the ranks of an SPMD machine. Ownership, sharing, ghost halos and induced
// memberships stay globally consistent through bulk modification cycles.
//
// # Quick Start
//
// Serial use:
//
//	mesh := meshgo.New(comm.NewWorld(1).At(0))
//	block := mesh.Registry().DeclareWithTopology("block_1", topology.Hex8)
//
//	mesh.Modify(func(bulk *engine.Engine) error {
//	    elem, _ := bulk.DeclareEntity(core.ElementRank, 1, block)
//	    for i := core.EntityID(1); i <= 8; i++ {
//	        node, _ := bulk.DeclareEntity(core.NodeRank, i)
//	        bulk.DeclareRelation(elem, node, core.Ordinal(i-1))
//	    }
//	    return nil
//	})
//
// Parallel use runs the same program on every rank:
//
//	comm.RunSPMD(4, func(m comm.Machine) error {
//	    mesh := meshgo.New(m)
//	    // ... declare this rank's entities, share boundary nodes ...
//	    return mesh.Modify(func(bulk *engine.Engine) error { ... })
//	})
//
// # Modification Cycles
//
// All mutation happens between BeginModification and EndModification (or
// inside Modify, which brackets both). EndModification is collective: it
// resolves entities created on several ranks into single global entities,
// assigns owners, reconciles induced part memberships and regenerates the
// ghost aura. Between cycles the mesh is synchronized and read-only.
//
// # Key Features
//
//   - Dense entity handles with stable ghost identity across regeneration
//   - Homogeneous buckets grouped by part membership and topology
//   - Part induction (element block membership flows onto faces, edges, nodes)
//   - Explicit node sharing; derived sharing for everything above
//   - Automatic one-layer ghost aura plus application ghosting channels
//   - Distributed id generation without a central authority
//   - Per-entity field data that travels with ghost and ownership transfers
package meshgo
