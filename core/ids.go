package core

import "fmt"

// EntityID is the application-visible identifier of a mesh entity within its
// rank. IDs are strictly positive; 0 is never a valid id.
type EntityID uint64

// Rank classifies entities by topological dimension.
type Rank uint8

const (
	NodeRank Rank = iota
	EdgeRank
	FaceRank
	ElementRank
	// ConstraintRank is a pseudo-rank for auxiliary relations
	// (refinement family trees, multi-point constraints).
	ConstraintRank

	// NumRanks is the number of ranks a mesh carries by default.
	NumRanks
)

// InvalidRank marks an unset or unusable rank value.
const InvalidRank = Rank(255)

func (r Rank) String() string {
	switch r {
	case NodeRank:
		return "NODE"
	case EdgeRank:
		return "EDGE"
	case FaceRank:
		return "FACE"
	case ElementRank:
		return "ELEMENT"
	case ConstraintRank:
		return "CONSTRAINT"
	}
	return fmt.Sprintf("RANK(%d)", uint8(r))
}

// EntityKey names an entity globally: the (rank, id) pair is unique across
// all processes. Keys order lexicographically by rank, then id.
type EntityKey struct {
	Rank Rank
	ID   EntityID
}

// InvalidKey is the zero EntityKey; its ID of 0 never names a real entity.
var InvalidKey = EntityKey{Rank: InvalidRank, ID: 0}

// IsValid reports whether the key names a real entity.
func (k EntityKey) IsValid() bool {
	return k.ID != 0 && k.Rank < NumRanks
}

// Less orders keys lexicographically by (rank, id).
func (k EntityKey) Less(other EntityKey) bool {
	if k.Rank != other.Rank {
		return k.Rank < other.Rank
	}
	return k.ID < other.ID
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s[%d]", k.Rank, k.ID)
}

// Entity is a process-local handle: a dense offset into the entity arena.
// Offset 0 is reserved as the invalid sentinel. Handles are stable for the
// lifetime of the entity on this process; offsets of destroyed entities are
// recycled after the modification cycle that destroyed them ends.
type Entity uint32

// InvalidEntity is the reserved sentinel handle.
const InvalidEntity = Entity(0)

// IsValid reports whether the handle refers to a live slot. A valid handle
// may still point at a destroyed entity within the current cycle; the arena
// is the authority.
func (e Entity) IsValid() bool { return e != InvalidEntity }

// Ordinal identifies a relation position: the i-th node of an element, the
// i-th side, and so on.
type Ordinal uint16

// InvalidOrdinal marks an unset ordinal.
const InvalidOrdinal = Ordinal(0xFFFF)

// Permutation records the orientation of a connected entity relative to the
// canonical node ordering of its position: value p means the connection uses
// the p-th permutation of the target topology's nodes. Positive permutations
// (same winding) come first, negative (reversed winding) after.
type Permutation uint8

// InvalidPermutation marks an unset permutation.
const InvalidPermutation = Permutation(0xFF)

// PartOrdinal indexes a registered part within the part registry.
type PartOrdinal uint32

// GhostID indexes a ghosting channel. SharedGhostID (0) is the pseudo-ghosting
// recording symmetric sharing, AuraGhostID (1) the automatic one-layer halo;
// custom ghostings take 2 and up.
type GhostID uint16

const (
	SharedGhostID GhostID = 0
	AuraGhostID   GhostID = 1
)
