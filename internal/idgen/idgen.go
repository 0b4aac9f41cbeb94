// Package idgen allocates globally unique entity ids across ranks without a
// central authority: a collective establishes the global ceiling, then each
// rank claims a disjoint block above it.
package idgen

import (
	"fmt"

	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
)

// Generate returns n fresh ids for this rank, unique across all ranks.
// localMax is the largest id of the rank's entity kind already present
// locally; maxID is the configured ceiling. Collective: every rank must call
// with its own n (possibly 0). When the combined demand would exceed maxID,
// every rank gets the same error.
func Generate(m comm.Machine, localMax core.EntityID, n int, maxID core.EntityID) ([]core.EntityID, error) {
	globalMax := core.EntityID(m.AllReduceMax(int64(localMax)))

	// All-gather per-rank demand so every rank can compute its block offset.
	counts := gatherCounts(m, n)

	offset := uint64(0)
	total := uint64(0)
	for r, c := range counts {
		if r < m.Rank() {
			offset += c
		}
		total += c
	}

	overflow := uint64(globalMax)+total > uint64(maxID)
	if m.AllReduceOr(overflow) {
		return nil, fmt.Errorf("idgen: demand of %d ids exceeds ceiling %d (global max %d)", total, maxID, globalMax)
	}

	ids := make([]core.EntityID, n)
	base := globalMax + 1 + core.EntityID(offset)
	for i := range ids {
		ids[i] = base + core.EntityID(i)
	}
	return ids, nil
}

func gatherCounts(m comm.Machine, n int) []uint64 {
	send := make([]*comm.Buffer, m.Size())
	for p := 0; p < m.Size(); p++ {
		b := comm.NewBuffer()
		b.PackU64(uint64(n))
		send[p] = b
	}
	recv := m.SparseExchange(send)

	counts := make([]uint64, m.Size())
	for p, buf := range recv {
		if buf != nil {
			counts[p] = buf.UnpackU64()
		}
	}
	return counts
}

// SoloSideGenerator hands out side ids that cannot collide with the
// element-derived side id formula or with any other rank's solo ids: ids
// descend from the ceiling, strided by the machine size.
type SoloSideGenerator struct {
	next   core.EntityID
	stride core.EntityID
}

// NewSoloSideGenerator creates a generator for one rank of a machine.
func NewSoloSideGenerator(rank, size int, maxID core.EntityID) *SoloSideGenerator {
	return &SoloSideGenerator{
		next:   maxID - core.EntityID(rank),
		stride: core.EntityID(size),
	}
}

// Next returns the following solo side id.
func (g *SoloSideGenerator) Next() core.EntityID {
	id := g.next
	g.next -= g.stride
	return id
}
