// Package comm provides the message-passing substrate the mesh runs on: an
// SPMD machine abstraction with the collective and sparse point-to-point
// operations the topology protocols need, plus pack/unpack buffers for
// message content.
//
// The in-process implementation runs one goroutine per rank over channels.
// Any substrate with the same rendezvous semantics (every rank participates
// in every collective, no timeouts) can stand in behind the Machine
// interface.
package comm

// Machine is one rank's view of the parallel machine. All methods that
// communicate are collectives: every rank of the machine must call them the
// same number of times, in the same order. A rank that stops participating
// blocks the others by design; liveness is the caller's responsibility.
type Machine interface {
	// Rank is this process's index, in [0, Size).
	Rank() int

	// Size is the number of ranks.
	Size() int

	// AllReduceMax returns the maximum of v over all ranks.
	AllReduceMax(v int64) int64

	// AllReduceMin returns the minimum of v over all ranks.
	AllReduceMin(v int64) int64

	// AllReduceOr returns the logical OR of v over all ranks. Used as the
	// consistency gate before raising parallel errors and as the
	// "more work to do" test in multi-round algorithms.
	AllReduceOr(v bool) bool

	// SparseExchange delivers send[p] to rank p and returns what every rank
	// sent here, indexed by source rank. Entries may be nil for "nothing".
	// The exchange is a blocking rendezvous: a sizing round announces
	// message lengths, then payloads move.
	SparseExchange(send []*Buffer) []*Buffer
}
