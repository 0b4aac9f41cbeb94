package comm

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// compressThreshold is the payload size above which sparse-exchange messages
// travel zstd-compressed. Small control-plane packets are cheaper raw.
const compressThreshold = 4 << 10

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	// Stateless EncodeAll/DecodeAll use; concurrency handled by the codec.
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
}

// World is an in-process parallel machine: size ranks connected by channels.
// Each rank runs on its own goroutine and obtains its Machine via At.
type World struct {
	size int
	// p2p[from][to] carries framed messages; capacity 1 keeps a send from
	// blocking until the peer falls a full round behind.
	p2p [][]chan []byte
	red *reducer
}

// NewWorld creates a machine with the given number of ranks.
func NewWorld(size int) *World {
	if size < 1 {
		size = 1
	}
	w := &World{
		size: size,
		p2p:  make([][]chan []byte, size),
		red:  newReducer(size),
	}
	for from := range w.p2p {
		w.p2p[from] = make([]chan []byte, size)
		for to := range w.p2p[from] {
			w.p2p[from][to] = make(chan []byte, 1)
		}
	}
	return w
}

// Size returns the number of ranks.
func (w *World) Size() int { return w.size }

// At returns rank r's view of the machine.
func (w *World) At(r int) Machine {
	return &worldRank{world: w, rank: r}
}

type worldRank struct {
	world *World
	rank  int
}

func (m *worldRank) Rank() int { return m.rank }
func (m *worldRank) Size() int { return m.world.size }

func (m *worldRank) AllReduceMax(v int64) int64 {
	return m.world.red.reduce(v, func(a, b int64) int64 {
		if a > b {
			return a
		}
		return b
	})
}

func (m *worldRank) AllReduceMin(v int64) int64 {
	return m.world.red.reduce(v, func(a, b int64) int64 {
		if a < b {
			return a
		}
		return b
	})
}

func (m *worldRank) AllReduceOr(v bool) bool {
	var x int64
	if v {
		x = 1
	}
	return m.world.red.reduce(x, func(a, b int64) int64 { return a | b }) != 0
}

// SparseExchange implements the sizing-round-then-payload rendezvous. The
// local message (send[rank]) short-circuits without touching channels.
func (m *worldRank) SparseExchange(send []*Buffer) []*Buffer {
	w := m.world
	me := m.rank
	recv := make([]*Buffer, w.size)

	// Sizing round: announce framed lengths to every peer.
	framed := make([][]byte, w.size)
	for to := 0; to < w.size; to++ {
		if to == me {
			continue
		}
		framed[to] = frame(payloadOf(send, to))
		w.p2p[me][to] <- sizeMsg(len(framed[to]))
	}
	expect := make([]int, w.size)
	for from := 0; from < w.size; from++ {
		if from == me {
			continue
		}
		expect[from] = sizeOf(<-w.p2p[from][me])
	}

	// Payload round.
	for to := 0; to < w.size; to++ {
		if to == me {
			continue
		}
		if len(framed[to]) > 0 {
			w.p2p[me][to] <- framed[to]
		}
	}
	for from := 0; from < w.size; from++ {
		if from == me {
			continue
		}
		if expect[from] == 0 {
			continue
		}
		recv[from] = FromBytes(unframe(<-w.p2p[from][me]))
	}

	if send != nil && send[me] != nil && send[me].Len() > 0 {
		recv[me] = FromBytes(send[me].Bytes())
	}
	return recv
}

func payloadOf(send []*Buffer, to int) []byte {
	if send == nil || send[to] == nil {
		return nil
	}
	return send[to].Bytes()
}

func sizeMsg(n int) []byte {
	return []byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}
}

func sizeOf(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16 | int(b[3])<<24
}

// frame prefixes the payload with a compression flag, compressing large
// payloads with zstd.
func frame(p []byte) []byte {
	if len(p) == 0 {
		return nil
	}
	if len(p) >= compressThreshold {
		out := zstdEncoder.EncodeAll(p, []byte{1})
		if len(out) < len(p)+1 {
			return out
		}
	}
	return append([]byte{0}, p...)
}

func unframe(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	if b[0] == 0 {
		return b[1:]
	}
	out, err := zstdDecoder.DecodeAll(b[1:], nil)
	if err != nil {
		// Frames are produced in-process; a bad frame is a defect.
		panic("comm: corrupt compressed frame: " + err.Error())
	}
	return out
}

// reducer implements all-reduce as a two-phase barrier: ranks fold their
// value into the accumulator, the last arrival publishes the result and
// flips the generation.
type reducer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	size   int
	count  int
	gen    uint64
	acc    int64
	result int64
}

func newReducer(size int) *reducer {
	r := &reducer{size: size}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *reducer) reduce(v int64, op func(a, b int64) int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	gen := r.gen
	if r.count == 0 {
		r.acc = v
	} else {
		r.acc = op(r.acc, v)
	}
	r.count++

	if r.count == r.size {
		r.result = r.acc
		r.count = 0
		r.gen++
		r.cond.Broadcast()
		return r.result
	}
	for r.gen == gen {
		r.cond.Wait()
	}
	return r.result
}
