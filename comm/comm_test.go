package comm

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshgo/core"
)

func TestBufferRoundTrip(t *testing.T) {
	b := NewBuffer()
	b.PackU8(7)
	b.PackU32(123456)
	b.PackU64(1 << 40)
	b.PackBool(true)
	b.PackKey(core.EntityKey{Rank: core.FaceRank, ID: 42})
	b.PackBytes([]byte("payload"))

	r := FromBytes(b.Bytes())
	assert.Equal(t, uint8(7), r.UnpackU8())
	assert.Equal(t, uint32(123456), r.UnpackU32())
	assert.Equal(t, uint64(1<<40), r.UnpackU64())
	assert.True(t, r.UnpackBool())
	assert.Equal(t, core.EntityKey{Rank: core.FaceRank, ID: 42}, r.UnpackKey())
	assert.Equal(t, []byte("payload"), r.UnpackBytes())
	require.NoError(t, r.Err())
	assert.Equal(t, 0, r.Remaining())
}

func TestBufferUnderflow(t *testing.T) {
	r := FromBytes([]byte{1})
	r.UnpackU64()
	assert.Error(t, r.Err())
	// Sticky: further unpacks stay zero-valued and consume nothing, even
	// though a byte is still in the buffer.
	assert.Equal(t, uint8(0), r.UnpackU8())
	assert.Equal(t, uint32(0), r.UnpackU32())
	assert.False(t, r.UnpackBool())
	assert.Nil(t, r.UnpackBytes())
	assert.Equal(t, 1, r.Remaining())
}

func TestAllReduce(t *testing.T) {
	err := RunSPMD(4, func(m Machine) error {
		maxv := m.AllReduceMax(int64(m.Rank() * 10))
		if maxv != 30 {
			t.Errorf("rank %d: max = %d", m.Rank(), maxv)
		}
		minv := m.AllReduceMin(int64(m.Rank() * 10))
		if minv != 0 {
			t.Errorf("rank %d: min = %d", m.Rank(), minv)
		}
		if m.AllReduceOr(false) {
			t.Errorf("rank %d: or of all false", m.Rank())
		}
		if !m.AllReduceOr(m.Rank() == 2) {
			t.Errorf("rank %d: or with one true", m.Rank())
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSparseExchange(t *testing.T) {
	const size = 3
	err := RunSPMD(size, func(m Machine) error {
		// Every rank sends its rank number to every higher rank.
		send := make([]*Buffer, size)
		for to := m.Rank() + 1; to < size; to++ {
			b := NewBuffer()
			b.PackU32(uint32(m.Rank()))
			send[to] = b
		}
		recv := m.SparseExchange(send)
		for from := 0; from < size; from++ {
			if from < m.Rank() {
				require.NotNil(t, recv[from])
				assert.Equal(t, uint32(from), recv[from].UnpackU32())
				require.NoError(t, recv[from].Err())
			} else {
				assert.Nil(t, recv[from])
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSparseExchangeLargePayloadCompresses(t *testing.T) {
	// A compressible payload above the threshold must survive the
	// compressed path intact.
	payload := bytes.Repeat([]byte("abcdefgh"), 4096)
	err := RunSPMD(2, func(m Machine) error {
		send := make([]*Buffer, 2)
		if m.Rank() == 0 {
			b := NewBuffer()
			b.PackBytes(payload)
			send[1] = b
		}
		recv := m.SparseExchange(send)
		if m.Rank() == 1 {
			require.NotNil(t, recv[0])
			assert.Equal(t, payload, recv[0].UnpackBytes())
			require.NoError(t, recv[0].Err())
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSparseExchangeManyRounds(t *testing.T) {
	// Back-to-back rounds must not cross-talk between generations.
	const size = 4
	err := RunSPMD(size, func(m Machine) error {
		for round := 0; round < 50; round++ {
			send := make([]*Buffer, size)
			to := (m.Rank() + 1) % size
			b := NewBuffer()
			b.PackU32(uint32(round))
			send[to] = b
			recv := m.SparseExchange(send)
			from := (m.Rank() + size - 1) % size
			require.NotNil(t, recv[from])
			require.Equal(t, uint32(round), recv[from].UnpackU32())
		}
		return nil
	})
	require.NoError(t, err)
}

func TestReducerConcurrentGenerations(t *testing.T) {
	w := NewWorld(3)
	var wg sync.WaitGroup
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			m := w.At(r)
			for i := 0; i < 100; i++ {
				got := m.AllReduceMax(int64(i))
				if got != int64(i) {
					t.Errorf("generation %d: got %d", i, got)
					return
				}
			}
		}(r)
	}
	wg.Wait()
}
