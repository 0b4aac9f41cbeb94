package comm

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/meshgo/core"
)

// Buffer is a sequential pack/unpack codec for message content. Packing and
// unpacking must happen in the same field order on both sides; the byte
// layout (little-endian fixed widths) is an implementation detail.
//
// Unpack methods record a sticky error instead of returning one, so decode
// sequences stay linear; check Err once after unpacking a packet.
type Buffer struct {
	buf []byte
	off int
	err error
}

// NewBuffer returns an empty buffer ready for packing.
func NewBuffer() *Buffer { return &Buffer{} }

// FromBytes wraps received bytes for unpacking.
func FromBytes(b []byte) *Buffer { return &Buffer{buf: b} }

// Bytes returns the packed content.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len returns the packed length.
func (b *Buffer) Len() int { return len(b.buf) }

// Remaining reports how many bytes are left to unpack.
func (b *Buffer) Remaining() int { return len(b.buf) - b.off }

// Err returns the first unpack error, if any.
func (b *Buffer) Err() error { return b.err }

func (b *Buffer) fail(want int) {
	if b.err == nil {
		b.err = fmt.Errorf("comm: buffer underflow: need %d bytes, have %d", want, b.Remaining())
	}
}

// PackU8 appends one byte.
func (b *Buffer) PackU8(v uint8) { b.buf = append(b.buf, v) }

// PackU16 appends a uint16.
func (b *Buffer) PackU16(v uint16) { b.buf = binary.LittleEndian.AppendUint16(b.buf, v) }

// PackU32 appends a uint32.
func (b *Buffer) PackU32(v uint32) { b.buf = binary.LittleEndian.AppendUint32(b.buf, v) }

// PackU64 appends a uint64.
func (b *Buffer) PackU64(v uint64) { b.buf = binary.LittleEndian.AppendUint64(b.buf, v) }

// PackI32 appends an int32.
func (b *Buffer) PackI32(v int32) { b.PackU32(uint32(v)) }

// PackBool appends a bool.
func (b *Buffer) PackBool(v bool) {
	if v {
		b.PackU8(1)
	} else {
		b.PackU8(0)
	}
}

// PackBytes appends a length-prefixed byte slice.
func (b *Buffer) PackBytes(p []byte) {
	b.PackU32(uint32(len(p)))
	b.buf = append(b.buf, p...)
}

// PackKey appends an entity key.
func (b *Buffer) PackKey(k core.EntityKey) {
	b.PackU8(uint8(k.Rank))
	b.PackU64(uint64(k.ID))
}

// UnpackU8 consumes one byte.
func (b *Buffer) UnpackU8() uint8 {
	if b.err != nil {
		return 0
	}
	if b.Remaining() < 1 {
		b.fail(1)
		return 0
	}
	v := b.buf[b.off]
	b.off++
	return v
}

// UnpackU16 consumes a uint16.
func (b *Buffer) UnpackU16() uint16 {
	if b.err != nil {
		return 0
	}
	if b.Remaining() < 2 {
		b.fail(2)
		return 0
	}
	v := binary.LittleEndian.Uint16(b.buf[b.off:])
	b.off += 2
	return v
}

// UnpackU32 consumes a uint32.
func (b *Buffer) UnpackU32() uint32 {
	if b.err != nil {
		return 0
	}
	if b.Remaining() < 4 {
		b.fail(4)
		return 0
	}
	v := binary.LittleEndian.Uint32(b.buf[b.off:])
	b.off += 4
	return v
}

// UnpackU64 consumes a uint64.
func (b *Buffer) UnpackU64() uint64 {
	if b.err != nil {
		return 0
	}
	if b.Remaining() < 8 {
		b.fail(8)
		return 0
	}
	v := binary.LittleEndian.Uint64(b.buf[b.off:])
	b.off += 8
	return v
}

// UnpackI32 consumes an int32.
func (b *Buffer) UnpackI32() int32 { return int32(b.UnpackU32()) }

// UnpackBool consumes a bool.
func (b *Buffer) UnpackBool() bool { return b.UnpackU8() != 0 }

// UnpackBytes consumes a length-prefixed byte slice. The returned slice
// aliases the buffer.
func (b *Buffer) UnpackBytes() []byte {
	n := int(b.UnpackU32())
	if b.err != nil {
		return nil
	}
	if b.Remaining() < n {
		b.fail(n)
		return nil
	}
	p := b.buf[b.off : b.off+n]
	b.off += n
	return p
}

// UnpackKey consumes an entity key.
func (b *Buffer) UnpackKey() core.EntityKey {
	rank := core.Rank(b.UnpackU8())
	id := core.EntityID(b.UnpackU64())
	return core.EntityKey{Rank: rank, ID: id}
}
