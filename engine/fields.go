package engine

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
)

// Field is per-entity numeric data attached to one entity rank. Field values
// travel with entities when they are ghosted or change owner, so every rank
// must declare the same fields in the same order (SPMD).
type Field struct {
	index      int
	name       string
	rank       core.Rank
	components int

	data map[core.Entity][]float64
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Rank returns the entity rank the field lives on.
func (f *Field) Rank() core.Rank { return f.rank }

// Components returns the number of scalars per entity.
func (f *Field) Components() int { return f.components }

// DeclareField registers a field of the given rank with components scalars
// per entity. Declaring an existing name returns the existing field when rank
// and components agree.
func (e *Engine) DeclareField(name string, rank core.Rank, components int) (*Field, error) {
	if rank >= core.NumRanks {
		return nil, &ErrInvalidKey{Reason: fmt.Sprintf("field rank %d out of range", rank)}
	}
	if components <= 0 {
		return nil, &ErrInvalidKey{Reason: fmt.Sprintf("field %q needs at least one component", name)}
	}
	for _, f := range e.fields {
		if f.name == name {
			if f.rank != rank || f.components != components {
				return nil, &ErrInvalidKey{Reason: fmt.Sprintf("field %q already declared with different shape", name)}
			}
			return f, nil
		}
	}
	f := &Field{
		index:      len(e.fields),
		name:       name,
		rank:       rank,
		components: components,
		data:       make(map[core.Entity][]float64),
	}
	e.fields = append(e.fields, f)
	return f, nil
}

// FieldData returns the entity's value slice for the field, allocating zeroed
// storage on first access. Nil for dead entities and rank mismatches. The
// slice is live storage; writes through it stick.
func (e *Engine) FieldData(f *Field, ent core.Entity) []float64 {
	if !e.entities.IsLive(ent) || e.entities.Key(ent).Rank != f.rank {
		return nil
	}
	vals, ok := f.data[ent]
	if !ok {
		vals = make([]float64, f.components)
		f.data[ent] = vals
	}
	return vals
}

// SetFieldData copies values into the entity's field storage.
func (e *Engine) SetFieldData(f *Field, ent core.Entity, values []float64) error {
	dst := e.FieldData(f, ent)
	if dst == nil {
		return ErrUnknownEntity
	}
	if len(values) != f.components {
		return &ErrInvalidKey{Reason: fmt.Sprintf("field %q expects %d components, got %d", f.name, f.components, len(values))}
	}
	copy(dst, values)
	return nil
}

func (e *Engine) dropFieldData(ent core.Entity) {
	for _, f := range e.fields {
		delete(f.data, ent)
	}
}

// Field payloads ride inside entity packets as one length-prefixed blob, lz4
// block compressed past a small threshold. A leading flag byte distinguishes
// raw from compressed.
const (
	fieldBlobRaw        = 0
	fieldBlobCompressed = 1

	fieldCompressThreshold = 256
)

// packEntityFields encodes every field value set on ent.
func (e *Engine) packEntityFields(b *comm.Buffer, ent core.Entity) {
	var present []*Field
	for _, f := range e.fields {
		if _, ok := f.data[ent]; ok {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		b.PackBytes(nil)
		return
	}

	raw := make([]byte, 0, 64)
	raw = binary.LittleEndian.AppendUint16(raw, uint16(len(present)))
	for _, f := range present {
		raw = binary.LittleEndian.AppendUint16(raw, uint16(f.index))
		for _, v := range f.data[ent] {
			raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(v))
		}
	}

	if len(raw) < fieldCompressThreshold {
		b.PackBytes(append([]byte{fieldBlobRaw}, raw...))
		return
	}
	dst := make([]byte, 5+lz4.CompressBlockBound(len(raw)))
	dst[0] = fieldBlobCompressed
	binary.LittleEndian.PutUint32(dst[1:5], uint32(len(raw)))
	n, err := lz4.CompressBlock(raw, dst[5:], nil)
	if err != nil || n == 0 || n >= len(raw) {
		// Incompressible; ship raw.
		b.PackBytes(append([]byte{fieldBlobRaw}, raw...))
		return
	}
	b.PackBytes(dst[:5+n])
}

// unpackEntityFields decodes a field blob onto ent. Fields are matched by
// declaration index; a mismatch means the ranks declared different fields,
// which the SPMD contract forbids.
func (e *Engine) unpackEntityFields(b *comm.Buffer, ent core.Entity) error {
	blob := b.UnpackBytes()
	if err := b.Err(); err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}

	var raw []byte
	switch blob[0] {
	case fieldBlobRaw:
		raw = blob[1:]
	case fieldBlobCompressed:
		if len(blob) < 5 {
			return fmt.Errorf("field blob truncated")
		}
		size := binary.LittleEndian.Uint32(blob[1:5])
		raw = make([]byte, size)
		if _, err := lz4.UncompressBlock(blob[5:], raw); err != nil {
			return fmt.Errorf("field blob: %w", err)
		}
	default:
		return fmt.Errorf("field blob flag %d", blob[0])
	}

	if len(raw) < 2 {
		return fmt.Errorf("field blob truncated")
	}
	count := int(binary.LittleEndian.Uint16(raw))
	raw = raw[2:]
	for i := 0; i < count; i++ {
		if len(raw) < 2 {
			return fmt.Errorf("field blob truncated")
		}
		idx := int(binary.LittleEndian.Uint16(raw))
		raw = raw[2:]
		if idx >= len(e.fields) {
			return fmt.Errorf("field index %d not declared here", idx)
		}
		f := e.fields[idx]
		need := 8 * f.components
		if len(raw) < need {
			return fmt.Errorf("field blob truncated")
		}
		vals := e.FieldData(f, ent)
		for c := 0; c < f.components; c++ {
			bits := binary.LittleEndian.Uint64(raw[8*c:])
			if vals != nil {
				vals[c] = math.Float64frombits(bits)
			}
		}
		raw = raw[need:]
	}
	return nil
}
