package part

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/meshgo/core"
)

// OrdinalSet is a sorted, deduplicated list of part ordinals. The zero value
// is the empty set. Mutating operations return the new set; the receiver may
// be reused as backing storage.
type OrdinalSet []core.PartOrdinal

// NewOrdinalSet builds a set from arbitrary ordinals.
func NewOrdinalSet(ordinals ...core.PartOrdinal) OrdinalSet {
	var s OrdinalSet
	for _, ord := range ordinals {
		s = s.Insert(ord)
	}
	return s
}

// Insert adds ord, keeping the set sorted and deduplicated.
func (s OrdinalSet) Insert(ord core.PartOrdinal) OrdinalSet {
	i, found := slices.BinarySearch(s, ord)
	if found {
		return s
	}
	return slices.Insert(s, i, ord)
}

// Remove deletes ord if present.
func (s OrdinalSet) Remove(ord core.PartOrdinal) OrdinalSet {
	i, found := slices.BinarySearch(s, ord)
	if !found {
		return s
	}
	return slices.Delete(s, i, i+1)
}

// Contains reports membership.
func (s OrdinalSet) Contains(ord core.PartOrdinal) bool {
	_, found := slices.BinarySearch(s, ord)
	return found
}

// Union returns s ∪ other as a fresh set.
func (s OrdinalSet) Union(other OrdinalSet) OrdinalSet {
	out := slices.Clone(s)
	for _, ord := range other {
		out = out.Insert(ord)
	}
	return out
}

// Minus returns s \ other as a fresh set.
func (s OrdinalSet) Minus(other OrdinalSet) OrdinalSet {
	var out OrdinalSet
	for _, ord := range s {
		if !other.Contains(ord) {
			out = append(out, ord)
		}
	}
	return out
}

// Equal reports set equality.
func (s OrdinalSet) Equal(other OrdinalSet) bool {
	return slices.Equal(s, other)
}

// Clone returns an independent copy.
func (s OrdinalSet) Clone() OrdinalSet { return slices.Clone(s) }

// Bitmap materializes the set as a Roaring bitmap for selector evaluation.
func (s OrdinalSet) Bitmap() *roaring.Bitmap {
	bm := roaring.New()
	for _, ord := range s {
		bm.Add(uint32(ord))
	}
	return bm
}

// Ordinals converts a slice of parts to an OrdinalSet.
func Ordinals(parts ...*Part) OrdinalSet {
	var s OrdinalSet
	for _, p := range parts {
		s = s.Insert(p.Ordinal())
	}
	return s
}
