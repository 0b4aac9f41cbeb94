package part

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Selector is a predicate over bucket part sets, built from part membership
// requirements. Selectors are evaluated against Roaring bitmaps so that
// bucket scans over large part registries stay cheap.
//
// The zero-value Selector matches every bucket.
type Selector struct {
	all  *roaring.Bitmap // every ordinal required
	any  *roaring.Bitmap // at least one ordinal required
	none *roaring.Bitmap // no ordinal allowed
}

// All requires membership in every given part.
func All(parts ...*Part) Selector {
	return Selector{all: Ordinals(parts...).Bitmap()}
}

// Any requires membership in at least one given part.
func Any(parts ...*Part) Selector {
	return Selector{any: Ordinals(parts...).Bitmap()}
}

// And adds further required parts to the selector.
func (s Selector) And(parts ...*Part) Selector {
	bm := Ordinals(parts...).Bitmap()
	if s.all == nil {
		s.all = bm
	} else {
		s.all = roaring.Or(s.all, bm)
	}
	return s
}

// AndNot excludes buckets that are members of any given part.
func (s Selector) AndNot(parts ...*Part) Selector {
	bm := Ordinals(parts...).Bitmap()
	if s.none == nil {
		s.none = bm
	} else {
		s.none = roaring.Or(s.none, bm)
	}
	return s
}

// Matches evaluates the selector against a bucket's part bitmap.
func (s Selector) Matches(bucketParts *roaring.Bitmap) bool {
	if s.all != nil {
		required := s.all.GetCardinality()
		if roaring.And(s.all, bucketParts).GetCardinality() != required {
			return false
		}
	}
	if s.any != nil && !s.any.Intersects(bucketParts) {
		return false
	}
	if s.none != nil && s.none.Intersects(bucketParts) {
		return false
	}
	return true
}
