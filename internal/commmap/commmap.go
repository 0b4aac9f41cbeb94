// Package commmap records, per entity, which processes share or ghost it and
// under which ghosting channel. Entries are keyed by the entity's global key
// so they survive re-keying and handle recycling.
package commmap

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/meshgo/core"
)

// Entry is one (ghosting, process) record. Entries sort by ghost id then
// process, which keeps SHARED (ghost id 0) entries first.
type Entry struct {
	GhostID core.GhostID
	Proc    int32
}

func compareEntries(a, b Entry) int {
	if a.GhostID != b.GhostID {
		return int(a.GhostID) - int(b.GhostID)
	}
	return int(a.Proc) - int(b.Proc)
}

// Database is the comm map of one mesh.
type Database struct {
	entries map[core.EntityKey][]Entry
}

// New creates an empty database.
func New() *Database {
	return &Database{entries: make(map[core.EntityKey][]Entry)}
}

// Insert records that proc holds key under the given ghosting. Returns false
// when the entry already existed.
func (d *Database) Insert(key core.EntityKey, ghostID core.GhostID, proc int) bool {
	entry := Entry{GhostID: ghostID, Proc: int32(proc)}
	list := d.entries[key]
	i, found := slices.BinarySearchFunc(list, entry, compareEntries)
	if found {
		return false
	}
	d.entries[key] = slices.Insert(list, i, entry)
	return true
}

// Erase removes one entry. Returns false when absent.
func (d *Database) Erase(key core.EntityKey, ghostID core.GhostID, proc int) bool {
	entry := Entry{GhostID: ghostID, Proc: int32(proc)}
	list := d.entries[key]
	i, found := slices.BinarySearchFunc(list, entry, compareEntries)
	if !found {
		return false
	}
	if len(list) == 1 {
		delete(d.entries, key)
	} else {
		d.entries[key] = slices.Delete(list, i, i+1)
	}
	return true
}

// EraseGhosting removes every entry of one ghosting channel for key.
func (d *Database) EraseGhosting(key core.EntityKey, ghostID core.GhostID) bool {
	list := d.entries[key]
	kept := list[:0]
	removed := false
	for _, e := range list {
		if e.GhostID == ghostID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return false
	}
	if len(kept) == 0 {
		delete(d.entries, key)
	} else {
		d.entries[key] = kept
	}
	return true
}

// EraseAll removes every entry for key.
func (d *Database) EraseAll(key core.EntityKey) {
	delete(d.entries, key)
}

// Entries returns key's sorted entry list. Shared; do not mutate.
func (d *Database) Entries(key core.EntityKey) []Entry {
	return d.entries[key]
}

// IsShared reports whether key has at least one SHARED entry.
func (d *Database) IsShared(key core.EntityKey) bool {
	list := d.entries[key]
	return len(list) > 0 && list[0].GhostID == core.SharedGhostID
}

// IsGhostedTo reports whether key is recorded under the ghosting for proc.
func (d *Database) IsGhostedTo(key core.EntityKey, ghostID core.GhostID, proc int) bool {
	list := d.entries[key]
	_, found := slices.BinarySearchFunc(list, Entry{GhostID: ghostID, Proc: int32(proc)}, compareEntries)
	return found
}

// HasGhosting reports whether key has any entry under the ghosting.
func (d *Database) HasGhosting(key core.EntityKey, ghostID core.GhostID) bool {
	for _, e := range d.entries[key] {
		if e.GhostID == ghostID {
			return true
		}
		if e.GhostID > ghostID {
			break
		}
	}
	return false
}

// SharingProcs returns the sorted list of processes sharing key.
func (d *Database) SharingProcs(key core.EntityKey) []int {
	var procs []int
	for _, e := range d.entries[key] {
		if e.GhostID != core.SharedGhostID {
			break
		}
		procs = append(procs, int(e.Proc))
	}
	return procs
}

// SharingBitmap returns the sharing processes as a Roaring bitmap, for
// intersection across several entities (the candidate-destination rule of
// shared-entity resolution intersects the node sharers).
func (d *Database) SharingBitmap(key core.EntityKey) *roaring.Bitmap {
	bm := roaring.New()
	for _, e := range d.entries[key] {
		if e.GhostID != core.SharedGhostID {
			break
		}
		bm.Add(uint32(e.Proc))
	}
	return bm
}

// Rekey moves key's entries to a new key (shared-entity resolution).
func (d *Database) Rekey(old, updated core.EntityKey) {
	if old == updated {
		return
	}
	if list, ok := d.entries[old]; ok {
		delete(d.entries, old)
		d.entries[updated] = list
	}
}

// SortedKeys returns every communicated entity key in EntityKey order; ghost
// teardown walks this in reverse so destruction proceeds top-down.
func (d *Database) SortedKeys() []core.EntityKey {
	keys := make([]core.EntityKey, 0, len(d.entries))
	for key := range d.entries {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b core.EntityKey) int {
		if a.Less(b) {
			return -1
		}
		if b.Less(a) {
			return 1
		}
		return 0
	})
	return keys
}
