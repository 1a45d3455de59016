// Package idtracker implements the packed/global group-id bijection that
// backs every dense clustering structure in the engine (spec §3's group-id
// invariants): packed ids are always a contiguous [0, packed_size) range
// suitable for slice indexing, while global ids are stable identifiers that
// never get reused even as packed ids shift after a removal compacts the
// dense range. This mirrors loom's id_tracker, which keeps a
// packed-to-global permutation alongside a global-to-packed lookup so a
// caller can move freely between "dense array index" and "durable handle".
package idtracker

import (
	"sort"

	"github.com/crosscatio/crosscat/internal/domain"
)

// Tracker maintains the bijection between a dense packed range and stable
// global ids. It is not safe for concurrent use; callers serialize access
// the same way they serialize the packed array it indexes.
type Tracker struct {
	packedToGlobal []domain.GlobalGroupID
	globalToPacked map[domain.GlobalGroupID]uint32
	nextGlobal     domain.GlobalGroupID
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{globalToPacked: make(map[domain.GlobalGroupID]uint32)}
}

// PackedSize reports the current dense range size.
func (t *Tracker) PackedSize() int { return len(t.packedToGlobal) }

// Add appends a fresh global id at the next packed slot and returns it.
func (t *Tracker) Add() domain.GlobalGroupID {
	id := t.nextGlobal
	t.nextGlobal++
	packed := uint32(len(t.packedToGlobal))
	t.packedToGlobal = append(t.packedToGlobal, id)
	t.globalToPacked[id] = packed
	return id
}

// Remove drops the group at packed index i, swapping the last packed slot
// into its place so the range stays contiguous (the same "swap with back"
// compaction loom's Packed_ container performs on erase). Returns the global
// id that used to occupy i, and the global id that was moved into i (equal
// to the first if i was already the last slot).
func (t *Tracker) Remove(i uint32) (removed, moved domain.GlobalGroupID) {
	last := uint32(len(t.packedToGlobal) - 1)
	removed = t.packedToGlobal[i]
	moved = t.packedToGlobal[last]

	t.packedToGlobal[i] = moved
	t.packedToGlobal = t.packedToGlobal[:last]
	delete(t.globalToPacked, removed)
	if i != last {
		t.globalToPacked[moved] = i
	}
	return removed, moved
}

// PackedToGlobal maps a dense index to its stable global id.
func (t *Tracker) PackedToGlobal(packed uint32) domain.GlobalGroupID {
	return t.packedToGlobal[packed]
}

// GlobalToPacked maps a stable global id to its current dense index. The
// second return is false if the global id is not currently live (removed,
// or never allocated).
func (t *Tracker) GlobalToPacked(global domain.GlobalGroupID) (uint32, bool) {
	packed, ok := t.globalToPacked[global]
	return packed, ok
}

// SortedToGlobal returns the packed-index-sorted-by-global-id permutation
// (loom's cross_cat.cc sorted_to_globals: checkpoint dumps want groups in a
// deterministic global order, not creation-packed order).
func (t *Tracker) SortedToGlobal() []domain.GlobalGroupID {
	out := append([]domain.GlobalGroupID(nil), t.packedToGlobal...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
