// Package stream implements the streaming row interval (spec.md §4.8): two
// cursors — "unassigned" (runs ahead, feeding the driver's ADD actions) and
// "assigned" (trails behind, feeding REMOVE actions) — over the same
// logical row file, both wrapping cyclically at end-of-file. Grounded on
// original_source/src/stream_interval.hpp's StreamInterval.
//
// The row file format itself (gzip framing, length-prefixed records) is
// explicitly out of THE CORE's scope (spec.md §1); RowSource is the seam an
// external collaborator implements.
package stream

import (
	"fmt"

	"github.com/crosscatio/crosscat/internal/domain"
)

// Record is one row as the stream sees it: an id plus the diff to apply.
type Record struct {
	RowID domain.RowID
	Diff  domain.Diff
}

// RowSource is a random-access, fixed-length row file: Len is the total
// record count and At(i) is the record at zero-based position i. A real
// implementation backs this with a gzip/length-prefixed on-disk format; this
// package only depends on the interface.
type RowSource interface {
	Len() int
	At(i int) Record
}

// MemorySource is a RowSource over an in-memory slice, used by tests and by
// callers (e.g. internal/engine/generate) that materialize a row file
// entirely in memory rather than through disk I/O.
type MemorySource []Record

func (m MemorySource) Len() int        { return len(m) }
func (m MemorySource) At(i int) Record { return m[i] }

// Interval holds the two independent cursors over source. The zero value has
// no source; NewInterval starts both cursors at position 0 (the driver's bootstrap
// case: nothing assigned yet, so "assigned" is never read until at least
// one row has been pushed through the pipeline).
type Interval struct {
	source        RowSource
	unassignedPos int
	assignedPos   int
}

// NewInterval returns an Interval reading from source, with both cursors at
// position 0.
func NewInterval(source RowSource) *Interval {
	return &Interval{source: source}
}

// Load restores cursor positions from a checkpoint (spec.md §6
// "Checkpoint" record's stream-interval fields).
func (iv *Interval) Load(unassignedPos, assignedPos int) {
	iv.unassignedPos = unassignedPos
	iv.assignedPos = assignedPos
}

// Dump returns the current cursor positions for checkpointing.
func (iv *Interval) Dump() (unassignedPos, assignedPos int) {
	return iv.unassignedPos, iv.assignedPos
}

// InitFromAssignments seeks both cursors to match an already-populated
// Assignments store loaded from a prior run (original_source's
// init_from_assignments): the unassigned cursor is placed just past the
// last-assigned row id (so the next ReadUnassigned resumes exactly where the
// prior run left off), and the assigned cursor is placed at the
// first-assigned row id (so REMOVE actions replay assigned rows in the same
// order they were originally added). rowIDs must be in assignment order
// (oldest first), matching Assignments.RowIDs(). Fails with ErrEmptyPop if
// rowIDs is empty (nothing to initialize from) or ErrIO if either target id
// cannot be found in source (a mismatched checkpoint/row-file pair).
func (iv *Interval) InitFromAssignments(rowIDs []domain.RowID) error {
	if len(rowIDs) == 0 {
		return domain.ErrEmptyPop
	}
	n := iv.source.Len()
	if n == 0 {
		return fmt.Errorf("stream: empty row source: %w", domain.ErrIO)
	}

	lastAssigned := rowIDs[len(rowIDs)-1]
	unassignedPos, ok := iv.findPosition(0, n, lastAssigned)
	if !ok {
		return fmt.Errorf("stream: row id %d not found: %w", lastAssigned, domain.ErrIO)
	}
	iv.unassignedPos = (unassignedPos + 1) % n

	firstAssigned := rowIDs[0]
	assignedPos, ok := iv.findPosition(0, n, firstAssigned)
	if !ok {
		return fmt.Errorf("stream: row id %d not found: %w", firstAssigned, domain.ErrIO)
	}
	iv.assignedPos = assignedPos
	return nil
}

// findPosition scans at most n records starting at start for target,
// returning its absolute index. The source's equivalent scans forward from
// wherever its cursor happens to sit and wraps at EOF; since our cursors
// always start this search at 0 and a row id appears exactly once, a single
// linear pass suffices.
func (iv *Interval) findPosition(start, n int, target domain.RowID) (int, bool) {
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if iv.source.At(idx).RowID == target {
			return idx, true
		}
	}
	return 0, false
}

// ReadUnassigned returns the next record from the unassigned cursor,
// advancing it cyclically (wrapping to 0 past the last record) — the
// source's cyclic_read_stream.
func (iv *Interval) ReadUnassigned() Record {
	return iv.readCyclic(&iv.unassignedPos)
}

// ReadAssigned is ReadUnassigned for the assigned cursor.
func (iv *Interval) ReadAssigned() Record {
	return iv.readCyclic(&iv.assignedPos)
}

func (iv *Interval) readCyclic(pos *int) Record {
	n := iv.source.Len()
	rec := iv.source.At(*pos % n)
	*pos = (*pos + 1) % n
	return rec
}
