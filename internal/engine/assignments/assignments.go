// Package assignments is the driver's row-id/group-id bookkeeping: which
// rows have been added to the mixture, and which group each holds in each
// kind. Both are FIFOs rather than random-access tables because the
// streaming driver only ever touches the oldest row (on remove) or appends a
// new one (on add); a deque is sufficient and cheaper to keep consistent
// than a map.
package assignments

import (
	"github.com/crosscatio/crosscat/internal/domain"
)

// queue is a small FIFO over a slice, mirroring the source's deque-backed
// Queue<T>: push at the back, pop from the front.
type queue[T any] struct {
	items []T
}

func (q *queue[T]) empty() bool   { return len(q.items) == 0 }
func (q *queue[T]) size() int     { return len(q.items) }
func (q *queue[T]) front() T      { return q.items[0] }
func (q *queue[T]) clear()        { q.items = q.items[:0] }
func (q *queue[T]) push(t T)      { q.items = append(q.items, t) }
func (q *queue[T]) at(i int) T    { return q.items[i] }

func (q *queue[T]) pop() (T, error) {
	var zero T
	if q.empty() {
		return zero, domain.ErrEmptyPop
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, nil
}

// Assignments tracks, per row (in row-arrival order), the row's id and its
// group id in every kind. Rows and group-id slots are added/removed strictly
// FIFO: push_row/push_group append, pop_row/pop_group remove the oldest.
type Assignments struct {
	rows  queue[domain.RowID]
	kinds []queue[domain.GlobalGroupID]
	index map[domain.RowID]struct{}
}

// New returns an Assignments store with kindCount empty per-kind group-id
// queues.
func New(kindCount int) *Assignments {
	a := &Assignments{}
	a.Init(kindCount)
	return a
}

// Init resets the store to kindCount empty kinds.
func (a *Assignments) Init(kindCount int) {
	a.rows.clear()
	a.kinds = make([]queue[domain.GlobalGroupID], kindCount)
	a.index = make(map[domain.RowID]struct{})
}

// Clear empties every queue without changing kind_count.
func (a *Assignments) Clear() {
	a.rows.clear()
	for i := range a.kinds {
		a.kinds[i].clear()
	}
	for id := range a.index {
		delete(a.index, id)
	}
}

func (a *Assignments) RowCount() int  { return a.rows.size() }
func (a *Assignments) KindCount() int { return len(a.kinds) }

// PushRow appends a newly-added row's id. Fails with ErrDuplicateRow if id
// is already present — a fatal driver bug, since row ids must be unique
// across the lifetime of the store.
func (a *Assignments) PushRow(id domain.RowID) error {
	if _, dup := a.index[id]; dup {
		return domain.ErrDuplicateRow
	}
	a.rows.push(id)
	a.index[id] = struct{}{}
	return nil
}

// PopRow removes and returns the oldest row id. Fails with ErrEmptyPop on
// underflow.
func (a *Assignments) PopRow() (domain.RowID, error) {
	id, err := a.rows.pop()
	if err != nil {
		return 0, err
	}
	delete(a.index, id)
	return id, nil
}

// RowIDs returns the row ids in FIFO order; the slice is not a live view.
func (a *Assignments) RowIDs() []domain.RowID {
	out := make([]domain.RowID, a.rows.size())
	copy(out, a.rows.items)
	return out
}

// PushGroup appends globalID to kind's group-id queue.
func (a *Assignments) PushGroup(kind domain.KindID, globalID domain.GlobalGroupID) {
	a.kinds[kind].push(globalID)
}

// PopGroup removes and returns the oldest group id held in kind. Fails with
// ErrEmptyPop on underflow.
func (a *Assignments) PopGroup(kind domain.KindID) (domain.GlobalGroupID, error) {
	return a.kinds[kind].pop()
}

// GroupID returns the group id row r (by position, 0-based arrival order)
// holds in kind, without popping.
func (a *Assignments) GroupID(kind domain.KindID, r int) domain.GlobalGroupID {
	return a.kinds[kind].at(r)
}

// GroupIDs returns kind's group ids in row-arrival order; the slice is not a
// live view.
func (a *Assignments) GroupIDs(kind domain.KindID) []domain.GlobalGroupID {
	out := make([]domain.GlobalGroupID, a.kinds[kind].size())
	copy(out, a.kinds[kind].items)
	return out
}

// PackedAddKind appends a new, empty per-kind group-id queue and returns its
// index (the new kind's packed id). Mirrors the kind kernel splitting a kind
// in two or seeding a newly-occupied kind.
func (a *Assignments) PackedAddKind() domain.KindID {
	a.kinds = append(a.kinds, queue[domain.GlobalGroupID]{})
	return domain.KindID(len(a.kinds) - 1)
}

// PackedRemoveKind drops kind's queue, swapping the last kind into its slot
// (packed ids stay dense in [0, kind_count)). The caller is responsible for
// having already moved every feature and row assignment out of kind.
func (a *Assignments) PackedRemoveKind(kind domain.KindID) {
	last := domain.KindID(len(a.kinds) - 1)
	if kind != last {
		a.kinds[kind] = a.kinds[last]
	}
	a.kinds = a.kinds[:last]
}

// Validate checks that every kind's group-id queue has exactly row_count
// entries, per the source's own Assignments::validate invariant.
func (a *Assignments) Validate() error {
	n := a.rows.size()
	for _, k := range a.kinds {
		if k.size() != n {
			return domain.ErrSchemaMismatch
		}
	}
	return nil
}

// Record is one row's snapshot entry: its id and its group id in every kind,
// in kind-packed order.
type Record struct {
	RowID    domain.RowID
	GroupIDs []domain.GlobalGroupID
}

// Snapshot packs the store into one Record per row, remapping each kind's
// global group ids to their positions in sortedToGlobal[k]
// (sortedToGlobal[k][sorted] = global). The order comes from the caller; the
// driver passes idtracker's SortedToGlobal, which is ascending global id, not
// popularity, so snapshot ids still follow global id allocation order.
// Checkpointing's round-trippable state
// snapshot (driver, schedule state) is in scope; the on-disk container
// format is not — this only produces the in-memory record list.
func (a *Assignments) Snapshot(sortedToGlobal [][]domain.GlobalGroupID) ([]Record, error) {
	if len(sortedToGlobal) != len(a.kinds) {
		return nil, domain.ErrSchemaMismatch
	}
	globalToSorted := make([]map[domain.GlobalGroupID]domain.GlobalGroupID, len(a.kinds))
	for k, sortedToGlobalK := range sortedToGlobal {
		m := make(map[domain.GlobalGroupID]domain.GlobalGroupID, len(sortedToGlobalK))
		for sorted, global := range sortedToGlobalK {
			m[global] = domain.GlobalGroupID(sorted)
		}
		globalToSorted[k] = m
	}

	n := a.rows.size()
	out := make([]Record, n)
	for r := 0; r < n; r++ {
		rec := Record{RowID: a.rows.at(r), GroupIDs: make([]domain.GlobalGroupID, len(a.kinds))}
		for k := range a.kinds {
			global := a.kinds[k].at(r)
			sorted, ok := globalToSorted[k][global]
			if !ok {
				return nil, domain.ErrSchemaMismatch
			}
			rec.GroupIDs[k] = sorted
		}
		out[r] = rec
	}
	return out, nil
}

// Restore replaces the store's contents from records, remapping each
// record's sorted group ids back to global ids via sortedToGlobal.
func (a *Assignments) Restore(records []Record, sortedToGlobal [][]domain.GlobalGroupID) error {
	a.Init(len(sortedToGlobal))
	for _, rec := range records {
		if len(rec.GroupIDs) != len(sortedToGlobal) {
			return domain.ErrSchemaMismatch
		}
		if err := a.PushRow(rec.RowID); err != nil {
			return err
		}
		for k, sorted := range rec.GroupIDs {
			if int(sorted) >= len(sortedToGlobal[k]) {
				return domain.ErrSchemaMismatch
			}
			a.PushGroup(domain.KindID(k), sortedToGlobal[k][sorted])
		}
	}
	return nil
}
