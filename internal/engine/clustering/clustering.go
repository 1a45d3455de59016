// Package clustering implements the Pitman-Yor clustering-counts primitive
// (spec §3 "Clustering counts") that backs both the category kernel's
// per-kind group table and, in a fixed-range form, the kind kernel's block
// Pitman-Yor sampler (see blockpy.go). Grounded on loom's
// cross_cat.hpp/kind_kernel.cc id_tracker + dense-counts bookkeeping.
package clustering

// GroupCounts maintains a dense Pitman-Yor group-count vector with a fixed
// number of always-present, always-empty "reserve" slots trailing the
// occupied range (spec §3: "a fixed empty_group_count number of zero-count
// reserve groups is kept appended at all times"). Sampling a fresh cluster
// never allocates: it just lands on a reserve slot, which Add then tops
// back up. Not safe for concurrent use.
type GroupCounts struct {
	Alpha, Discount float64

	reserveSize  int
	counts       []uint32
	liveReserves int
}

// New returns a GroupCounts with reserveSize zero-count reserve slots and
// no occupied groups.
func New(alpha, discount float64, reserveSize int) *GroupCounts {
	c := &GroupCounts{Alpha: alpha, Discount: discount, reserveSize: reserveSize}
	c.counts = make([]uint32, reserveSize)
	c.liveReserves = reserveSize
	return c
}

// Len reports the total number of packed ids, occupied and reserve.
func (c *GroupCounts) Len() int { return len(c.counts) }

// Count returns the current count at packed index i.
func (c *GroupCounts) Count(i uint32) uint32 { return c.counts[i] }

// ReserveSize reports the configured reserve pool size.
func (c *GroupCounts) ReserveSize() int { return c.reserveSize }

// isReserve reports whether i currently names one of the trailing
// always-empty slots.
func (c *GroupCounts) isReserve(i uint32) bool {
	return int(i) >= len(c.counts)-c.liveReserves
}

// EmptyLikelihood is the unnormalized Pitman-Yor prior mass assigned to
// each individual reserve slot: (alpha + d*occupied_count) / reserve_count.
func (c *GroupCounts) EmptyLikelihood() float64 {
	if c.liveReserves == 0 {
		return 0
	}
	occupied := len(c.counts) - c.liveReserves
	return (c.Alpha + c.Discount*float64(occupied)) / float64(c.liveReserves)
}

// Prior is the unnormalized Pitman-Yor prior mass for slot i.
func (c *GroupCounts) Prior(i uint32) float64 {
	if c.isReserve(i) {
		return c.EmptyLikelihood()
	}
	return float64(c.counts[i]) - c.Discount
}

// FirstReserve is the canonical reserve slot: the leftmost of the trailing
// always-empty range. Every reserve slot carries identical prior mass (see
// EmptyLikelihood), so a sampler that lands on any reserve index should
// canonicalize to this one before calling Add — Add only maintains the
// contiguous occupied-prefix/reserve-suffix layout correctly when the slot
// it consumes sits at this boundary.
func (c *GroupCounts) FirstReserve() uint32 {
	return uint32(len(c.counts) - c.liveReserves)
}

// IsEmpty reports whether slot i currently holds zero count — equivalently,
// whether it is a reserve, since a non-reserve slot is swap-removed the
// instant its count reaches zero.
func (c *GroupCounts) IsEmpty(i uint32) bool {
	return c.counts[i] == 0
}

// OccupiedCounts returns the counts of every currently occupied (non-reserve)
// group, in packed-id order — the sufficient statistic the hyperparameter
// kernel's grid-Gibbs resampler scores a candidate (alpha, discount) against
// (spec §4.7).
func (c *GroupCounts) OccupiedCounts() []uint32 {
	occupied := len(c.counts) - c.liveReserves
	out := make([]uint32, occupied)
	copy(out, c.counts[:occupied])
	return out
}

// Clone returns an independent copy of c's current state, used by the kind
// kernel's shadow proposer mixture (spec §4.6), which starts from a real
// kind's live row clustering but must never mutate it directly.
func (c *GroupCounts) Clone() *GroupCounts {
	cp := &GroupCounts{
		Alpha:        c.Alpha,
		Discount:     c.Discount,
		reserveSize:  c.reserveSize,
		liveReserves: c.liveReserves,
	}
	cp.counts = append([]uint32(nil), c.counts...)
	return cp
}

// NewFromCounts builds a GroupCounts directly from a precomputed count
// vector whose trailing reserveSize entries are all zero, bypassing the
// usual one-Add-at-a-time construction. Used when a freshly sampled kind's
// clustering is seeded from a full CRP draw over existing rows rather than
// replayed one row at a time (spec §4.6 featureless-kind birth).
func NewFromCounts(alpha, discount float64, counts []uint32, reserveSize int) *GroupCounts {
	c := &GroupCounts{Alpha: alpha, Discount: discount, reserveSize: reserveSize}
	c.counts = append([]uint32(nil), counts...)
	c.liveReserves = reserveSize
	return c
}

// Add increments the count at i. usedReserve reports whether i was a
// reserve slot; the caller must then allocate backing per-group storage
// (feature sufficient stats, id tracker entry) for the newly occupied slot,
// since Add immediately tops the reserve pool back up to reserveSize.
func (c *GroupCounts) Add(i uint32) (usedReserve bool) {
	usedReserve = c.isReserve(i)
	c.counts[i]++
	if usedReserve {
		c.liveReserves--
		for c.liveReserves < c.reserveSize {
			c.counts = append(c.counts, 0)
			c.liveReserves++
		}
	}
	return usedReserve
}

// Remove decrements the count at i. If it falls to zero and i was not a
// reserve slot, the now-empty slot is swap-removed with the last occupied
// slot (spec: "swapped with the tail and removed"). When moved is true the
// caller must relocate packed index movedFrom's backing storage to i to
// keep every parallel feature table in sync.
func (c *GroupCounts) Remove(i uint32) (emptied bool, movedFrom uint32, moved bool) {
	c.counts[i]--
	if c.counts[i] != 0 || c.isReserve(i) {
		return false, 0, false
	}
	lastOccupied := uint32(len(c.counts)-c.liveReserves) - 1
	if i != lastOccupied {
		c.counts[i] = c.counts[lastOccupied]
		c.counts[lastOccupied] = 0
		moved, movedFrom = true, lastOccupied
	}
	c.counts = c.counts[:len(c.counts)-1]
	return true, movedFrom, moved
}
