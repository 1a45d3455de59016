package domain

import "sort"

// ─── Observed-mask encodings ───────────────────────────────────────────────

// Encoding selects which of the four observed-mask encodings a ProductValue
// uses. Readers must handle all four; writers pick whichever minimises size.
type Encoding int

const (
	// EncodingAll: every slot is observed. No mask is carried.
	EncodingAll Encoding = iota
	// EncodingDense: a bitmap of length Schema.Total() selects observed slots.
	EncodingDense
	// EncodingSparse: an ascending sorted list of observed feature indices.
	EncodingSparse
	// EncodingNone: no slot is observed.
	EncodingNone
)

func (e Encoding) String() string {
	switch e {
	case EncodingAll:
		return "ALL"
	case EncodingDense:
		return "DENSE"
	case EncodingSparse:
		return "SPARSE"
	case EncodingNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ProductValue is a row payload carrying one slot per declared feature in
// schema order. Observed slots carry a typed value, densely packed in
// schema order within their block (Bools for the boolean block, Counts for
// the count block, Reals for the real block).
type ProductValue struct {
	Encoding Encoding
	Dense    []bool   // len == schema.Total() when Encoding == EncodingDense
	Sparse   []uint32 // strictly ascending feature indices when EncodingSparse

	Bools  []bool
	Counts []uint32
	Reals  []float32
}

// Empty returns a ProductValue with no slots observed.
func Empty() ProductValue {
	return ProductValue{Encoding: EncodingNone}
}

// Validate checks the observed-mask encoding is well-formed against schema,
// returning ErrInvalidSparsity if the sparse list is not strictly ascending
// or contains an out-of-range index, and ErrSchemaMismatch if a dense mask's
// length disagrees with the schema.
func (v ProductValue) Validate(schema Schema) error {
	total := schema.Total()
	switch v.Encoding {
	case EncodingDense:
		if len(v.Dense) != total {
			return ErrSchemaMismatch
		}
	case EncodingSparse:
		prev := -1
		for _, idx := range v.Sparse {
			if int(idx) <= prev || int(idx) >= total {
				return ErrInvalidSparsity
			}
			prev = int(idx)
		}
	case EncodingAll, EncodingNone:
		// nothing to check structurally
	}
	return nil
}

// IsObserved reports whether the slot at global feature index idx carries a
// value.
func (v ProductValue) IsObserved(idx int) bool {
	switch v.Encoding {
	case EncodingAll:
		return true
	case EncodingNone:
		return false
	case EncodingDense:
		return v.Dense[idx]
	case EncodingSparse:
		i := sort.Search(len(v.Sparse), func(i int) bool { return int(v.Sparse[i]) >= idx })
		return i < len(v.Sparse) && int(v.Sparse[i]) == idx
	default:
		return false
	}
}

// Cursor walks a ProductValue's typed arrays in schema order, handing each
// observed slot's raw value to the caller exactly once and in the dense
// packing order the value was written in. This is the single "read_value
// driver" every add/remove/score hot path is built on: preserving this
// order is the only thing standing between correct inference and silent
// corruption (spec §4.3).
type Cursor struct {
	v              ProductValue
	boolCur        int
	countCur       int
	realCur        int
}

// NewCursor returns a Cursor over v.
func NewCursor(v ProductValue) *Cursor {
	return &Cursor{v: v}
}

// Next reports whether the slot at global feature index idx (of block b) is
// observed, and if so returns its raw value via the matching typed
// accessor. Callers must call Next with strictly increasing idx in schema
// order — exactly the order ProductMixture's applyObservedValue and
// refreshTareCache iterate features in.
func (c *Cursor) Next(idx int, b Block) (observed bool, boolVal bool, countVal uint32, realVal float32) {
	if !c.v.IsObserved(idx) {
		return false, false, 0, 0
	}
	switch b {
	case BlockBoolean:
		boolVal = c.v.Bools[c.boolCur]
		c.boolCur++
	case BlockCount:
		countVal = c.v.Counts[c.countCur]
		c.countCur++
	case BlockReal:
		realVal = c.v.Reals[c.realCur]
		c.realCur++
	}
	return true, boolVal, countVal, realVal
}

// Builder accumulates observed slots in ascending schema order and produces
// a ProductValue using whichever encoding is smallest: ALL if every slot in
// [0,total) was observed, NONE if none were, SPARSE if the observed count is
// at most total/32 (one bit per slot in the dense bitmap, one uint32 per slot
// in the sparse list — the crossover the source picks, carried here),
// otherwise DENSE.
type Builder struct {
	total    int
	observed []bool
	bools    []bool
	counts   []uint32
	reals    []float32
}

// NewBuilder starts a Builder for a schema with the given total feature count.
func NewBuilder(total int) *Builder {
	return &Builder{total: total, observed: make([]bool, total)}
}

// Set records an observed value at global feature index idx. idx must be
// called in ascending order exactly once per observed slot.
func (b *Builder) Set(idx int, block Block, boolVal bool, countVal uint32, realVal float32) {
	b.observed[idx] = true
	switch block {
	case BlockBoolean:
		b.bools = append(b.bools, boolVal)
	case BlockCount:
		b.counts = append(b.counts, countVal)
	case BlockReal:
		b.reals = append(b.reals, realVal)
	}
}

// Build finalises the ProductValue, choosing the smallest encoding.
func (b *Builder) Build() ProductValue {
	n := 0
	for _, o := range b.observed {
		if o {
			n++
		}
	}
	out := ProductValue{Bools: b.bools, Counts: b.counts, Reals: b.reals}
	switch {
	case n == 0:
		out.Encoding = EncodingNone
	case n == b.total:
		out.Encoding = EncodingAll
	case n < b.total/32+1:
		out.Encoding = EncodingSparse
		out.Sparse = make([]uint32, 0, n)
		for i, o := range b.observed {
			if o {
				out.Sparse = append(out.Sparse, uint32(i))
			}
		}
	default:
		out.Encoding = EncodingDense
		out.Dense = append([]bool(nil), b.observed...)
	}
	return out
}

// ─── Diff ───────────────────────────────────────────────────────────────

// Diff is the transport format for a row: Pos minus Neg plus the sum of the
// referenced tares, slot-wise, with absent operands contributing nothing.
type Diff struct {
	Pos   ProductValue
	Neg   ProductValue
	Tares []uint32
}

// FromValue promotes a plain ProductValue to a Diff with empty Neg/Tares.
func FromValue(v ProductValue) Diff {
	return Diff{Pos: v, Neg: Empty()}
}

// ─── Tare ───────────────────────────────────────────────────────────────

// Tare is a canonical "mode row" precomputed from the corpus: per slot,
// dense iff the slot's modal value dominates a threshold of observed rows.
type Tare struct {
	Value ProductValue
	// Count is how many corpus rows this tare stands in for, used by the
	// kind kernel's bulk add_repeated_value fast path (spec §4.6 step 2).
	Count uint32
}
