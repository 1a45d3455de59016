package model

import (
	"math"
	"math/rand"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/clustering"
	"github.com/crosscatio/crosscat/internal/engine/idtracker"
	"github.com/crosscatio/crosscat/internal/family"
)

// TareCacheEntry caches one tare's per-group contribution, in either mode
// spec §4.3 describes: "cached" mode holds the tare's score_value for every
// live group; "lazy" mode allocates a per-group Counts vector that is kept
// sized with the groups, but nothing in this package fills or flushes it.
type TareCacheEntry struct {
	Cached bool
	Scores []float64
	Counts []uint32
}

func newTareCacheEntry(packedSize int, cached bool) TareCacheEntry {
	e := TareCacheEntry{Cached: cached}
	if cached {
		e.Scores = make([]float64, packedSize)
	} else {
		e.Counts = make([]uint32, packedSize)
	}
	return e
}

// ProductMixture holds, per kind, the per-group sufficient statistics for
// every feature the kind owns, the clustering counts, the id tracker, and
// the tare cache. MaintainingCache must be true for score operations and
// may be dropped during bulk feature rewiring (spec §4.3).
type ProductMixture struct {
	Groups           [][]family.Group // [featureIdx][packedGroupIdx]
	Clustering       *clustering.GroupCounts
	IDs              *idtracker.Tracker
	Tares            []domain.ProductValue
	TareCache        []TareCacheEntry
	MaintainingCache bool
	cachedTares      bool
	rowCount         uint64
}

// NewMixture returns an empty mixture over reserveSize always-present
// reserve groups under a Pitman-Yor(alpha, discount) clustering prior.
// cachedTares selects the tare-cache mode (true = cached scores, false =
// lazy pending counts); see TareCacheEntry. The id tracker only ever
// tracks occupied groups (spec §3's global ids have no meaning for an
// as-yet-unused reserve), so it starts empty even though Clustering starts
// with reserveSize reserve slots already appended.
func NewMixture(alpha, discount float64, reserveSize int, cachedTares bool) *ProductMixture {
	return &ProductMixture{
		Clustering:       clustering.New(alpha, discount, reserveSize),
		IDs:              idtracker.New(),
		MaintainingCache: true,
		cachedTares:      cachedTares,
	}
}

// NewMixtureFromClustering builds a mixture over an already-populated
// clustering (typically clustering.GroupCounts.Clone() of a live kind's
// clustering) with no feature groups yet; InitUnobserved must follow. Used
// by the kind kernel's shadow proposer (spec §4.6), which starts each kind's
// shadow mixture from that kind's current row partition.
func NewMixtureFromClustering(clustering *clustering.GroupCounts, cachedTares bool) *ProductMixture {
	return &ProductMixture{
		Clustering:       clustering,
		IDs:              idtracker.New(),
		MaintainingCache: true,
		cachedTares:      cachedTares,
	}
}

// InitUnobserved sizes every feature's Groups row and seeds the id tracker
// to match mx.Clustering's current occupied/reserve layout, with every
// group starting empty (spec §4.6 step 1: the kind proposer's shadow
// mixture begins "as if" every feature belonged to this kind's existing row
// partition, but with zero observed data — real data is replayed in by the
// same AddDiff/RemoveDiff calls the category kernel drives, not by this
// call). Any prior Groups contents are discarded; Tares and TareCache are
// left unchanged, and the occupied ids are appended to mx.IDs.
func (mx *ProductMixture) InitUnobserved(model *ProductModel, rng *rand.Rand) {
	size := mx.Clustering.Len()
	mx.Groups = make([][]family.Group, len(model.Features))
	for f, slot := range model.Features {
		row := make([]family.Group, size)
		for g := range row {
			row[g] = family.NewGroup(slot.Kind, slot.Shared, rng)
		}
		mx.Groups[f] = row
	}
	occupied := size - mx.Clustering.ReserveSize()
	for i := 0; i < occupied; i++ {
		mx.IDs.Add()
	}
}

// ScoreFeature is feature f's total marginal log-likelihood under mx's
// current group partition: the sum of every live group's ScoreData (spec
// §4.6 "score_feature", the per-feature-per-kind entry the kind proposer's
// likelihood matrix is built from).
func (mx *ProductMixture) ScoreFeature(model *ProductModel, f int, rng *rand.Rand) float64 {
	shared := model.Features[f].Shared
	var total float64
	for _, grp := range mx.Groups[f] {
		total += grp.ScoreData(shared, rng)
	}
	return total
}

// SpliceFeature rewires feature srcPos from src/srcMixture to dst/dstMixture
// using proposerPos's already-correctly-partitioned group row out of
// proposerModel/proposerMixture, rather than recomputing it: the kind
// proposer has tracked this feature's sufficient statistics under every
// kind's row clustering all along (spec §4.6's feature rewire step), so its
// row for the destination kind is already exactly what dstMixture needs.
// proposerModel/proposerMixture are left untouched; they are rebuilt wholesale
// by the next MixtureInitUnobserved regardless.
func SpliceFeature(
	proposerModel *ProductModel, proposerMixture *ProductMixture, proposerPos int,
	src *ProductModel, srcMixture *ProductMixture, srcPos int,
	dst *ProductModel, dstMixture *ProductMixture,
) {
	slot := proposerModel.Features[proposerPos]
	dst.Features = append(dst.Features, slot)
	dstMixture.Groups = append(dstMixture.Groups, proposerMixture.Groups[proposerPos])

	src.removeFeature(srcPos)
	srcMixture.RemoveFeature(srcPos)
}

// PackedSize is the number of live groups (occupied plus reserve), the
// quantity every feature's Groups row and every tare cache entry must
// match (spec §4.3 invariant: "every feature table has packed_size groups").
func (mx *ProductMixture) PackedSize() int { return mx.Clustering.Len() }

// AddFeature appends a fresh, freshly-Init'd per-group row for a newly
// assigned feature (kind kernel splice-in) and a matching tare cache
// widening is not needed since tare cache is per-mixture, not per-feature.
func (mx *ProductMixture) AddFeature(kind family.Kind, shared family.Shared, rng *rand.Rand) {
	row := make([]family.Group, mx.PackedSize())
	for g := range row {
		row[g] = family.NewGroup(kind, shared, rng)
	}
	mx.Groups = append(mx.Groups, row)
}

// RemoveFeature drops feature row idx (splice-out), swapping the last row
// into its place to track ProductModel.removeFeature's own swap.
func (mx *ProductMixture) RemoveFeature(idx int) {
	last := len(mx.Groups) - 1
	mx.Groups[idx] = mx.Groups[last]
	mx.Groups = mx.Groups[:last]
}

// AddTare registers a new tare definition and widens the tare cache by one
// entry, initialised empty (the caller is expected to populate it via
// RefreshTareCache once group scores/counts are known).
func (mx *ProductMixture) AddTare(v domain.ProductValue) {
	mx.Tares = append(mx.Tares, v)
	mx.TareCache = append(mx.TareCache, newTareCacheEntry(mx.PackedSize(), mx.cachedTares))
}

func swapTruncate[T any](s []T, i, movedFrom uint32, moved bool) []T {
	if moved {
		s[i], s[movedFrom] = s[movedFrom], s[i]
	}
	return s[:len(s)-1]
}

// growReserve widens every feature's Groups row and every tare cache entry
// by one fresh slot after Clustering.Add reports a reserve was consumed
// (spec §4.3: "append a new reserve (new per-group stats in every feature,
// new tare-cache slot)").
func (mx *ProductMixture) growReserve(model *ProductModel, rng *rand.Rand) {
	for f, row := range mx.Groups {
		slot := model.Features[f]
		mx.Groups[f] = append(row, family.NewGroup(slot.Kind, slot.Shared, rng))
	}
	for i, entry := range mx.TareCache {
		if entry.Cached {
			mx.TareCache[i].Scores = append(entry.Scores, 0)
		} else {
			mx.TareCache[i].Counts = append(entry.Counts, 0)
		}
	}
}

// shrinkRemovedGroup mirrors a Clustering.Remove swap+truncate across every
// feature's Groups row, the tare cache, and the id tracker, so every
// parallel per-group table stays in lockstep (spec §3: "if clustering
// signals group emptied, swap-remove the group everywhere, record the
// removal in the id tracker").
func (mx *ProductMixture) shrinkRemovedGroup(i, movedFrom uint32, moved bool) {
	for f, row := range mx.Groups {
		mx.Groups[f] = swapTruncate(row, i, movedFrom, moved)
	}
	for idx, entry := range mx.TareCache {
		if entry.Cached {
			mx.TareCache[idx].Scores = swapTruncate(entry.Scores, i, movedFrom, moved)
		} else {
			mx.TareCache[idx].Counts = swapTruncate(entry.Counts, i, movedFrom, moved)
		}
	}
	mx.IDs.Remove(i)
}

// AddValue applies an observed, un-tared value to packed group id
// groupPacked across every feature in model, growing a reserve if
// Clustering reports this slot was previously a reserve. groupPacked is
// never renumbered by Add (it increments counts[groupPacked] in place), so
// the returned packed index always equals groupPacked; it is returned
// anyway so callers can chain straight into per-feature indexing without
// re-naming the argument.
func (mx *ProductMixture) AddValue(model *ProductModel, groupPacked uint32, values []family.Value, observed []bool, rng *rand.Rand) (packed uint32, usedReserve bool) {
	packed = groupPacked
	usedReserve = mx.Clustering.Add(groupPacked)
	if usedReserve {
		mx.growReserve(model, rng)
		mx.IDs.Add()
	}
	for f, obs := range observed {
		if obs {
			mx.Groups[f][packed].AddValue(model.Features[f].Shared, values[f], rng)
		}
	}
	mx.rowCount++
	return packed, usedReserve
}

// RemoveValue applies the inverse of AddValue at packed group id
// groupPacked, then swap-removes the group everywhere if Clustering
// reports it emptied.
func (mx *ProductMixture) RemoveValue(model *ProductModel, groupPacked uint32, values []family.Value, observed []bool, rng *rand.Rand) (emptied bool) {
	for f, obs := range observed {
		if obs {
			mx.Groups[f][groupPacked].RemoveValue(model.Features[f].Shared, values[f], rng)
		}
	}
	emptied, movedFrom, moved := mx.Clustering.Remove(groupPacked)
	if emptied {
		mx.shrinkRemovedGroup(groupPacked, movedFrom, moved)
	}
	mx.rowCount--
	return emptied
}

// AddDiff applies diff to packed group id groupPacked: pos slots are added
// as AddValue would, neg slots are subtracted directly from the group's
// stats (no clustering-count effect, since removing a neg contribution
// isn't a population change), and the group's cached tare scores are
// refreshed afterward (spec §4.3: "after the update, refresh the tare-cache
// entry at group_id"). Returns the same (packed, usedReserve) AddValue does.
func (mx *ProductMixture) AddDiff(model *ProductModel, groupPacked uint32, diff domain.Diff, rng *rand.Rand) (packed uint32, usedReserve bool) {
	packed = groupPacked
	usedReserve = mx.Clustering.Add(groupPacked)
	if usedReserve {
		mx.growReserve(model, rng)
		mx.IDs.Add()
	}
	mx.applyObservedValue(model, diff.Pos, packed, rng, true)
	mx.applyObservedValue(model, diff.Neg, packed, rng, false)
	mx.refreshTareCache(model, packed, rng)
	mx.rowCount++
	return packed, usedReserve
}

// CountRows is the number of rows currently assigned into this mixture
// (every AddDiff or AddValue less every RemoveDiff or RemoveValue), maintained incrementally so a query
// service built on top of the core never needs an O(rows) scan to answer
// "how many rows does this kind hold" (see SPEC_FULL.md §5 point 4).
func (mx *ProductMixture) CountRows() uint64 { return mx.rowCount }

// RemoveDiff is AddDiff's exact inverse at packed group id groupPacked: pos
// slots are subtracted, neg slots are added back, then the clustering count
// is decremented and the group swap-removed everywhere if it emptied.
func (mx *ProductMixture) RemoveDiff(model *ProductModel, groupPacked uint32, diff domain.Diff, rng *rand.Rand) (emptied bool) {
	mx.applyObservedValue(model, diff.Pos, groupPacked, rng, false)
	mx.applyObservedValue(model, diff.Neg, groupPacked, rng, true)
	emptied, movedFrom, moved := mx.Clustering.Remove(groupPacked)
	if emptied {
		mx.shrinkRemovedGroup(groupPacked, movedFrom, moved)
	} else {
		mx.refreshTareCache(model, groupPacked, rng)
	}
	mx.rowCount--
	return emptied
}

// applyObservedValue walks v's observed slots in family order and either
// adds (add=true) or removes (add=false) each into group packed.
func (mx *ProductMixture) applyObservedValue(model *ProductModel, v domain.ProductValue, packed uint32, rng *rand.Rand, add bool) {
	cursor := domain.NewCursor(v)
	for f, slot := range model.Features {
		observed, boolVal, countVal, realVal := cursor.Next(f, slot.Block)
		if !observed {
			continue
		}
		val := familyValueFor(slot, boolVal, countVal, realVal)
		if add {
			mx.Groups[f][packed].AddValue(slot.Shared, val, rng)
		} else {
			mx.Groups[f][packed].RemoveValue(slot.Shared, val, rng)
		}
	}
}

// refreshTareCache recomputes every cached tare's score for packed group
// (lazy-mode entries are left alone; their Counts are not updated here or
// anywhere else).
func (mx *ProductMixture) refreshTareCache(model *ProductModel, packed uint32, rng *rand.Rand) {
	for idx, tare := range mx.Tares {
		if !mx.TareCache[idx].Cached {
			continue
		}
		var score float64
		cursor := domain.NewCursor(tare)
		for f, slot := range model.Features {
			observed, boolVal, countVal, realVal := cursor.Next(f, slot.Block)
			if !observed {
				continue
			}
			val := familyValueFor(slot, boolVal, countVal, realVal)
			score += mx.Groups[f][packed].ScoreValue(slot.Shared, val, rng)
		}
		mx.TareCache[idx].Scores[packed] = score
	}
}

// ScoreValue writes one log-likelihood per live group into out (length
// PackedSize()), summing each feature's ScoreValue for the features
// observed in values (spec §4.3/§4.4: additive across features).
// Precondition: MaintainingCache.
func (mx *ProductMixture) ScoreValue(model *ProductModel, values []family.Value, observed []bool, out []float64, rng *rand.Rand) {
	for g := range out {
		out[g] = 0
	}
	for f, obs := range observed {
		if !obs {
			continue
		}
		shared := model.Features[f].Shared
		v := values[f]
		for g, grp := range mx.Groups[f] {
			out[g] += grp.ScoreValue(shared, v, rng)
		}
	}
}

// ScoreDataGrid scores feature f's total marginal log-likelihood under each
// candidate Shared in grid, writing one entry per candidate into out (spec
// §4.4's generic grid-Gibbs visitor, `Mixture::score_data_grid`). Candidates
// are not installed into model; the hyperparameter kernel commits whichever
// one it draws afterward.
func (mx *ProductMixture) ScoreDataGrid(f int, grid []family.Shared, out []float64, rng *rand.Rand) {
	for i, cand := range grid {
		var total float64
		for _, grp := range mx.Groups[f] {
			total += grp.ScoreData(cand, rng)
		}
		out[i] = total
	}
}

// RefreshTareCache recomputes every cached-mode tare's score across every
// live group, for every feature in model. Spec §4.7: "after resampling,
// each feature's cache is reinitialised" — since a tare's cached score sums
// contributions across every feature, any feature's hyperparameter change
// invalidates the whole cache, not just that one feature's slice of it.
func (mx *ProductMixture) RefreshTareCache(model *ProductModel, rng *rand.Rand) {
	for g := 0; g < mx.PackedSize(); g++ {
		mx.refreshTareCache(model, uint32(g), rng)
	}
}

// ScoreValueNormalized is ScoreValue, additionally max-subtracting and
// renormalizing out into a proper probability vector (sums to 1). This is
// the `normalize_small` code path spec.md §9 leaves disabled by default: the
// source guards it behind a build flag that defaults off because the
// unnormalized scores are what every kernel's Pitman-Yor-weighted draw
// actually wants. Nothing in the repository calls it.
func (mx *ProductMixture) ScoreValueNormalized(model *ProductModel, values []family.Value, observed []bool, out []float64, rng *rand.Rand) {
	mx.ScoreValue(model, values, observed, out, rng)
	if len(out) == 0 {
		return
	}
	max := out[0]
	for _, s := range out[1:] {
		if s > max {
			max = s
		}
	}
	var total float64
	for i, s := range out {
		w := math.Exp(s - max)
		out[i] = w
		total += w
	}
	if total <= 0 {
		return
	}
	for i := range out {
		out[i] /= total
	}
}

// ScoreDiff is score_value(pos) - score_value(neg) + sum(tare scores). The
// neg contribution folds into the same out vector with a negated sign
// (spec §4.3: "the neg contribution is folded by negating the scratch
// vector... so the inner hot path stays a single read_value driver") rather
// than computing pos and neg into separate buffers and subtracting.
func (mx *ProductMixture) ScoreDiff(model *ProductModel, diff domain.Diff, out []float64, rng *rand.Rand) {
	for g := range out {
		out[g] = 0
	}
	mx.accumulateObservedValue(model, diff.Pos, out, rng, 1)
	mx.accumulateObservedValue(model, diff.Neg, out, rng, -1)
	for _, tareID := range diff.Tares {
		entry := mx.TareCache[tareID]
		if entry.Cached {
			for g, s := range entry.Scores {
				out[g] += s
			}
		}
	}
}

// accumulateObservedValue visits v's observed slots in family order (the
// product-value driver, spec §4.3 "Read/write value drivers") and adds
// sign*score_value into out.
func (mx *ProductMixture) accumulateObservedValue(model *ProductModel, v domain.ProductValue, out []float64, rng *rand.Rand, sign float64) {
	cursor := domain.NewCursor(v)
	for f, slot := range model.Features {
		observed, boolVal, countVal, realVal := cursor.Next(f, slot.Block)
		if !observed {
			continue
		}
		val := familyValueFor(slot, boolVal, countVal, realVal)
		for g, grp := range mx.Groups[f] {
			out[g] += sign * grp.ScoreValue(slot.Shared, val, rng)
		}
	}
}

func familyValueFor(slot FeatureSlot, b bool, c uint32, r float32) family.Value {
	return ValueFor(slot, b, c, r)
}

// ValueFor converts a Cursor's decoded (bool, count, real) triple into the
// family.Value slot's block actually reads, for callers outside this
// package that need to walk a ProductValue against a ProductModel (the kind
// kernel's proposer tare bulk-apply, spec §4.6 step 2).
func ValueFor(slot FeatureSlot, b bool, c uint32, r float32) family.Value {
	switch slot.Block {
	case domain.BlockBoolean:
		return family.BoolValue(b)
	case domain.BlockReal:
		return family.RealValue(r)
	default:
		return family.CountValue(c)
	}
}

// SampleValue draws a group id from probs (assumed already normalized or
// proportional) then samples one value per feature from that group's
// predictive.
func (mx *ProductMixture) SampleValue(model *ProductModel, probs []float64, rng *rand.Rand) (group uint32, values []family.Value) {
	var total float64
	for _, p := range probs {
		total += p
	}
	r := rng.Float64() * total
	var cum float64
	group = uint32(len(probs) - 1)
	for g, p := range probs {
		cum += p
		if r < cum {
			group = uint32(g)
			break
		}
	}
	values = make([]family.Value, len(model.Features))
	for f, slot := range model.Features {
		values[f] = mx.Groups[f][group].SampleValue(slot.Shared, rng)
	}
	return group, values
}

// MoveFeature transfers feature srcPos's shared parameters and per-group
// stats from src/srcMixture to dst/dstMixture, then removes the index from
// the source (spec §4.3 move_feature_to). Precondition: neither mixture is
// MaintainingCache, and both have the same PackedSize.
func MoveFeature(src *ProductModel, srcMixture *ProductMixture, srcPos int, dst *ProductModel, dstMixture *ProductMixture) error {
	if srcMixture.MaintainingCache || dstMixture.MaintainingCache {
		return domain.ErrInvalidHyperparameters
	}
	if srcMixture.PackedSize() != dstMixture.PackedSize() {
		return domain.ErrSchemaMismatch
	}
	slot := src.Features[srcPos]
	dst.Features = append(dst.Features, slot)
	dstMixture.Groups = append(dstMixture.Groups, srcMixture.Groups[srcPos])

	src.removeFeature(srcPos)
	srcMixture.RemoveFeature(srcPos)
	return nil
}
