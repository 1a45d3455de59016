// Package kindkernel implements the kind (column-partition) kernel: the
// periodic Gibbs sweep that reassigns features to kinds, plus the shadow
// "proposer" mixture that scores every feature under every kind's current
// row clustering without ever touching the live cross-categorization state.
// Grounded on original_source/src/kind_kernel.cc/.hpp and
// original_source/src/kind_proposer.cc/.hpp.
package kindkernel

import (
	"math/rand"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
	"github.com/crosscatio/crosscat/internal/engine/model"
)

// ProposerKind is one kind's shadow model+mixture: a model holding every
// feature in the corpus (not just the ones the matching real kind owns) and
// a mixture sharing that kind's current row clustering.
type ProposerKind struct {
	Model   *model.ProductModel
	Mixture *model.ProductMixture
}

// Proposer holds one ProposerKind per real kind (spec §4.6's shadow
// mixture): kinds[i] scores "what if every feature belonged to real kind
// i's row partition". Rebuilt wholesale by MixtureInitUnobserved, then kept
// in lockstep with the real cross_cat by replaying the same AddRow/RemoveRow
// calls (see AddRow/RemoveRow below).
type Proposer struct {
	Kinds []ProposerKind

	// Stale reports that the shadow mixture no longer matches the real
	// cross_cat partition (spec §4.6 step 1: "if... out of date, rebuild
	// it"). True on construction, since there's nothing to rebuild from yet;
	// the kind kernel's Run rebuilds the proposer at its start when Stale is
	// set, and rebuilds it again after its feature moves.
	Stale bool
}

// NewProposer returns an empty, stale proposer; MixtureInitUnobserved must
// be called before use.
func NewProposer() *Proposer { return &Proposer{Stale: true} }

// Clear drops every proposer kind, mirroring KindProposer::clear.
func (p *Proposer) Clear() { p.Kinds = nil }

// modelLoad builds one merged model holding every feature in ascending
// feature-id order, each slot aliasing its owning real kind's Shared
// (spec §4.6 model_load: "extend the proposer's model from every kind's
// model in turn"). Since Shared is held by reference, hyperparameter
// updates the hyper kernel makes to a real kind's feature are visible to
// the proposer's copy of the same slot with no further synchronization.
func modelLoad(cc *crosscat.CrossCat) *model.ProductModel {
	merged := model.New()
	for fid, k := range cc.FeatureIDToKind {
		kind := cc.Kinds[k]
		pos, ok := kind.PositionOf(domain.FeatureID(fid))
		if !ok {
			continue
		}
		merged.Features = append(merged.Features, kind.Model.Features[pos])
	}
	return merged
}

// MixtureInitUnobserved rebuilds every proposer kind from scratch: one
// shadow kind per real kind, cloning that real kind's clustering counts but
// starting every feature's per-group statistics empty (spec §4.6 step 1).
// Called through the kind kernel's rebuildProposer: at the start of Run when
// the proposer is stale, and again at the end of every Run, since a rewire
// invalidates whatever the proposer had accumulated against the old
// partition.
func (p *Proposer) MixtureInitUnobserved(cc *crosscat.CrossCat, rng *rand.Rand) {
	merged := modelLoad(cc)
	p.Kinds = make([]ProposerKind, len(cc.Kinds))
	for i, kind := range cc.Kinds {
		pm := &model.ProductModel{Features: append([]model.FeatureSlot(nil), merged.Features...)}
		// The shadow proposer always runs in lazy tare-cache mode
		// (original_source/src/kind_proposer.hpp), unlike every live kind's
		// cached mixture (crosscat.NewKind): it never scores a diff through
		// ScoreDiff/the tare cache, only ScoreFeature against raw group
		// stats that BulkApplyTares folds in directly.
		mx := model.NewMixtureFromClustering(kind.Mixture.Clustering.Clone(), false)
		mx.InitUnobserved(pm, rng)
		for _, tare := range cc.Tares {
			mx.AddTare(tare)
		}
		p.Kinds[i] = ProposerKind{Model: pm, Mixture: mx}
	}
}

// BulkApplyTares folds each corpus tare's value into every occupied group's
// sufficient statistics, scaled by that group's current row count, using the
// family.Group.AddRepeatedValue fast path instead of one AddValue call per
// row (spec §4.6 step 2: "for each tare, add it bulk-into the proposer
// mixture... with repeat = count per group"). Must run once per rebuild,
// right after MixtureInitUnobserved and before any feature is scored: a
// freshly Init'd group holds no data at all, so without this step every
// kind would look equally (un)informative regardless of which rows it
// actually holds.
func (p *Proposer) BulkApplyTares(cc *crosscat.CrossCat, rng *rand.Rand) {
	for _, pk := range p.Kinds {
		for _, tare := range cc.Tares {
			cursor := domain.NewCursor(tare)
			for f, slot := range pk.Model.Features {
				observed, b, c, r := cursor.Next(f, slot.Block)
				if !observed {
					continue
				}
				val := model.ValueFor(slot, b, c, r)
				for g := 0; g < pk.Mixture.PackedSize(); g++ {
					count := pk.Mixture.Clustering.Count(uint32(g))
					if count == 0 {
						continue
					}
					pk.Mixture.Groups[f][g].AddRepeatedValue(slot.Shared, val, count, rng)
				}
			}
		}
		pk.Mixture.RefreshTareCache(pk.Model, rng)
	}
}

// AddRow applies diff to every shadow kind's mixture at the packed group id
// catkernel.AddRowGroups assigned in the matching real kind, so the shadow
// clustering stays in lockstep without ever resampling independently (spec
// §4.6: the proposer "replays whatever cross_cat decided", it never decides
// on its own).
func (p *Proposer) AddRow(groupPacked []uint32, diff domain.Diff, rng *rand.Rand) {
	for k, pk := range p.Kinds {
		pk.Mixture.AddDiff(pk.Model, groupPacked[k], diff, rng)
	}
}

// RemoveRow is AddRow's inverse, given the packed group ids
// catkernel.RemoveRowGroups resolved in the matching real kind.
func (p *Proposer) RemoveRow(groupPacked []uint32, diff domain.Diff, rng *rand.Rand) {
	for k, pk := range p.Kinds {
		pk.Mixture.RemoveDiff(pk.Model, groupPacked[k], diff, rng)
	}
}

// ScoreFeatureAcrossKinds returns feature f's raw (pre-likelihood-transform)
// marginal log-likelihood under every shadow kind's current partition: entry
// k is ProposerKind[k].Mixture.ScoreFeature(f). The caller (the kind
// kernel's Run, via scoreFeatures) turns this into a likelihood row via
// sampling.ScoresToLikelihoods and may fan this call out across features
// concurrently, since each call only reads its own feature column.
func (p *Proposer) ScoreFeatureAcrossKinds(f int, rng *rand.Rand) []float64 {
	scores := make([]float64, len(p.Kinds))
	for k, pk := range p.Kinds {
		scores[k] = pk.Mixture.ScoreFeature(pk.Model, f, rng)
	}
	return scores
}
