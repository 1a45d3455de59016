// Package crosscat ties a schema, a set of kinds (each an independent
// product model + product mixture), and the feature routing table into the
// single structure the category kernel, kind kernel, hyperparameter kernel,
// and driver all operate on. Grounded on original_source/src/cross_cat.hpp's
// CrossCat struct.
package crosscat

import (
	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/model"
)

// Kind is one column partition: its product model, product mixture, and the
// set of global feature ids it currently owns.
type Kind struct {
	Model      *model.ProductModel
	Mixture    *model.ProductMixture
	FeatureIDs map[domain.FeatureID]struct{}
}

// PositionOf returns the index of feature id within k.Model.Features.
func (k *Kind) PositionOf(id domain.FeatureID) (int, bool) {
	return k.Model.PositionOf(id)
}

// NewKind returns an empty kind with the given clustering hyperparameters.
// Every live kind's mixture runs in cached tare mode (original_source/src/
// cross_cat.hpp fixes FastProductMixture, the cached variant, for every live
// kind at compile time); the lazy/uncached mode exists only for the kind
// kernel's shadow proposer mixture (kindkernel.Proposer), which never scores
// a diff through the tare cache in the first place.
func NewKind(alpha, discount float64, reserveSize int) *Kind {
	return &Kind{
		Model:      model.New(),
		Mixture:    model.NewMixture(alpha, discount, reserveSize, true),
		FeatureIDs: make(map[domain.FeatureID]struct{}),
	}
}

// CrossCat holds the whole cross-categorization state: the declared schema,
// one Kind per column partition, the routing splitter built from each
// feature's current kind assignment, and the tare rows shared across all
// kinds.
type CrossCat struct {
	Schema          domain.Schema
	Kinds           []*Kind
	Tares           []domain.ProductValue
	FeatureIDToKind []domain.KindID
	splitter        *model.Splitter

	// TopologyAlpha/TopologyDiscount are the outer Pitman-Yor clustering
	// hyperparameters governing how features partition into kinds (spec
	// §4.6's block PY sampler, §4.7 task 0). The hyperparameter kernel
	// resamples these; the kind kernel only reads them.
	TopologyAlpha    float64
	TopologyDiscount float64
}

// New returns an empty CrossCat over schema with no kinds and an
// uninformative topology prior; callers populate Kinds directly or via the
// kind kernel before routing any rows.
func New(schema domain.Schema) *CrossCat {
	return &CrossCat{
		Schema:           schema,
		FeatureIDToKind:  make([]domain.KindID, schema.Total()),
		TopologyAlpha:    1.0,
		TopologyDiscount: 0.0,
	}
}

// UpdateSplitter rebuilds the feature_id -> (kind, local position) routing
// table from the current FeatureIDToKind assignment. Must be called after
// any kind kernel move before the next value_split/value_join/diff_split.
func (cc *CrossCat) UpdateSplitter() {
	blocks := make([]domain.Block, cc.Schema.Total())
	kindOf := make([]int, cc.Schema.Total())
	for f := range blocks {
		block, _ := cc.Schema.BlockOf(f)
		blocks[f] = block
		kindOf[f] = int(cc.FeatureIDToKind[f])
	}
	cc.splitter = model.NewSplitter(blocks, kindOf)
}

// ValueSplit routes a full product value into one partial value per kind,
// in kind order.
func (cc *CrossCat) ValueSplit(full domain.ProductValue) []domain.ProductValue {
	return cc.splitter.Split(full)
}

// ValueJoin recombines one partial value per kind back into a full product
// value.
func (cc *CrossCat) ValueJoin(parts []domain.ProductValue) (domain.ProductValue, error) {
	return cc.splitter.Join(parts)
}

// DiffSplit routes a full diff into one partial diff per kind: pos and neg
// are each split independently via the routing table; tare ids are shared
// verbatim across every partial, since tares are corpus-level and a kind's
// per-feature tare contribution is selected by the kind's own tare cache,
// not by re-slicing the tare row itself.
func (cc *CrossCat) DiffSplit(full domain.Diff) []domain.Diff {
	posParts := cc.splitter.Split(full.Pos)
	negParts := cc.splitter.Split(full.Neg)
	out := make([]domain.Diff, len(cc.Kinds))
	for k := range out {
		out[k] = domain.Diff{Pos: posParts[k], Neg: negParts[k], Tares: full.Tares}
	}
	return out
}
