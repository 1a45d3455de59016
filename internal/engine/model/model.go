// Package model implements the product model and product mixture (spec
// §4.3): the per-kind collection of feature shared parameters and
// per-group sufficient statistics, the tare diff/cache machinery, and the
// splitter that routes a full product value into per-kind partial values.
// Grounded on original_source/src/product_model.hpp,
// original_source/src/product_mixture.hpp and original_source/src/cross_cat.hpp.
package model

import (
	"math/rand"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/family"
)

// FeatureSlot is one feature's position within a kind: its stable id, wire
// family, and corpus-level shared hyperparameters/running stats.
type FeatureSlot struct {
	ID     domain.FeatureID
	Kind   family.Kind
	Block  domain.Block
	Shared family.Shared
}

// ProductModel holds one shared-parameter slot per feature currently
// assigned to a kind (spec §4.3: "the model holds one indexed vector per
// feature family"). Feature order within the slice is the kind's
// position-within-kind ordering the splitter hands out.
type ProductModel struct {
	Features []FeatureSlot
}

// New returns an empty model.
func New() *ProductModel {
	return &ProductModel{}
}

// AddFeature appends a fresh feature slot with default hyperparameters and
// returns its position within the kind.
func (m *ProductModel) AddFeature(id domain.FeatureID, kind family.Kind, block domain.Block, width int) int {
	pos := len(m.Features)
	m.Features = append(m.Features, FeatureSlot{
		ID:     id,
		Kind:   kind,
		Block:  block,
		Shared: family.NewShared(kind, width),
	})
	return pos
}

// AddValue updates feature pos's corpus-level running stats (used by
// generate when sampling new rows from the prior, and by the hyperparameter
// kernel's grid search).
func (m *ProductModel) AddValue(pos int, v family.Value, rng *rand.Rand) {
	m.Features[pos].Shared.AddValue(v, rng)
}

// RemoveValue is AddValue's inverse.
func (m *ProductModel) RemoveValue(pos int, v family.Value, rng *rand.Rand) {
	m.Features[pos].Shared.RemoveValue(v, rng)
}

// PositionOf returns the index of feature id within m.Features.
func (m *ProductModel) PositionOf(id domain.FeatureID) (int, bool) {
	for i, slot := range m.Features {
		if slot.ID == id {
			return i, true
		}
	}
	return 0, false
}

// removeFeature drops the feature at pos, swapping the last slot into its
// place to keep the slice dense (mirrors the caller's matching operation on
// ProductMixture.Groups).
func (m *ProductModel) removeFeature(pos int) {
	last := len(m.Features) - 1
	m.Features[pos] = m.Features[last]
	m.Features = m.Features[:last]
}
