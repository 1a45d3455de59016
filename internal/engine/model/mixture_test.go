package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/family"
)

func newBooleanModel(n int) (*ProductModel, *ProductMixture) {
	m := New()
	for i := 0; i < n; i++ {
		m.AddFeature(domain.FeatureID(i), family.BetaBernoulli, domain.BlockBoolean, 0)
	}
	mx := NewMixture(1.0, 0.0, 1, true)
	rng := rand.New(rand.NewSource(1))
	for _, slot := range m.Features {
		mx.AddFeature(family.BetaBernoulli, slot.Shared, rng)
	}
	return m, mx
}

func valuesAndObserved(n int, vals ...bool) ([]family.Value, []bool) {
	values := make([]family.Value, n)
	observed := make([]bool, n)
	for i, v := range vals {
		values[i] = family.BoolValue(v)
		observed[i] = true
	}
	return values, observed
}

func TestPackedSizeStartsAtReserveSize(t *testing.T) {
	_, mx := newBooleanModel(2)
	if mx.PackedSize() != 1 {
		t.Fatalf("PackedSize() = %d, want 1 (sole reserve)", mx.PackedSize())
	}
	if len(mx.Groups) != 2 {
		t.Fatalf("len(Groups) = %d, want 2 (one row per feature)", len(mx.Groups))
	}
	for f, row := range mx.Groups {
		if len(row) != 1 {
			t.Errorf("Groups[%d] len = %d, want 1", f, len(row))
		}
	}
}

func TestAddValueIntoReserveGrowsAllParallelTables(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	m, mx := newBooleanModel(2)

	values, observed := valuesAndObserved(2, true)
	packed, usedReserve := mx.AddValue(m, 0, values, observed, rng)
	if !usedReserve {
		t.Fatal("AddValue into the sole reserve should report usedReserve=true")
	}
	if packed != 0 {
		t.Fatalf("packed = %d, want 0", packed)
	}
	if mx.PackedSize() != 2 {
		t.Fatalf("PackedSize() after using the only reserve = %d, want 2", mx.PackedSize())
	}
	for f, row := range mx.Groups {
		if len(row) != 2 {
			t.Errorf("Groups[%d] len = %d, want 2", f, len(row))
		}
	}
	bb := mx.Groups[0][0].(*family.BetaBernoulliGroup)
	if bb.Heads != 1 {
		t.Errorf("feature 0 group 0 Heads = %d, want 1", bb.Heads)
	}
	bb1 := mx.Groups[1][0].(*family.BetaBernoulliGroup)
	if bb1.Heads != 0 || bb1.Tails != 0 {
		t.Errorf("feature 1 (unobserved) group 0 should be untouched, got %+v", bb1)
	}
}

func TestRemoveValueEmptiesAndCompacts(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m, mx := newBooleanModel(1)

	values, observed := valuesAndObserved(1, true)
	packed, _ := mx.AddValue(m, 0, values, observed, rng)

	emptied := mx.RemoveValue(m, packed, values, observed, rng)
	if !emptied {
		t.Fatal("RemoveValue should report the group emptied")
	}
	if mx.PackedSize() != 1 {
		t.Fatalf("PackedSize() after removing the only occupant = %d, want 1 (back to one reserve)", mx.PackedSize())
	}
	bb := mx.Groups[0][0].(*family.BetaBernoulliGroup)
	if bb.Heads != 0 || bb.Tails != 0 {
		t.Errorf("surviving slot should be a fresh reserve, got %+v", bb)
	}
}

func TestScoreValueIsAdditiveAcrossFeatures(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	m, mx := newBooleanModel(2)
	values, observed := valuesAndObserved(2, true, true)
	packed, _ := mx.AddValue(m, 0, values, observed, rng)

	out := make([]float64, mx.PackedSize())
	mx.ScoreValue(m, values, observed, out, rng)

	var want float64
	for f, obs := range observed {
		if obs {
			want += mx.Groups[f][packed].ScoreValue(m.Features[f].Shared, values[f], rng)
		}
	}
	if math.Abs(out[packed]-want) > 1e-9 {
		t.Errorf("ScoreValue()[%d] = %v, want sum of per-feature scores %v", packed, out[packed], want)
	}
}

func TestScoreDiffMatchesPosMinusNegPlusTares(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	m, mx := newBooleanModel(1)
	values, observed := valuesAndObserved(1, true)
	packed, _ := mx.AddValue(m, 0, values, observed, rng)

	pos := domain.ProductValue{Encoding: domain.EncodingAll, Bools: []bool{true}}
	neg := domain.ProductValue{Encoding: domain.EncodingAll, Bools: []bool{false}}
	diff := domain.Diff{Pos: pos, Neg: neg}

	out := make([]float64, mx.PackedSize())
	mx.ScoreDiff(m, diff, out, rng)

	wantPos := mx.Groups[0][packed].ScoreValue(m.Features[0].Shared, family.BoolValue(true), rng)
	wantNeg := mx.Groups[0][packed].ScoreValue(m.Features[0].Shared, family.BoolValue(false), rng)
	want := wantPos - wantNeg
	if math.Abs(out[packed]-want) > 1e-9 {
		t.Errorf("ScoreDiff()[%d] = %v, want %v", packed, out[packed], want)
	}
}

func TestMoveFeatureRequiresCacheDropped(t *testing.T) {
	m1, mx1 := newBooleanModel(1)
	m2, mx2 := newBooleanModel(0)

	if err := MoveFeature(m1, mx1, 0, m2, mx2); err != domain.ErrInvalidHyperparameters {
		t.Errorf("MoveFeature with MaintainingCache=true err = %v, want ErrInvalidHyperparameters", err)
	}

	mx1.MaintainingCache = false
	mx2.MaintainingCache = false
	if err := MoveFeature(m1, mx1, 0, m2, mx2); err != nil {
		t.Fatalf("MoveFeature() error: %v", err)
	}
	if len(m1.Features) != 0 || len(m2.Features) != 1 {
		t.Errorf("feature did not move: src=%d dst=%d features", len(m1.Features), len(m2.Features))
	}
	if len(mx1.Groups) != 0 || len(mx2.Groups) != 1 {
		t.Errorf("group row did not move: src=%d dst=%d rows", len(mx1.Groups), len(mx2.Groups))
	}
}

func TestAddDiffThenRemoveDiffRestoresGroup(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	m, mx := newBooleanModel(1)

	diff := domain.Diff{
		Pos: domain.ProductValue{Encoding: domain.EncodingAll, Bools: []bool{true}},
		Neg: domain.Empty(),
	}
	packed, usedReserve := mx.AddDiff(m, 0, diff, rng)
	if !usedReserve {
		t.Fatal("AddDiff into the sole reserve should report usedReserve=true")
	}
	bb := mx.Groups[0][packed].(*family.BetaBernoulliGroup)
	if bb.Heads != 1 {
		t.Fatalf("Heads after AddDiff = %d, want 1", bb.Heads)
	}

	emptied := mx.RemoveDiff(m, packed, diff, rng)
	if !emptied {
		t.Fatal("RemoveDiff should report the group emptied")
	}
	if mx.PackedSize() != 1 {
		t.Fatalf("PackedSize() after RemoveDiff emptied the only occupant = %d, want 1", mx.PackedSize())
	}
	survivor := mx.Groups[0][0].(*family.BetaBernoulliGroup)
	if survivor.Heads != 0 || survivor.Tails != 0 {
		t.Errorf("surviving slot should be a fresh reserve, got %+v", survivor)
	}
}

func TestAddDiffAppliesNegAsSubtraction(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m, mx := newBooleanModel(1)

	// Seed the group with one head so the neg contribution has something to remove.
	seed := domain.Diff{Pos: domain.ProductValue{Encoding: domain.EncodingAll, Bools: []bool{true}}, Neg: domain.Empty()}
	packed, _ := mx.AddDiff(m, 0, seed, rng)

	diff := domain.Diff{Pos: domain.Empty(), Neg: domain.ProductValue{Encoding: domain.EncodingAll, Bools: []bool{true}}}
	mx.AddDiff(m, packed, diff, rng)

	bb := mx.Groups[0][packed].(*family.BetaBernoulliGroup)
	if bb.Heads != 0 {
		t.Errorf("Heads after seeding+neg = %d, want 0 (neg should undo the seeded head)", bb.Heads)
	}
}

func TestAddDiffRefreshesCachedTareScore(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	m, mx := newBooleanModel(1)
	mx.AddTare(domain.ProductValue{Encoding: domain.EncodingAll, Bools: []bool{true}})

	diff := domain.Diff{Pos: domain.ProductValue{Encoding: domain.EncodingAll, Bools: []bool{true}}, Neg: domain.Empty()}
	packed, _ := mx.AddDiff(m, 0, diff, rng)

	want := mx.Groups[0][packed].ScoreValue(m.Features[0].Shared, family.BoolValue(true), rng)
	if got := mx.TareCache[0].Scores[packed]; math.Abs(got-want) > 1e-9 {
		t.Errorf("TareCache[0].Scores[%d] = %v, want %v", packed, got, want)
	}
}
