package generate

import (
	"math/rand"
	"testing"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
	"github.com/crosscatio/crosscat/internal/family"
)

func mixedSchemaCrossCat() *crosscat.CrossCat {
	schema := domain.Schema{BooleansSize: 2, CountsSize: 2, RealsSize: 2}
	cc := crosscat.New(schema)
	rng := rand.New(rand.NewSource(7))

	kindA := crosscat.NewKind(1, 0, 1)
	kindA.Model.AddFeature(0, family.BetaBernoulli, domain.BlockBoolean, 0)
	kindA.Model.AddFeature(1, family.BetaBernoulli, domain.BlockBoolean, 0)
	kindA.Model.AddFeature(2, family.GammaPoisson, domain.BlockCount, 0)
	kindA.Mixture.InitUnobserved(kindA.Model, rng)
	for _, f := range []int{0, 1, 2} {
		kindA.FeatureIDs[domain.FeatureID(f)] = struct{}{}
	}

	kindB := crosscat.NewKind(1, 0, 1)
	kindB.Model.AddFeature(3, family.GammaPoisson, domain.BlockCount, 0)
	kindB.Model.AddFeature(4, family.NormalInverseChiSq, domain.BlockReal, 0)
	kindB.Model.AddFeature(5, family.NormalInverseChiSq, domain.BlockReal, 0)
	kindB.Mixture.InitUnobserved(kindB.Model, rng)
	for _, f := range []int{3, 4, 5} {
		kindB.FeatureIDs[domain.FeatureID(f)] = struct{}{}
	}

	cc.Kinds = []*crosscat.Kind{kindA, kindB}
	cc.FeatureIDToKind = []domain.KindID{0, 0, 0, 1, 1, 1}
	cc.UpdateSplitter()
	return cc
}

func TestRowsProducesOneRecordPerRowWithUniqueAscendingIDs(t *testing.T) {
	cc := mixedSchemaCrossCat()
	rng := rand.New(rand.NewSource(42))

	rows, err := Rows(cc, 25, 1.0, rng)
	if err != nil {
		t.Fatalf("Rows() error: %v", err)
	}
	if len(rows) != 25 {
		t.Fatalf("len(rows) = %d, want 25", len(rows))
	}
	for i, r := range rows {
		if r.RowID != domain.RowID(i) {
			t.Errorf("rows[%d].RowID = %d, want %d", i, r.RowID, i)
		}
	}
}

func TestRowsAtDensityZeroObservesNothing(t *testing.T) {
	cc := mixedSchemaCrossCat()
	rng := rand.New(rand.NewSource(1))

	rows, err := Rows(cc, 5, 0.0, rng)
	if err != nil {
		t.Fatalf("Rows() error: %v", err)
	}
	for i, r := range rows {
		if r.Diff.Pos.Encoding != domain.EncodingNone {
			t.Errorf("rows[%d].Diff.Pos.Encoding = %v, want NONE at density 0", i, r.Diff.Pos.Encoding)
		}
	}
}

func TestRowsAtDensityOneObservesEveryFeature(t *testing.T) {
	cc := mixedSchemaCrossCat()
	rng := rand.New(rand.NewSource(2))

	rows, err := Rows(cc, 5, 1.0, rng)
	if err != nil {
		t.Fatalf("Rows() error: %v", err)
	}
	total := cc.Schema.Total()
	for i, r := range rows {
		for f := 0; f < total; f++ {
			if !r.Diff.Pos.IsObserved(f) {
				t.Errorf("rows[%d] feature %d not observed at density 1.0", i, f)
			}
		}
	}
}

func TestRowsGrowsMixtureRowCount(t *testing.T) {
	cc := mixedSchemaCrossCat()
	rng := rand.New(rand.NewSource(3))

	const n = 40
	if _, err := Rows(cc, n, 1.0, rng); err != nil {
		t.Fatalf("Rows() error: %v", err)
	}
	for k, kind := range cc.Kinds {
		if got := kind.Mixture.CountRows(); got != n {
			t.Errorf("kind %d CountRows() = %d, want %d", k, got, n)
		}
	}
}

func TestShuffleIsAPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ids := make([]int, 20)
	for i := range ids {
		ids[i] = i
	}
	Shuffle(rng, ids)

	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("Shuffle produced duplicate %d", id)
		}
		seen[id] = true
	}
	if len(seen) != 20 {
		t.Fatalf("Shuffle lost elements: saw %d distinct of 20", len(seen))
	}
}

func TestShuffleIsDeterministicForAGivenSeed(t *testing.T) {
	a := []int{0, 1, 2, 3, 4, 5, 6, 7}
	b := append([]int(nil), a...)
	Shuffle(rand.New(rand.NewSource(99)), a)
	Shuffle(rand.New(rand.NewSource(99)), b)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Shuffle not deterministic at %d: %d vs %d", i, a[i], b[i])
		}
	}
}
