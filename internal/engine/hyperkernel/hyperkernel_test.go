package hyperkernel

import (
	"math/rand"
	"testing"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
	"github.com/crosscatio/crosscat/internal/family"
)

func oneBooleanKindCrossCat() *crosscat.CrossCat {
	schema := domain.Schema{BooleansSize: 1}
	cc := crosscat.New(schema)
	kind := crosscat.NewKind(1, 0, 1)
	kind.Model.AddFeature(0, family.BetaBernoulli, domain.BlockBoolean, 0)
	kind.Mixture.InitUnobserved(kind.Model, rand.New(rand.NewSource(1)))
	kind.FeatureIDs[0] = struct{}{}
	cc.Kinds = []*crosscat.Kind{kind}
	cc.FeatureIDToKind = []domain.KindID{0}
	cc.UpdateSplitter()

	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 20; i++ {
		v := domain.ProductValue{Encoding: domain.EncodingAll, Bools: []bool{i%3 == 0}}
		kind.Mixture.AddDiff(kind.Model, 0, domain.FromValue(v), rng)
	}
	return cc
}

func TestRunEmptyGridIsError(t *testing.T) {
	cc := oneBooleanKindCrossCat()
	rng := rand.New(rand.NewSource(3))
	err := Run(cc, Config{}, rng)
	if err == nil {
		t.Fatal("expected ErrEmptyGrid with no grids configured")
	}
}

func TestRunCommitsTopologyKindAndFeatureHypers(t *testing.T) {
	cc := oneBooleanKindCrossCat()
	before := cc.Kinds[0].Model.Features[0].Shared.(*family.BetaBernoulliShared)
	beforeAlpha, beforeBeta := before.Alpha, before.Beta

	cfg := Config{
		TopologyAlphaGrid:   []float64{0.5, 1, 2},
		TopologyDiscountGrid: []float64{0, 0.1},
		KindAlphaGrid:       []float64{0.5, 1, 2},
		KindDiscountGrid:    []float64{0, 0.1},
		FeatureGrid:         []float64{0.1, 1, 5, 10},
		DPDAlphaGrid:        []float64{1},
		DPDGammaGrid:        []float64{1},
		MasterSeed:          42,
	}
	rng := rand.New(rand.NewSource(4))
	if err := Run(cc, cfg, rng); err != nil {
		t.Fatalf("Run: %v", err)
	}

	foundTopologyAlpha, foundTopologyDiscount := false, false
	for _, a := range cfg.TopologyAlphaGrid {
		if cc.TopologyAlpha == a {
			foundTopologyAlpha = true
		}
	}
	for _, d := range cfg.TopologyDiscountGrid {
		if cc.TopologyDiscount == d {
			foundTopologyDiscount = true
		}
	}
	if !foundTopologyAlpha || !foundTopologyDiscount {
		t.Fatalf("expected topology hypers drawn from grid, got alpha=%v discount=%v",
			cc.TopologyAlpha, cc.TopologyDiscount)
	}

	k := cc.Kinds[0]
	foundKindAlpha := false
	for _, a := range cfg.KindAlphaGrid {
		if k.Mixture.Clustering.Alpha == a {
			foundKindAlpha = true
		}
	}
	if !foundKindAlpha {
		t.Fatalf("expected kind clustering alpha drawn from grid, got %v", k.Mixture.Clustering.Alpha)
	}

	after := k.Model.Features[0].Shared.(*family.BetaBernoulliShared)
	if after != before {
		t.Fatal("expected Shared pointer identity preserved across resample (proposer aliasing)")
	}
	foundFeature := false
	for _, p := range cfg.FeatureGrid {
		if after.Alpha == p && after.Beta == p {
			foundFeature = true
		}
	}
	if !foundFeature {
		t.Fatalf("expected feature hypers drawn from grid, got alpha=%v beta=%v (was %v/%v)",
			after.Alpha, after.Beta, beforeAlpha, beforeBeta)
	}
}

func TestResampleFeatureMissingGridIsError(t *testing.T) {
	cc := oneBooleanKindCrossCat()
	rng := rand.New(rand.NewSource(5))
	err := resampleFeature(cc, Config{}, 0, rng)
	if err != domain.ErrEmptyGrid {
		t.Fatalf("expected ErrEmptyGrid, got %v", err)
	}
}
