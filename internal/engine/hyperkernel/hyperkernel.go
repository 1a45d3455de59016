// Package hyperkernel implements the hyperparameter kernel (spec §4.7): a
// set of independent grid-Gibbs resampling tasks, run concurrently, that
// tune the topology prior, each kind's inner clustering prior, and every
// feature's family hyperparameters against the data currently assigned.
// Grounded on original_source/src/hyper_kernel.cc and
// original_source/src/infer_grid.hpp's resample-against-a-fixed-grid
// pattern.
package hyperkernel

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/clustering"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
	"github.com/crosscatio/crosscat/internal/engine/sampling"
	"github.com/crosscatio/crosscat/internal/family"
)

// Config lists every declared grid (spec §6 kernels.hyper.*). An empty grid
// on any axis the kernel actually needs to resample is a configuration
// error (ErrEmptyGrid): there is nothing to pick from.
type Config struct {
	TopologyAlphaGrid, TopologyDiscountGrid []float64
	KindAlphaGrid, KindDiscountGrid         []float64
	// FeatureGrid is the generic concentration grid shared by every family
	// except DirichletProcessDiscrete, which has its own specialised
	// protocol (spec §4.7, family.DPDShared.ResampleHypers).
	FeatureGrid                []float64
	DPDAlphaGrid, DPDGammaGrid []float64
	// MasterSeed derives one independent RNG stream per task
	// (masterSeed+taskIndex), so the errgroup task fan-out and the draws it
	// makes never depend on goroutine scheduling order.
	MasterSeed int64
}

// Run resamples the topology prior, every kind's inner clustering prior,
// and every feature's family hyperparameters, as independent tasks fanned
// out across goroutines via errgroup (spec §3 domain stack). The group's
// context is discarded, so a failing task (most commonly ErrEmptyGrid)
// cancels nothing: every task runs to completion and the first error is
// returned. Draws other tasks committed are not rolled back, matching the
// source's own fire-and-forget per-task error handling.
func Run(cc *crosscat.CrossCat, cfg Config, rng *rand.Rand) error {
	g, _ := errgroup.WithContext(context.Background())

	seed := cfg.MasterSeed
	g.Go(taskFunc(seed, func(r *rand.Rand) error { return resampleTopology(cc, cfg, r) }))
	seed++

	for i, kind := range cc.Kinds {
		kind := kind
		g.Go(taskFunc(seed+int64(i), func(r *rand.Rand) error { return resampleKindClustering(kind, cfg, r) }))
	}
	seed += int64(len(cc.Kinds)) + 1

	total := cc.Schema.Total()
	for f := 0; f < total; f++ {
		f := f
		g.Go(taskFunc(seed+int64(f), func(r *rand.Rand) error { return resampleFeature(cc, cfg, f, r) }))
	}

	return g.Wait()
}

func taskFunc(seed int64, fn func(*rand.Rand) error) func() error {
	return func() error { return fn(rand.New(rand.NewSource(seed))) }
}

// resampleTopology grid-Gibbs resamples cc.TopologyAlpha/TopologyDiscount
// against the feature-per-kind count histogram (spec §4.7 task 0).
func resampleTopology(cc *crosscat.CrossCat, cfg Config, rng *rand.Rand) error {
	if len(cfg.TopologyAlphaGrid) == 0 || len(cfg.TopologyDiscountGrid) == 0 {
		return domain.ErrEmptyGrid
	}
	sizes := make([]uint32, len(cc.Kinds))
	for i, k := range cc.Kinds {
		sizes[i] = uint32(len(k.FeatureIDs))
	}

	type point struct{ alpha, discount float64 }
	var grid []point
	for _, a := range cfg.TopologyAlphaGrid {
		for _, d := range cfg.TopologyDiscountGrid {
			grid = append(grid, point{a, d})
		}
	}
	scores := make([]float64, len(grid))
	for i, p := range grid {
		scores[i] = clustering.LogEPPF(p.alpha, p.discount, sizes)
	}
	winner := grid[sampling.FromLogScores(rng, scores)]
	cc.TopologyAlpha = winner.alpha
	cc.TopologyDiscount = winner.discount
	return nil
}

// resampleKindClustering grid-Gibbs resamples one kind's inner Pitman-Yor
// clustering prior against its row-per-group count histogram.
func resampleKindClustering(kind *crosscat.Kind, cfg Config, rng *rand.Rand) error {
	if len(cfg.KindAlphaGrid) == 0 || len(cfg.KindDiscountGrid) == 0 {
		return domain.ErrEmptyGrid
	}
	sizes := kind.Mixture.Clustering.OccupiedCounts()

	type point struct{ alpha, discount float64 }
	var grid []point
	for _, a := range cfg.KindAlphaGrid {
		for _, d := range cfg.KindDiscountGrid {
			grid = append(grid, point{a, d})
		}
	}
	scores := make([]float64, len(grid))
	for i, p := range grid {
		scores[i] = clustering.LogEPPF(p.alpha, p.discount, sizes)
	}
	winner := grid[sampling.FromLogScores(rng, scores)]
	kind.Mixture.Clustering.Alpha = winner.alpha
	kind.Mixture.Clustering.Discount = winner.discount
	return nil
}

// resampleFeature grid-Gibbs resamples global feature f's family
// hyperparameters in place, then invalidates its owning kind's tare cache
// (spec §4.7: "after resampling, each feature's cache is reinitialised").
// DirichletProcessDiscrete features use their own specialised protocol
// instead of the generic candidate-grid path.
func resampleFeature(cc *crosscat.CrossCat, cfg Config, f int, rng *rand.Rand) error {
	kindID := cc.FeatureIDToKind[f]
	kind := cc.Kinds[kindID]
	pos, ok := kind.PositionOf(domain.FeatureID(f))
	if !ok {
		return nil
	}
	slot := kind.Model.Features[pos]

	if dpd, isDPD := slot.Shared.(*family.DPDShared); isDPD {
		if len(cfg.DPDAlphaGrid) == 0 || len(cfg.DPDGammaGrid) == 0 {
			return domain.ErrEmptyGrid
		}
		groups := make([]*family.DPDGroup, len(kind.Mixture.Groups[pos]))
		for i, grp := range kind.Mixture.Groups[pos] {
			groups[i] = grp.(*family.DPDGroup)
		}
		dpd.ResampleHypers(groups, cfg.DPDAlphaGrid, cfg.DPDGammaGrid, rng)
		kind.Mixture.RefreshTareCache(kind.Model, rng)
		return nil
	}

	if len(cfg.FeatureGrid) == 0 {
		return domain.ErrEmptyGrid
	}
	grid := buildGrid(slot.Shared, cfg.FeatureGrid)
	scores := make([]float64, len(grid))
	kind.Mixture.ScoreDataGrid(pos, grid, scores, rng)
	winner := grid[sampling.FromLogScores(rng, scores)]
	commitGrid(slot.Shared, winner)
	kind.Mixture.RefreshTareCache(kind.Model, rng)
	return nil
}

// buildGrid constructs one candidate Shared per concentration value in
// points for shared's concrete family, preserving shared's corpus-level
// running statistics (via Clone) and only varying the hyperparameter(s)
// that govern cluster concentration. There is no single "concentration"
// meaning across families, so each case picks the parameterisation the
// source itself treats as the one free axis: Beta-Bernoulli and
// Gamma-Poisson vary both shape parameters together (a symmetric prior
// stays symmetric); Dirichlet-discrete varies the shared per-category
// pseudo-count; Normal-Inverse-Chi-Squared varies the two pseudo-count
// parameters (Kappa0, Nu0) together, leaving the location/scale (Mu0,
// Sigma0Sq) fixed, since those aren't concentration parameters at all.
func buildGrid(shared family.Shared, points []float64) []family.Shared {
	grid := make([]family.Shared, len(points))
	for i, p := range points {
		switch s := shared.Clone().(type) {
		case *family.BetaBernoulliShared:
			s.Alpha, s.Beta = p, p
			grid[i] = s
		case *family.DirichletDiscreteShared:
			perCategory := p / float64(s.Width)
			for c := range s.Alpha {
				s.Alpha[c] = perCategory
			}
			grid[i] = s
		case *family.GammaPoissonShared:
			s.Alpha, s.Beta = p, p
			grid[i] = s
		case *family.NICHShared:
			s.Kappa0, s.Nu0 = p, p
			grid[i] = s
		default:
			grid[i] = s
		}
	}
	return grid
}

// commitGrid copies winner's hyperparameter fields back into shared's own
// fields in place, preserving shared's identity (and thus Go pointer
// equality) so every alias of it — in particular a kind kernel proposer's
// shadow model, which holds the exact same Shared pointer — sees the
// update with no further synchronization (spec §4.6's modelLoad doc).
func commitGrid(shared family.Shared, winner family.Shared) {
	switch dst := shared.(type) {
	case *family.BetaBernoulliShared:
		src := winner.(*family.BetaBernoulliShared)
		dst.Alpha, dst.Beta = src.Alpha, src.Beta
	case *family.DirichletDiscreteShared:
		src := winner.(*family.DirichletDiscreteShared)
		copy(dst.Alpha, src.Alpha)
	case *family.GammaPoissonShared:
		src := winner.(*family.GammaPoissonShared)
		dst.Alpha, dst.Beta = src.Alpha, src.Beta
	case *family.NICHShared:
		src := winner.(*family.NICHShared)
		dst.Kappa0, dst.Nu0 = src.Kappa0, src.Nu0
	}
}
