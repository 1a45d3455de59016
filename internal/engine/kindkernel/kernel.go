package kindkernel

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/assignments"
	"github.com/crosscatio/crosscat/internal/engine/clustering"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
	"github.com/crosscatio/crosscat/internal/engine/model"
	"github.com/crosscatio/crosscat/internal/engine/sampling"
)

// Config governs one kind-kernel invocation (spec §6 kernels.kind.*).
type Config struct {
	Iterations int
	// EmptyKindCount is the fixed number of always-present, featureless
	// kinds kept around so the block PY sampler always has somewhere to
	// move a feature into a brand-new kind (mirrors GroupCounts' own
	// empty_group_count reserve mechanism, one level up).
	EmptyKindCount int
	// ScoreParallel fans the per-feature likelihood pass out across
	// goroutines (spec §3 domain stack: golang.org/x/sync/errgroup). Each
	// feature only reads its own column, so there is no shared mutable
	// state to race on.
	ScoreParallel bool
	// GroupReserveSize seeds any freshly created kind's mixture the same
	// way the category kernel's own kinds are seeded. Every live kind
	// always runs in cached tare mode (crosscat.NewKind); there is no
	// runtime toggle.
	GroupReserveSize int
	KindAlpha        float64
	KindDiscount     float64
	// MasterSeed derives a deterministic, independent RNG stream per
	// feature (masterSeed+f) so ScoreParallel and sequential scoring
	// produce identical per-feature draws regardless of goroutine
	// scheduling order.
	MasterSeed int64
}

// Result is the per-run metrics spec §4.6 says the kind kernel emits.
type Result struct {
	clustering.SweepResult
	TareTime  time.Duration
	ScoreTime time.Duration
	SampleTime time.Duration
}

// Run executes one kind-kernel invocation (spec §4.6 steps 1-7): tops up
// empty-kind reserves, rebuilds the shadow proposer if it is stale, scores
// every feature's per-kind likelihood, Gibbs-resamples the feature->kind
// assignment for cfg.Iterations sweeps against that likelihood and the
// cross_cat's topology prior, rewires every feature that moved, garbage
// collects kinds that emptied out, and rebuilds the splitter. iterations=0
// is a no-op (spec §8): nothing is touched, not even the empty-kind count.
func Run(cc *crosscat.CrossCat, store *assignments.Assignments, p *Proposer, cfg Config, rng *rand.Rand) (Result, error) {
	if cfg.Iterations <= 0 {
		return Result{}, nil
	}

	ensureEmptyKinds(cc, store, cfg)

	if p.Stale {
		rebuildProposer(cc, p, &Result{}, rng)
	}

	total := cc.Schema.Total()
	assign := make([]int, total)
	for f := range assign {
		assign[f] = int(cc.FeatureIDToKind[f])
	}
	counts := make([]uint32, len(cc.Kinds))
	for _, k := range assign {
		counts[k]++
	}

	scoreStart := time.Now()
	L, err := scoreFeatures(p, cfg, total)
	if err != nil {
		return Result{}, err
	}
	scoreTime := time.Since(scoreStart)

	sampleStart := time.Now()
	sampler := clustering.NewBlockPY(cc.TopologyAlpha, cc.TopologyDiscount, counts)
	sweep, err := sampler.Sweep(assign, L, rng, cfg.Iterations)
	if err != nil {
		return Result{}, err
	}
	sampleTime := time.Since(sampleStart)

	for f, newK := range assign {
		oldK := int(cc.FeatureIDToKind[f])
		if newK == oldK {
			continue
		}
		moveFeature(cc, p, domain.FeatureID(f), oldK, newK)
	}

	gcEmptyKinds(cc, store, cfg.EmptyKindCount)
	cc.UpdateSplitter()

	result := Result{SweepResult: sweep, ScoreTime: scoreTime, SampleTime: sampleTime}
	rebuildProposer(cc, p, &result, rng)
	return result, nil
}

// scoreFeatures builds L[f][k], feature f's unnormalized likelihood under
// every shadow kind (spec §4.6 step 3), sequentially or fanned out across
// goroutines per cfg.ScoreParallel.
func scoreFeatures(p *Proposer, cfg Config, total int) ([][]float64, error) {
	L := make([][]float64, total)
	scoreOne := func(f int) {
		localRng := rand.New(rand.NewSource(cfg.MasterSeed + int64(f)))
		scores := p.ScoreFeatureAcrossKinds(f, localRng)
		sampling.ScoresToLikelihoods(scores)
		L[f] = scores
	}

	if !cfg.ScoreParallel {
		for f := 0; f < total; f++ {
			scoreOne(f)
		}
		return L, nil
	}

	g, _ := errgroup.WithContext(context.Background())
	for f := 0; f < total; f++ {
		f := f
		g.Go(func() error {
			scoreOne(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return L, nil
}

// rebuildProposer rebuilds the shadow mixture wholesale (spec §4.6 step 1-2)
// and clears Stale. Called both lazily at the top of Run (first invocation,
// or a caller that set Stale explicitly) and unconditionally at the end of
// every Run, since a rewire always invalidates whatever the proposer had
// accumulated against the old partition, and the next per-row AddRow/
// RemoveRow replay (outside the kind kernel) needs a proposer that already
// mirrors the post-move kind list.
func rebuildProposer(cc *crosscat.CrossCat, p *Proposer, result *Result, rng *rand.Rand) {
	start := time.Now()
	p.MixtureInitUnobserved(cc, rng)
	p.BulkApplyTares(cc, rng)
	p.Stale = false
	result.TareTime += time.Since(start)
}

// ensureEmptyKinds tops up the number of featureless kinds to
// cfg.EmptyKindCount, creating fresh ones (and a matching assignments queue)
// as needed, so the block PY sweep always has room to birth a new kind.
func ensureEmptyKinds(cc *crosscat.CrossCat, store *assignments.Assignments, cfg Config) {
	empty := 0
	for _, k := range cc.Kinds {
		if len(k.FeatureIDs) == 0 {
			empty++
		}
	}
	for empty < cfg.EmptyKindCount {
		kind := crosscat.NewKind(cfg.KindAlpha, cfg.KindDiscount, cfg.GroupReserveSize)
		cc.Kinds = append(cc.Kinds, kind)
		store.PackedAddKind()
		empty++
	}
}

// gcEmptyKinds drops featureless kinds beyond emptyKindCount, swap-removing
// from the back forward so earlier indices stay valid mid-loop (spec §4.6
// step 6: "garbage-collect empty non-reserve kinds; top up the fixed
// empty_kind_count reserves" — ensureEmptyKinds already did the topping up
// for next run, so here any featureless kind beyond the configured count is
// surplus and interchangeable with every other empty kind).
func gcEmptyKinds(cc *crosscat.CrossCat, store *assignments.Assignments, emptyKindCount int) {
	var remove []int
	kept := 0
	for i, k := range cc.Kinds {
		if len(k.FeatureIDs) != 0 {
			continue
		}
		kept++
		if kept > emptyKindCount {
			remove = append(remove, i)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(remove)))
	for _, i := range remove {
		removeKindAt(cc, store, i)
	}
}

// removeKindAt swap-removes kind i, mirroring assignments.PackedRemoveKind's
// own last-into-place compaction so cc.Kinds, cc.FeatureIDToKind, and the
// assignments store's packed kind ids never drift apart.
func removeKindAt(cc *crosscat.CrossCat, store *assignments.Assignments, i int) {
	store.PackedRemoveKind(domain.KindID(i))

	last := len(cc.Kinds) - 1
	if i != last {
		cc.Kinds[i] = cc.Kinds[last]
		for fid, k := range cc.FeatureIDToKind {
			if int(k) == last {
				cc.FeatureIDToKind[fid] = domain.KindID(i)
			}
		}
	}
	cc.Kinds = cc.Kinds[:last]
}

// moveFeature rewires feature fid from kind oldK to kind newK, pulling its
// already-correctly-partitioned group row out of the proposer's shadow copy
// of newK (spec §4.6's feature rewire step; see model.SpliceFeature's doc
// for why the proposer's row, not a freshly recomputed one, is what newK's
// real mixture needs). MaintainingCache is dropped around the splice since
// neither mixture's tare cache reflects the row about to move in.
func moveFeature(cc *crosscat.CrossCat, p *Proposer, fid domain.FeatureID, oldK, newK int) {
	src := cc.Kinds[oldK]
	dst := cc.Kinds[newK]
	srcPos, ok := src.PositionOf(fid)
	if !ok {
		return
	}
	pk := p.Kinds[newK]
	proposerPos, ok := pk.Model.PositionOf(fid)
	if !ok {
		return
	}

	src.Mixture.MaintainingCache = false
	dst.Mixture.MaintainingCache = false
	model.SpliceFeature(pk.Model, pk.Mixture, proposerPos, src.Model, src.Mixture, srcPos, dst.Model, dst.Mixture)
	src.Mixture.MaintainingCache = true
	dst.Mixture.MaintainingCache = true

	delete(src.FeatureIDs, fid)
	dst.FeatureIDs[fid] = struct{}{}
	cc.FeatureIDToKind[fid] = domain.KindID(newK)
}
