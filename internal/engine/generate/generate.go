package generate

import (
	"math/rand"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
	"github.com/crosscatio/crosscat/internal/engine/sampling"
	"github.com/crosscatio/crosscat/internal/engine/stream"
	"github.com/crosscatio/crosscat/internal/family"
)

// Rows samples rowCount synthetic rows from cc's current prior (spec.md §6
// "generate", §8 Scenario 2), one per increasing row id starting at 0.
// density controls the fraction of slots left observed post-sample
// (original_source/src/generate.cc's `density` parameter): each feature is
// independently observed with probability density, Bernoulli-sampled per
// row per kind. Every row's observed values are committed into cc's model
// and mixture as they are drawn — generate grows the same live state a
// streaming `infer` run would, so the returned rows are consistent with the
// posterior used to draw the next one, exactly like the source's single
// forward pass over cross_cat.kinds.
//
// cc must already have Kinds populated (each with its own feature set) and
// UpdateSplitter called; Rows never creates or destroys kinds itself —
// that is the kind kernel's job, out of scope for a forward-sampling pass.
func Rows(cc *crosscat.CrossCat, rowCount uint32, density float64, rng *rand.Rand) ([]stream.Record, error) {
	out := make([]stream.Record, 0, rowCount)
	for id := uint32(0); id < rowCount; id++ {
		parts := make([]domain.ProductValue, len(cc.Kinds))
		for k, kind := range cc.Kinds {
			parts[k] = sampleKindRow(kind, density, rng)
		}
		full, err := cc.ValueJoin(parts)
		if err != nil {
			return nil, err
		}
		out = append(out, stream.Record{RowID: domain.RowID(id), Diff: domain.FromValue(full)})
	}
	return out, nil
}

// sampleKindRow draws one kind's partial row: a group id proportional to
// the kind's current Pitman-Yor prior, then one value per independently
// Bernoulli(density)-observed feature from that group's predictive, then
// commits the drawn values into both the model's corpus-level running
// stats and the mixture's per-group sufficient statistics (mirrors
// generate.cc's per-kind loop body: clustering.score_value, sample_value,
// model.add_value, mixture.add_value).
func sampleKindRow(kind *crosscat.Kind, density float64, rng *rand.Rand) domain.ProductValue {
	mx := kind.Mixture
	mdl := kind.Model

	probs := make([]float64, mx.PackedSize())
	var total float64
	for g := range probs {
		probs[g] = mx.Clustering.Prior(uint32(g))
		total += probs[g]
	}
	group := uint32(sampling.FromWeights(rng, probs, total))
	if mx.Clustering.IsEmpty(group) {
		group = mx.Clustering.FirstReserve()
	}

	nFeat := len(mdl.Features)
	observed := make([]bool, nFeat)
	values := make([]family.Value, nFeat)
	builder := domain.NewBuilder(nFeat)
	for f, slot := range mdl.Features {
		if rng.Float64() >= density {
			continue
		}
		observed[f] = true
		v := mx.Groups[f][group].SampleValue(slot.Shared, rng)
		values[f] = v
		setBuilder(builder, f, slot.Block, v)
	}
	partial := builder.Build()

	for f, slot := range mdl.Features {
		if observed[f] {
			mdl.AddValue(f, values[f], rng)
		}
		_ = slot
	}
	mx.AddValue(mdl, group, values, observed, rng)

	return partial
}

func setBuilder(b *domain.Builder, pos int, block domain.Block, v family.Value) {
	switch block {
	case domain.BlockBoolean:
		b.Set(pos, block, v.Bool, 0, 0)
	case domain.BlockCount:
		b.Set(pos, block, false, v.Count, 0)
	case domain.BlockReal:
		b.Set(pos, block, false, 0, v.Real)
	}
}

// InitUnobservedKind realizes an empty kind's group table against its own
// clustering layout before the first call to Rows, the Go equivalent of
// generate.cc's `kind.model.realize(rng)` bootstrap loop: a freshly
// constructed crosscat.Kind has features declared on its Model but no
// per-group Groups rows yet allocated on its Mixture.
func InitUnobservedKind(kind *crosscat.Kind, rng *rand.Rand) {
	kind.Mixture.InitUnobserved(kind.Model, rng)
}
