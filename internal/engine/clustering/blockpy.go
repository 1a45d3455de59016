package clustering

import (
	"math/rand"

	"github.com/crosscatio/crosscat/internal/domain"
)

// BlockPY runs the block Pitman-Yor Gibbs sweep (spec §4.6) over a fixed
// range of kind ids. Unlike GroupCounts, no id is ever swap-removed
// mid-sweep: kind garbage collection and reserve top-up happen once per
// kind-kernel invocation, between sweeps, not during them (see
// kindkernel.Run). Within a sweep "empty" is tracked as an explicit set
// since emptied kind ids can be scattered anywhere in the fixed range.
type BlockPY struct {
	Alpha, Discount float64

	counts          []uint32
	empty           map[int]bool
	likelihoodEmpty float64
}

// NewBlockPY seeds a sampler from the current per-kind feature counts.
func NewBlockPY(alpha, discount float64, counts []uint32) *BlockPY {
	b := &BlockPY{
		Alpha:    alpha,
		Discount: discount,
		counts:   append([]uint32(nil), counts...),
		empty:    make(map[int]bool),
	}
	for k, c := range b.counts {
		if c == 0 {
			b.empty[k] = true
		}
	}
	b.recomputeLikelihoodEmpty()
	return b
}

func (b *BlockPY) recomputeLikelihoodEmpty() {
	if len(b.empty) == 0 {
		b.likelihoodEmpty = 0
		return
	}
	occupied := len(b.counts) - len(b.empty)
	b.likelihoodEmpty = (b.Alpha + b.Discount*float64(occupied)) / float64(len(b.empty))
}

func (b *BlockPY) prior(k int) float64 {
	if b.empty[k] {
		return b.likelihoodEmpty
	}
	return float64(b.counts[k]) - b.Discount
}

// Counts exposes the live per-kind counts, read-only by convention.
func (b *BlockPY) Counts() []uint32 { return b.counts }

// EmptyKinds reports which kind ids currently have zero features.
func (b *BlockPY) EmptyKinds() map[int]bool { return b.empty }

// SweepResult aggregates the per-sweep metrics the kind kernel logs
// (birth_count/death_count are counted per empty<->occupied transition
// across the whole run rather than only the invocation's net before/after
// diff, so a kind that empties and refills within the same run is counted
// on both edges).
type SweepResult struct {
	TotalCount  int
	ChangeCount int
	BirthCount  int
	DeathCount  int
}

// Sweep runs `iterations` full passes over assignments (length =
// feature count, values in [0, kind_count)), resampling each feature's
// kind against its likelihood row L[f] (length kind_count, L[f][k] the
// exponentiated per-feature score under kind k). Mutates assignments and
// b's internal counts in place.
func (b *BlockPY) Sweep(assignments []int, L [][]float64, rng *rand.Rand, iterations int) (SweepResult, error) {
	if b.Alpha <= 0 || b.Discount < 0 || b.Discount >= 1 {
		return SweepResult{}, domain.ErrInvalidHyperparameters
	}

	var result SweepResult
	posterior := make([]float64, len(b.counts))

	for iter := 0; iter < iterations; iter++ {
		for f, k := range assignments {
			result.TotalCount++

			b.counts[k]--
			if b.counts[k] == 0 {
				b.empty[k] = true
				b.recomputeLikelihoodEmpty()
				result.DeathCount++
			}

			var total float64
			for kk := range b.counts {
				posterior[kk] = b.prior(kk) * L[f][kk]
				total += posterior[kk]
			}

			target := k
			if total > 0 {
				r := rng.Float64() * total
				var cum float64
				for kk, p := range posterior {
					cum += p
					if r < cum {
						target = kk
						break
					}
				}
			}

			if target != k {
				result.ChangeCount++
			}
			assignments[f] = target
			wasEmpty := b.counts[target] == 0
			b.counts[target]++
			if wasEmpty {
				delete(b.empty, target)
				b.recomputeLikelihoodEmpty()
				if b.counts[target] == 1 {
					result.BirthCount++
				}
			}
		}
	}
	return result, nil
}
