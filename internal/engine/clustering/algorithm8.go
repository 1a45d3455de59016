package clustering

import "math/rand"

// Algorithm8Sweep is the source's alternate, simpler (non-block) Gibbs
// sampler for the feature-to-kind clustering process
// (original_source/src/algorithm8.cc/hpp), carried here purely as a
// test-only alternative to BlockPY (SPEC_FULL.md §4 "Algorithm8
// auxiliary-variable sampler"): every quantity BlockPY tracks incrementally
// (the empty-slot set, its shared prior mass) is instead recomputed from
// scratch against the full counts histogram before every single-feature
// resample. This trades BlockPY's O(1) amortized bookkeeping for an
// unambiguous, direct-from-the-formula implementation. The package's tests
// run both samplers and check only that each leaves a valid partition; they
// do not compare the two samplers' distributions or internal state.
// Exact, not approximate (spec.md §1's non-goal is preserved); never
// reachable from a production code path — kindkernel only ever calls
// BlockPY.
func Algorithm8Sweep(assignments []int, kindCount int, alpha, discount float64, L [][]float64, rng *rand.Rand, iterations int) {
	counts := make([]uint32, kindCount)
	for _, k := range assignments {
		counts[k]++
	}

	prior := make([]float64, kindCount)
	posterior := make([]float64, kindCount)

	for iter := 0; iter < iterations; iter++ {
		for f, k := range assignments {
			counts[k]--

			occupied, empty := 0, 0
			for _, c := range counts {
				if c == 0 {
					empty++
				} else {
					occupied++
				}
			}
			var likelihoodEmpty float64
			if empty > 0 {
				likelihoodEmpty = (alpha + discount*float64(occupied)) / float64(empty)
			}
			for kk, c := range counts {
				if c == 0 {
					prior[kk] = likelihoodEmpty
				} else {
					prior[kk] = float64(c) - discount
				}
			}

			var total float64
			for kk := range counts {
				posterior[kk] = prior[kk] * L[f][kk]
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
			assignments[f] = target
			counts[target]++
		}
	}
}
