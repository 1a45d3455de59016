// Package sampling provides the categorical-from-log-scores draw shared by
// the category and kind kernels: given one log-likelihood per candidate,
// pick one index with probability proportional to its exponentiated score.
package sampling

import (
	"math"
	"math/rand"
)

// FromLogScores overwrites scores in place with exp(score - max(scores))
// (the source's sample_from_scores_overwrite: subtract the max before
// exponentiating so the largest term is exactly 1, avoiding overflow for
// very negative or very positive log-likelihoods) and returns an index
// drawn proportional to the resulting weights.
func FromLogScores(rng *rand.Rand, scores []float64) int {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	var total float64
	for i, s := range scores {
		w := expClamped(s - max)
		scores[i] = w
		total += w
	}
	return FromWeights(rng, scores, total)
}

// FromWeights draws an index proportional to already-nonnegative weights
// summing to total. Falls back to the last index if rounding leaves no
// weight selected, mirroring the source's overwrite sampler.
func FromWeights(rng *rand.Rand, weights []float64, total float64) int {
	if total <= 0 {
		return len(weights) - 1
	}
	r := rng.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if r < cum {
			return i
		}
	}
	return len(weights) - 1
}

// ScoresToLikelihoods overwrites scores in place with exp(score - max), the
// same max-subtracted exponentiation FromLogScores uses internally, exposed
// standalone for callers (the kind kernel's per-feature likelihood vectors)
// that need unnormalized likelihoods to multiply against a separate prior
// rather than an immediate draw.
func ScoresToLikelihoods(scores []float64) {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	for i, s := range scores {
		scores[i] = expClamped(s - max)
	}
}

func expClamped(x float64) float64 {
	if x < -745 { // exp(-745) underflows float64 to 0 anyway; avoid the libm call
		return 0
	}
	return math.Exp(x)
}
