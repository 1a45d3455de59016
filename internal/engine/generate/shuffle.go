// Package generate implements the `generate` CLI backend (spec.md §6, and
// SPEC_FULL.md §4's supplemented-features section): sampling synthetic rows
// from the model's prior. Grounded on original_source/src/generate.cc/hpp.
package generate

import "math/rand"

// Shuffle performs an in-place Fisher-Yates shuffle of ids using rng,
// ported from original_source/src/shuffle.cc. Used by tests that need a
// reproducible row permutation; Rows does not call it. Takes an explicit *rand.Rand rather than a package-level
// source, per spec.md §5's "the rng is never shared" rule.
func Shuffle[T any](rng *rand.Rand, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
