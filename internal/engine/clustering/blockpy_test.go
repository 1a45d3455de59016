package clustering

import (
	"math/rand"
	"testing"

	"github.com/crosscatio/crosscat/internal/domain"
)

func TestSweepRejectsInvalidHyperparameters(t *testing.T) {
	cases := []struct {
		name  string
		alpha float64
		d     float64
	}{
		{"zero alpha", 0, 0.1},
		{"negative alpha", -1, 0.1},
		{"negative discount", 1, -0.1},
		{"discount at one", 1, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBlockPY(tc.alpha, tc.d, []uint32{1, 0})
			_, err := b.Sweep([]int{0}, uniformLikelihoods(1, 2), rand.New(rand.NewSource(1)), 1)
			if err != domain.ErrInvalidHyperparameters {
				t.Errorf("Sweep() err = %v, want ErrInvalidHyperparameters", err)
			}
		})
	}
}

func TestSweepPreservesCountsHistogramInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	assignments := []int{0, 0, 1, 1, 2}
	b := NewBlockPY(1.0, 0.2, []uint32{2, 2, 1, 0})
	L := uniformLikelihoods(len(assignments), 4)

	if _, err := b.Sweep(assignments, L, rng, 5); err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}

	histogram := make([]uint32, len(b.Counts()))
	for _, k := range assignments {
		histogram[k]++
	}
	for k, want := range histogram {
		if got := b.Counts()[k]; got != want {
			t.Errorf("counts[%d] = %d, want histogram count %d", k, got, want)
		}
	}
	for k, c := range b.Counts() {
		if c == 0 && !b.EmptyKinds()[k] {
			t.Errorf("kind %d has zero count but is not tracked as empty", k)
		}
		if c > 0 && b.EmptyKinds()[k] {
			t.Errorf("kind %d has nonzero count but is tracked as empty", k)
		}
	}
}

func TestSweepAllMassOnOneKindConverges(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	assignments := []int{1, 1, 1, 1}
	// Kind 0 is overwhelmingly favoured by the likelihood vector for every
	// feature; after enough sweeps every feature should land there.
	L := [][]float64{
		{1000, 1}, {1000, 1}, {1000, 1}, {1000, 1},
	}
	b := NewBlockPY(1.0, 0.0, []uint32{0, 4})
	if _, err := b.Sweep(assignments, L, rng, 20); err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	for f, k := range assignments {
		if k != 0 {
			t.Errorf("feature %d assigned to kind %d, want the overwhelmingly favoured kind 0", f, k)
		}
	}
}
