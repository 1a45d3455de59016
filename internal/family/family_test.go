package family

import (
	"math"
	"math/rand"
	"testing"
)

func TestAddRemoveRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	cases := []struct {
		name  string
		kind  Kind
		value Value
	}{
		{"bb", BetaBernoulli, BoolValue(true)},
		{"dd16", DirichletDiscrete16, CountValue(3)},
		{"dd256", DirichletDiscrete256, CountValue(200)},
		{"dpd", DirichletProcessDiscrete, CountValue(7)},
		{"gp", GammaPoisson, CountValue(4)},
		{"nich", NormalInverseChiSq, RealValue(1.5)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shared := NewShared(tc.kind, 256)
			group := NewGroup(tc.kind, shared, rng)

			group.AddValue(shared, tc.value, rng)
			group.AddValue(shared, tc.value, rng)
			group.RemoveValue(shared, tc.value, rng)
			group.RemoveValue(shared, tc.value, rng)

			fresh := NewGroup(tc.kind, shared, rng)
			if !groupsEqual(t, group, fresh) {
				t.Errorf("%s: add/remove round trip left group != fresh zero state", tc.name)
			}
		})
	}
}

func groupsEqual(t *testing.T, a, b Group) bool {
	t.Helper()
	switch g := a.(type) {
	case *BetaBernoulliGroup:
		o := b.(*BetaBernoulliGroup)
		return g.Heads == o.Heads && g.Tails == o.Tails
	case *DirichletDiscreteGroup:
		o := b.(*DirichletDiscreteGroup)
		if g.Total != o.Total {
			return false
		}
		for i := range g.Counts {
			if g.Counts[i] != o.Counts[i] {
				return false
			}
		}
		return true
	case *DPDGroup:
		o := b.(*DPDGroup)
		return g.Total == o.Total && len(g.Counts) == len(o.Counts)
	case *GammaPoissonGroup:
		o := b.(*GammaPoissonGroup)
		return g.Sum == o.Sum && g.N == o.N
	case *NICHGroup:
		o := b.(*NICHGroup)
		return g.Count == o.Count
	default:
		t.Fatalf("unhandled group type %T", a)
		return false
	}
}

func TestScoreValueFinite(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	kinds := []struct {
		kind  Kind
		value Value
	}{
		{BetaBernoulli, BoolValue(false)},
		{DirichletDiscrete16, CountValue(2)},
		{DirichletDiscrete256, CountValue(100)},
		{DirichletProcessDiscrete, CountValue(9)},
		{GammaPoisson, CountValue(6)},
		{NormalInverseChiSq, RealValue(-2.3)},
	}
	for _, tc := range kinds {
		shared := NewShared(tc.kind, 256)
		group := NewGroup(tc.kind, shared, rng)
		for i := 0; i < 10; i++ {
			group.AddValue(shared, tc.value, rng)
		}
		sv := group.ScoreValue(shared, tc.value, rng)
		sd := group.ScoreData(shared, rng)
		if math.IsNaN(sv) || math.IsInf(sv, 0) {
			t.Errorf("%s: ScoreValue not finite: %v", tc.kind, sv)
		}
		if math.IsNaN(sd) || math.IsInf(sd, 0) {
			t.Errorf("%s: ScoreData not finite: %v", tc.kind, sd)
		}
	}
}

func TestAddRepeatedValueMatchesLoop(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	shared := NewShared(BetaBernoulli, 0)
	looped := NewGroup(BetaBernoulli, shared, rng)
	repeated := NewGroup(BetaBernoulli, shared, rng)

	for i := 0; i < 5; i++ {
		looped.AddValue(shared, BoolValue(true), rng)
	}
	repeated.AddRepeatedValue(shared, BoolValue(true), 5, rng)

	l := looped.(*BetaBernoulliGroup)
	r := repeated.(*BetaBernoulliGroup)
	if l.Heads != r.Heads || l.Tails != r.Tails {
		t.Errorf("AddRepeatedValue(5) != 5x AddValue: %+v vs %+v", l, r)
	}
}
