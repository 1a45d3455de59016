package family

import (
	"math"
	"math/rand"
)

// BetaBernoulliShared holds the Beta(alpha, beta) prior over a boolean
// feature plus corpus-level running counts used by hyperparameter search.
type BetaBernoulliShared struct {
	Alpha, Beta float64
	// Corpus-level running counts, maintained by AddValue/RemoveValue.
	Heads, Tails uint64
}

// NewBetaBernoulliShared returns an uninformative symmetric prior.
func NewBetaBernoulliShared() *BetaBernoulliShared {
	return &BetaBernoulliShared{Alpha: 0.5, Beta: 0.5}
}

func (s *BetaBernoulliShared) AddValue(v Value, rng *rand.Rand) {
	if v.Bool {
		s.Heads++
	} else {
		s.Tails++
	}
}

func (s *BetaBernoulliShared) RemoveValue(v Value, rng *rand.Rand) {
	if v.Bool {
		s.Heads--
	} else {
		s.Tails--
	}
}

func (s *BetaBernoulliShared) Clone() Shared {
	c := *s
	return &c
}

// BetaBernoulliGroup is per-cluster sufficient statistics: counts of
// observed true/false values.
type BetaBernoulliGroup struct {
	Heads, Tails uint32
}

func (g *BetaBernoulliGroup) Init(shared Shared, rng *rand.Rand) {
	g.Heads, g.Tails = 0, 0
}

func (g *BetaBernoulliGroup) AddValue(shared Shared, v Value, rng *rand.Rand) {
	if v.Bool {
		g.Heads++
	} else {
		g.Tails++
	}
}

func (g *BetaBernoulliGroup) RemoveValue(shared Shared, v Value, rng *rand.Rand) {
	if v.Bool {
		g.Heads--
	} else {
		g.Tails--
	}
}

func (g *BetaBernoulliGroup) AddRepeatedValue(shared Shared, v Value, count uint32, rng *rand.Rand) {
	if v.Bool {
		g.Heads += count
	} else {
		g.Tails += count
	}
}

func (g *BetaBernoulliGroup) ScoreValue(shared Shared, v Value, rng *rand.Rand) float64 {
	s := shared.(*BetaBernoulliShared)
	total := float64(g.Heads) + float64(g.Tails) + s.Alpha + s.Beta
	if v.Bool {
		return math.Log((float64(g.Heads) + s.Alpha) / total)
	}
	return math.Log((float64(g.Tails) + s.Beta) / total)
}

func (g *BetaBernoulliGroup) ScoreData(shared Shared, rng *rand.Rand) float64 {
	s := shared.(*BetaBernoulliShared)
	h, t := float64(g.Heads), float64(g.Tails)
	return lgamma(s.Alpha+s.Beta) - lgamma(s.Alpha) - lgamma(s.Beta) +
		lgamma(h+s.Alpha) + lgamma(t+s.Beta) - lgamma(h+t+s.Alpha+s.Beta)
}

func (g *BetaBernoulliGroup) SampleValue(shared Shared, rng *rand.Rand) Value {
	s := shared.(*BetaBernoulliShared)
	p := (float64(g.Heads) + s.Alpha) / (float64(g.Heads) + float64(g.Tails) + s.Alpha + s.Beta)
	return BoolValue(rng.Float64() < p)
}

func (g *BetaBernoulliGroup) Clone() Group {
	c := *g
	return &c
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}
