package family

import (
	"math"
	"math/rand"
)

// GammaPoissonShared holds a Gamma(alpha, inv_beta) prior over the rate of
// a Poisson-distributed unbounded count feature.
type GammaPoissonShared struct {
	Alpha, Beta float64
	// Corpus-level running stats.
	Sum   uint64
	Count uint64
}

// NewGammaPoissonShared returns a weakly-informative Gamma(1,1) prior.
func NewGammaPoissonShared() *GammaPoissonShared {
	return &GammaPoissonShared{Alpha: 1, Beta: 1}
}

func (s *GammaPoissonShared) AddValue(v Value, rng *rand.Rand) {
	s.Sum += uint64(v.Count)
	s.Count++
}

func (s *GammaPoissonShared) RemoveValue(v Value, rng *rand.Rand) {
	s.Sum -= uint64(v.Count)
	s.Count--
}

func (s *GammaPoissonShared) Clone() Shared {
	c := *s
	return &c
}

// GammaPoissonGroup holds per-cluster sufficient statistics: the sum of
// observed counts, the number of observations, and the running sum of
// log(count!) needed by the exact marginal likelihood.
type GammaPoissonGroup struct {
	Sum          uint64
	N            uint64
	SumLogFactorial float64
}

func (g *GammaPoissonGroup) Init(shared Shared, rng *rand.Rand) {
	g.Sum, g.N, g.SumLogFactorial = 0, 0, 0
}

func logFactorial(v uint32) float64 {
	return lgamma(float64(v) + 1)
}

func (g *GammaPoissonGroup) AddValue(shared Shared, v Value, rng *rand.Rand) {
	g.Sum += uint64(v.Count)
	g.N++
	g.SumLogFactorial += logFactorial(v.Count)
}

func (g *GammaPoissonGroup) RemoveValue(shared Shared, v Value, rng *rand.Rand) {
	g.Sum -= uint64(v.Count)
	g.N--
	g.SumLogFactorial -= logFactorial(v.Count)
}

func (g *GammaPoissonGroup) AddRepeatedValue(shared Shared, v Value, count uint32, rng *rand.Rand) {
	g.Sum += uint64(v.Count) * uint64(count)
	g.N += uint64(count)
	g.SumLogFactorial += logFactorial(v.Count) * float64(count)
}

// posterior returns the Gamma(alpha', beta') posterior of the rate given
// this group's data under shared's prior.
func (g *GammaPoissonGroup) posterior(s *GammaPoissonShared) (alpha, beta float64) {
	return s.Alpha + float64(g.Sum), s.Beta + float64(g.N)
}

// ScoreValue is the log negative-binomial predictive pmf: the Poisson rate
// integrated against its Gamma posterior yields NB(r=alpha', p=beta'/(beta'+1)).
func (g *GammaPoissonGroup) ScoreValue(shared Shared, v Value, rng *rand.Rand) float64 {
	s := shared.(*GammaPoissonShared)
	alpha, beta := g.posterior(s)
	x := float64(v.Count)
	return lgamma(x+alpha) - lgamma(alpha) - logFactorial(v.Count) +
		alpha*math.Log(beta/(beta+1)) - x*math.Log(beta+1)
}

func (g *GammaPoissonGroup) ScoreData(shared Shared, rng *rand.Rand) float64 {
	s := shared.(*GammaPoissonShared)
	return s.Alpha*math.Log(s.Beta) - lgamma(s.Alpha) - g.SumLogFactorial +
		lgamma(s.Alpha+float64(g.Sum)) - (s.Alpha+float64(g.Sum))*math.Log(s.Beta+float64(g.N))
}

func (g *GammaPoissonGroup) SampleValue(shared Shared, rng *rand.Rand) Value {
	s := shared.(*GammaPoissonShared)
	alpha, beta := g.posterior(s)
	lambda := sampleGamma(alpha, rng) / beta
	return CountValue(samplePoisson(lambda, rng))
}

func (g *GammaPoissonGroup) Clone() Group {
	c := *g
	return &c
}

// samplePoisson draws from Poisson(lambda) via Knuth's multiplication
// algorithm, adequate for the moderate rates generate() produces.
func samplePoisson(lambda float64, rng *rand.Rand) uint32 {
	if lambda <= 0 {
		return 0
	}
	l := math.Exp(-lambda)
	k := uint32(0)
	p := 1.0
	for {
		k++
		p *= rng.Float64()
		if p <= l {
			return k - 1
		}
	}
}
