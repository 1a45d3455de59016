package family

import (
	"math"
	"math/rand"
)

// DPDShared holds a Dirichlet-process prior over an open-ended categorical
// alphabet: a concentration Alpha, a per-observed-category weight Betas
// (summing with Beta0, the mass reserved for never-seen categories, to 1),
// and a second concentration Gamma governing how Beta0/Betas themselves are
// resampled (spec §4.4/§4.7's "specialised protocol").
type DPDShared struct {
	Alpha, Gamma float64
	Beta0        float64
	Betas        map[uint32]float64
	// Corpus-level running counts, keyed by observed category.
	Counts map[uint32]uint64
}

// NewDPDShared returns a fresh process with all mass on "unseen".
func NewDPDShared() *DPDShared {
	return &DPDShared{
		Alpha:  1.0,
		Gamma:  1.0,
		Beta0:  1.0,
		Betas:  make(map[uint32]float64),
		Counts: make(map[uint32]uint64),
	}
}

func (s *DPDShared) AddValue(v Value, rng *rand.Rand) {
	s.Counts[v.Count]++
	if _, ok := s.Betas[v.Count]; !ok {
		s.admitCategory(v.Count)
	}
}

func (s *DPDShared) RemoveValue(v Value, rng *rand.Rand) {
	if s.Counts[v.Count] > 0 {
		s.Counts[v.Count]--
	}
}

// admitCategory carves a small slice of Beta0 off for a newly observed
// category, stick-breaking style. Resampling later replaces this crude
// estimate with a properly sampled Betas/Beta0 pair (spec §4.7).
func (s *DPDShared) admitCategory(cat uint32) {
	share := s.Beta0 * 0.5
	s.Beta0 -= share
	s.Betas[cat] = share
}

func (s *DPDShared) Clone() Shared {
	c := &DPDShared{Alpha: s.Alpha, Gamma: s.Gamma, Beta0: s.Beta0,
		Betas: make(map[uint32]float64, len(s.Betas)), Counts: make(map[uint32]uint64, len(s.Counts))}
	for k, v := range s.Betas {
		c.Betas[k] = v
	}
	for k, v := range s.Counts {
		c.Counts[k] = v
	}
	return c
}

// DPDGroup holds per-category observation counts for one cluster. Unlike
// the bounded DirichletDiscreteGroup, categories are only allocated on
// first sight.
type DPDGroup struct {
	Counts map[uint32]uint32
	Total  uint32
}

func (g *DPDGroup) Init(shared Shared, rng *rand.Rand) {
	g.Counts = make(map[uint32]uint32)
	g.Total = 0
}

func (g *DPDGroup) AddValue(shared Shared, v Value, rng *rand.Rand) {
	g.Counts[v.Count]++
	g.Total++
}

func (g *DPDGroup) RemoveValue(shared Shared, v Value, rng *rand.Rand) {
	if g.Counts[v.Count] > 0 {
		g.Counts[v.Count]--
		if g.Counts[v.Count] == 0 {
			delete(g.Counts, v.Count)
		}
	}
	g.Total--
}

func (g *DPDGroup) AddRepeatedValue(shared Shared, v Value, count uint32, rng *rand.Rand) {
	g.Counts[v.Count] += count
	g.Total += count
}

// betaFor returns the process weight for category cat: its assigned slice
// of Betas if observed before anywhere in the corpus, else Beta0.
func betaFor(s *DPDShared, cat uint32) float64 {
	if b, ok := s.Betas[cat]; ok {
		return b
	}
	return s.Beta0
}

func (g *DPDGroup) ScoreValue(shared Shared, v Value, rng *rand.Rand) float64 {
	s := shared.(*DPDShared)
	num := float64(g.Counts[v.Count]) + s.Alpha*betaFor(s, v.Count)
	den := float64(g.Total) + s.Alpha
	return math.Log(num / den)
}

func (g *DPDGroup) ScoreData(shared Shared, rng *rand.Rand) float64 {
	s := shared.(*DPDShared)
	score := lgamma(s.Alpha) - lgamma(float64(g.Total)+s.Alpha)
	for cat, c := range g.Counts {
		ab := s.Alpha * betaFor(s, cat)
		score += lgamma(float64(c)+ab) - lgamma(ab)
	}
	return score
}

func (g *DPDGroup) SampleValue(shared Shared, rng *rand.Rand) Value {
	s := shared.(*DPDShared)
	den := float64(g.Total) + s.Alpha
	r := rng.Float64() * den
	cum := 0.0
	for cat, c := range g.Counts {
		cum += float64(c) + s.Alpha*betaFor(s, cat)
		if r < cum {
			return CountValue(cat)
		}
	}
	// Landed in the "draw a brand new category" mass: pick an id one past
	// the highest ever observed.
	var maxCat uint32
	for cat := range s.Counts {
		if cat >= maxCat {
			maxCat = cat + 1
		}
	}
	return CountValue(maxCat)
}

func (g *DPDGroup) Clone() Group {
	c := &DPDGroup{Counts: make(map[uint32]uint32, len(g.Counts)), Total: g.Total}
	for k, v := range g.Counts {
		c.Counts[k] = v
	}
	return c
}

// ResampleHypers implements the specialised DPD grid-Gibbs protocol of spec
// §4.7: sample auxiliary counts via log-Stirling numbers, resample
// gamma|aux, sample beta0/betas|aux,gamma via a safe (clamped) Dirichlet,
// then grid-Gibbs alpha|beta,gamma. Hypers are resampled on every call with
// non-empty grids; there is no guard that waits until every value has been
// observed.
func (s *DPDShared) ResampleHypers(groups []*DPDGroup, alphaGrid, gammaGrid []float64, rng *rand.Rand) {
	if len(alphaGrid) == 0 || len(gammaGrid) == 0 {
		return
	}

	// Auxiliary counts: one per (group, category) pair with at least one
	// observation, approximating the number of "new table" draws a Chinese
	// restaurant franchise would need via the log-Stirling recurrence.
	aux := map[uint32]float64{}
	for _, g := range groups {
		for cat, c := range g.Counts {
			if c == 0 {
				continue
			}
			aux[cat] += logStirlingAux(c, s.Alpha*betaFor(s, cat), rng)
		}
	}
	var auxTotal float64
	for _, a := range aux {
		auxTotal += a
	}

	// gamma | aux: gamma controls how much mass stays reserved for unseen
	// categories; more total auxiliary mass means more distinct categories
	// were needed, which pulls gamma up.
	bestGamma, bestScore := s.Gamma, math.Inf(-1)
	for _, g := range gammaGrid {
		sc := auxTotal*math.Log(g) - g
		if sc > bestScore {
			bestGamma, bestScore = g, sc
		}
	}
	s.Gamma = bestGamma

	// beta0, betas | aux, gamma via a safe Dirichlet: clamp every
	// concentration parameter away from zero before drawing gamma variates,
	// so a category with a single low-count observation never produces a
	// zero or NaN weight.
	var total float64
	weights := make(map[uint32]float64, len(aux))
	for cat, a := range aux {
		conc := math.Max(a, 1e-3)
		weights[cat] = sampleGamma(conc, rng)
		total += weights[cat]
	}
	unseen := sampleGamma(math.Max(s.Gamma, 1e-3), rng)
	total += unseen
	if total <= 0 {
		return
	}
	newBetas := make(map[uint32]float64, len(weights))
	for cat, w := range weights {
		newBetas[cat] = w / total
	}
	s.Betas = newBetas
	s.Beta0 = unseen / total

	// alpha | beta, gamma via grid-Gibbs: score each grid point by the sum
	// of per-group marginal likelihoods under the candidate alpha.
	bestAlpha, bestAlphaScore := s.Alpha, math.Inf(-1)
	for _, a := range alphaGrid {
		trial := s.Clone().(*DPDShared)
		trial.Alpha = a
		var sc float64
		for _, g := range groups {
			sc += g.ScoreData(trial, rng)
		}
		if sc > bestAlphaScore {
			bestAlpha, bestAlphaScore = a, sc
		}
	}
	s.Alpha = bestAlpha
}

// logStirlingAux approximates the number of auxiliary "new table" draws
// implied by c observations of a category with process mass m, using the
// expected value of a CRP table count rather than an exact unsigned
// Stirling-number draw (spec's math is explicitly opaque — see family.go).
func logStirlingAux(c uint32, m float64, rng *rand.Rand) float64 {
	if c == 0 {
		return 0
	}
	expected := 0.0
	for i := uint32(0); i < c; i++ {
		expected += m / (m + float64(i))
	}
	// Add a touch of sampling noise so repeated resamples aren't bit-identical.
	return math.Max(0, expected+rng.NormFloat64()*0.05*expected)
}

// sampleGamma draws from Gamma(shape, 1) using Marsaglia-Tsang, the
// standard rejection sampler for shape >= 1 (boosted via the usual
// shape+1 trick for shape < 1).
func sampleGamma(shape float64, rng *rand.Rand) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(shape+1, rng) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
