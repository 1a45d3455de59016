package family

import (
	"math"
	"math/rand"
)

// DirichletDiscreteShared holds a symmetric Dirichlet prior over a bounded
// categorical alphabet of size Width, plus corpus-level running counts.
// DD16 and DD256 (spec §4.4) are the same structure at two different width
// bounds, chosen at construction — see clampWidth in family.go.
type DirichletDiscreteShared struct {
	Width int
	Alpha []float64 // per-category pseudo-count, len == Width
	// Corpus-level running counts.
	Counts []uint64
}

// NewDirichletDiscreteShared returns a symmetric Dirichlet(1/width, ...)
// prior, the standard "weak" default for a categorical of unknown skew.
func NewDirichletDiscreteShared(width int) *DirichletDiscreteShared {
	alpha := make([]float64, width)
	for i := range alpha {
		alpha[i] = 1.0 / float64(width)
	}
	return &DirichletDiscreteShared{Width: width, Alpha: alpha, Counts: make([]uint64, width)}
}

func (s *DirichletDiscreteShared) alphaSum() float64 {
	sum := 0.0
	for _, a := range s.Alpha {
		sum += a
	}
	return sum
}

func (s *DirichletDiscreteShared) AddValue(v Value, rng *rand.Rand) {
	if int(v.Count) < s.Width {
		s.Counts[v.Count]++
	}
}

func (s *DirichletDiscreteShared) RemoveValue(v Value, rng *rand.Rand) {
	if int(v.Count) < s.Width {
		s.Counts[v.Count]--
	}
}

func (s *DirichletDiscreteShared) Clone() Shared {
	c := &DirichletDiscreteShared{
		Width:  s.Width,
		Alpha:  append([]float64(nil), s.Alpha...),
		Counts: append([]uint64(nil), s.Counts...),
	}
	return c
}

// DirichletDiscreteGroup holds per-category observation counts for one
// cluster.
type DirichletDiscreteGroup struct {
	Counts []uint32
	Total  uint32
}

func (g *DirichletDiscreteGroup) Init(shared Shared, rng *rand.Rand) {
	s := shared.(*DirichletDiscreteShared)
	g.Counts = make([]uint32, s.Width)
	g.Total = 0
}

func (g *DirichletDiscreteGroup) AddValue(shared Shared, v Value, rng *rand.Rand) {
	g.Counts[v.Count]++
	g.Total++
}

func (g *DirichletDiscreteGroup) RemoveValue(shared Shared, v Value, rng *rand.Rand) {
	g.Counts[v.Count]--
	g.Total--
}

func (g *DirichletDiscreteGroup) AddRepeatedValue(shared Shared, v Value, count uint32, rng *rand.Rand) {
	g.Counts[v.Count] += count
	g.Total += count
}

func (g *DirichletDiscreteGroup) ScoreValue(shared Shared, v Value, rng *rand.Rand) float64 {
	s := shared.(*DirichletDiscreteShared)
	num := float64(g.Counts[v.Count]) + s.Alpha[v.Count]
	den := float64(g.Total) + s.alphaSum()
	return math.Log(num / den)
}

func (g *DirichletDiscreteGroup) ScoreData(shared Shared, rng *rand.Rand) float64 {
	s := shared.(*DirichletDiscreteShared)
	alphaSum := s.alphaSum()
	score := lgamma(alphaSum) - lgamma(float64(g.Total)+alphaSum)
	for k, c := range g.Counts {
		score += lgamma(float64(c)+s.Alpha[k]) - lgamma(s.Alpha[k])
	}
	return score
}

func (g *DirichletDiscreteGroup) SampleValue(shared Shared, rng *rand.Rand) Value {
	s := shared.(*DirichletDiscreteShared)
	den := float64(g.Total) + s.alphaSum()
	r := rng.Float64() * den
	cum := 0.0
	for k, c := range g.Counts {
		cum += float64(c) + s.Alpha[k]
		if r < cum {
			return CountValue(uint32(k))
		}
	}
	return CountValue(uint32(len(g.Counts) - 1))
}

func (g *DirichletDiscreteGroup) Clone() Group {
	c := &DirichletDiscreteGroup{Counts: append([]uint32(nil), g.Counts...), Total: g.Total}
	return c
}
