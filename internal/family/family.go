// Package family implements the feature-family capability set (spec §4.4):
// an opaque, closed set of conjugate likelihood models. The engine never
// inspects a family's internals — it only calls the Shared/Group methods
// below, dispatched through the Kind tagged union (spec §9: "prefer a
// tagged-union over the known family set... both work because the family
// list is closed and small").
//
// The concrete maths here (Beta-Bernoulli, Dirichlet-discrete,
// Dirichlet-process-discrete, Gamma-Poisson, Normal-Inverse-Chi-Squared) is
// explicitly out of THE CORE's scope per spec §1 — the rest of the engine
// only depends on the contract in this file, not on any of it being
// numerically state-of-the-art.
package family

import "math/rand"

// Kind enumerates the closed set of feature families.
type Kind uint8

const (
	BetaBernoulli Kind = iota
	DirichletDiscrete16
	DirichletDiscrete256
	DirichletProcessDiscrete
	GammaPoisson
	NormalInverseChiSq
)

func (k Kind) String() string {
	switch k {
	case BetaBernoulli:
		return "BB"
	case DirichletDiscrete16:
		return "DD16"
	case DirichletDiscrete256:
		return "DD256"
	case DirichletProcessDiscrete:
		return "DPD"
	case GammaPoisson:
		return "GP"
	case NormalInverseChiSq:
		return "NICH"
	default:
		return "UNKNOWN"
	}
}

// Block reports which schema block (spec §3) a family's wire values live in.
func (k Kind) Block() Wire {
	switch k {
	case BetaBernoulli:
		return WireBool
	case NormalInverseChiSq:
		return WireReal
	default:
		return WireCount
	}
}

// Wire is the ProductValue block a family's Value is drawn from.
type Wire int

const (
	WireBool Wire = iota
	WireCount
	WireReal
)

// Value is the tagged union of the three wire types a family can consume.
// A given family only ever reads the field matching its Kind.Block().
type Value struct {
	Bool  bool
	Count uint32
	Real  float32
}

func BoolValue(b bool) Value    { return Value{Bool: b} }
func CountValue(c uint32) Value { return Value{Count: c} }
func RealValue(r float32) Value { return Value{Real: r} }

// Shared holds corpus-level hyperparameters and running statistics for one
// feature. Owned by exactly one kind at a time (spec §3 ownership
// invariants); moved wholesale on a kind reassignment.
type Shared interface {
	// AddValue/RemoveValue update corpus-level running stats, used by
	// generate (sampling from the prior) and by hyperparameter grid search.
	AddValue(v Value, rng *rand.Rand)
	RemoveValue(v Value, rng *rand.Rand)
	// Clone returns an independent copy, used when the hyper kernel probes
	// a grid point without mutating the live Shared.
	Clone() Shared
}

// Group holds per-cluster sufficient statistics for one feature.
type Group interface {
	Init(shared Shared, rng *rand.Rand)
	AddValue(shared Shared, v Value, rng *rand.Rand)
	RemoveValue(shared Shared, v Value, rng *rand.Rand)
	// AddRepeatedValue is the tare fast path (spec §4.6 step 2): applies
	// the same value `count` times without `count` individual calls.
	AddRepeatedValue(shared Shared, v Value, count uint32, rng *rand.Rand)
	// ScoreValue is the log posterior predictive of v under this group.
	ScoreValue(shared Shared, v Value, rng *rand.Rand) float64
	// ScoreData is the log marginal likelihood of this group's data.
	ScoreData(shared Shared, rng *rand.Rand) float64
	SampleValue(shared Shared, rng *rand.Rand) Value
	Clone() Group
}

// NewShared constructs a default-hyperparameter Shared for kind k. width
// bounds the alphabet for the two Dirichlet-discrete specialisations (spec
// §4.4: "two width specialisations, ≤16 and ≤256, chosen at load by the
// observed alphabet") and is ignored by the other four families.
func NewShared(k Kind, width int) Shared {
	switch k {
	case BetaBernoulli:
		return NewBetaBernoulliShared()
	case DirichletDiscrete16:
		return NewDirichletDiscreteShared(clampWidth(width, 16))
	case DirichletDiscrete256:
		return NewDirichletDiscreteShared(clampWidth(width, 256))
	case DirichletProcessDiscrete:
		return NewDPDShared()
	case GammaPoisson:
		return NewGammaPoissonShared()
	case NormalInverseChiSq:
		return NewNICHShared()
	default:
		panic("family: unknown kind")
	}
}

// NewGroup constructs a zero-state Group for kind k sharing hyperparameters
// with shared.
func NewGroup(k Kind, shared Shared, rng *rand.Rand) Group {
	var g Group
	switch k {
	case BetaBernoulli:
		g = &BetaBernoulliGroup{}
	case DirichletDiscrete16, DirichletDiscrete256:
		g = &DirichletDiscreteGroup{}
	case DirichletProcessDiscrete:
		g = &DPDGroup{}
	case GammaPoisson:
		g = &GammaPoissonGroup{}
	case NormalInverseChiSq:
		g = &NICHGroup{}
	default:
		panic("family: unknown kind")
	}
	g.Init(shared, rng)
	return g
}

func clampWidth(width, max int) int {
	if width <= 0 {
		return max
	}
	if width > max {
		return max
	}
	return width
}
