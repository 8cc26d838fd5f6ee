// Package sampling provides the random variates the simulation consumes:
// inter-arrival delays and price noise. Every distribution draws from an
// explicitly seeded source so a run is reproducible from its seed.
package sampling

import (
	"math"
	"math/rand/v2"
)

type Distribution interface {
	Sample() float64
}

// Func adapts a plain function into a Distribution.
type Func func() float64

func (f Func) Sample() float64 { return f() }

// NewSource returns a deterministic generator for the given seed.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Exponential draws inter-arrival times for a Poisson process with the given
// rate using the inverse transform -ln(1-U)/rate.
func Exponential(rng *rand.Rand, rate float64) Distribution {
	return Func(func() float64 {
		// 1-U lies in (0, 1], so the log is always finite.
		u := 1 - rng.Float64()
		return -math.Log(u) / rate
	})
}

// Uniform draws from [lo, hi).
func Uniform(rng *rand.Rand, lo, hi float64) Distribution {
	return Func(func() float64 {
		return lo + (hi-lo)*rng.Float64()
	})
}

// Constant always returns v.
func Constant(v float64) Distribution {
	return Func(func() float64 { return v })
}

// Sequence replays values in order and then repeats the last one.
func Sequence(values ...float64) Distribution {
	i := 0
	return Func(func() float64 {
		v := values[min(i, len(values)-1)]
		i++
		return v
	})
}
