// Package synth generates synthetic e-commerce behavioral data: experiment
// assignments, logistics records and support tickets. Generators are pure
// over their inputs; randomness always comes from an explicitly passed
// *rand.Rand so runs are reproducible from a seed.
package synth

import (
	"math"
	"math/rand"
	"time"
)

// User is the entity row experiment assignment and ticket generation run
// over.
type User struct {
	ID               string
	Email            string
	RegistrationDate time.Time
}

// Order is the entity row logistics generation runs over.
type Order struct {
	ID        string
	UserID    string
	OrderDate time.Time
	NumItems  int
}

// weightedChoice picks one item with the given probability weights. The
// weights must sum to 1.
func weightedChoice[T any](rng *rand.Rand, items []T, weights []float64) T {
	p := rng.Float64()
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if p <= cumulative {
			return items[i]
		}
	}
	return items[len(items)-1]
}

func uniform(rng *rand.Rand, low, high float64) float64 {
	return low + rng.Float64()*(high-low)
}

// randInt returns an integer in [low, high] inclusive.
func randInt(rng *rand.Rand, low, high int) int {
	return low + rng.Intn(high-low+1)
}

func chance(rng *rand.Rand, percent int) bool {
	return rng.Intn(100) < percent
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
