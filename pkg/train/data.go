package train

import (
	"math"
	"math/rand"
)

type Example struct {
	Inputs []float64
	Target float64
}

// Moons returns n points on two interleaving half circles with Gaussian
// noise. Points on the upper moon have target -1, the lower moon +1.
func Moons(rng *rand.Rand, n int, noise float64) []Example {
	outer := n / 2
	examples := make([]Example, 0, n)
	for i := 0; i < n; i++ {
		var x, y, target float64
		if i < outer {
			theta := math.Pi * float64(i) / math.Max(float64(outer-1), 1)
			x, y, target = math.Cos(theta), math.Sin(theta), -1
		} else {
			inner := n - outer
			theta := math.Pi * float64(i-outer) / math.Max(float64(inner-1), 1)
			x, y, target = 1-math.Cos(theta), 0.5-math.Sin(theta), 1
		}
		x += rng.NormFloat64() * noise
		y += rng.NormFloat64() * noise
		examples = append(examples, Example{Inputs: []float64{x, y}, Target: target})
	}
	rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})
	return examples
}
