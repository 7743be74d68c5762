package worker

import "math/rand"

// defaultJitter returns a value in [-0.2, 0.2], the U[-0.2, 0.2] term in
// §4.5's backoff formula.
func defaultJitter() float64 {
	return rand.Float64()*0.4 - 0.2
}
