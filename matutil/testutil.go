// Copyright (c) 2026 dllu

package matutil

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// RandomDense returns an r x c matrix with entries drawn uniformly from
// [-1, 1).
func RandomDense(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = 2*rng.Float64() - 1
	}
	return mat.NewDense(r, c, data)
}

// RandomSPD returns a random symmetric positive definite n x n matrix,
// built as MᵀM + I so every pivot is safely positive.
func RandomSPD(rng *rand.Rand, n int) *mat.Dense {
	m := RandomDense(rng, n, n)
	spd := mat.NewDense(n, n, nil)
	spd.Mul(m.T(), m)
	for i := 0; i < n; i++ {
		spd.Set(i, i, spd.At(i, i)+1)
	}
	return spd
}

// RandomSigmas returns n sigmas drawn uniformly from [lo, hi).
func RandomSigmas(rng *rand.Rand, n int, lo, hi float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = lo + (hi-lo)*rng.Float64()
	}
	return s
}
