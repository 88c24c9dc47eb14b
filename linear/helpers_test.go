// Copyright (c) 2026 dllu

package linear

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/dllu/gtsam/noisemodel"
)

func vec(data ...float64) *mat.VecDense { return mat.NewVecDense(len(data), data) }

// vv builds an assignment from variable -> entries.
func vv(kv map[int][]float64) *VectorValues {
	x := NewVectorValues()
	for k, v := range kv {
		x.Set(k, mat.NewVecDense(len(v), append([]float64(nil), v...)))
	}
	return x
}

func unit(dim int) *noisemodel.Model { return noisemodel.NewUnit(dim) }

func diagonal(t *testing.T, sigmas ...float64) *noisemodel.Model {
	t.Helper()
	m, err := noisemodel.NewDiagonal(sigmas)
	require.NoError(t, err)
	return m
}

func constrained(t *testing.T, sigmas ...float64) *noisemodel.Model {
	t.Helper()
	m, err := noisemodel.NewConstrained(sigmas)
	require.NoError(t, err)
	return m
}
