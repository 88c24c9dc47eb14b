// Copyright (c) 2026 dllu

package linear

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dllu/gtsam/blockmatrix"
)

// chainConditional builds p(x0 | x1) with R=[2], S=[1], d=[4], sigma 1.
func chainConditional(t *testing.T) *GaussianConditional {
	t.Helper()
	view, err := blockmatrix.New([]int{1, 1, 1}, 1)
	require.NoError(t, err)
	view.Mat().Set(0, 0, 2)
	view.Mat().Set(0, 1, 1)
	view.Mat().Set(0, 2, 4)
	cond, err := NewGaussianConditional([]int{0, 1}, 1, view, []float64{1})
	require.NoError(t, err)
	return cond
}

func TestConditionalAccessors(t *testing.T) {
	cond := chainConditional(t)
	assert.Equal(t, []int{0, 1}, cond.Keys())
	assert.Equal(t, []int{0}, cond.FrontalKeys())
	assert.Equal(t, []int{1}, cond.ParentKeys())
	assert.Equal(t, 1, cond.Dim())
	assert.Equal(t, 2.0, cond.R().At(0, 0))
	assert.Equal(t, 1.0, cond.S(0).At(0, 0))
	assert.Equal(t, 4.0, cond.D().AtVec(0))
	assert.Equal(t, []float64{1}, cond.Sigmas())
}

func TestConditionalSolve(t *testing.T) {
	cond := chainConditional(t)
	x := vv(map[int][]float64{1: {2}})
	require.NoError(t, cond.SolveInPlace(x))
	// 2 x0 + 1·2 = 4.
	assert.InDelta(t, 1.0, x.At(0).AtVec(0), 1e-12)

	assert.ErrorIs(t, cond.SolveInPlace(NewVectorValues()), ErrInvalidInput)
}

func TestConditionalError(t *testing.T) {
	cond := chainConditional(t)
	x := vv(map[int][]float64{0: {1}, 1: {2}})
	e, err := cond.Error(x)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, e, 1e-12)

	x = vv(map[int][]float64{0: {2}, 1: {2}})
	e, err = cond.Error(x)
	require.NoError(t, err)
	// Residual 2·2 + 2 − 4 = 2, error 0.5·4.
	assert.InDelta(t, 2.0, e, 1e-12)
}

func TestConditionalValidation(t *testing.T) {
	view, err := blockmatrix.New([]int{1, 1, 1}, 1)
	require.NoError(t, err)
	_, err = NewGaussianConditional([]int{0, 1}, 0, view, []float64{1})
	assert.ErrorIs(t, err, ErrPrecondition)
	_, err = NewGaussianConditional([]int{0}, 1, view, []float64{1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewGaussianConditional([]int{0, 1}, 1, view, []float64{1, 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBayesNetErrorAndString(t *testing.T) {
	bn := NewGaussianBayesNet()
	bn.Push(chainConditional(t))
	require.Equal(t, 1, bn.Len())

	x := vv(map[int][]float64{0: {2}, 1: {2}})
	e, err := bn.Error(x)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, e, 1e-12)
	assert.Contains(t, bn.String(), "p(x0 | x1)")
}
