// Copyright (c) 2026 dllu

package linear

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestUnaryIdentity(t *testing.T) {
	f, err := NewUnary(0, mat.NewDense(2, 2, []float64{1, 0, 0, 1}), vec(0, 0), unit(2))
	require.NoError(t, err)
	x := vv(map[int][]float64{0: {3, 4}})

	e, err := f.Error(x)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, e, 1e-12)

	ax, err := f.MultiplyVec(x)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, ax.AtVec(0), 1e-12)
	assert.InDelta(t, 4.0, ax.AtVec(1), 1e-12)
}

func TestConstructionValidation(t *testing.T) {
	// b length disagreeing with the model.
	_, err := NewUnary(0, mat.NewDense(1, 1, []float64{1}), vec(1, 2), unit(1))
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Block row count disagreeing with b.
	_, err = NewUnary(0, mat.NewDense(2, 1, []float64{1, 1}), vec(1), unit(1))
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Keys out of order.
	_, err = NewBinary(
		3, mat.NewDense(1, 1, []float64{1}),
		1, mat.NewDense(1, 1, []float64{1}),
		vec(0), unit(1),
	)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// NaN entries.
	_, err = NewUnary(0, mat.NewDense(1, 1, []float64{math.NaN()}), vec(0), unit(1))
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Negative variable.
	_, err = NewUnary(-1, mat.NewDense(1, 1, []float64{1}), vec(0), unit(1))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestErrorInvariance(t *testing.T) {
	f, err := NewBinary(
		0, mat.NewDense(2, 1, []float64{1, 2}),
		3, mat.NewDense(2, 1, []float64{-1, 0}),
		vec(1, 4), diagonal(t, 2, 0.5),
	)
	require.NoError(t, err)
	x := vv(map[int][]float64{0: {2}, 3: {3}})

	// error = 0.5 ‖(A x − b)/sigma‖², computed by hand.
	r0 := (1.0*2 - 1.0*3 - 1) / 2
	r1 := (2.0*2 - 4) / 0.5
	want := 0.5 * (r0*r0 + r1*r1)

	e, err := f.Error(x)
	require.NoError(t, err)
	assert.InDelta(t, want, e, 1e-12)
	assert.GreaterOrEqual(t, e, 0.0)

	ev, err := f.ErrorVector(x)
	require.NoError(t, err)
	assert.InDelta(t, want, 0.5*mat.Dot(ev, ev), 1e-12)
}

func TestWhitenPreservesError(t *testing.T) {
	f, err := NewUnary(1, mat.NewDense(2, 2, []float64{1, 2, 0, 3}), vec(1, -1), diagonal(t, 2, 4))
	require.NoError(t, err)
	w, err := f.Whiten()
	require.NoError(t, err)
	assert.False(t, w.Model().IsConstrained())
	assert.Equal(t, []float64{1, 1}, w.Model().Sigmas())

	x := vv(map[int][]float64{1: {0.5, -2}})
	ef, err := f.Error(x)
	require.NoError(t, err)
	ew, err := w.Error(x)
	require.NoError(t, err)
	assert.InDelta(t, ef, ew, 1e-12)
}

func TestPermuteWithInverse(t *testing.T) {
	f, err := NewBinary(
		2, mat.NewDense(1, 1, []float64{2}),
		5, mat.NewDense(1, 1, []float64{3}),
		vec(1), unit(1),
	)
	require.NoError(t, err)

	inv := Identity(6)
	inv[2] = 0
	inv[5] = 1
	x := vv(map[int][]float64{2: {1}, 5: {2}})
	before, err := f.Error(x)
	require.NoError(t, err)

	require.NoError(t, f.PermuteWithInverse(inv))
	assert.Equal(t, []int{0, 1}, f.Keys())

	relabeled := vv(map[int][]float64{0: {1}, 1: {2}})
	after, err := f.Error(relabeled)
	require.NoError(t, err)
	assert.InDelta(t, before, after, 1e-12)

	// The staircase is reset to whole rows.
	assert.Equal(t, []int{0}, f.FirstNonzeroBlocks())
}

func TestPermuteReordersBlocks(t *testing.T) {
	// Swapping the two variables must swap the coefficient blocks.
	f, err := NewBinary(
		0, mat.NewDense(1, 2, []float64{1, 2}),
		1, mat.NewDense(1, 1, []float64{3}),
		vec(4), unit(1),
	)
	require.NoError(t, err)
	inv := Permutation{1, 0}
	require.NoError(t, f.PermuteWithInverse(inv))
	assert.Equal(t, []int{0, 1}, f.Keys())
	assert.Equal(t, 1, f.GetDim(0))
	assert.Equal(t, 2, f.GetDim(1))
	assert.Equal(t, 3.0, f.GetA(0).At(0, 0))
	assert.Equal(t, 1.0, f.GetA(1).At(0, 0))
	assert.Equal(t, 2.0, f.GetA(1).At(0, 1))
}

func TestEqualsUpToRowSign(t *testing.T) {
	a, err := NewUnary(0, mat.NewDense(2, 1, []float64{1, 2}), vec(3, 4), unit(2))
	require.NoError(t, err)
	b, err := NewUnary(0, mat.NewDense(2, 1, []float64{-1, 2}), vec(-3, 4), unit(2))
	require.NoError(t, err)
	c, err := NewUnary(0, mat.NewDense(2, 1, []float64{-1, 2}), vec(3, 4), unit(2))
	require.NoError(t, err)

	assert.True(t, a.Equals(b, 1e-9))
	assert.False(t, a.Equals(c, 1e-9))

	d, err := NewUnary(1, mat.NewDense(2, 1, []float64{1, 2}), vec(3, 4), unit(2))
	require.NoError(t, err)
	assert.False(t, a.Equals(d, 1e-9))
}

func TestMatrixAccessors(t *testing.T) {
	f, err := NewUnary(0, mat.NewDense(2, 1, []float64{2, 4}), vec(2, 8), diagonal(t, 2, 2))
	require.NoError(t, err)

	a, b, err := f.Matrix(false)
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.At(0, 0))
	assert.Equal(t, 8.0, b.AtVec(1))

	a, b, err = f.Matrix(true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.At(0, 0))
	assert.Equal(t, 2.0, a.At(1, 0))
	assert.Equal(t, 1.0, b.AtVec(0))
	assert.Equal(t, 4.0, b.AtVec(1))

	ab, err := f.MatrixAugmented(true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ab.At(0, 0))
	assert.Equal(t, 1.0, ab.At(0, 1))
	assert.Equal(t, 2.0, ab.At(1, 0))
	assert.Equal(t, 4.0, ab.At(1, 1))
}

func TestSparseTripletRoundTrip(t *testing.T) {
	f, err := NewBinary(
		0, mat.NewDense(2, 2, []float64{2, 0, 0, 4}),
		1, mat.NewDense(2, 1, []float64{6, 0}),
		vec(1, 2), diagonal(t, 2, 2),
	)
	require.NoError(t, err)

	rows, cols, vals, err := f.Sparse(map[int]int{0: 1, 1: 3})
	require.NoError(t, err)

	// Reassemble into a dense whitened A at the given column indices.
	dense := mat.NewDense(2, 3, nil)
	for k := range rows {
		dense.Set(rows[k]-1, cols[k]-1, vals[k])
	}
	want, _, err := f.Matrix(true)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, dense, 1e-12))

	_, _, _, err = f.Sparse(map[int]int{0: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTransposeMultiplyAdd(t *testing.T) {
	f, err := NewUnary(0, mat.NewDense(2, 1, []float64{1, 2}), vec(0, 0), diagonal(t, 1, 2))
	require.NoError(t, err)
	x := vv(map[int][]float64{0: {10}})

	// x[0] += 2 · Aᵀ Σ^{-1/2} e with e = [1, 2].
	require.NoError(t, f.TransposeMultiplyAdd(2, vec(1, 2), x))
	want := 10 + 2*(1*1.0+2*1.0)
	assert.InDelta(t, want, x.At(0).AtVec(0), 1e-12)
}

func TestEmptyFactor(t *testing.T) {
	f := NewEmpty()
	assert.True(t, f.Empty())
	assert.Equal(t, 0, f.Rows())
	assert.Empty(t, f.Keys())

	e, err := f.Error(NewVectorValues())
	require.NoError(t, err)
	assert.Equal(t, 0.0, e)

	b, err := NewFromB(vec(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, b.Rows())
	assert.Empty(t, b.Keys())
	assert.Equal(t, 1.0, b.GetB().AtVec(0))
}
