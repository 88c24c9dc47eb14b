// Copyright (c) 2026 dllu

// Package matutil holds the dense helpers shared by the factor packages.
package matutil

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// choleskyTol is the pivot threshold below which a diagonal entry is
// treated as semi-definite slack rather than information.
const choleskyTol = 1e-9

// CholeskyCareful factorizes the symmetric matrix a in place into an
// upper-triangular R with RᵀR equal to a on the span of the positive
// pivots. Columns whose pivot is not positive are skipped rather than
// failing, so positive semi-definite input is legal. The surviving rows
// are compacted to the top of a and their count returned; rows below the
// returned rank are zeroed.
//
// Only the upper triangle of a is read; the returned rows come back
// with their strict lower triangle zeroed.
func CholeskyCareful(a *mat.Dense) (int, error) {
	n, c := a.Dims()
	if n != c {
		return 0, fmt.Errorf("CholeskyCareful: matrix is %dx%d, want square", n, c)
	}
	pivoted := make([]bool, n)
	for j := 0; j < n; j++ {
		d := a.At(j, j)
		if d <= choleskyTol {
			for k := j; k < n; k++ {
				a.Set(j, k, 0)
			}
			continue
		}
		d = math.Sqrt(d)
		a.Set(j, j, d)
		for k := j + 1; k < n; k++ {
			a.Set(j, k, a.At(j, k)/d)
		}
		for r := j + 1; r < n; r++ {
			rj := a.At(j, r)
			if rj == 0 {
				continue
			}
			for k := r; k < n; k++ {
				a.Set(r, k, a.At(r, k)-rj*a.At(j, k))
			}
		}
		pivoted[j] = true
	}

	// Compact the pivot rows to the top, zeroing everything left of
	// each row's pivot column so the stale symmetric entries of the
	// input's lower triangle do not leak into the result.
	rank := 0
	for j := 0; j < n; j++ {
		if !pivoted[j] {
			continue
		}
		for k := 0; k < j; k++ {
			a.Set(rank, k, 0)
		}
		if rank != j {
			for k := j; k < n; k++ {
				a.Set(rank, k, a.At(j, k))
			}
		}
		rank++
	}
	for r := rank; r < n; r++ {
		for k := 0; k < n; k++ {
			a.Set(r, k, 0)
		}
	}
	return rank, nil
}

// RowsEqualUpToSign reports whether each row of a equals the same row of
// b up to a global per-row sign flip, within tol.
func RowsEqualUpToSign(a, b mat.Matrix, tol float64) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return false
	}
	for i := 0; i < ar; i++ {
		same, flipped := true, true
		for j := 0; j < ac; j++ {
			x, y := a.At(i, j), b.At(i, j)
			if !scalar.EqualWithinAbs(x, y, tol) {
				same = false
			}
			if !scalar.EqualWithinAbs(x, -y, tol) {
				flipped = false
			}
		}
		if !same && !flipped {
			return false
		}
	}
	return true
}

// HasNaN reports whether any entry of a is NaN. A nil matrix has none.
func HasNaN(a mat.Matrix) bool {
	if a == nil {
		return false
	}
	if d, ok := a.(*mat.Dense); ok && d == nil {
		return false
	}
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(a.At(i, j)) {
				return true
			}
		}
	}
	return false
}
