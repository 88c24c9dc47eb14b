// Copyright (c) 2026 dllu

package noisemodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// pivotTol is the threshold below which a column segment is a dead
// pivot: the column yields no pivot row and the scan moves on.
const pivotTol = 1e-9

// QRColumnWise triangularizes a in place, honoring a staircase: for
// column c only rows [pivot, firstZeroRows[c]) participate, rows below
// being structural zeros. Unconstrained rows are whitened first and
// combined with Householder reflections restricted to the active
// segment; hard constraint rows (sigma zero) pivot by exact row
// elimination and are never mixed into a reflection.
//
// A column whose active segment is numerically zero does not advance the
// pivot row. The scan covers every column, the rhs included, so a pure
// residual row [0 … 0 | beta] survives as a pivot row.
//
// The returned model covers the pivot rows, in order: Unit if none of
// them is a constraint, Constrained otherwise. Rows from the returned
// dim onward carry no information and must be ignored by the caller.
func (m *Model) QRColumnWise(a *mat.Dense, firstZeroRows []int) (*Model, error) {
	rows, cols := a.Dims()
	if rows != m.Dim() {
		return nil, fmt.Errorf("Model.QRColumnWise: matrix has %d rows, dim is %d", rows, m.Dim())
	}
	if len(firstZeroRows) != cols {
		return nil, fmt.Errorf("Model.QRColumnWise: %d staircase entries for %d columns", len(firstZeroRows), cols)
	}

	// Whiten the soft rows up front; from here on every soft row has
	// weight one and hard rows keep sigma zero.
	sig := m.Sigmas()
	for i := 0; i < rows; i++ {
		if sig[i] == 0 {
			continue
		}
		if w := 1 / sig[i]; w != 1 {
			row := a.RawRowView(i)
			for j := range row {
				row[j] *= w
			}
		}
		sig[i] = 1
	}

	idx := make([]int, 0, rows)
	v := make([]float64, 0, rows)
	pivot := 0
	for j := 0; j < cols && pivot < rows; j++ {
		h := firstZeroRows[j]
		if h > rows {
			h = rows
		}
		if h <= pivot {
			continue
		}

		// A hard constraint row with weight in this column pivots by
		// exact elimination of the rows below it.
		ci := -1
		for r := pivot; r < h; r++ {
			if sig[r] == 0 && math.Abs(a.At(r, j)) > pivotTol {
				ci = r
				break
			}
		}
		if ci >= 0 {
			if ci != pivot {
				swapRows(a, pivot, ci)
				sig[pivot], sig[ci] = sig[ci], sig[pivot]
			}
			p := a.At(pivot, j)
			for r := pivot + 1; r < h; r++ {
				f := a.At(r, j) / p
				if f == 0 {
					continue
				}
				for c := j + 1; c < cols; c++ {
					a.Set(r, c, a.At(r, c)-f*a.At(pivot, c))
				}
				a.Set(r, j, 0)
			}
			pivot++
			continue
		}

		// Householder over the soft rows of the segment. The pivot slot
		// may hold a constraint row whose entry here is zero; push it
		// down so the reflector lands on a soft row.
		if sig[pivot] == 0 {
			swapTo := -1
			for r := pivot + 1; r < h; r++ {
				if sig[r] != 0 {
					swapTo = r
					break
				}
			}
			if swapTo < 0 {
				continue
			}
			swapRows(a, pivot, swapTo)
			sig[pivot], sig[swapTo] = sig[swapTo], sig[pivot]
		}
		idx = idx[:0]
		for r := pivot; r < h; r++ {
			if sig[r] != 0 {
				idx = append(idx, r)
			}
		}
		norm := 0.0
		for _, r := range idx {
			x := a.At(r, j)
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm <= pivotTol {
			for _, r := range idx {
				a.Set(r, j, 0)
			}
			continue
		}
		if len(idx) == 1 {
			pivot++
			continue
		}
		alpha := -norm
		if a.At(pivot, j) < 0 {
			alpha = norm
		}
		v = v[:len(idx)]
		for k, r := range idx {
			v[k] = a.At(r, j)
		}
		v[0] -= alpha
		beta := 0.0
		for _, x := range v {
			beta += x * x
		}
		for c := j + 1; c < cols; c++ {
			s := 0.0
			for k, r := range idx {
				s += v[k] * a.At(r, c)
			}
			s *= 2 / beta
			for k, r := range idx {
				a.Set(r, c, a.At(r, c)-s*v[k])
			}
		}
		a.Set(pivot, j, alpha)
		for _, r := range idx[1:] {
			a.Set(r, j, 0)
		}
		pivot++
	}

	outSig := sig[:pivot]
	for _, s := range outSig {
		if s == 0 {
			return NewConstrained(outSig)
		}
	}
	return NewUnit(pivot), nil
}

func swapRows(a *mat.Dense, i, j int) {
	ri, rj := a.RawRowView(i), a.RawRowView(j)
	for k := range ri {
		ri[k], rj[k] = rj[k], ri[k]
	}
}
