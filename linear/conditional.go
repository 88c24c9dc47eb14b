// Copyright (c) 2026 dllu

package linear

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/dllu/gtsam/blockmatrix"
	"github.com/dllu/gtsam/matutil"
)

// solveTol is the smallest diagonal magnitude back-substitution will
// divide by.
const solveTol = 1e-12

// GaussianConditional is one fragment of a back-substitution system:
// R x_f + S x_p = d with per-row sigmas, where x_f covers the first
// nrFrontals keys and x_p the remaining parent keys. R is upper
// triangular over the frontal columns.
type GaussianConditional struct {
	keys       []int
	nrFrontals int
	rsd        *blockmatrix.BlockMatrix // blocks: one per key, then the rhs
	sigmas     []float64
}

// NewGaussianConditional copies the window of view into an owned
// matrix. view must have len(keys)+1 window blocks and as many window
// rows as the total frontal dimension; sigmas covers those rows.
func NewGaussianConditional(keys []int, nrFrontals int, view *blockmatrix.BlockMatrix, sigmas []float64) (*GaussianConditional, error) {
	if nrFrontals < 1 || nrFrontals > len(keys) {
		return nil, fmt.Errorf("NewGaussianConditional: %d frontals for %d keys: %w", nrFrontals, len(keys), ErrPrecondition)
	}
	if view.NumBlocks() != len(keys)+1 {
		return nil, fmt.Errorf("NewGaussianConditional: view has %d blocks for %d keys: %w", view.NumBlocks(), len(keys), ErrInvalidInput)
	}
	frontalDim := view.Offset(nrFrontals)
	if view.Rows() != frontalDim {
		return nil, fmt.Errorf("NewGaussianConditional: view has %d rows, frontal dimension is %d: %w", view.Rows(), frontalDim, ErrInvalidInput)
	}
	if len(sigmas) != view.Rows() {
		return nil, fmt.Errorf("NewGaussianConditional: %d sigmas for %d rows: %w", len(sigmas), view.Rows(), ErrInvalidInput)
	}
	rsd := &blockmatrix.BlockMatrix{}
	rsd.AssignNoalias(view)
	return &GaussianConditional{
		keys:       append([]int(nil), keys...),
		nrFrontals: nrFrontals,
		rsd:        rsd,
		sigmas:     append([]float64(nil), sigmas...),
	}, nil
}

// Keys returns all keys, frontals first.
func (c *GaussianConditional) Keys() []int { return append([]int(nil), c.keys...) }

// NrFrontals returns the number of frontal variables.
func (c *GaussianConditional) NrFrontals() int { return c.nrFrontals }

// FrontalKeys returns the keys being conditioned.
func (c *GaussianConditional) FrontalKeys() []int {
	return append([]int(nil), c.keys[:c.nrFrontals]...)
}

// ParentKeys returns the conditioning keys.
func (c *GaussianConditional) ParentKeys() []int {
	return append([]int(nil), c.keys[c.nrFrontals:]...)
}

// Dim returns the total frontal dimension, which is also the row count.
func (c *GaussianConditional) Dim() int { return c.rsd.Rows() }

// R returns a view of the upper-triangular frontal block.
func (c *GaussianConditional) R() *mat.Dense { return c.rsd.Range(0, c.nrFrontals) }

// S returns a view of parent block i.
func (c *GaussianConditional) S(i int) *mat.Dense { return c.rsd.Block(c.nrFrontals + i) }

// D returns a copy of the rhs.
func (c *GaussianConditional) D() *mat.VecDense {
	d := mat.NewVecDense(c.rsd.Rows(), nil)
	d.CopyVec(c.rsd.Column(len(c.keys), 0, c.rsd.RowStart()))
	return d
}

// Sigmas returns a copy of the per-row sigmas.
func (c *GaussianConditional) Sigmas() []float64 { return append([]float64(nil), c.sigmas...) }

// ErrorVector returns the whitened residual R x_f + S x_p − d. Every
// key must be assigned in x.
func (c *GaussianConditional) ErrorVector(x *VectorValues) (*mat.VecDense, error) {
	e := c.D()
	e.ScaleVec(-1, e)
	var tmp mat.VecDense
	for pos, key := range c.keys {
		xv := x.At(key)
		if xv == nil {
			return nil, fmt.Errorf("GaussianConditional.ErrorVector: variable %d unassigned: %w", key, ErrInvalidInput)
		}
		tmp.MulVec(c.rsd.Block(pos), xv)
		e.AddVec(e, &tmp)
	}
	for i := 0; i < e.Len(); i++ {
		if s := c.sigmas[i]; s != 0 {
			e.SetVec(i, e.AtVec(i)/s)
		}
	}
	return e, nil
}

// Error returns half the squared norm of the whitened residual.
func (c *GaussianConditional) Error(x *VectorValues) (float64, error) {
	e, err := c.ErrorVector(x)
	if err != nil {
		return 0, err
	}
	return 0.5 * mat.Dot(e, e), nil
}

// SolveInPlace computes the frontal values from the parents by back-
// substitution and stores them into x. All parents must be assigned.
func (c *GaussianConditional) SolveInPlace(x *VectorValues) error {
	rhs := c.D()
	var tmp mat.VecDense
	for i, key := range c.ParentKeys() {
		xv := x.At(key)
		if xv == nil {
			return fmt.Errorf("GaussianConditional.SolveInPlace: parent %d unassigned: %w", key, ErrInvalidInput)
		}
		tmp.MulVec(c.S(i), xv)
		rhs.AddScaledVec(rhs, -1, &tmp)
	}

	r := c.R()
	n := rhs.Len()
	xf := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := rhs.AtVec(i)
		for k := i + 1; k < n; k++ {
			sum -= r.At(i, k) * xf[k]
		}
		d := r.At(i, i)
		if math.Abs(d) < solveTol {
			return &SingularError{Variable: c.variableOfColumn(i)}
		}
		xf[i] = sum / d
	}

	at := 0
	for pos := 0; pos < c.nrFrontals; pos++ {
		dim := c.rsd.BlockDim(pos)
		x.Set(c.keys[pos], mat.NewVecDense(dim, append([]float64(nil), xf[at:at+dim]...)))
		at += dim
	}
	return nil
}

// variableOfColumn maps a frontal column to the key owning it.
func (c *GaussianConditional) variableOfColumn(col int) int {
	for pos := 0; pos < c.nrFrontals; pos++ {
		if col < c.rsd.Offset(pos+1) {
			return c.keys[pos]
		}
	}
	return c.keys[c.nrFrontals-1]
}

// Equals reports equality of keys, frontal count, sigmas and rows, the
// rows compared up to a per-row sign flip.
func (c *GaussianConditional) Equals(o *GaussianConditional, tol float64) bool {
	if c.nrFrontals != o.nrFrontals || len(c.keys) != len(o.keys) {
		return false
	}
	for i := range c.keys {
		if c.keys[i] != o.keys[i] {
			return false
		}
	}
	for i := range c.sigmas {
		if math.Abs(c.sigmas[i]-o.sigmas[i]) > tol {
			return false
		}
	}
	a := c.rsd.Range(0, len(c.keys)+1)
	b := o.rsd.Range(0, len(o.keys)+1)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return matutil.RowsEqualUpToSign(a, b, tol)
}

func (c *GaussianConditional) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "p(")
	for i, k := range c.keys[:c.nrFrontals] {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "x%d", k)
	}
	if len(c.keys) > c.nrFrontals {
		sb.WriteString(" |")
		for _, k := range c.keys[c.nrFrontals:] {
			fmt.Fprintf(&sb, " x%d", k)
		}
	}
	fmt.Fprintf(&sb, ") sigmas=%v", c.sigmas)
	return sb.String()
}
