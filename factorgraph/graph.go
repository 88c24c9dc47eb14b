// Copyright (c) 2026 dllu

// Package factorgraph provides whole-graph operations over a list of
// shared Jacobian factor handles: error totals, gradient and
// multiplication helpers, and the combine-then-eliminate entry point.
package factorgraph

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/dllu/gtsam/linear"
)

// Graph is an ordered list of factors. The factors are shared handles:
// read-only operations may alias them freely, but CombineAndEliminate
// must own its inputs exclusively for its duration.
type Graph []*linear.JacobianFactor

// Error returns the total error Σ ½‖Σ^{-1/2}(A x − b)‖² over the graph.
func (g Graph) Error(x *linear.VectorValues) (float64, error) {
	total := 0.0
	for i, f := range g {
		e, err := f.Error(x)
		if err != nil {
			return 0, fmt.Errorf("Graph.Error: factor %d: %w", i, err)
		}
		total += e
	}
	return total, nil
}

// ErrorVectors returns each factor's whitened residual at x. Empty
// factors contribute nil entries.
func (g Graph) ErrorVectors(x *linear.VectorValues) ([]*mat.VecDense, error) {
	out := make([]*mat.VecDense, len(g))
	for i, f := range g {
		e, err := f.ErrorVector(x)
		if err != nil {
			return nil, fmt.Errorf("Graph.ErrorVectors: factor %d: %w", i, err)
		}
		out[i] = e
	}
	return out, nil
}

// MultiplyVec returns each factor's whitened product Σ^{-1/2} A x.
func (g Graph) MultiplyVec(x *linear.VectorValues) ([]*mat.VecDense, error) {
	out := make([]*mat.VecDense, len(g))
	for i, f := range g {
		ax, err := f.MultiplyVec(x)
		if err != nil {
			return nil, fmt.Errorf("Graph.MultiplyVec: factor %d: %w", i, err)
		}
		out[i] = ax
	}
	return out, nil
}

// MultiplyInPlace writes each factor's whitened product into e, which
// must have one slot per factor.
func (g Graph) MultiplyInPlace(x *linear.VectorValues, e []*mat.VecDense) error {
	if len(e) != len(g) {
		return fmt.Errorf("Graph.MultiplyInPlace: %d slots for %d factors", len(e), len(g))
	}
	for i, f := range g {
		ax, err := f.MultiplyVec(x)
		if err != nil {
			return fmt.Errorf("Graph.MultiplyInPlace: factor %d: %w", i, err)
		}
		e[i] = ax
	}
	return nil
}

// TransposeMultiplyAdd accumulates alpha · Aᵀ Σ^{-1/2} e over the graph
// into x, one residual vector per factor.
func (g Graph) TransposeMultiplyAdd(alpha float64, e []*mat.VecDense, x *linear.VectorValues) error {
	if len(e) != len(g) {
		return fmt.Errorf("Graph.TransposeMultiplyAdd: %d residuals for %d factors", len(e), len(g))
	}
	for i, f := range g {
		if f.Empty() {
			continue
		}
		if err := f.TransposeMultiplyAdd(alpha, e[i], x); err != nil {
			return fmt.Errorf("Graph.TransposeMultiplyAdd: factor %d: %w", i, err)
		}
	}
	return nil
}

// Gradient returns ∇ ½‖Σ^{-1/2}(A x − b)‖² = Aᵀ Σ⁻¹ (A x − b) summed
// over the graph, with the structure of x.
func (g Graph) Gradient(x *linear.VectorValues) (*linear.VectorValues, error) {
	grad := linear.ZeroLike(x)
	e, err := g.ErrorVectors(x)
	if err != nil {
		return nil, fmt.Errorf("Graph.Gradient: %w", err)
	}
	if err := g.TransposeMultiplyAdd(1, e, grad); err != nil {
		return nil, fmt.Errorf("Graph.Gradient: %w", err)
	}
	return grad, nil
}

// Multiply returns each factor's unwhitened product A x.
func (g Graph) Multiply(x *linear.VectorValues) ([]*mat.VecDense, error) {
	out := make([]*mat.VecDense, len(g))
	for i, f := range g {
		if f.Empty() {
			continue
		}
		ax := mat.NewVecDense(f.Rows(), nil)
		var tmp mat.VecDense
		for pos, key := range f.Keys() {
			xv := x.At(key)
			if xv == nil {
				return nil, fmt.Errorf("Graph.Multiply: factor %d: variable %d unassigned", i, key)
			}
			tmp.MulVec(f.GetA(pos), xv)
			ax.AddVec(ax, &tmp)
		}
		out[i] = ax
	}
	return out, nil
}

// Residual returns b − A x per factor, unwhitened.
func (g Graph) Residual(x *linear.VectorValues) ([]*mat.VecDense, error) {
	ax, err := g.Multiply(x)
	if err != nil {
		return nil, fmt.Errorf("Graph.Residual: %w", err)
	}
	out := make([]*mat.VecDense, len(g))
	for i, f := range g {
		if f.Empty() {
			continue
		}
		r := f.GetB()
		r.AddScaledVec(r, -1, ax[i])
		out[i] = r
	}
	return out, nil
}

// TransposeMultiply returns x = Σᵢ Aᵢᵀ rᵢ, unwhitened, creating a slot
// for every involved variable.
func (g Graph) TransposeMultiply(r []*mat.VecDense) (*linear.VectorValues, error) {
	if len(r) != len(g) {
		return nil, fmt.Errorf("Graph.TransposeMultiply: %d residuals for %d factors", len(r), len(g))
	}
	x := linear.NewVectorValues()
	var tmp mat.VecDense
	for i, f := range g {
		if f.Empty() {
			continue
		}
		for pos, key := range f.Keys() {
			xv := x.At(key)
			if xv == nil {
				xv = mat.NewVecDense(f.GetDim(pos), nil)
				x.Set(key, xv)
			}
			tmp.MulVec(f.GetA(pos).T(), r[i])
			xv.AddVec(xv, &tmp)
		}
	}
	return x, nil
}

// CombineAndEliminate merges the whole graph into one joint factor and
// eliminates its first nrFrontals variables, returning the extracted
// conditionals and the residual factor.
func (g Graph) CombineAndEliminate(nrFrontals int) (*linear.GaussianBayesNet, *linear.JacobianFactor, error) {
	klog.V(4).Infof("Graph.CombineAndEliminate: %d factors, %d frontals", len(g), nrFrontals)
	return linear.CombineAndEliminate(g, nrFrontals)
}
