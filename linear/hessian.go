// Copyright (c) 2026 dllu

package linear

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/dllu/gtsam/blockmatrix"
	"github.com/dllu/gtsam/matutil"
	"github.com/dllu/gtsam/noisemodel"
)

// HessianFactor carries quadratic information directly: keys, their
// column dimensions, and the augmented information matrix
// [AᵀA  Aᵀb; bᵀA  bᵀb] of some whitened system. Only the upper
// triangle of info is meaningful.
type HessianFactor struct {
	keys []int
	dims []int
	info *mat.Dense
}

// NewHessianFactor wraps an augmented information matrix. info must be
// square with sum(dims)+1 rows. The matrix is not copied.
func NewHessianFactor(keys, dims []int, info *mat.Dense) (*HessianFactor, error) {
	if len(keys) != len(dims) {
		return nil, fmt.Errorf("NewHessianFactor: %d keys, %d dims: %w", len(keys), len(dims), ErrInvalidInput)
	}
	total := 1
	for i, d := range dims {
		if d <= 0 {
			return nil, fmt.Errorf("NewHessianFactor: dimension %d of variable %d: %w", d, keys[i], ErrInvalidInput)
		}
		total += d
	}
	r, c := info.Dims()
	if r != total || c != total {
		return nil, fmt.Errorf("NewHessianFactor: info is %dx%d, want %dx%d: %w", r, c, total, total, ErrInvalidInput)
	}
	if matutil.HasNaN(info) {
		return nil, fmt.Errorf("NewHessianFactor: info contains NaN entries: %w", ErrInvalidInput)
	}
	return &HessianFactor{
		keys: append([]int(nil), keys...),
		dims: append([]int(nil), dims...),
		info: info,
	}, nil
}

// NewHessianFromJacobian squares a Jacobian factor into information
// form: info = [A|b]ᵀ Σ⁻¹ [A|b].
func NewHessianFromJacobian(f *JacobianFactor) (*HessianFactor, error) {
	wab, err := f.MatrixAugmented(true)
	if err != nil {
		return nil, fmt.Errorf("NewHessianFromJacobian: %s", err.Error())
	}
	if wab == nil {
		return nil, fmt.Errorf("NewHessianFromJacobian: factor has no rows: %w", ErrInvalidInput)
	}
	_, c := wab.Dims()
	info := mat.NewDense(c, c, nil)
	info.Mul(wab.T(), wab)
	dims := make([]int, f.NumKeys())
	for i := range dims {
		dims[i] = f.GetDim(i)
	}
	return NewHessianFactor(f.Keys(), dims, info)
}

// Keys returns a copy of the variable indices.
func (h *HessianFactor) Keys() []int { return append([]int(nil), h.keys...) }

// Dims returns a copy of the per-variable column dimensions.
func (h *HessianFactor) Dims() []int { return append([]int(nil), h.dims...) }

// Info returns the augmented information matrix, not copied.
func (h *HessianFactor) Info() *mat.Dense { return h.info }

// NewFromHessian converts quadratic information back to Jacobian form
// by a rank-revealing Cholesky. The result has the discovered rank as
// its row count, a Unit model, and keys re-sorted ascending through an
// inverse permutation.
func NewFromHessian(h *HessianFactor) (*JacobianFactor, error) {
	work := mat.DenseCopyOf(h.info)
	rank, err := matutil.CholeskyCareful(work)
	if err != nil {
		return nil, fmt.Errorf("NewFromHessian: %s", err.Error())
	}

	dims := make([]int, len(h.dims)+1)
	copy(dims, h.dims)
	dims[len(h.dims)] = 1
	ab, err := blockmatrix.New(dims, rank)
	if err != nil {
		return nil, fmt.Errorf("NewFromHessian: %s", err.Error())
	}
	if rank > 0 {
		_, c := work.Dims()
		ab.Mat().Copy(work.Slice(0, rank, 0, c))
	}
	f := &JacobianFactor{
		keys:               append([]int(nil), h.keys...),
		ab:                 ab,
		model:              noisemodel.NewUnit(rank),
		firstNonzeroBlocks: make([]int, rank),
	}

	// The Hessian's keys may arrive in any order; relabel each key to
	// its rank to reorder the blocks, then restore the real indices.
	sorted := append([]int(nil), h.keys...)
	sort.Ints(sorted)
	maxKey := 0
	for _, k := range h.keys {
		if k > maxKey {
			maxKey = k
		}
	}
	perm := Identity(maxKey + 1)
	for i, k := range sorted {
		perm[k] = i
	}
	if err := f.PermuteWithInverse(perm); err != nil {
		return nil, fmt.Errorf("NewFromHessian: %s", err.Error())
	}
	copy(f.keys, sorted)

	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("NewFromHessian: %s", err.Error())
	}
	return f, nil
}
