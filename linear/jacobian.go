// Copyright (c) 2026 dllu

// Package linear implements the sparse-block Gaussian factor engine:
// Jacobian factors over integer-indexed vector variables, their
// combination into a joint factor, and staircase-aware elimination into
// Gaussian conditionals plus a residual factor.
package linear

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/dllu/gtsam/blockmatrix"
	"github.com/dllu/gtsam/matutil"
	"github.com/dllu/gtsam/noisemodel"
)

// singularTol is the smallest frontal pivot magnitude elimination
// accepts before declaring the factor singular.
const singularTol = 1e-9

// Term is one (variable, coefficient block) pair of an n-ary factor.
type Term struct {
	Variable int
	A        *mat.Dense
}

// JacobianFactor encodes the weighted residual ‖Σ^{-1/2}(A x − b)‖²/2
// over the variables in keys. The augmented matrix [A₁ … Aₙ | b] is
// stored as one block matrix with a column group per key plus a final
// width-one group for b. firstNonzeroBlocks[r] is the first block with
// a nonzero coefficient in row r; len(keys) means the row is zero
// everywhere except possibly in b.
type JacobianFactor struct {
	keys               []int
	ab                 *blockmatrix.BlockMatrix
	model              *noisemodel.Model
	firstNonzeroBlocks []int
}

// NewEmpty returns a factor with no variables and no rows. It is the
// identity of Combine.
func NewEmpty() *JacobianFactor {
	ab := blockmatrix.NewEmpty()
	return &JacobianFactor{ab: ab, model: noisemodel.NewUnit(0)}
}

// NewFromB returns a zero-variable factor holding only a rhs.
func NewFromB(b *mat.VecDense) (*JacobianFactor, error) {
	m := 0
	if b != nil {
		m = b.Len()
	}
	ab, err := blockmatrix.New([]int{1}, m)
	if err != nil {
		return nil, fmt.Errorf("NewFromB: %s", err.Error())
	}
	f := &JacobianFactor{
		ab:                 ab,
		model:              noisemodel.NewUnit(m),
		firstNonzeroBlocks: make([]int, m),
	}
	for i := 0; i < m; i++ {
		ab.Mat().Set(i, 0, b.AtVec(i))
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("NewFromB: %s", err.Error())
	}
	return f, nil
}

// NewUnary returns a one-variable factor A₁ x₁ = b.
func NewUnary(i1 int, a1 *mat.Dense, b *mat.VecDense, model *noisemodel.Model) (*JacobianFactor, error) {
	return New([]Term{{i1, a1}}, b, model)
}

// NewBinary returns a two-variable factor. i1 < i2 is required.
func NewBinary(i1 int, a1 *mat.Dense, i2 int, a2 *mat.Dense, b *mat.VecDense, model *noisemodel.Model) (*JacobianFactor, error) {
	return New([]Term{{i1, a1}, {i2, a2}}, b, model)
}

// NewTernary returns a three-variable factor. i1 < i2 < i3 is required.
func NewTernary(i1 int, a1 *mat.Dense, i2 int, a2 *mat.Dense, i3 int, a3 *mat.Dense, b *mat.VecDense, model *noisemodel.Model) (*JacobianFactor, error) {
	return New([]Term{{i1, a1}, {i2, a2}, {i3, a3}}, b, model)
}

// New returns an n-ary factor from terms ordered by strictly increasing
// variable index. Every block must have len(b) rows, and the model must
// cover len(b) rows.
func New(terms []Term, b *mat.VecDense, model *noisemodel.Model) (*JacobianFactor, error) {
	m := b.Len()
	if model.Dim() != m {
		return nil, fmt.Errorf("New: model covers %d rows, b has %d: %w", model.Dim(), m, ErrInvalidInput)
	}
	keys := make([]int, len(terms))
	dims := make([]int, len(terms)+1)
	for j, t := range terms {
		if t.Variable < 0 {
			return nil, fmt.Errorf("New: negative variable %d: %w", t.Variable, ErrInvalidInput)
		}
		if j > 0 && t.Variable <= terms[j-1].Variable {
			return nil, fmt.Errorf("New: variables not strictly increasing at %d: %w", t.Variable, ErrInvalidInput)
		}
		r, c := t.A.Dims()
		if r != m {
			return nil, fmt.Errorf("New: block of variable %d has %d rows, b has %d: %w", t.Variable, r, m, ErrInvalidInput)
		}
		keys[j] = t.Variable
		dims[j] = c
	}
	dims[len(terms)] = 1
	ab, err := blockmatrix.New(dims, m)
	if err != nil {
		return nil, fmt.Errorf("New: %s", err.Error())
	}
	f := &JacobianFactor{
		keys:               keys,
		ab:                 ab,
		model:              model,
		firstNonzeroBlocks: make([]int, m),
	}
	if m > 0 {
		for j, t := range terms {
			ab.Block(j).Copy(t.A)
		}
		for i := 0; i < m; i++ {
			ab.Mat().Set(i, ab.Offset(len(terms)), b.AtVec(i))
		}
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	return f, nil
}

// NewFromConditional rebuilds a factor from a conditional's rows.
func NewFromConditional(c *GaussianConditional) (*JacobianFactor, error) {
	model, err := noisemodel.MixedSigmas(c.sigmas)
	if err != nil {
		return nil, fmt.Errorf("NewFromConditional: %s", err.Error())
	}
	ab := &blockmatrix.BlockMatrix{}
	ab.AssignNoalias(c.rsd)
	// TODO: initialize the staircase to the triangular pattern the
	// conditional's rows actually have, instead of whole rows.
	f := &JacobianFactor{
		keys:               append([]int(nil), c.keys...),
		ab:                 ab,
		model:              model,
		firstNonzeroBlocks: make([]int, ab.Rows()),
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("NewFromConditional: %w", err)
	}
	return f, nil
}

// Clone returns a deep copy.
func (f *JacobianFactor) Clone() *JacobianFactor {
	return &JacobianFactor{
		keys:               append([]int(nil), f.keys...),
		ab:                 f.ab.Clone(),
		model:              f.model,
		firstNonzeroBlocks: append([]int(nil), f.firstNonzeroBlocks...),
	}
}

// validate checks the construction invariants shared by every factor:
// staircase length, model dimension, and no NaN entries.
func (f *JacobianFactor) validate() error {
	if len(f.firstNonzeroBlocks) != f.Rows() {
		return fmt.Errorf("staircase covers %d rows of %d: %w", len(f.firstNonzeroBlocks), f.Rows(), ErrInvalidInput)
	}
	if f.model.Dim() != f.Rows() {
		return fmt.Errorf("model covers %d rows of %d: %w", f.model.Dim(), f.Rows(), ErrInvalidInput)
	}
	if matutil.HasNaN(f.ab.Mat()) {
		return fmt.Errorf("matrix contains NaN entries: %w", ErrInvalidInput)
	}
	return nil
}

// Empty reports whether the factor has no rows. An empty factor can
// still involve variables.
func (f *JacobianFactor) Empty() bool { return f.Rows() == 0 }

// Rows returns the number of residual rows.
func (f *JacobianFactor) Rows() int { return f.ab.Rows() }

// Cols returns the total column count of [A|b].
func (f *JacobianFactor) Cols() int { return f.ab.Cols() }

// Keys returns a copy of the ordered variable indices.
func (f *JacobianFactor) Keys() []int { return append([]int(nil), f.keys...) }

// NumKeys returns the number of involved variables.
func (f *JacobianFactor) NumKeys() int { return len(f.keys) }

// GetDim returns the column dimension of the variable at slot pos.
func (f *JacobianFactor) GetDim(pos int) int { return f.ab.BlockDim(pos) }

// GetA returns a view of the coefficient block at slot pos, or nil for
// an empty factor. The view is invalidated by any mutation.
func (f *JacobianFactor) GetA(pos int) *mat.Dense { return f.ab.Block(pos) }

// GetB returns a copy of the rhs, or nil when the factor has no rows.
func (f *JacobianFactor) GetB() *mat.VecDense {
	if f.Rows() == 0 {
		return nil
	}
	b := mat.NewVecDense(f.Rows(), nil)
	b.CopyVec(f.ab.Column(len(f.keys), 0, f.ab.RowStart()))
	return b
}

// Model returns the noise model.
func (f *JacobianFactor) Model() *noisemodel.Model { return f.model }

// FirstNonzeroBlocks returns a copy of the per-row staircase.
func (f *JacobianFactor) FirstNonzeroBlocks() []int {
	return append([]int(nil), f.firstNonzeroBlocks...)
}

// UnweightedError returns A x − b, or nil for an empty factor. Every
// key must be assigned in x.
func (f *JacobianFactor) UnweightedError(x *VectorValues) (*mat.VecDense, error) {
	if f.Empty() {
		return nil, nil
	}
	e := f.GetB()
	e.ScaleVec(-1, e)
	var tmp mat.VecDense
	for pos, key := range f.keys {
		xv := x.At(key)
		if xv == nil {
			return nil, fmt.Errorf("JacobianFactor.UnweightedError: variable %d unassigned: %w", key, ErrInvalidInput)
		}
		tmp.MulVec(f.ab.Block(pos), xv)
		e.AddVec(e, &tmp)
	}
	return e, nil
}

// ErrorVector returns the whitened residual Σ^{-1/2}(A x − b), or nil
// for an empty factor.
func (f *JacobianFactor) ErrorVector(x *VectorValues) (*mat.VecDense, error) {
	e, err := f.UnweightedError(x)
	if err != nil || e == nil {
		return nil, err
	}
	return f.model.Whiten(e)
}

// Error returns half the squared norm of the whitened residual. It is
// zero for empty factors.
func (f *JacobianFactor) Error(x *VectorValues) (float64, error) {
	if f.Empty() {
		return 0, nil
	}
	e, err := f.ErrorVector(x)
	if err != nil {
		return 0, err
	}
	return 0.5 * mat.Dot(e, e), nil
}

// MultiplyVec returns Σ^{-1/2} A x, or nil for an empty factor.
func (f *JacobianFactor) MultiplyVec(x *VectorValues) (*mat.VecDense, error) {
	if f.Empty() {
		return nil, nil
	}
	ax := mat.NewVecDense(f.Rows(), nil)
	var tmp mat.VecDense
	for pos, key := range f.keys {
		xv := x.At(key)
		if xv == nil {
			return nil, fmt.Errorf("JacobianFactor.MultiplyVec: variable %d unassigned: %w", key, ErrInvalidInput)
		}
		tmp.MulVec(f.ab.Block(pos), xv)
		ax.AddVec(ax, &tmp)
	}
	return f.model.Whiten(ax)
}

// TransposeMultiplyAdd accumulates alpha · Aⱼᵀ Σ^{-1/2} e into x[keyⱼ]
// for every key. Every key must be assigned in x.
func (f *JacobianFactor) TransposeMultiplyAdd(alpha float64, e *mat.VecDense, x *VectorValues) error {
	if f.Empty() {
		return nil
	}
	w, err := f.model.Whiten(e)
	if err != nil {
		return fmt.Errorf("JacobianFactor.TransposeMultiplyAdd: %s", err.Error())
	}
	w.ScaleVec(alpha, w)
	var tmp mat.VecDense
	for pos, key := range f.keys {
		xv := x.At(key)
		if xv == nil {
			return fmt.Errorf("JacobianFactor.TransposeMultiplyAdd: variable %d unassigned: %w", key, ErrInvalidInput)
		}
		tmp.MulVec(f.ab.Block(pos).T(), w)
		xv.AddVec(xv, &tmp)
	}
	return nil
}

// Matrix returns copies of A and b, whitened when weight is true.
func (f *JacobianFactor) Matrix(weight bool) (*mat.Dense, *mat.VecDense, error) {
	b := f.GetB()
	if f.Empty() || len(f.keys) == 0 {
		return nil, b, nil
	}
	a := mat.DenseCopyOf(f.ab.Range(0, len(f.keys)))
	if weight {
		if err := f.model.WhitenSystem(a, b); err != nil {
			return nil, nil, fmt.Errorf("JacobianFactor.Matrix: %s", err.Error())
		}
	}
	return a, b, nil
}

// MatrixAugmented returns a copy of [A|b], whitened when weight is
// true. It is nil for an empty factor.
func (f *JacobianFactor) MatrixAugmented(weight bool) (*mat.Dense, error) {
	if f.Empty() {
		return nil, nil
	}
	ab := mat.DenseCopyOf(f.ab.Range(0, len(f.keys)+1))
	if weight {
		if err := f.model.WhitenInPlace(ab); err != nil {
			return nil, fmt.Errorf("JacobianFactor.MatrixAugmented: %s", err.Error())
		}
	}
	return ab, nil
}

// Sparse emits the whitened coefficient blocks as triplets with
// one-based row indices. columnIndices assigns each key the index of
// its first column; b is not emitted.
func (f *JacobianFactor) Sparse(columnIndices map[int]int) (rows, cols []int, vals []float64, err error) {
	for pos, key := range f.keys {
		start, ok := columnIndices[key]
		if !ok {
			return nil, nil, nil, fmt.Errorf("JacobianFactor.Sparse: no column index for variable %d: %w", key, ErrInvalidInput)
		}
		a := f.ab.Block(pos)
		if a == nil {
			continue
		}
		r, c := a.Dims()
		for i := 0; i < r; i++ {
			w := 1.0
			if s := f.model.Sigma(i); s != 0 {
				w = 1 / s
			}
			for j := 0; j < c; j++ {
				if v := a.At(i, j); v != 0 {
					rows = append(rows, i+1)
					cols = append(cols, j+start)
					vals = append(vals, v*w)
				}
			}
		}
	}
	return rows, cols, vals, nil
}

// Whiten returns a copy with the whitening folded into the matrix and
// a Unit model.
func (f *JacobianFactor) Whiten() (*JacobianFactor, error) {
	w := f.Clone()
	if w.ab.Mat() != nil {
		if err := w.model.WhitenInPlace(w.ab.Mat()); err != nil {
			return nil, fmt.Errorf("JacobianFactor.Whiten: %s", err.Error())
		}
	}
	w.model = noisemodel.NewUnit(w.model.Dim())
	return w, nil
}

// Equals reports whether both factors have the same keys and the same
// rows up to a per-row sign flip within tol. Noise models are not
// compared, matching the row-sign ambiguity of QR output.
func (f *JacobianFactor) Equals(o *JacobianFactor, tol float64) bool {
	if len(f.keys) != len(o.keys) {
		return false
	}
	for i := range f.keys {
		if f.keys[i] != o.keys[i] {
			return false
		}
	}
	if f.Empty() || o.Empty() {
		return f.Empty() && o.Empty()
	}
	if f.Rows() != o.Rows() || f.Cols() != o.Cols() {
		return false
	}
	return matutil.RowsEqualUpToSign(
		f.ab.Range(0, len(f.keys)+1),
		o.ab.Range(0, len(o.keys)+1),
		tol,
	)
}

// PermuteWithInverse relabels every key through inversePermutation and
// reorders the coefficient blocks so the new keys are ascending. The
// staircase is invalidated and reset to whole rows.
func (f *JacobianFactor) PermuteWithInverse(inversePermutation Permutation) error {
	type slot struct{ newKey, oldPos int }
	slots := make([]slot, len(f.keys))
	for j, k := range f.keys {
		if k >= len(inversePermutation) {
			return fmt.Errorf("JacobianFactor.PermuteWithInverse: variable %d outside permutation of %d: %w", k, len(inversePermutation), ErrInvalidInput)
		}
		slots[j] = slot{inversePermutation.At(k), j}
	}
	for i := 1; i < len(slots); i++ {
		for j := i; j > 0 && slots[j-1].newKey > slots[j].newKey; j-- {
			slots[j-1], slots[j] = slots[j], slots[j-1]
		}
	}
	for i := 1; i < len(slots); i++ {
		if slots[i-1].newKey == slots[i].newKey {
			return fmt.Errorf("JacobianFactor.PermuteWithInverse: duplicate image %d: %w", slots[i].newKey, ErrInvalidInput)
		}
	}

	dims := make([]int, len(f.keys)+1)
	for j, s := range slots {
		dims[j] = f.ab.BlockDim(s.oldPos)
	}
	dims[len(f.keys)] = 1

	old := f.ab
	fresh, err := blockmatrix.New(dims, f.Rows())
	if err != nil {
		return fmt.Errorf("JacobianFactor.PermuteWithInverse: %s", err.Error())
	}
	for j, s := range slots {
		f.keys[j] = s.newKey
		if f.Rows() > 0 {
			fresh.Block(j).Copy(old.Block(s.oldPos))
		}
	}
	if f.Rows() > 0 {
		fresh.Block(len(f.keys)).Copy(old.Block(len(f.keys)))
	}
	f.ab = fresh

	// Permuting breaks the staircase; force whole rows so the next
	// Combine copies everything.
	for i := range f.firstNonzeroBlocks {
		f.firstNonzeroBlocks[i] = 0
	}
	return nil
}

// EliminateFirst eliminates a single frontal variable and returns its
// conditional. The receiver becomes the residual factor.
func (f *JacobianFactor) EliminateFirst() (*GaussianConditional, error) {
	bn, err := f.Eliminate(1)
	if err != nil {
		return nil, err
	}
	return bn.At(0), nil
}

// Eliminate runs an in-place staircase QR and extracts the conditionals
// p(x₀|x₁…), …, p(x_{k-1}|x_k…) of the first nrFrontals variables. The
// receiver is rewritten to the residual factor on the remaining
// variables. On SingularError the receiver is partially mutated and
// must be discarded.
func (f *JacobianFactor) Eliminate(nrFrontals int) (*GaussianBayesNet, error) {
	if !f.ab.WindowIsFull() {
		return nil, fmt.Errorf("JacobianFactor.Eliminate: row window is not full: %w", ErrPrecondition)
	}
	if nrFrontals < 1 || nrFrontals > len(f.keys) {
		return nil, fmt.Errorf("JacobianFactor.Eliminate: %d frontals for %d keys: %w", nrFrontals, len(f.keys), ErrPrecondition)
	}

	m := f.Rows()
	n := f.Cols()
	klog.V(4).Infof("Eliminate: %d frontals, %d keys, %dx%d", nrFrontals, len(f.keys), m, n)
	if m == 0 {
		return nil, &SingularError{Variable: f.keys[0]}
	}

	// Translate the per-row staircase into the per-column first
	// structurally zero row.
	firstZeroRows := make([]int, n)
	lastNonzeroRow := 0
	at := 0
	for pos := range f.keys {
		for lastNonzeroRow < m && f.firstNonzeroBlocks[lastNonzeroRow] <= pos {
			lastNonzeroRow++
		}
		for d := f.ab.BlockDim(pos); d > 0; d-- {
			firstZeroRows[at] = lastNonzeroRow
			at++
		}
	}
	firstZeroRows[n-1] = m

	frontalDim := f.ab.Offset(nrFrontals)
	qrModel, err := f.model.QRColumnWise(f.ab.Mat(), firstZeroRows)
	if err != nil {
		return nil, fmt.Errorf("JacobianFactor.Eliminate: %s", err.Error())
	}
	rank := qrModel.Dim()
	klog.V(4).Infof("Eliminate: frontalDim=%d rank=%d model=%s", frontalDim, rank, qrModel)

	// The kernel leaves reflector residue below the diagonal.
	a := f.ab.Mat()
	for j := 0; j < n; j++ {
		for i := j + 1; i < rank; i++ {
			a.Set(i, j, 0)
		}
	}

	for c := 0; c < frontalDim; c++ {
		if c >= rank || math.Abs(a.At(c, c)) <= singularTol {
			return nil, &SingularError{Variable: f.variableOfColumn(c)}
		}
	}

	// Extract one conditional per frontal, narrowing the window to its
	// rows and advancing the cursor past its block.
	bn := NewGaussianBayesNet()
	sigmas := qrModel.Sigmas()
	for j := 0; j < nrFrontals; j++ {
		varDim := f.ab.BlockDim(0)
		if err := f.ab.SetRowEnd(f.ab.RowStart() + varDim); err != nil {
			return nil, fmt.Errorf("JacobianFactor.Eliminate: %s", err.Error())
		}
		cond, err := NewGaussianConditional(
			f.keys[j:], 1, f.ab, sigmas[f.ab.RowStart():f.ab.RowEnd()],
		)
		if err != nil {
			return nil, fmt.Errorf("JacobianFactor.Eliminate: conditional %d: %s", j, err.Error())
		}
		bn.Push(cond)
		if err := f.ab.SetRowEnd(rank); err != nil {
			return nil, fmt.Errorf("JacobianFactor.Eliminate: %s", err.Error())
		}
		if err := f.ab.SetRowStart(f.ab.RowStart() + varDim); err != nil {
			return nil, fmt.Errorf("JacobianFactor.Eliminate: %s", err.Error())
		}
		if err := f.ab.SetFirstBlock(f.ab.FirstBlock() + 1); err != nil {
			return nil, fmt.Errorf("JacobianFactor.Eliminate: %s", err.Error())
		}
	}

	// The window now frames the residual rows and trailing blocks.
	// Compact them into fresh full-window storage so the factor again
	// satisfies the construction invariants.
	residualSigmas := sigmas[frontalDim:rank]
	anyZero := false
	for _, s := range residualSigmas {
		if s == 0 {
			anyZero = true
		}
	}
	var model *noisemodel.Model
	if anyZero {
		model, err = noisemodel.NewConstrained(residualSigmas)
	} else {
		model, err = noisemodel.NewDiagonal(residualSigmas)
	}
	if err != nil {
		return nil, fmt.Errorf("JacobianFactor.Eliminate: residual model: %s", err.Error())
	}

	fresh := &blockmatrix.BlockMatrix{}
	fresh.AssignNoalias(f.ab)
	f.ab = fresh
	f.keys = append([]int(nil), f.keys[nrFrontals:]...)
	f.model = model

	f.firstNonzeroBlocks = make([]int, f.Rows())
	pos := 0
	for row := 0; row < f.Rows(); row++ {
		for pos < len(f.keys) && f.ab.Offset(pos+1) <= row {
			pos++
		}
		f.firstNonzeroBlocks[row] = pos
	}

	klog.V(4).Infof("Eliminate: residual %d rows over %d keys", f.Rows(), len(f.keys))
	return bn, nil
}

// variableOfColumn maps a full-window column to the key owning it.
func (f *JacobianFactor) variableOfColumn(col int) int {
	for pos := range f.keys {
		if col < f.ab.Offset(pos+1) {
			return f.keys[pos]
		}
	}
	return f.keys[len(f.keys)-1]
}

func (f *JacobianFactor) String() string {
	var sb strings.Builder
	if f.Empty() {
		fmt.Fprintf(&sb, "JacobianFactor{empty, keys=%v}", f.keys)
		return sb.String()
	}
	sb.WriteString("JacobianFactor{\n")
	for pos, key := range f.keys {
		fmt.Fprintf(&sb, "  A[%d]=%v\n", key, mat.Formatted(f.ab.Block(pos), mat.Prefix("       ")))
	}
	fmt.Fprintf(&sb, "  b=%v\n  model=%s\n}", mat.Formatted(f.GetB().T()), f.model)
	return sb.String()
}
