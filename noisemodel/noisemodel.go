// Copyright (c) 2026 dllu

// Package noisemodel implements per-row diagonal whitening operators for
// weighted least-squares rows: Unit (identity), Diagonal (positive sigmas)
// and Constrained (sigmas that may be zero, marking hard equality rows).
package noisemodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Kind discriminates the noise model variants.
type Kind int

const (
	Unit Kind = iota
	Diagonal
	Constrained
)

func (k Kind) String() string {
	switch k {
	case Unit:
		return "unit"
	case Diagonal:
		return "diagonal"
	case Constrained:
		return "constrained"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Model is a diagonal whitening operator over dim rows. A row with sigma
// zero is a hard constraint: it is never scaled, and elimination pivots
// on it by exact row elimination rather than by reflection.
type Model struct {
	kind   Kind
	sigmas []float64
}

// NewUnit returns the identity model over dim rows.
func NewUnit(dim int) *Model {
	sigmas := make([]float64, dim)
	for i := range sigmas {
		sigmas[i] = 1
	}
	return &Model{kind: Unit, sigmas: sigmas}
}

// NewDiagonal returns a Diagonal model. Every sigma must be positive and
// finite.
func NewDiagonal(sigmas []float64) (*Model, error) {
	for i, s := range sigmas {
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("NewDiagonal: sigma %d is %v, want positive finite", i, s)
		}
	}
	return &Model{kind: Diagonal, sigmas: append([]float64(nil), sigmas...)}, nil
}

// NewConstrained returns a Constrained model. Sigmas must be non-negative
// and finite; zeros mark hard constraint rows.
func NewConstrained(sigmas []float64) (*Model, error) {
	for i, s := range sigmas {
		if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("NewConstrained: sigma %d is %v, want non-negative finite", i, s)
		}
	}
	return &Model{kind: Constrained, sigmas: append([]float64(nil), sigmas...)}, nil
}

// MixedSigmas builds the tightest variant for the given sigmas:
// Constrained if any sigma is zero, Unit if all are one, Diagonal
// otherwise.
func MixedSigmas(sigmas []float64) (*Model, error) {
	anyZero, allOne := false, true
	for i, s := range sigmas {
		if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("MixedSigmas: sigma %d is %v, want non-negative finite", i, s)
		}
		if s == 0 {
			anyZero = true
		}
		if s != 1 {
			allOne = false
		}
	}
	switch {
	case anyZero:
		return NewConstrained(sigmas)
	case allOne:
		return NewUnit(len(sigmas)), nil
	default:
		return NewDiagonal(sigmas)
	}
}

// Kind returns the variant tag.
func (m *Model) Kind() Kind { return m.kind }

// Dim returns the number of rows the model covers.
func (m *Model) Dim() int { return len(m.sigmas) }

// IsConstrained reports whether the model carries hard constraint rows.
func (m *Model) IsConstrained() bool { return m.kind == Constrained }

// Sigmas returns a copy of the per-row sigmas.
func (m *Model) Sigmas() []float64 { return append([]float64(nil), m.sigmas...) }

// Sigma returns the sigma of row i.
func (m *Model) Sigma(i int) float64 { return m.sigmas[i] }

// invSigma is the whitening weight of row i. Constraint rows pass
// through unscaled.
func (m *Model) invSigma(i int) float64 {
	if m.sigmas[i] == 0 {
		return 1
	}
	return 1 / m.sigmas[i]
}

// Whiten returns v scaled elementwise by 1/sigma. The length of v must
// equal Dim.
func (m *Model) Whiten(v *mat.VecDense) (*mat.VecDense, error) {
	if v.Len() != m.Dim() {
		return nil, fmt.Errorf("Model.Whiten: vector length %d != dim %d", v.Len(), m.Dim())
	}
	if m.kind == Unit {
		return mat.VecDenseCopyOf(v), nil
	}
	w := mat.NewVecDense(v.Len(), nil)
	for i := 0; i < v.Len(); i++ {
		w.SetVec(i, v.AtVec(i)*m.invSigma(i))
	}
	return w, nil
}

// WhitenInPlace scales each row of a by 1/sigma. a must have Dim rows.
func (m *Model) WhitenInPlace(a *mat.Dense) error {
	r, c := a.Dims()
	if r != m.Dim() {
		return fmt.Errorf("Model.WhitenInPlace: matrix has %d rows, dim is %d", r, m.Dim())
	}
	if m.kind == Unit {
		return nil
	}
	for i := 0; i < r; i++ {
		w := m.invSigma(i)
		if w == 1 {
			continue
		}
		row := a.RawRowView(i)
		for j := 0; j < c; j++ {
			row[j] *= w
		}
	}
	return nil
}

// WhitenSystem whitens a and b together.
func (m *Model) WhitenSystem(a *mat.Dense, b *mat.VecDense) error {
	if err := m.WhitenInPlace(a); err != nil {
		return fmt.Errorf("Model.WhitenSystem: %s", err.Error())
	}
	if b.Len() != m.Dim() {
		return fmt.Errorf("Model.WhitenSystem: b has length %d, dim is %d", b.Len(), m.Dim())
	}
	for i := 0; i < b.Len(); i++ {
		b.SetVec(i, b.AtVec(i)*m.invSigma(i))
	}
	return nil
}

// Equals reports whether the models have the same kind and the same
// sigmas within tol.
func (m *Model) Equals(o *Model, tol float64) bool {
	if m.kind != o.kind || len(m.sigmas) != len(o.sigmas) {
		return false
	}
	for i := range m.sigmas {
		if math.Abs(m.sigmas[i]-o.sigmas[i]) > tol {
			return false
		}
	}
	return true
}

func (m *Model) String() string {
	return fmt.Sprintf("%s%v", m.kind, m.sigmas)
}
