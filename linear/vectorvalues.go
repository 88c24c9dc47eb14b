// Copyright (c) 2026 dllu

package linear

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// VectorValues maps variable indices to dense vectors. It is the value
// type factors are evaluated at and conditionals solve into.
type VectorValues struct {
	values map[int]*mat.VecDense
}

// NewVectorValues returns an empty assignment.
func NewVectorValues() *VectorValues {
	return &VectorValues{values: make(map[int]*mat.VecDense)}
}

// Set stores v as the value of variable j. The vector is not copied.
func (x *VectorValues) Set(j int, v *mat.VecDense) { x.values[j] = v }

// At returns the value of variable j, or nil when absent. The returned
// vector is shared, not copied.
func (x *VectorValues) At(j int) *mat.VecDense { return x.values[j] }

// Has reports whether variable j is assigned.
func (x *VectorValues) Has(j int) bool { _, ok := x.values[j]; return ok }

// Len returns the number of assigned variables.
func (x *VectorValues) Len() int { return len(x.values) }

// Keys returns the assigned variable indices in ascending order.
func (x *VectorValues) Keys() []int {
	keys := make([]int, 0, len(x.values))
	for k := range x.values {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Clone returns a deep copy.
func (x *VectorValues) Clone() *VectorValues {
	c := NewVectorValues()
	for k, v := range x.values {
		c.values[k] = mat.VecDenseCopyOf(v)
	}
	return c
}

// ZeroLike returns an assignment with the structure of x and all
// entries zero.
func ZeroLike(x *VectorValues) *VectorValues {
	z := NewVectorValues()
	for k, v := range x.values {
		z.values[k] = mat.NewVecDense(v.Len(), nil)
	}
	return z
}

// MakeZero zeroes every assigned vector in place.
func (x *VectorValues) MakeZero() {
	for _, v := range x.values {
		v.Zero()
	}
}

// SameStructure reports whether x and y assign the same variables with
// the same dimensions.
func (x *VectorValues) SameStructure(y *VectorValues) bool {
	if len(x.values) != len(y.values) {
		return false
	}
	for k, v := range x.values {
		w, ok := y.values[k]
		if !ok || w.Len() != v.Len() {
			return false
		}
	}
	return true
}

// Axpy adds alpha times y into x. The structures must match.
func (x *VectorValues) Axpy(alpha float64, y *VectorValues) error {
	if !x.SameStructure(y) {
		return fmt.Errorf("VectorValues.Axpy: structures differ")
	}
	for k, v := range x.values {
		v.AddScaledVec(v, alpha, y.values[k])
	}
	return nil
}
