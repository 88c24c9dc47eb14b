// Copyright (c) 2026 dllu

package linear

import (
	"fmt"
	"sort"

	"k8s.io/klog/v2"

	"github.com/dllu/gtsam/blockmatrix"
	"github.com/dllu/gtsam/noisemodel"
)

// countDims reconciles each variable's column dimension across the
// factors involving it and totals the joint system size.
func countDims(factors []*JacobianFactor, slots *VariableSlots) (varDims []int, m, n int, err error) {
	varDims = make([]int, slots.Len())
	for jv, v := range slots.Vars() {
		varDims[jv] = -1
		for fi, pos := range slots.Slots(v) {
			if pos == Absent {
				continue
			}
			d := factors[fi].GetDim(pos)
			if varDims[jv] == -1 {
				varDims[jv] = d
				n += d
			} else if varDims[jv] != d {
				return nil, 0, 0, fmt.Errorf(
					"Combine: variable %d has dimension %d in factor %d but %d elsewhere: %w",
					v, d, fi, varDims[jv], ErrInvalidInput)
			}
		}
	}
	for _, f := range factors {
		m += f.Rows()
	}
	return varDims, m, n, nil
}

// rowSource locates one joint row in its source factor, tagged with the
// variable index its staircase starts at so rows can be sorted into a
// joint staircase.
type rowSource struct {
	firstNonzeroVar int
	factorI         int
	factorRow       int
}

// Combine merges the factors into a single joint factor over the union
// of their variables, rows sorted by first involved variable. Absent
// and structurally zero segments are left zero. The result is
// Constrained if any input model is.
func Combine(factors []*JacobianFactor, slots *VariableSlots) (*JacobianFactor, error) {
	varDims, m, n, err := countDims(factors, slots)
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("Combine: %d factors into %dx%d over %d variables", len(factors), m, n+1, slots.Len())

	rowSources := make([]rowSource, 0, m)
	anyConstrained := false
	for fi, f := range factors {
		for r := 0; r < f.Rows(); r++ {
			s := f.firstNonzeroBlocks[r]
			var fnz int
			switch {
			case s < len(f.keys):
				fnz = f.keys[s]
			case len(f.keys) > 0:
				fnz = f.keys[len(f.keys)-1] + 1
			default:
				// A rhs-only row has no variable to start at; it
				// sorts after every real one.
				fnz = Absent
			}
			rowSources = append(rowSources, rowSource{fnz, fi, r})
		}
		if f.model.IsConstrained() {
			anyConstrained = true
		}
	}
	sort.SliceStable(rowSources, func(i, j int) bool {
		return rowSources[i].firstNonzeroVar < rowSources[j].firstNonzeroVar
	})

	keys := append([]int(nil), slots.Vars()...)
	dims := make([]int, len(varDims)+1)
	copy(dims, varDims)
	dims[len(varDims)] = 1
	ab, err := blockmatrix.New(dims, m)
	if err != nil {
		return nil, fmt.Errorf("Combine: %s", err.Error())
	}
	combined := &JacobianFactor{
		keys:               keys,
		ab:                 ab,
		firstNonzeroBlocks: make([]int, m),
	}

	for slot, v := range keys {
		dst := ab.Block(slot)
		if dst == nil {
			continue
		}
		sv := slots.Slots(v)
		for row, rs := range rowSources {
			pos := sv[rs.factorI]
			if pos == Absent {
				continue
			}
			src := factors[rs.factorI]
			if src.firstNonzeroBlocks[rs.factorRow] > pos {
				// The source staircase marks this segment as a
				// structural zero; the fresh allocation already is.
				continue
			}
			klog.V(5).Infof("Combine: row %d <- factor %d row %d slot %d", row, rs.factorI, rs.factorRow, pos)
			copy(dst.RawRowView(row), src.ab.Block(pos).RawRowView(rs.factorRow))
		}
	}

	sigmas := make([]float64, m)
	cursor := 0
	for row, rs := range rowSources {
		src := factors[rs.factorI]
		bval := src.ab.Mat().At(rs.factorRow, src.ab.Offset(len(src.keys)))
		ab.Mat().Set(row, ab.Offset(len(keys)), bval)
		sigmas[row] = src.model.Sigma(rs.factorRow)
		for cursor < len(keys) && rs.firstNonzeroVar > keys[cursor] {
			cursor++
		}
		combined.firstNonzeroBlocks[row] = cursor
	}

	if anyConstrained {
		combined.model, err = noisemodel.NewConstrained(sigmas)
	} else {
		combined.model, err = noisemodel.NewDiagonal(sigmas)
	}
	if err != nil {
		return nil, fmt.Errorf("Combine: %s", err.Error())
	}
	if err := combined.validate(); err != nil {
		return nil, fmt.Errorf("Combine: %s", err.Error())
	}
	return combined, nil
}

// CombineAndEliminate merges the factors and eliminates the first
// nrFrontals variables of the joint factor. It returns the extracted
// conditionals and the joint factor, which afterwards carries the
// residual on the remaining variables.
func CombineAndEliminate(factors []*JacobianFactor, nrFrontals int) (*GaussianBayesNet, *JacobianFactor, error) {
	joint, err := Combine(factors, NewVariableSlots(factors))
	if err != nil {
		return nil, nil, err
	}
	bn, err := joint.Eliminate(nrFrontals)
	if err != nil {
		return nil, nil, err
	}
	return bn, joint, nil
}
