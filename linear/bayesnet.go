// Copyright (c) 2026 dllu

package linear

import (
	"fmt"
	"strings"
)

// GaussianBayesNet is an ordered list of conditionals produced by
// sequential elimination: the first conditional was eliminated first
// and is solved last.
type GaussianBayesNet struct {
	conditionals []*GaussianConditional
}

// NewGaussianBayesNet returns an empty net.
func NewGaussianBayesNet() *GaussianBayesNet { return &GaussianBayesNet{} }

// Push appends a conditional.
func (bn *GaussianBayesNet) Push(c *GaussianConditional) {
	bn.conditionals = append(bn.conditionals, c)
}

// Len returns the number of conditionals.
func (bn *GaussianBayesNet) Len() int { return len(bn.conditionals) }

// At returns conditional i in elimination order.
func (bn *GaussianBayesNet) At(i int) *GaussianConditional { return bn.conditionals[i] }

// Conditionals returns the conditionals in elimination order. The
// slice is shared; callers must not modify it.
func (bn *GaussianBayesNet) Conditionals() []*GaussianConditional { return bn.conditionals }

// Error returns the sum of the conditionals' errors at x.
func (bn *GaussianBayesNet) Error(x *VectorValues) (float64, error) {
	total := 0.0
	for i, c := range bn.conditionals {
		e, err := c.Error(x)
		if err != nil {
			return 0, fmt.Errorf("GaussianBayesNet.Error: conditional %d: %w", i, err)
		}
		total += e
	}
	return total, nil
}

// OptimizeInPlace back-substitutes in reverse elimination order,
// writing each conditional's frontal values into x. Parents of the
// last conditional must already be assigned (none, for a complete
// net).
func (bn *GaussianBayesNet) OptimizeInPlace(x *VectorValues) error {
	for i := len(bn.conditionals) - 1; i >= 0; i-- {
		if err := bn.conditionals[i].SolveInPlace(x); err != nil {
			return fmt.Errorf("GaussianBayesNet.OptimizeInPlace: conditional %d: %w", i, err)
		}
	}
	return nil
}

// Optimize solves a complete net into a fresh assignment.
func (bn *GaussianBayesNet) Optimize() (*VectorValues, error) {
	x := NewVectorValues()
	if err := bn.OptimizeInPlace(x); err != nil {
		return nil, err
	}
	return x, nil
}

func (bn *GaussianBayesNet) String() string {
	var sb strings.Builder
	sb.WriteString("GaussianBayesNet{\n")
	for _, c := range bn.conditionals {
		fmt.Fprintf(&sb, "  %s\n", c)
	}
	sb.WriteString("}")
	return sb.String()
}
