// Copyright (c) 2026 dllu

package linear

import "fmt"

// Permutation is a bijection on the variable indices [0, n).
type Permutation []int

// Identity returns the identity permutation on n variables.
func Identity(n int) Permutation {
	p := make(Permutation, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// At returns the image of variable i.
func (p Permutation) At(i int) int { return p[i] }

// Inverse returns the inverse permutation.
func (p Permutation) Inverse() (Permutation, error) {
	inv := make(Permutation, len(p))
	seen := make([]bool, len(p))
	for i, v := range p {
		if v < 0 || v >= len(p) || seen[v] {
			return nil, fmt.Errorf("Permutation.Inverse: not a bijection at %d -> %d", i, v)
		}
		seen[v] = true
		inv[v] = i
	}
	return inv, nil
}
