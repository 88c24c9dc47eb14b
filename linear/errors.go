// Copyright (c) 2026 dllu

package linear

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks construction input the engine cannot accept:
// NaN entries, mismatched lengths, or disagreeing variable dimensions.
var ErrInvalidInput = errors.New("linear: invalid input")

// ErrPrecondition marks a call that violates a method precondition,
// such as eliminating more frontals than there are variables.
var ErrPrecondition = errors.New("linear: precondition violated")

// SingularError reports rank deficiency discovered in a frontal
// variable during elimination. The factor that produced it is
// partially mutated and must be discarded.
type SingularError struct {
	Variable int
}

func (e *SingularError) Error() string {
	return fmt.Sprintf("linear: factor is singular in variable %d, discovered while eliminating it", e.Variable)
}
