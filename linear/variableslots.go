// Copyright (c) 2026 dllu

package linear

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Absent marks a factor that does not involve a variable. It sorts
// after every real slot position.
const Absent = math.MaxInt

// VariableSlots maps every variable appearing in a list of factors to
// the within-factor slot it occupies in each factor, or Absent. The
// mapping is ordered by variable index and immutable once built.
type VariableSlots struct {
	vars  []int
	slots map[int][]int
}

// NewVariableSlots builds the mapping in one pass over factors.
func NewVariableSlots(factors []*JacobianFactor) *VariableSlots {
	vs := &VariableSlots{slots: make(map[int][]int)}
	for i, f := range factors {
		for pos, key := range f.keys {
			entry, ok := vs.slots[key]
			if !ok {
				entry = make([]int, len(factors))
				for k := range entry {
					entry[k] = Absent
				}
				vs.slots[key] = entry
				vs.vars = append(vs.vars, key)
			}
			entry[i] = pos
		}
	}
	sort.Ints(vs.vars)
	return vs
}

// Len returns the number of involved variables.
func (vs *VariableSlots) Len() int { return len(vs.vars) }

// Vars returns the involved variable indices in ascending order. The
// slice is shared; callers must not modify it.
func (vs *VariableSlots) Vars() []int { return vs.vars }

// Slots returns the per-factor slot vector of the given variable, or
// nil when the variable is not involved. The slice is shared.
func (vs *VariableSlots) Slots(variable int) []int { return vs.slots[variable] }

func (vs *VariableSlots) String() string {
	var sb strings.Builder
	sb.WriteString("VariableSlots{")
	for i, v := range vs.vars {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d:[", v)
		for k, s := range vs.slots[v] {
			if k > 0 {
				sb.WriteString(" ")
			}
			if s == Absent {
				sb.WriteString("_")
			} else {
				fmt.Fprintf(&sb, "%d", s)
			}
		}
		sb.WriteString("]")
	}
	sb.WriteString("}")
	return sb.String()
}
