// Package sharing computes how the capacity of shared resources is split among
// the actions contending for them.
//
// A System holds constraints (one per resource capacity) and variables (one
// per action). A variable uses each of its constraints with some consumption
// weight; the solver assigns every variable a rate such that no constraint is
// overloaded. Which split is chosen is up to the Policy: max-min fairness
// (progressive filling) or plain proportional sharing.
//
// Variables carry a weight: a larger weight gets a proportionally larger share
// of a contended constraint. A weight of zero disables the variable (rate 0).
// An optional bound caps the rate of a variable.
package sharing

import (
	"fmt"
	"math"
)

// ConstraintPolicy tells how a constraint is shared.
type ConstraintPolicy int

const (
	// Shared constraints require sum(consumption * rate) <= capacity.
	Shared ConstraintPolicy = iota
	// FatPipe constraints only require max(consumption * rate) <= capacity.
	FatPipe
)

func (p ConstraintPolicy) String() string {
	if p == FatPipe {
		return "fatpipe"
	}
	return "shared"
}

type element struct {
	cnst        *Constraint
	variable    *Variable
	consumption float64
}

// Constraint is the capacity of one resource.
type Constraint struct {
	name     string
	capacity float64
	policy   ConstraintPolicy
	elems    []*element

	// solver scratch
	remaining float64
	usage     float64
}

func (c *Constraint) Name() string             { return c.name }
func (c *Constraint) Capacity() float64        { return c.capacity }
func (c *Constraint) Policy() ConstraintPolicy { return c.policy }

// IsUsed reports whether some enabled variable consumes this constraint.
func (c *Constraint) IsUsed() bool {
	for _, e := range c.elems {
		if e.consumption > 0 && e.variable.weight > 0 {
			return true
		}
	}
	return false
}

// Load returns the capacity currently consumed at the last solve.
func (c *Constraint) Load() float64 {
	load := 0.0
	for _, e := range c.elems {
		v := e.consumption * e.variable.value
		if c.policy == FatPipe {
			load = math.Max(load, v)
		} else {
			load += v
		}
	}
	return load
}

// Variables returns the variables expanded on c, in expansion order.
func (c *Constraint) Variables() []*Variable {
	out := make([]*Variable, 0, len(c.elems))
	for _, e := range c.elems {
		out = append(out, e.variable)
	}
	return out
}

// Variable is the rate of one action.
type Variable struct {
	owner  any
	weight float64
	bound  float64
	value  float64
	elems  []*element

	fixed bool // solver scratch
}

func (v *Variable) Owner() any        { return v.owner }
func (v *Variable) Weight() float64   { return v.weight }
func (v *Variable) Bound() float64    { return v.bound }
func (v *Variable) Value() float64    { return v.value }
func (v *Variable) IsEnabled() bool   { return v.weight > 0 }
func (v *Variable) Constrained() bool { return len(v.elems) > 0 }

// Constraints returns the constraints v is expanded on.
func (v *Variable) Constraints() []*Constraint {
	out := make([]*Constraint, 0, len(v.elems))
	for _, e := range v.elems {
		out = append(out, e.cnst)
	}
	return out
}

// System is a set of constraints and variables solved together.
type System struct {
	policy    Policy
	precision float64

	constraints []*Constraint
	variables   []*Variable
	modified    bool
}

// NewSystem creates an empty system solved with policy.
func NewSystem(policy Policy, precision float64) *System {
	if policy == nil {
		panic("sharing: nil policy")
	}
	if precision <= 0 {
		panic(fmt.Sprintf("sharing: precision must be > 0, got %v", precision))
	}
	return &System{policy: policy, precision: precision}
}

func (s *System) Policy() Policy     { return s.policy }
func (s *System) Precision() float64 { return s.precision }
func (s *System) Modified() bool     { return s.modified }

// NewConstraint adds a constraint of the given capacity.
func (s *System) NewConstraint(name string, capacity float64, policy ConstraintPolicy) *Constraint {
	c := &Constraint{name: name, capacity: capacity, policy: policy}
	s.constraints = append(s.constraints, c)
	s.modified = true
	return c
}

// NewVariable adds a variable. owner is an opaque back-reference (typically
// the action the variable stands for).
func (s *System) NewVariable(owner any, weight, bound float64) *Variable {
	v := &Variable{owner: owner, weight: weight, bound: bound}
	s.variables = append(s.variables, v)
	s.modified = true
	return v
}

// Expand makes v consume c with the given weight. Expanding twice on the same
// constraint adds the consumptions.
func (s *System) Expand(c *Constraint, v *Variable, consumption float64) {
	for _, e := range v.elems {
		if e.cnst == c {
			e.consumption += consumption
			s.modified = true
			return
		}
	}
	e := &element{cnst: c, variable: v, consumption: consumption}
	v.elems = append(v.elems, e)
	c.elems = append(c.elems, e)
	s.modified = true
}

// FreeVariable removes v from the system.
func (s *System) FreeVariable(v *Variable) {
	for _, e := range v.elems {
		c := e.cnst
		for i, ce := range c.elems {
			if ce == e {
				c.elems = append(c.elems[:i], c.elems[i+1:]...)
				break
			}
		}
	}
	v.elems = nil
	for i, sv := range s.variables {
		if sv == v {
			s.variables = append(s.variables[:i], s.variables[i+1:]...)
			break
		}
	}
	v.value = 0
	s.modified = true
}

// UpdateWeight changes the weight of v. Zero disables it.
func (s *System) UpdateWeight(v *Variable, weight float64) {
	if v.weight == weight {
		return
	}
	v.weight = weight
	s.modified = true
}

// UpdateBound changes the rate cap of v. Zero or less removes it.
func (s *System) UpdateBound(v *Variable, bound float64) {
	if v.bound == bound {
		return
	}
	v.bound = bound
	s.modified = true
}

// UpdateCapacity changes the capacity of c.
func (s *System) UpdateCapacity(c *Constraint, capacity float64) {
	if c.capacity == capacity {
		return
	}
	c.capacity = capacity
	s.modified = true
}

// Solve recomputes every variable value if anything changed since the last
// solve.
func (s *System) Solve() {
	if !s.modified {
		return
	}
	s.policy.Solve(s.variables, s.constraints, s.precision)
	s.modified = false
}

// NumVariables returns the number of variables in the system.
func (s *System) NumVariables() int {
	return len(s.variables)
}

// closeTo compares a and b with a relative tolerance.
func closeTo(a, b, precision float64) bool {
	return math.Abs(a-b) <= precision*math.Max(math.Abs(a), math.Abs(b))
}
