package sharing

import (
	"fmt"
	"sort"
)

// Policy decides how contended capacity is split. Solve assigns Value to
// every variable; disabled variables (weight 0) always get 0.
type Policy interface {
	Name() string
	Solve(variables []*Variable, constraints []*Constraint, precision float64)
}

// policyFactories maps policy names to constructors. Implementations register
// themselves from init().
var policyFactories = map[string]func() Policy{}

// Register makes a policy available to NewPolicy. Registering the same name
// twice panics.
func Register(name string, factory func() Policy) {
	if _, exists := policyFactories[name]; exists {
		panic(fmt.Sprintf("sharing: policy %q registered twice", name))
	}
	policyFactories[name] = factory
}

// NewPolicy returns a fresh policy by name.
func NewPolicy(name string) (Policy, error) {
	factory, ok := policyFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown sharing policy %q (valid: %v)", name, Names())
	}
	return factory(), nil
}

// IsValidPolicy returns true if name is a registered sharing policy.
func IsValidPolicy(name string) bool {
	_, ok := policyFactories[name]
	return ok
}

// Names returns the registered policy names, sorted.
func Names() []string {
	names := make([]string, 0, len(policyFactories))
	for name := range policyFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// unconstrainedValue is the rate of an enabled variable that no constraint
// limits: its bound if it has one, 0 otherwise.
func unconstrainedValue(v *Variable) float64 {
	if v.bound > 0 {
		return v.bound
	}
	return 0
}
