package sharing

import "math"

func init() {
	Register("proportional", func() Policy { return Proportional{} })
}

// Proportional gives each variable, on every constraint it uses, a share of
// the capacity proportional to consumption x weight; its rate is the smallest
// of those shares, capped by its bound. Capacity left unused by variables
// limited elsewhere is not redistributed.
type Proportional struct{}

func (Proportional) Name() string { return "proportional" }

func (Proportional) Solve(variables []*Variable, constraints []*Constraint, precision float64) {
	for _, v := range variables {
		v.value = 0
		v.fixed = !v.IsEnabled()
	}
	for _, c := range constraints {
		c.remaining = c.capacity
		c.usage = openUsage(c)
	}

	for _, v := range variables {
		if v.fixed {
			continue
		}
		rate := math.Inf(1)
		for _, e := range v.elems {
			if e.consumption <= 0 {
				continue
			}
			c := e.cnst
			var share float64
			switch {
			case c.capacity <= c.capacity*precision || c.usage <= 0:
				share = 0
			case c.policy == FatPipe:
				share = c.capacity / e.consumption
			default:
				share = c.capacity * v.weight / c.usage
			}
			rate = math.Min(rate, share)
		}
		if math.IsInf(rate, 1) {
			rate = unconstrainedValue(v)
		} else if v.bound > 0 {
			rate = math.Min(rate, v.bound)
		}
		v.value = rate
	}

	for _, v := range variables {
		v.fixed = true
	}
}
