package sharing

func init() {
	Register("maxmin", func() Policy { return MaxMin{} })
}

// MaxMin computes a weighted max-min fair allocation by progressive filling:
// all unfixed variables grow together (rate = level x weight) until some
// constraint saturates or some variable hits its bound; those variables are
// fixed and the remaining capacity is shared among the others.
type MaxMin struct{}

func (MaxMin) Name() string { return "maxmin" }

func (MaxMin) Solve(variables []*Variable, constraints []*Constraint, precision float64) {
	for _, v := range variables {
		v.value = 0
		v.fixed = !v.IsEnabled()
	}

	active := make([]*Constraint, 0, len(constraints))
	for _, c := range constraints {
		c.remaining = c.capacity
		c.usage = openUsage(c)
		if isSaturable(c, precision) {
			active = append(active, c)
		}
	}

	for len(active) > 0 {
		level := -1.0
		for _, c := range active {
			if r := c.remaining / c.usage; level < 0 || r < level {
				level = r
			}
		}

		saturated := make(map[*Constraint]bool)
		for _, c := range active {
			if closeTo(c.remaining/c.usage, level, precision) {
				saturated[c] = true
			}
		}
		var candidates []*Variable
		for _, v := range variables {
			if v.fixed {
				continue
			}
			for _, e := range v.elems {
				if e.consumption > 0 && saturated[e.cnst] {
					candidates = append(candidates, v)
					break
				}
			}
		}

		// A variable whose bound is reached below the level is fixed first,
		// alone with those sharing the same bound level.
		minBound := -1.0
		for _, v := range candidates {
			if v.bound > 0 {
				if b := v.bound / v.weight; b < level && (minBound < 0 || b < minBound) {
					minBound = b
				}
			}
		}
		var fix []*Variable
		for _, v := range candidates {
			if minBound >= 0 {
				if v.bound > 0 && closeTo(v.bound/v.weight, minBound, precision) {
					v.value = v.bound
					fix = append(fix, v)
				}
				continue
			}
			v.value = level * v.weight
			fix = append(fix, v)
		}
		if len(fix) == 0 {
			break
		}

		for _, v := range fix {
			v.fixed = true
		}
		for _, v := range fix {
			for _, e := range v.elems {
				if e.cnst.policy == Shared {
					e.cnst.remaining -= e.consumption * v.value
				}
			}
		}

		next := active[:0]
		for _, c := range active {
			c.usage = openUsage(c)
			if isSaturable(c, precision) {
				next = append(next, c)
			}
		}
		active = next
	}

	for _, v := range variables {
		if !v.fixed {
			v.fixed = true
			if !hasConsumption(v) {
				v.value = unconstrainedValue(v)
			}
		}
	}
}

// openUsage sums (or maxes, for fat pipes) consumption x weight over the
// variables of c not fixed yet.
func openUsage(c *Constraint) float64 {
	usage := 0.0
	for _, e := range c.elems {
		if e.variable.fixed || e.consumption <= 0 {
			continue
		}
		u := e.consumption * e.variable.weight
		if c.policy == FatPipe {
			if u > usage {
				usage = u
			}
		} else {
			usage += u
		}
	}
	return usage
}

func isSaturable(c *Constraint, precision float64) bool {
	return c.usage > 0 && c.remaining > c.capacity*precision
}

func hasConsumption(v *Variable) bool {
	for _, e := range v.elems {
		if e.consumption > 0 {
			return true
		}
	}
	return false
}
