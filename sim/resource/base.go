// Package resource implements the concrete resource models of the kernel:
// CPU (hosts), network (links) and storage (disks). All of them share the
// same mechanics, held by base: a sharing.System solved before each step,
// one variable per running action, and an ActionTable the kernel extracts
// terminated actions from.
package resource

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/simkern/simkern/sim"
	"github.com/simkern/simkern/sim/sharing"
)

// base is the mechanics shared by every model.
type base struct {
	name            string
	amountPrecision float64

	system *sharing.System
	table  *sim.ActionTable

	vars map[*sim.Action]*sharing.Variable
	uses map[*sim.Action][]string // resource names each action depends on

	resources   []sim.Resource
	constraints map[string][]*sharing.Constraint

	lastDate float64
}

func newBase(name string, cfg sim.Config) (*base, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s model: %w", name, err)
	}
	policy, err := sharing.NewPolicy(cfg.SharingPolicy)
	if err != nil {
		return nil, fmt.Errorf("%s model: %w", name, err)
	}
	return &base{
		name:            name,
		amountPrecision: cfg.AmountPrecision,
		system:          sharing.NewSystem(policy, cfg.Precision),
		table:           sim.NewActionTable(),
		vars:            make(map[*sim.Action]*sharing.Variable),
		uses:            make(map[*sim.Action][]string),
		constraints:     make(map[string][]*sharing.Constraint),
		lastDate:        math.Inf(-1),
	}, nil
}

func (b *base) Name() string { return b.name }

func (b *base) Resources() []sim.Resource { return b.resources }

// Table exposes the action bookkeeping, mostly for tests.
func (b *base) Table() *sim.ActionTable { return b.table }

// System exposes the sharing system, mostly for tests.
func (b *base) System() *sharing.System { return b.system }

func (b *base) addResource(r sim.Resource, cnsts ...*sharing.Constraint) {
	b.resources = append(b.resources, r)
	b.constraints[r.Name()] = cnsts
}

// IsUsed reports whether some running, non-suspended action consumes r.
func (b *base) IsUsed(r sim.Resource) bool {
	b.sync()
	for _, c := range b.constraints[r.Name()] {
		if c.IsUsed() {
			return true
		}
	}
	return false
}

// accept registers and starts a new action. v may be nil for actions that
// share nothing (sleeps, empty routes).
func (b *base) accept(a *sim.Action, now float64, v *sharing.Variable, uses ...string) *sim.Action {
	b.table.Add(a)
	if v != nil {
		b.vars[a] = v
	}
	b.uses[a] = uses
	b.table.Start(a, now)
	logrus.Debugf("[t=%f] %s model accepted %s", now, b.name, a)
	return a
}

// fail accepts an action that fails on the spot (resource already off).
func (b *base) fail(a *sim.Action, now float64, uses ...string) *sim.Action {
	b.table.Add(a)
	b.uses[a] = uses
	b.table.Finish(a, sim.ActionFailed, now)
	return a
}

// sync releases the variables of terminated actions and disables those of
// suspended actions or actions still in their latency phase.
func (b *base) sync() {
	for _, a := range b.table.Terminated() {
		b.forget(a)
	}
	for _, a := range b.table.Running() {
		v, ok := b.vars[a]
		if !ok {
			continue
		}
		if a.IsSuspended() || a.Latency() > 0 {
			b.system.UpdateWeight(v, 0)
		} else {
			b.system.UpdateWeight(v, a.Priority())
		}
	}
}

func (b *base) forget(a *sim.Action) {
	if v, ok := b.vars[a]; ok {
		b.system.FreeVariable(v)
		delete(b.vars, a)
	}
	delete(b.uses, a)
}

func (b *base) solve() {
	b.sync()
	b.system.Solve()
}

// rate returns the current share of a, 0 when it has no variable.
func (b *base) rate(a *sim.Action) float64 {
	if v, ok := b.vars[a]; ok {
		return v.Value()
	}
	return 0
}

// NextOccurringEvent returns the smallest delay until a running action
// finishes its latency phase, its amount or its max duration.
func (b *base) NextOccurringEvent(now float64) (float64, bool) {
	b.solve()
	next, found := math.Inf(1), false
	for _, a := range b.table.Running() {
		if a.IsSuspended() {
			continue
		}
		candidate := math.Inf(1)
		if a.Latency() > 0 {
			candidate = a.Latency()
		} else if r := b.rate(a); r > 0 {
			candidate = a.Remaining() / r
		}
		if d := a.MaxDuration(); d >= 0 && d < candidate {
			candidate = d
		}
		if candidate < next {
			next, found = candidate, true
		}
	}
	return next, found
}

// Advance consumes dt seconds of every running action. Advancing twice to the
// same date is a no-op. An action left with less work than the clock can
// resolve at now is finished along with the others.
func (b *base) Advance(now, dt float64) {
	if now <= b.lastDate {
		return
	}
	b.lastDate = now
	if dt <= 0 {
		return
	}
	b.solve()
	for _, a := range b.table.Running() {
		if a.IsSuspended() {
			continue
		}
		rate := b.rate(a)
		if a.Latency() > 0 {
			if a.ElapseLatency(dt, b.amountPrecision) && a.Consume(0, b.amountPrecision) {
				b.table.Finish(a, sim.ActionDone, now)
				continue
			}
		} else if a.Consume(rate*dt, b.amountPrecision) || b.consumeUnresolvable(now, a, rate) {
			b.table.Finish(a, sim.ActionDone, now)
			continue
		}
		if a.ElapseDuration(dt, b.amountPrecision) || (a.MaxDuration() > 0 && negligible(now, a.MaxDuration())) {
			b.table.Finish(a, sim.ActionDone, now)
		}
	}
}

// consumeUnresolvable consumes what is left of a when finishing it at its
// rate would not move the clock past now.
func (b *base) consumeUnresolvable(now float64, a *sim.Action, rate float64) bool {
	return rate > 0 && negligible(now, a.Remaining()/rate) && a.Consume(a.Remaining(), b.amountPrecision)
}

// negligible reports whether waiting delay after now would not move a float64
// clock.
func negligible(now, delay float64) bool {
	return now+delay <= now
}

// ExtractTerminated hands the terminated actions to the kernel.
func (b *base) ExtractTerminated() []*sim.Action {
	for _, a := range b.table.Terminated() {
		b.forget(a)
	}
	return b.table.ExtractTerminated()
}

// failUsers fails every running action depending on the named resource.
func (b *base) failUsers(name string, now float64) {
	for _, a := range b.table.Running() {
		for _, u := range b.uses[a] {
			if u == name {
				logrus.Infof("[t=%f] %s failed: resource %s went off", now, a, name)
				b.table.Finish(a, sim.ActionFailed, now)
				break
			}
		}
	}
}

// usersOf returns the running actions depending on the named resource.
func (b *base) usersOf(name string) []*sim.Action {
	var out []*sim.Action
	for _, a := range b.table.Running() {
		for _, u := range b.uses[a] {
			if u == name {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

func checkPositive(what, name string, v float64) error {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s %q: must be a finite value > 0, got %v", what, name, v)
	}
	return nil
}
