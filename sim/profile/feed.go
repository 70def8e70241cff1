// Package profile holds the future event set of resource state changes (host
// or link failures and repairs, availability changes) and feeds it to the
// kernel in date order.
package profile

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/google/btree"

	"github.com/simkern/simkern/sim"
)

type entry struct {
	seq uint64
	ev  sim.TraceEvent
}

// less orders entries by (date, insertion sequence), so events at the same
// date apply in the order they were added.
func less(a, b entry) bool {
	if a.ev.Date != b.ev.Date {
		return a.ev.Date < b.ev.Date
	}
	return a.seq < b.seq
}

// Feed is a sim.TraceFeed backed by a B-tree.
type Feed struct {
	tree    *btree.BTreeG[entry]
	nextSeq uint64
}

var _ sim.TraceFeed = (*Feed)(nil)

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{tree: btree.NewG[entry](8, less)}
}

// Len returns the number of pending events.
func (f *Feed) Len() int { return f.tree.Len() }

// Add schedules ev on resource at date.
func (f *Feed) Add(date float64, resource string, ev sim.StateEvent) error {
	if date < 0 || math.IsNaN(date) || math.IsInf(date, 0) {
		return fmt.Errorf("trace event on %q: invalid date %v", resource, date)
	}
	if ev.Kind == sim.StateSpeed && (ev.Value < 0 || math.IsNaN(ev.Value)) {
		return fmt.Errorf("trace event on %q: speed factor must be >= 0, got %v", resource, ev.Value)
	}
	f.nextSeq++
	f.tree.ReplaceOrInsert(entry{seq: f.nextSeq, ev: sim.TraceEvent{Date: date, Resource: resource, Event: ev}})
	return nil
}

// Point is one step of a profile: from Offset on, the resource takes Value.
type Point struct {
	Offset float64
	Value  float64
}

// AddProfile schedules a step profile on resource. For a state profile
// (kind StateOff or StateOn), a value > 0 turns the resource on and 0 turns
// it off; for a speed profile the value is the speed factor. With a period
// > 0 the profile repeats every period seconds, up to date until.
func (f *Feed) AddProfile(resource string, speed bool, points []Point, period, until float64) error {
	if len(points) == 0 {
		return nil
	}
	if period > 0 && points[len(points)-1].Offset >= period {
		return fmt.Errorf("profile on %q: last offset %v must be below the period %v",
			resource, points[len(points)-1].Offset, period)
	}
	if period > 0 && (until <= 0 || math.IsInf(until, 0)) {
		return fmt.Errorf("profile on %q: a periodic profile needs a finite end date", resource)
	}
	for base := 0.0; ; base += period {
		for i, p := range points {
			if i > 0 && p.Offset < points[i-1].Offset {
				return fmt.Errorf("profile on %q: offsets must be sorted", resource)
			}
			date := base + p.Offset
			if period > 0 && date > until {
				return nil
			}
			ev := sim.StateEvent{Kind: sim.StateSpeed, Value: p.Value}
			if !speed {
				ev = sim.StateEvent{Kind: sim.StateOn}
				if p.Value <= 0 {
					ev.Kind = sim.StateOff
				}
			}
			if err := f.Add(date, resource, ev); err != nil {
				return err
			}
		}
		if period <= 0 {
			return nil
		}
	}
}

// AddFailures schedules random failures of resource: up times are drawn
// from an exponential distribution of mean mtbf, down times from one of mean
// mttr. No failure starts at or after until; the repair of the last one is
// always scheduled.
func (f *Feed) AddFailures(resource string, mtbf, mttr, until float64, rng *rand.Rand) error {
	if mtbf <= 0 || mttr <= 0 || math.IsNaN(mtbf) || math.IsNaN(mttr) {
		return fmt.Errorf("failures on %q: mtbf and mttr must be > 0, got %v and %v", resource, mtbf, mttr)
	}
	if until <= 0 || math.IsInf(until, 0) || math.IsNaN(until) {
		return fmt.Errorf("failures on %q: a finite end date is required", resource)
	}
	for date := rng.ExpFloat64() * mtbf; date < until; date += rng.ExpFloat64() * mtbf {
		if err := f.Add(date, resource, sim.StateEvent{Kind: sim.StateOff}); err != nil {
			return err
		}
		date += rng.ExpFloat64() * mttr
		if err := f.Add(date, resource, sim.StateEvent{Kind: sim.StateOn}); err != nil {
			return err
		}
	}
	return nil
}

// NextDate returns the date of the earliest pending event.
func (f *Feed) NextDate() (float64, bool) {
	e, ok := f.tree.Min()
	if !ok {
		return 0, false
	}
	return e.ev.Date, true
}

// PopDue removes and returns, in order, the events dated at or before now.
func (f *Feed) PopDue(now float64) []sim.TraceEvent {
	var due []sim.TraceEvent
	for {
		e, ok := f.tree.Min()
		if !ok || e.ev.Date > now {
			return due
		}
		f.tree.DeleteMin()
		due = append(due, e.ev)
	}
}
