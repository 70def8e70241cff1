// Defines the Action struct that models one ongoing piece of simulated work
// (an execution, a transfer, an I/O) owned by a resource model.

package sim

import (
	"container/list"
	"fmt"
	"math"
)

// ActionID identifies an action inside one kernel. IDs are assigned in
// acceptance order, so they are deterministic.
type ActionID uint64

// ActionState represents the lifecycle state of an action.
type ActionState int

const (
	ActionNotScheduled ActionState = iota
	ActionReady
	ActionRunning
	ActionDone
	ActionFailed
	ActionCanceled
)

func (s ActionState) String() string {
	switch s {
	case ActionNotScheduled:
		return "not-scheduled"
	case ActionReady:
		return "ready"
	case ActionRunning:
		return "running"
	case ActionDone:
		return "done"
	case ActionFailed:
		return "failed"
	case ActionCanceled:
		return "canceled"
	}
	return fmt.Sprintf("ActionState(%d)", int(s))
}

// IsTerminal reports whether no transition can leave s.
func (s ActionState) IsTerminal() bool {
	return s == ActionDone || s == ActionFailed || s == ActionCanceled
}

// Outcome maps a terminal state to the answer given to waiting requests.
func (s ActionState) Outcome() Outcome {
	switch s {
	case ActionDone:
		return OutcomeSuccess
	case ActionFailed:
		return OutcomeResourceError
	case ActionCanceled:
		return OutcomeCanceled
	}
	panic(fmt.Sprintf("Action: state %s is not terminal", s))
}

// ActionKind names what an action simulates.
type ActionKind string

const (
	KindExec    ActionKind = "exec"
	KindSleep   ActionKind = "sleep"
	KindComm    ActionKind = "comm"
	KindIORead  ActionKind = "io-read"
	KindIOWrite ActionKind = "io-write"
)

// Action models a unit of simulated work.
// - remaining amount decreases while running and never goes below 0
// - reaching 0 moves the action to done in the same step
// - terminal states (done, failed, canceled) are never left
type Action struct {
	id       ActionID
	kind     ActionKind
	resource string // primary resource, for reporting

	cost        float64
	remaining   float64
	priority    float64
	bound       float64 // <= 0 means unbounded
	maxDuration float64 // < 0 means none
	latency     float64 // remaining latency phase, consumed before the amount

	state      ActionState
	suspended  bool
	startTime  float64
	finishTime float64

	waiters []*Request
	refs    int

	table *ActionTable
	elem  *list.Element
}

// NewAction creates a not-scheduled action of the given cost.
// Costs must be finite or +Inf, and never negative.
func NewAction(kind ActionKind, cost float64) *Action {
	if cost < 0 || math.IsNaN(cost) {
		panic(fmt.Sprintf("Action: cost must be >= 0, got %v", cost))
	}
	return &Action{
		kind:        kind,
		cost:        cost,
		remaining:   cost,
		priority:    1,
		maxDuration: -1,
		finishTime:  -1,
		startTime:   -1,
	}
}

func (a *Action) ID() ActionID         { return a.id }
func (a *Action) Kind() ActionKind     { return a.kind }
func (a *Action) Resource() string     { return a.resource }
func (a *Action) Cost() float64        { return a.cost }
func (a *Action) Remaining() float64   { return a.remaining }
func (a *Action) Priority() float64    { return a.priority }
func (a *Action) Bound() float64       { return a.bound }
func (a *Action) MaxDuration() float64 { return a.maxDuration }
func (a *Action) Latency() float64     { return a.latency }
func (a *Action) State() ActionState   { return a.state }
func (a *Action) IsSuspended() bool    { return a.suspended }
func (a *Action) StartTime() float64   { return a.startTime }
func (a *Action) FinishTime() float64  { return a.finishTime }
func (a *Action) Waiters() []*Request  { return a.waiters }
func (a *Action) RefCount() int        { return a.refs }

func (a *Action) SetResource(name string) { a.resource = name }

// SetPriority sets the sharing weight. A larger priority gets a larger share.
func (a *Action) SetPriority(p float64) {
	if p <= 0 || math.IsNaN(p) {
		panic(fmt.Sprintf("Action: priority must be > 0, got %v", p))
	}
	a.priority = p
}

// SetBound caps the rate of the action. Zero or less removes the cap.
func (a *Action) SetBound(b float64) {
	a.bound = b
}

// SetMaxDuration makes the action finish after d seconds of running time,
// whatever its remaining amount. Negative values remove the limit.
func (a *Action) SetMaxDuration(d float64) {
	a.maxDuration = d
}

// SetLatency sets the latency phase elapsed before the amount starts to decrease.
func (a *Action) SetLatency(l float64) {
	if l < 0 {
		l = 0
	}
	a.latency = l
}

// IsRunning reports whether the action progresses this step.
func (a *Action) IsRunning() bool {
	return a.state == ActionRunning && !a.suspended
}

// Consume decreases the remaining amount and reports whether it reached 0.
// Leftovers within precision of the consumed amount (or of 1) snap to exactly 0.
func (a *Action) Consume(amount, precision float64) bool {
	if a.state != ActionRunning {
		return false
	}
	if amount > 0 {
		a.remaining -= amount
	}
	if a.remaining <= precision*math.Max(1, amount) {
		a.remaining = 0
		return true
	}
	return false
}

// ElapseDuration decrements the max-duration counter and reports expiry.
func (a *Action) ElapseDuration(dt, precision float64) bool {
	if a.maxDuration < 0 {
		return false
	}
	a.maxDuration -= dt
	if a.maxDuration <= precision {
		a.maxDuration = 0
		return true
	}
	return false
}

// ElapseLatency consumes the latency phase and reports whether it is over.
func (a *Action) ElapseLatency(dt, precision float64) bool {
	if a.latency <= 0 {
		return true
	}
	a.latency -= dt
	if a.latency <= precision {
		a.latency = 0
		return true
	}
	return false
}

// Suspend freezes a running action. Its remaining amount stays put and it is
// excluded from sharing until Resume.
func (a *Action) Suspend() {
	if a.state == ActionRunning {
		a.suspended = true
	}
}

// Resume undoes Suspend.
func (a *Action) Resume() {
	a.suspended = false
}

// Cancel moves a non-terminal action to canceled. Canceling a terminal action
// is a no-op.
func (a *Action) Cancel(now float64) {
	if a.state.IsTerminal() {
		return
	}
	if a.table != nil {
		a.table.Finish(a, ActionCanceled, now)
		return
	}
	a.state = ActionCanceled
	a.finishTime = now
}

// Ref adds a reference and returns the new count.
func (a *Action) Ref() int {
	a.refs++
	return a.refs
}

// Unref drops a reference and returns the new count.
func (a *Action) Unref() int {
	if a.refs <= 0 {
		panic(fmt.Sprintf("Action %d: reference count underflow", a.id))
	}
	a.refs--
	return a.refs
}

func (a *Action) addWaiter(req *Request) {
	a.waiters = append(a.waiters, req)
	a.Ref()
}

// removeWaiter detaches req and reports whether it was waiting here.
func (a *Action) removeWaiter(req *Request) bool {
	for i, w := range a.waiters {
		if w == req {
			a.waiters = append(a.waiters[:i], a.waiters[i+1:]...)
			a.Unref()
			return true
		}
	}
	return false
}

// String returns a human-readable representation of an Action.
func (a *Action) String() string {
	return fmt.Sprintf("Action: (ID: %d, Kind: %s, Resource: %s, State: %s, Remaining: %g/%g)",
		a.id, a.kind, a.resource, a.state, a.remaining, a.cost)
}
