package sim

import (
	"container/list"
	"fmt"
)

// Resource is one physical resource (host, link, disk) of some model.
type Resource interface {
	Name() string
	IsOn() bool
}

// StateEventKind tells what an exogenous trace event does to a resource.
type StateEventKind int

const (
	StateOff   StateEventKind = iota // resource fails; running actions on it fail
	StateOn                          // resource is repaired
	StateSpeed                       // capacity is scaled by Value (availability profile)
)

func (k StateEventKind) String() string {
	switch k {
	case StateOff:
		return "off"
	case StateOn:
		return "on"
	case StateSpeed:
		return "speed"
	}
	return fmt.Sprintf("StateEventKind(%d)", int(k))
}

// StateEvent is applied through ResourceModel.UpdateResourceState.
type StateEvent struct {
	Kind  StateEventKind
	Value float64 // scale factor for StateSpeed
}

// ResourceModel is the contract every resource kind implements.
// The kernel holds an ordered list of models and treats them uniformly:
// it asks each one for its next event, advances all of them by the global
// minimum, then extracts the actions that became terminal.
type ResourceModel interface {
	// Name identifies the model in logs and traces.
	Name() string
	// Resources lists the physical resources this model owns.
	Resources() []Resource
	// IsUsed reports whether r has at least one running action.
	IsUsed(r Resource) bool
	// NextOccurringEvent returns the delay until some running action finishes
	// or crosses a threshold, or false when nothing is running.
	NextOccurringEvent(now float64) (float64, bool)
	// Advance moves every running action forward by dt. now is the date the
	// model is advanced to; advancing twice to the same date is a no-op.
	Advance(now, dt float64)
	// UpdateResourceState applies an exogenous trace event to r.
	UpdateResourceState(r Resource, ev StateEvent, now float64)
	// ExtractTerminated returns, and forgets, the actions that reached a
	// terminal state since the last call, in the order they terminated.
	ExtractTerminated() []*Action
}

// ExecOptions tunes an execution.
type ExecOptions struct {
	Priority float64 // sharing weight; 0 means 1
	Bound    float64 // rate cap in flop/s; 0 means none
}

// ComputeModel accepts executions and sleeps on hosts.
type ComputeModel interface {
	ResourceModel
	Execute(now float64, host string, flops float64, opts ExecOptions) (*Action, error)
	Sleep(now float64, host string, duration float64) (*Action, error)
	HasHost(host string) bool
}

// NetworkModel accepts transfers between hosts.
type NetworkModel interface {
	ResourceModel
	// Communicate starts moving size bytes from src to dst. rate caps the
	// transfer speed when > 0.
	Communicate(now float64, src, dst string, size, rate float64) (*Action, error)
}

// StorageModel accepts reads and writes on disks.
type StorageModel interface {
	ResourceModel
	Read(now float64, disk string, size float64) (*Action, error)
	Write(now float64, disk string, size float64) (*Action, error)
	HasDisk(disk string) bool
}

// ActionTable is the action bookkeeping a resource model embeds: the live
// (ready or running) actions in acceptance order and the terminated ones
// waiting to be extracted by the kernel.
type ActionTable struct {
	live       *list.List
	terminated []*Action
}

// NewActionTable creates an empty table.
func NewActionTable() *ActionTable {
	return &ActionTable{live: list.New()}
}

// Add accepts a not-scheduled action: it becomes ready and the table holds a
// reference to it.
func (t *ActionTable) Add(a *Action) {
	if a.state != ActionNotScheduled {
		panic(fmt.Sprintf("ActionTable: cannot add %s", a))
	}
	a.state = ActionReady
	a.table = t
	a.elem = t.live.PushBack(a)
	a.Ref()
}

// Start moves a ready action to running. Actions with nothing to do
// (zero cost or zero max duration) complete immediately, without a clock tick.
func (t *ActionTable) Start(a *Action, now float64) {
	if a.state == ActionNotScheduled {
		t.Add(a)
	}
	if a.state != ActionReady {
		panic(fmt.Sprintf("ActionTable: cannot start %s", a))
	}
	a.state = ActionRunning
	a.startTime = now
	if (a.cost == 0 && a.latency == 0) || a.maxDuration == 0 {
		a.remaining = 0
		t.Finish(a, ActionDone, now)
	}
}

// Finish moves a to the given terminal state.
func (t *ActionTable) Finish(a *Action, state ActionState, now float64) {
	if !state.IsTerminal() {
		panic(fmt.Sprintf("ActionTable: %s is not a terminal state", state))
	}
	if a.state.IsTerminal() {
		return
	}
	if a.table != t {
		panic(fmt.Sprintf("ActionTable: %s belongs to another table", a))
	}
	a.state = state
	a.suspended = false
	a.finishTime = now
	if a.elem != nil {
		t.live.Remove(a.elem)
		a.elem = nil
	}
	t.terminated = append(t.terminated, a)
}

// Running returns the running actions, suspended ones included, in
// acceptance order.
func (t *ActionTable) Running() []*Action {
	out := make([]*Action, 0, t.live.Len())
	for e := t.live.Front(); e != nil; e = e.Next() {
		a := e.Value.(*Action)
		if a.state == ActionRunning {
			out = append(out, a)
		}
	}
	return out
}

// Len returns the number of live actions.
func (t *ActionTable) Len() int {
	return t.live.Len()
}

// HasTerminated reports whether some actions wait to be extracted.
func (t *ActionTable) HasTerminated() bool {
	return len(t.terminated) > 0
}

// Terminated returns the terminated actions not extracted yet, without
// extracting them.
func (t *ActionTable) Terminated() []*Action {
	return t.terminated
}

// ExtractTerminated hands the terminated actions over and drops the table's
// reference to each of them.
func (t *ActionTable) ExtractTerminated() []*Action {
	out := t.terminated
	t.terminated = nil
	for _, a := range out {
		a.Unref()
	}
	return out
}
