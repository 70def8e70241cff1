// Package trace records what happened during a kernel run.
// This package has no dependencies on sim/: it stores pure data types.
package trace

// ActionRecord captures one action once it reached a terminal state.
type ActionRecord struct {
	ID       uint64
	Kind     string
	Resource string
	Cost     float64
	Start    float64
	Finish   float64
	State    string // done, failed or canceled
}

// Duration is the time the action spent running.
func (r ActionRecord) Duration() float64 {
	return r.Finish - r.Start
}

// ProcessRecord captures one process once it terminated.
type ProcessRecord struct {
	PID    int
	Name   string
	Host   string
	Start  float64
	End    float64
	Killed bool
	Daemon bool
}

// FailureRecord captures a failed action no request was waiting on.
type FailureRecord struct {
	ActionID uint64
	Kind     string
	Resource string
	Time     float64
}
