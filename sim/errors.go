package sim

import (
	"errors"
	"fmt"
)

// Outcome is the single answer every request receives.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeResourceError
	OutcomeCanceled
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeResourceError:
		return "resource-error"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeTimeout:
		return "timeout"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Err maps an outcome to the error returned to simulated code.
func (o Outcome) Err() error {
	switch o {
	case OutcomeSuccess:
		return nil
	case OutcomeResourceError:
		return ErrResourceFailure
	case OutcomeCanceled:
		return ErrCanceled
	case OutcomeTimeout:
		return ErrTimeout
	}
	panic(fmt.Sprintf("unknown outcome %d", int(o)))
}

var (
	// ErrResourceFailure reports that a resource the request depended on failed.
	ErrResourceFailure = errors.New("resource failure")
	// ErrCanceled reports that the action behind the request was canceled.
	ErrCanceled = errors.New("canceled")
	// ErrTimeout reports that a bounded wait expired. It is not a failure.
	ErrTimeout = errors.New("timeout")
	// ErrDeadlock is returned by the CLI when a run ended with blocked contexts.
	ErrDeadlock = errors.New("deadlock: blocked processes remain but nothing can happen anymore")
)

// UsageError describes an invalid call sequence by simulated code. It aborts
// the whole simulation.
type UsageError struct {
	Op      string
	Process string
	PID     ProcessID
	Msg     string
}

func (e *UsageError) Error() string {
	if e.Process == "" {
		return fmt.Sprintf("usage error in %s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("usage error in %s by process %s (pid %d): %s", e.Op, e.Process, e.PID, e.Msg)
}
