package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSimulationTrace_EmptySlices(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelActions})
	assert.NotNil(t, st.Actions)
	assert.NotNil(t, st.Processes)
	assert.NotNil(t, st.Failures)
	assert.Empty(t, st.Actions)
}

func TestRecord_LevelNone_KeepsOnlyFailures(t *testing.T) {
	// GIVEN a trace at level none
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelNone})

	// WHEN recording one of each kind
	st.RecordAction(ActionRecord{ID: 1, Kind: "exec", State: "done"})
	st.RecordProcess(ProcessRecord{PID: 1, Name: "p"})
	st.RecordFailure(FailureRecord{ActionID: 2, Kind: "exec", Resource: "h"})

	// THEN only the failure is kept
	assert.Empty(t, st.Actions)
	assert.Empty(t, st.Processes)
	assert.Len(t, st.Failures, 1)
}

func TestRecord_LevelActions_KeepsEverythingInOrder(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelActions})
	st.RecordAction(ActionRecord{ID: 1})
	st.RecordAction(ActionRecord{ID: 2})
	st.RecordProcess(ProcessRecord{PID: 7})

	assert.Equal(t, uint64(1), st.Actions[0].ID)
	assert.Equal(t, uint64(2), st.Actions[1].ID)
	assert.Equal(t, 7, st.Processes[0].PID)
}

func TestActionRecord_Duration(t *testing.T) {
	assert.Equal(t, 1.5, ActionRecord{Start: 2, Finish: 3.5}.Duration())
}

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"actions", true},
		{"", true}, // empty defaults to none
		{"decisions", false},
		{"ACTIONS", false}, // case-sensitive
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := IsValidTraceLevel(tt.level); got != tt.valid {
				t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.valid)
			}
		})
	}
}
