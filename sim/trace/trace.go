package trace

// TraceLevel controls the verbosity of run tracing.
type TraceLevel string

const (
	// TraceLevelNone records only uncollected failures.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelActions also records every terminated action and process.
	TraceLevelActions TraceLevel = "actions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:    true,
	TraceLevelActions: true,
	"":                true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects the records of one kernel run.
type SimulationTrace struct {
	Config    TraceConfig
	Actions   []ActionRecord
	Processes []ProcessRecord
	Failures  []FailureRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:    config,
		Actions:   make([]ActionRecord, 0),
		Processes: make([]ProcessRecord, 0),
		Failures:  make([]FailureRecord, 0),
	}
}

func (st *SimulationTrace) detailed() bool {
	return st.Config.Level == TraceLevelActions
}

// RecordAction appends a terminated action, at the actions level only.
func (st *SimulationTrace) RecordAction(record ActionRecord) {
	if st.detailed() {
		st.Actions = append(st.Actions, record)
	}
}

// RecordProcess appends a terminated process, at the actions level only.
func (st *SimulationTrace) RecordProcess(record ProcessRecord) {
	if st.detailed() {
		st.Processes = append(st.Processes, record)
	}
}

// RecordFailure appends a failed action nobody collected. Failures are
// recorded at every level.
func (st *SimulationTrace) RecordFailure(record FailureRecord) {
	st.Failures = append(st.Failures, record)
}
