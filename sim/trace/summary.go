package trace

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// sleepKind is the kind of sleep actions, which use no capacity.
const sleepKind = "sleep"

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalActions   int
	DoneCount      int
	FailedCount    int
	CanceledCount  int
	KindCounts     map[string]int // action kind → count
	MeanDuration   float64
	StdDevDuration float64
	P95Duration    float64
	MaxDuration    float64
	BusyTime       map[string]float64 // resource → summed action durations, sleeps excluded

	TotalProcesses  int
	KilledProcesses int
	Makespan        float64 // latest process end

	UncollectedFailures int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		KindCounts: make(map[string]int),
		BusyTime:   make(map[string]float64),
	}
	if st == nil {
		return summary
	}

	summary.TotalActions = len(st.Actions)
	durations := make([]float64, 0, len(st.Actions))
	for _, a := range st.Actions {
		switch a.State {
		case "done":
			summary.DoneCount++
		case "failed":
			summary.FailedCount++
		case "canceled":
			summary.CanceledCount++
		}
		summary.KindCounts[a.Kind]++
		if a.Start >= 0 {
			d := a.Duration()
			durations = append(durations, d)
			if a.Kind != sleepKind {
				summary.BusyTime[a.Resource] += d
			}
		}
	}
	if len(durations) > 0 {
		summary.MeanDuration, summary.StdDevDuration = stat.MeanStdDev(durations, nil)
		if len(durations) == 1 {
			summary.StdDevDuration = 0
		}
		sort.Float64s(durations)
		summary.P95Duration = stat.Quantile(0.95, stat.Empirical, durations, nil)
		summary.MaxDuration = floats.Max(durations)
	}

	summary.TotalProcesses = len(st.Processes)
	for _, p := range st.Processes {
		if p.Killed {
			summary.KilledProcesses++
		}
		if p.End > summary.Makespan {
			summary.Makespan = p.End
		}
	}

	summary.UncollectedFailures = len(st.Failures)
	return summary
}
