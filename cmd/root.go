package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"golang.org/x/sync/errgroup"

	"github.com/simkern/simkern/sim"
	"github.com/simkern/simkern/sim/scenario"
	"github.com/simkern/simkern/sim/trace"
)

// Exit codes of the run command.
const (
	exitOK       = 0
	exitFailure  = 1
	exitDeadlock = 2
)

var (
	logLevel   string  // Log verbosity level
	horizon    float64 // Simulated date at which runs stop
	sharing    string  // Sharing policy override
	traceLevel string  // Trace level override
	jobs       int     // Scenarios run concurrently
	noColor    bool    // Disable colored summaries
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "simkern",
	Short: "Deterministic discrete-event simulation kernel",
}

// runCmd runs every scenario file given on the command line
var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>...",
	Short: "Run one or more simulation scenarios",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		if noColor {
			color.NoColor = true
		}
		override, err := buildOverride(cmd)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		start := time.Now()
		atexit.Register(func() {
			logrus.Infof("wall time: %v", time.Since(start))
		})

		results, err := runScenarios(cmd.Context(), args, override, jobs)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		for _, r := range results {
			printReport(os.Stdout, r)
		}
		atexit.Exit(exitCode(results))
	},
}

// validateCmd checks scenario files without running them
var validateCmd = &cobra.Command{
	Use:   "validate <scenario.yaml>...",
	Short: "Check scenario files for errors",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		failed := false
		for _, path := range args {
			if err := validateFile(path); err != nil {
				logrus.Errorf("%s: %v", path, err)
				failed = true
				continue
			}
			fmt.Printf("%s: ok\n", path)
		}
		if failed {
			atexit.Exit(exitFailure)
		}
	},
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// buildOverride collects the flags that take precedence over scenario files.
// The horizon only applies when given explicitly.
func buildOverride(cmd *cobra.Command) (scenario.Override, error) {
	var o scenario.Override
	if cmd.Flags().Changed("horizon") {
		if horizon < 0 && horizon != sim.NoHorizon {
			return o, fmt.Errorf("horizon must be >= 0 or %v, got %v", sim.NoHorizon, horizon)
		}
		h := horizon
		o.Horizon = &h
	}
	if sharing != "" {
		o.Sharing = sharing
	}
	if traceLevel != "" {
		if !trace.IsValidTraceLevel(traceLevel) {
			return o, fmt.Errorf("unknown trace level %q", traceLevel)
		}
		o.Trace = trace.TraceLevel(traceLevel)
	}
	return o, nil
}

func validateFile(path string) error {
	s, err := scenario.Load(path)
	if err != nil {
		return err
	}
	return s.Validate()
}

// runResult is the outcome of one scenario file.
type runResult struct {
	Path   string
	Report *sim.Report
	Err    error
}

// runScenarios runs the scenario files on independent kernels, at most limit
// at a time. Results keep the order of paths. Per-scenario errors land in the
// results; the returned error only reports a scenario that could not load.
func runScenarios(ctx context.Context, paths []string, o scenario.Override, limit int) ([]runResult, error) {
	specs := make([]*scenario.Spec, len(paths))
	for i, path := range paths {
		s, err := scenario.Load(path)
		if err != nil {
			return nil, err
		}
		specs[i] = s
	}

	results := make([]runResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range specs {
		g.Go(func() error {
			report, err := scenario.Run(gctx, specs[i], specs[i].Config(o))
			results[i] = runResult{Path: paths[i], Report: report, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// exitCode folds the results into the process exit code. Errors win over
// deadlocks.
func exitCode(results []runResult) int {
	code := exitOK
	for _, r := range results {
		switch {
		case r.Err != nil:
			return exitFailure
		case r.Report != nil && r.Report.Deadlocked:
			code = exitDeadlock
		}
	}
	return code
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	errColor  = color.New(color.FgRed, color.Bold)
)

// printReport writes the summary of one run.
func printReport(w io.Writer, r runResult) {
	fmt.Fprintf(w, "=== %s ===\n", r.Path)
	if r.Err != nil {
		var ue *sim.UsageError
		if errors.As(r.Err, &ue) {
			errColor.Fprintf(w, "Status               : aborted\n")
		} else {
			errColor.Fprintf(w, "Status               : error\n")
		}
		fmt.Fprintf(w, "Error                : %v\n", r.Err)
	}
	rep := r.Report
	if rep == nil {
		return
	}
	if r.Err == nil {
		switch {
		case rep.Deadlocked:
			warnColor.Fprintf(w, "Status               : %v\n", sim.ErrDeadlock)
		case rep.HorizonReached:
			warnColor.Fprintf(w, "Status               : horizon reached\n")
		default:
			okColor.Fprintf(w, "Status               : completed\n")
		}
	}
	fmt.Fprintf(w, "Run ID               : %s\n", rep.RunID)
	fmt.Fprintf(w, "End Time             : %.6f s\n", rep.EndTime)
	fmt.Fprintf(w, "Rounds               : %d\n", rep.Rounds)

	s := trace.Summarize(rep.Trace)
	if s.TotalProcesses > 0 {
		fmt.Fprintf(w, "Processes            : %d (%d killed)\n", s.TotalProcesses, s.KilledProcesses)
		fmt.Fprintf(w, "Makespan             : %.6f s\n", s.Makespan)
	}
	if s.TotalActions > 0 {
		fmt.Fprintf(w, "Actions              : %d (done %d, failed %d, canceled %d)\n",
			s.TotalActions, s.DoneCount, s.FailedCount, s.CanceledCount)
		fmt.Fprintf(w, "Action Duration      : mean %.6f, stddev %.6f, p95 %.6f, max %.6f\n",
			s.MeanDuration, s.StdDevDuration, s.P95Duration, s.MaxDuration)
	}
	if s.UncollectedFailures > 0 {
		warnColor.Fprintf(w, "Uncollected Failures : %d\n", s.UncollectedFailures)
	}
}

// Execute runs the CLI root command. An interrupt cancels the running
// simulations.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		atexit.Exit(exitFailure)
	}
	atexit.Exit(exitOK)
}

func init() {
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().Float64Var(&horizon, "horizon", sim.NoHorizon, "Simulated date at which runs stop (-1 for none); overrides the scenario")
	runCmd.Flags().StringVar(&sharing, "sharing", "", "Sharing policy (maxmin, proportional); overrides the scenario")
	runCmd.Flags().StringVar(&traceLevel, "trace", "", "Trace level (none, actions); overrides the scenario")
	runCmd.Flags().IntVar(&jobs, "jobs", 4, "Number of scenarios run concurrently (0 for unlimited)")
	runCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	validateCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
