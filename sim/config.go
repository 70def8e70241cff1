package sim

import (
	"fmt"
	"math"

	"github.com/simkern/simkern/sim/trace"
)

// Default numeric tolerances. They mirror the usual maxmin/surf precisions
// of fluid resource simulators.
const (
	DefaultPrecision       = 1e-5 // relative precision of the sharing solver
	DefaultAmountPrecision = 1e-9 // remaining amounts below this are zero
	DefaultSharingPolicy   = "maxmin"
	NoHorizon              = -1.0
)

// Config groups kernel-wide parameters.
type Config struct {
	Horizon         float64 // stop once virtual time reaches this date (NoHorizon = run to completion)
	Precision       float64 // sharing solver precision (must be > 0)
	AmountPrecision float64 // remaining amounts at or below this value count as 0 (must be > 0)
	SharingPolicy   string  // "maxmin" (default) or "proportional"; read by resource model constructors
	TraceLevel      trace.TraceLevel
}

// NewConfig returns the default kernel configuration.
func NewConfig() Config {
	return Config{
		Horizon:         NoHorizon,
		Precision:       DefaultPrecision,
		AmountPrecision: DefaultAmountPrecision,
		SharingPolicy:   DefaultSharingPolicy,
		TraceLevel:      trace.TraceLevelNone,
	}
}

// Validate checks the configuration and returns the first problem found.
func (c Config) Validate() error {
	if c.Horizon != NoHorizon && (c.Horizon < 0 || math.IsNaN(c.Horizon)) {
		return fmt.Errorf("horizon must be >= 0 or %v, got %v", NoHorizon, c.Horizon)
	}
	if c.Precision <= 0 || math.IsNaN(c.Precision) {
		return fmt.Errorf("precision must be > 0, got %v", c.Precision)
	}
	if c.AmountPrecision <= 0 || math.IsNaN(c.AmountPrecision) {
		return fmt.Errorf("amount precision must be > 0, got %v", c.AmountPrecision)
	}
	if c.SharingPolicy == "" {
		return fmt.Errorf("sharing policy must not be empty")
	}
	if !trace.IsValidTraceLevel(string(c.TraceLevel)) {
		return fmt.Errorf("unknown trace level %q", c.TraceLevel)
	}
	return nil
}
