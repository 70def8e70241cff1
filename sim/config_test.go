package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/simkern/simkern/sim/trace"
)

func TestNewConfig_Defaults(t *testing.T) {
	got := NewConfig()
	want := Config{
		Horizon:         NoHorizon,
		Precision:       DefaultPrecision,
		AmountPrecision: DefaultAmountPrecision,
		SharingPolicy:   DefaultSharingPolicy,
		TraceLevel:      trace.TraceLevelNone,
	}
	assert.Equal(t, want, got)
	assert.NoError(t, got.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero horizon", func(c *Config) { c.Horizon = 0 }, ""},
		{"negative horizon", func(c *Config) { c.Horizon = -2 }, "horizon must be >= 0"},
		{"NaN horizon", func(c *Config) { c.Horizon = math.NaN() }, "horizon must be >= 0"},
		{"zero precision", func(c *Config) { c.Precision = 0 }, "precision must be > 0"},
		{"negative amount precision", func(c *Config) { c.AmountPrecision = -1 }, "amount precision must be > 0"},
		{"empty sharing policy", func(c *Config) { c.SharingPolicy = "" }, "sharing policy must not be empty"},
		{"unknown trace level", func(c *Config) { c.TraceLevel = "verbose" }, `unknown trace level "verbose"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
