package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// GIVEN two RNGs from the same seed
	rng1 := NewPartitionedRNG(42)
	rng2 := NewPartitionedRNG(42)

	// WHEN drawing from the same subsystem
	for i := 0; i < 3; i++ {
		a := rng1.ForSubsystem(SubsystemResource("h1")).Float64()
		b := rng2.ForSubsystem(SubsystemResource("h1")).Float64()

		// THEN the sequences are identical
		assert.Equal(t, a, b, "draw %d", i)
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// GIVEN one RNG drawing heavily from h1 before h2, and one fresh
	busy := NewPartitionedRNG(7)
	for i := 0; i < 10; i++ {
		busy.ForSubsystem(SubsystemResource("h1")).Float64()
	}
	fresh := NewPartitionedRNG(7)

	// THEN the first h2 draw does not depend on the h1 draws
	assert.Equal(t,
		fresh.ForSubsystem(SubsystemResource("h2")).Float64(),
		busy.ForSubsystem(SubsystemResource("h2")).Float64())
}

func TestPartitionedRNG_CachesInstances(t *testing.T) {
	p := NewPartitionedRNG(1)
	assert.Same(t, p.ForSubsystem("x"), p.ForSubsystem("x"))
	assert.Equal(t, int64(1), p.Seed())
	assert.Equal(t, "failures/link-3", SubsystemResource("link-3"))
}
