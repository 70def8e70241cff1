package scenario

import (
	"hash/fnv"
	"math/rand"
)

// SubsystemFailures prefixes the RNG subsystems of generated failure
// profiles, one per resource.
const SubsystemFailures = "failures"

// SubsystemResource returns the RNG subsystem name of a failure profile.
func SubsystemResource(resource string) string {
	return SubsystemFailures + "/" + resource
}

// PartitionedRNG provides deterministic, isolated RNG instances per
// subsystem: adding a failure profile on one resource never changes the
// dates generated for another.
//
// Derived seed: seed XOR fnv1a64(subsystem).
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a scenario seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.seed ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Seed returns the seed used to create this PartitionedRNG.
func (p *PartitionedRNG) Seed() int64 {
	return p.seed
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
