package sim_test

// Blank import triggers sim/resource's init(), which registers
// NewPlatformModelsFunc. This allows package sim's internal test files to
// build platforms without importing sim/resource (an import cycle).
import _ "github.com/simkern/simkern/sim/resource"
