package ports

import "math/rand"

// RNGPort provides seeded random number generation for deterministic
// resampling. Streams are partitioned per replicate index so bootstrap
// results are reproducible regardless of worker scheduling.
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a
	// named operation.
	SeededStream(name string, seed int64) *rand.Rand

	// ReplicateStream creates the generator for one bootstrap replicate,
	// derived from the base seed and the replicate index only.
	ReplicateStream(baseSeed int64, replicate int) *rand.Rand
}
