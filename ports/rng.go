package ports

import (
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream returns the deterministic RNG for a named operation and chunk index.
	// The same (seed, name, index) always yields the same sequence, so parallel chunks
	// reproduce regardless of scheduling.
	Stream(name string, index int) *rand.Rand

	// Seed returns the base seed the streams derive from
	Seed() uint64
}
