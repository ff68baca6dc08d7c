// Package rng derives independent deterministic random streams from one base seed.
package rng

import (
	"math/rand/v2"
)

// Source implements ports.RNGPort
type Source struct {
	seed uint64
}

// New creates a stream source for a base seed
func New(seed uint64) *Source {
	return &Source{seed: seed}
}

// Seed returns the base seed
func (s *Source) Seed() uint64 {
	return s.seed
}

// Stream creates the RNG for a named operation and index
func (s *Source) Stream(name string, index int) *rand.Rand {
	hi := s.seed + uint64(hashString(name))
	lo := splitmix(uint64(index) + 0x9e3779b97f4a7c15*(s.seed+1))
	return rand.New(rand.NewPCG(hi, lo))
}

// hashString creates a simple hash for deterministic seeding
func hashString(str string) uint32 {
	var hash uint32 = 5381
	for _, c := range str {
		hash = ((hash << 5) + hash) + uint32(c) // djb2
	}
	return hash
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
