package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"goqem/ports"
)

var _ ports.RNGPort = (*Source)(nil)

func draw(s *Source, name string, index int) []uint64 {
	r := s.Stream(name, index)
	out := make([]uint64, 4)
	for i := range out {
		out[i] = r.Uint64()
	}
	return out
}

func TestStreamDeterministic(t *testing.T) {
	assert.Equal(t, draw(New(7), "triples", 3), draw(New(7), "triples", 3))
}

func TestStreamsDiffer(t *testing.T) {
	s := New(7)
	assert.NotEqual(t, draw(s, "triples", 0), draw(s, "triples", 1))
	assert.NotEqual(t, draw(s, "triples", 0), draw(s, "surrogate", 0))
	assert.NotEqual(t, draw(s, "triples", 0), draw(New(8), "triples", 0))
	assert.Equal(t, uint64(7), s.Seed())
}
