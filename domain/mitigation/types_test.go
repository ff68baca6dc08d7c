package mitigation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goqem/domain/core"
	"goqem/domain/quantum"
)

func TestRoundExpectation(t *testing.T) {
	assert.Equal(t, 0.12345679, RoundExpectation(0.123456789))
	assert.Equal(t, -0.5, RoundExpectation(-0.500000001))
	assert.Equal(t, 1.0, RoundExpectation(1.0))
}

func TestProbabilitiesValidate(t *testing.T) {
	p, err := ProbabilitiesFrom(2, 2, []float64{0.25, 0.75, 1, 0})
	require.NoError(t, err)
	assert.NoError(t, p.Validate(1e-9))
	assert.Equal(t, 0.75, p.At(0, 1))
	assert.Equal(t, []float64{1, 0}, p.Row(1))

	bad, err := ProbabilitiesFrom(1, 2, []float64{0.5, 0.6})
	require.NoError(t, err)
	assert.True(t, errors.Is(bad.Validate(1e-9), core.ErrNotStochastic))

	negative, err := ProbabilitiesFrom(1, 2, []float64{1.5, -0.5})
	require.NoError(t, err)
	assert.True(t, errors.Is(negative.Validate(1e-9), core.ErrNotStochastic))

	_, err = ProbabilitiesFrom(2, 2, []float64{1})
	assert.True(t, errors.Is(err, core.ErrShapeMismatch))
}

func TestFingerprint(t *testing.T) {
	z := quantum.MustMatrix([][]complex128{{1, 0}, {0, -1}})
	a := []Triple{{Observable: z, Noisy: 0.5, Ideal: 1}}
	b := []Triple{{Observable: z.Clone(), Noisy: 0.5, Ideal: 1}}
	c := []Triple{{Observable: z, Noisy: 0.50000001, Ideal: 1}}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}
