package gates

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goqem/domain/core"
	"goqem/domain/quantum"
)

func TestUnitaryKindsAreUnitary(t *testing.T) {
	for _, k := range All() {
		if !k.IsUnitary() {
			continue
		}
		m := k.Matrix()
		assert.Truef(t, m.MulConjTrans(m).ApproxEqual(quantum.Identity(2), 1e-12), "%s is not unitary", k)
	}
}

func TestProjectorKinds(t *testing.T) {
	// (I + P)/2 for a Pauli P is an idempotent projector
	for _, k := range []Kind{Pi, PiX, PiY, PiZ} {
		m := k.Matrix()
		assert.Truef(t, m.Mul(m).ApproxEqual(m, 1e-12), "%s is not idempotent", k)
	}
	assert.True(t, PiXY.Matrix().ApproxEqual(quantum.MustMatrix([][]complex128{{0, 1}, {0, 0}}), 1e-12))
	assert.True(t, PiYZ.Matrix().ApproxEqual(quantum.MustMatrix([][]complex128{{0.5i, -0.5i}, {0.5i, -0.5i}}), 1e-12))
}

func TestParse(t *testing.T) {
	k, err := Parse("grzx")
	require.NoError(t, err)
	assert.Equal(t, RZX, k)

	k, err = Parse(" x ")
	require.NoError(t, err)
	assert.Equal(t, PauliX, k)

	_, err = Parse("toffoli")
	assert.True(t, errors.Is(err, core.ErrUnknownGate))

	kinds, err := ParseAll([]string{"I", "X", "Y", "Z"})
	require.NoError(t, err)
	assert.Equal(t, []Kind{Identity, PauliX, PauliY, PauliZ}, kinds)
}

func TestMatrixReturnsCopy(t *testing.T) {
	m := PauliX.Matrix()
	m.Set(0, 0, 7)
	assert.Equal(t, complex128(0), PauliX.Matrix().At(0, 0))
}

func TestRandomUnitary(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 20; i++ {
		u := RandomUnitary(r)
		assert.True(t, u.MulConjTrans(u).ApproxEqual(quantum.Identity(2), 1e-10))
	}
}
