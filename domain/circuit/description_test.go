package circuit

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goqem/domain/core"
	"goqem/domain/gates"
	"goqem/domain/quantum"
)

func swapTest() *Description {
	return &Description{
		Name:      "swaptest",
		NumQubits: 3,
		Noise:     Noise{Kind: NoiseDepolarizing, Probability: 0.01},
		Operations: []Operation{
			{Gate: "H", Qubits: []int{0}},
			{Gate: "mitigate", Qubits: []int{1}},
			{Gate: "cswap-free", Qubits: []int{0}},
		},
	}
}

func TestValidateRejectsUnknownGate(t *testing.T) {
	err := swapTest().Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownGate))
}

func TestValidateAndCount(t *testing.T) {
	d := swapTest()
	d.Operations[2] = Operation{Gate: "cx", Qubits: []int{0, 2}}
	d.Operations = append(d.Operations, Operation{Gate: "MITIGATE", Qubits: []int{2}})

	require.NoError(t, d.Validate())
	assert.Equal(t, 2, d.CountMitigationGates())

	actions, err := d.Actions()
	require.NoError(t, err)
	assert.Equal(t, []gates.Kind{gates.Identity, gates.PauliX, gates.PauliY, gates.PauliZ}, actions)
}

func TestValidateQubitRange(t *testing.T) {
	d := swapTest()
	d.Operations = []Operation{{Gate: "X", Qubits: []int{3}}}
	assert.True(t, errors.Is(d.Validate(), core.ErrQubitOutOfRange))

	d.Operations = nil
	d.TargetQubit = 5
	assert.True(t, errors.Is(d.Validate(), core.ErrQubitOutOfRange))
}

func TestNoiseValidate(t *testing.T) {
	assert.NoError(t, Noise{}.Validate())
	assert.True(t, Noise{Kind: NoiseDepolarizing}.IsZero())
	assert.Error(t, Noise{Kind: NoiseDepolarizing, Probability: 1.5}.Validate())
	assert.Error(t, Noise{Kind: "amplitude"}.Validate())
}

func TestRotationMatrices(t *testing.T) {
	op := Operation{Gate: "rx", Qubits: []int{0}, Params: []float64{math.Pi}}
	m, err := op.Matrix()
	require.NoError(t, err)
	// Rx(pi) = -iX
	assert.True(t, m.ApproxEqual(gates.PauliX.Matrix().Scale(-1i), 1e-12))

	op = Operation{Gate: "rz", Qubits: []int{0}, Params: []float64{math.Pi}}
	m, err = op.Matrix()
	require.NoError(t, err)
	assert.True(t, m.ApproxEqual(gates.PauliZ.Matrix().Scale(-1i), 1e-12))

	_, err = Operation{Gate: "ry", Qubits: []int{0}}.Matrix()
	assert.Error(t, err)
}

func TestTwoQubitMatrices(t *testing.T) {
	m, err := Operation{Gate: "CX", Qubits: []int{0, 1}}.Matrix()
	require.NoError(t, err)
	assert.True(t, m.Mul(m).ApproxEqual(quantum.Identity(4), 0))
	assert.Equal(t, complex128(1), m.At(3, 2))
}
