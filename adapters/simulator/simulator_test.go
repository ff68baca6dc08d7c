package simulator

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goqem/domain/circuit"
	"goqem/domain/gates"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/internal/errors"
	"goqem/ports"
)

var _ ports.Simulator = (*Simulator)(nil)

func op(gate string, qubits ...int) circuit.Operation {
	return circuit.Operation{Gate: gate, Qubits: qubits}
}

func bell() *circuit.Description {
	return &circuit.Description{
		Name:       "bell",
		NumQubits:  2,
		Operations: []circuit.Operation{op("H", 0), op("mitigate", 0), op("cx", 0, 1)},
	}
}

func depolarizing(p float64) circuit.Noise {
	return circuit.Noise{Kind: circuit.NoiseDepolarizing, Probability: p}
}

func TestIdealBellState(t *testing.T) {
	state, err := New().Ideal(context.Background(), bell())
	require.NoError(t, err)
	h := 1 / math.Sqrt2
	assert.InDelta(t, h, real(state[0]), 1e-12)
	assert.InDelta(t, 0, real(state[1]), 1e-12)
	assert.InDelta(t, 0, real(state[2]), 1e-12)
	assert.InDelta(t, h, real(state[3]), 1e-12)
}

func TestQubitZeroIsMostSignificant(t *testing.T) {
	desc := &circuit.Description{Name: "x0", NumQubits: 2, Operations: []circuit.Operation{op("X", 0)}}
	state, err := New().Ideal(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, complex128(1), state[2])
}

func TestNoisyWithoutNoiseMatchesIdeal(t *testing.T) {
	sim := New()
	state, err := sim.Ideal(context.Background(), bell())
	require.NoError(t, err)
	rho, err := sim.Noisy(context.Background(), bell(), circuit.Noise{})
	require.NoError(t, err)
	assert.True(t, rho.ApproxEqual(state.Density(), 1e-12))
}

func TestDepolarizingPreservesTraceAndHermiticity(t *testing.T) {
	rho, err := New().Noisy(context.Background(), bell(), depolarizing(0.1))
	require.NoError(t, err)
	assert.InDelta(t, 1, real(rho.Trace()), 1e-12)
	assert.InDelta(t, 0, imag(rho.Trace()), 1e-12)
	assert.True(t, rho.IsHermitian(1e-12))

	pure, err := New().Noisy(context.Background(), bell(), circuit.Noise{})
	require.NoError(t, err)
	assert.False(t, rho.ApproxEqual(pure, 1e-6))
}

func TestDepolarizingSingleQubit(t *testing.T) {
	p := 0.3
	desc := &circuit.Description{Name: "idle", NumQubits: 1, Operations: []circuit.Operation{op("I", 0)}}
	rho, err := New().Noisy(context.Background(), desc, depolarizing(p))
	require.NoError(t, err)
	z := gates.PauliZ.Matrix()
	assert.InDelta(t, 1-4*p/3, quantum.DensityExpectation(rho, z), 1e-12)
}

func TestMitigatedIdentityMatchesNoisy(t *testing.T) {
	sim := New()
	actions := []gates.Kind{gates.Identity, gates.PauliX, gates.PauliY, gates.PauliZ}
	probs, err := mitigation.ProbabilitiesFrom(1, 4, []float64{1, 0, 0, 0})
	require.NoError(t, err)

	noisy, err := sim.Noisy(context.Background(), bell(), depolarizing(0.05))
	require.NoError(t, err)
	mitigated, err := sim.Mitigated(context.Background(), bell(), depolarizing(0.05), probs, actions)
	require.NoError(t, err)
	assert.True(t, noisy.ApproxEqual(mitigated, 1e-12))
}

func TestMitigatedDeterministicActionActsAsGate(t *testing.T) {
	sim := New()
	actions := []gates.Kind{gates.Identity, gates.PauliX, gates.PauliY, gates.PauliZ}
	probs, err := mitigation.ProbabilitiesFrom(1, 4, []float64{0, 1, 0, 0})
	require.NoError(t, err)

	withX := &circuit.Description{Name: "bell_x", NumQubits: 2, Operations: []circuit.Operation{op("H", 0), op("X", 0), op("cx", 0, 1)}}
	want, err := sim.Noisy(context.Background(), withX, circuit.Noise{})
	require.NoError(t, err)
	got, err := sim.Mitigated(context.Background(), bell(), circuit.Noise{}, probs, actions)
	require.NoError(t, err)
	assert.True(t, want.ApproxEqual(got, 1e-12))
}

func TestMitigatedMixture(t *testing.T) {
	desc := &circuit.Description{Name: "slot", NumQubits: 1, Operations: []circuit.Operation{op("mitigate", 0)}}
	probs, err := mitigation.ProbabilitiesFrom(1, 2, []float64{0.25, 0.75})
	require.NoError(t, err)
	rho, err := New().Mitigated(context.Background(), desc, circuit.Noise{}, probs, []gates.Kind{gates.Identity, gates.PauliX})
	require.NoError(t, err)
	assert.InDelta(t, 0.25-0.75, quantum.DensityExpectation(rho, gates.PauliZ.Matrix()), 1e-12)
}

func TestMitigatedRejectsShape(t *testing.T) {
	probs := mitigation.NewProbabilities(2, 4)
	_, err := New().Mitigated(context.Background(), bell(), circuit.Noise{}, probs, []gates.Kind{gates.Identity, gates.PauliX, gates.PauliY, gates.PauliZ})
	require.Error(t, err)
	assert.Equal(t, errors.CodeShapeMismatch, errors.GetCode(err))
}

func TestSimulationFailures(t *testing.T) {
	sim := New()
	_, err := sim.Ideal(context.Background(), nil)
	assert.Equal(t, errors.CodeSimulationFailed, errors.GetCode(err))

	bad := &circuit.Description{Name: "bad", NumQubits: 1, Operations: []circuit.Operation{op("X", 4)}}
	_, err = sim.Noisy(context.Background(), bad, circuit.Noise{})
	assert.Equal(t, errors.CodeSimulationFailed, errors.GetCode(err))

	_, err = sim.Noisy(context.Background(), bell(), depolarizing(2))
	assert.Equal(t, errors.CodeSimulationFailed, errors.GetCode(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Ideal(ctx, bell())
	assert.ErrorIs(t, err, context.Canceled)
}
