package circuitfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goqem/domain/circuit"
	"goqem/domain/core"
	"goqem/internal/errors"
)

const bellTOML = `
name = "bell"
qubits = 2

[noise]
kind = "depolarizing"
probability = 0.05

[[gates]]
gate = "H"
qubits = [0]

[[gates]]
gate = "mitigate"
qubits = [0]

[[gates]]
gate = "cx"
qubits = [0, 1]
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bell.toml", bellTOML)

	desc, err := NewLoader(dir).Load(context.Background(), "bell")
	require.NoError(t, err)
	assert.Equal(t, "bell", desc.Name)
	assert.Equal(t, 2, desc.NumQubits)
	assert.Equal(t, 1, desc.CountMitigationGates())
	assert.Equal(t, circuit.NoiseDepolarizing, desc.Noise.Kind)
	assert.Equal(t, 0.05, desc.Noise.Probability)
	assert.Len(t, desc.Operations, 3)
}

func TestLoadDefaultsNameFromFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "anon.toml", "qubits = 1\n[[gates]]\ngate = \"X\"\nqubits = [0]\n")

	desc, err := NewLoader(dir).Load(context.Background(), "anon.toml")
	require.NoError(t, err)
	assert.Equal(t, "anon", desc.Name)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "unknown_gate.toml", "qubits = 1\n[[gates]]\ngate = \"warp\"\nqubits = [0]\n")
	writeFile(t, dir, "bad_qubit.toml", "qubits = 1\n[[gates]]\ngate = \"X\"\nqubits = [3]\n")
	writeFile(t, dir, "extra_key.toml", "qubits = 1\ncolour = \"red\"\n")

	loader := NewLoader(dir)
	for _, ref := range []string{"missing", "unknown_gate", "bad_qubit", "extra_key"} {
		t.Run(ref, func(t *testing.T) {
			_, err := loader.Load(context.Background(), ref)
			require.Error(t, err)
			assert.Equal(t, errors.CodeSimulationFailed, errors.GetCode(err))
		})
	}

	_, err := loader.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = loader.Load(context.Background(), "bad_qubit")
	assert.ErrorIs(t, err, core.ErrQubitOutOfRange)
}

func TestWriteThenLoad(t *testing.T) {
	desc, err := Decode(bellTOML)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, Write(filepath.Join(dir, "copy.toml"), desc))
	loaded, err := NewLoader(dir).Load(context.Background(), "copy")
	require.NoError(t, err)
	assert.Equal(t, desc.Name, loaded.Name)
	assert.Equal(t, desc.Noise, loaded.Noise)
	require.Len(t, loaded.Operations, len(desc.Operations))
	for i, op := range desc.Operations {
		assert.Equal(t, op.Gate, loaded.Operations[i].Gate)
		assert.Equal(t, op.Qubits, loaded.Operations[i].Qubits)
	}
}

func TestBundledCircuitLoads(t *testing.T) {
	desc, err := NewLoader(filepath.Join("..", "..", "circuits")).Load(context.Background(), "swap_mitigate")
	require.NoError(t, err)
	assert.Equal(t, 5, desc.CountMitigationGates())
}
