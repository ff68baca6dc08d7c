package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goqem/adapters/storage"
	"goqem/internal/errors"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestRejectsUnsupportedDevice(t *testing.T) {
	err := execute(t, "inspect", "train", "--device", "cuda", "--logdir", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestGenTriplesWritesDataset(t *testing.T) {
	dir := t.TempDir()
	err := execute(t, "gen-triples",
		"--circuit", filepath.Join("..", "..", "circuits", "swap_mitigate.toml"),
		"--out", "train", "-n", "25", "--chunk-size", "10", "--workers", "2",
		"--store", dir, "--logdir", dir, "--log-level", "warn")
	require.NoError(t, err)

	triples, err := storage.NewDatasetStore(dir).LoadTriples(context.Background(), "train")
	require.NoError(t, err)
	assert.Len(t, triples, 25)

	require.NoError(t, execute(t, "inspect", "train", "--store", dir, "--logdir", dir, "--log-level", "warn"))
}

func TestGenerationFlagValidation(t *testing.T) {
	dir := t.TempDir()
	err := execute(t, "gen-surrogate",
		"--circuit", filepath.Join("..", "..", "circuits", "swap_mitigate.toml"),
		"--out", "s", "--workers", "0", "--store", dir, "--logdir", dir)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
