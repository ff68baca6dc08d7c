package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goqem/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Generation.Workers)
	assert.Equal(t, 1000, cfg.Generation.ChunkSize)
	assert.Equal(t, 1000, cfg.Training.LogEvery)
	assert.Equal(t, 1e-3, cfg.Training.LR)
	assert.Equal(t, 1e-6, cfg.Training.SurrogateLR)
	assert.Equal(t, 1.0, cfg.Training.InitialBestMetric)
	assert.Equal(t, 0.5, cfg.Training.RandomFraction)
	assert.Equal(t, []int{64, 64}, cfg.Training.HiddenSizes)
	assert.Equal(t, "cpu", cfg.Runtime.Device)

	_, ok := cfg.Generation.NoiseOverride()
	assert.False(t, ok)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("QEM_SEED", "42")
	t.Setenv("QEM_WORKERS", "3")
	t.Setenv("QEM_NOISE_PROB", "0.01")
	t.Setenv("QEM_HIDDEN", "32, 16")
	t.Setenv("QEM_NUM_MITIGATES", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cfg.Runtime.Seed)
	assert.Equal(t, 3, cfg.Generation.Workers)
	assert.Equal(t, 12, cfg.Training.NumMitigates)
	assert.Equal(t, []int{32, 16}, cfg.Training.HiddenSizes)

	p, ok := cfg.Generation.NoiseOverride()
	assert.True(t, ok)
	assert.Equal(t, 0.01, p)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"gpu device", "QEM_DEVICE", "cuda"},
		{"zero workers", "QEM_WORKERS", "0"},
		{"tiny batch", "QEM_BATCH_SIZE", "1"},
		{"bad fraction", "QEM_RANDOM_FRACTION", "1.5"},
		{"bad distribution", "QEM_DISTRIBUTION", "cauchy"},
		{"bad hidden", "QEM_HIDDEN", "64,x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}
