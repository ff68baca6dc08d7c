package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goqem/domain/core"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/internal/errors"
	"goqem/ports"
)

var (
	_ ports.TripleRepository          = (*Store)(nil)
	_ ports.SurrogateSampleRepository = (*Store)(nil)
	_ ports.DatasetCatalog            = (*Store)(nil)
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), "sqlite3://"+filepath.Join(t.TempDir(), "qem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDriverFor(t *testing.T) {
	tests := []struct {
		dsn, driver, source string
	}{
		{"postgres://u@h/db", "postgres", "postgres://u@h/db"},
		{"postgresql://u@h/db", "postgres", "postgresql://u@h/db"},
		{"sqlite3:///tmp/x.db", "sqlite3", "/tmp/x.db"},
		{"sqlite://x.db", "sqlite3", "x.db"},
		{"x.db", "sqlite3", "x.db"},
	}
	for _, tt := range tests {
		d, s := DriverFor(tt.dsn)
		assert.Equal(t, tt.driver, d, tt.dsn)
		assert.Equal(t, tt.source, s, tt.dsn)
	}
	assert.True(t, IsDSN("sqlite://x.db"))
	assert.False(t, IsDSN("data/train.gob"))
}

func TestTriplesRoundTripExactly(t *testing.T) {
	ctx := context.Background()
	store := openTemp(t)
	triples := []mitigation.Triple{
		{Observable: quantum.MustMatrix([][]complex128{{0.1, 0.3 - 0.7i}, {0.3 + 0.7i, -1.0 / 3}}), Noisy: 0.12345678, Ideal: -0.30000001},
		{Observable: quantum.MustMatrix([][]complex128{{1, 0}, {0, -1}}), Noisy: 1e-8, Ideal: 1},
	}

	require.NoError(t, store.SaveTriples(ctx, "train", triples))
	loaded, err := store.LoadTriples(ctx, "train")
	require.NoError(t, err)
	assert.Equal(t, triples, loaded)

	// replacing keeps only the new rows
	require.NoError(t, store.SaveTriples(ctx, "train", triples[:1]))
	loaded, err = store.LoadTriples(ctx, "train")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	info, err := store.Describe(ctx, "train")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Size)
	assert.Equal(t, KindTriples, info.Kind)
	assert.Equal(t, mitigation.Fingerprint(triples[:1]), info.Fingerprint)
}

func TestSamplesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTemp(t)
	probs, err := mitigation.ProbabilitiesFrom(2, 4, []float64{0.1, 0.2, 0.3, 0.4, 0.25, 0.25, 0.25, 0.25})
	require.NoError(t, err)
	samples := []mitigation.SurrogateSample{{Probabilities: probs, Observable: quantum.Identity(2), Expectation: 0.7071067811865476}}

	require.NoError(t, store.SaveSamples(ctx, "pre", samples))
	loaded, err := store.LoadSamples(ctx, "pre")
	require.NoError(t, err)
	assert.Equal(t, samples, loaded)

	_, err = store.LoadTriples(ctx, "pre")
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestMissingDataset(t *testing.T) {
	_, err := openTemp(t).LoadTriples(context.Background(), "absent")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrDatasetNotFound)
}
