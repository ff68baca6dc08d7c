package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"goqem/domain/checkpoint"
	"goqem/domain/core"
	"goqem/domain/run"
	"goqem/internal/errors"
)

// CheckpointStore implements ports.CheckpointRepository with one gob file per artifact
type CheckpointStore struct {
	checkpointPath string
	surrogatePath  string
}

// NewCheckpointStore writes the adversarial checkpoint and the pretrained surrogate to the given paths
func NewCheckpointStore(checkpointPath, surrogatePath string) *CheckpointStore {
	return &CheckpointStore{checkpointPath: checkpointPath, surrogatePath: surrogatePath}
}

type checkpointFile struct {
	Version    int
	Checkpoint *checkpoint.Checkpoint
}

type surrogateFile struct {
	Version int
	Weights *checkpoint.SurrogateWeights
}

// Save overwrites the checkpoint file
func (s *CheckpointStore) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeGob(s.checkpointPath, checkpointFile{Version: formatVersion, Checkpoint: cp}); err != nil {
		return err
	}
	log.Info().Str("component", "storage").Str("path", s.checkpointPath).Int("epoch", cp.Epoch).Float64("metric", cp.Metric).Msg("checkpoint saved")
	return nil
}

// Load reads the checkpoint file
func (s *CheckpointStore) Load(ctx context.Context) (*checkpoint.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var f checkpointFile
	if err := readGob(s.checkpointPath, core.ErrCheckpointMissing, &f); err != nil {
		return nil, err
	}
	if f.Version != formatVersion || f.Checkpoint == nil {
		return nil, errors.StorageError(nil, fmt.Sprintf("unsupported checkpoint %s", s.checkpointPath))
	}
	return f.Checkpoint, nil
}

// SaveSurrogate overwrites the surrogate weights file
func (s *CheckpointStore) SaveSurrogate(ctx context.Context, w *checkpoint.SurrogateWeights) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeGob(s.surrogatePath, surrogateFile{Version: formatVersion, Weights: w}); err != nil {
		return err
	}
	log.Info().Str("component", "storage").Str("path", s.surrogatePath).Int("epoch", w.Epoch).Float64("metric", w.Metric).Msg("surrogate weights saved")
	return nil
}

// LoadSurrogate reads the surrogate weights file
func (s *CheckpointStore) LoadSurrogate(ctx context.Context) (*checkpoint.SurrogateWeights, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var f surrogateFile
	if err := readGob(s.surrogatePath, core.ErrCheckpointMissing, &f); err != nil {
		return nil, err
	}
	if f.Version != formatVersion || f.Weights == nil {
		return nil, errors.StorageError(nil, fmt.Sprintf("unsupported surrogate weights %s", s.surrogatePath))
	}
	return f.Weights, nil
}

// MetricFile implements ports.MetricLog by appending to a text file per run kind in a directory
type MetricFile struct {
	dir string
}

// NewMetricFile appends into dir
func NewMetricFile(dir string) *MetricFile {
	return &MetricFile{dir: dir}
}

// FileName returns the metric file of a run kind
func FileName(kind run.Kind) string {
	if kind == run.KindPretrain {
		return "metric_surrogate.txt"
	}
	return "metric_gan.txt"
}

// AppendBest appends "<train size> <best>" with six decimals
func (m *MetricFile) AppendBest(ctx context.Context, kind run.Kind, trainSize int, best float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return errors.StorageError(err, "failed to create log directory")
	}
	path := filepath.Join(m.dir, FileName(kind))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.StorageError(err, fmt.Sprintf("failed to open %s", path))
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d %.6f\n", trainSize, best); err != nil {
		return errors.StorageError(err, fmt.Sprintf("failed to append to %s", path))
	}
	return nil
}
