package ports

import (
	"context"

	"goqem/domain/checkpoint"
	"goqem/domain/run"
)

// CheckpointRepository persists the best adversarial checkpoint and the pretrained surrogate.
// Save overwrites the previous checkpoint.
type CheckpointRepository interface {
	Save(ctx context.Context, cp *checkpoint.Checkpoint) error
	Load(ctx context.Context) (*checkpoint.Checkpoint, error)
	SaveSurrogate(ctx context.Context, w *checkpoint.SurrogateWeights) error
	LoadSurrogate(ctx context.Context) (*checkpoint.SurrogateWeights, error)
}

// HistoryReporter renders a finished run's per-epoch history
type HistoryReporter interface {
	Report(ctx context.Context, h *run.History) error
}

// MetricLog appends one "<train size> <best metric>" line per finished run
type MetricLog interface {
	AppendBest(ctx context.Context, kind run.Kind, trainSize int, best float64) error
}
