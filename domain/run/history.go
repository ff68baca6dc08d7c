// Package run records what a training run did epoch by epoch.
package run

import (
	"goqem/domain/core"
)

// Kind distinguishes adversarial training from surrogate pretraining
type Kind string

const (
	KindAdversarial Kind = "adversarial"
	KindPretrain    Kind = "pretrain"
)

// EpochRecord summarizes one epoch
type EpochRecord struct {
	Epoch int `json:"epoch"`
	Steps int `json:"steps"`

	// Adversarial runs
	LossD  float64 `json:"loss_d"`
	LossG  float64 `json:"loss_g"`
	DIdeal float64 `json:"d_ideal"`
	DNoisy float64 `json:"d_noisy"`
	DFake  float64 `json:"d_fake"`

	// Pretraining runs
	LossMSE float64 `json:"loss_mse"`

	Metric       float64 `json:"metric"`
	MetricMedian float64 `json:"metric_median"`
	MetricP95    float64 `json:"metric_p95"`
	MetricMax    float64 `json:"metric_max"`
	Checkpointed bool    `json:"checkpointed"`
	DurationMs   int64   `json:"duration_ms"`
}

// History is the full record of a run
type History struct {
	RunID      core.RunID     `json:"run_id"`
	Kind       Kind           `json:"kind"`
	StartedAt  core.Timestamp `json:"started_at"`
	TrainSize  int            `json:"train_size"`
	ValSize    int            `json:"val_size"`
	BestMetric float64        `json:"best_metric"`
	Epochs     []EpochRecord  `json:"epochs"`
}

// Improved returns the epochs that wrote a checkpoint
func (h *History) Improved() []int {
	var out []int
	for _, e := range h.Epochs {
		if e.Checkpointed {
			out = append(out, e.Epoch)
		}
	}
	return out
}
