// Package checkpoint defines the persisted form of network parameters and optimizer settings.
package checkpoint

import (
	"goqem/domain/core"
)

// Tensor is a named row-major float64 parameter block
type Tensor struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// ParamGroupState records one Adam parameter group
type ParamGroupState struct {
	Name         string
	LearningRate float64
	Params       []string
}

// OptimizerState is the Adam configuration and update count. Moment estimates are not persisted;
// a restored optimizer starts them from zero.
type OptimizerState struct {
	Step   int
	Beta1  float64
	Beta2  float64
	Eps    float64
	Groups []ParamGroupState
}

// NetworkShape records the dimensions that weights are only valid for
type NetworkShape struct {
	NumMitigates  int
	NumActions    int
	ObservableDim int
}

// Checkpoint is the best-so-far adversarial training state
type Checkpoint struct {
	RunID         core.RunID
	Epoch         int
	Metric        float64
	DatasetHash   core.Hash
	CreatedAt     core.Timestamp
	Shape         NetworkShape
	Generator     []Tensor
	Surrogate     []Tensor
	Discriminator []Tensor
	OptimizerG    OptimizerState
	OptimizerD    OptimizerState
}

// SurrogateWeights is the pretrained surrogate loaded at the start of adversarial training
type SurrogateWeights struct {
	RunID     core.RunID
	Epoch     int
	Metric    float64
	CreatedAt core.Timestamp
	Shape     NetworkShape
	Hidden    []int
	Tensors   []Tensor
}
