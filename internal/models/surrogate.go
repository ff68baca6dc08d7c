package models

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"goqem/domain/checkpoint"
	"goqem/domain/core"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/internal/nn"
)

// Surrogate predicts the expectation value the circuit would produce when its mitigation slots
// follow the given probabilities: [K·M probabilities, observable features] → hidden (ReLU) → 1
type Surrogate struct {
	net    *nn.MLP
	shape  Shape
	hidden []int
}

// SurrogatePass holds the caches of one differentiable surrogate evaluation
type SurrogatePass struct {
	trace  *nn.Trace
	Output []float64
}

// NewSurrogate creates a randomly initialized surrogate
func NewSurrogate(shape Shape, hidden []int, r *rand.Rand) (*Surrogate, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	sizes := append([]int{shape.NumMitigates*shape.NumActions + shape.ObservableDim}, hidden...)
	sizes = append(sizes, 1)
	net, err := nn.NewMLP("surrogate", sizes, nn.ReLU, r)
	if err != nil {
		return nil, err
	}
	return &Surrogate{net: net, shape: shape, hidden: append([]int(nil), hidden...)}, nil
}

// Shape returns the network dimensions
func (s *Surrogate) Shape() Shape { return s.shape }

// Hidden returns the hidden layer widths
func (s *Surrogate) Hidden() []int { return s.hidden }

// Network exposes the underlying MLP
func (s *Surrogate) Network() *nn.MLP { return s.net }

// Predict returns expectation values without keeping caches
func (s *Surrogate) Predict(probs []mitigation.Probabilities, obs []*quantum.Matrix) ([]float64, error) {
	if len(probs) != len(obs) {
		return nil, core.NewShapeError("surrogate batch", len(obs), len(probs))
	}
	p, err := EncodeProbabilities(probs, s.shape.NumMitigates, s.shape.NumActions)
	if err != nil {
		return nil, err
	}
	f, err := EncodeObservables(obs, s.shape.ObservableDim)
	if err != nil {
		return nil, err
	}
	return s.PredictBatch(p, f)
}

// PredictBatch is Predict on already encoded batches
func (s *Surrogate) PredictBatch(probs, features *mat.Dense) ([]float64, error) {
	x, err := s.input(probs, features)
	if err != nil {
		return nil, err
	}
	out, err := s.net.Infer(x)
	if err != nil {
		return nil, err
	}
	return nn.Column(out, 0), nil
}

// Forward evaluates the surrogate and keeps caches for Backward
func (s *Surrogate) Forward(probs, features *mat.Dense) (*SurrogatePass, error) {
	x, err := s.input(probs, features)
	if err != nil {
		return nil, err
	}
	t, err := s.net.Forward(x)
	if err != nil {
		return nil, err
	}
	return &SurrogatePass{trace: t, Output: nn.Column(t.Output, 0)}, nil
}

// Backward accumulates surrogate gradients for dL/doutput and returns dL/dprobabilities
func (s *Surrogate) Backward(pass *SurrogatePass, dOut []float64) (*mat.Dense, error) {
	dx, err := s.net.Backward(pass.trace, columnVector(dOut))
	if err != nil {
		return nil, err
	}
	rows, _ := dx.Dims()
	width := s.shape.NumMitigates * s.shape.NumActions
	return mat.DenseCopyOf(dx.Slice(0, rows, 0, width)), nil
}

// Snapshot exports the weights
func (s *Surrogate) Snapshot() []checkpoint.Tensor { return s.net.Snapshot() }

// Restore loads weights exported by Snapshot
func (s *Surrogate) Restore(t []checkpoint.Tensor) error { return s.net.Restore(t) }

func (s *Surrogate) input(probs, features *mat.Dense) (*mat.Dense, error) {
	pr, pc := probs.Dims()
	fr, fc := features.Dims()
	if pr != fr {
		return nil, core.NewShapeError("surrogate batch", fr, pr)
	}
	if want := s.shape.NumMitigates * s.shape.NumActions; pc != want {
		return nil, fmt.Errorf("surrogate probabilities: %w", core.NewShapeError("width", want, pc))
	}
	if fc != s.shape.ObservableDim {
		return nil, fmt.Errorf("surrogate observables: %w", core.NewShapeError("width", s.shape.ObservableDim, fc))
	}
	return concatColumns(probs, features), nil
}
