package models

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"goqem/domain/checkpoint"
	"goqem/domain/core"
	"goqem/domain/quantum"
	"goqem/internal/nn"
)

// Discriminator scores how likely an expectation value is the ideal one for its observable:
// [expectation, observable features] → hidden (LeakyReLU) → logit → sigmoid
type Discriminator struct {
	net   *nn.MLP
	shape Shape
}

// DiscriminatorPass holds the caches of one differentiable discriminator evaluation
type DiscriminatorPass struct {
	trace  *nn.Trace
	Logits []float64
	Scores []float64
}

// NewDiscriminator creates a randomly initialized discriminator
func NewDiscriminator(shape Shape, hidden []int, r *rand.Rand) (*Discriminator, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	sizes := append([]int{1 + shape.ObservableDim}, hidden...)
	sizes = append(sizes, 1)
	net, err := nn.NewMLP("discriminator", sizes, nn.LeakyReLU, r)
	if err != nil {
		return nil, err
	}
	return &Discriminator{net: net, shape: shape}, nil
}

// Shape returns the network dimensions
func (d *Discriminator) Shape() Shape { return d.shape }

// Network exposes the underlying MLP
func (d *Discriminator) Network() *nn.MLP { return d.net }

// Score returns D(exp, obs) in [0, 1] without keeping caches
func (d *Discriminator) Score(exp []float64, obs []*quantum.Matrix) ([]float64, error) {
	f, err := EncodeObservables(obs, d.shape.ObservableDim)
	if err != nil {
		return nil, err
	}
	return d.ScoreBatch(exp, f)
}

// ScoreBatch is Score on encoded observables
func (d *Discriminator) ScoreBatch(exp []float64, features *mat.Dense) ([]float64, error) {
	x, err := d.input(exp, features)
	if err != nil {
		return nil, err
	}
	logits, err := d.net.Infer(x)
	if err != nil {
		return nil, err
	}
	return sigmoid(nn.Column(logits, 0)), nil
}

// Forward evaluates D and keeps caches for Backward and ExpectationGrad
func (d *Discriminator) Forward(exp []float64, features *mat.Dense) (*DiscriminatorPass, error) {
	x, err := d.input(exp, features)
	if err != nil {
		return nil, err
	}
	t, err := d.net.Forward(x)
	if err != nil {
		return nil, err
	}
	logits := nn.Column(t.Output, 0)
	return &DiscriminatorPass{trace: t, Logits: logits, Scores: sigmoid(logits)}, nil
}

// Backward accumulates discriminator gradients for dL/dlogit
func (d *Discriminator) Backward(pass *DiscriminatorPass, dLogits []float64) error {
	_, err := d.net.Backward(pass.trace, columnVector(dLogits))
	return err
}

// ExpectationGrad returns dL/dexpectation for dL/dlogit, leaving D's gradients untouched
func (d *Discriminator) ExpectationGrad(pass *DiscriminatorPass, dLogits []float64) ([]float64, error) {
	dx, err := d.net.InputGrad(pass.trace, columnVector(dLogits))
	if err != nil {
		return nil, err
	}
	return nn.Column(dx, 0), nil
}

// Snapshot exports the weights
func (d *Discriminator) Snapshot() []checkpoint.Tensor { return d.net.Snapshot() }

// Restore loads weights exported by Snapshot
func (d *Discriminator) Restore(t []checkpoint.Tensor) error { return d.net.Restore(t) }

func (d *Discriminator) input(exp []float64, features *mat.Dense) (*mat.Dense, error) {
	rows, c := features.Dims()
	if len(exp) != rows {
		return nil, core.NewShapeError("discriminator batch", rows, len(exp))
	}
	if c != d.shape.ObservableDim {
		return nil, fmt.Errorf("discriminator observables: %w", core.NewShapeError("width", d.shape.ObservableDim, c))
	}
	return concatColumns(columnVector(exp), features), nil
}

func sigmoid(logits []float64) []float64 {
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = nn.Sigmoid(v)
	}
	return out
}
