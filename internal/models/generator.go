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

// Generator maps observable features to K rows of M action probabilities:
// features → hidden (ReLU) → K·M logits → softmax per group of M
type Generator struct {
	net   *nn.MLP
	shape Shape
}

// GeneratorPass holds the caches of one differentiable generator evaluation
type GeneratorPass struct {
	trace *nn.Trace
	// Probs is B×(K·M), every consecutive group of M entries a distribution
	Probs *mat.Dense
}

// NewGenerator creates a randomly initialized generator
func NewGenerator(shape Shape, hidden []int, r *rand.Rand) (*Generator, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	sizes := append([]int{shape.ObservableDim}, hidden...)
	sizes = append(sizes, shape.NumMitigates*shape.NumActions)
	net, err := nn.NewMLP("generator", sizes, nn.ReLU, r, nn.WithGroupSoftmax(shape.NumActions))
	if err != nil {
		return nil, err
	}
	return &Generator{net: net, shape: shape}, nil
}

// Shape returns the network dimensions
func (g *Generator) Shape() Shape { return g.shape }

// Network exposes the underlying MLP
func (g *Generator) Network() *nn.MLP { return g.net }

// Generate returns one K×M row-stochastic tensor per observable
func (g *Generator) Generate(obs []*quantum.Matrix) ([]mitigation.Probabilities, error) {
	f, err := EncodeObservables(obs, g.shape.ObservableDim)
	if err != nil {
		return nil, err
	}
	probs, err := g.GenerateBatch(f)
	if err != nil {
		return nil, err
	}
	return DecodeProbabilities(probs, g.shape.NumMitigates, g.shape.NumActions), nil
}

// GenerateBatch is Generate on an encoded batch, returning B×(K·M)
func (g *Generator) GenerateBatch(features *mat.Dense) (*mat.Dense, error) {
	if err := g.check(features); err != nil {
		return nil, err
	}
	return g.net.Infer(features)
}

// Forward evaluates the generator and keeps caches for Backward
func (g *Generator) Forward(features *mat.Dense) (*GeneratorPass, error) {
	if err := g.check(features); err != nil {
		return nil, err
	}
	t, err := g.net.Forward(features)
	if err != nil {
		return nil, err
	}
	return &GeneratorPass{trace: t, Probs: t.Output}, nil
}

// Backward accumulates generator gradients for dL/dprobabilities
func (g *Generator) Backward(pass *GeneratorPass, dProbs *mat.Dense) error {
	_, err := g.net.Backward(pass.trace, dProbs)
	return err
}

// Snapshot exports the weights
func (g *Generator) Snapshot() []checkpoint.Tensor { return g.net.Snapshot() }

// Restore loads weights exported by Snapshot
func (g *Generator) Restore(t []checkpoint.Tensor) error { return g.net.Restore(t) }

func (g *Generator) check(features *mat.Dense) error {
	if _, c := features.Dims(); c != g.shape.ObservableDim {
		return fmt.Errorf("generator observables: %w", core.NewShapeError("width", g.shape.ObservableDim, c))
	}
	return nil
}
