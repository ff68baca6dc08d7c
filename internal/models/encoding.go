// Package models defines the three networks of adversarial mitigation training: the surrogate S
// predicting expectation values from mitigation probabilities, the generator G proposing those
// probabilities, and the discriminator D telling ideal expectations from everything else.
//
// Every model exposes two paths. The value path (Predict, Generate, Score) returns plain slices and
// keeps no caches. The Forward/Backward path keeps caches so gradients can flow across models.
package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"goqem/domain/checkpoint"
	"goqem/domain/core"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
)

// ObservableDim is the feature width of a single-qubit observable
var ObservableDim = quantum.FeatureWidth(2)

// Shape describes the network dimensions shared by S, G and D
type Shape = checkpoint.NetworkShape

// DefaultShape returns the shape for K mitigation gates with M actions on 2×2 observables
func DefaultShape(gates, actions int) Shape {
	return Shape{NumMitigates: gates, NumActions: actions, ObservableDim: ObservableDim}
}

func validateShape(s Shape) error {
	if s.NumMitigates < 1 || s.NumActions < 1 || s.ObservableDim < 1 {
		return fmt.Errorf("%w: invalid network shape %+v", core.ErrShapeMismatch, s)
	}
	return nil
}

// EncodeObservables stacks observable features into a B×width batch
func EncodeObservables(obs []*quantum.Matrix, width int) (*mat.Dense, error) {
	if len(obs) == 0 {
		return nil, core.ErrEmptyDataset
	}
	data := make([]float64, 0, len(obs)*width)
	for i, o := range obs {
		f := quantum.Features(o)
		if len(f) != width {
			return nil, fmt.Errorf("observable %d: %w", i, core.NewShapeError("feature width", width, len(f)))
		}
		data = append(data, f...)
	}
	return mat.NewDense(len(obs), width, data), nil
}

// EncodeProbabilities stacks K×M tensors into a B×(K·M) batch
func EncodeProbabilities(probs []mitigation.Probabilities, gates, actions int) (*mat.Dense, error) {
	if len(probs) == 0 {
		return nil, core.ErrEmptyDataset
	}
	width := gates * actions
	data := make([]float64, 0, len(probs)*width)
	for i, p := range probs {
		if p.Gates != gates || p.Actions != actions || len(p.Data) != width {
			return nil, fmt.Errorf("probabilities %d: %w: got %dx%d, want %dx%d",
				i, core.ErrShapeMismatch, p.Gates, p.Actions, gates, actions)
		}
		data = append(data, p.Data...)
	}
	return mat.NewDense(len(probs), width, data), nil
}

// DecodeProbabilities splits a B×(K·M) batch into tensors
func DecodeProbabilities(m *mat.Dense, gates, actions int) []mitigation.Probabilities {
	rows, _ := m.Dims()
	out := make([]mitigation.Probabilities, rows)
	for i := 0; i < rows; i++ {
		p := mitigation.NewProbabilities(gates, actions)
		copy(p.Data, m.RawRowView(i))
		out[i] = p
	}
	return out
}

func concatColumns(a, b *mat.Dense) *mat.Dense {
	rows, ca := a.Dims()
	_, cb := b.Dims()
	out := mat.NewDense(rows, ca+cb, nil)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		copy(row, a.RawRowView(i))
		copy(row[ca:], b.RawRowView(i))
	}
	return out
}

func columnVector(v []float64) *mat.Dense {
	return mat.NewDense(len(v), 1, append([]float64(nil), v...))
}
