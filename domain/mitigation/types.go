// Package mitigation holds the data schema shared by generation and training: training triples,
// surrogate samples and mitigation-probability tensors.
package mitigation

import (
	"fmt"
	"math"

	"goqem/domain/core"
	"goqem/domain/quantum"
)

// ExpectationDecimals is the rounding applied to simulated expectation values
const ExpectationDecimals = 8

// RoundExpectation rounds to ExpectationDecimals decimal digits
func RoundExpectation(v float64) float64 {
	scale := math.Pow(10, ExpectationDecimals)
	return math.Round(v*scale) / scale
}

// Triple is one training example: an observable with its noisy and ideal expectation values
type Triple struct {
	Observable *quantum.Matrix `json:"observable"`
	Noisy      float64         `json:"noisy"`
	Ideal      float64         `json:"ideal"`
}

// SurrogateSample is one surrogate regression example: mitigation probabilities, observable and
// the noisy expectation value of the circuit whose mitigation slots follow those probabilities
type SurrogateSample struct {
	Probabilities Probabilities   `json:"probabilities"`
	Observable    *quantum.Matrix `json:"observable"`
	Expectation   float64         `json:"expectation"`
}

// Probabilities is a K×M row-stochastic tensor, one categorical distribution per mitigation gate
type Probabilities struct {
	Gates   int       `json:"gates"`
	Actions int       `json:"actions"`
	Data    []float64 `json:"data"`
}

// NewProbabilities allocates a zero K×M tensor
func NewProbabilities(gates, actions int) Probabilities {
	return Probabilities{Gates: gates, Actions: actions, Data: make([]float64, gates*actions)}
}

// ProbabilitiesFrom wraps a flat row-major slice
func ProbabilitiesFrom(gates, actions int, data []float64) (Probabilities, error) {
	if len(data) != gates*actions {
		return Probabilities{}, core.NewShapeError("probability tensor", gates*actions, len(data))
	}
	out := NewProbabilities(gates, actions)
	copy(out.Data, data)
	return out, nil
}

// Row returns the distribution of gate k (shares storage)
func (p Probabilities) Row(k int) []float64 {
	return p.Data[k*p.Actions : (k+1)*p.Actions]
}

// At returns the probability of action a at gate k
func (p Probabilities) At(k, a int) float64 {
	return p.Data[k*p.Actions+a]
}

// Validate checks that every row is a distribution within tol
func (p Probabilities) Validate(tol float64) error {
	if len(p.Data) != p.Gates*p.Actions {
		return core.NewShapeError("probability tensor", p.Gates*p.Actions, len(p.Data))
	}
	for k := 0; k < p.Gates; k++ {
		sum := 0.0
		for _, v := range p.Row(k) {
			if v < 0 || math.IsNaN(v) {
				return fmt.Errorf("%w: gate %d has entry %v", core.ErrNotStochastic, k, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > tol {
			return fmt.Errorf("%w: gate %d sums to %.12f", core.ErrNotStochastic, k, sum)
		}
	}
	return nil
}

// Fingerprint hashes a triple dataset bit-exactly; checkpoints record it to tie weights to data
func Fingerprint(triples []Triple) core.Hash {
	h := core.NewHasher().Int(len(triples))
	for _, t := range triples {
		h.Int(t.Observable.N)
		for _, v := range t.Observable.Data {
			h.Complex(v)
		}
		h.Float(t.Noisy).Float(t.Ideal)
	}
	return h.Sum()
}

// FingerprintSamples hashes a surrogate dataset bit-exactly
func FingerprintSamples(samples []SurrogateSample) core.Hash {
	h := core.NewHasher().Int(len(samples))
	for _, s := range samples {
		h.Int(s.Probabilities.Gates).Int(s.Probabilities.Actions)
		for _, v := range s.Probabilities.Data {
			h.Float(v)
		}
		h.Int(s.Observable.N)
		for _, v := range s.Observable.Data {
			h.Complex(v)
		}
		h.Float(s.Expectation)
	}
	return h.Sum()
}
