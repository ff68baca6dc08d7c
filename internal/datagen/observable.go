// Package datagen manufactures training data by simulation: (observable, noisy, ideal) triples for
// adversarial training and (probabilities, observable, expectation) samples for surrogate pretraining.
package datagen

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"goqem/domain/quantum"
	"goqem/internal/errors"
)

// Distribution of the real and imaginary parts of a random matrix entry
type Distribution string

const (
	// Gaussian draws each part from N(0, 1/2), a unit-variance complex normal entry
	Gaussian Distribution = "gaussian"
	// Uniform draws each part from [-1, 1)
	Uniform Distribution = "uniform"
)

// ObservableKind selects how a random matrix A becomes Hermitian
type ObservableKind string

const (
	// Hermitian builds (A† + A)/2
	Hermitian ObservableKind = "hermitian"
	// PSD builds A†A
	PSD ObservableKind = "psd"
)

// ObservableSampler draws random spectrally normalized observables
type ObservableSampler struct {
	Distribution Distribution
	Kind         ObservableKind
	// Dim is the matrix dimension, 2 for single-qubit observables
	Dim int
}

// DefaultSampler matches the training-time random observables: uniform entries, (A† + A)/2
func DefaultSampler() ObservableSampler {
	return ObservableSampler{Distribution: Uniform, Kind: Hermitian, Dim: 2}
}

// SurrogateSampler matches the surrogate pretraining data: Gaussian entries, A†A
func SurrogateSampler() ObservableSampler {
	return ObservableSampler{Distribution: Gaussian, Kind: PSD, Dim: 2}
}

// Validate checks the sampler settings
func (s ObservableSampler) Validate() error {
	switch s.Distribution {
	case Gaussian, Uniform:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown distribution %q", s.Distribution))
	}
	switch s.Kind {
	case Hermitian, PSD:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown observable kind %q", s.Kind))
	}
	if s.Dim < 1 {
		return errors.ConfigInvalid("observable dimension must be positive")
	}
	return nil
}

// Sample draws one observable with max |eigenvalue| = 1. A result that fails the observable
// invariant is a precondition violation.
func (s ObservableSampler) Sample(r *rand.Rand) (*quantum.Matrix, error) {
	var part interface{ Rand() float64 }
	if s.Distribution == Uniform {
		part = distuv.Uniform{Min: -1, Max: 1, Src: r}
	} else {
		part = distuv.Normal{Mu: 0, Sigma: math.Sqrt(0.5), Src: r}
	}

	a := quantum.NewMatrix(s.Dim)
	for i := range a.Data {
		a.Data[i] = complex(part.Rand(), part.Rand())
	}

	var h *quantum.Matrix
	if s.Kind == PSD {
		h = a.ConjTranspose().Mul(a)
	} else {
		h = a.ConjTranspose().Add(a).Scale(0.5)
	}
	obs, err := quantum.NormalizeSpectrum(h)
	if err != nil {
		return nil, errors.Precondition(err, "random observable violates the observable invariant")
	}
	return obs, nil
}

// SampleN draws n observables from one stream
func (s ObservableSampler) SampleN(r *rand.Rand, n int) ([]*quantum.Matrix, error) {
	out := make([]*quantum.Matrix, n)
	for i := range out {
		obs, err := s.Sample(r)
		if err != nil {
			return nil, err
		}
		out[i] = obs
	}
	return out, nil
}
