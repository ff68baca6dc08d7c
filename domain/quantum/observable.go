package quantum

import (
	"fmt"
	"math/bits"

	"goqem/domain/core"
)

const (
	// HermitianTolerance bounds |O - O†| entry-wise
	HermitianTolerance = 1e-9
	// SpectrumTolerance is the slack allowed above 1 for the normalized max |eigenvalue|
	SpectrumTolerance = 1e-9
)

// NormalizeSpectrum divides a Hermitian matrix by its largest absolute eigenvalue so that the
// spectrum lies in [-1, 1]. The result is checked; numerical drift is reported, never clamped.
func NormalizeSpectrum(m *Matrix) (*Matrix, error) {
	if !m.IsHermitian(HermitianTolerance) {
		return nil, core.ErrNotHermitian
	}
	radius, err := SpectralRadius(m)
	if err != nil {
		return nil, err
	}
	if radius == 0 {
		return nil, fmt.Errorf("%w: zero matrix has no spectral scale", core.ErrSpectrumOutside)
	}
	out := m.Scale(complex(1/radius, 0))
	if err := CheckObservable(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckObservable verifies the observable invariant: Hermitian with max |eigenvalue| <= 1
func CheckObservable(m *Matrix) error {
	if !m.IsHermitian(HermitianTolerance) {
		return core.ErrNotHermitian
	}
	radius, err := SpectralRadius(m)
	if err != nil {
		return err
	}
	if radius > 1+SpectrumTolerance {
		return fmt.Errorf("%w: max |eigenvalue| = %.12f", core.ErrSpectrumOutside, radius)
	}
	return nil
}

// NumQubits returns log2(m.N) for power-of-two dimensions
func (m *Matrix) NumQubits() (int, error) {
	if m.N <= 0 || m.N&(m.N-1) != 0 {
		return 0, fmt.Errorf("%w: dimension %d is not a power of two", core.ErrShapeMismatch, m.N)
	}
	return bits.TrailingZeros(uint(m.N)), nil
}

// Embed places a k-qubit operator on qubits target..target+k-1 of an n-qubit register:
// I(2^target) ⊗ op ⊗ I(2^(n-target-k)). Qubit 0 is the most significant tensor factor.
func Embed(op *Matrix, numQubits, target int) (*Matrix, error) {
	k, err := op.NumQubits()
	if err != nil {
		return nil, err
	}
	if target < 0 || target+k > numQubits {
		return nil, fmt.Errorf("%w: %d-qubit operator at %d on %d qubits", core.ErrQubitOutOfRange, k, target, numQubits)
	}
	out := op
	if target > 0 {
		out = Kron(Identity(1<<target), out)
	}
	if rest := numQubits - target - k; rest > 0 {
		out = Kron(out, Identity(1<<rest))
	}
	return out, nil
}

// Features flattens a matrix into row-major (re, im) pairs, the network input encoding
func Features(m *Matrix) []float64 {
	out := make([]float64, 0, 2*len(m.Data))
	for _, v := range m.Data {
		out = append(out, real(v), imag(v))
	}
	return out
}

// FeatureWidth returns len(Features(m)) for an n×n matrix
func FeatureWidth(n int) int {
	return 2 * n * n
}
