package quantum

import (
	"gonum.org/v1/gonum/blas/cblas128"
)

// State is a pure state vector over 2^n amplitudes
type State []complex128

// ZeroState returns |0...0> on n qubits
func ZeroState(numQubits int) State {
	s := make(State, 1<<numQubits)
	s[0] = 1
	return s
}

// Clone returns a copy of the amplitudes
func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// Expectation returns Re <ψ|O|ψ>
func (s State) Expectation(o *Matrix) float64 {
	ov := o.MulVec(s)
	v := cblas128.Dotc(
		cblas128.Vector{N: len(s), Inc: 1, Data: s},
		cblas128.Vector{N: len(ov), Inc: 1, Data: ov},
	)
	return real(v)
}

// Density returns |ψ><ψ|
func (s State) Density() *Matrix {
	n := len(s)
	m := NewMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Data[i*n+j] = s[i] * complexConj(s[j])
		}
	}
	return m
}

// DensityExpectation returns Re Tr(O ρ)
func DensityExpectation(rho, o *Matrix) float64 {
	n := rho.N
	var tr complex128
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			tr += o.Data[i*n+k] * rho.Data[k*n+i]
		}
	}
	return real(tr)
}

func complexConj(v complex128) complex128 {
	return complex(real(v), -imag(v))
}
