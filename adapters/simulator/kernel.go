package simulator

import (
	"math/cmplx"

	"goqem/domain/quantum"
)

// view addresses 2^n amplitudes inside a larger buffer: amplitude i lives at data[offset+i*stride].
// A state vector is offset 0, stride 1. Density-matrix column c is offset c, stride dim; row r is
// offset r*dim, stride 1.
type view struct {
	data   []complex128
	offset int
	stride int
}

// applyGate multiplies the amplitudes of the given qubits by u (conjugated entries when conj is set).
// qubits[0] is the most significant factor of u; qubit 0 is the most significant bit of the index.
func applyGate(v view, numQubits int, u *quantum.Matrix, qubits []int, conj bool) {
	k := len(qubits)
	d := 1 << k
	masks := make([]int, k)
	all := 0
	for i, q := range qubits {
		masks[i] = 1 << (numQubits - 1 - q)
		all |= masks[i]
	}

	idx := make([]int, d)
	buf := make([]complex128, d)
	for base := 0; base < 1<<numQubits; base++ {
		if base&all != 0 {
			continue
		}
		for j := 0; j < d; j++ {
			i := base
			for b := 0; b < k; b++ {
				if j&(1<<(k-1-b)) != 0 {
					i |= masks[b]
				}
			}
			idx[j] = i
			buf[j] = v.data[v.offset+i*v.stride]
		}
		for r := 0; r < d; r++ {
			var acc complex128
			for c := 0; c < d; c++ {
				g := u.Data[r*d+c]
				if conj {
					g = cmplx.Conj(g)
				}
				acc += g * buf[c]
			}
			v.data[v.offset+idx[r]*v.stride] = acc
		}
	}
}

// applyToState evolves a state vector in place
func applyToState(s quantum.State, numQubits int, u *quantum.Matrix, qubits []int) {
	applyGate(view{data: s, stride: 1}, numQubits, u, qubits, false)
}

// conjugate replaces rho with U rho U† in place
func conjugate(rho *quantum.Matrix, numQubits int, u *quantum.Matrix, qubits []int) {
	dim := rho.N
	for c := 0; c < dim; c++ {
		applyGate(view{data: rho.Data, offset: c, stride: dim}, numQubits, u, qubits, false)
	}
	for r := 0; r < dim; r++ {
		applyGate(view{data: rho.Data, offset: r * dim, stride: 1}, numQubits, u, qubits, true)
	}
}

// conjugated returns U rho U† without modifying rho
func conjugated(rho *quantum.Matrix, numQubits int, u *quantum.Matrix, qubits []int) *quantum.Matrix {
	out := rho.Clone()
	conjugate(out, numQubits, u, qubits)
	return out
}

// accumulate adds w·src into dst
func accumulate(dst, src *quantum.Matrix, w float64) {
	cw := complex(w, 0)
	for i, v := range src.Data {
		dst.Data[i] += cw * v
	}
}
