// Package quantum holds the dense complex linear algebra the pipeline needs: square matrices,
// observables, pure states and density matrices.
package quantum

import (
	"encoding/json"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/mat"

	"goqem/domain/core"
)

// Matrix is a dense square complex matrix stored row-major.
// Fields are exported so the type survives gob encoding unchanged.
type Matrix struct {
	N    int
	Data []complex128
}

type matrixJSON struct {
	N  int       `json:"n"`
	Re []float64 `json:"re"`
	Im []float64 `json:"im"`
}

// MarshalJSON encodes real and imaginary parts as separate row-major arrays
func (m *Matrix) MarshalJSON() ([]byte, error) {
	out := matrixJSON{N: m.N, Re: make([]float64, len(m.Data)), Im: make([]float64, len(m.Data))}
	for i, v := range m.Data {
		out.Re[i], out.Im[i] = real(v), imag(v)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the MarshalJSON layout
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var in matrixJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if len(in.Re) != in.N*in.N || len(in.Im) != in.N*in.N {
		return core.NewShapeError("matrix entries", in.N*in.N, len(in.Re))
	}
	m.N = in.N
	m.Data = make([]complex128, len(in.Re))
	for i := range in.Re {
		m.Data[i] = complex(in.Re[i], in.Im[i])
	}
	return nil
}

// NewMatrix allocates an n×n zero matrix
func NewMatrix(n int) *Matrix {
	return &Matrix{N: n, Data: make([]complex128, n*n)}
}

// MatrixFrom builds a matrix from rows; all rows must have len(rows) entries
func MatrixFrom(rows [][]complex128) (*Matrix, error) {
	n := len(rows)
	m := NewMatrix(n)
	for i, row := range rows {
		if len(row) != n {
			return nil, core.NewShapeError(fmt.Sprintf("row %d", i), n, len(row))
		}
		copy(m.Data[i*n:(i+1)*n], row)
	}
	return m, nil
}

// MustMatrix is MatrixFrom for literals known to be square
func MustMatrix(rows [][]complex128) *Matrix {
	m, err := MatrixFrom(rows)
	if err != nil {
		panic(err)
	}
	return m
}

// Identity returns the n×n identity
func Identity(n int) *Matrix {
	m := NewMatrix(n)
	for i := 0; i < n; i++ {
		m.Data[i*n+i] = 1
	}
	return m
}

// At returns entry (i, j)
func (m *Matrix) At(i, j int) complex128 {
	return m.Data[i*m.N+j]
}

// Set assigns entry (i, j)
func (m *Matrix) Set(i, j int, v complex128) {
	m.Data[i*m.N+j] = v
}

// Clone returns a deep copy
func (m *Matrix) Clone() *Matrix {
	c := NewMatrix(m.N)
	copy(c.Data, m.Data)
	return c
}

// ConjTranspose returns m†
func (m *Matrix) ConjTranspose() *Matrix {
	c := NewMatrix(m.N)
	for i := 0; i < m.N; i++ {
		for j := 0; j < m.N; j++ {
			c.Data[j*m.N+i] = cmplx.Conj(m.Data[i*m.N+j])
		}
	}
	return c
}

func (m *Matrix) general() cblas128.General {
	return cblas128.General{Rows: m.N, Cols: m.N, Stride: m.N, Data: m.Data}
}

// Mul returns m·b
func (m *Matrix) Mul(b *Matrix) *Matrix {
	out := NewMatrix(m.N)
	cblas128.Gemm(blas.NoTrans, blas.NoTrans, 1, m.general(), b.general(), 0, out.general())
	return out
}

// MulConjTrans returns m·b†
func (m *Matrix) MulConjTrans(b *Matrix) *Matrix {
	out := NewMatrix(m.N)
	cblas128.Gemm(blas.NoTrans, blas.ConjTrans, 1, m.general(), b.general(), 0, out.general())
	return out
}

// MulVec returns m·v
func (m *Matrix) MulVec(v []complex128) []complex128 {
	out := make([]complex128, m.N)
	cblas128.Gemv(blas.NoTrans, 1, m.general(),
		cblas128.Vector{N: m.N, Inc: 1, Data: v}, 0,
		cblas128.Vector{N: m.N, Inc: 1, Data: out})
	return out
}

// Add returns m+b
func (m *Matrix) Add(b *Matrix) *Matrix {
	out := m.Clone()
	for i := range out.Data {
		out.Data[i] += b.Data[i]
	}
	return out
}

// Scale returns s·m
func (m *Matrix) Scale(s complex128) *Matrix {
	out := m.Clone()
	for i := range out.Data {
		out.Data[i] *= s
	}
	return out
}

// Trace returns the sum of the diagonal
func (m *Matrix) Trace() complex128 {
	var tr complex128
	for i := 0; i < m.N; i++ {
		tr += m.Data[i*m.N+i]
	}
	return tr
}

// IsHermitian reports whether |m_ij - conj(m_ji)| <= tol for all entries
func (m *Matrix) IsHermitian(tol float64) bool {
	for i := 0; i < m.N; i++ {
		for j := i; j < m.N; j++ {
			if cmplx.Abs(m.Data[i*m.N+j]-cmplx.Conj(m.Data[j*m.N+i])) > tol {
				return false
			}
		}
	}
	return true
}

// ApproxEqual compares entry-wise within tol
func (m *Matrix) ApproxEqual(b *Matrix, tol float64) bool {
	if m.N != b.N {
		return false
	}
	for i := range m.Data {
		if cmplx.Abs(m.Data[i]-b.Data[i]) > tol {
			return false
		}
	}
	return true
}

// Kron returns the Kronecker product a⊗b
func Kron(a, b *Matrix) *Matrix {
	n := a.N * b.N
	out := NewMatrix(n)
	for ai := 0; ai < a.N; ai++ {
		for aj := 0; aj < a.N; aj++ {
			av := a.Data[ai*a.N+aj]
			if av == 0 {
				continue
			}
			for bi := 0; bi < b.N; bi++ {
				row := (ai*b.N + bi) * n
				for bj := 0; bj < b.N; bj++ {
					out.Data[row+aj*b.N+bj] = av * b.Data[bi*b.N+bj]
				}
			}
		}
	}
	return out
}

// HermitianEigenvalues returns the eigenvalues of a Hermitian matrix in ascending order.
//
// H = A + iB is mapped to the real symmetric [[A, -B], [B, A]], whose spectrum is the
// spectrum of H with every eigenvalue doubled; every second value is kept.
func HermitianEigenvalues(m *Matrix) ([]float64, error) {
	n := m.N
	sym := mat.NewSymDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := m.Data[i*n+j]
			re, im := real(v), imag(v)
			sym.SetSym(i, j, re)
			sym.SetSym(i+n, j+n, re)
			sym.SetSym(i, j+n, -im)
			sym.SetSym(j, i+n, im)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return nil, fmt.Errorf("eigen decomposition did not converge for %dx%d matrix", n, n)
	}
	doubled := eig.Values(nil)
	values := make([]float64, n)
	for i := range values {
		values[i] = doubled[2*i]
	}
	return values, nil
}

// SpectralRadius returns the largest absolute eigenvalue of a Hermitian matrix
func SpectralRadius(m *Matrix) (float64, error) {
	values, err := HermitianEigenvalues(m)
	if err != nil {
		return 0, err
	}
	radius := 0.0
	for _, v := range values {
		radius = math.Max(radius, math.Abs(v))
	}
	return radius, nil
}
