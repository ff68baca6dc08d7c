// Package gates is the fixed catalog of named single-qubit operators used to build circuits and
// mitigation actions. Kinds are a closed set; each maps to a pure function returning its matrix.
package gates

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"goqem/domain/core"
	"goqem/domain/quantum"
)

// Kind identifies a catalog entry
type Kind int

const (
	Identity Kind = iota
	PauliX
	PauliY
	PauliZ
	Hadamard
	TGate
	Pi
	S
	RX
	RY
	RZ
	RYZ
	RZX
	RXY
	PiX
	PiY
	PiZ
	PiYZ
	PiZX
	PiXY
)

var kindNames = [...]string{
	Identity: "I",
	PauliX:   "X",
	PauliY:   "Y",
	PauliZ:   "Z",
	Hadamard: "H",
	TGate:    "T",
	Pi:       "Pi",
	S:        "S",
	RX:       "GRx",
	RY:       "GRy",
	RZ:       "GRz",
	RYZ:      "GRyz",
	RZX:      "GRzx",
	RXY:      "GRxy",
	PiX:      "PiX",
	PiY:      "PiY",
	PiZ:      "PiZ",
	PiYZ:     "PiYZ",
	PiZX:     "PiZX",
	PiXY:     "PiXY",
}

// All returns every catalog kind in declaration order
func All() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

// String returns the diagram label of the gate
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Parse resolves a gate by label, case-insensitively
func Parse(name string) (Kind, error) {
	trimmed := strings.TrimSpace(name)
	for i, label := range kindNames {
		if strings.EqualFold(label, trimmed) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", core.ErrUnknownGate, name)
}

// ParseAll resolves a list of labels
func ParseAll(names []string) ([]Kind, error) {
	out := make([]Kind, len(names))
	for i, name := range names {
		k, err := Parse(name)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}

// IsUnitary reports whether the kind is a unitary; projector-like kinds are not
func (k Kind) IsUnitary() bool {
	switch k {
	case Pi, PiX, PiY, PiZ, PiYZ, PiZX, PiXY:
		return false
	}
	return true
}

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)

	id2 = [4]complex128{1, 0, 0, 1}
	x2  = [4]complex128{0, 1, 1, 0}
	y2  = [4]complex128{0, -1i, 1i, 0}
	z2  = [4]complex128{1, 0, 0, -1}
)

// combine returns (a·p + b·q)·scale for 2×2 literals
func combine(a complex128, p [4]complex128, b complex128, q [4]complex128, scale complex128) *quantum.Matrix {
	m := quantum.NewMatrix(2)
	for i := range p {
		m.Data[i] = (a*p[i] + b*q[i]) * scale
	}
	return m
}

// Matrix returns the 2×2 matrix of the kind. Every call returns a fresh copy.
func (k Kind) Matrix() *quantum.Matrix {
	switch k {
	case Identity:
		return combine(1, id2, 0, id2, 1)
	case PauliX:
		return combine(1, x2, 0, id2, 1)
	case PauliY:
		return combine(1, y2, 0, id2, 1)
	case PauliZ:
		return combine(1, z2, 0, id2, 1)
	case Hadamard:
		return combine(1, x2, 1, z2, invSqrt2)
	case TGate:
		return quantum.MustMatrix([][]complex128{{1, 0}, {0, cmplx.Exp(complex(0, math.Pi/4))}})
	case Pi:
		return quantum.MustMatrix([][]complex128{{1, 0}, {0, 0}})
	case S:
		return combine(1, id2, -1i, z2, invSqrt2)
	case RX:
		return combine(1, id2, 1i, x2, invSqrt2)
	case RY:
		return combine(1, id2, 1i, y2, invSqrt2)
	case RZ:
		return combine(1, id2, 1i, z2, invSqrt2)
	case RYZ:
		return combine(1, y2, 1, z2, invSqrt2)
	case RZX:
		return combine(1, z2, 1, x2, invSqrt2)
	case RXY:
		return combine(1, x2, 1, y2, invSqrt2)
	case PiX:
		return combine(1, id2, 1, x2, 0.5)
	case PiY:
		return combine(1, id2, 1, y2, 0.5)
	case PiZ:
		return combine(1, id2, 1, z2, 0.5)
	case PiYZ:
		return combine(1, y2, 1i, z2, 0.5)
	case PiZX:
		return combine(1, z2, 1i, x2, 0.5)
	case PiXY:
		return combine(1, x2, 1i, y2, 0.5)
	}
	panic(fmt.Sprintf("gates: no matrix for %s", k))
}

// RandomUnitary draws a Haar-random 2×2 unitary: Gram-Schmidt on a complex Ginibre matrix with
// the diagonal phases of R divided out.
func RandomUnitary(r *rand.Rand) *quantum.Matrix {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: r}
	var cols [2][2]complex128
	for {
		for c := 0; c < 2; c++ {
			for i := 0; i < 2; i++ {
				cols[c][i] = complex(normal.Rand(), normal.Rand())
			}
		}
		n0 := math.Hypot(cmplx.Abs(cols[0][0]), cmplx.Abs(cols[0][1]))
		if n0 < 1e-12 {
			continue
		}
		q0 := [2]complex128{cols[0][0] / complex(n0, 0), cols[0][1] / complex(n0, 0)}
		proj := cmplx.Conj(q0[0])*cols[1][0] + cmplx.Conj(q0[1])*cols[1][1]
		v := [2]complex128{cols[1][0] - proj*q0[0], cols[1][1] - proj*q0[1]}
		n1 := math.Hypot(cmplx.Abs(v[0]), cmplx.Abs(v[1]))
		if n1 < 1e-12 {
			continue
		}
		q1 := [2]complex128{v[0] / complex(n1, 0), v[1] / complex(n1, 0)}
		// R's diagonal (n0, n1) is already real positive, so Q is Haar distributed as is
		return quantum.MustMatrix([][]complex128{{q0[0], q1[0]}, {q0[1], q1[1]}})
	}
}
