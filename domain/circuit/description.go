// Package circuit describes a simulatable circuit: an ordered gate list over a fixed register,
// the slots where mitigation gates are inserted, the action set those slots choose from and the
// noise channel of the noisy execution model.
package circuit

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"goqem/domain/core"
	"goqem/domain/gates"
	"goqem/domain/quantum"
)

// MitigateGate marks a mitigation slot in the operation list
const MitigateGate = "mitigate"

// NoiseKind selects the noise channel of the noisy model
type NoiseKind string

const (
	NoiseNone         NoiseKind = "none"
	NoiseDepolarizing NoiseKind = "depolarizing"
)

// Noise parameterizes the noise channel applied after every operation to each qubit it touches
type Noise struct {
	Kind        NoiseKind `toml:"kind" json:"kind"`
	Probability float64   `toml:"probability" json:"probability"`
}

// IsZero reports whether the channel is a no-op
func (n Noise) IsZero() bool {
	return n.Kind == "" || n.Kind == NoiseNone || n.Probability == 0
}

// Validate checks the channel parameters
func (n Noise) Validate() error {
	switch n.Kind {
	case "", NoiseNone:
		return nil
	case NoiseDepolarizing:
		if n.Probability < 0 || n.Probability > 1 || math.IsNaN(n.Probability) {
			return fmt.Errorf("depolarizing probability %v outside [0, 1]", n.Probability)
		}
		return nil
	}
	return fmt.Errorf("unsupported noise kind %q", n.Kind)
}

// Operation is one gate application
type Operation struct {
	Gate   string    `toml:"gate" json:"gate"`
	Qubits []int     `toml:"qubits" json:"qubits"`
	Params []float64 `toml:"params" json:"params,omitempty"`
}

// IsMitigation reports whether the operation is a mitigation slot
func (o Operation) IsMitigation() bool {
	return strings.EqualFold(o.Gate, MitigateGate)
}

// Description is a loaded circuit
type Description struct {
	Name              string      `toml:"name" json:"name"`
	NumQubits         int         `toml:"qubits" json:"qubits"`
	TargetQubit       int         `toml:"target_qubit" json:"target_qubit"`
	MitigationActions []string    `toml:"mitigation_actions" json:"mitigation_actions"`
	Noise             Noise       `toml:"noise" json:"noise"`
	Operations        []Operation `toml:"gates" json:"gates"`
}

// DefaultMitigationActions is the action set used when a description names none
var DefaultMitigationActions = []string{"I", "X", "Y", "Z"}

// Validate checks qubit ranges, gate names and arities
func (d *Description) Validate() error {
	if d.NumQubits <= 0 {
		return fmt.Errorf("circuit %q: qubit count must be positive, got %d", d.Name, d.NumQubits)
	}
	if d.TargetQubit < 0 || d.TargetQubit >= d.NumQubits {
		return fmt.Errorf("circuit %q: %w: target qubit %d", d.Name, core.ErrQubitOutOfRange, d.TargetQubit)
	}
	if err := d.Noise.Validate(); err != nil {
		return fmt.Errorf("circuit %q: %w", d.Name, err)
	}
	if _, err := d.Actions(); err != nil {
		return fmt.Errorf("circuit %q: %w", d.Name, err)
	}
	for i, op := range d.Operations {
		for _, q := range op.Qubits {
			if q < 0 || q >= d.NumQubits {
				return fmt.Errorf("circuit %q op %d (%s): %w: %d", d.Name, i, op.Gate, core.ErrQubitOutOfRange, q)
			}
		}
		if len(op.Qubits) == 2 && op.Qubits[0] == op.Qubits[1] {
			return fmt.Errorf("circuit %q op %d (%s): repeated qubit %d", d.Name, i, op.Gate, op.Qubits[0])
		}
		if op.IsMitigation() {
			if len(op.Qubits) != 1 {
				return fmt.Errorf("circuit %q op %d: mitigation slot must act on one qubit", d.Name, i)
			}
			continue
		}
		if _, err := op.Matrix(); err != nil {
			return fmt.Errorf("circuit %q op %d: %w", d.Name, i, err)
		}
	}
	return nil
}

// CountMitigationGates returns K, the number of mitigation slots
func (d *Description) CountMitigationGates() int {
	count := 0
	for _, op := range d.Operations {
		if op.IsMitigation() {
			count++
		}
	}
	return count
}

// Actions resolves the mitigation action set, M = len(result)
func (d *Description) Actions() ([]gates.Kind, error) {
	names := d.MitigationActions
	if len(names) == 0 {
		names = DefaultMitigationActions
	}
	return gates.ParseAll(names)
}

// Matrix resolves a non-mitigation operation to its 2×2 or 4×4 matrix.
// Two-qubit matrices are ordered with Qubits[0] as the more significant factor.
func (o Operation) Matrix() (*quantum.Matrix, error) {
	name := strings.ToLower(strings.TrimSpace(o.Gate))
	switch name {
	case "rx", "ry", "rz":
		if len(o.Qubits) != 1 || len(o.Params) != 1 {
			return nil, fmt.Errorf("%s takes one qubit and one angle", name)
		}
		return rotation(name[1], o.Params[0]), nil
	case "cx", "cnot", "cz", "swap":
		if len(o.Qubits) != 2 {
			return nil, fmt.Errorf("%s takes two qubits", name)
		}
		return twoQubit(name), nil
	}
	k, err := gates.Parse(o.Gate)
	if err != nil {
		return nil, err
	}
	if len(o.Qubits) != 1 {
		return nil, fmt.Errorf("%s takes one qubit", k)
	}
	return k.Matrix(), nil
}

func rotation(axis byte, theta float64) *quantum.Matrix {
	c := complex(math.Cos(theta/2), 0)
	s := math.Sin(theta / 2)
	switch axis {
	case 'x':
		return quantum.MustMatrix([][]complex128{{c, complex(0, -s)}, {complex(0, -s), c}})
	case 'y':
		return quantum.MustMatrix([][]complex128{{c, complex(-s, 0)}, {complex(s, 0), c}})
	default:
		phase := cmplx.Exp(complex(0, theta/2))
		return quantum.MustMatrix([][]complex128{{cmplx.Conj(phase), 0}, {0, phase}})
	}
}

func twoQubit(name string) *quantum.Matrix {
	switch name {
	case "cz":
		return quantum.MustMatrix([][]complex128{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, -1}})
	case "swap":
		return quantum.MustMatrix([][]complex128{{1, 0, 0, 0}, {0, 0, 1, 0}, {0, 1, 0, 0}, {0, 0, 0, 1}})
	default:
		return quantum.MustMatrix([][]complex128{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 0, 1}, {0, 0, 1, 0}})
	}
}
