// Package simulator is a dense state-vector and density-matrix simulator for small registers.
package simulator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"goqem/domain/circuit"
	"goqem/domain/core"
	"goqem/domain/gates"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/internal/errors"
)

// MaxQubits bounds the register size; a density matrix on 12 qubits is already 256 MiB
const MaxQubits = 12

var (
	pauliX = gates.PauliX.Matrix()
	pauliY = gates.PauliY.Matrix()
	pauliZ = gates.PauliZ.Matrix()
)

// Simulator implements ports.Simulator
type Simulator struct{}

// New creates a simulator
func New() *Simulator {
	return &Simulator{}
}

// compiled is a description resolved to matrices once
type compiled struct {
	numQubits int
	steps     []step
}

type step struct {
	matrix     *quantum.Matrix
	qubits     []int
	mitigation int // slot index, -1 for ordinary gates
}

func compile(desc *circuit.Description) (*compiled, error) {
	if desc == nil {
		return nil, errors.SimulationFailed(core.ErrNotFound, "no circuit description")
	}
	if err := desc.Validate(); err != nil {
		return nil, errors.SimulationFailed(err, "invalid circuit description")
	}
	if desc.NumQubits > MaxQubits {
		return nil, errors.SimulationFailed(nil, fmt.Sprintf("circuit %q has %d qubits, the simulator supports at most %d", desc.Name, desc.NumQubits, MaxQubits))
	}
	c := &compiled{numQubits: desc.NumQubits}
	slot := 0
	for i, op := range desc.Operations {
		if op.IsMitigation() {
			c.steps = append(c.steps, step{qubits: op.Qubits, mitigation: slot})
			slot++
			continue
		}
		m, err := op.Matrix()
		if err != nil {
			return nil, errors.SimulationFailed(err, fmt.Sprintf("operation %d", i))
		}
		c.steps = append(c.steps, step{matrix: m, qubits: op.Qubits, mitigation: -1})
	}
	return c, nil
}

// Ideal returns the noiseless final state; mitigation slots are identity
func (s *Simulator) Ideal(ctx context.Context, desc *circuit.Description) (quantum.State, error) {
	c, err := compile(desc)
	if err != nil {
		return nil, err
	}
	state := quantum.ZeroState(c.numQubits)
	for _, st := range c.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if st.mitigation >= 0 {
			continue
		}
		applyToState(state, c.numQubits, st.matrix, st.qubits)
	}
	log.Debug().Str("component", "simulator").Str("circuit", desc.Name).Msg("ideal simulation done")
	return state, nil
}

// Noisy returns the final density matrix; noise follows every operation including mitigation slots
func (s *Simulator) Noisy(ctx context.Context, desc *circuit.Description, noise circuit.Noise) (*quantum.Matrix, error) {
	return s.run(ctx, desc, noise, nil, nil)
}

// Mitigated applies Σ_a p_a U_a ρ U_a† at every mitigation slot, the many-shot limit of sampling
// one action per slot per shot
func (s *Simulator) Mitigated(ctx context.Context, desc *circuit.Description, noise circuit.Noise, probs mitigation.Probabilities, actions []gates.Kind) (*quantum.Matrix, error) {
	if len(actions) == 0 {
		return nil, errors.InvalidInput("no mitigation actions")
	}
	if k := desc.CountMitigationGates(); probs.Gates != k || probs.Actions != len(actions) {
		return nil, errors.ShapeMismatch(core.ErrShapeMismatch,
			fmt.Sprintf("probabilities are %dx%d, circuit needs %dx%d", probs.Gates, probs.Actions, k, len(actions)))
	}
	if err := probs.Validate(1e-6); err != nil {
		return nil, errors.Precondition(err, "mitigation probabilities are not row-stochastic")
	}
	mats := make([]*quantum.Matrix, len(actions))
	for i, a := range actions {
		mats[i] = a.Matrix()
	}
	return s.run(ctx, desc, noise, &probs, mats)
}

func (s *Simulator) run(ctx context.Context, desc *circuit.Description, noise circuit.Noise, probs *mitigation.Probabilities, actions []*quantum.Matrix) (*quantum.Matrix, error) {
	if err := noise.Validate(); err != nil {
		return nil, errors.SimulationFailed(err, "invalid noise channel")
	}
	c, err := compile(desc)
	if err != nil {
		return nil, err
	}
	rho := quantum.ZeroState(c.numQubits).Density()
	for _, st := range c.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case st.mitigation < 0:
			conjugate(rho, c.numQubits, st.matrix, st.qubits)
		case probs != nil:
			rho = mix(rho, c.numQubits, probs.Row(st.mitigation), actions, st.qubits)
		}
		if !noise.IsZero() {
			for _, q := range st.qubits {
				rho = depolarize(rho, c.numQubits, q, noise.Probability)
			}
		}
	}
	return rho, nil
}

// mix applies the channel ρ → Σ_a w_a U_a ρ U_a†
func mix(rho *quantum.Matrix, numQubits int, weights []float64, actions []*quantum.Matrix, qubits []int) *quantum.Matrix {
	out := quantum.NewMatrix(rho.N)
	for a, w := range weights {
		if w == 0 {
			continue
		}
		accumulate(out, conjugated(rho, numQubits, actions[a], qubits), w)
	}
	return out
}

// depolarize applies ρ → (1-p)ρ + p/3 (XρX + YρY + ZρZ) on one qubit
func depolarize(rho *quantum.Matrix, numQubits, qubit int, p float64) *quantum.Matrix {
	q := []int{qubit}
	out := quantum.NewMatrix(rho.N)
	accumulate(out, rho, 1-p)
	for _, pauli := range []*quantum.Matrix{pauliX, pauliY, pauliZ} {
		accumulate(out, conjugated(rho, numQubits, pauli, q), p/3)
	}
	return out
}
