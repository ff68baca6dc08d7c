package ports

import (
	"context"

	"goqem/domain/circuit"
	"goqem/domain/gates"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
)

// Simulator executes circuit descriptions. Mitigation slots act as identity in Ideal and Noisy.
type Simulator interface {
	// Ideal returns the noiseless final state vector
	Ideal(ctx context.Context, desc *circuit.Description) (quantum.State, error)

	// Noisy returns the final density matrix under the given noise channel
	Noisy(ctx context.Context, desc *circuit.Description, noise circuit.Noise) (*quantum.Matrix, error)

	// Mitigated returns the noisy density matrix where mitigation slot k applies action a with
	// probability probs.At(k, a)
	Mitigated(ctx context.Context, desc *circuit.Description, noise circuit.Noise, probs mitigation.Probabilities, actions []gates.Kind) (*quantum.Matrix, error)
}
