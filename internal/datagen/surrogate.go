package datagen

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat/distuv"

	"goqem/domain/circuit"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/internal/errors"
	"goqem/internal/nn"
	"goqem/ports"
)

// SurrogateSampleGenerator produces surrogate regression data: random mitigation probabilities, a
// random observable and the noisy expectation of the circuit whose slots follow those probabilities
type SurrogateSampleGenerator struct {
	sim  ports.Simulator
	rng  ports.RNGPort
	opts Options
}

// NewSurrogateSampleGenerator creates a generator
func NewSurrogateSampleGenerator(sim ports.Simulator, rng ports.RNGPort, opts Options) *SurrogateSampleGenerator {
	return &SurrogateSampleGenerator{sim: sim, rng: rng, opts: opts}
}

// Generate returns exactly n samples. Probabilities are softmax rows of uniform [0, 1) logits over
// the circuit's action set.
func (g *SurrogateSampleGenerator) Generate(ctx context.Context, desc *circuit.Description, n int) ([]mitigation.SurrogateSample, error) {
	if err := g.opts.validate(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("sample count must be non-negative, got %d", n))
	}
	if desc == nil {
		return nil, errors.SimulationFailed(nil, "no circuit description")
	}
	target := g.opts.target(desc)
	if target >= desc.NumQubits {
		return nil, errors.InvalidInput(fmt.Sprintf("target qubit %d outside %d-qubit circuit", target, desc.NumQubits))
	}
	actions, err := desc.Actions()
	if err != nil {
		return nil, errors.SimulationFailed(err, "invalid mitigation actions")
	}
	k := desc.CountMitigationGates()
	if k == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("circuit %q has no mitigation gates", desc.Name))
	}
	noise := g.opts.noise(desc)

	start := time.Now()
	out := make([]mitigation.SurrogateSample, n)
	chunks := splitChunks(n, g.opts.ChunkSize)
	err = runChunks(ctx, chunks, g.opts.Workers, func(ctx context.Context, c chunk) error {
		r := g.rng.Stream("surrogate", c.Index)
		logits := distuv.Uniform{Min: 0, Max: 1, Src: r}
		for i := c.Start; i < c.Start+c.Count; i++ {
			raw := make([]float64, k*len(actions))
			for j := range raw {
				raw[j] = logits.Rand()
			}
			probs, err := mitigation.ProbabilitiesFrom(k, len(actions), nn.SoftmaxGroups(raw, len(actions)))
			if err != nil {
				return err
			}
			obs, err := g.opts.Sampler.Sample(r)
			if err != nil {
				return err
			}
			full, err := quantum.Embed(obs, desc.NumQubits, target)
			if err != nil {
				return errors.Precondition(err, "observable does not fit the register")
			}
			rho, err := g.sim.Mitigated(ctx, desc, noise, probs, actions)
			if err != nil {
				return err
			}
			out[i] = mitigation.SurrogateSample{
				Probabilities: probs,
				Observable:    obs,
				Expectation:   mitigation.RoundExpectation(quantum.DensityExpectation(rho, full)),
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "surrogate sample generation aborted")
	}

	log.Info().
		Str("component", "datagen").
		Str("circuit", desc.Name).
		Int("samples", n).
		Int("mitigation_gates", k).
		Dur("elapsed", time.Since(start)).
		Msg("surrogate samples generated")
	return out, nil
}
