package datagen

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"goqem/domain/circuit"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/internal/errors"
	"goqem/ports"
)

// Options controls dataset generation
type Options struct {
	Workers   int
	ChunkSize int
	// TargetQubit overrides the circuit's target when >= 0
	TargetQubit int
	// Noise overrides the circuit's noise channel when set
	Noise   *circuit.Noise
	Sampler ObservableSampler
}

// DefaultOptions returns 8 workers, chunks of 1000, the circuit's own target and noise
func DefaultOptions() Options {
	return Options{
		Workers:     8,
		ChunkSize:   1000,
		TargetQubit: -1,
		Sampler:     ObservableSampler{Distribution: Gaussian, Kind: Hermitian, Dim: 2},
	}
}

func (o Options) validate() error {
	if o.Workers < 1 {
		return errors.ConfigInvalid("workers must be at least 1")
	}
	if o.ChunkSize < 1 {
		return errors.ConfigInvalid("chunk size must be at least 1")
	}
	return o.Sampler.Validate()
}

func (o Options) target(desc *circuit.Description) int {
	if o.TargetQubit >= 0 {
		return o.TargetQubit
	}
	return desc.TargetQubit
}

func (o Options) noise(desc *circuit.Description) circuit.Noise {
	if o.Noise != nil {
		return *o.Noise
	}
	return desc.Noise
}

// TripleGenerator simulates a circuit once ideal and once noisy, then evaluates random observables
// against both results
type TripleGenerator struct {
	sim  ports.Simulator
	rng  ports.RNGPort
	opts Options
}

// NewTripleGenerator creates a generator
func NewTripleGenerator(sim ports.Simulator, rng ports.RNGPort, opts Options) *TripleGenerator {
	return &TripleGenerator{sim: sim, rng: rng, opts: opts}
}

// Generate returns exactly n triples. Output depends only on the seed, never on worker count.
func (g *TripleGenerator) Generate(ctx context.Context, desc *circuit.Description, n int) ([]mitigation.Triple, error) {
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

	start := time.Now()
	ideal, err := g.sim.Ideal(ctx, desc)
	if err != nil {
		return nil, errors.Wrap(err, "ideal simulation failed")
	}
	rho, err := g.sim.Noisy(ctx, desc, g.opts.noise(desc))
	if err != nil {
		return nil, errors.Wrap(err, "noisy simulation failed")
	}

	out := make([]mitigation.Triple, n)
	chunks := splitChunks(n, g.opts.ChunkSize)
	err = runChunks(ctx, chunks, g.opts.Workers, func(ctx context.Context, c chunk) error {
		r := g.rng.Stream("triples", c.Index)
		for i := c.Start; i < c.Start+c.Count; i++ {
			if i%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			obs, err := g.opts.Sampler.Sample(r)
			if err != nil {
				return err
			}
			full, err := quantum.Embed(obs, desc.NumQubits, target)
			if err != nil {
				return errors.Precondition(err, "observable does not fit the register")
			}
			out[i] = mitigation.Triple{
				Observable: obs,
				Noisy:      mitigation.RoundExpectation(quantum.DensityExpectation(rho, full)),
				Ideal:      mitigation.RoundExpectation(ideal.Expectation(full)),
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "triple generation aborted")
	}

	log.Info().
		Str("component", "datagen").
		Str("circuit", desc.Name).
		Int("triples", n).
		Int("chunks", len(chunks)).
		Dur("elapsed", time.Since(start)).
		Msg("triples generated")
	return out, nil
}
