package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"goqem/domain/core"
	"goqem/domain/mitigation"
	"goqem/internal/datagen"
	"goqem/internal/errors"
	"goqem/ports"
)

// GenerationService turns a circuit description into stored datasets
type GenerationService struct {
	circuits ports.CircuitSource
	sim      ports.Simulator
	rngPort  ports.RNGPort
}

// GenerationRequest names the circuit, the size and the destination of a dataset
type GenerationRequest struct {
	Circuit string
	Count   int
	Ref     string
	Options datagen.Options
}

// GenerationResult describes a stored dataset
type GenerationResult struct {
	Ref         string    `json:"ref"`
	Kind        string    `json:"kind"`
	Circuit     string    `json:"circuit"`
	Count       int       `json:"count"`
	Mitigates   int       `json:"mitigates"`
	Fingerprint core.Hash `json:"fingerprint"`
	RuntimeMs   int64     `json:"runtime_ms"`
}

// NewGenerationService creates a generation service
func NewGenerationService(circuits ports.CircuitSource, sim ports.Simulator, rngPort ports.RNGPort) *GenerationService {
	return &GenerationService{
		circuits: circuits,
		sim:      sim,
		rngPort:  rngPort,
	}
}

func (s *GenerationService) validate(req GenerationRequest) error {
	if req.Circuit == "" {
		return errors.InvalidInput("circuit reference is required")
	}
	if req.Ref == "" {
		return errors.InvalidInput("output reference is required")
	}
	if req.Count < 1 {
		return errors.InvalidInput("sample count must be positive")
	}
	return nil
}

// GenerateTriples simulates the circuit and stores Count training triples
func (s *GenerationService) GenerateTriples(ctx context.Context, req GenerationRequest, out ports.TripleRepository) (*GenerationResult, error) {
	startTime := time.Now()
	if err := s.validate(req); err != nil {
		return nil, err
	}
	desc, err := s.circuits.Load(ctx, req.Circuit)
	if err != nil {
		return nil, err
	}

	triples, err := datagen.NewTripleGenerator(s.sim, s.rngPort, req.Options).Generate(ctx, desc, req.Count)
	if err != nil {
		return nil, err
	}
	if err := out.SaveTriples(ctx, req.Ref, triples); err != nil {
		return nil, errors.Wrap(err, "failed to store triples")
	}

	result := &GenerationResult{
		Ref:         req.Ref,
		Kind:        "triples",
		Circuit:     desc.Name,
		Count:       len(triples),
		Mitigates:   desc.CountMitigationGates(),
		Fingerprint: mitigation.Fingerprint(triples),
		RuntimeMs:   time.Since(startTime).Milliseconds(),
	}
	logResult(result)
	return result, nil
}

// GenerateSurrogateSamples simulates the circuit under random mitigation probabilities and stores
// Count surrogate samples
func (s *GenerationService) GenerateSurrogateSamples(ctx context.Context, req GenerationRequest, out ports.SurrogateSampleRepository) (*GenerationResult, error) {
	startTime := time.Now()
	if err := s.validate(req); err != nil {
		return nil, err
	}
	desc, err := s.circuits.Load(ctx, req.Circuit)
	if err != nil {
		return nil, err
	}

	samples, err := datagen.NewSurrogateSampleGenerator(s.sim, s.rngPort, req.Options).Generate(ctx, desc, req.Count)
	if err != nil {
		return nil, err
	}
	if err := out.SaveSamples(ctx, req.Ref, samples); err != nil {
		return nil, errors.Wrap(err, "failed to store surrogate samples")
	}

	result := &GenerationResult{
		Ref:         req.Ref,
		Kind:        "surrogate_samples",
		Circuit:     desc.Name,
		Count:       len(samples),
		Mitigates:   desc.CountMitigationGates(),
		Fingerprint: mitigation.FingerprintSamples(samples),
		RuntimeMs:   time.Since(startTime).Milliseconds(),
	}
	logResult(result)
	return result, nil
}

func logResult(r *GenerationResult) {
	log.Info().
		Str("component", "generation").
		Str("kind", r.Kind).
		Str("circuit", r.Circuit).
		Str("ref", r.Ref).
		Int("count", r.Count).
		Str("fingerprint", r.Fingerprint.Short()).
		Int64("runtime_ms", r.RuntimeMs).
		Msg("dataset stored")
}
