package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"goqem/domain/mitigation"
	"goqem/domain/run"
	"goqem/internal/errors"
	"goqem/internal/models"
	"goqem/internal/training"
	"goqem/ports"
)

// TrainingService runs surrogate pretraining and adversarial training against stored datasets
type TrainingService struct {
	circuits    ports.CircuitSource
	checkpoints ports.CheckpointRepository
	reporter    ports.HistoryReporter
	metrics     ports.MetricLog
	rngPort     ports.RNGPort
}

// NewTrainingService creates a training service. reporter may be nil.
func NewTrainingService(circuits ports.CircuitSource, checkpoints ports.CheckpointRepository, reporter ports.HistoryReporter, metrics ports.MetricLog, rngPort ports.RNGPort) *TrainingService {
	return &TrainingService{
		circuits:    circuits,
		checkpoints: checkpoints,
		reporter:    reporter,
		metrics:     metrics,
		rngPort:     rngPort,
	}
}

func (s *TrainingService) sinks() training.Sinks {
	return training.Sinks{Checkpoints: s.checkpoints, Reporter: s.reporter, Metrics: s.metrics}
}

// PretrainRequest names the surrogate sample datasets of a pretraining run
type PretrainRequest struct {
	TrainRef string
	ValRef   string
	Hidden   []int
	Options  training.PretrainOptions
}

// Pretrain fits a fresh surrogate to stored samples; the network shape follows the samples
func (s *TrainingService) Pretrain(ctx context.Context, req PretrainRequest, data ports.SurrogateSampleRepository) (*run.History, error) {
	train, err := data.LoadSamples(ctx, req.TrainRef)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load training samples %s", req.TrainRef)
	}
	val, err := data.LoadSamples(ctx, req.ValRef)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load validation samples %s", req.ValRef)
	}
	if len(train) == 0 || len(val) == 0 {
		return nil, errors.InvalidInput("pretraining needs non-empty training and validation samples")
	}

	first := train[0].Probabilities
	shape := models.DefaultShape(first.Gates, first.Actions)
	if err := checkSampleShapes(shape, train, val); err != nil {
		return nil, err
	}

	surrogate, err := models.NewSurrogate(shape, req.Hidden, s.rngPort.Stream("init.surrogate", 0))
	if err != nil {
		return nil, errors.Precondition(err, "failed to build surrogate")
	}
	p, err := training.NewPretrainer(surrogate, s.rngPort, req.Options, s.sinks())
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, train, val)
}

func checkSampleShapes(shape models.Shape, sets ...[]mitigation.SurrogateSample) error {
	for _, set := range sets {
		for i, smp := range set {
			if smp.Probabilities.Gates != shape.NumMitigates || smp.Probabilities.Actions != shape.NumActions {
				return errors.Precondition(nil, fmt.Sprintf("sample %d has %dx%d probabilities, expected %dx%d",
					i, smp.Probabilities.Gates, smp.Probabilities.Actions, shape.NumMitigates, shape.NumActions))
			}
		}
	}
	return nil
}

// TrainRequest names the triple datasets of an adversarial run and the expected network shape
type TrainRequest struct {
	TrainRef string
	ValRef   string
	// Circuit, when set, must agree with the surrogate on gate and action counts
	Circuit string
	// NumMitigates, when positive, must agree with the surrogate's gate count
	NumMitigates int
	Hidden       []int
	Options      training.Options
	Resume       bool
}

// Train loads the pretrained surrogate, builds fresh G and D around it and runs adversarial training
func (s *TrainingService) Train(ctx context.Context, req TrainRequest, data ports.TripleRepository) (*run.History, error) {
	weights, err := s.checkpoints.LoadSurrogate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "pretrained surrogate weights are required")
	}
	shape := weights.Shape
	if req.NumMitigates > 0 && req.NumMitigates != shape.NumMitigates {
		return nil, errors.Precondition(nil, fmt.Sprintf("requested %d mitigation gates, surrogate was trained for %d",
			req.NumMitigates, shape.NumMitigates))
	}
	if req.Circuit != "" {
		desc, err := s.circuits.Load(ctx, req.Circuit)
		if err != nil {
			return nil, err
		}
		actions, err := desc.Actions()
		if err != nil {
			return nil, errors.SimulationFailed(err, "invalid mitigation actions")
		}
		if k := desc.CountMitigationGates(); k != shape.NumMitigates || len(actions) != shape.NumActions {
			return nil, errors.Precondition(nil, fmt.Sprintf("circuit %q has %dx%d mitigation slots, surrogate expects %dx%d",
				desc.Name, k, len(actions), shape.NumMitigates, shape.NumActions))
		}
	}

	surrogate, err := models.NewSurrogate(shape, weights.Hidden, s.rngPort.Stream("init.surrogate", 0))
	if err != nil {
		return nil, errors.Precondition(err, "failed to build surrogate")
	}
	if err := surrogate.Restore(weights.Tensors); err != nil {
		return nil, errors.Precondition(err, "surrogate weights do not fit the network")
	}
	generator, err := models.NewGenerator(shape, req.Hidden, s.rngPort.Stream("init.generator", 0))
	if err != nil {
		return nil, errors.Precondition(err, "failed to build generator")
	}
	discriminator, err := models.NewDiscriminator(shape, req.Hidden, s.rngPort.Stream("init.discriminator", 0))
	if err != nil {
		return nil, errors.Precondition(err, "failed to build discriminator")
	}

	trainer, err := training.NewTrainer(training.Models{
		Generator:     generator,
		Surrogate:     surrogate,
		Discriminator: discriminator,
	}, s.rngPort, req.Options, s.sinks())
	if err != nil {
		return nil, err
	}
	if req.Resume {
		cp, err := s.checkpoints.Load(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "cannot resume")
		}
		if err := trainer.Resume(cp); err != nil {
			return nil, err
		}
	}

	train, err := data.LoadTriples(ctx, req.TrainRef)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load training triples %s", req.TrainRef)
	}
	val, err := data.LoadTriples(ctx, req.ValRef)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load validation triples %s", req.ValRef)
	}

	log.Info().
		Str("component", "training").
		Int("mitigates", shape.NumMitigates).
		Int("actions", shape.NumActions).
		Str("surrogate_run", weights.RunID.String()).
		Float64("surrogate_metric", weights.Metric).
		Msg("surrogate loaded")
	return trainer.Run(ctx, train, val)
}
