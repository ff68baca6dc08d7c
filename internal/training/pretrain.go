package training

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"goqem/domain/checkpoint"
	"goqem/domain/core"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/domain/run"
	"goqem/internal/errors"
	"goqem/internal/loader"
	"goqem/internal/models"
	"goqem/internal/nn"
	"goqem/ports"
)

// PretrainOptions controls surrogate regression
type PretrainOptions struct {
	BatchSize         int
	Epochs            int
	LR                float64
	LogEvery          int
	Prefetch          int
	InitialBestMetric float64
}

// DefaultPretrainOptions mirrors the command defaults
func DefaultPretrainOptions() PretrainOptions {
	return PretrainOptions{
		BatchSize:         128,
		Epochs:            200,
		LR:                1e-3,
		LogEvery:          1000,
		Prefetch:          2,
		InitialBestMetric: 1.0,
	}
}

// Pretrainer fits the surrogate to simulated samples by mean squared error
type Pretrainer struct {
	surrogate *models.Surrogate
	opt       *nn.Adam
	rng       ports.RNGPort
	opts      PretrainOptions
	sinks     Sinks
	runID     core.RunID
}

// NewPretrainer creates a pretrainer; sinks.Checkpoints receives the best weights
func NewPretrainer(s *models.Surrogate, rng ports.RNGPort, opts PretrainOptions, sinks Sinks) (*Pretrainer, error) {
	if s == nil {
		return nil, errors.InvalidInput("surrogate is required")
	}
	if sinks.Checkpoints == nil {
		return nil, errors.InvalidInput("checkpoint repository is required")
	}
	if opts.BatchSize < 1 || opts.Epochs < 1 || opts.LR <= 0 || opts.LogEvery < 1 || opts.Prefetch < 0 {
		return nil, errors.ConfigInvalid("invalid pretraining options")
	}
	return &Pretrainer{
		surrogate: s,
		opt:       nn.NewAdam(nn.ParamGroup{Name: "surrogate", LR: opts.LR, Params: s.Network().Params()}),
		rng:       rng,
		opts:      opts,
		sinks:     sinks,
		runID:     core.NewRunID(),
	}, nil
}

func (p *Pretrainer) encode(batch []mitigation.SurrogateSample) ([]mitigation.Probabilities, []*quantum.Matrix, []float64) {
	probs := make([]mitigation.Probabilities, len(batch))
	obs := make([]*quantum.Matrix, len(batch))
	target := make([]float64, len(batch))
	for i, s := range batch {
		probs[i], obs[i], target[i] = s.Probabilities, s.Observable, s.Expectation
	}
	return probs, obs, target
}

// Step performs one MSE update and returns the loss
func (p *Pretrainer) Step(batch []mitigation.SurrogateSample) (float64, error) {
	shape := p.surrogate.Shape()
	probs, obs, target := p.encode(batch)
	pm, err := models.EncodeProbabilities(probs, shape.NumMitigates, shape.NumActions)
	if err != nil {
		return 0, errors.Precondition(err, "samples do not match the surrogate's mitigation shape")
	}
	feat, err := models.EncodeObservables(obs, shape.ObservableDim)
	if err != nil {
		return 0, errors.ShapeMismatch(err, "failed to encode sample observables")
	}

	p.opt.ZeroGrad()
	pass, err := p.surrogate.Forward(pm, feat)
	if err != nil {
		return 0, err
	}
	loss, grad, err := nn.MSE(pass.Output, target)
	if err != nil {
		return 0, errors.Wrap(err, "failed to evaluate surrogate loss")
	}
	if _, err := p.surrogate.Backward(pass, grad); err != nil {
		return 0, errors.Wrap(err, "surrogate backward pass failed")
	}
	if err := p.opt.Step(); err != nil {
		return 0, errors.Wrap(err, "surrogate optimizer step failed")
	}
	return loss, nil
}

// Validate measures |S(p, obs) - expectation| over the validation samples
func (p *Pretrainer) Validate(ctx context.Context, val []mitigation.SurrogateSample) (Validation, error) {
	batches, err := loader.New(val, loader.Options{BatchSize: p.opts.BatchSize}, nil, "")
	if err != nil {
		return Validation{}, err
	}
	deviations := make([]float64, 0, len(val))
	err = batches.Each(ctx, 0, func(b loader.Batch[mitigation.SurrogateSample]) error {
		probs, obs, target := p.encode(b.Items)
		pred, err := p.surrogate.Predict(probs, obs)
		if err != nil {
			return errors.Precondition(err, "samples do not match the surrogate")
		}
		deviations = absDeviations(pred, target, deviations)
		return nil
	})
	if err != nil {
		return Validation{}, err
	}
	return summarize(deviations)
}

// Run fits the surrogate and saves its weights whenever validation improves
func (p *Pretrainer) Run(ctx context.Context, train, val []mitigation.SurrogateSample) (*run.History, error) {
	batches, err := loader.New(train, loader.Options{
		BatchSize: p.opts.BatchSize,
		Shuffle:   true,
		Prefetch:  p.opts.Prefetch,
	}, p.rng, "pretrain")
	if err != nil {
		return nil, errors.Wrap(err, "failed to batch surrogate samples")
	}

	policy := NewBestMetricPolicy(p.opts.InitialBestMetric)
	history := &run.History{
		RunID:      p.runID,
		Kind:       run.KindPretrain,
		StartedAt:  core.Now(),
		TrainSize:  len(train),
		ValSize:    len(val),
		BestMetric: policy.Best(),
	}
	log.Info().
		Str("component", "pretrainer").
		Str("run_id", p.runID.String()).
		Int("train", len(train)).
		Int("val", len(val)).
		Msg("surrogate pretraining started")

	for epoch := 0; epoch < p.opts.Epochs; epoch++ {
		start := time.Now()
		rec := run.EpochRecord{Epoch: epoch}
		total := 0.0
		err := batches.Each(ctx, epoch, func(b loader.Batch[mitigation.SurrogateSample]) error {
			loss, err := p.Step(b.Items)
			if err != nil {
				return errors.Wrapf(err, "epoch %d batch %d", epoch, b.Index)
			}
			total += loss
			rec.Steps++
			if b.Index%p.opts.LogEvery == 0 {
				log.Info().
					Str("component", "pretrainer").
					Int("epoch", epoch).
					Int("batch", b.Index).
					Float64("loss_mse", loss).
					Msg("step")
			}
			return nil
		})
		if err != nil {
			return history, err
		}
		if rec.Steps > 0 {
			rec.LossMSE = total / float64(rec.Steps)
		}

		v, err := p.Validate(ctx, val)
		if err != nil {
			return history, errors.Wrapf(err, "validation failed at epoch %d", epoch)
		}
		logValidation("pretrainer", epoch, v)
		rec.Metric, rec.MetricMedian, rec.MetricP95, rec.MetricMax = v.Metric, v.Median, v.P95, v.Max

		if policy.Observe(v.Metric) {
			w := &checkpoint.SurrogateWeights{
				RunID:     p.runID,
				Epoch:     epoch,
				Metric:    v.Metric,
				CreatedAt: core.Now(),
				Shape:     p.surrogate.Shape(),
				Hidden:    p.surrogate.Hidden(),
				Tensors:   p.surrogate.Snapshot(),
			}
			if err := p.sinks.Checkpoints.SaveSurrogate(ctx, w); err != nil {
				return history, errors.Wrapf(err, "failed to save surrogate weights at epoch %d", epoch)
			}
			rec.Checkpointed = true
		}
		rec.DurationMs = time.Since(start).Milliseconds()
		history.Epochs = append(history.Epochs, rec)
		history.BestMetric = policy.Best()
	}

	if err := finish(ctx, p.sinks, history); err != nil {
		return history, err
	}
	return history, nil
}
