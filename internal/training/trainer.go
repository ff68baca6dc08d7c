// Package training runs adversarial mitigation training and surrogate pretraining.
//
// One adversarial step first updates the discriminator on three branches (ideal, noisy and
// surrogate-predicted expectations) and then updates generator and surrogate jointly through the
// discriminator's input gradient. Training is single-goroutine; only the batch loader runs
// concurrently.
package training

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"goqem/domain/checkpoint"
	"goqem/domain/core"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/domain/run"
	"goqem/internal/datagen"
	"goqem/internal/errors"
	"goqem/internal/loader"
	"goqem/internal/models"
	"goqem/internal/nn"
	"goqem/ports"
)

const component = "trainer"

// Options controls adversarial training
type Options struct {
	BatchSize   int
	Epochs      int
	LR          float64
	SurrogateLR float64
	LogEvery    int
	Prefetch    int
	// RandomFraction of each generated batch uses fresh random observables instead of real ones
	RandomFraction    float64
	InitialBestMetric float64
	// Sampler draws the fresh observables of the generated branch
	Sampler datagen.ObservableSampler
}

// DefaultOptions mirrors the command defaults
func DefaultOptions() Options {
	return Options{
		BatchSize:         128,
		Epochs:            200,
		LR:                1e-3,
		SurrogateLR:       1e-6,
		LogEvery:          1000,
		Prefetch:          2,
		RandomFraction:    0.5,
		InitialBestMetric: 1.0,
		Sampler:           datagen.DefaultSampler(),
	}
}

func (o Options) validate() error {
	switch {
	case o.BatchSize < 2:
		return errors.ConfigInvalid("batch size must be at least 2")
	case o.Epochs < 1:
		return errors.ConfigInvalid("epochs must be at least 1")
	case o.LR <= 0 || o.SurrogateLR <= 0:
		return errors.ConfigInvalid("learning rates must be positive")
	case o.LogEvery < 1:
		return errors.ConfigInvalid("log interval must be at least 1")
	case o.Prefetch < 0:
		return errors.ConfigInvalid("prefetch must be non-negative")
	case o.RandomFraction < 0 || o.RandomFraction > 1:
		return errors.ConfigInvalid("random fraction must lie in [0, 1]")
	}
	return o.Sampler.Validate()
}

// Models bundles the three networks
type Models struct {
	Generator     *models.Generator
	Surrogate     *models.Surrogate
	Discriminator *models.Discriminator
}

// Sinks receive the outputs of a run. Reporter and Metrics may be nil.
type Sinks struct {
	Checkpoints ports.CheckpointRepository
	Reporter    ports.HistoryReporter
	Metrics     ports.MetricLog
}

// StepStats are the losses and mean discriminator scores of one step
type StepStats struct {
	LossD     float64
	LossG     float64
	LossIdeal float64
	LossFake  float64
	LossNoisy float64
	DIdeal    float64
	DNoisy    float64
	// DFakeBefore is D(G(z)) before the discriminator update, DFakeAfter after it
	DFakeBefore float64
	DFakeAfter  float64
}

// Finite reports whether both losses are finite
func (s StepStats) Finite() bool {
	return !math.IsNaN(s.LossD) && !math.IsInf(s.LossD, 0) && !math.IsNaN(s.LossG) && !math.IsInf(s.LossG, 0)
}

// Trainer owns the networks and both optimizers of an adversarial run
type Trainer struct {
	models Models
	shape  models.Shape
	optD   *nn.Adam
	optG   *nn.Adam
	rng    ports.RNGPort
	opts   Options
	sinks  Sinks
	runID  core.RunID
	iter   int

	// evaluate is Validate unless a test replaces it
	evaluate func(ctx context.Context, val []mitigation.Triple) (Validation, error)
}

// NewTrainer wires the networks to their optimizers. All three networks must agree on shape.
func NewTrainer(m Models, rng ports.RNGPort, opts Options, sinks Sinks) (*Trainer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if m.Generator == nil || m.Surrogate == nil || m.Discriminator == nil {
		return nil, errors.InvalidInput("generator, surrogate and discriminator are required")
	}
	if sinks.Checkpoints == nil {
		return nil, errors.InvalidInput("checkpoint repository is required")
	}
	shape := m.Generator.Shape()
	if s := m.Surrogate.Shape(); s != shape {
		return nil, errors.Precondition(core.ErrShapeMismatch,
			fmt.Sprintf("generator emits %dx%d probabilities, surrogate expects %dx%d",
				shape.NumMitigates, shape.NumActions, s.NumMitigates, s.NumActions))
	}
	if d := m.Discriminator.Shape(); d.ObservableDim != shape.ObservableDim {
		return nil, errors.Precondition(core.ErrShapeMismatch, "discriminator observable width differs from generator")
	}

	t := &Trainer{
		models: m,
		shape:  shape,
		optD: nn.NewAdam(nn.ParamGroup{
			Name: "discriminator", LR: opts.LR, Params: m.Discriminator.Network().Params(),
		}),
		optG: nn.NewAdam(
			nn.ParamGroup{Name: "generator", LR: opts.LR, Params: m.Generator.Network().Params()},
			nn.ParamGroup{Name: "surrogate", LR: opts.SurrogateLR, Params: m.Surrogate.Network().Params()},
		),
		rng:   rng,
		opts:  opts,
		sinks: sinks,
		runID: core.NewRunID(),
	}
	t.evaluate = t.Validate
	return t, nil
}

// RunID identifies the run in checkpoints and history
func (t *Trainer) RunID() core.RunID { return t.runID }

// Resume restores networks and optimizer state from a checkpoint of the same shape
func (t *Trainer) Resume(cp *checkpoint.Checkpoint) error {
	if cp.Shape != t.shape {
		return errors.Precondition(core.ErrShapeMismatch,
			fmt.Sprintf("checkpoint shape %+v does not match networks %+v", cp.Shape, t.shape))
	}
	if err := t.models.Generator.Restore(cp.Generator); err != nil {
		return errors.Precondition(err, "failed to restore generator")
	}
	if err := t.models.Surrogate.Restore(cp.Surrogate); err != nil {
		return errors.Precondition(err, "failed to restore surrogate")
	}
	if err := t.models.Discriminator.Restore(cp.Discriminator); err != nil {
		return errors.Precondition(err, "failed to restore discriminator")
	}
	if err := t.optG.LoadState(cp.OptimizerG); err != nil {
		return errors.Precondition(err, "failed to restore generator optimizer")
	}
	if err := t.optD.LoadState(cp.OptimizerD); err != nil {
		return errors.Precondition(err, "failed to restore discriminator optimizer")
	}
	t.runID = cp.RunID
	log.Info().
		Str("component", component).
		Str("run_id", cp.RunID.String()).
		Int("epoch", cp.Epoch).
		Float64("metric", cp.Metric).
		Msg("resumed from checkpoint")
	return nil
}

// mixObservables returns nRandom fresh observables followed by the first len(obs)-nRandom real ones
func (t *Trainer) mixObservables(r *rand.Rand, obs []*quantum.Matrix) ([]*quantum.Matrix, error) {
	nRandom := int(float64(len(obs)) * t.opts.RandomFraction)
	fresh, err := t.opts.Sampler.SampleN(r, nRandom)
	if err != nil {
		return nil, err
	}
	return append(fresh, obs[:len(obs)-nRandom]...), nil
}

// Step performs one discriminator update followed by one joint generator/surrogate update
func (t *Trainer) Step(batch []mitigation.Triple, r *rand.Rand) (StepStats, error) {
	var st StepStats
	if len(batch) == 0 {
		return st, errors.InvalidInput("empty batch")
	}
	obs := make([]*quantum.Matrix, len(batch))
	ideal := make([]float64, len(batch))
	noisy := make([]float64, len(batch))
	for i, tr := range batch {
		obs[i], ideal[i], noisy[i] = tr.Observable, tr.Ideal, tr.Noisy
	}
	feat, err := models.EncodeObservables(obs, t.shape.ObservableDim)
	if err != nil {
		return st, errors.ShapeMismatch(err, "failed to encode batch observables")
	}
	mixed, err := t.mixObservables(r, obs)
	if err != nil {
		return st, err
	}
	mixedFeat, err := models.EncodeObservables(mixed, t.shape.ObservableDim)
	if err != nil {
		return st, errors.ShapeMismatch(err, "failed to encode mixed observables")
	}

	G, S, D := t.models.Generator, t.models.Surrogate, t.models.Discriminator

	t.optD.ZeroGrad()
	realPass, err := D.Forward(ideal, feat)
	if err != nil {
		return st, err
	}
	if st.LossIdeal, err = discriminate(D, realPass, 1); err != nil {
		return st, err
	}
	st.DIdeal = stat.Mean(realPass.Scores, nil)

	// generated expectations enter D as plain values
	fake, err := t.predict(mixedFeat)
	if err != nil {
		return st, err
	}
	fakePass, err := D.Forward(fake, mixedFeat)
	if err != nil {
		return st, err
	}
	if st.LossFake, err = discriminate(D, fakePass, 0); err != nil {
		return st, err
	}
	st.DFakeBefore = stat.Mean(fakePass.Scores, nil)

	noisyPass, err := D.Forward(noisy, feat)
	if err != nil {
		return st, err
	}
	if st.LossNoisy, err = discriminate(D, noisyPass, 0); err != nil {
		return st, err
	}
	st.DNoisy = stat.Mean(noisyPass.Scores, nil)

	st.LossD = st.LossIdeal + st.LossFake + st.LossNoisy
	if err := t.optD.Step(); err != nil {
		return st, errors.Wrap(err, "discriminator update failed")
	}

	t.optG.ZeroGrad()
	gPass, err := G.Forward(mixedFeat)
	if err != nil {
		return st, err
	}
	sPass, err := S.Forward(gPass.Probs, mixedFeat)
	if err != nil {
		return st, errors.Precondition(err, "generator output does not fit the surrogate")
	}
	dPass, err := D.Forward(sPass.Output, mixedFeat)
	if err != nil {
		return st, err
	}
	st.DFakeAfter = stat.Mean(dPass.Scores, nil)
	lossG, dLogits, err := nn.BCEWithLogits(dPass.Logits, 1)
	if err != nil {
		return st, errors.Wrap(err, "generator loss failed")
	}
	st.LossG = lossG
	dExp, err := D.ExpectationGrad(dPass, dLogits)
	if err != nil {
		return st, errors.Wrap(err, "discriminator input gradient failed")
	}
	dProbs, err := S.Backward(sPass, dExp)
	if err != nil {
		return st, errors.Wrap(err, "surrogate backward pass failed")
	}
	if err := G.Backward(gPass, dProbs); err != nil {
		return st, errors.Wrap(err, "generator backward pass failed")
	}
	if err := t.optG.Step(); err != nil {
		return st, errors.Wrap(err, "generator update failed")
	}

	return st, nil
}

// discriminate accumulates D's gradient of BCE(D, label) for one branch and returns the loss
func discriminate(D *models.Discriminator, pass *models.DiscriminatorPass, label float64) (float64, error) {
	loss, dLogits, err := nn.BCEWithLogits(pass.Logits, label)
	if err != nil {
		return 0, errors.Wrap(err, "discriminator loss failed")
	}
	if err := D.Backward(pass, dLogits); err != nil {
		return 0, errors.Wrap(err, "discriminator backward pass failed")
	}
	return loss, nil
}

// predict evaluates S(G(x), x) without caches
func (t *Trainer) predict(features *mat.Dense) ([]float64, error) {
	probs, err := t.models.Generator.GenerateBatch(features)
	if err != nil {
		return nil, err
	}
	out, err := t.models.Surrogate.PredictBatch(probs, features)
	if err != nil {
		return nil, errors.Precondition(err, "generator output does not fit the surrogate")
	}
	return out, nil
}

// TrainEpoch runs every batch of one epoch and returns the averaged record
func (t *Trainer) TrainEpoch(ctx context.Context, batches *loader.Loader[mitigation.Triple], epoch int) (run.EpochRecord, error) {
	rec := run.EpochRecord{Epoch: epoch}
	var sumD, sumG, sumIdeal, sumNoisy, sumFake float64

	err := batches.Each(ctx, epoch, func(b loader.Batch[mitigation.Triple]) error {
		st, err := t.Step(b.Items, t.rng.Stream("mix", t.iter))
		if err != nil {
			return errors.Wrapf(err, "epoch %d batch %d", epoch, b.Index)
		}
		t.iter++
		rec.Steps++
		sumD += st.LossD
		sumG += st.LossG
		sumIdeal += st.DIdeal
		sumNoisy += st.DNoisy
		sumFake += st.DFakeBefore

		if !st.Finite() {
			log.Warn().
				Str("component", component).
				Int("epoch", epoch).
				Int("batch", b.Index).
				Float64("loss_d", st.LossD).
				Float64("loss_g", st.LossG).
				Msg("non-finite loss")
		}
		if b.Index%t.opts.LogEvery == 0 {
			log.Info().
				Str("component", component).
				Int("epoch", epoch).
				Int("batch", b.Index).
				Int("batches", batches.Len()).
				Float64("loss_d", st.LossD).
				Float64("loss_g", st.LossG).
				Float64("d_noisy", st.DNoisy).
				Float64("d_ideal", st.DIdeal).
				Float64("d_fake_before", st.DFakeBefore).
				Float64("d_fake_after", st.DFakeAfter).
				Msg("step")
		}
		return nil
	})
	if err != nil {
		return rec, err
	}
	if rec.Steps > 0 {
		n := float64(rec.Steps)
		rec.LossD, rec.LossG = sumD/n, sumG/n
		rec.DIdeal, rec.DNoisy, rec.DFake = sumIdeal/n, sumNoisy/n, sumFake/n
	}
	return rec, nil
}

// Validate measures |S(G(obs), obs) - ideal| over the validation set without touching gradients
func (t *Trainer) Validate(ctx context.Context, val []mitigation.Triple) (Validation, error) {
	batches, err := loader.New(val, loader.Options{BatchSize: t.opts.BatchSize}, nil, "")
	if err != nil {
		return Validation{}, err
	}
	deviations := make([]float64, 0, len(val))
	err = batches.Each(ctx, 0, func(b loader.Batch[mitigation.Triple]) error {
		obs := make([]*quantum.Matrix, len(b.Items))
		ideal := make([]float64, len(b.Items))
		for i, tr := range b.Items {
			obs[i], ideal[i] = tr.Observable, tr.Ideal
		}
		feat, err := models.EncodeObservables(obs, t.shape.ObservableDim)
		if err != nil {
			return errors.ShapeMismatch(err, "failed to encode validation observables")
		}
		pred, err := t.predict(feat)
		if err != nil {
			return err
		}
		deviations = absDeviations(pred, ideal, deviations)
		return nil
	})
	if err != nil {
		return Validation{}, err
	}
	return summarize(deviations)
}

func (t *Trainer) checkpoint(epoch int, metric float64, dataset core.Hash) *checkpoint.Checkpoint {
	return &checkpoint.Checkpoint{
		RunID:         t.runID,
		Epoch:         epoch,
		Metric:        metric,
		DatasetHash:   dataset,
		CreatedAt:     core.Now(),
		Shape:         t.shape,
		Generator:     t.models.Generator.Snapshot(),
		Surrogate:     t.models.Surrogate.Snapshot(),
		Discriminator: t.models.Discriminator.Snapshot(),
		OptimizerG:    t.optG.State(),
		OptimizerD:    t.optD.State(),
	}
}

// Run trains for the configured epochs, checkpointing whenever the validation metric improves
func (t *Trainer) Run(ctx context.Context, train, val []mitigation.Triple) (*run.History, error) {
	batches, err := loader.New(train, loader.Options{
		BatchSize: t.opts.BatchSize,
		Shuffle:   true,
		DropLast:  true,
		Prefetch:  t.opts.Prefetch,
	}, t.rng, "train")
	if err != nil {
		return nil, errors.Wrap(err, "failed to batch training set")
	}
	if len(val) == 0 {
		return nil, errors.InvalidInput("validation set is empty")
	}

	policy := NewBestMetricPolicy(t.opts.InitialBestMetric)
	dataset := mitigation.Fingerprint(train)
	history := &run.History{
		RunID:      t.runID,
		Kind:       run.KindAdversarial,
		StartedAt:  core.Now(),
		TrainSize:  len(train),
		ValSize:    len(val),
		BestMetric: policy.Best(),
	}

	log.Info().
		Str("component", component).
		Str("run_id", t.runID.String()).
		Int("train", len(train)).
		Int("val", len(val)).
		Int("epochs", t.opts.Epochs).
		Int("batches", batches.Len()).
		Str("dataset", dataset.Short()).
		Msg("adversarial training started")

	for epoch := 0; epoch < t.opts.Epochs; epoch++ {
		start := time.Now()
		rec, err := t.TrainEpoch(ctx, batches, epoch)
		if err != nil {
			return history, err
		}
		v, err := t.evaluate(ctx, val)
		if err != nil {
			return history, errors.Wrapf(err, "validation failed at epoch %d", epoch)
		}
		logValidation(component, epoch, v)

		rec.Metric, rec.MetricMedian, rec.MetricP95, rec.MetricMax = v.Metric, v.Median, v.P95, v.Max
		if policy.Observe(v.Metric) {
			if err := t.sinks.Checkpoints.Save(ctx, t.checkpoint(epoch, v.Metric, dataset)); err != nil {
				return history, errors.Wrapf(err, "failed to save checkpoint at epoch %d", epoch)
			}
			rec.Checkpointed = true
			log.Info().
				Str("component", component).
				Int("epoch", epoch).
				Float64("metric", v.Metric).
				Msg("checkpoint saved")
		}
		rec.DurationMs = time.Since(start).Milliseconds()
		history.Epochs = append(history.Epochs, rec)
		history.BestMetric = policy.Best()

		log.Info().
			Str("component", component).
			Int("epoch", epoch).
			Float64("loss_d", rec.LossD).
			Float64("loss_g", rec.LossG).
			Float64("d_ideal", rec.DIdeal).
			Float64("d_noisy", rec.DNoisy).
			Float64("d_fake", rec.DFake).
			Float64("best", policy.Best()).
			Msg("epoch complete")
	}

	if err := finish(ctx, t.sinks, history); err != nil {
		return history, err
	}
	return history, nil
}

func finish(ctx context.Context, sinks Sinks, history *run.History) error {
	if sinks.Metrics != nil {
		if err := sinks.Metrics.AppendBest(ctx, history.Kind, history.TrainSize, history.BestMetric); err != nil {
			return errors.Wrap(err, "failed to append best metric")
		}
	}
	if sinks.Reporter != nil {
		if err := sinks.Reporter.Report(ctx, history); err != nil {
			return errors.Wrap(err, "failed to write history report")
		}
	}
	log.Info().
		Str("component", component).
		Str("run_id", history.RunID.String()).
		Str("kind", string(history.Kind)).
		Int("epochs", len(history.Epochs)).
		Ints("checkpointed", history.Improved()).
		Float64("best", history.BestMetric).
		Msg("run finished")
	return nil
}
