package training

import (
	"context"
	"math"
	"math/rand/v2"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goqem/adapters/storage"
	"goqem/domain/checkpoint"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/domain/run"
	"goqem/internal/datagen"
	"goqem/internal/errors"
	"goqem/internal/loader"
	"goqem/internal/logging"
	"goqem/internal/models"
	"goqem/internal/nn"
	"goqem/internal/rng"
)

func init() {
	logging.ConfigureTests()
}

type mockCheckpoints struct {
	mock.Mock
}

func (m *mockCheckpoints) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	return m.Called(ctx, cp).Error(0)
}

func (m *mockCheckpoints) Load(ctx context.Context) (*checkpoint.Checkpoint, error) {
	args := m.Called(ctx)
	cp, _ := args.Get(0).(*checkpoint.Checkpoint)
	return cp, args.Error(1)
}

func (m *mockCheckpoints) SaveSurrogate(ctx context.Context, w *checkpoint.SurrogateWeights) error {
	return m.Called(ctx, w).Error(0)
}

func (m *mockCheckpoints) LoadSurrogate(ctx context.Context) (*checkpoint.SurrogateWeights, error) {
	args := m.Called(ctx)
	w, _ := args.Get(0).(*checkpoint.SurrogateWeights)
	return w, args.Error(1)
}

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) AppendBest(ctx context.Context, kind run.Kind, trainSize int, best float64) error {
	return m.Called(ctx, kind, trainSize, best).Error(0)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) Report(ctx context.Context, h *run.History) error {
	return m.Called(ctx, h).Error(0)
}

var pauliZ = quantum.MustMatrix([][]complex128{{1, 0}, {0, -1}})

func newModels(t *testing.T, shape models.Shape, seed uint64) Models {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, seed+1))
	g, err := models.NewGenerator(shape, []int{16}, r)
	require.NoError(t, err)
	s, err := models.NewSurrogate(shape, []int{16}, r)
	require.NoError(t, err)
	d, err := models.NewDiscriminator(shape, []int{16}, r)
	require.NoError(t, err)
	return Models{Generator: g, Surrogate: s, Discriminator: d}
}

// constant makes a network output bias regardless of its input
func constant(net *nn.MLP, bias float64) {
	for _, p := range net.Params() {
		p.Value.Zero()
	}
	layers := net.Layers()
	layers[len(layers)-1].B.Value.Set(0, 0, bias)
}

func randomTriples(t *testing.T, n int, seed uint64) []mitigation.Triple {
	t.Helper()
	r := rand.New(rand.NewPCG(seed, 0))
	obs, err := datagen.DefaultSampler().SampleN(r, n)
	require.NoError(t, err)
	out := make([]mitigation.Triple, n)
	for i, o := range obs {
		ideal := r.Float64()*2 - 1
		out[i] = mitigation.Triple{Observable: o, Ideal: ideal, Noisy: 0.9 * ideal}
	}
	return out
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BatchSize = 4
	opts.Epochs = 4
	opts.LogEvery = 1
	opts.Prefetch = 1
	return opts
}

func TestBestMetricPolicy(t *testing.T) {
	p := NewBestMetricPolicy(1.0)
	var written []int
	for i, m := range []float64{0.5, 0.3, 0.4, 0.2} {
		if p.Observe(m) {
			written = append(written, i)
		}
	}
	assert.Equal(t, []int{0, 1, 3}, written)
	assert.Equal(t, 0.2, p.Best())

	assert.False(t, p.Observe(0.2), "ties do not improve")
	assert.False(t, NewBestMetricPolicy(1.0).Observe(1.0))
}

func TestStepBranchLosses(t *testing.T) {
	shape := models.DefaultShape(2, 4)
	m := newModels(t, shape, 1)
	const d = 0.7
	constant(m.Surrogate.Network(), 0.3)
	constant(m.Discriminator.Network(), nn.Logit(d))

	tr, err := NewTrainer(m, rng.New(1), testOptions(), Sinks{Checkpoints: &mockCheckpoints{}})
	require.NoError(t, err)

	batch := make([]mitigation.Triple, 4)
	for i := range batch {
		batch[i] = mitigation.Triple{Observable: pauliZ, Ideal: 1.0, Noisy: 0.5}
	}
	st, err := tr.Step(batch, rand.New(rand.NewPCG(2, 3)))
	require.NoError(t, err)

	assert.InDelta(t, -math.Log(d), st.LossIdeal, 1e-9)
	assert.InDelta(t, -math.Log(1-d), st.LossFake, 1e-9)
	assert.InDelta(t, -math.Log(1-d), st.LossNoisy, 1e-9)
	assert.InDelta(t, st.LossIdeal+st.LossFake+st.LossNoisy, st.LossD, 1e-12)
	assert.InDelta(t, d, st.DIdeal, 1e-9)
	assert.InDelta(t, d, st.DNoisy, 1e-9)
	assert.InDelta(t, d, st.DFakeBefore, 1e-9)
	assert.True(t, st.Finite())
}

func TestStepUpdatesAllNetworks(t *testing.T) {
	m := newModels(t, models.DefaultShape(3, 4), 4)
	gBefore := m.Generator.Snapshot()
	sBefore := m.Surrogate.Snapshot()
	dBefore := m.Discriminator.Snapshot()

	tr, err := NewTrainer(m, rng.New(4), testOptions(), Sinks{Checkpoints: &mockCheckpoints{}})
	require.NoError(t, err)
	_, err = tr.Step(randomTriples(t, 8, 4), rand.New(rand.NewPCG(5, 5)))
	require.NoError(t, err)

	assert.NotEqual(t, gBefore, m.Generator.Snapshot())
	assert.NotEqual(t, sBefore, m.Surrogate.Snapshot())
	assert.NotEqual(t, dBefore, m.Discriminator.Snapshot())
	assert.Equal(t, 1, tr.optD.Steps())
	assert.Equal(t, 1, tr.optG.Steps())
}

func TestTrainEpochFailureReleasesLoader(t *testing.T) {
	m := newModels(t, models.DefaultShape(2, 4), 21)
	tr, err := NewTrainer(m, rng.New(21), testOptions(), Sinks{Checkpoints: &mockCheckpoints{}})
	require.NoError(t, err)

	triples := randomTriples(t, 16, 21)
	triples[0].Observable = quantum.Identity(4)
	batches, err := loader.New(triples, loader.Options{BatchSize: 4, Prefetch: 1}, nil, "")
	require.NoError(t, err)

	before := runtime.NumGoroutine()
	for epoch := 0; epoch < 5; epoch++ {
		rec, err := tr.TrainEpoch(context.Background(), batches, epoch)
		require.Error(t, err)
		assert.Equal(t, 0, rec.Steps)
	}
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before }, time.Second, 10*time.Millisecond)
}

func TestValidatePerfectPredictionsGiveZero(t *testing.T) {
	m := newModels(t, models.DefaultShape(2, 4), 6)
	constant(m.Surrogate.Network(), 0.25)
	tr, err := NewTrainer(m, rng.New(6), testOptions(), Sinks{Checkpoints: &mockCheckpoints{}})
	require.NoError(t, err)

	val := randomTriples(t, 10, 6)
	for i := range val {
		val[i].Ideal = 0.25
	}
	v, err := tr.Validate(context.Background(), val)
	require.NoError(t, err)
	assert.Equal(t, 10, v.Count)
	assert.InDelta(t, 0, v.Metric, 1e-12)
	assert.InDelta(t, 0, v.Max, 1e-12)

	val[0].Ideal = 1.25
	v, err = tr.Validate(context.Background(), val)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v.Metric, 1e-12)
	assert.InDelta(t, 1, v.Max, 1e-12)
	assert.InDelta(t, 0, v.Median, 1e-12)
}

func TestRunCheckpointsOnlyOnImprovement(t *testing.T) {
	ctx := context.Background()
	ckpts := &mockCheckpoints{}
	metrics := &mockMetrics{}
	reporter := &mockReporter{}

	for epoch, metric := range map[int]float64{0: 0.5, 1: 0.3, 3: 0.2} {
		epoch, metric := epoch, metric
		ckpts.On("Save", mock.Anything, mock.MatchedBy(func(cp *checkpoint.Checkpoint) bool {
			return cp.Epoch == epoch && cp.Metric == metric
		})).Return(nil).Once()
	}
	metrics.On("AppendBest", mock.Anything, run.KindAdversarial, 8, 0.2).Return(nil).Once()
	reporter.On("Report", mock.Anything, mock.AnythingOfType("*run.History")).Return(nil).Once()

	shape := models.DefaultShape(2, 4)
	tr, err := NewTrainer(newModels(t, shape, 7), rng.New(7), testOptions(), Sinks{
		Checkpoints: ckpts, Metrics: metrics, Reporter: reporter,
	})
	require.NoError(t, err)

	sequence := []float64{0.5, 0.3, 0.4, 0.2}
	calls := 0
	tr.evaluate = func(ctx context.Context, val []mitigation.Triple) (Validation, error) {
		v := Validation{Count: len(val), Metric: sequence[calls]}
		calls++
		return v, nil
	}

	history, err := tr.Run(ctx, randomTriples(t, 8, 7), randomTriples(t, 4, 8))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 3}, history.Improved())
	assert.Equal(t, 0.2, history.BestMetric)
	require.Len(t, history.Epochs, 4)
	assert.Equal(t, 2, history.Epochs[0].Steps)
	ckpts.AssertExpectations(t)
	ckpts.AssertNumberOfCalls(t, "Save", 3)
	metrics.AssertExpectations(t)
	reporter.AssertExpectations(t)
}

func TestRunWithoutImprovementWritesNothing(t *testing.T) {
	ckpts := &mockCheckpoints{}
	opts := testOptions()
	opts.Epochs = 2
	tr, err := NewTrainer(newModels(t, models.DefaultShape(2, 4), 9), rng.New(9), opts, Sinks{Checkpoints: ckpts})
	require.NoError(t, err)
	tr.evaluate = func(ctx context.Context, val []mitigation.Triple) (Validation, error) {
		return Validation{Count: len(val), Metric: 1.0}, nil
	}

	history, err := tr.Run(context.Background(), randomTriples(t, 8, 9), randomTriples(t, 4, 10))
	require.NoError(t, err)
	assert.Empty(t, history.Improved())
	ckpts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRunHonoursCancellation(t *testing.T) {
	tr, err := NewTrainer(newModels(t, models.DefaultShape(2, 4), 11), rng.New(11), testOptions(), Sinks{Checkpoints: &mockCheckpoints{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Run(ctx, randomTriples(t, 8, 11), randomTriples(t, 4, 12))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewTrainerRejectsMismatchedShapes(t *testing.T) {
	m := newModels(t, models.DefaultShape(3, 4), 12)
	other := newModels(t, models.DefaultShape(2, 4), 13)
	m.Surrogate = other.Surrogate

	_, err := NewTrainer(m, rng.New(1), testOptions(), Sinks{Checkpoints: &mockCheckpoints{}})
	require.Error(t, err)
	assert.Equal(t, errors.CodePreconditionViolation, errors.GetCode(err))

	opts := testOptions()
	opts.RandomFraction = 2
	_, err = NewTrainer(newModels(t, models.DefaultShape(3, 4), 12), rng.New(1), opts, Sinks{Checkpoints: &mockCheckpoints{}})
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestResumeRestoresCheckpoint(t *testing.T) {
	shape := models.DefaultShape(2, 4)
	a, err := NewTrainer(newModels(t, shape, 14), rng.New(14), testOptions(), Sinks{Checkpoints: &mockCheckpoints{}})
	require.NoError(t, err)
	_, err = a.Step(randomTriples(t, 4, 14), rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	cp := a.checkpoint(3, 0.1, mitigation.Fingerprint(nil))

	bModels := newModels(t, shape, 15)
	b, err := NewTrainer(bModels, rng.New(15), testOptions(), Sinks{Checkpoints: &mockCheckpoints{}})
	require.NoError(t, err)
	require.NoError(t, b.Resume(cp))

	assert.Equal(t, cp.Generator, bModels.Generator.Snapshot())
	assert.Equal(t, cp.Discriminator, bModels.Discriminator.Snapshot())
	assert.Equal(t, 1, b.optG.Steps())
	assert.Equal(t, a.RunID(), b.RunID())

	cp.Shape = models.DefaultShape(5, 4)
	assert.Equal(t, errors.CodePreconditionViolation, errors.GetCode(b.Resume(cp)))
}

func TestPretrainerFitsAndSavesWeights(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := storage.NewCheckpointStore(filepath.Join(dir, "gan.gob"), filepath.Join(dir, "surrogate.gob"))

	shape := models.DefaultShape(2, 4)
	s, err := models.NewSurrogate(shape, []int{16}, rand.New(rand.NewPCG(16, 16)))
	require.NoError(t, err)

	r := rand.New(rand.NewPCG(17, 17))
	samples := make([]mitigation.SurrogateSample, 32)
	for i := range samples {
		obs, err := datagen.SurrogateSampler().Sample(r)
		require.NoError(t, err)
		raw := make([]float64, 8)
		for j := range raw {
			raw[j] = r.Float64()
		}
		probs, err := mitigation.ProbabilitiesFrom(2, 4, nn.SoftmaxGroups(raw, 4))
		require.NoError(t, err)
		samples[i] = mitigation.SurrogateSample{Probabilities: probs, Observable: obs, Expectation: 0.5}
	}

	opts := DefaultPretrainOptions()
	opts.BatchSize = 8
	opts.Epochs = 30
	opts.LR = 1e-2
	opts.InitialBestMetric = math.Inf(1)
	p, err := NewPretrainer(s, rng.New(17), opts, Sinks{Checkpoints: store})
	require.NoError(t, err)

	history, err := p.Run(ctx, samples[:24], samples[24:])
	require.NoError(t, err)
	require.Len(t, history.Epochs, 30)
	assert.Less(t, history.Epochs[29].LossMSE, history.Epochs[0].LossMSE)
	assert.Contains(t, history.Improved(), 0)

	w, err := store.LoadSurrogate(ctx)
	require.NoError(t, err)
	assert.Equal(t, history.BestMetric, w.Metric)
	assert.Equal(t, shape, w.Shape)
	assert.Equal(t, []int{16}, w.Hidden)
}

func TestPretrainerRejectsForeignShape(t *testing.T) {
	s, err := models.NewSurrogate(models.DefaultShape(2, 4), []int{8}, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	p, err := NewPretrainer(s, rng.New(1), DefaultPretrainOptions(), Sinks{Checkpoints: &mockCheckpoints{}})
	require.NoError(t, err)

	sample := mitigation.SurrogateSample{
		Probabilities: mitigation.NewProbabilities(3, 4),
		Observable:    pauliZ,
	}
	_, err = p.Step([]mitigation.SurrogateSample{sample})
	assert.Equal(t, errors.CodePreconditionViolation, errors.GetCode(err))
}
