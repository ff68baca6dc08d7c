package models

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/internal/nn"
)

func testRand() *rand.Rand { return rand.New(rand.NewPCG(11, 13)) }

func randomObservables(r *rand.Rand, n int) []*quantum.Matrix {
	out := make([]*quantum.Matrix, n)
	for i := range out {
		a := complex(r.Float64()*2-1, 0)
		b := complex(r.Float64()*2-1, r.Float64()*2-1)
		d := complex(r.Float64()*2-1, 0)
		out[i] = quantum.MustMatrix([][]complex128{{a, b}, {complex(real(b), -imag(b)), d}})
	}
	return out
}

func TestGeneratorRowsAreDistributions(t *testing.T) {
	r := testRand()
	g, err := NewGenerator(DefaultShape(5, 4), []int{16}, r)
	require.NoError(t, err)

	probs, err := g.Generate(randomObservables(r, 7))
	require.NoError(t, err)
	require.Len(t, probs, 7)
	for _, p := range probs {
		assert.Equal(t, 5, p.Gates)
		assert.Equal(t, 4, p.Actions)
		assert.NoError(t, p.Validate(1e-9))
	}
}

func TestGeneratorRejectsWrongWidth(t *testing.T) {
	g, err := NewGenerator(DefaultShape(2, 4), []int{8}, testRand())
	require.NoError(t, err)
	_, err = g.GenerateBatch(mat.NewDense(2, 3, nil))
	assert.Error(t, err)
}

func TestDiscriminatorScoresInUnitInterval(t *testing.T) {
	r := testRand()
	d, err := NewDiscriminator(DefaultShape(1, 4), []int{16, 16}, r)
	require.NoError(t, err)

	obs := randomObservables(r, 6)
	exp := []float64{0, 1, -1, 1e6, -1e6, 1e12}
	scores, err := d.Score(exp, obs)
	require.NoError(t, err)
	for _, s := range scores {
		assert.False(t, math.IsNaN(s))
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}

	_, err = d.Score(exp[:2], obs)
	assert.Error(t, err)
}

func TestSurrogatePredictShapeChecks(t *testing.T) {
	r := testRand()
	s, err := NewSurrogate(DefaultShape(3, 4), []int{8}, r)
	require.NoError(t, err)

	obs := randomObservables(r, 2)
	probs := []mitigation.Probabilities{mitigation.NewProbabilities(3, 4), mitigation.NewProbabilities(3, 4)}
	out, err := s.Predict(probs, obs)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	_, err = s.Predict([]mitigation.Probabilities{mitigation.NewProbabilities(2, 4), mitigation.NewProbabilities(2, 4)}, obs)
	assert.Error(t, err)
	_, err = s.Predict(probs[:1], obs)
	assert.Error(t, err)
}

// gradients flow D-input → S → softmax → G the way the trainer uses them
func TestChainedGradientMatchesFiniteDifferences(t *testing.T) {
	r := testRand()
	shape := DefaultShape(2, 4)
	g, err := NewGenerator(shape, []int{6}, r)
	require.NoError(t, err)
	s, err := NewSurrogate(shape, []int{6}, r)
	require.NoError(t, err)
	d, err := NewDiscriminator(shape, []int{6}, r)
	require.NoError(t, err)

	feat, err := EncodeObservables(randomObservables(r, 3), ObservableDim)
	require.NoError(t, err)

	loss := func() float64 {
		probs, err := g.GenerateBatch(feat)
		require.NoError(t, err)
		fake, err := s.PredictBatch(probs, feat)
		require.NoError(t, err)
		pass, err := d.Forward(fake, feat)
		require.NoError(t, err)
		l, _, err := nn.BCEWithLogits(pass.Logits, 1)
		require.NoError(t, err)
		return l
	}

	g.Network().ZeroGrad()
	s.Network().ZeroGrad()
	d.Network().ZeroGrad()

	gp, err := g.Forward(feat)
	require.NoError(t, err)
	sp, err := s.Forward(gp.Probs, feat)
	require.NoError(t, err)
	dp, err := d.Forward(sp.Output, feat)
	require.NoError(t, err)
	_, dLogits, err := nn.BCEWithLogits(dp.Logits, 1)
	require.NoError(t, err)
	dExp, err := d.ExpectationGrad(dp, dLogits)
	require.NoError(t, err)
	dProbs, err := s.Backward(sp, dExp)
	require.NoError(t, err)
	require.NoError(t, g.Backward(gp, dProbs))

	for _, p := range d.Network().Params() {
		assert.Zero(t, mat.Sum(p.Grad), "discriminator must not accumulate in the generator phase")
	}

	const h = 1e-6
	for _, net := range []*nn.MLP{g.Network(), s.Network()} {
		for _, p := range net.Params() {
			w := p.Value.RawMatrix().Data
			grad := p.Grad.RawMatrix().Data
			for i := range w {
				orig := w[i]
				w[i] = orig + h
				up := loss()
				w[i] = orig - h
				down := loss()
				w[i] = orig
				assert.InDelta(t, (up-down)/(2*h), grad[i], 1e-6, "%s[%d]", p.Name, i)
			}
		}
	}
}

func TestSnapshotsRestoreAcrossInstances(t *testing.T) {
	r := testRand()
	shape := DefaultShape(2, 4)
	a, err := NewSurrogate(shape, []int{4}, r)
	require.NoError(t, err)
	b, err := NewSurrogate(shape, []int{4}, r)
	require.NoError(t, err)
	require.NoError(t, b.Restore(a.Snapshot()))
	assert.Equal(t, a.Snapshot(), b.Snapshot())

	g, err := NewGenerator(shape, []int{4}, r)
	require.NoError(t, err)
	assert.Error(t, g.Restore(a.Snapshot()))
}
