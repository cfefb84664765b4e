package neural_network

import (
	"io"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
)

var _ model.Tunable = (*MLPRegressor)(nil)

func smoothData(n int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(11, 11))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a, b, c := rng.Float64()*2-1, rng.Float64()*2-1, rng.Float64()*2-1
		X.SetRow(i, []float64{a, b, c})
		y.Set(i, 0, 1000+500*a-300*b+200*a*c)
	}
	return X, y
}

func TestMLPAdamLearns(t *testing.T) {
	X, y := smoothData(300)
	m := NewMLPRegressor(WithHiddenLayerSizes(16, 16), WithMaxIter(300), WithLearningRate(0.01))
	require.NoError(t, m.Fit(X, y))

	assert.True(t, m.IsFitted())
	assert.Equal(t, []int{3, 16, 16, 1}, m.Layers)
	assert.Len(t, m.Params, 3*16+16+16*16+16+16+1)
	require.NotEmpty(t, m.LossCurve)
	assert.Less(t, m.LossCurve[len(m.LossCurve)-1], m.LossCurve[0])

	r2, err := m.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, r2, 0.85)
}

func TestMLPLBFGSLearns(t *testing.T) {
	X, y := smoothData(200)
	m := NewMLPRegressor(WithHiddenLayerSizes(10), WithSolver(SolverLBFGS), WithActivation(ActivationTanh), WithMaxIter(500))
	require.NoError(t, m.Fit(X, y))

	r2, err := m.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, r2, 0.9)
	assert.Greater(t, m.NIter, 0)
}

func TestMLPActivations(t *testing.T) {
	X, y := smoothData(120)
	for _, a := range []string{ActivationReLU, ActivationLogistic, ActivationTanh, ActivationIdentity} {
		t.Run(a, func(t *testing.T) {
			m := NewMLPRegressor(WithHiddenLayerSizes(8), WithActivation(a), WithMaxIter(50))
			require.NoError(t, m.Fit(X, y))
			pred, err := m.Predict(X)
			require.NoError(t, err)
			r, c := pred.Dims()
			assert.Equal(t, 120, r)
			assert.Equal(t, 1, c)
		})
	}
}

func TestMLPGradientMatchesFiniteDifference(t *testing.T) {
	X, y := smoothData(10)
	target := make([]float64, 10)
	for i := range target {
		target[i] = y.At(i, 0) / 1000
	}
	for _, a := range []string{ActivationLogistic, ActivationTanh, ActivationIdentity} {
		t.Run(a, func(t *testing.T) {
			m := NewMLPRegressor(WithHiddenLayerSizes(4, 3), WithActivation(a), WithAlpha(0.1))
			m.Layers = []int{3, 4, 3, 1}
			act, err := lookupActivation(a)
			require.NoError(t, err)
			params := m.initParams(rand.New(rand.NewPCG(1, 1)))

			grad := make([]float64, len(params))
			m.lossGrad(params, grad, X, target, act)

			const h = 1e-6
			for k := range params {
				orig := params[k]
				params[k] = orig + h
				up := m.lossGrad(params, nil, X, target, act)
				params[k] = orig - h
				down := m.lossGrad(params, nil, X, target, act)
				params[k] = orig
				assert.InDelta(t, (up-down)/(2*h), grad[k], 1e-5, "param %d", k)
			}
		})
	}
}

func TestMLPDeterministic(t *testing.T) {
	X, y := smoothData(100)
	a := NewMLPRegressor(WithHiddenLayerSizes(8, 8), WithMaxIter(20), WithSeed(5))
	b := NewMLPRegressor(WithHiddenLayerSizes(8, 8), WithMaxIter(20), WithSeed(5))
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	pa, _ := a.Predict(X)
	pb, _ := b.Predict(X)
	assert.True(t, mat.Equal(pa, pb))
}

func TestMLPConvergenceWarning(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	X, y := smoothData(50)
	m := NewMLPRegressor(WithHiddenLayerSizes(4), WithMaxIter(2))
	require.NoError(t, m.Fit(X, y))

	require.NotEmpty(t, warnings)
	var cw *errors.ConvergenceWarning
	assert.True(t, errors.As(warnings[0], &cw))
	assert.Equal(t, 2, m.NIter)
}

func TestMLPNonFiniteLoss(t *testing.T) {
	X, y := smoothData(20)
	X.Set(0, 0, math.Inf(1))
	err := NewMLPRegressor(WithHiddenLayerSizes(4), WithMaxIter(5)).Fit(X, y)
	var ce *errors.ComputeError
	assert.True(t, errors.As(err, &ce))
}

func TestMLPErrors(t *testing.T) {
	X, y := smoothData(20)

	_, err := NewMLPRegressor().Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	m := NewMLPRegressor(WithHiddenLayerSizes(4), WithMaxIter(3))
	require.NoError(t, m.Fit(X, y))
	_, err = m.Predict(mat.NewDense(2, 4, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	for _, opt := range []Option{WithSolver("sgd"), WithActivation("softplus"), WithMaxIter(0), WithHiddenLayerSizes(0)} {
		err := NewMLPRegressor(opt).Fit(X, y)
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve))
	}
}

func TestMLPParams(t *testing.T) {
	m := NewMLPRegressor()
	require.NoError(t, m.SetParams(map[string]interface{}{
		"hidden_layer_sizes": []interface{}{int64(10), int64(5)},
		"activation":         "tanh",
		"solver":             "lbfgs",
		"alpha":              0.01,
		"max_iter":           int64(500),
	}))
	assert.Equal(t, []int{10, 5}, m.HiddenLayerSizes)
	assert.Equal(t, "lbfgs", m.Solver)
	assert.Equal(t, 500, m.MaxIter)

	assert.Error(t, m.SetParams(map[string]interface{}{"momentum": 0.9}))
	assert.Error(t, m.SetParams(map[string]interface{}{"activation": "softplus"}))
	assert.Equal(t, "tanh", m.Activation)

	clone := m.CloneUnfitted()
	assert.Equal(t, m.GetParams(), clone.GetParams())
}

func TestMLPLogsTraining(t *testing.T) {
	provider, logger := log.NewTestLoggerProvider(log.LevelDebug)
	log.SetProvider(provider)
	defer log.SetProvider(log.NewZerologProvider(io.Discard, "json", log.LevelInfo))

	X, y := smoothData(30)
	require.NoError(t, NewMLPRegressor(WithHiddenLayerSizes(4), WithMaxIter(5)).Fit(X, y))
	assert.True(t, logger.ContainsMessage("Training completed"))
}
