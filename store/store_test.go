package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/linear"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/sklearn/ensemble"
	"github.com/YuminosukeSato/songstreams/sklearn/neural_network"
)

func data() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(40, 2, nil)
	y := mat.NewDense(40, 1, nil)
	for i := 0; i < 40; i++ {
		a, b := float64(i%7), float64(i%5)
		X.SetRow(i, []float64{a, b})
		y.Set(i, 0, 3*a-b+a*b)
	}
	return X, y
}

func TestRoundTripPreservesPredictions(t *testing.T) {
	X, y := data()
	s := Open(t.TempDir())

	cases := []struct {
		name  string
		model model.Regressor
		empty model.Regressor
	}{
		{"linear", linear.NewLinearRegression(), &linear.LinearRegression{}},
		{"boosting", ensemble.NewGradientBoostingRegressor(ensemble.WithRounds(10)), &ensemble.GradientBoostingRegressor{}},
		{"mlp", neural_network.NewMLPRegressor(neural_network.WithHiddenLayerSizes(6), neural_network.WithMaxIter(20)), &neural_network.MLPRegressor{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.model.Fit(X, y))
			require.NoError(t, s.Save(tc.name, tc.model))
			require.NoError(t, s.Load(tc.name, tc.empty))

			want, err := tc.model.Predict(X)
			require.NoError(t, err)
			got, err := tc.empty.Predict(X)
			require.NoError(t, err)
			assert.True(t, mat.Equal(want, got))
		})
	}
	assert.Equal(t, []string{"boosting", "linear", "mlp"}, s.Keys())
}

func TestLoadMissing(t *testing.T) {
	s := Open(t.TempDir())
	err := s.Load("nope", &linear.LinearRegression{})
	assert.True(t, errors.Is(err, ErrModelNotFound))
	assert.True(t, errors.Is(s.Delete("nope"), ErrModelNotFound))
	assert.Empty(t, s.Keys())
}

func TestInvalidName(t *testing.T) {
	s := Open(t.TempDir())
	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		err := s.Save(name, linear.NewLinearRegression())
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve), name)
	}
}

func TestDelete(t *testing.T) {
	s := Open(t.TempDir())
	require.NoError(t, s.Save("m", linear.NewLinearRegression()))
	assert.True(t, s.Has("m"))
	require.NoError(t, s.Delete("m"))
	assert.False(t, s.Has("m"))
}

func TestWeightsRoundTrip(t *testing.T) {
	X, y := data()
	lr := linear.NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	w, err := lr.ExportWeights([]string{"a", "b"})
	require.NoError(t, err)

	s := Open(t.TempDir())
	require.NoError(t, s.SaveWeights("linear", w))
	got, err := s.LoadWeights("linear")
	require.NoError(t, err)
	assert.Equal(t, w.Coefficients, got.Coefficients)
	assert.Equal(t, w.Named(), got.Named())

	_, err = s.LoadWeights("other")
	assert.True(t, errors.Is(err, ErrModelNotFound))
}
