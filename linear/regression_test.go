package linear

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

var _ model.Regressor = (*LinearRegression)(nil)

func TestLinearRegressionThreeRecordsMatchesAnalyticFit(t *testing.T) {
	// x = 1,2,3  y = 2,4,7
	// slope = Σ(x-x̄)(y-ȳ) / Σ(x-x̄)² = 5/2, intercept = ȳ - slope·x̄ = 13/3 - 5 = -2/3
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{2, 4, 7})

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	assert.InDelta(t, 2.5, lr.Coefficients[0], 1e-10)
	assert.InDelta(t, -2.0/3.0, lr.Intercept, 1e-10)

	pred, err := lr.Predict(X)
	require.NoError(t, err)
	want := []float64{11.0 / 6.0, 26.0 / 6.0, 41.0 / 6.0}
	for i, w := range want {
		assert.InDelta(t, w, pred.At(i, 0), 1e-10)
	}
}

func TestLinearRegressionRecoversKnownWeights(t *testing.T) {
	X, y := createBenchmarkData(500, 4)

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	for j, w := range []float64{0.5, 1.0, 1.5, 2.0} {
		assert.InDelta(t, w, lr.Coefficients[j], 0.02)
	}
	assert.InDelta(t, 1.0, lr.Intercept, 0.02)

	score, err := lr.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, score, 0.99)
}

func TestLinearRegressionWithoutIntercept(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{2, 4, 6})

	lr := NewLinearRegression(WithFitIntercept(false))
	require.NoError(t, lr.Fit(X, y))
	assert.InDelta(t, 2.0, lr.Coefficients[0], 1e-10)
	assert.Equal(t, 0.0, lr.Intercept)
}

func TestLinearRegressionCollinearFeatures(t *testing.T) {
	// The second column duplicates the first; the minimum-norm solution splits
	// the weight evenly.
	X := mat.NewDense(4, 2, []float64{
		1, 1,
		2, 2,
		3, 3,
		4, 4,
	})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.InDelta(t, 1.0, lr.Coefficients[0], 1e-8)
	assert.InDelta(t, 1.0, lr.Coefficients[1], 1e-8)
	assert.InDelta(t, 1.0, lr.Intercept, 1e-8)
}

func TestLinearRegressionErrors(t *testing.T) {
	lr := NewLinearRegression()

	_, err := lr.Predict(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	_, err = lr.ExportWeights(nil)
	assert.True(t, errors.As(err, &nf))

	err = lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(2, 1, []float64{1, 2}))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	require.NoError(t, lr.Fit(mat.NewDense(3, 2, []float64{1, 0, 2, 1, 3, 5}), mat.NewDense(3, 1, []float64{1, 2, 3})))
	_, err = lr.Predict(mat.NewDense(2, 3, nil))
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 2, de.Expected)
	assert.Equal(t, 3, de.Got)
}

func TestLinearRegressionRefitOverwrites(t *testing.T) {
	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(3, 1, []float64{1, 2, 3})))
	require.NoError(t, lr.Fit(mat.NewDense(3, 2, []float64{1, 0, 2, 1, 3, 5}), mat.NewDense(3, 1, []float64{1, 2, 3})))

	assert.Len(t, lr.Coefficients, 2)
	_, err := lr.Predict(mat.NewDense(1, 1, nil))
	assert.Error(t, err)
}

func TestLinearRegressionDeterministic(t *testing.T) {
	X, y := createBenchmarkData(200, 5)
	a, b := NewLinearRegression(), NewLinearRegression()
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	pa, err := a.Predict(X)
	require.NoError(t, err)
	pb, err := b.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(pa, pb))
}

func TestLinearRegressionExportAndPersist(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{2, 4, 7})
	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))

	w, err := lr.ExportWeights([]string{"bpm"})
	require.NoError(t, err)
	require.NoError(t, w.Validate())
	assert.InDelta(t, 2.5, w.Named()["bpm"], 1e-10)

	_, err = lr.ExportWeights([]string{"a", "b"})
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, model.SaveModelToWriter(lr, &buf))
	var loaded LinearRegression
	require.NoError(t, model.LoadModelFromReader(&loaded, &buf))

	p1, err := lr.Predict(X)
	require.NoError(t, err)
	p2, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(p1, p2))
}
