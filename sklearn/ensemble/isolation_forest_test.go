package ensemble

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

func clusterWithOutliers() *mat.Dense {
	rng := rand.New(rand.NewPCG(3, 3))
	X := mat.NewDense(200, 2, nil)
	for i := 0; i < 195; i++ {
		X.Set(i, 0, rng.NormFloat64())
		X.Set(i, 1, rng.NormFloat64())
	}
	for i := 195; i < 200; i++ {
		X.Set(i, 0, 15+float64(i-195))
		X.Set(i, 1, -15-float64(i-195))
	}
	return X
}

func TestIsolationForestFlagsOutliers(t *testing.T) {
	X := clusterWithOutliers()
	f := NewIsolationForest(WithEstimators(100), WithContamination(0.025))

	labels, err := f.FitPredict(X)
	require.NoError(t, err)
	require.Len(t, labels, 200)

	for i := 195; i < 200; i++ {
		assert.Equal(t, -1, labels[i], "row %d", i)
	}
	anomalies := 0
	for _, l := range labels {
		if l == -1 {
			anomalies++
		}
	}
	assert.Equal(t, 5, anomalies)

	scores, err := f.ScoreSamples(X)
	require.NoError(t, err)
	assert.Greater(t, scores[199], scores[0])
	for _, s := range scores {
		assert.True(t, s > 0 && s <= 1)
	}
}

func TestIsolationForestDeterministic(t *testing.T) {
	X := clusterWithOutliers()
	a, b := NewIsolationForest(), NewIsolationForest()
	require.NoError(t, a.Fit(X))
	require.NoError(t, b.Fit(X))
	sa, _ := a.ScoreSamples(X)
	sb, _ := b.ScoreSamples(X)
	assert.Equal(t, sa, sb)
	assert.Equal(t, a.Threshold, b.Threshold)
}

func TestIsolationForestErrors(t *testing.T) {
	_, err := NewIsolationForest().Predict(mat.NewDense(2, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	err = NewIsolationForest(WithContamination(0.7)).Fit(clusterWithOutliers())
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	f := NewIsolationForest()
	require.NoError(t, f.Fit(clusterWithOutliers()))
	_, err = f.ScoreSamples(mat.NewDense(1, 3, nil))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestAveragePathLength(t *testing.T) {
	assert.Equal(t, 0.0, averagePathLength(1))
	assert.Equal(t, 1.0, averagePathLength(2))
	assert.InDelta(t, 10.2448, averagePathLength(256), 1e-3)
}

func TestQuantileLinear(t *testing.T) {
	assert.Equal(t, 2.5, quantile([]float64{4, 1, 3, 2}, 0.5))
	assert.InDelta(t, 3.85, quantile([]float64{1, 2, 3, 4}, 0.95), 1e-12)
}
