package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

func vec(v ...float64) *mat.VecDense {
	return mat.NewVecDense(len(v), v)
}

func TestMSE(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   *mat.VecDense
		yPred   *mat.VecDense
		want    float64
		wantErr bool
	}{
		{"perfect prediction", vec(1, 2, 3, 4, 5), vec(1, 2, 3, 4, 5), 0, false},
		{"simple case", vec(1, 2, 3, 4), vec(1.5, 2.5, 2.5, 3.5), 0.25, false},
		{"larger errors", vec(10, 20, 30), vec(12, 18, 33), 17.0 / 3.0, false},
		{"dimension mismatch", vec(1, 2, 3), vec(1, 2), 0, true},
		{"empty vectors", &mat.VecDense{}, &mat.VecDense{}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MSE(tt.yTrue, tt.yPred)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)
		})
	}
}

func TestMSEMatrix(t *testing.T) {
	yTrue := mat.NewDense(3, 1, []float64{1, 2, 3})
	yPred := mat.NewDense(3, 1, []float64{1, 2, 5})

	got, err := MSEMatrix(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3.0, got, 1e-12)

	_, err = MSEMatrix(mat.NewDense(2, 2, nil), mat.NewDense(2, 2, nil))
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Axis)

	_, err = MSEMatrix(yTrue, mat.NewDense(2, 1, nil))
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Axis)
}

func TestRMSEAndMAE(t *testing.T) {
	yTrue := vec(1, 2, 3, 4)
	yPred := vec(2, 2, 1, 4)

	rmse, err := RMSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(5.0/4.0), rmse, 1e-12)

	mae, err := MAE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, mae, 1e-12)

	_, err = RMSE(yTrue, vec(1))
	assert.Error(t, err)
	_, err = MAE(yTrue, vec(1))
	assert.Error(t, err)
}

func TestR2Score(t *testing.T) {
	tests := []struct {
		name  string
		yTrue *mat.VecDense
		yPred *mat.VecDense
		want  float64
	}{
		{"perfect prediction", vec(1, 2, 3), vec(1, 2, 3), 1},
		{"mean baseline", vec(1, 2, 3), vec(2, 2, 2), 0},
		{"worse than mean baseline", vec(1, 2, 3), vec(3, 2, 1), -3},
		{"constant target exact", vec(5, 5), vec(5, 5), 1},
		{"constant target miss", vec(5, 5), vec(4, 6), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := R2Score(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	_, err := R2Score(vec(1, 2), vec(1))
	assert.Error(t, err)
}

func TestMAPE(t *testing.T) {
	got, err := MAPE(vec(100, 200, 0), vec(110, 180, 5))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got, 1e-12)

	_, err = MAPE(vec(0, 0), vec(1, 1))
	var ce *errors.ComputeError
	assert.True(t, errors.As(err, &ce))
}

func TestExplainedVarianceScore(t *testing.T) {
	// A constant offset is fully explained.
	got, err := ExplainedVarianceScore(vec(1, 2, 3, 4), vec(2, 3, 4, 5))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-12)

	got, err = ExplainedVarianceScore(vec(1, 2, 3), vec(2, 2, 2))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-12)

	_, err = ExplainedVarianceScore(vec(1, 2, 3), vec(1))
	assert.Error(t, err)
}

func TestColumnVector(t *testing.T) {
	v, err := ColumnVector("test", mat.NewDense(2, 1, []float64{3, 4}))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, []float64{v.AtVec(0), v.AtVec(1)})

	_, err = ColumnVector("test", mat.NewDense(2, 3, nil))
	assert.Error(t, err)
}
