package model_selection

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/metrics"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// Factory returns a fresh, unfitted model for each fold.
type Factory func() (model.Regressor, error)

// Scorer rates predictions; higher is better.
type Scorer func(yTrue, yPred mat.Matrix) (float64, error)

// NegMeanSquaredError is the negated MSE, so that larger is better.
func NegMeanSquaredError(yTrue, yPred mat.Matrix) (float64, error) {
	mse, err := metrics.MSEMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return -mse, nil
}

// NegRootMeanSquaredError is the negated RMSE.
func NegRootMeanSquaredError(yTrue, yPred mat.Matrix) (float64, error) {
	mse, err := metrics.MSEMatrix(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return -math.Sqrt(mse), nil
}

// R2 scores with the coefficient of determination.
func R2(yTrue, yPred mat.Matrix) (float64, error) {
	t, err := metrics.ColumnVector("R2", yTrue)
	if err != nil {
		return 0, err
	}
	p, err := metrics.ColumnVector("R2", yPred)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(t, p)
}

// CrossValScore fits a fresh model on each training fold and scores it on the
// held-out fold. Scores are returned in fold order.
func CrossValScore(factory Factory, X, y mat.Matrix, splitter Splitter, scorer Scorer) ([]float64, error) {
	n, _ := X.Dims()
	ny, _ := y.Dims()
	if n != ny {
		return nil, errors.NewDimensionError("CrossValScore", n, ny, 0)
	}
	folds, err := splitter.Split(n)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(folds))
	for i, fold := range folds {
		m, err := factory()
		if err != nil {
			return nil, err
		}
		if err := m.Fit(Take(X, fold.Train), Take(y, fold.Train)); err != nil {
			return nil, errors.Wrapf(err, "fold %d", i)
		}
		pred, err := m.Predict(Take(X, fold.Test))
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", i)
		}
		if scores[i], err = scorer(Take(y, fold.Test), pred); err != nil {
			return nil, err
		}
	}
	return scores, nil
}

// MeanStd returns the mean and population standard deviation of scores.
func MeanStd(scores []float64) (mean, std float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(scores, nil)
	return mean, math.Sqrt(variance)
}
