package ensemble

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
	"github.com/YuminosukeSato/songstreams/sklearn/model_selection"
)

// CVResult holds per-round RMSE statistics across folds. Index r is the
// ensemble after r+1 trees.
type CVResult struct {
	TrainRMSEMean []float64 `json:"train_rmse_mean"`
	TrainRMSEStd  []float64 `json:"train_rmse_std"`
	TestRMSEMean  []float64 `json:"test_rmse_mean"`
	TestRMSEStd   []float64 `json:"test_rmse_std"`
	Folds         int       `json:"folds"`
}

// BestRound returns the round with the lowest mean test RMSE.
func (r *CVResult) BestRound() int {
	best := 0
	for i, v := range r.TestRMSEMean {
		if v < r.TestRMSEMean[best] {
			best = i
		}
	}
	return best
}

// CrossValidate fits a clone of base on every training fold with the held-out
// fold as validation set and aggregates the per-round RMSE curves. Early
// stopping is disabled so every fold runs the same number of rounds.
func CrossValidate(base *GradientBoostingRegressor, X, y mat.Matrix, splitter model_selection.Splitter) (*CVResult, error) {
	n, _ := X.Dims()
	ny, _ := y.Dims()
	if n != ny {
		return nil, errors.NewDimensionError("ensemble.CrossValidate", n, ny, 0)
	}
	folds, err := splitter.Split(n)
	if err != nil {
		return nil, err
	}

	rounds := base.Rounds
	train := make([][]float64, len(folds))
	test := make([][]float64, len(folds))
	for f, fold := range folds {
		g := base.CloneUnfitted().(*GradientBoostingRegressor)
		g.EarlyStoppingRounds = 0
		g.SetValidation(model_selection.Take(X, fold.Test), model_selection.Take(y, fold.Test))
		if err := g.Fit(model_selection.Take(X, fold.Train), model_selection.Take(y, fold.Train)); err != nil {
			return nil, errors.Wrapf(err, "fold %d", f)
		}
		train[f] = g.History[EvalTrainRMSE]
		test[f] = g.History[EvalValidRMSE]
	}

	res := &CVResult{
		TrainRMSEMean: make([]float64, rounds),
		TrainRMSEStd:  make([]float64, rounds),
		TestRMSEMean:  make([]float64, rounds),
		TestRMSEStd:   make([]float64, rounds),
		Folds:         len(folds),
	}
	column := make([]float64, len(folds))
	for r := 0; r < rounds; r++ {
		for f := range folds {
			column[f] = train[f][r]
		}
		res.TrainRMSEMean[r], res.TrainRMSEStd[r] = meanStd(column)
		for f := range folds {
			column[f] = test[f][r]
		}
		res.TestRMSEMean[r], res.TestRMSEStd[r] = meanStd(column)
	}

	best := res.BestRound()
	log.GetLoggerWithName("ensemble").Info("Cross validation completed",
		log.ModelNameKey, base.Name(),
		"folds", len(folds),
		"best_round", best,
		log.RMSEKey, res.TestRMSEMean[best],
	)
	return res, nil
}

func meanStd(values []float64) (float64, float64) {
	mean, variance := stat.PopMeanVariance(values, nil)
	return mean, math.Sqrt(variance)
}
