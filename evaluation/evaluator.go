// Package evaluation scores trained regressors on held-out data and ranks
// them against each other.
package evaluation

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/metrics"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
	"github.com/YuminosukeSato/songstreams/sklearn/model_selection"
)

// Result holds the test-set metrics of one model.
type Result struct {
	Model             string  `json:"model"`
	MSE               float64 `json:"mse"`
	RMSE              float64 `json:"rmse"`
	MAE               float64 `json:"mae"`
	R2                float64 `json:"r2"`
	ExplainedVariance float64 `json:"explained_variance"`
	// MAPE is in percent; 0 when every target is zero.
	MAPE    float64 `json:"mape"`
	Samples int     `json:"samples"`
}

// Evaluator computes Results. It holds no state between calls.
type Evaluator struct {
	logger log.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{logger: log.GetLoggerWithName("evaluation")}
}

// Evaluate predicts X with m and scores the predictions against y.
func (e *Evaluator) Evaluate(m model.Regressor, X, y mat.Matrix) (Result, error) {
	pred, err := m.Predict(X)
	if err != nil {
		return Result{}, err
	}
	return e.EvaluatePredictions(m.Name(), y, pred)
}

// EvaluatePredictions scores precomputed predictions.
func (e *Evaluator) EvaluatePredictions(name string, yTrue, yPred mat.Matrix) (Result, error) {
	t, err := metrics.ColumnVector("Evaluate", yTrue)
	if err != nil {
		return Result{}, err
	}
	p, err := metrics.ColumnVector("Evaluate", yPred)
	if err != nil {
		return Result{}, err
	}

	res := Result{Model: name, Samples: t.Len()}
	if res.MSE, err = metrics.MSE(t, p); err != nil {
		return Result{}, err
	}
	res.RMSE = math.Sqrt(res.MSE)
	if res.MAE, err = metrics.MAE(t, p); err != nil {
		return Result{}, err
	}
	if res.R2, err = metrics.R2Score(t, p); err != nil {
		return Result{}, err
	}
	if res.ExplainedVariance, err = metrics.ExplainedVarianceScore(t, p); err != nil {
		return Result{}, err
	}
	if res.MAPE, err = metrics.MAPE(t, p); err != nil {
		var ce *errors.ComputeError
		if !errors.As(err, &ce) {
			return Result{}, err
		}
		e.logger.Warn("MAPE undefined", log.ModelNameKey, name, "reason", ce.Reason)
		res.MAPE = 0
	}

	e.logger.Info("Model evaluated",
		log.ModelNameKey, name,
		log.OperationKey, log.OperationScore,
		log.PhaseKey, log.PhaseTesting,
		log.SamplesKey, res.Samples,
		log.RMSEKey, res.RMSE,
		log.MAEKey, res.MAE,
		log.R2ScoreKey, res.R2,
	)
	return res, nil
}

// Comparison is a set of Results ranked by RMSE, lowest first.
type Comparison struct {
	Results []Result `json:"results"`
	Best    string   `json:"best"`
}

// Compare ranks results by RMSE ascending; equal RMSE is ordered by name.
func Compare(results ...Result) Comparison {
	ranked := append([]Result(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RMSE != ranked[j].RMSE {
			return ranked[i].RMSE < ranked[j].RMSE
		}
		return ranked[i].Model < ranked[j].Model
	})
	c := Comparison{Results: ranked}
	if len(ranked) > 0 {
		c.Best = ranked[0].Model
	}
	return c
}

// WriteTable prints the ranking as an aligned text table.
func (c Comparison) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "rank\tmodel\tRMSE\tMAE\tR²\tMAPE %\tsamples\t")
	for i, r := range c.Results {
		fmt.Fprintf(tw, "%d\t%s\t%.4g\t%.4g\t%.4f\t%.2f\t%d\t\n",
			i+1, r.Model, r.RMSE, r.MAE, r.R2, r.MAPE, r.Samples)
	}
	return tw.Flush()
}

// Candidate names a model factory for cross validation.
type Candidate struct {
	Name    string
	Factory model_selection.Factory
}

// CVScore is the k-fold RMSE of one candidate. Rows is the number of rows
// split into folds.
type CVScore struct {
	Model    string    `json:"model"`
	Rows     int       `json:"rows"`
	RMSEMean float64   `json:"rmse_mean"`
	RMSEStd  float64   `json:"rmse_std"`
	Folds    []float64 `json:"folds"`
}

// CrossValidate reports the per-fold RMSE of every candidate on the same folds.
func (e *Evaluator) CrossValidate(candidates []Candidate, X, y mat.Matrix, splitter model_selection.Splitter) ([]CVScore, error) {
	out := make([]CVScore, 0, len(candidates))
	rows, _ := X.Dims()
	for _, c := range candidates {
		scores, err := model_selection.CrossValScore(c.Factory, X, y, splitter, model_selection.NegRootMeanSquaredError)
		if err != nil {
			return nil, errors.Wrapf(err, "cross validation of %s", c.Name)
		}
		for i := range scores {
			scores[i] = -scores[i]
		}
		mean, std := model_selection.MeanStd(scores)
		out = append(out, CVScore{Model: c.Name, Rows: rows, RMSEMean: mean, RMSEStd: std, Folds: scores})
		e.logger.Info("Cross-validated",
			log.ModelNameKey, c.Name,
			log.PhaseKey, log.PhaseValidation,
			"folds", len(scores),
			log.RMSEKey, mean,
		)
	}
	return out, nil
}
