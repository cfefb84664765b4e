package model_selection

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/core/parallel"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
)

// ParamGrid maps a hyperparameter name to the values to try.
type ParamGrid map[string][]interface{}

// Candidates expands the grid into every combination. Keys are visited in
// sorted order and the last key varies fastest, so the order is stable.
func (g ParamGrid) Candidates() []map[string]interface{} {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []map[string]interface{}{{}}
	for _, k := range keys {
		var next []map[string]interface{}
		for _, base := range out {
			for _, v := range g[k] {
				c := make(map[string]interface{}, len(base)+1)
				for bk, bv := range base {
					c[bk] = bv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		out = next
	}
	return out
}

// CandidateResult is the cross-validated score of one parameter combination.
type CandidateResult struct {
	Params    map[string]interface{} `json:"params"`
	Scores    []float64              `json:"scores"`
	MeanScore float64                `json:"mean_score"`
	StdScore  float64                `json:"std_score"`
	Rank      int                    `json:"rank"`
}

// GridSearchCV evaluates every candidate of ParamGrid with cross validation
// and refits the best one on the full data.
type GridSearchCV struct {
	Estimator model.Tunable
	ParamGrid ParamGrid
	CV        Splitter
	Scoring   Scorer
	Refit     bool

	Results       []CandidateResult
	BestIndex     int
	BestParams    map[string]interface{}
	BestScore     float64
	BestEstimator model.Tunable
}

// NewGridSearchCV creates a grid search scored by negative MSE with refit enabled.
func NewGridSearchCV(estimator model.Tunable, grid ParamGrid, cv Splitter) *GridSearchCV {
	return &GridSearchCV{
		Estimator: estimator,
		ParamGrid: grid,
		CV:        cv,
		Scoring:   NegMeanSquaredError,
		Refit:     true,
	}
}

// Fit runs the search. Candidates are evaluated concurrently, each into its own
// slot; the highest mean score wins and the earliest candidate wins ties.
func (gs *GridSearchCV) Fit(X, y mat.Matrix) error {
	if gs.Estimator == nil || gs.CV == nil || gs.Scoring == nil {
		return errors.NewValidationError("GridSearchCV", "estimator, cv and scoring are required", nil)
	}
	candidates := gs.ParamGrid.Candidates()
	logger := log.GetLoggerWithName("model_selection").With(log.ModelNameKey, gs.Estimator.Name())
	logger.Info("Grid search started", "candidates", len(candidates), "folds", gs.CV.NSplits())

	// パラメータ名を事前に検証する
	for _, params := range candidates {
		if err := gs.Estimator.CloneUnfitted().SetParams(params); err != nil {
			return err
		}
	}

	results := make([]CandidateResult, len(candidates))
	err := parallel.ForEach(len(candidates), 1, func(i int) error {
		params := candidates[i]
		factory := func() (model.Regressor, error) {
			m := gs.Estimator.CloneUnfitted()
			if err := m.SetParams(params); err != nil {
				return nil, err
			}
			return m, nil
		}
		scores, err := CrossValScore(factory, X, y, gs.CV, gs.Scoring)
		if err != nil {
			return errors.Wrapf(err, "candidate %s", FormatParams(params))
		}
		mean, std := MeanStd(scores)
		results[i] = CandidateResult{Params: params, Scores: scores, MeanScore: mean, StdScore: std}
		return nil
	})
	if err != nil {
		return err
	}

	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return results[order[a]].MeanScore > results[order[b]].MeanScore
	})
	for rank, idx := range order {
		results[idx].Rank = rank + 1
	}

	gs.Results = results
	gs.BestIndex = order[0]
	gs.BestParams = results[gs.BestIndex].Params
	gs.BestScore = results[gs.BestIndex].MeanScore

	logger.Info("Grid search completed",
		"best_params", FormatParams(gs.BestParams),
		"best_score", gs.BestScore,
	)

	if gs.Refit {
		best := gs.Estimator.CloneUnfitted()
		if err := best.SetParams(gs.BestParams); err != nil {
			return err
		}
		if err := best.Fit(X, y); err != nil {
			return errors.Wrap(err, "refit of best candidate")
		}
		gs.BestEstimator = best
	}
	return nil
}

// FormatParams renders params as "k=v, k=v" in sorted key order.
func FormatParams(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, ", ")
}
