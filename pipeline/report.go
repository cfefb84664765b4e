package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/songstreams/config"
	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/dataprep"
	"github.com/YuminosukeSato/songstreams/evaluation"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
	"github.com/YuminosukeSato/songstreams/sklearn/ensemble"
	"github.com/YuminosukeSato/songstreams/sklearn/model_selection"
)

// Report is everything a run produced. It is written as report.json.
type Report struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Config     *config.Config `json:"config"`

	Data            DataSummary           `json:"data"`
	Comparison      evaluation.Comparison `json:"comparison"`
	CrossValidation []evaluation.CVScore  `json:"cross_validation"`
	BoostingCV      *ensemble.CVResult    `json:"boosting_cv,omitempty"`
	Linear          LinearSummary         `json:"linear"`
	Boosting        BoostingSummary       `json:"boosting"`
	GridSearch      *GridSearchSummary    `json:"grid_search,omitempty"`

	Charts       []string `json:"charts,omitempty"`
	ChartErrors  []string `json:"chart_errors,omitempty"`
	StoreDir     string   `json:"store_dir,omitempty"`
	StoredModels []string `json:"stored_models,omitempty"`
}

// DataSummary follows the rows through the data stages.
type DataSummary struct {
	RowsLoaded    int                   `json:"rows_loaded"`
	Clean         dataprep.CleanStats   `json:"clean"`
	Features      dataprep.FeatureStats `json:"features"`
	ReferenceDate string                `json:"reference_date"`
	FeatureNames  []string              `json:"feature_names"`
	TrainRows     int                   `json:"train_rows"`
	TestRows      int                   `json:"test_rows"`
}

// LinearSummary lists the fitted coefficients by feature name. Features are
// scaled, so magnitudes are comparable.
type LinearSummary struct {
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

func newLinearSummary(w *model.ModelWeights) LinearSummary {
	s := LinearSummary{Intercept: w.Intercept, Coefficients: make(map[string]float64, len(w.Coefficients))}
	for i, c := range w.Coefficients {
		name := fmt.Sprintf("x%d", i)
		if i < len(w.Features) {
			name = w.Features[i]
		}
		s.Coefficients[name] = c
	}
	return s
}

// BoostingSummary describes the trained ensemble.
type BoostingSummary struct {
	Trees         int                  `json:"trees"`
	BestIteration int                  `json:"best_iteration"`
	Importance    map[string]float64   `json:"importance"`
	History       map[string][]float64 `json:"history,omitempty"`
	TreeDump      string               `json:"tree_dump,omitempty"`
}

func newBoostingSummary(g *ensemble.GradientBoostingRegressor, features []string) BoostingSummary {
	s := BoostingSummary{
		Trees:         len(g.Trees),
		BestIteration: g.BestIteration,
		Importance:    make(map[string]float64, len(g.Importance)),
		History:       g.History,
	}
	for i, v := range g.Importance {
		if i < len(features) {
			s.Importance[features[i]] = v
		}
	}
	return s
}

// GridSearchSummary is the neural network hyperparameter search outcome.
type GridSearchSummary struct {
	BestParams map[string]interface{}            `json:"best_params"`
	BestScore  float64                           `json:"best_score"`
	Candidates []model_selection.CandidateResult `json:"candidates"`
}

func (r *runner) writeReport(context.Context) error {
	r.report.FinishedAt = time.Now().UTC()
	if err := os.MkdirAll(r.cfg.Output.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "create output directory %s", r.cfg.Output.Dir)
	}
	data, err := json.MarshalIndent(r.report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	path := filepath.Join(r.cfg.Output.Dir, ReportFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	r.logger.Info("Report written", log.PathKey, path)

	if err := r.report.Comparison.WriteTable(r.stdout); err != nil {
		return errors.Wrap(err, "write metrics table")
	}
	if _, err := fmt.Fprintf(r.stdout, "\nbest model: %s\n", r.report.Comparison.Best); err != nil {
		return errors.Wrap(err, "write metrics table")
	}
	return nil
}

// ReadReport decodes a report.json written by Run.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewLoadError(path, "cannot read report", err)
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, errors.NewLoadError(path, "invalid report", err)
	}
	return &rep, nil
}
