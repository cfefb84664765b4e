// Package pipeline runs the full stream-count analysis: load, clean, derive
// features, chart, split, train three regressors, evaluate and persist.
//
// Stages run strictly in order. The first failing stage aborts the run with
// an errors.StageError naming it.
package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/config"
	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/dataset"
	"github.com/YuminosukeSato/songstreams/linear"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
	"github.com/YuminosukeSato/songstreams/sklearn/ensemble"
	"github.com/YuminosukeSato/songstreams/sklearn/neural_network"
	"github.com/YuminosukeSato/songstreams/visualize"
)

// Stage names, in execution order.
const (
	StageConfig    = "config"
	StageLoad      = "load"
	StageClean     = "clean"
	StageFeatures  = "features"
	StageExplore   = "explore"
	StageSplit     = "split"
	StageLinear    = "train_linear"
	StageNeural    = "train_neural"
	StageBoosting  = "train_boosting"
	StageEvaluate  = "evaluate"
	StageSave      = "save"
	StageReport    = "report"
	ReportFileName = "report.json"
)

// Option configures Run.
type Option func(*runner)

// WithStdout redirects the metrics table. Default os.Stdout.
func WithStdout(w io.Writer) Option { return func(r *runner) { r.stdout = w } }

type stage struct {
	name string
	run  func(ctx context.Context) error
}

type runner struct {
	cfg    *config.Config
	stdout io.Writer
	logger log.Logger
	report *Report
	vis    *visualize.Visualizer

	raw      *dataset.Dataset
	clean    *dataset.Dataset
	data     *dataset.Dataset
	features []string

	XTrain, XTest mat.Matrix
	yTrain, yTest *mat.Dense
	// every row, scaled with the scaler fitted on XTrain
	XAll mat.Matrix
	yAll *mat.Dense

	linear   *linear.LinearRegression
	neural   *neural_network.MLPRegressor
	boosting *ensemble.GradientBoostingRegressor
}

// models returns the trained regressors in report order.
func (r *runner) models() []model.Regressor {
	var out []model.Regressor
	if r.linear != nil {
		out = append(out, r.linear)
	}
	if r.neural != nil {
		out = append(out, r.neural)
	}
	if r.boosting != nil {
		out = append(out, r.boosting)
	}
	return out
}

// Run executes every stage with cfg. ctx is checked between stages.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) (*Report, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewStageError(StageConfig, err)
	}

	r := &runner{
		cfg:    cfg,
		stdout: os.Stdout,
		report: &Report{
			RunID:     uuid.NewString(),
			StartedAt: time.Now().UTC(),
			Config:    cfg,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.GetLoggerWithName("pipeline").With(log.RunIDKey, r.report.RunID)
	r.logger.Info("Run started",
		log.PathKey, cfg.Data.Path,
		"output_dir", cfg.Output.Dir,
		log.RandomSeedKey, cfg.Seed,
	)

	stages := []stage{
		{StageLoad, r.load},
		{StageClean, r.cleanData},
		{StageFeatures, r.engineer},
		{StageExplore, r.explore},
		{StageSplit, r.split},
		{StageLinear, r.trainLinear},
		{StageNeural, r.trainNeural},
		{StageBoosting, r.trainBoosting},
		{StageEvaluate, r.evaluate},
		{StageSave, r.save},
		{StageReport, r.writeReport},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("Run cancelled", log.StageKey, s.name)
			return nil, errors.NewStageError(s.name, err)
		}
		start := time.Now()
		r.logger.Debug("Stage started", log.StageKey, s.name)
		if err := s.run(ctx); err != nil {
			r.logger.Error("Stage failed", err, log.StageKey, s.name)
			return nil, errors.NewStageError(s.name, err)
		}
		r.logger.Info("Stage completed",
			log.StageKey, s.name,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
	}
	r.logger.Info("Run completed", "best_model", r.report.Comparison.Best)
	return r.report, nil
}
