package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/dataprep"
	"github.com/YuminosukeSato/songstreams/dataset"
	"github.com/YuminosukeSato/songstreams/evaluation"
	"github.com/YuminosukeSato/songstreams/linear"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
	"github.com/YuminosukeSato/songstreams/preprocessing"
	"github.com/YuminosukeSato/songstreams/sklearn/ensemble"
	"github.com/YuminosukeSato/songstreams/sklearn/model_selection"
	"github.com/YuminosukeSato/songstreams/sklearn/neural_network"
	"github.com/YuminosukeSato/songstreams/store"
	"github.com/YuminosukeSato/songstreams/visualize"
)

const (
	chartDir = "charts"
	modelDir = "models"
	// TreeDumpFileName is written next to report.json when models are saved.
	TreeDumpFileName = "boosting_trees.txt"
)

func (r *runner) load(context.Context) error {
	ds, err := dataset.Load(r.cfg.Data.Path, r.cfg.LoadOptions())
	if err != nil {
		return err
	}
	r.raw = ds
	r.report.Data.RowsLoaded = ds.Len()
	return nil
}

func (r *runner) cleanData(context.Context) error {
	c, err := dataprep.NewCleaner(r.cfg.CleanOptions())
	if err != nil {
		return err
	}
	ds, stats, err := c.Clean(r.raw)
	if err != nil {
		return err
	}
	r.clean = ds
	r.report.Data.Clean = stats
	return nil
}

func (r *runner) engineer(context.Context) error {
	opts, err := r.cfg.FeatureOptions()
	if err != nil {
		return err
	}
	fe, err := dataprep.NewFeatureEngineer(opts)
	if err != nil {
		return err
	}
	ds, stats, err := fe.Transform(r.clean)
	if err != nil {
		return err
	}
	if ds.Len() < 2 {
		return errors.Wrapf(errors.ErrEmptyData, "%d rows left after feature engineering", ds.Len())
	}
	r.data = ds
	r.features = dataprep.ModelFeatures(ds.Schema())
	r.report.Data.Features = stats
	r.report.Data.ReferenceDate = fe.ReferenceDate().Format("2006-01-02")
	r.report.Data.FeatureNames = r.features
	return nil
}

// chartWarn records a chart failure without failing the stage.
func (r *runner) chartWarn(err error) {
	r.logger.Warn("Chart skipped", "error", err.Error())
	r.report.ChartErrors = append(r.report.ChartErrors, err.Error())
}

func (r *runner) explore(context.Context) error {
	if !r.cfg.Output.Plots {
		return nil
	}
	vis, err := visualize.NewVisualizer(filepath.Join(r.cfg.Output.Dir, chartDir))
	if err != nil {
		return err
	}
	r.vis = vis
	paths, errs := vis.Explore(r.data)
	r.report.Charts = append(r.report.Charts, paths...)
	for _, e := range errs {
		r.chartWarn(e)
	}
	return nil
}

func (r *runner) split(context.Context) error {
	X, err := r.data.Matrix(r.features)
	if err != nil {
		return err
	}
	y, err := r.data.TargetVector()
	if err != nil {
		return err
	}
	XTrain, XTest, yTrain, yTest, err := model_selection.TrainTestSplit(X, y, r.cfg.Split.TestSize, r.cfg.Seed)
	if err != nil {
		return err
	}
	scaler, err := preprocessing.NewScaler(r.cfg.Split.Scaler)
	if err != nil {
		return err
	}
	if r.XTrain, err = scaler.FitTransform(XTrain); err != nil {
		return err
	}
	if r.XTest, err = scaler.Transform(XTest); err != nil {
		return err
	}
	if r.XAll, err = scaler.Transform(X); err != nil {
		return err
	}
	r.yTrain, r.yTest, r.yAll = yTrain, yTest, y
	r.report.Data.TrainRows, _ = yTrain.Dims()
	r.report.Data.TestRows, _ = yTest.Dims()
	r.logger.Info("Data split",
		"train", r.report.Data.TrainRows,
		"test", r.report.Data.TestRows,
		log.FeaturesKey, len(r.features),
		"scaler", r.cfg.Split.Scaler,
	)
	return nil
}

func (r *runner) trainLinear(context.Context) error {
	lr := linear.NewLinearRegression(linear.WithFitIntercept(r.cfg.Linear.FitIntercept))
	if err := lr.Fit(r.XTrain, r.yTrain); err != nil {
		return err
	}
	w, err := lr.ExportWeights(r.features)
	if err != nil {
		return err
	}
	r.linear = lr
	r.report.Linear = newLinearSummary(w)
	return nil
}

func (r *runner) newMLP() (*neural_network.MLPRegressor, error) {
	m := neural_network.NewMLPRegressor()
	if err := m.SetParams(r.cfg.NeuralParams()); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *runner) trainNeural(context.Context) error {
	base, err := r.newMLP()
	if err != nil {
		return err
	}
	if !r.cfg.Search.Enabled {
		if err := base.Fit(r.XTrain, r.yTrain); err != nil {
			return err
		}
		r.neural = base
		return nil
	}

	cv := model_selection.NewKFold(r.cfg.Search.Folds, true, r.cfg.Seed)
	gs := model_selection.NewGridSearchCV(base, r.cfg.SearchGrid(), cv)
	if err := gs.Fit(r.XTrain, r.yTrain); err != nil {
		return err
	}
	best, ok := gs.BestEstimator.(*neural_network.MLPRegressor)
	if !ok {
		return errors.Newf("grid search returned %T", gs.BestEstimator)
	}
	r.neural = best
	r.report.GridSearch = &GridSearchSummary{
		BestParams: gs.BestParams,
		BestScore:  gs.BestScore,
		Candidates: gs.Results,
	}
	return nil
}

func (r *runner) newBoosting() (*ensemble.GradientBoostingRegressor, error) {
	g := ensemble.NewGradientBoostingRegressor(ensemble.WithProgressBar(r.cfg.Boosting.ShowProgress))
	if err := g.SetParams(r.cfg.BoostingParams()); err != nil {
		return nil, err
	}
	return g, nil
}

// trainBoosting monitors the test partition when early stopping is off. With
// early stopping a slice of the training partition is held out instead so the
// test rows never influence the model.
func (r *runner) trainBoosting(context.Context) error {
	g, err := r.newBoosting()
	if err != nil {
		return err
	}
	XFit, yFit := r.XTrain, mat.Matrix(r.yTrain)
	if r.cfg.Boosting.EarlyStoppingRounds > 0 {
		n, _ := r.yTrain.Dims()
		inner, valid, err := model_selection.TrainTestIndices(n, r.cfg.Boosting.ValidationFraction, r.cfg.Seed)
		if err != nil {
			return err
		}
		XFit, yFit = model_selection.Take(r.XTrain, inner), model_selection.Take(r.yTrain, inner)
		g.SetValidation(model_selection.Take(r.XTrain, valid), model_selection.Take(r.yTrain, valid))
	} else {
		g.SetValidation(r.XTest, r.yTest)
	}
	if err := g.Fit(XFit, yFit); err != nil {
		return err
	}
	r.boosting = g
	r.report.Boosting = newBoostingSummary(g, r.features)
	return nil
}

func (r *runner) candidates() []evaluation.Candidate {
	return []evaluation.Candidate{
		{Name: r.linear.Name(), Factory: func() (model.Regressor, error) {
			return linear.NewLinearRegression(linear.WithFitIntercept(r.cfg.Linear.FitIntercept)), nil
		}},
		{Name: r.neural.Name(), Factory: func() (model.Regressor, error) {
			return r.neural.CloneUnfitted(), nil
		}},
		{Name: r.boosting.Name(), Factory: func() (model.Regressor, error) {
			g := r.boosting.CloneUnfitted().(*ensemble.GradientBoostingRegressor)
			g.EarlyStoppingRounds = 0
			return g, nil
		}},
	}
}

func (r *runner) evaluate(context.Context) error {
	ev := evaluation.NewEvaluator()
	var results []evaluation.Result
	for _, m := range r.models() {
		pred, err := m.Predict(r.XTest)
		if err != nil {
			return errors.Wrapf(err, "predict %s", m.Name())
		}
		res, err := ev.EvaluatePredictions(m.Name(), r.yTest, pred)
		if err != nil {
			return err
		}
		results = append(results, res)
		if r.vis != nil {
			path, err := r.vis.ActualVsPredicted(m.Name(), mat.Col(nil, 0, r.yTest), mat.Col(nil, 0, pred))
			if err != nil {
				r.chartWarn(err)
			} else {
				r.report.Charts = append(r.report.Charts, path)
			}
		}
	}
	r.report.Comparison = evaluation.Compare(results...)

	splitter := model_selection.NewKFold(r.cfg.Evaluation.Folds, true, r.cfg.Seed)
	cv, err := ev.CrossValidate(r.candidates(), r.XAll, r.yAll, splitter)
	if err != nil {
		return err
	}
	r.report.CrossValidation = cv

	if r.cfg.Evaluation.BoostingCV {
		base, err := r.newBoosting()
		if err != nil {
			return err
		}
		base.ShowProgress = false
		res, err := ensemble.CrossValidate(base, r.XTrain, r.yTrain, splitter)
		if err != nil {
			return err
		}
		r.report.BoostingCV = res
	}

	if r.vis != nil {
		for _, render := range []func() (string, error){
			func() (string, error) { return r.vis.BoostingHistory(r.boosting.History) },
			func() (string, error) { return r.vis.CVRMSE(cv) },
		} {
			path, err := render()
			if err != nil {
				r.chartWarn(err)
				continue
			}
			r.report.Charts = append(r.report.Charts, path)
		}
	}
	return nil
}

func (r *runner) save(context.Context) error {
	if !r.cfg.Output.SaveModels {
		return nil
	}
	s := store.Open(filepath.Join(r.cfg.Output.Dir, modelDir))
	for _, m := range r.models() {
		if err := s.Save(m.Name(), m); err != nil {
			return err
		}
	}
	w, err := r.linear.ExportWeights(r.features)
	if err != nil {
		return err
	}
	if err := s.SaveWeights(r.linear.Name(), w); err != nil {
		return err
	}
	r.report.StoreDir = s.BasePath()
	r.report.StoredModels = s.Keys()

	dump, err := r.boosting.DumpModel(r.features)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.cfg.Output.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "create output directory %s", r.cfg.Output.Dir)
	}
	path := filepath.Join(r.cfg.Output.Dir, TreeDumpFileName)
	if err := os.WriteFile(path, []byte(dump), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	r.report.Boosting.TreeDump = path
	r.logger.Info("Trees dumped", log.PathKey, path)
	return nil
}
