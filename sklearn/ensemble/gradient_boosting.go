package ensemble

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/core/parallel"
	"github.com/YuminosukeSato/songstreams/metrics"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
)

const predictParallelThreshold = 1024

// GradientBoostingRegressor fits an additive model of regression trees, each
// grown on the gradient and hessian of the loss at the current prediction.
type GradientBoostingRegressor struct {
	model.BaseEstimator

	// Hyperparameters
	Rounds              int
	LearningRate        float64
	MaxDepth            int
	Lambda              float64
	Gamma               float64
	MinChildWeight      float64
	Subsample           float64
	ColsampleByTree     float64
	Objective           string
	HuberDelta          float64
	Seed                uint64
	EarlyStoppingRounds int
	ShowProgress        bool

	// Learned state
	InitScore     float64
	Trees         []*Tree
	BestIteration int
	Importance    []float64
	History       map[string][]float64

	xVal      mat.Matrix
	yVal      mat.Matrix
	callbacks []Callback
}

// Option configures a GradientBoostingRegressor.
type Option func(*GradientBoostingRegressor)

// WithRounds sets the number of boosting rounds.
func WithRounds(n int) Option { return func(g *GradientBoostingRegressor) { g.Rounds = n } }

// WithLearningRate sets the shrinkage applied to every tree.
func WithLearningRate(lr float64) Option {
	return func(g *GradientBoostingRegressor) { g.LearningRate = lr }
}

// WithMaxDepth limits tree depth.
func WithMaxDepth(d int) Option { return func(g *GradientBoostingRegressor) { g.MaxDepth = d } }

// WithLambda sets the L2 regularisation on leaf values.
func WithLambda(l float64) Option { return func(g *GradientBoostingRegressor) { g.Lambda = l } }

// WithGamma sets the minimum gain required to split.
func WithGamma(gamma float64) Option { return func(g *GradientBoostingRegressor) { g.Gamma = gamma } }

// WithMinChildWeight sets the minimum hessian sum per child.
func WithMinChildWeight(w float64) Option {
	return func(g *GradientBoostingRegressor) { g.MinChildWeight = w }
}

// WithSubsample sets the share of rows drawn for each tree.
func WithSubsample(s float64) Option { return func(g *GradientBoostingRegressor) { g.Subsample = s } }

// WithColsampleByTree sets the share of features drawn for each tree.
func WithColsampleByTree(c float64) Option {
	return func(g *GradientBoostingRegressor) { g.ColsampleByTree = c }
}

// WithObjective selects squared_error, absolute_error or huber.
func WithObjective(name string) Option {
	return func(g *GradientBoostingRegressor) { g.Objective = name }
}

// WithHuberDelta sets the huber transition point.
func WithHuberDelta(d float64) Option {
	return func(g *GradientBoostingRegressor) { g.HuberDelta = d }
}

// WithSeed sets the sampling seed.
func WithSeed(seed uint64) Option { return func(g *GradientBoostingRegressor) { g.Seed = seed } }

// WithEarlyStopping stops after n rounds without validation improvement.
// It needs a validation set.
func WithEarlyStopping(n int) Option {
	return func(g *GradientBoostingRegressor) { g.EarlyStoppingRounds = n }
}

// WithProgressBar shows a progress bar on stderr during Fit.
func WithProgressBar(show bool) Option {
	return func(g *GradientBoostingRegressor) { g.ShowProgress = show }
}

// WithValidation evaluates every round on a held-out set.
func WithValidation(X, y mat.Matrix) Option {
	return func(g *GradientBoostingRegressor) { g.SetValidation(X, y) }
}

// WithCallbacks adds per-round callbacks.
func WithCallbacks(cbs ...Callback) Option {
	return func(g *GradientBoostingRegressor) { g.callbacks = append(g.callbacks, cbs...) }
}

// NewGradientBoostingRegressor creates a regressor with 100 rounds, learning
// rate 0.1, depth 6, lambda 1, gamma 0 and min child weight 1.
func NewGradientBoostingRegressor(opts ...Option) *GradientBoostingRegressor {
	g := &GradientBoostingRegressor{
		Rounds:          100,
		LearningRate:    0.1,
		MaxDepth:        6,
		Lambda:          1,
		Gamma:           0,
		MinChildWeight:  1,
		Subsample:       1,
		ColsampleByTree: 1,
		Objective:       ObjectiveSquaredError,
		HuberDelta:      1,
		Seed:            42,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements model.Regressor.
func (g *GradientBoostingRegressor) Name() string { return "GradientBoostingRegressor" }

// SetValidation sets the held-out set evaluated after every round.
func (g *GradientBoostingRegressor) SetValidation(X, y mat.Matrix) {
	g.xVal, g.yVal = X, y
}

func (g *GradientBoostingRegressor) validate() error {
	switch {
	case g.Rounds < 1:
		return errors.NewValidationError("rounds", "must be positive", g.Rounds)
	case g.LearningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be positive", g.LearningRate)
	case g.MaxDepth < 1:
		return errors.NewValidationError("max_depth", "must be positive", g.MaxDepth)
	case g.Lambda < 0:
		return errors.NewValidationError("lambda", "must be non-negative", g.Lambda)
	case g.Gamma < 0:
		return errors.NewValidationError("gamma", "must be non-negative", g.Gamma)
	case g.MinChildWeight < 0:
		return errors.NewValidationError("min_child_weight", "must be non-negative", g.MinChildWeight)
	case g.Subsample <= 0 || g.Subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", g.Subsample)
	case g.ColsampleByTree <= 0 || g.ColsampleByTree > 1:
		return errors.NewValidationError("colsample_bytree", "must be in (0, 1]", g.ColsampleByTree)
	case g.EarlyStoppingRounds < 0:
		return errors.NewValidationError("early_stopping_rounds", "must be non-negative", g.EarlyStoppingRounds)
	}
	_, err := NewObjective(g.Objective, g.HuberDelta)
	return err
}

func columnValues(y mat.Matrix) []float64 {
	n, _ := y.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = y.At(i, 0)
	}
	return out
}

func rmse(pred, target []float64) float64 {
	sum := 0.0
	for i := range pred {
		d := pred[i] - target[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(pred)))
}

// Fit trains the ensemble. Re-fitting discards earlier trees.
func (g *GradientBoostingRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "GradientBoostingRegressor.Fit")

	rows, cols, err := model.CheckXY("GradientBoostingRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	if err := g.validate(); err != nil {
		return err
	}
	obj, _ := NewObjective(g.Objective, g.HuberDelta)

	var xVal *mat.Dense
	var yVal []float64
	if g.xVal != nil && g.yVal != nil {
		if _, _, err := model.CheckXY("GradientBoostingRegressor.Fit", g.xVal, g.yVal); err != nil {
			return err
		}
		if _, vc := g.xVal.Dims(); vc != cols {
			return errors.NewDimensionError("GradientBoostingRegressor.Fit", cols, vc, 1)
		}
		xVal = mat.DenseCopyOf(g.xVal)
		yVal = columnValues(g.yVal)
	}

	logger := log.GetLoggerWithName("ensemble").With(log.ModelNameKey, g.Name())
	logger.Info("Training started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.LearningRateKey, g.LearningRate,
		log.RandomSeedKey, g.Seed,
		"rounds", g.Rounds,
		"max_depth", g.MaxDepth,
		"objective", obj.Name(),
	)
	start := time.Now()

	g.Reset()
	g.Trees = nil
	g.BestIteration = 0

	data := mat.DenseCopyOf(X)
	target := columnValues(y)
	g.InitScore = obj.InitScore(target)

	pred := make([]float64, rows)
	for i := range pred {
		pred[i] = g.InitScore
	}
	var valPred []float64
	if xVal != nil {
		valPred = make([]float64, len(yVal))
		for i := range valPred {
			valPred[i] = g.InitScore
		}
	}

	history := make(map[string][]float64)
	callbacks := []Callback{RecordEvaluation(history)}
	callbacks = append(callbacks, g.callbacks...)
	earlyStopping := g.EarlyStoppingRounds > 0 && xVal != nil
	if earlyStopping {
		callbacks = append(callbacks, EarlyStopping(g.EarlyStoppingRounds, EvalValidRMSE))
	} else if g.EarlyStoppingRounds > 0 {
		logger.Warn("Early stopping ignored without a validation set")
	}

	var bar *pb.ProgressBar
	if g.ShowProgress {
		bar = pb.New(g.Rounds).SetWriter(os.Stderr).Start()
		defer bar.Finish()
	}

	rng := rand.New(rand.NewPCG(g.Seed, g.Seed))
	grad := make([]float64, rows)
	hess := make([]float64, rows)
	row := make([]float64, cols)

	for round := 0; round < g.Rounds; round++ {
		for i := range target {
			grad[i] = obj.Gradient(pred[i], target[i])
			hess[i] = obj.Hessian(pred[i], target[i])
		}

		tree := buildTree(data, grad, hess, g.sampleRows(rng, rows), treeParams{
			maxDepth:       g.MaxDepth,
			lambda:         g.Lambda,
			gamma:          g.Gamma,
			minChildWeight: g.MinChildWeight,
			features:       g.sampleFeatures(rng, cols),
		})
		for k := range tree.Nodes {
			tree.Nodes[k].Value *= g.LearningRate
		}
		g.Trees = append(g.Trees, tree)

		for i := range pred {
			mat.Row(row, i, data)
			pred[i] += tree.Predict(row)
		}
		results := map[string]float64{EvalTrainRMSE: rmse(pred, target)}
		if err := errors.CheckScalar("GradientBoostingRegressor.Fit", results[EvalTrainRMSE], round); err != nil {
			return errors.NewComputeError("GradientBoostingRegressor.Fit", "training loss is not finite", err)
		}
		if xVal != nil {
			for i := range valPred {
				mat.Row(row, i, xVal)
				valPred[i] += tree.Predict(row)
			}
			results[EvalValidRMSE] = rmse(valPred, yVal)
		}

		env := &CallbackEnv{Model: g, Iteration: round, EvalResults: results}
		for _, cb := range callbacks {
			if err := cb(env); err != nil {
				return errors.Wrapf(err, "callback at round %d", round)
			}
		}
		if bar != nil {
			bar.Increment()
		}
		if env.StopTraining {
			break
		}
	}

	if earlyStopping {
		g.Trees = g.Trees[:g.BestIteration+1]
	} else {
		g.BestIteration = len(g.Trees) - 1
	}
	g.History = history
	g.Importance = gainImportance(g.Trees, cols)
	g.SetFitted(cols)

	logger.Info("Training completed",
		log.OperationKey, log.OperationFit,
		"trees", len(g.Trees),
		"best_iteration", g.BestIteration,
		log.RMSEKey, history[EvalTrainRMSE][len(history[EvalTrainRMSE])-1],
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (g *GradientBoostingRegressor) sampleRows(rng *rand.Rand, rows int) []int {
	if g.Subsample >= 1 {
		idx := make([]int, rows)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	n := max(1, int(math.Round(g.Subsample*float64(rows))))
	idx := rng.Perm(rows)[:n]
	sort.Ints(idx)
	return idx
}

func (g *GradientBoostingRegressor) sampleFeatures(rng *rand.Rand, cols int) []int {
	if g.ColsampleByTree >= 1 {
		idx := make([]int, cols)
		for j := range idx {
			idx[j] = j
		}
		return idx
	}
	n := max(1, int(math.Ceil(g.ColsampleByTree*float64(cols))))
	idx := rng.Perm(cols)[:n]
	sort.Ints(idx)
	return idx
}

// gainImportance sums split gains per feature, normalised to sum to 1.
func gainImportance(trees []*Tree, cols int) []float64 {
	imp := make([]float64, cols)
	total := 0.0
	for _, t := range trees {
		for _, n := range t.Nodes {
			if !n.Leaf {
				imp[n.Feature] += n.Gain
				total += n.Gain
			}
		}
	}
	if total > 0 {
		for j := range imp {
			imp[j] /= total
		}
	}
	return imp
}

// Predict returns an n×1 matrix of predictions.
func (g *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := g.RequireFitted(g.Name(), "Predict"); err != nil {
		return nil, err
	}
	if err := g.CheckFeatures("GradientBoostingRegressor.Predict", X); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	out := make([]float64, rows)
	parallel.ParallelizeWithThreshold(rows, predictParallelThreshold, func(start, end int) {
		row := make([]float64, cols)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			v := g.InitScore
			for _, t := range g.Trees {
				v += t.Predict(row)
			}
			out[i] = v
		}
	})
	return mat.NewDense(rows, 1, out), nil
}

// Score returns R² on (X, y).
func (g *GradientBoostingRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := g.Predict(X)
	if err != nil {
		return 0, err
	}
	yt, err := metrics.ColumnVector("GradientBoostingRegressor.Score", y)
	if err != nil {
		return 0, err
	}
	yp, err := metrics.ColumnVector("GradientBoostingRegressor.Score", pred)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(yt, yp)
}

// FeatureImportances returns the normalised gain importance per feature.
func (g *GradientBoostingRegressor) FeatureImportances() ([]float64, error) {
	if err := g.RequireFitted(g.Name(), "FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), g.Importance...), nil
}

// DumpModel renders every tree as text.
func (g *GradientBoostingRegressor) DumpModel(featureNames []string) (string, error) {
	if err := g.RequireFitted(g.Name(), "DumpModel"); err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, t := range g.Trees {
		fmt.Fprintf(&sb, "booster[%d]:\n", i)
		sb.WriteString(t.Dump(featureNames))
	}
	return sb.String(), nil
}
