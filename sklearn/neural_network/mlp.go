// Package neural_network implements a multi-layer perceptron regressor
// trained with Adam mini-batches or full-batch L-BFGS.
package neural_network

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/songstreams/core/model"
	"github.com/YuminosukeSato/songstreams/metrics"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/pkg/log"
)

// Solver names.
const (
	SolverAdam  = "adam"
	SolverLBFGS = "lbfgs"
)

// MLPRegressor is a fully connected feed-forward network with one linear
// output unit, trained on the squared loss with L2 penalty Alpha. The target
// is standardised internally and predictions are mapped back.
type MLPRegressor struct {
	model.BaseEstimator

	// Hyperparameters
	HiddenLayerSizes []int
	Activation       string
	Solver           string
	Alpha            float64
	BatchSize        int
	LearningRateInit float64
	MaxIter          int
	Tol              float64
	NIterNoChange    int
	Beta1            float64
	Beta2            float64
	Epsilon          float64
	Shuffle          bool
	Seed             uint64

	// Learned state. Params holds every weight matrix (row-major, in×out)
	// followed by its bias vector, layer by layer.
	Layers    []int
	Params    []float64
	YMean     float64
	YScale    float64
	LossCurve []float64
	NIter     int
}

// Option configures an MLPRegressor.
type Option func(*MLPRegressor)

// WithHiddenLayerSizes sets the width of every hidden layer.
func WithHiddenLayerSizes(sizes ...int) Option {
	return func(m *MLPRegressor) { m.HiddenLayerSizes = append([]int(nil), sizes...) }
}

// WithActivation sets the hidden activation.
func WithActivation(name string) Option { return func(m *MLPRegressor) { m.Activation = name } }

// WithSolver selects adam or lbfgs.
func WithSolver(name string) Option { return func(m *MLPRegressor) { m.Solver = name } }

// WithAlpha sets the L2 penalty.
func WithAlpha(alpha float64) Option { return func(m *MLPRegressor) { m.Alpha = alpha } }

// WithBatchSize sets the Adam mini-batch size. 0 means min(200, n).
func WithBatchSize(n int) Option { return func(m *MLPRegressor) { m.BatchSize = n } }

// WithLearningRate sets the Adam step size.
func WithLearningRate(lr float64) Option { return func(m *MLPRegressor) { m.LearningRateInit = lr } }

// WithMaxIter sets the maximum epochs (adam) or iterations (lbfgs).
func WithMaxIter(n int) Option { return func(m *MLPRegressor) { m.MaxIter = n } }

// WithTol sets the loss improvement tolerance.
func WithTol(tol float64) Option { return func(m *MLPRegressor) { m.Tol = tol } }

// WithSeed sets the seed for weight initialisation and batch shuffling.
func WithSeed(seed uint64) Option { return func(m *MLPRegressor) { m.Seed = seed } }

// NewMLPRegressor creates a regressor with five hidden layers of 24 ReLU
// units trained by Adam.
func NewMLPRegressor(opts ...Option) *MLPRegressor {
	m := &MLPRegressor{
		HiddenLayerSizes: []int{24, 24, 24, 24, 24},
		Activation:       ActivationReLU,
		Solver:           SolverAdam,
		Alpha:            1e-4,
		LearningRateInit: 1e-3,
		MaxIter:          200,
		Tol:              1e-4,
		NIterNoChange:    10,
		Beta1:            0.9,
		Beta2:            0.999,
		Epsilon:          1e-8,
		Shuffle:          true,
		Seed:             42,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements model.Regressor.
func (m *MLPRegressor) Name() string { return "MLPRegressor" }

func (m *MLPRegressor) validate() error {
	for _, h := range m.HiddenLayerSizes {
		if h < 1 {
			return errors.NewValidationError("hidden_layer_sizes", "every layer needs at least one unit", m.HiddenLayerSizes)
		}
	}
	if _, err := lookupActivation(m.Activation); err != nil {
		return err
	}
	switch {
	case m.Solver != SolverAdam && m.Solver != SolverLBFGS:
		return errors.NewValidationError("solver", "must be adam or lbfgs", m.Solver)
	case m.Alpha < 0:
		return errors.NewValidationError("alpha", "must be non-negative", m.Alpha)
	case m.BatchSize < 0:
		return errors.NewValidationError("batch_size", "must be non-negative", m.BatchSize)
	case m.LearningRateInit <= 0:
		return errors.NewValidationError("learning_rate_init", "must be positive", m.LearningRateInit)
	case m.MaxIter < 1:
		return errors.NewValidationError("max_iter", "must be positive", m.MaxIter)
	case m.Tol < 0:
		return errors.NewValidationError("tol", "must be non-negative", m.Tol)
	case m.NIterNoChange < 1:
		return errors.NewValidationError("n_iter_no_change", "must be positive", m.NIterNoChange)
	}
	return nil
}

// layer is a view into a flat parameter vector.
type layer struct {
	W *mat.Dense
	b []float64
}

func (m *MLPRegressor) numParams() int {
	n := 0
	for i := 0; i < len(m.Layers)-1; i++ {
		n += m.Layers[i]*m.Layers[i+1] + m.Layers[i+1]
	}
	return n
}

// unpack returns layer views sharing storage with params.
func (m *MLPRegressor) unpack(params []float64) []layer {
	out := make([]layer, len(m.Layers)-1)
	off := 0
	for i := range out {
		in, units := m.Layers[i], m.Layers[i+1]
		out[i].W = mat.NewDense(in, units, params[off:off+in*units])
		off += in * units
		out[i].b = params[off : off+units]
		off += units
	}
	return out
}

// initParams draws Glorot uniform weights and biases.
func (m *MLPRegressor) initParams(rng *rand.Rand) []float64 {
	params := make([]float64, m.numParams())
	factor := 6.0
	if m.Activation == ActivationLogistic {
		factor = 2.0
	}
	off := 0
	for i := 0; i < len(m.Layers)-1; i++ {
		in, units := m.Layers[i], m.Layers[i+1]
		bound := math.Sqrt(factor / float64(in+units))
		for k := 0; k < in*units+units; k++ {
			params[off+k] = (rng.Float64()*2 - 1) * bound
		}
		off += in*units + units
	}
	return params
}

// forward returns the activations of every layer, input first.
func (m *MLPRegressor) forward(layers []layer, X *mat.Dense, act activation) []*mat.Dense {
	acts := make([]*mat.Dense, len(layers)+1)
	acts[0] = X
	for i, l := range layers {
		z := &mat.Dense{}
		z.Mul(acts[i], l.W)
		hidden := i < len(layers)-1
		z.Apply(func(_, j int, v float64) float64 {
			v += l.b[j]
			if hidden {
				return act.f(v)
			}
			return v
		}, z)
		acts[i+1] = z
	}
	return acts
}

// lossGrad returns 0.5·mean squared error plus the L2 penalty and, when grad
// is non-nil, writes the gradient with respect to params into it.
func (m *MLPRegressor) lossGrad(params, grad []float64, X *mat.Dense, y []float64, act activation) float64 {
	layers := m.unpack(params)
	acts := m.forward(layers, X, act)
	n := float64(len(y))

	out := acts[len(acts)-1]
	delta := mat.NewDense(len(y), 1, nil)
	loss := 0.0
	for i, t := range y {
		d := out.At(i, 0) - t
		loss += d * d
		delta.Set(i, 0, d/n)
	}
	loss /= 2 * n

	reg := 0.0
	for _, l := range layers {
		f := mat.Norm(l.W, 2)
		reg += f * f
	}
	loss += m.Alpha / (2 * n) * reg

	if grad == nil {
		return loss
	}
	gl := m.unpack(grad)
	for i := len(layers) - 1; i >= 0; i-- {
		gl[i].W.Mul(acts[i].T(), delta)
		gl[i].W.Apply(func(r, c int, v float64) float64 {
			return v + m.Alpha/n*layers[i].W.At(r, c)
		}, gl[i].W)
		rows, cols := delta.Dims()
		for j := 0; j < cols; j++ {
			s := 0.0
			for r := 0; r < rows; r++ {
				s += delta.At(r, j)
			}
			gl[i].b[j] = s
		}
		if i > 0 {
			prev := &mat.Dense{}
			prev.Mul(delta, layers[i].W.T())
			a := acts[i]
			prev.Apply(func(r, c int, v float64) float64 {
				return v * act.deriv(a.At(r, c))
			}, prev)
			delta = prev
		}
	}
	return loss
}

// Fit trains the network from a fresh Glorot initialisation.
func (m *MLPRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "MLPRegressor.Fit")

	rows, cols, err := model.CheckXY("MLPRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	if err := m.validate(); err != nil {
		return err
	}
	act, _ := lookupActivation(m.Activation)

	logger := log.GetLoggerWithName("neural_network").With(log.ModelNameKey, m.Name())
	logger.Info("Training started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		"solver", m.Solver,
		"activation", m.Activation,
		"hidden_layer_sizes", m.HiddenLayerSizes,
		log.RandomSeedKey, m.Seed,
	)
	start := time.Now()

	m.Reset()
	m.Layers = append(append([]int{cols}, m.HiddenLayerSizes...), 1)

	data := mat.DenseCopyOf(X)
	target := make([]float64, rows)
	for i := range target {
		target[i] = y.At(i, 0)
	}
	m.YMean, m.YScale = standardize(target)

	rng := rand.New(rand.NewPCG(m.Seed, m.Seed))
	params := m.initParams(rng)

	var converged bool
	switch m.Solver {
	case SolverLBFGS:
		converged, err = m.fitLBFGS(params, data, target, act)
	default:
		converged, err = m.fitAdam(params, data, target, act, rng)
	}
	if err != nil {
		return err
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning(m.Name(), m.NIter,
			"maximum iterations reached and the optimization has not converged yet"))
	}

	m.SetFitted(cols)
	logger.Info("Training completed",
		log.OperationKey, log.OperationFit,
		log.IterationKey, m.NIter,
		log.LossKey, m.LossCurve[len(m.LossCurve)-1],
		"converged", converged,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// standardize rescales y in place to zero mean and unit variance.
func standardize(y []float64) (mean, scale float64) {
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	for _, v := range y {
		scale += (v - mean) * (v - mean)
	}
	scale = math.Sqrt(scale / float64(len(y)))
	if scale == 0 {
		scale = 1
	}
	for i := range y {
		y[i] = (y[i] - mean) / scale
	}
	return mean, scale
}

func lossError(loss float64, iter int) error {
	if err := errors.CheckScalar("MLPRegressor.Fit", loss, iter); err != nil {
		return errors.NewComputeError("MLPRegressor.Fit", "loss is not finite; try scaling the features or a smaller learning rate", err)
	}
	return nil
}

// Predict returns an n×1 matrix of predictions.
func (m *MLPRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := m.RequireFitted(m.Name(), "Predict"); err != nil {
		return nil, err
	}
	if err := m.CheckFeatures("MLPRegressor.Predict", X); err != nil {
		return nil, err
	}
	act, err := lookupActivation(m.Activation)
	if err != nil {
		return nil, err
	}
	acts := m.forward(m.unpack(m.Params), mat.DenseCopyOf(X), act)
	out := acts[len(acts)-1]
	out.Apply(func(_, _ int, v float64) float64 { return v*m.YScale + m.YMean }, out)
	return out, nil
}

// Score returns R² on (X, y).
func (m *MLPRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := m.Predict(X)
	if err != nil {
		return 0, err
	}
	yt, err := metrics.ColumnVector("MLPRegressor.Score", y)
	if err != nil {
		return 0, err
	}
	yp, err := metrics.ColumnVector("MLPRegressor.Score", pred)
	if err != nil {
		return 0, err
	}
	return metrics.R2Score(yt, yp)
}
