package neural_network

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// fitLBFGS minimises the full-batch loss with gonum's L-BFGS.
func (m *MLPRegressor) fitLBFGS(params []float64, X *mat.Dense, y []float64, act activation) (bool, error) {
	m.LossCurve = m.LossCurve[:0]
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			return m.lossGrad(p, nil, X, y, act)
		},
		Grad: func(grad, p []float64) {
			m.lossGrad(p, grad, X, y, act)
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   m.MaxIter,
		GradientThreshold: m.Tol,
		Recorder:          &lossRecorder{m: m},
	}

	result, err := optimize.Minimize(problem, params, settings, &optimize.LBFGS{})
	if result == nil {
		return false, errors.NewComputeError("MLPRegressor.Fit", "lbfgs failed", err)
	}
	if lerr := lossError(result.F, result.Stats.MajorIterations); lerr != nil {
		return false, lerr
	}

	m.Params = result.X
	m.NIter = result.Stats.MajorIterations
	if len(m.LossCurve) == 0 || m.LossCurve[len(m.LossCurve)-1] != result.F {
		m.LossCurve = append(m.LossCurve, result.F)
	}

	if err != nil {
		// 直線探索の停滞などは最良点を採用して警告にとどめる
		errors.Warn(errors.NewConvergenceWarning(m.Name(), m.NIter, err.Error()))
		return true, nil
	}
	return result.Status != optimize.IterationLimit, nil
}

// lossRecorder appends the loss at every major iteration.
type lossRecorder struct {
	m *MLPRegressor
}

func (r *lossRecorder) Init() error { return nil }

func (r *lossRecorder) Record(loc *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op == optimize.MajorIteration {
		r.m.LossCurve = append(r.m.LossCurve, loc.F)
	}
	return nil
}
