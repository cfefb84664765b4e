package neural_network

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// fitAdam runs mini-batch Adam until the epoch loss has not improved by Tol
// for NIterNoChange consecutive epochs or MaxIter epochs have run.
func (m *MLPRegressor) fitAdam(params []float64, X *mat.Dense, y []float64, act activation, rng *rand.Rand) (bool, error) {
	n, cols := X.Dims()
	batch := m.BatchSize
	if batch == 0 {
		batch = min(200, n)
	}
	batch = min(batch, n)

	grad := make([]float64, len(params))
	first := make([]float64, len(params))
	second := make([]float64, len(params))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	m.LossCurve = m.LossCurve[:0]
	bestLoss := math.Inf(1)
	noImprove := 0
	step := 0

	for epoch := 0; epoch < m.MaxIter; epoch++ {
		if m.Shuffle {
			rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		epochLoss := 0.0
		for start := 0; start < n; start += batch {
			end := min(start+batch, n)
			xb := mat.NewDense(end-start, cols, nil)
			yb := make([]float64, end-start)
			for k, idx := range order[start:end] {
				xb.SetRow(k, X.RawRowView(idx))
				yb[k] = y[idx]
			}

			loss := m.lossGrad(params, grad, xb, yb, act)
			epochLoss += loss * float64(end-start)

			step++
			lr := m.LearningRateInit * math.Sqrt(1-math.Pow(m.Beta2, float64(step))) /
				(1 - math.Pow(m.Beta1, float64(step)))
			for k, g := range grad {
				first[k] = m.Beta1*first[k] + (1-m.Beta1)*g
				second[k] = m.Beta2*second[k] + (1-m.Beta2)*g*g
				params[k] -= lr * first[k] / (math.Sqrt(second[k]) + m.Epsilon)
			}
		}
		epochLoss /= float64(n)
		if err := lossError(epochLoss, epoch); err != nil {
			return false, err
		}

		m.LossCurve = append(m.LossCurve, epochLoss)
		m.NIter = epoch + 1
		m.Params = params

		if epochLoss > bestLoss-m.Tol {
			noImprove++
		} else {
			noImprove = 0
		}
		if epochLoss < bestLoss {
			bestLoss = epochLoss
		}
		if noImprove > m.NIterNoChange {
			return true, nil
		}
	}
	return false, nil
}
