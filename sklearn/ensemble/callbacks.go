package ensemble

import (
	"math"

	"github.com/YuminosukeSato/songstreams/pkg/log"
)

// Evaluation result keys passed to callbacks.
const (
	EvalTrainRMSE = "train_rmse"
	EvalValidRMSE = "valid_rmse"
)

// CallbackEnv is handed to every callback after a boosting round.
type CallbackEnv struct {
	Model        *GradientBoostingRegressor
	Iteration    int
	EvalResults  map[string]float64
	StopTraining bool
}

// Callback runs after each boosting round. Returning an error aborts Fit.
type Callback func(env *CallbackEnv) error

// RecordEvaluation appends each round's results to history.
func RecordEvaluation(history map[string][]float64) Callback {
	return func(env *CallbackEnv) error {
		for name, value := range env.EvalResults {
			history[name] = append(history[name], value)
		}
		return nil
	}
}

// LogEvaluation logs the results every period rounds.
func LogEvaluation(period int) Callback {
	logger := log.GetLoggerWithName("ensemble").With(log.ModelNameKey, "GradientBoostingRegressor")
	return func(env *CallbackEnv) error {
		if period > 0 && (env.Iteration+1)%period == 0 {
			fields := []any{log.IterationKey, env.Iteration}
			if v, ok := env.EvalResults[EvalTrainRMSE]; ok {
				fields = append(fields, EvalTrainRMSE, v)
			}
			if v, ok := env.EvalResults[EvalValidRMSE]; ok {
				fields = append(fields, EvalValidRMSE, v)
			}
			logger.Debug("Boosting round", fields...)
		}
		return nil
	}
}

// EarlyStopping stops training once metric has not improved for rounds
// consecutive iterations. The best iteration is recorded on the model.
func EarlyStopping(rounds int, metric string) Callback {
	bestScore := math.Inf(1)
	bestIteration := 0
	noImprove := 0

	return func(env *CallbackEnv) error {
		value, ok := env.EvalResults[metric]
		if !ok {
			return nil
		}
		if value < bestScore {
			bestScore = value
			bestIteration = env.Iteration
			noImprove = 0
		} else {
			noImprove++
		}
		env.Model.BestIteration = bestIteration
		if noImprove >= rounds {
			log.GetLoggerWithName("ensemble").Info("Early stopping",
				log.IterationKey, env.Iteration,
				"best_iteration", bestIteration,
				metric, bestScore,
			)
			env.StopTraining = true
		}
		return nil
	}
}
