package ensemble

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// Objective names accepted by WithObjective.
const (
	ObjectiveSquaredError  = "squared_error"
	ObjectiveAbsoluteError = "absolute_error"
	ObjectiveHuber         = "huber"
)

// Objective supplies the first and second derivatives of a per-sample loss.
type Objective interface {
	// Gradient of the loss with respect to the prediction.
	Gradient(prediction, target float64) float64
	// Hessian is the second derivative.
	Hessian(prediction, target float64) float64
	// Loss for a single sample.
	Loss(prediction, target float64) float64
	// InitScore is the constant prediction boosting starts from.
	InitScore(targets []float64) float64
	Name() string
}

// NewObjective returns the objective with the given name.
func NewObjective(name string, huberDelta float64) (Objective, error) {
	switch name {
	case ObjectiveSquaredError, "":
		return squaredError{}, nil
	case ObjectiveAbsoluteError:
		return absoluteError{}, nil
	case ObjectiveHuber:
		if huberDelta <= 0 {
			return nil, errors.NewValidationError("huber_delta", "must be positive", huberDelta)
		}
		return huber{delta: huberDelta}, nil
	}
	return nil, errors.NewValidationError("objective", "must be squared_error, absolute_error or huber", name)
}

type squaredError struct{}

func (squaredError) Gradient(p, t float64) float64 { return p - t }
func (squaredError) Hessian(_, _ float64) float64  { return 1 }
func (squaredError) Loss(p, t float64) float64 {
	d := p - t
	return 0.5 * d * d
}
func (squaredError) InitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range targets {
		sum += t
	}
	return sum / float64(len(targets))
}
func (squaredError) Name() string { return ObjectiveSquaredError }

// absoluteError uses the sign of the residual and a unit hessian.
type absoluteError struct{}

func (absoluteError) Gradient(p, t float64) float64 {
	d := p - t
	switch {
	case math.Abs(d) < 1e-7:
		return 0
	case d > 0:
		return 1
	}
	return -1
}
func (absoluteError) Hessian(_, _ float64) float64        { return 1 }
func (absoluteError) Loss(p, t float64) float64           { return math.Abs(p - t) }
func (absoluteError) InitScore(targets []float64) float64 { return medianOf(targets) }
func (absoluteError) Name() string                        { return ObjectiveAbsoluteError }

// huber is quadratic within delta of the target and linear outside.
type huber struct {
	delta float64
}

func (h huber) Gradient(p, t float64) float64 {
	d := p - t
	if math.Abs(d) <= h.delta {
		return d
	}
	if d > 0 {
		return h.delta
	}
	return -h.delta
}

func (h huber) Hessian(p, t float64) float64 {
	if math.Abs(p-t) <= h.delta {
		return 1
	}
	return 1e-7
}

func (h huber) Loss(p, t float64) float64 {
	d := math.Abs(p - t)
	if d <= h.delta {
		return 0.5 * d * d
	}
	return h.delta * (d - 0.5*h.delta)
}

func (huber) InitScore(targets []float64) float64 { return medianOf(targets) }
func (huber) Name() string                        { return ObjectiveHuber }

func medianOf(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
