package neural_network

import (
	"math"

	"github.com/YuminosukeSato/songstreams/pkg/errors"
)

// Activation names for hidden layers.
const (
	ActivationReLU     = "relu"
	ActivationLogistic = "logistic"
	ActivationTanh     = "tanh"
	ActivationIdentity = "identity"
)

// activation pairs a function with its derivative expressed in terms of the
// activated output.
type activation struct {
	f     func(z float64) float64
	deriv func(a float64) float64
}

func lookupActivation(name string) (activation, error) {
	switch name {
	case ActivationReLU:
		return activation{
			f: func(z float64) float64 { return math.Max(0, z) },
			deriv: func(a float64) float64 {
				if a > 0 {
					return 1
				}
				return 0
			},
		}, nil
	case ActivationLogistic:
		return activation{
			f: func(z float64) float64 {
				if z < 0 {
					e := math.Exp(z)
					return e / (1 + e)
				}
				return 1 / (1 + math.Exp(-z))
			},
			deriv: func(a float64) float64 { return a * (1 - a) },
		}, nil
	case ActivationTanh:
		return activation{
			f:     math.Tanh,
			deriv: func(a float64) float64 { return 1 - a*a },
		}, nil
	case ActivationIdentity:
		return activation{
			f:     func(z float64) float64 { return z },
			deriv: func(float64) float64 { return 1 },
		}, nil
	}
	return activation{}, errors.NewValidationError("activation", "must be relu, logistic, tanh or identity", name)
}
