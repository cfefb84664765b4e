package model

import (
	"gonum.org/v1/gonum/mat"
)

// Scorer is the interface for models that can compute a score.
type Scorer interface {
	// Score returns the coefficient of determination R^2 of the prediction.
	Score(X, y mat.Matrix) (float64, error)
}

// Regressor is what the pipeline trains and evaluates: a named, fittable
// model producing one continuous prediction per row.
type Regressor interface {
	Fitter
	Predictor
	Scorer

	// Name is the display name used in reports ("LinearRegression", ...).
	Name() string
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters. Unknown keys are a ValidationError.
	SetParams(params map[string]interface{}) error
}

// Tunable models can be cloned and reconfigured by grid search.
type Tunable interface {
	Regressor
	ParameterGetter
	ParameterSetter

	// CloneUnfitted returns a fresh copy with the same hyperparameters.
	CloneUnfitted() Tunable
}
