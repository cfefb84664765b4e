package neural_network

import (
	"github.com/YuminosukeSato/songstreams/core/model"
)

// GetParams returns the hyperparameters keyed by their config names.
func (m *MLPRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"hidden_layer_sizes": append([]int(nil), m.HiddenLayerSizes...),
		"activation":         m.Activation,
		"solver":             m.Solver,
		"alpha":              m.Alpha,
		"batch_size":         m.BatchSize,
		"learning_rate_init": m.LearningRateInit,
		"max_iter":           m.MaxIter,
		"tol":                m.Tol,
		"n_iter_no_change":   m.NIterNoChange,
		"shuffle":            m.Shuffle,
		"seed":               m.Seed,
	}
}

// SetParams updates hyperparameters; on error the model is left unchanged.
func (m *MLPRegressor) SetParams(params map[string]interface{}) error {
	next := *m
	for key, v := range params {
		var err error
		switch key {
		case "hidden_layer_sizes":
			next.HiddenLayerSizes, err = model.AsIntSlice(key, v)
		case "activation":
			next.Activation, err = model.AsString(key, v)
		case "solver":
			next.Solver, err = model.AsString(key, v)
		case "alpha":
			next.Alpha, err = model.AsFloat(key, v)
		case "batch_size":
			next.BatchSize, err = model.AsInt(key, v)
		case "learning_rate_init":
			next.LearningRateInit, err = model.AsFloat(key, v)
		case "max_iter":
			next.MaxIter, err = model.AsInt(key, v)
		case "tol":
			next.Tol, err = model.AsFloat(key, v)
		case "n_iter_no_change":
			next.NIterNoChange, err = model.AsInt(key, v)
		case "shuffle":
			next.Shuffle, err = model.AsBool(key, v)
		case "seed":
			var s int
			s, err = model.AsInt(key, v)
			next.Seed = uint64(s)
		default:
			return model.UnknownParam(m.Name(), key)
		}
		if err != nil {
			return err
		}
	}
	if err := next.validate(); err != nil {
		return err
	}
	*m = next
	return nil
}

// CloneUnfitted returns an unfitted copy with the same hyperparameters.
func (m *MLPRegressor) CloneUnfitted() model.Tunable {
	return &MLPRegressor{
		HiddenLayerSizes: append([]int(nil), m.HiddenLayerSizes...),
		Activation:       m.Activation,
		Solver:           m.Solver,
		Alpha:            m.Alpha,
		BatchSize:        m.BatchSize,
		LearningRateInit: m.LearningRateInit,
		MaxIter:          m.MaxIter,
		Tol:              m.Tol,
		NIterNoChange:    m.NIterNoChange,
		Beta1:            m.Beta1,
		Beta2:            m.Beta2,
		Epsilon:          m.Epsilon,
		Shuffle:          m.Shuffle,
		Seed:             m.Seed,
	}
}
