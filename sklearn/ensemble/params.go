package ensemble

import (
	"github.com/YuminosukeSato/songstreams/core/model"
)

// GetParams returns the hyperparameters keyed by their config names.
func (g *GradientBoostingRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"rounds":                g.Rounds,
		"learning_rate":         g.LearningRate,
		"max_depth":             g.MaxDepth,
		"lambda":                g.Lambda,
		"gamma":                 g.Gamma,
		"min_child_weight":      g.MinChildWeight,
		"subsample":             g.Subsample,
		"colsample_bytree":      g.ColsampleByTree,
		"objective":             g.Objective,
		"huber_delta":           g.HuberDelta,
		"seed":                  g.Seed,
		"early_stopping_rounds": g.EarlyStoppingRounds,
	}
}

// SetParams updates hyperparameters. Unknown keys and wrongly typed values
// return a ValidationError and leave the model unchanged.
func (g *GradientBoostingRegressor) SetParams(params map[string]interface{}) error {
	next := *g
	for key, v := range params {
		var err error
		switch key {
		case "rounds":
			next.Rounds, err = model.AsInt(key, v)
		case "learning_rate":
			next.LearningRate, err = model.AsFloat(key, v)
		case "max_depth":
			next.MaxDepth, err = model.AsInt(key, v)
		case "lambda":
			next.Lambda, err = model.AsFloat(key, v)
		case "gamma":
			next.Gamma, err = model.AsFloat(key, v)
		case "min_child_weight":
			next.MinChildWeight, err = model.AsFloat(key, v)
		case "subsample":
			next.Subsample, err = model.AsFloat(key, v)
		case "colsample_bytree":
			next.ColsampleByTree, err = model.AsFloat(key, v)
		case "objective":
			next.Objective, err = model.AsString(key, v)
		case "huber_delta":
			next.HuberDelta, err = model.AsFloat(key, v)
		case "seed":
			var s int
			s, err = model.AsInt(key, v)
			next.Seed = uint64(s)
		case "early_stopping_rounds":
			next.EarlyStoppingRounds, err = model.AsInt(key, v)
		default:
			return model.UnknownParam(g.Name(), key)
		}
		if err != nil {
			return err
		}
	}
	if err := next.validate(); err != nil {
		return err
	}
	*g = next
	return nil
}

// CloneUnfitted returns an unfitted copy with the same hyperparameters. The
// validation set and callbacks are not copied.
func (g *GradientBoostingRegressor) CloneUnfitted() model.Tunable {
	return &GradientBoostingRegressor{
		Rounds:              g.Rounds,
		LearningRate:        g.LearningRate,
		MaxDepth:            g.MaxDepth,
		Lambda:              g.Lambda,
		Gamma:               g.Gamma,
		MinChildWeight:      g.MinChildWeight,
		Subsample:           g.Subsample,
		ColsampleByTree:     g.ColsampleByTree,
		Objective:           g.Objective,
		HuberDelta:          g.HuberDelta,
		Seed:                g.Seed,
		EarlyStoppingRounds: g.EarlyStoppingRounds,
	}
}
