// Package config holds every tunable of a pipeline run. Values start from
// Default, are overlaid by an optional TOML file and finally by CLI flags.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/YuminosukeSato/songstreams/dataprep"
	"github.com/YuminosukeSato/songstreams/dataset"
	"github.com/YuminosukeSato/songstreams/pkg/errors"
	"github.com/YuminosukeSato/songstreams/preprocessing"
	"github.com/YuminosukeSato/songstreams/sklearn/ensemble"
	"github.com/YuminosukeSato/songstreams/sklearn/model_selection"
	"github.com/YuminosukeSato/songstreams/sklearn/neural_network"
)

const dateLayout = "2006-01-02"

// Config is the full run configuration.
type Config struct {
	Seed       uint64           `toml:"seed"`
	Data       DataConfig       `toml:"data"`
	Clean      CleanConfig      `toml:"clean"`
	Features   FeaturesConfig   `toml:"features"`
	Split      SplitConfig      `toml:"split"`
	Linear     LinearConfig     `toml:"linear"`
	Neural     NeuralConfig     `toml:"neural"`
	Boosting   BoostingConfig   `toml:"boosting"`
	Search     SearchConfig     `toml:"search"`
	Evaluation EvaluationConfig `toml:"evaluation"`
	Output     OutputConfig     `toml:"output"`
	Log        LogConfig        `toml:"log"`
}

// DataConfig locates and decodes the input CSV.
type DataConfig struct {
	Path      string `toml:"path"`
	Encoding  string `toml:"encoding"`
	Delimiter string `toml:"delimiter"`
	Strict    bool   `toml:"strict"`
}

// CleanConfig controls coercion, imputation and duplicate removal.
type CleanConfig struct {
	DropDuplicates     bool   `toml:"drop_duplicates"`
	Policy             string `toml:"policy"`
	Strategy           string `toml:"strategy"`
	TextFill           string `toml:"text_fill"`
	ThousandsSeparator string `toml:"thousands_separator"`
}

// FeaturesConfig controls derived features and anomaly removal.
type FeaturesConfig struct {
	// ReferenceDate is YYYY-MM-DD; empty means the run date.
	ReferenceDate string  `toml:"reference_date"`
	AnomalyMethod string  `toml:"anomaly_method"`
	Threshold     float64 `toml:"threshold"`
	Contamination float64 `toml:"contamination"`
	Trees         int     `toml:"trees"`
	MaxSamples    int     `toml:"max_samples"`
}

// SplitConfig is the train/test partition and the feature scaler.
type SplitConfig struct {
	TestSize float64 `toml:"test_size"`
	Scaler   string  `toml:"scaler"`
}

// LinearConfig configures the least squares model.
type LinearConfig struct {
	FitIntercept bool `toml:"fit_intercept"`
}

// NeuralConfig configures the MLP regressor.
type NeuralConfig struct {
	HiddenLayerSizes []int   `toml:"hidden_layer_sizes"`
	Activation       string  `toml:"activation"`
	Solver           string  `toml:"solver"`
	Alpha            float64 `toml:"alpha"`
	BatchSize        int     `toml:"batch_size"`
	LearningRate     float64 `toml:"learning_rate"`
	MaxIter          int     `toml:"max_iter"`
	Tol              float64 `toml:"tol"`
}

// BoostingConfig configures the gradient boosted trees.
type BoostingConfig struct {
	Rounds              int     `toml:"rounds"`
	LearningRate        float64 `toml:"learning_rate"`
	MaxDepth            int     `toml:"max_depth"`
	Lambda              float64 `toml:"lambda"`
	Gamma               float64 `toml:"gamma"`
	MinChildWeight      float64 `toml:"min_child_weight"`
	Subsample           float64 `toml:"subsample"`
	ColsampleByTree     float64 `toml:"colsample_bytree"`
	Objective           string  `toml:"objective"`
	HuberDelta          float64 `toml:"huber_delta"`
	EarlyStoppingRounds int     `toml:"early_stopping_rounds"`
	// ValidationFraction of the training rows is held out when early stopping.
	ValidationFraction float64 `toml:"validation_fraction"`
	ShowProgress       bool    `toml:"show_progress"`
}

// SearchConfig is the MLP hyperparameter grid.
type SearchConfig struct {
	Enabled    bool      `toml:"enabled"`
	Folds      int       `toml:"folds"`
	Activation []string  `toml:"activation"`
	Solver     []string  `toml:"solver"`
	MaxIter    []int     `toml:"max_iter"`
	Alpha      []float64 `toml:"alpha"`
}

// EvaluationConfig controls cross validation after training.
type EvaluationConfig struct {
	Folds      int  `toml:"folds"`
	BoostingCV bool `toml:"boosting_cv"`
}

// OutputConfig is where charts, models and the report go.
type OutputConfig struct {
	Dir        string `toml:"dir"`
	Plots      bool   `toml:"plots"`
	SaveModels bool   `toml:"save_models"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration of the reference analysis.
func Default() *Config {
	clean := dataprep.DefaultCleanOptions()
	features := dataprep.DefaultFeatureOptions()
	return &Config{
		Seed: 42,
		Data: DataConfig{
			Path:      "spotify-2023.csv",
			Encoding:  dataset.EncodingLatin1,
			Delimiter: ",",
		},
		Clean: CleanConfig{
			DropDuplicates:     clean.DropDuplicates,
			Policy:             clean.Policy,
			Strategy:           clean.Strategy,
			TextFill:           clean.TextFill,
			ThousandsSeparator: clean.ThousandsSeparator,
		},
		Features: FeaturesConfig{
			AnomalyMethod: features.AnomalyMethod,
			Threshold:     features.Threshold,
			Contamination: features.Contamination,
			Trees:         features.Trees,
			MaxSamples:    features.MaxSamples,
		},
		Split:  SplitConfig{TestSize: 0.2, Scaler: "standard"},
		Linear: LinearConfig{FitIntercept: true},
		Neural: NeuralConfig{
			HiddenLayerSizes: []int{24, 24, 24, 24, 24},
			Activation:       neural_network.ActivationReLU,
			Solver:           neural_network.SolverAdam,
			Alpha:            1e-4,
			LearningRate:     1e-3,
			MaxIter:          500,
			Tol:              1e-4,
		},
		Boosting: BoostingConfig{
			Rounds:             100,
			LearningRate:       0.1,
			MaxDepth:           6,
			Lambda:             1,
			MinChildWeight:     1,
			Subsample:          1,
			ColsampleByTree:    1,
			Objective:          ensemble.ObjectiveSquaredError,
			HuberDelta:         1,
			ValidationFraction: 0.1,
		},
		Search: SearchConfig{
			Enabled:    true,
			Folds:      3,
			Activation: []string{neural_network.ActivationReLU, neural_network.ActivationTanh},
			Solver:     []string{neural_network.SolverAdam, neural_network.SolverLBFGS},
			MaxIter:    []int{200, 500},
			Alpha:      []float64{1e-4, 1e-2},
		},
		Evaluation: EvaluationConfig{Folds: 5, BoostingCV: true},
		Output:     OutputConfig{Dir: "out", Plots: true, SaveModels: true},
		Log:        LogConfig{Level: "info", Format: "console"},
	}
}

// Load overlays the TOML file at path on the defaults and validates the
// result. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.NewLoadError(path, "invalid TOML", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.NewValidationError("config", "unknown keys", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid value as a ValidationError.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Data.Encoding) {
	case "", dataset.EncodingUTF8, "utf8", dataset.EncodingLatin1, "latin1", "latin-1", "iso8859-1":
	default:
		return errors.NewValidationError("data.encoding", "must be utf-8 or iso-8859-1", c.Data.Encoding)
	}
	if len([]rune(c.Data.Delimiter)) != 1 {
		return errors.NewValidationError("data.delimiter", "must be a single character", c.Data.Delimiter)
	}
	if c.Data.Path == "" {
		return errors.NewValidationError("data.path", "is required", c.Data.Path)
	}
	if err := c.CleanOptions().Validate(); err != nil {
		return err
	}
	fo, err := c.FeatureOptions()
	if err != nil {
		return err
	}
	if err := fo.Validate(); err != nil {
		return err
	}
	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		return errors.NewValidationError("split.test_size", "must be in (0, 1)", c.Split.TestSize)
	}
	if _, err := preprocessing.NewScaler(c.Split.Scaler); err != nil {
		return err
	}
	if err := neural_network.NewMLPRegressor().SetParams(c.NeuralParams()); err != nil {
		return errors.Wrap(err, "neural")
	}
	if err := ensemble.NewGradientBoostingRegressor().SetParams(c.BoostingParams()); err != nil {
		return errors.Wrap(err, "boosting")
	}
	if c.Boosting.EarlyStoppingRounds > 0 && (c.Boosting.ValidationFraction <= 0 || c.Boosting.ValidationFraction >= 1) {
		return errors.NewValidationError("boosting.validation_fraction", "must be in (0, 1)", c.Boosting.ValidationFraction)
	}
	if c.Search.Enabled {
		if c.Search.Folds < 2 {
			return errors.NewValidationError("search.folds", "must be at least 2", c.Search.Folds)
		}
		for _, params := range c.SearchGrid().Candidates() {
			if err := neural_network.NewMLPRegressor().SetParams(params); err != nil {
				return errors.Wrap(err, "search")
			}
		}
	}
	if c.Evaluation.Folds < 2 {
		return errors.NewValidationError("evaluation.folds", "must be at least 2", c.Evaluation.Folds)
	}
	if c.Output.Dir == "" {
		return errors.NewValidationError("output.dir", "is required", c.Output.Dir)
	}
	return nil
}

// LoadOptions converts the data section.
func (c *Config) LoadOptions() dataset.LoadOptions {
	opts := dataset.DefaultLoadOptions()
	opts.Encoding = c.Data.Encoding
	opts.Delimiter = []rune(c.Data.Delimiter)[0]
	opts.Schema.Strict = c.Data.Strict
	return opts
}

// CleanOptions converts the clean section.
func (c *Config) CleanOptions() dataprep.CleanOptions {
	return dataprep.CleanOptions{
		DropDuplicates:     c.Clean.DropDuplicates,
		ThousandsSeparator: c.Clean.ThousandsSeparator,
		Policy:             c.Clean.Policy,
		Strategy:           c.Clean.Strategy,
		TextFill:           c.Clean.TextFill,
	}
}

// FeatureOptions converts the features section.
func (c *Config) FeatureOptions() (dataprep.FeatureOptions, error) {
	opts := dataprep.FeatureOptions{
		Derive:        true,
		AnomalyMethod: c.Features.AnomalyMethod,
		Threshold:     c.Features.Threshold,
		Contamination: c.Features.Contamination,
		Trees:         c.Features.Trees,
		MaxSamples:    c.Features.MaxSamples,
		Seed:          c.Seed,
	}
	if c.Features.ReferenceDate != "" {
		ref, err := time.Parse(dateLayout, c.Features.ReferenceDate)
		if err != nil {
			return opts, errors.NewValidationError("features.reference_date", "must be YYYY-MM-DD", c.Features.ReferenceDate)
		}
		opts.ReferenceDate = ref
	}
	return opts, nil
}

// NeuralParams returns the neural section as MLPRegressor parameters.
func (c *Config) NeuralParams() map[string]interface{} {
	return map[string]interface{}{
		"hidden_layer_sizes": c.Neural.HiddenLayerSizes,
		"activation":         c.Neural.Activation,
		"solver":             c.Neural.Solver,
		"alpha":              c.Neural.Alpha,
		"batch_size":         c.Neural.BatchSize,
		"learning_rate_init": c.Neural.LearningRate,
		"max_iter":           c.Neural.MaxIter,
		"tol":                c.Neural.Tol,
		"seed":               int(c.Seed),
	}
}

// BoostingParams returns the boosting section as GradientBoostingRegressor parameters.
func (c *Config) BoostingParams() map[string]interface{} {
	return map[string]interface{}{
		"rounds":                c.Boosting.Rounds,
		"learning_rate":         c.Boosting.LearningRate,
		"max_depth":             c.Boosting.MaxDepth,
		"lambda":                c.Boosting.Lambda,
		"gamma":                 c.Boosting.Gamma,
		"min_child_weight":      c.Boosting.MinChildWeight,
		"subsample":             c.Boosting.Subsample,
		"colsample_bytree":      c.Boosting.ColsampleByTree,
		"objective":             c.Boosting.Objective,
		"huber_delta":           c.Boosting.HuberDelta,
		"early_stopping_rounds": c.Boosting.EarlyStoppingRounds,
		"seed":                  int(c.Seed),
	}
}

// SearchGrid returns the search section as a grid over MLPRegressor parameters.
// Empty lists are left out of the grid.
func (c *Config) SearchGrid() model_selection.ParamGrid {
	grid := model_selection.ParamGrid{}
	if len(c.Search.Activation) > 0 {
		values := make([]interface{}, len(c.Search.Activation))
		for i, v := range c.Search.Activation {
			values[i] = v
		}
		grid["activation"] = values
	}
	if len(c.Search.Solver) > 0 {
		values := make([]interface{}, len(c.Search.Solver))
		for i, v := range c.Search.Solver {
			values[i] = v
		}
		grid["solver"] = values
	}
	if len(c.Search.MaxIter) > 0 {
		values := make([]interface{}, len(c.Search.MaxIter))
		for i, v := range c.Search.MaxIter {
			values[i] = v
		}
		grid["max_iter"] = values
	}
	if len(c.Search.Alpha) > 0 {
		values := make([]interface{}, len(c.Search.Alpha))
		for i, v := range c.Search.Alpha {
			values[i] = v
		}
		grid["alpha"] = values
	}
	return grid
}
