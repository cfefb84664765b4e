// Standard attribute keys for pipeline logging. Using the same keys in every
// package makes the JSON logs of a run filterable by stage, model and phase.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model.
	// Examples: "LinearRegression", "MLPRegressor", "GradientBoostingRegressor"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"

	// StageKey names the pipeline stage ("load", "clean", "features", ...).
	StageKey = "pipeline.stage"

	// RunIDKey identifies one pipeline run.
	RunIDKey = "pipeline.run_id"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// ColumnKey names a dataset column.
	ColumnKey = "data.column"

	// PathKey is a file path read or written.
	PathKey = "data.path"

	// DroppedKey is the number of rows removed by a step.
	DroppedKey = "data.dropped"

	// BatchSizeKey indicates the size of mini-batches.
	BatchSizeKey = "data.batch_size"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// LossKey records a training loss value.
	LossKey = "metrics.loss"

	// RMSEKey records root mean squared error.
	RMSEKey = "metrics.rmse"

	// MAEKey records mean absolute error.
	MAEKey = "metrics.mae"

	// R2ScoreKey records the R² coefficient of determination.
	R2ScoreKey = "metrics.r2_score"

	// IterationKey records the current iteration (boosting round, optimiser step).
	IterationKey = "training.iteration"

	// EpochKey records the current epoch.
	EpochKey = "training.epoch"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code.
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// LearningRateKey records the learning rate.
	LearningRateKey = "hyperparams.learning_rate"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhasePreprocessing = "preprocessing"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
	ErrorSingularMatrix    = "SINGULAR_MATRIX"
)
