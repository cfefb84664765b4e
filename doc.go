// Package songstreams predicts how often a song is streamed on Spotify from its
// chart, playlist and audio metadata.
//
// A run loads the Spotify 2023 export, cleans it, derives release-age
// features, removes anomalous rows, renders exploratory charts, and then
// trains and compares three regressors on the same train/test split:
//
//   - linear: ordinary least squares
//   - sklearn/neural_network: multi-layer perceptron (adam or L-BFGS), tuned by grid search
//   - sklearn/ensemble: second-order gradient boosted trees
//
// # Quick Start
//
//	go run ./cmd/songstreams --data spotify-2023.csv --out out
//
// or from Go:
//
//	cfg := config.Default()
//	cfg.Data.Path = "spotify-2023.csv"
//	report, err := pipeline.Run(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("best model:", report.Comparison.Best)
//
// # Packages
//
//   - dataset: column table, schema and CSV loader (UTF-8 or Latin-1)
//   - dataprep: Cleaner and FeatureEngineer
//   - visualize: PNG charts (gonum/plot)
//   - linear, sklearn/neural_network, sklearn/ensemble: regressors
//   - sklearn/model_selection: train/test split, k-fold, cross validation, grid search
//   - evaluation: test-set metrics, ranking and cross-validated RMSE
//   - metrics, preprocessing: regression metrics and feature scalers
//   - store: on-disk model store (diskv)
//   - config: defaults and TOML overrides
//   - pipeline: the stage driver and report.json
//   - core/model, core/parallel: estimator interfaces and chunked parallelism
//   - pkg/errors, pkg/log: error taxonomy and structured logging
//
// Every Fit is deterministic for a fixed seed and partition. Parallel code
// paths write to disjoint output slots, so results match a sequential run.
package songstreams
