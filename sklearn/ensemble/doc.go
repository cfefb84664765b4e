// Package ensemble implements tree ensembles: a second-order gradient boosted
// regressor in the XGBoost style and an isolation forest used to flag
// anomalous rows.
//
// Basic usage:
//
//	gbr := ensemble.NewGradientBoostingRegressor(
//	    ensemble.WithRounds(200),
//	    ensemble.WithLearningRate(0.05),
//	    ensemble.WithMaxDepth(4),
//	)
//	if err := gbr.Fit(XTrain, yTrain); err != nil {
//	    return err
//	}
//	pred, err := gbr.Predict(XTest)
//
// Per-round cross validation:
//
//	cv, err := ensemble.CrossValidate(gbr, X, y, model_selection.NewKFold(5, true, 42))
//	fmt.Println(cv.BestRound(), cv.TestRMSEMean[cv.BestRound()])
package ensemble
